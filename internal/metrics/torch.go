// Package metrics provides Prometheus metrics for the torch daemon.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Mode label values reported by the torch mode gauge.
var modeLabels = []string{"off", "steady", "strobe"}

var (
	torchMode = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "torchnode",
		Subsystem: "torch",
		Name:      "mode",
		Help:      "Current torch mode (1 for the active mode, 0 otherwise)",
	}, []string{"mode"})

	strobeIntervalSeconds = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "torchnode",
		Subsystem: "strobe",
		Name:      "interval_seconds",
		Help:      "Current strobe interval, 0 when not strobing",
	})

	strobeEdges = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "torchnode",
		Subsystem: "strobe",
		Name:      "edges_total",
		Help:      "Strobe edges written to the LED",
	}, []string{"state"})

	interlockTrips = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "torchnode",
		Subsystem: "safety",
		Name:      "interlock_trips_total",
		Help:      "Safety interlock trips that forced the torch off",
	}, []string{"reason"})

	deviceErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "torchnode",
		Subsystem: "led",
		Name:      "device_errors_total",
		Help:      "LED device errors by kind",
	}, []string{"kind"})

	handleAcquires = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "torchnode",
		Subsystem: "led",
		Name:      "acquires_total",
		Help:      "Successful LED handle acquisitions",
	})

	handleReleases = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "torchnode",
		Subsystem: "led",
		Name:      "releases_total",
		Help:      "LED handle releases",
	})

	powerLevel = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "torchnode",
		Subsystem: "power",
		Name:      "level_percent",
		Help:      "Last reported battery level",
	})

	powerCharging = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "torchnode",
		Subsystem: "power",
		Name:      "charging",
		Help:      "1 when the battery is charging or full",
	})
)

// SetMode marks the given mode as active on the mode gauge.
func SetMode(mode string) {
	for _, m := range modeLabels {
		v := 0.0
		if m == mode {
			v = 1
		}
		torchMode.WithLabelValues(m).Set(v)
	}
}

// SetStrobeInterval records the strobe interval in seconds.
func SetStrobeInterval(seconds float64) {
	strobeIntervalSeconds.Set(seconds)
}

// IncStrobeEdge counts a strobe edge.
func IncStrobeEdge(on bool) {
	state := "off"
	if on {
		state = "on"
	}
	strobeEdges.WithLabelValues(state).Inc()
}

// IncInterlockTrip counts an interlock trip for the given reason.
func IncInterlockTrip(reason string) {
	interlockTrips.WithLabelValues(reason).Inc()
}

// IncDeviceError counts a device error of the given kind.
func IncDeviceError(kind string) {
	deviceErrors.WithLabelValues(kind).Inc()
}

// IncHandleAcquire counts a successful handle acquisition.
func IncHandleAcquire() {
	handleAcquires.Inc()
}

// IncHandleRelease counts a handle release.
func IncHandleRelease() {
	handleReleases.Inc()
}

// SetPower records the latest power reading.
func SetPower(level int, charging bool) {
	powerLevel.Set(float64(level))
	if charging {
		powerCharging.Set(1)
	} else {
		powerCharging.Set(0)
	}
}

// Handler returns the HTTP handler serving the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}
