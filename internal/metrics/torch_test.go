package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestSetMode(t *testing.T) {
	SetMode("strobe")

	if v := testutil.ToFloat64(torchMode.WithLabelValues("strobe")); v != 1 {
		t.Errorf("strobe gauge = %v, want 1", v)
	}
	if v := testutil.ToFloat64(torchMode.WithLabelValues("off")); v != 0 {
		t.Errorf("off gauge = %v, want 0", v)
	}

	SetMode("off")
	if v := testutil.ToFloat64(torchMode.WithLabelValues("strobe")); v != 0 {
		t.Errorf("strobe gauge after off = %v, want 0", v)
	}
}

func TestCounters(t *testing.T) {
	before := testutil.ToFloat64(strobeEdges.WithLabelValues("on"))
	IncStrobeEdge(true)
	IncStrobeEdge(false)
	if got := testutil.ToFloat64(strobeEdges.WithLabelValues("on")); got != before+1 {
		t.Errorf("on edges = %v, want %v", got, before+1)
	}

	tripsBefore := testutil.ToFloat64(interlockTrips.WithLabelValues("LowPower"))
	IncInterlockTrip("LowPower")
	if got := testutil.ToFloat64(interlockTrips.WithLabelValues("LowPower")); got != tripsBefore+1 {
		t.Errorf("trips = %v, want %v", got, tripsBefore+1)
	}
}

func TestSetPower(t *testing.T) {
	SetPower(42, true)
	if v := testutil.ToFloat64(powerLevel); v != 42 {
		t.Errorf("powerLevel = %v, want 42", v)
	}
	if v := testutil.ToFloat64(powerCharging); v != 1 {
		t.Errorf("powerCharging = %v, want 1", v)
	}

	SetPower(7, false)
	if v := testutil.ToFloat64(powerCharging); v != 0 {
		t.Errorf("powerCharging = %v, want 0", v)
	}
}
