package models

import "github.com/smazurov/torchnode/internal/events"

// Health check models
type HealthData struct {
	Status  string `json:"status" example:"ok" doc:"Service status"`
	Message string `json:"message" example:"API is healthy" doc:"Status message"`
}

type HealthResponse struct {
	Body HealthData
}

// Version models
type VersionData struct {
	Version   string `json:"version" example:"1.2.0" doc:"Application version"`
	GitCommit string `json:"git_commit" example:"a1b2c3d" doc:"Git commit hash"`
	BuildDate string `json:"build_date" example:"2025-01-27T10:30:00Z" doc:"Build timestamp"`
	GoVersion string `json:"go_version" example:"go1.24.11" doc:"Go toolchain version"`
	Platform  string `json:"platform" example:"linux/arm64" doc:"Target platform"`
}

type VersionResponse struct {
	Body VersionData
}

// Torch models
type TorchStateData struct {
	Mode          string `json:"mode" example:"strobe" enum:"off,steady,strobe" doc:"Current torch mode"`
	IntervalMs    int64  `json:"interval_ms,omitempty" example:"100" doc:"Strobe interval in milliseconds"`
	On            bool   `json:"on" example:"true" doc:"Whether the torch LED is in use"`
	DeviceCapable bool   `json:"device_capable" example:"true" doc:"Whether the device has a torch LED"`
	OnSince       string `json:"on_since,omitempty" example:"2025-01-27T10:30:00Z" doc:"When the torch was turned on"`
	Reason        string `json:"reason,omitempty" example:"LowPower" doc:"Interlock that last forced the torch off"`
	ReasonMessage string `json:"reason_message,omitempty" example:"battery level too low to use the torch" doc:"Human-readable interlock reason"`
}

type TorchStateResponse struct {
	Body TorchStateData
}

type HoldRequest struct {
	Body struct {
		Pressed bool `json:"pressed" example:"true" doc:"True while the hold button is pressed"`
	}
}

type StrobeRequest struct {
	Body struct {
		IntervalMs *int64 `json:"interval_ms,omitempty" example:"100" doc:"Strobe interval in milliseconds (1-60000); the configured default when omitted"`
	} `required:"false"`
}

type StrobeIntervalRequest struct {
	Body struct {
		IntervalMs int64 `json:"interval_ms" example:"250" doc:"New strobe interval in milliseconds (1-60000)"`
	}
}

// Context and safety models
type ContextRequest struct {
	Body struct {
		Active bool   `json:"active" example:"true" doc:"Whether the torch context is active"`
		Source string `json:"source,omitempty" example:"ui" doc:"What changed the context"`
	}
}

type SafetyData struct {
	PowerLevel        int    `json:"power_level" example:"57" doc:"Last battery level 0-100"`
	Charging          bool   `json:"charging" example:"false" doc:"Whether the battery is charging or full"`
	PowerKnown        bool   `json:"power_known" example:"true" doc:"Whether a power reading has arrived"`
	ContextActive     bool   `json:"context_active" example:"true" doc:"Whether the torch context is active"`
	Tripped           bool   `json:"tripped" example:"false" doc:"Whether an interlock currently holds"`
	Reason            string `json:"reason,omitempty" example:"LowPower" doc:"Interlock that currently holds"`
	LowPowerThreshold int    `json:"low_power_threshold" example:"10" doc:"Battery level at or below which the torch is refused"`
	MaxOnDuration     string `json:"max_on_duration" example:"15m0s" doc:"Continuous-on limit; 0s disables"`
}

type SafetyResponse struct {
	Body SafetyData
}

type CapabilitiesData struct {
	Capable               bool   `json:"capable" example:"true" doc:"Whether the device has a torch LED"`
	LED                   string `json:"led,omitempty" example:"white:flash" doc:"Sysfs LED driving the torch"`
	DefaultStrobeInterval int64  `json:"default_strobe_interval_ms" example:"100" doc:"Interval used when a strobe request omits one"`
}

type CapabilitiesResponse struct {
	Body CapabilitiesData
}

// Log models
type LogsRequest struct {
	Tail   int    `query:"tail" default:"100" minimum:"0" doc:"Number of most recent entries to return; 0 returns all"`
	Module string `query:"module" doc:"Only entries from this module"`
}

type LogsData struct {
	Entries []events.LogEntryEvent `json:"entries" doc:"Log entries, oldest first"`
	Count   int                    `json:"count" example:"100" doc:"Number of entries returned"`
}

type LogsResponse struct {
	Body LogsData
}

type LogLevelsData struct {
	Levels map[string]string `json:"levels" doc:"Effective level per module"`
}

type LogLevelsResponse struct {
	Body LogLevelsData
}

type SetLogLevelRequest struct {
	Module string `path:"module" example:"strobe" doc:"Logger module"`
	Body   struct {
		Level string `json:"level" example:"debug" enum:"debug,info,warn,error" doc:"New level"`
	}
}
