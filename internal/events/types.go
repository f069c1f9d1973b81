package events

// Event type constants for kelindar/event.
const (
	TypeModeChanged uint32 = iota + 1
	TypeInterlockTripped
	TypeDeviceError
	TypePowerChanged
	TypeContextChanged
	TypeCapabilityChanged
	TypeLogEntry
)

// Event interface required by kelindar/event.
type Event interface {
	Type() uint32
}

// ModeChangedEvent is published after every committed torch mode transition.
type ModeChangedEvent struct {
	Mode       string `json:"mode" example:"strobe" doc:"Torch mode: off, steady, strobe"`
	IntervalMs int64  `json:"interval_ms,omitempty" example:"100" doc:"Strobe interval in milliseconds"`
	Timestamp  string `json:"timestamp" example:"2025-01-27T10:30:00Z" doc:"Event timestamp"`
}

// Type returns the event type identifier for ModeChangedEvent.
func (e ModeChangedEvent) Type() uint32 { return TypeModeChanged }

// InterlockTrippedEvent is published once per safety interlock trip.
type InterlockTrippedEvent struct {
	Reason    string `json:"reason" example:"LowPower" doc:"Interlock reason: LowPower, ContextInactive, MaxDurationExceeded"`
	Message   string `json:"message" example:"Battery level is too low" doc:"Human-readable reason"`
	Timestamp string `json:"timestamp" example:"2025-01-27T10:30:00Z" doc:"Event timestamp"`
}

// Type returns the event type identifier for InterlockTrippedEvent.
func (e InterlockTrippedEvent) Type() uint32 { return TypeInterlockTripped }

// DeviceErrorEvent reports an LED hardware error.
type DeviceErrorEvent struct {
	Kind      string `json:"kind" example:"UNAVAILABLE" doc:"Error kind: UNSUPPORTED, UNAVAILABLE, COMMAND_FAILED"`
	Message   string `json:"message" example:"failed to open torch LED" doc:"Error message"`
	Timestamp string `json:"timestamp" example:"2025-01-27T10:30:00Z" doc:"Event timestamp"`
}

// Type returns the event type identifier for DeviceErrorEvent.
func (e DeviceErrorEvent) Type() uint32 { return TypeDeviceError }

// PowerChangedEvent carries a discrete battery reading from the platform.
type PowerChangedEvent struct {
	Supply    string `json:"supply" example:"battery" doc:"Power supply name"`
	Level     int    `json:"level" example:"57" doc:"Battery level 0-100"`
	Charging  bool   `json:"charging" example:"false" doc:"Whether the battery is charging or full"`
	Timestamp string `json:"timestamp" example:"2025-01-27T10:30:00Z" doc:"Event timestamp"`
}

// Type returns the event type identifier for PowerChangedEvent.
func (e PowerChangedEvent) Type() uint32 { return TypePowerChanged }

// ContextChangedEvent reports the hosting context becoming active or inactive.
type ContextChangedEvent struct {
	Active    bool   `json:"active" example:"true" doc:"Whether the context may hold the LED"`
	Source    string `json:"source" example:"api" doc:"What changed the context"`
	Timestamp string `json:"timestamp" example:"2025-01-27T10:30:00Z" doc:"Event timestamp"`
}

// Type returns the event type identifier for ContextChangedEvent.
func (e ContextChangedEvent) Type() uint32 { return TypeContextChanged }

// CapabilityChangedEvent reports whether the device has a torch LED.
type CapabilityChangedEvent struct {
	Capable   bool   `json:"capable" example:"true" doc:"Whether a torch LED is present"`
	Timestamp string `json:"timestamp" example:"2025-01-27T10:30:00Z" doc:"Event timestamp"`
}

// Type returns the event type identifier for CapabilityChangedEvent.
func (e CapabilityChangedEvent) Type() uint32 { return TypeCapabilityChanged }

// LogEntryEvent carries a captured log line to SSE clients.
type LogEntryEvent struct {
	Timestamp  string         `json:"timestamp" example:"2025-01-27T10:30:00.123456789Z" doc:"Log timestamp"`
	Level      string         `json:"level" example:"info" doc:"Log level"`
	Module     string         `json:"module" example:"torch" doc:"Module that logged"`
	Message    string         `json:"message" example:"Torch mode changed" doc:"Log message"`
	Attributes map[string]any `json:"attributes,omitempty" doc:"Structured attributes"`
}

// Type returns the event type identifier for LogEntryEvent.
func (e LogEntryEvent) Type() uint32 { return TypeLogEntry }
