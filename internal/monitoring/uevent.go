// Package monitoring follows kernel device events for the power and LED
// watchers.
package monitoring

import (
	"bytes"
	"strings"
)

// Kernel subsystems the daemon follows.
const (
	SubsystemPowerSupply = "power_supply"
	SubsystemLEDs        = "leds"
)

// UEvent is a parsed kernel uevent.
type UEvent struct {
	Action    string
	KObj      string
	Subsystem string
	Env       map[string]string
}

// Name returns the last element of the kobject path, which is the device
// name under its class directory.
func (e *UEvent) Name() string {
	return e.KObj[strings.LastIndex(e.KObj, "/")+1:]
}

// ParseUEvent parses a kernel uevent message of the form
// "ACTION@KOBJ\0KEY=VALUE\0...". Messages re-broadcast by udev carry a binary
// header that is skipped.
func ParseUEvent(data []byte) *UEvent {
	if len(data) == 0 {
		return nil
	}

	if bytes.HasPrefix(data, []byte("libudev")) {
		for i := 0; i < len(data)-1; i++ {
			if data[i] != 0 {
				continue
			}
			rest := data[i+1:]
			end := bytes.IndexByte(rest, 0)
			if end < 0 {
				end = len(rest)
			}
			if idx := bytes.IndexByte(rest[:end], '@'); idx > 0 && idx < 20 {
				data = rest
				break
			}
		}
	}

	parts := bytes.Split(data, []byte{0})
	if len(parts[0]) == 0 {
		return nil
	}

	header := string(parts[0])
	at := strings.Index(header, "@")
	if at < 1 {
		return nil
	}

	ev := &UEvent{
		Action: header[:at],
		KObj:   header[at+1:],
		Env:    make(map[string]string),
	}

	for _, part := range parts[1:] {
		key, value, ok := strings.Cut(string(part), "=")
		if !ok || key == "" {
			continue
		}
		ev.Env[key] = value
		if key == "SUBSYSTEM" {
			ev.Subsystem = value
		}
	}

	return ev
}

func matchSubsystem(subsystems []string, s string) bool {
	if len(subsystems) == 0 {
		return true
	}
	for _, want := range subsystems {
		if want == s {
			return true
		}
	}
	return false
}
