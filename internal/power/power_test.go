package power

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/smazurov/torchnode/internal/events"
	"github.com/smazurov/torchnode/internal/monitoring"
)

func writeSupply(t *testing.T, root, name string, files map[string]string) {
	t.Helper()
	dir := filepath.Join(root, name)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatal(err)
	}
	for file, content := range files {
		if err := os.WriteFile(filepath.Join(dir, file), []byte(content+"\n"), 0o644); err != nil {
			t.Fatal(err)
		}
	}
}

func TestIsCharging(t *testing.T) {
	tests := []struct {
		status string
		want   bool
	}{
		{StatusCharging, true},
		{StatusFull, true},
		{"Full\n", true},
		{StatusDischarging, false},
		{StatusNotCharging, false},
		{StatusUnknown, false},
		{"", false},
	}
	for _, tt := range tests {
		if got := IsCharging(tt.status); got != tt.want {
			t.Errorf("IsCharging(%q) = %v, want %v", tt.status, got, tt.want)
		}
	}
}

func TestReadSupply(t *testing.T) {
	root := t.TempDir()
	writeSupply(t, root, "battery", map[string]string{"capacity": "57", "status": "Discharging", "type": "Battery"})
	writeSupply(t, root, "overfull", map[string]string{"capacity": "104", "status": "Full"})
	writeSupply(t, root, "nostatus", map[string]string{"capacity": "20"})
	writeSupply(t, root, "garbage", map[string]string{"capacity": "lots"})

	tests := []struct {
		name    string
		want    Reading
		wantErr bool
	}{
		{"battery", Reading{Supply: "battery", Level: 57, Status: "Discharging"}, false},
		{"overfull", Reading{Supply: "overfull", Level: 100, Status: "Full", Charging: true}, false},
		{"nostatus", Reading{Supply: "nostatus", Level: 20, Status: StatusUnknown}, false},
		{"garbage", Reading{}, true},
		{"missing", Reading{}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ReadSupply(root, tt.name)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ReadSupply error = %v, wantErr %v", err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("ReadSupply = %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestDetectBattery(t *testing.T) {
	root := t.TempDir()
	writeSupply(t, root, "AC", map[string]string{"type": "Mains", "online": "1"})
	writeSupply(t, root, "BAT1", map[string]string{"type": "Battery", "capacity": "40"})
	writeSupply(t, root, "BAT0", map[string]string{"type": "Battery", "capacity": "80"})
	writeSupply(t, root, "hid-battery", map[string]string{"type": "Battery"})

	got, err := DetectBattery(root)
	if err != nil {
		t.Fatalf("DetectBattery failed: %v", err)
	}
	if got != "BAT0" {
		t.Errorf("DetectBattery = %q, want BAT0", got)
	}

	empty := t.TempDir()
	writeSupply(t, empty, "AC", map[string]string{"type": "Mains"})
	if _, err := DetectBattery(empty); !errors.Is(err, errNoBattery) {
		t.Errorf("DetectBattery without battery = %v, want errNoBattery", err)
	}
}

func TestEventReading(t *testing.T) {
	battery := func(env map[string]string) *monitoring.UEvent {
		env["SUBSYSTEM"] = monitoring.SubsystemPowerSupply
		return &monitoring.UEvent{Action: "change", KObj: "/devices/power_supply/battery", Subsystem: monitoring.SubsystemPowerSupply, Env: env}
	}

	tests := []struct {
		name   string
		event  *monitoring.UEvent
		supply string
		want   Reading
		ok     bool
	}{
		{
			name:   "full reading",
			event:  battery(map[string]string{"POWER_SUPPLY_NAME": "battery", "POWER_SUPPLY_CAPACITY": "5", "POWER_SUPPLY_STATUS": "Discharging"}),
			supply: "battery",
			want:   Reading{Supply: "battery", Level: 5, Status: "Discharging"},
			ok:     true,
		},
		{
			name:   "full counts as charging",
			event:  battery(map[string]string{"POWER_SUPPLY_NAME": "battery", "POWER_SUPPLY_CAPACITY": "100", "POWER_SUPPLY_STATUS": "Full"}),
			supply: "battery",
			want:   Reading{Supply: "battery", Level: 100, Status: "Full", Charging: true},
			ok:     true,
		},
		{
			name:   "name from kobj",
			event:  battery(map[string]string{"POWER_SUPPLY_CAPACITY": "30"}),
			supply: "battery",
			want:   Reading{Supply: "battery", Level: 30, Status: StatusUnknown},
			ok:     true,
		},
		{
			name:   "other supply",
			event:  battery(map[string]string{"POWER_SUPPLY_NAME": "usb", "POWER_SUPPLY_CAPACITY": "30"}),
			supply: "battery",
		},
		{
			name:   "no capacity",
			event:  battery(map[string]string{"POWER_SUPPLY_NAME": "battery", "POWER_SUPPLY_ONLINE": "1"}),
			supply: "battery",
		},
		{
			name:   "other subsystem",
			event:  &monitoring.UEvent{Subsystem: "usb", Env: map[string]string{"POWER_SUPPLY_CAPACITY": "30"}},
			supply: "battery",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := eventReading(tt.event, tt.supply)
			if ok != tt.ok {
				t.Fatalf("ok = %v, want %v", ok, tt.ok)
			}
			if got != tt.want {
				t.Errorf("Reading = %+v, want %+v", got, tt.want)
			}
		})
	}
}

// chanSource feeds uevents from a channel.
type chanSource struct {
	events chan *monitoring.UEvent
	closed bool
	mu     sync.Mutex
}

func (s *chanSource) Run(ctx context.Context, handle func(*monitoring.UEvent)) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev := <-s.events:
			handle(ev)
		}
	}
}

func (s *chanSource) Close() error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	return nil
}

func TestWatcher_PublishesChanges(t *testing.T) {
	root := t.TempDir()
	writeSupply(t, root, "battery", map[string]string{"type": "Battery", "capacity": "60", "status": "Discharging"})

	bus := events.New()
	readings := make(chan events.PowerChangedEvent, 8)
	defer bus.Subscribe(func(e events.PowerChangedEvent) { readings <- e })()

	src := &chanSource{events: make(chan *monitoring.UEvent)}
	w := NewWatcher(bus, Options{Root: root})
	w.newSource = func() (eventSource, error) { return src, nil }

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()

	expect := func(level int, charging bool) {
		t.Helper()
		select {
		case e := <-readings:
			if e.Level != level || e.Charging != charging || e.Supply != "battery" {
				t.Errorf("event = %+v, want level %d charging %v", e, level, charging)
			}
		case <-time.After(time.Second):
			t.Fatalf("missing PowerChangedEvent(level %d)", level)
		}
	}

	expect(60, false)

	send := func(env map[string]string) {
		env["SUBSYSTEM"] = monitoring.SubsystemPowerSupply
		src.events <- &monitoring.UEvent{Action: "change", KObj: "/devices/power_supply/battery", Subsystem: monitoring.SubsystemPowerSupply, Env: env}
	}

	// Unchanged reading is not republished.
	send(map[string]string{"POWER_SUPPLY_NAME": "battery", "POWER_SUPPLY_CAPACITY": "60", "POWER_SUPPLY_STATUS": "Discharging"})
	send(map[string]string{"POWER_SUPPLY_NAME": "battery", "POWER_SUPPLY_CAPACITY": "9", "POWER_SUPPLY_STATUS": "Discharging"})
	expect(9, false)

	// Bare notification falls back to sysfs.
	writeSupply(t, root, "battery", map[string]string{"capacity": "12", "status": "Charging"})
	send(map[string]string{"POWER_SUPPLY_NAME": "battery"})
	expect(12, true)

	// Other supplies are ignored.
	send(map[string]string{"POWER_SUPPLY_NAME": "usb", "POWER_SUPPLY_CAPACITY": "1"})
	select {
	case e := <-readings:
		t.Errorf("unexpected event %+v", e)
	case <-time.After(20 * time.Millisecond):
	}

	if r, ok := w.Last(); !ok || r.Level != 12 {
		t.Errorf("Last() = %+v, %v", r, ok)
	}

	cancel()
	if err := <-done; err != nil {
		t.Errorf("Run returned %v", err)
	}
	src.mu.Lock()
	if !src.closed {
		t.Error("source not closed")
	}
	src.mu.Unlock()
}

func TestWatcher_NoBattery(t *testing.T) {
	w := NewWatcher(nil, Options{Root: t.TempDir()})
	w.newSource = func() (eventSource, error) {
		t.Fatal("source opened without a battery")
		return nil, nil
	}
	if err := w.Run(context.Background()); err != nil {
		t.Errorf("Run = %v, want nil", err)
	}
	if _, ok := w.Last(); ok {
		t.Error("no reading expected")
	}
}

func TestWatcher_SourceUnavailable(t *testing.T) {
	root := t.TempDir()
	writeSupply(t, root, "BAT0", map[string]string{"type": "Battery", "capacity": "33", "status": "Discharging"})

	w := NewWatcher(nil, Options{Root: root, Supply: "BAT0"})
	w.newSource = func() (eventSource, error) { return nil, errors.New("no netlink") }

	if err := w.Run(context.Background()); err != nil {
		t.Errorf("Run = %v, want nil", err)
	}
	if r, ok := w.Last(); !ok || r.Level != 33 || r.Supply != "BAT0" {
		t.Errorf("Last() = %+v, %v", r, ok)
	}
}
