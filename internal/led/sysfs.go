package led

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
)

const sysfsLEDPath = "/sys/class/leds"

var errOutputClosed = errors.New("LED output already closed")

// claims tracks LED directories with an open Output in this process.
var (
	claims   = make(map[string]struct{})
	claimsMu sync.Mutex
)

// sysfs implements Driver using the Linux sysfs LED interface
type sysfs struct {
	root string // LED class directory, normally /sys/class/leds
	name string // sysfs LED name, e.g. "white:flash"
}

// newSysfs creates a driver for a single sysfs LED
func newSysfs(root, name string) *sysfs {
	if root == "" {
		root = sysfsLEDPath
	}
	return &sysfs{
		root: root,
		name: name,
	}
}

func (s *sysfs) Name() string {
	return s.name
}

// Available reports whether the LED directory exists
func (s *sysfs) Available() bool {
	_, err := os.Stat(s.path())
	return err == nil
}

// Open switches the LED to manual control and claims it
func (s *sysfs) Open() (Output, error) {
	ledPath := s.path()

	if _, err := os.Stat(ledPath); err != nil {
		return nil, fmt.Errorf("LED %q not found at %s: %w", s.name, ledPath, err)
	}

	claimsMu.Lock()
	defer claimsMu.Unlock()

	if _, busy := claims[ledPath]; busy {
		return nil, fmt.Errorf("LED %q is already claimed", s.name)
	}

	// Drop any kernel trigger so brightness writes stick
	triggerPath := filepath.Join(ledPath, "trigger")
	if _, err := os.Stat(triggerPath); err == nil {
		if err := os.WriteFile(triggerPath, []byte("none"), 0644); err != nil {
			return nil, fmt.Errorf("failed to set LED trigger to none: %w", err)
		}
	}

	brightnessPath := filepath.Join(ledPath, "brightness")
	if _, err := os.Stat(brightnessPath); err != nil {
		return nil, fmt.Errorf("LED %q has no brightness control: %w", s.name, err)
	}

	claims[ledPath] = struct{}{}

	return &sysfsOutput{
		ledPath:        ledPath,
		brightnessPath: brightnessPath,
		onValue:        maxBrightness(ledPath),
	}, nil
}

func (s *sysfs) path() string {
	return filepath.Join(s.root, s.name)
}

// sysfsOutput is an open claim on a sysfs LED
type sysfsOutput struct {
	mu             sync.Mutex
	ledPath        string
	brightnessPath string
	onValue        string
	closed         bool
}

// Set writes full or zero brightness
func (o *sysfsOutput) Set(on bool) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.closed {
		return errOutputClosed
	}

	value := "0"
	if on {
		value = o.onValue
	}

	if err := os.WriteFile(o.brightnessPath, []byte(value), 0644); err != nil {
		return fmt.Errorf("failed to set LED brightness: %w", err)
	}
	return nil
}

// Close switches the LED off and releases the claim. The claim is dropped
// even when the brightness write fails.
func (o *sysfsOutput) Close() error {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.closed {
		return nil
	}
	o.closed = true

	claimsMu.Lock()
	delete(claims, o.ledPath)
	claimsMu.Unlock()

	if err := os.WriteFile(o.brightnessPath, []byte("0"), 0644); err != nil {
		return fmt.Errorf("failed to reset LED brightness: %w", err)
	}
	return nil
}

// maxBrightness reads max_brightness, falling back to "1"
func maxBrightness(ledPath string) string {
	data, err := os.ReadFile(filepath.Join(ledPath, "max_brightness"))
	if err != nil {
		return "1"
	}

	value := strings.TrimSpace(string(data))
	if n, convErr := strconv.Atoi(value); convErr != nil || n <= 0 {
		return "1"
	}
	return value
}
