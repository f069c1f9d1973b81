package led

import (
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/smazurov/torchnode/internal/logging"
)

const deviceTreeModelPath = "/proc/device-tree/model"

// boardLEDs maps device tree models to the LED used as the torch.
var boardLEDs = []struct {
	model string
	led   string
}{
	{model: "PinePhone Pro", led: "white:flash"},
	{model: "PinePhone", led: "white:flash"},
	{model: "Librem 5", led: "white:flash"},
	{model: "NanoPC-T6", led: "usr_led"},
	{model: "Raspberry Pi", led: "ACT"},
}

// Options selects the torch LED.
type Options struct {
	// Name forces a sysfs LED name and skips detection.
	Name string
	// Root overrides the sysfs LED class directory.
	Root string
}

// New creates a torch driver based on configuration and board detection.
// Falls back to a no-op driver if no torch LED is found.
func New(logger logging.Logger, opts Options) Driver {
	root := opts.Root
	if root == "" {
		root = sysfsLEDPath
	}

	if opts.Name != "" {
		logger.Info("Using configured torch LED", "led", opts.Name, "root", root)
		return newSysfs(root, opts.Name)
	}

	boardModel := detectBoard()
	logger.Info("Detecting board for torch control", "board_model", boardModel)

	for _, b := range boardLEDs {
		if !strings.Contains(boardModel, b.model) {
			continue
		}
		drv := newSysfs(root, b.led)
		if drv.Available() {
			logger.Info("Detected board torch LED", "board", b.model, "led", b.led)
			return drv
		}
	}

	if name := scanTorchLED(root); name != "" {
		logger.Info("Found torch LED in sysfs", "led", name)
		return newSysfs(root, name)
	}

	logger.Info("No torch LED detected, using no-op driver", "board_model", boardModel)
	return newNoop(logger)
}

// BoardModel returns the device tree model, or "unknown".
func BoardModel() string {
	return detectBoard()
}

// ListLEDs returns every LED class device under root, sorted.
func ListLEDs(root string) ([]string, error) {
	if root == "" {
		root = sysfsLEDPath
	}
	entries, err := os.ReadDir(root)
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		names = append(names, e.Name())
	}
	sort.Strings(names)
	return names, nil
}

// detectBoard reads the device tree model to identify the board.
func detectBoard() string {
	data, err := os.ReadFile(deviceTreeModelPath)
	if err != nil {
		return "unknown"
	}

	// Device tree model contains null bytes, trim them
	model := strings.TrimRight(string(data), "\x00")
	return model
}

// scanTorchLED returns the first LED whose name mentions torch or flash.
func scanTorchLED(root string) string {
	entries, err := os.ReadDir(root)
	if err != nil {
		return ""
	}

	names := make([]string, 0, len(entries))
	for _, e := range entries {
		name := strings.ToLower(e.Name())
		if strings.Contains(name, "torch") || strings.Contains(name, "flash") {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)
	for _, name := range names {
		if _, err := os.Stat(filepath.Join(root, name, "brightness")); err == nil {
			return name
		}
	}
	return ""
}
