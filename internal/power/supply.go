// Package power reads battery state from the Linux power_supply class and
// publishes discrete readings on the event bus.
package power

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
)

const sysfsPowerSupplyPath = "/sys/class/power_supply"

// Battery status strings as reported by the kernel.
const (
	StatusCharging    = "Charging"
	StatusDischarging = "Discharging"
	StatusNotCharging = "Not charging"
	StatusFull        = "Full"
	StatusUnknown     = "Unknown"
)

var errNoBattery = errors.New("no battery power supply found")

// Reading is one battery sample.
type Reading struct {
	Supply   string
	Level    int
	Status   string
	Charging bool
}

// IsCharging reports whether a status counts as charging. A full battery on
// external power is treated as charging.
func IsCharging(status string) bool {
	switch strings.TrimSpace(status) {
	case StatusCharging, StatusFull:
		return true
	default:
		return false
	}
}

// ReadSupply reads capacity and status of a power supply from sysfs.
func ReadSupply(root, name string) (Reading, error) {
	if root == "" {
		root = sysfsPowerSupplyPath
	}
	dir := filepath.Join(root, name)

	capacity, err := readTrimmed(filepath.Join(dir, "capacity"))
	if err != nil {
		return Reading{}, fmt.Errorf("read capacity of %s: %w", name, err)
	}
	level, err := strconv.Atoi(capacity)
	if err != nil {
		return Reading{}, fmt.Errorf("parse capacity %q of %s: %w", capacity, name, err)
	}

	status, err := readTrimmed(filepath.Join(dir, "status"))
	if err != nil {
		status = StatusUnknown
	}

	return Reading{
		Supply:   name,
		Level:    clampLevel(level),
		Status:   status,
		Charging: IsCharging(status),
	}, nil
}

// DetectBattery returns the first supply of type Battery that reports a
// capacity, in name order.
func DetectBattery(root string) (string, error) {
	if root == "" {
		root = sysfsPowerSupplyPath
	}

	entries, err := os.ReadDir(root)
	if err != nil {
		return "", err
	}

	names := make([]string, 0, len(entries))
	for _, e := range entries {
		names = append(names, e.Name())
	}
	sort.Strings(names)

	for _, name := range names {
		typ, err := readTrimmed(filepath.Join(root, name, "type"))
		if err != nil || typ != "Battery" {
			continue
		}
		if _, err := os.Stat(filepath.Join(root, name, "capacity")); err == nil {
			return name, nil
		}
	}
	return "", errNoBattery
}

func readTrimmed(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(data)), nil
}

func clampLevel(level int) int {
	return max(0, min(100, level))
}
