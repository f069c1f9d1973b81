package power

import (
	"strconv"

	"github.com/smazurov/torchnode/internal/monitoring"
)

// eventReading extracts a battery reading from a power_supply change event.
// Events from other subsystems, other supplies, or without a capacity are
// rejected.
func eventReading(e *monitoring.UEvent, supply string) (Reading, bool) {
	if e.Subsystem != monitoring.SubsystemPowerSupply {
		return Reading{}, false
	}

	name := e.Env["POWER_SUPPLY_NAME"]
	if name == "" {
		name = e.Name()
	}
	if supply != "" && name != supply {
		return Reading{}, false
	}

	capacity, ok := e.Env["POWER_SUPPLY_CAPACITY"]
	if !ok {
		return Reading{}, false
	}
	level, err := strconv.Atoi(capacity)
	if err != nil {
		return Reading{}, false
	}

	status := e.Env["POWER_SUPPLY_STATUS"]
	if status == "" {
		status = StatusUnknown
	}

	return Reading{
		Supply:   name,
		Level:    clampLevel(level),
		Status:   status,
		Charging: IsCharging(status),
	}, true
}
