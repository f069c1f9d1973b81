// Package logging provides structured logging with per-module levels.
//
// Initialize once at startup, then ask for a logger per module:
//
//	logging.Initialize(logging.Config{
//		Level:  "info",
//		Format: "text",
//		Modules: map[string]string{
//			"strobe": "debug",
//		},
//	})
//
//	logger := logging.GetLogger("torch")
//	logger.Info("Torch mode changed", "from", "off", "to", "steady")
//
// Records go to stdout (text or JSON), to the systemd journal when journald
// is reachable, and to an in-memory History that backs the /api/logs
// endpoint and the log SSE stream. Levels live in slog.LevelVars, so loggers
// created before Initialize, ApplyLevels, or SetModuleLevel follow later
// changes without being recreated.
//
// Journal entries carry SYSLOG_IDENTIFIER=torchnode and every attribute as
// an upper-cased field:
//
//	journalctl -t torchnode -f
//	journalctl -t torchnode MODULE=safety
//	journalctl -t torchnode -p warning
//
// Per-module levels in TOML:
//
//	[logging]
//	level = "info"
//	format = "text"
//
//	[logging.modules]
//	strobe = "debug"
//	api = "warn"
package logging
