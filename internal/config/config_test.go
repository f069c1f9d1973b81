package config

import (
	"os"
	"path/filepath"
	"reflect"
	"testing"
	"time"

	"github.com/spf13/cobra"

	"github.com/smazurov/torchnode/internal/safety"
)

type testOptions struct {
	Config string `help:"Config file path"`

	LEDName        string   `toml:"led.name" env:"LED_NAME"`
	ObsEnabled     bool     `toml:"obs.prometheus_enabled" env:"OBS_ENABLED"`
	SafetyLowPower int      `toml:"safety.low_power_threshold" env:"SAFETY_LOW_POWER"`
	Supplies       []string `toml:"power.supplies" env:"POWER_SUPPLIES"`
	Port           string   `toml:"server.port" env:"PORT"`
}

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.toml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("Failed to write config: %v", err)
	}
	return path
}

func TestLoadConfigFromTOML(t *testing.T) {
	path := writeConfig(t, `
[led]
name = "white:flash"

[obs]
prometheus_enabled = true

[safety]
low_power_threshold = 15

[power]
supplies = ["battery", "bms"]
`)

	opts := &testOptions{Config: path}
	if err := LoadConfig(opts, nil); err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}

	if opts.LEDName != "white:flash" {
		t.Errorf("LEDName = %q", opts.LEDName)
	}
	if !opts.ObsEnabled {
		t.Error("ObsEnabled should be true")
	}
	if opts.SafetyLowPower != 15 {
		t.Errorf("SafetyLowPower = %d, want 15", opts.SafetyLowPower)
	}
	if want := []string{"battery", "bms"}; !reflect.DeepEqual(opts.Supplies, want) {
		t.Errorf("Supplies = %v, want %v", opts.Supplies, want)
	}
}

func TestLoadConfigFromEnvVars(t *testing.T) {
	t.Setenv("TORCHNODE_LED_NAME", "torch")
	t.Setenv("TORCHNODE_OBS_ENABLED", "true")
	t.Setenv("TORCHNODE_SAFETY_LOW_POWER", "20")
	t.Setenv("TORCHNODE_POWER_SUPPLIES", " a , b ")

	opts := &testOptions{}
	if err := LoadConfig(opts, nil); err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}

	if opts.LEDName != "torch" {
		t.Errorf("LEDName = %q", opts.LEDName)
	}
	if !opts.ObsEnabled {
		t.Error("ObsEnabled should be true")
	}
	if opts.SafetyLowPower != 20 {
		t.Errorf("SafetyLowPower = %d, want 20", opts.SafetyLowPower)
	}
	if want := []string{"a", "b"}; !reflect.DeepEqual(opts.Supplies, want) {
		t.Errorf("Supplies = %v, want %v", opts.Supplies, want)
	}
}

func TestLoadConfigEnvOverridesToml(t *testing.T) {
	path := writeConfig(t, `
[led]
name = "from-toml"

[server]
port = "8090"
`)
	t.Setenv("TORCHNODE_LED_NAME", "from-env")

	opts := &testOptions{Config: path}
	if err := LoadConfig(opts, nil); err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}

	if opts.LEDName != "from-env" {
		t.Errorf("LEDName = %q, want from-env", opts.LEDName)
	}
	if opts.Port != "8090" {
		t.Errorf("Port = %q, want 8090 from TOML", opts.Port)
	}
}

func TestLoadConfigChangedFlagsWin(t *testing.T) {
	path := writeConfig(t, `
[led]
name = "from-toml"
`)
	t.Setenv("TORCHNODE_LED_NAME", "from-env")

	cmd := &cobra.Command{Use: "test"}
	cmd.Flags().String("led-name", "", "")
	if err := cmd.Flags().Set("led-name", "from-flag"); err != nil {
		t.Fatal(err)
	}

	opts := &testOptions{Config: path, LEDName: "from-flag"}
	if err := LoadConfig(opts, cmd); err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}
	if opts.LEDName != "from-flag" {
		t.Errorf("LEDName = %q, want from-flag", opts.LEDName)
	}
}

func TestLoadConfigMissingFile(t *testing.T) {
	opts := &testOptions{Config: "nonexistent_file.toml", LEDName: "default"}
	if err := LoadConfig(opts, nil); err != nil {
		t.Fatalf("LoadConfig should not fail for missing file: %v", err)
	}
	if opts.LEDName != "default" {
		t.Errorf("LEDName = %q, defaults should survive", opts.LEDName)
	}
}

func TestLoadConfigInvalidTOML(t *testing.T) {
	path := writeConfig(t, "[led\ninvalid toml syntax\n")
	if err := LoadConfig(&testOptions{Config: path}, nil); err == nil {
		t.Error("expected error for invalid TOML")
	}
}

func TestGetNestedValue(t *testing.T) {
	data := map[string]any{
		"level1": map[string]any{
			"level2": map[string]any{"value": "nested_value"},
			"simple": "simple_value",
		},
		"root": "root_value",
	}

	tests := []struct {
		path     string
		expected any
	}{
		{"root", "root_value"},
		{"level1.simple", "simple_value"},
		{"level1.level2.value", "nested_value"},
		{"nonexistent", nil},
		{"level1.nonexistent", nil},
		{"root.child", nil},
	}

	for _, tt := range tests {
		if got := getNestedValue(data, tt.path); got != tt.expected {
			t.Errorf("getNestedValue(%q) = %v, expected %v", tt.path, got, tt.expected)
		}
	}
}

func TestFieldNameToFlag(t *testing.T) {
	tests := map[string]string{
		"Port":                "port",
		"LEDName":             "l-e-d-name",
		"SafetyMaxOnDuration": "safety-max-on-duration",
	}
	for in, want := range tests {
		if got := fieldNameToFlag(in); got != want {
			t.Errorf("fieldNameToFlag(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestSetFieldValueFromString(t *testing.T) {
	type target struct {
		S string
		B bool
		I int
	}
	s := &target{I: 7}
	v := reflect.ValueOf(s).Elem()

	setFieldValueFromString(v.FieldByName("S"), "x")
	setFieldValueFromString(v.FieldByName("B"), "1")
	setFieldValueFromString(v.FieldByName("I"), "not-a-number")

	if s.S != "x" || !s.B {
		t.Errorf("got %+v", s)
	}
	if s.I != 7 {
		t.Errorf("invalid int should leave field untouched, got %d", s.I)
	}
}

func TestParseDuration(t *testing.T) {
	tests := []struct {
		in      string
		want    time.Duration
		wantErr bool
	}{
		{"", 0, false},
		{"0", 0, false},
		{" 15m ", 15 * time.Minute, false},
		{"90s", 90 * time.Second, false},
		{"-1s", 0, true},
		{"fifteen", 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseDuration(tt.in)
			if (err != nil) != tt.wantErr {
				t.Fatalf("err = %v, wantErr %v", err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("ParseDuration(%q) = %v, want %v", tt.in, got, tt.want)
			}
		})
	}
}

func TestLoadRuntime(t *testing.T) {
	path := writeConfig(t, `
[logging]
level = "warn"
format = "json"
torch = "debug"

[logging.modules]
safety = "error"

[safety]
low_power_threshold = 25
max_on_duration = "2m"
`)

	rt, err := LoadRuntime(path)
	if err != nil {
		t.Fatalf("LoadRuntime failed: %v", err)
	}

	if rt.Logging.Level != "warn" || rt.Logging.Format != "json" {
		t.Errorf("logging = %+v", rt.Logging)
	}
	if rt.Logging.Modules["torch"] != "debug" || rt.Logging.Modules["safety"] != "error" {
		t.Errorf("modules = %v", rt.Logging.Modules)
	}
	if p := rt.Safety.LowPowerThreshold; p == nil || *p != 25 {
		t.Errorf("LowPowerThreshold = %v, want 25", p)
	}
	if d := rt.Safety.MaxOnDuration; d == nil || *d != 2*time.Minute {
		t.Errorf("MaxOnDuration = %v, want 2m", d)
	}
}

func TestLoadRuntimeDefaults(t *testing.T) {
	rt, err := LoadRuntime(writeConfig(t, "[server]\nport = \"8090\"\n"))
	if err != nil {
		t.Fatalf("LoadRuntime failed: %v", err)
	}
	if rt.Safety.LowPowerThreshold != nil || rt.Safety.MaxOnDuration != nil {
		t.Errorf("Safety = %+v, want no overrides", rt.Safety)
	}
	if rt.Logging.Level != "info" {
		t.Errorf("Level = %q, want info", rt.Logging.Level)
	}
}

func TestReloadKeepsStartupPolicy(t *testing.T) {
	// Auto-off disabled from the command line.
	base := safety.Policy{LowPowerThreshold: 5, MaxOnDuration: 0}

	rt, err := LoadRuntime(writeConfig(t, "[logging]\nlevel = \"debug\"\n"))
	if err != nil {
		t.Fatalf("LoadRuntime failed: %v", err)
	}
	if got := rt.Safety.Apply(base, nil); got != base {
		t.Errorf("policy after logging-only reload = %+v, want %+v", got, base)
	}
}

func TestSafetyOverrideApply(t *testing.T) {
	threshold := 30
	duration := time.Minute
	override := SafetyOverride{LowPowerThreshold: &threshold, MaxOnDuration: &duration}
	base := safety.DefaultPolicy()

	tests := []struct {
		name   string
		pinned map[string]bool
		want   safety.Policy
	}{
		{
			name: "file values apply",
			want: safety.Policy{LowPowerThreshold: 30, MaxOnDuration: time.Minute},
		},
		{
			name:   "pinned threshold kept",
			pinned: map[string]bool{KeyLowPowerThreshold: true},
			want:   safety.Policy{LowPowerThreshold: base.LowPowerThreshold, MaxOnDuration: time.Minute},
		},
		{
			name:   "everything pinned",
			pinned: map[string]bool{KeyLowPowerThreshold: true, KeyMaxOnDuration: true},
			want:   base,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := override.Apply(base, tt.pinned); got != tt.want {
				t.Errorf("Apply() = %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestPinnedKeys(t *testing.T) {
	t.Setenv("TORCHNODE_SAFETY_LOW_POWER", "20")

	cmd := &cobra.Command{Use: "test"}
	cmd.Flags().String("port", "", "")
	cmd.Flags().String("led-name", "", "")
	if err := cmd.Flags().Set("port", ":9000"); err != nil {
		t.Fatal(err)
	}

	var opts testOptions
	pinned := PinnedKeys(&opts, cmd)

	for _, key := range []string{"safety.low_power_threshold", "server.port"} {
		if !pinned[key] {
			t.Errorf("%s should be pinned", key)
		}
	}
	for _, key := range []string{"led.name", "obs.prometheus_enabled"} {
		if pinned[key] {
			t.Errorf("%s should not be pinned", key)
		}
	}
}

func TestLoadRuntimeRejectsInvalid(t *testing.T) {
	tests := map[string]string{
		"threshold above 100": "[safety]\nlow_power_threshold = 101\n",
		"negative threshold":  "[safety]\nlow_power_threshold = -1\n",
		"bad duration":        "[safety]\nmax_on_duration = \"soon\"\n",
		"broken toml":         "[safety\n",
	}
	for name, content := range tests {
		t.Run(name, func(t *testing.T) {
			if _, err := LoadRuntime(writeConfig(t, content)); err == nil {
				t.Error("expected error")
			}
		})
	}

	if _, err := LoadRuntime(filepath.Join(t.TempDir(), "missing.toml")); err == nil {
		t.Error("expected error for missing file")
	}
}

func TestLoadLoggingConfigFallsBack(t *testing.T) {
	for _, path := range []string{"", "missing.toml", writeConfig(t, "[logging\n")} {
		cfg := LoadLoggingConfig(path)
		if cfg.Level != "info" || cfg.Format != "text" || cfg.Modules == nil {
			t.Errorf("LoadLoggingConfig(%q) = %+v, want defaults", path, cfg)
		}
	}
}
