package cmd

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/smazurov/torchnode/internal/led"
	"github.com/smazurov/torchnode/internal/logging"
	"github.com/smazurov/torchnode/internal/power"
)

type detectOptions struct {
	ledName   string
	ledRoot   string
	powerRoot string
	supply    string
}

// CreateDetectCmd creates the detect command.
func CreateDetectCmd() *cobra.Command {
	var opts detectOptions

	cmd := &cobra.Command{
		Use:   "detect",
		Short: "Show the torch LED and battery this device would use",
		Long: `Runs the same board detection as the daemon and prints the LED chosen as the torch, ` +
			`every LED class device, and the battery reading used by the low power interlock.`,
		Args: cobra.NoArgs,
		RunE: func(c *cobra.Command, _ []string) error {
			return runDetect(c.OutOrStdout(), opts)
		},
	}

	cmd.Flags().StringVar(&opts.ledName, "led-name", "", "Force a sysfs LED name")
	cmd.Flags().StringVar(&opts.ledRoot, "led-sysfs-root", "", "LED class directory (default /sys/class/leds)")
	cmd.Flags().StringVar(&opts.powerRoot, "power-sysfs-root", "", "Power supply class directory (default /sys/class/power_supply)")
	cmd.Flags().StringVar(&opts.supply, "power-supply", "", "Battery name; empty auto-detects")
	return cmd
}

func runDetect(w io.Writer, opts detectOptions) error {
	logging.Initialize(logging.Config{Level: "warn", Format: "text"})

	fmt.Fprintf(w, "Board:   %s\n", led.BoardModel())

	driver := led.New(logging.GetLogger("led"), led.Options{Name: opts.ledName, Root: opts.ledRoot})
	if driver.Available() {
		fmt.Fprintf(w, "Torch:   %s\n", driver.Name())
	} else {
		fmt.Fprintln(w, "Torch:   none (torch commands will report UNSUPPORTED)")
	}

	leds, err := led.ListLEDs(opts.ledRoot)
	switch {
	case err != nil:
		fmt.Fprintf(w, "LEDs:    unreadable (%v)\n", err)
	case len(leds) == 0:
		fmt.Fprintln(w, "LEDs:    none")
	default:
		fmt.Fprintln(w, "LEDs:")
		for _, name := range leds {
			fmt.Fprintf(w, "  - %s\n", name)
		}
	}

	supply := opts.supply
	if supply == "" {
		supply, err = power.DetectBattery(opts.powerRoot)
		if err != nil {
			fmt.Fprintln(w, "Battery: none (low power interlock stays clear)")
			return nil
		}
	}

	reading, err := power.ReadSupply(opts.powerRoot, supply)
	if err != nil {
		return err
	}
	fmt.Fprintf(w, "Battery: %s %d%% %s (charging=%t)\n", reading.Supply, reading.Level, reading.Status, reading.Charging)
	return nil
}
