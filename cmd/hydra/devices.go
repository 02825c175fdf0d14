package main

import (
	"fmt"
	"strconv"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

var devicesCmd = &cobra.Command{
	Use:   "devices",
	Short: "List the device inventory",
	Long: `Print every entry of the device file with its class and ports.

Workers without a class are listed as skipped unless default_class is set.`,
	Args: cobra.NoArgs,
	RunE: runDevices,
}

func runDevices(cmd *cobra.Command, args []string) error {
	a, err := loadApp()
	if err != nil {
		return err
	}
	defer a.Close()

	inv, err := a.inventory()
	if err != nil {
		return err
	}

	fmt.Printf("Devices from %s\n\n", a.cfg.DevicesFile)
	fmt.Printf("  %-16s %-18s %-6s %-9s %s\n", "NAME", "ADDRESS", "PORT", "HANDSHAKE", "CLASS")

	skipped := make(map[string]bool, len(inv.Skipped))
	for _, id := range inv.Skipped {
		skipped[id] = true
	}

	for _, d := range inv.Entries {
		hs := "-"
		if d.HandshakePort != 0 {
			hs = strconv.Itoa(d.HandshakePort)
		}
		class := string(d.Class)
		switch {
		case inv.Sender != nil && d.ID == inv.Sender.ID:
			class = color.CyanString("sender")
		case skipped[d.ID]:
			class = color.YellowString("skipped (no class)")
		}
		fmt.Printf("  %-16s %-18s %-6d %-9s %s\n", d.ID, d.Address, d.Port, hs, class)
	}

	fmt.Println()
	fmt.Printf("%d pooled, %d skipped", len(inv.Pool.All()), len(inv.Skipped))
	if inv.Sender == nil {
		fmt.Printf(", %s", color.YellowString("no sender entry"))
	}
	fmt.Println()
	return nil
}
