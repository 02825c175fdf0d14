package main

import (
	"fmt"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/ShayCichocki/hydra/internal/transport"
	"github.com/ShayCichocki/hydra/pkg/models"
)

var handshakeCmd = &cobra.Command{
	Use:   "handshake [device...]",
	Short: "Probe worker devices for liveness",
	Long: `Send a handshake to each named device, or to every pooled device when
none is named, and wait up to transport.handshake_timeout for the ack.

Devices without a handshake port are reported as skipped.`,
	RunE: runHandshake,
}

func runHandshake(cmd *cobra.Command, args []string) error {
	a, err := loadApp()
	if err != nil {
		return err
	}
	defer a.Close()

	inv, err := a.inventory()
	if err != nil {
		return err
	}

	targets := inv.Pool.All()
	if len(args) > 0 {
		targets = targets[:0]
		for _, role := range args {
			d, err := inv.Lookup(role)
			if err != nil {
				return err
			}
			targets = append(targets, d)
		}
	}
	if len(targets) == 0 {
		fmt.Println("No devices to probe.")
		return nil
	}

	h := transport.ZMQHandshaker{Timeout: a.cfg.Transport.HandshakeTimeout}
	failed := 0
	for _, d := range targets {
		if err := probe(cmd, h, d); err != nil {
			failed++
		}
	}

	if failed > 0 {
		return fmt.Errorf("%d of %d devices unreachable", failed, len(targets))
	}
	return nil
}

func probe(cmd *cobra.Command, h transport.Handshaker, d models.Device) error {
	if d.HandshakeEndpoint() == "" {
		printStatus("-", fmt.Sprintf("%s: no handshake port", d), color.FgHiBlack)
		return nil
	}
	if err := h.Handshake(cmd.Context(), d); err != nil {
		printStatus("✗", fmt.Sprintf("%s: %v", d, err), color.FgRed)
		return err
	}
	printStatus("✓", fmt.Sprintf("%s: ack", d), color.FgGreen)
	return nil
}
