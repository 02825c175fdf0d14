package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/ShayCichocki/hydra/internal/devices"
	"github.com/ShayCichocki/hydra/internal/transport"
	"github.com/ShayCichocki/hydra/pkg/models"
)

var (
	listenRole   string
	listenOutput string
)

var listenCmd = &cobra.Command{
	Use:   "listen --role <name>",
	Short: "Run a worker device: answer handshakes and collect tasks",
	Long: `Act as the worker device named by --role in the device file.

The worker answers handshakes on its handshake port and subscribes to its own
topic plus the default topic. It stops after transport.inactivity_timeout
without a message, on Ctrl-C, or when 'hydra kill' is run in this directory.

In bind mode the worker dials the sender entry of the device file. In connect
mode it listens on its own data port.`,
	Args: cobra.NoArgs,
	RunE: runListen,
}

func init() {
	listenCmd.Flags().StringVar(&listenRole, "role", "", "Device name from the device file (required)")
	listenCmd.Flags().StringVarP(&listenOutput, "output", "o", "", "Write received tasks as JSON to this file")
	_ = listenCmd.MarkFlagRequired("role")
}

func runListen(cmd *cobra.Command, args []string) error {
	a, err := loadApp()
	if err != nil {
		return err
	}
	defer a.Close()

	inv, err := a.inventory()
	if err != nil {
		return err
	}
	device, err := inv.Lookup(listenRole)
	if err != nil {
		return err
	}
	endpoint, err := subscriberEndpoint(a.cfg.Transport.Mode, inv, device)
	if err != nil {
		return err
	}

	cwd, err := os.Getwd()
	if err != nil {
		return fmt.Errorf("get working directory: %w", err)
	}
	if err := transport.ClearKill(cwd); err != nil {
		return fmt.Errorf("clear kill signal: %w", err)
	}

	sigCtx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx, release, err := transport.WatchKill(sigCtx, cwd)
	if err != nil {
		return fmt.Errorf("watch kill signal: %w", err)
	}
	defer release()

	topics := []string{device.Topic(), a.cfg.Transport.DefaultTopic}
	source, err := transport.OpenSubscriber(ctx, a.cfg.Transport.Mode, endpoint, topics)
	if err != nil {
		return err
	}

	listener := transport.NewListener(source, transport.ListenerConfig{
		Topics:            topics,
		PollInterval:      a.cfg.Transport.PollInterval,
		InactivityTimeout: a.cfg.Transport.InactivityTimeout,
		OnMessage: func(msg models.WireMessage) {
			task := models.ParseTaskPayload(msg.Payload)
			fmt.Printf("%s [%s] %s: %s\n", color.GreenString("→"), msg.Topic, task.ID, task.Description)
		},
	}, a.logger)

	fmt.Printf("Listening as %s on %s (topics %v)\n", device, endpoint, topics)

	g, gctx := errgroup.WithContext(ctx)
	serveCtx, stopServe := context.WithCancel(gctx)
	defer stopServe()

	if hs := device.HandshakePort; hs != 0 {
		g.Go(func() error {
			return transport.ServeHandshake(serveCtx, transport.TCPEndpoint("*", hs), a.logger)
		})
	}

	var received []models.WireMessage
	g.Go(func() error {
		defer stopServe()
		var err error
		received, err = listener.Run(gctx)
		return err
	})

	if err := g.Wait(); err != nil {
		return err
	}

	fmt.Printf("\nReceived %d messages\n", len(received))
	if listenOutput != "" {
		tasks := make([]models.Task, 0, len(received))
		for _, msg := range received {
			tasks = append(tasks, models.ParseTaskPayload(msg.Payload))
		}
		if err := writeJSON(listenOutput, tasks); err != nil {
			return err
		}
		fmt.Printf("Tasks written to %s\n", listenOutput)
	}
	return nil
}

// subscriberEndpoint picks the endpoint a worker's SUB socket uses: the
// sender's endpoint in bind mode, or the worker's own data port in connect
// mode.
func subscriberEndpoint(mode string, inv *devices.Inventory, device models.Device) (string, error) {
	mode, err := transport.ParseMode(mode)
	if err != nil {
		return "", err
	}
	if mode == transport.ModeConnect {
		return transport.TCPEndpoint("*", device.Port), nil
	}
	sender, err := inv.SenderDevice()
	if err != nil {
		return "", fmt.Errorf("bind mode: %w", err)
	}
	return sender.Endpoint(), nil
}
