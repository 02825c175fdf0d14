package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/fatih/color"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/ShayCichocki/hydra/internal/extract"
	"github.com/ShayCichocki/hydra/internal/orchestrator"
	"github.com/ShayCichocki/hydra/internal/prompts"
	"github.com/ShayCichocki/hydra/internal/server"
	"github.com/ShayCichocki/hydra/internal/transport"
	"github.com/ShayCichocki/hydra/pkg/models"
)

var (
	runStatusAddr string
	runNoAudit    bool
	runOutput     string
	runHold       bool
)

var runCmd = &cobra.Command{
	Use:   "run <tasks.json>",
	Short: "Classify tasks and dispatch them to worker devices",
	Long: `Run one dispatch cycle.

The task file is a JSON array of {"id", "description"} objects. Tasks are
classified until at least one lands in a class queue, then each queue is
spread round-robin over the devices of its class. Devices with a handshake
port are probed once per cycle; an unreachable device is skipped for the
rest of the cycle and its tasks are reported as undelivered.

Examples:
  hydra run tasks.json
  hydra run tasks.json --status-addr :8080 --hold
  hydra run tasks.json -o report.json`,
	Args: cobra.ExactArgs(1),
	RunE: runRun,
}

func init() {
	runCmd.Flags().StringVar(&runStatusAddr, "status-addr", "", "Serve health and metrics on this address (overrides status.addr)")
	runCmd.Flags().BoolVar(&runNoAudit, "no-audit", false, "Do not record the run in the state database")
	runCmd.Flags().StringVarP(&runOutput, "output", "o", "", "Write the run report as JSON to this file")
	runCmd.Flags().BoolVar(&runHold, "hold", false, "Keep the status server up after dispatch until interrupted")
}

func runRun(cmd *cobra.Command, args []string) error {
	a, err := loadApp()
	if err != nil {
		return err
	}
	defer a.Close()

	tasks, err := orchestrator.LoadTasks(args[0])
	if err != nil {
		return err
	}
	inv, err := a.inventory()
	if err != nil {
		return err
	}
	set, err := prompts.Load(a.cfg.PromptsFile)
	if err != nil {
		return err
	}
	client, err := a.client()
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	opts := []orchestrator.Option{
		orchestrator.WithLogger(a.logger),
		orchestrator.WithMaxClassifyAttempts(a.cfg.Orchestrator.MaxClassifyAttempts),
		orchestrator.WithHandshaker(transport.ZMQHandshaker{Timeout: a.cfg.Transport.HandshakeTimeout}),
		orchestrator.WithMetrics(orchestrator.MustNewMetrics(prometheus.DefaultRegisterer)),
	}

	var audit server.AuditReader
	var observer extract.Observer
	if !runNoAudit {
		db, err := a.openState()
		if err != nil {
			return err
		}
		if db != nil {
			defer db.Close()
			interactions := orchestrator.NewInteractionLog(db, "classifier", client.Model(), a.logger)
			observer = interactions.Observer()
			audit = db
			opts = append(opts, orchestrator.WithAuditLog(db), orchestrator.WithInteractionLog(interactions))
		}
	}

	clf, err := a.classifier(client, set, observer)
	if err != nil {
		return err
	}

	pub, err := transport.NewPublisher(ctx, a.publisherConfig(inv), a.logger)
	if err != nil {
		return err
	}
	defer pub.Close()

	orch, err := orchestrator.New(orchestrator.RequiredConfig{
		Classifier: clf,
		Pool:       inv.Pool,
		Publisher:  pub,
	}, opts...)
	if err != nil {
		return err
	}

	addr := runStatusAddr
	if addr == "" {
		addr = a.cfg.Status.Addr
	}
	serverDone := make(chan error, 1)
	serverCtx, stopServer := context.WithCancel(ctx)
	defer stopServer()
	if addr != "" {
		srv := server.New(server.Config{Addr: addr, Pool: inv.Pool, Audit: audit, Logger: a.logger})
		go func() { serverDone <- srv.Run(serverCtx) }()
	} else {
		serverDone <- nil
	}

	fmt.Printf("Dispatching %d tasks to %d devices (%s, %s mode)\n\n",
		len(tasks), len(inv.Pool.All()), client.Model(), a.cfg.Transport.Mode)

	report, runErr := orch.Run(ctx, tasks)
	if report != nil {
		printReport(report)
		if runOutput != "" {
			if err := writeJSON(runOutput, report); err != nil {
				return err
			}
			fmt.Printf("Report written to %s\n", runOutput)
		}
	}
	reportUsage(client)

	if addr != "" && runHold && runErr == nil {
		fmt.Printf("Status server on %s; press Ctrl-C to exit\n", addr)
		<-ctx.Done()
	}
	stopServer()
	if err := <-serverDone; err != nil {
		a.logger.Error("status server", "error", err)
	}

	if runErr != nil {
		return runErr
	}
	if !report.OK() {
		return fmt.Errorf("run %s did not dispatch every classified task", report.RunID)
	}
	return nil
}

// printReport renders a run report.
func printReport(r *orchestrator.Report) {
	fmt.Printf("Run %s\n", r.RunID)
	fmt.Printf("  Classification rounds: %d\n", r.ClassifyAttempts)
	for _, class := range models.Classes {
		fmt.Printf("  %-15s %d tasks\n", class+":", len(r.Classification.Queue(class)))
	}

	if len(r.Failures) > 0 {
		fmt.Println()
		fmt.Println("Unclassified:")
		for _, f := range r.Failures {
			fmt.Printf("  %s %s: %s\n", color.YellowString("⚠"), f.TaskID, f.Reason)
		}
	}

	if len(r.Dispatches) > 0 {
		fmt.Println()
		fmt.Println("Dispatches:")
		for _, d := range r.Dispatches {
			symbol := color.GreenString("✓")
			detail := ""
			if !d.Delivered {
				symbol = color.RedString("✗")
				detail = " (" + d.Outcome + ")"
				if d.Error != "" {
					detail = fmt.Sprintf(" (%s: %s)", d.Outcome, d.Error)
				}
			}
			device := d.Device.ID
			if device == "" {
				device = "-"
			}
			fmt.Printf("  %s %-12s %-10s -> %s%s\n", symbol, d.Task.ID, d.Task.Class.Short(), device, detail)
		}
	}

	fmt.Println()
	fmt.Printf("Delivered %d of %d in %s\n", r.Delivered(), len(r.Dispatches), r.Duration.Round(time.Millisecond))
}

// writeJSON writes v to path, indented.
func writeJSON(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("encode %s: %w", path, err)
	}
	if err := os.WriteFile(path, append(data, '\n'), 0644); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	return nil
}
