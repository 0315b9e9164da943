package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/Boticus-OG/Titan/pkg/coordinator"
	"github.com/Boticus-OG/Titan/pkg/deck"
	"github.com/Boticus-OG/Titan/pkg/driverapi"
	"github.com/Boticus-OG/Titan/pkg/eventbus"
	"github.com/Boticus-OG/Titan/pkg/log"
	"github.com/Boticus-OG/Titan/pkg/metrics"
	"github.com/Boticus-OG/Titan/pkg/snapshot"
	"github.com/Boticus-OG/Titan/pkg/sweeper"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Boot a deck and run plates from a workflow library",
	Long: `Load a deck file and a workflow library, boot the coordinator and
its movers, devices, and stations against a simulated physical driver, and
run until signaled.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		deckPath, _ := cmd.Flags().GetString("deck")
		workflowsPath, _ := cmd.Flags().GetString("workflows")
		metricsAddr, _ := cmd.Flags().GetString("metrics-addr")
		snapshotDir, _ := cmd.Flags().GetString("snapshot-dir")
		stepDelay, _ := cmd.Flags().GetDuration("step-delay")

		fmt.Println("Loading deck...")
		d, err := deck.Load(deckPath)
		if err != nil {
			return fmt.Errorf("failed to load deck: %w", err)
		}
		if err := d.Validate(); err != nil {
			return fmt.Errorf("deck is invalid: %w", err)
		}
		fmt.Printf("✓ Deck loaded: %d movers, %d devices, %d stations\n", len(d.Movers), len(d.Devices), len(d.Stations))

		workflows, err := coordinator.LoadWorkflowLibrary(workflowsPath)
		if err != nil {
			return fmt.Errorf("failed to load workflow library: %w", err)
		}
		fmt.Printf("✓ Workflow library loaded: %d workflows\n", len(workflows))

		bus := eventbus.New(eventbus.DefaultRingSize, log.Logger)

		drv := driverapi.NewSimulatedDriver(stepDelay, log.Logger)
		for _, mc := range d.Movers {
			drv.SeedPosition(mc.ID, d.StartPosition(mc))
		}

		coord := coordinator.New(d, drv, bus, log.Logger)
		coord.Start()
		fmt.Println("✓ Coordinator started")

		sw := sweeper.New(coord, bus, sweeper.DefaultConfig())
		sw.Start()
		fmt.Println("✓ Staleness sweeper started")

		var snapStore *snapshot.Store
		var snapWriter *snapshot.Writer
		if snapshotDir != "" {
			snapStore, err = snapshot.Open(snapshotDir)
			if err != nil {
				return fmt.Errorf("failed to open snapshot store: %w", err)
			}
			snapWriter = snapshot.NewWriter(snapStore, coord)
			snapWriter.Start()
			fmt.Printf("✓ Snapshot writer started (%s)\n", snapshotDir)
		}

		ctx := context.Background()
		plateNum := 0
		for _, wf := range workflows {
			plateNum++
			plateID := fmt.Sprintf("plate-%d", plateNum)
			if _, err := coord.SpawnPlate(ctx, plateID, wf, nil, ""); err != nil {
				fmt.Printf("failed to spawn plate %s for workflow %s: %v\n", plateID, wf.ID, err)
				continue
			}
			fmt.Printf("✓ Spawned %s running workflow %q\n", plateID, wf.Name)
		}

		collector := metrics.NewCollector(coord)
		collector.Start()
		fmt.Println("✓ Metrics collector started")

		metrics.SetVersion(Version)
		metrics.RegisterComponent(metrics.ComponentDeck, true, "loaded")
		metrics.RegisterComponent(metrics.ComponentCoordinator, true, "running")
		metrics.RegisterComponent(metrics.ComponentDriver, true, "simulated driver ready")

		mux := http.NewServeMux()
		mux.Handle("/metrics", metrics.Handler())
		mux.Handle("/health", metrics.HealthHandler())
		mux.Handle("/ready", metrics.ReadyHandler())
		mux.Handle("/live", metrics.LivenessHandler())
		server := &http.Server{Addr: metricsAddr, Handler: mux}
		go func() {
			if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				fmt.Printf("metrics server error: %v\n", err)
			}
		}()
		fmt.Printf("✓ Metrics endpoint: http://%s/metrics\n", metricsAddr)

		fmt.Println()
		fmt.Println("Titan is running. Press Ctrl+C to stop.")

		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
		<-sigCh
		fmt.Println("\nShutting down...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)

		collector.Stop()
		sw.Stop()
		if snapWriter != nil {
			snapWriter.Stop()
		}
		if snapStore != nil {
			_ = snapStore.Close()
		}
		coord.Stop()

		fmt.Println("✓ Shutdown complete")
		return nil
	},
}

func init() {
	runCmd.Flags().String("deck", "", "Path to a deck YAML file (required)")
	runCmd.Flags().String("workflows", "", "Path to a workflow library YAML file (required)")
	runCmd.Flags().String("metrics-addr", "127.0.0.1:9090", "Address for the metrics/health HTTP server")
	runCmd.Flags().String("snapshot-dir", "", "Directory for an optional bbolt plate-state snapshot store (disabled if empty)")
	runCmd.Flags().Duration("step-delay", 200*time.Millisecond, "Simulated time a device takes to complete each Process call")

	runCmd.MarkFlagRequired("deck")
	runCmd.MarkFlagRequired("workflows")
}
