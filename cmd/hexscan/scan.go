package main

import (
	"encoding/json"
	"fmt"
	"os/signal"
	"sync"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/mohammed-shakir/hexscan/internal/core/model"
	"github.com/mohammed-shakir/hexscan/internal/sink"
)

var (
	scanLat   float64
	scanLon   float64
	scanSteps int
)

var scanCmd = &cobra.Command{
	Use:   "scan",
	Short: "Run one scan and print each discovery as a JSON line",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		steps := cfg.Scan.Steps
		if cmd.Flags().Changed("steps") {
			steps = scanSteps
		}

		st, err := buildStack(ctx, cfg, appLog)
		if err != nil {
			return err
		}
		defer func() { _ = st.Close() }()

		var (
			mu       sync.Mutex
			writeErr error
		)
		enc := json.NewEncoder(cmd.OutOrStdout())
		printer := sink.Func(func(d model.Discovery) {
			mu.Lock()
			defer mu.Unlock()
			if err := enc.Encode(sink.EventOf(d)); err != nil {
				appLog.Error("writing discovery failed", "instance_id", d.Entity.InstanceID, "err", err)
				if writeErr == nil {
					writeErr = err
				}
			}
		})

		sess := st.newSession(cfg, printer, appLog)
		defer sess.Close()

		center := model.Coordinate{Lat: scanLat, Lon: scanLon}
		res, err := sess.ScanSteps(ctx, center, steps)
		if err != nil {
			return fmt.Errorf("scan failed: %w", err)
		}
		mu.Lock()
		werr := writeErr
		mu.Unlock()
		if werr != nil {
			return fmt.Errorf("write discoveries: %w", werr)
		}
		var covered int
		if plan, err := st.planner.Plan(center, steps); err == nil {
			if cells, err := st.mapper.Coverage(plan, cfg.Cache.H3Res); err == nil {
				covered = len(cells)
			}
		}
		appLog.Info("scan finished",
			"h3_res", cfg.Cache.H3Res,
			"cells_covered", covered,
			"received", res.Received,
			"filtered", res.Filtered,
			"duplicates", res.Duplicates,
			"emitted", res.Emitted)
		return nil
	},
}

func init() {
	scanCmd.Flags().Float64Var(&scanLat, "lat", 0, "Center latitude")
	scanCmd.Flags().Float64Var(&scanLon, "lon", 0, "Center longitude")
	scanCmd.Flags().IntVar(&scanSteps, "steps", 0, "Number of rings including the center (default from SCAN_STEPS)")
	_ = scanCmd.MarkFlagRequired("lat")
	_ = scanCmd.MarkFlagRequired("lon")
	rootCmd.AddCommand(scanCmd)
}
