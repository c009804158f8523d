package main

import (
	"github.com/spf13/cobra"

	"github.com/mohammed-shakir/hexscan/internal/core/model"
	h3mapper "github.com/mohammed-shakir/hexscan/internal/mapper/h3"
	"github.com/mohammed-shakir/hexscan/internal/planner"
)

var (
	planLat   float64
	planLon   float64
	planSteps int
	planRes   int
)

var planCmd = &cobra.Command{
	Use:   "plan",
	Short: "Print the scan plan around a position as GeoJSON",
	RunE: func(cmd *cobra.Command, _ []string) error {
		steps := cfg.Scan.Steps
		if cmd.Flags().Changed("steps") {
			steps = planSteps
		}
		plan, err := planner.New(cfg.Scan.StepDistance).Plan(model.Coordinate{Lat: planLat, Lon: planLon}, steps)
		if err != nil {
			return err
		}
		var cells []string
		if cmd.Flags().Changed("res") {
			if cells, err = h3mapper.New().CellsForPlan(plan, planRes); err != nil {
				return err
			}
		}
		b, err := planner.GeoJSON(plan, cells)
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		if _, err := out.Write(b); err != nil {
			return err
		}
		_, err = out.Write([]byte("\n"))
		return err
	},
}

func init() {
	planCmd.Flags().Float64Var(&planLat, "lat", 0, "Center latitude")
	planCmd.Flags().Float64Var(&planLon, "lon", 0, "Center longitude")
	planCmd.Flags().IntVar(&planSteps, "steps", planner.DefaultSteps, "Number of rings including the center")
	planCmd.Flags().IntVar(&planRes, "res", 9, "Annotate points with H3 cells at this resolution")
	_ = planCmd.MarkFlagRequired("lat")
	_ = planCmd.MarkFlagRequired("lon")
	rootCmd.AddCommand(planCmd)
}
