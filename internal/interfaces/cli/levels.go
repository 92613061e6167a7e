package cli

import (
	"math"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/turtacn/FeatureScope/internal/application/render"
	"github.com/turtacn/FeatureScope/internal/domain/zoom"
	"github.com/turtacn/FeatureScope/pkg/errors"
	"github.com/turtacn/FeatureScope/pkg/types/scatter"
)

// LevelsResult is the threshold table and the decision for each scale asked.
type LevelsResult struct {
	Thresholds []scatter.Threshold     `json:"thresholds"`
	Decisions  []scatter.LevelDecision `json:"decisions,omitempty"`
}

func (r LevelsResult) TableHeaders() []string {
	if len(r.Decisions) == 0 {
		return []string{"MIN SCALE", "LEVEL"}
	}
	return []string{"SCALE", "CLAMPED", "REQUESTED", "LEVEL"}
}

func (r LevelsResult) TableRows() [][]string {
	if len(r.Decisions) == 0 {
		rows := make([][]string, len(r.Thresholds))
		for i, t := range r.Thresholds {
			rows[i] = []string{formatFloat(t.MinScale), t.Level}
		}
		return rows
	}
	rows := make([][]string, len(r.Decisions))
	for i, d := range r.Decisions {
		level := d.Level
		if d.FellBack {
			level += " (fallback)"
		}
		rows[i] = []string{formatFloat(d.Scale), formatFloat(d.Clamped), d.Requested, level}
	}
	return rows
}

func (r LevelsResult) String() string {
	return strings.TrimRight(renderTable(r.TableHeaders(), r.TableRows()), "\n")
}

type levelsOptions struct {
	available []string
	remote    bool
}

// NewLevelsCmd creates the levels command.
func NewLevelsCmd() *cobra.Command {
	opts := &levelsOptions{}
	cmd := &cobra.Command{
		Use:   "levels [scale...]",
		Short: "Show the zoom thresholds and the cluster level chosen at each scale",
		Example: "  featurescope levels\n" +
			"  featurescope levels 0.8 3.5 8 --available 10,30\n" +
			"  featurescope levels 2 --remote --server http://localhost:8080",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runLevels(cmd, args, opts)
		},
	}
	cmd.Flags().StringSliceVar(&opts.available, "available", nil, "levels present in the projection, for fallback")
	cmd.Flags().BoolVar(&opts.remote, "remote", false, "ask the API server instead of the local config")
	return cmd
}

func runLevels(cmd *cobra.Command, args []string, opts *levelsOptions) error {
	cliCtx, err := GetCLIContext(cmd)
	if err != nil {
		return err
	}
	scales := make([]float64, len(args))
	for i, a := range args {
		k, err := strconv.ParseFloat(a, 64)
		if err != nil || math.IsInf(k, 0) || math.IsNaN(k) {
			return errors.New(errors.ErrCodeScaleInvalid, "scale must be a finite number").WithDetail(a)
		}
		scales[i] = k
	}

	if opts.remote {
		c, err := cliCtx.remoteClient()
		if err != nil {
			return err
		}
		ctx, cancel := cliCtx.withTimeout(cmd.Context())
		defer cancel()

		var res LevelsResult
		if res.Thresholds, err = c.Levels(ctx); err != nil {
			return err
		}
		for _, k := range scales {
			d, err := c.Level(ctx, k, opts.available...)
			if err != nil {
				return err
			}
			res.Decisions = append(res.Decisions, *d)
		}
		return PrintResult(cmd, res)
	}

	machine, err := render.NewMachineFromConfig(cliCtx.Config.Render, cliCtx.Logger.Named("zoom"))
	if err != nil {
		return err
	}
	return PrintResult(cmd, decideLevels(machine, scales, opts.available))
}

func decideLevels(machine *zoom.Machine, scales []float64, available []string) LevelsResult {
	var res LevelsResult
	for _, t := range machine.Table() {
		res.Thresholds = append(res.Thresholds, scatter.Threshold{MinScale: t.MinScale, Level: t.Level})
	}
	for _, k := range scales {
		view, d := machine.Decide(zoom.ViewState{}, zoom.Transform{K: k}, available)
		res.Decisions = append(res.Decisions, scatter.LevelDecision{
			Scale:      k,
			Clamped:    view.Transform.K,
			Level:      d.Level,
			Requested:  d.Requested,
			FellBack:   d.FellBack,
			Thresholds: res.Thresholds,
		})
	}
	return res
}

func formatFloat(f float64) string {
	return strconv.FormatFloat(f, 'g', -1, 64)
}

// parseFeatureIDs splits a comma separated id list.
func parseFeatureIDs(s string) []scatter.FeatureID {
	var out []scatter.FeatureID
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, scatter.FeatureID(p))
		}
	}
	return out
}
