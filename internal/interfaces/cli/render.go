package cli

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	appProj "github.com/turtacn/FeatureScope/internal/application/projection"
	"github.com/turtacn/FeatureScope/internal/application/render"
	"github.com/turtacn/FeatureScope/internal/domain/projection"
	"github.com/turtacn/FeatureScope/internal/domain/zoom"
	"github.com/turtacn/FeatureScope/internal/infrastructure/backend"
	"github.com/turtacn/FeatureScope/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/FeatureScope/pkg/errors"
)

// FrameSummary condenses a frame for terminal output.
type FrameSummary struct {
	Seq        uint64                      `json:"seq"`
	Trigger    string                      `json:"trigger"`
	Level      string                      `json:"level"`
	Transform  zoom.Transform              `json:"transform"`
	Width      float64                     `json:"width"`
	Height     float64                     `json:"height"`
	Cells      int                         `json:"cells"`
	Points     int                         `json:"points"`
	Topics     int                         `json:"topics"`
	Outline    bool                        `json:"outline"`
	QueryPin   bool                        `json:"query_pin"`
	Focus      projection.FeatureID        `json:"focus,omitempty"`
	Banner     *render.Banner              `json:"banner,omitempty"`
	Neighbours []projection.NearestFeature `json:"neighbours,omitempty"`
	TopCells   []CellSummary               `json:"top_cells,omitempty"`
}

// CellSummary is one of the most populated hexagons.
type CellSummary struct {
	ID        string `json:"id"`
	ClusterID int    `json:"cluster_id"`
	Members   int    `json:"members"`
	Fill      string `json:"fill"`
}

// Summarize reduces f to its counts and the top cells by membership.
func Summarize(f render.Frame, topCells int) FrameSummary {
	s := FrameSummary{
		Seq:        f.Seq,
		Trigger:    f.Trigger,
		Level:      f.Level,
		Transform:  f.View.Transform,
		Width:      f.View.Width,
		Height:     f.View.Height,
		Cells:      len(f.Cells),
		Points:     len(f.Points),
		Topics:     len(f.Topics),
		Outline:    f.Outline != nil,
		QueryPin:   f.QueryPin != nil,
		Banner:     f.Banner,
		Neighbours: f.Neighbours,
	}
	if f.Selection != nil {
		s.Focus = f.Selection.FeatureID
	}

	cells := make([]CellSummary, len(f.Cells))
	for i, c := range f.Cells {
		cells[i] = CellSummary{ID: c.ID, ClusterID: c.DominantClusterID, Members: len(c.Members), Fill: c.Fill}
	}
	sort.SliceStable(cells, func(i, j int) bool { return cells[i].Members > cells[j].Members })
	if topCells >= 0 && len(cells) > topCells {
		cells = cells[:topCells]
	}
	s.TopCells = cells
	return s
}

func (s FrameSummary) TableHeaders() []string {
	return []string{"CELL", "CLUSTER", "MEMBERS", "FILL"}
}

func (s FrameSummary) TableRows() [][]string {
	rows := make([][]string, len(s.TopCells))
	for i, c := range s.TopCells {
		rows[i] = []string{c.ID, strconv.Itoa(c.ClusterID), strconv.Itoa(c.Members), c.Fill}
	}
	return rows
}

func (s FrameSummary) String() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "frame %d (%s) level %s at k=%s, %gx%g\n", s.Seq, s.Trigger, s.Level, formatFloat(s.Transform.K), s.Width, s.Height)
	fmt.Fprintf(&sb, "  cells: %d  points: %d  topics: %d  outline: %t  query pin: %t\n", s.Cells, s.Points, s.Topics, s.Outline, s.QueryPin)
	if s.Focus != "" {
		fmt.Fprintf(&sb, "  selected: %s\n", s.Focus)
	}
	if s.Banner != nil {
		fmt.Fprintf(&sb, "  %s: %s\n", s.Banner.Kind, s.Banner.Message)
	}
	for _, n := range s.Neighbours {
		fmt.Fprintf(&sb, "  neighbour %s similarity %.3f\n", n.FeatureID, n.Similarity)
	}
	if len(s.TopCells) > 0 {
		sb.WriteString(renderTable(s.TableHeaders(), s.TableRows()))
	}
	return strings.TrimRight(sb.String(), "\n")
}

type renderOptions struct {
	file     string
	x, y, k  float64
	width    float64
	height   float64
	focus    string
	visible  string
	top      int
	frameOut string
	backend  bool
}

// NewRenderCmd creates the render command.
func NewRenderCmd() *cobra.Command {
	opts := &renderOptions{}
	cmd := &cobra.Command{
		Use:   "render",
		Short: "Render a projection file offline and summarise the frame",
		Long: "render loads a projection JSON file, opens a local render session over it,\n" +
			"applies the requested transform and prints the resulting frame. --frame-out\n" +
			"writes the full frame as JSON.",
		Example: "  featurescope render --file projection.json --k 3.5\n" +
			"  featurescope render --file projection.json --focus 1203 --frame-out frame.json -o json",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRender(cmd, opts)
		},
	}
	f := cmd.Flags()
	f.StringVarP(&opts.file, "file", "f", "", "projection JSON file (required)")
	f.Float64Var(&opts.x, "x", 0, "transform x translation")
	f.Float64Var(&opts.y, "y", 0, "transform y translation")
	f.Float64Var(&opts.k, "k", 1, "transform scale")
	f.Float64Var(&opts.width, "width", 0, "viewport width (default: from config)")
	f.Float64Var(&opts.height, "height", 0, "viewport height (default: from config)")
	f.StringVar(&opts.focus, "focus", "", "feature id to centre on and select")
	f.StringVar(&opts.visible, "visible", "", "comma separated feature ids visible in the side panel")
	f.IntVar(&opts.top, "top", 10, "number of cells listed, most populated first")
	f.StringVar(&opts.frameOut, "frame-out", "", "write the full frame JSON to this path")
	f.BoolVar(&opts.backend, "backend", false, "fetch feature details from the configured backend")
	_ = cmd.MarkFlagRequired("file")
	return cmd
}

func runRender(cmd *cobra.Command, opts *renderOptions) error {
	cliCtx, err := GetCLIContext(cmd)
	if err != nil {
		return err
	}
	if opts.k <= 0 {
		return errors.New(errors.ErrCodeScaleInvalid, "--k must be positive").WithDetail(formatFloat(opts.k))
	}
	ctx, cancel := cliCtx.withTimeout(cmd.Context())
	defer cancel()

	cfg := *cliCtx.Config
	cfg.Source.Kind = appProj.KindFile
	cfg.Source.FilePath = opts.file
	cfg.Source.Cache = false
	cfg.Render.MaxSessions = 1
	log := cliCtx.Logger

	var api backend.API
	if opts.backend {
		bc, err := backend.NewClientFromConfig(cfg.Backend, backend.WithLogger(log.Named("backend")))
		if err != nil {
			return err
		}
		api = bc
	}

	svc, err := appProj.NewServiceFromConfig(&cfg, appProj.Deps{Logger: log})
	if err != nil {
		return err
	}
	mgr, err := render.NewManager(&cfg, render.Deps{Source: svc, Backend: api, Logger: log})
	if err != nil {
		return err
	}
	defer mgr.Shutdown()

	d, err := mgr.Create(ctx, render.CreateRequest{Width: opts.width, Height: opts.height})
	if err != nil {
		return err
	}

	frame := d.Snapshot()
	cmds := []render.Command{render.Transform{Transform: zoom.Transform{X: opts.x, Y: opts.y, K: opts.k}}}
	if opts.visible != "" {
		var ids []projection.FeatureID
		for _, id := range parseFeatureIDs(opts.visible) {
			ids = append(ids, projection.FeatureID(id))
		}
		cmds = append(cmds, render.SetVisibleFeatures{FeatureIDs: ids})
	}
	if opts.focus != "" {
		cmds = append(cmds, render.FocusFeature{FeatureID: projection.FeatureID(opts.focus)})
	}
	for _, c := range cmds {
		if frame, err = d.Do(ctx, c); err != nil {
			return err
		}
	}
	log.Debug("offline render complete",
		logging.String("file", opts.file),
		logging.String("level", frame.Level),
		logging.Int("cells", len(frame.Cells)))

	if opts.frameOut != "" {
		if err := writeFrame(opts.frameOut, frame); err != nil {
			return err
		}
	}
	return PrintResult(cmd, Summarize(frame, opts.top))
}

func writeFrame(path string, f render.Frame) error {
	data, err := json.MarshalIndent(f, "", "  ")
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeSerialization, "failed to encode frame")
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return errors.Wrap(err, errors.ErrCodeStorageError, "failed to write frame").WithDetail(path)
	}
	return nil
}
