package cli

import (
	"encoding/json"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/turtacn/FeatureScope/pkg/client"
	"github.com/turtacn/FeatureScope/pkg/errors"
	"github.com/turtacn/FeatureScope/pkg/types/scatter"
)

// SessionTable lists sessions.
type SessionTable []scatter.SessionInfo

func (t SessionTable) TableHeaders() []string {
	return []string{"ID", "SAE", "QUERY", "LEVEL", "SCALE", "SEQ", "LAST ACTIVE"}
}

func (t SessionTable) TableRows() [][]string {
	rows := make([][]string, len(t))
	for i, s := range t {
		rows[i] = []string{
			s.ID, s.Query.SAEID, s.Query.Query, s.Level, formatFloat(s.Scale),
			strconv.FormatUint(s.Seq, 10), s.LastActive.Format(time.RFC3339),
		}
	}
	return rows
}

// RemoteFrame condenses a frame served by the API.
type RemoteFrame struct {
	SessionID  string              `json:"session_id"`
	Seq        uint64              `json:"seq"`
	Trigger    string              `json:"trigger"`
	Level      string              `json:"level"`
	Transform  scatter.Transform   `json:"transform"`
	Cells      int                 `json:"cells"`
	Points     int                 `json:"points"`
	Selected   scatter.FeatureID   `json:"selected,omitempty"`
	Banner     *scatter.Banner     `json:"banner,omitempty"`
	Neighbours []scatter.Neighbour `json:"neighbours,omitempty"`
}

func summarizeRemote(f *scatter.Frame) RemoteFrame {
	r := RemoteFrame{
		SessionID:  f.SessionID,
		Seq:        f.Seq,
		Trigger:    f.Trigger,
		Level:      f.Level,
		Transform:  f.View.Transform,
		Cells:      len(f.Cells),
		Points:     len(f.Points),
		Banner:     f.Banner,
		Neighbours: f.Neighbours,
	}
	if f.Selection != nil {
		r.Selected = f.Selection.FeatureID
	}
	return r
}

func (r RemoteFrame) TableHeaders() []string {
	return []string{"SESSION", "SEQ", "TRIGGER", "LEVEL", "K", "CELLS", "POINTS", "BANNER"}
}

func (r RemoteFrame) TableRows() [][]string {
	banner := ""
	if r.Banner != nil {
		banner = r.Banner.Message
	}
	return [][]string{{
		r.SessionID, strconv.FormatUint(r.Seq, 10), r.Trigger, r.Level, formatFloat(r.Transform.K),
		strconv.Itoa(r.Cells), strconv.Itoa(r.Points), banner,
	}}
}

// NewSessionCmd creates the session command tree.
func NewSessionCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "session",
		Short: "Open and drive render sessions on an API server",
	}
	cmd.AddCommand(
		newSessionCreateCmd(),
		newSessionListCmd(),
		newSessionFrameCmd(),
		newSessionEventCmd(),
		newSessionCloseCmd(),
	)
	return cmd
}

// remote resolves the client and a bounded context for a session command.
func remote(cmd *cobra.Command, fn func(c *client.Client, cliCtx *CLIContext, cmd *cobra.Command) error) error {
	cliCtx, err := GetCLIContext(cmd)
	if err != nil {
		return err
	}
	c, err := cliCtx.remoteClient()
	if err != nil {
		return err
	}
	ctx, cancel := cliCtx.withTimeout(cmd.Context())
	defer cancel()
	cmd.SetContext(ctx)
	return fn(c, cliCtx, cmd)
}

func newSessionCreateCmd() *cobra.Command {
	var req client.CreateSessionRequest
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Open a session and print its first frame",
		RunE: func(cmd *cobra.Command, args []string) error {
			return remote(cmd, func(c *client.Client, _ *CLIContext, cmd *cobra.Command) error {
				sess, err := c.CreateSession(cmd.Context(), req)
				if err != nil {
					return err
				}
				return PrintResult(cmd, summarizeRemote(&sess.Frame))
			})
		},
	}
	f := cmd.Flags()
	f.StringVar(&req.SAEID, "sae", "", "SAE id (default: server config)")
	f.StringVar(&req.Query, "query", "", "query text placed on the projection")
	f.StringVar(&req.LLM, "llm", "", "language model (default: server config)")
	f.StringVar(&req.SnapshotKey, "snapshot", "", "snapshot object key for snapshot sources")
	f.Float64Var(&req.Width, "width", 0, "viewport width")
	f.Float64Var(&req.Height, "height", 0, "viewport height")
	return cmd
}

func newSessionListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List open sessions, most recently active first",
		RunE: func(cmd *cobra.Command, args []string) error {
			return remote(cmd, func(c *client.Client, _ *CLIContext, cmd *cobra.Command) error {
				list, err := c.ListSessions(cmd.Context())
				if err != nil {
					return err
				}
				return PrintResult(cmd, SessionTable(list))
			})
		},
	}
}

func newSessionFrameCmd() *cobra.Command {
	var full bool
	cmd := &cobra.Command{
		Use:   "frame <session-id>",
		Short: "Print the latest frame of a session",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return remote(cmd, func(c *client.Client, _ *CLIContext, cmd *cobra.Command) error {
				f, err := c.GetFrame(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				if full {
					return PrintResult(cmd, f)
				}
				return PrintResult(cmd, summarizeRemote(f))
			})
		},
	}
	cmd.Flags().BoolVar(&full, "full", false, "print every layer of the frame")
	return cmd
}

type eventOptions struct {
	raw       string
	eventType string
	x, y, k   float64
	width     float64
	height    float64
	feature   string
	target    string
	id        string
	features  string
}

// event builds the event described by the flags. --json wins over the rest.
func (o *eventOptions) event() (scatter.Event, error) {
	if o.raw != "" {
		var ev scatter.Event
		if err := json.Unmarshal([]byte(o.raw), &ev); err != nil {
			return scatter.Event{}, errors.Wrap(err, errors.ErrCodeEventInvalid, "malformed --json event")
		}
		return ev, nil
	}
	switch strings.ToLower(o.eventType) {
	case "transform":
		return scatter.TransformEvent(o.x, o.y, o.k), nil
	case "resize":
		return scatter.ResizeEvent(o.width, o.height), nil
	case "click_point":
		return scatter.ClickPointEvent(scatter.FeatureID(o.feature)), nil
	case "click_query":
		return scatter.ClickQueryEvent(), nil
	case "focus_feature":
		return scatter.FocusFeatureEvent(scatter.FeatureID(o.feature)), nil
	case "hover":
		return scatter.HoverEvent(o.target, o.id), nil
	case "hover_out":
		return scatter.HoverOutEvent(), nil
	case "visible_features":
		return scatter.VisibleFeaturesEvent(parseFeatureIDs(o.features)...), nil
	case "select_tokens":
		return scatter.SelectTokensEvent(scatter.FeatureID(o.feature)), nil
	case "reload":
		return scatter.ReloadEvent(), nil
	case "":
		return scatter.Event{}, errors.New(errors.ErrCodeEventInvalid, "--type or --json is required")
	}
	return scatter.Event{}, errors.New(errors.ErrCodeEventInvalid, "unknown event type").WithDetail(o.eventType)
}

func newSessionEventCmd() *cobra.Command {
	opts := &eventOptions{}
	cmd := &cobra.Command{
		Use:   "event <session-id>",
		Short: "Send an interaction event and print the resulting frame",
		Example: "  featurescope session event $ID --type transform --k 3.5\n" +
			"  featurescope session event $ID --type click_point --feature 1203\n" +
			"  featurescope session event $ID --json '{\"type\":\"hover\",\"target\":\"cell\",\"id\":\"3-4\"}'",
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ev, err := opts.event()
			if err != nil {
				return err
			}
			return remote(cmd, func(c *client.Client, _ *CLIContext, cmd *cobra.Command) error {
				f, err := c.SendEvent(cmd.Context(), args[0], ev)
				if err != nil {
					return err
				}
				return PrintResult(cmd, summarizeRemote(f))
			})
		},
	}
	f := cmd.Flags()
	f.StringVar(&opts.raw, "json", "", "raw event JSON")
	f.StringVarP(&opts.eventType, "type", "t", "", "event type (transform, resize, click_point, click_query, focus_feature, hover, hover_out, visible_features, select_tokens, reload)")
	f.Float64Var(&opts.x, "x", 0, "transform x")
	f.Float64Var(&opts.y, "y", 0, "transform y")
	f.Float64Var(&opts.k, "k", 1, "transform scale")
	f.Float64Var(&opts.width, "width", 0, "resize width")
	f.Float64Var(&opts.height, "height", 0, "resize height")
	f.StringVar(&opts.feature, "feature", "", "feature id")
	f.StringVar(&opts.target, "target", "", "hover target (cell, point, query, related)")
	f.StringVar(&opts.id, "id", "", "hovered cell or feature id")
	f.StringVar(&opts.features, "features", "", "comma separated feature ids")
	return cmd
}

func newSessionCloseCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "close <session-id>",
		Short: "Close a session",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return remote(cmd, func(c *client.Client, _ *CLIContext, cmd *cobra.Command) error {
				if err := c.CloseSession(cmd.Context(), args[0]); err != nil {
					return err
				}
				PrintSuccess(cmd, "session "+args[0]+" closed")
				return nil
			})
		},
	}
}
