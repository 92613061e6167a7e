// Package render runs one interactive render session per viewer. Each
// session is owned by a single goroutine that applies commands, posts
// network continuations back to itself and commits declarative frames to
// its subscribers.
package render

import (
	"context"
	"errors"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	appProj "github.com/turtacn/FeatureScope/internal/application/projection"
	"github.com/turtacn/FeatureScope/internal/domain/geom"
	"github.com/turtacn/FeatureScope/internal/domain/hexbin"
	"github.com/turtacn/FeatureScope/internal/domain/highlight"
	"github.com/turtacn/FeatureScope/internal/domain/outline"
	"github.com/turtacn/FeatureScope/internal/domain/projection"
	"github.com/turtacn/FeatureScope/internal/domain/zoom"
	"github.com/turtacn/FeatureScope/internal/infrastructure/backend"
	"github.com/turtacn/FeatureScope/internal/infrastructure/messaging/kafka"
	"github.com/turtacn/FeatureScope/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/FeatureScope/internal/infrastructure/monitoring/prometheus"
	apperrors "github.com/turtacn/FeatureScope/pkg/errors"
)

// Analysis contexts with their own cancellation token.
const (
	ctxDetail = "detail"
	ctxTokens = "tokens"
	ctxReload = "reload"
)

const publishTimeout = 5 * time.Second

var (
	// ErrSessionClosed is returned for commands sent to a closed session.
	ErrSessionClosed = apperrors.New(apperrors.ErrCodeSessionClosed, "render session is closed")

	errNoBackend = apperrors.New(apperrors.ErrCodeServiceUnavailable, "no upstream backend configured")
)

// Options tunes a session loop.
type Options struct {
	Width              float64
	Height             float64
	HexRadius          float64
	VisibleDebounce    time.Duration
	FocusScale         float64
	TransitionDuration time.Duration
	StreamBuffer       int
}

func (o *Options) applyDefaults() {
	if o.Width <= 0 {
		o.Width = 960
	}
	if o.Height <= 0 {
		o.Height = 720
	}
	if o.VisibleDebounce <= 0 {
		o.VisibleDebounce = 150 * time.Millisecond
	}
	if o.FocusScale <= 0 {
		o.FocusScale = 4
	}
	if o.TransitionDuration <= 0 {
		o.TransitionDuration = 750 * time.Millisecond
	}
	if o.StreamBuffer <= 0 {
		o.StreamBuffer = 16
	}
}

// Deps are the collaborators shared by every session of a manager.
type Deps struct {
	Machine   *zoom.Machine
	Backend   backend.API
	Source    appProj.Service
	Publisher kafka.EventPublisher
	Outline   *outline.Synthesizer
	Metrics   *prometheus.AppMetrics
	Logger    logging.Logger
}

func (d *Deps) applyDefaults() error {
	if d.Machine == nil {
		m, err := zoom.NewMachine(zoom.Options{Table: zoom.DefaultTable(), Logger: d.Logger})
		if err != nil {
			return err
		}
		d.Machine = m
	}
	if d.Publisher == nil {
		d.Publisher = kafka.NoopPublisher{}
	}
	if d.Outline == nil {
		d.Outline = outline.New(outline.DefaultOptions())
	}
	if d.Metrics == nil {
		d.Metrics = prometheus.NewNoopMetrics()
	}
	if d.Logger == nil {
		d.Logger = logging.NewNopLogger()
	}
	return nil
}

type envelope struct {
	cmd   Command
	reply chan Frame
}

// pointsQuery reads the point array on the loop.
type pointsQuery struct {
	out chan []projection.Point
}

func (q pointsQuery) apply(d *Driver) string {
	q.out <- d.store.Snapshot()
	return ""
}

// inflight is the cancellation token of one analysis context.
type inflight struct {
	gen    uint64
	cancel context.CancelFunc
}

// Driver is one render session.
type Driver struct {
	id    string
	query appProj.Query
	opts  Options
	deps  Deps
	log   logging.Logger

	cmds   chan envelope
	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}

	// Owned by the loop goroutine.
	store      *projection.Store
	view       zoom.ViewState
	scales     hexbin.Scales
	binner     hexbin.Binner
	requests   map[string]*inflight
	gens       map[string]uint64
	visible    []projection.FeatureID
	pending    []projection.FeatureID
	visibleGen uint64
	hover      *Hover
	focusID    projection.FeatureID
	selection  *Selection
	neighbours []projection.NearestFeature
	analyzing  bool
	banner     *Banner
	transition *Transition
	seq        uint64

	cells       []hexbin.Cell
	points      []highlight.PointStyle
	annotations []highlight.Annotation
	topics      []TopicLabel
	pin         *QueryPin
	related     []RelatedMarker
	outline     *Outline
	outlineKey  string
	focus       *FocusRing

	// Shared with readers.
	mu         sync.RWMutex
	last       Frame
	lastActive time.Time
	subs       map[int]chan Frame
	nextSub    int
	stopped    bool
	closeOnce  sync.Once
}

// NewDriver starts a session over store. The first frame is committed
// before NewDriver returns.
func NewDriver(id string, query appProj.Query, store *projection.Store, opts Options, deps Deps) (*Driver, error) {
	if store == nil {
		return nil, apperrors.New(apperrors.ErrCodeProjectionEmpty, "render session needs a projection")
	}
	opts.applyDefaults()
	if err := deps.applyDefaults(); err != nil {
		return nil, err
	}

	ctx, cancel := context.WithCancel(context.Background())
	d := &Driver{
		id:         id,
		query:      query,
		opts:       opts,
		deps:       deps,
		log:        deps.Logger.With(logging.SessionID(id)),
		cmds:       make(chan envelope, 64),
		ctx:        ctx,
		cancel:     cancel,
		done:       make(chan struct{}),
		store:      store,
		binner:     hexbin.NewBinner(opts.HexRadius),
		requests:   make(map[string]*inflight),
		gens:       make(map[string]uint64),
		subs:       make(map[int]chan Frame),
		lastActive: time.Now(),
	}
	d.view = zoom.ViewState{Width: opts.Width, Height: opts.Height, ActiveLevel: store.ActiveLevel()}
	d.applyTransform(zoom.Identity)
	d.scales = hexbin.FitScales(store, opts.Width, opts.Height)
	d.neighbours = store.Nearest()
	d.rebuild()
	d.commit(TriggerInitial)

	go d.run()
	return d, nil
}

// ID returns the session id.
func (d *Driver) ID() string { return d.id }

// Query returns the projection query the session was opened with.
func (d *Driver) Query() appProj.Query { return d.query }

// Do applies cmd on the loop and returns the frame committed for it, or
// the latest frame when the command changed nothing visible.
func (d *Driver) Do(ctx context.Context, cmd Command) (Frame, error) {
	if cmd == nil {
		return Frame{}, apperrors.New(apperrors.ErrCodeEventInvalid, "nil command")
	}
	env := envelope{cmd: cmd, reply: make(chan Frame, 1)}
	select {
	case d.cmds <- env:
	case <-d.done:
		return Frame{}, ErrSessionClosed
	case <-ctx.Done():
		return Frame{}, ctx.Err()
	}
	d.touch()
	select {
	case f := <-env.reply:
		return f, nil
	case <-d.done:
		return Frame{}, ErrSessionClosed
	case <-ctx.Done():
		return Frame{}, ctx.Err()
	}
}

// Snapshot returns the last committed frame.
func (d *Driver) Snapshot() Frame {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.last
}

// Points returns a copy of the current point array.
func (d *Driver) Points(ctx context.Context) ([]projection.Point, error) {
	q := pointsQuery{out: make(chan []projection.Point, 1)}
	if _, err := d.Do(ctx, q); err != nil {
		return nil, err
	}
	return <-q.out, nil
}

// Subscribe registers a frame listener. Frames are dropped for a listener
// whose buffer is full. The returned func unsubscribes.
func (d *Driver) Subscribe() (<-chan Frame, func()) {
	ch := make(chan Frame, d.opts.StreamBuffer)
	d.mu.Lock()
	if d.stopped {
		d.mu.Unlock()
		close(ch)
		return ch, func() {}
	}
	id := d.nextSub
	d.nextSub++
	d.subs[id] = ch
	d.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			d.mu.Lock()
			if c, ok := d.subs[id]; ok {
				delete(d.subs, id)
				close(c)
			}
			d.mu.Unlock()
		})
	}
}

// LastActive reports when a command was last sent to the session.
func (d *Driver) LastActive() time.Time {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.lastActive
}

// Done is closed once the loop has exited.
func (d *Driver) Done() <-chan struct{} { return d.done }

// Close stops the loop, cancels in-flight requests and closes subscriber
// channels. It is safe to call more than once.
func (d *Driver) Close() {
	d.closeOnce.Do(func() {
		d.cancel()
		<-d.done
	})
}

func (d *Driver) touch() {
	d.mu.Lock()
	d.lastActive = time.Now()
	d.mu.Unlock()
}

// ─────────────────────────────────────────────────────────────────────────────
// Loop
// ─────────────────────────────────────────────────────────────────────────────

func (d *Driver) run() {
	defer func() {
		for _, r := range d.requests {
			r.cancel()
		}
		d.mu.Lock()
		d.stopped = true
		for id, c := range d.subs {
			delete(d.subs, id)
			close(c)
		}
		d.mu.Unlock()
		close(d.done)
	}()

	for {
		select {
		case <-d.ctx.Done():
			return
		case env := <-d.cmds:
			trigger := env.cmd.apply(d)
			var f Frame
			if trigger != "" {
				f = d.commit(trigger)
			} else {
				f = d.Snapshot()
			}
			if env.reply != nil {
				env.reply <- f
			}
		}
	}
}

// post queues a continuation. It gives up once the session is closed.
func (d *Driver) post(cmd Command) {
	select {
	case d.cmds <- envelope{cmd: cmd}:
	case <-d.ctx.Done():
	}
}

// begin cancels the request running in kind, if any, and returns the
// context and generation of a new one.
func (d *Driver) begin(kind string) (context.Context, uint64) {
	if r, ok := d.requests[kind]; ok {
		r.cancel()
		d.deps.Metrics.RequestsCancelled.WithLabelValues(kind).Inc()
	}
	d.gens[kind]++
	ctx, cancel := context.WithCancel(d.ctx)
	d.requests[kind] = &inflight{gen: d.gens[kind], cancel: cancel}
	return ctx, d.gens[kind]
}

// abort cancels kind without starting a new request.
func (d *Driver) abort(kind string) {
	if r, ok := d.requests[kind]; ok {
		r.cancel()
		delete(d.requests, kind)
		d.deps.Metrics.RequestsCancelled.WithLabelValues(kind).Inc()
	}
	d.gens[kind]++
}

// settle reports whether gen is the current request of kind and retires it.
func (d *Driver) settle(kind string, gen uint64) bool {
	if gen != d.gens[kind] {
		d.deps.Metrics.CommandsDropped.WithLabelValues(kind).Inc()
		d.log.Debug("stale result dropped", logging.String("context", kind))
		return false
	}
	if r, ok := d.requests[kind]; ok {
		r.cancel()
		delete(d.requests, kind)
	}
	return true
}

func (d *Driver) commit(trigger string) Frame {
	d.seq++
	f := Frame{
		SessionID:   d.id,
		Seq:         d.seq,
		Trigger:     trigger,
		Level:       d.view.ActiveLevel,
		View:        d.view,
		Transition:  d.transition,
		Cells:       d.cells,
		Points:      d.points,
		Annotations: d.annotations,
		Outline:     d.outline,
		Topics:      d.topics,
		QueryPin:    d.pin,
		Related:     d.related,
		Tooltip:     d.tooltip(),
		Focus:       d.focus,
		Banner:      d.banner,
		Selection:   d.selection,
		Neighbours:  d.neighbours,
		Analyzing:   d.analyzing,
		CommittedAt: time.Now(),
	}
	if f.Banner == nil && d.analyzing {
		f.Banner = &Banner{Kind: BannerInfo, Message: AnalyzingMessage}
	}
	d.banner = nil
	d.transition = nil

	d.mu.Lock()
	d.last = f
	for id, c := range d.subs {
		select {
		case c <- f:
		default:
			d.log.Debug("subscriber lagging, frame dropped", logging.Int("subscriber", id))
		}
	}
	d.mu.Unlock()

	d.deps.Metrics.FramesTotal.WithLabelValues(trigger).Inc()
	return f
}

func (d *Driver) fail(kind string, err error) string {
	code := apperrors.GetCode(err)
	d.banner = &Banner{Kind: BannerError, Message: err.Error(), Code: string(code)}
	prometheus.RecordError(d.deps.Metrics, kind, string(code))
	d.log.Warn("session request failed", logging.String("context", kind), logging.Err(err))
	return TriggerError
}

// event stamps kind with the current view. Loop only.
func (d *Driver) event(kind kafka.EventKind) kafka.InteractionEvent {
	return kafka.InteractionEvent{Kind: kind, Level: d.view.ActiveLevel, Scale: d.view.Scale}
}

// publish sends ev without blocking the caller.
func (d *Driver) publish(ev kafka.InteractionEvent) {
	ev.SessionID = d.id
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), publishTimeout)
		defer cancel()
		if err := d.deps.Publisher.Publish(ctx, ev); err != nil {
			d.log.Warn("interaction event not published", logging.String("kind", string(ev.Kind)), logging.Err(err))
		}
	}()
}

// ─────────────────────────────────────────────────────────────────────────────
// State transitions
// ─────────────────────────────────────────────────────────────────────────────

// applyTransform runs the zoom machine and reports whether the derived
// layers must be rebuilt.
func (d *Driver) applyTransform(t zoom.Transform) bool {
	from := d.view.ActiveLevel
	state, dec := d.deps.Machine.Decide(d.view, t, d.store.LevelKeys())
	d.view = state
	if dec.LevelChanged {
		d.store.ApplyLevel(dec.Level)
		d.deps.Metrics.LevelTransitions.WithLabelValues(from, dec.Level).Inc()
		if from != "" && d.seq > 0 {
			ev := d.event(kafka.EventLevelChanged)
			ev.FromLevel = from
			d.publish(ev)
		}
	}
	return dec.Recompute
}

// focusOn moves the view onto p at the focus scale.
func (d *Driver) focusOn(p *projection.Point) {
	px := d.scales.Pixel(p)
	target := zoom.CenterOn(px.X, px.Y, d.deps.Machine.Clamp(d.opts.FocusScale), d.view.Width, d.view.Height)
	d.applyTransform(target)
	d.transition = &Transition{Target: d.view.Transform, Duration: d.opts.TransitionDuration}
	d.focusID = p.FeatureID
}

func (d *Driver) fetchDetail(id projection.FeatureID, selecting bool) error {
	if d.deps.Backend == nil {
		return errNoBackend
	}
	ctx, gen := d.begin(ctxDetail)
	api, q := d.deps.Backend, d.query
	go func() {
		detail, err := api.FetchFeatureDetail(ctx, backend.DetailQuery{FeatureID: id, SAEID: q.SAEID, LLM: q.LLM})
		d.post(detailLoaded{gen: gen, featureID: id, selecting: selecting, detail: detail, err: err})
	}()
	return nil
}

func (d *Driver) describe(id projection.FeatureID) string {
	if p, ok := d.store.Find(id); ok && p.Description != "" {
		return p.Description
	}
	return "Feature " + id.String()
}

// rebuild recomputes every derived layer at the current scale.
func (d *Driver) rebuild() {
	k := d.view.Scale
	if k <= 0 {
		k = 1
	}
	m := d.deps.Metrics
	points := d.store.Points()

	t := prometheus.NewTimer(m.PassDuration.WithLabelValues("aggregate"))
	d.cells = hexbin.Aggregate(points, d.scales, d.binner, k)
	t.ObserveDuration()
	m.HexCells.WithLabelValues().Observe(float64(len(d.cells)))

	t = prometheus.NewTimer(m.PassDuration.WithLabelValues("highlight"))
	d.restyle()
	d.annotations = highlight.Layout(highlight.SelectCandidates(points), d.scales, k)
	t.ObserveDuration()

	t = prometheus.NewTimer(m.PassDuration.WithLabelValues("overlay"))
	d.topics = TopicLabels(d.store.ActiveClusterLevel(), d.scales, k)
	d.pin = NewQueryPin(d.store, d.scales, k)
	related := d.store.MaxRelated()
	d.related = RelatedMarkers(related, d.scales, k)
	d.focus = nil
	if d.focusID != "" {
		if p, ok := d.store.Find(d.focusID); ok {
			d.focus = NewFocusRing(&p, d.scales)
		}
	}
	t.ObserveDuration()

	d.updateOutline(related, k)
}

// restyle rebuilds the point layer only.
func (d *Driver) restyle() {
	var hovered projection.FeatureID
	if d.hover != nil && d.hover.Target == TargetPoint {
		hovered = projection.FeatureID(d.hover.ID)
	}
	k := d.view.Scale
	if k <= 0 {
		k = 1
	}
	d.points = highlight.StylePoints(d.store.Points(), d.scales, k, d.store.MaxRelatedCount(), hovered)
}

// updateOutline resynthesises the outline when the related subset, the
// scale or the viewport changed.
func (d *Driver) updateOutline(related []projection.Point, k float64) {
	ids := make([]string, len(related))
	for i := range related {
		ids[i] = related[i].FeatureID.String()
	}
	sort.Strings(ids)
	key := strings.Join(ids, ",") + "@" + strconv.FormatFloat(k, 'g', -1, 64) +
		"/" + strconv.FormatFloat(d.view.Width, 'g', -1, 64) + "x" + strconv.FormatFloat(d.view.Height, 'g', -1, 64)
	if key == d.outlineKey {
		return
	}
	d.outlineKey = key
	if len(related) == 0 {
		d.outline = nil
		return
	}

	members := make([]geom.Vec, len(related))
	for i := range related {
		members[i] = d.scales.Pixel(&related[i])
	}
	t := prometheus.NewTimer(d.deps.Metrics.OutlineDuration.WithLabelValues())
	o := d.deps.Outline.Synthesize(members, k)
	t.ObserveDuration()
	if o != nil {
		d.deps.Metrics.OutlineRelaxations.WithLabelValues().Observe(relaxations(d.deps.Outline.Options(), o.Threshold))
		if !o.Enclosed {
			d.log.Debug("outline does not enclose every member", logging.Int("members", o.Members))
		}
	}
	d.outline = toOutline(o)
}

func (d *Driver) tooltip() *Tooltip {
	if d.hover == nil {
		return nil
	}
	switch d.hover.Target {
	case TargetCell:
		for i := range d.cells {
			if d.cells[i].ID == d.hover.ID {
				return CellTooltip(&d.cells[i], d.store.ActiveClusterLevel())
			}
		}
	case TargetPoint:
		if p, ok := d.store.Find(projection.FeatureID(d.hover.ID)); ok {
			return PointTooltip(&p)
		}
	case TargetRelated:
		if p, ok := d.store.Find(projection.FeatureID(d.hover.ID)); ok && p.RelatedTokens != nil {
			return RelatedTooltip(&p)
		}
	case TargetQuery:
		if _, ok := d.store.QueryPoint(); ok {
			return QueryTooltip(d.store)
		}
	}
	return nil
}

func isCancelled(err error) bool {
	return errors.Is(err, context.Canceled)
}

// ─────────────────────────────────────────────────────────────────────────────
// Command handlers
// ─────────────────────────────────────────────────────────────────────────────

func (c Transform) apply(d *Driver) string {
	if d.applyTransform(c.Transform) {
		d.rebuild()
	}
	return TriggerTransform
}

func (c Resize) apply(d *Driver) string {
	if c.Width <= 0 || c.Height <= 0 {
		return ""
	}
	d.view.Width, d.view.Height = c.Width, c.Height
	d.scales = hexbin.FitScales(d.store, c.Width, c.Height)
	d.rebuild()
	return TriggerResize
}

func (c ClickPoint) apply(d *Driver) string {
	if q, ok := d.store.QueryPoint(); ok && q.FeatureID == c.FeatureID {
		return ClickQuery{}.apply(d)
	}
	p, ok := d.store.Find(c.FeatureID)
	if !ok {
		return d.fail(ctxDetail, apperrors.New(apperrors.ErrCodeFeatureNotFound, "feature not in projection").WithDetail(c.FeatureID.String()))
	}
	d.focusOn(&p)
	d.rebuild()
	if err := d.fetchDetail(c.FeatureID, true); err != nil {
		d.fail(ctxDetail, err)
	}
	ev := d.event(kafka.EventPointClicked)
	ev.FeatureID = c.FeatureID.String()
	d.publish(ev)
	return TriggerFocus
}

func (c ClickQuery) apply(d *Driver) string {
	d.abort(ctxDetail)
	d.store.ClearSelection()
	d.selection = nil
	d.focusID = ""
	d.neighbours = d.store.Nearest()
	d.rebuild()
	return TriggerDeselect
}

func (c FocusFeature) apply(d *Driver) string {
	p, ok := d.store.Find(c.FeatureID)
	if !ok {
		return d.fail(ctxDetail, apperrors.New(apperrors.ErrCodeFeatureNotFound, "feature not in projection").WithDetail(c.FeatureID.String()))
	}
	d.focusOn(&p)
	d.rebuild()
	if err := d.fetchDetail(c.FeatureID, false); err != nil {
		d.fail(ctxDetail, err)
	}
	return TriggerFocus
}

func (c Hover) apply(d *Driver) string {
	prev, h := d.hover, c
	d.hover = &h
	if d.tooltip() == nil {
		// unknown target: the committed tooltip stays current
		d.hover = prev
		return ""
	}
	if c.Target == TargetPoint {
		d.restyle()
	}
	return TriggerHover
}

func (c HoverOut) apply(d *Driver) string {
	if d.hover == nil {
		return ""
	}
	wasPoint := d.hover.Target == TargetPoint
	d.hover = nil
	if wasPoint {
		d.restyle()
	}
	return TriggerHover
}

func (c SetVisibleFeatures) apply(d *Driver) string {
	d.pending = dedupe(c.FeatureIDs)
	d.visibleGen++
	gen := d.visibleGen
	time.AfterFunc(d.opts.VisibleDebounce, func() { d.post(flushVisible{gen: gen}) })
	return ""
}

func (c flushVisible) apply(d *Driver) string {
	if c.gen != d.visibleGen || sameIDs(d.pending, d.visible) {
		return ""
	}
	d.visible = d.pending
	d.store.SetVisibleInPanel(d.visible)
	d.rebuild()
	return TriggerVisible
}

func (c SelectTokens) apply(d *Driver) string {
	if len(c.Tokens) == 0 {
		d.abort(ctxTokens)
		d.analyzing = false
		d.store.ApplyRelatedTokens(nil)
		d.rebuild()
		return TriggerTokens
	}
	if d.deps.Backend == nil {
		return d.fail(ctxTokens, errNoBackend)
	}
	ctx, gen := d.begin(ctxTokens)
	d.analyzing = true
	api := d.deps.Backend
	req := backend.TokenAnalysisRequest{
		FeatureID:      c.FeatureID,
		SAEID:          d.query.SAEID,
		LLM:            d.query.LLM,
		SelectedTokens: c.Tokens,
	}
	go func() {
		res, err := api.AnalyzeTokens(ctx, req)
		d.post(tokensLoaded{gen: gen, tokens: len(req.SelectedTokens), analysis: res, err: err})
	}()
	return TriggerTokens
}

func (c Reload) apply(d *Driver) string {
	if d.deps.Source == nil {
		return d.fail(ctxReload, apperrors.Unavailable("no projection source"))
	}
	ctx, gen := d.begin(ctxReload)
	src, q := d.deps.Source, d.query
	go func() {
		s, err := src.Store(ctx, q)
		d.post(reloaded{gen: gen, store: s, err: err})
	}()
	return ""
}

func (c detailLoaded) apply(d *Driver) string {
	if !d.settle(ctxDetail, c.gen) {
		return ""
	}
	if c.err != nil {
		if isCancelled(c.err) {
			return ""
		}
		return d.fail(ctxDetail, c.err)
	}
	if c.detail == nil {
		return ""
	}
	neighbours := c.detail.Neighbours(d.describe)
	d.selection = &Selection{FeatureID: c.featureID, Neighbours: neighbours}
	if !c.selecting {
		return TriggerFocus
	}
	d.store.ClearSelection()
	d.store.MarkSelection(c.featureID, c.detail.SimilarIDs())
	d.neighbours = neighbours
	d.rebuild()
	return TriggerSelect
}

func (c tokensLoaded) apply(d *Driver) string {
	if !d.settle(ctxTokens, c.gen) {
		return ""
	}
	d.analyzing = false
	if c.err != nil {
		if isCancelled(c.err) {
			return TriggerTokens
		}
		return d.fail(ctxTokens, c.err)
	}
	var related map[projection.FeatureID][]projection.RelatedToken
	if c.analysis != nil {
		related = c.analysis.Related()
	}
	d.store.ApplyRelatedTokens(related)
	d.rebuild()
	ev := d.event(kafka.EventTokensAnalyzed)
	ev.Tokens = c.tokens
	d.publish(ev)
	return TriggerTokens
}

func (c reloaded) apply(d *Driver) string {
	if !d.settle(ctxReload, c.gen) {
		return ""
	}
	if c.err != nil {
		if isCancelled(c.err) {
			return ""
		}
		return d.fail(ctxReload, c.err)
	}
	if c.store == nil {
		return ""
	}
	d.abort(ctxDetail)
	d.abort(ctxTokens)
	d.analyzing = false

	d.store = c.store
	d.view.ActiveLevel = c.store.ActiveLevel()
	d.applyTransform(d.view.Transform)
	d.store.ApplyLevel(d.view.ActiveLevel)
	if len(d.visible) > 0 {
		d.store.SetVisibleInPanel(d.visible)
	}
	d.scales = hexbin.FitScales(d.store, d.view.Width, d.view.Height)
	d.selection = nil
	d.focusID = ""
	d.hover = nil
	d.neighbours = d.store.Nearest()
	d.outlineKey = ""
	d.rebuild()
	return TriggerReload
}
