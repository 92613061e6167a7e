package render

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	appProj "github.com/turtacn/FeatureScope/internal/application/projection"
	"github.com/turtacn/FeatureScope/internal/config"
	"github.com/turtacn/FeatureScope/internal/domain/zoom"
	"github.com/turtacn/FeatureScope/internal/infrastructure/messaging/kafka"
	"github.com/turtacn/FeatureScope/internal/infrastructure/monitoring/logging"
	apperrors "github.com/turtacn/FeatureScope/pkg/errors"
)

// CreateRequest opens a session. Zero sizes take the configured viewport.
type CreateRequest struct {
	Query  appProj.Query
	Width  float64
	Height float64
}

// SessionInfo summarises a session for listings.
type SessionInfo struct {
	ID         string        `json:"id"`
	Query      appProj.Query `json:"query"`
	Level      string        `json:"level"`
	Scale      float64       `json:"scale"`
	Seq        uint64        `json:"seq"`
	LastActive time.Time     `json:"last_active"`
}

// Manager owns the open sessions.
type Manager struct {
	cfg          config.RenderConfig
	deps         Deps
	defaultSAEID string
	defaultLLM   string
	log          logging.Logger

	mu       sync.RWMutex
	sessions map[string]*Driver
	ready    bool
	now      func() time.Time
}

// NewMachineFromConfig builds the zoom machine described by cfg.
func NewMachineFromConfig(cfg config.RenderConfig, log logging.Logger) (*zoom.Machine, error) {
	table := make(zoom.Table, 0, len(cfg.Levels))
	for _, l := range cfg.Levels {
		table = append(table, zoom.Threshold{MinScale: l.MinScale, Level: l.Level})
	}
	if len(table) == 0 {
		table = zoom.DefaultTable()
	}
	return zoom.NewMachine(zoom.Options{
		Table:    table,
		MinScale: cfg.MinScale,
		MaxScale: cfg.MaxScale,
		Epsilon:  cfg.ScaleEpsilon,
		Logger:   log,
	})
}

// NewManager returns a manager for cfg. deps.Source is required; a nil
// deps.Machine is built from cfg.Render.
func NewManager(cfg *config.Config, deps Deps) (*Manager, error) {
	if deps.Source == nil {
		return nil, apperrors.New(apperrors.ErrCodeInternal, "render manager needs a projection source")
	}
	if deps.Logger == nil {
		deps.Logger = logging.NewNopLogger()
	}
	if deps.Machine == nil {
		m, err := NewMachineFromConfig(cfg.Render, deps.Logger.Named("zoom"))
		if err != nil {
			return nil, err
		}
		deps.Machine = m
	}
	if err := deps.applyDefaults(); err != nil {
		return nil, err
	}
	return &Manager{
		cfg:          cfg.Render,
		deps:         deps,
		defaultSAEID: cfg.Backend.SAEID,
		defaultLLM:   cfg.Backend.LLM,
		log:          deps.Logger.Named("render"),
		sessions:     make(map[string]*Driver),
		ready:        true,
		now:          time.Now,
	}, nil
}

// Machine returns the zoom machine shared by every session.
func (m *Manager) Machine() *zoom.Machine { return m.deps.Machine }

// Ready reports whether the manager accepts sessions.
func (m *Manager) Ready() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.ready
}

// Create loads the projection for req and opens a session over it.
func (m *Manager) Create(ctx context.Context, req CreateRequest) (*Driver, error) {
	if !m.Ready() {
		return nil, apperrors.Unavailable("render manager is shutting down")
	}
	if m.cfg.MaxSessions > 0 && m.Len() >= m.cfg.MaxSessions {
		return nil, apperrors.Newf(apperrors.ErrCodeSessionLimit, "session limit of %d reached", m.cfg.MaxSessions)
	}

	q := req.Query
	if q.SAEID == "" {
		q.SAEID = m.defaultSAEID
	}
	if q.LLM == "" {
		q.LLM = m.defaultLLM
	}
	store, err := m.deps.Source.Store(ctx, q)
	if err != nil {
		return nil, err
	}

	opts := Options{
		Width:              m.cfg.Width,
		Height:             m.cfg.Height,
		HexRadius:          m.cfg.HexRadius,
		VisibleDebounce:    m.cfg.VisibleDebounce,
		FocusScale:         m.cfg.FocusScale,
		TransitionDuration: m.cfg.TransitionDuration,
		StreamBuffer:       m.cfg.StreamBuffer,
	}
	if req.Width > 0 {
		opts.Width = req.Width
	}
	if req.Height > 0 {
		opts.Height = req.Height
	}

	id := uuid.NewString()
	d, err := NewDriver(id, q, store, opts, m.deps)
	if err != nil {
		return nil, err
	}

	m.mu.Lock()
	if m.cfg.MaxSessions > 0 && len(m.sessions) >= m.cfg.MaxSessions {
		m.mu.Unlock()
		d.Close()
		return nil, apperrors.Newf(apperrors.ErrCodeSessionLimit, "session limit of %d reached", m.cfg.MaxSessions)
	}
	m.sessions[id] = d
	m.mu.Unlock()

	m.deps.Metrics.ActiveSessions.WithLabelValues().Inc()
	f := d.Snapshot()
	d.publish(kafka.InteractionEvent{Kind: kafka.EventSessionOpened, Level: f.Level, Scale: f.View.Scale})
	m.log.Info("session opened",
		logging.SessionID(id),
		logging.String("sae_id", q.SAEID),
		logging.Int("points", len(f.Points)),
		logging.String("level", f.Level))
	return d, nil
}

// Get returns an open session.
func (m *Manager) Get(id string) (*Driver, error) {
	m.mu.RLock()
	d, ok := m.sessions[id]
	m.mu.RUnlock()
	if !ok {
		return nil, apperrors.New(apperrors.ErrCodeSessionNotFound, "session not found").WithDetail(id)
	}
	return d, nil
}

// Len returns the number of open sessions.
func (m *Manager) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}

// List summarises the open sessions, most recently active first.
func (m *Manager) List() []SessionInfo {
	m.mu.RLock()
	out := make([]SessionInfo, 0, len(m.sessions))
	for id, d := range m.sessions {
		f := d.Snapshot()
		out = append(out, SessionInfo{
			ID:         id,
			Query:      d.Query(),
			Level:      f.Level,
			Scale:      f.View.Scale,
			Seq:        f.Seq,
			LastActive: d.LastActive(),
		})
	}
	m.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool {
		if out[i].LastActive.Equal(out[j].LastActive) {
			return out[i].ID < out[j].ID
		}
		return out[i].LastActive.After(out[j].LastActive)
	})
	return out
}

// Close stops a session and forgets it.
func (m *Manager) Close(id string) error {
	m.mu.Lock()
	d, ok := m.sessions[id]
	delete(m.sessions, id)
	m.mu.Unlock()
	if !ok {
		return apperrors.New(apperrors.ErrCodeSessionNotFound, "session not found").WithDetail(id)
	}
	m.stop(d, "closed")
	return nil
}

func (m *Manager) stop(d *Driver, reason string) {
	f := d.Snapshot()
	d.publish(kafka.InteractionEvent{Kind: kafka.EventSessionClosed, Level: f.Level, Scale: f.View.Scale})
	d.Close()
	m.deps.Metrics.ActiveSessions.WithLabelValues().Dec()
	m.log.Info("session closed", logging.SessionID(d.ID()), logging.String("reason", reason))
}

// Expire closes sessions idle for longer than the configured TTL and
// returns how many were closed.
func (m *Manager) Expire() int {
	if m.cfg.SessionTTL <= 0 {
		return 0
	}
	cutoff := m.now().Add(-m.cfg.SessionTTL)
	var idle []*Driver
	m.mu.Lock()
	for id, d := range m.sessions {
		if d.LastActive().Before(cutoff) {
			idle = append(idle, d)
			delete(m.sessions, id)
		}
	}
	m.mu.Unlock()
	for _, d := range idle {
		m.stop(d, "expired")
	}
	return len(idle)
}

// ReloadAll asks every session to fetch its projection again.
func (m *Manager) ReloadAll() {
	m.mu.RLock()
	sessions := make([]*Driver, 0, len(m.sessions))
	for _, d := range m.sessions {
		sessions = append(sessions, d)
	}
	m.mu.RUnlock()
	for _, d := range sessions {
		d.post(Reload{})
	}
	m.log.Info("projection changed, sessions reloading", logging.Int("sessions", len(sessions)))
}

// Run expires idle sessions and, for watchable sources, reloads sessions
// when the projection changes. It returns when ctx is done, after closing
// every session.
func (m *Manager) Run(ctx context.Context) error {
	interval := m.cfg.SessionTTL / 4
	if interval <= 0 || interval > time.Minute {
		interval = time.Minute
	}

	watchErr := make(chan error, 1)
	go func() {
		watchErr <- m.deps.Source.Watch(ctx, m.ReloadAll)
	}()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			m.Shutdown()
			return nil
		case err := <-watchErr:
			if err != nil {
				m.log.Error("projection watch stopped", logging.Err(err))
			}
			watchErr = nil
		case <-ticker.C:
			if n := m.Expire(); n > 0 {
				m.log.Debug("idle sessions expired", logging.Int("count", n))
			}
		}
	}
}

// Shutdown stops accepting sessions and closes the open ones.
func (m *Manager) Shutdown() {
	m.mu.Lock()
	m.ready = false
	sessions := m.sessions
	m.sessions = make(map[string]*Driver)
	m.mu.Unlock()
	for _, d := range sessions {
		m.stop(d, "shutdown")
	}
}
