package permissions

import (
	"context"
	"errors"
	"strconv"
	"sync"
	"time"

	"github.com/atinyakov/PermKeeper/internal/models"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

// ErrNotResolved is returned by Snapshot before the first resolution ends.
var ErrNotResolved = errors.New("permissions not resolved")

// DefaultResolveTimeout bounds one resolution episode.
const DefaultResolveTimeout = 10 * time.Second

// State is the lifecycle of the gate.
type State int32

const (
	// StateUninitialized means nothing was resolved since start or logout.
	StateUninitialized State = iota
	// StateLoading means an episode is in flight.
	StateLoading
	// StateReady means a snapshot, possibly the empty fail-closed one, is in place.
	StateReady
)

func (s State) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StateLoading:
		return "loading"
	case StateReady:
		return "ready"
	}
	return "unknown"
}

// Source is what the gate resolves payloads from. *Cache implements it.
// The gate decides when the slot is written so that a superseded episode
// never overwrites a newer session's snapshot.
type Source interface {
	Load(ctx context.Context) (models.Payload, bool)
	Fetch(ctx context.Context) (models.Payload, error)
	Store(ctx context.Context, p models.Payload) error
	Clear(ctx context.Context) error
}

// Checker answers permission checks.
type Checker interface {
	HasPermission(module, action string) bool
}

type snapshot struct {
	payload models.Payload
	index   map[string]map[string]struct{}
}

func newSnapshot(p models.Payload) *snapshot {
	s := &snapshot{
		payload: models.Payload{
			CurrentUserID:         p.CurrentUserID,
			IsSuperAdmin:          p.IsSuperAdmin,
			ModuleWisePermissions: make(models.PermissionMap, len(p.ModuleWisePermissions)),
		},
		index: make(map[string]map[string]struct{}, len(p.ModuleWisePermissions)),
	}
	for module, actions := range p.ModuleWisePermissions {
		set := make(map[string]struct{}, len(actions))
		for _, a := range actions {
			set[a] = struct{}{}
		}
		s.index[module] = set
		s.payload.ModuleWisePermissions[module] = append([]string(nil), actions...)
	}
	return s
}

// Gate resolves permissions at most once per episode and answers checks
// from the resolved snapshot. It fails closed.
type Gate struct {
	source  Source
	log     *zap.Logger
	timeout time.Duration
	group   singleflight.Group

	// slotMu orders slot writes and clears; a write happens only while its
	// episode is still the current generation.
	slotMu sync.Mutex

	mu      sync.RWMutex
	state   State
	gen     uint64
	forced  bool
	snap    *snapshot
	lastErr error
}

// GateOption configures a Gate.
type GateOption func(*Gate)

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) GateOption {
	return func(g *Gate) {
		if l != nil {
			g.log = l
		}
	}
}

// WithResolveTimeout bounds each resolution episode.
func WithResolveTimeout(d time.Duration) GateOption {
	return func(g *Gate) {
		if d > 0 {
			g.timeout = d
		}
	}
}

// NewGate returns an uninitialized gate over source.
func NewGate(source Source, opts ...GateOption) *Gate {
	g := &Gate{
		source:  source,
		log:     zap.NewNop(),
		timeout: DefaultResolveTimeout,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// State returns the current lifecycle state.
func (g *Gate) State() State {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.state
}

// LastError returns the error of the episode that produced the current
// snapshot, if any. A ready gate with a non-nil LastError is denying
// everything because resolution failed, not because nothing was granted.
func (g *Gate) LastError() error {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.lastErr
}

// HasPermission reports whether the current user may perform action on
// module. It never blocks; the first call on an uninitialized gate starts
// resolution in the background and returns false.
func (g *Gate) HasPermission(module, action string) bool {
	g.mu.RLock()
	state, snap := g.state, g.snap
	g.mu.RUnlock()

	if state == StateUninitialized {
		g.startBackground()
	}
	if snap == nil {
		return false
	}
	if snap.payload.IsSuperAdmin {
		return true
	}
	actions, ok := snap.index[module]
	if !ok {
		return false
	}
	_, ok = actions[action]
	return ok
}

// Resolve blocks until the current episode is ready. Concurrent callers share
// one episode. A caller whose ctx ends early gets ctx.Err() while the
// episode carries on for everyone else.
func (g *Gate) Resolve(ctx context.Context) error {
	g.mu.Lock()
	if g.state == StateReady {
		err := g.lastErr
		g.mu.Unlock()
		return err
	}
	if g.state == StateUninitialized {
		g.state = StateLoading
		g.forced = false
	}
	gen, forced := g.gen, g.forced
	g.mu.Unlock()

	return g.wait(ctx, gen, forced)
}

// Refresh starts a new episode that skips the cached snapshot. The previous
// snapshot keeps answering checks until the new one is committed.
func (g *Gate) Refresh(ctx context.Context) error {
	g.mu.Lock()
	if g.state != StateLoading || !g.forced {
		g.gen++
		g.state = StateLoading
		g.forced = true
	}
	gen := g.gen
	g.mu.Unlock()

	return g.wait(ctx, gen, true)
}

// Logout clears the storage slot and drops the snapshot. Episodes started
// before Logout are discarded when they finish.
func (g *Gate) Logout(ctx context.Context) error {
	g.mu.Lock()
	g.gen++
	g.state = StateUninitialized
	g.forced = false
	g.snap = nil
	g.lastErr = nil
	g.mu.Unlock()

	g.slotMu.Lock()
	defer g.slotMu.Unlock()
	return g.source.Clear(ctx)
}

// Snapshot returns a copy of the resolved payload.
func (g *Gate) Snapshot() (models.Payload, error) {
	g.mu.RLock()
	snap := g.snap
	g.mu.RUnlock()

	if snap == nil {
		return models.Payload{}, ErrNotResolved
	}
	return newSnapshot(snap.payload).payload, nil
}

func (g *Gate) startBackground() {
	g.mu.Lock()
	if g.state != StateUninitialized {
		g.mu.Unlock()
		return
	}
	g.state = StateLoading
	g.forced = false
	gen := g.gen
	g.mu.Unlock()

	go func() {
		_ = g.wait(context.Background(), gen, false)
	}()
}

func (g *Gate) wait(ctx context.Context, gen uint64, forced bool) error {
	key := "resolve:" + strconv.FormatUint(gen, 10)
	ch := g.group.DoChan(key, func() (interface{}, error) {
		return nil, g.episode(ctx, gen, forced)
	})
	select {
	case <-ctx.Done():
		return ctx.Err()
	case res := <-ch:
		return res.Err
	}
}

func (g *Gate) episode(parent context.Context, gen uint64, forced bool) error {
	g.mu.RLock()
	if g.gen != gen || g.state == StateReady {
		// a late joiner of a finished or superseded episode
		err := g.lastErr
		g.mu.RUnlock()
		return err
	}
	g.mu.RUnlock()

	ctx, cancel := context.WithTimeout(context.WithoutCancel(parent), g.timeout)
	defer cancel()

	log := g.log.With(zap.String("episode", uuid.NewString()), zap.Bool("forced", forced))
	started := time.Now()

	var (
		p       models.Payload
		err     error
		fetched bool
	)
	if !forced {
		var ok bool
		if p, ok = g.source.Load(ctx); ok {
			log.Debug("permission cache hit", zap.String("user", string(p.CurrentUserID)))
		}
		fetched = !ok
	}
	if forced || fetched {
		p, err = g.source.Fetch(ctx)
		fetched = err == nil
	}
	if err != nil {
		log.Warn("permission resolution failed, denying all checks", zap.Error(err))
		p = models.Payload{ModuleWisePermissions: models.PermissionMap{}}
	} else {
		log.Info("permissions resolved",
			zap.String("user", string(p.CurrentUserID)),
			zap.Bool("superAdmin", p.IsSuperAdmin),
			zap.Int("modules", len(p.ModuleWisePermissions)),
			zap.Bool("fetched", fetched),
			zap.Duration("took", time.Since(started)))
	}

	g.commit(ctx, log, gen, p, err, fetched)
	return err
}

// commit publishes the episode's result and, for fetched payloads, writes
// the slot. Both are skipped when the episode was superseded.
func (g *Gate) commit(ctx context.Context, log *zap.Logger, gen uint64, p models.Payload, err error, store bool) {
	g.slotMu.Lock()
	defer g.slotMu.Unlock()

	g.mu.Lock()
	if g.gen != gen {
		g.mu.Unlock()
		log.Debug("discarding superseded permission episode")
		return
	}
	g.snap = newSnapshot(p)
	g.lastErr = err
	g.state = StateReady
	g.forced = false
	g.mu.Unlock()

	if !store {
		return
	}
	// A store failure only costs the next start a round trip.
	if serr := g.source.Store(ctx, p); serr != nil {
		log.Debug("permission cache store failed", zap.Error(serr))
	}
}
