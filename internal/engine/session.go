// Package engine hosts the single event loop that owns the visible graph,
// its layout and its rendering.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/gyaneshwarpardhi/kgexplorer/internal/config"
	"github.com/gyaneshwarpardhi/kgexplorer/internal/event"
	"github.com/gyaneshwarpardhi/kgexplorer/internal/expansion"
	"github.com/gyaneshwarpardhi/kgexplorer/internal/graph"
	"github.com/gyaneshwarpardhi/kgexplorer/internal/layout"
	"github.com/gyaneshwarpardhi/kgexplorer/internal/metrics"
	"github.com/gyaneshwarpardhi/kgexplorer/internal/provider"
	"github.com/gyaneshwarpardhi/kgexplorer/internal/query"
	"github.com/gyaneshwarpardhi/kgexplorer/internal/render"
)

var (
	// ErrBusy is returned when the loop or fetch queue is full.
	ErrBusy = errors.New("session queue full")
	// ErrClosed is returned after Shutdown.
	ErrClosed = errors.New("session closed")
)

// Session owns one explorer: graph store, expansion controller, layout
// simulation and renderer. All of them are touched only by the loop worker;
// provider calls run on a separate bounded fetch pool and post their results
// back to the loop.
type Session struct {
	id       string
	log      *slog.Logger
	provider provider.Provider
	conf     config.SessionConf

	// loop-owned
	store    *graph.Store
	ctrl     *expansion.Controller
	sim      *layout.Simulation
	rend     *render.Renderer
	disp     *render.Dispatcher
	viewport config.ViewportConf
	seq      uint64

	frame      atomic.Pointer[render.Frame]
	renderConf atomic.Pointer[config.RenderConf]
	active     atomic.Bool
	tickQueued atomic.Bool

	loop       *workerPool
	fetch      *workerPool
	runCtx     context.Context
	cancel     context.CancelFunc
	tickCancel context.CancelFunc
	ticker     sync.WaitGroup
	closed     atomic.Bool
}

// New builds a Session over p. Call Start to run it.
func New(cfg *config.Config, p provider.Provider, log *slog.Logger) (*Session, error) {
	if log == nil {
		log = slog.Default()
	}
	rend, err := render.New(cfg.Render)
	if err != nil {
		return nil, fmt.Errorf("renderer: %w", err)
	}
	id := uuid.NewString()
	base := log.With("session_id", id)

	s := &Session{
		id:       id,
		log:      base.With("component", "session"),
		provider: p,
		conf:     cfg.Session,
		store:    graph.NewStore(),
		sim:      layout.New(cfg.Layout, cfg.Viewport),
		rend:     rend,
		viewport: cfg.Viewport,
	}
	s.ctrl = expansion.New(s.store, expansion.NewVisitedSet(), p, base)
	s.ctrl.OnChange(s.onChange)
	s.disp = render.NewDispatcher(actions{s})
	rc := cfg.Render
	s.renderConf.Store(&rc)
	s.publish()
	return s, nil
}

// ID returns the session id.
func (s *Session) ID() string { return s.id }

// Start launches the loop, the fetch pool and the tick driver.
func (s *Session) Start(ctx context.Context) {
	s.runCtx, s.cancel = context.WithCancel(ctx)
	s.loop = newWorkerPool(s.runCtx, 1, s.conf.LoopQueueDepth)
	s.fetch = newWorkerPool(s.runCtx, s.conf.FetchWorkers, s.conf.FetchQueue)

	var tickCtx context.Context
	tickCtx, s.tickCancel = context.WithCancel(s.runCtx)
	s.ticker.Add(1)
	go func() {
		defer s.ticker.Done()
		s.drive(tickCtx)
	}()
	s.log.Info("session started",
		"fetch_workers", s.conf.FetchWorkers, "loop_queue", s.conf.LoopQueueDepth)
}

// Bootstrap loads the catalog and shows the configured root node.
func (s *Session) Bootstrap(ctx context.Context) error {
	if err := s.RefreshCatalog(ctx); err != nil {
		return err
	}
	if s.conf.RootNode == 0 {
		return nil
	}
	return s.Show(ctx, graph.NodeID(s.conf.RootNode))
}

// Shutdown stops the tick driver and drains both pools. Fetches in flight
// finish and post their results before the loop drains.
func (s *Session) Shutdown() {
	if s.loop == nil || !s.closed.CompareAndSwap(false, true) {
		return
	}
	s.tickCancel()
	s.ticker.Wait()
	s.fetch.Drain()
	s.loop.Drain()
	s.cancel()
	s.log.Info("session stopped")
}

// Frame returns the most recently published frame.
func (s *Session) Frame() *render.Frame { return s.frame.Load() }

// RenderConfig returns the styling the current frame was built with.
func (s *Session) RenderConfig() config.RenderConf { return *s.renderConf.Load() }

// QueueUtilization returns loop queue used / capacity (0-1).
func (s *Session) QueueUtilization() float64 {
	if s.loop == nil || s.loop.QueueCap() == 0 {
		return 0
	}
	return float64(s.loop.QueueLen()) / float64(s.loop.QueueCap())
}

// ── Loop plumbing ───────────────────────────────────────────────────────────

// onLoop runs fn on the loop and waits for its result.
func (s *Session) onLoop(ctx context.Context, fn func() error) error {
	if s.closed.Load() {
		return ErrClosed
	}
	errC := make(chan error, 1)
	if !s.loop.Submit(func(context.Context) { errC <- fn() }) {
		metrics.RequestsRejected.Inc()
		return fmt.Errorf("%w (capacity %d)", ErrBusy, s.loop.QueueCap())
	}
	select {
	case err := <-errC:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// post queues fn on the loop, waiting for room. Completions use it so a
// result is never lost to a momentarily full queue.
func (s *Session) post(fn func()) {
	if !s.loop.SubmitWait(s.runCtx, func(context.Context) { fn() }) {
		s.log.Debug("completion discarded; session stopping")
	}
}

type result[T any] struct {
	val T
	err error
}

// call runs fn on the fetch pool under the call timeout and waits for it.
func call[T any](ctx context.Context, s *Session, fn func(context.Context) (T, error)) (T, error) {
	var zero T
	if s.closed.Load() {
		return zero, ErrClosed
	}
	resC := make(chan result[T], 1)
	cctx, cancel := context.WithTimeout(ctx, s.callTimeout())
	ok := s.fetch.Submit(func(context.Context) {
		defer cancel()
		v, err := fn(cctx)
		resC <- result[T]{val: v, err: err}
	})
	if !ok {
		cancel()
		metrics.RequestsRejected.Inc()
		return zero, fmt.Errorf("%w (fetch capacity %d)", ErrBusy, s.fetch.QueueCap())
	}
	select {
	case r := <-resC:
		return r.val, r.err
	case <-ctx.Done():
		return zero, ctx.Err()
	}
}

func (s *Session) callTimeout() time.Duration {
	return time.Duration(s.conf.CallTimeoutMs) * time.Millisecond
}

// ── Change handling (loop) ──────────────────────────────────────────────────

func (s *Session) onChange(ch expansion.Change) {
	switch ch.Kind {
	case expansion.Appended, expansion.Replaced, expansion.Removed:
		s.sim.Rebuild(s.store.Nodes(), s.store.Edges())
		s.sim.Restart()
	}
	s.publish()
}

// publish builds a frame from the current state and makes it visible to readers.
func (s *Session) publish() {
	sel, _ := s.ctrl.Selected()
	f := s.rend.Build(render.Scene{
		Nodes:    s.store.Nodes(),
		Edges:    s.store.Edges(),
		Anchors:  s.sim,
		Selected: sel,
		Viewport: s.viewport,
	})
	s.seq++
	f.Seq = s.seq
	f.Alpha = s.sim.Alpha()
	f.Active = s.sim.Active()
	s.active.Store(f.Active)
	s.frame.Store(f)
}

// ── Expansion ───────────────────────────────────────────────────────────────

// Expand fetches and merges the neighbourhood of id, at most once per node.
func (s *Session) Expand(ctx context.Context, id graph.NodeID) (expansion.Outcome, error) {
	var (
		t  expansion.Ticket
		ok bool
	)
	if err := s.onLoop(ctx, func() error {
		t, ok = s.ctrl.BeginExpand(id)
		return nil
	}); err != nil {
		return expansion.Outcome{Node: id, Status: expansion.StatusFailed}, err
	}
	if !ok {
		return expansion.Outcome{Node: id, Status: expansion.StatusSkipped}, nil
	}

	nb, ferr := call(ctx, s, func(ctx context.Context) (*graph.Neighborhood, error) {
		return s.provider.FetchNeighborhood(ctx, id)
	})
	if ferr != nil && ctx.Err() != nil {
		// The fetch may still be running; release the claim either way.
		s.post(func() { s.ctrl.FinishExpand(t, nil, ferr) })
		return expansion.Outcome{Node: id, Status: expansion.StatusFailed}, ferr
	}

	done := make(chan struct{})
	var (
		out expansion.Outcome
		err error
	)
	s.post(func() {
		out, err = s.ctrl.FinishExpand(t, nb, ferr)
		close(done)
	})
	select {
	case <-done:
		return out, err
	case <-ctx.Done():
		return expansion.Outcome{Node: id, Status: expansion.StatusFailed}, ctx.Err()
	}
}

// expandAsync starts an expansion from the loop without waiting for it.
func (s *Session) expandAsync(id graph.NodeID) {
	t, ok := s.ctrl.BeginExpand(id)
	if !ok {
		return
	}
	submitted := s.fetch.Submit(func(ctx context.Context) {
		cctx, cancel := context.WithTimeout(ctx, s.callTimeout())
		nb, err := s.provider.FetchNeighborhood(cctx, id)
		cancel()
		s.post(func() { s.ctrl.FinishExpand(t, nb, err) })
	})
	if !submitted {
		metrics.RequestsRejected.Inc()
		s.ctrl.FinishExpand(t, nil, ErrBusy)
	}
}

// Show replaces the visible set with the neighbourhood of id.
func (s *Session) Show(ctx context.Context, id graph.NodeID) error {
	nb, err := call(ctx, s, func(ctx context.Context) (*graph.Neighborhood, error) {
		return s.provider.FetchNeighborhood(ctx, id)
	})
	if ctx.Err() != nil {
		return ctx.Err()
	}
	return s.onLoop(ctx, func() error { return s.ctrl.ApplyShow(id, nb, err) })
}

// ShowRelation replaces the visible set with one catalog relation.
func (s *Session) ShowRelation(ctx context.Context, id int64) error {
	return s.onLoop(ctx, func() error {
		rel, ok := s.ctrl.RelationByID(id)
		if !ok {
			return fmt.Errorf("relation %d: %w", id, provider.ErrNotFound)
		}
		return s.ctrl.ShowRelation(rel)
	})
}

// Pointer dispatches a pointer event against the current frame.
func (s *Session) Pointer(ctx context.Context, ev event.Pointer) (graph.NodeID, bool, error) {
	if err := ev.Validate(); err != nil {
		return 0, false, err
	}
	var (
		id  graph.NodeID
		hit bool
	)
	err := s.onLoop(ctx, func() error {
		id, hit = s.disp.Dispatch(s.frame.Load(), ev)
		s.publish()
		return nil
	})
	return id, hit, err
}

// ── Catalog ─────────────────────────────────────────────────────────────────

// RefreshCatalog reloads nodes, relations and relation types from the provider.
func (s *Session) RefreshCatalog(ctx context.Context) error {
	cat, err := call(ctx, s, s.ctrl.FetchCatalog)
	if err != nil {
		return err
	}
	return s.onLoop(ctx, func() error {
		s.ctrl.ApplyCatalog(cat)
		return nil
	})
}

// Catalog returns a copy of the cached catalog.
func (s *Session) Catalog(ctx context.Context) (expansion.Catalog, error) {
	var cat expansion.Catalog
	err := s.onLoop(ctx, func() error {
		cat = s.ctrl.Catalog()
		return nil
	})
	return cat, err
}

// SearchNodes filters the catalog nodes by label text and an optional filter expression.
func (s *Session) SearchNodes(ctx context.Context, text, where string) ([]graph.Node, error) {
	f, err := query.Compile(where)
	if err != nil {
		return nil, fmt.Errorf("filter: %w: %w", provider.ErrInvalid, err)
	}
	var out []graph.Node
	err = s.onLoop(ctx, func() error {
		out = s.ctrl.SearchNodes(text, f)
		return nil
	})
	return out, err
}

// ── Mutations ───────────────────────────────────────────────────────────────

// CreateNode persists a node and shows it selected.
func (s *Session) CreateNode(ctx context.Context, title string) (*graph.Node, error) {
	n, err := call(ctx, s, func(ctx context.Context) (*graph.Node, error) {
		return s.provider.CreateNode(ctx, title)
	})
	if err != nil {
		return nil, fmt.Errorf("create node: %w", err)
	}
	return n, s.onLoop(ctx, func() error {
		s.ctrl.ApplyCreateNode(*n)
		return nil
	})
}

// UpdateNode persists label and summary edits.
func (s *Session) UpdateNode(ctx context.Context, id graph.NodeID, fields graph.NodeFields) error {
	if _, err := call(ctx, s, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, s.provider.UpdateNode(ctx, id, fields)
	}); err != nil {
		return fmt.Errorf("update node %d: %w", id, err)
	}
	return s.onLoop(ctx, func() error {
		s.ctrl.ApplyUpdateNode(id, fields)
		return nil
	})
}

// DeleteNode deletes a node. A conflict leaves every piece of state untouched.
func (s *Session) DeleteNode(ctx context.Context, id graph.NodeID) error {
	if _, err := call(ctx, s, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, s.provider.DeleteNode(ctx, id)
	}); err != nil {
		return fmt.Errorf("delete node %d: %w", id, err)
	}
	return s.onLoop(ctx, func() error {
		s.ctrl.ApplyDeleteNode(id)
		return nil
	})
}

// CreateRelation persists a relation; it appears if both endpoints are visible.
func (s *Session) CreateRelation(ctx context.Context, source, target graph.NodeID, typeID int64) (*graph.Relation, error) {
	r, err := call(ctx, s, func(ctx context.Context) (*graph.Relation, error) {
		return s.provider.CreateRelation(ctx, source, target, typeID)
	})
	if err != nil {
		return nil, fmt.Errorf("create relation: %w", err)
	}
	return r, s.onLoop(ctx, func() error {
		s.ctrl.ApplyCreateRelation(*r)
		return nil
	})
}

// DeleteRelation deletes a relation and, with it, its inferred inverse.
func (s *Session) DeleteRelation(ctx context.Context, id int64) error {
	if _, err := call(ctx, s, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, s.provider.DeleteRelation(ctx, id)
	}); err != nil {
		return fmt.Errorf("delete relation %d: %w", id, err)
	}
	return s.onLoop(ctx, func() error {
		s.ctrl.ApplyDeleteRelation(id)
		return nil
	})
}

// CreateRelationType adds a vocabulary entry when the provider supports it.
func (s *Session) CreateRelationType(ctx context.Context, t graph.RelationType) (graph.RelationType, error) {
	ed, ok := s.provider.(provider.VocabularyEditor)
	if !ok {
		return graph.RelationType{}, fmt.Errorf("create relation type: %w", expansion.ErrUnsupported)
	}
	stored, err := call(ctx, s, func(ctx context.Context) (graph.RelationType, error) {
		return ed.AddRelationType(ctx, t)
	})
	if err != nil {
		return graph.RelationType{}, fmt.Errorf("create relation type: %w", err)
	}
	return stored, s.onLoop(ctx, func() error {
		s.ctrl.ApplyRelationType(stored)
		return nil
	})
}

// UpdateRelationType edits a vocabulary entry; the visible inferred edges are
// recomputed against the new vocabulary.
func (s *Session) UpdateRelationType(ctx context.Context, t graph.RelationType) (graph.RelationType, error) {
	ed, ok := s.provider.(provider.VocabularyEditor)
	if !ok {
		return graph.RelationType{}, fmt.Errorf("update relation type: %w", expansion.ErrUnsupported)
	}
	stored, err := call(ctx, s, func(ctx context.Context) (graph.RelationType, error) {
		return ed.UpdateRelationType(ctx, t)
	})
	if err != nil {
		return graph.RelationType{}, fmt.Errorf("update relation type %d: %w", t.ID, err)
	}
	return stored, s.onLoop(ctx, func() error {
		s.ctrl.ApplyRelationType(stored)
		return nil
	})
}

// ── Configuration ───────────────────────────────────────────────────────────

// Reconfigure applies new layout, viewport and render settings in place.
func (s *Session) Reconfigure(ctx context.Context, cfg *config.Config) error {
	return s.onLoop(ctx, func() error {
		if err := s.rend.Reconfigure(cfg.Render); err != nil {
			return err
		}
		rc := cfg.Render
		s.renderConf.Store(&rc)
		s.viewport = cfg.Viewport
		s.sim.Reconfigure(cfg.Layout, cfg.Viewport)
		s.publish()
		s.log.Info("session reconfigured")
		return nil
	})
}
