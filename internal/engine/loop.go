package engine

import (
	"context"
	"time"

	"github.com/gyaneshwarpardhi/kgexplorer/internal/graph"
	"github.com/gyaneshwarpardhi/kgexplorer/internal/metrics"
)

// drive submits a tick whenever the simulation is active and no tick is
// already queued, so ticks never pile up behind slow work.
func (s *Session) drive(ctx context.Context) {
	interval := time.Duration(s.conf.TickIntervalMs) * time.Millisecond
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			metrics.QueueUtilization.Set(s.QueueUtilization())
			if !s.active.Load() || !s.tickQueued.CompareAndSwap(false, true) {
				continue
			}
			if !s.loop.Submit(s.tick) {
				s.tickQueued.Store(false)
			}
		}
	}
}

func (s *Session) tick(context.Context) {
	s.tickQueued.Store(false)
	s.sim.Tick()
	s.publish()
}

// actions applies dispatched pointer gestures on the loop.
type actions struct{ s *Session }

func (a actions) Select(id graph.NodeID) { a.s.ctrl.Select(id) }

func (a actions) ClearSelection() { a.s.ctrl.ClearSelection() }

func (a actions) Expand(id graph.NodeID) { a.s.expandAsync(id) }

func (a actions) Unpin(id graph.NodeID) {
	if n := a.s.store.Node(id); n != nil {
		a.s.sim.Unpin(n)
	}
}

func (a actions) DragStart(id graph.NodeID, x, y float64) {
	if n := a.s.store.Node(id); n != nil {
		a.s.sim.DragStart(n, x, y)
	}
}

func (a actions) Drag(id graph.NodeID, x, y float64) {
	if n := a.s.store.Node(id); n != nil {
		a.s.sim.DragMove(n, x, y)
	}
}

func (a actions) DragEnd(graph.NodeID) { a.s.sim.DragEnd() }
