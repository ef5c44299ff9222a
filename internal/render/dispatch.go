package render

import (
	"github.com/gyaneshwarpardhi/kgexplorer/internal/event"
	"github.com/gyaneshwarpardhi/kgexplorer/internal/graph"
)

// Actions receives the outcome of pointer dispatch.
type Actions interface {
	Select(id graph.NodeID)
	ClearSelection()
	Expand(id graph.NodeID)
	Unpin(id graph.NodeID)
	DragStart(id graph.NodeID, x, y float64)
	Drag(id graph.NodeID, x, y float64)
	DragEnd(id graph.NodeID)
}

// Dispatcher maps pointer events on a frame to actions. It tracks the node
// captured by an ongoing drag, so drag moves follow it off its glyph.
type Dispatcher struct {
	actions  Actions
	dragging graph.NodeID
}

// NewDispatcher creates a Dispatcher delivering to a.
func NewDispatcher(a Actions) *Dispatcher { return &Dispatcher{actions: a} }

// Dragging returns the captured node, if any.
func (d *Dispatcher) Dragging() (graph.NodeID, bool) { return d.dragging, d.dragging != 0 }

// Dispatch applies ev against f and returns the node it acted on.
func (d *Dispatcher) Dispatch(f *Frame, ev event.Pointer) (graph.NodeID, bool) {
	switch ev.Kind {
	case event.Drag:
		if d.dragging == 0 {
			return 0, false
		}
		d.actions.Drag(d.dragging, ev.X, ev.Y)
		return d.dragging, true
	case event.DragEnd:
		id := d.dragging
		if id == 0 {
			return 0, false
		}
		d.dragging = 0
		d.actions.DragEnd(id)
		return id, true
	}

	id, hit := d.target(f, ev)
	switch ev.Kind {
	case event.Click:
		if !hit {
			d.actions.ClearSelection()
			return 0, false
		}
		d.actions.Select(id)
		d.actions.Expand(id)
	case event.DoubleClick:
		if !hit {
			return 0, false
		}
		d.actions.Unpin(id)
	case event.DragStart:
		if !hit {
			return 0, false
		}
		d.dragging = id
		d.actions.DragStart(id, ev.X, ev.Y)
	default:
		return 0, false
	}
	return id, true
}

func (d *Dispatcher) target(f *Frame, ev event.Pointer) (graph.NodeID, bool) {
	if ev.Node != 0 {
		if f == nil {
			return 0, false
		}
		_, ok := f.Glyph(ev.Node)
		return ev.Node, ok
	}
	return f.HitTest(ev.X, ev.Y)
}
