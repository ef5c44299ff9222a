// Package event defines the host-independent pointer input model.
package event

import (
	"fmt"
	"time"

	"github.com/gyaneshwarpardhi/kgexplorer/internal/graph"
)

// Kind classifies a pointer event.
type Kind string

const (
	Click       Kind = "click"
	DoubleClick Kind = "dblclick"
	DragStart   Kind = "dragstart"
	Drag        Kind = "drag"
	DragEnd     Kind = "dragend"
)

// Pointer is one pointer gesture in drawing-surface coordinates.
// Node, when set, names the target explicitly and skips hit testing.
type Pointer struct {
	Kind       Kind         `json:"kind"`
	X          float64      `json:"x"`
	Y          float64      `json:"y"`
	Node       graph.NodeID `json:"node,omitempty"`
	ReceivedAt time.Time    `json:"-"`
}

// Validate rejects unknown kinds.
func (p Pointer) Validate() error {
	switch p.Kind {
	case Click, DoubleClick, DragStart, Drag, DragEnd:
		return nil
	case "":
		return fmt.Errorf("pointer event: kind is required")
	default:
		return fmt.Errorf("pointer event: unknown kind %q", p.Kind)
	}
}
