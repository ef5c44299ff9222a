package layout

import (
	"math"

	"github.com/gyaneshwarpardhi/kgexplorer/internal/graph"
)

var phyllotaxis = math.Pi * (3 - math.Sqrt(5))

// seed assigns starting positions to unplaced nodes. A node next to a placed
// neighbour starts close to it; the rest go on a spiral around the centre.
func (s *Simulation) seed() {
	byID := make(map[graph.NodeID]*graph.Node, len(s.nodes))
	for _, n := range s.nodes {
		byID[n.ID] = n
	}
	adj := make(map[graph.NodeID][]graph.NodeID)
	for _, e := range s.edges {
		adj[e.Source] = append(adj[e.Source], e.Target)
		adj[e.Target] = append(adj[e.Target], e.Source)
	}
	for _, n := range s.nodes {
		if n.Placed {
			continue
		}
		if p := placedNeighbour(n, adj, byID); p != nil {
			angle := s.rng.Float64() * 2 * math.Pi
			r := s.cfg.CollideRadius * (1 + s.rng.Float64())
			n.X = p.X + r*math.Cos(angle)
			n.Y = p.Y + r*math.Sin(angle)
		} else {
			r := 10 * math.Sqrt(0.5+float64(s.spiral))
			a := float64(s.spiral) * phyllotaxis
			n.X = s.cx + r*math.Cos(a)
			n.Y = s.cy + r*math.Sin(a)
			s.spiral++
		}
		n.VX, n.VY = 0, 0
		n.Placed = true
	}
}

func placedNeighbour(n *graph.Node, adj map[graph.NodeID][]graph.NodeID, byID map[graph.NodeID]*graph.Node) *graph.Node {
	for _, id := range adj[n.ID] {
		if p := byID[id]; p != nil && p != n && p.Placed {
			return p
		}
	}
	return nil
}
