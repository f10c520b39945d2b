package workflow

import (
	"encoding/json"
	"fmt"
)

// Decode parses a graph from its JSON wire format and checks the basic
// shape: a name, at least the boundary port lists, and unique instance ids.
// Structural resolution of endpoints is a separate step (Resolve) so
// callers can collect every issue at once.
func Decode(data []byte) (*Graph, error) {
	var g Graph
	if err := json.Unmarshal(data, &g); err != nil {
		return nil, fmt.Errorf("workflow: decode graph: %w", err)
	}
	if g.Name == "" {
		return nil, fmt.Errorf("workflow: graph name is required")
	}
	seen := make(map[string]bool, len(g.Instances))
	for _, inst := range g.Instances {
		if inst.ID == "" {
			return nil, fmt.Errorf("workflow: instance with empty id")
		}
		if IsBoundary(inst.ID) {
			return nil, fmt.Errorf("workflow: instance id %q collides with a boundary node", inst.ID)
		}
		if seen[inst.ID] {
			return nil, fmt.Errorf("workflow: duplicate instance id %q", inst.ID)
		}
		seen[inst.ID] = true
	}
	for name, t := range g.Types {
		if t == nil {
			return nil, fmt.Errorf("workflow: node type %q has no definition", name)
		}
		if t.Name == "" {
			t.Name = name
		} else if t.Name != name {
			return nil, fmt.Errorf("workflow: node type key %q does not match declared name %q", name, t.Name)
		}
	}
	return &g, nil
}

// Encode renders the graph in its JSON wire format.
func Encode(g *Graph) ([]byte, error) {
	if g == nil {
		return nil, fmt.Errorf("workflow: graph is nil")
	}
	data, err := json.MarshalIndent(g, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("workflow: encode graph: %w", err)
	}
	return data, nil
}
