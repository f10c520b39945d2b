package workflow

import "fmt"

// Boundary instance ids. Start carries the workflow parameters as output
// ports; Exit collects the workflow result from its input ports.
const (
	StartID = "Start"
	ExitID  = "Exit"
)

// Graph is the aggregate workflow description handed to the compiler. It is
// treated as immutable; all traversal helpers preserve declaration order so
// compilation is deterministic.
type Graph struct {
	// Name is the workflow name, used to derive the generated function name.
	Name string `json:"name"`
	// Types maps node type name to its definition.
	Types map[string]*NodeType `json:"types"`
	// Instances lists node instances in declaration order.
	Instances []*NodeInstance `json:"instances"`
	// Connections lists connections in declaration order.
	Connections []Connection `json:"connections"`
	// StartPorts are the workflow parameters, exposed as Start outputs.
	StartPorts []PortDefinition `json:"startPorts"`
	// ExitPorts are the workflow results, collected as Exit inputs.
	ExitPorts []PortDefinition `json:"exitPorts"`
}

// Instance returns the instance with the given id, or nil. Boundary ids do
// not resolve to instances; use IsBoundary for those.
func (g *Graph) Instance(id string) *NodeInstance {
	for _, inst := range g.Instances {
		if inst.ID == id {
			return inst
		}
	}
	return nil
}

// TypeOf returns the node type of an instance.
func (g *Graph) TypeOf(inst *NodeInstance) *NodeType {
	return g.Types[inst.Type]
}

// IsBoundary reports whether the id names a virtual boundary instance.
func IsBoundary(id string) bool {
	return id == StartID || id == ExitID
}

// TopLevel returns the instances that are not nested in any scope, in
// declaration order.
func (g *Graph) TopLevel() []*NodeInstance {
	var out []*NodeInstance
	for _, inst := range g.Instances {
		if inst.Parent == nil {
			out = append(out, inst)
		}
	}
	return out
}

// ScopeChildren returns the instances nested in the given owner's scope, in
// declaration order.
func (g *Graph) ScopeChildren(ownerID, scope string) []*NodeInstance {
	var out []*NodeInstance
	for _, inst := range g.Instances {
		if inst.Parent != nil && inst.Parent.OwnerID == ownerID && inst.Parent.Scope == scope {
			out = append(out, inst)
		}
	}
	return out
}

// ScopeNames returns the scope names declared by the instance's type, in
// port declaration order without duplicates.
func (g *Graph) ScopeNames(inst *NodeInstance) []string {
	t := g.TypeOf(inst)
	if t == nil {
		return nil
	}
	var names []string
	seen := map[string]bool{}
	for _, p := range append(append([]PortDefinition{}, t.Outputs...), t.Inputs...) {
		if p.Scope != "" && !seen[p.Scope] {
			seen[p.Scope] = true
			names = append(names, p.Scope)
		}
	}
	return names
}

// ConnectionsInto returns the connections whose destination is the given
// instance id, in declaration order.
func (g *Graph) ConnectionsInto(id string) []Connection {
	var out []Connection
	for _, c := range g.Connections {
		if c.To.Node == id {
			out = append(out, c)
		}
	}
	return out
}

// ConnectionsFrom returns the connections whose source is the given instance
// id, in declaration order.
func (g *Graph) ConnectionsFrom(id string) []Connection {
	var out []Connection
	for _, c := range g.Connections {
		if c.From.Node == id {
			out = append(out, c)
		}
	}
	return out
}

// IsControl reports whether the connection is a control edge: STEP ports on
// both ends.
func (g *Graph) IsControl(c Connection) bool {
	from, okFrom := g.portOf(c.From, false)
	to, okTo := g.portOf(c.To, true)
	return okFrom && okTo && from.IsStep() && to.IsStep()
}

// portOf resolves an endpoint to its port definition. Input selects the
// destination (input) side of the owning node.
func (g *Graph) portOf(e Endpoint, input bool) (PortDefinition, bool) {
	switch e.Node {
	case StartID:
		return findPort(g.StartPorts, e.Port, e.Scope)
	case ExitID:
		return findPort(g.ExitPorts, e.Port, e.Scope)
	}
	inst := g.Instance(e.Node)
	if inst == nil {
		return PortDefinition{}, false
	}
	t := g.TypeOf(inst)
	if t == nil {
		return PortDefinition{}, false
	}
	if input {
		return findPort(t.Inputs, e.Port, e.Scope)
	}
	return findPort(t.Outputs, e.Port, e.Scope)
}

// PortOf resolves an endpoint to its declared port definition.
func (g *Graph) PortOf(e Endpoint, input bool) (PortDefinition, bool) {
	return g.portOf(e, input)
}

// declaresScope reports whether the type has at least one port in the named
// scope.
func declaresScope(t *NodeType, scope string) bool {
	for _, p := range t.Inputs {
		if p.Scope == scope {
			return true
		}
	}
	for _, p := range t.Outputs {
		if p.Scope == scope {
			return true
		}
	}
	return false
}

func findPort(ports []PortDefinition, name, scope string) (PortDefinition, bool) {
	for _, p := range ports {
		if p.Name == name && p.Scope == scope {
			return p, true
		}
	}
	// A scope-unqualified endpoint may still address a scoped port when no
	// ordinary port shares the name.
	if scope == "" {
		for _, p := range ports {
			if p.Name == name {
				return p, true
			}
		}
	}
	return PortDefinition{}, false
}

// Resolve verifies the structural invariant that every connection endpoint
// resolves to a declared port on an existing instance or boundary node, and
// that every scope-qualified endpoint resolves to a port whose scope matches.
// It returns one issue per violation; an empty slice means the graph is
// structurally resolvable.
func (g *Graph) Resolve() []Issue {
	var issues []Issue
	for _, inst := range g.Instances {
		if g.TypeOf(inst) == nil {
			issues = append(issues, Issue{
				Code:    IssueUnknownType,
				Node:    inst.ID,
				Message: fmt.Sprintf("instance %q references unknown node type %q", inst.ID, inst.Type),
			})
		}
		if inst.Parent != nil {
			owner := g.Instance(inst.Parent.OwnerID)
			if owner == nil {
				issues = append(issues, Issue{
					Code:    IssueUnresolvedEndpoint,
					Node:    inst.ID,
					Message: fmt.Sprintf("instance %q nested in unknown owner %q", inst.ID, inst.Parent.OwnerID),
				})
			} else if t := g.TypeOf(owner); t != nil && !declaresScope(t, inst.Parent.Scope) {
				// Planning only visits children of declared scopes; an
				// undeclared one would silently drop the instance.
				issues = append(issues, Issue{
					Code:    IssueUnresolvedEndpoint,
					Node:    inst.ID,
					Message: fmt.Sprintf("instance %q nested in scope %q, which type %q does not declare", inst.ID, inst.Parent.Scope, t.Name),
				})
			}
		}
	}
	for _, c := range g.Connections {
		if _, ok := g.portOf(c.From, false); !ok {
			issues = append(issues, Issue{
				Code:       IssueUnresolvedEndpoint,
				Node:       c.From.Node,
				Connection: &c,
				Message:    fmt.Sprintf("connection source %s.%s does not resolve to a declared port", c.From.Node, c.From.Port),
			})
		}
		if _, ok := g.portOf(c.To, true); !ok {
			issues = append(issues, Issue{
				Code:       IssueUnresolvedEndpoint,
				Node:       c.To.Node,
				Connection: &c,
				Message:    fmt.Sprintf("connection destination %s.%s does not resolve to a declared port", c.To.Node, c.To.Port),
			})
		}
	}
	return issues
}

// IssueCode classifies a structural problem found in a graph.
type IssueCode string

const (
	// IssueUnknownType marks an instance whose node type is not declared.
	IssueUnknownType IssueCode = "UNKNOWN_TYPE"
	// IssueUnresolvedEndpoint marks a connection endpoint or parent reference
	// that does not resolve.
	IssueUnresolvedEndpoint IssueCode = "UNRESOLVED_ENDPOINT"
	// IssueCyclicDependency marks a data-dependency cycle outside scope
	// boundaries.
	IssueCyclicDependency IssueCode = "CYCLIC_DEPENDENCY"
	// IssueConflictingBranches marks a node whose predecessors lie in
	// mutually exclusive branches, for which no correct linear order exists.
	IssueConflictingBranches IssueCode = "CONFLICTING_BRANCHES"
)

// Issue is a single structural error with node/connection context.
type Issue struct {
	Code       IssueCode   `json:"code"`
	Node       string      `json:"node,omitempty"`
	Connection *Connection `json:"connection,omitempty"`
	Message    string      `json:"message"`
}

// Error implements the error interface.
func (i Issue) Error() string {
	return fmt.Sprintf("[%s] %s", i.Code, i.Message)
}
