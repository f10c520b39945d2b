package compiler

import (
	"fmt"
	"sort"

	"github.com/synergenius-fw/flow-weaver-sub000/pkg/workflow"
)

// controlEdge is one control-flow predecessor of an instance: the source
// instance and the STEP output port the edge leaves through.
type controlEdge struct {
	node string
	port string
}

// branchCond is one guard condition: the branch flag of anchor's STEP output
// port must be true for the guarded instance to execute.
type branchCond struct {
	anchor string
	port   string
}

// instPlan is the per-instance planning state for one compilation unit.
type instPlan struct {
	inst      *workflow.NodeInstance
	typ       *workflow.NodeType
	declIndex int

	// controllers are the control-edge predecessors within the unit. Empty
	// means the instance is triggered by the unit entry (workflow Start or
	// scope activation).
	controllers []controlEdge

	// dataPreds are the ids of unit members supplying connected data ports,
	// in first-reference order. Sources outside the unit (Start, the scope
	// owner's boundary, or lexically captured outer instances) are not
	// dependencies for ordering purposes.
	dataPreds []string

	// conds is the guard condition set accumulated along the controller
	// chain, deduplicated, in discovery order.
	conds []branchCond

	// promoted instances are emitted at the unit root, past their nominal
	// branch block, with an explicit runtime guard.
	promoted bool

	// definite instances always execute when the unit runs: their
	// execution-index binding is immutable. Conditional instances get
	// nilable bindings and defined/undefined checks at every read.
	definite bool

	// pull instances are never placed in the eager order; an executor is
	// registered at the position the call would have occupied.
	pull bool

	// awaited marks calls that must be awaited: async node types and nodes
	// whose scope closures contain awaited calls.
	awaited bool

	// closures holds the recursively planned unit per per-port scope name.
	closures map[string]*unit

	// inlined marks node-level scope children that were folded into the
	// owning instance's unit.
	inlined bool

	// owner is the owning instance id for inlined node-level children.
	owner string
}

// unit is one self-contained compilation region: the top-level workflow or
// the children of one per-port scope.
type unit struct {
	g      *workflow.Graph
	parent *unit

	// owner and scope identify the per-port scope this unit implements;
	// owner is nil for the top-level unit.
	owner *workflow.NodeInstance
	scope string

	members []*instPlan
	byID    map[string]*instPlan

	// order is the deterministic emission order over all members, honoring
	// control and data precedence with declaration order as the tie-break.
	order []*instPlan

	// async is true when any member call (or nested closure) is awaited, in
	// which case the unit's generated function is async.
	async bool
}

// member returns the plan for an id, or nil when the id is not part of the
// unit (boundary nodes and lexically captured outer instances).
func (u *unit) member(id string) *instPlan {
	return u.byID[id]
}

// lookup resolves an id against this unit and its lexical ancestors.
func (u *unit) lookup(id string) *instPlan {
	for cur := u; cur != nil; cur = cur.parent {
		if p := cur.byID[id]; p != nil {
			return p
		}
	}
	return nil
}

// buildUnit assembles the planning unit for a set of root instances,
// folding node-level scope children into the unit and recursing into
// per-port scopes. issues collects structural errors instead of aborting on
// the first one.
func buildUnit(g *workflow.Graph, parent *unit, owner *workflow.NodeInstance, scope string, roots []*workflow.NodeInstance, issues *[]workflow.Issue) (*unit, error) {
	u := &unit{
		g:      g,
		parent: parent,
		owner:  owner,
		scope:  scope,
		byID:   make(map[string]*instPlan),
	}

	var add func(inst *workflow.NodeInstance, inlined bool, ownerID string) error
	add = func(inst *workflow.NodeInstance, inlined bool, ownerID string) error {
		t := g.TypeOf(inst)
		if t == nil {
			// Already reported by Resolve; skip so planning can continue.
			return nil
		}
		p := &instPlan{
			inst:      inst,
			typ:       t,
			declIndex: len(u.members),
			pull:      t.IsPull(),
			inlined:   inlined,
			owner:     ownerID,
			closures:  make(map[string]*unit),
		}
		u.members = append(u.members, p)
		u.byID[inst.ID] = p

		for _, s := range g.ScopeNames(inst) {
			children := g.ScopeChildren(inst.ID, s)
			if perPortScope(t, s) {
				child, err := buildUnit(g, u, inst, s, children, issues)
				if err != nil {
					return err
				}
				p.closures[s] = child
			} else {
				// Node-level scope: children share the parent's ambient
				// state, so they are planned into this unit.
				for _, c := range children {
					if err := add(c, true, inst.ID); err != nil {
						return err
					}
				}
			}
		}
		return nil
	}

	for _, inst := range roots {
		if err := add(inst, false, ""); err != nil {
			return nil, err
		}
	}

	u.collectEdges()
	if err := u.resolveConds(issues); err != nil {
		return nil, err
	}
	if err := u.topoSort(issues); err != nil {
		return nil, err
	}
	u.resolvePromotion()
	u.checkConflicts(issues)
	return u, nil
}

// perPortScope reports the scope flavor: a scope with at least one scoped
// output port on the owner receives values from parent to children per
// activation and compiles to a callback closure; a scope with only scoped
// input ports groups children under the parent without a callback boundary.
func perPortScope(t *workflow.NodeType, scope string) bool {
	outs, _ := t.ScopedPorts(scope)
	return len(outs) > 0
}

// collectEdges fills controllers and dataPreds for every member from the
// graph's connection list.
func (u *unit) collectEdges() {
	for _, p := range u.members {
		for _, c := range u.g.ConnectionsInto(p.inst.ID) {
			if c.To.Scope != "" {
				// Scoped destination ports belong to the closure boundary,
				// not to the eager call.
				continue
			}
			src := u.member(c.From.Node)
			if u.g.IsControl(c) {
				if src != nil {
					p.controllers = append(p.controllers, controlEdge{node: c.From.Node, port: c.From.Port})
				}
				continue
			}
			if src == nil || src == p {
				continue
			}
			dup := false
			for _, d := range p.dataPreds {
				if d == src.inst.ID {
					dup = true
					break
				}
			}
			if !dup {
				p.dataPreds = append(p.dataPreds, src.inst.ID)
			}
		}
		// Inlined node-level children execute with their owner; give them an
		// ordering edge so they are never emitted before it.
		if p.inlined && len(p.controllers) == 0 {
			if ownerPlan := u.member(p.owner); ownerPlan != nil {
				p.dataPreds = append(p.dataPreds, ownerPlan.inst.ID)
			}
		}
	}
}

// branching reports whether the instance anchors success/failure blocks:
// two or more ordinary STEP outputs.
func (p *instPlan) branching() bool {
	return len(p.typ.StepOutputs()) >= 2
}

// resolveConds computes the guard condition set of every member by walking
// controller chains. A contradiction inside one chain (both branches of the
// same anchor) is a structural error.
func (u *unit) resolveConds(issues *[]workflow.Issue) error {
	state := map[string]int{} // 0 unvisited, 1 in progress, 2 done
	var visit func(p *instPlan) error
	visit = func(p *instPlan) error {
		switch state[p.inst.ID] {
		case 2:
			return nil
		case 1:
			// Control cycle; reported by topoSort with full context.
			return nil
		}
		state[p.inst.ID] = 1
		var conds []branchCond
		for _, ce := range p.controllers {
			src := u.member(ce.node)
			if src == nil {
				continue
			}
			if err := visit(src); err != nil {
				return err
			}
			conds = append(conds, src.conds...)
			if src.branching() {
				conds = append(conds, branchCond{anchor: ce.node, port: ce.port})
			}
		}
		if p.inlined && len(p.controllers) == 0 {
			if ownerPlan := u.member(p.owner); ownerPlan != nil {
				if err := visit(ownerPlan); err != nil {
					return err
				}
				conds = append(conds, ownerPlan.conds...)
			}
		}
		p.conds = dedupeConds(conds)
		if conflict := findConflict(p.conds); conflict != "" {
			*issues = append(*issues, workflow.Issue{
				Code:    workflow.IssueConflictingBranches,
				Node:    p.inst.ID,
				Message: fmt.Sprintf("instance %q is controlled by both branches of %q", p.inst.ID, conflict),
			})
		}
		state[p.inst.ID] = 2
		return nil
	}
	for _, p := range u.members {
		if err := visit(p); err != nil {
			return err
		}
	}
	return nil
}

func dedupeConds(conds []branchCond) []branchCond {
	var out []branchCond
	for _, c := range conds {
		dup := false
		for _, o := range out {
			if o == c {
				dup = true
				break
			}
		}
		if !dup {
			out = append(out, c)
		}
	}
	return out
}

// findConflict returns the anchor id that appears with two different branch
// ports, or "" when the set is consistent.
func findConflict(conds []branchCond) string {
	ports := map[string]string{}
	for _, c := range conds {
		if prev, ok := ports[c.anchor]; ok && prev != c.port {
			return c.anchor
		}
		ports[c.anchor] = c.port
	}
	return ""
}

// topoSort linearizes the members honoring control and data precedence,
// using declaration order as the tie-break so compilation is deterministic.
// A residue after exhaustion is a data cycle with no intervening scope
// boundary, which the planner refuses to compile.
func (u *unit) topoSort(issues *[]workflow.Issue) error {
	pending := make(map[string]int, len(u.members))
	succs := make(map[string][]string, len(u.members))
	for _, p := range u.members {
		count := 0
		for _, ce := range p.controllers {
			if u.member(ce.node) != nil {
				count++
				succs[ce.node] = append(succs[ce.node], p.inst.ID)
			}
		}
		for _, d := range p.dataPreds {
			count++
			succs[d] = append(succs[d], p.inst.ID)
		}
		pending[p.inst.ID] = count
	}

	placed := map[string]bool{}
	for len(u.order) < len(u.members) {
		next := -1
		for i, p := range u.members {
			if !placed[p.inst.ID] && pending[p.inst.ID] == 0 {
				next = i
				break
			}
		}
		if next < 0 {
			var cyclic []string
			for _, p := range u.members {
				if !placed[p.inst.ID] {
					cyclic = append(cyclic, p.inst.ID)
				}
			}
			sort.Strings(cyclic)
			*issues = append(*issues, workflow.Issue{
				Code:    workflow.IssueCyclicDependency,
				Node:    cyclic[0],
				Message: fmt.Sprintf("data dependency cycle with no intervening scope boundary: %v", cyclic),
			})
			return nil
		}
		p := u.members[next]
		placed[p.inst.ID] = true
		u.order = append(u.order, p)
		for _, s := range succs[p.inst.ID] {
			pending[s]--
		}
	}
	return nil
}
