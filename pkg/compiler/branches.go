package compiler

import (
	"fmt"

	"github.com/synergenius-fw/flow-weaver-sub000/pkg/workflow"
)

// failurePortName is the STEP output that carries a node's failure branch.
// When a node type has two or more STEP outputs and none is named this way,
// the second STEP output is treated as the failure branch.
const failurePortName = "onFailure"

// failurePort returns the failure-branch STEP output of a node type, or ""
// when the type has no branching outputs.
func failurePort(t *workflow.NodeType) string {
	steps := t.StepOutputs()
	if len(steps) < 2 {
		return ""
	}
	for _, p := range steps {
		if p.Name == failurePortName {
			return p.Name
		}
	}
	return steps[1].Name
}

// failureHandled reports whether a failure-port connection exists for the
// instance, making a thrown node error locally recoverable.
func (u *unit) failureHandled(p *instPlan) bool {
	fp := failurePort(p.typ)
	if fp == "" {
		return false
	}
	for _, c := range u.g.ConnectionsFrom(p.inst.ID) {
		if c.From.Port == fp && c.From.Scope == "" {
			return true
		}
	}
	return false
}

// container is a lexical emission region: the unit root (nil anchor) or one
// branch block of a branching anchor.
type container struct {
	anchor *instPlan
	port   string
}

var rootContainer = container{}

// resolvePromotion decides which members leave their nominal branch block.
// An instance is promoted when it has more than one controller (conjunctive
// triggers own no single block) or when at least one data predecessor lies
// outside its nominal block's reachable instance set, the classic
// fan-out/fan-in. Promoted instances are emitted at the unit root, after
// all of their predecessors, and their invocation stays conditioned on a
// runtime guard so the original control semantics survive the relocation.
// The pass also classifies execution-index bindings: definite for instances
// no branch can skip, conditional for everything else (including pull
// nodes, which may never be demanded).
func (u *unit) resolvePromotion() {
	for _, p := range u.order {
		if len(p.controllers) > 1 {
			p.promoted = true
		} else if len(p.controllers) == 1 {
			ce := p.controllers[0]
			if src := u.member(ce.node); src != nil && src.branching() {
				block := branchCond{anchor: ce.node, port: ce.port}
				for _, d := range p.dataPreds {
					dp := u.member(d)
					if dp == nil {
						continue
					}
					inside := false
					for _, c := range dp.conds {
						if c == block {
							inside = true
							break
						}
					}
					if !inside {
						p.promoted = true
						break
					}
				}
			}
		}
	}
	// A promoted producer is emitted at the unit root, so its readers must
	// leave their nominal block with it or the contracted container order
	// becomes cyclic. Chains of promoted producers cascade, hence the
	// fixpoint.
	for changed := true; changed; {
		changed = false
		for _, p := range u.order {
			if p.promoted {
				continue
			}
			for _, d := range p.dataPreds {
				if dp := u.member(d); dp != nil && dp.promoted {
					p.promoted = true
					changed = true
					break
				}
			}
		}
	}
	for _, p := range u.order {
		p.definite = len(p.conds) == 0 && !p.pull
	}
}

// containerOf returns the lexical region an instance is emitted in.
func (u *unit) containerOf(p *instPlan) container {
	if p.promoted {
		return rootContainer
	}
	if len(p.controllers) == 1 {
		ce := p.controllers[0]
		if src := u.member(ce.node); src != nil {
			if src.branching() {
				return container{anchor: src, port: ce.port}
			}
			return u.containerOf(src)
		}
	}
	if p.inlined && len(p.controllers) == 0 {
		if ownerPlan := u.member(p.owner); ownerPlan != nil {
			return u.containerOf(ownerPlan)
		}
	}
	return rootContainer
}

// containerConds returns the guard conditions implied by being emitted
// inside the container; a statement's residual guard is its own conds minus
// these.
func (u *unit) containerConds(c container) []branchCond {
	if c.anchor == nil {
		return nil
	}
	conds := append([]branchCond{}, c.anchor.conds...)
	return dedupeConds(append(conds, branchCond{anchor: c.anchor.inst.ID, port: c.port}))
}

// topItemIn resolves the direct item of container c that carries the given
// instance: the instance itself when it is emitted directly in c, otherwise
// the ancestor anchor whose subtree contains it. Returns nil when the
// instance is not inside c's subtree.
func (u *unit) topItemIn(c container, p *instPlan) *instPlan {
	cur := p
	for {
		pc := u.containerOf(cur)
		if pc == c {
			return cur
		}
		if pc.anchor == nil {
			return nil
		}
		cur = pc.anchor
	}
}

// orderedItems returns the direct items of a container in emission order:
// a topological order over the container's items where every branch block
// is contracted into its anchor, tie-broken by declaration order. A cycle
// here cannot come from user input (cross-block reads are promoted to the
// root) and is reported as a compiler defect.
func (u *unit) orderedItems(c container) ([]*instPlan, error) {
	var items []*instPlan
	for _, p := range u.order {
		if u.containerOf(p) == c {
			items = append(items, p)
		}
	}
	pending := make(map[string]int, len(items))
	succs := make(map[string][]string, len(items))
	for _, p := range items {
		pending[p.inst.ID] = 0
	}
	addEdge := func(from, to *instPlan) {
		if from == nil || from == to {
			return
		}
		for _, s := range succs[from.inst.ID] {
			if s == to.inst.ID {
				return
			}
		}
		succs[from.inst.ID] = append(succs[from.inst.ID], to.inst.ID)
		pending[to.inst.ID]++
	}
	for _, m := range u.members {
		top := u.topItemIn(c, m)
		if top == nil {
			continue
		}
		for _, ce := range m.controllers {
			if src := u.member(ce.node); src != nil {
				addEdge(u.topItemIn(c, src), top)
			}
		}
		for _, d := range m.dataPreds {
			if src := u.member(d); src != nil {
				addEdge(u.topItemIn(c, src), top)
			}
		}
	}

	var out []*instPlan
	placed := map[string]bool{}
	for len(out) < len(items) {
		next := -1
		for i, p := range items {
			if !placed[p.inst.ID] && pending[p.inst.ID] == 0 {
				next = i
				break
			}
		}
		if next < 0 {
			return nil, defect("no emission order satisfies the dependencies of container %v in unit %q", c, u.scope)
		}
		p := items[next]
		placed[p.inst.ID] = true
		out = append(out, p)
		for _, s := range succs[p.inst.ID] {
			pending[s]--
		}
	}
	return out, nil
}

// checkConflicts rejects members whose combined predecessor conditions span
// mutually exclusive branches: no correct linear order can exist for them,
// so this is a structural error rather than a guess.
func (u *unit) checkConflicts(issues *[]workflow.Issue) {
	for _, p := range u.members {
		combined := append([]branchCond{}, p.conds...)
		for _, d := range p.dataPreds {
			if src := u.member(d); src != nil {
				combined = append(combined, src.conds...)
			}
		}
		if conflict := findConflict(dedupeConds(combined)); conflict != "" {
			if findConflict(p.conds) != "" {
				continue // already reported against the controller chain
			}
			*issues = append(*issues, workflow.Issue{
				Code:    workflow.IssueConflictingBranches,
				Node:    p.inst.ID,
				Message: fmt.Sprintf("instance %q depends on mutually exclusive branches of %q", p.inst.ID, conflict),
			})
		}
	}
}

// cancellees returns every member governed by the given branch condition, in
// declaration order. When the branch is not taken each of them receives
// exactly one CANCELLED status with a freshly allocated execution index.
func (u *unit) cancellees(anchor, port string) []*instPlan {
	cond := branchCond{anchor: anchor, port: port}
	var out []*instPlan
	for _, p := range u.members {
		for _, c := range p.conds {
			if c == cond {
				out = append(out, p)
				break
			}
		}
	}
	return out
}

// remainingAfter returns the members emitted strictly after the given one,
// in emission order. A thrown, unhandled node error aborts this remainder.
func (u *unit) remainingAfter(p *instPlan) []*instPlan {
	var out []*instPlan
	seen := false
	for _, q := range u.order {
		if q == p {
			seen = true
			continue
		}
		if seen {
			out = append(out, q)
		}
	}
	return out
}
