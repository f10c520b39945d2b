package compiler

import "github.com/synergenius-fw/flow-weaver-sub000/pkg/workflow"

// resolveAsync propagates the await requirement outward: a call is awaited
// when its node type is async or when any of its scope closures contains an
// awaited call; a unit is async when any of its members is awaited, or when
// any member reads a value from an async pull producer in an enclosing unit
// (the read itself awaits the demand). The propagation runs post-order over
// the scope tree so an async call at any depth makes every enclosing
// closure, and finally the top-level generated function, async.
func (u *unit) resolveAsync() {
	for _, p := range u.members {
		for _, s := range u.g.ScopeNames(p.inst) {
			if child, ok := p.closures[s]; ok {
				child.resolveAsync()
			}
		}
		p.awaited = p.typ.IsAsync
		for _, child := range p.closures {
			if child.async {
				p.awaited = true
			}
		}
		if p.awaited {
			u.async = true
		}
	}
	if !u.async && u.readsAsyncPull() {
		u.async = true
	}
}

// readsAsyncPull reports whether any connection consumed inside this unit
// (a member's input or the scope owner's exit-side boundary) originates at
// an async pull producer resolved through the lexical chain.
func (u *unit) readsAsyncPull() bool {
	isAsyncPull := func(id string) bool {
		src := u.lookup(id)
		return src != nil && src.pull && src.awaited
	}
	for _, p := range u.members {
		for _, c := range u.g.ConnectionsInto(p.inst.ID) {
			if c.To.Scope != "" || u.g.IsControl(c) {
				continue
			}
			if isAsyncPull(c.From.Node) {
				return true
			}
		}
	}
	if u.owner != nil {
		for _, c := range u.g.ConnectionsInto(u.owner.ID) {
			if c.To.Scope != u.scope {
				continue
			}
			if isAsyncPull(c.From.Node) {
				return true
			}
		}
		return false
	}
	// Top-level unit: the result assembly may demand pull producers too.
	for _, c := range u.g.ConnectionsInto(workflow.ExitID) {
		if isAsyncPull(c.From.Node) {
			return true
		}
	}
	return false
}
