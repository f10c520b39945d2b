package compiler

import (
	"github.com/synergenius-fw/flow-weaver-sub000/pkg/execution"
	"github.com/synergenius-fw/flow-weaver-sub000/pkg/workflow"
)

// emitClosure emits the callback declaration for one per-port scope. The
// closure allocates a fresh execution index per activation, mirrors the
// incoming scope arguments and the outgoing results as boundary variable
// events in debug mode, runs the scope's children, and returns the object
// assembled from the connections into the owner's scoped input ports.
func (e *emitter) emitClosure(parent *unit, owner *instPlan, scope string, child *unit) error {
	id := owner.inst.ID
	typeName := owner.typ.Name
	name := e.closureName(id, scope)
	argsName := e.scopeArgsName(id, scope)
	ai := e.aiName(id)

	asyncKw := ""
	if child.async {
		asyncKw = "async "
	}
	e.linef("const %s = %sfunction (%s) {", name, asyncKw, argsName)
	e.indent++
	e.linef("const %s = __ctx.addExecution(%s, %s);", ai, jsString(id), jsString(typeName))

	outs, ins := owner.typ.ScopedPorts(scope)
	if e.opts.Mode == execution.ModeDebug {
		for _, p := range outs {
			if p.IsStep() {
				continue
			}
			e.linef("__ctx.setVariable(%s, %s);",
				e.identLiteral(id, typeName, p.Name, ai, scope, execution.SideStart),
				prop(argsName, p.Name))
		}
	}

	e.emitHoists(child)
	if err := e.emitContainer(child, rootContainer); err != nil {
		return err
	}

	e.linef("const __ret = {};")
	for _, p := range ins {
		if p.IsStep() {
			continue
		}
		target := prop("__ret", p.Name)
		conn, ok := e.scopedConnectionInto(id, p.Name, scope)
		if !ok {
			if p.Default != nil {
				e.linef("%s = %s;", target, jsValue(p.Default))
				e.emitBoundaryExit(id, typeName, p.Name, ai, scope, target)
			}
			continue
		}
		expr, err := e.valueExpr(child, conn.From, nil, p.Default)
		if err != nil {
			return err
		}
		if e.definiteSource(child, conn.From) {
			e.linef("%s = %s;", target, expr)
			e.emitBoundaryExit(id, typeName, p.Name, ai, scope, target)
			continue
		}
		e.linef("{")
		e.indent++
		e.linef("const __v = %s;", expr)
		e.linef("if (__v !== undefined) {")
		e.indent++
		e.linef("%s = __v;", target)
		e.emitBoundaryExit(id, typeName, p.Name, ai, scope, "__v")
		e.indent--
		e.linef("}")
		e.indent--
		e.linef("}")
	}
	e.linef("return __ret;")
	e.indent--
	e.linef("};")
	return nil
}

// emitBoundaryExit records an exit-side boundary variable event in debug
// mode.
func (e *emitter) emitBoundaryExit(id, typeName, port, idxExpr, scope, valueExpr string) {
	if e.opts.Mode != execution.ModeDebug {
		return
	}
	e.linef("__ctx.setVariable(%s, %s);",
		e.identLiteral(id, typeName, port, idxExpr, scope, execution.SideExit), valueExpr)
}

// scopedConnectionInto finds the connection feeding one of the owner's
// scoped input ports: the value the scope's children hand back across the
// boundary.
func (e *emitter) scopedConnectionInto(id, port, scope string) (workflow.Connection, bool) {
	for _, conn := range e.g.ConnectionsInto(id) {
		if conn.To.Port == port && conn.To.Scope == scope {
			return conn, true
		}
	}
	return workflow.Connection{}, false
}
