package compiler

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/synergenius-fw/flow-weaver-sub000/pkg/execution"
	"github.com/synergenius-fw/flow-weaver-sub000/pkg/workflow"
)

// emitter produces the generated program text for one compilation. It is
// single-use: one emitter per Compile call.
type emitter struct {
	g    *workflow.Graph
	opts Options

	b      strings.Builder
	indent int

	idents map[string]string
	used   map[string]bool
}

func newEmitter(g *workflow.Graph, opts Options) *emitter {
	return &emitter{
		g:      g,
		opts:   opts,
		idents: make(map[string]string),
		used:   make(map[string]bool),
	}
}

func (e *emitter) linef(format string, args ...interface{}) {
	for i := 0; i < e.indent; i++ {
		e.b.WriteString("  ")
	}
	fmt.Fprintf(&e.b, format, args...)
	e.b.WriteByte('\n')
}

func (e *emitter) blank() {
	e.b.WriteByte('\n')
}

// instIdent returns a stable, unique identifier fragment for an instance id.
func (e *emitter) instIdent(id string) string {
	if got, ok := e.idents[id]; ok {
		return got
	}
	base := sanitizeIdent(id)
	if base == "" {
		base = "node"
	}
	name := base
	for n := 2; e.used[name]; n++ {
		name = fmt.Sprintf("%s_%d", base, n)
	}
	e.used[name] = true
	e.idents[id] = name
	return name
}

func (e *emitter) varName(instID, port string) string {
	return "v_" + e.instIdent(instID) + "_" + sanitizeIdent(port)
}

func (e *emitter) eiName(instID string) string {
	return "ei_" + e.instIdent(instID)
}

func (e *emitter) cxName(instID string) string {
	return "__cx_" + e.instIdent(instID)
}

func (e *emitter) resName(instID string) string {
	return "__r_" + e.instIdent(instID)
}

func (e *emitter) closureName(instID, scope string) string {
	return "__scope_" + e.instIdent(instID) + "_" + sanitizeIdent(scope)
}

func (e *emitter) scopeArgsName(instID, scope string) string {
	return "__sa_" + e.instIdent(instID) + "_" + sanitizeIdent(scope)
}

func (e *emitter) aiName(instID string) string {
	return "ai_" + e.instIdent(instID)
}

// jsString renders a Go string as a JS string literal.
func jsString(s string) string {
	b, err := json.Marshal(s)
	if err != nil {
		return `""`
	}
	return string(b)
}

// jsValue renders a default value as a JS literal.
func jsValue(v interface{}) string {
	b, err := json.Marshal(v)
	if err != nil {
		return "undefined"
	}
	return string(b)
}

// prop renders property access, preferring dot form for clean identifiers.
func prop(obj, name string) string {
	if isJSIdent(name) {
		return obj + "." + name
	}
	return obj + "[" + jsString(name) + "]"
}

// objKey renders an object literal key.
func objKey(name string) string {
	if isJSIdent(name) {
		return name
	}
	return jsString(name)
}

// identLiteral builds the identifier object literal used by the context
// bridge calls.
func (e *emitter) identLiteral(id, typeName, port, idxExpr, scope string, side execution.Side) string {
	var b strings.Builder
	fmt.Fprintf(&b, "{ id: %s, nodeTypeName: %s, portName: %s, executionIndex: %s",
		jsString(id), jsString(typeName), jsString(port), idxExpr)
	if scope != "" {
		fmt.Fprintf(&b, ", scope: %s", jsString(scope))
	}
	if side != "" {
		fmt.Fprintf(&b, ", side: %s", jsString(string(side)))
	}
	b.WriteString(" }")
	return b.String()
}

// statusLine emits a STATUS_CHANGED bridge call. statusExpr is a JS
// expression (usually a string literal).
func (e *emitter) statusLine(id, typeName, idxExpr, statusExpr string) {
	e.linef("__ctx.sendStatusChangedEvent({ id: %s, nodeTypeName: %s, executionIndex: %s, status: %s });",
		jsString(id), jsString(typeName), idxExpr, statusExpr)
}

func statusLit(s execution.Status) string {
	return jsString(string(s))
}

// guardExpr renders the conjunction of branch flags for a condition set.
func (e *emitter) guardExpr(conds []branchCond) string {
	parts := make([]string, 0, len(conds))
	for _, c := range conds {
		parts = append(parts, e.varName(c.anchor, c.port)+" === true")
	}
	return strings.Join(parts, " && ")
}

// condsMinus returns the conditions of a not implied by b.
func condsMinus(a, b []branchCond) []branchCond {
	var out []branchCond
	for _, c := range a {
		implied := false
		for _, o := range b {
			if o == c {
				implied = true
				break
			}
		}
		if !implied {
			out = append(out, c)
		}
	}
	return out
}

// typeHint returns the JSDoc type annotation for a node type's port, or "".
func (e *emitter) typeHint(typeName, port string) string {
	if e.opts.TypeHints == nil {
		return ""
	}
	if ports, ok := e.opts.TypeHints[typeName]; ok {
		if hint, ok := ports[port]; ok && hint != "" {
			return fmt.Sprintf("/** @type {%s} */ ", hint)
		}
	}
	return ""
}

// wrapHint wraps an expression in a JSDoc type cast when a hint exists.
func (e *emitter) wrapHint(typeName, port, expr string) string {
	if hint := e.typeHint(typeName, port); hint != "" {
		return hint + "(" + expr + ")"
	}
	return expr
}

// emit produces the full program text for the top-level unit.
func (e *emitter) emit(top *unit) (string, error) {
	fnName := functionName(e.g.Name)
	asyncKw := ""
	if top.async {
		asyncKw = "async "
	}

	e.linef("/* Generated by flow-weaver from workflow %q. Do not edit. */", e.g.Name)
	e.linef(`"use strict";`)
	e.linef("(function () {")
	e.indent++
	e.linef("return %sfunction %s(execute, params, debugger_) {", asyncKw, fnName)
	e.indent++
	e.linef("const __ctx = __newContext(debugger_);")
	e.linef("const __params = params || {};")
	e.blank()

	e.emitStartPrologue()
	e.emitHoists(top)

	if err := e.emitContainer(top, rootContainer); err != nil {
		return "", err
	}

	if err := e.emitExitEpilogue(top); err != nil {
		return "", err
	}

	e.indent--
	e.linef("};")
	e.indent--
	e.linef("})();")
	return e.b.String(), nil
}

// emitStartPrologue binds the workflow parameters and records the Start
// boundary activation.
func (e *emitter) emitStartPrologue() {
	ei := e.eiName(workflow.StartID)
	e.linef("const %s = __ctx.addExecution(%s, %s);", ei, jsString(workflow.StartID), jsString(workflow.StartID))
	e.statusLine(workflow.StartID, workflow.StartID, ei, statusLit(execution.StatusRunning))
	for _, p := range e.g.StartPorts {
		if p.IsStep() {
			continue
		}
		name := e.varName(workflow.StartID, p.Name)
		access := prop("__params", p.Name)
		if p.Default != nil {
			e.linef("const %s = %s !== undefined ? %s : %s;", name, access, access, jsValue(p.Default))
		} else {
			e.linef("const %s = %s;", name, access)
		}
		e.linef("__ctx.setVariable(%s, %s);",
			e.identLiteral(workflow.StartID, workflow.StartID, p.Name, ei, "", ""), name)
	}
	e.statusLine(workflow.StartID, workflow.StartID, ei, statusLit(execution.StatusSucceeded))
	e.blank()
}

// emitHoists declares the nilable bindings of a unit: cancellation latches
// for every member, and execution-index plus output slots for instances
// whose execution is conditional.
func (e *emitter) emitHoists(u *unit) {
	emitted := false
	for _, p := range u.members {
		e.linef("let %s = false;", e.cxName(p.inst.ID))
		emitted = true
		if p.definite || p.pull {
			continue
		}
		names := []string{e.eiName(p.inst.ID)}
		for _, out := range p.typ.Outputs {
			if out.Scope != "" {
				continue
			}
			if out.IsStep() {
				if p.branching() {
					names = append(names, e.varName(p.inst.ID, out.Name))
				}
				continue
			}
			names = append(names, e.varName(p.inst.ID, out.Name))
		}
		e.linef("let %s;", strings.Join(names, ", "))
	}
	if emitted {
		e.blank()
	}
}

// emitContainer emits every direct item of a container in emission order.
func (e *emitter) emitContainer(u *unit, c container) error {
	items, err := u.orderedItems(c)
	if err != nil {
		return err
	}
	implied := u.containerConds(c)
	for _, p := range items {
		guard := condsMinus(p.conds, implied)
		if len(guard) > 0 {
			e.linef("if (%s) {", e.guardExpr(guard))
			e.indent++
		}
		if err := e.emitStatement(u, p); err != nil {
			return err
		}
		if len(guard) > 0 {
			e.indent--
			e.linef("}")
		}
	}
	return nil
}

// emitStatement emits one instance: either its pull-executor registration or
// its eager call, followed by its branch blocks when it anchors any.
func (e *emitter) emitStatement(u *unit, p *instPlan) error {
	if p.pull {
		return e.emitPullRegistration(u, p)
	}
	if err := e.emitCall(u, p, false); err != nil {
		return err
	}
	if p.branching() {
		return e.emitBranchBlocks(u, p)
	}
	return nil
}

// emitCall emits the activation of one instance: closure declarations,
// index allocation, argument binding, the (possibly awaited) call, result
// destructuring with typed bindings, failure-flag bookkeeping, and the
// node's status event. Inside a pull executor the bindings are local consts
// and a thrown error propagates to the demanding reader instead of
// cancelling the remaining plan.
func (e *emitter) emitCall(u *unit, p *instPlan, insideExecutor bool) error {
	id := p.inst.ID
	typeName := p.typ.Name
	ei := e.eiName(id)
	res := e.resName(id)
	useConst := p.definite || insideExecutor

	for _, s := range e.g.ScopeNames(p.inst) {
		if child, ok := p.closures[s]; ok {
			if err := e.emitClosure(u, p, s, child); err != nil {
				return err
			}
		}
	}

	decl := ""
	if useConst {
		decl = "const "
	}
	e.linef("%s%s = __ctx.addExecution(%s, %s);", decl, ei, jsString(id), jsString(typeName))
	e.statusLine(id, typeName, ei, statusLit(execution.StatusRunning))

	args, err := e.argObject(u, p)
	if err != nil {
		return err
	}
	await := ""
	if p.awaited {
		await = "await "
	}
	call := fmt.Sprintf("%s%s(%s)", await, prop("execute", typeName), args)

	e.linef("let %s;", res)
	e.linef("try {")
	e.indent++
	e.linef("%s = %s;", res, call)
	e.indent--
	e.linef("} catch (__err) {")
	e.indent++
	e.linef("if (__err && __err.__cancelled === true) {")
	e.indent++
	e.linef("throw __err;")
	e.indent--
	e.linef("}")
	if !insideExecutor && u.failureHandled(p) {
		e.linef("%s = { %s: true };", res, objKey(failurePort(p.typ)))
	} else {
		e.statusLine(id, typeName, ei, statusLit(execution.StatusFailed))
		if !insideExecutor {
			e.emitCancellations(u.remainingAfter(p))
		}
		e.linef("throw __err;")
	}
	e.indent--
	e.linef("}")

	fp := failurePort(p.typ)
	if p.branching() {
		for _, step := range p.typ.StepOutputs() {
			flag := e.varName(id, step.Name)
			decl := ""
			if useConst {
				decl = "const "
			}
			e.linef("%s%s = %s === true;", decl, flag, prop(res, step.Name))
			e.linef("__ctx.setVariable(%s, %s);",
				e.identLiteral(id, typeName, step.Name, ei, "", ""), flag)
		}
	}

	for _, out := range p.typ.Outputs {
		if out.IsStep() || out.Scope != "" {
			continue
		}
		name := e.varName(id, out.Name)
		expr := prop(res, out.Name)
		decl := ""
		if useConst {
			decl = "const "
		}
		e.linef("%s%s = %s;", decl, name, e.wrapHint(typeName, out.Name, expr))
		e.linef("if (%s !== undefined) {", name)
		e.indent++
		e.linef("__ctx.setVariable(%s, %s);", e.identLiteral(id, typeName, out.Name, ei, "", ""), name)
		e.indent--
		e.linef("}")
	}

	if p.branching() && fp != "" {
		e.statusLine(id, typeName, ei,
			fmt.Sprintf("%s === true ? %s : %s", e.varName(id, fp), statusLit(execution.StatusFailed), statusLit(execution.StatusSucceeded)))
	} else {
		e.statusLine(id, typeName, ei, statusLit(execution.StatusSucceeded))
	}
	e.blank()
	return nil
}

// emitBranchBlocks emits the nested success/failure blocks of a branching
// anchor, plus the cancellation walk for each untaken branch. Branches with
// no owned instances produce no block at all.
func (e *emitter) emitBranchBlocks(u *unit, p *instPlan) error {
	for _, step := range p.typ.StepOutputs() {
		flag := e.varName(p.inst.ID, step.Name)
		block := container{anchor: p, port: step.Name}
		items, err := u.orderedItems(block)
		if err != nil {
			return err
		}
		if len(items) > 0 {
			e.linef("if (%s === true) {", flag)
			e.indent++
			if err := e.emitContainer(u, block); err != nil {
				return err
			}
			e.indent--
			e.linef("}")
		}
		if targets := u.cancellees(p.inst.ID, step.Name); len(targets) > 0 {
			e.linef("if (%s !== true) {", flag)
			e.indent++
			e.emitCancellations(targets)
			e.indent--
			e.linef("}")
		}
	}
	e.blank()
	return nil
}

// emitCancellations marks instances made unreachable by a decision. Every
// target receives its own execution index before the CANCELLED status, and
// the latch keeps repeated walks from double-reporting.
func (e *emitter) emitCancellations(targets []*instPlan) {
	for _, t := range targets {
		cx := e.cxName(t.inst.ID)
		cond := "!" + cx
		if t.pull {
			// An already-demanded pull node has run; only undemanded ones
			// are cancelled.
			cond = fmt.Sprintf("!%s && !__ctx.wasPulled(%s)", cx, jsString(t.inst.ID))
		}
		e.linef("if (%s) {", cond)
		e.indent++
		e.linef("%s = true;", cx)
		e.linef("__ctx.sendStatusChangedEvent({ id: %s, nodeTypeName: %s, executionIndex: __ctx.addExecution(%s, %s), status: %s });",
			jsString(t.inst.ID), jsString(t.typ.Name), jsString(t.inst.ID), jsString(t.typ.Name), statusLit(execution.StatusCancelled))
		e.indent--
		e.linef("}")
	}
}

// emitPullRegistration registers the lazy executor at the position the
// eager call would have occupied. The executor allocates its own execution
// index on first demand and returns the node's outputs object, which the
// context memoizes.
func (e *emitter) emitPullRegistration(u *unit, p *instPlan) error {
	asyncKw := ""
	if p.awaited {
		asyncKw = "async "
	}
	e.linef("__ctx.registerPullExecutor(%s, %sfunction () {", jsString(p.inst.ID), asyncKw)
	e.indent++
	if err := e.emitCall(u, p, true); err != nil {
		return err
	}
	var entries []string
	for _, out := range p.typ.Outputs {
		if out.IsStep() || out.Scope != "" {
			continue
		}
		entries = append(entries, fmt.Sprintf("%s: %s", objKey(out.Name), e.varName(p.inst.ID, out.Name)))
	}
	e.linef("return { %s };", strings.Join(entries, ", "))
	e.indent--
	e.linef("});")
	e.blank()
	return nil
}

// connectionIntoPort finds the connection feeding an ordinary input port.
func (e *emitter) connectionIntoPort(id, port string) (workflow.Connection, bool) {
	for _, c := range e.g.ConnectionsInto(id) {
		if c.To.Port == port && c.To.Scope == "" {
			return c, true
		}
	}
	return workflow.Connection{}, false
}

// argObject renders the argument binding for one call: one entry per
// connected data input (with defined/undefined fallbacks for conditional
// producers), defaults for unconnected optional ports, and the scope
// closures under their scope names.
func (e *emitter) argObject(u *unit, p *instPlan) (string, error) {
	var entries []string
	for _, in := range p.typ.Inputs {
		if in.Scope != "" {
			continue
		}
		if in.IsStep() {
			continue
		}
		if conn, ok := e.connectionIntoPort(p.inst.ID, in.Name); ok {
			expr, err := e.valueExpr(u, conn.From, p, in.Default)
			if err != nil {
				return "", err
			}
			entries = append(entries, fmt.Sprintf("%s: %s", objKey(in.Name), expr))
			continue
		}
		if in.Default != nil {
			entries = append(entries, fmt.Sprintf("%s: %s", objKey(in.Name), jsValue(in.Default)))
		}
	}
	for _, s := range e.g.ScopeNames(p.inst) {
		if _, ok := p.closures[s]; ok {
			entries = append(entries, fmt.Sprintf("%s: %s", objKey(s), e.closureName(p.inst.ID, s)))
		}
	}
	if len(entries) == 0 {
		return "{}", nil
	}
	return "{ " + strings.Join(entries, ", ") + " }", nil
}

// valueExpr renders the read of one produced value from the perspective of
// a consumer. Reads of conditional producers are guarded by a
// defined/undefined check with the consumer port's default as the fallback;
// reads of pull producers go through the context's memoizing pull, guarded
// by the producer's residual branch conditions.
func (e *emitter) valueExpr(u *unit, from workflow.Endpoint, consumer *instPlan, dflt interface{}) (string, error) {
	fallback := "undefined"
	if dflt != nil {
		fallback = jsValue(dflt)
	}

	if from.Node == workflow.StartID {
		return e.varName(workflow.StartID, from.Port), nil
	}

	for cur := u; cur != nil; cur = cur.parent {
		if cur.owner != nil && from.Node == cur.owner.ID {
			if port, ok := cur.g.TypeOf(cur.owner).Output(from.Port); ok && port.Scope == cur.scope && port.Scope != "" {
				return prop(e.scopeArgsName(cur.owner.ID, cur.scope), from.Port), nil
			}
		}
	}

	pl := u.lookup(from.Node)
	if pl == nil {
		return "", defect("value read from %q.%q has no resolvable producer", from.Node, from.Port)
	}

	if pl.pull {
		await := ""
		if pl.awaited {
			await = "await "
		}
		expr := prop(fmt.Sprintf("(%s__ctx.pull(%s))", await, jsString(from.Node)), from.Port)
		var consumerConds []branchCond
		if consumer != nil {
			consumerConds = consumer.conds
		}
		if residual := condsMinus(pl.conds, consumerConds); len(residual) > 0 {
			return fmt.Sprintf("(%s ? %s : %s)", e.guardExpr(residual), expr, fallback), nil
		}
		return expr, nil
	}

	name := e.varName(from.Node, from.Port)
	if pl.definite {
		return name, nil
	}
	return fmt.Sprintf("(%s !== undefined ? %s : %s)", name, name, fallback), nil
}

// emitExitEpilogue assembles the result object from the connections into
// Exit, reports the Exit boundary status, and emits WORKFLOW_COMPLETED with
// the Exit instance's own execution index.
func (e *emitter) emitExitEpilogue(u *unit) error {
	e.linef("const __result = {};")
	for _, ep := range e.g.ExitPorts {
		if ep.IsStep() {
			continue
		}
		target := prop("__result", ep.Name)
		conn, ok := e.connectionIntoPort(workflow.ExitID, ep.Name)
		if !ok {
			if ep.Default != nil {
				e.linef("%s = %s;", target, jsValue(ep.Default))
			}
			continue
		}
		expr, err := e.valueExpr(u, conn.From, nil, nil)
		if err != nil {
			return err
		}
		if e.definiteSource(u, conn.From) {
			e.linef("%s = %s;", target, expr)
			continue
		}
		e.linef("{")
		e.indent++
		e.linef("const __v = %s;", expr)
		e.linef("if (__v !== undefined) {")
		e.indent++
		e.linef("%s = __v;", target)
		e.indent--
		e.linef("}")
		e.indent--
		e.linef("}")
	}
	ei := e.eiName(workflow.ExitID)
	e.linef("const %s = __ctx.addExecution(%s, %s);", ei, jsString(workflow.ExitID), jsString(workflow.ExitID))
	e.statusLine(workflow.ExitID, workflow.ExitID, ei, statusLit(execution.StatusRunning))
	e.statusLine(workflow.ExitID, workflow.ExitID, ei, "__ctx.finalStatus()")
	e.linef("__ctx.sendWorkflowCompletedEvent(%s, __result);", ei)
	e.linef("return __result;")
	return nil
}

// definiteSource reports whether an endpoint's producer always runs, making
// the read unconditional.
func (e *emitter) definiteSource(u *unit, from workflow.Endpoint) bool {
	if from.Node == workflow.StartID {
		return true
	}
	for cur := u; cur != nil; cur = cur.parent {
		if cur.owner != nil && from.Node == cur.owner.ID {
			return true
		}
	}
	pl := u.lookup(from.Node)
	return pl != nil && pl.definite && !pl.pull
}
