package vm

import (
	"context"
	"fmt"

	"github.com/dop251/goja"

	"github.com/synergenius-fw/flow-weaver-sub000/pkg/execution"
)

// NodeFunc is one node implementation. It receives the call's bound inputs
// (scope closures arrive as Callback values under their scope names) and
// returns the node's outputs keyed by output port name. Branching nodes
// signal the taken branch with boolean entries named after their STEP
// output ports.
type NodeFunc func(ctx context.Context, inputs map[string]interface{}) (map[string]interface{}, error)

// Library maps node type names to their implementations.
type Library map[string]NodeFunc

// Callback invokes a scope closure handed to a node function. Calling it
// runs one activation of the scope's children and returns the values wired
// back across the scope boundary.
//
// Closures containing async work cannot be completed from inside a node
// function: the runtime's job queue only drains between top-level calls, so
// a pending promise is reported as an error instead of blocking forever.
type Callback func(args map[string]interface{}) (map[string]interface{}, error)

// bridge wires one invocation's execution context and node library into a
// goja runtime.
type bridge struct {
	rt    *goja.Runtime
	ectx  *execution.Context
	goCtx context.Context
}

func newBridge(rt *goja.Runtime, ectx *execution.Context, goCtx context.Context) *bridge {
	return &bridge{rt: rt, ectx: ectx, goCtx: goCtx}
}

// install registers the __newContext global the generated prologue calls.
// The returned object carries the context natives under the names the
// emitter references.
func (b *bridge) install() error {
	return b.rt.Set("__newContext", func(call goja.FunctionCall) goja.Value {
		obj := b.rt.NewObject()
		must := func(name string, fn func(goja.FunctionCall) goja.Value) {
			if err := obj.Set(name, fn); err != nil {
				panic(b.rt.NewGoError(fmt.Errorf("install context native %s: %w", name, err)))
			}
		}
		must("addExecution", b.addExecution)
		must("setVariable", b.setVariable)
		must("getVariable", b.getVariable)
		must("sendStatusChangedEvent", b.sendStatusChanged)
		must("sendWorkflowCompletedEvent", b.sendWorkflowCompleted)
		must("registerPullExecutor", b.registerPullExecutor)
		must("pull", b.pull)
		must("wasPulled", b.wasPulled)
		must("finalStatus", b.finalStatus)
		return obj
	})
}

func (b *bridge) throw(err error) goja.Value {
	panic(b.rt.NewGoError(err))
}

// cancelError builds the JS value thrown when the Go context is cancelled.
// Generated catch blocks recognize the __cancelled marker and re-throw
// instead of absorbing it into a failure branch.
func (b *bridge) cancelError() goja.Value {
	obj := b.rt.NewObject()
	_ = obj.Set("__cancelled", true)
	_ = obj.Set("message", "invocation cancelled")
	return obj
}

func objString(obj *goja.Object, name string) string {
	v := obj.Get(name)
	if v == nil || goja.IsUndefined(v) || goja.IsNull(v) {
		return ""
	}
	return v.String()
}

func objInt(obj *goja.Object, name string) int {
	v := obj.Get(name)
	if v == nil || goja.IsUndefined(v) || goja.IsNull(v) {
		return 0
	}
	return int(v.ToInteger())
}

// identifierArg decodes the identifier object literal the emitter builds
// for variable operations.
func (b *bridge) identifierArg(call goja.FunctionCall, pos int) execution.Identifier {
	arg := call.Argument(pos)
	if goja.IsUndefined(arg) || goja.IsNull(arg) {
		b.throw(fmt.Errorf("variable identifier argument missing"))
	}
	obj := arg.ToObject(b.rt)
	return execution.Identifier{
		NodeID:         objString(obj, "id"),
		NodeTypeName:   objString(obj, "nodeTypeName"),
		PortName:       objString(obj, "portName"),
		ExecutionIndex: objInt(obj, "executionIndex"),
		Scope:          objString(obj, "scope"),
		Side:           execution.Side(objString(obj, "side")),
	}
}

func (b *bridge) addExecution(call goja.FunctionCall) goja.Value {
	id := call.Argument(0).String()
	typeName := call.Argument(1).String()
	return b.rt.ToValue(b.ectx.AddExecution(id, typeName))
}

func (b *bridge) setVariable(call goja.FunctionCall) goja.Value {
	id := b.identifierArg(call, 0)
	if err := b.ectx.SetVariable(id, call.Argument(1).Export()); err != nil {
		b.throw(err)
	}
	return goja.Undefined()
}

func (b *bridge) getVariable(call goja.FunctionCall) goja.Value {
	id := b.identifierArg(call, 0)
	v, err := b.ectx.GetVariable(id)
	if err != nil {
		b.throw(err)
	}
	return b.rt.ToValue(v)
}

func (b *bridge) sendStatusChanged(call goja.FunctionCall) goja.Value {
	arg := call.Argument(0)
	if goja.IsUndefined(arg) || goja.IsNull(arg) {
		b.throw(fmt.Errorf("status event argument missing"))
	}
	obj := arg.ToObject(b.rt)
	b.ectx.SendStatusChanged(
		objString(obj, "id"),
		objString(obj, "nodeTypeName"),
		objInt(obj, "executionIndex"),
		execution.Status(objString(obj, "status")),
	)
	return goja.Undefined()
}

func (b *bridge) sendWorkflowCompleted(call goja.FunctionCall) goja.Value {
	idx := int(call.Argument(0).ToInteger())
	result := call.Argument(1).Export()
	b.ectx.SendWorkflowCompleted(idx, result)
	return goja.Undefined()
}

func (b *bridge) registerPullExecutor(call goja.FunctionCall) goja.Value {
	id := call.Argument(0).String()
	fn, ok := goja.AssertFunction(call.Argument(1))
	if !ok {
		b.throw(fmt.Errorf("pull executor for %q is not callable", id))
	}
	b.ectx.RegisterPullExecutor(id, func() (interface{}, error) {
		v, err := fn(goja.Undefined())
		if err != nil {
			return nil, err
		}
		// Async executors return a promise; it is memoized as-is and the
		// generated read awaits it.
		return v, nil
	})
	return goja.Undefined()
}

func (b *bridge) pull(call goja.FunctionCall) goja.Value {
	id := call.Argument(0).String()
	v, err := b.ectx.Pull(id)
	if err != nil {
		if exc, ok := err.(*goja.Exception); ok {
			panic(exc.Value())
		}
		b.throw(err)
	}
	if gv, ok := v.(goja.Value); ok {
		return gv
	}
	return b.rt.ToValue(v)
}

func (b *bridge) wasPulled(call goja.FunctionCall) goja.Value {
	return b.rt.ToValue(b.ectx.WasPulled(call.Argument(0).String()))
}

func (b *bridge) finalStatus(call goja.FunctionCall) goja.Value {
	status := execution.StatusSucceeded
	if b.ectx.Failed() {
		status = execution.StatusFailed
	}
	return b.rt.ToValue(string(status))
}

// executeObject builds the `execute` argument: one native per node type
// that decodes the bound inputs, runs the Go implementation, and hands the
// outputs object back to the generated caller. A cancelled Go context
// surfaces as the marker exception the generated code re-throws.
func (b *bridge) executeObject(nodes Library) (*goja.Object, error) {
	obj := b.rt.NewObject()
	for name, fn := range nodes {
		name, fn := name, fn
		native := func(call goja.FunctionCall) goja.Value {
			if b.goCtx.Err() != nil {
				panic(b.cancelError())
			}
			inputs := b.decodeInputs(call.Argument(0))
			out, err := fn(b.goCtx, inputs)
			if err != nil {
				if b.goCtx.Err() != nil {
					panic(b.cancelError())
				}
				b.throw(fmt.Errorf("node %s: %w", name, err))
			}
			if out == nil {
				return b.rt.NewObject()
			}
			return b.rt.ToValue(out)
		}
		if err := obj.Set(name, native); err != nil {
			return nil, fmt.Errorf("bind node %s: %w", name, err)
		}
	}
	return obj, nil
}

// decodeInputs exports the argument object, converting callable entries
// (scope closures) into Callback values.
func (b *bridge) decodeInputs(arg goja.Value) map[string]interface{} {
	inputs := make(map[string]interface{})
	if goja.IsUndefined(arg) || goja.IsNull(arg) {
		return inputs
	}
	obj := arg.ToObject(b.rt)
	for _, k := range obj.Keys() {
		v := obj.Get(k)
		if fn, ok := goja.AssertFunction(v); ok {
			inputs[k] = b.wrapCallback(fn)
			continue
		}
		inputs[k] = v.Export()
	}
	return inputs
}

// wrapCallback adapts a generated scope closure for invocation from Go.
func (b *bridge) wrapCallback(fn goja.Callable) Callback {
	return func(args map[string]interface{}) (map[string]interface{}, error) {
		v, err := fn(goja.Undefined(), b.rt.ToValue(args))
		if err != nil {
			return nil, callbackError(err)
		}
		if p, ok := v.Export().(*goja.Promise); ok {
			switch p.State() {
			case goja.PromiseStateFulfilled:
				v = p.Result()
			case goja.PromiseStateRejected:
				return nil, fmt.Errorf("scope callback rejected: %s", p.Result().String())
			default:
				return nil, fmt.Errorf("scope callback returned a pending promise; async scope bodies cannot complete inside a node call")
			}
		}
		out, _ := v.Export().(map[string]interface{})
		if out == nil {
			out = make(map[string]interface{})
		}
		return out, nil
	}
}

// callbackError unwraps a goja exception thrown inside a scope closure.
func callbackError(err error) error {
	if exc, ok := err.(*goja.Exception); ok {
		return fmt.Errorf("scope callback failed: %s", exc.Value().String())
	}
	return fmt.Errorf("scope callback failed: %w", err)
}
