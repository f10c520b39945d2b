package compiler

import (
	"errors"
	"strings"
	"testing"

	"github.com/synergenius-fw/flow-weaver-sub000/pkg/execution"
	"github.com/synergenius-fw/flow-weaver-sub000/pkg/workflow"
)

func port(name string, t workflow.DataType) workflow.PortDefinition {
	return workflow.PortDefinition{Name: name, Type: t}
}

func scopedPort(name string, t workflow.DataType, scope string) workflow.PortDefinition {
	return workflow.PortDefinition{Name: name, Type: t, Scope: scope}
}

func conn(fromNode, fromPort, toNode, toPort string) workflow.Connection {
	return workflow.Connection{
		From: workflow.Endpoint{Node: fromNode, Port: fromPort},
		To:   workflow.Endpoint{Node: toNode, Port: toPort},
	}
}

// adderGraph is the smallest useful workflow: one definite node fed by both
// parameters, result wired straight to Exit.
func adderGraph() *workflow.Graph {
	return &workflow.Graph{
		Name: "adder",
		Types: map[string]*workflow.NodeType{
			"Add": {
				Name:    "Add",
				Inputs:  []workflow.PortDefinition{port("a", workflow.TypeNumber), port("b", workflow.TypeNumber)},
				Outputs: []workflow.PortDefinition{port("sum", workflow.TypeNumber)},
			},
		},
		Instances: []*workflow.NodeInstance{{ID: "add", Type: "Add"}},
		Connections: []workflow.Connection{
			conn(workflow.StartID, "a", "add", "a"),
			conn(workflow.StartID, "b", "add", "b"),
			conn("add", "sum", workflow.ExitID, "sum"),
		},
		StartPorts: []workflow.PortDefinition{port("a", workflow.TypeNumber), port("b", workflow.TypeNumber)},
		ExitPorts:  []workflow.PortDefinition{port("sum", workflow.TypeNumber)},
	}
}

// branchGraph routes control through a two-way Check into per-branch Emit
// instances.
func branchGraph() *workflow.Graph {
	return &workflow.Graph{
		Name: "branching",
		Types: map[string]*workflow.NodeType{
			"Check": {
				Name:   "Check",
				Inputs: []workflow.PortDefinition{port("execute", workflow.TypeStep), port("value", workflow.TypeNumber)},
				Outputs: []workflow.PortDefinition{
					port("onSuccess", workflow.TypeStep),
					port("onFailure", workflow.TypeStep),
				},
			},
			"Emit": {
				Name:    "Emit",
				Inputs:  []workflow.PortDefinition{port("execute", workflow.TypeStep), port("value", workflow.TypeNumber)},
				Outputs: []workflow.PortDefinition{port("out", workflow.TypeNumber)},
			},
		},
		Instances: []*workflow.NodeInstance{
			{ID: "check", Type: "Check"},
			{ID: "pos", Type: "Emit"},
			{ID: "neg", Type: "Emit"},
		},
		Connections: []workflow.Connection{
			conn(workflow.StartID, "value", "check", "value"),
			conn("check", "onSuccess", "pos", "execute"),
			conn("check", "onFailure", "neg", "execute"),
			conn(workflow.StartID, "value", "pos", "value"),
			conn(workflow.StartID, "value", "neg", "value"),
			conn("pos", "out", workflow.ExitID, "result"),
		},
		StartPorts: []workflow.PortDefinition{port("value", workflow.TypeNumber)},
		ExitPorts:  []workflow.PortDefinition{port("result", workflow.TypeNumber)},
	}
}

func compileOK(t *testing.T, g *workflow.Graph, opts Options) *Artifact {
	t.Helper()
	art, err := New(opts).Compile(g)
	if err != nil {
		t.Fatalf("Compile(%s) failed: %v", g.Name, err)
	}
	return art
}

func TestCompileDeterministic(t *testing.T) {
	g := branchGraph()
	a := compileOK(t, g, Options{})
	b := compileOK(t, g, Options{})
	if a.Source != b.Source {
		t.Fatalf("compiling the same graph twice produced different sources")
	}
	if a.Checksum != b.Checksum {
		t.Fatalf("checksums differ for identical sources: %s vs %s", a.Checksum, b.Checksum)
	}
}

func TestCompileLinear(t *testing.T) {
	art := compileOK(t, adderGraph(), Options{})

	if art.WorkflowName != "adder" {
		t.Errorf("WorkflowName = %q, want adder", art.WorkflowName)
	}
	if art.FunctionName != "Adder" {
		t.Errorf("FunctionName = %q, want Adder", art.FunctionName)
	}
	if art.IsAsync {
		t.Errorf("linear sync graph marked async")
	}
	if len(art.Checksum) != 64 {
		t.Errorf("Checksum = %q, want 64 hex chars", art.Checksum)
	}

	for _, want := range []string{
		`"use strict";`,
		"return function Adder(execute, params, debugger_) {",
		"const __ctx = __newContext(debugger_);",
		"const ei_add = __ctx.addExecution(\"add\", \"Add\");",
		"execute.Add({ a: v_Start_a, b: v_Start_b })",
		"const v_add_sum = __r_add.sum;",
		"__result.sum = v_add_sum;",
		"__ctx.sendWorkflowCompletedEvent(ei_Exit, __result);",
		"return __result;",
	} {
		if !strings.Contains(art.Source, want) {
			t.Errorf("generated source missing %q\n%s", want, art.Source)
		}
	}
}

func TestCompileBranching(t *testing.T) {
	art := compileOK(t, branchGraph(), Options{})

	for _, want := range []string{
		// Conditional instances get hoisted nilable bindings.
		"let ei_pos, v_pos_out;",
		"let ei_neg, v_neg_out;",
		// Branch flags become explicit boolean bindings.
		"const v_check_onSuccess = __r_check.onSuccess === true;",
		"const v_check_onFailure = __r_check.onFailure === true;",
		// Taken-branch blocks and untaken-branch cancellation walks.
		"if (v_check_onSuccess === true) {",
		"if (v_check_onSuccess !== true) {",
		`status: "CANCELLED"`,
		// The anchor's own status reflects the failure branch.
		`status: v_check_onFailure === true ? "FAILED" : "SUCCEEDED"`,
	} {
		if !strings.Contains(art.Source, want) {
			t.Errorf("generated source missing %q\n%s", want, art.Source)
		}
	}

	// Exit reads of conditional producers are guarded, never bare.
	if !strings.Contains(art.Source, "if (__v !== undefined) {") {
		t.Errorf("conditional exit read is not guarded\n%s", art.Source)
	}
}

func TestCompileConflictingBranches(t *testing.T) {
	g := branchGraph()
	g.Types["Sum2"] = &workflow.NodeType{
		Name:    "Sum2",
		Inputs:  []workflow.PortDefinition{port("x", workflow.TypeNumber), port("y", workflow.TypeNumber)},
		Outputs: []workflow.PortDefinition{port("out", workflow.TypeNumber)},
	}
	g.Instances = append(g.Instances, &workflow.NodeInstance{ID: "merge", Type: "Sum2"})
	g.Connections = append(g.Connections,
		conn("pos", "out", "merge", "x"),
		conn("neg", "out", "merge", "y"),
	)

	_, err := New(Options{}).Compile(g)
	if err == nil {
		t.Fatalf("expected conflicting-branch error, got success")
	}
	var serr *StructuralError
	if !errors.As(err, &serr) {
		t.Fatalf("error is %T, want *StructuralError", err)
	}
	found := false
	for _, issue := range serr.Issues {
		if issue.Code == workflow.IssueConflictingBranches {
			found = true
		}
	}
	if !found {
		t.Errorf("issues = %v, want CONFLICTING_BRANCHES", serr.Issues)
	}
}

func TestCompileCyclicDependency(t *testing.T) {
	g := &workflow.Graph{
		Name: "cyclic",
		Types: map[string]*workflow.NodeType{
			"Step": {
				Name:    "Step",
				Inputs:  []workflow.PortDefinition{port("x", workflow.TypeNumber)},
				Outputs: []workflow.PortDefinition{port("out", workflow.TypeNumber)},
			},
		},
		Instances: []*workflow.NodeInstance{
			{ID: "a", Type: "Step"},
			{ID: "b", Type: "Step"},
		},
		Connections: []workflow.Connection{
			conn("a", "out", "b", "x"),
			conn("b", "out", "a", "x"),
		},
	}

	_, err := New(Options{}).Compile(g)
	var serr *StructuralError
	if !errors.As(err, &serr) {
		t.Fatalf("error is %T (%v), want *StructuralError", err, err)
	}
	found := false
	for _, issue := range serr.Issues {
		if issue.Code == workflow.IssueCyclicDependency {
			found = true
		}
	}
	if !found {
		t.Errorf("issues = %v, want CYCLIC_DEPENDENCY", serr.Issues)
	}
}

func TestCompilePromotion(t *testing.T) {
	g := branchGraph()
	// "use" sits on the success branch but reads a value produced outside
	// the branch, so its call is relocated to the unit root behind a guard.
	g.Types["Sum2"] = &workflow.NodeType{
		Name: "Sum2",
		Inputs: []workflow.PortDefinition{
			port("execute", workflow.TypeStep),
			port("x", workflow.TypeNumber),
			port("y", workflow.TypeNumber),
		},
		Outputs: []workflow.PortDefinition{port("out", workflow.TypeNumber)},
	}
	g.Instances = append(g.Instances,
		&workflow.NodeInstance{ID: "other", Type: "Emit"},
		&workflow.NodeInstance{ID: "use", Type: "Sum2"},
	)
	g.Connections = append(g.Connections,
		conn(workflow.StartID, "value", "other", "value"),
		conn("check", "onSuccess", "use", "execute"),
		conn("other", "out", "use", "x"),
		conn("pos", "out", "use", "y"),
	)

	art := compileOK(t, g, Options{})

	// The relocated call keeps its hoisted binding (no const) and must come
	// after the instance that produces its out-of-branch input.
	otherIdx := strings.Index(art.Source, "const ei_other = __ctx.addExecution")
	useIdx := strings.Index(art.Source, "ei_use = __ctx.addExecution")
	if otherIdx < 0 || useIdx < 0 || useIdx < otherIdx {
		t.Errorf("promoted call not ordered after its external producer (other=%d use=%d)", otherIdx, useIdx)
	}
	// Its control guard survives the relocation.
	if !strings.Contains(art.Source, "if (v_check_onSuccess === true) {") {
		t.Errorf("promoted call lost its branch guard\n%s", art.Source)
	}
}

func TestCompilePromotionChain(t *testing.T) {
	g := branchGraph()
	// "use" is promoted because it reads "other" from outside the success
	// branch; "tail" nominally sits inside the branch but reads "use", so the
	// relocation must carry it along or no emission order exists.
	g.Types["Sum2"] = &workflow.NodeType{
		Name: "Sum2",
		Inputs: []workflow.PortDefinition{
			port("execute", workflow.TypeStep),
			port("x", workflow.TypeNumber),
			port("y", workflow.TypeNumber),
		},
		Outputs: []workflow.PortDefinition{port("out", workflow.TypeNumber)},
	}
	g.Instances = append(g.Instances,
		&workflow.NodeInstance{ID: "other", Type: "Emit"},
		&workflow.NodeInstance{ID: "use", Type: "Sum2"},
		&workflow.NodeInstance{ID: "tail", Type: "Sum2"},
	)
	g.Connections = append(g.Connections,
		conn(workflow.StartID, "value", "other", "value"),
		conn("check", "onSuccess", "use", "execute"),
		conn("other", "out", "use", "x"),
		conn("pos", "out", "use", "y"),
		conn("check", "onSuccess", "tail", "execute"),
		conn("use", "out", "tail", "x"),
	)

	art := compileOK(t, g, Options{})

	useIdx := strings.Index(art.Source, "ei_use = __ctx.addExecution")
	tailIdx := strings.Index(art.Source, "ei_tail = __ctx.addExecution")
	if useIdx < 0 || tailIdx < 0 || tailIdx < useIdx {
		t.Errorf("reader of a promoted producer not ordered after it (use=%d tail=%d)\n%s", useIdx, tailIdx, art.Source)
	}
	if !strings.Contains(art.Source, "if (v_check_onSuccess === true) {") {
		t.Errorf("relocated calls lost their branch guard\n%s", art.Source)
	}
}

func TestCompileAsyncPropagation(t *testing.T) {
	g := &workflow.Graph{
		Name: "fetcher",
		Types: map[string]*workflow.NodeType{
			"Fetch": {
				Name:    "Fetch",
				IsAsync: true,
				Inputs:  []workflow.PortDefinition{port("url", workflow.TypeString)},
				Outputs: []workflow.PortDefinition{port("body", workflow.TypeString)},
			},
		},
		Instances: []*workflow.NodeInstance{{ID: "fetch", Type: "Fetch"}},
		Connections: []workflow.Connection{
			conn(workflow.StartID, "url", "fetch", "url"),
			conn("fetch", "body", workflow.ExitID, "body"),
		},
		StartPorts: []workflow.PortDefinition{port("url", workflow.TypeString)},
		ExitPorts:  []workflow.PortDefinition{port("body", workflow.TypeString)},
	}

	art := compileOK(t, g, Options{})
	if !art.IsAsync {
		t.Fatalf("graph with async node not marked async")
	}
	if !strings.Contains(art.Source, "return async function Fetcher(") {
		t.Errorf("generated function is not async\n%s", art.Source)
	}
	if !strings.Contains(art.Source, "await execute.Fetch(") {
		t.Errorf("async call is not awaited\n%s", art.Source)
	}
}

func TestCompilePull(t *testing.T) {
	g := &workflow.Graph{
		Name: "lazy-read",
		Types: map[string]*workflow.NodeType{
			"Lazy": {
				Name:        "Lazy",
				PullTrigger: "demand",
				Inputs:      []workflow.PortDefinition{port("demand", workflow.TypeStep)},
				Outputs:     []workflow.PortDefinition{port("value", workflow.TypeNumber)},
			},
			"Sum2": {
				Name:    "Sum2",
				Inputs:  []workflow.PortDefinition{port("x", workflow.TypeNumber), port("y", workflow.TypeNumber)},
				Outputs: []workflow.PortDefinition{port("out", workflow.TypeNumber)},
			},
		},
		Instances: []*workflow.NodeInstance{
			{ID: "lazy", Type: "Lazy"},
			{ID: "add", Type: "Sum2"},
		},
		Connections: []workflow.Connection{
			conn("lazy", "value", "add", "x"),
			conn(workflow.StartID, "a", "add", "y"),
			conn("add", "out", workflow.ExitID, "sum"),
		},
		StartPorts: []workflow.PortDefinition{port("a", workflow.TypeNumber)},
		ExitPorts:  []workflow.PortDefinition{port("sum", workflow.TypeNumber)},
	}

	art := compileOK(t, g, Options{})
	if !strings.Contains(art.Source, `__ctx.registerPullExecutor("lazy", function () {`) {
		t.Errorf("pull node not registered lazily\n%s", art.Source)
	}
	if !strings.Contains(art.Source, `(__ctx.pull("lazy")).value`) {
		t.Errorf("consumer does not demand through pull\n%s", art.Source)
	}
	if strings.Contains(art.Source, "x: v_lazy_value") {
		t.Errorf("consumer reads pull output eagerly\n%s", art.Source)
	}
}

func TestCompileTypeHints(t *testing.T) {
	art := compileOK(t, adderGraph(), Options{
		TypeHints: map[string]map[string]string{
			"Add": {"sum": "number"},
		},
	})
	if !strings.Contains(art.Source, "/** @type {number} */ (__r_add.sum)") {
		t.Errorf("type hint not emitted\n%s", art.Source)
	}
}

func TestCompileNilGraph(t *testing.T) {
	if _, err := New(Options{}).Compile(nil); err == nil {
		t.Fatalf("expected error for nil graph")
	}
}

func TestCompileUnresolvedGraph(t *testing.T) {
	g := adderGraph()
	g.Connections = append(g.Connections, conn("add", "missing", workflow.ExitID, "sum"))
	_, err := New(Options{}).Compile(g)
	var serr *StructuralError
	if !errors.As(err, &serr) {
		t.Fatalf("error is %T (%v), want *StructuralError", err, err)
	}
	if len(serr.Issues) == 0 || serr.Issues[0].Code != workflow.IssueUnresolvedEndpoint {
		t.Errorf("issues = %v, want UNRESOLVED_ENDPOINT", serr.Issues)
	}
}

// scopeGraph owns one per-port scope with a single child doubling each item.
func scopeGraph() *workflow.Graph {
	return &workflow.Graph{
		Name: "mapper",
		Types: map[string]*workflow.NodeType{
			"ForEach": {
				Name: "ForEach",
				Inputs: []workflow.PortDefinition{
					port("execute", workflow.TypeStep),
					port("items", workflow.TypeArray),
					scopedPort("mapped", workflow.TypeNumber, "body"),
				},
				Outputs: []workflow.PortDefinition{
					port("onSuccess", workflow.TypeStep),
					scopedPort("item", workflow.TypeNumber, "body"),
					scopedPort("index", workflow.TypeNumber, "body"),
					port("results", workflow.TypeArray),
				},
			},
			"Double": {
				Name:    "Double",
				Inputs:  []workflow.PortDefinition{port("value", workflow.TypeNumber)},
				Outputs: []workflow.PortDefinition{port("result", workflow.TypeNumber)},
			},
		},
		Instances: []*workflow.NodeInstance{
			{ID: "each", Type: "ForEach"},
			{ID: "dbl", Type: "Double", Parent: &workflow.ParentRef{OwnerID: "each", Scope: "body"}},
		},
		Connections: []workflow.Connection{
			conn(workflow.StartID, "items", "each", "items"),
			{
				From: workflow.Endpoint{Node: "each", Port: "item", Scope: "body"},
				To:   workflow.Endpoint{Node: "dbl", Port: "value"},
			},
			{
				From: workflow.Endpoint{Node: "dbl", Port: "result"},
				To:   workflow.Endpoint{Node: "each", Port: "mapped", Scope: "body"},
			},
			conn("each", "results", workflow.ExitID, "results"),
		},
		StartPorts: []workflow.PortDefinition{port("items", workflow.TypeArray)},
		ExitPorts:  []workflow.PortDefinition{port("results", workflow.TypeArray)},
	}
}

func TestCompileScopeClosure(t *testing.T) {
	art := compileOK(t, scopeGraph(), Options{})

	for _, want := range []string{
		"const __scope_each_body = function (__sa_each_body) {",
		"const ai_each = __ctx.addExecution(\"each\", \"ForEach\");",
		"execute.Double({ value: __sa_each_body.item })",
		"const __ret = {};",
		"__ret.mapped = v_dbl_result;",
		"return __ret;",
		"body: __scope_each_body",
	} {
		if !strings.Contains(art.Source, want) {
			t.Errorf("generated source missing %q\n%s", want, art.Source)
		}
	}
}

func TestCompileExpressionNode(t *testing.T) {
	g := &workflow.Graph{
		Name: "pricer",
		Types: map[string]*workflow.NodeType{
			"Total": {
				Name:       "Total",
				Expression: true,
				Inputs:     []workflow.PortDefinition{port("amount", workflow.TypeNumber)},
				Outputs:    []workflow.PortDefinition{port("value", workflow.TypeNumber)},
			},
		},
		Instances: []*workflow.NodeInstance{{ID: "total", Type: "Total"}},
		Connections: []workflow.Connection{
			conn(workflow.StartID, "amount", "total", "amount"),
			conn("total", "value", workflow.ExitID, "value"),
		},
		StartPorts: []workflow.PortDefinition{port("amount", workflow.TypeNumber)},
		ExitPorts:  []workflow.PortDefinition{port("value", workflow.TypeNumber)},
	}

	art := compileOK(t, g, Options{})

	// A value-only node has no STEP ports, so its call is definite and its
	// output is projected from the result object like any other port.
	for _, want := range []string{
		`const ei_total = __ctx.addExecution("total", "Total");`,
		"const v_total_value = __r_total.value;",
		"__result.value = v_total_value;",
	} {
		if !strings.Contains(art.Source, want) {
			t.Errorf("generated source missing %q\n%s", want, art.Source)
		}
	}
}

func TestCompileControlJoin(t *testing.T) {
	g := branchGraph()
	g.Types["Task"] = &workflow.NodeType{
		Name:        "Task",
		ExecuteWhen: workflow.ExecuteWhenAll,
		Inputs:      []workflow.PortDefinition{port("execute", workflow.TypeStep), port("value", workflow.TypeNumber)},
		Outputs:     []workflow.PortDefinition{port("done", workflow.TypeStep), port("out", workflow.TypeNumber)},
	}
	g.Instances = append(g.Instances,
		&workflow.NodeInstance{ID: "t1", Type: "Task"},
		&workflow.NodeInstance{ID: "t2", Type: "Task"},
		&workflow.NodeInstance{ID: "join", Type: "Task"},
	)
	g.Connections = append(g.Connections,
		conn(workflow.StartID, "value", "t1", "value"),
		conn(workflow.StartID, "value", "t2", "value"),
		conn("check", "onSuccess", "t1", "execute"),
		conn("t1", "done", "join", "execute"),
		conn("t2", "done", "join", "execute"),
		conn("t1", "out", "join", "value"),
	)

	art := compileOK(t, g, Options{})

	// Two control predecessors mean the join runs after both have fired,
	// guarded by the union of their branch conditions.
	t1Idx := strings.Index(art.Source, "ei_t1 = __ctx.addExecution")
	t2Idx := strings.Index(art.Source, "ei_t2 = __ctx.addExecution")
	joinIdx := strings.Index(art.Source, "ei_join = __ctx.addExecution")
	if t1Idx < 0 || t2Idx < 0 || joinIdx < 0 || joinIdx < t1Idx || joinIdx < t2Idx {
		t.Errorf("join not ordered after both controllers (t1=%d t2=%d join=%d)\n%s", t1Idx, t2Idx, joinIdx, art.Source)
	}
	// t1 is conditional on check's success branch, so the join inherits that
	// condition and gets a hoisted binding.
	if !strings.Contains(art.Source, "let ei_join, v_join_out;") {
		t.Errorf("join with a conditional controller is not hoisted\n%s", art.Source)
	}
}

func TestCompileNodeLevelScope(t *testing.T) {
	g := &workflow.Graph{
		Name: "grouped",
		Types: map[string]*workflow.NodeType{
			"Group": {
				Name: "Group",
				Inputs: []workflow.PortDefinition{
					port("seed", workflow.TypeNumber),
					scopedPort("note", workflow.TypeNumber, "grp"),
				},
				Outputs: []workflow.PortDefinition{port("token", workflow.TypeNumber)},
			},
			"Use": {
				Name:    "Use",
				Inputs:  []workflow.PortDefinition{port("value", workflow.TypeNumber)},
				Outputs: []workflow.PortDefinition{port("out", workflow.TypeNumber)},
			},
		},
		Instances: []*workflow.NodeInstance{
			{ID: "group", Type: "Group"},
			{ID: "kid", Type: "Use", Parent: &workflow.ParentRef{OwnerID: "group", Scope: "grp"}},
		},
		Connections: []workflow.Connection{
			conn(workflow.StartID, "seed", "group", "seed"),
			conn("group", "token", "kid", "value"),
			{
				From: workflow.Endpoint{Node: "kid", Port: "out"},
				To:   workflow.Endpoint{Node: "group", Port: "note", Scope: "grp"},
			},
			conn("kid", "out", workflow.ExitID, "out"),
		},
		StartPorts: []workflow.PortDefinition{port("seed", workflow.TypeNumber)},
		ExitPorts:  []workflow.PortDefinition{port("out", workflow.TypeNumber)},
	}

	art := compileOK(t, g, Options{})

	// A scope with no scoped outputs groups its children under the owner in
	// the same unit; there is no callback closure.
	if strings.Contains(art.Source, "__scope_group_grp") {
		t.Errorf("scope without scoped outputs compiled to a callback closure\n%s", art.Source)
	}
	groupIdx := strings.Index(art.Source, `const ei_group = __ctx.addExecution`)
	kidIdx := strings.Index(art.Source, `const ei_kid = __ctx.addExecution`)
	if groupIdx < 0 || kidIdx < 0 || kidIdx < groupIdx {
		t.Errorf("grouped child not emitted after its owner (group=%d kid=%d)\n%s", groupIdx, kidIdx, art.Source)
	}
	if !strings.Contains(art.Source, "__result.out = v_kid_out;") {
		t.Errorf("grouped child's output not wired to the result\n%s", art.Source)
	}
}

func TestCompileUndeclaredScope(t *testing.T) {
	g := scopeGraph()
	g.Instances[1].Parent.Scope = "nosuch"

	_, err := New(Options{}).Compile(g)
	var serr *StructuralError
	if !errors.As(err, &serr) {
		t.Fatalf("error is %T (%v), want *StructuralError", err, err)
	}
	found := false
	for _, issue := range serr.Issues {
		if issue.Code == workflow.IssueUnresolvedEndpoint && issue.Node == "dbl" {
			found = true
		}
	}
	if !found {
		t.Errorf("issues = %v, want an unresolved issue for the misplaced child", serr.Issues)
	}
}

func TestCompileExitStatusOrdering(t *testing.T) {
	art := compileOK(t, adderGraph(), Options{})

	running := strings.Index(art.Source, `{ id: "Exit", nodeTypeName: "Exit", executionIndex: ei_Exit, status: "RUNNING" }`)
	final := strings.Index(art.Source, `{ id: "Exit", nodeTypeName: "Exit", executionIndex: ei_Exit, status: __ctx.finalStatus() }`)
	if running < 0 || final < 0 || final < running {
		t.Errorf("Exit must report RUNNING before its final status (running=%d final=%d)\n%s", running, final, art.Source)
	}
}

func TestCompileModeControlsBoundaryEvents(t *testing.T) {
	debug := compileOK(t, scopeGraph(), Options{Mode: execution.ModeDebug})
	prod := compileOK(t, scopeGraph(), Options{Mode: execution.ModeProduction})

	if !strings.Contains(debug.Source, `side: "start"`) {
		t.Errorf("debug source lacks start-side boundary events\n%s", debug.Source)
	}
	if !strings.Contains(debug.Source, `side: "exit"`) {
		t.Errorf("debug source lacks exit-side boundary events\n%s", debug.Source)
	}
	if strings.Contains(prod.Source, `side: "start"`) || strings.Contains(prod.Source, `side: "exit"`) {
		t.Errorf("production source still carries boundary events\n%s", prod.Source)
	}
}
