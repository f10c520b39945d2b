package workflow

import (
	"strings"
	"testing"
)

func testGraph() *Graph {
	return &Graph{
		Name: "sample",
		Types: map[string]*NodeType{
			"Check": {
				Name: "Check",
				Inputs: []PortDefinition{
					{Name: "execute", Type: TypeStep},
					{Name: "value", Type: TypeNumber},
				},
				Outputs: []PortDefinition{
					{Name: "onSuccess", Type: TypeStep},
					{Name: "onFailure", Type: TypeStep},
				},
			},
			"ForEach": {
				Name: "ForEach",
				Inputs: []PortDefinition{
					{Name: "items", Type: TypeArray},
					{Name: "mapped", Type: TypeNumber, Scope: "body"},
				},
				Outputs: []PortDefinition{
					{Name: "item", Type: TypeNumber, Scope: "body"},
					{Name: "results", Type: TypeArray},
				},
			},
		},
		Instances: []*NodeInstance{
			{ID: "check", Type: "Check"},
			{ID: "each", Type: "ForEach"},
			{ID: "inner", Type: "Check", Parent: &ParentRef{OwnerID: "each", Scope: "body"}},
		},
		Connections: []Connection{
			{From: Endpoint{Node: StartID, Port: "value"}, To: Endpoint{Node: "check", Port: "value"}},
			{From: Endpoint{Node: "check", Port: "onSuccess"}, To: Endpoint{Node: "each", Port: "items"}},
			{From: Endpoint{Node: "each", Port: "results"}, To: Endpoint{Node: ExitID, Port: "out"}},
		},
		StartPorts: []PortDefinition{{Name: "value", Type: TypeNumber}},
		ExitPorts:  []PortDefinition{{Name: "out", Type: TypeArray}},
	}
}

func TestResolveClean(t *testing.T) {
	g := testGraph()
	// The onSuccess->items connection is a type mismatch at the value level
	// but both endpoints resolve; Resolve checks resolution only.
	if issues := g.Resolve(); len(issues) != 0 {
		t.Errorf("issues = %+v, want none", issues)
	}
}

func TestResolveUnknownType(t *testing.T) {
	g := testGraph()
	g.Instances = append(g.Instances, &NodeInstance{ID: "ghost", Type: "Missing"})

	issues := g.Resolve()
	if len(issues) != 1 {
		t.Fatalf("issues = %+v, want 1", issues)
	}
	if issues[0].Code != IssueUnknownType || issues[0].Node != "ghost" {
		t.Errorf("issue = %+v", issues[0])
	}
	if !strings.Contains(issues[0].Error(), "UNKNOWN_TYPE") {
		t.Errorf("Error() = %q", issues[0].Error())
	}
}

func TestResolveUnresolvedEndpoints(t *testing.T) {
	g := testGraph()
	g.Connections = append(g.Connections,
		Connection{From: Endpoint{Node: "check", Port: "nope"}, To: Endpoint{Node: "each", Port: "items"}},
		Connection{From: Endpoint{Node: "check", Port: "onSuccess"}, To: Endpoint{Node: "nowhere", Port: "x"}},
	)

	issues := g.Resolve()
	if len(issues) != 2 {
		t.Fatalf("issues = %+v, want 2", issues)
	}
	for _, issue := range issues {
		if issue.Code != IssueUnresolvedEndpoint {
			t.Errorf("issue code = %s, want UNRESOLVED_ENDPOINT", issue.Code)
		}
		if issue.Connection == nil {
			t.Errorf("issue %+v missing connection context", issue)
		}
	}
}

func TestResolveOrphanParent(t *testing.T) {
	g := testGraph()
	g.Instances[2].Parent.OwnerID = "vanished"

	issues := g.Resolve()
	if len(issues) != 1 || issues[0].Code != IssueUnresolvedEndpoint {
		t.Fatalf("issues = %+v, want one unresolved parent", issues)
	}
}

func TestResolveUndeclaredScope(t *testing.T) {
	g := testGraph()
	g.Instances[2].Parent.Scope = "nosuch"

	issues := g.Resolve()
	if len(issues) != 1 {
		t.Fatalf("issues = %+v, want 1", issues)
	}
	if issues[0].Code != IssueUnresolvedEndpoint || issues[0].Node != "inner" {
		t.Errorf("issue = %+v, want an unresolved-scope issue for inner", issues[0])
	}
	if !strings.Contains(issues[0].Message, "nosuch") {
		t.Errorf("message = %q, want the scope name", issues[0].Message)
	}
}

func TestIsControl(t *testing.T) {
	g := testGraph()
	control := Connection{
		From: Endpoint{Node: "check", Port: "onSuccess"},
		To:   Endpoint{Node: "inner", Port: "execute"},
	}
	if !g.IsControl(control) {
		t.Errorf("STEP->STEP connection not recognized as control")
	}
	data := g.Connections[0]
	if g.IsControl(data) {
		t.Errorf("NUMBER connection recognized as control")
	}
}

func TestScopeTraversal(t *testing.T) {
	g := testGraph()

	top := g.TopLevel()
	if len(top) != 2 || top[0].ID != "check" || top[1].ID != "each" {
		t.Errorf("TopLevel = %+v", top)
	}
	children := g.ScopeChildren("each", "body")
	if len(children) != 1 || children[0].ID != "inner" {
		t.Errorf("ScopeChildren = %+v", children)
	}
	names := g.ScopeNames(g.Instance("each"))
	if len(names) != 1 || names[0] != "body" {
		t.Errorf("ScopeNames = %v", names)
	}
	if names := g.ScopeNames(g.Instance("check")); len(names) != 0 {
		t.Errorf("ScopeNames(check) = %v, want none", names)
	}
}

func TestPortOfScopedFallback(t *testing.T) {
	g := testGraph()

	// A scope-qualified endpoint resolves only to a matching scoped port.
	if _, ok := g.PortOf(Endpoint{Node: "each", Port: "item", Scope: "body"}, false); !ok {
		t.Errorf("scoped endpoint did not resolve")
	}
	if _, ok := g.PortOf(Endpoint{Node: "each", Port: "results", Scope: "body"}, false); ok {
		t.Errorf("scope qualifier matched an ordinary port")
	}
	// An unqualified endpoint falls back to the scoped port when no ordinary
	// port shares the name.
	p, ok := g.PortOf(Endpoint{Node: "each", Port: "item"}, false)
	if !ok || p.Scope != "body" {
		t.Errorf("unqualified fallback = %+v, %v", p, ok)
	}
}

func TestDecodeRoundTrip(t *testing.T) {
	data, err := Encode(testGraph())
	if err != nil {
		t.Fatalf("encode failed: %v", err)
	}
	g, err := Decode(data)
	if err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	if g.Name != "sample" || len(g.Instances) != 3 || len(g.Connections) != 3 {
		t.Errorf("decoded graph = %+v", g)
	}
	if g.Types["Check"].Name != "Check" {
		t.Errorf("type name not preserved: %+v", g.Types["Check"])
	}
}

func TestDecodeFillsTypeName(t *testing.T) {
	g, err := Decode([]byte(`{"name":"wf","types":{"Add":{"inputs":[],"outputs":[]}}}`))
	if err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	if g.Types["Add"].Name != "Add" {
		t.Errorf("type name = %q, want filled from map key", g.Types["Add"].Name)
	}
}

func TestDecodeRejectsBadShapes(t *testing.T) {
	cases := []struct {
		name string
		json string
	}{
		{"missing name", `{"types":{}}`},
		{"boundary collision", `{"name":"wf","instances":[{"id":"Start","type":"T"}]}`},
		{"duplicate id", `{"name":"wf","instances":[{"id":"a","type":"T"},{"id":"a","type":"T"}]}`},
		{"empty id", `{"name":"wf","instances":[{"id":"","type":"T"}]}`},
		{"type name mismatch", `{"name":"wf","types":{"Add":{"name":"Sub"}}}`},
		{"malformed", `{"name":`},
	}
	for _, tc := range cases {
		if _, err := Decode([]byte(tc.json)); err == nil {
			t.Errorf("%s: decode accepted invalid input", tc.name)
		}
	}
}
