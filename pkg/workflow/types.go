// Package workflow defines the immutable graph model consumed by the
// compiler: node types with typed ports, node instances, connections, and
// scope groupings. Graphs are produced by the annotation parser/validator
// and are never mutated after construction.
package workflow

// DataType is the declared type of a port.
type DataType string

const (
	// TypeStep marks a control-flow-only port carrying no payload.
	TypeStep DataType = "STEP"
	// TypeString is a string-valued data port.
	TypeString DataType = "STRING"
	// TypeNumber is a numeric data port.
	TypeNumber DataType = "NUMBER"
	// TypeBoolean is a boolean data port.
	TypeBoolean DataType = "BOOLEAN"
	// TypeObject is an object-valued data port.
	TypeObject DataType = "OBJECT"
	// TypeArray is an array-valued data port.
	TypeArray DataType = "ARRAY"
	// TypeFunction is a callable-valued data port.
	TypeFunction DataType = "FUNCTION"
	// TypeAny accepts any value.
	TypeAny DataType = "ANY"
)

// ExecuteWhen describes how multiple incoming control edges combine.
type ExecuteWhen string

const (
	// ExecuteWhenAll requires every incoming control edge to have fired.
	ExecuteWhenAll ExecuteWhen = "all"
)

// PortDefinition describes a single input or output port of a node type.
type PortDefinition struct {
	// Name is the port name, unique within its direction on the node type.
	Name string `json:"name"`
	// Type is the declared data type of the port.
	Type DataType `json:"type"`
	// Optional marks ports that may be left unconnected.
	Optional bool `json:"optional,omitempty"`
	// Default is the fallback value for an unconnected optional port.
	Default interface{} `json:"default,omitempty"`
	// Scope names the scope group this port belongs to, empty for ordinary ports.
	Scope string `json:"scope,omitempty"`
}

// IsStep reports whether the port is a control-flow port.
func (p PortDefinition) IsStep() bool {
	return p.Type == TypeStep
}

// NodeType describes a reusable processing node: its port signature and
// execution flags. Created once per distinct function signature encountered
// during parsing.
type NodeType struct {
	// Name identifies the node type and selects the node function at runtime.
	Name string `json:"name"`
	// Inputs are the input ports in declaration order.
	Inputs []PortDefinition `json:"inputs"`
	// Outputs are the output ports in declaration order.
	Outputs []PortDefinition `json:"outputs"`
	// IsAsync marks node functions whose calls must be awaited.
	IsAsync bool `json:"isAsync,omitempty"`
	// Expression marks value-only nodes with no execute/success/failure
	// ports: a single return value or field-mapped object.
	Expression bool `json:"expression,omitempty"`
	// PullTrigger names the input port that, when present, makes this node
	// lazily invoked on first demand rather than eagerly executed.
	PullTrigger string `json:"pullTrigger,omitempty"`
	// ExecuteWhen controls how multiple incoming control edges combine.
	ExecuteWhen ExecuteWhen `json:"executeWhen,omitempty"`
}

// Input returns the input port with the given name.
func (t *NodeType) Input(name string) (PortDefinition, bool) {
	for _, p := range t.Inputs {
		if p.Name == name {
			return p, true
		}
	}
	return PortDefinition{}, false
}

// Output returns the output port with the given name.
func (t *NodeType) Output(name string) (PortDefinition, bool) {
	for _, p := range t.Outputs {
		if p.Name == name {
			return p, true
		}
	}
	return PortDefinition{}, false
}

// StepOutputs returns the control-flow output ports in declaration order.
func (t *NodeType) StepOutputs() []PortDefinition {
	var steps []PortDefinition
	for _, p := range t.Outputs {
		if p.IsStep() && p.Scope == "" {
			steps = append(steps, p)
		}
	}
	return steps
}

// ScopedPorts returns the ports (both directions) belonging to the named
// scope group, outputs first, preserving declaration order.
func (t *NodeType) ScopedPorts(scope string) (outputs, inputs []PortDefinition) {
	for _, p := range t.Outputs {
		if p.Scope == scope {
			outputs = append(outputs, p)
		}
	}
	for _, p := range t.Inputs {
		if p.Scope == scope {
			inputs = append(inputs, p)
		}
	}
	return outputs, inputs
}

// IsPull reports whether instances of this type are lazily invoked.
func (t *NodeType) IsPull() bool {
	return t.PullTrigger != ""
}

// ParentRef locates a node instance inside another instance's scope.
type ParentRef struct {
	// OwnerID is the id of the instance owning the scope.
	OwnerID string `json:"ownerId"`
	// Scope is the scope name on the owner.
	Scope string `json:"scope"`
}

// NodeInstance is one occurrence of a node type in a workflow.
type NodeInstance struct {
	// ID is unique within the workflow.
	ID string `json:"id"`
	// Type is the name of the instance's NodeType.
	Type string `json:"type"`
	// Parent is set when the instance is nested inside a scope; nil for
	// top-level instances.
	Parent *ParentRef `json:"parent,omitempty"`
}

// Endpoint is one end of a connection. The Scope qualifier disambiguates a
// scoped port occurrence from a same-named ordinary port on the instance.
type Endpoint struct {
	Node  string `json:"node"`
	Port  string `json:"port"`
	Scope string `json:"scope,omitempty"`
}

// Connection wires an output endpoint to an input endpoint. A connection
// whose ports are STEP on both ends is a control edge; otherwise data.
type Connection struct {
	From Endpoint `json:"from"`
	To   Endpoint `json:"to"`
}

// ScopeKey identifies a scope group as "<ownerId>.<scopeName>".
func ScopeKey(ownerID, scope string) string {
	return ownerID + "." + scope
}
