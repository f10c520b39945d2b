// Package compiler lowers a workflow graph into an executable program: it
// plans a deterministic execution order, resolves branch promotion and
// cancellation, generates scope callbacks, and emits the instrumented
// function text the runtime invokes.
package compiler

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"

	"go.uber.org/zap"

	"github.com/synergenius-fw/flow-weaver-sub000/pkg/errors"
	"github.com/synergenius-fw/flow-weaver-sub000/pkg/execution"
	"github.com/synergenius-fw/flow-weaver-sub000/pkg/workflow"
)

// Options configures one Compiler.
type Options struct {
	// Mode selects the instrumentation level of the generated program.
	// Debug programs emit scope-boundary variable events; production
	// programs skip them. Defaults to debug.
	Mode execution.Mode

	// TypeHints optionally annotates output bindings with JSDoc type casts,
	// keyed by node type name and then output port name.
	TypeHints map[string]map[string]string

	// Logger receives compilation diagnostics. Defaults to a no-op logger.
	Logger *zap.Logger
}

// Artifact is the result of one successful compilation.
type Artifact struct {
	// WorkflowName is the source graph's name.
	WorkflowName string

	// FunctionName is the name of the generated callable.
	FunctionName string

	// Source is the complete generated program text. Evaluating it yields
	// the workflow function.
	Source string

	// IsAsync reports whether the generated function is async, in which
	// case invoking it returns a promise.
	IsAsync bool

	// Checksum is the hex SHA-256 of Source, used as the storage key.
	Checksum string
}

// Compiler turns workflow graphs into artifacts. It is stateless across
// Compile calls and safe for concurrent use.
type Compiler struct {
	opts Options
	log  *zap.Logger
}

// New returns a Compiler with the given options.
func New(opts Options) *Compiler {
	if opts.Mode == "" {
		opts.Mode = execution.ModeDebug
	}
	log := opts.Logger
	if log == nil {
		log = zap.NewNop()
	}
	return &Compiler{opts: opts, log: log}
}

// Compile lowers one graph. Structural problems in the graph are reported
// as a *StructuralError carrying every issue found; an error wrapping
// ErrInternalDefect indicates a planner bug, not bad input.
func (c *Compiler) Compile(g *workflow.Graph) (*Artifact, error) {
	if g == nil {
		return nil, fmt.Errorf("compile: %w: graph is nil", errors.ErrInvalidGraph)
	}
	issues := g.Resolve()
	if len(issues) > 0 {
		c.log.Warn("workflow failed structural validation",
			zap.String("workflow", g.Name),
			zap.Int("issues", len(issues)))
		return nil, &StructuralError{Workflow: g.Name, Issues: issues}
	}

	top, err := buildUnit(g, nil, nil, "", g.TopLevel(), &issues)
	if err != nil {
		return nil, fmt.Errorf("compile %q: %w", g.Name, err)
	}
	if len(issues) > 0 {
		return nil, &StructuralError{Workflow: g.Name, Issues: issues}
	}
	top.resolveAsync()

	src, err := newEmitter(g, c.opts).emit(top)
	if err != nil {
		return nil, fmt.Errorf("compile %q: %w", g.Name, err)
	}

	sum := sha256.Sum256([]byte(src))
	art := &Artifact{
		WorkflowName: g.Name,
		FunctionName: functionName(g.Name),
		Source:       src,
		IsAsync:      top.async,
		Checksum:     hex.EncodeToString(sum[:]),
	}
	c.log.Info("workflow compiled",
		zap.String("workflow", g.Name),
		zap.String("function", art.FunctionName),
		zap.Bool("async", art.IsAsync),
		zap.String("checksum", art.Checksum),
		zap.Int("bytes", len(src)))
	return art, nil
}
