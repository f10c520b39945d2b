// Package vm loads compiled workflow artifacts into a JavaScript runtime
// and invokes them against a Go node library, bridging the execution
// context natives the generated programs call.
package vm

import (
	"context"
	"fmt"
	"sync"

	"github.com/dop251/goja"
	"github.com/getsentry/sentry-go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/synergenius-fw/flow-weaver-sub000/pkg/compiler"
	"github.com/synergenius-fw/flow-weaver-sub000/pkg/concurrency"
	"github.com/synergenius-fw/flow-weaver-sub000/pkg/execution"
)

// Runner loads artifacts and invokes the resulting programs. Safe for
// concurrent use; every invocation gets its own runtime and context.
type Runner struct {
	log           *zap.Logger
	tracer        trace.Tracer
	mode          execution.Mode
	limiter       *concurrency.Limiter
	captureErrors bool
}

// Option configures a Runner.
type Option func(*Runner)

// WithLogger sets the runner's logger.
func WithLogger(log *zap.Logger) Option {
	return func(r *Runner) {
		if log != nil {
			r.log = log
		}
	}
}

// WithTracer sets the tracer used to span invocations.
func WithTracer(tracer trace.Tracer) Option {
	return func(r *Runner) {
		if tracer != nil {
			r.tracer = tracer
		}
	}
}

// WithMode selects the instrumentation mode of the execution contexts the
// runner creates. Defaults to debug.
func WithMode(mode execution.Mode) Option {
	return func(r *Runner) {
		if mode != "" {
			r.mode = mode
		}
	}
}

// WithLimiter bounds the number of invocations running at once across the
// runner; each running invocation owns a full JavaScript runtime.
func WithLimiter(limiter *concurrency.Limiter) Option {
	return func(r *Runner) {
		r.limiter = limiter
	}
}

// WithErrorCapture forwards invocation failures to the configured Sentry
// hub in addition to returning them.
func WithErrorCapture() Option {
	return func(r *Runner) {
		r.captureErrors = true
	}
}

// NewRunner creates a runner.
func NewRunner(opts ...Option) *Runner {
	r := &Runner{
		log:    zap.NewNop(),
		tracer: otel.Tracer("flow-weaver/vm"),
		mode:   execution.ModeDebug,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Program is one loaded artifact, compiled once and invocable many times.
type Program struct {
	artifact *compiler.Artifact
	compiled *goja.Program
	runner   *Runner
}

// Load parses and compiles an artifact's source. The returned Program is
// immutable and safe for concurrent Invoke calls.
func (r *Runner) Load(artifact *compiler.Artifact) (*Program, error) {
	if artifact == nil {
		return nil, fmt.Errorf("load: artifact is nil")
	}
	compiled, err := goja.Compile(artifact.WorkflowName+".js", artifact.Source, true)
	if err != nil {
		return nil, fmt.Errorf("load %q: compile generated program: %w", artifact.WorkflowName, err)
	}
	r.log.Debug("program loaded",
		zap.String("workflow", artifact.WorkflowName),
		zap.String("checksum", artifact.Checksum))
	return &Program{artifact: artifact, compiled: compiled, runner: r}, nil
}

// Artifact returns the artifact the program was loaded from.
func (p *Program) Artifact() *compiler.Artifact {
	return p.artifact
}

// Result is the outcome of one invocation.
type Result struct {
	// RunID is the invocation's unique id.
	RunID string
	// Output is the workflow's result object, keyed by Exit port name.
	Output map[string]interface{}
	// Status is the final workflow status: FAILED when any activation
	// failed, SUCCEEDED otherwise.
	Status execution.Status
	// Records lists every activation in allocation order.
	Records []execution.ExecutionRecord
}

// Invoke runs the program once. Each invocation builds a fresh runtime and
// execution context; events stream to sink in emission order. Cancelling
// ctx interrupts the running program.
func (p *Program) Invoke(ctx context.Context, nodes Library, params map[string]interface{}, sink execution.EventSink) (res *Result, err error) {
	r := p.runner
	if r.limiter != nil {
		if err := r.limiter.Acquire(ctx); err != nil {
			return nil, fmt.Errorf("invoke %q: %w", p.artifact.WorkflowName, err)
		}
		defer r.limiter.Release()
	}
	ctx, span := r.tracer.Start(ctx, "workflow.invoke", trace.WithAttributes(
		attribute.String("workflow.name", p.artifact.WorkflowName),
		attribute.String("workflow.checksum", p.artifact.Checksum),
		attribute.Bool("workflow.async", p.artifact.IsAsync),
	))
	defer span.End()

	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			if r.captureErrors {
				sentry.CaptureException(err)
			}
		} else {
			span.SetStatus(codes.Ok, "")
		}
	}()

	rt := goja.New()
	applyHygiene(rt)

	ectx := execution.NewContext(p.artifact.WorkflowName, r.mode, sink)
	span.SetAttributes(attribute.String("workflow.run_id", ectx.RunID()))

	done := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		select {
		case <-ctx.Done():
			rt.Interrupt("invocation cancelled")
		case <-done:
		}
	}()
	defer func() {
		close(done)
		wg.Wait()
		if r := recover(); r != nil {
			err = fmt.Errorf("invoke %q: runtime panic: %v", p.artifact.WorkflowName, r)
		}
	}()

	b := newBridge(rt, ectx, ctx)
	if err := b.install(); err != nil {
		return nil, fmt.Errorf("invoke %q: %w", p.artifact.WorkflowName, err)
	}
	execObj, err := b.executeObject(nodes)
	if err != nil {
		return nil, fmt.Errorf("invoke %q: %w", p.artifact.WorkflowName, err)
	}

	v, err := rt.RunProgram(p.compiled)
	if err != nil {
		return nil, fmt.Errorf("invoke %q: evaluate program: %w", p.artifact.WorkflowName, invocationError(ctx, err))
	}
	fn, ok := goja.AssertFunction(v)
	if !ok {
		return nil, fmt.Errorf("invoke %q: program did not yield a callable", p.artifact.WorkflowName)
	}

	out, err := fn(goja.Undefined(), execObj, rt.ToValue(params), goja.Undefined())
	if err != nil {
		return nil, fmt.Errorf("invoke %q: %w", p.artifact.WorkflowName, invocationError(ctx, err))
	}

	value, err := settle(out)
	if err != nil {
		return nil, fmt.Errorf("invoke %q: %w", p.artifact.WorkflowName, invocationError(ctx, err))
	}

	output, _ := value.Export().(map[string]interface{})
	if output == nil {
		output = make(map[string]interface{})
	}
	status := execution.StatusSucceeded
	if ectx.Failed() {
		status = execution.StatusFailed
	}
	r.log.Info("workflow invoked",
		zap.String("workflow", p.artifact.WorkflowName),
		zap.String("run_id", ectx.RunID()),
		zap.String("status", string(status)))
	return &Result{
		RunID:   ectx.RunID(),
		Output:  output,
		Status:  status,
		Records: ectx.Records(),
	}, nil
}

// settle resolves the returned value of an async program. The job queue has
// drained by the time the top-level call returns, so a well-formed program's
// promise is already settled.
func settle(v goja.Value) (goja.Value, error) {
	promise, ok := v.Export().(*goja.Promise)
	if !ok {
		return v, nil
	}
	switch promise.State() {
	case goja.PromiseStateFulfilled:
		return promise.Result(), nil
	case goja.PromiseStateRejected:
		return nil, fmt.Errorf("workflow rejected: %s", promise.Result().String())
	default:
		return nil, fmt.Errorf("workflow promise still pending after return")
	}
}

// invocationError distinguishes cancellation from script failure.
func invocationError(ctx context.Context, err error) error {
	if _, ok := err.(*goja.InterruptedError); ok && ctx.Err() != nil {
		return fmt.Errorf("cancelled: %w", ctx.Err())
	}
	if exc, ok := err.(*goja.Exception); ok {
		return fmt.Errorf("workflow error: %s", exc.Value().String())
	}
	return err
}
