package federation

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/catenax-ng/product-agents-edc-sub000/agreement"
	"github.com/catenax-ng/product-agents-edc-sub000/internal/metrics"
	"github.com/catenax-ng/product-agents-edc-sub000/internal/pool"
	"github.com/catenax-ng/product-agents-edc-sub000/sparql"
)

const instrumentationName = "github.com/catenax-ng/product-agents-edc-sub000/federation"

// Drop reasons reported to metrics.
const (
	dropUnresolved   = "unresolved_target"
	dropBatchLimit   = "batch_limit"
	dropUncorrelated = "unknown_correlation"
)

// LocalEvaluator evaluates fragments addressed to assets this node serves.
type LocalEvaluator interface {
	Evaluate(ctx context.Context, call *Call, sub sparql.Node, input []sparql.Binding) (sparql.Iterator, error)
}

// Config 联邦执行配置
type Config struct {
	// BatchSize caps the bindings sent per target. Zero means unbounded,
	// negative values are clamped to 1.
	BatchSize int
	// Targets filters concrete target URLs. Deny wins.
	Targets Patterns
	// PollInterval is the merging iterator's scan interval.
	PollInterval time.Duration
}

// ExecutorOption configures the Executor.
type ExecutorOption func(*Executor)

// WithLocalEvaluator serves local asset targets.
func WithLocalEvaluator(l LocalEvaluator) ExecutorOption {
	return func(e *Executor) { e.local = l }
}

// WithPool dispatches groups on p instead of bare goroutines.
func WithPool(p *pool.GoroutinePool) ExecutorOption {
	return func(e *Executor) { e.pool = p }
}

// WithExecutorMetrics records remote call metrics.
func WithExecutorMetrics(m *metrics.Collector) ExecutorOption {
	return func(e *Executor) { e.metrics = m }
}

// Executor evaluates SERVICE nodes against partitioned, batched and
// deduplicated input bindings.
type Executor struct {
	rewriter  *Rewriter
	transport Transport
	local     LocalEvaluator
	pool      *pool.GoroutinePool
	metrics   *metrics.Collector
	tracer    trace.Tracer
	config    Config
	logger    *zap.Logger
}

// NewExecutor creates an executor.
func NewExecutor(rewriter *Rewriter, transport Transport, config Config, logger *zap.Logger, opts ...ExecutorOption) *Executor {
	if logger == nil {
		logger = zap.NewNop()
	}
	switch {
	case config.BatchSize == 0:
		config.BatchSize = math.MaxInt
	case config.BatchSize < 0:
		config.BatchSize = 1
	}
	if config.PollInterval <= 0 {
		config.PollInterval = DefaultPollInterval
	}
	e := &Executor{
		rewriter:  rewriter,
		transport: transport,
		tracer:    otel.Tracer(instrumentationName),
		config:    config,
		logger:    logger.With(zap.String("component", "executor")),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// group is the candidate bindings sharing one concrete target.
type group struct {
	target string
	rows   []sparql.Binding
	call   *Call
}

// Execute evaluates svc for every input binding. Validation problems of
// non-silent services are returned before any remote call is made; remote
// failures surface from the iterator's Err.
func (e *Executor) Execute(ctx context.Context, svc *sparql.Service, input []sparql.Binding) (sparql.Iterator, error) {
	groups := e.partition(ctx, svc, input)
	if len(groups) == 0 {
		return sparql.NewSliceIterator(nil), nil
	}

	// Validation pass; nothing goes out before every group is checked.
	futures := make([]*future, 0, len(groups))
	var runnable []*group
	for _, g := range groups {
		err := e.validate(ctx, svc, g)
		if err == nil {
			runnable = append(runnable, g)
			continue
		}
		if !svc.Silent {
			for _, f := range futures {
				f.discard()
			}
			return nil, err
		}
		e.degrade(ctx, g, err)
		futures = append(futures, completedFuture(sparql.NewSliceIterator(g.rows), nil))
	}

	for _, g := range runnable {
		if len(g.rows) > e.config.BatchSize {
			dropped := len(g.rows) - e.config.BatchSize
			e.logger.Warn("batch limit reached, dropping candidate bindings",
				zap.String("target", g.target),
				zap.Int("dropped", dropped))
			WarningsFrom(ctx).Add(Warning{
				TargetAsset: g.call.Asset,
				Problem:     fmt.Sprintf("%d bindings exceeded the batch size and were not sent", dropped),
				Context:     g.target,
			})
			e.metrics.RecordDropped(dropBatchLimit, dropped)
			g.rows = g.rows[:e.config.BatchSize]
		}
		futures = append(futures, e.dispatch(ctx, svc, g))
	}
	return newMergingIterator(ctx, e.config.PollInterval, futures), nil
}

// partition groups bindings by concrete target, keeping first-seen order.
// Bindings that leave the target unbound are dropped.
func (e *Executor) partition(ctx context.Context, svc *sparql.Service, input []sparql.Binding) []*group {
	graphVars := graphVariables(svc.Sub)
	var (
		groups     []*group
		index      = make(map[string]*group)
		unresolved int
	)
	for _, b := range input {
		text, ok := targetText(svc.Target, b)
		if !ok {
			unresolved++
			continue
		}
		key := text
		if len(graphVars) > 0 {
			key += "\x00" + b.Key(graphVars)
		}
		g, ok := index[key]
		if !ok {
			g = &group{target: text}
			index[key] = g
			groups = append(groups, g)
		}
		g.rows = append(g.rows, b)
	}
	if unresolved > 0 {
		e.logger.Warn("dropping bindings with unresolvable service target",
			zap.String("target", svc.Target.String()),
			zap.Int("dropped", unresolved))
		WarningsFrom(ctx).Add(Warning{
			Problem: fmt.Sprintf("%d bindings did not resolve the service target", unresolved),
			Context: svc.Target.String(),
		})
		e.metrics.RecordDropped(dropUnresolved, unresolved)
	}
	return groups
}

// validate checks target patterns and plans the call without network access.
func (e *Executor) validate(ctx context.Context, svc *sparql.Service, g *group) error {
	if !agreement.IsAsset(g.target) && !e.config.Targets.Permits(g.target) {
		return validationError(fmt.Errorf("%w: %s", ErrTargetDenied, g.target), g.target)
	}
	call, err := e.rewriter.Plan(ctx, svc, g.rows[0])
	if err != nil {
		return err
	}
	g.call = call
	return nil
}

func (e *Executor) degrade(ctx context.Context, g *group, cause error) {
	e.logger.Warn("silent service failed, keeping input bindings",
		zap.String("target", g.target),
		zap.Int("bindings", len(g.rows)),
		zap.Error(cause))
	WarningsFrom(ctx).Add(Warning{Problem: cause.Error(), Context: g.target})
}

// dispatch runs one group in the background.
func (e *Executor) dispatch(ctx context.Context, svc *sparql.Service, g *group) *future {
	fctx, cancel := context.WithCancel(ctx)
	f := newFuture(cancel)

	task := func(taskCtx context.Context) (err error) {
		defer func() {
			if r := recover(); r != nil {
				err = fmt.Errorf("service call panicked: %v", r)
				f.complete(nil, upstreamError(err, g.target))
			}
		}()
		it, err := e.runGroup(taskCtx, svc, g)
		if err != nil {
			if svc.Silent && !errors.Is(err, context.Canceled) {
				e.degrade(taskCtx, g, err)
				it, err = sparql.NewSliceIterator(g.rows), nil
			} else {
				err = upstreamError(err, g.target)
			}
		}
		f.complete(it, err)
		return err
	}

	if e.pool == nil {
		go func() { _ = task(fctx) }()
		return f
	}
	if !e.pool.Go(fctx, task) {
		e.logger.Debug("worker pool saturated, service call runs on its own goroutine",
			zap.String("target", g.target))
	}
	return f
}

// runGroup resolves the endpoint, sends one combined request and maps the
// answer back onto the group's bindings.
func (e *Executor) runGroup(ctx context.Context, svc *sparql.Service, g *group) (sparql.Iterator, error) {
	call := *g.call
	if err := e.rewriter.Bind(ctx, &call); err != nil {
		return nil, err
	}

	if call.Local {
		if e.local == nil {
			return nil, fmt.Errorf("%w: %s", ErrNoLocalEvaluator, call.Asset)
		}
		return e.local.Evaluate(ctx, &call, svc.Sub, g.rows)
	}

	batch := newDedupBatch(svc.Sub, g.rows)
	e.metrics.RecordDedup(call.Scheme, len(g.rows), len(batch.distinct))

	req := &Request{Call: &call}
	if call.Skill {
		req.Params = batch.table().Encode()
	} else {
		req.Query = batch.query(svc.Sub)
	}

	ctx, span := e.tracer.Start(ctx, "federation.remote_call",
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("federation.target", call.Target),
			attribute.String("federation.scheme", call.Scheme),
			attribute.String("federation.asset", call.Asset),
			attribute.Bool("federation.skill", call.Skill),
			attribute.Int("federation.bindings", len(g.rows)),
			attribute.Int("federation.rows", len(batch.distinct)),
		))
	defer span.End()

	start := time.Now()
	results, err := e.transport.Do(ctx, req)
	status := "ok"
	if err != nil {
		status = "error"
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	e.metrics.RecordRemoteCall(call.Scheme, status, time.Since(start))
	if err != nil {
		return nil, err
	}

	rows, dropped := batch.expand(results)
	if dropped > 0 {
		e.logger.Warn("dropping result rows with unknown correlation",
			zap.String("target", call.Target),
			zap.Int("dropped", dropped))
		e.metrics.RecordDropped(dropUncorrelated, dropped)
	}
	span.SetAttributes(attribute.Int("federation.results", len(rows)))
	e.logger.Debug("service call completed",
		zap.String("target", call.Target),
		zap.String("asset", call.Asset),
		zap.Int("sent", len(batch.distinct)),
		zap.Int("received", len(results)),
		zap.Int("rows", len(rows)))
	return sparql.NewSliceIterator(rows), nil
}
