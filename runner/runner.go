package runner

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/hupe1980/agentrelay/config"
	"github.com/hupe1980/agentrelay/contextwindow"
	"github.com/hupe1980/agentrelay/core"
	"github.com/hupe1980/agentrelay/logging"
	"github.com/hupe1980/agentrelay/model"
	"github.com/hupe1980/agentrelay/routing"
	"github.com/hupe1980/agentrelay/session"
	"github.com/hupe1980/agentrelay/subagent"
	"github.com/hupe1980/agentrelay/usage"
)

// TracerName is the instrumentation scope of the runner's spans.
const TracerName = "github.com/hupe1980/agentrelay/runner"

// ErrNoProvider is returned for a model id no registered provider serves.
var ErrNoProvider = errors.New("no provider for model")

var _ subagent.Runner = (*Runner)(nil)

// Options holds dependency and configuration overrides passed to New().
type Options struct {
	// MaxModelCalls limits provider calls per run unless the agent configures
	// its own limit.
	MaxModelCalls int
	// MaxToolRounds bounds how many subagent tool rounds a run may perform.
	MaxToolRounds int
	// MaxTokens is forwarded to providers as the completion limit (0: provider default).
	MaxTokens int64
	// Tools are additional tool definitions offered to every model call.
	Tools []model.ToolDefinition
	// SessionStore persists transcripts.
	SessionStore core.SessionStore
	// Tracker accumulates token usage.
	Tracker *usage.Tracker
	// Compactor shrinks transcripts that outgrow the context window.
	Compactor contextwindow.Compactor
	// Tracer creates run and attempt spans.
	Tracer trace.Tracer
	// Sleep waits between retries. Tests replace it to avoid real delays.
	Sleep func(ctx context.Context, d time.Duration) error
	// Logger receives structured run events.
	Logger *logging.RelayLogger
}

// Runner executes agent runs against a configuration snapshot. Public
// methods are safe for concurrent use; each run owns its failover state,
// call limiter and budget exclusively.
type Runner struct {
	cfg       *config.Config
	resolver  *routing.Resolver
	providers map[string]model.Provider

	maxModelCalls int
	maxToolRounds int
	maxTokens     int64
	tools         []model.ToolDefinition

	sessionStore core.SessionStore
	tracker      *usage.Tracker
	compactor    contextwindow.Compactor
	tracer       trace.Tracer
	sleep        func(ctx context.Context, d time.Duration) error
	logger       *logging.RelayLogger

	activeRuns map[string]context.CancelFunc
	mu         sync.RWMutex
}

// New constructs a Runner. providers are keyed by the provider prefix of
// model ids ("anthropic" serves "anthropic/claude-sonnet-4") or by provider
// kind name when the configuration maps prefixes to kinds. The "" key is
// used for model ids nothing else matches.
func New(cfg *config.Config, providers map[string]model.Provider, optFns ...func(o *Options)) *Runner {
	opts := Options{
		MaxModelCalls: 100,
		MaxToolRounds: 8,
		SessionStore:  session.NewInMemoryStore(),
		Tracker:       usage.NewTracker(),
		Compactor:     contextwindow.TrimCompactor{},
		Tracer:        otel.Tracer(TracerName),
		Sleep:         sleepContext,
	}

	for _, fn := range optFns {
		fn(&opts)
	}

	if cfg == nil {
		cfg = &config.Config{}
	}

	ps := make(map[string]model.Provider, len(providers))
	for k, p := range providers {
		ps[k] = p
	}

	return &Runner{
		cfg:           cfg,
		resolver:      cfg.Resolver(),
		providers:     ps,
		maxModelCalls: opts.MaxModelCalls,
		maxToolRounds: opts.MaxToolRounds,
		maxTokens:     opts.MaxTokens,
		tools:         opts.Tools,
		sessionStore:  opts.SessionStore,
		tracker:       opts.Tracker,
		compactor:     opts.Compactor,
		tracer:        opts.Tracer,
		sleep:         opts.Sleep,
		logger:        logging.OrDiscard(opts.Logger).WithComponent("runner"),
		activeRuns:    make(map[string]context.CancelFunc),
	}
}

// Config implements subagent.Runner.
func (r *Runner) Config() *config.Config { return r.cfg }

// MaxSubagentDepth implements subagent.Runner.
func (r *Runner) MaxSubagentDepth(agentID string) int { return r.cfg.MaxSubagentDepth(agentID) }

// ValidateModelAllowlist implements subagent.Runner.
func (r *Runner) ValidateModelAllowlist(agentID, modelID string) bool {
	return r.cfg.ModelAllowed(agentID, modelID)
}

// Resolver returns the resolver built from the configuration snapshot.
func (r *Runner) Resolver() *routing.Resolver { return r.resolver }

// Tracker returns the usage tracker runs record into.
func (r *Runner) Tracker() *usage.Tracker { return r.tracker }

// SessionStore returns the transcript store.
func (r *Runner) SessionStore() core.SessionStore { return r.sessionStore }

// Cancel cancels an in-flight run by ID, including its subagent runs.
func (r *Runner) Cancel(runID string) error {
	r.mu.Lock()
	cancel, exists := r.activeRuns[runID]
	r.mu.Unlock()

	if !exists {
		return fmt.Errorf("run %s not found", runID)
	}

	cancel()

	return nil
}

// ActiveRuns returns the number of runs currently executing.
func (r *Runner) ActiveRuns() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.activeRuns)
}

// RunAndGetResult executes an agent run to completion and returns its
// final result. On success the run's transcript replaces the session's
// stored history.
func (r *Runner) RunAndGetResult(ctx context.Context, params core.RunParams) (core.RunResult, error) {
	runID := uuid.NewString()

	ctx, cancel := context.WithCancel(ctx)
	r.mu.Lock()
	r.activeRuns[runID] = cancel
	r.mu.Unlock()

	defer func() {
		cancel()
		r.mu.Lock()
		delete(r.activeRuns, runID)
		r.mu.Unlock()
	}()

	ctx, span := r.tracer.Start(ctx, "agentrelay.run",
		trace.WithAttributes(
			attribute.String("agentrelay.run_id", runID),
			attribute.String("agentrelay.agent_id", params.AgentID),
			attribute.String("agentrelay.session_key", params.SessionKey),
			attribute.Int("agentrelay.depth", params.Depth),
		),
	)
	defer span.End()

	log := r.logger.WithSession(params.SessionKey, params.AgentID).WithRun(runID)
	log.Debug("runner.run.started", "depth", params.Depth, "thread_id", params.ThreadID, "message_count", len(params.Messages))

	res, err := r.run(ctx, runID, params, log)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		log.Error("runner.run.failed", "error", err.Error(), "calls", res.Calls)
		return res, err
	}

	span.SetAttributes(
		attribute.String("agentrelay.model", res.Model),
		attribute.Int("agentrelay.input_tokens", res.InputTokens),
		attribute.Int("agentrelay.output_tokens", res.OutputTokens),
		attribute.Int("agentrelay.calls", res.Calls),
	)
	log.Info("runner.run.completed", "model", res.Model, "token_count", res.TotalTokens(), "calls", res.Calls)

	return res, nil
}

func (r *Runner) run(ctx context.Context, runID string, params core.RunParams, log *logging.RelayLogger) (core.RunResult, error) {
	res := core.RunResult{RunID: runID}

	chain, err := r.resolver.ResolveAgentModel(params.AgentID)
	if err != nil {
		return res, err
	}

	agentCfg, _ := r.cfg.Agent(params.AgentID)

	maxCalls := r.maxModelCalls
	if agentCfg.MaxModelCalls > 0 {
		maxCalls = agentCfg.MaxModelCalls
	}

	budget := budgetFor(params, agentCfg.SubagentTokenBudget)

	t := &turn{
		params:   params,
		chain:    chain,
		guard:    agentCfg.Guard(),
		limiter:  core.NewCallLimiter(maxCalls),
		messages: core.CloneAll(params.Messages),
		tools:    r.toolsFor(params),
		log:      log,
	}

	for round := 0; ; round++ {
		comp, modelID, err := r.complete(ctx, t)
		res.Calls = t.limiter.Used()
		if err != nil {
			return res, err
		}

		res.Model = modelID
		res.InputTokens += comp.Usage.InputTokens
		res.OutputTokens += comp.Usage.OutputTokens
		r.tracker.RecordRequest(params.SessionKey, params.AgentID, comp.Usage.InputTokens, comp.Usage.OutputTokens)

		t.messages = append(t.messages, comp.Content)

		calls := comp.Content.FunctionCalls()
		spawns, others := splitSpawnCalls(calls)
		if len(spawns) == 0 || round >= r.maxToolRounds {
			res.Response = comp.Content
			res.ToolCalls = calls
			break
		}

		budget, err = r.spawnAll(ctx, t, spawns, budget, &res)
		if err != nil {
			return res, err
		}

		if len(others) > 0 {
			res.Response = comp.Content
			res.ToolCalls = others
			break
		}
	}

	if err := r.sessionStore.Replace(params.SessionKey, params.AgentID, t.messages); err != nil {
		return res, fmt.Errorf("persist session: %w", err)
	}

	return res, nil
}

// budgetFor returns the subagent budget of a run. An inherited budget wins;
// the agent's own setting can only narrow it. Nil means unbounded.
func budgetFor(params core.RunParams, configured int) *subagent.ResourceBudget {
	limit := configured
	if params.TokenBudget != nil {
		limit = *params.TokenBudget
		if configured > 0 && configured < limit {
			limit = configured
		}
		if limit < 0 {
			limit = 0
		}
	} else if limit <= 0 {
		return nil
	}
	b := subagent.NewResourceBudget(limit)
	return &b
}

// providerFor maps a model id to its provider and the name the provider
// expects.
func (r *Runner) providerFor(modelID string) (model.Provider, string, error) {
	prefix, name := model.SplitModelID(modelID)
	if prefix != "" {
		if p, ok := r.providers[prefix]; ok {
			return p, name, nil
		}
	}
	if kind, ok := r.cfg.ProviderKind(modelID); ok {
		if p, ok := r.providers[kind.String()]; ok {
			return p, name, nil
		}
	}
	if p, ok := r.providers[""]; ok {
		return p, modelID, nil
	}
	return nil, "", fmt.Errorf("%w: %s", ErrNoProvider, modelID)
}

func (r *Runner) toolsFor(params core.RunParams) []model.ToolDefinition {
	tools := make([]model.ToolDefinition, 0, len(r.tools)+1)
	tools = append(tools, r.tools...)
	if params.Depth+1 <= r.cfg.MaxSubagentDepth(params.AgentID) {
		tools = append(tools, subagent.ToolDefinition())
	}
	return tools
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
