package runner

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/hupe1980/agentrelay/contextwindow"
	"github.com/hupe1980/agentrelay/core"
	"github.com/hupe1980/agentrelay/failover"
	"github.com/hupe1980/agentrelay/logging"
	"github.com/hupe1980/agentrelay/model"
	"github.com/hupe1980/agentrelay/routing"
	"github.com/hupe1980/agentrelay/transcript"
)

// turn is the mutable state of one run, owned by a single goroutine.
type turn struct {
	params   core.RunParams
	chain    routing.ModelChain
	guard    contextwindow.Guard
	limiter  *core.CallLimiter
	messages []core.Content
	tools    []model.ToolDefinition
	log      *logging.RelayLogger
}

// complete performs one provider exchange, walking the model chain until a
// call succeeds or no model is left.
//
// RetryWithNextAuth retries the current model only after the provider
// rotated to another credential. A provider that cannot rotate (it does not
// implement model.AuthRotator, or its keys are used up) would fail the same
// way again, so the chain advances to the next model instead of spending a
// same-model retry.
func (r *Runner) complete(ctx context.Context, t *turn) (*model.Completion, string, error) {
	state := failover.NewState(t.chain)

	for {
		modelID := state.CurrentModel()
		if modelID == "" {
			return nil, "", &failover.ExhaustedError{Attempts: state.Attempts()}
		}

		provider, name, err := r.providerFor(modelID)
		if err != nil {
			state.RecordAttempt(err, 0)
			if !r.advance(state, t.log, modelID, "no_provider") {
				return nil, "", &failover.ExhaustedError{Attempts: state.Attempts()}
			}
			continue
		}

		if err := t.limiter.Take(); err != nil {
			return nil, "", fmt.Errorf("agent %s: %w", t.params.AgentID, err)
		}

		if err := r.compactIfNeeded(ctx, t, t.guard.CompactionTarget()); err != nil && !errors.Is(err, contextwindow.ErrCannotCompact) {
			return nil, "", err
		}

		comp, dur, err := r.attempt(ctx, t, state, provider, modelID, name)
		state.RecordAttempt(err, dur)
		attempt := len(state.Attempts())

		if err == nil {
			t.log.LogModelAttempt(modelID, attempt, comp.Usage.Total(), dur, nil)
			return comp, modelID, nil
		}

		t.log.LogModelAttempt(modelID, attempt, 0, dur, err)

		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, "", ctxErr
		}

		action := failover.ClassifyError(err)
		retry := false

		switch action.Kind {
		case failover.Abort:
			return nil, "", fmt.Errorf("model %s: %w", modelID, err)

		case failover.RetryWithNextAuth:
			rotated := false
			if rot, ok := provider.(model.AuthRotator); ok {
				rotated = rot.RotateAuth()
			}
			// The same credentials will keep failing authentication.
			var authErr *model.AuthenticationFailedError
			retry = rotated || !errors.As(err, &authErr)

		case failover.WaitAndRetry:
			if state.CanRetryCurrentModel() {
				t.log.Debug("runner.rate_limited", "model", modelID, "wait", action.Wait)
				if err := r.sleep(ctx, action.Wait); err != nil {
					return nil, "", err
				}
				retry = true
			}

		case failover.CompactAndRetry:
			target := t.guard.CompactionTarget()
			var cle *model.ContextLengthExceededError
			if errors.As(err, &cle) && cle.MaxTokens > 0 {
				target = min(target, max(cle.MaxTokens-t.guard.MinAvailable, 0))
			}
			cerr := r.compact(ctx, t, target)
			if cerr != nil && !errors.Is(cerr, contextwindow.ErrCannotCompact) {
				return nil, "", cerr
			}
			retry = cerr == nil

		case failover.FailoverToNext:
		}

		if retry && state.CanRetryCurrentModel() {
			continue
		}

		if !r.advance(state, t.log, modelID, action.String()) {
			return nil, "", &failover.ExhaustedError{Attempts: state.Attempts()}
		}
	}
}

// attempt makes a single provider call inside its own span.
func (r *Runner) attempt(
	ctx context.Context,
	t *turn,
	state *failover.State,
	provider model.Provider,
	modelID, name string,
) (*model.Completion, time.Duration, error) {
	repaired := transcript.Repair(t.messages, provider.Kind())

	ctx, span := r.tracer.Start(ctx, "agentrelay.model_attempt",
		trace.WithAttributes(
			attribute.String("agentrelay.model", modelID),
			attribute.String("agentrelay.provider", provider.Kind().String()),
			attribute.Int("agentrelay.attempt", len(state.Attempts())+1),
			attribute.Int("agentrelay.chain_index", state.Index()),
		),
	)
	defer span.End()

	start := time.Now()
	comp, err := provider.Complete(ctx, model.Request{
		Model:     name,
		Messages:  repaired,
		Tools:     t.tools,
		MaxTokens: r.maxTokens,
	})
	dur := time.Since(start)

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		span.SetAttributes(attribute.String("agentrelay.action", failover.ClassifyError(err).String()))
		return nil, dur, err
	}

	span.SetAttributes(
		attribute.Int("agentrelay.input_tokens", comp.Usage.InputTokens),
		attribute.Int("agentrelay.output_tokens", comp.Usage.OutputTokens),
	)

	return comp, dur, nil
}

// advance moves to the next model and reports whether one was left.
func (r *Runner) advance(state *failover.State, log *logging.RelayLogger, from, reason string) bool {
	next, ok := state.Advance()
	log.LogFailover(from, next, reason)
	return ok
}

// compactIfNeeded compacts the transcript when the guard leaves the safe zone.
func (r *Runner) compactIfNeeded(ctx context.Context, t *turn, target int) error {
	tokens := model.EstimateTokens(t.messages)
	switch t.guard.Severity(tokens) {
	case contextwindow.SeverityNone:
		return nil
	case contextwindow.SeverityCritical:
		t.log.Warn("context.critical", "token_count", tokens, "available_tokens", t.guard.AvailableTokens(tokens))
	default:
		t.log.Debug("context.warn", "token_count", tokens, "warn_level", t.guard.WarnLevel())
	}
	return r.compact(ctx, t, target)
}

func (r *Runner) compact(ctx context.Context, t *turn, target int) error {
	before := len(t.messages)
	compacted, err := r.compactor.Compact(ctx, t.messages, target)
	if err != nil {
		t.log.Warn("context.compaction.failed", "error", err.Error(), "message_count", before)
		return err
	}
	t.messages = compacted
	t.log.Info("context.compacted", "message_count_before", before, "message_count_after", len(compacted),
		"token_count", model.EstimateTokens(compacted))
	return nil
}
