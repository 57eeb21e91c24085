package runner

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/hupe1980/agentrelay/config"
	"github.com/hupe1980/agentrelay/core"
	"github.com/hupe1980/agentrelay/failover"
	"github.com/hupe1980/agentrelay/internal/testutil"
	"github.com/hupe1980/agentrelay/model"
	"github.com/hupe1980/agentrelay/subagent"
)

const mainSession = "agent:main:main"

func testConfig() *config.Config {
	return &config.Config{
		DefaultAgent: "main",
		Agents: []config.AgentConfig{
			{ID: "main", Model: "anthropic/claude-opus", MaxSubagentDepth: 2},
			{ID: "helper", Model: "openai/gpt-4o-mini"},
		},
		Fallbacks: []config.FallbackConfig{
			{Primary: "anthropic/claude-opus", Models: []string{"openai/gpt-4o"}},
		},
	}
}

type harness struct {
	runner    *Runner
	anthropic *model.MockProvider
	openai    *model.MockProvider
	sleeps    []time.Duration
	spans     *tracetest.SpanRecorder
}

func newHarness(t *testing.T, cfg *config.Config, optFns ...func(o *Options)) *harness {
	t.Helper()

	h := &harness{
		anthropic: model.NewMockProvider(model.KindAnthropic),
		openai:    model.NewMockProvider(model.KindOpenAI),
		spans:     tracetest.NewSpanRecorder(),
	}
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(h.spans))

	opts := append([]func(o *Options){func(o *Options) {
		o.Tracer = tp.Tracer("test")
		o.Sleep = func(ctx context.Context, d time.Duration) error {
			h.sleeps = append(h.sleeps, d)
			return ctx.Err()
		}
	}}, optFns...)

	h.runner = New(cfg, map[string]model.Provider{
		"anthropic": h.anthropic,
		"openai":    h.openai,
	}, opts...)

	return h
}

func (h *harness) run(ctx context.Context, msgs ...core.Content) (core.RunResult, error) {
	if len(msgs) == 0 {
		msgs = []core.Content{core.UserText("hello")}
	}
	return h.runner.RunAndGetResult(ctx, core.RunParams{AgentID: "main", SessionKey: mainSession, Messages: msgs})
}

func TestRunAndGetResult_Success(t *testing.T) {
	h := newHarness(t, testConfig())
	h.anthropic.Push("claude-opus", model.Reply("hi there", 12, 3))

	res, err := h.run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, "hi there", res.Response.Text())
	assert.Equal(t, "anthropic/claude-opus", res.Model)
	assert.Equal(t, 15, res.TotalTokens())
	assert.Equal(t, 1, res.Calls)
	_, err = uuid.Parse(res.RunID)
	assert.NoError(t, err)

	report, ok := h.runner.Tracker().SessionUsage(mainSession)
	require.True(t, ok)
	assert.Equal(t, 1, report.RequestCount)
	assert.Equal(t, 15, report.TotalTokens)

	sess, err := h.runner.SessionStore().Get(mainSession, "main")
	require.NoError(t, err)
	assert.Equal(t, []string{"hello", "hi there"}, testutil.Texts(sess.History()))

	calls := h.anthropic.Calls()
	require.Len(t, calls, 1)
	assert.Equal(t, "claude-opus", calls[0].Model)
	assert.Equal(t, 0, h.runner.ActiveRuns())
}

func TestRunAndGetResult_FailoverToNext(t *testing.T) {
	h := newHarness(t, testConfig())
	h.anthropic.Push("claude-opus", model.Fail(&model.ServerError{Status: 503}))
	h.openai.Push("gpt-4o", model.Reply("from fallback", 5, 5))

	res, err := h.run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, "from fallback", res.Response.Text())
	assert.Equal(t, "openai/gpt-4o", res.Model)
	assert.Equal(t, 2, res.Calls)
	assert.Len(t, h.anthropic.Calls(), 1)

	var attempts int
	for _, s := range h.spans.Ended() {
		if s.Name() == "agentrelay.model_attempt" {
			attempts++
		}
	}
	assert.Equal(t, 2, attempts)
}

func TestRunAndGetResult_WaitAndRetry(t *testing.T) {
	retryAfter := 2 * time.Second

	h := newHarness(t, testConfig())
	h.anthropic.Push("claude-opus",
		model.Fail(&model.RateLimitedError{RetryAfter: &retryAfter}),
		model.Fail(&model.RateLimitedError{}),
		model.Reply("finally", 1, 1),
	)

	res, err := h.run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "finally", res.Response.Text())
	assert.Equal(t, []time.Duration{retryAfter, failover.DefaultRateLimitWait}, h.sleeps)
	assert.Empty(t, h.openai.Calls())
}

func TestRunAndGetResult_RetryWithNextAuth(t *testing.T) {
	h := newHarness(t, testConfig())
	h.anthropic.Push("claude-opus",
		model.Fail(&model.AuthenticationFailedError{Message: "bad key"}),
		model.Reply("rotated", 1, 1),
	)

	res, err := h.run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "rotated", res.Response.Text())
	assert.Equal(t, 1, h.anthropic.Rotations())
}

// fixedKeyProvider hides the AuthRotator of the wrapped provider.
type fixedKeyProvider struct{ model.Provider }

func TestRunAndGetResult_AuthFailureWithoutRotationFailsOver(t *testing.T) {
	anthropic := model.NewMockProvider(model.KindAnthropic).
		Push("claude-opus", model.Fail(&model.AuthenticationFailedError{Message: "bad key"}))
	openai := model.NewMockProvider(model.KindOpenAI).Push("gpt-4o", model.Reply("fallback", 1, 1))

	r := New(testConfig(), map[string]model.Provider{
		"anthropic": fixedKeyProvider{anthropic},
		"openai":    openai,
	})

	res, err := r.RunAndGetResult(context.Background(), core.RunParams{AgentID: "main", SessionKey: mainSession, Messages: []core.Content{core.UserText("hello")}})
	require.NoError(t, err)
	assert.Equal(t, "openai/gpt-4o", res.Model)
	assert.Len(t, anthropic.Calls(), 1)
	assert.Zero(t, anthropic.Rotations())
}

func TestRunAndGetResult_SameModelRetriesAreBounded(t *testing.T) {
	netErr := &model.NetworkError{Err: errors.New("connection reset")}

	h := newHarness(t, testConfig())
	h.anthropic.Push("claude-opus", model.Fail(netErr), model.Fail(netErr), model.Fail(netErr), model.Fail(netErr))
	h.openai.Push("gpt-4o", model.Reply("ok", 1, 1))

	res, err := h.run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "openai/gpt-4o", res.Model)
	assert.Len(t, h.anthropic.Calls(), failover.MaxAttemptsPerModel)
}

func TestRunAndGetResult_Abort(t *testing.T) {
	boom := errors.New("boom")

	h := newHarness(t, testConfig())
	h.anthropic.Push("claude-opus", model.Fail(boom))

	_, err := h.run(context.Background())
	require.ErrorIs(t, err, boom)

	var exhausted *failover.ExhaustedError
	assert.False(t, errors.As(err, &exhausted))
	assert.Empty(t, h.openai.Calls())

	_, ok := h.runner.Tracker().SessionUsage(mainSession)
	assert.False(t, ok)
}

func TestRunAndGetResult_Exhausted(t *testing.T) {
	h := newHarness(t, testConfig())
	h.anthropic.Push("claude-opus", model.Fail(&model.ModelNotFoundError{Model: "claude-opus"}))
	h.openai.Push("gpt-4o", model.Fail(&model.StreamClosedError{}))

	_, err := h.run(context.Background())

	var exhausted *failover.ExhaustedError
	require.ErrorAs(t, err, &exhausted)
	require.Len(t, exhausted.Attempts, 2)
	assert.Equal(t, "anthropic/claude-opus", exhausted.Attempts[0].ModelID)
	assert.Equal(t, "openai/gpt-4o", exhausted.Attempts[1].ModelID)

	var streamErr *model.StreamClosedError
	assert.ErrorAs(t, err, &streamErr)
}

func TestRunAndGetResult_CompactAndRetry(t *testing.T) {
	h := newHarness(t, testConfig())
	h.anthropic.Push("claude-opus",
		model.Fail(&model.ContextLengthExceededError{MaxTokens: 200000}),
		model.Reply("ok", 1, 1),
	)

	msgs := testutil.NewTranscript().User("one").Assistant("two").User("three").Build()
	res, err := h.run(context.Background(), msgs...)
	require.NoError(t, err)
	assert.Equal(t, "ok", res.Response.Text())

	calls := h.anthropic.Calls()
	require.Len(t, calls, 2)
	assert.Contains(t, testutil.Texts(calls[0].Messages), "one")
	second := testutil.Texts(calls[1].Messages)
	assert.NotContains(t, second, "one")
	assert.Equal(t, "three", second[len(second)-1])

	sess, _ := h.runner.SessionStore().Get(mainSession, "main")
	assert.Equal(t, []string{"two", "three", "ok"}, testutil.Texts(sess.History()))
}

func TestRunAndGetResult_CompactImpossibleFailsOver(t *testing.T) {
	h := newHarness(t, testConfig())
	h.anthropic.Push("claude-opus", model.Fail(&model.ContextLengthExceededError{}))
	h.openai.Push("gpt-4o", model.Reply("bigger window", 1, 1))

	res, err := h.run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "openai/gpt-4o", res.Model)
}

func TestRunAndGetResult_ProactiveCompaction(t *testing.T) {
	cfg := testConfig()
	cfg.Agents[0].ContextWindow.HardLimit = 40
	cfg.Agents[0].ContextWindow.WarnThreshold = 0.5
	cfg.Agents[0].ContextWindow.MinAvailable = 1

	h := newHarness(t, cfg)
	h.anthropic.Push("claude-opus", model.Reply("ok", 1, 1))

	b := testutil.NewTranscript()
	for i := 0; i < 6; i++ {
		b.User("a question that takes some room").Assistant("an answer that also takes room")
	}
	b.User("latest")

	_, err := h.run(context.Background(), b.Build()...)
	require.NoError(t, err)

	calls := h.anthropic.Calls()
	require.Len(t, calls, 1)
	assert.Less(t, len(calls[0].Messages), 13)
	texts := testutil.Texts(calls[0].Messages)
	assert.Equal(t, "latest", texts[len(texts)-1])
}

func TestRunAndGetResult_CallLimit(t *testing.T) {
	cfg := testConfig()
	cfg.Agents[0].MaxModelCalls = 1

	h := newHarness(t, cfg)
	h.anthropic.Push("claude-opus", model.Fail(&model.ServerError{Status: 500}))

	res, err := h.run(context.Background())
	require.ErrorIs(t, err, core.ErrCallLimitExceeded)
	assert.Equal(t, 1, res.Calls)
	assert.Empty(t, h.openai.Calls())
}

func TestRunAndGetResult_UnknownProvider(t *testing.T) {
	cfg := testConfig()
	cfg.Agents[0].Model = "mystery/model"
	cfg.Fallbacks = []config.FallbackConfig{{Primary: "mystery/model", Models: []string{"openai/gpt-4o"}}}

	h := newHarness(t, cfg)
	res, err := h.run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "openai/gpt-4o", res.Model)
	assert.Equal(t, 1, res.Calls)

	cfg.Fallbacks = nil
	h = newHarness(t, cfg)
	_, err = h.run(context.Background())
	require.ErrorIs(t, err, ErrNoProvider)
}

func TestRunAndGetResult_ProviderByConfiguredKind(t *testing.T) {
	cfg := testConfig()
	cfg.Agents[0].Model = "claude/sonnet"
	cfg.Fallbacks = nil
	cfg.Providers = map[string]string{"claude": "anthropic"}

	h := newHarness(t, cfg)
	h.anthropic.Push("sonnet", model.Reply("via kind", 1, 1))

	res, err := h.run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "via kind", res.Response.Text())
}

func TestRunAndGetResult_ConfigurationErrors(t *testing.T) {
	h := newHarness(t, testConfig())

	_, err := h.runner.RunAndGetResult(context.Background(), core.RunParams{AgentID: "ghost", SessionKey: "k"})
	require.Error(t, err)
	assert.Empty(t, h.anthropic.Calls())
}

func TestRunAndGetResult_Cancelled(t *testing.T) {
	h := newHarness(t, testConfig())
	h.anthropic.Push("claude-opus", model.MockStep{Block: true})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := h.run(ctx)
	require.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, h.openai.Calls())
}

func TestRunAndGetResult_CancelDuringRateLimitWait(t *testing.T) {
	h := newHarness(t, testConfig(), func(o *Options) { o.Sleep = sleepContext })
	h.anthropic.Push("claude-opus", model.Fail(&model.RateLimitedError{}))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := h.run(ctx)
	require.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestRunAndGetResult_ReturnsForeignToolCalls(t *testing.T) {
	h := newHarness(t, testConfig())
	h.anthropic.Push("claude-opus", model.ReplyWithCalls("", model.Usage{InputTokens: 1, OutputTokens: 1},
		core.FunctionCall{ID: "c1", Name: "get_weather", Arguments: `{"city":"Berlin"}`}))

	res, err := h.run(context.Background())
	require.NoError(t, err)
	require.Len(t, res.ToolCalls, 1)
	assert.Equal(t, "get_weather", res.ToolCalls[0].Name)
	assert.Len(t, h.anthropic.Calls(), 1)
}

func TestRunAndGetResult_SpawnSubagent(t *testing.T) {
	h := newHarness(t, testConfig())
	h.anthropic.Push("claude-opus",
		model.ReplyWithCalls("delegating", model.Usage{InputTokens: 10, OutputTokens: 2},
			core.FunctionCall{ID: "s1", Name: subagent.ToolName, Arguments: `{"agent_id":"helper","task":"look it up"}`}),
		model.Reply("the answer is 42", 20, 5),
	)
	h.openai.Push("gpt-4o-mini", model.Reply("42", 7, 3))

	res, err := h.run(context.Background(), core.UserText("what is the answer?"))
	require.NoError(t, err)

	assert.Equal(t, "the answer is 42", res.Response.Text())
	assert.Equal(t, 10+2+20+5+7+3, res.TotalTokens())

	childCalls := h.openai.Calls()
	require.Len(t, childCalls, 1)
	assert.Equal(t, "look it up", childCalls[0].Messages[0].Text())

	parentCalls := h.anthropic.Calls()
	require.Len(t, parentCalls, 2)
	last := parentCalls[1].Messages[len(parentCalls[1].Messages)-1]
	require.Equal(t, core.RoleTool, last.Role)
	resp := last.Parts[0].(core.FunctionResponsePart).FunctionResponse
	assert.Equal(t, "s1", resp.ID)
	assert.Equal(t, "42", resp.Response)

	childKey := subagent.ChildSessionKey(mainSession, "helper", 1)
	child, ok := h.runner.Tracker().SessionUsage(childKey)
	require.True(t, ok)
	assert.Equal(t, 10, child.TotalTokens)

	helper, ok := h.runner.Tracker().AgentUsage("helper")
	require.True(t, ok)
	assert.Equal(t, 1, helper.RequestCount)
}

func TestRunAndGetResult_SpawnRejectedBecomesToolError(t *testing.T) {
	cfg := testConfig()
	cfg.Agents[0].SubagentModels = []string{"openai/gpt-4o"}

	h := newHarness(t, cfg)
	h.anthropic.Push("claude-opus",
		model.ReplyWithCalls("", model.Usage{},
			core.FunctionCall{ID: "s1", Name: subagent.ToolName, Arguments: `{"agent_id":"helper","task":"x"}`}),
		model.Reply("handled", 1, 1),
	)

	res, err := h.run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "handled", res.Response.Text())
	assert.Empty(t, h.openai.Calls())

	calls := h.anthropic.Calls()
	last := calls[1].Messages[len(calls[1].Messages)-1]
	resp := last.Parts[0].(core.FunctionResponsePart).FunctionResponse
	assert.Contains(t, resp.Error, subagent.ErrModelNotAllowed.Error())
}

func TestRunAndGetResult_SpawnOverBudget(t *testing.T) {
	cfg := testConfig()
	cfg.Agents[0].SubagentTokenBudget = 5

	h := newHarness(t, cfg)
	h.anthropic.Push("claude-opus",
		model.ReplyWithCalls("", model.Usage{},
			core.FunctionCall{ID: "s1", Name: subagent.ToolName, Arguments: `{"agent_id":"helper","task":"x"}`}),
		model.Reply("done", 1, 1),
	)
	h.openai.Push("gpt-4o-mini", model.Reply("expensive", 50, 50))

	res, err := h.run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, res.TotalTokens(), "over-budget child tokens are not attributed")

	calls := h.anthropic.Calls()
	last := calls[1].Messages[len(calls[1].Messages)-1]
	resp := last.Parts[0].(core.FunctionResponsePart).FunctionResponse
	assert.Contains(t, resp.Error, subagent.ErrInsufficientBudget.Error())
}

func TestRunAndGetResult_SpawnsShareOneToolMessage(t *testing.T) {
	h := newHarness(t, testConfig())
	h.anthropic.Push("claude-opus",
		model.ReplyWithCalls("", model.Usage{InputTokens: 1, OutputTokens: 1},
			core.FunctionCall{ID: "s1", Name: subagent.ToolName, Arguments: `{"agent_id":"helper","task":"first"}`},
			core.FunctionCall{ID: "s2", Name: subagent.ToolName, Arguments: `{"agent_id":"ghost","task":"second"}`},
			core.FunctionCall{ID: "s3", Name: subagent.ToolName, Arguments: `{"agent_id":"helper","task":"third"}`}),
		model.Reply("combined", 1, 1),
	)
	h.openai.Push("gpt-4o-mini", model.Reply("a", 1, 1), model.Reply("c", 1, 1))

	res, err := h.run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "combined", res.Response.Text())

	calls := h.anthropic.Calls()
	require.Len(t, calls, 2)
	assert.Equal(t, []string{"user", "assistant", "tool"}, testutil.Roles(calls[1].Messages))

	last := calls[1].Messages[2]
	require.Len(t, last.Parts, 3)
	ids := make([]string, 0, 3)
	for _, p := range last.Parts {
		ids = append(ids, p.(core.FunctionResponsePart).FunctionResponse.ID)
	}
	assert.Equal(t, []string{"s1", "s2", "s3"}, ids)
	assert.Equal(t, "a", last.Parts[0].(core.FunctionResponsePart).FunctionResponse.Response)
	assert.NotEmpty(t, last.Parts[1].(core.FunctionResponsePart).FunctionResponse.Error)
	assert.Equal(t, "c", last.Parts[2].(core.FunctionResponsePart).FunctionResponse.Response)
}

func TestRunAndGetResult_NestedSpawnInheritsBudget(t *testing.T) {
	cfg := testConfig()
	cfg.Agents[0].SubagentTokenBudget = 30
	cfg.Agents = append(cfg.Agents, config.AgentConfig{ID: "leaf", Model: "openai/gpt-4o"})

	h := newHarness(t, cfg)
	h.anthropic.Push("claude-opus",
		model.ReplyWithCalls("", model.Usage{InputTokens: 1, OutputTokens: 1},
			core.FunctionCall{ID: "s1", Name: subagent.ToolName, Arguments: `{"agent_id":"helper","task":"dig"}`}),
		model.Reply("done", 1, 1),
	)
	h.openai.Push("gpt-4o-mini",
		model.ReplyWithCalls("", model.Usage{InputTokens: 2, OutputTokens: 2},
			core.FunctionCall{ID: "g1", Name: subagent.ToolName, Arguments: `{"agent_id":"leaf","task":"deeper"}`}),
		model.Reply("helper done", 3, 3),
	)
	h.openai.Push("gpt-4o", model.Reply("leaf", 20, 20))

	res, err := h.run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "done", res.Response.Text())
	assert.Equal(t, 2+(4+6)+2, res.TotalTokens(), "rejected grandchild tokens are not attributed")

	var helperSecond *model.Request
	for _, c := range h.openai.Calls() {
		if c.Model == "gpt-4o-mini" && len(c.Messages) > 1 {
			helperSecond = &c
		}
	}
	require.NotNil(t, helperSecond)
	last := helperSecond.Messages[len(helperSecond.Messages)-1]
	resp := last.Parts[0].(core.FunctionResponsePart).FunctionResponse
	assert.Empty(t, resp.Response)
	assert.Contains(t, resp.Error, subagent.ErrInsufficientBudget.Error())
}

func TestBudgetFor(t *testing.T) {
	inherited := func(n int) *int { return &n }

	tests := []struct {
		name       string
		inherited  *int
		configured int
		want       *int
	}{
		{name: "unbounded", want: nil},
		{name: "own budget", configured: 50, want: inherited(50)},
		{name: "inherited only", inherited: inherited(30), want: inherited(30)},
		{name: "own budget cannot widen", inherited: inherited(30), configured: 100, want: inherited(30)},
		{name: "own budget narrows", inherited: inherited(30), configured: 10, want: inherited(10)},
		{name: "spent parent", inherited: inherited(0), configured: 10, want: inherited(0)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := budgetFor(core.RunParams{TokenBudget: tt.inherited}, tt.configured)
			if tt.want == nil {
				assert.Nil(t, got)
				return
			}
			require.NotNil(t, got)
			assert.Equal(t, *tt.want, got.RemainingTokens)
		})
	}
}

func TestToolsFor(t *testing.T) {
	h := newHarness(t, testConfig())

	hasSpawn := func(depth int) bool {
		for _, td := range h.runner.toolsFor(core.RunParams{AgentID: "main", Depth: depth}) {
			if td.Name == subagent.ToolName {
				return true
			}
		}
		return false
	}

	assert.True(t, hasSpawn(0))
	assert.True(t, hasSpawn(1))
	assert.False(t, hasSpawn(2))
}

func TestCancel(t *testing.T) {
	h := newHarness(t, testConfig())
	require.Error(t, h.runner.Cancel("unknown"))
}

func TestSleepContext(t *testing.T) {
	require.NoError(t, sleepContext(context.Background(), 0))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.ErrorIs(t, sleepContext(ctx, time.Hour), context.Canceled)
}
