package entity

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var t0 = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func newSession(models ...string) *GenerationSession {
	return NewGenerationSession("u1", "p1", "  Name my coffee startup ", models, ModeCreative, false, nil)
}

func TestNewGenerationSessionDedupesModels(t *testing.T) {
	s := newSession("gpt-4", " claude-3.5-sonnet", "gpt-4", "", "claude-3.5-sonnet")

	assert.Equal(t, []string{"gpt-4", "claude-3.5-sonnet"}, s.RequestedModels)
	assert.Equal(t, SessionStatusPending, s.Status)
	assert.Equal(t, "Name my coffee startup", s.Prompt)
	assert.Len(t, s.Runs, 2)
	assert.NotEmpty(t, s.ID)
	assert.NotNil(t, s.Parameters)
	for _, r := range s.Runs {
		assert.Equal(t, ModelRunPending, r.Status)
	}
}

func TestParseGenerationMode(t *testing.T) {
	cases := map[string]GenerationMode{
		"creative":     ModeCreative,
		"Professional": ModeProfessional,
		"brandable":    ModeBrandable,
		"tech-focused": ModeTechFocused,
		"tech_focused": ModeTechFocused,
		"whimsical":    ModeOther,
		"":             ModeOther,
	}
	for in, want := range cases {
		assert.Equal(t, want, ParseGenerationMode(in), in)
	}
}

func TestCanTransition(t *testing.T) {
	assert.True(t, CanTransition(SessionStatusPending, SessionStatusRunning))
	assert.True(t, CanTransition(SessionStatusPending, SessionStatusFailed))
	assert.True(t, CanTransition(SessionStatusRunning, SessionStatusCancelled))
	assert.False(t, CanTransition(SessionStatusPending, SessionStatusCancelled))
	assert.False(t, CanTransition(SessionStatusPending, SessionStatusCompleted))

	for _, terminal := range []SessionStatus{SessionStatusCompleted, SessionStatusPartial, SessionStatusFailed, SessionStatusCancelled} {
		for _, to := range []SessionStatus{SessionStatusPending, SessionStatusRunning, SessionStatusCompleted, SessionStatusCancelled} {
			assert.False(t, CanTransition(terminal, to), "%s -> %s", terminal, to)
		}
	}
}

func TestFinalizeCompletedWhenAllSucceed(t *testing.T) {
	s := newSession("gpt-4", "claude-3.5-sonnet")
	require.NoError(t, s.Start(t0))

	assert.True(t, s.RecordSuccess("gpt-4", []string{"Brewly", "BeanBurst"}, TokenUsage{100, 50}, 3, time.Second, t0))
	assert.True(t, s.RecordSuccess("claude-3.5-sonnet", []string{"Roastery"}, TokenUsage{80, 40}, 2, time.Second, t0))
	require.NoError(t, s.Finalize(t0.Add(2*time.Second)))

	assert.Equal(t, SessionStatusCompleted, s.Status)
	assert.Len(t, s.Results(), 2)
	assert.Equal(t, 3, s.TotalNames())
	assert.Equal(t, int64(5), s.TotalCostCents())
	assert.Equal(t, int64(270), s.TotalTokens())
	assert.Equal(t, 2*time.Second, s.Duration(t0.Add(time.Hour)))
}

func TestFinalizePartialPreservesSuccessfulModel(t *testing.T) {
	s := newSession("gpt-4", "claude-3.5-sonnet")
	require.NoError(t, s.Start(t0))

	s.RecordSuccess("gpt-4", []string{"Brewly"}, TokenUsage{}, 1, time.Second, t0)
	s.RecordFailure("claude-3.5-sonnet", FailureProviderError, "upstream 500", time.Second, t0)
	require.NoError(t, s.Finalize(t0))

	assert.Equal(t, SessionStatusPartial, s.Status)
	results := s.Results()
	assert.Equal(t, []string{"Brewly"}, results["gpt-4"])
	_, ok := results["claude-3.5-sonnet"]
	assert.False(t, ok)
	assert.Equal(t, int64(1), s.TotalCostCents())
}

func TestFinalizeFailedWhenNothingSucceeds(t *testing.T) {
	s := newSession("gpt-4")
	require.NoError(t, s.Start(t0))
	s.RecordFailure("gpt-4", FailureTimeout, "deadline exceeded", 30*time.Second, t0)
	require.NoError(t, s.Finalize(t0))

	assert.Equal(t, SessionStatusFailed, s.Status)
	assert.Empty(t, s.Results())
	assert.NotEmpty(t, s.FailureReason)
}

func TestUnavailableModelMakesSessionPartial(t *testing.T) {
	s := newSession("gpt-4", "model-in-maintenance")
	require.NoError(t, s.MarkUnavailable("model-in-maintenance", "maintenance"))
	require.NoError(t, s.Start(t0))
	assert.Equal(t, []string{"gpt-4"}, s.DispatchableModels())

	s.RecordSuccess("gpt-4", []string{"Brewly"}, TokenUsage{}, 0, 0, t0)
	require.NoError(t, s.Finalize(t0))

	assert.Equal(t, SessionStatusPartial, s.Status)
	view := s.ResultsView()
	assert.Len(t, view, 1)
	assert.Contains(t, view, "gpt-4")
}

func TestFailImmediatelyNeverRuns(t *testing.T) {
	s := newSession("model-in-maintenance")
	require.NoError(t, s.MarkUnavailable("model-in-maintenance", "maintenance"))
	require.NoError(t, s.FailImmediately("no models available", t0))

	assert.Equal(t, SessionStatusFailed, s.Status)
	assert.Nil(t, s.StartedAt)
	assert.NotNil(t, s.CompletedAt)
	assert.Equal(t, "no models available", s.FailureReason)
	assert.ErrorIs(t, s.Start(t0), ErrInvalidTransition)
}

func TestCancelKeepsCompletedWork(t *testing.T) {
	s := newSession("gpt-4", "claude-3.5-sonnet")
	require.NoError(t, s.Start(t0))
	require.True(t, s.BeginModel("gpt-4", t0))
	require.True(t, s.BeginModel("claude-3.5-sonnet", t0))
	s.RecordSuccess("gpt-4", []string{"Brewly", "BeanBurst"}, TokenUsage{}, 1, time.Second, t0)

	require.NoError(t, s.Cancel(t0))

	assert.Equal(t, SessionStatusCancelled, s.Status)
	assert.Equal(t, ModelRunCancelled, s.Runs["claude-3.5-sonnet"].Status)
	assert.Equal(t, map[string][]string{
		"gpt-4":             {"Brewly", "BeanBurst"},
		"claude-3.5-sonnet": nil,
	}, s.ResultsView())

	// 取消后到达的结果被丢弃
	assert.False(t, s.RecordSuccess("claude-3.5-sonnet", []string{"Late"}, TokenUsage{}, 9, 0, t0))
	assert.Equal(t, int64(1), s.TotalCostCents())
}

func TestCancelOnlyWhileRunning(t *testing.T) {
	s := newSession("gpt-4")
	assert.ErrorIs(t, s.Cancel(t0), ErrInvalidTransition)

	require.NoError(t, s.Start(t0))
	s.RecordSuccess("gpt-4", []string{"Brewly"}, TokenUsage{}, 0, 0, t0)
	require.NoError(t, s.Finalize(t0))
	assert.ErrorIs(t, s.Cancel(t0), ErrInvalidTransition)
	assert.Equal(t, SessionStatusCompleted, s.Status)
}

func TestResultsSetOnce(t *testing.T) {
	s := newSession("gpt-4")
	require.NoError(t, s.Start(t0))
	assert.True(t, s.RecordSuccess("gpt-4", []string{"First"}, TokenUsage{}, 0, 0, t0))
	assert.False(t, s.RecordSuccess("gpt-4", []string{"Second"}, TokenUsage{}, 0, 0, t0))
	assert.False(t, s.RecordFailure("gpt-4", FailureProviderError, "x", 0, t0))
	assert.Equal(t, []string{"First"}, s.Results()["gpt-4"])
}

func TestRecordUnknownModelIgnored(t *testing.T) {
	s := newSession("gpt-4")
	require.NoError(t, s.Start(t0))
	assert.False(t, s.RecordSuccess("other", []string{"x"}, TokenUsage{}, 0, 0, t0))
	assert.NotContains(t, s.Results(), "other")
}

func TestAbandonFinalizesWithCompletedWork(t *testing.T) {
	s := newSession("gpt-4", "claude-3.5-sonnet")
	require.NoError(t, s.Start(t0))
	s.BeginModel("claude-3.5-sonnet", t0)
	s.RecordSuccess("gpt-4", []string{"Brewly"}, TokenUsage{}, 0, 0, t0)

	require.NoError(t, s.Abandon(t0.Add(120*time.Second)))

	assert.Equal(t, SessionStatusPartial, s.Status)
	assert.Equal(t, FailureTimeout, s.Runs["claude-3.5-sonnet"].ErrorKind)
	assert.Equal(t, []string{"Brewly"}, s.Results()["gpt-4"])
}

func TestSucceededWithEmptyListIsPresent(t *testing.T) {
	s := newSession("gpt-4")
	require.NoError(t, s.Start(t0))
	s.RecordSuccess("gpt-4", nil, TokenUsage{}, 0, 0, t0)

	names, ok := s.Results()["gpt-4"]
	assert.True(t, ok)
	assert.NotNil(t, names)
	assert.Empty(t, names)
}

func TestCloneIsIndependent(t *testing.T) {
	s := newSession("gpt-4")
	require.NoError(t, s.Start(t0))
	s.RecordSuccess("gpt-4", []string{"Brewly"}, TokenUsage{}, 0, 0, t0)

	cp := s.Clone()
	cp.Runs["gpt-4"].Names[0] = "Changed"
	cp.Status = SessionStatusFailed

	assert.Equal(t, "Brewly", s.Runs["gpt-4"].Names[0])
	assert.Equal(t, SessionStatusRunning, s.Status)
}

func TestResumeReopensInFlightModels(t *testing.T) {
	s := newSession("gpt-4", "claude-3.5-sonnet", "gemini-pro")
	require.NoError(t, s.Start(t0))
	s.BeginModel("gpt-4", t0)
	s.BeginModel("claude-3.5-sonnet", t0)
	require.True(t, s.RecordSuccess("gpt-4", []string{"Brewly"}, TokenUsage{}, 1, time.Second, t0))

	models, err := s.Resume(t0.Add(time.Minute))
	require.NoError(t, err)
	assert.Equal(t, []string{"claude-3.5-sonnet", "gemini-pro"}, models)

	run, _ := s.Run("claude-3.5-sonnet")
	assert.Equal(t, ModelRunPending, run.Status)
	assert.Nil(t, run.StartedAt)
	assert.Equal(t, []string{"Brewly"}, s.Results()["gpt-4"])
	assert.Equal(t, t0, *s.StartedAt)

	_, err = newSession("gpt-4").Resume(t0)
	assert.ErrorIs(t, err, ErrInvalidTransition)
}
