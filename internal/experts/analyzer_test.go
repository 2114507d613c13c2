package experts_test

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/apresai/storytime/internal/experts"
	"github.com/apresai/storytime/internal/llm"
	"github.com/apresai/storytime/internal/progress"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRoles_OrderAndCount(t *testing.T) {
	roles := experts.Roles()
	require.Len(t, roles, 10)
	assert.Equal(t, "subject_researcher", roles[0].ID)
	assert.Equal(t, "editor", roles[9].ID)

	roles[0].Name = "mutated"
	assert.Equal(t, "Subject Researcher", experts.Roles()[0].Name)
}

func TestSystemPrompt(t *testing.T) {
	r := experts.Roles()[2]
	require.Equal(t, "case_analyst", r.ID)
	p := experts.SystemPrompt(r, "5-7")
	assert.Contains(t, p, "You are a Case Analyst specializing in children's literature")
	assert.Contains(t, p, "children aged 5-7")
	assert.Contains(t, p, "Key plot points")
}

func TestAnalyze_AllRolesInOrder(t *testing.T) {
	var systems []string
	c := llm.CompleterFunc(func(_ context.Context, req llm.Request) (string, error) {
		systems = append(systems, req.System)
		assert.Equal(t, "Once upon a time", req.User)
		return "ok", nil
	})

	a := experts.NewAnalyzer(c, experts.Options{})
	got, err := a.Analyze(context.Background(), "Once upon a time", "")
	require.NoError(t, err)
	require.Len(t, got, 10)
	assert.Zero(t, got.Failures())

	for i, role := range experts.Roles() {
		assert.Equal(t, role.ID, got[i].RoleID)
		assert.True(t, strings.Contains(systems[i], role.Name))
		assert.Contains(t, systems[i], "children aged 8-12")
	}
}

func TestAnalyze_FailedRoleIsIsolated(t *testing.T) {
	calls := 0
	c := llm.CompleterFunc(func(_ context.Context, req llm.Request) (string, error) {
		calls++
		if strings.Contains(req.System, "Content Moderator") {
			return "", errors.New("service unavailable")
		}
		return "fine", nil
	})

	got, err := experts.NewAnalyzer(c, experts.Options{}).Analyze(context.Background(), "story", "8-12")
	require.NoError(t, err)
	assert.Equal(t, 10, calls)
	require.Len(t, got, 10)
	assert.Equal(t, 1, got.Failures())

	mod := got[6]
	assert.Equal(t, "content_moderator", mod.RoleID)
	assert.True(t, mod.Failed())
	assert.Equal(t, "Error: service unavailable", mod.Text)

	steps := got.Steps()
	require.Len(t, steps, 9)
	for _, s := range steps {
		assert.NotEqual(t, "Content Moderator", s.Role)
		assert.Equal(t, "fine", s.Analysis)
	}
	assert.Equal(t, "Spoken Language Expert", steps[6].Role)
}

func TestAnalyze_StopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	c := llm.CompleterFunc(func(_ context.Context, _ llm.Request) (string, error) {
		calls++
		if calls == 2 {
			cancel()
		}
		return "ok", nil
	})

	got, err := experts.NewAnalyzer(c, experts.Options{}).Analyze(ctx, "story", "")
	assert.ErrorIs(t, err, context.Canceled)
	assert.Len(t, got, 2)
}

func TestAnalyze_EmitsProgressPerRole(t *testing.T) {
	var events []progress.Event
	c := llm.CompleterFunc(func(context.Context, llm.Request) (string, error) { return "ok", nil })

	_, err := experts.NewAnalyzer(c, experts.Options{
		Progress: func(e progress.Event) { events = append(events, e) },
	}).Analyze(context.Background(), "story", "")
	require.NoError(t, err)

	require.Len(t, events, 10)
	for _, e := range events {
		assert.Equal(t, progress.StageAnalysis, e.Stage)
		assert.Equal(t, 10, e.StepTotal)
	}
}
