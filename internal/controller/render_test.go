package controller

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	m "gooze.dev/pkg/mutrun/internal/model"
)

func TestRenderScoreSummary(t *testing.T) {
	table := m.ScoreTable{
		Classes: []m.ScoreEntry{
			{Name: "Foo", Killed: 2, Covered: 3, Total: 4},
			{Name: "Bar", Killed: 0, Covered: 0, Total: 1},
		},
		Methods: []m.ScoreEntry{
			{Name: "bar", Class: "Foo", Killed: 2, Covered: 3, Total: 4},
		},
	}

	out := RenderScoreSummary(table)

	assert.Contains(t, out, "Classes")
	assert.Contains(t, out, "Methods")
	assert.Contains(t, out, "66.67%")
	assert.Contains(t, out, "Mutation score: 66.67% of covered, 40.00% of generated (2 killed, 3 covered, 5 generated)")
}

func TestRenderScoreSummary_Empty(t *testing.T) {
	out := RenderScoreSummary(m.ScoreTable{})

	assert.Contains(t, out, "Mutation score: 0.00% of covered, 0.00% of generated")
}

func TestRenderRunSummary(t *testing.T) {
	unresolved := m.Mutation{ID: 3, Descriptor: m.Descriptor{Class: "Foo", Method: "bar", Line: 9, Operator: "NEGATE"}}
	skipped := m.Mutation{ID: 4, Descriptor: m.Descriptor{Class: "Foo", Method: "baz", Line: 2, Operator: "NEGATE"}}

	out := RenderRunSummary(m.RunReport{
		RunID:        "run-7",
		Total:        4,
		Completed:    2,
		Destroyed:    1,
		Unresolved:   []m.Mutation{unresolved},
		NotExercised: []m.Mutation{unresolved, skipped},
		Classes:      []string{"Bar", "Foo"},
		Duration:     1500 * time.Millisecond,
	})

	assert.Contains(t, out, "Classes under test: Bar, Foo")
	assert.Contains(t, out, "run-7")
	assert.Contains(t, out, "1.5s")
	assert.Contains(t, out, "Mutations without a result:")
	assert.Contains(t, out, "Selected mutations never exercised:")
	assert.Equal(t, 2, strings.Count(out, unresolved.String()))
	assert.Contains(t, out, skipped.String())
}

func TestRenderRunSummary_Clean(t *testing.T) {
	out := RenderRunSummary(m.RunReport{RunID: "run-1", Total: 1, Completed: 1})

	assert.NotContains(t, out, "Classes under test")
	assert.NotContains(t, out, "without a result")
	assert.NotContains(t, out, "never exercised")
}

func TestRenderTraceComparison(t *testing.T) {
	out := RenderTraceComparison(m.TraceComparison{
		RunA:    "a",
		RunB:    "b",
		Classes: []string{"C", "D"},
		Passes: []m.TracePass{
			{Mode: m.TraceControl, Classes: []string{"C"}},
			{Mode: m.TraceData, Classes: []string{"C", "D"}},
		},
	})

	assert.Contains(t, out, "2 class(es) differ between a and b")
	assert.Contains(t, out, "  C\n")
	assert.Contains(t, out, "  D\n")
	assert.Contains(t, out, string(m.TraceControl))
	assert.Contains(t, out, string(m.TraceData))
}

func TestRenderMutationList(t *testing.T) {
	out := RenderMutationList([]m.Mutation{
		{ID: 1, Descriptor: m.Descriptor{Class: "Foo", Method: "bar", Line: 3, Operator: "NEGATE"}, Status: m.StatusPending},
		{
			ID:         2,
			Descriptor: m.Descriptor{Class: "Foo", Method: "baz", Line: 8, Operator: "NEGATE"},
			Status:     m.StatusDone,
			Result:     &m.ExecutionResult{Touched: true},
		},
	})

	assert.Contains(t, out, "pending")
	assert.Contains(t, out, "survived")
	assert.Contains(t, out, "2 mutation(s)")
}

func TestRenderMutationDetail(t *testing.T) {
	mutation := m.Mutation{
		ID:         5,
		Descriptor: m.Descriptor{Class: "Foo", Method: "bar", Line: 3, Operator: "NEGATE"},
		Status:     m.StatusDone,
		Result: &m.ExecutionResult{
			MutationID: 5,
			Touched:    true,
			Detected:   true,
			Outcomes:   []m.TestOutcome{{TestName: "testBar", Passed: false, Message: "expected 1"}},
		},
	}

	out := RenderMutationDetail(mutation)
	assert.Contains(t, out, mutation.String())
	assert.Contains(t, out, "verdict: killed")
	assert.Contains(t, out, "testBar")
	assert.Contains(t, out, "expected 1")

	pending := RenderMutationDetail(m.Mutation{ID: 6, Status: m.StatusPending})
	assert.Contains(t, pending, "verdict: -")
	assert.NotContains(t, pending, "Test")
}
