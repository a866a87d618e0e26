package domain

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"gooze.dev/pkg/mutrun/internal/adapter"
	m "gooze.dev/pkg/mutrun/internal/model"
)

func mutationAt(id int64, class, method string, line int) m.Mutation {
	return m.Mutation{
		ID:         id,
		Descriptor: m.Descriptor{Class: class, Method: method, Line: line, Operator: "negate"},
		Status:     m.StatusPending,
	}
}

func withResult(mutation m.Mutation, touched, detected bool, tests ...string) m.Mutation {
	result := &m.ExecutionResult{MutationID: mutation.ID, Touched: touched, Detected: detected}
	for _, name := range tests {
		result.Outcomes = append(result.Outcomes, m.TestOutcome{TestName: name, Passed: !detected})
	}

	mutation.Result = result
	mutation.Status = m.StatusDone

	return mutation
}

func TestAggregateMutations_ClassWithOneMissingResult(t *testing.T) {
	table := AggregateMutations([]m.Mutation{
		withResult(mutationAt(1, "Foo", "bar", 10), true, true, "t1"),
		withResult(mutationAt(2, "Foo", "bar", 11), true, true, "t2"),
		mutationAt(3, "Foo", "baz", 20),
	})

	require.Len(t, table.Classes, 1)

	foo := table.Classes[0]
	assert.Equal(t, "Foo", foo.Name)
	assert.Equal(t, 2, foo.Killed)
	assert.Equal(t, 2, foo.Covered)
	assert.Equal(t, 3, foo.Total)
	assert.InDelta(t, 1.0, foo.ScoreOfCovered(), 1e-9)
	assert.InDelta(t, 2.0/3.0, foo.ScoreOfGenerated(), 1e-3)
	assert.Equal(t, []string{"t1", "t2"}, foo.Tests)

	require.Len(t, table.Methods, 2)
	assert.Equal(t, "bar", table.Methods[0].Name)
	assert.Equal(t, "Foo", table.Methods[0].Class)
	assert.Equal(t, 2, table.Methods[0].Total)
	assert.Equal(t, "baz", table.Methods[1].Name)
	assert.Equal(t, 0, table.Methods[1].Covered)
	assert.Zero(t, table.Methods[1].ScoreOfCovered())
	assert.Zero(t, table.Methods[1].ScoreOfGenerated())
}

func TestAggregateMutations_CoveredButSurvived(t *testing.T) {
	table := AggregateMutations([]m.Mutation{
		withResult(mutationAt(1, "Foo", "bar", 10), true, false, "t1"),
		withResult(mutationAt(2, "Foo", "bar", 11), false, false),
	})

	require.Len(t, table.Classes, 1)
	assert.Equal(t, 0, table.Classes[0].Killed)
	assert.Equal(t, 1, table.Classes[0].Covered)
	assert.Equal(t, 2, table.Classes[0].Total)
	assert.Zero(t, table.Classes[0].ScoreOfCovered())
}

func TestAggregateMutations_DetectedWithoutTouchIsNotKilled(t *testing.T) {
	table := AggregateMutations([]m.Mutation{
		withResult(mutationAt(1, "Foo", "bar", 10), false, true, "t1"),
	})

	require.Len(t, table.Classes, 1)
	assert.Equal(t, 0, table.Classes[0].Killed)
	assert.Equal(t, 0, table.Classes[0].Covered)
	assert.Equal(t, 1, table.Classes[0].Total)
}

func TestAggregateMutations_SortedGroups(t *testing.T) {
	table := AggregateMutations([]m.Mutation{
		mutationAt(1, "Zeta", "a", 1),
		mutationAt(2, "Alpha", "z", 1),
		mutationAt(3, "Alpha", "b", 1),
	})

	require.Len(t, table.Classes, 2)
	assert.Equal(t, "Alpha", table.Classes[0].Name)
	assert.Equal(t, "Zeta", table.Classes[1].Name)

	require.Len(t, table.Methods, 3)
	assert.Equal(t, []string{"b", "z", "a"}, []string{table.Methods[0].Name, table.Methods[1].Name, table.Methods[2].Name})
}

func TestAggregateMutations_Empty(t *testing.T) {
	table := AggregateMutations(nil)
	assert.Empty(t, table.Classes)
	assert.Empty(t, table.Methods)
}

func TestScoreInvariants(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		count := rapid.IntRange(0, 40).Draw(t, "count")
		mutations := make([]m.Mutation, 0, count)

		for i := 0; i < count; i++ {
			class := rapid.SampledFrom([]string{"A", "B", "C"}).Draw(t, "class")
			method := rapid.SampledFrom([]string{"x", "y"}).Draw(t, "method")
			mutation := mutationAt(int64(i+1), class, method, i)

			if rapid.Bool().Draw(t, "hasResult") {
				mutation = withResult(mutation, rapid.Bool().Draw(t, "touched"), rapid.Bool().Draw(t, "detected"), "t")
			}

			mutations = append(mutations, mutation)
		}

		table := AggregateMutations(mutations)

		classTotal := 0
		for _, entry := range append(append([]m.ScoreEntry{}, table.Classes...), table.Methods...) {
			if entry.Covered > entry.Total {
				t.Fatalf("%s: covered %d > total %d", entry.Name, entry.Covered, entry.Total)
			}

			if entry.Killed > entry.Covered {
				t.Fatalf("%s: killed %d > covered %d", entry.Name, entry.Killed, entry.Covered)
			}

			for _, score := range []float64{entry.ScoreOfCovered(), entry.ScoreOfGenerated()} {
				if score < 0 || score > 1 {
					t.Fatalf("%s: score %f out of range", entry.Name, score)
				}
			}
		}

		for _, entry := range table.Classes {
			classTotal += entry.Total
		}

		if classTotal != count {
			t.Fatalf("class totals %d, want %d", classTotal, count)
		}
	})
}

type nilEntryStore struct {
	adapter.MutationStore
	mutations []m.Mutation
	nilAt     int
}

func (s *nilEntryStore) Catalog(ctx context.Context, fn func(*m.Mutation) error) error {
	for i := range s.mutations {
		if i == s.nilAt {
			if err := fn(nil); err != nil {
				return err
			}

			continue
		}

		if err := fn(&s.mutations[i]); err != nil {
			return err
		}
	}

	return nil
}

func TestAggregate_OverlaysCollectedResults(t *testing.T) {
	store, err := adapter.NewYAMLMutationStore(m.Path(filepath.Join(t.TempDir(), "catalog.yaml")))
	require.NoError(t, err)
	require.NoError(t, store.Add(
		mutationAt(1, "Foo", "bar", 1),
		mutationAt(2, "Foo", "bar", 2),
		withResult(mutationAt(3, "Foo", "baz", 3), true, false, "old"),
	))

	collector := NewResultCollector()
	collector.Add(m.ExecutionResult{MutationID: 1, Touched: true, Detected: true})
	collector.Add(m.ExecutionResult{MutationID: 3, Touched: true, Detected: true})

	table, err := Aggregate(context.Background(), store, collector)
	require.NoError(t, err)
	require.Len(t, table.Classes, 1)
	assert.Equal(t, 2, table.Classes[0].Killed)
	assert.Equal(t, 2, table.Classes[0].Covered)
	assert.Equal(t, 3, table.Classes[0].Total)
}

func TestAggregate_NilCollectorUsesStoredResults(t *testing.T) {
	store, err := adapter.NewYAMLMutationStore(m.Path(filepath.Join(t.TempDir(), "catalog.yaml")))
	require.NoError(t, err)
	require.NoError(t, store.Add(withResult(mutationAt(1, "Foo", "bar", 1), true, true, "t1")))

	table, err := Aggregate(context.Background(), store, nil)
	require.NoError(t, err)
	require.Len(t, table.Classes, 1)
	assert.Equal(t, 1, table.Classes[0].Killed)
}

func TestAggregate_UnfetchableEntryAborts(t *testing.T) {
	store := &nilEntryStore{
		mutations: []m.Mutation{mutationAt(1, "Foo", "bar", 1), mutationAt(2, "Foo", "bar", 2)},
		nilAt:     1,
	}

	_, err := Aggregate(context.Background(), store, nil)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrCatalogIntegrity), fmt.Sprintf("unexpected error %v", err))
}
