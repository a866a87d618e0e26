package model

// TestOutcome is the verdict of a single test against a mutated program.
type TestOutcome struct {
	TestName string `json:"testName" yaml:"testName"`
	Passed   bool   `json:"passed" yaml:"passed"`
	Message  string `json:"message,omitempty" yaml:"message,omitempty"`
}

// ExecutionResult is the structured outcome a worker writes for one mutation.
type ExecutionResult struct {
	MutationID int64         `json:"mutationId" yaml:"mutationId"`
	Touched    bool          `json:"touched" yaml:"touched"`   // mutated location reached during the run
	Detected   bool          `json:"detected" yaml:"detected"` // a test failed because of the mutation
	Outcomes   []TestOutcome `json:"outcomes" yaml:"outcomes"`
}

// TestNames returns the names of all tests that reported an outcome.
func (r *ExecutionResult) TestNames() []string {
	if r == nil {
		return nil
	}

	names := make([]string, 0, len(r.Outcomes))
	for _, outcome := range r.Outcomes {
		names = append(names, outcome.TestName)
	}

	return names
}

// Failed returns the outcomes of tests that did not pass.
func (r *ExecutionResult) Failed() []TestOutcome {
	if r == nil {
		return nil
	}

	var failed []TestOutcome

	for _, outcome := range r.Outcomes {
		if !outcome.Passed {
			failed = append(failed, outcome)
		}
	}

	return failed
}
