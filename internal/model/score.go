package model

// ScoreEntry holds the kill and coverage counts of one class or method.
type ScoreEntry struct {
	Name    string
	Class   string
	Killed  int
	Covered int
	Total   int
	Tests   []string
}

// ScoreOfCovered is killed/covered, or 0 when nothing was covered.
func (s ScoreEntry) ScoreOfCovered() float64 {
	if s.Covered <= 0 {
		return 0
	}

	return float64(s.Killed) / float64(s.Covered)
}

// ScoreOfGenerated is killed/total, or 0 when the group is empty.
func (s ScoreEntry) ScoreOfGenerated() float64 {
	if s.Total <= 0 {
		return 0
	}

	return float64(s.Killed) / float64(s.Total)
}

// ScoreTable is the aggregated class-level and method-level view of a run.
type ScoreTable struct {
	Classes []ScoreEntry
	Methods []ScoreEntry
}
