// Package model defines the data structures for mutation execution and analysis.
package model

import "fmt"

// MutationStatus tracks where a mutation is in its execution lifecycle.
type MutationStatus string

const (
	// StatusPending marks a mutation with no recorded result.
	StatusPending MutationStatus = "pending"
	// StatusRunning marks a mutation that has been dispatched to a worker.
	StatusRunning MutationStatus = "running"
	// StatusDone marks a mutation whose result artifact was collected.
	StatusDone MutationStatus = "done"
	// StatusUnresolved marks a mutation whose worker finished without a result.
	StatusUnresolved MutationStatus = "unresolved"
)

// Descriptor locates a mutation in the subject program. Two descriptors are
// equal when all four fields match, independent of any storage identity.
type Descriptor struct {
	Class    string `yaml:"class" json:"class" gorm:"column:class_name"`
	Method   string `yaml:"method" json:"method" gorm:"column:method_name"`
	Line     int    `yaml:"line" json:"line" gorm:"column:line_number"`
	Operator string `yaml:"operator" json:"operator" gorm:"column:operator"`
}

// QualifiedMethod returns the Class.Method key used for method-level grouping.
func (d Descriptor) QualifiedMethod() string {
	return d.Class + "." + d.Method
}

func (d Descriptor) String() string {
	return fmt.Sprintf("%s.%s:%d (%s)", d.Class, d.Method, d.Line, d.Operator)
}

// Mutation represents one localized change to the subject program.
type Mutation struct {
	ID         int64
	Descriptor Descriptor
	Status     MutationStatus
	Result     *ExecutionResult
}

// EqualsIgnoringID reports whether both mutations describe the same change.
func (m Mutation) EqualsIgnoringID(other Mutation) bool {
	return m.Descriptor == other.Descriptor
}

func (m Mutation) String() string {
	return fmt.Sprintf("#%d %s", m.ID, m.Descriptor)
}
