// Package events provides event types and utilities for the taskpilot
// event system.
package events

// Event types for executions
const (
	ExecutionStarted   = "execution.started"
	ExecutionProgress  = "execution.progress"
	ExecutionSession   = "execution.session"
	ExecutionFallback  = "execution.fallback"
	ExecutionCompleted = "execution.completed"
)

// Subject returns the bus subject for one execution's events. Subjects
// are per-execution so subscribers can filter with wildcards
// ("executions.*" for everything, "executions.<id>" for one run).
func Subject(executionID string) string {
	return "executions." + executionID
}

// SubjectAll matches the events of every execution.
const SubjectAll = "executions.*"
