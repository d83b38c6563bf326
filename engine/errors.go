package engine

import (
	"fmt"
	"strings"
)

// GraphDefinitionError reports a definition that can not be compiled.
type GraphDefinitionError struct {
	Problems []string
}

func (e *GraphDefinitionError) Error() string {
	return "invalid graph definition: " + strings.Join(e.Problems, "; ")
}

// RoutingError reports a conditional edge or fan-out that chose a
// destination the definition does not declare.
type RoutingError struct {
	From  string
	Label string
	Err   error
}

func (e *RoutingError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("routing from %s: %v", e.From, e.Err)
	}
	return fmt.Sprintf("routing from %s: undeclared destination %q", e.From, e.Label)
}

func (e *RoutingError) Unwrap() error { return e.Err }

// StepLimitExceededError is returned when a run needs more supersteps than allowed.
type StepLimitExceededError struct {
	Limit int
}

func (e *StepLimitExceededError) Error() string {
	return fmt.Sprintf("step limit exceeded: run did not finish within %d steps", e.Limit)
}
