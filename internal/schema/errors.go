package schema

import "fmt"

// ParseError reports a malformed field specification. It is fatal: no
// record processing happens against a schema that failed to parse.
type ParseError struct {
	Field  string
	Reason string
}

func (e *ParseError) Error() string {
	if e.Field == "" {
		return "schema: " + e.Reason
	}
	return fmt.Sprintf("schema: field %q: %s", e.Field, e.Reason)
}

// DependencyError reports a formula field declared before one of its
// dependencies, or referencing a field that does not exist.
type DependencyError struct {
	Field      string
	Dependency string
}

func (e *DependencyError) Error() string {
	return fmt.Sprintf("schema: formula field %q references %q which is not declared before it", e.Field, e.Dependency)
}
