package loader

import (
	"fmt"
	"os"

	"github.com/velang/velprof/decl"
)

// SourceError is a positioned load-time failure (malformed input,
// unknown type names, duplicate declarations). These are tool-internal:
// they abort the run and are reported separately from target-program
// diagnostics.
type SourceError struct {
	Loc decl.Location
	Msg string
}

func Errorf(loc decl.Location, format string, args ...any) *SourceError {
	return &SourceError{Loc: loc, Msg: fmt.Sprintf(format, args...)}
}

func (e *SourceError) Error() string {
	return fmt.Sprintf("%s: %s", e.Loc.String(), e.Msg)
}

type ErrorCollector struct {
	// Errors for this unit
	Errors []error

	// Max errors before collection stops; 0 => no limit
	MaxErrors int
}

func (c *ErrorCollector) HasErrors() bool {
	return len(c.Errors) > 0
}

func (c *ErrorCollector) PrintErrors() {
	for _, err := range c.Errors {
		fmt.Fprintln(os.Stderr, err)
	}
}

func (c *ErrorCollector) AddErrors(errs ...error) {
	for _, err := range errs {
		if c.MaxErrors > 0 && len(c.Errors) >= c.MaxErrors {
			return
		}
		c.Errors = append(c.Errors, err)
	}
}

func (c *ErrorCollector) Errorf(loc decl.Location, format string, args ...any) bool {
	c.AddErrors(Errorf(loc, format, args...))
	return false
}
