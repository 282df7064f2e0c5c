package warehouse

import (
	"errors"
	"fmt"
)

// Step names one stage of the merge transaction.
type Step string

const (
	StepCreateTarget  Step = "create target table"
	StepCreateStaging Step = "create staging table"
	StepCopy          Step = "bulk copy"
	StepDelete        Step = "delete replaced rows"
	StepInsert        Step = "insert staged rows"
	StepDropStaging   Step = "drop staging table"
	StepCommit        Step = "commit"
)

// InvalidInputError reports a request rejected before any warehouse I/O.
type InvalidInputError struct {
	Field string
	Value string
	Err   error
}

func (e *InvalidInputError) Error() string {
	return fmt.Sprintf("invalid %s %q: %v", e.Field, e.Value, e.Err)
}

func (e *InvalidInputError) Unwrap() error { return e.Err }

// ConnectionError reports that no warehouse session or transaction could be
// opened. Nothing was mutated.
type ConnectionError struct {
	Engine string
	Err    error
}

func (e *ConnectionError) Error() string {
	return fmt.Sprintf("connect to %s warehouse: %v", e.Engine, e.Err)
}

func (e *ConnectionError) Unwrap() error { return e.Err }

// LoadExecutionError reports a failed statement inside the merge
// transaction. The transaction was rolled back before it was returned.
type LoadExecutionError struct {
	Step Step
	// Code is the engine's error code (SQLSTATE, error number, error type)
	// when the driver exposes one.
	Code        string
	Err         error
	RollbackErr error
}

func (e *LoadExecutionError) Error() string {
	msg := fmt.Sprintf("load failed at step %q", e.Step)
	if e.Code != "" {
		msg += " (code " + e.Code + ")"
	}
	msg += ": " + e.Err.Error()
	if e.RollbackErr != nil {
		msg += "; rollback: " + e.RollbackErr.Error()
	}
	return msg
}

func (e *LoadExecutionError) Unwrap() error { return e.Err }

// IsFatalBeforeMutation reports whether err was raised before a transaction
// was opened, so the caller knows no rollback took place.
func IsFatalBeforeMutation(err error) bool {
	var inErr *InvalidInputError
	var connErr *ConnectionError
	return errors.As(err, &inErr) || errors.As(err, &connErr)
}
