package pool

import (
	"errors"
	"fmt"
)

var (
	ErrPoolClosed           = errors.New("pool: pool is closed")
	ErrTimeout              = errors.New("pool: timeout")
	ErrInvalidConfiguration = errors.New("pool: invalid configuration")
)

// TimeoutPhase names the step of Get that ran out of time.
type TimeoutPhase string

const (
	TimeoutWait    TimeoutPhase = "wait"
	TimeoutCreate  TimeoutPhase = "create"
	TimeoutRecycle TimeoutPhase = "recycle"
)

// TimeoutError is returned when one of the configured timeouts expires.
type TimeoutError struct {
	Phase TimeoutPhase
	Err   error // Underlying error, if the manager returned one
}

func (e *TimeoutError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("pool: timeout during %s: %v", e.Phase, e.Err)
	}
	return fmt.Sprintf("pool: timeout during %s", e.Phase)
}

func (e *TimeoutError) Unwrap() error {
	return e.Err
}

// Is makes errors.Is(err, ErrTimeout) match every TimeoutError.
func (e *TimeoutError) Is(target error) bool {
	return target == ErrTimeout
}
