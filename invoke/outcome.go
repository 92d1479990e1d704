package invoke

import (
	"time"

	"github.com/google/uuid"

	"github.com/wippyai/tck-bridge/errors"
	"github.com/wippyai/tck-bridge/native"
	"github.com/wippyai/tck-bridge/report"
)

// Status is the terminal state of one invocation.
type Status string

const (
	StatusCompleted        Status = "completed"
	StatusCrashed          Status = "crashed"
	StatusTimedOut         Status = "timed_out"
	StatusMalformedRequest Status = "malformed_request"
	StatusLibraryLoad      Status = "library_load_error"
	StatusTypeMismatch     Status = "type_mismatch"
	StatusValueOverflow    Status = "value_overflow"
	StatusResultParse      Status = "result_parse_error"
	StatusUnknownType      Status = "unknown_type"
)

// Retryable reports whether the same call might succeed if made again.
// Only process-level failures qualify; a rejected request never will.
func (s Status) Retryable() bool {
	return s == StatusCrashed || s == StatusTimedOut
}

// StatusOf maps an error to the invocation status it represents.
func StatusOf(err error) Status {
	if err == nil {
		return StatusCompleted
	}
	return statusOfKind(errors.KindOf(err))
}

func statusOfKind(k errors.Kind) Status {
	switch k {
	case errors.KindUnknownType:
		return StatusUnknownType
	case errors.KindTypeMismatch:
		return StatusTypeMismatch
	case errors.KindOverflow:
		return StatusValueOverflow
	case errors.KindInvalidUTF8, errors.KindMalformedRequest, errors.KindInvalidInput, errors.KindNotFound:
		return StatusMalformedRequest
	case errors.KindLibraryLoad, errors.KindUnsupported:
		return StatusLibraryLoad
	case errors.KindResultParse:
		return StatusResultParse
	case errors.KindTimedOut:
		return StatusTimedOut
	}
	return StatusCrashed
}

// Outcome describes one invocation. Invoke always returns one, on success
// and failure alike; Err is set exactly when Status is not completed.
type Outcome struct {
	Started  time.Time
	Err      error
	Value    native.Value
	Output   []byte
	Stderr   []byte
	Out      []report.OutValue
	Symbol   string
	Signal   string
	Status   Status
	Duration time.Duration
	ID       uuid.UUID
	ExitCode int
	PID      int
}

// OutParam returns the value written through the output parameter at index.
func (o *Outcome) OutParam(index int) (int32, bool) {
	for _, v := range o.Out {
		if v.Index == index {
			return v.Value, true
		}
	}
	return 0, false
}

func (o *Outcome) fail(status Status, err error) (*Outcome, error) {
	o.Status = status
	o.Err = err
	return o, err
}

// Rejected returns the Outcome of a call refused before any worker started.
func Rejected(symbol string, err error) *Outcome {
	out := newOutcome(symbol)
	out.Status = StatusOf(err)
	out.Err = err
	return out
}

func newOutcome(symbol string) *Outcome {
	return &Outcome{
		ID:      uuid.New(),
		Symbol:  symbol,
		Started: time.Now(),
	}
}
