package build

type Status int

const (
	StatusNotStarted Status = iota
	StatusRunning
	StatusCompleted
)

func (s Status) String() string {
	switch s {
	case StatusNotStarted:
		return "not started"
	case StatusRunning:
		return "running"
	case StatusCompleted:
		return "completed"
	default:
		return "unknown"
	}
}

type Result string

const (
	ResultNone     Result = ""
	ResultSuccess  Result = "SUCCESS"
	ResultUnstable Result = "UNSTABLE"
	ResultFailure  Result = "FAILURE"
	ResultAborted  Result = "ABORTED"
)

// ParseResult maps a persisted result string back to a Result.
func ParseResult(s string) (Result, bool) {
	switch Result(s) {
	case ResultSuccess, ResultUnstable, ResultFailure, ResultAborted:
		return Result(s), true
	case ResultNone:
		return ResultNone, true
	default:
		return ResultNone, false
	}
}

// Worse returns the more severe of two results.
func (r Result) Worse(other Result) Result {
	if r.severity() >= other.severity() {
		return r
	}
	return other
}

func (r Result) severity() int {
	switch r {
	case ResultSuccess:
		return 1
	case ResultUnstable:
		return 2
	case ResultFailure:
		return 3
	case ResultAborted:
		return 4
	default:
		return 0
	}
}
