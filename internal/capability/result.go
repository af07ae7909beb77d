package capability

// Result is the uniform envelope every capability returns to the caller.
// Exactly one of Output and Error is non-nil.
type Result struct {
	Output *string `json:"output"`
	Error  *string `json:"error"`
}

func Success(output string) Result {
	return Result{Output: &output}
}

func Failure(msg string) Result {
	return Result{Error: &msg}
}

type Outcome string

const (
	OutcomeRejected  Outcome = "rejected"
	OutcomeSucceeded Outcome = "succeeded"
	OutcomeFallback  Outcome = "soft_fallback"
	OutcomeError     Outcome = "hard_error"
)
