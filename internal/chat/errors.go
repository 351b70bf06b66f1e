package chat

// ValidationError rejects a command before any upstream call is made.
type ValidationError struct {
	Reason string
}

func (e *ValidationError) Error() string { return e.Reason }
