package ai

import "fmt"

// UpstreamError reports a failed or malformed response from an external
// model endpoint. Status is the upstream HTTP status when one was received.
type UpstreamError struct {
	Service string
	Status  int
	Message string
}

func (e *UpstreamError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("%s: status %d: %s", e.Service, e.Status, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Service, e.Message)
}
