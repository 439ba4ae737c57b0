package model

// Identity is the resolved caller attached to the request context once the
// bearer credential has been verified.
type Identity struct {
	Subject string         `json:"subject"`
	Claims  map[string]any `json:"claims,omitempty"`
}
