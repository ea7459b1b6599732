// Package model defines the request and response payloads used by the API.
// It keeps transport-level types in one place for reuse.
package model

// RegisterRequest is the input payload for registering a resource.
type RegisterRequest struct {
	Name       string            `json:"name"`
	Ranking    int               `json:"ranking"`
	Properties map[string]string `json:"properties,omitempty"`
}

// UpdateRequest is the input payload for modifying a resource.
// Nil fields are left unchanged.
type UpdateRequest struct {
	Ranking    *int              `json:"ranking,omitempty"`
	Properties map[string]string `json:"properties,omitempty"`
}

// ResourceInfo describes one resource. It doubles as the resolvable
// object registered for HTTP-registered resources.
type ResourceInfo struct {
	ID         uint64            `json:"id"`
	Name       string            `json:"name"`
	Ranking    int               `json:"ranking"`
	Properties map[string]string `json:"properties,omitempty"`
}

// TrackedResponse is the output payload for tracked-view queries.
type TrackedResponse struct {
	Status    string         `json:"status"` // "ok" | "error"
	Size      int            `json:"size"`
	Resources []ResourceInfo `json:"resources,omitempty"`
	Error     *ErrorPayload  `json:"error,omitempty"`
}

// BestResponse is the output payload for best-resource queries.
type BestResponse struct {
	Status   string        `json:"status"`
	Resource *ResourceInfo `json:"resource,omitempty"`
	Object   any           `json:"object,omitempty"`
	Error    *ErrorPayload `json:"error,omitempty"`
}

// ObjectsResponse is the output payload for bulk object resolution.
type ObjectsResponse struct {
	Status  string        `json:"status"`
	Objects []any         `json:"objects,omitempty"`
	Error   *ErrorPayload `json:"error,omitempty"`
}

// ErrorPayload describes an error response.
type ErrorPayload struct {
	Kind    string `json:"kind"`              // "invalid_criterion", "none_available"
	Message string `json:"message,omitempty"` // optional, human-readable error message
}
