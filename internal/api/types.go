package api

import "time"

// CreateFunctionRequest / UpdateFunctionRequest mirror the Function fields
// spec.md §3 describes as registry-owned.
type CreateFunctionRequest struct {
	Name           string `json:"name" binding:"required"`
	Route          string `json:"route" binding:"required"`
	Language       string `json:"language" binding:"required,oneof=python javascript"`
	TimeoutSeconds int    `json:"timeout_seconds"`
	ImageName      string `json:"image_name" binding:"required"`
	Code           string `json:"code" binding:"required"`
}

type UpdateFunctionRequest struct {
	Name           string `json:"name" binding:"required"`
	Route          string `json:"route" binding:"required"`
	Language       string `json:"language" binding:"required,oneof=python javascript"`
	TimeoutSeconds int    `json:"timeout_seconds"`
	ImageName      string `json:"image_name" binding:"required"`
	Code           string `json:"code" binding:"required"`
}

type FunctionResponse struct {
	ID             int64  `json:"id"`
	Name           string `json:"name"`
	Route          string `json:"route"`
	Language       string `json:"language"`
	TimeoutSeconds int    `json:"timeout_seconds"`
	ImageName      string `json:"image_name"`
	Code           string `json:"code"`
	CreatedAt      string `json:"created_at"`
}

type FunctionListResponse struct {
	Functions []FunctionResponse `json:"functions"`
}

// InvokeRequest is the shared body for invoke-by-route and invoke-by-id
// (spec.md §6: `{payload: object?}`).
type InvokeRequest struct {
	Payload any `json:"payload"`
}

type InvokeResponse struct {
	Output string `json:"output,omitempty"`
	Error  string `json:"error,omitempty"`
}

type HealthResponse struct {
	Status    string `json:"status"`
	Timestamp string `json:"timestamp"`
}

type ErrorResponse struct {
	Error   string `json:"error"`
	Code    int    `json:"code"`
	Details string `json:"details,omitempty"`
}

type PoolSnapshotResponse struct {
	Pool map[string][]string `json:"pool"`
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.Format(time.RFC3339)
}
