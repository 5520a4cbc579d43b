package api

import "prism-todo/domain"

const requestMaxSize = 64 * 1024 // 64 KiB

const (
	msgNotFound    = "Todo not found"
	msgDeleted     = "Todo deleted successfully"
	msgInvalidBody = "invalid body"
	msgTooLarge    = "request body too large"
	msgHealthy     = "API is running"
)

// GET /api/todos response body
type listResponse struct {
	Success bool          `json:"success"`
	Count   int           `json:"count"`
	Data    []domain.Todo `json:"data"`
}

// single todo response body for GET/POST/PUT
type todoResponse struct {
	Success bool        `json:"success"`
	Data    domain.Todo `json:"data"`
}

type messageResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

type errorResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
}
