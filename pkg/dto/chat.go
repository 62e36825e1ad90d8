package dto

type ChatTurn struct {
	Role    string `json:"role" binding:"required,oneof=user assistant"`
	Content string `json:"content"`
}

type ChatRequest struct {
	Message string     `json:"message" binding:"required"`
	History []ChatTurn `json:"history"`
}

// ChatResponse is the assistant's prose plus the outcome of the action it
// chose, if any.
type ChatResponse struct {
	Reply  string `json:"reply"`
	Result any    `json:"result,omitempty"`
}
