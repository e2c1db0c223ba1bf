package api

import "github.com/starford/quill/internal/models"

// AgentRequest is the request body for POST /agent.
type AgentRequest struct {
	Prompt string `json:"prompt" example:"Save 'Buy milk' to shopping.txt" validate:"required"`
}

// AgentResponse is the response body for POST /agent. Filename and
// DownloadURL are null when the run wrote nothing.
type AgentResponse struct {
	Response    string  `json:"response" validate:"required"`
	Filename    *string `json:"filename" example:"shopping.txt"`
	DownloadURL *string `json:"download_url" example:"/download/shopping.txt"`
}

// NoteListResponse wraps the notes listing.
type NoteListResponse struct {
	Notes []models.NoteInfo `json:"notes" validate:"required"`
}
