package core

import "strings"

// Input is one message submitted to a session.
type Input struct {
	// SessionID names the conversation the message belongs to.
	SessionID string `json:"session_id" validate:"required"`

	// Message is the user's text.
	Message string `json:"message" validate:"required"`
}

// Normalize trims surrounding whitespace from both fields.
func (in Input) Normalize() Input {
	return Input{
		SessionID: strings.TrimSpace(in.SessionID),
		Message:   strings.TrimSpace(in.Message),
	}
}
