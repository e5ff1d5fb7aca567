package model

import "errors"

// AskRequest is a free-form question for the assistant.
type AskRequest struct {
	Question string `json:"question"`
}

type AskResponse struct {
	Answer string `json:"answer"`
}

type TranscriptionResponse struct {
	Text string `json:"text"`
}

var (
	ErrQuestionRequired     = errors.New("question is required")
	ErrAssistantUnavailable = errors.New("assistant is not configured")
)
