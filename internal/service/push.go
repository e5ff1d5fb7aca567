package service

import "context"

// PushMessage is one multicast request to a push provider.
type PushMessage struct {
	Tokens   []string
	Title    string
	Body     string
	ImageURL string
	Sound    string
	Data     map[string]string
}

// PushResult is the provider verdict for a single token.
type PushResult struct {
	Success bool
	// Retryable marks failures that say nothing about the token itself
	// (quota, provider outage). Such tokens are kept.
	Retryable bool
	Err       error
}

// PushResponse carries one result per token, in the order of PushMessage.Tokens.
type PushResponse struct {
	SuccessCount int
	FailureCount int
	Results      []PushResult
}

// PushGateway delivers a message to many device tokens in one call.
// A returned error means the provider could not be reached at all.
type PushGateway interface {
	SendMulticast(ctx context.Context, msg *PushMessage) (*PushResponse, error)
}
