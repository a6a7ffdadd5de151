// Package backend talks to the remote conversational-AI service and
// normalizes its responses into ordered dialogue batches.
package backend

import (
	"context"
)

// Generator abstracts the dialogue service.
type Generator interface {
	// CreateSession requests a new remote conversational context and
	// returns its opaque handle.
	CreateSession(ctx context.Context) (string, error)

	// Generate submits one turn and returns the resulting dialogue batch,
	// hiding whether the service answered synchronously or via a polled job.
	Generate(ctx context.Context, req GenerateRequest) (*GenerateResult, error)
}
