// Package ai describes the language model used by the development backend.
package ai

import (
	"context"
	"iter"
)

// Roles of conversation turns.
const (
	RoleUser  = "user"
	RoleModel = "model"
)

// Turn is one earlier message of a conversation.
type Turn struct {
	Role string
	Text string
}

// Request is one generation request.
type Request struct {
	System  string
	History []Turn
	Prompt  string
}

// Generator streams model output as text fragments in order. The sequence
// ends after the first error.
type Generator interface {
	Stream(ctx context.Context, req Request) iter.Seq2[string, error]
	Model() string
}
