package storage

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("not found")

// SystemPrompt is a saved LLM instruction template.
type SystemPrompt struct {
	ID        string    `json:"id" bson:"_id,omitempty"`
	Title     string    `json:"title" bson:"title"`
	Prompt    string    `json:"prompt" bson:"prompt"`
	CreatedAt time.Time `json:"-" bson:"createdAt"`
}

// Subscription is the billing state attached to a user record.
type Subscription struct {
	Status   string `json:"status" bson:"status"`
	PlanType string `json:"planType" bson:"planType"`
}

// User is the subset of a user document needed for subscription checks.
type User struct {
	ID           string       `json:"id" bson:"_id"`
	Email        string       `json:"email,omitempty" bson:"email,omitempty"`
	Subscription Subscription `json:"subscription" bson:"subscription"`
	UpdatedAt    time.Time    `json:"-" bson:"updatedAt"`
}

// PromptStore persists system prompts.
type PromptStore interface {
	ListSystemPrompts(ctx context.Context) ([]SystemPrompt, error)
	CreateSystemPrompt(ctx context.Context, title, prompt string) (SystemPrompt, error)
}

// UserStore looks up and records users.
type UserStore interface {
	GetUser(ctx context.Context, id string) (User, error)
	SaveUser(ctx context.Context, u User) error
}

// Backend is a document store serving both prompts and users.
type Backend interface {
	PromptStore
	UserStore
	Ping(ctx context.Context) error
	Close() error
}
