package logger

import "context"

// contextKey is a private type for context keys to avoid collisions.
type contextKey string

// Context keys for common logging fields. Values stored under these keys are
// added to every record logged with the context.
const (
	ContextKeySessionID contextKey = "session_id"
	ContextKeyUserID    contextKey = "user_id"
	ContextKeyBatchSeq  contextKey = "batch_seq"
	ContextKeyStage     contextKey = "stage"
	ContextKeyModel     contextKey = "model"
)

var allContextKeys = []contextKey{
	ContextKeySessionID,
	ContextKeyUserID,
	ContextKeyBatchSeq,
	ContextKeyStage,
	ContextKeyModel,
}

// WithSessionID returns a new context with the session ID set.
func WithSessionID(ctx context.Context, sessionID string) context.Context {
	return context.WithValue(ctx, ContextKeySessionID, sessionID)
}

// WithUserID returns a new context with the user ID set.
func WithUserID(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, ContextKeyUserID, userID)
}

// WithBatchSeq returns a new context with the batch sequence set.
func WithBatchSeq(ctx context.Context, seq string) context.Context {
	return context.WithValue(ctx, ContextKeyBatchSeq, seq)
}

// WithStage returns a new context with the pipeline stage set.
func WithStage(ctx context.Context, stage string) context.Context {
	return context.WithValue(ctx, ContextKeyStage, stage)
}

// WithModel returns a new context with the model name set.
func WithModel(ctx context.Context, model string) context.Context {
	return context.WithValue(ctx, ContextKeyModel, model)
}
