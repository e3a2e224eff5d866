// Package net provides utilities for working with request contexts
package net

import (
	"context"

	chimw "github.com/go-chi/chi/v5/middleware"
)

// ctxKey is an unexported key type for context values
type ctxKey string

const keySubjectRef ctxKey = "subject_ref"

// WithRequest annotates context with common request scoped ids
func WithRequest(ctx context.Context, reqID, subjectRef string) context.Context {
	if reqID != "" {
		// set chi RequestID so chimw.GetReqID can retrieve it
		ctx = context.WithValue(ctx, chimw.RequestIDKey, reqID)
	}
	if subjectRef != "" {
		ctx = context.WithValue(ctx, keySubjectRef, subjectRef)
	}
	return ctx
}

// RequestID returns the request id on the context if present
func RequestID(ctx context.Context) string {
	if v := chimw.GetReqID(ctx); v != "" {
		return v
	}
	return ""
}

// SubjectRef returns the subject ref on the context if present
func SubjectRef(ctx context.Context) string {
	if v, ok := ctx.Value(keySubjectRef).(string); ok {
		return v
	}
	return ""
}
