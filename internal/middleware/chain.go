// Package middleware provides the HTTP middleware that sits in front of the
// map endpoints: request IDs, panic recovery, metrics, access logging,
// API key authentication and rate limiting.
package middleware

import "net/http"

// Middleware wraps an http.Handler with additional behavior.
type Middleware func(http.Handler) http.Handler

// Stack is an ordered list of middleware. The first entry is the outermost
// wrapper: it sees the request first and the response last.
type Stack []Middleware

// Append returns a new Stack with mw added inside the existing entries.
// s itself is not modified.
func (s Stack) Append(mw ...Middleware) Stack {
	out := make(Stack, 0, len(s)+len(mw))
	out = append(out, s...)
	return append(out, mw...)
}

// Then wraps h with every middleware in s.
func (s Stack) Then(h http.Handler) http.Handler {
	for i := len(s) - 1; i >= 0; i-- {
		h = s[i](h)
	}
	return h
}

// Chain wraps h with mw, first entry outermost.
func Chain(h http.Handler, mw ...Middleware) http.Handler {
	return Stack(mw).Then(h)
}
