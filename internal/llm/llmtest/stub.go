// Package llmtest provides a scripted Generator for tests.
package llmtest

import (
	"context"
	"strings"
	"sync"

	"github.com/liliang-cn/paperchat/internal/llm"
)

// Stub replies with Reply, or fails with Err, and records every request.
// Stream emits Chunks when set and Reply as a single fragment otherwise.
type Stub struct {
	Reply  string
	Chunks []string
	Err    error

	mu       sync.Mutex
	requests []*llm.Request
}

// Generate records req and returns the scripted reply
func (s *Stub) Generate(_ context.Context, req *llm.Request) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.requests = append(s.requests, req)
	if s.Err != nil {
		return "", s.Err
	}
	return s.Reply, nil
}

// Stream records req and emits the scripted fragments
func (s *Stub) Stream(_ context.Context, req *llm.Request, emit llm.DeltaFunc) (string, error) {
	s.mu.Lock()
	s.requests = append(s.requests, req)
	chunks, err := s.Chunks, s.Err
	if len(chunks) == 0 {
		chunks = []string{s.Reply}
	}
	s.mu.Unlock()

	if err != nil {
		return "", err
	}
	var text strings.Builder
	for _, c := range chunks {
		text.WriteString(c)
		if err := emit(c); err != nil {
			return text.String(), err
		}
	}
	return text.String(), nil
}

// Name returns "stub"
func (s *Stub) Name() string {
	return "stub"
}

// Requests returns the recorded requests
func (s *Stub) Requests() []*llm.Request {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]*llm.Request(nil), s.requests...)
}

// Last returns the most recent request, or nil
func (s *Stub) Last() *llm.Request {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.requests) == 0 {
		return nil
	}
	return s.requests[len(s.requests)-1]
}
