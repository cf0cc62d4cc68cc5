package llm

import (
	"context"
	"strings"
	"sync"
)

// Scripted answers prompts from a fixed table. The first rule whose key is a
// substring of the prompt wins; Fallback is used when nothing matches. It
// backs offline runs and tests.
type Scripted struct {
	Rules    []ScriptRule
	Fallback string

	mu      sync.Mutex
	prompts []string
}

// ScriptRule maps a prompt substring to a canned reply or error.
type ScriptRule struct {
	Contains string
	Reply    string
	Err      error
}

func (s *Scripted) Complete(ctx context.Context, req CompletionRequest) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	s.mu.Lock()
	s.prompts = append(s.prompts, req.Prompt)
	s.mu.Unlock()

	for _, r := range s.Rules {
		if strings.Contains(req.Prompt, r.Contains) {
			return r.Reply, r.Err
		}
	}
	if s.Fallback == "" {
		return "", ErrEmptyResponse
	}
	return s.Fallback, nil
}

// Prompts returns every prompt received so far.
func (s *Scripted) Prompts() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.prompts...)
}
