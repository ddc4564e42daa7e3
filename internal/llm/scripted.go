package llm

import (
	"context"
	"fmt"
	"sync"
)

// ScriptedClient is a test double that replays canned completions in
// order. It records every request so tests can assert on what the
// dialogue loop actually sent.
type ScriptedClient struct {
	mu        sync.Mutex
	responses []string
	errs      []error
	calls     []Request
}

// NewScriptedClient returns a client that yields the given completions
// in sequence. Calls beyond the script return an error.
func NewScriptedClient(responses ...string) *ScriptedClient {
	return &ScriptedClient{responses: responses}
}

// FailWith appends an error step to the script: the call at that
// position returns err instead of a completion.
func (s *ScriptedClient) FailWith(err error) *ScriptedClient {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.responses = append(s.responses, "")
	for len(s.errs) < len(s.responses)-1 {
		s.errs = append(s.errs, nil)
	}
	s.errs = append(s.errs, err)
	return s
}

// Chat pops the next scripted completion.
func (s *ScriptedClient) Chat(ctx context.Context, req Request) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.calls = append(s.calls, req)
	i := len(s.calls) - 1
	if i >= len(s.responses) {
		return "", fmt.Errorf("scripted client exhausted after %d calls", len(s.responses))
	}
	if i < len(s.errs) && s.errs[i] != nil {
		return "", s.errs[i]
	}
	return s.responses[i], nil
}

// Ping always succeeds.
func (s *ScriptedClient) Ping(ctx context.Context) error { return nil }

// Calls returns a copy of the recorded requests.
func (s *ScriptedClient) Calls() []Request {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Request, len(s.calls))
	copy(out, s.calls)
	return out
}

// CallCount returns how many Chat calls were made.
func (s *ScriptedClient) CallCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.calls)
}
