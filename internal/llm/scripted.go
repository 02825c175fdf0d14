package llm

import (
	"context"
	"errors"
	"sync"
)

var _ Client = (*ScriptedClient)(nil)

// ScriptedClient is an in-memory Client that replays queued replies. Once the
// queue is drained the last reply repeats. It records every conversation it
// receives and is safe for concurrent use.
type ScriptedClient struct {
	mu            sync.Mutex
	replies       []string
	errs          map[int]error
	respond       func(call int, messages []Message) (string, error)
	calls         int
	conversations [][]Message
}

// NewScriptedClient returns a client that answers with replies in order.
func NewScriptedClient(replies ...string) *ScriptedClient {
	return &ScriptedClient{replies: replies, errs: make(map[int]error)}
}

// NewFuncClient returns a client whose replies are computed by fn. The call
// number starts at 1.
func NewFuncClient(fn func(call int, messages []Message) (string, error)) *ScriptedClient {
	return &ScriptedClient{respond: fn, errs: make(map[int]error)}
}

// FailOn makes the given call number (starting at 1) return err.
func (c *ScriptedClient) FailOn(call int, err error) *ScriptedClient {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.errs[call] = err
	return c
}

// Model implements Client.
func (c *ScriptedClient) Model() string {
	return "scripted"
}

// Chat implements Client.
func (c *ScriptedClient) Chat(ctx context.Context, messages []Message) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	c.mu.Lock()
	c.calls++
	call := c.calls
	c.conversations = append(c.conversations, append([]Message(nil), messages...))
	err := c.errs[call]
	respond := c.respond
	c.mu.Unlock()

	if err != nil {
		return "", err
	}
	if respond != nil {
		return respond(call, messages)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.replies) == 0 {
		return "", errors.New("scripted client has no replies")
	}
	idx := call - 1
	if idx >= len(c.replies) {
		idx = len(c.replies) - 1
	}
	return c.replies[idx], nil
}

// Calls returns the number of Chat invocations.
func (c *ScriptedClient) Calls() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.calls
}

// Conversations returns a copy of every conversation received, in call order.
func (c *ScriptedClient) Conversations() [][]Message {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([][]Message, len(c.conversations))
	copy(out, c.conversations)
	return out
}
