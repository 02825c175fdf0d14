package extract

import "github.com/ShayCichocki/hydra/internal/llm"

// Conversation is an immutable ordered list of chat messages. Append returns
// a new Conversation and leaves the receiver untouched.
type Conversation struct {
	messages []llm.Message
}

// NewConversation returns a conversation holding msgs.
func NewConversation(msgs ...llm.Message) Conversation {
	return Conversation{messages: append([]llm.Message(nil), msgs...)}
}

// Seed returns a single-turn instruction: an optional system prompt followed
// by the user prompt.
func Seed(system, user string) Conversation {
	if system == "" {
		return NewConversation(llm.UserMessage(user))
	}
	return NewConversation(llm.SystemMessage(system), llm.UserMessage(user))
}

// Append returns a copy of the conversation with msgs added at the end.
func (c Conversation) Append(msgs ...llm.Message) Conversation {
	out := make([]llm.Message, 0, len(c.messages)+len(msgs))
	out = append(out, c.messages...)
	out = append(out, msgs...)
	return Conversation{messages: out}
}

// Messages returns a copy of the messages.
func (c Conversation) Messages() []llm.Message {
	return append([]llm.Message(nil), c.messages...)
}

// Len returns the number of messages.
func (c Conversation) Len() int {
	return len(c.messages)
}

// Last returns the final message, if any.
func (c Conversation) Last() (llm.Message, bool) {
	if len(c.messages) == 0 {
		return llm.Message{}, false
	}
	return c.messages[len(c.messages)-1], true
}

// LastUser returns the content of the most recent user turn.
func (c Conversation) LastUser() string {
	for i := len(c.messages) - 1; i >= 0; i-- {
		if c.messages[i].Role == llm.RoleUser {
			return c.messages[i].Content
		}
	}
	return ""
}
