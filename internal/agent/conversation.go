// internal/agent/conversation.go
package agent

import (
	"sync"

	"github.com/xkilldash9x/seeclaw/internal/llmclient"
)

// Conversation is the message log sent to the planner. The engine goroutine
// writes it; other goroutines read snapshots.
type Conversation struct {
	mu       sync.RWMutex
	messages []llmclient.Message
}

func (c *Conversation) Reset(initial ...llmclient.Message) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.messages = append([]llmclient.Message(nil), initial...)
}

func (c *Conversation) Append(msgs ...llmclient.Message) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.messages = append(c.messages, msgs...)
}

// Messages returns a copy of the log.
func (c *Conversation) Messages() []llmclient.Message {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return append([]llmclient.Message(nil), c.messages...)
}

func (c *Conversation) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.messages)
}
