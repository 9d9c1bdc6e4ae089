package session

import "github.com/rbright/murmur/internal/pipeline"

// DefaultHistoryLimit keeps the last five exchanges.
const DefaultHistoryLimit = 10

// History is the bounded conversation memory. It is owned by the controller
// goroutine and is not safe for concurrent use.
type History struct {
	limit   int
	entries []pipeline.Message
}

// NewHistory returns an empty history holding at most limit messages. The
// limit is rounded down to an even number of at least two so exchanges are
// never split.
func NewHistory(limit int) *History {
	if limit <= 0 {
		limit = DefaultHistoryLimit
	}
	limit -= limit % 2
	if limit < 2 {
		limit = 2
	}
	return &History{limit: limit}
}

// Append adds one user/assistant exchange and evicts the oldest exchanges
// beyond the limit.
func (h *History) Append(user string, assistant string) {
	h.entries = append(h.entries,
		pipeline.Message{Role: pipeline.RoleUser, Content: user},
		pipeline.Message{Role: pipeline.RoleAssistant, Content: assistant},
	)
	if over := len(h.entries) - h.limit; over > 0 {
		h.entries = append([]pipeline.Message(nil), h.entries[over:]...)
	}
}

// Messages returns a copy safe to hand to a worker.
func (h *History) Messages() []pipeline.Message {
	return append([]pipeline.Message(nil), h.entries...)
}

func (h *History) Clear() {
	h.entries = nil
}

func (h *History) Len() int {
	return len(h.entries)
}

func (h *History) Limit() int {
	return h.limit
}
