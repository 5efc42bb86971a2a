// Package fallback supplies default post texts for scheduled slots that have
// no generated content.
package fallback

import "sync"

// defaultMessages is the built-in rotation, used when the config provides none.
var defaultMessages = []string{
	"Scanning the trenches for the next runner. Stay tuned.",
	"No strong signal this slot. Patience is a position too.",
	"Markets never sleep. Neither do we. More token calls soon.",
	"Quiet tape today. The best trades come to those who wait.",
}

// Source cycles through a fixed ordered list of messages. When the cursor
// exhausts the list it restarts from the first element, so Next never fails.
type Source struct {
	mu       sync.Mutex
	messages []string
	cursor   int
}

func New(messages []string) *Source {
	if len(messages) == 0 {
		messages = defaultMessages
	}
	return &Source{messages: append([]string(nil), messages...)}
}

// Next returns the current default message and advances the cursor, wrapping
// around at the end of the list.
func (s *Source) Next() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	msg := s.messages[s.cursor]
	s.cursor = (s.cursor + 1) % len(s.messages)
	return msg
}

// Len reports the rotation length.
func (s *Source) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.messages)
}
