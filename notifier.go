package akapi

import (
	"sync"
)

// Notifier surfaces a failure message to the user. Notify blocks until the
// user has been told; the failed call returns afterwards.
type Notifier interface {
	Notify(message string)
}

// NotifierFunc adapts a function to Notifier.
type NotifierFunc func(message string)

func (f NotifierFunc) Notify(message string) {
	f(message)
}

// RecordingNotifier keeps every message it receives.
type RecordingNotifier struct {
	mu       sync.Mutex
	messages []string
}

func (r *RecordingNotifier) Notify(message string) {
	r.mu.Lock()
	r.messages = append(r.messages, message)
	r.mu.Unlock()
}

// Messages returns a copy of the recorded messages.
func (r *RecordingNotifier) Messages() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.messages...)
}
