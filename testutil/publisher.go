package testutil

import (
	"sync"
)

// RecordingPublisher keeps every published message in memory. Err, when
// set, is returned from Publish instead of recording.
type RecordingPublisher struct {
	TopicName string
	Err       error

	mu   sync.Mutex
	msgs []any
}

// NewRecordingPublisher returns a publisher for topic.
func NewRecordingPublisher(topic string) *RecordingPublisher {
	return &RecordingPublisher{TopicName: topic}
}

// Topic returns the configured topic
func (p *RecordingPublisher) Topic() string { return p.TopicName }

// Publish records msg
func (p *RecordingPublisher) Publish(msg any) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.Err != nil {
		return p.Err
	}
	p.msgs = append(p.msgs, msg)
	return nil
}

// Messages returns a copy of the published messages
func (p *RecordingPublisher) Messages() []any {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]any(nil), p.msgs...)
}
