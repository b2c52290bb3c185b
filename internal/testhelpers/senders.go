package testhelpers

import (
	"context"
	"sync"

	"github.com/getdatasurge/escalation-engine/internal/notify"
)

// SentMessage records one send observed by a mock sender.
type SentMessage struct {
	To      string
	Subject string // email only
	Body    string
}

// MockEmailSender records sends and returns scripted errors in order.
// Once the script is exhausted, sends succeed.
type MockEmailSender struct {
	mu     sync.Mutex
	Sent   []SentMessage
	Script []error
}

// SendEmail implements notify.EmailSender
func (m *MockEmailSender) SendEmail(ctx context.Context, to, subject, body string) (*notify.SendResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.Script) > 0 {
		err := m.Script[0]
		m.Script = m.Script[1:]
		if err != nil {
			return nil, err
		}
	}
	m.Sent = append(m.Sent, SentMessage{To: to, Subject: subject, Body: body})
	return &notify.SendResult{Delivered: true}, nil
}

// SentCount returns the number of successful sends.
func (m *MockEmailSender) SentCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.Sent)
}

// MockSMSSender records sends and returns scripted errors in order.
type MockSMSSender struct {
	mu     sync.Mutex
	Sent   []SentMessage
	Script []error
}

// SendSMS implements notify.SMSSender
func (m *MockSMSSender) SendSMS(ctx context.Context, to, text string) (*notify.SendResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.Script) > 0 {
		err := m.Script[0]
		m.Script = m.Script[1:]
		if err != nil {
			return nil, err
		}
	}
	m.Sent = append(m.Sent, SentMessage{To: to, Body: text})
	return &notify.SendResult{Delivered: true}, nil
}

// SentCount returns the number of successful sends.
func (m *MockSMSSender) SentCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.Sent)
}
