// Package fake — почтовый клиент-заглушка для тестов.
package fake

import (
	"context"
	"sync"

	"github.com/xIfe3/swipline/internal/integrations/mailer"
)

type FakeMailer struct {
	mu   sync.Mutex
	sent []mailer.Message

	Err error
}

func New() *FakeMailer { return &FakeMailer{} }

func (f *FakeMailer) Send(ctx context.Context, msg mailer.Message) error {
	if f.Err != nil {
		return f.Err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, msg)
	return nil
}

func (f *FakeMailer) Sent() []mailer.Message {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]mailer.Message, len(f.sent))
	copy(out, f.sent)
	return out
}
