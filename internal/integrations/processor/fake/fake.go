// Package fake — процессинг-заглушка для тестов и локального запуска.
package fake

import (
	"context"
	"fmt"
	"sync/atomic"

	"github.com/xIfe3/swipline/internal/integrations/processor"
)

type FakeClient struct {
	seq atomic.Int64

	// Err, если задан, возвращается из CreateIntent — имитация недоступного
	// процессинга.
	Err error

	LastInput processor.CreateIntentInput
}

func New() *FakeClient { return &FakeClient{} }

func (f *FakeClient) CreateIntent(ctx context.Context, in processor.CreateIntentInput) (processor.Intent, error) {
	if f.Err != nil {
		return processor.Intent{}, f.Err
	}
	f.LastInput = in
	n := f.seq.Add(1)
	id := fmt.Sprintf("pi_fake_%d", n)
	return processor.Intent{
		ID:           id,
		ClientSecret: id + "_secret",
		Status:       "requires_payment_method",
	}, nil
}
