package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/xIfe3/swipline/config"
	"github.com/xIfe3/swipline/internal/broker/messages"
	"github.com/xIfe3/swipline/internal/integrations/mailer"
	mailerfake "github.com/xIfe3/swipline/internal/integrations/mailer/fake"
	"github.com/xIfe3/swipline/internal/services/notifier"
)

type queueConsumer struct {
	values [][]byte
}

func (c *queueConsumer) Consume(ctx context.Context, handler func(key, value []byte) error) error {
	for _, v := range c.values {
		if err := handler(nil, v); err != nil {
			return err
		}
	}
	<-ctx.Done()
	return ctx.Err()
}

func (c *queueConsumer) Close() error { return nil }

func testFactories(m mailer.Client, c eventConsumer) notifierFactories {
	return notifierFactories{
		newMailer:      func(cfg *config.Config) mailer.Client { return m },
		newRateLimiter: func(cfg *config.Config) notifier.RateLimiter { return nil },
		newConsumer:    func(cfg *config.Config) eventConsumer { return c },
	}
}

func TestRunConsumeLoop_DeliversEvents(t *testing.T) {
	ev := messages.ParcelEvent{
		Kind: messages.KindParcelCreated,
		Parcel: messages.ParcelSnapshot{
			TrackingID:  "SWPL250301ABC123",
			SenderName:  "Ada Obi",
			SenderEmail: "ada@example.com",
		},
	}
	b, err := json.Marshal(ev)
	require.NoError(t, err)

	m := mailerfake.New()
	c := &queueConsumer{values: [][]byte{b}}
	f := testFactories(m, c)
	n := buildNotifier(&config.Config{}, f)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- runConsumeLoop(ctx, c, n) }()

	require.Eventually(t, func() bool { return len(m.Sent()) == 1 }, time.Second, 10*time.Millisecond)
	require.Contains(t, m.Sent()[0].Subject, "SWPL250301ABC123")

	cancel()
	select {
	case err := <-done:
		require.ErrorIs(t, err, context.Canceled)
	case <-time.After(2 * time.Second):
		t.Fatal("loop did not stop")
	}
}

type failingConsumer struct {
	fails int
	calls int
}

func (c *failingConsumer) Consume(ctx context.Context, handler func(key, value []byte) error) error {
	c.calls++
	if c.calls <= c.fails {
		return fmt.Errorf("broker hiccup %d", c.calls)
	}
	<-ctx.Done()
	return ctx.Err()
}

func (c *failingConsumer) Close() error { return nil }

func TestRunConsumeLoop_RestartsAfterError(t *testing.T) {
	c := &failingConsumer{fails: 2}

	ctx, cancel := context.WithTimeout(context.Background(), 4*time.Second)
	defer cancel()

	n := buildNotifier(&config.Config{}, testFactories(mailerfake.New(), c))
	err := runConsumeLoop(ctx, c, n)
	require.ErrorIs(t, err, context.DeadlineExceeded)
	require.Equal(t, 3, c.calls)
}

func TestNotifierHTTPServer_Stats(t *testing.T) {
	n := buildNotifier(&config.Config{}, testFactories(mailerfake.New(), &queueConsumer{}))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	addrCh := make(chan string, 1)
	srvErr := make(chan error, 1)
	go func() {
		srvErr <- runNotifierHTTPServer(ctx, notifierHTTPOpts{
			httpAddr: "127.0.0.1:0",
			onListen: func(addr string) { addrCh <- addr },
			notifier: n,
		})
	}()

	var base string
	select {
	case addr := <-addrCh:
		base = "http://" + addr
	case <-time.After(2 * time.Second):
		t.Fatal("server did not start")
	}

	resp, err := http.Get(base + "/healthz")
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, 200, resp.StatusCode)

	resp, err = http.Get(base + "/stats")
	require.NoError(t, err)
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	require.Equal(t, 200, resp.StatusCode)
	require.Contains(t, string(body), "totalEvents")

	cancel()
	select {
	case <-srvErr:
	case <-time.After(2 * time.Second):
		t.Fatal("server did not stop")
	}
}
