package main

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/xIfe3/swipline/config"
	"github.com/xIfe3/swipline/internal/broker/kafka"
	"github.com/xIfe3/swipline/internal/cache/rediscache"
	"github.com/xIfe3/swipline/internal/integrations/mailer"
	"github.com/xIfe3/swipline/internal/integrations/mailer/resendhttp"
	"github.com/xIfe3/swipline/internal/services/notifier"
)

type eventConsumer interface {
	Consume(ctx context.Context, handler func(key, value []byte) error) error
	Close() error
}

type notifierFactories struct {
	newMailer      func(cfg *config.Config) mailer.Client
	newRateLimiter func(cfg *config.Config) notifier.RateLimiter
	newConsumer    func(cfg *config.Config) eventConsumer
}

func defaultNotifierFactories() notifierFactories {
	return notifierFactories{
		newMailer: func(cfg *config.Config) mailer.Client {
			timeout := time.Duration(cfg.Mailer.TimeoutSeconds) * time.Second
			return resendhttp.New(cfg.Mailer.BaseURL, cfg.Mailer.APIKey, timeout)
		},
		newRateLimiter: func(cfg *config.Config) notifier.RateLimiter {
			redisAddr := fmt.Sprintf("%s:%d", cfg.Redis.Host, cfg.Redis.Port)
			return rediscache.NewRateLimiter(redisAddr)
		},
		newConsumer: func(cfg *config.Config) eventConsumer {
			topic := cfg.Kafka.ParcelEventsTopicName
			if topic == "" {
				topic = "parcel.events"
			}
			group := cfg.Swipline.KafkaConsumerGroup
			if group == "" {
				group = "swipline-notifier"
			}
			brokers := []string{fmt.Sprintf("%s:%d", cfg.Kafka.Host, cfg.Kafka.Port)}
			return kafka.NewConsumer(brokers, topic, group)
		},
	}
}

func buildNotifier(cfg *config.Config, f notifierFactories) *notifier.Notifier {
	n := notifier.New(f.newMailer(cfg), f.newRateLimiter(cfg), cfg.Mailer.From, slog.Default())
	if cfg.Swipline.NotifierMailsPerRecipient > 0 {
		n = n.WithRecipientCap(int64(cfg.Swipline.NotifierMailsPerRecipient))
	}
	return n
}

// runConsumeLoop крутит consumer до отмены контекста. Ошибка обработчика
// не коммитит оффсет: после паузы сообщение придёт ещё раз.
func runConsumeLoop(ctx context.Context, consumer eventConsumer, n *notifier.Notifier) error {
	for {
		err := consumer.Consume(ctx, func(key, value []byte) error {
			return n.Handle(ctx, key, value)
		})
		if ctx.Err() != nil {
			return ctx.Err()
		}
		slog.Error("consume loop restart", "err", err)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(time.Second):
		}
	}
}
