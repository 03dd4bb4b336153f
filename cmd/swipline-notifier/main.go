package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/xIfe3/swipline/config"
)

func main() {
	cfg, err := config.LoadConfig(os.Getenv("configPath"))
	if err != nil {
		panic(fmt.Sprintf("ошибка парсинга конфига, %v", err))
	}

	f := defaultNotifierFactories()
	n := buildNotifier(cfg, f)
	consumer := f.newConsumer(cfg)
	defer func() { _ = consumer.Close() }()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	go func() {
		err := runNotifierHTTPServer(ctx, notifierHTTPOpts{
			httpAddr: cfg.Swipline.NotifierHTTPAddr,
			notifier: n,
		})
		if err != nil && err != http.ErrServerClosed {
			panic(err)
		}
	}()

	if err := runConsumeLoop(ctx, consumer, n); err != nil && err != context.Canceled {
		panic(err)
	}
}
