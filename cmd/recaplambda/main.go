// Package main - AWS Lambda для еженедельного батча рекапов.
//
// Функция вызывается правилом EventBridge (cron(0 6 ? * MON *)) вместо
// worker там, где постоянный процесс не нужен. Подключения создаются один раз
// на холодном старте и переиспользуются между вызовами.
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/aws/aws-lambda-go/lambda"

	"github.com/afterhours/nightlife-core/config"
	"github.com/afterhours/nightlife-core/internal/bootstrap"
)

func main() {
	ctx := context.Background()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}
	log := bootstrap.NewLogger(cfg).With("runtime", "lambda")

	app, err := bootstrap.New(ctx, cfg, log, bootstrap.Options{Notifications: true})
	if err != nil {
		log.Error("cold start failed", "error", err)
		os.Exit(1)
	}

	handler := NewHandler(app.Commands.GenerateRecaps, app.Bus.Wait, log)
	lambda.StartWithOptions(handler.Handle,
		lambda.WithEnableSIGTERM(func() {
			log.Info("lambda environment shutting down")
			app.Close()
		}),
	)
}
