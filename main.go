package main

import (
	"context"
	"os"

	"github.com/aws/aws-lambda-go/lambda"
	"github.com/dmorgan81/sdtool/internal/config"
	"github.com/dmorgan81/sdtool/internal/handler"
	"github.com/dmorgan81/sdtool/internal/inject"
	"github.com/dmorgan81/sdtool/internal/log"
	"github.com/samber/do"
)

func main() {
	settings, err := config.FromEnv(os.Getenv)
	if err != nil {
		log.New(os.Stderr, nil).Error("load settings", "error", err)
		os.Exit(1)
	}

	ctx := log.NewContext(context.Background(), log.New(os.Stderr, settings.LogLevel))
	injector := inject.Setup(ctx, settings, os.Getenv)
	handler := do.MustInvoke[*handler.Handler](injector)
	lambda.StartWithOptions(handler.Handle, lambda.WithContext(ctx), lambda.WithEnableSIGTERM(func() {
		_ = injector.Shutdown()
	}))
}
