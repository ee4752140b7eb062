package main

import (
	"context"
	"os"
	"os/signal"

	"go.uber.org/zap"

	"github.com/geofactory/eefetch/service/log"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		log.Fatal("error", zap.Error(err))
	}
}
