// Command convhealth-worker runs the Temporal worker that executes
// conversation health analyses.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/ahrav/convhealth/internal/config"
	"github.com/ahrav/convhealth/internal/worker"
)

func main() {
	settings, err := config.LoadSettings()
	if err != nil {
		fmt.Fprintln(os.Stderr, "convhealth-worker:", err)
		os.Exit(1)
	}
	logger := config.NewLogger(settings.LogLevel, settings.LogFormat)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := worker.Run(ctx, settings, logger); err != nil {
		logger.Error("worker exited", "error", err)
		os.Exit(1)
	}
}
