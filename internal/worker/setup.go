package worker

import (
	"context"
	"fmt"
	"log/slog"

	"go.temporal.io/sdk/client"
	"go.temporal.io/sdk/log"
	sdkworker "go.temporal.io/sdk/worker"

	"github.com/ahrav/convhealth/internal/config"
	"github.com/ahrav/convhealth/internal/graph"
	"github.com/ahrav/convhealth/internal/llm"
	"github.com/ahrav/convhealth/internal/pipeline"
	"github.com/ahrav/convhealth/internal/stage"
	"github.com/ahrav/convhealth/pkg/events"
)

// InitializeLLMClient creates the inference client described by settings.
// Returns the client for dependency injection rather than setting global state.
func InitializeLLMClient(ctx context.Context, settings *config.Settings, logger *slog.Logger) (*llm.Client, error) {
	c, err := llm.NewClient(ctx, settings.LLMConfig(), logger, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize LLM client: %w", err)
	}
	return c, nil
}

// BuildGraph loads the configured rubric and assembles the analysis graph.
func BuildGraph(settings *config.Settings, inferer llm.Inferer) (*graph.Graph[stage.Stage], error) {
	rubric, err := config.LoadRubric(settings.RubricPath)
	if err != nil {
		return nil, err
	}
	g, err := pipeline.New(rubric, inferer)
	if err != nil {
		return nil, fmt.Errorf("failed to assemble analysis graph: %w", err)
	}
	return g, nil
}

// DialTemporal connects to the Temporal frontend named in settings.
func DialTemporal(settings *config.Settings, logger *slog.Logger) (client.Client, error) {
	c, err := client.Dial(client.Options{
		HostPort:  settings.TemporalHostPort,
		Namespace: settings.TemporalNamespace,
		Logger:    log.NewStructuredLogger(logger.With("component", "temporal")),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to temporal at %s: %w", settings.TemporalHostPort, err)
	}
	return c, nil
}

// Run starts a worker on the configured task queue and blocks until ctx is
// cancelled.
func Run(ctx context.Context, settings *config.Settings, logger *slog.Logger) error {
	llmClient, err := InitializeLLMClient(ctx, settings, logger)
	if err != nil {
		return err
	}
	g, err := BuildGraph(settings, llmClient)
	if err != nil {
		return err
	}

	tc, err := DialTemporal(settings, logger)
	if err != nil {
		return err
	}
	defer tc.Close()

	w := sdkworker.New(tc, settings.TaskQueue, sdkworker.Options{})
	RegisterAll(w, g, events.NewLogSink(logger))

	if err := w.Start(); err != nil {
		return fmt.Errorf("failed to start worker: %w", err)
	}
	logger.Info("worker started",
		"task_queue", settings.TaskQueue,
		"stages", len(g.Nodes()),
		"settings", settings.String())

	<-ctx.Done()
	w.Stop()

	stats := llmClient.CacheStats()
	logger.Info("worker stopped", "cache_hits", stats.Hits, "cache_misses", stats.Misses)
	return nil
}
