// Command convhealth validates rubrics, prints the analysis graph, and
// submits transcripts for analysis to a running worker.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"
	"go.temporal.io/sdk/client"

	"github.com/ahrav/convhealth/internal/config"
	"github.com/ahrav/convhealth/internal/llm"
	"github.com/ahrav/convhealth/internal/pipeline"
	"github.com/ahrav/convhealth/internal/stage"
	"github.com/ahrav/convhealth/internal/worker"
	analysis "github.com/ahrav/convhealth/internal/workflow"
)

const usage = `usage: convhealth <command> [flags]

commands:
  validate   load and validate a rubric
  graph      print the analysis stages in execution order
  analyze    score a transcript on a running worker
`

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, os.Args[1:], os.Stdin, os.Stdout); err != nil {
		fmt.Fprintln(os.Stderr, "convhealth:", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string, stdin io.Reader, stdout io.Writer) error {
	if len(args) == 0 {
		return errors.New(strings.TrimSpace(usage))
	}
	settings, err := config.LoadSettings()
	if err != nil {
		return err
	}

	switch args[0] {
	case "validate":
		return runValidate(settings, args[1:], stdout)
	case "graph":
		return runGraph(settings, args[1:], stdout)
	case "analyze":
		return runAnalyze(ctx, settings, args[1:], stdin, stdout)
	case "help", "-h", "--help":
		fmt.Fprint(stdout, usage)
		return nil
	default:
		return fmt.Errorf("unknown command %q\n%s", args[0], usage)
	}
}

func rubricFlag(fs *flag.FlagSet, settings *config.Settings) {
	fs.StringVar(&settings.RubricPath, "rubric", settings.RubricPath, "rubric file (YAML or JSON); empty uses the built-in rubric")
}

func runValidate(settings *config.Settings, args []string, stdout io.Writer) error {
	fs := flag.NewFlagSet("validate", flag.ContinueOnError)
	rubricFlag(fs, settings)
	if err := fs.Parse(args); err != nil {
		return err
	}

	cfg, err := config.LoadRubric(settings.RubricPath)
	if err != nil {
		return err
	}
	if _, err := pipeline.New(cfg, offline{}); err != nil {
		return err
	}

	fmt.Fprintf(stdout, "rubric ok: %d criteria (%d auto-generated), %d indicators, %d ranges\n",
		len(cfg.Criteria), len(cfg.AutoGeneratedCriteria()), len(cfg.Indicators), len(cfg.Ranges))
	return nil
}

func runGraph(settings *config.Settings, args []string, stdout io.Writer) error {
	fs := flag.NewFlagSet("graph", flag.ContinueOnError)
	rubricFlag(fs, settings)
	if err := fs.Parse(args); err != nil {
		return err
	}

	g, err := worker.BuildGraph(settings, offline{})
	if err != nil {
		return err
	}
	for _, n := range stage.NewPlan(g).Nodes {
		next := "end"
		if len(n.Successors) > 0 {
			next = strings.Join(n.Successors, ", ")
		}
		fmt.Fprintf(stdout, "%-40s %-24s -> %s\n", n.Name, n.Kind, next)
	}
	return nil
}

func runAnalyze(ctx context.Context, settings *config.Settings, args []string, stdin io.Reader, stdout io.Writer) error {
	fs := flag.NewFlagSet("analyze", flag.ContinueOnError)
	transcriptPath := fs.String("transcript", "-", "transcript file, or - for stdin")
	stageTimeout := fs.Duration("stage-timeout", analysis.DefaultStageTimeout, "timeout for each analysis stage")
	runTimeout := fs.Duration("timeout", 15*time.Minute, "overall time to wait for the result")
	if err := fs.Parse(args); err != nil {
		return err
	}

	transcript, err := readTranscript(*transcriptPath, stdin)
	if err != nil {
		return err
	}

	logger := config.NewLogger(settings.LogLevel, settings.LogFormat)
	tc, err := worker.DialTemporal(settings, logger)
	if err != nil {
		return err
	}
	defer tc.Close()

	ctx, cancel := context.WithTimeout(ctx, *runTimeout)
	defer cancel()

	we, err := tc.ExecuteWorkflow(ctx, client.StartWorkflowOptions{
		ID:        "convhealth-" + uuid.NewString(),
		TaskQueue: settings.TaskQueue,
	}, analysis.WorkflowName, analysis.AnalysisInput{
		Transcript:   transcript,
		StageTimeout: *stageTimeout,
	})
	if err != nil {
		return fmt.Errorf("failed to start analysis: %w", err)
	}
	logger.Info("analysis started", "workflow_id", we.GetID(), "run_id", we.GetRunID())

	var result analysis.AnalysisResult
	if err := we.Get(ctx, &result); err != nil {
		return fmt.Errorf("analysis %s failed: %w", we.GetID(), err)
	}

	enc := json.NewEncoder(stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(result)
}

func readTranscript(path string, stdin io.Reader) (string, error) {
	var (
		data []byte
		err  error
	)
	if path == "-" {
		data, err = io.ReadAll(stdin)
	} else {
		data, err = os.ReadFile(path)
	}
	if err != nil {
		return "", fmt.Errorf("read transcript: %w", err)
	}
	if strings.TrimSpace(string(data)) == "" {
		return "", errors.New("transcript is empty")
	}
	return string(data), nil
}

// offline satisfies llm.Inferer for commands that assemble the graph
// without running it.
type offline struct{}

func (offline) Infer(context.Context, *llm.Request) (*llm.Response, error) {
	return nil, errors.New("inference is not available offline")
}
