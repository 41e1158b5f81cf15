// Command ideasim pressure-tests ideas against a panel of synthetic
// stakeholders.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"ideasim/agent"
	"ideasim/config"
	"ideasim/models"
	"ideasim/sim"
	"ideasim/usage"
)

const (
	Version   = "0.1.0"
	BuildTime = "dev"
	appName   = "ideasim"
)

func main() {
	if err := rootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	var logLevel string

	cmd := &cobra.Command{
		Use:   appName,
		Short: "Idea pressure-test simulation service",
		Long: `ideasim evaluates an idea, or compares two, by asking a panel of
synthetic stakeholders for structured feedback and aggregating their
responses into risks, a plan and a scorecard.`,
		SilenceUsage: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			slog.SetDefault(newLogger(cmd.ErrOrStderr(), logLevel))
		},
	}
	cmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "Log level (debug, info, warn, error)")

	cmd.AddCommand(serveCmd(), runCmd(), summarizeCmd(), &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "%s version %s (build: %s)\n", appName, Version, BuildTime)
		},
	})
	return cmd
}

func newLogger(w io.Writer, level string) *slog.Logger {
	lvl := slog.LevelInfo
	switch strings.ToLower(level) {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: lvl}))
}

func serveCmd() *cobra.Command {
	var port string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			if port != "" {
				cfg.Port = port
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return serve(ctx, cfg, slog.Default())
		},
	}
	cmd.Flags().StringVar(&port, "port", "", "Listen port (overrides PORT)")
	return cmd
}

func serve(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	app, err := NewApp(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer app.Close(context.Background())

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           app.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("Server running", "addr", "http://localhost:"+cfg.Port, "version", Version)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	logger.Info("Shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}

type runFlags struct {
	title, description               string
	compareTitle, compareDescription string
	personas                         int
	questions                        []string
	summarize                        bool
	mockOnFailure                    bool
}

func (f runFlags) ideas() ([]models.Idea, models.Mode) {
	ideas := []models.Idea{{ID: "idea-1", Title: f.title, Description: f.description}}
	if f.compareTitle == "" {
		return ideas, models.ModeSingle
	}
	return append(ideas, models.Idea{ID: "idea-2", Title: f.compareTitle, Description: f.compareDescription}), models.ModeCompare
}

func runCmd() *cobra.Command {
	var f runFlags
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run one simulation and print the result as JSON",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			app, err := NewApp(cmd.Context(), cfg, slog.Default())
			if err != nil {
				return err
			}
			defer app.Close(context.Background())
			return runSimulation(cmd.Context(), app, f, cmd.OutOrStdout())
		},
	}
	cmd.Flags().StringVar(&f.title, "title", "", "Idea title")
	cmd.Flags().StringVar(&f.description, "description", "", "Idea description")
	cmd.Flags().StringVar(&f.compareTitle, "compare-title", "", "Second idea title (enables compare mode)")
	cmd.Flags().StringVar(&f.compareDescription, "compare-description", "", "Second idea description")
	cmd.Flags().IntVarP(&f.personas, "personas", "n", sim.DefaultPersonaCount, "Number of personas")
	cmd.Flags().StringArrayVarP(&f.questions, "question", "q", nil, "Question for every persona (repeatable)")
	cmd.Flags().BoolVar(&f.summarize, "summary", false, "Also summarize the responses of each variant")
	cmd.Flags().BoolVar(&f.mockOnFailure, "mock-on-failure", false, "Print the canned result when the director stage fails")
	_ = cmd.MarkFlagRequired("title")
	return cmd
}

type runOutput struct {
	Result    *models.SimulationResult `json:"result"`
	Summaries []variantSummary         `json:"summaries,omitempty"`
}

// variantSummary is the summary of the responses given to one variant.
type variantSummary struct {
	VariantKey string                    `json:"variant_key,omitempty"`
	Summary    *models.ExperimentSummary `json:"summary"`
}

func runSimulation(ctx context.Context, app *App, f runFlags, w io.Writer) error {
	ideas, mode := f.ideas()
	result, err := app.sim.Run(ctx, ideas, mode, sim.Options{PersonaCount: f.personas, Questions: f.questions})
	if err != nil {
		if !(f.mockOnFailure && errors.Is(err, sim.ErrDirector)) {
			return err
		}
		app.logger.Warn("Simulation failed, printing mock result", "error", err)
		result = sim.Mock(ideas, mode)
	}

	out := runOutput{Result: result}
	if f.summarize && len(result.Responses) > 0 {
		inputs, err := agent.SummaryInputsFromResult(result)
		if err != nil {
			return err
		}
		out.Summaries, err = summarizeAll(ctx, app, inputs)
		if err != nil {
			return err
		}
	}

	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(out)
}

// summarizeAll summarizes each input in turn and logs the combined cost.
func summarizeAll(ctx context.Context, app *App, inputs []agent.SummaryInput) ([]variantSummary, error) {
	tracker := usage.NewTracker(app.prices)
	out := make([]variantSummary, 0, len(inputs))
	for _, in := range inputs {
		summary, err := app.summarizer.Summarize(ctx, in, tracker)
		if err != nil {
			if in.VariantKey != "" {
				return nil, fmt.Errorf("summarize variant %s: %w", in.VariantKey, err)
			}
			return nil, err
		}
		out = append(out, variantSummary{VariantKey: in.VariantKey, Summary: summary})
	}
	app.logger.Info("Summary cost",
		"summaries", len(out),
		"credit_usage", usage.FormatCost(tracker.Snapshot().TotalCost))
	return out, nil
}

func summarizeCmd() *cobra.Command {
	var input string
	cmd := &cobra.Command{
		Use:   "summarize",
		Short: "Summarize the responses of a finished run",
		Long: `summarize reads either a SimulationResult (as printed by "run") or a
summary request with experiment_id, stimulus, user_prompt and
all_responses, and prints the summaries as JSON. A result is summarized
once per variant, so compared ideas get separate summaries.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := readInput(cmd.InOrStdin(), input)
			if err != nil {
				return err
			}
			inputs, err := parseSummaryInputs(data)
			if err != nil {
				return err
			}

			cfg, err := config.Load()
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			app, err := NewApp(cmd.Context(), cfg, slog.Default())
			if err != nil {
				return err
			}
			defer app.Close(context.Background())

			summaries, err := summarizeAll(cmd.Context(), app, inputs)
			if err != nil {
				return err
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(summaries)
		},
	}
	cmd.Flags().StringVarP(&input, "input", "i", "-", "Input file, - for stdin")
	return cmd
}

func readInput(stdin io.Reader, path string) ([]byte, error) {
	if path == "-" || path == "" {
		data, err := io.ReadAll(stdin)
		if err != nil {
			return nil, fmt.Errorf("read stdin: %w", err)
		}
		return data, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read input: %w", err)
	}
	return data, nil
}

// parseSummaryInputs accepts a summary request, a SimulationResult or the
// output of the run command. A result yields one request per variant.
func parseSummaryInputs(data []byte) ([]agent.SummaryInput, error) {
	var envelope struct {
		Result       *models.SimulationResult `json:"result"`
		ExperimentID string                   `json:"experimentId"`
		Responses    json.RawMessage          `json:"all_responses"`
	}
	if err := json.Unmarshal(data, &envelope); err != nil {
		return nil, fmt.Errorf("parse input: %w", err)
	}

	var (
		inputs []agent.SummaryInput
		err    error
	)
	switch {
	case envelope.Responses != nil:
		var in agent.SummaryInput
		if err := json.Unmarshal(data, &in); err != nil {
			return nil, fmt.Errorf("parse summary request: %w", err)
		}
		inputs = []agent.SummaryInput{in}
	case envelope.Result != nil:
		inputs, err = agent.SummaryInputsFromResult(envelope.Result)
	case envelope.ExperimentID != "":
		var result models.SimulationResult
		if err := json.Unmarshal(data, &result); err != nil {
			return nil, fmt.Errorf("parse simulation result: %w", err)
		}
		inputs, err = agent.SummaryInputsFromResult(&result)
	default:
		return nil, errors.New("input is neither a summary request nor a simulation result")
	}
	if err != nil {
		return nil, err
	}
	for _, in := range inputs {
		if err := in.Validate(); err != nil {
			return nil, err
		}
	}
	return inputs, nil
}
