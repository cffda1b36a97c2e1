package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"computer-use-agent/internal/config"
	"computer-use-agent/internal/di"
	"computer-use-agent/internal/domain/entity"
	"computer-use-agent/internal/infrastructure/env"

	"github.com/spf13/cobra"
)

type flags struct {
	query           string
	env             string
	initialURL      string
	highlightMouse  bool
	model           string
	saveScreenshots bool
	mobile          bool
	print           bool
	headless        bool
	config          string
}

// app holds what a command run needs from its surroundings, so tests can swap it.
type app struct {
	stdout       io.Writer
	stderr       io.Writer
	newContainer func(cfg *config.Config, opts di.Options) (*di.Container, error)
}

func newRootCmd(a *app) *cobra.Command {
	f := &flags{}

	cmd := &cobra.Command{
		Use:   "agent [query]",
		Short: "Drive a browser with a computer-use model until the query is answered",
		Long: "Runs a perceive, decide and act loop against a local or managed browser.\n" +
			"The query can be given as text or as a path to a file holding it.",
		Args:          cobra.MaximumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			var positional string
			if len(args) > 0 {
				positional = args[0]
			}
			return a.run(cmd.Context(), f, positional, cmd.Flags().Changed("query"))
		},
	}

	fl := cmd.Flags()
	fl.StringVar(&f.query, "query", "", "the query to execute (text or a file path); alternative to the positional argument")
	fl.StringVar(&f.env, "env", "local", "computer environment: local (alias playwright) or browserbase")
	fl.StringVar(&f.initialURL, "initial_url", entity.DefaultInitialURL, "the initial URL loaded for the computer")
	fl.BoolVar(&f.highlightMouse, "highlight_mouse", false, "highlight the location of the mouse if possible")
	fl.StringVar(&f.model, "model", "", "model to use (overrides model.name)")
	fl.BoolVar(&f.saveScreenshots, "save_screenshots", false, "save every screenshot to the screenshots directory")
	fl.BoolVar(&f.mobile, "mobile", false, "emulate a mobile device (390x844, touch input)")
	fl.BoolVar(&f.print, "print", false, "print only the final answer, for piping")
	fl.BoolVar(&f.headless, "headless", false, "run the local browser headless")
	fl.StringVarP(&f.config, "config", "c", "", "config file (default is ./config.yaml)")

	return cmd
}

func (a *app) run(ctx context.Context, f *flags, positional string, queryFlagSet bool) error {
	raw := positional
	if queryFlagSet {
		raw = f.query
	}
	goal, err := resolveQuery(raw)
	if err != nil {
		return err
	}

	env.NewEnvService()
	cfg, err := config.Load(f.config)
	if err != nil {
		return err
	}
	if f.model != "" {
		cfg.Model.Name = f.model
	}
	if f.headless {
		cfg.Browser.Headless = true
	}

	session := entity.NewSessionConfig(f.initialURL, f.mobile)
	session.HighlightMouse = f.highlightMouse
	session.SaveScreenshots = f.saveScreenshots
	if f.print {
		session.OutputMode = entity.OutputQuiet
	}
	if err := session.Validate(); err != nil {
		return err
	}

	container, err := a.newContainer(cfg, di.Options{
		Backend: f.env,
		Session: session,
		Goal:    goal,
		Out:     a.stdout,
	})
	if err != nil {
		return fmt.Errorf("initialization failed: %w", err)
	}
	defer container.Close()

	container.Logger.Info("Task started", "goal", goal, "env", f.env, "model", cfg.Model.Name,
		"viewport", session.Viewport.String())

	result, err := container.Agent.RunSession(ctx, container.Factory, session, goal)
	if err != nil {
		container.Logger.Error("Task failed", "error", err)
		return err
	}

	container.Logger.Info("Task finished", "state", result.State, "reason", result.Reason,
		"turns", len(result.Turns), "complete", result.Complete)

	if session.Quiet() {
		fmt.Fprintln(a.stdout, result.Answer)
	}
	if result.Aborted() {
		return fmt.Errorf("run aborted (%s): %w", result.Reason, result.Err)
	}
	return nil
}

// resolveQuery reads the query from a file when value names one, otherwise uses it as is.
func resolveQuery(value string) (string, error) {
	if strings.TrimSpace(value) == "" {
		return "", errors.New("query is required: pass it as an argument or with --query")
	}
	if info, err := os.Stat(value); err == nil && info.Mode().IsRegular() {
		data, err := os.ReadFile(value)
		if err != nil {
			return "", fmt.Errorf("read query file: %w", err)
		}
		query := strings.TrimSpace(string(data))
		if query == "" {
			return "", fmt.Errorf("query file %s is empty", value)
		}
		return query, nil
	}
	return value, nil
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a := &app{stdout: os.Stdout, stderr: os.Stderr, newContainer: di.NewContainer}
	cmd := newRootCmd(a)
	cmd.SetOut(a.stdout)
	cmd.SetErr(a.stderr)

	if err := cmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(a.stderr, "Error:", err)
		stop()
		os.Exit(1)
	}
}
