package di

import (
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"time"

	"computer-use-agent/internal/adapter/tool"
	"computer-use-agent/internal/application/port/output"
	"computer-use-agent/internal/application/service"
	"computer-use-agent/internal/config"
	"computer-use-agent/internal/domain/entity"
	"computer-use-agent/internal/infrastructure/browser/browserbase"
	"computer-use-agent/internal/infrastructure/browser/pagetext"
	rodbrowser "computer-use-agent/internal/infrastructure/browser/rod"
	"computer-use-agent/internal/infrastructure/console"
	"computer-use-agent/internal/infrastructure/journal"
	"computer-use-agent/internal/infrastructure/llm/openrouter"
	"computer-use-agent/internal/infrastructure/logger"
	"computer-use-agent/internal/infrastructure/prompts"
	"computer-use-agent/internal/infrastructure/screenshots"
	"computer-use-agent/internal/usecase/agentloop"
)

// ParseBackend maps a CLI environment name to a backend. "playwright" is accepted for local.
func ParseBackend(name string) (string, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", rodbrowser.BackendLocal, "playwright":
		return rodbrowser.BackendLocal, nil
	case browserbase.BackendRemote:
		return browserbase.BackendRemote, nil
	default:
		return "", fmt.Errorf("unknown environment %q (want local or browserbase)", name)
	}
}

type Options struct {
	Backend string
	Session entity.SessionConfig
	// Goal names the log file.
	Goal string
	// Out receives verbose progress. Defaults to stdout.
	Out io.Writer

	// Overrides for tests.
	Factory output.ComputerFactory
	LLM     output.LLMPort
	Logger  output.LoggerPort
}

type Container struct {
	Config   *config.Config
	Logger   output.LoggerPort
	LLM      output.LLMPort
	Tools    *service.ToolRegistryImpl
	Factory  output.ComputerFactory
	Reporter output.Reporter
	Agent    *agentloop.UseCase

	journal *journal.SQLiteJournal
}

func NewContainer(cfg *config.Config, opts Options) (*Container, error) {
	backend, err := ParseBackend(opts.Backend)
	if err != nil {
		return nil, err
	}

	c := &Container{Config: cfg}

	c.Logger = opts.Logger
	if c.Logger == nil {
		log, err := logger.NewLoggerAdapter(logger.Config{
			Level:      cfg.Logger.Level,
			Dir:        cfg.Logger.Dir,
			MaxSize:    cfg.Logger.MaxSize,
			MaxBackups: cfg.Logger.MaxBackups,
			MaxAge:     cfg.Logger.MaxAge,
			Compress:   cfg.Logger.Compress,
			Console:    !opts.Session.Quiet(),
		}, opts.Goal)
		if err != nil {
			return nil, fmt.Errorf("failed to create logger: %w", err)
		}
		c.Logger = log
	}

	c.Factory = opts.Factory
	if c.Factory == nil {
		if c.Factory, err = newFactory(backend, cfg, c.Logger); err != nil {
			c.Close()
			return nil, err
		}
	}

	c.LLM = opts.LLM
	if c.LLM == nil {
		if cfg.Model.APIKey == "" {
			c.Close()
			return nil, fmt.Errorf("model api key is required (set OPENROUTER_API_KEY)")
		}
		llmCfg := openrouter.DefaultConfig(cfg.Model.APIKey, cfg.Model.Name)
		llmCfg.BaseURL = cfg.Model.BaseURL
		llmCfg.Timeout = cfg.Model.RequestTimeout
		llmCfg.Logger = c.Logger
		c.LLM = openrouter.NewOpenRouterAdapter(llmCfg)
	}

	c.Tools = service.NewToolRegistry()
	tool.RegisterAll(c.Tools, cfg.Browser.SearchURL)

	c.Reporter = console.New(opts.Session.Quiet(), opts.Out)

	render, err := prompts.NewRenderer(prompts.SystemPrompt, time.Now)
	if err != nil {
		c.Close()
		return nil, err
	}

	var agentOpts []agentloop.Option
	if opts.Session.SaveScreenshots {
		dir := filepath.Join(cfg.Screenshots.Dir, time.Now().Format("2006-01-02_15-04-05"))
		agentOpts = append(agentOpts, agentloop.WithScreenshotStore(screenshots.NewFileStore(dir)))
	}
	if cfg.Loop.IncludePageText {
		agentOpts = append(agentOpts, agentloop.WithPageText(pagetext.NewExtractor(nil)))
	}
	if cfg.Journal.Path != "" {
		j, err := journal.NewSQLite(cfg.Journal.Path)
		if err != nil {
			c.Close()
			return nil, fmt.Errorf("failed to open journal: %w", err)
		}
		c.journal = j
		agentOpts = append(agentOpts, agentloop.WithJournal(j, cfg.Model.Name))
	}

	translator := service.NewActionTranslator(c.Logger, cfg.Browser.ActionTimeout)
	c.Agent = agentloop.New(c.LLM, c.Tools, translator, c.Reporter, c.Logger, render, loopConfig(cfg), agentOpts...)

	return c, nil
}

func newFactory(backend string, cfg *config.Config, log output.LoggerPort) (output.ComputerFactory, error) {
	switch backend {
	case browserbase.BackendRemote:
		client, err := browserbase.NewClient(browserbase.ClientConfig{
			BaseURL:   cfg.Remote.BaseURL,
			APIKey:    cfg.Remote.APIKey,
			ProjectID: cfg.Remote.ProjectID,
			Retry: service.RetryPolicy{
				Initial:     cfg.Remote.Retry.Initial,
				Multiplier:  2,
				MaxInterval: cfg.Remote.Retry.MaxInterval,
				MaxAttempts: cfg.Remote.Retry.MaxAttempts,
			},
		}, log)
		if err != nil {
			return nil, fmt.Errorf("failed to create browserbase client: %w", err)
		}
		return browserbase.NewFactory(client, browserbase.Config{
			Region:           cfg.Remote.Region,
			KeepAlive:        cfg.Remote.KeepAlive,
			SettleTimeout:    cfg.Browser.SettleTimeout,
			CaptureTimeout:   cfg.Browser.CaptureTimeout,
			ProvisionTimeout: cfg.Browser.ProvisionTimeout,
			Unsupported:      cfg.Remote.UnsupportedKinds(),
		}, log), nil
	default:
		browserCfg := rodbrowser.DefaultConfig()
		browserCfg.Headless = cfg.Browser.Headless
		browserCfg.SlowMotion = cfg.Browser.SlowMotion
		browserCfg.NoSandbox = cfg.Browser.NoSandbox
		browserCfg.Bin = cfg.Browser.Bin
		browserCfg.SettleTimeout = cfg.Browser.SettleTimeout
		browserCfg.CaptureTimeout = cfg.Browser.CaptureTimeout
		browserCfg.ProvisionTimeout = cfg.Browser.ProvisionTimeout
		return rodbrowser.NewLocalFactory(browserCfg, log), nil
	}
}

func loopConfig(cfg *config.Config) agentloop.Config {
	lc := agentloop.DefaultConfig()
	lc.MaxTurns = cfg.Loop.MaxTurns
	lc.MaxConsecutiveFailures = cfg.Loop.MaxConsecutiveFailures
	lc.HistoryTurns = cfg.Loop.HistoryTurns
	lc.ScreenshotTurns = cfg.Loop.ScreenshotTurns
	lc.MaxSummaryLines = cfg.Loop.MaxSummaryLines
	lc.IncludePageText = cfg.Loop.IncludePageText
	lc.MaxObservationLen = cfg.Loop.MaxObservationLen
	lc.Temperature = cfg.Model.Temperature
	lc.ModelRetry.MaxAttempts = cfg.Model.MaxRetries
	return lc
}

func (c *Container) Close() {
	if c.journal != nil {
		c.journal.Close()
	}
	if c.Logger != nil {
		c.Logger.Close()
	}
}
