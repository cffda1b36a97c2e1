package di

import (
	"context"
	"path/filepath"
	"testing"

	"computer-use-agent/internal/application/port/output"
	"computer-use-agent/internal/config"
	"computer-use-agent/internal/domain/entity"
	"computer-use-agent/internal/infrastructure/console"
	"computer-use-agent/internal/infrastructure/logger"
	"computer-use-agent/internal/testutil"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type answerLLM struct{}

func (answerLLM) Chat(ctx context.Context, req output.ChatRequest) (*output.ChatResponse, error) {
	return &output.ChatResponse{Message: entity.Message{Role: entity.RoleAssistant, Content: "All done."}}, nil
}

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	t.Chdir(t.TempDir())
	cfg, err := config.Load("")
	require.NoError(t, err)
	cfg.Logger.Dir = filepath.Join(t.TempDir(), "log")
	return cfg
}

func TestParseBackend(t *testing.T) {
	for in, want := range map[string]string{"": "local", "local": "local", "playwright": "local", "Browserbase": "browserbase"} {
		got, err := ParseBackend(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}
	_, err := ParseBackend("docker")
	assert.Error(t, err)
}

func TestNewContainer_RunsSessionEndToEnd(t *testing.T) {
	cfg := testConfig(t)
	cfg.Journal.Path = filepath.Join(t.TempDir(), "journal.db")

	session := entity.NewSessionConfig("", false)
	session.OutputMode = entity.OutputQuiet
	factory := &testutil.FakeFactory{Computer: testutil.NewFakeComputer()}

	c, err := NewContainer(cfg, Options{
		Session: session,
		Goal:    "say done",
		Factory: factory,
		LLM:     answerLLM{},
		Logger:  logger.NewNop(),
	})
	require.NoError(t, err)
	defer c.Close()

	assert.IsType(t, console.QuietReporter{}, c.Reporter)
	assert.Len(t, c.Tools.All(), 13)

	result, err := c.Agent.RunSession(context.Background(), c.Factory, session, "say done")
	require.NoError(t, err)
	assert.True(t, result.Complete)
	assert.Equal(t, "All done.", result.Answer)
	assert.Equal(t, 1, factory.Computer.Releases)
}

func TestNewContainer_RequiresModelKey(t *testing.T) {
	cfg := testConfig(t)
	cfg.Model.APIKey = ""

	_, err := NewContainer(cfg, Options{Session: entity.NewSessionConfig("", false), Logger: logger.NewNop()})
	assert.ErrorContains(t, err, "api key")
}

func TestNewContainer_RemoteRequiresCredentials(t *testing.T) {
	cfg := testConfig(t)
	cfg.Remote.APIKey = ""

	_, err := NewContainer(cfg, Options{
		Backend: "browserbase",
		Session: entity.NewSessionConfig("", false),
		Logger:  logger.NewNop(),
		LLM:     answerLLM{},
	})
	assert.ErrorContains(t, err, "browserbase")
}

func TestLoopConfig(t *testing.T) {
	cfg := testConfig(t)
	cfg.Loop.MaxTurns = 9
	cfg.Model.MaxRetries = 2
	cfg.Model.Temperature = 0.5

	lc := loopConfig(cfg)
	assert.Equal(t, 9, lc.MaxTurns)
	assert.Equal(t, 2, lc.ModelRetry.MaxAttempts)
	assert.InDelta(t, 0.5, lc.Temperature, 1e-6)
	require.NoError(t, lc.Validate())
}
