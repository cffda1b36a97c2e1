package main

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"computer-use-agent/internal/application/port/output"
	"computer-use-agent/internal/config"
	"computer-use-agent/internal/di"
	"computer-use-agent/internal/domain/entity"
	"computer-use-agent/internal/infrastructure/logger"
	"computer-use-agent/internal/testutil"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fixedLLM struct {
	answer string
}

func (l fixedLLM) Chat(ctx context.Context, req output.ChatRequest) (*output.ChatResponse, error) {
	return &output.ChatResponse{Message: entity.Message{Role: entity.RoleAssistant, Content: l.answer}}, nil
}

type harness struct {
	stdout  bytes.Buffer
	stderr  bytes.Buffer
	factory *testutil.FakeFactory
	opts    di.Options
	cfg     *config.Config
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	t.Chdir(t.TempDir())
	return &harness{factory: &testutil.FakeFactory{Computer: testutil.NewFakeComputer()}}
}

func (h *harness) execute(args ...string) error {
	a := &app{
		stdout: &h.stdout,
		stderr: &h.stderr,
		newContainer: func(cfg *config.Config, opts di.Options) (*di.Container, error) {
			h.cfg, h.opts = cfg, opts
			opts.Factory = h.factory
			opts.LLM = fixedLLM{answer: "The answer is 42."}
			opts.Logger = logger.NewNop()
			return di.NewContainer(cfg, opts)
		},
	}
	cmd := newRootCmd(a)
	cmd.SetArgs(args)
	cmd.SetOut(&h.stdout)
	cmd.SetErr(&h.stderr)
	return cmd.ExecuteContext(context.Background())
}

func TestRun_PrintModeOutputsOnlyTheAnswer(t *testing.T) {
	h := newHarness(t)

	require.NoError(t, h.execute("what is the answer", "--print"))

	assert.Equal(t, "The answer is 42.\n", h.stdout.String())
	assert.True(t, h.opts.Session.Quiet())
	require.Len(t, h.factory.Sessions, 1)
	assert.Equal(t, entity.DesktopViewport, h.factory.Sessions[0].Viewport)
	assert.Equal(t, 1, h.factory.Computer.Releases)
}

func TestRun_VerboseModeReportsProgress(t *testing.T) {
	h := newHarness(t)

	require.NoError(t, h.execute("--query", "what is the answer"))

	assert.Contains(t, h.stdout.String(), "Turn 1/50")
	assert.Contains(t, h.stdout.String(), "The answer is 42.")
}

func TestRun_FlagsShapeTheSession(t *testing.T) {
	h := newHarness(t)

	require.NoError(t, h.execute("goal", "--mobile", "--highlight_mouse", "--save_screenshots",
		"--initial_url", "https://example.com", "--model", "vendor/other", "--env", "playwright", "--print"))

	session := h.factory.Sessions[0]
	assert.True(t, session.Mobile)
	assert.Equal(t, entity.MobileViewport, session.Viewport)
	assert.True(t, session.HighlightMouse)
	assert.True(t, session.SaveScreenshots)
	assert.Equal(t, "https://example.com", session.InitialURL)
	assert.Equal(t, "vendor/other", h.cfg.Model.Name)
	assert.Equal(t, "playwright", h.opts.Backend)

	entries, err := os.ReadDir("screenshots")
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestRun_QueryFlagWinsOverPositional(t *testing.T) {
	h := newHarness(t)
	require.NoError(t, h.execute("positional", "--query", "from flag", "--print"))

	assert.Equal(t, "from flag", h.opts.Goal)
}

func TestRun_MissingQuery(t *testing.T) {
	h := newHarness(t)
	err := h.execute()
	assert.ErrorContains(t, err, "query is required")
	assert.Empty(t, h.factory.Sessions)
}

func TestRun_AbortedRunFails(t *testing.T) {
	h := newHarness(t)
	h.factory.AcquireErr = entity.NewEnvironmentSetupError("local", "launch", errors.New("no chrome"))

	err := h.execute("goal", "--print")

	require.Error(t, err)
	assert.ErrorIs(t, err, entity.ErrEnvironmentSetup)
	assert.Equal(t, "\n", h.stdout.String())
}

func TestRun_UnknownEnv(t *testing.T) {
	h := newHarness(t)
	err := h.execute("goal", "--env", "docker")
	assert.ErrorContains(t, err, "unknown environment")
}

func TestResolveQuery(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "task.txt")
	require.NoError(t, os.WriteFile(path, []byte("\n  find flights to Lisbon \n"), 0o600))
	empty := filepath.Join(dir, "empty.txt")
	require.NoError(t, os.WriteFile(empty, []byte("  \n"), 0o600))

	got, err := resolveQuery(path)
	require.NoError(t, err)
	assert.Equal(t, "find flights to Lisbon", got)

	got, err = resolveQuery("plain text query")
	require.NoError(t, err)
	assert.Equal(t, "plain text query", got)

	got, err = resolveQuery(dir)
	require.NoError(t, err)
	assert.Equal(t, dir, got)

	_, err = resolveQuery(empty)
	assert.Error(t, err)

	_, err = resolveQuery("   ")
	assert.Error(t, err)
}
