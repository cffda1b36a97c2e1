package journal

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"computer-use-agent/internal/application/port/output"
	"computer-use-agent/internal/domain/entity"

	_ "modernc.org/sqlite"
)

var _ output.RunJournal = (*SQLiteJournal)(nil)

// SQLiteJournal records runs and their turns in a SQLite database.
type SQLiteJournal struct {
	db *sql.DB
	mu sync.Mutex // serializes writes to avoid SQLITE_BUSY
}

// RunRecord is a stored run as read back from the journal.
type RunRecord struct {
	RunID      string
	Goal       string
	Model      string
	Viewport   string
	Mobile     bool
	InitialURL string
	State      string
	Reason     string
	Complete   bool
	Answer     string
	Error      string
	TurnCount  int
	StartedAt  time.Time
	FinishedAt time.Time
}

// TurnRecord is one stored turn.
type TurnRecord struct {
	Index      int
	URL        string
	Stale      bool
	Reasoning  string
	ModelError string
	Actions    []entity.Action
	Outcomes   []OutcomeRecord
	StartedAt  time.Time
	FinishedAt time.Time
}

type OutcomeRecord struct {
	Kind       entity.ActionKind `json:"kind"`
	Success    bool              `json:"success"`
	Message    string            `json:"message,omitempty"`
	Error      string            `json:"error,omitempty"`
	Clamped    bool              `json:"clamped,omitempty"`
	DurationMS int64             `json:"duration_ms"`
}

// NewSQLite opens (or creates) the journal database at dbPath.
func NewSQLite(dbPath string) (*SQLiteJournal, error) {
	if dir := filepath.Dir(dbPath); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create journal directory: %w", err)
		}
	}

	dsn := dbPath + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open journal: %w", err)
	}
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping journal: %w", err)
	}

	j := &SQLiteJournal{db: db}
	if err := j.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("initialize schema: %w", err)
	}
	return j, nil
}

func (j *SQLiteJournal) initSchema() error {
	query := `
	CREATE TABLE IF NOT EXISTS runs (
		run_id TEXT PRIMARY KEY,
		goal TEXT NOT NULL,
		model TEXT NOT NULL,
		viewport TEXT NOT NULL,
		mobile INTEGER NOT NULL DEFAULT 0,
		initial_url TEXT NOT NULL,
		state TEXT NOT NULL,
		reason TEXT,
		complete INTEGER NOT NULL DEFAULT 0,
		answer TEXT,
		error TEXT,
		turn_count INTEGER NOT NULL DEFAULT 0,
		started_at INTEGER NOT NULL,
		finished_at INTEGER
	);

	CREATE TABLE IF NOT EXISTS turns (
		run_id TEXT NOT NULL REFERENCES runs(run_id),
		turn_index INTEGER NOT NULL,
		url TEXT,
		stale INTEGER NOT NULL DEFAULT 0,
		reasoning TEXT,
		model_error TEXT,
		actions_json TEXT NOT NULL,
		outcomes_json TEXT NOT NULL,
		started_at INTEGER NOT NULL,
		finished_at INTEGER NOT NULL,
		PRIMARY KEY (run_id, turn_index)
	);
	CREATE INDEX IF NOT EXISTS idx_runs_started ON runs(started_at);
	`
	if _, err := j.db.Exec(query); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}
	return nil
}

func (j *SQLiteJournal) StartRun(ctx context.Context, runID, goal string, session entity.SessionConfig, model string) error {
	j.mu.Lock()
	defer j.mu.Unlock()

	_, err := j.db.ExecContext(ctx, `
	INSERT INTO runs (run_id, goal, model, viewport, mobile, initial_url, state, started_at)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		runID, goal, model, session.Viewport.String(), boolToInt(session.Mobile), session.InitialURL,
		string(entity.StateInit), time.Now().UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("insert run: %w", err)
	}
	return nil
}

func (j *SQLiteJournal) RecordTurn(ctx context.Context, runID string, turn entity.Turn) error {
	actions, err := json.Marshal(turn.Actions)
	if err != nil {
		return fmt.Errorf("marshal actions: %w", err)
	}
	outcomes, err := json.Marshal(outcomeRecords(turn.Outcomes))
	if err != nil {
		return fmt.Errorf("marshal outcomes: %w", err)
	}

	var url string
	var stale bool
	if turn.Screenshot != nil {
		url, stale = turn.Screenshot.URL, turn.Screenshot.Stale
	}

	j.mu.Lock()
	defer j.mu.Unlock()

	_, err = j.db.ExecContext(ctx, `
	INSERT INTO turns (run_id, turn_index, url, stale, reasoning, model_error, actions_json, outcomes_json, started_at, finished_at)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT(run_id, turn_index) DO UPDATE SET
		reasoning = excluded.reasoning,
		model_error = excluded.model_error,
		actions_json = excluded.actions_json,
		outcomes_json = excluded.outcomes_json,
		finished_at = excluded.finished_at`,
		runID, turn.Index, url, boolToInt(stale), turn.Reasoning, errString(turn.ModelErr),
		string(actions), string(outcomes), turn.StartedAt.UnixMilli(), turn.FinishedAt.UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("insert turn: %w", err)
	}
	return nil
}

func (j *SQLiteJournal) FinishRun(ctx context.Context, runID string, result *entity.AgentResult) error {
	if result == nil {
		return fmt.Errorf("finish run %s: nil result", runID)
	}

	j.mu.Lock()
	defer j.mu.Unlock()

	res, err := j.db.ExecContext(ctx, `
	UPDATE runs SET state = ?, reason = ?, complete = ?, answer = ?, error = ?, turn_count = ?, finished_at = ?
	WHERE run_id = ?`,
		string(result.State), string(result.Reason), boolToInt(result.Complete), result.Answer,
		errString(result.Err), len(result.Turns), time.Now().UnixMilli(), runID,
	)
	if err != nil {
		return fmt.Errorf("update run: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("finish run %s: not started", runID)
	}
	return nil
}

// Run returns the stored run, or nil when it does not exist.
func (j *SQLiteJournal) Run(ctx context.Context, runID string) (*RunRecord, error) {
	row := j.db.QueryRowContext(ctx, `
	SELECT run_id, goal, model, viewport, mobile, initial_url, state,
	       reason, complete, answer, error, turn_count, started_at, finished_at
	FROM runs WHERE run_id = ?`, runID)

	var r RunRecord
	var mobile, complete int
	var reason, answer, errText sql.NullString
	var startedAt int64
	var finishedAt sql.NullInt64

	err := row.Scan(&r.RunID, &r.Goal, &r.Model, &r.Viewport, &mobile, &r.InitialURL, &r.State,
		&reason, &complete, &answer, &errText, &r.TurnCount, &startedAt, &finishedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scan run row: %w", err)
	}

	r.Mobile = mobile != 0
	r.Complete = complete != 0
	r.Reason = reason.String
	r.Answer = answer.String
	r.Error = errText.String
	r.StartedAt = time.UnixMilli(startedAt)
	if finishedAt.Valid {
		r.FinishedAt = time.UnixMilli(finishedAt.Int64)
	}
	return &r, nil
}

// Turns returns the stored turns of a run in order.
func (j *SQLiteJournal) Turns(ctx context.Context, runID string) ([]TurnRecord, error) {
	rows, err := j.db.QueryContext(ctx, `
	SELECT turn_index, url, stale, reasoning, model_error, actions_json, outcomes_json, started_at, finished_at
	FROM turns WHERE run_id = ? ORDER BY turn_index`, runID)
	if err != nil {
		return nil, fmt.Errorf("query turns: %w", err)
	}
	defer rows.Close()

	var turns []TurnRecord
	for rows.Next() {
		var t TurnRecord
		var stale int
		var url, reasoning, modelErr sql.NullString
		var actions, outcomes string
		var startedAt, finishedAt int64

		if err := rows.Scan(&t.Index, &url, &stale, &reasoning, &modelErr, &actions, &outcomes, &startedAt, &finishedAt); err != nil {
			return nil, fmt.Errorf("scan turn row: %w", err)
		}
		if err := json.Unmarshal([]byte(actions), &t.Actions); err != nil {
			return nil, fmt.Errorf("unmarshal actions: %w", err)
		}
		if err := json.Unmarshal([]byte(outcomes), &t.Outcomes); err != nil {
			return nil, fmt.Errorf("unmarshal outcomes: %w", err)
		}
		t.URL = url.String
		t.Stale = stale != 0
		t.Reasoning = reasoning.String
		t.ModelError = modelErr.String
		t.StartedAt = time.UnixMilli(startedAt)
		t.FinishedAt = time.UnixMilli(finishedAt)
		turns = append(turns, t)
	}
	return turns, rows.Err()
}

func (j *SQLiteJournal) Close() error {
	return j.db.Close()
}

func outcomeRecords(outcomes []entity.ActionOutcome) []OutcomeRecord {
	out := make([]OutcomeRecord, 0, len(outcomes))
	for _, o := range outcomes {
		out = append(out, OutcomeRecord{
			Kind:       o.Action.Kind,
			Success:    o.Success,
			Message:    o.Message,
			Error:      errString(o.Err),
			Clamped:    o.Clamped,
			DurationMS: o.Duration.Milliseconds(),
		})
	}
	return out
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
