package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"

	"github.com/BroWo1/factcheck-backend/internal/storage/models"
	"github.com/BroWo1/factcheck-backend/pkg/logger"
)

type Client struct {
	db *sql.DB
}

func NewClient(dbPath string) (*Client, error) {
	if !strings.HasPrefix(dbPath, "file:") && dbPath != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// sqlite serializes writers; one connection avoids SQLITE_BUSY under the
	// worker pool.
	db.SetMaxOpenConns(1)

	_, err = db.Exec("PRAGMA foreign_keys = ON")
	if err != nil {
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	_, err = db.Exec("PRAGMA journal_mode = WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}

	logger.Info("SQLite client initialized", zap.String("path", dbPath))

	return &Client{db: db}, nil
}

func (c *Client) Close() error {
	return c.db.Close()
}

func (c *Client) Ping(ctx context.Context) error {
	return c.db.PingContext(ctx)
}

func (c *Client) InitSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS sessions (
		id TEXT PRIMARY KEY,
		user_input TEXT NOT NULL,
		image_path TEXT,
		mode TEXT NOT NULL,
		variant TEXT NOT NULL,
		status TEXT NOT NULL,
		verdict TEXT,
		confidence_score REAL,
		summary TEXT,
		error_message TEXT,
		created_at INTEGER NOT NULL,
		updated_at INTEGER NOT NULL,
		completed_at INTEGER
	);
	CREATE INDEX IF NOT EXISTS idx_sessions_status ON sessions(status);
	CREATE INDEX IF NOT EXISTS idx_sessions_created ON sessions(created_at);

	CREATE TABLE IF NOT EXISTS analysis_steps (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		session_id TEXT NOT NULL,
		step_number INTEGER NOT NULL,
		step_type TEXT NOT NULL,
		description TEXT NOT NULL,
		status TEXT NOT NULL,
		result TEXT,
		error_message TEXT,
		summary TEXT,
		started_at INTEGER NOT NULL,
		completed_at INTEGER,
		UNIQUE (session_id, step_number),
		FOREIGN KEY (session_id) REFERENCES sessions(id) ON DELETE CASCADE
	);
	CREATE INDEX IF NOT EXISTS idx_steps_session ON analysis_steps(session_id);

	CREATE TABLE IF NOT EXISTS sources (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		session_id TEXT NOT NULL,
		url TEXT NOT NULL,
		title TEXT,
		publisher TEXT,
		publish_date TEXT,
		credibility_score REAL NOT NULL DEFAULT 0,
		relevance_score REAL NOT NULL DEFAULT 0,
		supports_claim INTEGER,
		content_summary TEXT,
		accessed_at INTEGER NOT NULL,
		UNIQUE (session_id, url),
		FOREIGN KEY (session_id) REFERENCES sessions(id) ON DELETE CASCADE
	);
	CREATE INDEX IF NOT EXISTS idx_sources_session ON sources(session_id);

	CREATE TABLE IF NOT EXISTS search_queries (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		session_id TEXT NOT NULL,
		query_text TEXT NOT NULL,
		search_type TEXT NOT NULL,
		results_count INTEGER NOT NULL DEFAULT 0,
		successful INTEGER NOT NULL DEFAULT 1,
		error_message TEXT,
		created_at INTEGER NOT NULL,
		FOREIGN KEY (session_id) REFERENCES sessions(id) ON DELETE CASCADE
	);
	CREATE INDEX IF NOT EXISTS idx_search_queries_session ON search_queries(session_id);

	CREATE TABLE IF NOT EXISTS llm_interactions (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		session_id TEXT NOT NULL,
		interaction_type TEXT NOT NULL,
		prompt TEXT,
		response TEXT,
		model TEXT,
		tokens_used INTEGER,
		created_at INTEGER NOT NULL,
		FOREIGN KEY (session_id) REFERENCES sessions(id) ON DELETE CASCADE
	);
	CREATE INDEX IF NOT EXISTS idx_interactions_session ON llm_interactions(session_id);
	`

	_, err := c.db.Exec(schema)
	if err != nil {
		return fmt.Errorf("failed to initialize schema: %w", err)
	}

	logger.Info("SQLite schema initialized")
	return nil
}

func (c *Client) CreateSession(ctx context.Context, s *models.Session) error {
	query := `
		INSERT INTO sessions (id, user_input, image_path, mode, variant, status, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := c.db.ExecContext(ctx, query,
		s.ID,
		s.Input,
		nullString(s.ImagePath),
		string(s.Mode),
		string(s.Variant),
		string(s.Status),
		s.CreatedAt.UnixMilli(),
		s.UpdatedAt.UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("failed to insert session: %w", err)
	}

	logger.Debug("Session created", zap.String("session_id", s.ID), zap.String("variant", string(s.Variant)))
	return nil
}

const sessionColumns = `id, user_input, image_path, mode, variant, status, verdict, confidence_score,
	summary, error_message, created_at, updated_at, completed_at`

func (c *Client) GetSession(ctx context.Context, id string) (*models.Session, error) {
	row := c.db.QueryRowContext(ctx, `SELECT `+sessionColumns+` FROM sessions WHERE id = ?`, id)

	s, err := scanSession(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("session %s: %w", id, models.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get session: %w", err)
	}
	return s, nil
}

func (c *Client) ListSessions(ctx context.Context, limit int) ([]models.Session, error) {
	if limit <= 0 {
		limit = 20
	}

	rows, err := c.db.QueryContext(ctx,
		`SELECT `+sessionColumns+` FROM sessions ORDER BY created_at DESC, id LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list sessions: %w", err)
	}
	defer rows.Close()

	var sessions []models.Session
	for rows.Next() {
		s, err := scanSession(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan session: %w", err)
		}
		sessions = append(sessions, *s)
	}

	return sessions, rows.Err()
}

// TransitionSession moves a session from one status to another only if it is
// currently in from. A session in any other status yields ErrConflict.
func (c *Client) TransitionSession(ctx context.Context, id string, from, to models.SessionStatus) error {
	res, err := c.db.ExecContext(ctx,
		`UPDATE sessions SET status = ?, updated_at = ? WHERE id = ? AND status = ?`,
		string(to), time.Now().UnixMilli(), id, string(from))
	if err != nil {
		return fmt.Errorf("failed to update session status: %w", err)
	}

	return c.checkAffected(ctx, res, id)
}

// FinishSession writes the terminal fields of an analyzing session.
func (c *Client) FinishSession(ctx context.Context, s *models.Session) error {
	if !s.Status.Terminal() {
		return fmt.Errorf("finish session %s with status %s: %w", s.ID, s.Status, models.ErrConflict)
	}

	var completedAt sql.NullInt64
	if s.CompletedAt != nil {
		completedAt = sql.NullInt64{Int64: s.CompletedAt.UnixMilli(), Valid: true}
	}

	var confidence sql.NullFloat64
	if s.Confidence != nil {
		confidence = sql.NullFloat64{Float64: *s.Confidence, Valid: true}
	}

	res, err := c.db.ExecContext(ctx, `
		UPDATE sessions
		SET status = ?, verdict = ?, confidence_score = ?, summary = ?, error_message = ?,
			updated_at = ?, completed_at = ?
		WHERE id = ? AND status = ?`,
		string(s.Status),
		nullString(s.Verdict),
		confidence,
		nullString(s.Summary),
		nullString(s.ErrorMessage),
		time.Now().UnixMilli(),
		completedAt,
		s.ID,
		string(models.SessionAnalyzing),
	)
	if err != nil {
		return fmt.Errorf("failed to finish session: %w", err)
	}

	return c.checkAffected(ctx, res, s.ID)
}

// DeleteSession removes a session and, through cascades, everything recorded
// for it. Running sessions are refused with ErrConflict.
func (c *Client) DeleteSession(ctx context.Context, id string) error {
	res, err := c.db.ExecContext(ctx,
		`DELETE FROM sessions WHERE id = ? AND status != ?`, id, string(models.SessionAnalyzing))
	if err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}

	if err := c.checkAffected(ctx, res, id); err != nil {
		return err
	}

	logger.Info("Session deleted", zap.String("session_id", id))
	return nil
}

func (c *Client) checkAffected(ctx context.Context, res sql.Result, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read affected rows: %w", err)
	}
	if n > 0 {
		return nil
	}

	var exists int
	err = c.db.QueryRowContext(ctx, `SELECT 1 FROM sessions WHERE id = ?`, id).Scan(&exists)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("session %s: %w", id, models.ErrNotFound)
	}
	if err != nil {
		return fmt.Errorf("failed to check session: %w", err)
	}
	return fmt.Errorf("session %s: %w", id, models.ErrConflict)
}

func (c *Client) CreateStep(ctx context.Context, step *models.Step) error {
	res, err := c.db.ExecContext(ctx, `
		INSERT INTO analysis_steps (session_id, step_number, step_type, description, status, started_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		step.SessionID,
		step.Number,
		string(step.Type),
		step.Description,
		string(step.Status),
		step.StartedAt.UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("failed to insert step: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to read step id: %w", err)
	}
	step.ID = id

	return nil
}

// UpdateStep finalizes an in-progress step. A step that has already left
// in_progress is not written again and yields ErrConflict.
func (c *Client) UpdateStep(ctx context.Context, step *models.Step) error {
	var completedAt sql.NullInt64
	if step.CompletedAt != nil {
		completedAt = sql.NullInt64{Int64: step.CompletedAt.UnixMilli(), Valid: true}
	}

	var result sql.NullString
	if len(step.Result) > 0 {
		result = sql.NullString{String: string(step.Result), Valid: true}
	}

	res, err := c.db.ExecContext(ctx, `
		UPDATE analysis_steps
		SET status = ?, result = ?, error_message = ?, summary = ?, completed_at = ?
		WHERE id = ? AND status = ?`,
		string(step.Status),
		result,
		nullString(step.ErrorMessage),
		nullString(step.Summary),
		completedAt,
		step.ID,
		string(models.StepInProgress),
	)
	if err != nil {
		return fmt.Errorf("failed to update step: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read affected rows: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("step %d of session %s: %w", step.Number, step.SessionID, models.ErrConflict)
	}

	return nil
}

func (c *Client) ListSteps(ctx context.Context, sessionID string) ([]models.Step, error) {
	rows, err := c.db.QueryContext(ctx, `
		SELECT id, session_id, step_number, step_type, description, status, result, error_message,
			summary, started_at, completed_at
		FROM analysis_steps
		WHERE session_id = ?
		ORDER BY step_number`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to list steps: %w", err)
	}
	defer rows.Close()

	var steps []models.Step
	for rows.Next() {
		var (
			st                      models.Step
			stepType, status        string
			result, errMsg, summary sql.NullString
			startedAt               int64
			completedAt             sql.NullInt64
		)

		err := rows.Scan(&st.ID, &st.SessionID, &st.Number, &stepType, &st.Description, &status,
			&result, &errMsg, &summary, &startedAt, &completedAt)
		if err != nil {
			return nil, fmt.Errorf("failed to scan step: %w", err)
		}

		st.Type = models.StepType(stepType)
		st.Status = models.StepStatus(status)
		if result.Valid {
			st.Result = []byte(result.String)
		}
		st.ErrorMessage = errMsg.String
		st.Summary = summary.String
		st.StartedAt = time.UnixMilli(startedAt)
		st.CompletedAt = timePtr(completedAt)

		steps = append(steps, st)
	}

	return steps, rows.Err()
}

// InsertSourceIfAbsent stores src unless the session already has a source
// with the same URL. It reports whether a row was inserted.
func (c *Client) InsertSourceIfAbsent(ctx context.Context, src *models.Source) (bool, error) {
	var supports sql.NullInt64
	if src.SupportsClaim != nil {
		supports = sql.NullInt64{Int64: boolToInt(*src.SupportsClaim), Valid: true}
	}

	res, err := c.db.ExecContext(ctx, `
		INSERT INTO sources (session_id, url, title, publisher, publish_date, credibility_score,
			relevance_score, supports_claim, content_summary, accessed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(session_id, url) DO NOTHING`,
		src.SessionID,
		src.URL,
		src.Title,
		src.Publisher,
		nullString(src.PublishDate),
		src.CredibilityScore,
		src.RelevanceScore,
		supports,
		src.ContentSummary,
		src.AccessedAt.UnixMilli(),
	)
	if err != nil {
		return false, fmt.Errorf("failed to insert source: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to read affected rows: %w", err)
	}
	if n == 0 {
		return false, nil
	}

	id, err := res.LastInsertId()
	if err == nil {
		src.ID = id
	}
	return true, nil
}

func (c *Client) UpdateSourceEvaluation(ctx context.Context, sessionID, url string, eval models.SourceEvaluation) error {
	var supports sql.NullInt64
	if eval.SupportsClaim != nil {
		supports = sql.NullInt64{Int64: boolToInt(*eval.SupportsClaim), Valid: true}
	}

	res, err := c.db.ExecContext(ctx, `
		UPDATE sources SET credibility_score = ?, relevance_score = ?, supports_claim = ?
		WHERE session_id = ? AND url = ?`,
		eval.CredibilityScore, eval.RelevanceScore, supports, sessionID, url)
	if err != nil {
		return fmt.Errorf("failed to update source evaluation: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read affected rows: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("source %s: %w", url, models.ErrNotFound)
	}
	return nil
}

func (c *Client) ListSources(ctx context.Context, sessionID string) ([]models.Source, error) {
	rows, err := c.db.QueryContext(ctx, `
		SELECT id, session_id, url, title, publisher, publish_date, credibility_score, relevance_score,
			supports_claim, content_summary, accessed_at
		FROM sources
		WHERE session_id = ?
		ORDER BY id`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to list sources: %w", err)
	}
	defer rows.Close()

	var sources []models.Source
	for rows.Next() {
		var (
			src                                        models.Source
			title, publisher, publishDate, contentSumm sql.NullString
			supports                                   sql.NullInt64
			accessedAt                                 int64
		)

		err := rows.Scan(&src.ID, &src.SessionID, &src.URL, &title, &publisher, &publishDate,
			&src.CredibilityScore, &src.RelevanceScore, &supports, &contentSumm, &accessedAt)
		if err != nil {
			return nil, fmt.Errorf("failed to scan source: %w", err)
		}

		src.Title = title.String
		src.Publisher = publisher.String
		src.PublishDate = publishDate.String
		src.ContentSummary = contentSumm.String
		if supports.Valid {
			v := supports.Int64 == 1
			src.SupportsClaim = &v
		}
		src.AccessedAt = time.UnixMilli(accessedAt)

		sources = append(sources, src)
	}

	return sources, rows.Err()
}

func (c *Client) InsertSearchQuery(ctx context.Context, q *models.SearchQuery) error {
	_, err := c.db.ExecContext(ctx, `
		INSERT INTO search_queries (session_id, query_text, search_type, results_count, successful,
			error_message, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		q.SessionID,
		q.Query,
		string(q.Type),
		q.ResultsCount,
		boolToInt(q.Successful),
		nullString(q.ErrorMessage),
		q.CreatedAt.UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("failed to insert search query: %w", err)
	}

	return nil
}

func (c *Client) ListSearchQueries(ctx context.Context, sessionID string) ([]models.SearchQuery, error) {
	rows, err := c.db.QueryContext(ctx, `
		SELECT id, session_id, query_text, search_type, results_count, successful, error_message, created_at
		FROM search_queries
		WHERE session_id = ?
		ORDER BY id`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to list search queries: %w", err)
	}
	defer rows.Close()

	var queries []models.SearchQuery
	for rows.Next() {
		var (
			q          models.SearchQuery
			searchType string
			successful int64
			errMsg     sql.NullString
			createdAt  int64
		)

		err := rows.Scan(&q.ID, &q.SessionID, &q.Query, &searchType, &q.ResultsCount, &successful,
			&errMsg, &createdAt)
		if err != nil {
			return nil, fmt.Errorf("failed to scan search query: %w", err)
		}

		q.Type = models.SearchType(searchType)
		q.Successful = successful == 1
		q.ErrorMessage = errMsg.String
		q.CreatedAt = time.UnixMilli(createdAt)
		queries = append(queries, q)
	}

	return queries, rows.Err()
}

func (c *Client) InsertInteraction(ctx context.Context, in *models.Interaction) error {
	_, err := c.db.ExecContext(ctx, `
		INSERT INTO llm_interactions (session_id, interaction_type, prompt, response, model, tokens_used, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		in.SessionID,
		in.Type,
		in.Prompt,
		in.Response,
		in.Model,
		in.TokensUsed,
		in.CreatedAt.UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("failed to insert llm interaction: %w", err)
	}

	return nil
}

func (c *Client) ListInteractions(ctx context.Context, sessionID string) ([]models.Interaction, error) {
	rows, err := c.db.QueryContext(ctx, `
		SELECT id, session_id, interaction_type, prompt, response, model, tokens_used, created_at
		FROM llm_interactions
		WHERE session_id = ?
		ORDER BY id`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to list llm interactions: %w", err)
	}
	defer rows.Close()

	var out []models.Interaction
	for rows.Next() {
		var (
			in                      models.Interaction
			prompt, response, model sql.NullString
			tokens                  sql.NullInt64
			createdAt               int64
		)

		err := rows.Scan(&in.ID, &in.SessionID, &in.Type, &prompt, &response, &model, &tokens, &createdAt)
		if err != nil {
			return nil, fmt.Errorf("failed to scan llm interaction: %w", err)
		}

		in.Prompt = prompt.String
		in.Response = response.String
		in.Model = model.String
		in.TokensUsed = int(tokens.Int64)
		in.CreatedAt = time.UnixMilli(createdAt)
		out = append(out, in)
	}

	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSession(row rowScanner) (*models.Session, error) {
	var (
		s                                         models.Session
		mode, variant, status                     string
		imagePath, verdict, summary, errorMessage sql.NullString
		confidence                                sql.NullFloat64
		createdAt, updatedAt                      int64
		completedAt                               sql.NullInt64
	)

	err := row.Scan(&s.ID, &s.Input, &imagePath, &mode, &variant, &status, &verdict, &confidence,
		&summary, &errorMessage, &createdAt, &updatedAt, &completedAt)
	if err != nil {
		return nil, err
	}

	s.ImagePath = imagePath.String
	s.Mode = models.Mode(mode)
	s.Variant = models.Variant(variant)
	s.Status = models.SessionStatus(status)
	s.Verdict = verdict.String
	if confidence.Valid {
		v := confidence.Float64
		s.Confidence = &v
	}
	s.Summary = summary.String
	s.ErrorMessage = errorMessage.String
	s.CreatedAt = time.UnixMilli(createdAt)
	s.UpdatedAt = time.UnixMilli(updatedAt)
	s.CompletedAt = timePtr(completedAt)

	return &s, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func timePtr(v sql.NullInt64) *time.Time {
	if !v.Valid {
		return nil
	}
	t := time.UnixMilli(v.Int64)
	return &t
}

func boolToInt(b bool) int64 {
	if b {
		return 1
	}
	return 0
}
