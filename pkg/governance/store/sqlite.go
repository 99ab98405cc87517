package store

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"time"

	_ "modernc.org/sqlite" // SQLite driver
)

// SQLiteBackend implements Backend using SQLite for persistence.
// This backend provides durable storage and is suitable for
// single-instance deployments where aggregates, thresholds, and alerts
// must survive restarts.
//
// SQLiteBackend uses a write-ahead log (WAL) for better concurrent
// performance. Bucket increments are expressed as UPSERT arithmetic,
// so each add is atomic per bucket row under SQLite's single-writer
// model.
type SQLiteBackend struct {
	db        *sql.DB
	dbPath    string
	done      chan struct{}
	mu        sync.RWMutex
	closeOnce sync.Once

	// preparedStatements contains pre-compiled SQL statements for performance
	addBucketStmt       *sql.Stmt
	getBucketStmt       *sql.Stmt
	rangeBucketsStmt    *sql.Stmt
	listScopesStmt      *sql.Stmt
	putEventStmt        *sql.Stmt
	saveThresholdStmt   *sql.Stmt
	getThresholdStmt    *sql.Stmt
	deleteThresholdStmt *sql.Stmt
	saveAlertStmt       *sql.Stmt
	getAlertStmt        *sql.Stmt
	listAlertsStmt      *sql.Stmt
}

// SQLiteBackendConfig configures the SQLite backend.
type SQLiteBackendConfig struct {
	// DBPath is the path to the SQLite database file.
	DBPath string

	// BusyTimeout is how long to wait for locks before failing.
	// Default: 5 seconds
	BusyTimeout time.Duration

	// CheckpointInterval is how often to checkpoint the WAL.
	// Default: 5 minutes
	CheckpointInterval time.Duration
}

// NewSQLiteBackend creates a new SQLite storage backend with default settings.
func NewSQLiteBackend(dbPath string) (*SQLiteBackend, error) {
	return NewSQLiteBackendWithConfig(SQLiteBackendConfig{DBPath: dbPath})
}

// NewSQLiteBackendWithConfig creates a new SQLite backend with custom configuration.
func NewSQLiteBackendWithConfig(cfg SQLiteBackendConfig) (*SQLiteBackend, error) {
	if cfg.DBPath == "" {
		return nil, fmt.Errorf("db path cannot be empty")
	}
	if cfg.BusyTimeout == 0 {
		cfg.BusyTimeout = 5 * time.Second
	}
	if cfg.CheckpointInterval == 0 {
		cfg.CheckpointInterval = 5 * time.Minute
	}

	dsn := fmt.Sprintf("%s?_journal_mode=WAL&_busy_timeout=%d&_synchronous=NORMAL",
		cfg.DBPath, int(cfg.BusyTimeout.Milliseconds()))

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// SQLite only supports a single writer
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	backend := &SQLiteBackend{
		db:     db,
		dbPath: cfg.DBPath,
		done:   make(chan struct{}),
	}

	if err := backend.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	if err := backend.prepareStatements(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to prepare statements: %w", err)
	}

	go backend.checkpointLoop(cfg.CheckpointInterval)

	return backend, nil
}

// initSchema creates the database schema if it doesn't exist.
func (s *SQLiteBackend) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS buckets (
		scope TEXT NOT NULL,
		period TEXT NOT NULL,
		label TEXT NOT NULL,
		total_cost REAL NOT NULL DEFAULT 0,
		total_requests INTEGER NOT NULL DEFAULT 0,
		total_tokens INTEGER NOT NULL DEFAULT 0,
		successful_requests INTEGER NOT NULL DEFAULT 0,
		last_updated INTEGER NOT NULL,
		PRIMARY KEY (scope, period, label)
	);

	CREATE TABLE IF NOT EXISTS events (
		id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL,
		timestamp INTEGER NOT NULL,
		document TEXT NOT NULL,
		retention_until INTEGER NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_events_user_ts ON events(user_id, timestamp);
	CREATE INDEX IF NOT EXISTS idx_events_retention ON events(retention_until);

	CREATE TABLE IF NOT EXISTS thresholds (
		id TEXT PRIMARY KEY,
		scope TEXT NOT NULL,
		document TEXT NOT NULL,
		updated_at INTEGER NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_thresholds_scope ON thresholds(scope);

	CREATE TABLE IF NOT EXISTS alerts (
		id TEXT PRIMARY KEY,
		scope TEXT NOT NULL,
		document TEXT NOT NULL,
		created_at INTEGER NOT NULL,
		retention_until INTEGER NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_alerts_scope_created ON alerts(scope, created_at);
	CREATE INDEX IF NOT EXISTS idx_alerts_retention ON alerts(retention_until);
	`

	_, err := s.db.Exec(schema)
	return err
}

// prepareStatements prepares SQL statements for reuse.
func (s *SQLiteBackend) prepareStatements() error {
	var err error

	s.addBucketStmt, err = s.db.Prepare(`
		INSERT INTO buckets (scope, period, label, total_cost, total_requests, total_tokens, successful_requests, last_updated)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (scope, period, label) DO UPDATE SET
			total_cost = total_cost + excluded.total_cost,
			total_requests = total_requests + excluded.total_requests,
			total_tokens = total_tokens + excluded.total_tokens,
			successful_requests = successful_requests + excluded.successful_requests,
			last_updated = excluded.last_updated
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare bucket add statement: %w", err)
	}

	s.getBucketStmt, err = s.db.Prepare(`
		SELECT scope, period, label, total_cost, total_requests, total_tokens, successful_requests, last_updated
		FROM buckets
		WHERE scope = ? AND period = ? AND label = ?
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare bucket get statement: %w", err)
	}

	s.rangeBucketsStmt, err = s.db.Prepare(`
		SELECT scope, period, label, total_cost, total_requests, total_tokens, successful_requests, last_updated
		FROM buckets
		WHERE scope = ? AND period = ? AND label >= ? AND label <= ?
		ORDER BY label ASC
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare bucket range statement: %w", err)
	}

	s.listScopesStmt, err = s.db.Prepare(`
		SELECT DISTINCT scope FROM buckets
		WHERE scope LIKE ? ESCAPE '\'
		ORDER BY scope ASC
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare scope list statement: %w", err)
	}

	s.putEventStmt, err = s.db.Prepare(`
		INSERT INTO events (id, user_id, timestamp, document, retention_until)
		VALUES (?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare event put statement: %w", err)
	}

	s.saveThresholdStmt, err = s.db.Prepare(`
		INSERT INTO thresholds (id, scope, document, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			scope = excluded.scope,
			document = excluded.document,
			updated_at = excluded.updated_at
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare threshold save statement: %w", err)
	}

	s.getThresholdStmt, err = s.db.Prepare(`
		SELECT id, scope, document, updated_at FROM thresholds WHERE id = ?
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare threshold get statement: %w", err)
	}

	s.deleteThresholdStmt, err = s.db.Prepare(`
		DELETE FROM thresholds WHERE id = ?
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare threshold delete statement: %w", err)
	}

	s.saveAlertStmt, err = s.db.Prepare(`
		INSERT INTO alerts (id, scope, document, created_at, retention_until)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			document = excluded.document
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare alert save statement: %w", err)
	}

	s.getAlertStmt, err = s.db.Prepare(`
		SELECT id, scope, document, created_at, retention_until FROM alerts WHERE id = ?
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare alert get statement: %w", err)
	}

	s.listAlertsStmt, err = s.db.Prepare(`
		SELECT id, scope, document, created_at, retention_until
		FROM alerts
		WHERE scope = ?
		ORDER BY created_at DESC
		LIMIT ?
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare alert list statement: %w", err)
	}

	return nil
}

// AddToBucket atomically adds delta to the bucket's running sums.
func (s *SQLiteBackend) AddToBucket(ctx context.Context, scope, period, label string, delta BucketDelta) error {
	if scope == "" || period == "" || label == "" {
		return fmt.Errorf("scope, period, and label cannot be empty")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.addBucketStmt.ExecContext(ctx,
		scope, period, label,
		delta.Cost, delta.Requests, delta.Tokens, delta.SuccessfulRequests,
		time.Now().Unix(),
	)
	if err != nil {
		return fmt.Errorf("failed to add to bucket: %w", err)
	}
	return nil
}

// GetBucket returns the bucket row, or nil if it does not exist.
func (s *SQLiteBackend) GetBucket(ctx context.Context, scope, period, label string) (*BucketRow, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	row, err := scanBucket(s.getBucketStmt.QueryRowContext(ctx, scope, period, label))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get bucket: %w", err)
	}
	return row, nil
}

// RangeBuckets returns bucket rows in [fromLabel, toLabel], ordered by label.
func (s *SQLiteBackend) RangeBuckets(ctx context.Context, scope, period, fromLabel, toLabel string) ([]*BucketRow, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.rangeBucketsStmt.QueryContext(ctx, scope, period, fromLabel, toLabel)
	if err != nil {
		return nil, fmt.Errorf("failed to range buckets: %w", err)
	}
	defer rows.Close()

	var result []*BucketRow
	for rows.Next() {
		bucket, err := scanBucket(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan bucket row: %w", err)
		}
		result = append(result, bucket)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating bucket rows: %w", err)
	}
	return result, nil
}

// ListScopes returns distinct scope keys with bucket rows matching keyPrefix.
func (s *SQLiteBackend) ListScopes(ctx context.Context, keyPrefix string) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.listScopesStmt.QueryContext(ctx, escapeLike(keyPrefix)+"%")
	if err != nil {
		return nil, fmt.Errorf("failed to list scopes: %w", err)
	}
	defer rows.Close()

	var scopes []string
	for rows.Next() {
		var scope string
		if err := rows.Scan(&scope); err != nil {
			return nil, fmt.Errorf("failed to scan scope row: %w", err)
		}
		scopes = append(scopes, scope)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating scope rows: %w", err)
	}
	return scopes, nil
}

// PutEvent appends an immutable event detail row.
func (s *SQLiteBackend) PutEvent(ctx context.Context, row *EventRow) error {
	if row == nil {
		return fmt.Errorf("event row cannot be nil")
	}
	if row.ID == "" || row.UserID == "" {
		return fmt.Errorf("event id and user id cannot be empty")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.putEventStmt.ExecContext(ctx,
		row.ID, row.UserID, row.Timestamp.Unix(), string(row.Document), row.RetentionUntil.Unix(),
	)
	if err != nil {
		return fmt.Errorf("failed to put event: %w", err)
	}
	return nil
}

// SaveThreshold inserts or replaces a threshold document by id.
func (s *SQLiteBackend) SaveThreshold(ctx context.Context, row *ThresholdRow) error {
	if row == nil {
		return fmt.Errorf("threshold row cannot be nil")
	}
	if row.ID == "" || row.Scope == "" {
		return fmt.Errorf("threshold id and scope cannot be empty")
	}

	updatedAt := row.UpdatedAt
	if updatedAt.IsZero() {
		updatedAt = time.Now()
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.saveThresholdStmt.ExecContext(ctx,
		row.ID, row.Scope, string(row.Document), updatedAt.Unix(),
	)
	if err != nil {
		return fmt.Errorf("failed to save threshold: %w", err)
	}
	return nil
}

// GetThreshold returns the threshold row by id, or nil if absent.
func (s *SQLiteBackend) GetThreshold(ctx context.Context, id string) (*ThresholdRow, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var (
		row       ThresholdRow
		document  string
		updatedAt int64
	)
	err := s.getThresholdStmt.QueryRowContext(ctx, id).Scan(&row.ID, &row.Scope, &document, &updatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get threshold: %w", err)
	}

	row.Document = []byte(document)
	row.UpdatedAt = time.Unix(updatedAt, 0)
	return &row, nil
}

// ListThresholds returns threshold rows for a scope, or all when scope is empty.
func (s *SQLiteBackend) ListThresholds(ctx context.Context, scope string) ([]*ThresholdRow, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	query := `SELECT id, scope, document, updated_at FROM thresholds ORDER BY id ASC`
	args := []any{}
	if scope != "" {
		query = `SELECT id, scope, document, updated_at FROM thresholds WHERE scope = ? ORDER BY id ASC`
		args = append(args, scope)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list thresholds: %w", err)
	}
	defer rows.Close()

	var result []*ThresholdRow
	for rows.Next() {
		var (
			row       ThresholdRow
			document  string
			updatedAt int64
		)
		if err := rows.Scan(&row.ID, &row.Scope, &document, &updatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan threshold row: %w", err)
		}
		row.Document = []byte(document)
		row.UpdatedAt = time.Unix(updatedAt, 0)
		result = append(result, &row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating threshold rows: %w", err)
	}
	return result, nil
}

// DeleteThreshold removes a threshold row.
func (s *SQLiteBackend) DeleteThreshold(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	result, err := s.deleteThresholdStmt.ExecContext(ctx, id)
	if err != nil {
		return fmt.Errorf("failed to delete threshold: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if affected == 0 {
		return ErrRowNotFound
	}
	return nil
}

// SaveAlert inserts or replaces an alert document by id.
func (s *SQLiteBackend) SaveAlert(ctx context.Context, row *AlertRow) error {
	if row == nil {
		return fmt.Errorf("alert row cannot be nil")
	}
	if row.ID == "" || row.Scope == "" {
		return fmt.Errorf("alert id and scope cannot be empty")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.saveAlertStmt.ExecContext(ctx,
		row.ID, row.Scope, string(row.Document), row.CreatedAt.Unix(), row.RetentionUntil.Unix(),
	)
	if err != nil {
		return fmt.Errorf("failed to save alert: %w", err)
	}
	return nil
}

// GetAlert returns the alert row by id, or nil if absent.
func (s *SQLiteBackend) GetAlert(ctx context.Context, id string) (*AlertRow, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	row, err := scanAlert(s.getAlertStmt.QueryRowContext(ctx, id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get alert: %w", err)
	}
	return row, nil
}

// ListAlerts returns up to limit alert rows for a scope, newest first.
func (s *SQLiteBackend) ListAlerts(ctx context.Context, scope string, limit int) ([]*AlertRow, error) {
	if limit <= 0 {
		limit = -1 // SQLite: LIMIT -1 means no limit
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.listAlertsStmt.QueryContext(ctx, scope, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list alerts: %w", err)
	}
	defer rows.Close()

	var result []*AlertRow
	for rows.Next() {
		alert, err := scanAlert(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan alert row: %w", err)
		}
		result = append(result, alert)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating alert rows: %w", err)
	}
	return result, nil
}

// Cleanup purges event and alert rows past their retention deadline.
func (s *SQLiteBackend) Cleanup(ctx context.Context, now time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	deleted := 0
	for _, table := range []string{"events", "alerts"} {
		result, err := s.db.ExecContext(ctx,
			fmt.Sprintf("DELETE FROM %s WHERE retention_until < ?", table), now.Unix())
		if err != nil {
			return deleted, fmt.Errorf("failed to cleanup %s: %w", table, err)
		}
		affected, err := result.RowsAffected()
		if err != nil {
			return deleted, fmt.Errorf("failed to get rows affected: %w", err)
		}
		deleted += int(affected)
	}

	return deleted, nil
}

// Close releases any resources held by the backend.
// Close is idempotent and safe to call multiple times.
func (s *SQLiteBackend) Close() error {
	var closeErr error

	s.closeOnce.Do(func() {
		close(s.done)

		for _, stmt := range []*sql.Stmt{
			s.addBucketStmt, s.getBucketStmt, s.rangeBucketsStmt, s.listScopesStmt,
			s.putEventStmt,
			s.saveThresholdStmt, s.getThresholdStmt, s.deleteThresholdStmt,
			s.saveAlertStmt, s.getAlertStmt, s.listAlertsStmt,
		} {
			if stmt != nil {
				stmt.Close()
			}
		}

		if s.db != nil {
			// Run final checkpoint
			_, _ = s.db.Exec("PRAGMA wal_checkpoint(TRUNCATE)")
			closeErr = s.db.Close()
		}
	})

	return closeErr
}

// checkpointLoop runs periodic WAL checkpoints.
func (s *SQLiteBackend) checkpointLoop(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			_, _ = s.db.Exec("PRAGMA wal_checkpoint(PASSIVE)")
		case <-s.done:
			return
		}
	}
}

// scanner abstracts sql.Row and sql.Rows for shared scan helpers.
type scanner interface {
	Scan(dest ...any) error
}

// scanBucket scans one bucket row.
func scanBucket(sc scanner) (*BucketRow, error) {
	var (
		row         BucketRow
		lastUpdated int64
	)
	err := sc.Scan(&row.Scope, &row.Period, &row.Label,
		&row.TotalCost, &row.TotalRequests, &row.TotalTokens, &row.SuccessfulRequests,
		&lastUpdated,
	)
	if err != nil {
		return nil, err
	}
	row.LastUpdated = time.Unix(lastUpdated, 0)
	return &row, nil
}

// scanAlert scans one alert row.
func scanAlert(sc scanner) (*AlertRow, error) {
	var (
		row            AlertRow
		document       string
		createdAt      int64
		retentionUntil int64
	)
	err := sc.Scan(&row.ID, &row.Scope, &document, &createdAt, &retentionUntil)
	if err != nil {
		return nil, err
	}
	row.Document = []byte(document)
	row.CreatedAt = time.Unix(createdAt, 0)
	row.RetentionUntil = time.Unix(retentionUntil, 0)
	return &row, nil
}

// escapeLike escapes LIKE wildcards in a literal prefix.
func escapeLike(prefix string) string {
	out := make([]byte, 0, len(prefix))
	for i := 0; i < len(prefix); i++ {
		c := prefix[i]
		if c == '%' || c == '_' || c == '\\' {
			out = append(out, '\\')
		}
		out = append(out, c)
	}
	return string(out)
}
