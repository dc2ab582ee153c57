package checkpoint

import (
	"context"
	"database/sql"
	"fmt"
	"sync"

	"go.mongodb.org/mongo-driver/bson"
	_ "modernc.org/sqlite"
)

// SQLiteStore persists checkpoints in a local SQLite file. It lets an
// operator keep migration progress outside the database being migrated.
// Cursor values round-trip through canonical extended JSON so ObjectIDs,
// strings and numeric keys all survive a restart.
type SQLiteStore struct {
	cache
	db      *sql.DB
	closed  bool
	writeMu sync.Mutex
}

// NewSQLiteStore opens (or creates) a checkpoint database at dbPath.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	dsn := fmt.Sprintf("%s?_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)&_pragma=busy_timeout(60000)", dbPath)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open checkpoint database: %w", err)
	}

	store := &SQLiteStore{db: db}
	store.checkpoints = make(map[string]*Checkpoint)
	if err := store.createTables(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}

	return store, nil
}

func (s *SQLiteStore) createTables() error {
	query := `
	CREATE TABLE IF NOT EXISTS checkpoints (
		step TEXT PRIMARY KEY,
		last_processed_id TEXT,
		processed_count INTEGER NOT NULL DEFAULT 0,
		total_count INTEGER NOT NULL DEFAULT 0,
		status TEXT NOT NULL,
		error TEXT,
		started_at DATETIME,
		completed_at DATETIME,
		updated_at DATETIME NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_checkpoints_status ON checkpoints(status);
	`

	_, err := s.db.Exec(query)
	return err
}

// Load reads every persisted checkpoint into the in-memory map.
func (s *SQLiteStore) Load(ctx context.Context) error {
	if s.closed {
		return fmt.Errorf("checkpoint store is closed")
	}

	query := `
	SELECT step, last_processed_id, processed_count, total_count, status, error, started_at, completed_at, updated_at
	FROM checkpoints
	`

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return fmt.Errorf("failed to load checkpoints: %w", err)
	}
	defer rows.Close()

	checkpoints := make(map[string]*Checkpoint)
	for rows.Next() {
		var cp Checkpoint
		var cursorJSON, lastError sql.NullString
		var startedAt, completedAt sql.NullTime

		err := rows.Scan(
			&cp.Step,
			&cursorJSON,
			&cp.ProcessedCount,
			&cp.TotalCount,
			&cp.Status,
			&lastError,
			&startedAt,
			&completedAt,
			&cp.UpdatedAt,
		)
		if err != nil {
			return fmt.Errorf("failed to scan checkpoint: %w", err)
		}

		if cursorJSON.Valid {
			cursor, err := decodeCursor(cursorJSON.String)
			if err != nil {
				return fmt.Errorf("failed to decode cursor for step %s: %w", cp.Step, err)
			}
			cp.LastProcessedID = cursor
		}
		if lastError.Valid {
			cp.Error = lastError.String
		}
		if startedAt.Valid {
			t := startedAt.Time
			cp.StartedAt = &t
		}
		if completedAt.Valid {
			t := completedAt.Time
			cp.CompletedAt = &t
		}

		checkpoints[cp.Step] = &cp
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("failed to iterate checkpoints: %w", err)
	}

	s.replace(checkpoints)
	return nil
}

func (s *SQLiteStore) Get(step string) (*Checkpoint, bool) {
	return s.get(step)
}

func (s *SQLiteStore) All() []*Checkpoint {
	return s.all()
}

// Save merges update into the cached record for step and upserts the
// full record by step name.
func (s *SQLiteStore) Save(ctx context.Context, step string, update Update) (*Checkpoint, error) {
	if s.closed {
		return nil, fmt.Errorf("checkpoint store is closed")
	}

	cp := s.merge(step, update)

	var cursorJSON sql.NullString
	if cp.LastProcessedID != nil {
		encoded, err := encodeCursor(cp.LastProcessedID)
		if err != nil {
			return nil, fmt.Errorf("failed to encode cursor for step %s: %w", step, err)
		}
		cursorJSON = sql.NullString{String: encoded, Valid: true}
	}

	var lastError sql.NullString
	if cp.Error != "" {
		lastError = sql.NullString{String: cp.Error, Valid: true}
	}
	var startedAt, completedAt sql.NullTime
	if cp.StartedAt != nil {
		startedAt = sql.NullTime{Time: *cp.StartedAt, Valid: true}
	}
	if cp.CompletedAt != nil {
		completedAt = sql.NullTime{Time: *cp.CompletedAt, Valid: true}
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	query := `
	INSERT INTO checkpoints
	(step, last_processed_id, processed_count, total_count, status, error, started_at, completed_at, updated_at)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT(step) DO UPDATE SET
		last_processed_id = excluded.last_processed_id,
		processed_count = excluded.processed_count,
		total_count = excluded.total_count,
		status = excluded.status,
		error = excluded.error,
		started_at = excluded.started_at,
		completed_at = excluded.completed_at,
		updated_at = excluded.updated_at
	`

	_, err := s.db.ExecContext(ctx, query,
		cp.Step,
		cursorJSON,
		cp.ProcessedCount,
		cp.TotalCount,
		cp.Status,
		lastError,
		startedAt,
		completedAt,
		cp.UpdatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to save checkpoint for step %s: %w", step, err)
	}

	return cp, nil
}

// Close closes the database connection
func (s *SQLiteStore) Close() error {
	s.closed = true
	return s.db.Close()
}

// encodeCursor serializes an opaque cursor value as canonical extended
// JSON, wrapped in a single-field document.
func encodeCursor(cursor any) (string, error) {
	data, err := bson.MarshalExtJSON(bson.M{"c": cursor}, true, false)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

func decodeCursor(encoded string) (any, error) {
	var wrapper struct {
		C any `bson:"c"`
	}
	if err := bson.UnmarshalExtJSON([]byte(encoded), true, &wrapper); err != nil {
		return nil, err
	}
	return wrapper.C, nil
}
