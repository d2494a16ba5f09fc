package battlestate

import (
	"context"
	"database/sql"
	"embed"
	"path/filepath"
	"strings"
	"sync"

	"github.com/pressly/goose/v3"
	_ "modernc.org/sqlite" // registers the "sqlite" driver

	"github.com/KirkDiggler/rpg-skill-engine/internal/entities/battle"
	"github.com/KirkDiggler/rpg-skill-engine/internal/errors"
)

//go:embed migrations/*.sql
var migrations embed.FS

// goose keeps its settings in package globals
var gooseMu sync.Mutex

// SQLiteConfig configures the SQLite backup store
type SQLiteConfig struct {
	Path string
}

// Validate ensures a database path is set
func (c *SQLiteConfig) Validate() error {
	if c == nil {
		return errors.InvalidArgument("config cannot be nil")
	}
	vb := errors.NewValidationBuilder()
	errors.ValidateRequired("Path", strings.TrimSpace(c.Path), vb)
	return vb.Build()
}

// SQLiteRepository stores snapshots in a single SQLite table
type SQLiteRepository struct {
	db *sql.DB
}

var _ Repository = (*SQLiteRepository)(nil)

// NewSQLite opens the database and applies embedded migrations
func NewSQLite(ctx context.Context, cfg *SQLiteConfig) (*SQLiteRepository, error) {
	if err := cfg.Validate(); err != nil {
		return nil, errors.Wrap(err, "invalid sqlite repository config")
	}

	dsn := filepath.Clean(cfg.Path) + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, errors.Wrap(err, "failed to open sqlite db")
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, errors.WrapWithCode(err, errors.CodeUnavailable, "failed to ping sqlite db").WithMeta("path", cfg.Path)
	}
	if err := migrate(ctx, db); err != nil {
		_ = db.Close()
		return nil, err
	}

	return &SQLiteRepository{db: db}, nil
}

func migrate(ctx context.Context, db *sql.DB) error {
	gooseMu.Lock()
	defer gooseMu.Unlock()

	goose.SetLogger(goose.NopLogger())
	goose.SetBaseFS(migrations)
	if err := goose.SetDialect("sqlite3"); err != nil {
		return errors.Wrap(err, "failed to set migration dialect")
	}
	if err := goose.UpContext(ctx, db, "migrations"); err != nil {
		return errors.Wrap(err, "failed to run migrations")
	}
	return nil
}

// Close closes the database handle
func (r *SQLiteRepository) Close() error {
	if r == nil || r.db == nil {
		return nil
	}
	return r.db.Close()
}

// Save upserts the snapshot
func (r *SQLiteRepository) Save(ctx context.Context, input *SaveInput) (*SaveOutput, error) {
	if err := validateSave(input); err != nil {
		return nil, err
	}
	s := input.Session

	blob, err := battle.Encode(s)
	if err != nil {
		return nil, err
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, errors.Wrap(err, "failed to begin transaction")
	}
	defer func() { _ = tx.Rollback() }()

	if s.ChannelID != "" {
		var owner string
		err := tx.QueryRowContext(ctx,
			`SELECT id FROM battle_sessions WHERE channel_id = ? AND id <> ?`,
			s.ChannelID, s.ID,
		).Scan(&owner)
		switch {
		case err == nil:
			return nil, battle.SessionExists(s.ChannelID, owner)
		case err != sql.ErrNoRows:
			return nil, errors.Wrap(err, "failed to read channel index")
		}
	}

	_, err = tx.ExecContext(ctx,
		`INSERT INTO battle_sessions (id, channel_id, round, version, snapshot, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET
		   channel_id = excluded.channel_id,
		   round = excluded.round,
		   version = excluded.version,
		   snapshot = excluded.snapshot,
		   updated_at = excluded.updated_at`,
		s.ID, s.ChannelID, s.Round, s.Version, blob, s.UpdatedAt.UTC().UnixMilli(),
	)
	if err != nil {
		return nil, errors.Wrap(err, "failed to store session")
	}
	if err := tx.Commit(); err != nil {
		return nil, errors.Wrap(err, "failed to commit session")
	}

	return &SaveOutput{Version: s.Version}, nil
}

// Get loads a session by id
func (r *SQLiteRepository) Get(ctx context.Context, input *GetInput) (*GetOutput, error) {
	if err := validateGet(input); err != nil {
		return nil, err
	}
	return r.load(ctx, `SELECT snapshot FROM battle_sessions WHERE id = ?`, input.SessionID,
		battle.SessionNotFound(input.SessionID))
}

// GetByChannel loads the session bound to a channel
func (r *SQLiteRepository) GetByChannel(ctx context.Context, input *GetByChannelInput) (*GetOutput, error) {
	if err := validateGetByChannel(input); err != nil {
		return nil, err
	}
	return r.load(ctx, `SELECT snapshot FROM battle_sessions WHERE channel_id = ?`, input.ChannelID,
		errors.NotFoundf("no session for channel %s", input.ChannelID).WithMeta("channel_id", input.ChannelID))
}

func (r *SQLiteRepository) load(ctx context.Context, query, arg string, notFound error) (*GetOutput, error) {
	var blob []byte
	err := r.db.QueryRowContext(ctx, query, arg).Scan(&blob)
	if err == sql.ErrNoRows {
		return nil, notFound
	}
	if err != nil {
		return nil, errors.Wrap(err, "failed to query session")
	}

	s, err := battle.Decode(blob)
	if err != nil {
		return nil, err
	}
	return &GetOutput{Session: s}, nil
}

// ReleaseChannel clears the channel column of the session's row. The
// snapshot keeps its channel id for the record.
func (r *SQLiteRepository) ReleaseChannel(ctx context.Context, input *ReleaseChannelInput) (*ReleaseChannelOutput, error) {
	if err := validateReleaseChannel(input); err != nil {
		return nil, err
	}

	res, err := r.db.ExecContext(ctx,
		`UPDATE battle_sessions SET channel_id = '' WHERE channel_id = ? AND id = ?`,
		input.ChannelID, input.SessionID,
	)
	if err != nil {
		return nil, errors.Wrap(err, "failed to release channel")
	}
	n, err := res.RowsAffected()
	if err != nil {
		return nil, errors.Wrap(err, "failed to read affected rows")
	}

	return &ReleaseChannelOutput{Released: n > 0}, nil
}

// Delete removes a session
func (r *SQLiteRepository) Delete(ctx context.Context, input *DeleteInput) (*DeleteOutput, error) {
	if err := validateDelete(input); err != nil {
		return nil, err
	}

	res, err := r.db.ExecContext(ctx, `DELETE FROM battle_sessions WHERE id = ?`, input.SessionID)
	if err != nil {
		return nil, errors.Wrap(err, "failed to delete session")
	}
	n, err := res.RowsAffected()
	if err != nil {
		return nil, errors.Wrap(err, "failed to read affected rows")
	}
	if n == 0 {
		return nil, battle.SessionNotFound(input.SessionID)
	}

	return &DeleteOutput{}, nil
}

// List returns all session ids
func (r *SQLiteRepository) List(ctx context.Context, _ *ListInput) (*ListOutput, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT id FROM battle_sessions ORDER BY id`)
	if err != nil {
		return nil, errors.Wrap(err, "failed to list sessions")
	}
	defer func() { _ = rows.Close() }()

	ids := []string{}
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, errors.Wrap(err, "failed to scan session id")
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "failed to iterate sessions")
	}

	return &ListOutput{SessionIDs: ids}, nil
}
