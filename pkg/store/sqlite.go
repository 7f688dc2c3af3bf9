package store

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"sync"

	sq "github.com/Masterminds/squirrel"
	"github.com/pressly/goose/v3"
	"instadb/pkg/logger"
	"instadb/pkg/models"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

//go:embed migrations/*.sql
var migrations embed.FS

// goose keeps its configuration in package globals
var gooseMu sync.Mutex

var builder = sq.StatementBuilder.PlaceholderFormat(sq.Question)

const postsTable = "posts"

// SQLite is the default store: one SQLite file per account
type SQLite struct {
	db     *sql.DB
	opts   Options
	logger logger.Logger
}

var _ Store = (*SQLite)(nil)

// OpenSQLite opens or creates the database at path and brings its schema up to date
func OpenSQLite(ctx context.Context, path string, opts Options) (*SQLite, error) {
	if opts.Logger == nil {
		opts.Logger = logger.NewNopLogger()
	}

	db, err := sql.Open("sqlite", path+"?_pragma=busy_timeout(5000)&_pragma=synchronous(FULL)")
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	db.SetMaxOpenConns(1)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("opening database: %w", err)
	}

	if err := migrate(db, opts.Logger); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrating database: %w", err)
	}

	opts.Logger.DebugWithFields("store opened", map[string]interface{}{
		"driver": "sqlite",
		"path":   path,
	})

	return &SQLite{db: db, opts: opts, logger: opts.Logger}, nil
}

func migrate(db *sql.DB, log logger.Logger) error {
	gooseMu.Lock()
	defer gooseMu.Unlock()

	goose.SetBaseFS(migrations)
	defer goose.SetBaseFS(nil)
	goose.SetLogger(logger.NewPrintfLogger(log))

	if err := goose.SetDialect("sqlite3"); err != nil {
		return err
	}
	return goose.Up(db, "migrations")
}

func (s *SQLite) Exists(ctx context.Context, shortcode string) (bool, error) {
	query, args, err := builder.
		Select("1").
		From(postsTable).
		Where(sq.Eq{"code": shortcode}).
		Limit(1).
		ToSql()
	if err != nil {
		return false, err
	}

	var one int
	err = s.db.QueryRowContext(ctx, query, args...).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

func (s *SQLite) Likes(ctx context.Context, shortcode string) (int, error) {
	query, args, err := builder.
		Select("likes").
		From(postsTable).
		Where(sq.Eq{"code": shortcode}).
		ToSql()
	if err != nil {
		return 0, err
	}

	var likes sql.NullInt64
	err = s.db.QueryRowContext(ctx, query, args...).Scan(&likes)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return int(likes.Int64), nil
}

func (s *SQLite) Insert(ctx context.Context, post models.Post) error {
	rec := s.opts.record(post)

	query, args, err := builder.
		Insert(postsTable).
		Columns("code", "date", "type", "likes", "location", "caption", "media").
		Values(rec.Code, rec.Date, rec.Type, rec.Likes, rec.Location, rec.Caption, rec.Media).
		ToSql()
	if err != nil {
		return err
	}

	if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
		var sqlErr *sqlite.Error
		if errors.As(err, &sqlErr) && sqlErr.Code() == sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY {
			return duplicate(post.Shortcode)
		}
		return fmt.Errorf("insert %s: %w", post.Shortcode, err)
	}
	return nil
}

func (s *SQLite) UpdateLikes(ctx context.Context, shortcode string, likes int) error {
	query, args, err := builder.
		Update(postsTable).
		Set("likes", likes).
		Where(sq.Eq{"code": shortcode}).
		ToSql()
	if err != nil {
		return err
	}

	if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("update likes of %s: %w", shortcode, err)
	}
	return nil
}

func (s *SQLite) Get(ctx context.Context, shortcode string) (*Record, error) {
	query, args, err := builder.
		Select("code", "date", "type", "likes", "location", "caption", "media").
		From(postsTable).
		Where(sq.Eq{"code": shortcode}).
		ToSql()
	if err != nil {
		return nil, err
	}

	var (
		rec      Record
		likes    sql.NullInt64
		location sql.NullString
		caption  sql.NullString
	)
	err = s.db.QueryRowContext(ctx, query, args...).
		Scan(&rec.Code, &rec.Date, &rec.Type, &likes, &location, &caption, &rec.Media)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	if likes.Valid {
		n := int(likes.Int64)
		rec.Likes = &n
	}
	if location.Valid {
		rec.Location = &location.String
	}
	if caption.Valid {
		rec.Caption = &caption.String
	}
	return &rec, nil
}

func (s *SQLite) Count(ctx context.Context) (int, error) {
	query, args, err := builder.Select("COUNT(*)").From(postsTable).ToSql()
	if err != nil {
		return 0, err
	}

	var n int
	if err := s.db.QueryRowContext(ctx, query, args...).Scan(&n); err != nil {
		return 0, err
	}
	return n, nil
}

func (s *SQLite) Close() error {
	return s.db.Close()
}
