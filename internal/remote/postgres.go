package remote

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	_ "github.com/lib/pq"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

const upsertTweet = `
INSERT INTO tweets (
	tweet_id, tweet_url, full_text, user_name, user_screen_name,
	user_avatar_url, media_urls, video_url, tweet_created_at,
	likes, retweets, replies, quotes, is_quoted, source, captured_at
) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16)
ON CONFLICT (tweet_id) DO UPDATE SET
	tweet_url        = EXCLUDED.tweet_url,
	full_text        = EXCLUDED.full_text,
	user_name        = EXCLUDED.user_name,
	user_screen_name = EXCLUDED.user_screen_name,
	user_avatar_url  = EXCLUDED.user_avatar_url,
	media_urls       = EXCLUDED.media_urls,
	video_url        = EXCLUDED.video_url,
	tweet_created_at = EXCLUDED.tweet_created_at,
	likes            = EXCLUDED.likes,
	retweets         = EXCLUDED.retweets,
	replies          = EXCLUDED.replies,
	quotes           = EXCLUDED.quotes,
	is_quoted        = EXCLUDED.is_quoted,
	source           = EXCLUDED.source,
	captured_at      = EXCLUDED.captured_at`

// PostgresStore writes directly to a Postgres tweets table.
type PostgresStore struct {
	db *sql.DB
}

// OpenPostgres connects, applies pending migrations, and verifies the
// connection.
func OpenPostgres(dsn string) (*PostgresStore, error) {
	if err := runMigrations(dsn); err != nil {
		return nil, err
	}
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return &PostgresStore{db: db}, nil
}

func runMigrations(dsn string) error {
	source, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("migration source: %w", err)
	}
	m, err := migrate.NewWithSourceInstance("iofs", source, dsn)
	if err != nil {
		return fmt.Errorf("migrator: %w", err)
	}
	defer m.Close()
	if err := m.Up(); err != nil && err != migrate.ErrNoChange {
		return fmt.Errorf("run migrations: %w", err)
	}
	return nil
}

// Upsert writes the batch inside one transaction so a mid-batch failure
// leaves nothing applied.
func (s *PostgresStore) Upsert(ctx context.Context, records []TweetRecord) error {
	if len(records) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin upsert tx: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, upsertTweet)
	if err != nil {
		return fmt.Errorf("prepare upsert: %w", err)
	}
	defer stmt.Close()

	for _, r := range records {
		media, err := json.Marshal(r.MediaURLs)
		if err != nil {
			return fmt.Errorf("encode media urls for %s: %w", r.TweetID, err)
		}
		if _, err := stmt.ExecContext(ctx,
			r.TweetID, r.TweetURL, r.FullText, r.UserName, r.UserScreenName,
			r.UserAvatarURL, string(media), r.VideoURL, r.TweetCreatedAt,
			r.Likes, r.Retweets, r.Replies, r.Quotes, r.IsQuoted, r.Source, r.CapturedAt,
		); err != nil {
			return fmt.Errorf("upsert %s: %w", r.TweetID, err)
		}
	}
	return tx.Commit()
}

func (s *PostgresStore) Close() error { return s.db.Close() }
