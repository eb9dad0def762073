package database

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"

	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"
)

// ErrNotFound is returned by lookups that match no row.
var ErrNotFound = errors.New("not found")

type Client struct {
	db *sql.DB
}

// NewClient opens pathToDB and makes sure the schema exists. A postgres://
// or postgresql:// URL selects the postgres driver, anything else is a sqlite file.
func NewClient(pathToDB string) (Client, error) {
	driver := "sqlite3"
	if strings.HasPrefix(pathToDB, "postgres://") || strings.HasPrefix(pathToDB, "postgresql://") {
		driver = "postgres"
	}

	db, err := sql.Open(driver, pathToDB)
	if err != nil {
		return Client{}, fmt.Errorf("open %s database: %w", driver, err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return Client{}, fmt.Errorf("ping %s database: %w", driver, err)
	}

	c := Client{db: db}
	if err := c.autoMigrate(); err != nil {
		db.Close()
		return Client{}, err
	}
	return c, nil
}

func (c Client) Close() error {
	return c.db.Close()
}

func (c Client) autoMigrate() error {
	userTable := `
	CREATE TABLE IF NOT EXISTS users (
		id TEXT PRIMARY KEY,
		created_at TIMESTAMP NOT NULL,
		updated_at TIMESTAMP NOT NULL,
		email TEXT UNIQUE NOT NULL,
		password TEXT NOT NULL
	);
	`
	if _, err := c.db.Exec(userTable); err != nil {
		return fmt.Errorf("create users table: %w", err)
	}

	videoTable := `
	CREATE TABLE IF NOT EXISTS videos (
		id TEXT PRIMARY KEY,
		created_at TIMESTAMP NOT NULL,
		updated_at TIMESTAMP NOT NULL,
		title TEXT NOT NULL,
		description TEXT NOT NULL DEFAULT '',
		thumbnail_url TEXT,
		video_url TEXT,
		user_id TEXT NOT NULL REFERENCES users(id) ON DELETE CASCADE
	);
	`
	if _, err := c.db.Exec(videoTable); err != nil {
		return fmt.Errorf("create videos table: %w", err)
	}
	return nil
}

// Reset deletes every video and user.
func (c Client) Reset() error {
	if _, err := c.db.Exec("DELETE FROM videos"); err != nil {
		return fmt.Errorf("reset videos: %w", err)
	}
	if _, err := c.db.Exec("DELETE FROM users"); err != nil {
		return fmt.Errorf("reset users: %w", err)
	}
	return nil
}
