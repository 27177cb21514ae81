package db

import (
	"fmt"
	"log"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
)

// Connect initializes the database connection and runs migrations.
func Connect(dsn string) (*sqlx.DB, error) {
	db, err := sqlx.Connect("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("connect db: %w", err)
	}

	if err := runMigrations(db); err != nil {
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return db, nil
}

func runMigrations(db *sqlx.DB) error {
	migrations := []string{
		`CREATE TABLE IF NOT EXISTS chats (
            id TEXT PRIMARY KEY,
            users TEXT[] NOT NULL,
            program_id TEXT NOT NULL,
            program_title TEXT NOT NULL DEFAULT '',
            last_message TEXT NOT NULL DEFAULT '',
            created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
        );`,
		`CREATE TABLE IF NOT EXISTS messages (
            id BIGSERIAL PRIMARY KEY,
            chat_id TEXT NOT NULL REFERENCES chats(id) ON DELETE CASCADE,
            sender_email TEXT NOT NULL,
            text TEXT NOT NULL DEFAULT '',
            link TEXT NOT NULL DEFAULT '',
            media_type TEXT NOT NULL DEFAULT '',
            storage_path TEXT NOT NULL DEFAULT '',
            media_name TEXT NOT NULL DEFAULT '',
            media_mime TEXT NOT NULL DEFAULT '',
            created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
        );`,
		`CREATE INDEX IF NOT EXISTS idx_messages_chat_order
            ON messages (chat_id, created_at, id);`,
		`CREATE INDEX IF NOT EXISTS idx_chats_users ON chats USING GIN (users);`,
	}

	for _, m := range migrations {
		if _, err := db.Exec(m); err != nil {
			return err
		}
	}
	log.Println("database migrations applied")
	return nil
}
