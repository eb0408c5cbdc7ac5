package store

import (
	"context"
	"log"
)

func AutoMigrate(ctx context.Context, db DB) error {
	if _, err := db.Exec(ctx, `CREATE EXTENSION IF NOT EXISTS pgcrypto`); err != nil {
		log.Printf("migrate queue-service: pgcrypto: %v", err)
	}

	_, err := db.Exec(ctx, `
      CREATE TABLE IF NOT EXISTS teams (
          id                 uuid PRIMARY KEY DEFAULT gen_random_uuid(),
          name               TEXT NOT NULL,
          created_by         TEXT NOT NULL DEFAULT '',
          created_at         TIMESTAMPTZ NOT NULL DEFAULT now(),
          current_song_index INT NOT NULL DEFAULT 0,
          is_playing         BOOLEAN NOT NULL DEFAULT FALSE,
          started_at         TIMESTAMPTZ,
          elapsed_seconds    DOUBLE PRECISION NOT NULL DEFAULT 0,
          updated_at         TIMESTAMPTZ NOT NULL DEFAULT now(),
          CONSTRAINT teams_started_iff_playing CHECK (is_playing = (started_at IS NOT NULL))
      )
    `)
	if err != nil {
		log.Printf("migrate queue-service: %v", err)
		return err
	}

	// song_index shifts touch many rows in one statement, so uniqueness is
	// checked at commit.
	if _, err := db.Exec(ctx, `
      CREATE TABLE IF NOT EXISTS songs (
          id               uuid PRIMARY KEY DEFAULT gen_random_uuid(),
          team_id          uuid NOT NULL REFERENCES teams(id) ON DELETE CASCADE,
          title            TEXT NOT NULL,
          artist           TEXT NOT NULL DEFAULT '',
          link             TEXT NOT NULL DEFAULT '',
          song_index       INT NOT NULL,
          rating           INT NOT NULL DEFAULT 0,
          added_by         TEXT NOT NULL DEFAULT '',
          duration_seconds INT NOT NULL DEFAULT 0,
          thumbnail_url    TEXT NOT NULL DEFAULT '',
          added_at         TIMESTAMPTZ NOT NULL DEFAULT now(),
          CONSTRAINT songs_team_index_key UNIQUE (team_id, song_index) DEFERRABLE INITIALLY DEFERRED
      )
    `); err != nil {
		return err
	}

	if _, err := db.Exec(ctx, `
      CREATE INDEX IF NOT EXISTS idx_teams_playing ON teams(is_playing) WHERE is_playing
    `); err != nil {
		return err
	}

	return nil
}
