package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// Store is the durable collaborator behind the queue engine and the playback
// coordinator. Missing records are reported as nil values with a nil error.
type Store interface {
	GetTeamByID(ctx context.Context, id string) (*Team, error)
	// UpdateTeam persists name and playback fields.
	UpdateTeam(ctx context.Context, id string, t Team) (*Team, error)
	// GetSongsForTeam returns songs ordered by index. A nil slice means the
	// team does not exist; an empty slice means it has no songs.
	GetSongsForTeam(ctx context.Context, teamID string) ([]Song, error)

	CreateTeam(ctx context.Context, name, createdBy string) (*Team, error)
	AddSong(ctx context.Context, teamID string, in NewSong) (*Song, error)
	DeleteSong(ctx context.Context, teamID, songID string) (*Song, error)
	MoveSong(ctx context.Context, teamID, songID string, newIndex int) (*MoveResult, error)
	ListPlayingTeams(ctx context.Context) ([]string, error)
}

// DB is implemented by *pgxpool.Pool and by pgxmock pools in tests.
type DB interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	BeginTx(ctx context.Context, txOptions pgx.TxOptions) (pgx.Tx, error)
}

type PostgresStore struct {
	db DB
}

func NewPostgresStore(db DB) *PostgresStore {
	return &PostgresStore{db: db}
}

const teamColumns = `id, name, created_by, created_at,
       current_song_index, is_playing, started_at, elapsed_seconds, updated_at`

const songColumns = `id, team_id, title, artist, link, song_index, rating,
       added_by, duration_seconds, thumbnail_url, added_at`

func scanTeam(row pgx.Row) (*Team, error) {
	var t Team
	var startedAt *time.Time
	err := row.Scan(
		&t.ID, &t.Name, &t.CreatedBy, &t.CreatedAt,
		&t.CurrentSongIndex, &t.IsPlaying, &startedAt, &t.ElapsedSeconds, &t.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	t.StartedAtUTC = startedAt
	return &t, nil
}

func scanSong(row pgx.Row) (Song, error) {
	var s Song
	err := row.Scan(
		&s.ID, &s.TeamID, &s.Title, &s.Artist, &s.Link, &s.Index, &s.Rating,
		&s.AddedBy, &s.Duration, &s.Thumbnail, &s.AddedAt,
	)
	return s, err
}

// notFound reports whether err means "no such record". Malformed uuids are
// treated as absent ids rather than failures.
func notFound(err error) bool {
	if errors.Is(err, pgx.ErrNoRows) {
		return true
	}
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "22P02"
}

func (s *PostgresStore) CreateTeam(ctx context.Context, name, createdBy string) (*Team, error) {
	t, err := scanTeam(s.db.QueryRow(ctx, `
        INSERT INTO teams (name, created_by)
        VALUES ($1, $2)
        RETURNING `+teamColumns, name, createdBy))
	if err != nil {
		return nil, fmt.Errorf("create team: %w", err)
	}
	return t, nil
}

func (s *PostgresStore) GetTeamByID(ctx context.Context, id string) (*Team, error) {
	t, err := scanTeam(s.db.QueryRow(ctx, `SELECT `+teamColumns+` FROM teams WHERE id = $1`, id))
	if notFound(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get team %s: %w", id, err)
	}
	return t, nil
}

func (s *PostgresStore) UpdateTeam(ctx context.Context, id string, t Team) (*Team, error) {
	var startedAt *time.Time
	if t.IsPlaying && t.StartedAtUTC != nil {
		utc := t.StartedAtUTC.UTC()
		startedAt = &utc
	}
	updated, err := scanTeam(s.db.QueryRow(ctx, `
        UPDATE teams
        SET name = $2,
            current_song_index = $3,
            is_playing = $4,
            started_at = $5,
            elapsed_seconds = $6,
            updated_at = now()
        WHERE id = $1
        RETURNING `+teamColumns,
		id, t.Name, t.CurrentSongIndex, t.IsPlaying && startedAt != nil, startedAt, t.ElapsedSeconds))
	if notFound(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("update team %s: %w", id, err)
	}
	return updated, nil
}

func (s *PostgresStore) GetSongsForTeam(ctx context.Context, teamID string) ([]Song, error) {
	var exists bool
	err := s.db.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM teams WHERE id = $1)`, teamID).Scan(&exists)
	if notFound(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("check team %s: %w", teamID, err)
	}
	if !exists {
		return nil, nil
	}

	rows, err := s.db.Query(ctx, `
        SELECT `+songColumns+`
        FROM songs
        WHERE team_id = $1
        ORDER BY song_index ASC`, teamID)
	if err != nil {
		return nil, fmt.Errorf("list songs %s: %w", teamID, err)
	}
	defer rows.Close()

	songs := make([]Song, 0)
	for rows.Next() {
		song, err := scanSong(rows)
		if err != nil {
			return nil, fmt.Errorf("scan song: %w", err)
		}
		songs = append(songs, song)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list songs %s: %w", teamID, err)
	}
	return songs, nil
}

// lockTeam takes the team row lock inside tx and returns its pointer and song count.
func lockTeam(ctx context.Context, tx pgx.Tx, teamID string) (current, total int, err error) {
	err = tx.QueryRow(ctx, `
        SELECT current_song_index
        FROM teams
        WHERE id = $1
        FOR UPDATE`, teamID).Scan(&current)
	if err != nil {
		return 0, 0, err
	}
	err = tx.QueryRow(ctx, `SELECT COUNT(*) FROM songs WHERE team_id = $1`, teamID).Scan(&total)
	return current, total, err
}

// AddSong appends the song, or inserts it at in.Index shifting later songs by
// one. The team pointer keeps referencing the same song.
func (s *PostgresStore) AddSong(ctx context.Context, teamID string, in NewSong) (*Song, error) {
	tx, err := s.db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return nil, fmt.Errorf("add song begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	current, total, err := lockTeam(ctx, tx, teamID)
	if notFound(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("add song lock team: %w", err)
	}

	idx := total
	if in.Index != nil && *in.Index >= 0 && *in.Index < total {
		idx = *in.Index
	}

	if idx < total {
		if _, err := tx.Exec(ctx, `
            UPDATE songs
            SET song_index = song_index + 1
            WHERE team_id = $1 AND song_index >= $2`, teamID, idx); err != nil {
			return nil, fmt.Errorf("add song shift: %w", err)
		}
	}

	song, err := scanSong(tx.QueryRow(ctx, `
        INSERT INTO songs (team_id, title, artist, link, song_index, added_by, duration_seconds, thumbnail_url)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
        RETURNING `+songColumns,
		teamID, in.Title, in.Artist, in.Link, idx, in.AddedBy, in.Duration, in.Thumbnail))
	if err != nil {
		return nil, fmt.Errorf("add song insert: %w", err)
	}

	if idx <= current && current < total {
		if _, err := tx.Exec(ctx, `
            UPDATE teams SET current_song_index = $2, updated_at = now() WHERE id = $1`,
			teamID, current+1); err != nil {
			return nil, fmt.Errorf("add song move pointer: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("add song commit: %w", err)
	}
	return &song, nil
}

// DeleteSong removes the song and compacts later indices. Removing the current
// song leaves the pointer on its successor and stops the clock at zero.
func (s *PostgresStore) DeleteSong(ctx context.Context, teamID, songID string) (*Song, error) {
	tx, err := s.db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return nil, fmt.Errorf("delete song begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	current, total, err := lockTeam(ctx, tx, teamID)
	if notFound(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("delete song lock team: %w", err)
	}

	song, err := scanSong(tx.QueryRow(ctx, `
        DELETE FROM songs
        WHERE id = $1 AND team_id = $2
        RETURNING `+songColumns, songID, teamID))
	if notFound(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("delete song: %w", err)
	}

	if _, err := tx.Exec(ctx, `
        UPDATE songs
        SET song_index = song_index - 1
        WHERE team_id = $1 AND song_index > $2`, teamID, song.Index); err != nil {
		return nil, fmt.Errorf("delete song compact: %w", err)
	}

	remaining := total - 1
	switch {
	case song.Index < current:
		_, err = tx.Exec(ctx, `
            UPDATE teams SET current_song_index = $2, updated_at = now() WHERE id = $1`,
			teamID, current-1)
	case song.Index == current:
		next := current
		if next > remaining-1 {
			next = max(remaining-1, 0)
		}
		_, err = tx.Exec(ctx, `
            UPDATE teams
            SET current_song_index = $2,
                is_playing = FALSE,
                started_at = NULL,
                elapsed_seconds = 0,
                updated_at = now()
            WHERE id = $1`, teamID, next)
	}
	if err != nil {
		return nil, fmt.Errorf("delete song move pointer: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("delete song commit: %w", err)
	}
	return &song, nil
}

// MoveSong reorders a song within its team. newIndex is clamped to the last
// position. The pointer follows whichever song it referenced before the move.
func (s *PostgresStore) MoveSong(ctx context.Context, teamID, songID string, newIndex int) (*MoveResult, error) {
	tx, err := s.db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return nil, fmt.Errorf("move song begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	current, total, err := lockTeam(ctx, tx, teamID)
	if notFound(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("move song lock team: %w", err)
	}

	var from int
	err = tx.QueryRow(ctx, `
        SELECT song_index
        FROM songs
        WHERE id = $1 AND team_id = $2
        FOR UPDATE`, songID, teamID).Scan(&from)
	if notFound(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("move song fetch: %w", err)
	}

	to := newIndex
	if to < 0 {
		to = 0
	}
	if to >= total {
		to = total - 1
	}
	res := &MoveResult{SongID: songID, From: from, To: to}
	if to == from {
		if err := tx.Commit(ctx); err != nil {
			return nil, fmt.Errorf("move song commit noop: %w", err)
		}
		return res, nil
	}

	if to > from {
		_, err = tx.Exec(ctx, `
            UPDATE songs
            SET song_index = song_index - 1
            WHERE team_id = $1
              AND song_index > $2
              AND song_index <= $3`, teamID, from, to)
	} else {
		_, err = tx.Exec(ctx, `
            UPDATE songs
            SET song_index = song_index + 1
            WHERE team_id = $1
              AND song_index >= $3
              AND song_index < $2`, teamID, from, to)
	}
	if err != nil {
		return nil, fmt.Errorf("move song shift: %w", err)
	}

	if _, err := tx.Exec(ctx, `
        UPDATE songs SET song_index = $3 WHERE id = $2 AND team_id = $1`,
		teamID, songID, to); err != nil {
		return nil, fmt.Errorf("move song set index: %w", err)
	}

	if next := FollowPointer(current, from, to); next != current {
		if _, err := tx.Exec(ctx, `
            UPDATE teams SET current_song_index = $2, updated_at = now() WHERE id = $1`,
			teamID, next); err != nil {
			return nil, fmt.Errorf("move song move pointer: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("move song commit: %w", err)
	}
	return res, nil
}

// FollowPointer returns where the pointer must land after the song at from is
// moved to to, so that it still references the same song.
func FollowPointer(current, from, to int) int {
	switch {
	case current == from:
		return to
	case from < current && to >= current:
		return current - 1
	case from > current && to <= current:
		return current + 1
	}
	return current
}

func (s *PostgresStore) ListPlayingTeams(ctx context.Context) ([]string, error) {
	rows, err := s.db.Query(ctx, `SELECT id FROM teams WHERE is_playing`)
	if err != nil {
		return nil, fmt.Errorf("list playing teams: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan playing team: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}
