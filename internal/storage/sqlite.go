package storage

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"
	_ "modernc.org/sqlite"

	"tlplay/internal/media"
)

type SQLiteStorage struct {
	db     *sql.DB
	logger zerolog.Logger
}

func NewSQLiteStorage(dbPath string, logger zerolog.Logger) (*SQLiteStorage, error) {
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, err
	}

	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	s := &SQLiteStorage{
		db:     db,
		logger: logger.With().Str("component", "storage").Logger(),
	}

	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate %s: %w", dbPath, err)
	}

	s.logger.Debug().Str("path", dbPath).Msg("storage opened")
	return s, nil
}

func (s *SQLiteStorage) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS media_info (
		path TEXT PRIMARY KEY,
		size INTEGER NOT NULL,
		mod_time INTEGER NOT NULL,
		info TEXT NOT NULL,
		updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);

	CREATE INDEX IF NOT EXISTS idx_media_info_updated ON media_info(updated_at DESC);

	CREATE TABLE IF NOT EXISTS playback_states (
		timeline TEXT PRIMARY KEY,
		frame INTEGER NOT NULL,
		in_frame INTEGER NOT NULL,
		out_frame INTEGER NOT NULL,
		loop TEXT NOT NULL,
		updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);
	`

	_, err := s.db.Exec(schema)
	return err
}

func (s *SQLiteStorage) Close() error {
	return s.db.Close()
}

// Media info

// GetInfo returns the cached info of path when it was probed at the same
// size and modification time.
func (s *SQLiteStorage) GetInfo(path string, size, modTime int64) (media.Info, bool, error) {
	row := s.db.QueryRow(`
		SELECT info FROM media_info WHERE path = ? AND size = ? AND mod_time = ?
	`, path, size, modTime)

	var data string
	err := row.Scan(&data)
	if err == sql.ErrNoRows {
		return media.Info{}, false, nil
	}
	if err != nil {
		return media.Info{}, false, err
	}

	var info media.Info
	if err := json.Unmarshal([]byte(data), &info); err != nil {
		return media.Info{}, false, fmt.Errorf("decode info of %s: %w", path, err)
	}
	return info, true, nil
}

// PutInfo stores info for path, replacing any older version.
func (s *SQLiteStorage) PutInfo(path string, size, modTime int64, info media.Info) error {
	data, err := json.Marshal(info)
	if err != nil {
		return err
	}
	_, err = s.db.Exec(`
		INSERT INTO media_info (path, size, mod_time, info, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(path) DO UPDATE SET
			size = excluded.size,
			mod_time = excluded.mod_time,
			info = excluded.info,
			updated_at = excluded.updated_at
	`, path, size, modTime, string(data), time.Now())
	return err
}

// ListInfo returns cached probe results, most recent first.
func (s *SQLiteStorage) ListInfo(limit int) ([]InfoRecord, error) {
	rows, err := s.db.Query(`
		SELECT path, size, mod_time, info, updated_at
		FROM media_info ORDER BY updated_at DESC, path LIMIT ?
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []InfoRecord
	for rows.Next() {
		var r InfoRecord
		var data string
		if err := rows.Scan(&r.Path, &r.Size, &r.ModTime, &data, &r.UpdatedAt); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(data), &r.Info); err != nil {
			s.logger.Warn().Err(err).Str("path", r.Path).Msg("skipping undecodable info")
			continue
		}
		records = append(records, r)
	}

	return records, rows.Err()
}

func (s *SQLiteStorage) DeleteInfo(path string) error {
	_, err := s.db.Exec("DELETE FROM media_info WHERE path = ?", path)
	return err
}

// ClearInfo forgets every cached probe result and reports how many there were.
func (s *SQLiteStorage) ClearInfo() (int64, error) {
	res, err := s.db.Exec("DELETE FROM media_info")
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// Playback State methods

// SavePlaybackState saves or updates where a timeline was left.
func (s *SQLiteStorage) SavePlaybackState(state *PlaybackState) error {
	_, err := s.db.Exec(`
		INSERT INTO playback_states (timeline, frame, in_frame, out_frame, loop, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(timeline) DO UPDATE SET
			frame = excluded.frame,
			in_frame = excluded.in_frame,
			out_frame = excluded.out_frame,
			loop = excluded.loop,
			updated_at = excluded.updated_at
	`, state.Timeline, state.Frame, state.InFrame, state.OutFrame, state.Loop, time.Now())
	return err
}

// GetPlaybackState returns the saved state of a timeline, nil when none.
func (s *SQLiteStorage) GetPlaybackState(timeline string) (*PlaybackState, error) {
	row := s.db.QueryRow(`
		SELECT timeline, frame, in_frame, out_frame, loop, updated_at
		FROM playback_states WHERE timeline = ?
	`, timeline)

	var state PlaybackState
	err := row.Scan(&state.Timeline, &state.Frame, &state.InFrame, &state.OutFrame, &state.Loop, &state.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	return &state, nil
}
