package persistence

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"
)

// LookupTrack resolves a source track to its index entry in one read.
// ok is false when no mapping exists.
func (s *SQLiteStore) LookupTrack(ctx context.Context, platform, sourceTrackID string) (TrackIndex, bool, error) {
	rows, err := s.db.QueryContext(
		ctx,
		`SELECT t.id, t.musixmatch_track_id, t.last_accessed_at, l.format, l.object_key
		 FROM track_mappings m
		 JOIN tracks t ON t.id = m.track_id
		 LEFT JOIN lyrics l ON l.track_id = t.id
		 WHERE m.source_platform = ? AND m.source_track_id = ?
		 ORDER BY l.format`,
		platform,
		sourceTrackID,
	)
	if err != nil {
		return TrackIndex{}, false, err
	}
	defer rows.Close()

	var ret TrackIndex
	found := false
	for rows.Next() {
		var lastAccessed int64
		var format, objectKey sql.NullString
		if err := rows.Scan(&ret.TrackID, &ret.MusixmatchTrackID, &lastAccessed, &format, &objectKey); err != nil {
			return TrackIndex{}, false, err
		}
		found = true
		ret.LastAccessedAt = time.Unix(lastAccessed, 0).UTC()
		if format.Valid && objectKey.Valid {
			ret.Lyrics = append(ret.Lyrics, LyricRef{Format: format.String, ObjectKey: objectKey.String})
		}
	}
	if err := rows.Err(); err != nil {
		return TrackIndex{}, false, err
	}
	return ret, found, nil
}

// TouchTrack sets the last access time of a track.
func (s *SQLiteStore) TouchTrack(ctx context.Context, trackID int64, at time.Time) error {
	_, err := s.db.ExecContext(ctx, `UPDATE tracks SET last_accessed_at = ? WHERE id = ?`, at.Unix(), trackID)
	return err
}

// SaveLyric records a stored format for a source track. The track row is
// created when absent and left untouched otherwise; lyric and mapping rows are
// no-ops when the exact tuple already exists.
func (s *SQLiteStore) SaveLyric(ctx context.Context, rec LyricRecord, now time.Time) (err error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if _, err = tx.ExecContext(
		ctx,
		`INSERT INTO tracks (musixmatch_track_id, last_accessed_at) VALUES (?, ?)
		 ON CONFLICT(musixmatch_track_id) DO NOTHING`,
		rec.MusixmatchTrackID,
		now.Unix(),
	); err != nil {
		return fmt.Errorf("insert track: %w", err)
	}

	var trackID int64
	if err = tx.QueryRowContext(
		ctx,
		`SELECT id FROM tracks WHERE musixmatch_track_id = ?`,
		rec.MusixmatchTrackID,
	).Scan(&trackID); err != nil {
		return fmt.Errorf("select track: %w", err)
	}

	if _, err = tx.ExecContext(
		ctx,
		`INSERT INTO lyrics (track_id, format, object_key) VALUES (?, ?, ?)
		 ON CONFLICT(track_id, format) DO NOTHING`,
		trackID,
		rec.Format,
		rec.ObjectKey,
	); err != nil {
		return fmt.Errorf("insert lyric: %w", err)
	}

	if _, err = tx.ExecContext(
		ctx,
		`INSERT INTO track_mappings (source_platform, source_track_id, track_id) VALUES (?, ?, ?)
		 ON CONFLICT(source_platform, source_track_id) DO NOTHING`,
		rec.SourcePlatform,
		rec.SourceTrackID,
		trackID,
	); err != nil {
		return fmt.Errorf("insert mapping: %w", err)
	}

	return tx.Commit()
}

// ListStaleTracks returns up to limit tracks last accessed before cutoff, oldest first.
func (s *SQLiteStore) ListStaleTracks(ctx context.Context, cutoff time.Time, limit int) ([]StaleTrack, error) {
	rows, err := s.db.QueryContext(
		ctx,
		`SELECT t.id, t.musixmatch_track_id, t.last_accessed_at, l.object_key
		 FROM (SELECT id, musixmatch_track_id, last_accessed_at
		       FROM tracks
		       WHERE last_accessed_at < ?
		       ORDER BY last_accessed_at ASC, id ASC
		       LIMIT ?) t
		 LEFT JOIN lyrics l ON l.track_id = t.id
		 ORDER BY t.last_accessed_at ASC, t.id ASC`,
		cutoff.Unix(),
		limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	ret := make([]StaleTrack, 0)
	for rows.Next() {
		var id, mxmID, lastAccessed int64
		var objectKey sql.NullString
		if err := rows.Scan(&id, &mxmID, &lastAccessed, &objectKey); err != nil {
			return nil, err
		}
		if n := len(ret); n == 0 || ret[n-1].TrackID != id {
			ret = append(ret, StaleTrack{
				TrackID:           id,
				MusixmatchTrackID: mxmID,
				LastAccessedAt:    time.Unix(lastAccessed, 0).UTC(),
			})
		}
		if objectKey.Valid {
			last := &ret[len(ret)-1]
			last.ObjectKeys = append(last.ObjectKeys, objectKey.String)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return ret, nil
}

// DeleteTracks removes tracks with their lyrics and mappings.
func (s *SQLiteStore) DeleteTracks(ctx context.Context, trackIDs []int64) (deleted int64, err error) {
	if len(trackIDs) == 0 {
		return 0, nil
	}

	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(trackIDs)), ",")
	args := make([]any, len(trackIDs))
	for i, id := range trackIDs {
		args[i] = id
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if _, err = tx.ExecContext(ctx, `DELETE FROM lyrics WHERE track_id IN (`+placeholders+`)`, args...); err != nil {
		return 0, err
	}
	if _, err = tx.ExecContext(ctx, `DELETE FROM track_mappings WHERE track_id IN (`+placeholders+`)`, args...); err != nil {
		return 0, err
	}
	res, err := tx.ExecContext(ctx, `DELETE FROM tracks WHERE id IN (`+placeholders+`)`, args...)
	if err != nil {
		return 0, err
	}
	if deleted, err = res.RowsAffected(); err != nil {
		return 0, err
	}
	return deleted, tx.Commit()
}
