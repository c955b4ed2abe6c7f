package syncstore

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/roach88/notelog/internal/bundle"
	"github.com/roach88/notelog/internal/notes"
	"github.com/roach88/notelog/internal/remote"
	"github.com/roach88/notelog/internal/statedb"
)

// FlushOfflineChanges uploads the offline queue as one bundle and empties
// it. It returns the number of records delivered. The queue is only emptied
// after the remote accepted the upload, so a failed flush can be retried
// and the remote may see the same records more than once.
func (s *Store) FlushOfflineChanges(ctx context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.flush(ctx)
}

func (s *Store) flush(ctx context.Context) (int, error) {
	if s.offline.IsEmpty() {
		return 0, nil
	}
	if err := s.remote.Ping(ctx); err != nil {
		return 0, fmt.Errorf("%w: %w", ErrOffline, err)
	}

	b, err := bundle.FromLog(s.offline.Log())
	if err != nil {
		return 0, fmt.Errorf("bundle offline queue: %w", err)
	}
	n := s.offline.Len()
	if err := s.remote.UploadOfflineChanges(ctx, b); err != nil {
		return 0, err
	}
	if err := s.offline.Reset(); err != nil {
		return n, fmt.Errorf("reset offline queue: %w", err)
	}
	s.logger.Info("flushed offline changes", "records", n, "bytes", len(b))

	upload := statedb.Upload{ID: uuid.NewString(), Records: n, Bytes: len(b)}
	if err := s.state.RecordUpload(ctx, upload); err != nil {
		s.logger.Warn("recording upload failed", "id", upload.ID, "error", err)
	}
	if err := s.refresh(ctx); err != nil {
		s.logger.Warn("refreshing notes after flush failed", "error", err)
	}
	return n, nil
}

// GetAllNotes returns the live notes. The list held locally is returned as
// is unless force is set or there is none yet; otherwise the remote is asked
// for changes since the last seen change id. When the remote fails and a
// local list exists, that list is returned.
//
// Mutations still in the offline queue are applied on top of the remote
// list.
func (s *Store) GetAllNotes(ctx context.Context, force bool) ([]notes.Note, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.loaded && !force {
		return cloneNotes(s.snap.Notes), nil
	}
	if err := s.refresh(ctx); err != nil {
		if !s.loaded {
			return nil, fmt.Errorf("%w: notes: %w", ErrUnavailable, err)
		}
		s.logger.Warn("refreshing notes failed, using local list", "error", err)
	}
	return cloneNotes(s.snap.Notes), nil
}

func (s *Store) refresh(ctx context.Context) error {
	var since int64
	if s.loaded {
		since = s.snap.LastChangeID
	}

	list, err := s.remote.GetNotes(ctx, since)
	if errors.Is(err, remote.ErrNotModified) {
		if !s.loaded {
			s.snap = statedb.Snapshot{
				LastChangeID: since,
				Notes:        applyQueued(nil, s.offline.Log().Records(), s.logger),
			}
			s.loaded = true
			s.persist(ctx)
		}
		return nil
	}
	if err != nil {
		return err
	}

	s.snap = statedb.Snapshot{
		LastChangeID: list.LastChangeID,
		Notes:        applyQueued(list.Notes, s.offline.Log().Records(), s.logger),
	}
	s.loaded = true
	s.persist(ctx)
	s.logger.Debug("notes refreshed", "since", since, "lastChangeId", list.LastChangeID, "notes", len(list.Notes))

	if err := s.cacheLatestNoteVersions(ctx); err != nil {
		s.logger.Warn("caching latest note versions failed", "error", err)
	}
	return nil
}

// CacheLatestNoteVersions fetches the current version of every known note
// that is not cached yet, in one request.
func (s *Store) CacheLatestNoteVersions(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cacheLatestNoteVersions(ctx)
}

func (s *Store) cacheLatestNoteVersions(ctx context.Context) error {
	var missing []string
	for _, n := range s.snap.Notes {
		if v := n.CurrentVersionID(); v != "" && !s.cache.Has(v) {
			missing = append(missing, v)
		}
	}
	if len(missing) == 0 {
		return nil
	}

	blobs, err := s.remote.GetNotesMultiContent(ctx, missing)
	if err != nil {
		return err
	}
	for _, b := range blobs {
		if err := s.cache.Put(b.VersionID, b.Data, b.Encrypted); err != nil {
			return err
		}
	}
	s.logger.Debug("cached latest versions", "requested", len(missing), "received", len(blobs))
	return nil
}

// mirror applies a local write to the note list and persists it. Without a
// list there is nothing to keep in step; the next refresh picks the write up.
func (s *Store) mirror(ctx context.Context, fn func([]notes.Note) []notes.Note) {
	if !s.loaded {
		return
	}
	s.snap.Notes = fn(s.snap.Notes)
	s.persist(ctx)
}

func (s *Store) persist(ctx context.Context) {
	if err := s.state.SaveSnapshot(ctx, s.snap); err != nil {
		s.logger.Warn("saving notes snapshot failed", "error", err)
	}
}
