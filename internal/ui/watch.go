package ui

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/fraser29/zfmrf/internal/ui/notify"
	"github.com/fraser29/zfmrf/pkg/core"
	"github.com/fraser29/zfmrf/pkg/subject"
)

// watchFiles watches the data root for subject changes and reindexes the
// affected subjects after a debounce interval.
func (s *Server) watchFiles(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer func() { _ = watcher.Close() }()

	if err := s.addSubjectWatches(watcher); err != nil {
		s.logger.Error("failed to watch data root", "error", err)
		// Don't fail - continue without watching
	}

	var (
		mu    sync.Mutex
		dirty = make(map[string]bool)
		timer *time.Timer
	)

	flush := func() {
		mu.Lock()
		changed := dirty
		dirty = make(map[string]bool)
		mu.Unlock()

		for id := range changed {
			s.reindexSubject(id)
		}
		if rows, err := s.cfg.Store.ListSubjects(); err == nil {
			s.metrics.SetSubjectsIndexed(len(rows))
		}
		for id := range changed {
			s.hub.Broadcast(notify.Event{SubjectID: id})
		}
	}

	for {
		select {
		case <-ctx.Done():
			return nil

		case event := <-watcher.Events:
			if event.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Remove|fsnotify.Rename) == 0 {
				continue
			}
			rel, ok := s.relPath(event.Name)
			if !ok {
				continue
			}

			// New subject directories and their layout dirs need watches of
			// their own.
			if event.Op&fsnotify.Create != 0 && shouldWatch(rel) {
				if info, statErr := os.Stat(event.Name); statErr == nil && info.IsDir() {
					_ = watcher.Add(event.Name)
				}
			}

			if !relevantChange(rel) {
				continue
			}
			s.metrics.IncWatchEvents()
			id := strings.Split(rel, string(filepath.Separator))[0]

			mu.Lock()
			dirty[id] = true
			if timer != nil {
				timer.Stop()
			}
			timer = time.AfterFunc(s.cfg.Debounce, flush)
			mu.Unlock()

		case err := <-watcher.Errors:
			s.logger.Error("watcher error", "error", err)
		}
	}
}

// addSubjectWatches registers the data root and the fixed layout levels of
// each subject. The tree below RAW/DICOM is not watched file-by-file; the
// debounced reindex recounts RAW/DICOM wholesale.
func (s *Server) addSubjectWatches(watcher *fsnotify.Watcher) error {
	if err := watcher.Add(s.cfg.DataRoot); err != nil {
		return err
	}
	ids, err := subject.List(s.cfg.DataRoot, s.cfg.SubjectPrefix)
	if err != nil {
		return err
	}
	for _, id := range ids {
		sub := subject.New(s.cfg.DataRoot, id)
		for _, dir := range []string{sub.Path(), sub.RawDir(), sub.MetaDir(), sub.DICOMDir()} {
			if _, statErr := os.Stat(dir); statErr == nil {
				_ = watcher.Add(dir)
			}
		}
	}
	return nil
}

// relPath maps an event path to a path relative to the data root, rejecting
// anything that is not under a subject directory.
func (s *Server) relPath(path string) (string, bool) {
	rel, err := filepath.Rel(s.cfg.DataRoot, path)
	if err != nil || rel == "." || strings.HasPrefix(rel, "..") {
		return "", false
	}
	id := strings.Split(rel, string(filepath.Separator))[0]
	if !subject.IsValidID(id, s.cfg.SubjectPrefix) {
		return "", false
	}
	return rel, true
}

// shouldWatch reports whether a created directory belongs to the watched
// layout levels.
func shouldWatch(rel string) bool {
	parts := strings.Split(rel, string(filepath.Separator))
	switch len(parts) {
	case 1:
		return true
	case 2:
		return parts[1] == subject.DirRaw || parts[1] == subject.DirMeta
	case 3:
		return parts[1] == subject.DirRaw && parts[2] == subject.DirDICOM
	default:
		return false
	}
}

// relevantChange reports whether an event should trigger a reindex. Meta
// documents and anything under RAW count; the subject log does not.
func relevantChange(rel string) bool {
	parts := strings.Split(rel, string(filepath.Separator))
	if len(parts) == 1 {
		return true
	}
	switch parts[1] {
	case subject.DirMeta:
		return len(parts) == 2 || filepath.Ext(rel) == ".json"
	case subject.DirRaw:
		return true
	}
	return false
}

// reindexSubject refreshes one subject's index row from disk, removing the
// row when the directory is gone.
func (s *Server) reindexSubject(id string) {
	sub := subject.New(s.cfg.DataRoot, id)
	if !sub.Exists() {
		if err := s.cfg.Store.DeleteSubject(id); err != nil && !errors.Is(err, core.ErrSubjectNotFound) {
			s.logger.Error("could not drop index row", "subject", id, "error", err)
		}
		return
	}
	rec, err := sub.Record()
	if err != nil {
		s.logger.Warn("could not read subject for reindex", "subject", id, "error", err)
		return
	}
	if err := s.cfg.Store.UpsertSubject(rec); err != nil {
		s.logger.Error("could not reindex subject", "subject", id, "error", err)
		return
	}
	s.logger.Debug("reindexed subject", "subject", id)
}
