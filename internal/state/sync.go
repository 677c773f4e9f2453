package state

import (
	"context"
	"log/slog"

	"github.com/fraser29/zfmrf/pkg/core"
	"github.com/fraser29/zfmrf/pkg/subject"
)

// SyncIndex reconciles the index with the subject directories on disk:
// every directory matching the ID scheme is upserted and rows whose
// directories are gone are deleted. Returns the number of indexed subjects.
func SyncIndex(ctx context.Context, st core.Store, root, prefix string, logger *slog.Logger) (int, error) {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	ids, err := subject.List(root, prefix)
	if err != nil {
		return 0, err
	}

	indexed := 0
	onDisk := make(map[string]bool, len(ids))
	for _, id := range ids {
		if err := ctx.Err(); err != nil {
			return indexed, err
		}
		onDisk[id] = true

		rec, err := subject.New(root, id).Record()
		if err != nil {
			logger.Warn("skipping unreadable subject", "subject", id, "error", err)
			continue
		}
		if err := st.UpsertSubject(rec); err != nil {
			return indexed, err
		}
		indexed++
	}

	rows, err := st.ListSubjects()
	if err != nil {
		return indexed, err
	}
	for _, row := range rows {
		if onDisk[row.SubjectID] {
			continue
		}
		logger.Info("removing index row for missing subject", "subject", row.SubjectID)
		if err := st.DeleteSubject(row.SubjectID); err != nil {
			return indexed, err
		}
	}

	logger.Debug("index synced", "root", root, "subjects", indexed)
	return indexed, nil
}
