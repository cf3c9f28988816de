package localstore

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/angelmondragon/festpos/pkg/backoff"
	pkgerrors "github.com/angelmondragon/festpos/pkg/errors"
)

const maxBackoff = 30 * time.Second

type batchResult struct {
	processed int
	retrying  bool
}

// Run replays pending writes to the Remote until ctx ends. Retryable failures
// and refused credentials back off exponentially with no attempt cap; anything
// else rejects the write.
func (s *Store) Run(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}

	interval := s.pollInterval
	policy := backoff.Policy{Base: interval, Max: maxBackoff}
	delay := interval

	for {
		select {
		case <-ctx.Done():
			s.logg.Info(ctx, "local store replay stopped")
			return ctx.Err()
		default:
		}

		result, err := s.replayBatch(ctx)
		if err != nil {
			s.logg.Error(ctx, "local store replay batch error", err)
		}
		if err != nil || result.retrying {
			delay = policy.Next(delay)
			if err := backoff.Sleep(ctx, policy.WithJitter(delay), nil); err != nil {
				return err
			}
			continue
		}

		delay = interval

		if result.processed > 0 {
			continue
		}

		if err := backoff.Sleep(ctx, policy.WithJitter(interval), s.wake); err != nil {
			return err
		}
	}
}

func (s *Store) replayBatch(ctx context.Context) (batchResult, error) {
	var result batchResult
	start := s.clock.Now()
	defer func() {
		if result.processed > 0 {
			s.stats.ObserveBatch(s.clock.Now().Sub(start))
		}
	}()

	rows, err := s.fetchPending(ctx)
	if err != nil || len(rows) == 0 {
		return result, err
	}

	for _, row := range rows {
		doc := Document{Collection: row.Collection, ID: row.DocID, Data: []byte(row.Data)}
		fields := s.docFields(row)

		pushCtx, cancel := context.WithTimeout(ctx, s.pushTimeout)
		pushErr := s.remote.Push(pushCtx, doc)
		cancel()

		result.processed++
		switch {
		case pushErr == nil:
			if err := s.confirm(ctx, row); err != nil {
				return result, fmt.Errorf("confirm %s/%s: %w", row.Collection, row.DocID, err)
			}
			s.stats.IncPushed(row.Collection)
			s.logg.Debug(s.logg.WithFields(ctx, fields), "local document confirmed")
		case pkgerrors.IsRetryable(pushErr):
			fields["attempt_count"] = row.AttemptCount + 1
			ctxWithFields := s.logg.WithField(s.logg.WithFields(ctx, fields), "error", pushErr.Error())
			s.logg.Warn(ctxWithFields, "local document push failed")
			s.stats.IncRetried(row.Collection)
			if err := s.markFailed(ctx, row, pushErr); err != nil {
				return result, fmt.Errorf("mark failure %s/%s: %w", row.Collection, row.DocID, err)
			}
			// The remote is likely unreachable; keep order and wait out the backoff.
			result.retrying = true
			return result, nil
		case pkgerrors.IsCode(pushErr, pkgerrors.CodeUnauthorized):
			// The register's credential was refused, not the document. Hold the
			// queue until a fresh token is configured.
			fields["attempt_count"] = row.AttemptCount + 1
			ctxWithFields := s.logg.WithField(s.logg.WithFields(ctx, fields), "error", pushErr.Error())
			s.logg.Warn(ctxWithFields, "local document push unauthorized, holding queue")
			s.stats.IncRetried(row.Collection)
			if err := s.markFailed(ctx, row, pushErr); err != nil {
				return result, fmt.Errorf("mark failure %s/%s: %w", row.Collection, row.DocID, err)
			}
			result.retrying = true
			return result, nil
		default:
			ctxWithFields := s.logg.WithField(s.logg.WithFields(ctx, fields), "error", pushErr.Error())
			s.logg.Warn(ctxWithFields, "local document rejected by remote")
			s.stats.IncRejected(row.Collection)
			if err := s.reject(ctx, row, pushErr); err != nil {
				return result, fmt.Errorf("reject %s/%s: %w", row.Collection, row.DocID, err)
			}
		}
	}
	return result, nil
}

func (s *Store) fetchPending(ctx context.Context) ([]localDocument, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, nil
	}
	var rows []localDocument
	err := s.db.WithContext(ctx).
		Where("pending = ?", true).
		Order("updated_at ASC").
		Limit(s.batchSize).
		Find(&rows).Error
	return rows, err
}

func (s *Store) confirm(ctx context.Context, row localDocument) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := docKey{collection: row.Collection, id: row.DocID}

	res := s.db.WithContext(ctx).
		Model(&localDocument{}).
		Where("collection = ? AND doc_id = ? AND generation = ?", row.Collection, row.DocID, row.Generation).
		Updates(map[string]any{"pending": false, "attempt_count": 0, "last_error": nil})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 1 {
		row.Pending = false
		row.AttemptCount = 0
		row.LastError = nil
		s.notifyLocked(key, row.snapshot())
	}
	s.resolveLocked(key, row.Generation, nil)
	s.notifyCountLocked(ctx, row.Collection)
	return nil
}

func (s *Store) markFailed(ctx context.Context, row localDocument, cause error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	msg := cause.Error()
	return s.db.WithContext(ctx).
		Model(&localDocument{}).
		Where("collection = ? AND doc_id = ? AND generation = ?", row.Collection, row.DocID, row.Generation).
		Updates(map[string]any{
			"attempt_count": gorm.Expr("attempt_count + 1"),
			"last_error":    msg,
		}).Error
}

func (s *Store) reject(ctx context.Context, row localDocument, cause error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := docKey{collection: row.Collection, id: row.DocID}

	res := s.db.WithContext(ctx).
		Where("collection = ? AND doc_id = ? AND generation = ?", row.Collection, row.DocID, row.Generation).
		Delete(&localDocument{})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 1 {
		s.notifyLocked(key, Snapshot{Collection: row.Collection, ID: row.DocID})
	}
	s.resolveLocked(key, row.Generation, cause)
	s.notifyCountLocked(ctx, row.Collection)
	return nil
}

func (s *Store) docFields(row localDocument) map[string]any {
	fields := map[string]any{
		"collection":    row.Collection,
		"doc_id":        row.DocID,
		"generation":    row.Generation,
		"attempt_count": row.AttemptCount,
		"batch_size":    s.batchSize,
	}
	if row.LastError != nil {
		fields["last_error"] = *row.LastError
	}
	return fields
}
