package core

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/google/uuid"

	"plancore/internal/blob"
	"plancore/pkg/domain"
)

// checkpointArtifactKey returns the archive key for a checkpoint snapshot.
func checkpointArtifactKey(planID, checkpointID string) string {
	return fmt.Sprintf("checkpoints/%s/%s.json", planID, checkpointID)
}

// CreateCheckpoint captures the fully hydrated plan as a named checkpoint.
// The checkpoint records the id of the newest log entry it subsumes; the
// hydrated document also replaces the stored row so the row never lags a
// checkpoint. When an archive is configured the snapshot is additionally
// written there before the checkpoint is committed.
func (s *Service) CreateCheckpoint(ctx context.Context, planID, name string) (CheckpointMetadata, error) {
	var meta CheckpointMetadata
	err := s.instrument(ctx, "create_checkpoint", func(ctx context.Context) error {
		lock := s.planLock(planID)
		lock.Lock()
		defer lock.Unlock()
		var err error
		meta, err = s.createCheckpoint(ctx, planID, name)
		return err
	})
	if err != nil {
		return CheckpointMetadata{}, err
	}
	return meta, nil
}

func (s *Service) createCheckpoint(ctx context.Context, planID, name string) (CheckpointMetadata, error) {
	doc, err := s.hydrate(ctx, planID)
	if err != nil {
		return CheckpointMetadata{}, err
	}

	meta := CheckpointMetadata{
		ID:        uuid.NewString(),
		Name:      name,
		CreatedAt: time.Now().UTC(),
	}

	if s.archive != nil {
		key := checkpointArtifactKey(planID, meta.ID)
		payload, err := json.Marshal(doc)
		if err != nil {
			return CheckpointMetadata{}, err
		}
		_, err = s.archive.Put(ctx, key, bytes.NewReader(payload), blob.PutOptions{
			ContentType: "application/json",
			Metadata:    map[string]string{"plan_id": planID, "checkpoint_name": name},
		})
		if err != nil {
			return CheckpointMetadata{}, fmt.Errorf("archive checkpoint: %w", err)
		}
		meta.ArtifactKey = key
	}

	err = s.store.RunInTransaction(ctx, func(tx Transaction) error {
		if _, ok := tx.GetPlan(planID); !ok {
			return domain.ErrNotFound{Entity: "plan", ID: planID}
		}
		if last, ok := tx.LastPatch(planID); ok {
			meta.LastPatchID = last.ID
		}
		if err := tx.PutPlan(doc); err != nil {
			return err
		}
		return tx.PutCheckpoint(planID, Checkpoint{Metadata: meta, State: doc})
	})
	if err != nil {
		if s.archive != nil && meta.ArtifactKey != "" {
			if _, derr := s.archive.Delete(ctx, meta.ArtifactKey); derr != nil {
				s.logger.Warn("orphaned checkpoint artifact", "key", meta.ArtifactKey, "error", derr)
			}
		}
		return CheckpointMetadata{}, err
	}
	return meta, nil
}

// MaybeCreateCheckpoint creates a checkpoint only when at least threshold
// log entries have accumulated since the latest checkpoint (or since the
// beginning when none exists). The returned bool reports whether a
// checkpoint was created.
func (s *Service) MaybeCreateCheckpoint(ctx context.Context, planID string, threshold int) (CheckpointMetadata, bool, error) {
	if threshold <= 0 {
		return CheckpointMetadata{}, false, fmt.Errorf("checkpoint threshold must be positive, got %d", threshold)
	}
	var (
		meta    CheckpointMetadata
		created bool
	)
	err := s.instrument(ctx, "maybe_create_checkpoint", func(ctx context.Context) error {
		lock := s.planLock(planID)
		lock.Lock()
		defer lock.Unlock()

		var pending int
		err := s.store.View(ctx, func(v TransactionView) error {
			if _, ok := v.GetPlan(planID); !ok {
				return domain.ErrNotFound{Entity: "plan", ID: planID}
			}
			var after int64
			if cp, ok := v.LatestCheckpoint(planID); ok {
				after = cp.Metadata.LastPatchID
			}
			pending = len(v.PatchesAfter(planID, after))
			return nil
		})
		if err != nil {
			return err
		}
		if pending < threshold {
			return nil
		}
		name := fmt.Sprintf("auto-%s", time.Now().UTC().Format("20060102-150405"))
		meta, err = s.createCheckpoint(ctx, planID, name)
		if err != nil {
			return err
		}
		created = true
		return nil
	})
	if err != nil {
		return CheckpointMetadata{}, false, err
	}
	return meta, created, nil
}

// ListCheckpoints returns checkpoint metadata, newest first.
func (s *Service) ListCheckpoints(ctx context.Context, planID string) ([]CheckpointMetadata, error) {
	var metas []CheckpointMetadata
	err := s.instrument(ctx, "list_checkpoints", func(ctx context.Context) error {
		return s.store.View(ctx, func(v TransactionView) error {
			metas = v.Checkpoints(planID)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return metas, nil
}

// LatestCheckpointMetadata returns the newest checkpoint's metadata, if
// any.
func (s *Service) LatestCheckpointMetadata(ctx context.Context, planID string) (CheckpointMetadata, bool, error) {
	var (
		meta  CheckpointMetadata
		found bool
	)
	err := s.instrument(ctx, "latest_checkpoint", func(ctx context.Context) error {
		return s.store.View(ctx, func(v TransactionView) error {
			if cp, ok := v.LatestCheckpoint(planID); ok {
				meta = cp.Metadata
				found = true
			}
			return nil
		})
	})
	if err != nil {
		return CheckpointMetadata{}, false, err
	}
	return meta, found, nil
}

// RestoreCheckpoint rolls a plan back to a checkpoint. The checkpoint
// state replaces the stored row, log entries newer than the checkpoint are
// dropped along with checkpoints created after it, and the redo stack is
// cleared. It returns the hydrated document after the rollback.
func (s *Service) RestoreCheckpoint(ctx context.Context, planID, checkpointID string) (Document, error) {
	var doc Document
	err := s.instrument(ctx, "restore_checkpoint", func(ctx context.Context) error {
		lock := s.planLock(planID)
		lock.Lock()
		defer lock.Unlock()

		var (
			target Checkpoint
			found  bool
		)
		err := s.store.View(ctx, func(v TransactionView) error {
			target, found = v.GetCheckpoint(planID, checkpointID)
			return nil
		})
		if err != nil {
			return err
		}
		if !found {
			return domain.ErrNotFound{Entity: "checkpoint", ID: checkpointID}
		}
		state := target.State
		if state == nil {
			state, err = s.fetchArchivedState(ctx, target.Metadata.ArtifactKey)
			if err != nil {
				return fmt.Errorf("fetch checkpoint artifact: %w", err)
			}
		}

		var orphaned []string
		err = s.store.RunInTransaction(ctx, func(tx Transaction) error {
			if err := tx.PutPlan(state); err != nil {
				return err
			}

			var kept []PatchEntry
			for _, entry := range tx.Patches(planID) {
				if entry.ID <= target.Metadata.LastPatchID {
					kept = append(kept, entry)
				}
			}
			if err := tx.ReplacePatches(planID, kept); err != nil {
				return err
			}

			for _, meta := range tx.Checkpoints(planID) {
				if meta.ID == target.Metadata.ID {
					continue
				}
				if meta.LastPatchID > target.Metadata.LastPatchID ||
					meta.CreatedAt.After(target.Metadata.CreatedAt) {
					if err := tx.DeleteCheckpoint(planID, meta.ID); err != nil {
						return err
					}
					if meta.ArtifactKey != "" {
						orphaned = append(orphaned, meta.ArtifactKey)
					}
				}
			}
			tx.ClearRedo(planID)
			return nil
		})
		if err != nil {
			return err
		}

		if s.archive != nil {
			for _, key := range orphaned {
				if _, derr := s.archive.Delete(ctx, key); derr != nil {
					s.logger.Warn("orphaned checkpoint artifact", "key", key, "error", derr)
				}
			}
		}

		doc, err = s.hydrate(ctx, planID)
		return err
	})
	if err != nil {
		return nil, err
	}
	return doc, nil
}

// DeleteCheckpoint removes a checkpoint and, best effort, its archived
// artifact. The patch log is untouched; hydration falls back to the next
// older checkpoint or the stored row.
func (s *Service) DeleteCheckpoint(ctx context.Context, planID, checkpointID string) error {
	return s.instrument(ctx, "delete_checkpoint", func(ctx context.Context) error {
		lock := s.planLock(planID)
		lock.Lock()
		defer lock.Unlock()

		var artifactKey string
		err := s.store.RunInTransaction(ctx, func(tx Transaction) error {
			cp, ok := tx.GetCheckpoint(planID, checkpointID)
			if !ok {
				return domain.ErrNotFound{Entity: "checkpoint", ID: checkpointID}
			}
			artifactKey = cp.Metadata.ArtifactKey
			return tx.DeleteCheckpoint(planID, checkpointID)
		})
		if err != nil {
			return err
		}
		if s.archive != nil && artifactKey != "" {
			if _, derr := s.archive.Delete(ctx, artifactKey); derr != nil {
				s.logger.Warn("orphaned checkpoint artifact", "key", artifactKey, "error", derr)
			}
		}
		return nil
	})
}

// CheckpointArtifactURL returns a time-limited download URL for a
// checkpoint's archived snapshot. Requires an archive backend that
// supports presigning.
func (s *Service) CheckpointArtifactURL(ctx context.Context, planID, checkpointID string, expiry time.Duration) (string, error) {
	if s.archive == nil {
		return "", blob.ErrUnsupported
	}
	var url string
	err := s.instrument(ctx, "checkpoint_artifact_url", func(ctx context.Context) error {
		var (
			key   string
			found bool
		)
		err := s.store.View(ctx, func(v TransactionView) error {
			if cp, ok := v.GetCheckpoint(planID, checkpointID); ok {
				key = cp.Metadata.ArtifactKey
				found = true
			}
			return nil
		})
		if err != nil {
			return err
		}
		if !found {
			return domain.ErrNotFound{Entity: "checkpoint", ID: checkpointID}
		}
		if key == "" {
			return blob.ErrUnsupported
		}
		url, err = s.archive.PresignURL(ctx, key, blob.SignedURLOptions{Method: "GET", Expiry: expiry})
		return err
	})
	if err != nil {
		return "", err
	}
	return url, nil
}

// fetchArchivedState loads and decodes a checkpoint snapshot from the
// archive.
func (s *Service) fetchArchivedState(ctx context.Context, key string) (Document, error) {
	if s.archive == nil {
		return nil, fmt.Errorf("no archive configured for artifact %s", key)
	}
	if key == "" {
		return nil, fmt.Errorf("checkpoint has no inline state and no artifact key")
	}
	_, rc, err := s.archive.Get(ctx, key)
	if err != nil {
		return nil, err
	}
	defer rc.Close()
	data, err := io.ReadAll(rc)
	if err != nil {
		return nil, err
	}
	var doc Document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, err
	}
	return doc, nil
}
