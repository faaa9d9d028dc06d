package store

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/lorelabs/loreengine/entity"
	"github.com/lorelabs/loreengine/errors"
	"github.com/lorelabs/loreengine/internal/db"
	"gorm.io/gorm"
)

type (
	// PatchFilter narrows List results. Zero-valued fields match everything.
	PatchFilter struct {
		Status     string
		Repository string
		Author     string
		Limit      int
		Offset     int
	}

	PatchStore interface {
		// Save persists a patch record. A missing id gets a fresh uuid, a
		// missing status defaults to "created", and createdAt is always set
		// by the store.
		Save(ctx context.Context, patch *entity.PatchFile) (*entity.PatchFile, error)

		Get(ctx context.Context, id string) (*entity.PatchFile, error)

		// List returns matching patches ordered by creation time, newest
		// first.
		List(ctx context.Context, filter PatchFilter) ([]entity.PatchFile, error)

		// UpdateStatus moves a patch to the given status. When the status
		// is "applied", appliedAt (or the current time if nil) is stamped
		// on the record; otherwise appliedAt is ignored.
		UpdateStatus(ctx context.Context, id, status string, appliedAt *time.Time) error

		// Delete removes a patch. Deleting an unknown id is a no-op.
		Delete(ctx context.Context, id string) error
	}

	patchStore struct {
		db *gorm.DB
	}
)

var _ PatchStore = (*patchStore)(nil)

func NewPatchStore(gdb *gorm.DB) PatchStore {
	return &patchStore{db: gdb}
}

var validPatchStatuses = map[string]bool{
	entity.PatchStatusCreated:  true,
	entity.PatchStatusPending:  true,
	entity.PatchStatusApplied:  true,
	entity.PatchStatusRejected: true,
}

func (s *patchStore) Save(ctx context.Context, patch *entity.PatchFile) (*entity.PatchFile, error) {
	if patch == nil {
		return nil, errors.Wrapf(errors.ErrInvalidParams, "patch is required")
	}
	if patch.Content == "" {
		return nil, errors.Wrapf(errors.ErrInvalidParams, "patch content is required")
	}

	if patch.ID == "" {
		patch.ID = uuid.NewString()
	}
	if patch.Status == "" {
		patch.Status = entity.PatchStatusCreated
	}
	if !validPatchStatuses[patch.Status] {
		return nil, errors.Wrapf(errors.ErrInvalidParams, "unknown patch status %q", patch.Status)
	}
	patch.CreatedAt = time.Now().UnixMilli()

	_, tx := db.OpenSession(ctx, s.db)
	if err := tx.Create(patch).Error; err != nil {
		return nil, errors.Wrapf(err, "failed to save patch %s", patch.ID)
	}

	return patch, nil
}

func (s *patchStore) Get(ctx context.Context, id string) (*entity.PatchFile, error) {
	_, tx := db.OpenSession(ctx, s.db)

	var record entity.PatchFile
	if err := tx.First(&record, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, errors.Wrapf(errors.ErrNotFound, "patch %s", id)
		}
		return nil, errors.Wrapf(err, "failed to read patch %s", id)
	}

	return &record, nil
}

func (s *patchStore) List(ctx context.Context, filter PatchFilter) ([]entity.PatchFile, error) {
	_, tx := db.OpenSession(ctx, s.db)

	query := tx.Model(&entity.PatchFile{})
	if filter.Status != "" {
		query = query.Where("status = ?", filter.Status)
	}
	if filter.Repository != "" {
		query = query.Where("repository = ?", filter.Repository)
	}
	if filter.Author != "" {
		query = query.Where("author = ?", filter.Author)
	}
	if filter.Limit > 0 {
		query = query.Limit(filter.Limit)
	}
	if filter.Offset > 0 {
		query = query.Offset(filter.Offset)
	}

	var records []entity.PatchFile
	if err := query.Order("created_at DESC").Find(&records).Error; err != nil {
		return nil, errors.Wrapf(err, "failed to list patches")
	}

	return records, nil
}

func (s *patchStore) UpdateStatus(ctx context.Context, id, status string, appliedAt *time.Time) error {
	if !validPatchStatuses[status] {
		return errors.Wrapf(errors.ErrInvalidParams, "unknown patch status %q", status)
	}

	updates := map[string]any{"status": status}
	if status == entity.PatchStatusApplied {
		stamp := time.Now()
		if appliedAt != nil {
			stamp = *appliedAt
		}
		ms := stamp.UnixMilli()
		updates["applied_at"] = &ms
	}

	_, tx := db.OpenSession(ctx, s.db)
	result := tx.Model(&entity.PatchFile{}).Where("id = ?", id).Updates(updates)
	if result.Error != nil {
		return errors.Wrapf(result.Error, "failed to update patch %s", id)
	}
	if result.RowsAffected == 0 {
		return errors.Wrapf(errors.ErrNotFound, "patch %s", id)
	}
	return nil
}

func (s *patchStore) Delete(ctx context.Context, id string) error {
	_, tx := db.OpenSession(ctx, s.db)
	return errors.Wrapf(
		tx.Delete(&entity.PatchFile{}, "id = ?", id).Error,
		"failed to delete patch %s", id,
	)
}
