package store

import (
	"context"
	"time"

	"github.com/lorelabs/loreengine/entity"
	"github.com/lorelabs/loreengine/errors"
	"github.com/lorelabs/loreengine/internal/db"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type (
	InquiryStore interface {
		// Create records a question the system wants answered by a human,
		// with optional multiple-choice options.
		Create(ctx context.Context, inquiry string, topics []string, importance int, options []string) (*entity.Inquiry, error)

		// List returns inquiries matching the done/skipped flags, newest
		// first.
		List(ctx context.Context, done, skipped bool) ([]entity.Inquiry, error)

		MarkDone(ctx context.Context, id uint) error
		MarkSkipped(ctx context.Context, id uint) error
	}

	inquiryStore struct {
		db *gorm.DB
	}
)

var _ InquiryStore = (*inquiryStore)(nil)

func NewInquiryStore(gdb *gorm.DB) InquiryStore {
	return &inquiryStore{db: gdb}
}

func (s *inquiryStore) Create(ctx context.Context, inquiry string, topics []string, importance int, options []string) (*entity.Inquiry, error) {
	if inquiry == "" {
		return nil, errors.Wrapf(errors.ErrInvalidParams, "inquiry text is required")
	}

	record := entity.Inquiry{
		Inquiry:    inquiry,
		Topics:     datatypes.NewJSONType(topics),
		Importance: importance,
		Options:    datatypes.NewJSONType(options),
		CreatedAt:  time.Now().UnixMilli(),
	}

	_, tx := db.OpenSession(ctx, s.db)
	if err := tx.Create(&record).Error; err != nil {
		return nil, errors.Wrapf(err, "failed to create inquiry")
	}

	return &record, nil
}

func (s *inquiryStore) List(ctx context.Context, done, skipped bool) ([]entity.Inquiry, error) {
	_, tx := db.OpenSession(ctx, s.db)

	var records []entity.Inquiry
	if err := tx.
		Where("is_done = ? AND is_skipped = ?", done, skipped).
		Order("created_at DESC").
		Find(&records).Error; err != nil {
		return nil, errors.Wrapf(err, "failed to list inquiries")
	}

	return records, nil
}

func (s *inquiryStore) MarkDone(ctx context.Context, id uint) error {
	return s.setFlag(ctx, id, "is_done")
}

func (s *inquiryStore) MarkSkipped(ctx context.Context, id uint) error {
	return s.setFlag(ctx, id, "is_skipped")
}

func (s *inquiryStore) setFlag(ctx context.Context, id uint, column string) error {
	_, tx := db.OpenSession(ctx, s.db)
	result := tx.Model(&entity.Inquiry{}).Where("id = ?", id).Update(column, true)
	if result.Error != nil {
		return errors.Wrapf(result.Error, "failed to update inquiry %d", id)
	}
	if result.RowsAffected == 0 {
		return errors.Wrapf(errors.ErrNotFound, "inquiry %d", id)
	}
	return nil
}
