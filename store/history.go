package store

import (
	"context"

	"github.com/lorelabs/loreengine/entity"
	"github.com/lorelabs/loreengine/errors"
	"github.com/lorelabs/loreengine/internal/db"
	"gorm.io/gorm"
)

type (
	HistoryStore interface {
		Save(ctx context.Context, input, output, logFilePath, sessionID string) error

		// List returns one page of records, newest first. Pages are
		// 1-based; page and pageSize fall back to 1 and 20.
		List(ctx context.Context, page, pageSize int) ([]entity.History, error)

		Clear(ctx context.Context) error
	}

	historyStore struct {
		db *gorm.DB
	}
)

var _ HistoryStore = (*historyStore)(nil)

func NewHistoryStore(gdb *gorm.DB) HistoryStore {
	return &historyStore{db: gdb}
}

func (s *historyStore) Save(ctx context.Context, input, output, logFilePath, sessionID string) error {
	_, tx := db.OpenSession(ctx, s.db)
	record := entity.History{
		Input:       input,
		Output:      output,
		LogFilePath: logFilePath,
		SessionID:   sessionID,
	}
	return errors.Wrapf(tx.Create(&record).Error, "failed to save history record")
}

func (s *historyStore) List(ctx context.Context, page, pageSize int) ([]entity.History, error) {
	if page <= 0 {
		page = 1
	}
	if pageSize <= 0 {
		pageSize = 20
	}

	_, tx := db.OpenSession(ctx, s.db)
	var records []entity.History
	if err := tx.
		Order("timestamp DESC").
		Offset((page - 1) * pageSize).
		Limit(pageSize).
		Find(&records).Error; err != nil {
		return nil, errors.Wrapf(err, "failed to list history")
	}

	return records, nil
}

func (s *historyStore) Clear(ctx context.Context) error {
	_, tx := db.OpenSession(ctx, s.db)
	return errors.Wrapf(
		tx.Exec("DELETE FROM history").Error,
		"failed to clear history",
	)
}
