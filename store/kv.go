package store

import (
	"context"
	"strings"

	"github.com/lorelabs/loreengine/entity"
	"github.com/lorelabs/loreengine/errors"
	"github.com/lorelabs/loreengine/internal/db"
	"github.com/samber/lo"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// SecretKeyPrefix marks key-value records whose values are injected into
// skill subprocess environments. Only the suffix after the prefix is ever
// shown to the model.
const SecretKeyPrefix = "secret."

type (
	KV interface {
		Get(ctx context.Context, key string) (string, error)
		Set(ctx context.Context, key, value string) error
		Delete(ctx context.Context, key string) error

		// SecretNames lists the names of stored secrets, prefix stripped.
		SecretNames(ctx context.Context) ([]string, error)

		// Secrets resolves every stored secret to name → value.
		Secrets(ctx context.Context) (map[string]string, error)
	}

	kvStore struct {
		db *gorm.DB
	}
)

var _ KV = (*kvStore)(nil)

func NewKV(gdb *gorm.DB) KV {
	return &kvStore{db: gdb}
}

func (s *kvStore) Get(ctx context.Context, key string) (string, error) {
	_, tx := db.OpenSession(ctx, s.db)

	var record entity.KeyValue
	if err := tx.First(&record, "key = ?", key).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return "", errors.Wrapf(errors.ErrNotFound, "key %q", key)
		}
		return "", errors.Wrapf(err, "failed to read key %q", key)
	}

	return record.Value, nil
}

func (s *kvStore) Set(ctx context.Context, key, value string) error {
	if key == "" {
		return errors.Wrapf(errors.ErrInvalidParams, "key is required")
	}

	_, tx := db.OpenSession(ctx, s.db)
	record := entity.KeyValue{Key: key, Value: value}
	return errors.Wrapf(
		tx.Clauses(clause.OnConflict{UpdateAll: true}).Create(&record).Error,
		"failed to set key %q", key,
	)
}

func (s *kvStore) Delete(ctx context.Context, key string) error {
	_, tx := db.OpenSession(ctx, s.db)
	return errors.Wrapf(
		tx.Delete(&entity.KeyValue{}, "key = ?", key).Error,
		"failed to delete key %q", key,
	)
}

func (s *kvStore) SecretNames(ctx context.Context) ([]string, error) {
	secrets, err := s.Secrets(ctx)
	if err != nil {
		return nil, err
	}
	return lo.Keys(secrets), nil
}

func (s *kvStore) Secrets(ctx context.Context) (map[string]string, error) {
	_, tx := db.OpenSession(ctx, s.db)

	var records []entity.KeyValue
	if err := tx.Find(&records, "key LIKE ?", SecretKeyPrefix+"%").Error; err != nil {
		return nil, errors.Wrapf(err, "failed to list secrets")
	}

	return lo.SliceToMap(records, func(r entity.KeyValue) (string, string) {
		return strings.TrimPrefix(r.Key, SecretKeyPrefix), r.Value
	}), nil
}
