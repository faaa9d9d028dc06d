package db

import (
	"github.com/lorelabs/loreengine/entity"
	"github.com/lorelabs/loreengine/errors"
	"gorm.io/gorm"
)

// AutoMigrate creates the schema. Idempotent, runs at every startup.
func AutoMigrate(db *gorm.DB) error {
	if err := db.AutoMigrate(
		&entity.KnowledgeChunk{},
		&entity.KeyValue{},
		&entity.History{},
		&entity.Inquiry{},
		&entity.PatchFile{},
	); err != nil {
		return errors.WithStack(err)
	}

	// Expression index over the chunk text; gorm tags cannot express it.
	return errors.WithStack(db.Exec(`
		CREATE INDEX IF NOT EXISTS knowledge_content_key ON knowledge
			((json_extract(content, '$.chunk')))
			WHERE json_extract(content, '$.chunk') IS NOT NULL
	`).Error)
}

func DropAll(db *gorm.DB) error {
	return errors.WithStack(db.Migrator().DropTable(
		&entity.PatchFile{},
		&entity.Inquiry{},
		&entity.History{},
		&entity.KeyValue{},
		&entity.KnowledgeChunk{},
	))
}
