package entity

import (
	"gorm.io/datatypes"
)

const (
	PatchStatusCreated  = "created"
	PatchStatusPending  = "pending"
	PatchStatusApplied  = "applied"
	PatchStatusRejected = "rejected"
)

// PatchFile describes one proposed code change. Status and AppliedAt are the
// only mutable fields after creation.
type PatchFile struct {
	ID          string `gorm:"primaryKey"`
	Title       string
	Description string
	Content     string
	FilePath    string
	Repository  string `gorm:"index"`
	Branch      string
	Author      string `gorm:"index"`
	CreatedAt   int64
	AppliedAt   *int64
	Status      string         `gorm:"index"`
	Metadata    datatypes.JSON `gorm:"type:text"`
}

func (PatchFile) TableName() string {
	return "patch_files"
}
