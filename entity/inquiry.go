package entity

import (
	"gorm.io/datatypes"
)

type Inquiry struct {
	ID         uint                           `gorm:"primaryKey;autoIncrement"`
	Inquiry    string                         `gorm:"column:inquiry"`
	Topics     datatypes.JSONType[[]string]   `gorm:"type:text"`
	Importance int                            // 1 - 10
	IsDone     bool
	IsSkipped  bool
	Options    datatypes.JSONType[[]string] `gorm:"type:text"`
	CreatedAt  int64
}

func (Inquiry) TableName() string {
	return "inquiries"
}
