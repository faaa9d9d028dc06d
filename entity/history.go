package entity

import "time"

type History struct {
	ID          uint `gorm:"primaryKey;autoIncrement"`
	Input       string
	Output      string
	LogFilePath string
	SessionID   string
	Timestamp   time.Time `gorm:"autoCreateTime"`
}

func (History) TableName() string {
	return "history"
}
