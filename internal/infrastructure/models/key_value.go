package models

import (
	"time"

	"github.com/volatiletech/null/v8"
)

// KeyValue backs the SQL implementation of the key-value store
type KeyValue struct {
	StorageKey string      `gorm:"column:storage_key;type:varchar(255);primaryKey"`
	Value      string      `gorm:"type:text;not null"`
	UpdatedBy  null.String `gorm:"type:varchar(255)"`
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

func (KeyValue) TableName() string {
	return "key_values"
}
