// Package models contains the persistence models for the gorm-backed store.
package models

import (
	"time"
)

// Entry is one key-value pair of a store partition.
type Entry struct {
	Partition string `gorm:"column:partition_name;primaryKey;size:64"`
	Key       string `gorm:"column:entry_key;primaryKey;size:255"`
	Value     []byte `gorm:"column:value;not null"`
	UpdatedAt time.Time
}

// TableName pins the table name regardless of naming strategy.
func (Entry) TableName() string {
	return "kv_entries"
}
