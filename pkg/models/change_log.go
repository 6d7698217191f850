package models

import (
	"time"
)

// ChangeOp represents the type of database change
type ChangeOp string

const (
	ChangeOpInsert ChangeOp = "INSERT"
	ChangeOpUpdate ChangeOp = "UPDATE"
	ChangeOpDelete ChangeOp = "DELETE"
)

// ChangeLog is a record in the relational change feed table. PostgreSQL
// has no push feed without logical decoding, so every people-table write
// appends a row here inside the writing transaction and a poller tails
// the table by cursor to derive row events.
//
// NewPayload and OldPayload store the post- and pre-image as JSON so
// events can be emitted without re-querying the main table, which would
// race with subsequent writes to the same row.
type ChangeLog struct {
	ID         uint64    `gorm:"primaryKey;autoIncrement" json:"id"`
	EntityType string    `gorm:"not null;index:idx_change_entity" json:"entity_type"`
	EntityID   string    `gorm:"not null;index:idx_change_entity" json:"entity_id"`
	Op         ChangeOp  `gorm:"not null" json:"op"`
	ChangedAt  time.Time `gorm:"not null" json:"changed_at"`
	NewPayload JSONMap   `gorm:"type:jsonb" json:"new_payload,omitempty"`
	OldPayload JSONMap   `gorm:"type:jsonb" json:"old_payload,omitempty"`
}

// TableName returns the table name for the change log model
func (ChangeLog) TableName() string {
	return "change_log"
}
