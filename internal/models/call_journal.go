package models

import (
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// CallJournalEntry 本地通话流水（按终态落库）
type CallJournalEntry struct {
	ID                int64      `json:"id" gorm:"primaryKey;autoIncrement"`
	CallID            string     `json:"callId" gorm:"uniqueIndex;size:200"`
	DestinationNumber string     `json:"destinationNumber" gorm:"size:64"`
	Status            string     `json:"status" gorm:"size:50;index"`
	StartedAt         *time.Time `json:"startedAt,omitempty" gorm:"index"`
	EndedAt           *time.Time `json:"endedAt,omitempty"`
	DurationSec       int64      `json:"durationSec"`
	CreatedAt         time.Time  `json:"createdAt"`
}

func (CallJournalEntry) TableName() string {
	return "call_journal"
}

// CallJournal appends terminal call outcomes so the last calls placed from
// this client stay readable without the backend.
type CallJournal struct {
	db *gorm.DB
}

func NewCallJournal(db *gorm.DB) *CallJournal {
	return &CallJournal{db: db}
}

// Record upserts an entry by call ID. A poll result and a user hangup can
// both report the same terminal call; the later write wins.
func (j *CallJournal) Record(entry CallJournalEntry) error {
	return j.db.Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "call_id"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"status", "ended_at", "duration_sec",
		}),
	}).Create(&entry).Error
}

// Recent returns the newest entries, most recent first.
func (j *CallJournal) Recent(limit int) ([]CallJournalEntry, error) {
	if limit <= 0 {
		limit = 10
	}
	var entries []CallJournalEntry
	err := j.db.Order("started_at DESC").Limit(limit).Find(&entries).Error
	return entries, err
}

// Migrate creates or updates the model tables.
func Migrate(db *gorm.DB) error {
	return db.AutoMigrate(&Setting{}, &CallJournalEntry{})
}
