// Package ledger records which one-shot actions already ran for a subject.
//
// Callers check Exists before firing an action and Record only after the
// action took effect. Record on the same transaction as the action so both
// commit or roll back together.
package ledger

import (
	"context"
	"fmt"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"gympulse/models"
)

// Ledger is the idempotency contract shared by escalation stages and rules.
type Ledger interface {
	Exists(ctx context.Context, subjectID uint, key string) (bool, error)
	Record(ctx context.Context, subjectID uint, key string, metadata map[string]interface{}) error
}

// GormLedger stores records in the idempotency_records table for one gym.
type GormLedger struct {
	db    *gorm.DB
	gymID uint
}

func New(db *gorm.DB, gymID uint) *GormLedger {
	return &GormLedger{db: db, gymID: gymID}
}

// WithTx returns a ledger bound to tx.
func (l *GormLedger) WithTx(tx *gorm.DB) *GormLedger {
	return &GormLedger{db: tx, gymID: l.gymID}
}

func (l *GormLedger) Exists(ctx context.Context, subjectID uint, key string) (bool, error) {
	var count int64
	err := l.db.WithContext(ctx).
		Model(&models.IdempotencyRecord{}).
		Scopes(models.ForGym(l.gymID)).
		Where("subject_id = ? AND action_key = ?", subjectID, key).
		Count(&count).Error
	if err != nil {
		return false, fmt.Errorf("ledger lookup %d/%s: %w", subjectID, key, err)
	}
	return count > 0, nil
}

// Record is a no-op when the key already exists, so a replayed action never
// fails on the unique index.
func (l *GormLedger) Record(ctx context.Context, subjectID uint, key string, metadata map[string]interface{}) error {
	rec := models.IdempotencyRecord{
		GymID:     l.gymID,
		SubjectID: subjectID,
		Key:       key,
		Metadata:  metadata,
	}
	err := l.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(&rec).Error
	if err != nil {
		return fmt.Errorf("ledger record %d/%s: %w", subjectID, key, err)
	}
	return nil
}
