package risk

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"

	"gympulse/models"
)

const (
	frequencyWindow = 14 * 24 * time.Hour
	shiftHistory    = 60 * 24 * time.Hour
)

// SignalReader loads check-in aggregates for one member. It only reads.
type SignalReader struct{}

func NewSignalReader() *SignalReader {
	return &SignalReader{}
}

func (r *SignalReader) Read(ctx context.Context, tx *gorm.DB, m models.Member, now time.Time) (Signals, error) {
	recentStart := now.Add(-frequencyWindow)
	prevStart := now.Add(-2 * frequencyWindow)

	var s Signals
	var err error
	if s.RecentCheckins, err = r.count(ctx, tx, m, recentStart, now); err != nil {
		return s, err
	}
	if s.PreviousCheckins, err = r.count(ctx, tx, m, prevStart, recentStart); err != nil {
		return s, err
	}
	if s.RecentModeHour, err = r.modeHour(ctx, tx, m, recentStart, now); err != nil {
		return s, err
	}
	if s.PreviousModeHour, err = r.modeHour(ctx, tx, m, now.Add(-shiftHistory), recentStart); err != nil {
		return s, err
	}
	return s, nil
}

func (r *SignalReader) count(ctx context.Context, tx *gorm.DB, m models.Member, from, to time.Time) (int64, error) {
	var n int64
	err := tx.WithContext(ctx).
		Model(&models.Checkin{}).
		Where("member_id = ? AND checkin_at >= ? AND checkin_at < ?", m.ID, from, to).
		Count(&n).Error
	if err != nil {
		return 0, fmt.Errorf("count checkins for member %d: %w", m.ID, err)
	}
	return n, nil
}

// modeHour returns the most frequent hour bucket in [from, to), lowest hour
// first on ties.
func (r *SignalReader) modeHour(ctx context.Context, tx *gorm.DB, m models.Member, from, to time.Time) (*int, error) {
	var hours []int
	err := tx.WithContext(ctx).
		Model(&models.Checkin{}).
		Where("member_id = ? AND checkin_at >= ? AND checkin_at < ?", m.ID, from, to).
		Group("hour_bucket").
		Order("COUNT(id) DESC, hour_bucket ASC").
		Limit(1).
		Pluck("hour_bucket", &hours).Error
	if err != nil {
		return nil, fmt.Errorf("mode hour for member %d: %w", m.ID, err)
	}
	if len(hours) == 0 {
		return nil, nil
	}
	return &hours[0], nil
}
