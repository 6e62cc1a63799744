// Package risk computes member churn-risk scores and walks inactive members
// through the fixed escalation ladder.
package risk

import (
	"time"

	"gympulse/models"
)

const (
	// AlertThreshold is the score from which a member gets a risk alert and
	// escalation stages run.
	AlertThreshold = 40
	redThreshold   = 70
	maxLoyalty     = 15
)

// Signals are the check-in aggregates the scorer needs besides the member row.
type Signals struct {
	// RecentCheckins counts the trailing 14 days, PreviousCheckins the 14
	// days before that.
	RecentCheckins   int64
	PreviousCheckins int64
	// Mode hour buckets for the trailing 14 days and for 60 to 14 days ago.
	// Nil when the window has no check-ins.
	RecentModeHour   *int
	PreviousModeHour *int
}

type Result struct {
	Score              int
	Level              models.RiskLevel
	Reasons            models.RiskReasons
	DaysWithoutCheckin int
}

// Score is deterministic: the same member, signals and clock always give the
// same result.
func Score(m models.Member, s Signals, now time.Time) Result {
	days := m.DaysWithoutCheckin(now)

	inactivity := inactivityPoints(days)
	frequency, dropPct := frequencyDropPoints(s.RecentCheckins, s.PreviousCheckins)
	shift, shiftHours := shiftChangePoints(s.RecentModeHour, s.PreviousModeHour)
	nps := npsPoints(m.NPSLastScore)
	loyalty := loyaltyDiscount(m.LoyaltyMonths)

	score := clamp(inactivity+frequency+shift+nps-loyalty, 0, 100)

	return Result{
		Score: score,
		Level: LevelFor(score),
		Reasons: models.RiskReasons{
			InactivityPoints:   inactivity,
			FrequencyPoints:    frequency,
			FrequencyDropPct:   dropPct,
			ShiftPoints:        shift,
			ShiftChangeHours:   shiftHours,
			NPSPoints:          nps,
			LoyaltyDiscount:    loyalty,
			DaysWithoutCheckin: days,
		},
		DaysWithoutCheckin: days,
	}
}

func LevelFor(score int) models.RiskLevel {
	switch {
	case score >= redThreshold:
		return models.RiskRed
	case score >= AlertThreshold:
		return models.RiskYellow
	default:
		return models.RiskGreen
	}
}

func inactivityPoints(days int) int {
	switch {
	case days >= 21:
		return 60
	case days >= 14:
		return 45
	case days >= 10:
		return 30
	case days >= 7:
		return 20
	case days >= 3:
		return 10
	}
	return 0
}

func frequencyDropPoints(recent, previous int64) (int, float64) {
	if previous <= 0 {
		if recent == 0 {
			return 12, 100
		}
		return 0, 0
	}
	dropPct := float64(previous-recent) / float64(previous) * 100
	if dropPct < 0 {
		dropPct = 0
	}
	switch {
	case dropPct >= 70:
		return 20, dropPct
	case dropPct >= 40:
		return 12, dropPct
	case dropPct >= 20:
		return 6, dropPct
	}
	return 0, dropPct
}

func shiftChangePoints(recentMode, previousMode *int) (int, int) {
	if recentMode == nil || previousMode == nil {
		return 0, 0
	}
	change := *recentMode - *previousMode
	if change < 0 {
		change = -change
	}
	switch {
	case change >= 4:
		return 10, change
	case change >= 2:
		return 5, change
	}
	return 0, change
}

func npsPoints(score int) int {
	switch {
	case score <= 4:
		return 18
	case score <= 6:
		return 10
	case score <= 8:
		return 4
	}
	return 0
}

func loyaltyDiscount(months int) int {
	d := (months / 6) * 3
	if d > maxLoyalty {
		return maxLoyalty
	}
	if d < 0 {
		return 0
	}
	return d
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
