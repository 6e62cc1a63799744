package automation

import (
	"context"
	"fmt"
	"sort"
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"

	"gympulse/models"
)

const day = 24 * time.Hour

// Subject is one entity a trigger matched. Exactly one of Member and Lead is set.
type Subject struct {
	Member *models.Member
	Lead   *models.Lead
}

func (s Subject) ID() uint {
	if s.Lead != nil {
		return s.Lead.ID
	}
	return s.Member.ID
}

func (s Subject) Type() string {
	if s.Lead != nil {
		return SubjectLead
	}
	return SubjectMember
}

// Trigger selects the subjects a rule applies to in this cycle.
type Trigger interface {
	Type() models.TriggerType
	Match(ctx context.Context, db *gorm.DB, gymID uint, now time.Time) ([]Subject, error)
}

// ParseTrigger builds the trigger for a rule from its type and JSON config.
func ParseTrigger(t models.TriggerType, raw datatypes.JSONMap) (Trigger, error) {
	switch t {
	case models.TriggerRiskLevelChange:
		var cfg riskLevelTrigger
		return parse(raw, &cfg)
	case models.TriggerInactivityDays:
		var cfg inactivityTrigger
		return parse(raw, &cfg)
	case models.TriggerNPSScore:
		var cfg npsTrigger
		return parse(raw, &cfg)
	case models.TriggerBirthday:
		var cfg birthdayTrigger
		return parse(raw, &cfg)
	case models.TriggerCheckinStreak:
		var cfg streakTrigger
		trig, err := parse(raw, &cfg)
		if err != nil {
			return nil, err
		}
		if cfg.minDays() > cfg.days() {
			return nil, fmt.Errorf("%w: min_days %d exceeds days %d", ErrInvalidConfig, cfg.minDays(), cfg.days())
		}
		return trig, nil
	case models.TriggerLeadStale:
		var cfg leadStaleTrigger
		return parse(raw, &cfg)
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownTrigger, t)
}

func parse(raw datatypes.JSONMap, cfg Trigger) (Trigger, error) {
	if err := decodeConfig(raw, cfg); err != nil {
		return nil, err
	}
	if err := validateConfig(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func activeMembers(ctx context.Context, db *gorm.DB, gymID uint) *gorm.DB {
	return db.WithContext(ctx).
		Model(&models.Member{}).
		Scopes(models.ForGym(gymID)).
		Where("status = ?", models.MemberActive).
		Order("id ASC")
}

func memberSubjects(members []models.Member) []Subject {
	out := make([]Subject, len(members))
	for i := range members {
		out[i] = Subject{Member: &members[i]}
	}
	return out
}

type riskLevelTrigger struct {
	Level *string `json:"level" validate:"omitempty,oneof=green yellow red"`
}

func (t *riskLevelTrigger) Type() models.TriggerType { return models.TriggerRiskLevelChange }

func (t *riskLevelTrigger) Match(ctx context.Context, db *gorm.DB, gymID uint, _ time.Time) ([]Subject, error) {
	level := string(models.RiskRed)
	if t.Level != nil {
		level = *t.Level
	}
	var members []models.Member
	if err := activeMembers(ctx, db, gymID).Where("risk_level = ?", level).Find(&members).Error; err != nil {
		return nil, err
	}
	return memberSubjects(members), nil
}

// inactivityTrigger also matches members who never checked in.
type inactivityTrigger struct {
	Days *int `json:"days" validate:"omitempty,gte=1,lte=365"`
}

func (t *inactivityTrigger) Type() models.TriggerType { return models.TriggerInactivityDays }

func (t *inactivityTrigger) Match(ctx context.Context, db *gorm.DB, gymID uint, now time.Time) ([]Subject, error) {
	cutoff := now.Add(-time.Duration(intOr(t.Days, 7)) * day)
	var members []models.Member
	err := activeMembers(ctx, db, gymID).
		Where("last_checkin_at IS NULL OR last_checkin_at <= ?", cutoff).
		Find(&members).Error
	if err != nil {
		return nil, err
	}
	return memberSubjects(members), nil
}

type npsTrigger struct {
	MaxScore *int `json:"max_score" validate:"omitempty,gte=0,lte=10"`
}

func (t *npsTrigger) Type() models.TriggerType { return models.TriggerNPSScore }

func (t *npsTrigger) Match(ctx context.Context, db *gorm.DB, gymID uint, _ time.Time) ([]Subject, error) {
	var members []models.Member
	err := activeMembers(ctx, db, gymID).
		Where("nps_last_score <= ?", intOr(t.MaxScore, 6)).
		Find(&members).Error
	if err != nil {
		return nil, err
	}
	return memberSubjects(members), nil
}

type birthdayTrigger struct{}

func (t *birthdayTrigger) Type() models.TriggerType { return models.TriggerBirthday }

// Match compares month and day in Go so the query stays portable across drivers.
func (t *birthdayTrigger) Match(ctx context.Context, db *gorm.DB, gymID uint, now time.Time) ([]Subject, error) {
	var members []models.Member
	if err := activeMembers(ctx, db, gymID).Where("date_of_birth IS NOT NULL").Find(&members).Error; err != nil {
		return nil, err
	}
	today := now.UTC()
	var out []Subject
	for i := range members {
		dob := members[i].DateOfBirth.UTC()
		if dob.Month() == today.Month() && dob.Day() == today.Day() {
			out = append(out, Subject{Member: &members[i]})
		}
	}
	return out, nil
}

// streakTrigger matches members with at least MinDays distinct check-in days
// in the trailing Days window.
type streakTrigger struct {
	Days    *int `json:"days" validate:"omitempty,gte=1,lte=90"`
	MinDays *int `json:"min_days" validate:"omitempty,gte=1"`
}

func (t *streakTrigger) Type() models.TriggerType { return models.TriggerCheckinStreak }

func (t *streakTrigger) days() int    { return intOr(t.Days, 7) }
func (t *streakTrigger) minDays() int { return intOr(t.MinDays, t.days()) }

func (t *streakTrigger) Match(ctx context.Context, db *gorm.DB, gymID uint, now time.Time) ([]Subject, error) {
	var checkins []models.Checkin
	err := db.WithContext(ctx).
		Scopes(models.ForGym(gymID)).
		Where("checkin_at >= ? AND checkin_at <= ?", now.Add(-time.Duration(t.days())*day), now).
		Find(&checkins).Error
	if err != nil {
		return nil, err
	}

	distinct := make(map[uint]map[string]struct{})
	for _, c := range checkins {
		if distinct[c.MemberID] == nil {
			distinct[c.MemberID] = make(map[string]struct{})
		}
		distinct[c.MemberID][c.CheckinAt.UTC().Format("2006-01-02")] = struct{}{}
	}
	var ids []uint
	for id, days := range distinct {
		if len(days) >= t.minDays() {
			ids = append(ids, id)
		}
	}
	if len(ids) == 0 {
		return nil, nil
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	var members []models.Member
	if err := activeMembers(ctx, db, gymID).Where("id IN ?", ids).Find(&members).Error; err != nil {
		return nil, err
	}
	return memberSubjects(members), nil
}

// leadStaleTrigger matches open leads with no contact for Days. Leads never
// contacted are measured from their creation.
type leadStaleTrigger struct {
	Days *int `json:"days" validate:"omitempty,gte=1,lte=365"`
}

func (t *leadStaleTrigger) Type() models.TriggerType { return models.TriggerLeadStale }

func (t *leadStaleTrigger) Match(ctx context.Context, db *gorm.DB, gymID uint, now time.Time) ([]Subject, error) {
	cutoff := now.Add(-time.Duration(intOr(t.Days, 7)) * day)
	var leads []models.Lead
	err := db.WithContext(ctx).
		Scopes(models.ForGym(gymID)).
		Where("stage NOT IN ?", []models.LeadStage{models.LeadWon, models.LeadLost}).
		Where("COALESCE(last_contact_at, created_at) <= ?", cutoff).
		Order("id ASC").
		Find(&leads).Error
	if err != nil {
		return nil, err
	}
	out := make([]Subject, len(leads))
	for i := range leads {
		out[i] = Subject{Lead: &leads[i]}
	}
	return out, nil
}
