package dispatch

import (
	"context"
	"fmt"
	"strings"
	"time"
	"unicode"
	"unicode/utf8"

	"github.com/badoux/checkmail"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"gympulse/models"
)

const (
	DefaultRateLimitPerHour = 6
	DefaultCountryCode      = "55"
	maxErrorDetail          = 500
)

// Message is one outbound message request.
type Message struct {
	GymID        uint
	MemberID     *uint
	RuleID       *uint
	Channel      string
	Recipient    string
	Subject      string
	Body         string
	TemplateName string
}

// MessageDispatcher sends through a Channel and logs every attempt to
// message_logs. Transport failures end up in the log row, never as errors.
type MessageDispatcher struct {
	channels     map[string]Channel
	limitPerHour int
	countryCode  string
	logger       logrus.FieldLogger
	now          func() time.Time
}

type MessageOption func(*MessageDispatcher)

// WithRateLimit sets the per-recipient cap for a sliding one-hour window.
func WithRateLimit(perHour int) MessageOption {
	return func(d *MessageDispatcher) {
		if perHour > 0 {
			d.limitPerHour = perHour
		}
	}
}

func WithCountryCode(code string) MessageOption {
	return func(d *MessageDispatcher) {
		if code != "" {
			d.countryCode = code
		}
	}
}

func WithClock(now func() time.Time) MessageOption {
	return func(d *MessageDispatcher) {
		d.now = now
	}
}

func NewMessageDispatcher(logger logrus.FieldLogger, channels []Channel, opts ...MessageOption) *MessageDispatcher {
	d := &MessageDispatcher{
		channels:     make(map[string]Channel, len(channels)),
		limitPerHour: DefaultRateLimitPerHour,
		countryCode:  DefaultCountryCode,
		logger:       logger,
		now:          time.Now,
	}
	for _, ch := range channels {
		d.channels[ch.Name()] = ch
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Send runs the rate limit and configuration checks, calls the channel and
// stores the terminal status. The returned error is only set when the log
// row itself could not be written.
func (d *MessageDispatcher) Send(ctx context.Context, tx *gorm.DB, msg Message) (*models.MessageLog, error) {
	now := d.now().UTC()
	recipient := d.normalizeRecipient(msg.Channel, msg.Recipient)

	entry := models.MessageLog{
		GymID:            msg.GymID,
		MemberID:         msg.MemberID,
		AutomationRuleID: msg.RuleID,
		Channel:          msg.Channel,
		Recipient:        recipient,
		TemplateName:     msg.TemplateName,
		Subject:          msg.Subject,
		Content:          msg.Body,
		Status:           models.MessagePending,
		CreatedAt:        now,
	}
	log := d.logger.WithFields(logrus.Fields{
		"gym_id":    msg.GymID,
		"channel":   msg.Channel,
		"recipient": recipient,
	})

	if msg.Channel == models.ChannelEmail {
		if err := checkmail.ValidateFormat(recipient); err != nil {
			entry.Status = models.MessageSkipped
			entry.ErrorDetail = "invalid email address"
			return d.store(ctx, tx, &entry)
		}
	}

	limited, err := d.rateLimited(ctx, tx, msg.Channel, recipient, now)
	if err != nil {
		return nil, err
	}
	if limited {
		entry.Status = models.MessageBlocked
		entry.ErrorDetail = "rate limit exceeded for recipient in the last hour"
		log.Warn("message blocked by rate limit")
		return d.store(ctx, tx, &entry)
	}

	ch, ok := d.channels[msg.Channel]
	if !ok || !ch.Configured() {
		entry.Status = models.MessageSkipped
		entry.ErrorDetail = fmt.Sprintf("%s channel not configured", msg.Channel)
		log.Warn("channel not configured, message not sent")
		return d.store(ctx, tx, &entry)
	}

	// Later sends in the same transaction count the pending row against the
	// recipient's limit.
	if _, err := d.store(ctx, tx, &entry); err != nil {
		return nil, err
	}

	if sendErr := ch.Send(ctx, recipient, msg.Subject, msg.Body); sendErr != nil {
		entry.Status = models.MessageFailed
		entry.ErrorDetail = truncate(sendErr.Error(), maxErrorDetail)
		log.WithError(sendErr).Error("message send failed")
	} else {
		entry.Status = models.MessageSent
	}

	err = tx.WithContext(ctx).Model(&entry).Updates(map[string]interface{}{
		"status":       entry.Status,
		"error_detail": entry.ErrorDetail,
	}).Error
	if err != nil {
		return nil, fmt.Errorf("update message log %d: %w", entry.ID, err)
	}
	return &entry, nil
}

func (d *MessageDispatcher) rateLimited(ctx context.Context, tx *gorm.DB, channel, recipient string, now time.Time) (bool, error) {
	var recent int64
	err := tx.WithContext(ctx).
		Model(&models.MessageLog{}).
		Where("channel = ? AND recipient = ? AND created_at >= ? AND status IN ?",
			channel, recipient, now.Add(-time.Hour),
			[]models.MessageStatus{models.MessagePending, models.MessageSent}).
		Count(&recent).Error
	if err != nil {
		return false, fmt.Errorf("count recent messages for %s: %w", recipient, err)
	}
	return recent >= int64(d.limitPerHour), nil
}

func (d *MessageDispatcher) store(ctx context.Context, tx *gorm.DB, entry *models.MessageLog) (*models.MessageLog, error) {
	if err := tx.WithContext(ctx).Create(entry).Error; err != nil {
		return nil, fmt.Errorf("create message log: %w", err)
	}
	return entry, nil
}

func (d *MessageDispatcher) normalizeRecipient(channel, recipient string) string {
	if channel == models.ChannelWhatsApp {
		return FormatPhone(recipient, d.countryCode)
	}
	return strings.ToLower(strings.TrimSpace(recipient))
}

// FormatPhone keeps digits only and prefixes the country code to national
// numbers (11 digits or fewer).
func FormatPhone(phone, countryCode string) string {
	var b strings.Builder
	for _, r := range phone {
		if unicode.IsDigit(r) {
			b.WriteRune(r)
		}
	}
	digits := b.String()
	if digits != "" && !strings.HasPrefix(digits, countryCode) && len(digits) <= 11 {
		digits = countryCode + digits
	}
	return digits
}

// truncate cuts s to at most n bytes without splitting a rune.
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}
