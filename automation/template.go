package automation

import (
	"regexp"
	"strconv"
	"time"

	"gympulse/models"
)

var placeholder = regexp.MustCompile(`\{([a-zA-Z0-9_]+)\}`)

// Render substitutes {key} placeholders from vars. Keys missing from vars are
// left in place so a typo in a rule never breaks the message.
func Render(tmpl string, vars map[string]string) string {
	return placeholder.ReplaceAllStringFunc(tmpl, func(m string) string {
		if v, ok := vars[m[1:len(m)-1]]; ok {
			return v
		}
		return m
	})
}

// WhatsAppTemplates are the named message bodies a send_message rule can use.
var WhatsAppTemplates = map[string]string{
	"reengagement_3d": "Hi {name}! We noticed you have not trained for {days} days. How about coming back today? Your progress matters!",
	"reengagement_7d": "Hi {name}, we miss you at the gym! It has been {days} days. Shall we book a session this week?",
	"risk_red":        "Hi {name}, we want to help you keep your routine on the {plan} plan. Can we talk for a minute about your goals?",
	"nps_low":         "Hi {name}, thanks for your feedback (score {nps}). We would like to hear how we can improve your experience.",
	"birthday":        "Happy birthday, {name}! The whole team wishes you a great year of training.",
	"custom":          "{message}",
}

// MemberVars are the placeholder values available for a member.
func MemberVars(m models.Member, now time.Time) map[string]string {
	return map[string]string{
		"name":  m.FullName,
		"plan":  m.PlanName,
		"days":  strconv.Itoa(m.DaysWithoutCheckin(now)),
		"score": strconv.Itoa(m.RiskScore),
		"nps":   strconv.Itoa(m.NPSLastScore),
		"email": m.Email,
		"phone": m.Phone,
	}
}
