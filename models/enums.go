package models

// RoleEnum is the staff role inside a gym.
type RoleEnum string

const (
	RoleOwner        RoleEnum = "owner"
	RoleManager      RoleEnum = "manager"
	RoleSalesperson  RoleEnum = "salesperson"
	RoleReceptionist RoleEnum = "receptionist"
)

type MemberStatus string

const (
	MemberActive    MemberStatus = "active"
	MemberPaused    MemberStatus = "paused"
	MemberCancelled MemberStatus = "cancelled"
)

// RiskLevel is derived from the risk score: red >= 70, yellow >= 40, green otherwise.
type RiskLevel string

const (
	RiskGreen  RiskLevel = "green"
	RiskYellow RiskLevel = "yellow"
	RiskRed    RiskLevel = "red"
)

// Valid reports whether l is one of the known levels.
func (l RiskLevel) Valid() bool {
	switch l {
	case RiskGreen, RiskYellow, RiskRed:
		return true
	}
	return false
}

type LeadStage string

const (
	LeadNew      LeadStage = "new"
	LeadContact  LeadStage = "contact"
	LeadVisit    LeadStage = "visit"
	LeadTrial    LeadStage = "trial"
	LeadProposal LeadStage = "proposal"
	LeadWon      LeadStage = "won"
	LeadLost     LeadStage = "lost"
)

type TaskPriority string

const (
	PriorityLow    TaskPriority = "low"
	PriorityMedium TaskPriority = "medium"
	PriorityHigh   TaskPriority = "high"
	PriorityUrgent TaskPriority = "urgent"
)

// ParseTaskPriority falls back to high for unknown values.
func ParseTaskPriority(s string) TaskPriority {
	switch p := TaskPriority(s); p {
	case PriorityLow, PriorityMedium, PriorityHigh, PriorityUrgent:
		return p
	}
	return PriorityHigh
}

type TaskStatus string

const (
	TaskTodo      TaskStatus = "todo"
	TaskDoing     TaskStatus = "doing"
	TaskDone      TaskStatus = "done"
	TaskCancelled TaskStatus = "cancelled"
)

// OpenTaskStatuses are the statuses that count as an open task for dedup checks.
var OpenTaskStatuses = []TaskStatus{TaskTodo, TaskDoing}

type MessageStatus string

const (
	MessagePending MessageStatus = "pending"
	MessageSent    MessageStatus = "sent"
	MessageFailed  MessageStatus = "failed"
	MessageBlocked MessageStatus = "blocked"
	MessageSkipped MessageStatus = "skipped"
)

const (
	ChannelEmail    = "email"
	ChannelWhatsApp = "whatsapp"
)
