package model

import "time"

type Priority string

const (
	PriorityClass1 Priority = "class_1"
	PriorityClass2 Priority = "class_2"
	PriorityClass3 Priority = "class_3"
)

func (p Priority) Valid() bool {
	switch p {
	case PriorityClass1, PriorityClass2, PriorityClass3:
		return true
	}
	return false
}

type Status string

const (
	StatusTodo      Status = "todo"
	StatusOngoing   Status = "ongoing"
	StatusCompleted Status = "completed"
)

func (s Status) Valid() bool {
	switch s {
	case StatusTodo, StatusOngoing, StatusCompleted:
		return true
	}
	return false
}

// AutomationStatus is the lifecycle stage of automating a manual test case.
type AutomationStatus string

const (
	AutomationNotAutomatable AutomationStatus = "not-automatable"
	AutomationAutomatable    AutomationStatus = "automatable"
	AutomationInDevelopment  AutomationStatus = "in-development"
	AutomationReview         AutomationStatus = "review"
	AutomationReady          AutomationStatus = "ready"
	AutomationComplete       AutomationStatus = "completed"
	AutomationManual         AutomationStatus = "manual"
)

var automationStatuses = map[AutomationStatus]bool{
	AutomationNotAutomatable: true,
	AutomationAutomatable:    true,
	AutomationInDevelopment:  true,
	AutomationReview:         true,
	AutomationReady:          true,
	AutomationComplete:       true,
	AutomationManual:         true,
}

func (s AutomationStatus) Valid() bool { return automationStatuses[s] }

type TestCaseType string

const (
	TypePerformance TestCaseType = "performance"
	TypeSoak        TestCaseType = "soak"
	TypeSmoke       TestCaseType = "smoke"
)

func (t TestCaseType) Valid() bool {
	switch t {
	case TypePerformance, TypeSoak, TypeSmoke:
		return true
	}
	return false
}

// Permissions gating automation status transitions.
const (
	PermChangeToReview = "can_change_status_to_review"
	PermChangeToReady  = "can_change_status_to_ready"
)

type TestCase struct {
	ID               int64            `json:"id"`
	JiraID           *int64           `json:"jira_id"`
	Name             string           `json:"name"`
	Summary          string           `json:"summary"`
	Description      string           `json:"description"`
	Priority         Priority         `json:"priority"`
	Status           Status           `json:"status"`
	AutomationStatus AutomationStatus `json:"automation_status"`
	Type             TestCaseType     `json:"testcase_type"`
	Steps            Steps            `json:"steps"`
	Tags             []string         `json:"tags"`
	Reporter         string           `json:"reporter"`
	CreatedBy        string           `json:"created_by"`
	Assigned         string           `json:"assigned"`
	CreatedAt        time.Time        `json:"created_at"`
	UpdatedAt        time.Time        `json:"updated_at"`
}

// TestCasePatch carries a partial update. Nil fields are left unchanged.
type TestCasePatch struct {
	Name             *string           `json:"name,omitempty"`
	Summary          *string           `json:"summary,omitempty"`
	Description      *string           `json:"description,omitempty"`
	Priority         *Priority         `json:"priority,omitempty"`
	Status           *Status           `json:"status,omitempty"`
	AutomationStatus *AutomationStatus `json:"automation_status,omitempty"`
	Type             *TestCaseType     `json:"testcase_type,omitempty"`
	Assigned         *string           `json:"assigned,omitempty"`
	Steps            Steps             `json:"steps,omitempty"`
	Tags             []string          `json:"tags,omitempty"`
	ChangeReason     string            `json:"history_change_reason,omitempty"`
}

// Apply returns a copy of tc with the patch applied.
func (p TestCasePatch) Apply(tc TestCase) TestCase {
	if p.Name != nil {
		tc.Name = *p.Name
	}
	if p.Summary != nil {
		tc.Summary = *p.Summary
	}
	if p.Description != nil {
		tc.Description = *p.Description
	}
	if p.Priority != nil {
		tc.Priority = *p.Priority
	}
	if p.Status != nil {
		tc.Status = *p.Status
	}
	if p.AutomationStatus != nil {
		tc.AutomationStatus = *p.AutomationStatus
	}
	if p.Type != nil {
		tc.Type = *p.Type
	}
	if p.Assigned != nil {
		tc.Assigned = *p.Assigned
	}
	if p.Steps != nil {
		tc.Steps = p.Steps.Clone()
	}
	if p.Tags != nil {
		tc.Tags = append([]string(nil), p.Tags...)
	}
	return tc
}

type TestCaseFilter struct {
	Status           Status
	AutomationStatus AutomationStatus
	Tag              string
	Assigned         string
	Limit            int
	Offset           int
}

// HistoryRecord is one audit entry. The status fields hold the test case
// state before the update it records.
type HistoryRecord struct {
	ID               int64             `json:"id"`
	TestCaseID       int64             `json:"testcase_id"`
	User             string            `json:"user"`
	Priority         Priority          `json:"priority"`
	Type             TestCaseType      `json:"testcase_type"`
	Status           Status            `json:"status"`
	AutomationStatus AutomationStatus  `json:"automation_status"`
	ChangeReason     string            `json:"change_reason"`
	ChangedFields    map[string]string `json:"changed_fields"`
	Snapshot         *TestCase         `json:"snapshot"`
	CreatedAt        time.Time         `json:"created_at"`
}

// NatcoStatus is the per carrier, device and language applicability row
// of a test case.
type NatcoStatus struct {
	ID         int64            `json:"id"`
	TestCaseID int64            `json:"test_case"`
	NatCo      string           `json:"natco"`
	Language   string           `json:"language"`
	Device     string           `json:"device"`
	Status     AutomationStatus `json:"status"`
	Applicable bool             `json:"applicable"`
	User       string           `json:"user"`
	ModifiedBy string           `json:"modified"`
	CreatedAt  time.Time        `json:"created_at"`
	UpdatedAt  time.Time        `json:"updated_at"`
}

type Script struct {
	ID          int64        `json:"id"`
	TestCaseID  int64        `json:"testcase"`
	Name        string       `json:"script_name"`
	Location    string       `json:"script_location"`
	Type        TestCaseType `json:"script_type"`
	NatCo       string       `json:"natco"`
	Language    string       `json:"language"`
	Device      string       `json:"device"`
	DevelopedBy string       `json:"developed_by"`
	ReviewedBy  string       `json:"reviewed_by"`
	ModifiedBy  string       `json:"modified_by"`
	Description string       `json:"description"`
	CreatedAt   time.Time    `json:"created_at"`
	UpdatedAt   time.Time    `json:"updated_at"`
}

type IssueStatus string

const (
	IssueOpen        IssueStatus = "open"
	IssueUnderReview IssueStatus = "under_review"
	IssueClosed      IssueStatus = "closed"
)

func (s IssueStatus) Valid() bool {
	switch s {
	case IssueOpen, IssueUnderReview, IssueClosed:
		return true
	}
	return false
}

type ScriptIssue struct {
	ID          int64       `json:"id"`
	ScriptID    int64       `json:"script"`
	Summary     string      `json:"summary"`
	Description string      `json:"description"`
	Result      string      `json:"result"`
	Status      IssueStatus `json:"status"`
	CreatedBy   string      `json:"created_by"`
	ResolvedBy  string      `json:"resolved_by"`
	CreatedAt   time.Time   `json:"created_at"`
	UpdatedAt   time.Time   `json:"updated_at"`
}

type IssuePatch struct {
	Summary     *string      `json:"summary,omitempty"`
	Description *string      `json:"description,omitempty"`
	Result      *string      `json:"result,omitempty"`
	Status      *IssueStatus `json:"status,omitempty"`
	ResolvedBy  *string      `json:"resolved_by,omitempty"`
}

type Comment struct {
	ID        int64     `json:"id"`
	Target    Target    `json:"target"`
	Body      string    `json:"comments"`
	CreatedBy string    `json:"created_by"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

type Notification struct {
	ID        int64     `json:"id"`
	Message   string    `json:"message"`
	Sender    string    `json:"user"`
	Recipient string    `json:"assigned_to"`
	Target    *Target   `json:"target,omitempty"`
	Status    bool      `json:"status"`
	Read      bool      `json:"is_read"`
	CreatedAt time.Time `json:"created_at"`
}

// Path returns the client route of the notification's target, or "".
func (n Notification) Path() string {
	if n.Target == nil {
		return ""
	}
	return n.Target.Path()
}

// --- Reference data ---

type User struct {
	Email       string   `json:"email" yaml:"email"`
	FullName    string   `json:"full_name" yaml:"full_name"`
	Permissions []string `json:"permissions,omitempty" yaml:"permissions"`
}

// DisplayName returns the full name, falling back to the email.
func (u User) DisplayName() string {
	if u.FullName != "" {
		return u.FullName
	}
	return u.Email
}

type NatCo struct {
	ID           int64    `json:"id"`
	Country      string   `json:"country" yaml:"country"`
	Code         string   `json:"natco" yaml:"code"`
	Manufacturer string   `json:"manufacture" yaml:"manufacturer"`
	Languages    []string `json:"languages" yaml:"languages"`
}

// StatusGroup routes automation statuses to a responsible owner.
type StatusGroup struct {
	ID       int64              `json:"id"`
	Name     string             `json:"name" yaml:"name"`
	Owner    string             `json:"owner" yaml:"owner"`
	Statuses []AutomationStatus `json:"statuses" yaml:"statuses"`
}

type Tag struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}
