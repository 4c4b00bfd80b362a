package models

import (
	"strings"
	"time"

	"gorm.io/gorm"
)

// ConnectorState tracks whether an activated connector is usable.
type ConnectorState string

const (
	ConnectorActive   ConnectorState = "active"
	ConnectorDegraded ConnectorState = "degraded" // a mandatory scope failed its last probe
	ConnectorDisabled ConnectorState = "disabled"
)

// ConnectorInstance is an activated connector: a vendor type plus the
// operator-supplied credentials that passed validation.
type ConnectorInstance struct {
	ID          string         `gorm:"primaryKey;type:text" json:"id"`
	Type        string         `gorm:"index;not null" json:"type"`
	Name        string         `gorm:"uniqueIndex;not null" json:"name"`
	Credentials JSONBMap       `json:"-"`
	AuthMode    string         `json:"auth_mode"`
	State       ConnectorState `gorm:"index;not null" json:"state"`
	Scopes      ScopeResult    `json:"scopes"`
	ProbedAt    *time.Time     `json:"probed_at,omitempty"`
	CreatedAt   time.Time      `json:"created_at"`
	UpdatedAt   time.Time      `json:"updated_at"`
}

// AlertRecord is a canonical alert as kept by the alert consumer, deduplicated
// by fingerprint.
type AlertRecord struct {
	gorm.Model
	Fingerprint  string      `gorm:"uniqueIndex;not null"`
	ConnectorID  string      `gorm:"index;not null"` // connector that delivered the latest occurrence
	AlertID      string
	Name         string
	Description  string
	Severity     Severity    `gorm:"index;not null"`
	Status       AlertStatus `gorm:"index;not null"`
	Source       string
	LastReceived *time.Time
	FirstSeen    time.Time `gorm:"not null"`
	LastSeen     time.Time `gorm:"not null"`
	Occurrences  int       `gorm:"not null;default:1"`
	Extra        Attributes
}

// Apply copies a freshly normalized alert onto the record.
func (r *AlertRecord) Apply(alert CanonicalAlert, seenAt time.Time) {
	r.Fingerprint = alert.Fingerprint
	r.AlertID = alert.ID
	r.Name = alert.Name
	r.Description = alert.Description
	r.Severity = alert.Severity
	r.Status = alert.Status
	r.Source = strings.Join(alert.Source, ",")
	r.LastReceived = alert.LastReceived
	r.LastSeen = seenAt
	r.Extra = *alert.Extra.Clone()
}

// DispatchRecord is an immutable audit row for one outbound dispatch.
type DispatchRecord struct {
	gorm.Model
	RequestID   string       `gorm:"index;not null"`
	ConnectorID string       `gorm:"index;not null"`
	Path        DispatchPath `gorm:"not null"`
	Target      string
	Method      string
	Success     bool
	StatusCode  int
	ExecutionID string
	Error       string    `gorm:"type:text"`
	Timestamp   time.Time `gorm:"not null"`
}
