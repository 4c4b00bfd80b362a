package models

import (
	"fmt"
	"strings"
	"time"
)

// Severity is the canonical alert severity.
type Severity string

const (
	SeverityCritical Severity = "critical"
	SeverityHigh     Severity = "high"
	SeverityWarning  Severity = "warning"
	SeverityLow      Severity = "low"
	SeverityInfo     Severity = "info"
)

func (s Severity) Valid() bool {
	switch s {
	case SeverityCritical, SeverityHigh, SeverityWarning, SeverityLow, SeverityInfo:
		return true
	}
	return false
}

// Rank orders severities from info (0) to critical (4).
func (s Severity) Rank() int {
	switch s {
	case SeverityCritical:
		return 4
	case SeverityHigh:
		return 3
	case SeverityWarning:
		return 2
	case SeverityLow:
		return 1
	default:
		return 0
	}
}

func (s *Severity) UnmarshalText(text []byte) error {
	v := Severity(strings.ToLower(strings.TrimSpace(string(text))))
	if !v.Valid() {
		return fmt.Errorf("invalid severity %q (valid: critical, high, warning, low, info)", text)
	}
	*s = v
	return nil
}

// AlertStatus is the canonical alert lifecycle state.
type AlertStatus string

const (
	AlertFiring       AlertStatus = "firing"
	AlertAcknowledged AlertStatus = "acknowledged"
	AlertResolved     AlertStatus = "resolved"
)

func (s AlertStatus) Valid() bool {
	switch s {
	case AlertFiring, AlertAcknowledged, AlertResolved:
		return true
	}
	return false
}

func (s *AlertStatus) UnmarshalText(text []byte) error {
	v := AlertStatus(strings.ToLower(strings.TrimSpace(string(text))))
	if !v.Valid() {
		return fmt.Errorf("invalid status %q (valid: firing, acknowledged, resolved)", text)
	}
	*s = v
	return nil
}

// CanonicalAlert is the vendor-independent alert record produced by normalization.
type CanonicalAlert struct {
	ID           string      `json:"id,omitempty"`
	Name         string      `json:"name,omitempty"`
	Description  string      `json:"description,omitempty"`
	Severity     Severity    `json:"severity"`
	Status       AlertStatus `json:"status"`
	Source       []string    `json:"source"`
	LastReceived *time.Time  `json:"lastReceived,omitempty"`
	Fingerprint  string      `json:"fingerprint"`
	Extra        Attributes  `json:"extra"`
}

// CanonicalFieldNames are the names reserved by CanonicalAlert. Raw payload keys
// with these names never reach Extra.
var CanonicalFieldNames = []string{
	"id", "name", "description", "severity", "status", "source", "lastReceived", "fingerprint",
}

// IsCanonicalField reports whether name is reserved by CanonicalAlert.
func IsCanonicalField(name string) bool {
	for _, n := range CanonicalFieldNames {
		if n == name {
			return true
		}
	}
	return false
}

// Field resolves name against the canonical fields first and then Extra.
// Empty canonical values count as absent.
func (a *CanonicalAlert) Field(name string) (Value, bool) {
	switch name {
	case "id":
		return nonEmpty(a.ID)
	case "name":
		return nonEmpty(a.Name)
	case "description":
		return nonEmpty(a.Description)
	case "severity":
		return nonEmpty(string(a.Severity))
	case "status":
		return nonEmpty(string(a.Status))
	case "source":
		return nonEmpty(strings.Join(a.Source, ","))
	case "lastReceived", "last_received":
		if a.LastReceived == nil {
			return Value{}, false
		}
		return String(a.LastReceived.UTC().Format(time.RFC3339Nano)), true
	}
	v, ok := a.Extra.Get(name)
	if !ok || v.IsNull() {
		return Value{}, false
	}
	return v, true
}

func nonEmpty(s string) (Value, bool) {
	if s == "" {
		return Value{}, false
	}
	return String(s), true
}
