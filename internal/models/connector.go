package models

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
)

// ScopeOutcome is the probe verdict for one scope: granted, or a diagnostic
// explaining why not. It marshals as `true` or as the diagnostic string.
type ScopeOutcome struct {
	Granted bool
	Reason  string
}

// Granted is the outcome of a scope that passed its probe.
func Granted() ScopeOutcome { return ScopeOutcome{Granted: true} }

// Denied is the outcome of a scope that failed its probe.
func Denied(format string, args ...any) ScopeOutcome {
	return ScopeOutcome{Reason: fmt.Sprintf(format, args...)}
}

func (o ScopeOutcome) String() string {
	if o.Granted {
		return "granted"
	}
	return o.Reason
}

func (o ScopeOutcome) MarshalJSON() ([]byte, error) {
	if o.Granted {
		return []byte("true"), nil
	}
	return json.Marshal(o.Reason)
}

func (o *ScopeOutcome) UnmarshalJSON(data []byte) error {
	var granted bool
	if err := json.Unmarshal(data, &granted); err == nil {
		if !granted {
			*o = ScopeOutcome{Reason: "denied"}
			return nil
		}
		*o = Granted()
		return nil
	}
	var reason string
	if err := json.Unmarshal(data, &reason); err != nil {
		return fmt.Errorf("scope outcome must be true or a string: %w", err)
	}
	*o = ScopeOutcome{Reason: reason}
	return nil
}

// ScopeResult maps scope name to its probe outcome.
type ScopeResult map[string]ScopeOutcome

// AllGranted reports whether every listed scope was granted.
func (r ScopeResult) AllGranted(names ...string) bool {
	for _, n := range names {
		if !r[n].Granted {
			return false
		}
	}
	return true
}

// Names returns the scope names sorted alphabetically.
func (r ScopeResult) Names() []string {
	names := make([]string, 0, len(r))
	for n := range r {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

func (r ScopeResult) Value() (driver.Value, error) {
	if r == nil {
		return "{}", nil
	}
	b, err := json.Marshal(map[string]ScopeOutcome(r))
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

func (r *ScopeResult) Scan(value interface{}) error {
	var b []byte
	switch v := value.(type) {
	case nil:
		*r = ScopeResult{}
		return nil
	case []byte:
		b = v
	case string:
		b = []byte(v)
	default:
		return errors.New("type assertion to []byte failed")
	}
	out := ScopeResult{}
	if err := json.Unmarshal(b, (*map[string]ScopeOutcome)(&out)); err != nil {
		return err
	}
	*r = out
	return nil
}
