// Package connector implements the vendor connector contract: configuration
// validation, live scope probing, inbound payload normalization and outbound
// action dispatch. Vendor behaviour is supplied as declarative Definition
// tables consumed by one shared engine.
package connector

import (
	"errors"
	"fmt"
	"strings"
	"time"

	jmespath "github.com/jmespath-community/go-jmespath"

	"alertbridge/internal/models"
)

// ValidationKind is a format constraint applied to a configuration field.
type ValidationKind string

const (
	ValidateNone        ValidationKind = ""
	ValidateAnyHTTPURL  ValidationKind = "any_http_url"
	ValidateHTTPSURL    ValidationKind = "https_url"
	ValidateNoSchemeURL ValidationKind = "no_scheme_url"
	ValidatePort        ValidationKind = "port"
)

// FieldDescriptor declares one configuration field.
type FieldDescriptor struct {
	Name        string         `yaml:"name" json:"name"`
	Description string         `yaml:"description" json:"description,omitempty"`
	Required    bool           `yaml:"required" json:"required"`
	Sensitive   bool           `yaml:"sensitive" json:"sensitive"`
	Default     string         `yaml:"default" json:"default,omitempty"`
	Validation  ValidationKind `yaml:"validation" json:"validation,omitempty"`
	Hint        string         `yaml:"hint" json:"hint,omitempty"`
}

// AuthMode is one complete authentication shape: it is satisfied when every
// listed field has a value.
type AuthMode struct {
	Name   string   `yaml:"name" json:"name"`
	Fields []string `yaml:"fields" json:"fields"`
}

// ScopeDeclaration is a capability the connector may be granted.
type ScopeDeclaration struct {
	Name        string `yaml:"name" json:"name"`
	Description string `yaml:"description" json:"description,omitempty"`
	Mandatory   bool   `yaml:"mandatory" json:"mandatory"`
	Alias       string `yaml:"alias" json:"alias,omitempty"`
	Requires    string `yaml:"requires" json:"requires,omitempty"` // prerequisite scope
}

// AuthHeader describes how a credential field is presented to the vendor.
type AuthHeader struct {
	Header string `yaml:"header" json:"header"`
	Scheme string `yaml:"scheme" json:"scheme,omitempty"` // e.g. "Bearer"; empty sends the raw value
	Field  string `yaml:"field" json:"field"`
}

// Endpoint is an authenticated call against the vendor control plane.
type Endpoint struct {
	Method       string      `yaml:"method" json:"method"`
	BaseURLField string      `yaml:"base_url_field" json:"base_url_field"`
	Path         string      `yaml:"path" json:"path"` // may contain "{id}"
	Auth         *AuthHeader `yaml:"auth" json:"auth,omitempty"`
	OKStatus     int         `yaml:"ok_status" json:"ok_status,omitempty"` // zero accepts any 2xx
}

// FieldRule resolves a canonical field from ordered alternate keys.
type FieldRule struct {
	Keys    []string `yaml:"keys" json:"keys"`
	Default string   `yaml:"default" json:"default,omitempty"`
}

// SeverityMapping maps vendor severity labels or codes to canonical severities.
type SeverityMapping struct {
	Keys    []string                   `yaml:"keys" json:"keys"`
	Default string                     `yaml:"default" json:"default,omitempty"`
	Table   map[string]models.Severity `yaml:"table" json:"table"`
}

// StatusPolicy selects how a vendor status string is matched against rules.
type StatusPolicy string

const (
	StatusExact    StatusPolicy = "exact"
	StatusContains StatusPolicy = "contains"
)

// StatusRule pairs a vendor keyword with a canonical status.
type StatusRule struct {
	Keyword string             `yaml:"keyword" json:"keyword"`
	Status  models.AlertStatus `yaml:"status" json:"status"`
}

// StatusMapping maps vendor statuses. Rules are evaluated in order; the first
// match wins.
type StatusMapping struct {
	Keys    []string     `yaml:"keys" json:"keys"`
	Default string       `yaml:"default" json:"default,omitempty"`
	Policy  StatusPolicy `yaml:"policy" json:"policy"` // empty means exact
	Rules   []StatusRule `yaml:"rules" json:"rules"`
}

// DerivedField writes a resolved value into the alert's extra attributes.
type DerivedField struct {
	FieldRule `yaml:",inline"`

	Name string `yaml:"name" json:"name"`
}

// Mapping is the per-vendor normalization table.
type Mapping struct {
	Source            string          `yaml:"source" json:"source"`
	ID                FieldRule       `yaml:"id" json:"id"`
	Name              FieldRule       `yaml:"name" json:"name"` // Default may reference "{id}"
	Description       FieldRule       `yaml:"description" json:"description"`
	Timestamp         FieldRule       `yaml:"timestamp" json:"timestamp"`
	Severity          SeverityMapping `yaml:"severity" json:"severity"`
	Status            StatusMapping   `yaml:"status" json:"status"`
	Derived           []DerivedField  `yaml:"derived" json:"derived,omitempty"`
	FingerprintFields []string        `yaml:"fingerprint_fields" json:"fingerprint_fields"`
}

// DispatchSpec declares the outbound paths of a connector.
type DispatchSpec struct {
	WebhookField    string        `yaml:"webhook_field" json:"webhook_field,omitempty"` // config field holding the default webhook
	Execute         *Endpoint     `yaml:"execute" json:"execute,omitempty"`
	ExecutionIDPath string        `yaml:"execution_id_path" json:"execution_id_path,omitempty"` // JMESPath over the execute response
	List            *Endpoint     `yaml:"list" json:"list,omitempty"`
	ListPath        string        `yaml:"list_path" json:"list_path,omitempty"` // JMESPath selecting the listed items
	Timeout         time.Duration `yaml:"timeout" json:"timeout,omitempty"`
}

// Definition is everything the engine needs to know about a vendor.
type Definition struct {
	Type         string               `yaml:"type" json:"type"`
	DisplayName  string               `yaml:"display_name" json:"display_name"`
	Categories   []string             `yaml:"categories" json:"categories,omitempty"`
	Tags         []string             `yaml:"tags" json:"tags,omitempty"`
	Fields       []FieldDescriptor    `yaml:"fields" json:"fields"`
	AuthModes    []AuthMode           `yaml:"auth_modes" json:"auth_modes,omitempty"`
	Scopes       []ScopeDeclaration   `yaml:"scopes" json:"scopes"`
	Probes       map[string]*Endpoint `yaml:"probes" json:"probes,omitempty"`
	Mapping      *Mapping             `yaml:"mapping" json:"mapping,omitempty"`
	Dispatch     *DispatchSpec        `yaml:"dispatch" json:"dispatch,omitempty"`
	WebhookNotes string               `yaml:"webhook_notes" json:"webhook_notes,omitempty"`
}

// DefaultAuthMode names the implicit mode of definitions that declare none.
const DefaultAuthMode = "default"

// Field returns the descriptor named name.
func (d *Definition) Field(name string) (FieldDescriptor, bool) {
	for _, f := range d.Fields {
		if f.Name == name {
			return f, true
		}
	}
	return FieldDescriptor{}, false
}

// Scope returns the declaration named name.
func (d *Definition) Scope(name string) (ScopeDeclaration, bool) {
	for _, s := range d.Scopes {
		if s.Name == name {
			return s, true
		}
	}
	return ScopeDeclaration{}, false
}

// MandatoryScopes lists the names of mandatory scopes in declaration order.
func (d *Definition) MandatoryScopes() []string {
	var out []string
	for _, s := range d.Scopes {
		if s.Mandatory {
			out = append(out, s.Name)
		}
	}
	return out
}

// CanIngest reports whether the connector normalizes inbound alerts.
func (d *Definition) CanIngest() bool { return d.Mapping != nil }

// CanDispatch reports whether the connector sends outbound actions.
func (d *Definition) CanDispatch() bool { return d.Dispatch != nil }

// Check verifies the definition is internally consistent.
func (d *Definition) Check() error {
	var errs []error
	if strings.TrimSpace(d.Type) == "" {
		errs = append(errs, errors.New("type is required"))
	}

	seen := make(map[string]bool, len(d.Fields))
	for _, f := range d.Fields {
		if f.Name == "" {
			errs = append(errs, errors.New("field with empty name"))
			continue
		}
		if seen[f.Name] {
			errs = append(errs, fmt.Errorf("duplicate field %q", f.Name))
		}
		seen[f.Name] = true
		switch f.Validation {
		case ValidateNone, ValidateAnyHTTPURL, ValidateHTTPSURL, ValidateNoSchemeURL, ValidatePort:
		default:
			errs = append(errs, fmt.Errorf("field %q: unknown validation %q", f.Name, f.Validation))
		}
	}

	modes := make(map[string]bool, len(d.AuthModes))
	for _, m := range d.AuthModes {
		if m.Name == "" || modes[m.Name] {
			errs = append(errs, fmt.Errorf("auth mode %q: empty or duplicate name", m.Name))
		}
		modes[m.Name] = true
		if len(m.Fields) == 0 {
			errs = append(errs, fmt.Errorf("auth mode %q: no fields", m.Name))
		}
		for _, f := range m.Fields {
			if !seen[f] {
				errs = append(errs, fmt.Errorf("auth mode %q: unknown field %q", m.Name, f))
			}
		}
	}
	if len(d.AuthModes) == 0 {
		modes[DefaultAuthMode] = true
	}

	scopes := make(map[string]bool, len(d.Scopes))
	mandatory := false
	for _, s := range d.Scopes {
		if s.Name == "" || scopes[s.Name] {
			errs = append(errs, fmt.Errorf("scope %q: empty or duplicate name", s.Name))
		}
		scopes[s.Name] = true
		mandatory = mandatory || s.Mandatory
	}
	if !mandatory {
		errs = append(errs, errors.New("at least one scope must be mandatory"))
	}
	for _, s := range d.Scopes {
		if s.Requires == "" {
			continue
		}
		if !scopes[s.Requires] || s.Requires == s.Name {
			errs = append(errs, fmt.Errorf("scope %q requires unknown scope %q", s.Name, s.Requires))
		}
	}

	for mode, ep := range d.Probes {
		if !modes[mode] {
			errs = append(errs, fmt.Errorf("probe for unknown auth mode %q", mode))
		}
		if ep != nil {
			errs = append(errs, checkEndpoint("probe "+mode, ep, seen)...)
		}
	}

	if d.Mapping != nil {
		errs = append(errs, checkMapping(d.Mapping)...)
	}
	if d.Dispatch != nil {
		if d.Dispatch.WebhookField != "" && !seen[d.Dispatch.WebhookField] {
			errs = append(errs, fmt.Errorf("dispatch: unknown webhook field %q", d.Dispatch.WebhookField))
		}
		if d.Dispatch.Execute != nil {
			errs = append(errs, checkEndpoint("dispatch execute", d.Dispatch.Execute, seen)...)
		}
		if d.Dispatch.List != nil {
			errs = append(errs, checkEndpoint("dispatch list", d.Dispatch.List, seen)...)
		}
		for _, expr := range []string{d.Dispatch.ExecutionIDPath, d.Dispatch.ListPath} {
			if expr == "" {
				continue
			}
			if _, err := jmespath.Compile(expr); err != nil {
				errs = append(errs, fmt.Errorf("dispatch: invalid expression %q: %w", expr, err))
			}
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("connector %q: %w", d.Type, errors.Join(errs...))
	}
	return nil
}

func checkEndpoint(what string, ep *Endpoint, fields map[string]bool) []error {
	var errs []error
	if !fields[ep.BaseURLField] {
		errs = append(errs, fmt.Errorf("%s: unknown base url field %q", what, ep.BaseURLField))
	}
	if ep.Auth != nil && !fields[ep.Auth.Field] {
		errs = append(errs, fmt.Errorf("%s: unknown auth field %q", what, ep.Auth.Field))
	}
	if _, err := normalizeMethod(ep.Method, "GET"); err != nil {
		errs = append(errs, fmt.Errorf("%s: %w", what, err))
	}
	return errs
}

func checkMapping(m *Mapping) []error {
	var errs []error
	if m.Source == "" {
		errs = append(errs, errors.New("mapping: source is required"))
	}
	for k, sev := range m.Severity.Table {
		if k != strings.ToLower(k) {
			errs = append(errs, fmt.Errorf("mapping: severity key %q must be lowercase", k))
		}
		if !sev.Valid() {
			errs = append(errs, fmt.Errorf("mapping: severity key %q maps to invalid severity %q", k, sev))
		}
	}
	switch m.Status.Policy {
	case "", StatusExact, StatusContains:
	default:
		errs = append(errs, fmt.Errorf("mapping: unknown status policy %q", m.Status.Policy))
	}
	for _, r := range m.Status.Rules {
		if r.Keyword != strings.ToLower(r.Keyword) || r.Keyword == "" {
			errs = append(errs, fmt.Errorf("mapping: status keyword %q must be non-empty lowercase", r.Keyword))
		}
		if !r.Status.Valid() {
			errs = append(errs, fmt.Errorf("mapping: status keyword %q maps to invalid status %q", r.Keyword, r.Status))
		}
	}
	if len(m.FingerprintFields) == 0 {
		errs = append(errs, errors.New("mapping: at least one fingerprint field is required"))
	}
	return errs
}
