package connector

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"
)

const redactedValue = "********"

// ValidatedConfig is a configuration that passed Validate. It is immutable.
type ValidatedConfig struct {
	def    *Definition
	values map[string]string
	mode   string
}

// Validate checks raw against def. Checks run in order: required fields,
// field formats, auth modes. The first failure is returned as *ConfigError.
func Validate(def *Definition, raw map[string]string) (ValidatedConfig, error) {
	values := make(map[string]string, len(def.Fields))
	for _, f := range def.Fields {
		v := strings.TrimSpace(raw[f.Name])
		if v == "" {
			v = f.Default
		}
		if v != "" {
			values[f.Name] = v
		}
	}

	for _, f := range def.Fields {
		if f.Required && values[f.Name] == "" {
			return ValidatedConfig{}, &ConfigError{Kind: MissingRequiredField, Field: f.Name}
		}
	}

	for _, f := range def.Fields {
		v, ok := values[f.Name]
		if !ok {
			continue
		}
		if reason := checkFormat(f.Validation, v); reason != "" {
			if f.Hint != "" {
				reason += " (" + f.Hint + ")"
			}
			return ValidatedConfig{}, &ConfigError{Kind: InvalidFieldFormat, Field: f.Name, Reason: reason}
		}
	}

	mode, ok := selectMode(def, values)
	if !ok {
		names := make([]string, 0, len(def.AuthModes))
		for _, m := range def.AuthModes {
			names = append(names, fmt.Sprintf("%s{%s}", m.Name, strings.Join(m.Fields, ", ")))
		}
		return ValidatedConfig{}, &ConfigError{Kind: NoValidAuthMode, Modes: names}
	}

	return ValidatedConfig{def: def, values: values, mode: mode}, nil
}

// selectMode returns the first satisfied auth mode in declaration order.
func selectMode(def *Definition, values map[string]string) (string, bool) {
	if len(def.AuthModes) == 0 {
		return DefaultAuthMode, true
	}
	for _, m := range def.AuthModes {
		satisfied := true
		for _, f := range m.Fields {
			if values[f] == "" {
				satisfied = false
				break
			}
		}
		if satisfied {
			return m.Name, true
		}
	}
	return "", false
}

func checkFormat(kind ValidationKind, v string) string {
	switch kind {
	case ValidateAnyHTTPURL, ValidateHTTPSURL:
		u, err := url.Parse(v)
		if err != nil {
			return "not a valid URL: " + err.Error()
		}
		if u.Host == "" {
			return "URL must be absolute with a host"
		}
		if kind == ValidateHTTPSURL && u.Scheme != "https" {
			return "URL scheme must be https"
		}
		if u.Scheme != "http" && u.Scheme != "https" {
			return "URL scheme must be http or https"
		}
	case ValidateNoSchemeURL:
		if strings.Contains(v, "://") {
			return "value must not include a URL scheme"
		}
		u, err := url.Parse("//" + v)
		if err != nil || u.Host == "" || strings.ContainsAny(v, " \t") {
			return "value must be a host name with optional port and path"
		}
	case ValidatePort:
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 || n > 65535 {
			return "port must be a number between 1 and 65535"
		}
	}
	return ""
}

// Definition returns the schema the configuration was validated against.
func (c ValidatedConfig) Definition() *Definition { return c.def }

// Mode returns the selected auth mode.
func (c ValidatedConfig) Mode() string { return c.mode }

// Get returns the value of field, including defaults.
func (c ValidatedConfig) Get(field string) string { return c.values[field] }

// Values returns a copy of all configured values. Callers persisting it must
// treat sensitive fields accordingly.
func (c ValidatedConfig) Values() map[string]string {
	out := make(map[string]string, len(c.values))
	for k, v := range c.values {
		out[k] = v
	}
	return out
}

// Redacted returns the configured values with sensitive fields masked.
func (c ValidatedConfig) Redacted() map[string]string {
	out := c.Values()
	if c.def == nil {
		return out
	}
	for _, f := range c.def.Fields {
		if _, ok := out[f.Name]; ok && f.Sensitive {
			out[f.Name] = redactedValue
		}
	}
	return out
}
