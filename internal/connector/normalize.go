package connector

import (
	"crypto/sha256"
	"encoding/hex"
	"math"
	"strconv"
	"strings"
	"time"

	"alertbridge/internal/models"
)

const (
	fingerprintSeparator = "\x1f"
	fingerprintMissing   = "\x00<missing>"
)

var timestampLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"20060102T150405.000 MST",
	"20060102T150405 MST",
}

// Normalize maps a raw vendor event onto a CanonicalAlert. It is total: every
// input yields an alert with a valid severity and status.
func Normalize(raw *models.Attributes, m *Mapping) models.CanonicalAlert {
	if raw == nil {
		raw = models.NewAttributes()
	}

	alert := models.CanonicalAlert{
		Severity: models.SeverityInfo,
		Status:   models.AlertFiring,
	}
	if m.Source != "" {
		alert.Source = []string{m.Source}
	}

	alert.ID, _ = resolveText(raw, m.ID)
	if v, ok := resolve(raw, m.Name.Keys); ok {
		alert.Name = v.Text()
	} else {
		// "{id}" подставляется только в значение по умолчанию
		alert.Name = strings.ReplaceAll(m.Name.Default, "{id}", alert.ID)
	}
	alert.Description, _ = resolveText(raw, m.Description)
	alert.Severity = mapSeverity(raw, m.Severity)
	alert.Status = mapStatus(raw, m.Status)
	if v, ok := resolve(raw, m.Timestamp.Keys); ok {
		if ts, ok := parseTimestamp(v); ok {
			alert.LastReceived = &ts
		}
	}

	raw.Range(func(k string, v models.Value) bool {
		if !models.IsCanonicalField(k) {
			alert.Extra.Set(k, v)
		}
		return true
	})
	for _, d := range m.Derived {
		if models.IsCanonicalField(d.Name) {
			continue
		}
		if s, ok := resolveText(raw, d.FieldRule); ok {
			alert.Extra.Set(d.Name, models.String(s))
		}
	}

	alert.Fingerprint = Fingerprint(&alert, m.FingerprintFields)
	return alert
}

// Fingerprint hashes the named fields of alert in the given order. Missing
// fields contribute a fixed sentinel so that events lacking the same field
// still collide.
func Fingerprint(alert *models.CanonicalAlert, fields []string) string {
	parts := make([]string, len(fields))
	for i, f := range fields {
		v, ok := alert.Field(f)
		if !ok || v.IsBlank() {
			parts[i] = fingerprintMissing
			continue
		}
		parts[i] = v.Text()
	}
	sum := sha256.Sum256([]byte(strings.Join(parts, fingerprintSeparator)))
	return hex.EncodeToString(sum[:])
}

// resolve returns the value of the first present key.
func resolve(raw *models.Attributes, keys []string) (models.Value, bool) {
	for _, k := range keys {
		v, ok := raw.Get(k)
		if ok && !v.IsBlank() {
			return v, true
		}
	}
	return models.Value{}, false
}

func resolveText(raw *models.Attributes, rule FieldRule) (string, bool) {
	if v, ok := resolve(raw, rule.Keys); ok {
		return v.Text(), true
	}
	if rule.Default != "" {
		return rule.Default, true
	}
	return "", false
}

func mapSeverity(raw *models.Attributes, sm SeverityMapping) models.Severity {
	label, ok := resolveText(raw, FieldRule{Keys: sm.Keys, Default: sm.Default})
	if !ok {
		return models.SeverityInfo
	}
	if sev, ok := sm.Table[strings.ToLower(strings.TrimSpace(label))]; ok {
		return sev
	}
	return models.SeverityInfo
}

func mapStatus(raw *models.Attributes, sm StatusMapping) models.AlertStatus {
	label, ok := resolveText(raw, FieldRule{Keys: sm.Keys, Default: sm.Default})
	if !ok {
		return models.AlertFiring
	}
	label = strings.ToLower(strings.TrimSpace(label))
	for _, r := range sm.Rules {
		if sm.Policy == StatusContains {
			if strings.Contains(label, r.Keyword) {
				return r.Status
			}
			continue
		}
		if label == r.Keyword {
			return r.Status
		}
	}
	return models.AlertFiring
}

func parseTimestamp(v models.Value) (time.Time, bool) {
	if f, ok := v.Float(); ok && v.Kind() == models.KindNumber {
		return unixTime(f)
	}
	s := strings.TrimSpace(v.Text())
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), true
		}
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		return unixTime(f)
	}
	return time.Time{}, false
}

// unixTime accepts seconds or milliseconds since the epoch.
func unixTime(f float64) (time.Time, bool) {
	if f <= 0 || math.IsInf(f, 0) || math.IsNaN(f) {
		return time.Time{}, false
	}
	if f > 1e12 {
		return time.UnixMilli(int64(f)).UTC(), true
	}
	sec, frac := math.Modf(f)
	return time.Unix(int64(sec), int64(frac*1e9)).UTC(), true
}
