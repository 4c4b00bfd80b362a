package vendors

import (
	"alertbridge/internal/connector"
	"alertbridge/internal/models"
)

// Alkami receives banking alerts pushed by the Alkami platform.
func Alkami() *connector.Definition {
	return &connector.Definition{
		Type:        "alkami",
		DisplayName: "Alkami",
		Categories:  []string{"Monitoring", "Banking"},
		Fields: []connector.FieldDescriptor{
			{
				Name:        "api_key",
				Description: "Alkami API Key",
				Required:    true,
				Sensitive:   true,
			},
			{
				Name:        "api_url",
				Description: "Alkami API URL",
				Hint:        "https://api.alkami.com",
				Required:    true,
				Default:     "https://api.alkami.com",
				Validation:  connector.ValidateAnyHTTPURL,
			},
		},
		Scopes: []connector.ScopeDeclaration{
			{
				Name:        "read:alerts",
				Description: "Read alerts from Alkami",
				Mandatory:   true,
				Alias:       "Read Alerts",
			},
		},
		Mapping: &connector.Mapping{
			Source:      "alkami",
			ID:          connector.FieldRule{Keys: []string{"id", "alert_id"}},
			Name:        connector.FieldRule{Keys: []string{"name", "title"}, Default: "Alkami Alert"},
			Description: connector.FieldRule{Keys: []string{"description", "message"}},
			Timestamp:   connector.FieldRule{Keys: []string{"timestamp"}},
			Severity: connector.SeverityMapping{
				Keys:    []string{"severity"},
				Default: "info",
				Table: map[string]models.Severity{
					"critical": models.SeverityCritical,
					"high":     models.SeverityHigh,
					"warning":  models.SeverityWarning,
					"medium":   models.SeverityWarning,
					"low":      models.SeverityLow,
					"info":     models.SeverityInfo,
				},
			},
			Status: connector.StatusMapping{
				Keys:    []string{"status"},
				Default: "firing",
				Policy:  connector.StatusExact,
				Rules: []connector.StatusRule{
					{Keyword: "firing", Status: models.AlertFiring},
					{Keyword: "resolved", Status: models.AlertResolved},
					{Keyword: "acknowledged", Status: models.AlertAcknowledged},
				},
			},
			FingerprintFields: []string{"source", "id"},
		},
		WebhookNotes: apiKeyWebhookNotes,
	}
}
