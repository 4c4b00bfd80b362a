package vendors

import (
	"net/http"

	"alertbridge/internal/connector"
	"alertbridge/internal/models"
)

// Pega receives case notifications from Pega Platform and checks read access
// through its case API.
func Pega() *connector.Definition {
	return &connector.Definition{
		Type:        "pega",
		DisplayName: "Pega",
		Categories:  []string{"Monitoring", "Business Process", "Case Management"},
		Fields: []connector.FieldDescriptor{
			{
				Name:        "api_key",
				Description: "Pega API Key or Access Token",
				Required:    true,
				Sensitive:   true,
			},
			{
				Name:        "pega_url",
				Description: "Pega Platform URL",
				Hint:        "https://your-instance.pega.com",
				Required:    true,
				Validation:  connector.ValidateAnyHTTPURL,
			},
			{
				Name:        "username",
				Description: "Pega Username (if using basic auth)",
			},
		},
		Scopes: []connector.ScopeDeclaration{
			{
				Name:        "read:cases",
				Description: "Read cases and alerts from Pega",
				Mandatory:   true,
				Alias:       "Read Cases",
			},
			{
				Name:        "read:assignments",
				Description: "Read work assignments",
				Alias:       "Read Assignments",
				Requires:    "read:cases",
			},
		},
		Probes: map[string]*connector.Endpoint{
			connector.DefaultAuthMode: {
				Method:       http.MethodGet,
				BaseURLField: "pega_url",
				Path:         "/api/v1/cases",
				Auth:         &connector.AuthHeader{Header: "Authorization", Scheme: "Bearer", Field: "api_key"},
				OKStatus:     http.StatusOK,
			},
		},
		Mapping: &connector.Mapping{
			Source:      "pega",
			ID:          connector.FieldRule{Keys: []string{"pzInsKey", "case_id", "ID"}},
			Name:        connector.FieldRule{Keys: []string{"pyLabel", "name", "title"}, Default: "Pega Case {id}"},
			Description: connector.FieldRule{Keys: []string{"pyDescription", "description", "message"}},
			Timestamp:   connector.FieldRule{Keys: []string{"pxCreateDateTime", "timestamp"}},
			Severity: connector.SeverityMapping{
				Keys:    []string{"pyUrgency", "urgency"},
				Default: "30",
				Table: map[string]models.Severity{
					"10":       models.SeverityCritical,
					"20":       models.SeverityHigh,
					"30":       models.SeverityWarning,
					"40":       models.SeverityLow,
					"50":       models.SeverityInfo,
					"critical": models.SeverityCritical,
					"high":     models.SeverityHigh,
					"medium":   models.SeverityWarning,
					"low":      models.SeverityLow,
					"info":     models.SeverityInfo,
				},
			},
			Status: connector.StatusMapping{
				Keys:    []string{"pyStatusWork", "status"},
				Default: "Open",
				Policy:  connector.StatusContains,
				Rules: []connector.StatusRule{
					{Keyword: "new", Status: models.AlertFiring},
					{Keyword: "open", Status: models.AlertFiring},
					{Keyword: "pending", Status: models.AlertFiring},
					{Keyword: "resolved", Status: models.AlertResolved},
					{Keyword: "closed", Status: models.AlertResolved},
					{Keyword: "cancelled", Status: models.AlertResolved},
				},
			},
			Derived: []connector.DerivedField{
				{Name: "case_type", FieldRule: connector.FieldRule{Keys: []string{"pyClassName", "case_type"}}},
			},
			FingerprintFields: []string{"source", "id"},
		},
		WebhookNotes: apiKeyWebhookNotes,
	}
}
