package vendors

import (
	"net/http"

	"alertbridge/internal/connector"
)

// N8N triggers n8n workflows, either through a pre-authorized webhook or by
// executing a workflow through the REST API.
func N8N() *connector.Definition {
	apiKey := &connector.AuthHeader{Header: "X-N8N-API-KEY", Field: "api_key"}
	return &connector.Definition{
		Type:        "n8n",
		DisplayName: "n8n",
		Categories:  []string{"Orchestration", "Developer Tools"},
		Tags:        []string{"messaging", "queue"},
		Fields: []connector.FieldDescriptor{
			{
				Name:        "n8n_url",
				Description: "N8n instance URL",
				Hint:        "https://your-n8n-instance.com",
				Validation:  connector.ValidateAnyHTTPURL,
			},
			{
				Name:        "api_key",
				Description: "N8n API Key",
				Hint:        "API key for n8n authentication",
				Sensitive:   true,
			},
			{
				Name:        "webhook_url",
				Description: "N8n Webhook URL",
				Hint:        "Webhook URL for triggering n8n workflows",
				Validation:  connector.ValidateAnyHTTPURL,
			},
		},
		AuthModes: []connector.AuthMode{
			{Name: "webhook", Fields: []string{"webhook_url"}},
			{Name: "api", Fields: []string{"n8n_url", "api_key"}},
		},
		Scopes: []connector.ScopeDeclaration{
			{
				Name:        "trigger_workflow",
				Description: "Trigger n8n workflows via webhook",
				Mandatory:   true,
				Alias:       "Trigger Workflow",
			},
		},
		// Webhook URLs are bearer credentials; calling one would run the workflow.
		Probes: map[string]*connector.Endpoint{
			"api": {
				Method:       http.MethodGet,
				BaseURLField: "n8n_url",
				Path:         "/api/v1/workflows",
				Auth:         apiKey,
				OKStatus:     http.StatusOK,
			},
		},
		Dispatch: &connector.DispatchSpec{
			WebhookField: "webhook_url",
			Execute: &connector.Endpoint{
				Method:       http.MethodPost,
				BaseURLField: "n8n_url",
				Path:         "/api/v1/workflows/{id}/execute",
				Auth:         apiKey,
			},
			ExecutionIDPath: "data.id",
			List: &connector.Endpoint{
				Method:       http.MethodGet,
				BaseURLField: "n8n_url",
				Path:         "/api/v1/workflows",
				Auth:         apiKey,
			},
			ListPath: "data",
		},
	}
}
