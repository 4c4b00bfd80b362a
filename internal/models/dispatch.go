package models

// DispatchPath names the outbound mechanism chosen for a dispatch.
type DispatchPath string

const (
	PathWebhook DispatchPath = "webhook"
	PathAPI     DispatchPath = "api"
)

// DispatchRequest is an outbound action aimed at a vendor. WorkflowID selects
// the authenticated API path; otherwise WebhookURL (or the connector's
// configured webhook) is triggered.
type DispatchRequest struct {
	WebhookURL string            `json:"webhook_url,omitempty"`
	WorkflowID string            `json:"workflow_id,omitempty"`
	Message    string            `json:"message,omitempty"`
	Payload    Attributes        `json:"payload"`
	Headers    map[string]string `json:"headers,omitempty"`
	Method     string            `json:"method,omitempty"`
}

// DispatchResult describes the outcome of one dispatch attempt. Response holds
// the decoded JSON body; RawResponse holds the body text when it was not JSON.
type DispatchResult struct {
	Success     bool         `json:"success"`
	Path        DispatchPath `json:"path,omitempty"`
	StatusCode  int          `json:"status_code,omitempty"`
	Response    Value        `json:"response"`
	RawResponse string       `json:"raw_response,omitempty"`
	ExecutionID string       `json:"execution_id,omitempty"`
	Error       string       `json:"error,omitempty"`
}

// Workflow is a vendor-side workflow listed through a connector API.
type Workflow struct {
	ID     string     `json:"id"`
	Name   string     `json:"name"`
	Active bool       `json:"active"`
	Raw    Attributes `json:"raw"`
}
