// Package vendors holds the built-in connector definitions.
package vendors

import "alertbridge/internal/connector"

// All returns fresh copies of every built-in definition.
func All() []*connector.Definition {
	return []*connector.Definition{
		Alkami(),
		N8N(),
		Pega(),
	}
}

// apiKeyWebhookNotes is the inbound webhook setup shared by vendors that push
// alerts with a static header.
const apiKeyWebhookNotes = `Configure the vendor to POST alerts to {webhook_url}
with the header "X-API-KEY: {api_key}" (or "Authorization: Bearer {api_key}").
The body may be a single alert object, an array of alerts, or {"alerts": [...]}.`
