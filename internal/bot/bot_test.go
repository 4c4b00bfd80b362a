package bot

import (
	"context"
	"errors"
	"sync"
	"testing"

	"alertbridge/internal/connector"
	"alertbridge/internal/connector/vendors"
	"alertbridge/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/telebot.v3"
)

type sentMessage struct {
	to   telebot.Recipient
	what interface{}
	opts []interface{}
}

type fakeSender struct {
	mu   sync.Mutex
	sent []sentMessage
}

func (f *fakeSender) Send(to telebot.Recipient, what interface{}, opts ...interface{}) (*telebot.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, sentMessage{to, what, opts})
	return &telebot.Message{ID: len(f.sent)}, nil
}

func (f *fakeSender) messages() []sentMessage {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]sentMessage(nil), f.sent...)
}

type fakeService struct {
	instances []*models.ConnectorInstance
	alerts    []*models.AlertRecord
	scopes    models.ScopeResult
	err       error
}

func (f *fakeService) ListTypes() []*connector.Definition { return vendors.All() }

func (f *fakeService) List(context.Context) ([]*models.ConnectorInstance, error) {
	return f.instances, f.err
}

func (f *fakeService) ListAlerts(context.Context, int, int) ([]*models.AlertRecord, error) {
	return f.alerts, f.err
}

func (f *fakeService) Probe(context.Context, string) (models.ScopeResult, error) {
	return f.scopes, f.err
}

func sendOptions(t *testing.T, msg sentMessage) *telebot.SendOptions {
	t.Helper()
	require.Len(t, msg.opts, 1)
	opts, ok := msg.opts[0].(*telebot.SendOptions)
	require.True(t, ok)
	return opts
}

func TestNotify_LoudOnlyForFiringHighSeverity(t *testing.T) {
	tests := []struct {
		name   string
		record models.AlertRecord
		silent bool
	}{
		{"critical firing", models.AlertRecord{Severity: models.SeverityCritical, Status: models.AlertFiring}, false},
		{"high firing", models.AlertRecord{Severity: models.SeverityHigh, Status: models.AlertFiring}, false},
		{"critical resolved", models.AlertRecord{Severity: models.SeverityCritical, Status: models.AlertResolved}, true},
		{"warning firing", models.AlertRecord{Severity: models.SeverityWarning, Status: models.AlertFiring}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sender := &fakeSender{}
			b := newBot(sender, &fakeService{}, -100123, nil)
			record := tt.record
			record.Name = "Disk full"

			require.NoError(t, b.notify(&record))

			msgs := sender.messages()
			require.Len(t, msgs, 1)
			assert.Equal(t, "-100123", msgs[0].to.Recipient())
			opts := sendOptions(t, msgs[0])
			assert.Equal(t, telebot.ModeMarkdownV2, opts.ParseMode)
			assert.Equal(t, tt.silent, opts.DisableNotification)
		})
	}
}

func TestNotify_NoChannelConfigured(t *testing.T) {
	sender := &fakeSender{}
	b := newBot(sender, &fakeService{}, 0, nil)
	require.NoError(t, b.notify(&models.AlertRecord{Severity: models.SeverityCritical}))
	assert.Empty(t, sender.messages())
}

func TestStartNotifier_StopsOnClose(t *testing.T) {
	sender := &fakeSender{}
	b := newBot(sender, &fakeService{}, 1, nil)
	ch := make(chan *models.AlertRecord, 2)
	ch <- &models.AlertRecord{Name: "a", Severity: models.SeverityInfo, Status: models.AlertFiring}
	ch <- &models.AlertRecord{Name: "b", Severity: models.SeverityInfo, Status: models.AlertFiring}
	close(ch)

	b.startNotifier(context.Background(), ch)
	assert.Len(t, sender.messages(), 2)
}

func TestFormatAlertMessage(t *testing.T) {
	msg := formatAlertMessage(&models.AlertRecord{
		Name:        "CPU > 90% (node-1)",
		AlertID:     "A_1",
		Description: "load is high!",
		Severity:    models.SeverityHigh,
		Status:      models.AlertFiring,
		Source:      "pega",
		Occurrences: 3,
	})
	assert.Contains(t, msg, "🚨 *CPU \\> 90% \\(node\\-1\\)* 🚨")
	assert.Contains(t, msg, "`A\\_1`")
	assert.Contains(t, msg, "load is high\\!")
	assert.Contains(t, msg, "*Повторов:* 3")

	resolved := formatAlertMessage(&models.AlertRecord{Name: "x", Status: models.AlertResolved, Occurrences: 1})
	assert.Contains(t, resolved, "✅")
	assert.NotContains(t, resolved, "Повторов")
}

func TestRenderConnectors(t *testing.T) {
	svc := &fakeService{instances: []*models.ConnectorInstance{
		{ID: "id-1", Name: "pega-prod", Type: "pega", State: models.ConnectorDegraded},
		{ID: "id-2", Name: "n8n", Type: "n8n", State: models.ConnectorActive},
	}}
	b := newBot(&fakeSender{}, svc, 0, nil)

	text, markup, err := b.renderConnectors(context.Background())
	require.NoError(t, err)
	assert.Contains(t, text, "🟡 *pega\\-prod* `id\\-1` \\(pega\\)")
	assert.Contains(t, text, "🟢 *n8n*")
	require.Len(t, markup.InlineKeyboard, 2)
	assert.Equal(t, "pr:id-1", markup.InlineKeyboard[0][0].Data)

	svc.instances = nil
	text, _, err = b.renderConnectors(context.Background())
	require.NoError(t, err)
	assert.Contains(t, text, "нет")

	svc.err = errors.New("db down")
	_, _, err = b.renderConnectors(context.Background())
	assert.Error(t, err)
}

func TestRenderProbe(t *testing.T) {
	svc := &fakeService{scopes: models.ScopeResult{
		"read:cases":       models.Granted(),
		"read:assignments": models.Denied("not validated: prerequisite scope %q failed", "read:cases"),
	}}
	b := newBot(&fakeSender{}, svc, 0, nil)

	text := b.renderProbe(context.Background(), "id-1")
	assert.Contains(t, text, "✅ `read:cases`")
	assert.Contains(t, text, "❌ `read:assignments`: not validated")

	svc.err = errors.New("boom")
	assert.Contains(t, b.renderProbe(context.Background(), "id-1"), "boom")
}

func TestRenderTypesAndAlerts(t *testing.T) {
	svc := &fakeService{alerts: []*models.AlertRecord{
		{Name: "Fraud", Severity: models.SeverityCritical, Status: models.AlertFiring, Occurrences: 2},
	}}
	b := newBot(&fakeSender{}, svc, 0, nil)

	types := b.renderTypes()
	assert.Contains(t, types, "*Pega* `pega` alerts")
	assert.Contains(t, types, "`n8n` dispatch")

	alerts, err := b.renderAlerts(context.Background())
	require.NoError(t, err)
	assert.Contains(t, alerts, "🔴 *Fraud* `firing` ×2")
}
