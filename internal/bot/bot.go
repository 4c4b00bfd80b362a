package bot

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"alertbridge/internal/connector"
	"alertbridge/internal/models"

	"gopkg.in/telebot.v3"
)

// Callback Prefixes
const (
	probeConnectorPrefix = "pr:"
)

const (
	commandTimeout = 30 * time.Second
	alertPageSize  = 10
)

// Sender is the part of *telebot.Bot used to deliver messages.
type Sender interface {
	Send(to telebot.Recipient, what interface{}, opts ...interface{}) (*telebot.Message, error)
}

// Service is what the bot needs from the connector service.
type Service interface {
	ListTypes() []*connector.Definition
	List(ctx context.Context) ([]*models.ConnectorInstance, error)
	ListAlerts(ctx context.Context, limit int, offset int) ([]*models.AlertRecord, error)
	Probe(ctx context.Context, id string) (models.ScopeResult, error)
}

type Bot struct {
	bot            *telebot.Bot
	sender         Sender
	service        Service
	alertChannelID int64
	logger         *slog.Logger
}

// isHighSeverity checks if an alert is "critical" or "high".
func isHighSeverity(record *models.AlertRecord) bool {
	return record.Severity == models.SeverityCritical || record.Severity == models.SeverityHigh
}

func NewBot(token string, service Service, alertChannelID int64, logger *slog.Logger) (*Bot, error) {
	pref := telebot.Settings{Token: token, Poller: &telebot.LongPoller{Timeout: 10 * time.Second}}
	b, err := telebot.NewBot(pref)
	if err != nil {
		return nil, err
	}
	botInstance := newBot(b, service, alertChannelID, logger)
	botInstance.bot = b
	b.Use(botInstance.contextMiddleware())
	return botInstance, nil
}

func newBot(sender Sender, service Service, alertChannelID int64, logger *slog.Logger) *Bot {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Bot{
		sender:         sender,
		service:        service,
		alertChannelID: alertChannelID,
		logger:         logger.With("component", "telegram_bot"),
	}
}

// Start registers handlers, starts the notifier and blocks polling updates
// until ctx is cancelled.
func (b *Bot) Start(ctx context.Context, notifChan <-chan *models.AlertRecord) {
	b.registerHandlers()
	go b.startNotifier(ctx, notifChan)
	go func() {
		<-ctx.Done()
		b.bot.Stop()
	}()
	b.logger.Info("telegram bot starting")
	b.bot.Start()
}

func (b *Bot) startNotifier(ctx context.Context, notifChan <-chan *models.AlertRecord) {
	b.logger.Info("notification listener started")
	for {
		select {
		case <-ctx.Done():
			return
		case record, ok := <-notifChan:
			if !ok {
				return
			}
			if err := b.notify(record); err != nil {
				b.logger.Error("failed to send alert notification", "fingerprint", record.Fingerprint, "error", err)
			}
		}
	}
}

// notify posts an alert to the alert channel. Only high and critical alerts
// that are still firing make a sound.
func (b *Bot) notify(record *models.AlertRecord) error {
	if b.alertChannelID == 0 {
		b.logger.Debug("alert channel ID is not configured, skipping notification")
		return nil
	}
	opts := &telebot.SendOptions{
		ParseMode:             telebot.ModeMarkdownV2,
		DisableWebPagePreview: true,
		DisableNotification:   !isHighSeverity(record) || record.Status != models.AlertFiring,
	}
	_, err := b.sender.Send(&telebot.Chat{ID: b.alertChannelID}, formatAlertMessage(record), opts)
	return err
}

func (b *Bot) registerHandlers() {
	b.bot.Handle("/start", b.handleStart)
	b.bot.Handle("/types", b.handleTypes)
	b.bot.Handle("/connectors", b.handleConnectors)
	b.bot.Handle("/alerts", b.handleAlerts)
	b.bot.Handle("/probe", b.handleProbe)
	b.bot.Handle(telebot.OnCallback, b.handleCallback)
}

func (b *Bot) handleStart(c telebot.Context) error {
	return c.Send("Добро пожаловать! Команды: /connectors, /alerts, /types, /probe <ID>.")
}

func (b *Bot) handleTypes(c telebot.Context) error {
	return c.Send(b.renderTypes(), telebot.ModeMarkdownV2)
}

func (b *Bot) handleConnectors(c telebot.Context) error {
	text, markup, err := b.renderConnectors(requestContext(c))
	if err != nil {
		b.logger.Error("failed to list connectors", "error", err)
		return c.Send("Не удалось получить список коннекторов.")
	}
	return c.Send(text, markup, telebot.ModeMarkdownV2)
}

func (b *Bot) handleAlerts(c telebot.Context) error {
	text, err := b.renderAlerts(requestContext(c))
	if err != nil {
		b.logger.Error("failed to list alerts", "error", err)
		return c.Send("Не удалось получить список алертов.")
	}
	return c.Send(text, telebot.ModeMarkdownV2)
}

func (b *Bot) handleProbe(c telebot.Context) error {
	args := c.Args()
	if len(args) != 1 {
		return c.Send("Пожалуйста, укажите ID коннектора. \nИспользование: `/probe <ID>`")
	}
	return c.Send(b.renderProbe(requestContext(c), args[0]), telebot.ModeMarkdownV2)
}

func (b *Bot) handleCallback(c telebot.Context) error {
	data := c.Data()
	if !strings.HasPrefix(data, probeConnectorPrefix) {
		return c.Respond()
	}
	id := strings.TrimPrefix(data, probeConnectorPrefix)
	if err := c.Respond(&telebot.CallbackResponse{Text: "Проверяю…"}); err != nil {
		b.logger.Warn("failed to answer callback", "error", err)
	}
	return c.Send(b.renderProbe(requestContext(c), id), telebot.ModeMarkdownV2)
}

func (b *Bot) contextMiddleware() telebot.MiddlewareFunc {
	return func(next telebot.HandlerFunc) telebot.HandlerFunc {
		return func(c telebot.Context) error {
			ctx, cancel := context.WithTimeout(context.Background(), commandTimeout)
			defer cancel()
			if sender := c.Sender(); sender != nil {
				b.logger.Debug("telegram update", "user", sender.Username, "text", c.Text())
			}
			c.Set("ctx", ctx)
			return next(c)
		}
	}
}

func requestContext(c telebot.Context) context.Context {
	if ctx, ok := c.Get("ctx").(context.Context); ok {
		return ctx
	}
	return context.Background()
}

func (b *Bot) renderTypes() string {
	var builder strings.Builder
	builder.WriteString("*Типы коннекторов*\n\n")
	for _, def := range b.service.ListTypes() {
		var caps []string
		if def.CanIngest() {
			caps = append(caps, "alerts")
		}
		if def.CanDispatch() {
			caps = append(caps, "dispatch")
		}
		builder.WriteString(fmt.Sprintf("∙ *%s* `%s` %s\n",
			escapeMarkdown(def.DisplayName), escapeMarkdown(def.Type), escapeMarkdown(strings.Join(caps, ", "))))
	}
	return builder.String()
}

func (b *Bot) renderConnectors(ctx context.Context) (string, *telebot.ReplyMarkup, error) {
	instances, err := b.service.List(ctx)
	if err != nil {
		return "", nil, err
	}
	if len(instances) == 0 {
		return "Активированных коннекторов нет\\.", &telebot.ReplyMarkup{}, nil
	}

	var builder strings.Builder
	var keyboard [][]telebot.InlineButton
	builder.WriteString("*Коннекторы*\n\n")
	for _, inst := range instances {
		builder.WriteString(fmt.Sprintf("%s *%s* `%s` \\(%s\\)\n",
			stateIcon(inst.State), escapeMarkdown(inst.Name), escapeMarkdown(inst.ID), escapeMarkdown(inst.Type)))
		keyboard = append(keyboard, []telebot.InlineButton{{
			Text: "Проверить " + inst.Name,
			Data: probeConnectorPrefix + inst.ID,
		}})
	}
	return builder.String(), &telebot.ReplyMarkup{InlineKeyboard: keyboard}, nil
}

func (b *Bot) renderAlerts(ctx context.Context) (string, error) {
	alerts, err := b.service.ListAlerts(ctx, alertPageSize, 0)
	if err != nil {
		return "", err
	}
	if len(alerts) == 0 {
		return "Алертов пока нет\\.", nil
	}
	var builder strings.Builder
	builder.WriteString("*Последние алерты*\n\n")
	for _, a := range alerts {
		builder.WriteString(fmt.Sprintf("%s *%s* `%s` ×%d\n",
			severityIcon(a.Severity), escapeMarkdown(a.Name), escapeMarkdown(string(a.Status)), a.Occurrences))
	}
	return builder.String(), nil
}

func (b *Bot) renderProbe(ctx context.Context, id string) string {
	scopes, err := b.service.Probe(ctx, id)
	if err != nil {
		return escapeMarkdown(fmt.Sprintf("Не удалось проверить коннектор %s: %v", id, err))
	}
	var builder strings.Builder
	builder.WriteString(fmt.Sprintf("*Проверка* `%s`\n\n", escapeMarkdown(id)))
	for _, name := range scopes.Names() {
		outcome := scopes[name]
		if outcome.Granted {
			builder.WriteString(fmt.Sprintf("✅ `%s`\n", escapeMarkdown(name)))
			continue
		}
		builder.WriteString(fmt.Sprintf("❌ `%s`: %s\n", escapeMarkdown(name), escapeMarkdown(outcome.Reason)))
	}
	return builder.String()
}

func formatAlertMessage(record *models.AlertRecord) string {
	var builder strings.Builder

	header := "🚨"
	if record.Status == models.AlertResolved {
		header = "✅"
	}
	builder.WriteString(fmt.Sprintf("%s *%s* %s\n", header, escapeMarkdown(record.Name), header))
	builder.WriteString(fmt.Sprintf("∙ *Severity:* `%s`\n", escapeMarkdown(string(record.Severity))))
	builder.WriteString(fmt.Sprintf("∙ *Статус:* `%s`\n", escapeMarkdown(string(record.Status))))
	if record.Source != "" {
		builder.WriteString(fmt.Sprintf("∙ *Источник:* `%s`\n", escapeMarkdown(record.Source)))
	}
	if record.AlertID != "" {
		builder.WriteString(fmt.Sprintf("∙ *ID:* `%s`\n", escapeMarkdown(record.AlertID)))
	}
	if record.Description != "" {
		builder.WriteString(fmt.Sprintf("∙ *Описание:* %s\n", escapeMarkdown(record.Description)))
	}
	if record.Occurrences > 1 {
		builder.WriteString(fmt.Sprintf("∙ *Повторов:* %d\n", record.Occurrences))
	}
	return builder.String()
}

func stateIcon(state models.ConnectorState) string {
	switch state {
	case models.ConnectorActive:
		return "🟢"
	case models.ConnectorDegraded:
		return "🟡"
	default:
		return "⚪"
	}
}

func severityIcon(severity models.Severity) string {
	switch severity {
	case models.SeverityCritical:
		return "🔴"
	case models.SeverityHigh:
		return "🟠"
	case models.SeverityWarning:
		return "🟡"
	default:
		return "🔵"
	}
}

func escapeMarkdown(s string) string {
	replacer := strings.NewReplacer(
		"\\", "\\\\",
		"_", "\\_", "*", "\\*", "[", "\\[", "]", "\\]", "(",
		"\\(", ")", "\\)", "~", "\\~", "`", "\\`", ">", "\\>",
		"#", "\\#", "+", "\\+", "-", "\\-", "=", "\\=", "|",
		"\\|", "{", "\\{", "}", "\\}", ".", "\\.", "!", "\\!",
	)
	return replacer.Replace(s)
}
