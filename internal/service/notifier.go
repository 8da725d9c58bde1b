package service

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"html/template"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/noah-isme/marketing-agent/internal/dto"
	"github.com/noah-isme/marketing-agent/internal/models"
	"github.com/noah-isme/marketing-agent/internal/observability"
	"github.com/noah-isme/marketing-agent/pkg/mailer"
)

// Mailer is the outgoing email transport.
type Mailer interface {
	Send(ctx context.Context, msg mailer.Message) (mailer.Result, error)
}

// Notifier sends the agent's emails. Every call is best-effort from the caller's point of view.
type Notifier interface {
	ApprovalRequest(ctx context.Context, to string, action models.PendingAction, links dto.ActionLinks) error
	Confirmation(ctx context.Context, to string, action models.PendingAction, outcome dto.ExecutionResponse) error
	BudgetAlert(ctx context.Context, to string, status dto.BudgetStatus, threshold int) error
	DailyReport(ctx context.Context, to string, report dto.Report) error
	WeeklyReport(ctx context.Context, to string, report dto.Report) error
}

type emailNotifier struct {
	mailer    Mailer
	agentName string
	templates *template.Template
	logger    zerolog.Logger
}

// NewEmailNotifier renders the agent's emails with html/template and sends them through m.
func NewEmailNotifier(m Mailer, agentName string, logger zerolog.Logger) Notifier {
	if agentName == "" {
		agentName = "Marketing Agent"
	}
	return &emailNotifier{
		mailer:    m,
		agentName: agentName,
		templates: template.Must(template.New("email").Funcs(template.FuncMap{
			"money": models.FormatMinorUnits,
			"date":  func(t time.Time) string { return t.UTC().Format("2006-01-02 15:04 MST") },
		}).Parse(emailTemplates)),
		logger: logger.With().Str("component", "notifier").Logger(),
	}
}

func (n *emailNotifier) ApprovalRequest(ctx context.Context, to string, action models.PendingAction, links dto.ActionLinks) error {
	data := map[string]interface{}{
		"Agent":    n.agentName,
		"TypeName": action.Type.DisplayName(),
		"Action":   action,
		"Payload":  prettyJSON(action.Payload),
		"Links":    links,
	}
	text := fmt.Sprintf("%s proposes: %s\n\n%s\n\nApprove: %s\nReject: %s\n", n.agentName, action.Type.DisplayName(), action.Reasoning, links.Approve, links.Reject)
	return n.send(ctx, "approval_request", to, fmt.Sprintf("[%s] Approval needed: %s", n.agentName, action.Type.DisplayName()), "approval_request", data, text)
}

func (n *emailNotifier) Confirmation(ctx context.Context, to string, action models.PendingAction, outcome dto.ExecutionResponse) error {
	state := "executed"
	if !outcome.Success {
		state = "failed"
	}
	data := map[string]interface{}{
		"Agent":    n.agentName,
		"TypeName": action.Type.DisplayName(),
		"Action":   action,
		"Outcome":  outcome,
		"Result":   prettyJSON(mustJSON(outcome.Result)),
	}
	return n.send(ctx, "confirmation", to, fmt.Sprintf("[%s] %s %s", n.agentName, action.Type.DisplayName(), state), "confirmation", data, "")
}

func (n *emailNotifier) BudgetAlert(ctx context.Context, to string, status dto.BudgetStatus, threshold int) error {
	data := map[string]interface{}{
		"Agent":     n.agentName,
		"Status":    status,
		"Threshold": threshold,
	}
	subject := fmt.Sprintf("[%s] Budget alert: %d%% of monthly budget used", n.agentName, status.Monthly.PercentUsed)
	return n.send(ctx, "budget_alert", to, subject, "budget_alert", data, "")
}

func (n *emailNotifier) DailyReport(ctx context.Context, to string, report dto.Report) error {
	return n.report(ctx, "daily_report", to, report)
}

func (n *emailNotifier) WeeklyReport(ctx context.Context, to string, report dto.Report) error {
	return n.report(ctx, "weekly_report", to, report)
}

func (n *emailNotifier) report(ctx context.Context, kind, to string, report dto.Report) error {
	data := map[string]interface{}{
		"Agent":  n.agentName,
		"Report": report,
	}
	return n.send(ctx, kind, to, fmt.Sprintf("[%s] %s", n.agentName, report.Title), "report", data, "")
}

func (n *emailNotifier) send(ctx context.Context, kind, to, subject, name string, data interface{}, text string) error {
	if to == "" {
		return fmt.Errorf("%s: no recipient configured", kind)
	}

	var body bytes.Buffer
	if err := n.templates.ExecuteTemplate(&body, name, data); err != nil {
		observability.NotificationFailures().WithLabelValues(kind).Inc()
		return fmt.Errorf("render %s email: %w", kind, err)
	}

	result, err := n.mailer.Send(ctx, mailer.Message{To: to, Subject: subject, HTML: body.String(), Text: text})
	if err != nil {
		observability.NotificationFailures().WithLabelValues(kind).Inc()
		return err
	}

	n.logger.Info().Str("kind", kind).Str("to", maskRecipient(to)).Str("message_id", result.MessageID).Msg("email sent")
	return nil
}

// maskRecipient keeps only the first and last letter of the mailbox for logs.
func maskRecipient(email string) string {
	email = strings.TrimSpace(strings.ToLower(email))
	if email == "" {
		return ""
	}
	local, domain, ok := strings.Cut(email, "@")
	if !ok || local == "" || strings.Contains(domain, "@") {
		return "***"
	}
	if len(local) <= 2 {
		return local[:1] + "***@" + domain
	}
	return local[:1] + "***" + local[len(local)-1:] + "@" + domain
}

func prettyJSON(raw []byte) string {
	if len(raw) == 0 {
		return "{}"
	}
	var out bytes.Buffer
	if err := json.Indent(&out, raw, "", "  "); err != nil {
		return string(raw)
	}
	return out.String()
}

func mustJSON(value interface{}) []byte {
	data, err := json.Marshal(value)
	if err != nil {
		return nil
	}
	return data
}

const emailTemplates = `
{{define "header"}}<html><body style="font-family: Arial, sans-serif; max-width: 640px; margin: 0 auto;"><h2>{{.Agent}}</h2>{{end}}
{{define "footer"}}<p style="color:#888;font-size:12px;">Sent by {{.Agent}}.</p></body></html>{{end}}

{{define "approval_request"}}{{template "header" .}}
<h3>{{.TypeName}}</h3>
<p><strong>Reasoning:</strong> {{.Action.Reasoning}}</p>
<p><strong>Expected impact:</strong> {{.Action.ExpectedImpact}}</p>
<p><strong>Confidence:</strong> {{.Action.Confidence}}</p>
<pre style="background:#f4f4f4;padding:12px;">{{.Payload}}</pre>
<p>This request expires at {{date .Action.ExpiresAt}}.</p>
<p>
<a href="{{.Links.Approve}}" style="background:#2e7d32;color:#fff;padding:10px 18px;text-decoration:none;">Approve</a>
<a href="{{.Links.Reject}}" style="background:#c62828;color:#fff;padding:10px 18px;text-decoration:none;">Reject</a>
{{if .Links.Edit}}<a href="{{.Links.Edit}}" style="padding:10px 18px;">Edit and approve</a>{{end}}
</p>
<p><a href="{{.Links.View}}">View details</a></p>
{{template "footer" .}}{{end}}

{{define "confirmation"}}{{template "header" .}}
<h3>{{.TypeName}} {{if .Outcome.Success}}executed{{else}}failed{{end}}</h3>
{{if .Outcome.Success}}<pre style="background:#f4f4f4;padding:12px;">{{.Result}}</pre>{{else}}<p style="color:#c62828;">{{.Outcome.Error}}</p>{{end}}
{{template "footer" .}}{{end}}

{{define "budget_alert"}}{{template "header" .}}
<h3>Budget alert</h3>
<p>{{.Status.Monthly.PercentUsed}}% of the monthly budget is used (alert threshold {{.Threshold}}%).</p>
<ul>
<li>Monthly: {{money .Status.Monthly.Spent}} of {{money .Status.Monthly.Limit}}, {{money .Status.Monthly.Remaining}} left</li>
<li>Today: {{money .Status.Daily.Spent}} of {{money .Status.Daily.Limit}}</li>
</ul>
{{template "footer" .}}{{end}}

{{define "report"}}{{template "header" .}}
<h3>{{.Report.Title}}</h3>
<p>{{date .Report.From}} to {{date .Report.To}}</p>
<table cellpadding="4">
<tr><td>Suggested</td><td>{{index .Report.Events "created"}}</td></tr>
<tr><td>Approved</td><td>{{index .Report.Events "approved"}}</td></tr>
<tr><td>Rejected</td><td>{{index .Report.Events "rejected"}}</td></tr>
<tr><td>Executed</td><td>{{index .Report.Events "executed"}}</td></tr>
<tr><td>Failed</td><td>{{index .Report.Events "failed"}}</td></tr>
<tr><td>Waiting for approval</td><td>{{.Report.Pending}}</td></tr>
<tr><td>Spent</td><td>{{money .Report.Spent}}</td></tr>
<tr><td>Monthly budget used</td><td>{{.Report.Budget.Monthly.PercentUsed}}%</td></tr>
</table>
{{if .Report.Goals}}<h4>Goals</h4><ul>{{range .Report.Goals}}<li>{{.Type}} ({{.Period}}): {{.Current}}/{{.Target}}, {{.Percent}}%{{if not .OnTrack}}, behind{{end}}</li>{{end}}</ul>{{end}}
{{template "footer" .}}{{end}}
`
