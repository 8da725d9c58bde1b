package handler

import (
	"bytes"
	"errors"
	"html/template"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/noah-isme/marketing-agent/internal/dto"
	"github.com/noah-isme/marketing-agent/internal/models"
	"github.com/noah-isme/marketing-agent/internal/service"
)

// emailActor is recorded as approver for decisions made through email links.
const emailActor = "email"

const webhookPageTemplate = `<!DOCTYPE html>
<html>
<head><meta charset="utf-8"><title>{{.Title}}</title></head>
<body style="font-family: sans-serif; max-width: 640px; margin: 40px auto;">
<h1>{{.Title}}</h1>
{{if .Message}}<p>{{.Message}}</p>{{end}}
{{with .Action}}
<table>
<tr><td><strong>Type</strong></td><td>{{.TypeName}}</td></tr>
<tr><td><strong>Status</strong></td><td>{{.Status}}</td></tr>
<tr><td><strong>Summary</strong></td><td>{{.PayloadSummary}}</td></tr>
{{if .Reasoning}}<tr><td><strong>Reasoning</strong></td><td>{{.Reasoning}}</td></tr>{{end}}
{{if .ExpectedImpact}}<tr><td><strong>Expected impact</strong></td><td>{{.ExpectedImpact}}</td></tr>{{end}}
<tr><td><strong>Confidence</strong></td><td>{{.Confidence}}</td></tr>
<tr><td><strong>Expires</strong></td><td>{{.ExpiresAt.Format "2006-01-02 15:04 MST"}}</td></tr>
</table>
{{end}}
{{if .Form}}
<form method="post">
<textarea name="content" rows="10" cols="70">{{.Content}}</textarea>
<p><button type="submit">Save and approve</button></p>
</form>
{{end}}
{{with .Links}}
<p>
<a href="{{.Approve}}">Approve</a> |
<a href="{{.Reject}}">Reject</a>{{if .Edit}} |
<a href="{{.Edit}}">Edit</a>{{end}}
</p>
{{end}}
</body>
</html>`

type webhookPage struct {
	Title   string
	Message string
	Action  *dto.ActionResponse
	Links   *dto.ActionLinks
	Form    bool
	Content string
}

// WebhookHandler serves the approval links sent by email.
type WebhookHandler struct {
	approvals service.ApprovalService
	executor  service.ExecutorService
	dashboard service.DashboardService
	logger    zerolog.Logger
	page      *template.Template
}

// NewWebhookHandler constructs a webhook handler. dashboard may be nil.
func NewWebhookHandler(approvals service.ApprovalService, executor service.ExecutorService, dashboard service.DashboardService, logger zerolog.Logger) *WebhookHandler {
	return &WebhookHandler{
		approvals: approvals,
		executor:  executor,
		dashboard: dashboard,
		logger:    logger.With().Str("component", "webhook_handler").Logger(),
		page:      template.Must(template.New("webhook").Parse(webhookPageTemplate)),
	}
}

// Register binds the webhook routes.
func (h *WebhookHandler) Register(router fiber.Router) {
	router.Get("/approve/:token", h.approve)
	router.Get("/reject/:token", h.reject)
	router.Get("/view/:token", h.view)
	router.Get("/edit/:token", h.editForm)
	router.Post("/edit/:token", h.edit)
}

func (h *WebhookHandler) approve(c *fiber.Ctx) error {
	ctx := requestContext(c)
	action, err := h.approvals.Approve(ctx, c.Params("token"), emailActor)
	if err != nil {
		return h.renderError(c, err)
	}
	h.invalidate(c)
	return h.executeAndRender(c, action, "Action approved")
}

func (h *WebhookHandler) reject(c *fiber.Ctx) error {
	ctx := requestContext(c)
	action, err := h.approvals.Reject(ctx, c.Params("token"), emailActor, "")
	if err != nil {
		return h.renderError(c, err)
	}
	h.invalidate(c)

	response := dto.NewActionResponse(action)
	return h.render(c, fiber.StatusOK, webhookPage{
		Title:   "Action rejected",
		Message: "The action was rejected and will not be executed.",
		Action:  &response,
	})
}

func (h *WebhookHandler) view(c *fiber.Ctx) error {
	action, err := h.approvals.GetByToken(requestContext(c), c.Params("token"))
	if err != nil {
		return h.renderError(c, err)
	}
	if action == nil {
		return h.renderError(c, service.ErrNotFound)
	}

	response := dto.NewActionResponse(*action)
	page := webhookPage{Title: response.TypeName, Action: &response}
	if action.Status == models.StatusPending {
		links := h.approvals.Links(*action)
		page.Links = &links
	}
	return h.render(c, fiber.StatusOK, page)
}

func (h *WebhookHandler) editForm(c *fiber.Ctx) error {
	action, err := h.approvals.GetByToken(requestContext(c), c.Params("token"))
	if err != nil {
		return h.renderError(c, err)
	}
	if action == nil || action.Status != models.StatusPending {
		return h.renderError(c, service.ErrNotFound)
	}

	payload, err := action.Decode()
	if err != nil {
		return h.renderError(c, err)
	}
	post, ok := payload.(models.CreatePostPayload)
	if !ok {
		return h.renderError(c, service.ErrEditNotAllowed)
	}

	response := dto.NewActionResponse(*action)
	return h.render(c, fiber.StatusOK, webhookPage{
		Title:   "Edit post",
		Action:  &response,
		Form:    true,
		Content: post.Content,
	})
}

func (h *WebhookHandler) edit(c *fiber.Ctx) error {
	var req dto.EditPostRequest
	if err := c.BodyParser(&req); err != nil || strings.TrimSpace(req.Content) == "" {
		return h.render(c, fiber.StatusBadRequest, webhookPage{
			Title:   "Invalid request",
			Message: "Post content is required.",
		})
	}

	action, err := h.approvals.EditAndApprove(requestContext(c), c.Params("token"), req.Content, emailActor)
	if err != nil {
		return h.renderError(c, err)
	}
	h.invalidate(c)
	return h.executeAndRender(c, action, "Post updated and approved")
}

// executeAndRender runs the approved action right away instead of waiting for the backlog sweep.
func (h *WebhookHandler) executeAndRender(c *fiber.Ctx, action models.PendingAction, title string) error {
	logger := requestLogger(h.logger, c)
	outcome, err := h.executor.Execute(requestContext(c), action)
	page := webhookPage{Title: title}

	switch {
	case err != nil:
		logger.Error().Err(err).Str("action_id", action.ID).Msg("immediate execution failed")
		page.Message = "The action was approved but could not be executed right now. The next scheduled run will pick it up or record its outcome."
	case outcome.Skipped:
		page.Message = "The action was approved and is already being executed."
	case outcome.Success:
		page.Message = "The action was approved and executed successfully."
	default:
		page.Message = "The action was approved but execution failed: " + outcome.Error
	}

	if refreshed, getErr := h.approvals.GetByID(requestContext(c), action.ID); getErr == nil && refreshed != nil {
		action = *refreshed
	}
	response := dto.NewActionResponse(action)
	page.Action = &response
	return h.render(c, fiber.StatusOK, page)
}

func (h *WebhookHandler) renderError(c *fiber.Ctx, err error) error {
	switch {
	case errors.Is(err, service.ErrNotFound), errors.Is(err, service.ErrAlreadyDecided):
		return h.render(c, fiber.StatusNotFound, webhookPage{
			Title:   "Link unavailable",
			Message: "This link is invalid or already used.",
		})
	case errors.Is(err, service.ErrExpired):
		return h.render(c, fiber.StatusGone, webhookPage{
			Title:   "Action expired",
			Message: "The approval window for this action has closed.",
		})
	case errors.Is(err, service.ErrEditNotAllowed):
		return h.render(c, fiber.StatusBadRequest, webhookPage{
			Title:   "Edit not available",
			Message: "Only post content can be edited.",
		})
	default:
		requestLogger(h.logger, c).Error().Err(err).Msg("webhook request failed")
		return h.render(c, fiber.StatusInternalServerError, webhookPage{
			Title:   "Something went wrong",
			Message: "The request could not be processed. Please try again later.",
		})
	}
}

func (h *WebhookHandler) render(c *fiber.Ctx, status int, page webhookPage) error {
	var buf bytes.Buffer
	if err := h.page.Execute(&buf, page); err != nil {
		return err
	}
	c.Set(fiber.HeaderContentType, fiber.MIMETextHTMLCharsetUTF8)
	return c.Status(status).Send(buf.Bytes())
}

func (h *WebhookHandler) invalidate(c *fiber.Ctx) {
	if h.dashboard != nil {
		h.dashboard.Invalidate(requestContext(c))
	}
}
