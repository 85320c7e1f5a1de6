// Package revise runs the feedback-driven revision loop. While a gate
// sits in review, user messages are classified; actionable feedback
// re-runs the gate's primary agent with a revision prompt and stores
// the output as a new document version.
package revise

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/foundrydev/foundry/internal/db"
	"github.com/foundrydev/foundry/internal/document"
	"github.com/foundrydev/foundry/internal/errors"
	"github.com/foundrydev/foundry/internal/events"
	"github.com/foundrydev/foundry/internal/feedback"
	"github.com/foundrydev/foundry/internal/gate"
	"github.com/foundrydev/foundry/internal/runtime"
	"github.com/foundrydev/foundry/internal/spawn"
	"github.com/foundrydev/foundry/internal/stream"
	"github.com/foundrydev/foundry/internal/truth"
)

// feedbackExcerptLimit caps the feedback copy stored on the
// document_revised event.
const feedbackExcerptLimit = 500

// DefaultModel runs revision prompts when none is configured.
const DefaultModel = "claude-sonnet-4-5"

// Action tells the caller what the loop did with a review message.
type Action string

const (
	// ActionRevised means a new document version was produced.
	ActionRevised Action = "revised"
	// ActionApprovalSignal means the message reads as an approval and
	// should go through the gate machine instead.
	ActionApprovalSignal Action = "approval_signal"
	// ActionRejectionSignal means the message reads as a rejection.
	ActionRejectionSignal Action = "rejection_signal"
	// ActionNone means the message was not actionable feedback.
	ActionNone Action = "none"
)

// Outcome reports the result of handling one review message.
type Outcome struct {
	Action         Action
	Classification feedback.Classification
	Document       *db.DocumentRow
	ExecutionID    string
}

// Loop wires the classifier, the document manager, and the streaming
// bridge into the review-time revision cycle.
type Loop struct {
	truth     *truth.Store
	documents *document.Manager
	bridge    *stream.Bridge
	model     string
	logger    *slog.Logger
}

// Option configures a Loop.
type Option func(*Loop)

// WithModel overrides the model used for revision runs.
func WithModel(model string) Option {
	return func(l *Loop) { l.model = model }
}

// WithLogger sets the loop logger.
func WithLogger(logger *slog.Logger) Option {
	return func(l *Loop) { l.logger = logger }
}

// NewLoop creates a revision loop.
func NewLoop(store *truth.Store, documents *document.Manager, bridge *stream.Bridge, opts ...Option) *Loop {
	l := &Loop{
		truth:     store,
		documents: documents,
		bridge:    bridge,
		model:     DefaultModel,
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// actionable categories trigger a revision run. Questions and approvals
// route elsewhere; OTHER is ignored.
var actionable = map[feedback.Category]bool{
	feedback.ChangeRequest: true,
	feedback.BugReport:     true,
	feedback.Preference:    true,
	feedback.Suggestion:    true,
	feedback.Clarification: true,
}

// HandleReviewMessage classifies a message received while a gate is in
// review and, for actionable feedback, runs the revision cycle: log the
// change request, re-run the gate's primary agent with the current
// document and the feedback, and store the output as a new version.
func (l *Loop) HandleReviewMessage(ctx context.Context, projectID string, gateType gate.Type, author, message string) (*Outcome, error) {
	c := feedback.Classify(message)
	outcome := &Outcome{Classification: c, Action: ActionNone}

	switch c.Category {
	case feedback.Approval:
		outcome.Action = ActionApprovalSignal
		return outcome, nil
	case feedback.Rejection:
		outcome.Action = ActionRejectionSignal
		return outcome, nil
	}
	if !actionable[c.Category] {
		return outcome, nil
	}

	docType := document.TypeForGate(gateType)
	if docType == "" {
		return nil, errors.PreconditionFailed(
			fmt.Sprintf("gate %s has no document to revise", gateType))
	}

	g, err := db.GetGate(ctx, l.truth.DB(), projectID, string(gateType))
	if err != nil {
		return nil, errors.Upstream("get gate", err)
	}
	if g == nil || g.Status != string(gate.StatusInReview) {
		return nil, errors.PreconditionFailed(
			fmt.Sprintf("gate %s is not in review", gateType))
	}

	current, err := l.documents.Latest(ctx, projectID, docType)
	if err != nil {
		return nil, err
	}

	if err := l.documents.AppendChangeRequest(ctx, projectID, string(gateType), author, message); err != nil {
		return nil, err
	}

	agent := primaryAgent(gateType)
	execID, err := l.bridge.Execute(ctx, runtime.Request{
		Model:        l.model,
		SystemPrompt: revisionSystemPrompt(agent, docType),
		UserPrompt:   revisionUserPrompt(current.Content, message),
		MaxTokens:    8192,
	})
	if err != nil {
		return nil, err
	}
	outcome.ExecutionID = execID

	result, err := l.bridge.Await(ctx, execID)
	if err != nil {
		return nil, errors.Upstream("revision run", err)
	}
	revised := strings.TrimSpace(result.Content)
	if revised == "" {
		return nil, errors.Upstream("revision run",
			fmt.Errorf("agent %s produced an empty document", agent))
	}

	row, err := l.documents.Save(ctx, projectID, docType, revised, agent)
	if err != nil {
		return nil, err
	}

	// The save already emits document_revised; this event carries the
	// review context so the log ties the revision to its feedback.
	_, err = l.truth.AppendEvent(ctx, projectID,
		events.New(events.TypeDecisionMade, projectID, agent, events.Payload{
			"decision":         "document_revision",
			"gate":             string(gateType),
			"doc_type":         docType,
			"doc_version":      row.Version,
			"feedback_author":  author,
			"feedback_excerpt": truncate(message, feedbackExcerptLimit),
			"category":         string(c.Category),
		}))
	if err != nil {
		return nil, err
	}

	l.logger.Info("revision cycle complete",
		"project", projectID, "gate", gateType, "doc_type", docType,
		"version", row.Version, "category", c.Category)

	outcome.Action = ActionRevised
	outcome.Document = row
	return outcome, nil
}

// primaryAgent is the first agent the spawn matrix requires at a gate.
func primaryAgent(t gate.Type) string {
	agents := spawn.RequiredAgents(t, false)
	if len(agents) == 0 {
		return "orchestrator"
	}
	return agents[0]
}

func revisionSystemPrompt(agent, docType string) string {
	return fmt.Sprintf(
		"You are the %s. Revise the %s document below to incorporate the "+
			"reviewer feedback. Output the complete revised document, not a diff. "+
			"Preserve every section the feedback does not touch.", agent, docType)
}

func revisionUserPrompt(current, fb string) string {
	var b strings.Builder
	b.WriteString("Current document:\n\n")
	b.WriteString(current)
	b.WriteString("\n\nReviewer feedback:\n\n")
	b.WriteString(fb)
	b.WriteString("\n\nProduce the full revised document.")
	return b.String()
}

func truncate(s string, limit int) string {
	if len(s) <= limit {
		return s
	}
	return s[:limit] + "..."
}
