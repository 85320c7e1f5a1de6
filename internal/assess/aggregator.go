// Package assess provides the parallel assessment aggregator: a
// fan-out of evaluator agents whose scored sections are combined with
// fixed weights into one recommendation.
package assess

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/foundrydev/foundry/internal/db"
	"github.com/foundrydev/foundry/internal/errors"
	"github.com/foundrydev/foundry/internal/events"
	"github.com/foundrydev/foundry/internal/truth"
)

// Aggregator manages assessment sessions for projects.
type Aggregator struct {
	truth  *truth.Store
	logger *slog.Logger
	now    func() time.Time
	expiry time.Duration

	mu sync.Mutex
}

// Option configures an Aggregator.
type Option func(*Aggregator)

// WithClock overrides the time source (for tests).
func WithClock(now func() time.Time) Option {
	return func(a *Aggregator) { a.now = now }
}

// WithExpiry overrides the session expiry window.
func WithExpiry(d time.Duration) Option {
	return func(a *Aggregator) { a.expiry = d }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(a *Aggregator) { a.logger = l }
}

// NewAggregator creates an assessment aggregator over the truth store.
func NewAggregator(store *truth.Store, opts ...Option) *Aggregator {
	a := &Aggregator{
		truth:  store,
		logger: slog.Default(),
		now:    time.Now,
		expiry: DefaultExpiry,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// assessmentRecord is the event payload record for a session. Its JSON
// shape matches the truth store's assessment projection.
type assessmentRecord struct {
	ID        string    `json:"id"`
	ProjectID string    `json:"project_id"`
	Status    string    `json:"status"`
	StartedAt time.Time `json:"started_at"`
	ExpiresAt time.Time `json:"expires_at"`
	Data      string    `json:"data"`
}

func record(s *Session) *assessmentRecord {
	return &assessmentRecord{
		ID:        s.ID,
		ProjectID: s.ProjectID,
		Status:    s.Status,
		StartedAt: s.StartedAt,
		ExpiresAt: s.ExpiresAt,
		Data:      s.encodeSlots(),
	}
}

// Start initializes a session with one pending slot per agent. A
// project has at most one active session.
func (a *Aggregator) Start(ctx context.Context, projectID string, agents []string) (string, error) {
	if len(agents) == 0 {
		return "", errors.InvalidInput("assessment", errors.FieldIssue{
			Field: "agents", Message: "at least one evaluator required",
		})
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	active, err := db.ActiveAssessment(ctx, a.truth.DB(), projectID)
	if err != nil {
		return "", errors.Upstream("active assessment", err)
	}
	if active != nil {
		return "", errors.Conflict("assessment session", "project already has an active session")
	}

	now := a.now().UTC()
	session := &Session{
		ID:        uuid.NewString(),
		ProjectID: projectID,
		Status:    SessionActive,
		StartedAt: now,
		ExpiresAt: now.Add(a.expiry),
	}
	for _, agent := range agents {
		session.Slots = append(session.Slots, &Slot{Agent: agent, Status: SlotPending})
	}

	_, err = a.truth.AppendEvent(ctx, projectID,
		events.New(events.TypeAssessmentStarted, projectID, "assessor", events.Payload{
			"session_id": session.ID,
			"agents":     agents,
		}).WithRecord(record(session)))
	if err != nil {
		return "", err
	}
	return session.ID, nil
}

// load returns the active session, applying lazy expiry: pending or
// started slots past expiresAt become timed_out.
func (a *Aggregator) load(ctx context.Context, projectID string) (*Session, error) {
	row, err := db.ActiveAssessment(ctx, a.truth.DB(), projectID)
	if err != nil {
		return nil, errors.Upstream("active assessment", err)
	}
	if row == nil {
		return nil, errors.NotFound("active assessment session for project", projectID)
	}

	session := &Session{
		ID:        row.ID,
		ProjectID: row.ProjectID,
		Status:    row.Status,
		StartedAt: row.StartedAt,
		ExpiresAt: row.ExpiresAt,
		Slots:     decodeSlots(row.Data),
	}
	if a.now().UTC().After(session.ExpiresAt) {
		for _, sl := range session.Slots {
			if !sl.Terminal() {
				sl.Status = SlotTimedOut
				sl.Message = "session expired"
			}
		}
	}
	return session, nil
}

func (a *Aggregator) save(ctx context.Context, session *Session, eventType events.Type, payload events.Payload) error {
	if payload == nil {
		payload = events.Payload{}
	}
	payload["session_id"] = session.ID
	_, err := a.truth.AppendEvent(ctx, session.ProjectID,
		events.New(eventType, session.ProjectID, "assessor", payload).WithRecord(record(session)))
	return err
}

// MarkStarted moves an agent's slot from pending to started.
func (a *Aggregator) MarkStarted(ctx context.Context, projectID, agent string) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	session, err := a.load(ctx, projectID)
	if err != nil {
		return err
	}
	sl := session.slot(agent)
	if sl == nil {
		return errors.NotFound("assessment slot", agent)
	}
	if sl.Terminal() {
		return errors.Conflict("assessment slot "+agent, "already "+sl.Status)
	}
	sl.Status = SlotStarted
	sl.StartedAt = a.now().UTC()
	return a.save(ctx, session, events.TypeAssessmentUpdated, events.Payload{"agent": agent})
}

// MarkFailed records a terminal failure for an agent's slot.
func (a *Aggregator) MarkFailed(ctx context.Context, projectID, agent, reason, message string) error {
	if reason != SlotFailed && reason != SlotTimedOut {
		return errors.InvalidInput("assessment", errors.FieldIssue{
			Field: "reason", Message: "must be failed or timed_out",
		})
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	session, err := a.load(ctx, projectID)
	if err != nil {
		return err
	}
	sl := session.slot(agent)
	if sl == nil {
		return errors.NotFound("assessment slot", agent)
	}
	if sl.Terminal() {
		return errors.Conflict("assessment slot "+agent, "already "+sl.Status)
	}
	sl.Status = reason
	sl.Message = message
	return a.save(ctx, session, events.TypeAssessmentUpdated, events.Payload{"agent": agent})
}

// SubmitResult records an evaluator's score and findings.
func (a *Aggregator) SubmitResult(ctx context.Context, projectID, agent string, score float64, findings Findings, metrics map[string]float64, details string) error {
	if score < 0 || score > 10 {
		return errors.InvalidInput("assessment", errors.FieldIssue{
			Field: "score", Message: "must be within 0..10",
		})
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	session, err := a.load(ctx, projectID)
	if err != nil {
		return err
	}
	sl := session.slot(agent)
	if sl == nil {
		return errors.NotFound("assessment slot", agent)
	}
	if sl.Terminal() {
		return errors.Conflict("assessment slot "+agent, "already "+sl.Status)
	}
	sl.Status = SlotSubmitted
	sl.Score = score
	sl.Findings = findings
	sl.Metrics = metrics
	sl.Details = details
	sl.SubmittedAt = a.now().UTC()
	return a.save(ctx, session, events.TypeAssessmentUpdated, events.Payload{
		"agent": agent, "score": score,
	})
}

// Completion summarizes slot states.
type Completion struct {
	IsComplete bool `json:"is_complete"`
	Completed  int  `json:"completed"`
	Failed     int  `json:"failed"`
	TimedOut   int  `json:"timed_out"`
	Total      int  `json:"total"`
}

// CheckCompletion reports whether every agent reached a terminal
// state.
func (a *Aggregator) CheckCompletion(ctx context.Context, projectID string) (*Completion, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	session, err := a.load(ctx, projectID)
	if err != nil {
		return nil, err
	}
	return completion(session), nil
}

func completion(session *Session) *Completion {
	c := &Completion{Total: len(session.Slots), IsComplete: true}
	for _, sl := range session.Slots {
		switch sl.Status {
		case SlotSubmitted:
			c.Completed++
		case SlotFailed:
			c.Failed++
		case SlotTimedOut:
			c.TimedOut++
		default:
			c.IsComplete = false
		}
	}
	return c
}

// SectionScore pairs one section's score with its weight.
type SectionScore struct {
	Score  float64 `json:"score"`
	Weight float64 `json:"weight"`
}

// Aggregation is the weighted outcome of a session.
type Aggregation struct {
	ScoresBySection  map[string]SectionScore `json:"scores_by_section"`
	AggregatedScore  float64                 `json:"aggregated_score"`
	Recommendation   string                  `json:"recommendation"`
	CombinedFindings Findings                `json:"combined_findings"`
	Session          *Session                `json:"session"`
}

// Aggregate combines submitted sections into the weighted score and
// recommendation, tolerating partial sessions: only submitted slots
// contribute, and a session with any other terminal slot is marked
// partial. The session leaves the active state.
func (a *Aggregator) Aggregate(ctx context.Context, projectID string) (*Aggregation, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	session, err := a.load(ctx, projectID)
	if err != nil {
		return nil, err
	}
	c := completion(session)
	if !c.IsComplete {
		return nil, errors.PreconditionFailed(
			fmt.Sprintf("assessment has %d agents still running", c.Total-c.Completed-c.Failed-c.TimedOut))
	}
	if c.Completed == 0 {
		return nil, errors.PreconditionFailed("no evaluator submitted a result")
	}

	agg := &Aggregation{
		ScoresBySection: map[string]SectionScore{},
		Session:         session,
	}
	var weightedSum, weightTotal float64
	for _, sl := range session.Slots {
		if sl.Status != SlotSubmitted {
			continue
		}
		w := SectionWeight(sl.Agent)
		agg.ScoresBySection[sl.Agent] = SectionScore{Score: sl.Score, Weight: w}
		weightedSum += sl.Score * w
		weightTotal += w

		agg.CombinedFindings.Strengths = append(agg.CombinedFindings.Strengths, sl.Findings.Strengths...)
		agg.CombinedFindings.Weaknesses = append(agg.CombinedFindings.Weaknesses, sl.Findings.Weaknesses...)
		agg.CombinedFindings.Recommendations = append(agg.CombinedFindings.Recommendations, sl.Findings.Recommendations...)
	}
	agg.AggregatedScore = weightedSum / weightTotal
	agg.Recommendation = Recommend(agg.AggregatedScore)

	session.Status = SessionComplete
	if c.Failed > 0 || c.TimedOut > 0 {
		session.Status = SessionPartial
	}
	if err := a.save(ctx, session, events.TypeAssessmentCompleted, events.Payload{
		"aggregated_score": agg.AggregatedScore,
		"recommendation":   agg.Recommendation,
		"status":           session.Status,
	}); err != nil {
		return nil, err
	}
	a.logger.Info("assessment aggregated",
		"project", projectID, "score", agg.AggregatedScore, "recommendation", agg.Recommendation)
	return agg, nil
}

// Recommend maps a weighted score to the coarse recommendation bands.
func Recommend(score float64) string {
	switch {
	case score <= 3:
		return "REWRITE"
	case score <= 5:
		return "REFACTOR"
	case score <= 7.5:
		return "ENHANCE"
	default:
		return "MAINTAIN"
	}
}

// AgentResult is the output of one evaluator run.
type AgentResult struct {
	Score    float64
	Findings Findings
	Metrics  map[string]float64
	Details  string
}

// Run starts a session, fans the evaluators out concurrently, and
// aggregates when all finish. Evaluator errors mark their slot failed
// without aborting the others.
func (a *Aggregator) Run(ctx context.Context, projectID string, agents []string, evaluate func(ctx context.Context, agent string) (*AgentResult, error)) (*Aggregation, error) {
	if _, err := a.Start(ctx, projectID, agents); err != nil {
		return nil, err
	}

	g, gctx := errgroup.WithContext(ctx)
	for _, agent := range agents {
		g.Go(func() error {
			if err := a.MarkStarted(gctx, projectID, agent); err != nil {
				return err
			}
			result, err := evaluate(gctx, agent)
			if err != nil {
				return a.MarkFailed(gctx, projectID, agent, SlotFailed, err.Error())
			}
			return a.SubmitResult(gctx, projectID, agent, result.Score,
				result.Findings, result.Metrics, result.Details)
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return a.Aggregate(ctx, projectID)
}
