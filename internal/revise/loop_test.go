package revise

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/foundrydev/foundry/internal/db"
	"github.com/foundrydev/foundry/internal/document"
	"github.com/foundrydev/foundry/internal/errors"
	"github.com/foundrydev/foundry/internal/events"
	"github.com/foundrydev/foundry/internal/feedback"
	"github.com/foundrydev/foundry/internal/gate"
	"github.com/foundrydev/foundry/internal/runtime"
	"github.com/foundrydev/foundry/internal/stream"
	"github.com/foundrydev/foundry/internal/truth"
)

type fixture struct {
	loop      *Loop
	store     *truth.Store
	documents *document.Manager
	scripted  *runtime.Scripted
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	d, err := db.OpenInMemory()
	require.NoError(t, err)
	store := truth.New(d)
	t.Cleanup(func() { _ = store.Close() })

	ctx := context.Background()
	_, err = store.AppendEvent(ctx, "p1",
		events.New(events.TypeProjectCreated, "p1", "alice", nil).WithRecord(&db.ProjectRow{
			ID: "p1", Name: "demo", Owner: "alice", CurrentGate: "G2", CreatedAt: time.Now().UTC(),
		}))
	require.NoError(t, err)
	_, err = store.AppendEvent(ctx, "p1",
		events.New(events.TypeGateInReview, "p1", "orchestrator", events.Payload{
			"gate": "G2",
		}).WithRecord(&db.GateRow{
			ProjectID: "p1", GateType: "G2", Status: string(gate.StatusInReview),
		}))
	require.NoError(t, err)

	documents := document.NewManager(store)
	_, err = documents.Save(ctx, "p1", document.TypePRD, "# PRD\n\noriginal", "pm-agent")
	require.NoError(t, err)

	scripted := &runtime.Scripted{Chunks: []string{"# PRD\n\n", "revised"}}
	bridge := stream.NewBridge(scripted, nil)

	return &fixture{
		loop:      NewLoop(store, documents, bridge),
		store:     store,
		documents: documents,
		scripted:  scripted,
	}
}

func TestChangeRequestProducesNewVersion(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	outcome, err := f.loop.HandleReviewMessage(ctx, "p1", gate.G2, "alice",
		"please change the pricing section to lead with the free tier")
	require.NoError(t, err)
	assert.Equal(t, ActionRevised, outcome.Action)
	assert.Equal(t, feedback.ChangeRequest, outcome.Classification.Category)
	require.NotNil(t, outcome.Document)
	assert.Equal(t, 2, outcome.Document.Version)
	assert.Equal(t, "# PRD\n\nrevised", outcome.Document.Content)

	latest, err := f.documents.Latest(ctx, "p1", document.TypePRD)
	require.NoError(t, err)
	assert.Equal(t, 2, latest.Version)
}

func TestRevisionPromptCarriesDocumentAndFeedback(t *testing.T) {
	f := newFixture(t)

	_, err := f.loop.HandleReviewMessage(context.Background(), "p1", gate.G2, "alice",
		"change the title to FoundryOS")
	require.NoError(t, err)

	reqs := f.scripted.Requests()
	require.Len(t, reqs, 1)
	assert.Contains(t, reqs[0].UserPrompt, "# PRD\n\noriginal")
	assert.Contains(t, reqs[0].UserPrompt, "change the title to FoundryOS")
	assert.Contains(t, reqs[0].SystemPrompt, "Product Manager")
}

func TestRevisionEventCarriesTruncatedFeedback(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	long := "please change this: " + string(make([]byte, 600))
	_, err := f.loop.HandleReviewMessage(ctx, "p1", gate.G2, "alice", long)
	require.NoError(t, err)

	log, err := f.store.GetEventLog(ctx, "p1", db.QueryEventsOptions{
		Types: []string{string(events.TypeDecisionMade)},
	})
	require.NoError(t, err)
	require.Len(t, log, 1)
	excerpt := log[0].Str("feedback_excerpt")
	assert.LessOrEqual(t, len(excerpt), feedbackExcerptLimit+3)
	assert.Equal(t, "document_revision", log[0].Str("decision"))
}

func TestApprovalAndQuestionDoNotRevise(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	outcome, err := f.loop.HandleReviewMessage(ctx, "p1", gate.G2, "alice", "approved, ship it")
	require.NoError(t, err)
	assert.Equal(t, ActionApprovalSignal, outcome.Action)

	outcome, err = f.loop.HandleReviewMessage(ctx, "p1", gate.G2, "alice",
		"why did the timeline slip?")
	require.NoError(t, err)
	assert.Equal(t, ActionNone, outcome.Action)

	assert.Empty(t, f.scripted.Requests())
}

func TestRejectionSignalsWithoutRevising(t *testing.T) {
	f := newFixture(t)

	outcome, err := f.loop.HandleReviewMessage(context.Background(), "p1", gate.G2, "alice",
		"no, this is not what I asked for")
	require.NoError(t, err)
	assert.Equal(t, ActionRejectionSignal, outcome.Action)
	assert.Empty(t, f.scripted.Requests())
}

func TestRevisionRequiresGateInReview(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.store.AppendEvent(ctx, "p1",
		events.New(events.TypeGateApproved, "p1", "alice", events.Payload{
			"gate": "G2",
		}).WithRecord(&db.GateRow{
			ProjectID: "p1", GateType: "G2", Status: string(gate.StatusApproved),
		}))
	require.NoError(t, err)

	_, err = f.loop.HandleReviewMessage(ctx, "p1", gate.G2, "alice",
		"please change the header")
	require.Error(t, err)
	assert.True(t, errors.IsKind(err, errors.KindPreconditionFailed))
}

func TestGateWithoutDocumentRejectsRevision(t *testing.T) {
	f := newFixture(t)

	_, err := f.loop.HandleReviewMessage(context.Background(), "p1", gate.G5, "alice",
		"please change the retry policy")
	require.Error(t, err)
	assert.True(t, errors.IsKind(err, errors.KindPreconditionFailed))
}

func TestFailedRunLeavesDocumentUntouched(t *testing.T) {
	f := newFixture(t)
	f.scripted.FailWith = assert.AnError
	ctx := context.Background()

	_, err := f.loop.HandleReviewMessage(ctx, "p1", gate.G2, "alice",
		"please change the intro")
	require.Error(t, err)

	latest, err := f.documents.Latest(ctx, "p1", document.TypePRD)
	require.NoError(t, err)
	assert.Equal(t, 1, latest.Version)
}
