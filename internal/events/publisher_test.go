package events

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPublishReachesProjectAndGlobalSubscribers(t *testing.T) {
	p := NewMemoryPublisher()
	defer p.Close()

	project := p.Subscribe("p1")
	global := p.Subscribe(GlobalProjectID)
	other := p.Subscribe("p2")

	p.Publish(New(TypeGateApproved, "p1", "alice", Payload{"gate": "G2"}))

	e := <-project
	assert.Equal(t, TypeGateApproved, e.Type)
	e = <-global
	assert.Equal(t, "p1", e.ProjectID)

	select {
	case e := <-other:
		t.Fatalf("p2 subscriber received foreign event %v", e)
	default:
	}
}

func TestPublishSkipsFullBuffers(t *testing.T) {
	p := NewMemoryPublisher(WithBufferSize(1))
	defer p.Close()

	ch := p.Subscribe("p1")
	p.Publish(New(TypeTaskCreated, "p1", "q", nil))
	p.Publish(New(TypeTaskCompleted, "p1", "q", nil))

	// First event fits; second is dropped, never blocks the writer.
	e := <-ch
	assert.Equal(t, TypeTaskCreated, e.Type)
	select {
	case e := <-ch:
		t.Fatalf("unexpected buffered event %v", e)
	default:
	}
}

func TestUnsubscribeClosesChannel(t *testing.T) {
	p := NewMemoryPublisher()
	defer p.Close()

	ch := p.Subscribe("p1")
	require.Equal(t, 1, p.SubscriberCount("p1"))

	p.Unsubscribe("p1", ch)
	_, open := <-ch
	assert.False(t, open)
	assert.Zero(t, p.SubscriberCount("p1"))
}

func TestClosedPublisherReturnsClosedChannels(t *testing.T) {
	p := NewMemoryPublisher()
	p.Close()

	ch := p.Subscribe("p1")
	_, open := <-ch
	assert.False(t, open)

	// Publishing after close is a no-op.
	p.Publish(New(TypeProjectCreated, "p1", "alice", nil))
}

func TestRecordRoundTrip(t *testing.T) {
	type row struct {
		ID   string `json:"id"`
		Name string `json:"name"`
	}
	e := New(TypeProjectCreated, "p1", "alice", Payload{"gate": "G1"}).
		WithRecord(&row{ID: "p1", Name: "demo"})

	var got row
	require.NoError(t, e.DecodeRecord(&got))
	assert.Equal(t, "demo", got.Name)
	assert.Equal(t, "G1", e.Str("gate"))
}
