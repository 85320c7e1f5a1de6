package assess

import (
	"encoding/json"
	"time"
)

// Agent slot statuses.
const (
	SlotPending   = "pending"
	SlotStarted   = "started"
	SlotSubmitted = "submitted"
	SlotFailed    = "failed"
	SlotTimedOut  = "timed_out"
)

// Session statuses.
const (
	SessionActive   = "active"
	SessionComplete = "complete"
	SessionPartial  = "partial"
)

// DefaultExpiry bounds how long a session waits for evaluators.
const DefaultExpiry = 30 * time.Minute

// sectionWeights are the fixed aggregation weights. Unknown sections
// weigh 1.0.
var sectionWeights = map[string]float64{
	"architecture":  1.2,
	"security":      1.5,
	"quality":       1.0,
	"devops":        0.8,
	"frontend_code": 0.5,
	"backend_code":  0.5,
}

// SectionWeight returns the aggregation weight for a section.
func SectionWeight(section string) float64 {
	if w, ok := sectionWeights[section]; ok {
		return w
	}
	return 1.0
}

// Findings are the structured observations of one evaluator.
type Findings struct {
	Strengths       []string `json:"strengths,omitempty"`
	Weaknesses      []string `json:"weaknesses,omitempty"`
	Recommendations []string `json:"recommendations,omitempty"`
}

// Slot tracks one evaluator agent within a session. Section equals the
// agent name; the weight table keys on it.
type Slot struct {
	Agent       string             `json:"agent"`
	Status      string             `json:"status"`
	Score       float64            `json:"score,omitempty"`
	Findings    Findings           `json:"findings,omitzero"`
	Metrics     map[string]float64 `json:"metrics,omitempty"`
	Details     string             `json:"details,omitempty"`
	Message     string             `json:"message,omitempty"`
	StartedAt   time.Time          `json:"started_at,omitzero"`
	SubmittedAt time.Time          `json:"submitted_at,omitzero"`
}

// Terminal reports whether the slot reached a final state.
func (s *Slot) Terminal() bool {
	switch s.Status {
	case SlotSubmitted, SlotFailed, SlotTimedOut:
		return true
	}
	return false
}

// Session is one parallel assessment run.
type Session struct {
	ID        string    `json:"id"`
	ProjectID string    `json:"project_id"`
	Status    string    `json:"status"`
	StartedAt time.Time `json:"started_at"`
	ExpiresAt time.Time `json:"expires_at"`
	Slots     []*Slot   `json:"slots"`
}

func (s *Session) slot(agent string) *Slot {
	for _, sl := range s.Slots {
		if sl.Agent == agent {
			return sl
		}
	}
	return nil
}

func (s *Session) encodeSlots() string {
	data, err := json.Marshal(s.Slots)
	if err != nil {
		return "[]"
	}
	return string(data)
}

func decodeSlots(data string) []*Slot {
	var slots []*Slot
	if data == "" {
		return nil
	}
	if err := json.Unmarshal([]byte(data), &slots); err != nil {
		return nil
	}
	return slots
}
