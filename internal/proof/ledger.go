// Package proof provides the proof artifact ledger: hash-verified
// evidence backing gate approvals.
//
// Identity is the SHA-256 computed at submission time. The file on
// disk is never trusted for integrity without running Verify, which
// recomputes the hash and compares it to the stored one.
package proof

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log/slog"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/foundrydev/foundry/internal/db"
	"github.com/foundrydev/foundry/internal/errors"
	"github.com/foundrydev/foundry/internal/events"
	"github.com/foundrydev/foundry/internal/gate"
	"github.com/foundrydev/foundry/internal/truth"
)

// Pass/fail values for a proof artifact.
const (
	Pass = "pass"
	Fail = "fail"
)

// Ledger is the append-only proof artifact store.
type Ledger struct {
	truth  *truth.Store
	logger *slog.Logger
}

// NewLedger creates a proof ledger over the truth store.
func NewLedger(store *truth.Store, logger *slog.Logger) *Ledger {
	if logger == nil {
		logger = slog.Default()
	}
	return &Ledger{truth: store, logger: logger}
}

// SubmitRequest describes a proof artifact to submit.
type SubmitRequest struct {
	ProjectID      string
	Gate           gate.Type
	ProofType      string
	FilePath       string
	ContentSummary string
	PassFail       string
	CreatedBy      string
}

// Submit reads the evidence file, computes its SHA-256, and appends
// the artifact. Returns the artifact id.
func (l *Ledger) Submit(ctx context.Context, req SubmitRequest) (string, error) {
	if !gate.IsValidType(req.Gate) {
		return "", errors.InvalidInput("proof", errors.FieldIssue{
			Field: "gate", Message: fmt.Sprintf("invalid gate type %q", req.Gate),
		})
	}
	if req.PassFail != Pass && req.PassFail != Fail {
		return "", errors.InvalidInput("proof", errors.FieldIssue{
			Field: "pass_fail", Message: "must be pass or fail",
		})
	}
	if req.ProofType == "" {
		return "", errors.InvalidInput("proof", errors.FieldIssue{
			Field: "proof_type", Message: "required",
		})
	}

	hash, err := hashFile(req.FilePath)
	if err != nil {
		return "", errors.Upstream("read proof file", err)
	}

	row := &db.ProofRow{
		ID:             uuid.NewString(),
		ProjectID:      req.ProjectID,
		GateType:       string(req.Gate),
		ProofType:      req.ProofType,
		FilePath:       req.FilePath,
		ContentHash:    hash,
		ContentSummary: req.ContentSummary,
		PassFail:       req.PassFail,
		CreatedBy:      req.CreatedBy,
		CreatedAt:      time.Now().UTC(),
	}

	_, err = l.truth.AppendEvent(ctx, req.ProjectID,
		events.New(events.TypeProofSubmitted, req.ProjectID, req.CreatedBy, events.Payload{
			"gate":       string(req.Gate),
			"proof_type": req.ProofType,
		}).WithRecord(row))
	if err != nil {
		return "", err
	}
	l.logger.Info("proof submitted",
		"project", req.ProjectID, "gate", req.Gate, "type", req.ProofType, "hash", hash[:12])
	return row.ID, nil
}

// VerifyResult compares the hash stored at submission against the
// file's current content.
type VerifyResult struct {
	Valid       bool   `json:"valid"`
	StoredHash  string `json:"stored_hash"`
	CurrentHash string `json:"current_hash"`
}

// Verify recomputes an artifact's hash from the file on disk. A
// mismatch (or an unreadable file) means the evidence was tampered
// with post-submission; an integrity_violation event is appended.
func (l *Ledger) Verify(ctx context.Context, artifactID string) (*VerifyResult, error) {
	row, err := db.GetProof(ctx, l.truth.DB(), artifactID)
	if err != nil {
		return nil, errors.Upstream("get proof", err)
	}
	if row == nil {
		return nil, errors.NotFound("proof artifact", artifactID)
	}

	current, err := hashFile(row.FilePath)
	if err != nil {
		// Missing or unreadable evidence counts as tampering.
		current = ""
	}

	result := &VerifyResult{
		Valid:       current == row.ContentHash,
		StoredHash:  row.ContentHash,
		CurrentHash: current,
	}

	eventType := events.TypeProofVerified
	if !result.Valid {
		eventType = events.TypeIntegrityViolation
	}
	_, appendErr := l.truth.AppendEvent(ctx, row.ProjectID,
		events.New(eventType, row.ProjectID, "proof-ledger", events.Payload{
			"gate":         row.GateType,
			"artifact_id":  artifactID,
			"stored_hash":  row.ContentHash,
			"current_hash": current,
			"valid":        result.Valid,
		}))
	if appendErr != nil {
		return nil, appendErr
	}
	if !result.Valid {
		l.logger.Warn("proof integrity violation",
			"project", row.ProjectID, "artifact", artifactID, "file", row.FilePath)
	}
	return result, nil
}

// GateProofStatus consults the per-gate required-proof matrix and
// reports which proof types lack a passing artifact. Gates with no
// matrix entry accept any passing proof.
func (l *Ledger) GateProofStatus(ctx context.Context, projectID string, gateType gate.Type) (missing []string, canApprove bool, err error) {
	artifacts, err := db.ListProofs(ctx, l.truth.DB(), projectID, string(gateType))
	if err != nil {
		return nil, false, errors.Upstream("list proofs", err)
	}

	passing := map[string]bool{}
	anyPass := false
	for _, a := range artifacts {
		if a.PassFail == Pass {
			passing[a.ProofType] = true
			anyPass = true
		}
	}

	required := gate.RequiredProofTypes(gateType)
	if len(required) == 0 {
		if anyPass {
			return nil, true, nil
		}
		return []string{"any passing proof"}, false, nil
	}

	for _, proofType := range required {
		if !passing[proofType] {
			missing = append(missing, proofType)
		}
	}
	return missing, len(missing) == 0, nil
}

// ListForGate returns a project's artifacts, optionally narrowed to
// one gate.
func (l *Ledger) ListForGate(ctx context.Context, projectID string, gateType gate.Type) ([]*db.ProofRow, error) {
	rows, err := db.ListProofs(ctx, l.truth.DB(), projectID, string(gateType))
	if err != nil {
		return nil, errors.Upstream("list proofs", err)
	}
	return rows, nil
}

// GenerateReport renders a markdown summary of every artifact grouped
// by gate.
func (l *Ledger) GenerateReport(ctx context.Context, projectID string) (string, error) {
	artifacts, err := db.ListProofs(ctx, l.truth.DB(), projectID, "")
	if err != nil {
		return "", errors.Upstream("list proofs", err)
	}

	byGate := map[string][]*db.ProofRow{}
	for _, a := range artifacts {
		byGate[a.GateType] = append(byGate[a.GateType], a)
	}
	gates := make([]string, 0, len(byGate))
	for g := range byGate {
		gates = append(gates, g)
	}
	sort.Strings(gates)

	var b strings.Builder
	fmt.Fprintf(&b, "# Proof Artifact Report\n\nProject: %s\nArtifacts: %d\n", projectID, len(artifacts))
	for _, g := range gates {
		fmt.Fprintf(&b, "\n## %s\n\n", g)
		fmt.Fprintf(&b, "| Type | Result | File | SHA-256 | Submitted by |\n")
		fmt.Fprintf(&b, "|------|--------|------|---------|-------------|\n")
		for _, a := range byGate[g] {
			fmt.Fprintf(&b, "| %s | %s | %s | `%s` | %s |\n",
				a.ProofType, a.PassFail, a.FilePath, a.ContentHash, a.CreatedBy)
		}
	}
	return b.String(), nil
}

func hashFile(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:]), nil
}
