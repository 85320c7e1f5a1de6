// Package spec manages machine-readable spec registrations: API
// contracts, data schemas, and architecture specs that become
// immutable once G3 is approved.
package spec

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log/slog"

	"github.com/foundrydev/foundry/internal/db"
	"github.com/foundrydev/foundry/internal/errors"
	"github.com/foundrydev/foundry/internal/events"
	"github.com/foundrydev/foundry/internal/truth"
)

// Spec types accepted by the registry.
var validTypes = map[string]bool{
	"openapi":      true,
	"prisma":       true,
	"zod":          true,
	"architecture": true,
}

// Registry registers and locks specs through the truth store.
type Registry struct {
	truth  *truth.Store
	logger *slog.Logger
}

// NewRegistry creates a spec registry over the truth store.
func NewRegistry(store *truth.Store, logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{truth: store, logger: logger}
}

// Register records a spec with the checksum of its content.
// Re-registering an unlocked spec bumps the version; a locked spec
// rejects re-registration without emitting any event.
func (r *Registry) Register(ctx context.Context, projectID, specType, path string, content []byte) (*db.SpecRow, error) {
	if !validTypes[specType] {
		return nil, errors.InvalidInput("spec", errors.FieldIssue{
			Field: "type", Message: fmt.Sprintf("unknown spec type %q", specType),
		})
	}

	existing, err := db.GetSpec(ctx, r.truth.DB(), projectID, specType)
	if err != nil {
		return nil, errors.Upstream("get spec", err)
	}
	if existing != nil && existing.Locked {
		r.logger.Warn("rejected re-registration of locked spec",
			"project", projectID, "type", specType)
		return nil, errors.SpecLocked(specType)
	}
	// The lock is project-wide: a spec type never registered before G3
	// approval is refused the same as a locked row.
	if existing == nil {
		locked, err := r.projectLocked(ctx, projectID)
		if err != nil {
			return nil, err
		}
		if locked {
			r.logger.Warn("rejected new spec registration after lock",
				"project", projectID, "type", specType)
			return nil, errors.SpecLocked(specType)
		}
	}

	sum := sha256.Sum256(content)
	row := &db.SpecRow{
		ProjectID: projectID,
		SpecType:  specType,
		Path:      path,
		Checksum:  hex.EncodeToString(sum[:]),
		Version:   1,
	}
	if existing != nil {
		row.Version = existing.Version + 1
	}

	_, err = r.truth.AppendEvent(ctx, projectID,
		events.New(events.TypeSpecRegistered, projectID, "spec-registry", events.Payload{
			"spec_type": specType,
		}).WithRecord(row))
	if err != nil {
		return nil, err
	}
	return row, nil
}

// projectLocked reports whether a spec_locked event has been recorded
// for the project. Locked rows imply the event exists, but the event is
// the authority: it also covers spec types with no row yet.
func (r *Registry) projectLocked(ctx context.Context, projectID string) (bool, error) {
	log, err := db.QueryEvents(ctx, r.truth.DB(), projectID, db.QueryEventsOptions{
		Types: []string{string(events.TypeSpecLocked)},
		Limit: 1,
	})
	if err != nil {
		return false, errors.Upstream("query spec lock", err)
	}
	return len(log) > 0, nil
}

// Get returns one spec registration.
func (r *Registry) Get(ctx context.Context, projectID, specType string) (*db.SpecRow, error) {
	row, err := db.GetSpec(ctx, r.truth.DB(), projectID, specType)
	if err != nil {
		return nil, errors.Upstream("get spec", err)
	}
	if row == nil {
		return nil, errors.NotFound("spec", specType)
	}
	return row, nil
}

// List returns all spec registrations for a project.
func (r *Registry) List(ctx context.Context, projectID string) ([]*db.SpecRow, error) {
	rows, err := db.ListSpecs(ctx, r.truth.DB(), projectID)
	if err != nil {
		return nil, errors.Upstream("list specs", err)
	}
	return rows, nil
}

// Verify recomputes the checksum of the given content against the
// registration.
func (r *Registry) Verify(ctx context.Context, projectID, specType string, content []byte) (bool, error) {
	row, err := r.Get(ctx, projectID, specType)
	if err != nil {
		return false, err
	}
	sum := sha256.Sum256(content)
	return hex.EncodeToString(sum[:]) == row.Checksum, nil
}

// Locked reports whether every registered spec is locked. A project
// with no specs is not locked.
func (r *Registry) Locked(ctx context.Context, projectID string) (bool, error) {
	rows, err := r.List(ctx, projectID)
	if err != nil {
		return false, err
	}
	if len(rows) == 0 {
		return false, nil
	}
	for _, row := range rows {
		if !row.Locked {
			return false, nil
		}
	}
	return true, nil
}
