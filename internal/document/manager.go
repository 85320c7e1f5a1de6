// Package document manages generated project documents (PRDs,
// architecture docs, design specs). Versions are append-only: a
// revision never rewrites history, it stores a new version on top.
package document

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/foundrydev/foundry/internal/db"
	"github.com/foundrydev/foundry/internal/errors"
	"github.com/foundrydev/foundry/internal/events"
	"github.com/foundrydev/foundry/internal/gate"
	"github.com/foundrydev/foundry/internal/truth"
	"github.com/foundrydev/foundry/internal/util"
)

// Document types produced by the gated workflow.
const (
	TypePRD          = "prd"
	TypeArchitecture = "architecture"
	TypeDesign       = "design"
	TypeChangeLog    = "change_requests"
)

// changeRequestsFile is the append-only review feedback log.
const changeRequestsFile = "CHANGE_REQUESTS.md"

// gateDocTypes maps review gates to the document under review.
var gateDocTypes = map[gate.Type]string{
	gate.G2: TypePRD,
	gate.G3: TypeArchitecture,
	gate.G4: TypeDesign,
}

// TypeForGate returns the document type reviewed at a gate, or "" when
// the gate has no document deliverable.
func TypeForGate(t gate.Type) string {
	return gateDocTypes[t]
}

// Manager stores document versions in the truth store and mirrors them
// to the project workspace when a root directory is configured.
type Manager struct {
	truth  *truth.Store
	root   string
	logger *slog.Logger
	now    func() time.Time
}

// ManagerOption configures a Manager.
type ManagerOption func(*Manager)

// WithRoot mirrors document versions under root/<project>/docs.
func WithRoot(root string) ManagerOption {
	return func(m *Manager) { m.root = root }
}

// WithLogger sets the manager logger.
func WithLogger(logger *slog.Logger) ManagerOption {
	return func(m *Manager) { m.logger = logger }
}

// WithClock overrides the time source, for tests.
func WithClock(now func() time.Time) ManagerOption {
	return func(m *Manager) { m.now = now }
}

// NewManager creates a document manager over the truth store.
func NewManager(store *truth.Store, opts ...ManagerOption) *Manager {
	m := &Manager{
		truth:  store,
		logger: slog.Default(),
		now:    func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Save stores a new version of a document. Version 1 emits
// document_created; later versions emit document_revised. The stored
// row keeps the full content so the workspace mirror can be rebuilt
// from the event log alone.
func (m *Manager) Save(ctx context.Context, projectID, docType, content, createdBy string) (*db.DocumentRow, error) {
	if strings.TrimSpace(docType) == "" {
		return nil, errors.InvalidInput("document", errors.FieldIssue{
			Field: "doc_type", Message: "document type is required",
		})
	}

	latest, err := db.LatestDocument(ctx, m.truth.DB(), projectID, docType)
	if err != nil {
		return nil, errors.Upstream("latest document", err)
	}

	version := 1
	eventType := events.TypeDocumentCreated
	if latest != nil {
		version = latest.Version + 1
		eventType = events.TypeDocumentRevised
	}

	row := &db.DocumentRow{
		ID:        uuid.NewString(),
		ProjectID: projectID,
		DocType:   docType,
		Version:   version,
		Content:   content,
		CreatedBy: createdBy,
		CreatedAt: m.now(),
	}
	if m.root != "" {
		row.Path = m.versionPath(projectID, docType, version)
	}

	_, err = m.truth.AppendEvent(ctx, projectID,
		events.New(eventType, projectID, createdBy, events.Payload{
			"doc_type": docType,
		}).WithRecord(row))
	if err != nil {
		return nil, err
	}

	if m.root != "" {
		if err := m.mirror(row); err != nil {
			// The truth store already holds the version; a mirror
			// failure is recoverable via SyncWorkspace.
			m.logger.Warn("failed to mirror document to workspace",
				"project", projectID, "type", docType, "error", err)
		}
	}

	m.logger.Info("document version stored",
		"project", projectID, "type", docType, "version", version)
	return row, nil
}

// Latest returns the newest version of a document type.
func (m *Manager) Latest(ctx context.Context, projectID, docType string) (*db.DocumentRow, error) {
	row, err := db.LatestDocument(ctx, m.truth.DB(), projectID, docType)
	if err != nil {
		return nil, errors.Upstream("latest document", err)
	}
	if row == nil {
		return nil, errors.NotFound("document", docType)
	}
	return row, nil
}

// List returns every stored document version for a project.
func (m *Manager) List(ctx context.Context, projectID string) ([]*db.DocumentRow, error) {
	rows, err := db.ListDocuments(ctx, m.truth.DB(), projectID)
	if err != nil {
		return nil, errors.Upstream("list documents", err)
	}
	return rows, nil
}

// AppendChangeRequest appends one entry to the project's change request
// log. The log is append-only: entries are never edited or removed.
func (m *Manager) AppendChangeRequest(ctx context.Context, projectID, gateType, author, message string) error {
	if strings.TrimSpace(message) == "" {
		return errors.InvalidInput("change request", errors.FieldIssue{
			Field: "message", Message: "message is required",
		})
	}

	entry := fmt.Sprintf("## %s\n\n- Gate: %s\n- Author: %s\n\n%s\n\n",
		m.now().Format(time.RFC3339), gateType, author, strings.TrimSpace(message))

	_, err := m.truth.AppendEvent(ctx, projectID,
		events.New(events.TypeHumanInput, projectID, author, events.Payload{
			"gate":    gateType,
			"channel": "change_request",
			"message": message,
		}))
	if err != nil {
		return err
	}

	if m.root == "" {
		return nil
	}
	path := filepath.Join(m.docsDir(projectID), changeRequestsFile)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return errors.Upstream("create docs directory", err)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return errors.Upstream("open change request log", err)
	}
	defer func() { _ = f.Close() }()
	if _, err := f.WriteString(entry); err != nil {
		return errors.Upstream("append change request", err)
	}
	return nil
}

// SyncWorkspace rewrites the workspace mirror from the truth store.
// Only the latest version of each type is written at its unversioned
// path; versioned files are left as they are.
func (m *Manager) SyncWorkspace(ctx context.Context, projectID string) error {
	if m.root == "" {
		return errors.PreconditionFailed("document manager has no workspace root")
	}
	rows, err := m.List(ctx, projectID)
	if err != nil {
		return err
	}
	latest := map[string]*db.DocumentRow{}
	for _, row := range rows {
		if cur, ok := latest[row.DocType]; !ok || row.Version > cur.Version {
			latest[row.DocType] = row
		}
	}
	for _, row := range latest {
		if err := m.mirror(row); err != nil {
			return err
		}
	}
	return nil
}

// mirror writes one document version to the workspace, both at its
// versioned path and at the unversioned "current" path.
func (m *Manager) mirror(row *db.DocumentRow) error {
	dir := m.docsDir(row.ProjectID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return errors.Upstream("create docs directory", err)
	}
	versioned := m.versionPath(row.ProjectID, row.DocType, row.Version)
	if err := util.AtomicWriteFile(versioned, []byte(row.Content), 0o644); err != nil {
		return errors.Upstream("write document version", err)
	}
	current := filepath.Join(dir, row.DocType+".md")
	if err := util.AtomicWriteFile(current, []byte(row.Content), 0o644); err != nil {
		return errors.Upstream("write current document", err)
	}
	return nil
}

func (m *Manager) docsDir(projectID string) string {
	return filepath.Join(m.root, projectID, "docs")
}

func (m *Manager) versionPath(projectID, docType string, version int) string {
	return filepath.Join(m.docsDir(projectID), fmt.Sprintf("%s.v%d.md", docType, version))
}
