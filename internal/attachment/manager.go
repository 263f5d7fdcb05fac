// Package attachment manages the documents attached to the active
// conversation: local validation, sequential upload, removal and clearing.
package attachment

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/dustin/go-humanize"
	"github.com/google/uuid"

	"ragchat/internal/domain"
	"ragchat/internal/events"
)

const (
	// DefaultMaxSize is the largest file accepted for upload, in bytes.
	DefaultMaxSize int64 = 5 * 1024 * 1024

	defaultPlaceholder = "New conversation created"
)

// Provisioner creates a conversation when none is active.
type Provisioner interface {
	Provision(ctx context.Context, placeholder string) (string, error)
}

// Conversations is the part of the conversation state the manager updates.
type Conversations interface {
	ActiveID() string
	UpsertAttachment(conversationID string, att domain.Attachment)
	ClearAttachments(conversationID string)
	RefreshAttachments(ctx context.Context, conversationID string) ([]domain.Attachment, error)
}

// Result is the outcome of one file.
type Result struct {
	Attachment domain.Attachment
	Err        error
}

// Report is the outcome of one UploadFiles batch.
type Report struct {
	ConversationID string
	Results        []Result
	Succeeded      int
	Total          int
}

// Config configures a Manager.
type Config struct {
	Gateway       domain.Gateway
	Conversations Conversations
	Provisioner   Provisioner
	Renderer      domain.Renderer
	Expirer       domain.SessionExpirer
	Events        *events.Bus
	Logger        *slog.Logger
	MaxSize       int64  // default DefaultMaxSize
	Placeholder   string // message used to provision a conversation
}

// Manager runs attachment operations against the active conversation.
type Manager struct {
	gateway       domain.Gateway
	conversations Conversations
	provisioner   Provisioner
	renderer      domain.Renderer
	expirer       domain.SessionExpirer
	events        *events.Bus
	logger        *slog.Logger
	maxSize       int64
	placeholder   string
}

// NewManager creates a manager.
func NewManager(cfg Config) *Manager {
	if cfg.Renderer == nil {
		cfg.Renderer = domain.NopRenderer{}
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.MaxSize <= 0 {
		cfg.MaxSize = DefaultMaxSize
	}
	if cfg.Placeholder == "" {
		cfg.Placeholder = defaultPlaceholder
	}
	return &Manager{
		gateway:       cfg.Gateway,
		conversations: cfg.Conversations,
		provisioner:   cfg.Provisioner,
		renderer:      cfg.Renderer,
		expirer:       cfg.Expirer,
		events:        cfg.Events,
		logger:        cfg.Logger,
		maxSize:       cfg.MaxSize,
		placeholder:   cfg.Placeholder,
	}
}

// MaxSize returns the per-file size limit in bytes.
func (m *Manager) MaxSize() int64 { return m.maxSize }

// UploadFiles uploads files one at a time to the active conversation,
// creating one first if none is active. Each file succeeds or fails on
// its own; the returned error is set only when the batch as a whole
// could not run or was cut short by an expired session.
func (m *Manager) UploadFiles(ctx context.Context, files []File) (*Report, error) {
	if len(files) == 0 {
		return &Report{}, nil
	}

	convID := m.conversations.ActiveID()
	if convID == "" {
		id, err := m.provisioner.Provision(ctx, m.placeholder)
		if err != nil {
			return nil, fmt.Errorf("create conversation for upload: %w", err)
		}
		convID = id
		m.logger.Info("provisioned conversation for upload", "conversation_id", convID)
	}

	report := &Report{ConversationID: convID, Total: len(files)}
	notice := domain.MessageHandle(uuid.NewString())
	m.renderer.Notice(notice, fmt.Sprintf("Uploading %d file(s)...", len(files)))

	var batchErr error
	for i, f := range files {
		if batchErr == nil {
			batchErr = ctx.Err()
		}
		if batchErr != nil {
			att := domain.Attachment{ID: uuid.NewString(), Filename: f.Name, UploadState: domain.UploadFailed,
				ErrorReason: "not attempted: " + batchErr.Error()}
			report.Results = append(report.Results, Result{Attachment: att, Err: batchErr})
			continue
		}

		res := m.uploadOne(ctx, convID, f)
		report.Results = append(report.Results, res)
		if res.Err == nil {
			report.Succeeded++
			continue
		}
		if errors.Is(res.Err, domain.ErrAuthExpired) {
			m.logger.Warn("session expired during upload batch", "remaining", len(files)-i-1)
			if m.expirer != nil {
				m.expirer.Expire(ctx)
			}
			batchErr = res.Err
		}
	}

	m.renderer.Notice(notice, fmt.Sprintf("Uploaded %d/%d file(s)", report.Succeeded, report.Total))
	if report.Succeeded > 0 && batchErr == nil {
		if _, err := m.conversations.RefreshAttachments(ctx, convID); err != nil {
			m.logger.Warn("refresh attachments after upload failed", "error", err)
		}
	}
	return report, batchErr
}

func (m *Manager) uploadOne(ctx context.Context, convID string, f File) Result {
	att := domain.Attachment{ID: uuid.NewString(), Filename: f.Name, UploadState: domain.UploadPending}

	if f.Size > m.maxSize {
		err := &domain.ValidationError{
			Filename: f.Name,
			Size:     f.Size,
			Limit:    m.maxSize,
			Reason: fmt.Sprintf("file is %s bytes, over the %s limit",
				humanize.Comma(f.Size), humanize.IBytes(uint64(m.maxSize))),
		}
		return m.failed(convID, att, err, events.AttachmentRejected)
	}

	m.conversations.UpsertAttachment(convID, att)

	rc, err := f.Open()
	if err != nil {
		return m.failed(convID, att, fmt.Errorf("open %s: %w", f.Name, err), events.AttachmentFailed)
	}
	defer rc.Close()

	if err := m.gateway.UploadDocument(ctx, convID, f.Name, rc); err != nil {
		return m.failed(convID, att, err, events.AttachmentFailed)
	}

	att.UploadState = domain.UploadSucceeded
	m.conversations.UpsertAttachment(convID, att)
	m.logger.Info("attachment uploaded", "conversation_id", convID, "file", f.Name, "size", f.Size)
	m.events.Emit(events.Event{Type: events.AttachmentUploaded, Source: "attachment",
		Payload: map[string]any{"conversation_id": convID, "filename": f.Name, "size": f.Size}})
	return Result{Attachment: att}
}

func (m *Manager) failed(convID string, att domain.Attachment, err error, eventType string) Result {
	att.UploadState = domain.UploadFailed
	att.ErrorReason = err.Error()
	var verr *domain.ValidationError
	if errors.As(err, &verr) {
		att.ErrorReason = verr.Reason
	}

	m.conversations.UpsertAttachment(convID, att)
	m.renderer.Notice(domain.MessageHandle(att.ID), fmt.Sprintf("%s: %s", att.Filename, att.ErrorReason))
	m.logger.Warn("attachment failed", "conversation_id", convID, "file", att.Filename, "error", err)
	m.events.Emit(events.Event{Type: eventType, Source: "attachment",
		Payload: map[string]any{"conversation_id": convID, "filename": att.Filename, "error": att.ErrorReason}})
	return Result{Attachment: att, Err: err}
}

// Remove deletes one attachment and re-fetches the conversation's list.
func (m *Manager) Remove(ctx context.Context, conversationID, attachmentID string) error {
	if err := m.gateway.RemoveDocument(ctx, conversationID, attachmentID); err != nil {
		m.checkAuth(ctx, err)
		return fmt.Errorf("remove attachment %s: %w", attachmentID, err)
	}
	m.events.Emit(events.Event{Type: events.AttachmentRemoved, Source: "attachment",
		Payload: map[string]any{"conversation_id": conversationID, "attachment_id": attachmentID}})

	if _, err := m.conversations.RefreshAttachments(ctx, conversationID); err != nil {
		return err
	}
	return nil
}

// ClearAll removes every attachment of a conversation in one call.
func (m *Manager) ClearAll(ctx context.Context, conversationID string) error {
	if err := m.gateway.ClearDocuments(ctx, conversationID); err != nil {
		m.checkAuth(ctx, err)
		return fmt.Errorf("clear attachments: %w", err)
	}
	m.conversations.ClearAttachments(conversationID)
	m.events.Emit(events.Event{Type: events.AttachmentsCleared, Source: "attachment",
		Payload: map[string]any{"conversation_id": conversationID}})
	return nil
}

// List fetches the attachments of a conversation.
func (m *Manager) List(ctx context.Context, conversationID string) ([]domain.Attachment, error) {
	return m.conversations.RefreshAttachments(ctx, conversationID)
}

func (m *Manager) checkAuth(ctx context.Context, err error) {
	if errors.Is(err, domain.ErrAuthExpired) && m.expirer != nil {
		m.expirer.Expire(ctx)
	}
}
