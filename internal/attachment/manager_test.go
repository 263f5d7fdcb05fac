package attachment

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ragchat/internal/conversation"
	"ragchat/internal/domain"
	"ragchat/internal/domain/domaintest"
	"ragchat/internal/events"
	"ragchat/internal/stream"
)

type harness struct {
	gw       *domaintest.Gateway
	renderer *domaintest.Renderer
	expirer  *domaintest.Expirer
	bus      *events.Bus
	convs    *conversation.Synchronizer
	mgr      *Manager
}

func newHarness(gw *domaintest.Gateway) *harness {
	h := &harness{
		gw:       gw,
		renderer: &domaintest.Renderer{},
		expirer:  &domaintest.Expirer{},
		bus:      events.New(nil),
	}
	h.convs = conversation.New(conversation.Config{Gateway: gw, Renderer: h.renderer, Expirer: h.expirer, Events: h.bus})
	ctrl := stream.NewController(stream.Config{Gateway: gw, Conversations: h.convs, Expirer: h.expirer, Events: h.bus})
	h.mgr = NewManager(Config{
		Gateway:       gw,
		Conversations: h.convs,
		Provisioner:   ctrl,
		Renderer:      h.renderer,
		Expirer:       h.expirer,
		Events:        h.bus,
	})
	return h
}

func (h *harness) activate(t *testing.T, id string) {
	t.Helper()
	require.NoError(t, h.convs.SwitchTo(context.Background(), domain.Conversation{ID: id}))
}

// sizedFile reports size without holding the content in memory.
func sizedFile(name string, size int64) File {
	return File{
		Name: name,
		Size: size,
		Open: func() (io.ReadCloser, error) {
			return io.NopCloser(io.LimitReader(zeroReader{}, size)), nil
		},
	}
}

type zeroReader struct{}

func (zeroReader) Read(p []byte) (int, error) {
	clear(p)
	return len(p), nil
}

func TestUploadFiles_SizeLimitBoundary(t *testing.T) {
	h := newHarness(&domaintest.Gateway{})
	h.activate(t, "c1")

	report, err := h.mgr.UploadFiles(context.Background(), []File{
		sizedFile("exact.bin", 5_242_880),
		sizedFile("over.bin", 5_242_881),
	})
	require.NoError(t, err)
	assert.Equal(t, 1, report.Succeeded)
	assert.Equal(t, 2, report.Total)

	uploads := h.gw.Calls("UploadDocument")
	require.Len(t, uploads, 1)
	assert.Equal(t, "exact.bin", uploads[0].Arg)

	over := report.Results[1]
	assert.Equal(t, domain.UploadFailed, over.Attachment.UploadState)
	var verr *domain.ValidationError
	require.ErrorAs(t, over.Err, &verr)
	assert.Equal(t, int64(5_242_881), verr.Size)
	assert.Equal(t, DefaultMaxSize, verr.Limit)
	assert.Equal(t, "file is 5,242,881 bytes, over the 5.0 MiB limit", over.Attachment.ErrorReason)
	assert.Len(t, h.bus.Replay(events.AttachmentRejected, time.Time{}), 1)
}

func TestUploadFiles_BatchIsolation(t *testing.T) {
	gw := &domaintest.Gateway{UploadFunc: func(_ context.Context, _, filename string, _ io.Reader) error {
		if filename == "two.txt" {
			return &domain.NetworkError{Op: "upload document", StatusCode: 500, Err: errors.New("indexing failed")}
		}
		return nil
	}}
	h := newHarness(gw)
	h.activate(t, "c1")

	report, err := h.mgr.UploadFiles(context.Background(), []File{
		BytesFile("one.txt", []byte("1")),
		BytesFile("two.txt", []byte("2")),
		BytesFile("three.txt", []byte("3")),
	})
	require.NoError(t, err)

	assert.Equal(t, 2, report.Succeeded)
	assert.Equal(t, 3, report.Total)
	require.Len(t, report.Results, 3)
	assert.Equal(t, domain.UploadSucceeded, report.Results[0].Attachment.UploadState)
	assert.Equal(t, domain.UploadFailed, report.Results[1].Attachment.UploadState)
	assert.Equal(t, domain.UploadSucceeded, report.Results[2].Attachment.UploadState)
	assert.Len(t, gw.Calls("UploadDocument"), 3)

	notices := h.renderer.Commands("Notice")
	require.NotEmpty(t, notices)
	assert.Equal(t, "Uploading 3 file(s)...", notices[0].Text)
	assert.Equal(t, "Uploaded 2/3 file(s)", notices[len(notices)-1].Text)
	assert.Equal(t, notices[0].Handle, notices[len(notices)-1].Handle)
}

func TestUploadFiles_SequentialOrder(t *testing.T) {
	var order []string
	gw := &domaintest.Gateway{UploadFunc: func(_ context.Context, _, filename string, r io.Reader) error {
		order = append(order, filename)
		_, err := io.Copy(io.Discard, r)
		return err
	}}
	h := newHarness(gw)
	h.activate(t, "c1")

	_, err := h.mgr.UploadFiles(context.Background(), []File{
		BytesFile("a", nil), BytesFile("b", nil), BytesFile("c", nil),
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b", "c"}, order)
}

func TestUploadFiles_AutoProvisionsOnce(t *testing.T) {
	gw := &domaintest.Gateway{StreamFunc: func(context.Context, domain.MessageRequest) (io.ReadCloser, error) {
		return domaintest.Body(`data: {"text": "Hi there", "conversation_id": "new-7"}`), nil
	}}
	h := newHarness(gw)

	report, err := h.mgr.UploadFiles(context.Background(), []File{
		BytesFile("a.txt", []byte("a")),
		BytesFile("b.txt", []byte("b")),
	})
	require.NoError(t, err)
	assert.Equal(t, "new-7", report.ConversationID)
	assert.Equal(t, "new-7", h.convs.ActiveID())

	streams := gw.Calls("StreamMessage")
	require.Len(t, streams, 1)
	assert.Equal(t, "New conversation created", streams[0].Arg)
	assert.Empty(t, streams[0].ConversationID)

	for _, c := range gw.Calls("UploadDocument") {
		assert.Equal(t, "new-7", c.ConversationID)
	}
	assert.Empty(t, h.renderer.Commands("UpdateMessageText"), "placeholder reply is not rendered")
}

func TestUploadFiles_ProvisionFailureUploadsNothing(t *testing.T) {
	gw := &domaintest.Gateway{StreamFunc: func(context.Context, domain.MessageRequest) (io.ReadCloser, error) {
		return domaintest.Body(`data: {"error": "busy"}`), nil
	}}
	h := newHarness(gw)

	report, err := h.mgr.UploadFiles(context.Background(), []File{BytesFile("a.txt", []byte("a"))})
	require.Error(t, err)
	assert.Nil(t, report)
	assert.Empty(t, gw.Calls("UploadDocument"))
}

func TestUploadFiles_AuthExpiryAbortsBatch(t *testing.T) {
	gw := &domaintest.Gateway{UploadFunc: func(context.Context, string, string, io.Reader) error {
		return fmt.Errorf("upload document: %w", domain.ErrAuthExpired)
	}}
	h := newHarness(gw)
	h.activate(t, "c1")

	report, err := h.mgr.UploadFiles(context.Background(), []File{
		BytesFile("a", nil), BytesFile("b", nil),
	})
	assert.ErrorIs(t, err, domain.ErrAuthExpired)
	require.NotNil(t, report)
	assert.Zero(t, report.Succeeded)
	assert.Len(t, report.Results, 2)
	assert.Len(t, gw.Calls("UploadDocument"), 1)
	assert.Equal(t, 1, h.expirer.Count())
}

func TestUploadFiles_RefreshesListAfterSuccess(t *testing.T) {
	gw := &domaintest.Gateway{ListFunc: func(context.Context, string) ([]domain.Attachment, error) {
		return []domain.Attachment{{ID: "42", Filename: "a.txt", UploadState: domain.UploadSucceeded}}, nil
	}}
	h := newHarness(gw)
	h.activate(t, "c1")

	_, err := h.mgr.UploadFiles(context.Background(), []File{BytesFile("a.txt", []byte("a"))})
	require.NoError(t, err)

	atts := h.convs.Attachments()
	require.Len(t, atts, 1)
	assert.Equal(t, "42", atts[0].ID)
	assert.Len(t, gw.Calls("ListDocuments"), 2)
}

func TestRemove_RefreshesFromServer(t *testing.T) {
	remaining := []domain.Attachment{{ID: "1", Filename: "a.pdf"}, {ID: "2", Filename: "b.pdf"}}
	gw := &domaintest.Gateway{}
	gw.ListFunc = func(context.Context, string) ([]domain.Attachment, error) { return remaining, nil }
	gw.RemoveFunc = func(_ context.Context, _, id string) error {
		remaining = remaining[1:]
		return nil
	}
	h := newHarness(gw)
	h.activate(t, "c1")
	require.Len(t, h.convs.Attachments(), 2)

	require.NoError(t, h.mgr.Remove(context.Background(), "c1", "1"))
	removed := gw.Calls("RemoveDocument")
	require.Len(t, removed, 1)
	assert.Equal(t, "1", removed[0].Arg)
	assert.Len(t, gw.Calls("ListDocuments"), 2)
	assert.Equal(t, []domain.Attachment{{ID: "2", Filename: "b.pdf"}}, h.convs.Attachments())
}

func TestRemove_FailureKeepsList(t *testing.T) {
	gw := &domaintest.Gateway{RemoveFunc: func(context.Context, string, string) error {
		return &domain.NetworkError{Op: "remove document", StatusCode: 404, Err: errors.New("not found")}
	}}
	h := newHarness(gw)
	h.activate(t, "c1")

	assert.Error(t, h.mgr.Remove(context.Background(), "c1", "9"))
	assert.Len(t, gw.Calls("ListDocuments"), 1)
	assert.Zero(t, h.expirer.Count())
}

func TestClearAll(t *testing.T) {
	gw := &domaintest.Gateway{ListFunc: func(context.Context, string) ([]domain.Attachment, error) {
		return []domain.Attachment{{ID: "1"}, {ID: "2"}}, nil
	}}
	h := newHarness(gw)
	h.activate(t, "c1")

	require.NoError(t, h.mgr.ClearAll(context.Background(), "c1"))
	assert.Len(t, gw.Calls("ClearDocuments"), 1)
	assert.Empty(t, h.convs.Attachments())
	assert.Len(t, h.bus.Replay(events.AttachmentsCleared, time.Time{}), 1)
}

func TestUploadFiles_Empty(t *testing.T) {
	h := newHarness(&domaintest.Gateway{})
	report, err := h.mgr.UploadFiles(context.Background(), nil)
	require.NoError(t, err)
	assert.Zero(t, report.Total)
	assert.Empty(t, h.gw.Calls(""))
}

func TestLocalFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "notes.md")
	require.NoError(t, os.WriteFile(path, []byte("# notes"), 0o600))

	f, err := LocalFile(path)
	require.NoError(t, err)
	assert.Equal(t, "notes.md", f.Name)
	assert.Equal(t, int64(7), f.Size)

	rc, err := f.Open()
	require.NoError(t, err)
	defer rc.Close()
	var buf bytes.Buffer
	_, err = buf.ReadFrom(rc)
	require.NoError(t, err)
	assert.Equal(t, "# notes", buf.String())

	_, err = LocalFile(filepath.Dir(path))
	assert.Error(t, err)
}
