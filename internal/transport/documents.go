package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"strconv"

	"ragchat/internal/domain"
)

type documentsResponse struct {
	Documents []documentInfo `json:"documents"`
}

type documentInfo struct {
	ID       flexID `json:"id"`
	Filename string `json:"filename"`
	Content  string `json:"content"`
}

// flexID accepts both numeric and string ids; the service has used both.
type flexID string

func (f *flexID) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		*f = flexID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("document id: %w", err)
	}
	if i, err := n.Int64(); err == nil {
		*f = flexID(strconv.FormatInt(i, 10))
		return nil
	}
	*f = flexID(n.String())
	return nil
}

func (c *Client) documentsURL(conversationID string) string {
	return c.url("/api/conversation/" + url.PathEscape(conversationID) + "/documents")
}

// ListDocuments fetches the attachment metadata of a conversation.
func (c *Client) ListDocuments(ctx context.Context, conversationID string) ([]domain.Attachment, error) {
	var resp documentsResponse
	err := c.doJSON(ctx, "list documents", func(ctx context.Context) (*http.Request, error) {
		return http.NewRequestWithContext(ctx, http.MethodGet, c.documentsURL(conversationID), nil)
	}, &resp)
	if err != nil {
		return nil, err
	}

	atts := make([]domain.Attachment, 0, len(resp.Documents))
	for _, d := range resp.Documents {
		name := d.Filename
		if name == "" {
			name = d.Content
		}
		if name == "" {
			name = "document " + string(d.ID)
		}
		atts = append(atts, domain.Attachment{
			ID:          string(d.ID),
			Filename:    name,
			UploadState: domain.UploadSucceeded,
		})
	}
	return atts, nil
}

// ClearDocuments removes every document of a conversation in one call.
func (c *Client) ClearDocuments(ctx context.Context, conversationID string) error {
	return c.doJSON(ctx, "clear documents", func(ctx context.Context) (*http.Request, error) {
		return http.NewRequestWithContext(ctx, http.MethodDelete, c.documentsURL(conversationID), nil)
	}, nil)
}

// RemoveDocument removes a single document from a conversation.
func (c *Client) RemoveDocument(ctx context.Context, conversationID, documentID string) error {
	payload, err := json.Marshal(map[string]string{"document_id": documentID})
	if err != nil {
		return fmt.Errorf("remove document: marshal: %w", err)
	}
	return c.doJSON(ctx, "remove document", func(ctx context.Context) (*http.Request, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.documentsURL(conversationID)+"/remove", bytes.NewReader(payload))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", "application/json")
		return req, nil
	}, nil)
}

// UploadDocument sends one file as multipart form data bound to a
// conversation.
func (c *Client) UploadDocument(ctx context.Context, conversationID, filename string, content io.Reader) error {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreateFormFile("file", filename)
	if err != nil {
		return fmt.Errorf("upload %s: create form file: %w", filename, err)
	}
	if _, err := io.Copy(part, content); err != nil {
		return fmt.Errorf("upload %s: read file: %w", filename, err)
	}
	if err := mw.WriteField("conversation_id", conversationID); err != nil {
		return fmt.Errorf("upload %s: write field: %w", filename, err)
	}
	if err := mw.Close(); err != nil {
		return fmt.Errorf("upload %s: close form: %w", filename, err)
	}

	body := buf.Bytes()
	return c.doJSON(ctx, "upload document", func(ctx context.Context) (*http.Request, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url("/api/index"), bytes.NewReader(body))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", mw.FormDataContentType())
		return req, nil
	}, nil)
}
