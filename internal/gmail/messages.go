package gmail

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"log/slog"
)

// defaultMaxResults is used when ListOptions.MaxResults is zero.
const defaultMaxResults = 10

// MessageRef is a message stub from a list response: the ID pair only.
// Full metadata requires a Get.
type MessageRef struct {
	ID       string `json:"id"`
	ThreadID string `json:"threadId"`
}

// Message mirrors the Gmail API message resource.
type Message struct {
	ID       string   `json:"id"`
	ThreadID string   `json:"threadId"`
	LabelIDs []string `json:"labelIds"`
	Snippet  string   `json:"snippet"`
	Payload  *Payload `json:"payload"`
}

// Payload is one node of a message's MIME tree.
type Payload struct {
	MimeType string    `json:"mimeType"`
	Headers  []Header  `json:"headers"`
	Body     *Body     `json:"body"`
	Parts    []Payload `json:"parts"`
}

// Header is a single RFC 822 header.
type Header struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// Body carries base64url-encoded part content.
type Body struct {
	Size int    `json:"size"`
	Data string `json:"data"`
}

type listMessagesResponse struct {
	Messages           []MessageRef `json:"messages"`
	NextPageToken      string       `json:"nextPageToken"`
	ResultSizeEstimate int          `json:"resultSizeEstimate"`
}

type modifyMessageRequest struct {
	AddLabelIDs    []string `json:"addLabelIds,omitempty"`
	RemoveLabelIDs []string `json:"removeLabelIds,omitempty"`
}

// ListOptions narrows a message listing.
type ListOptions struct {
	// MaxResults caps the number of refs returned. Zero means the default.
	MaxResults int
	// Query is a Gmail search expression, e.g. "from:alice is:unread".
	Query string
	// LabelIDs restricts results to messages carrying all of these labels.
	LabelIDs []string
}

// ListMessages returns message refs matching the given options.
func (c *Client) ListMessages(ctx context.Context, opts ListOptions) ([]MessageRef, error) {
	max := opts.MaxResults
	if max <= 0 {
		max = defaultMaxResults
	}

	q := url.Values{}
	q.Set("maxResults", strconv.Itoa(max))

	if opts.Query != "" {
		q.Set("q", opts.Query)
	}

	for _, id := range opts.LabelIDs {
		// "" is the resolved form of the virtual "all" label: no filter.
		if id != "" {
			q.Add("labelIds", id)
		}
	}

	c.logger.Debug("listing messages",
		slog.Int("max_results", max),
		slog.String("query", opts.Query),
	)

	resp, err := c.Do(ctx, http.MethodGet, "/users/me/messages?"+q.Encode(), nil)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var lmr listMessagesResponse
	if err := json.NewDecoder(resp.Body).Decode(&lmr); err != nil {
		return nil, fmt.Errorf("gmail: decoding list response: %w", err)
	}

	return lmr.Messages, nil
}

// GetMessage retrieves a single message, full format, by ID.
func (c *Client) GetMessage(ctx context.Context, id string) (*Message, error) {
	resp, err := c.Do(ctx, http.MethodGet, "/users/me/messages/"+url.PathEscape(id), nil)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var msg Message
	if err := json.NewDecoder(resp.Body).Decode(&msg); err != nil {
		return nil, fmt.Errorf("gmail: decoding message response: %w", err)
	}

	return &msg, nil
}

// ModifyMessage adds and removes labels on a message and returns the
// updated message.
func (c *Client) ModifyMessage(ctx context.Context, id string, add, remove []string) (*Message, error) {
	body, err := json.Marshal(modifyMessageRequest{
		AddLabelIDs:    add,
		RemoveLabelIDs: remove,
	})
	if err != nil {
		return nil, fmt.Errorf("gmail: encoding modify request: %w", err)
	}

	c.logger.Debug("modifying message",
		slog.String("message_id", id),
		slog.Any("add", add),
		slog.Any("remove", remove),
	)

	resp, err := c.Do(ctx, http.MethodPost, "/users/me/messages/"+url.PathEscape(id)+"/modify", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var msg Message
	if err := json.NewDecoder(resp.Body).Decode(&msg); err != nil {
		return nil, fmt.Errorf("gmail: decoding modify response: %w", err)
	}

	return &msg, nil
}

// TrashMessage moves a message to the trash.
func (c *Client) TrashMessage(ctx context.Context, id string) error {
	resp, err := c.Do(ctx, http.MethodPost, "/users/me/messages/"+url.PathEscape(id)+"/trash", nil)
	if err != nil {
		return err
	}

	resp.Body.Close()

	return nil
}

// ArchiveMessage removes a message from the inbox.
func (c *Client) ArchiveMessage(ctx context.Context, id string) error {
	_, err := c.ModifyMessage(ctx, id, nil, []string{LabelInbox})
	return err
}

// SpamMessage marks a message as spam and removes it from the inbox.
func (c *Client) SpamMessage(ctx context.Context, id string) error {
	_, err := c.ModifyMessage(ctx, id, []string{LabelSpam}, []string{LabelInbox})
	return err
}

// UnspamMessage clears the spam flag and restores the message to the inbox.
func (c *Client) UnspamMessage(ctx context.Context, id string) error {
	_, err := c.ModifyMessage(ctx, id, []string{LabelInbox}, []string{LabelSpam})
	return err
}

// Header returns the value of the named header, case-insensitively.
// Returns "" when the header is absent or the payload is missing.
func (m *Message) Header(name string) string {
	if m.Payload == nil {
		return ""
	}

	for _, h := range m.Payload.Headers {
		if strings.EqualFold(h.Name, name) {
			return h.Value
		}
	}

	return ""
}

// BodyText returns the plain-text body of the message: the first
// text/plain part found by depth-first search through the MIME tree,
// base64url-decoded. Falls back to the snippet when no decodable
// text/plain part exists.
func (m *Message) BodyText() string {
	if m.Payload != nil {
		if text, ok := findPlainText(m.Payload); ok {
			return text
		}
	}

	return m.Snippet
}

func findPlainText(p *Payload) (string, bool) {
	if strings.HasPrefix(p.MimeType, "text/plain") && p.Body != nil && p.Body.Data != "" {
		// Gmail emits base64url without padding; trim any padding for safety.
		decoded, err := base64.RawURLEncoding.DecodeString(strings.TrimRight(p.Body.Data, "="))
		if err != nil {
			return "", false
		}

		return string(decoded), true
	}

	for i := range p.Parts {
		if text, ok := findPlainText(&p.Parts[i]); ok {
			return text, true
		}
	}

	return "", false
}
