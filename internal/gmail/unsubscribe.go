package gmail

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"

	"log/slog"
)

// UnsubscribeInfo describes how to unsubscribe from a message's sender,
// extracted from the RFC 2369 List-Unsubscribe header.
type UnsubscribeInfo struct {
	MessageID      string
	HasUnsubscribe bool
	Methods        []UnsubscribeMethod
}

// UnsubscribeMethod is a single unsubscribe endpoint.
type UnsubscribeMethod struct {
	Type string // "mailto" or "http"
	URL  string
}

// HTTPMethod returns the first http(s) method, if any.
func (u *UnsubscribeInfo) HTTPMethod() (UnsubscribeMethod, bool) {
	for _, m := range u.Methods {
		if m.Type == "http" {
			return m, true
		}
	}

	return UnsubscribeMethod{}, false
}

// GetUnsubscribeInfo fetches a message and parses its List-Unsubscribe
// header. A missing header yields HasUnsubscribe == false, not an error.
func (c *Client) GetUnsubscribeInfo(ctx context.Context, messageID string) (*UnsubscribeInfo, error) {
	msg, err := c.GetMessage(ctx, messageID)
	if err != nil {
		return nil, err
	}

	info := &UnsubscribeInfo{MessageID: messageID}

	header := msg.Header("List-Unsubscribe")
	if header == "" {
		return info, nil
	}

	info.HasUnsubscribe = true
	info.Methods = parseListUnsubscribe(header)

	return info, nil
}

// parseListUnsubscribe parses a List-Unsubscribe header value.
// Format per RFC 2369: <mailto:unsub@example.com>, <https://example.com/unsub>
func parseListUnsubscribe(header string) []UnsubscribeMethod {
	var methods []UnsubscribeMethod

	for _, part := range strings.Split(header, "<") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}

		endIdx := strings.Index(part, ">")
		if endIdx == -1 {
			continue
		}

		target := strings.TrimSpace(part[:endIdx])

		switch {
		case strings.HasPrefix(target, "mailto:"):
			methods = append(methods, UnsubscribeMethod{Type: "mailto", URL: target})
		case strings.HasPrefix(target, "http://"), strings.HasPrefix(target, "https://"):
			methods = append(methods, UnsubscribeMethod{Type: "http", URL: target})
		}
	}

	return methods
}

// UnsubscribeViaHTTP performs the unsubscribe GET directly instead of
// opening a browser. Any 2xx or 3xx response counts as success — many
// list managers redirect to a confirmation page.
func (c *Client) UnsubscribeViaHTTP(ctx context.Context, target string) error {
	if !strings.HasPrefix(target, "http://") && !strings.HasPrefix(target, "https://") {
		return fmt.Errorf("gmail: invalid unsubscribe URL: %s", target)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return fmt.Errorf("gmail: creating unsubscribe request: %w", err)
	}

	// Some list managers reject requests without a user agent.
	req.Header.Set("User-Agent", userAgent)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("gmail: unsubscribe request: %w", err)
	}
	defer resp.Body.Close()

	_, _ = io.Copy(io.Discard, resp.Body)

	c.logger.Debug("unsubscribe request sent",
		slog.String("url", target),
		slog.Int("status", resp.StatusCode),
	)

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusBadRequest {
		return fmt.Errorf("gmail: unsubscribe request failed with status %d", resp.StatusCode)
	}

	return nil
}
