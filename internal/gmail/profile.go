package gmail

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
)

// Profile mirrors the Gmail API getProfile response.
type Profile struct {
	EmailAddress  string `json:"emailAddress"`
	MessagesTotal int    `json:"messagesTotal"`
	ThreadsTotal  int    `json:"threadsTotal"`
	HistoryID     string `json:"historyId"`
}

// GetProfile returns the authenticated account's profile.
func (c *Client) GetProfile(ctx context.Context) (*Profile, error) {
	resp, err := c.Do(ctx, http.MethodGet, "/users/me/profile", nil)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var p Profile
	if err := json.NewDecoder(resp.Body).Decode(&p); err != nil {
		return nil, fmt.Errorf("gmail: decoding profile response: %w", err)
	}

	return &p, nil
}
