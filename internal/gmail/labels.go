package gmail

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"golang.org/x/text/unicode/norm"
)

// Gmail system label IDs used by the modify operations.
const (
	LabelInbox   = "INBOX"
	LabelSpam    = "SPAM"
	LabelTrash   = "TRASH"
	LabelUnread  = "UNREAD"
	LabelStarred = "STARRED"
)

// systemLabels maps friendly names to fixed system label IDs. These
// never appear in the user's label list under their friendly name, so
// resolution checks here first. "all" is virtual: it resolves to the
// empty ID, meaning no label filter — Gmail has no ALL label.
var systemLabels = map[string]string{
	"inbox":     LabelInbox,
	"spam":      LabelSpam,
	"trash":     LabelTrash,
	"unread":    LabelUnread,
	"starred":   LabelStarred,
	"sent":      "SENT",
	"drafts":    "DRAFT",
	"all":       "",
	"important": "IMPORTANT",
}

// Label mirrors the Gmail API label resource.
type Label struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	Type string `json:"type"`
}

type listLabelsResponse struct {
	Labels []Label `json:"labels"`
}

// ListLabels returns all labels in the account, system and user.
func (c *Client) ListLabels(ctx context.Context) ([]Label, error) {
	resp, err := c.Do(ctx, http.MethodGet, "/users/me/labels", nil)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var llr listLabelsResponse
	if err := json.NewDecoder(resp.Body).Decode(&llr); err != nil {
		return nil, fmt.Errorf("gmail: decoding labels response: %w", err)
	}

	return llr.Labels, nil
}

// ResolveLabelID maps a user-facing label name to its Gmail label ID.
// System names (inbox, spam, trash, ...) map to their fixed IDs without
// a network call; "all" maps to "" (every message matches, so listing
// applies no filter). Anything else is matched against the account's
// labels case-insensitively with NFC normalization, so composed and
// decomposed forms of the same accented name compare equal.
func (c *Client) ResolveLabelID(ctx context.Context, name string) (string, error) {
	if id, ok := systemLabels[strings.ToLower(name)]; ok {
		return id, nil
	}

	labels, err := c.ListLabels(ctx)
	if err != nil {
		return "", err
	}

	want := foldLabelName(name)
	for _, l := range labels {
		if foldLabelName(l.Name) == want {
			return l.ID, nil
		}
	}

	return "", fmt.Errorf("gmail: label %q: %w", name, ErrNotFound)
}

func foldLabelName(name string) string {
	return strings.ToLower(norm.NFC.String(name))
}
