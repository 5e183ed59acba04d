package gmail

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func b64(s string) string {
	return base64.RawURLEncoding.EncodeToString([]byte(s))
}

func TestListMessages_QueryEncoding(t *testing.T) {
	var gotURL string

	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotURL = r.URL.String()
		_, _ = w.Write([]byte(`{"messages":[{"id":"m1","threadId":"t1"},{"id":"m2","threadId":"t2"}]}`))
	}))

	refs, err := c.ListMessages(context.Background(), ListOptions{
		MaxResults: 25,
		Query:      "from:alice is:unread",
		LabelIDs:   []string{"INBOX", "Label_7"},
	})
	require.NoError(t, err)
	require.Len(t, refs, 2)
	assert.Equal(t, "m1", refs[0].ID)
	assert.Equal(t, "t2", refs[1].ThreadID)

	u, parseErr := url.Parse(gotURL)
	require.NoError(t, parseErr)
	assert.Equal(t, "/users/me/messages", u.Path)
	assert.Equal(t, "25", u.Query().Get("maxResults"))
	assert.Equal(t, "from:alice is:unread", u.Query().Get("q"))
	assert.Equal(t, []string{"INBOX", "Label_7"}, u.Query()["labelIds"])
}

func TestListMessages_DefaultMax(t *testing.T) {
	var gotURL string

	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotURL = r.URL.String()
		_, _ = w.Write([]byte(`{}`))
	}))

	refs, err := c.ListMessages(context.Background(), ListOptions{})
	require.NoError(t, err)
	assert.Empty(t, refs)

	u, parseErr := url.Parse(gotURL)
	require.NoError(t, parseErr)
	assert.Equal(t, "10", u.Query().Get("maxResults"))
	assert.Empty(t, u.Query().Get("q"))
}

func TestGetMessage(t *testing.T) {
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/users/me/messages/abc123", r.URL.Path)
		_, _ = w.Write([]byte(`{
			"id": "abc123",
			"threadId": "t9",
			"labelIds": ["INBOX", "UNREAD"],
			"snippet": "hello there",
			"payload": {
				"mimeType": "text/plain",
				"headers": [{"name": "Subject", "value": "Greetings"}],
				"body": {"size": 5, "data": "` + b64("hello") + `"}
			}
		}`))
	}))

	msg, err := c.GetMessage(context.Background(), "abc123")
	require.NoError(t, err)
	assert.Equal(t, "abc123", msg.ID)
	assert.Equal(t, []string{"INBOX", "UNREAD"}, msg.LabelIDs)
	assert.Equal(t, "Greetings", msg.Header("subject"))
	assert.Equal(t, "hello", msg.BodyText())
}

func TestGetMessage_NotFound(t *testing.T) {
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))

	_, err := c.GetMessage(context.Background(), "bogus")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestModifyMessage_Body(t *testing.T) {
	var gotBody []byte

	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/users/me/messages/m1/modify", r.URL.Path)
		gotBody, _ = io.ReadAll(r.Body)
		_, _ = w.Write([]byte(`{"id":"m1","labelIds":["SPAM"]}`))
	}))

	msg, err := c.ModifyMessage(context.Background(), "m1", []string{"SPAM"}, []string{"INBOX"})
	require.NoError(t, err)
	assert.Equal(t, []string{"SPAM"}, msg.LabelIDs)

	var req map[string][]string
	require.NoError(t, json.Unmarshal(gotBody, &req))
	assert.Equal(t, []string{"SPAM"}, req["addLabelIds"])
	assert.Equal(t, []string{"INBOX"}, req["removeLabelIds"])
}

func TestArchiveMessage_RemovesInbox(t *testing.T) {
	var gotBody []byte

	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotBody, _ = io.ReadAll(r.Body)
		_, _ = w.Write([]byte(`{"id":"m1"}`))
	}))

	require.NoError(t, c.ArchiveMessage(context.Background(), "m1"))

	var req map[string][]string
	require.NoError(t, json.Unmarshal(gotBody, &req))
	assert.Empty(t, req["addLabelIds"])
	assert.Equal(t, []string{LabelInbox}, req["removeLabelIds"])
}

func TestSpamUnspam_LabelPairs(t *testing.T) {
	var bodies [][]byte

	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		bodies = append(bodies, body)
		_, _ = w.Write([]byte(`{"id":"m1"}`))
	}))

	require.NoError(t, c.SpamMessage(context.Background(), "m1"))
	require.NoError(t, c.UnspamMessage(context.Background(), "m1"))

	require.Len(t, bodies, 2)

	var spam, unspam map[string][]string
	require.NoError(t, json.Unmarshal(bodies[0], &spam))
	require.NoError(t, json.Unmarshal(bodies[1], &unspam))

	assert.Equal(t, []string{LabelSpam}, spam["addLabelIds"])
	assert.Equal(t, []string{LabelInbox}, spam["removeLabelIds"])
	assert.Equal(t, []string{LabelInbox}, unspam["addLabelIds"])
	assert.Equal(t, []string{LabelSpam}, unspam["removeLabelIds"])
}

func TestTrashMessage(t *testing.T) {
	var gotPath string

	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		assert.Equal(t, http.MethodPost, r.Method)
		_, _ = w.Write([]byte(`{"id":"m1"}`))
	}))

	require.NoError(t, c.TrashMessage(context.Background(), "m1"))
	assert.Equal(t, "/users/me/messages/m1/trash", gotPath)
}

func TestMessageHeader_CaseInsensitive(t *testing.T) {
	msg := &Message{Payload: &Payload{Headers: []Header{
		{Name: "From", Value: "alice@example.com"},
		{Name: "LIST-UNSUBSCRIBE", Value: "<https://example.com/u>"},
	}}}

	assert.Equal(t, "alice@example.com", msg.Header("from"))
	assert.Equal(t, "alice@example.com", msg.Header("FROM"))
	assert.Equal(t, "<https://example.com/u>", msg.Header("List-Unsubscribe"))
	assert.Empty(t, msg.Header("Subject"))
}

func TestMessageHeader_NilPayload(t *testing.T) {
	msg := &Message{}
	assert.Empty(t, msg.Header("From"))
}

func TestBodyText_Multipart(t *testing.T) {
	msg := &Message{
		Snippet: "fallback snippet",
		Payload: &Payload{
			MimeType: "multipart/alternative",
			Parts: []Payload{
				{MimeType: "text/html", Body: &Body{Data: b64("<p>html</p>")}},
				{
					MimeType: "multipart/mixed",
					Parts: []Payload{
						{MimeType: "text/plain", Body: &Body{Data: b64("nested plain text")}},
					},
				},
			},
		},
	}

	assert.Equal(t, "nested plain text", msg.BodyText())
}

func TestBodyText_CharsetParameter(t *testing.T) {
	msg := &Message{Payload: &Payload{
		MimeType: "text/plain; charset=UTF-8",
		Body:     &Body{Data: b64("with charset")},
	}}

	assert.Equal(t, "with charset", msg.BodyText())
}

func TestBodyText_FallsBackToSnippet(t *testing.T) {
	msg := &Message{
		Snippet: "just the snippet",
		Payload: &Payload{
			MimeType: "text/html",
			Body:     &Body{Data: b64("<p>html only</p>")},
		},
	}

	assert.Equal(t, "just the snippet", msg.BodyText())
}

func TestBodyText_UndecodableData(t *testing.T) {
	msg := &Message{
		Snippet: "snippet wins",
		Payload: &Payload{
			MimeType: "text/plain",
			Body:     &Body{Data: "!!!not base64!!!"},
		},
	}

	assert.Equal(t, "snippet wins", msg.BodyText())
}
