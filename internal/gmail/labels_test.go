package gmail

import (
	"context"
	"net/http"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testLabelsJSON = `{"labels":[
	{"id":"INBOX","name":"INBOX","type":"system"},
	{"id":"Label_1","name":"Receipts","type":"user"},
	{"id":"Label_2","name":"Café","type":"user"}
]}`

func TestListLabels(t *testing.T) {
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/users/me/labels", r.URL.Path)
		_, _ = w.Write([]byte(testLabelsJSON))
	}))

	labels, err := c.ListLabels(context.Background())
	require.NoError(t, err)
	require.Len(t, labels, 3)
	assert.Equal(t, "Receipts", labels[1].Name)
	assert.Equal(t, "user", labels[1].Type)
}

func TestResolveLabelID_SystemNames(t *testing.T) {
	var calls atomic.Int32

	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		_, _ = w.Write([]byte(testLabelsJSON))
	}))

	tests := []struct {
		name string
		want string
	}{
		{"inbox", "INBOX"},
		{"INBOX", "INBOX"},
		{"Spam", "SPAM"},
		{"trash", "TRASH"},
		{"sent", "SENT"},
		{"drafts", "DRAFT"},
		{"starred", "STARRED"},
		{"all", ""},
		{"important", "IMPORTANT"},
	}

	for _, tt := range tests {
		id, err := c.ResolveLabelID(context.Background(), tt.name)
		require.NoError(t, err, tt.name)
		assert.Equal(t, tt.want, id, tt.name)
	}

	// System names resolve without touching the API.
	assert.Equal(t, int32(0), calls.Load())
}

func TestResolveLabelID_AllListsWithoutFilter(t *testing.T) {
	var gotLabelIDs []string

	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotLabelIDs = r.URL.Query()["labelIds"]
		_, _ = w.Write([]byte(`{"messages":[{"id":"m1","threadId":"t1"}]}`))
	}))

	id, err := c.ResolveLabelID(context.Background(), "all")
	require.NoError(t, err)
	require.Empty(t, id)

	// The empty ID must never reach the wire: Gmail has no ALL label and
	// rejects unknown labelIds with 400.
	_, err = c.ListMessages(context.Background(), ListOptions{LabelIDs: []string{id}})
	require.NoError(t, err)
	assert.Empty(t, gotLabelIDs)
}

func TestResolveLabelID_UserLabel(t *testing.T) {
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(testLabelsJSON))
	}))

	id, err := c.ResolveLabelID(context.Background(), "receipts")
	require.NoError(t, err)
	assert.Equal(t, "Label_1", id)
}

func TestResolveLabelID_NFCNormalization(t *testing.T) {
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(testLabelsJSON))
	}))

	// Decomposed form: "Cafe" + combining acute accent. The stored label
	// uses the composed form; both must resolve to the same ID.
	id, err := c.ResolveLabelID(context.Background(), "Café")
	require.NoError(t, err)
	assert.Equal(t, "Label_2", id)
}

func TestResolveLabelID_Unknown(t *testing.T) {
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(testLabelsJSON))
	}))

	_, err := c.ResolveLabelID(context.Background(), "no-such-label")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrNotFound)
	assert.Contains(t, err.Error(), "no-such-label")
}
