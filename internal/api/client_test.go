package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joss/tether/internal/domain"
)

// --- Operations ---

func TestDoSendsOperationEnvelope(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/operations", r.URL.Path)
		assert.Equal(t, "Bearer test-token", r.Header.Get("Authorization"))

		var req operationRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "moveTask", req.OperationName)

		w.Write([]byte(`{"result":{"task":{"id":"t1","step":"done","rev":7}}}`))
	}))
	defer server.Close()

	c := NewClient(server.URL, "test-token")
	result, err := c.Do(context.Background(), "moveTask", map[string]any{"taskId": "t1"})
	require.NoError(t, err)

	var parsed struct {
		Task domain.Task `json:"task"`
	}
	require.NoError(t, json.Unmarshal(result, &parsed))
	assert.Equal(t, "done", parsed.Task.Step)
	assert.Equal(t, int64(7), parsed.Task.Rev)
}

func TestDoClassifiesServerErrorKind(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusConflict)
		w.Write([]byte(`{"errorKind":"conflict","message":"task revision diverged"}`))
	}))
	defer server.Close()

	c := NewClient(server.URL, "")
	_, err := c.Do(context.Background(), "moveTask", nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrConflict)
	assert.Contains(t, err.Error(), "task revision diverged")
}

func TestDoClassifiesByStatusWithoutKind(t *testing.T) {
	cases := []struct {
		status int
		want   error
	}{
		{http.StatusConflict, domain.ErrConflict},
		{http.StatusUnprocessableEntity, domain.ErrValidation},
		{http.StatusGatewayTimeout, domain.ErrTimeout},
		{http.StatusInternalServerError, domain.ErrNetwork},
	}
	for _, tc := range cases {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(tc.status)
			w.Write([]byte(`{}`))
		}))
		c := NewClient(server.URL, "")
		_, err := c.Do(context.Background(), "op", nil)
		server.Close()
		assert.ErrorIs(t, err, tc.want, "status %d", tc.status)
	}
}

func TestDoDeadlineBecomesTimeout(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
	}))
	defer server.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	c := NewClient(server.URL, "")
	_, err := c.Do(ctx, "sendMessage", nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrTimeout)
}

func TestDoUnreachableServerIsNetworkError(t *testing.T) {
	c := NewClient("http://127.0.0.1:1", "")
	_, err := c.Do(context.Background(), "op", nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrNetwork)
}

// --- Pagination ---

func TestMessagesBuildsPageQuery(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/sessions/sess-1/messages", r.URL.Path)
		q := r.URL.Query()
		assert.Equal(t, "50", q.Get("limit"))
		assert.Equal(t, "cur-100", q.Get("beforeCursor"))
		assert.Equal(t, "desc", q.Get("sortOrder"))

		w.Write([]byte(`{
			"messages":[{"id":"m1","authorType":"user","content":"hi","rev":1}],
			"hasMore":true,
			"cursor":"cur-50"
		}`))
	}))
	defer server.Close()

	c := NewClient(server.URL, "")
	page, err := c.Messages(context.Background(), "sess-1", domain.PageRequest{
		Limit: 50, Before: "cur-100",
	})
	require.NoError(t, err)
	require.Len(t, page.Messages, 1)
	assert.Equal(t, domain.AuthorUser, page.Messages[0].Author)
	assert.True(t, page.HasMore)
	assert.Equal(t, "cur-50", page.Cursor)
}

func TestMessagesOmitsEmptyCursor(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, has := r.URL.Query()["beforeCursor"]
		assert.False(t, has)
		w.Write([]byte(`{"messages":[],"hasMore":false,"cursor":""}`))
	}))
	defer server.Close()

	c := NewClient(server.URL, "")
	page, err := c.Messages(context.Background(), "sess-1", domain.PageRequest{Limit: 50})
	require.NoError(t, err)
	assert.False(t, page.HasMore)
}

// --- Diff ---

func TestDiffFetchesSessionDiff(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/sessions/sess-1/diff", r.URL.Path)
		w.Write([]byte(`{"diff":"+++ b/main.go\n+hello\n"}`))
	}))
	defer server.Close()

	c := NewClient(server.URL, "")
	diff, err := c.Diff(context.Background(), "sess-1")
	require.NoError(t, err)
	assert.Equal(t, "+++ b/main.go\n+hello\n", diff)
}

// --- Sessions ---

func TestSessionsDecodesList(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/sessions", r.URL.Path)
		w.Write([]byte(`[{"id":"sess-1","title":"refactor auth"},{"id":"sess-2","title":"fix ci"}]`))
	}))
	defer server.Close()

	c := NewClient(server.URL, "")
	sessions, err := c.Sessions(context.Background())
	require.NoError(t, err)
	require.Len(t, sessions, 2)
	assert.Equal(t, "refactor auth", sessions[0].Title)
}

// --- Event Feed ---

func TestEventsStreamsAndDropsGarbage(t *testing.T) {
	sse := `event: ping

data: {"id":"01J0000000000000000000EV01","type":"task_updated","payload":{"task":{"id":"t1"}}}

data: not json at all

data: {"type":"message_added","payload":{"id":"m1"}}

`
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "text/event-stream", r.Header.Get("Accept"))
		w.Header().Set("Content-Type", "text/event-stream")
		w.Write([]byte(sse))
	}))
	defer server.Close()

	c := NewClient(server.URL, "")
	events, err := c.Events(context.Background(), "sess-1")
	require.NoError(t, err)

	var got []domain.Event
	for ev := range events {
		got = append(got, ev)
	}

	require.Len(t, got, 2)
	assert.Equal(t, domain.EventTaskUpdated, got[0].Type)
	assert.Equal(t, "01J0000000000000000000EV01", got[0].ID)
	assert.Equal(t, domain.EventMessageAdded, got[1].Type)
	assert.NotEmpty(t, got[1].ID, "missing ids are backfilled")
}

func TestEventsStopAfterCancel(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		fl := w.(http.Flusher)
		for i := 0; ; i++ {
			_, err := fmt.Fprintf(w, "data: {\"id\":\"e%d\",\"type\":\"task_updated\",\"payload\":{}}\n\n", i)
			if err != nil {
				return
			}
			fl.Flush()
			select {
			case <-r.Context().Done():
				return
			case <-time.After(time.Millisecond):
			}
		}
	}))
	defer server.Close()

	ctx, cancel := context.WithCancel(context.Background())
	c := NewClient(server.URL, "")
	events, err := c.Events(ctx, "sess-1")
	require.NoError(t, err)

	<-events // stream established
	cancel()

	// Even with nobody draining, the stream goroutine must exit and close
	// the channel instead of blocking on a full buffer.
	done := make(chan struct{})
	go func() {
		for range events {
		}
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("event channel not closed after cancel")
	}
}

func TestEventsRejectsNonOKStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer server.Close()

	c := NewClient(server.URL, "")
	_, err := c.Events(context.Background(), "sess-1")
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrNetwork)
}
