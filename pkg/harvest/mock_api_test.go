package harvest

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tweetharvest/pkg/logger"
	"tweetharvest/pkg/twitter"
)

const mockToken = "mock-bearer-token"

// mockAPI simulates the search and timeline endpoints. Each key has a fixed
// number of pages; the continuation token "p<n>" asks for page n.
type mockAPI struct {
	server *httptest.Server

	mu        sync.Mutex
	pages     map[string][]int // records per page, by key
	throttle  map[string]int   // 429 responses to send before the first page
	broken    map[string]bool  // keys that always get a 500
	requests  map[string]int
	badTokens int
	unauthed  int
}

func newMockAPI(t *testing.T) *mockAPI {
	t.Helper()
	m := &mockAPI{
		pages:    make(map[string][]int),
		throttle: make(map[string]int),
		broken:   make(map[string]bool),
		requests: make(map[string]int),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/tweets/search/all", func(w http.ResponseWriter, r *http.Request) {
		m.serve(w, r, r.URL.Query().Get("query"), "next_token")
	})
	mux.HandleFunc("/users/", func(w http.ResponseWriter, r *http.Request) {
		id := strings.TrimSuffix(strings.TrimPrefix(r.URL.Path, "/users/"), "/tweets")
		m.serve(w, r, id, "pagination_token")
	})

	m.server = httptest.NewServer(mux)
	t.Cleanup(m.server.Close)
	return m
}

func (m *mockAPI) client() *twitter.Client {
	return twitter.NewClient(m.server.URL, mockToken, 5*time.Second, logger.NewNopLogger())
}

func (m *mockAPI) serve(w http.ResponseWriter, r *http.Request, key, tokenParam string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.requests[key]++
	w.Header().Set("Content-Type", "application/json")

	if r.Header.Get("Authorization") != "Bearer "+mockToken {
		m.unauthed++
		w.WriteHeader(http.StatusUnauthorized)
		fmt.Fprint(w, `{"title":"Unauthorized","status":401}`)
		return
	}
	if m.broken[key] {
		w.WriteHeader(http.StatusInternalServerError)
		fmt.Fprint(w, `{"title":"Internal Error"}`)
		return
	}
	if m.throttle[key] > 0 {
		m.throttle[key]--
		w.Header().Set("Retry-After", "3")
		w.WriteHeader(http.StatusTooManyRequests)
		fmt.Fprint(w, `{"title":"Too Many Requests","status":429}`)
		return
	}

	index := 0
	if tok := r.URL.Query().Get(tokenParam); tok != "" {
		n, err := strconv.Atoi(strings.TrimPrefix(tok, "p"))
		if err != nil || !strings.HasPrefix(tok, "p") {
			m.badTokens++
			w.WriteHeader(http.StatusBadRequest)
			fmt.Fprint(w, `{"title":"Invalid Request"}`)
			return
		}
		index = n
	}

	pages := m.pages[key]
	if len(pages) == 0 {
		fmt.Fprint(w, `{"meta":{"result_count":0}}`)
		return
	}
	if index >= len(pages) {
		m.badTokens++
		w.WriteHeader(http.StatusBadRequest)
		fmt.Fprint(w, `{"title":"Invalid Request"}`)
		return
	}

	data := make([]map[string]string, pages[index])
	for i := range data {
		data[i] = map[string]string{
			"id":              fmt.Sprintf("%s-%d-%d", key, index, i),
			"conversation_id": fmt.Sprintf("%d%d", 1000+index, i),
		}
	}
	meta := map[string]interface{}{"result_count": len(data)}
	if index+1 < len(pages) {
		meta["next_token"] = fmt.Sprintf("p%d", index+1)
	}
	_ = json.NewEncoder(w).Encode(map[string]interface{}{"data": data, "meta": meta})
}

func (m *mockAPI) requestCount(key string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.requests[key]
}

func TestEndToEndSearch(t *testing.T) {
	api := newMockAPI(t)
	api.pages["#go"] = []int{3, 2, 1}
	api.pages["#rust"] = []int{4}
	api.throttle["#rust"] = 1
	api.broken["#zig"] = true

	h := newHarnessWithFetcher(t, t.TempDir(), "search", api.client(), 2)
	sum, err := h.orch.RunBatch(context.Background(), []string{"#go", "#rust", "#zig", "#empty"})
	require.NoError(t, err)

	assert.Equal(t, 3, sum.Completed)
	assert.Equal(t, 1, sum.Failed)
	assert.Equal(t, []string{"#zig"}, sum.FailedKeys())
	assert.Equal(t, 4, sum.Written)

	assert.Equal(t, 3, api.requestCount("#go"))
	assert.Equal(t, 2, api.requestCount("#rust"), "one throttled request and one retry")
	assert.Equal(t, 3, api.requestCount("#zig"), "two retries after the first attempt")
	assert.Equal(t, 1, api.requestCount("#empty"))
	assert.Zero(t, api.badTokens)
	assert.Zero(t, api.unauthed)

	for i := 1; i <= 3; i++ {
		assert.FileExists(t, h.artifacts.ArtifactPath("#go", i))
	}
	assert.FileExists(t, h.artifacts.ArtifactPath("#rust", 1))
	assert.NoFileExists(t, h.artifacts.ArtifactPath("#zig", 1))
	assert.NoFileExists(t, h.artifacts.ArtifactPath("#empty", 1))

	assert.ElementsMatch(t, []string{"#go", "#rust", "#empty"}, h.checkpointed(t))

	entries := h.failureEntries(t)
	require.Len(t, entries, 1)
	assert.Equal(t, "#zig", entries[0].Key)
	assert.Equal(t, "search", entries[0].Endpoint)
}

func TestEndToEndResumeRetriesOnlyFailedKeys(t *testing.T) {
	dir := t.TempDir()
	api := newMockAPI(t)
	api.pages["#a"] = []int{1}
	api.pages["#b"] = []int{1, 1}
	api.broken["#b"] = true

	first := newHarnessWithFetcher(t, dir, "search", api.client(), 1)
	sum, err := first.orch.RunBatch(context.Background(), []string{"#a", "#b"})
	require.NoError(t, err)
	assert.Equal(t, 1, sum.Failed)

	api.mu.Lock()
	api.broken["#b"] = false
	api.mu.Unlock()

	second := newHarnessWithFetcher(t, dir, "search", api.client(), 1)
	sum, err = second.orch.RunBatch(context.Background(), []string{"#a", "#b"})
	require.NoError(t, err)
	assert.Equal(t, 1, sum.Skipped)
	assert.Equal(t, 1, sum.Completed)
	assert.Equal(t, 1, api.requestCount("#a"), "completed key is not fetched again")
	assert.FileExists(t, second.artifacts.ArtifactPath("#b", 2))
}

func TestEndToEndTimelineAndConversations(t *testing.T) {
	dir := t.TempDir()
	api := newMockAPI(t)
	api.pages["12345"] = []int{2, 1}

	timeline := newHarnessWithFetcher(t, dir, "timeline", api.client(), 1)
	sum, err := timeline.orch.RunBatch(context.Background(), []string{"12345"})
	require.NoError(t, err)
	assert.Equal(t, 1, sum.Completed)
	assert.Equal(t, 2, sum.Written)
	assert.Zero(t, api.badTokens)

	keys, err := ConversationKeys(timeline.outputDir(), logger.NewNopLogger())
	require.NoError(t, err)
	assert.Equal(t, []string{"10000", "10001", "10010"}, keys)

	api.mu.Lock()
	for _, k := range keys {
		api.pages["conversation_id:"+k] = []int{1}
	}
	api.mu.Unlock()
	conv := newHarnessWithFetcher(t, dir, "conversation", api.client(), 1)
	sum, err = conv.orch.RunBatch(context.Background(), keys)
	require.NoError(t, err)
	assert.Equal(t, 3, sum.Completed)
	for _, k := range keys {
		assert.Equal(t, 1, api.requestCount("conversation_id:"+k))
		assert.FileExists(t, conv.artifacts.ArtifactPath(k, 1))
	}
}

func TestEndToEndKeysThatSanitizeAlikeKeepSeparateArtifacts(t *testing.T) {
	api := newMockAPI(t)
	api.pages["#ngss"] = []int{1}
	api.pages["@ngss"] = []int{2}
	api.pages["#NGSS chat"] = []int{1}
	api.pages["#NGSS_chat"] = []int{1}

	keys := []string{"#ngss", "@ngss", "#NGSS chat", "#NGSS_chat"}
	h := newHarnessWithFetcher(t, t.TempDir(), "search", api.client(), 1)
	sum, err := h.orch.RunBatch(context.Background(), keys)
	require.NoError(t, err)
	assert.Equal(t, 4, sum.Completed)
	assert.Equal(t, 4, sum.Written)

	files, err := os.ReadDir(h.outputDir())
	require.NoError(t, err)
	assert.Len(t, files, 4)

	for _, key := range keys {
		body, err := os.ReadFile(h.artifacts.ArtifactPath(key, 1))
		require.NoError(t, err)
		assert.Contains(t, string(body), fmt.Sprintf("%q", key+"-0-0"))
	}
}
