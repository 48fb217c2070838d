package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest/observer"

	"zenith-tasker/internal/auth"
	"zenith-tasker/internal/logging"
	"zenith-tasker/internal/testutil"
	"zenith-tasker/pkg/page"
	"zenith-tasker/pkg/task"
	"zenith-tasker/pkg/user"
)

type harness struct {
	t      *testing.T
	srv    *Server
	users  *user.SQLStore
	authn  *auth.Authenticator
	logs   *observer.ObservedLogs
	alice  string
	bob    string
	admin  string
	adminU *user.User
}

func newHarness(t *testing.T, opts Options) *harness {
	t.Helper()
	ctx := context.Background()
	d := testutil.NewDB(t)

	authn, err := auth.New("test-secret", "zenith-tasker")
	require.NoError(t, err)
	log, logs := logging.NewObserved()

	users := user.NewSQLStore(d)
	srv := New(Deps{
		Tasks: task.NewService(task.NewSQLStore(d), log),
		Pages: page.NewSQLStore(d),
		Users: users,
		Auth:  authn,
		DB:    d,
		Log:   log,
	}, opts)

	h := &harness{t: t, srv: srv, users: users, authn: authn, logs: logs}
	h.alice = h.tokenFor(h.createUser(ctx, "alice", false).ID)
	h.bob = h.tokenFor(h.createUser(ctx, "bob", false).ID)
	h.adminU = h.createUser(ctx, "root", true)
	h.admin = h.tokenFor(h.adminU.ID)
	return h
}

func (h *harness) createUser(ctx context.Context, name string, admin bool) *user.User {
	h.t.Helper()
	u, err := h.users.Create(ctx, name, name+"@example.com", admin)
	require.NoError(h.t, err)
	return u
}

func (h *harness) tokenFor(id int64) string {
	h.t.Helper()
	tok, err := h.authn.Issue(id, time.Hour)
	require.NoError(h.t, err)
	return tok
}

func (h *harness) do(method, path, token string, body any) *httptest.ResponseRecorder {
	h.t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(h.t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	h.srv.ServeHTTP(rec, req)
	return rec
}

func decodeBody[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

func errorOf(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	return decodeBody[map[string]string](t, rec)["error"]
}

func TestBannerAndHealth(t *testing.T) {
	h := newHarness(t, Options{})

	rec := h.do("GET", "/", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "Zenith Tasker API is running", decodeBody[map[string]string](t, rec)["message"])
	assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))

	rec = h.do("GET", "/health", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	body := decodeBody[map[string]string](t, rec)
	assert.Equal(t, "ok", body["status"])
	assert.NotEmpty(t, body["db_time"])

	rec = h.do("GET", "/nowhere", "", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

type brokenClock struct{}

func (brokenClock) Now(context.Context) (string, error) {
	return "", errors.New("connection refused")
}

func TestHealthReportsDatabaseDown(t *testing.T) {
	h := newHarness(t, Options{})
	h.srv.db = brokenClock{}

	rec := h.do("GET", "/health", "", nil)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, "error", decodeBody[map[string]string](t, rec)["status"])
}

func TestAuthRequired(t *testing.T) {
	h := newHarness(t, Options{})

	rec := h.do("GET", "/tasks", "", nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Equal(t, "A token is required for authentication", errorOf(t, rec))

	rec = h.do("GET", "/tasks", "garbage", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	other, err := auth.New("another-secret", "zenith-tasker")
	require.NoError(t, err)
	forged, err := other.Issue(1, time.Hour)
	require.NoError(t, err)
	rec = h.do("GET", "/tasks", forged, nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestTaskCRUD(t *testing.T) {
	h := newHarness(t, Options{})

	rec := h.do("POST", "/tasks", h.alice, map[string]any{"title": "   "})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Empty(t, decodeBody[[]task.Task](t, h.do("GET", "/tasks", h.alice, nil)))

	rec = h.do("POST", "/tasks", h.alice, map[string]any{
		"title":    "Write report",
		"due_date": "2025-05-01",
		"category": "work",
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	created := decodeBody[task.Task](t, rec)
	assert.Equal(t, task.StatusTodo, created.Status)
	assert.Equal(t, task.PriorityMedium, created.Priority)
	require.NotNil(t, created.DueDate)
	assert.Equal(t, "2025-05-01", created.DueDate.Format("2006-01-02"))

	path := fmt.Sprintf("/tasks/%d", created.ID)

	rec = h.do("GET", path, h.alice, nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = h.do("GET", path, h.bob, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "task not found", errorOf(t, rec))

	rec = h.do("PUT", path, h.alice, map[string]any{"priority": "high", "status": "in_progress"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	updated := decodeBody[task.Task](t, rec)
	assert.Equal(t, task.PriorityHigh, updated.Priority)
	assert.Equal(t, task.StatusInProgress, updated.Status)
	assert.Equal(t, "Write report", updated.Title)
	assert.Nil(t, updated.DueDate, "due_date omitted from the update is cleared")

	rec = h.do("PUT", path, h.alice, map[string]any{"priority": "urgent"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = h.do("PUT", path, h.alice, map[string]any{"due_date": "next tuesday"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = h.do("PUT", path, h.bob, map[string]any{"title": "mine now"})
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = h.do("DELETE", path, h.bob, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = h.do("DELETE", path, h.alice, nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "Task deleted", decodeBody[map[string]string](t, rec)["message"])

	rec = h.do("GET", path, h.alice, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestMalformedIDsAreNotFound(t *testing.T) {
	h := newHarness(t, Options{})

	for _, path := range []string{"/tasks/abc", "/tasks/-1", "/tasks/0", "/pages/xyz", "/tasks/abc/subtasks", "/tasks/page/abc"} {
		rec := h.do("GET", path, h.alice, nil)
		assert.Equal(t, http.StatusNotFound, rec.Code, path)
	}
	rec := h.do("GET", "/tasks/1/other", h.alice, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestOversizedBodyRejected(t *testing.T) {
	h := newHarness(t, Options{})

	huge := strings.Repeat("x", maxBodyBytes+1)
	rec := h.do("POST", "/tasks", h.alice, map[string]any{"title": huge})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, errorOf(t, rec), "too large")

	rec = h.do("GET", "/tasks", h.alice, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, decodeBody[[]task.Task](t, rec))
}

func TestShipReleaseOverHTTP(t *testing.T) {
	h := newHarness(t, Options{})

	rec := h.do("POST", "/tasks", h.alice, map[string]any{"title": "Ship release"})
	require.Equal(t, http.StatusCreated, rec.Code)
	release := decodeBody[task.Task](t, rec)
	base := fmt.Sprintf("/tasks/%d/subtasks", release.ID)

	rec = h.do("POST", base, h.alice, map[string]any{"title": "write changelog"})
	require.Equal(t, http.StatusCreated, rec.Code)
	changelog := decodeBody[task.Subtask](t, rec)
	rec = h.do("POST", base, h.alice, map[string]any{"title": "tag version"})
	require.Equal(t, http.StatusCreated, rec.Code)
	tag := decodeBody[task.Subtask](t, rec)

	rec = h.do("POST", base, h.alice, map[string]any{"title": ""})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = h.do("GET", base, h.alice, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decodeBody[[]task.Subtask](t, rec), 2)

	toggle := func(id int64) toggleResponse {
		rec := h.do("PATCH", fmt.Sprintf("%s/%d/toggle", base, id), h.alice, nil)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		return decodeBody[toggleResponse](t, rec)
	}

	first := toggle(changelog.ID)
	assert.True(t, first.Completed)
	assert.Equal(t, task.StatusInProgress, first.TaskStatus)
	assert.Equal(t, task.StatusDone, toggle(tag.ID).TaskStatus)

	got := decodeBody[task.Task](t, h.do("GET", fmt.Sprintf("/tasks/%d", release.ID), h.alice, nil))
	assert.Equal(t, task.StatusDone, got.Status)
	require.Len(t, got.Subtasks, 2)

	back := toggle(tag.ID)
	assert.False(t, back.Completed)
	assert.Equal(t, task.StatusInProgress, back.TaskStatus)

	got = decodeBody[task.Task](t, h.do("GET", fmt.Sprintf("/tasks/%d", release.ID), h.alice, nil))
	assert.Equal(t, task.StatusInProgress, got.Status)
}

func TestSubtaskRoutesAreOwnerScoped(t *testing.T) {
	h := newHarness(t, Options{})

	rec := h.do("POST", "/tasks", h.alice, map[string]any{"title": "private"})
	require.Equal(t, http.StatusCreated, rec.Code)
	private := decodeBody[task.Task](t, rec)
	base := fmt.Sprintf("/tasks/%d/subtasks", private.ID)

	rec = h.do("POST", base, h.alice, map[string]any{"title": "step"})
	require.Equal(t, http.StatusCreated, rec.Code)
	step := decodeBody[task.Subtask](t, rec)
	one := fmt.Sprintf("%s/%d", base, step.ID)

	assert.Equal(t, http.StatusNotFound, h.do("GET", base, h.bob, nil).Code)
	assert.Equal(t, http.StatusNotFound, h.do("POST", base, h.bob, map[string]any{"title": "x"}).Code)
	assert.Equal(t, http.StatusNotFound, h.do("PUT", one, h.bob, map[string]any{"title": "x"}).Code)
	assert.Equal(t, http.StatusNotFound, h.do("PATCH", one+"/toggle", h.bob, nil).Code)
	assert.Equal(t, http.StatusNotFound, h.do("DELETE", one, h.bob, nil).Code)

	rec = h.do("PUT", one, h.alice, map[string]any{"title": "renamed", "order_index": 3})
	require.Equal(t, http.StatusOK, rec.Code)
	renamed := decodeBody[task.Subtask](t, rec)
	assert.Equal(t, "renamed", renamed.Title)
	assert.Equal(t, 3, renamed.OrderIndex)

	rec = h.do("DELETE", one, h.alice, nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "Subtask deleted", decodeBody[map[string]string](t, rec)["message"])
	assert.Equal(t, http.StatusNotFound, h.do("DELETE", one, h.alice, nil).Code)
}

func TestDoneGuardConflict(t *testing.T) {
	h := newHarness(t, Options{})

	rec := h.do("POST", "/tasks", h.alice, map[string]any{"title": "guarded"})
	require.Equal(t, http.StatusCreated, rec.Code)
	guarded := decodeBody[task.Task](t, rec)
	rec = h.do("POST", fmt.Sprintf("/tasks/%d/subtasks", guarded.ID), h.alice, map[string]any{"title": "open"})
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = h.do("PUT", fmt.Sprintf("/tasks/%d", guarded.ID), h.alice, map[string]any{"status": "done"})
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, task.ErrIncompleteSubtasks.Error(), errorOf(t, rec))
}

func TestTaskReorder(t *testing.T) {
	h := newHarness(t, Options{})

	rec := h.do("PUT", "/tasks/batch/reorder", h.alice, map[string]any{"taskOrders": "nope"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "taskOrders must be an array", errorOf(t, rec))

	rec = h.do("PUT", "/tasks/batch/reorder", h.alice, map[string]any{})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	a := decodeBody[task.Task](t, h.do("POST", "/tasks", h.alice, map[string]any{"title": "a"}))
	b := decodeBody[task.Task](t, h.do("POST", "/tasks", h.alice, map[string]any{"title": "b"}))
	foreign := decodeBody[task.Task](t, h.do("POST", "/tasks", h.bob, map[string]any{"title": "f"}))

	rec = h.do("PUT", "/tasks/batch/reorder", h.alice, map[string]any{
		"taskOrders": []map[string]any{
			{"id": b.ID, "order_index": 0},
			{"id": a.ID, "order_index": 1},
			{"id": foreign.ID, "order_index": 9},
		},
	})
	require.Equal(t, http.StatusOK, rec.Code)

	list := decodeBody[[]task.Task](t, h.do("GET", "/tasks", h.alice, nil))
	require.Len(t, list, 2)
	assert.Equal(t, b.ID, list[0].ID)
	assert.Equal(t, a.ID, list[1].ID)

	theirs := decodeBody[task.Task](t, h.do("GET", fmt.Sprintf("/tasks/%d", foreign.ID), h.bob, nil))
	assert.Equal(t, 0, theirs.OrderIndex)
}

func TestPagesFlow(t *testing.T) {
	h := newHarness(t, Options{})

	rec := h.do("POST", "/pages", h.alice, nil)
	require.Equal(t, http.StatusCreated, rec.Code)
	first := decodeBody[page.Page](t, rec)
	assert.Equal(t, page.DefaultTitle, first.Title)

	rec = h.do("POST", "/pages", h.alice, map[string]any{"title": "Roadmap"})
	require.Equal(t, http.StatusCreated, rec.Code)
	roadmap := decodeBody[page.Page](t, rec)

	rec = h.do("PUT", fmt.Sprintf("/pages/%d", first.ID), h.alice, map[string]any{"content": "<p>notes</p>"})
	require.Equal(t, http.StatusOK, rec.Code)
	edited := decodeBody[page.Page](t, rec)
	assert.Equal(t, page.DefaultTitle, edited.Title)
	assert.Equal(t, "<p>notes</p>", edited.Content)

	rec = h.do("PATCH", fmt.Sprintf("/pages/%d/favorite", first.ID), h.alice, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, decodeBody[page.Page](t, rec).IsFavorite)

	assert.Equal(t, http.StatusNotFound, h.do("GET", fmt.Sprintf("/pages/%d", first.ID), h.bob, nil).Code)
	assert.Equal(t, http.StatusNotFound, h.do("PATCH", fmt.Sprintf("/pages/%d/favorite", first.ID), h.bob, nil).Code)

	rec = h.do("PUT", "/pages/reorder", h.alice, map[string]any{"updates": []any{}})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "No updates needed", decodeBody[map[string]string](t, rec)["message"])

	rec = h.do("PUT", "/pages/reorder", h.alice, map[string]any{
		"updates": []map[string]any{{"id": roadmap.ID, "order_index": 0}},
	})
	require.Equal(t, http.StatusOK, rec.Code)
	pages := decodeBody[[]page.Page](t, h.do("GET", "/pages", h.alice, nil))
	require.Len(t, pages, 2)
	assert.Equal(t, roadmap.ID, pages[0].ID)

	// A task on a foreign page is rejected; on an own page it is listed there.
	rec = h.do("POST", "/tasks", h.bob, map[string]any{"title": "sneaky", "page_id": roadmap.ID})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = h.do("POST", "/tasks", h.alice, map[string]any{"title": "plan Q3", "page_id": roadmap.ID})
	require.Equal(t, http.StatusCreated, rec.Code)
	linked := decodeBody[task.Task](t, rec)
	require.NotNil(t, linked.PageTitle)
	assert.Equal(t, "Roadmap", *linked.PageTitle)

	onPage := decodeBody[[]task.Task](t, h.do("GET", fmt.Sprintf("/tasks/page/%d", roadmap.ID), h.alice, nil))
	require.Len(t, onPage, 1)
	assert.Equal(t, linked.ID, onPage[0].ID)

	rec = h.do("DELETE", fmt.Sprintf("/pages/%d", roadmap.ID), h.alice, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, http.StatusNotFound, h.do("DELETE", fmt.Sprintf("/pages/%d", roadmap.ID), h.alice, nil).Code)

	unlinked := decodeBody[task.Task](t, h.do("GET", fmt.Sprintf("/tasks/%d", linked.ID), h.alice, nil))
	assert.Nil(t, unlinked.PageID)
}

func TestAdminGate(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, Options{})

	assert.Equal(t, http.StatusForbidden, h.do("GET", "/admin/users", h.alice, nil).Code)
	assert.Equal(t, http.StatusForbidden, h.do("GET", "/admin/users", "", nil).Code)

	rec := h.do("GET", "/admin/users", h.admin, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decodeBody[[]user.User](t, rec), 3)

	alice := decodeBody[[]user.User](t, rec)[2]
	require.Equal(t, "alice", alice.Username)
	path := fmt.Sprintf("/admin/users/%d/allow-reset", alice.ID)

	rec = h.do("POST", path, h.admin, map[string]any{"hours": 2})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Contains(t, decodeBody[map[string]any](t, rec)["message"], "Password reset enabled for alice")

	rec = h.do("GET", fmt.Sprintf("/admin/users/%d", alice.ID), h.admin, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, true, decodeBody[map[string]any](t, rec)["reset_allowed"])

	rec = h.do("POST", path, h.admin, map[string]any{"hours": 10000})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	assert.Equal(t, http.StatusNotFound, h.do("POST", "/admin/users/999/allow-reset", h.admin, nil).Code)

	rec = h.do("DELETE", path, h.admin, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	allowed, err := h.users.ResetAllowed(ctx, alice.ID)
	require.NoError(t, err)
	assert.False(t, allowed)

	// Admin rights are re-read on every request.
	require.NoError(t, h.users.SetStatus(ctx, h.adminU.ID, user.StatusInactive))
	assert.Equal(t, http.StatusForbidden, h.do("GET", "/admin/users", h.admin, nil).Code)
}

func TestMetricsEndpoint(t *testing.T) {
	h := newHarness(t, Options{Metrics: true})
	h.do("GET", "/tasks", h.alice, nil)

	rec := h.do("GET", "/metrics", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `tasker_http_requests_total{method="GET",route="GET /tasks",status="200"} 1`)

	plain := newHarness(t, Options{})
	assert.Equal(t, http.StatusNotFound, plain.do("GET", "/metrics", "", nil).Code)
}

func TestRateLimit(t *testing.T) {
	h := newHarness(t, Options{RateLimit: true, RPS: 0.001, Burst: 2})

	assert.Equal(t, http.StatusOK, h.do("GET", "/", "", nil).Code)
	assert.Equal(t, http.StatusOK, h.do("GET", "/", "", nil).Code)
	rec := h.do("GET", "/", "", nil)
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)

	req := httptest.NewRequest("GET", "/", nil)
	req.Header.Set("X-Forwarded-For", "203.0.113.9, 10.0.0.1")
	other := httptest.NewRecorder()
	h.srv.ServeHTTP(other, req)
	assert.Equal(t, http.StatusOK, other.Code, "limits are per client")
}

func TestCORS(t *testing.T) {
	h := newHarness(t, Options{AllowedOrigins: []string{"http://localhost:3000"}})

	req := httptest.NewRequest("OPTIONS", "/tasks", nil)
	req.Header.Set("Origin", "http://localhost:3000")
	req.Header.Set("Access-Control-Request-Method", "POST")
	rec := httptest.NewRecorder()
	h.srv.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "http://localhost:3000", rec.Header().Get("Access-Control-Allow-Origin"))
	assert.Contains(t, rec.Header().Get("Access-Control-Allow-Headers"), "Authorization")

	req = httptest.NewRequest("GET", "/", nil)
	req.Header.Set("Origin", "https://evil.example")
	rec = httptest.NewRecorder()
	h.srv.ServeHTTP(rec, req)
	assert.Empty(t, rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestAccessLog(t *testing.T) {
	h := newHarness(t, Options{})
	h.logs.TakeAll()

	h.do("GET", "/tasks", h.alice, nil)

	entries := h.logs.FilterMessage("request").All()
	require.Len(t, entries, 1)
	fields := entries[0].ContextMap()
	assert.Equal(t, "GET /tasks", fields["route"])
	assert.Equal(t, int64(200), fields["status"])
	assert.NotEmpty(t, fields["request_id"])
	assert.NotZero(t, fields["user_id"])
}

func TestPanicRecovered(t *testing.T) {
	h := newHarness(t, Options{})
	h.srv.mux.HandleFunc("GET /boom", func(http.ResponseWriter, *http.Request) { panic("boom") })

	rec := h.do("GET", "/boom", "", nil)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, "internal server error", errorOf(t, rec))
	assert.Equal(t, 1, h.logs.FilterMessage("handler panic").Len())
}
