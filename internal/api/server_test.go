package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/JakeFAU/assignment-webapp/internal/assignment"
	"github.com/JakeFAU/assignment-webapp/internal/auth"
	"github.com/JakeFAU/assignment-webapp/internal/domain"
	idgen "github.com/JakeFAU/assignment-webapp/internal/id/uuid"
	memorypublisher "github.com/JakeFAU/assignment-webapp/internal/publisher/memory"
	"github.com/JakeFAU/assignment-webapp/internal/storage/memory"
	"github.com/JakeFAU/assignment-webapp/internal/submission"
)

type fakeClock struct{ now time.Time }

func (c *fakeClock) Now() time.Time { return c.now }

type testEnv struct {
	server *Server
	repo   *memory.Repository
	pub    *memorypublisher.Publisher
	clock  *fakeClock
}

const (
	ownerEmail = "owner@example.com"
	otherEmail = "other@example.com"
	password   = "s3cret"
)

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	ctx := context.Background()
	repo := memory.NewRepository()
	hash, err := auth.HashPassword(password, bcrypt.MinCost)
	require.NoError(t, err)
	for _, email := range []string{ownerEmail, otherEmail} {
		require.NoError(t, repo.CreateAccount(ctx, domain.Account{
			ID:           uuid.New(),
			FirstName:    "Test",
			LastName:     "User",
			Email:        email,
			PasswordHash: hash,
		}))
	}
	clock := &fakeClock{now: time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)}
	ids := idgen.New()
	pub := memorypublisher.New(nil)
	server := NewServer(Deps{
		Assignments:   assignment.NewService(repo, ids, clock, nil),
		Submissions:   submission.NewService(repo, pub, ids, clock, nil),
		Authenticator: auth.NewAuthenticator(repo),
		Database:      repo,
	}, Options{Realm: "webapp"}, nil)
	return &testEnv{server: server, repo: repo, pub: pub, clock: clock}
}

func (e *testEnv) do(t *testing.T, method, path, email string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	switch b := body.(type) {
	case nil:
		reader = nil
	case string:
		reader = bytes.NewReader([]byte(b))
	default:
		data, err := json.Marshal(b)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	}
	var req *http.Request
	if reader == nil {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, reader)
		req.Header.Set("Content-Type", "application/json")
	}
	if email != "" {
		req.SetBasicAuth(email, password)
	}
	rec := httptest.NewRecorder()
	e.server.Handler().ServeHTTP(rec, req)
	return rec
}

func (e *testEnv) createAssignment(t *testing.T, name string, attempts int, deadline time.Time) string {
	t.Helper()
	rec := e.do(t, http.MethodPost, "/v1/assignments", ownerEmail, map[string]any{
		"name":            name,
		"points":          10,
		"num_of_attempts": attempts,
		"deadline":        deadline.Format(time.RFC3339),
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var out assignmentResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	return out.ID
}

func TestHealthz(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	rec := env.do(t, http.MethodGet, "/healthz", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "no-cache, no-store, must-revalidate", rec.Header().Get("Cache-Control"))
	require.Equal(t, "no-cache", rec.Header().Get("Pragma"))
	require.Equal(t, "nosniff", rec.Header().Get("X-Content-Type-Options"))
	require.NotEmpty(t, rec.Header().Get("X-Request-ID"))

	require.Equal(t, http.StatusOK, env.do(t, http.MethodHead, "/healthz", "", nil).Code)
	require.Equal(t, http.StatusBadRequest, env.do(t, http.MethodGet, "/healthz?x=1", "", nil).Code)
	require.Equal(t, http.StatusBadRequest, env.do(t, http.MethodGet, "/healthz", "", `{"a":1}`).Code)
	require.Equal(t, http.StatusMethodNotAllowed, env.do(t, http.MethodPost, "/healthz", "", nil).Code)

	env.repo.SetUnavailable(true)
	require.Equal(t, http.StatusServiceUnavailable, env.do(t, http.MethodGet, "/healthz", "", nil).Code)
}

func TestMetricsEndpoint(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	rec := env.do(t, http.MethodGet, "/metrics", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
}

func TestAuthRequired(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	rec := env.do(t, http.MethodGet, "/v1/assignments", "", nil)
	require.Equal(t, http.StatusUnauthorized, rec.Code)
	require.Equal(t, `Basic realm="webapp"`, rec.Header().Get("WWW-Authenticate"))

	req := httptest.NewRequest(http.MethodGet, "/v1/assignments", nil)
	req.SetBasicAuth(ownerEmail, "wrong")
	rec = httptest.NewRecorder()
	env.server.Handler().ServeHTTP(rec, req)
	require.Equal(t, http.StatusUnauthorized, rec.Code)

	env.repo.SetUnavailable(true)
	rec = env.do(t, http.MethodGet, "/v1/assignments", ownerEmail, nil)
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestAssignmentCRUD(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	deadline := env.clock.now.Add(48 * time.Hour)
	id := env.createAssignment(t, "HW1", 2, deadline)

	rec := env.do(t, http.MethodGet, "/v1/assignments", otherEmail, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var list struct {
		Assignments []assignmentResponse `json:"assignments"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &list))
	require.Len(t, list.Assignments, 1)
	require.Equal(t, "HW1", list.Assignments[0].Name)

	update := map[string]any{"name": "HW1b", "points": 20, "num_of_attempts": 3, "deadline": deadline.Format(time.RFC3339)}
	require.Equal(t, http.StatusForbidden, env.do(t, http.MethodPut, "/v1/assignments/"+id, otherEmail, update).Code)
	require.Equal(t, http.StatusNoContent, env.do(t, http.MethodPut, "/v1/assignments/"+id, ownerEmail, update).Code)

	rec = env.do(t, http.MethodGet, "/v1/assignments/"+id, otherEmail, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var one struct {
		Assignment assignmentResponse `json:"assignment"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &one))
	require.Equal(t, "HW1b", one.Assignment.Name)
	require.Equal(t, 20, one.Assignment.Points)

	require.Equal(t, http.StatusBadRequest, env.do(t, http.MethodDelete, "/v1/assignments/"+id, ownerEmail, `{"x":1}`).Code)
	require.Equal(t, http.StatusForbidden, env.do(t, http.MethodDelete, "/v1/assignments/"+id, otherEmail, nil).Code)
	require.Equal(t, http.StatusNoContent, env.do(t, http.MethodDelete, "/v1/assignments/"+id, ownerEmail, nil).Code)
	require.Equal(t, http.StatusNotFound, env.do(t, http.MethodGet, "/v1/assignments/"+id, ownerEmail, nil).Code)
}

func TestAssignmentValidation(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	deadline := env.clock.now.Add(time.Hour).Format(time.RFC3339)
	cases := []struct {
		name string
		body any
		want int
	}{
		{"not json", "{", http.StatusBadRequest},
		{"empty", nil, http.StatusBadRequest},
		{"missing points", map[string]any{"name": "A", "num_of_attempts": 1, "deadline": deadline}, http.StatusBadRequest},
		{"points zero", map[string]any{"name": "A", "points": 0, "num_of_attempts": 1, "deadline": deadline}, http.StatusBadRequest},
		{"points 101", map[string]any{"name": "A", "points": 101, "num_of_attempts": 1, "deadline": deadline}, http.StatusBadRequest},
		{"attempts 4", map[string]any{"name": "A", "points": 5, "num_of_attempts": 4, "deadline": deadline}, http.StatusBadRequest},
		{"points string", map[string]any{"name": "A", "points": "5", "num_of_attempts": 1, "deadline": deadline}, http.StatusBadRequest},
		{"unknown field", map[string]any{"name": "A", "points": 5, "num_of_attempts": 1, "deadline": deadline, "x": 1}, http.StatusBadRequest},
		{"bounds ok", map[string]any{"name": "B", "points": 100, "num_of_attempts": 3, "deadline": deadline}, http.StatusCreated},
	}
	for _, tc := range cases {
		rec := env.do(t, http.MethodPost, "/v1/assignments", ownerEmail, tc.body)
		require.Equal(t, tc.want, rec.Code, "%s: %s", tc.name, rec.Body.String())
	}

	dup := map[string]any{"name": "B", "points": 1, "num_of_attempts": 1, "deadline": deadline}
	require.Equal(t, http.StatusConflict, env.do(t, http.MethodPost, "/v1/assignments", ownerEmail, dup).Code)
	require.Equal(t, http.StatusBadRequest, env.do(t, http.MethodGet, "/v1/assignments/not-a-uuid", ownerEmail, nil).Code)
	require.Equal(t, http.StatusNotFound, env.do(t, http.MethodGet, "/v1/assignments/"+uuid.NewString(), ownerEmail, nil).Code)
}

func TestRepeatedGetIsIdempotent(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	id := env.createAssignment(t, "HW1", 1, env.clock.now.Add(time.Hour))

	first := env.do(t, http.MethodGet, "/v1/assignments/"+id, ownerEmail, nil)
	second := env.do(t, http.MethodGet, "/v1/assignments/"+id, ownerEmail, nil)
	require.Equal(t, http.StatusOK, first.Code)
	require.Equal(t, first.Body.String(), second.Body.String())
}

func TestSubmissionFlow(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	id := env.createAssignment(t, "HW1", 2, env.clock.now.Add(time.Hour))
	path := "/v1/assignments/" + id + "/submission"
	body := map[string]string{"submission_url": "https://example.com/hw1.zip"}

	rec := env.do(t, http.MethodPost, path, otherEmail, body)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var created submissionResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))
	require.Equal(t, id, created.AssignmentID)
	require.Equal(t, "https://example.com/hw1.zip", created.SubmissionURL)

	require.Equal(t, http.StatusCreated, env.do(t, http.MethodPost, path, otherEmail, body).Code)
	require.Equal(t, http.StatusForbidden, env.do(t, http.MethodPost, path, otherEmail, body).Code)

	events := env.pub.Events()
	require.Len(t, events, 2)
	require.Equal(t, "1/2", events[0].Attempt)
	require.Equal(t, "2/2", events[1].Attempt)

	rec = env.do(t, http.MethodGet, path, otherEmail, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var listed struct {
		Submissions []submissionResponse `json:"submissions"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &listed))
	require.Len(t, listed.Submissions, 2)
	require.Equal(t, created.ID, listed.Submissions[0].ID)
}

func TestSubmissionRejections(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	id := env.createAssignment(t, "HW1", 3, env.clock.now.Add(time.Hour))
	path := "/v1/assignments/" + id + "/submission"

	require.Equal(t, http.StatusBadRequest, env.do(t, http.MethodPost, path, otherEmail, nil).Code)
	require.Equal(t, http.StatusBadRequest, env.do(t, http.MethodPost, path, otherEmail, "plain text").Code)
	require.Equal(t, http.StatusBadRequest,
		env.do(t, http.MethodPost, path, otherEmail, map[string]string{"submission_url": "not-a-url"}).Code)
	require.Equal(t, http.StatusBadRequest,
		env.do(t, http.MethodPost, "/v1/assignments/xyz/submission", otherEmail,
			map[string]string{"submission_url": "https://example.com/a.zip"}).Code)
	require.Equal(t, http.StatusNotFound,
		env.do(t, http.MethodPost, "/v1/assignments/"+uuid.NewString()+"/submission", otherEmail,
			map[string]string{"submission_url": "https://example.com/a.zip"}).Code)

	env.clock.now = env.clock.now.Add(2 * time.Hour)
	require.Equal(t, http.StatusForbidden,
		env.do(t, http.MethodPost, path, otherEmail, map[string]string{"submission_url": "https://example.com/a.zip"}).Code)
	require.Empty(t, env.pub.Events())
}

func TestSubmissionTargetResolvedBeforePayload(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	unknown := "/v1/assignments/" + uuid.NewString() + "/submission"

	for name, body := range map[string]any{
		"no body":   nil,
		"plain":     "plain text",
		"bad url":   map[string]string{"submission_url": "not-a-url"},
		"empty obj": map[string]string{},
	} {
		rec := env.do(t, http.MethodPost, unknown, otherEmail, body)
		require.Equal(t, http.StatusNotFound, rec.Code, "%s: %s", name, rec.Body.String())
	}

	rec := env.do(t, http.MethodPost, "/v1/assignments/xyz/submission", otherEmail, nil)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	require.Empty(t, env.pub.Events())
}

func TestStatusFor(t *testing.T) {
	t.Parallel()

	cases := map[error]int{
		fmt.Errorf("x: %w", domain.ErrValidation):      http.StatusBadRequest,
		fmt.Errorf("x: %w", domain.ErrUnauthenticated): http.StatusUnauthorized,
		fmt.Errorf("x: %w", domain.ErrForbidden):       http.StatusForbidden,
		fmt.Errorf("x: %w", domain.ErrPolicyRejected):  http.StatusForbidden,
		fmt.Errorf("x: %w", domain.ErrNotFound):        http.StatusNotFound,
		fmt.Errorf("x: %w", domain.ErrConflict):        http.StatusConflict,
		fmt.Errorf("x: %w", domain.ErrUnavailable):     http.StatusServiceUnavailable,
		errors.New("boom"):                             http.StatusNotImplemented,
	}
	for err, want := range cases {
		require.Equal(t, want, statusFor(err), err.Error())
	}
}

type panicAssignments struct{ AssignmentService }

func (panicAssignments) List(context.Context) ([]domain.Assignment, error) { panic("boom") }

func TestRecoverMiddleware(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	server := NewServer(Deps{
		Assignments:   panicAssignments{},
		Authenticator: auth.NewAuthenticator(env.repo),
		Database:      env.repo,
	}, Options{}, nil)
	req := httptest.NewRequest(http.MethodGet, "/v1/assignments", nil)
	req.SetBasicAuth(ownerEmail, password)
	rec := httptest.NewRecorder()
	server.Handler().ServeHTTP(rec, req)
	require.Equal(t, http.StatusNotImplemented, rec.Code)
}
