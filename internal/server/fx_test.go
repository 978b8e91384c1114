package server

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/klauspost/compress/zip"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/assignment-webapp/internal/audit"
	"github.com/JakeFAU/assignment-webapp/internal/config"
	"github.com/JakeFAU/assignment-webapp/internal/event"
	"github.com/JakeFAU/assignment-webapp/internal/logging"
	memoryStorage "github.com/JakeFAU/assignment-webapp/internal/storage/memory"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	dir := t.TempDir()
	seed := filepath.Join(dir, "users.csv")
	require.NoError(t, os.WriteFile(seed, []byte(
		"first_name,last_name,email,password\n"+
			"Jane,Doe,jane@example.com,hunter2\n"), 0o600))

	return &config.Config{
		Server:    config.ServerConfig{Port: 8080, RequestTimeout: 10 * time.Second, ShutdownTimeout: 5 * time.Second},
		Auth:      config.AuthConfig{Realm: "webapp", BcryptCost: 4},
		Database:  config.DatabaseConfig{PingTimeout: time.Second},
		Accounts:  config.AccountsConfig{SeedFile: seed},
		Events:    config.EventsConfig{Backend: "memory", QueueDepth: 8},
		Storage:   config.StorageConfig{Backend: "memory"},
		Audit:     config.AuditConfig{Backend: "memory"},
		Mail:      config.MailConfig{Backend: "log"},
		Consumer:  config.ConsumerConfig{Workers: 2, InvocationTimeout: 10 * time.Second, UserAgent: "test"},
		Logging:   logging.Config{Development: true, Level: "error"},
		Telemetry: config.TelemetryConfig{ServiceName: "webapp-test", Version: "test", SampleRatio: 1},
	}
}

func zipServer(t *testing.T) *httptest.Server {
	t.Helper()
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	w, err := zw.Create("README.md")
	require.NoError(t, err)
	_, err = w.Write([]byte("# homework\n"))
	require.NoError(t, err)
	require.NoError(t, zw.Close())
	archive := buf.Bytes()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/zip")
		_, _ = w.Write(archive)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func call(t *testing.T, h http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == nil {
		req = httptest.NewRequest(method, path, nil)
	} else {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		req = httptest.NewRequest(method, path, bytes.NewReader(data))
	}
	req.SetBasicAuth("jane@example.com", "hunter2")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestBuildServesSubmissionsEndToEnd(t *testing.T) {
	cfg := testConfig(t)
	app, err := Build(context.Background(), cfg)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		app.dispatch.Run(ctx)
		close(done)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
		_ = app.Close(context.Background())
	})

	h := app.Handler()
	rec := call(t, h, http.MethodPost, "/v1/assignments", map[string]any{
		"name":            "HW1",
		"points":          10,
		"num_of_attempts": 1,
		"deadline":        time.Now().Add(time.Hour).UTC().Format(time.RFC3339),
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var created struct {
		ID string `json:"id"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))

	archiveURL := zipServer(t).URL + "/hw1.zip"
	rec = call(t, h, http.MethodPost, "/v1/assignments/"+created.ID+"/submission",
		map[string]string{"submission_url": archiveURL})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var sub struct {
		ID string `json:"id"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &sub))

	rec = call(t, h, http.MethodPost, "/v1/assignments/"+created.ID+"/submission",
		map[string]string{"submission_url": archiveURL})
	require.Equal(t, http.StatusForbidden, rec.Code)

	blobs, ok := app.blobs.(*memoryStorage.BlobStore)
	require.True(t, ok)
	audits, ok := app.audits.(*audit.MemoryStore)
	require.True(t, ok)

	objectName := fmt.Sprintf("%sHW1.zip", sub.ID)
	require.Eventually(t, func() bool {
		_, _, stored := blobs.Object(objectName)
		return stored && len(audits.Records()) == 1
	}, 5*time.Second, 20*time.Millisecond)

	rec0 := audits.Records()[0]
	require.Equal(t, objectName, rec0.FileName)
	require.Equal(t, "1/1", rec0.SubmissionAttempt)
	require.Equal(t, "jane@example.com", rec0.Email)
}

func TestShutdownDrainsBufferedEvents(t *testing.T) {
	cfg := testConfig(t)
	app, err := Build(context.Background(), cfg)
	require.NoError(t, err)
	t.Cleanup(func() { _ = app.Close(context.Background()) })

	const buffered = 5
	for i := 0; i < buffered; i++ {
		payload, err := event.SubmissionEvent{
			SubmissionID:   fmt.Sprintf("sub-%d", i),
			AssignmentName: "HW1",
			UserEmail:      "jane@example.com",
			SubmissionURL:  "not-a-url",
			Attempt:        "1/1",
		}.Encode()
		require.NoError(t, err)
		require.NoError(t, app.queue.Enqueue(context.Background(), payload))
	}

	// The signal context is already gone when shutdown starts.
	runCtx, cancel := context.WithCancel(context.Background())
	cancel()
	done, stop := app.startConsumer(runCtx)

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancelShutdown()
	app.drainConsumer(shutdownCtx, done, stop)

	select {
	case <-done:
	default:
		t.Fatal("workers still running after drain")
	}
	audits, ok := app.audits.(*audit.MemoryStore)
	require.True(t, ok)
	require.Len(t, audits.Records(), buffered)
	require.Zero(t, app.queue.Len())
}

func TestBuildHealthzWithMemoryRepository(t *testing.T) {
	cfg := testConfig(t)
	app, err := Build(context.Background(), cfg)
	require.NoError(t, err)
	t.Cleanup(func() { _ = app.Close(context.Background()) })

	rec := httptest.NewRecorder()
	app.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	app.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	require.True(t, strings.Contains(rec.Body.String(), "http_requests_total"))
}

func TestBuildConsumerRequiresPubSub(t *testing.T) {
	cfg := testConfig(t)
	_, err := BuildConsumer(context.Background(), cfg)
	require.Error(t, err)
}

func TestMissingSeedFileIsSkipped(t *testing.T) {
	cfg := testConfig(t)
	cfg.Accounts.SeedFile = filepath.Join(t.TempDir(), "absent.csv")
	app, err := Build(context.Background(), cfg)
	require.NoError(t, err)
	require.NoError(t, app.Close(context.Background()))
}
