package server

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/NeijiApp/meditation-engine/internal/assembly"
	"github.com/NeijiApp/meditation-engine/internal/cache"
	"github.com/NeijiApp/meditation-engine/internal/media"
	"github.com/NeijiApp/meditation-engine/internal/meditation"
	"github.com/NeijiApp/meditation-engine/internal/storage"
	"github.com/NeijiApp/meditation-engine/internal/tts"
)

// stubCache never has anything cached, so every segment is created fresh.
type stubCache struct{}

func (stubCache) FindExact(context.Context, string, string, string) (*cache.Entry, error) {
	return nil, cache.ErrEntryNotFound
}

func (stubCache) FindSimilar(context.Context, string, string, string, string, float64, int) ([]cache.Match, error) {
	return nil, nil
}

func (stubCache) Save(_ context.Context, p cache.SaveParams) (*cache.Entry, error) {
	return &cache.Entry{ID: "entry-1", AudioRef: p.AudioRef}, nil
}

func (stubCache) IncrementUsage(context.Context, string) {}

type stubGen struct{}

func (stubGen) Generate(context.Context, string, string, int) (string, error) {
	return "Settle into a comfortable position and let your breath slow down.", nil
}

type stubTTS struct{}

func (stubTTS) Synthesize(context.Context, tts.Request) ([]byte, error) {
	return []byte("audio-bytes"), nil
}

func (stubTTS) Name() string { return "stub" }

type stubWriter struct{}

func (stubWriter) SaveAudio(_ context.Context, name string, _ io.Reader) (string, error) {
	return "mem://" + name, nil
}

func newTestRouter(t *testing.T) (http.Handler, *assembly.Service) {
	t.Helper()

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	store, err := storage.NewLocalStorage(t.TempDir())
	require.NoError(t, err)

	assembler := assembly.NewService(
		assembly.NewMemoryRepository(),
		media.NewEngine(""),
		store,
		assembly.WithLogger(logger),
	)
	planner := meditation.NewPlanner(130)
	agent := meditation.NewAgent(stubCache{}, stubGen{}, stubTTS{}, stubWriter{},
		meditation.WithAgentLogger(logger),
	)

	h := NewHandlers(assembler, planner, agent, logger, WithVersion("1.2.3"))
	return NewRouter(h, logger, DefaultConfig()), assembler
}

func doRequest(t *testing.T, router http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()

	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func TestHealth(t *testing.T) {
	router, _ := newTestRouter(t)

	rec := doRequest(t, router, http.MethodGet, "/health", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var resp HealthResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.Equal(t, "ok", resp.Status)
	assert.Equal(t, "1.2.3", resp.Version)
	assert.Zero(t, resp.ActiveJobs)
	assert.Greater(t, resp.SystemResources.Goroutines, 0)
	assert.Greater(t, resp.SystemResources.NumCPU, 0)
}

func TestCreateAssembly_InvalidJSON(t *testing.T) {
	router, _ := newTestRouter(t)

	rec := doRequest(t, router, http.MethodPost, "/assembly", "{not json")
	require.Equal(t, http.StatusBadRequest, rec.Code)

	var resp ErrorResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.Equal(t, "INVALID_JSON", resp.Code)
}

func TestCreateAssembly_ValidationErrors(t *testing.T) {
	router, _ := newTestRouter(t)

	tests := []struct {
		name string
		body string
	}{
		{"no segments", `{"segments":[],"options":{"format":"mp3"}}`},
		{"missing audio url", `{"segments":[{"id":"s1","duration":10}],"options":{"format":"mp3"}}`},
		{"bad format", `{"segments":[{"id":"s1","audioUrl":"https://cdn.example.com/a.mp3","duration":10}],"options":{"format":"ogg"}}`},
		{"negative duration", `{"segments":[{"id":"s1","audioUrl":"https://cdn.example.com/a.mp3","duration":-1}],"options":{}}`},
		{"zero duration", `{"segments":[{"id":"s1","audioUrl":"https://cdn.example.com/a.mp3","duration":0}],"options":{}}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := doRequest(t, router, http.MethodPost, "/assembly", tt.body)
			require.Equal(t, http.StatusBadRequest, rec.Code)

			var resp ErrorResponse
			require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
			assert.Equal(t, "VALIDATION_ERROR", resp.Code)
		})
	}
}

func TestCreateAssembly_Accepted(t *testing.T) {
	router, _ := newTestRouter(t)

	body := `{
		"segments": [
			{"id": "s1", "audioUrl": "https://cdn.example.com/a.mp3", "duration": 10, "silenceAfter": 2},
			{"id": "s2", "audioUrl": "https://cdn.example.com/b.mp3", "duration": 20}
		],
		"options": {"format": "mp3", "quality": "192k", "normalize": true, "fadeTransitions": true}
	}`

	rec := doRequest(t, router, http.MethodPost, "/assembly", body)
	require.Equal(t, http.StatusAccepted, rec.Code)

	var resp CreateAssemblyResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.NotEmpty(t, resp.RequestID)
	assert.Equal(t, "pending", resp.Status)
}

func TestGetAssemblyStatus(t *testing.T) {
	router, assembler := newTestRouter(t)

	rec := doRequest(t, router, http.MethodGet, "/assembly/no-such-job/status", "")
	require.Equal(t, http.StatusNotFound, rec.Code)

	var errResp ErrorResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&errResp))
	assert.Equal(t, "JOB_NOT_FOUND", errResp.Code)

	job, err := assembler.Submit(context.Background(), []assembly.SegmentInput{
		{ID: "s1", AudioRef: "/no/such/file.mp3", DurationSeconds: 10},
	}, assembly.OutputOptions{})
	require.NoError(t, err)

	rec = doRequest(t, router, http.MethodGet, "/assembly/"+job.ID+"/status", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var resp AssemblyStatusResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.Equal(t, job.ID, resp.RequestID)
	assert.NotEmpty(t, resp.Status)
}

func TestCancelAssembly(t *testing.T) {
	router, assembler := newTestRouter(t)

	rec := doRequest(t, router, http.MethodPost, "/assembly/no-such-job/cancel", "")
	require.Equal(t, http.StatusNotFound, rec.Code)

	job, err := assembler.Submit(context.Background(), []assembly.SegmentInput{
		{ID: "s1", AudioRef: "/no/such/file.mp3", DurationSeconds: 10},
	}, assembly.OutputOptions{})
	require.NoError(t, err)

	rec = doRequest(t, router, http.MethodPost, "/assembly/"+job.ID+"/cancel", "")
	assert.Equal(t, http.StatusAccepted, rec.Code)
	assert.Empty(t, rec.Body.Bytes())
}

func TestDownloadAssembly_NotCompleted(t *testing.T) {
	router, assembler := newTestRouter(t)

	rec := doRequest(t, router, http.MethodGet, "/assembly/no-such-job/download", "")
	require.Equal(t, http.StatusNotFound, rec.Code)

	job, err := assembler.Submit(context.Background(), []assembly.SegmentInput{
		{ID: "s1", AudioRef: "/no/such/file.mp3", DurationSeconds: 10},
	}, assembly.OutputOptions{})
	require.NoError(t, err)

	rec = doRequest(t, router, http.MethodGet, "/assembly/"+job.ID+"/download", "")
	require.Equal(t, http.StatusConflict, rec.Code)

	var resp ErrorResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.Equal(t, "JOB_NOT_COMPLETED", resp.Code)
}

func TestCreateMeditation_ValidationErrors(t *testing.T) {
	router, _ := newTestRouter(t)

	tests := []struct {
		name     string
		body     string
		wantCode string
	}{
		{"invalid json", `{`, "INVALID_JSON"},
		{"empty prompt", `{"prompt":""}`, "VALIDATION_ERROR"},
		{"prompt too short", `{"prompt":"hi"}`, "VALIDATION_ERROR"},
		{"bad voice gender", `{"prompt":"help me sleep","voice":{"gender":"robot"}}`, "VALIDATION_ERROR"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := doRequest(t, router, http.MethodPost, "/meditations", tt.body)
			require.Equal(t, http.StatusBadRequest, rec.Code)

			var resp ErrorResponse
			require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
			assert.Equal(t, tt.wantCode, resp.Code)
		})
	}
}

func TestCreateMeditation_Accepted(t *testing.T) {
	router, _ := newTestRouter(t)

	body := `{"prompt": "10 minute meditation for sleep", "voice": {"gender": "female", "style": "calm"}}`

	rec := doRequest(t, router, http.MethodPost, "/meditations", body)
	require.Equal(t, http.StatusAccepted, rec.Code)

	var resp CreateMeditationResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.True(t, resp.Success)
	assert.NotEmpty(t, resp.RequestID)
	assert.NotEmpty(t, resp.JobID)
	// Everything was freshly created, so the quality floor applies.
	assert.InDelta(t, 3.5, resp.Quality, 0.01)
	assert.NotEmpty(t, resp.Summary)
}

func TestRequestID_SuppliedHeaderIsHonored(t *testing.T) {
	router, _ := newTestRouter(t)

	body := `{"prompt": "short meditation for focus"}`
	req := httptest.NewRequest(http.MethodPost, "/meditations", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Request-ID", "upstream-42")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusAccepted, rec.Code)
	assert.Equal(t, "upstream-42", rec.Header().Get("X-Request-ID"))

	// The pipeline run is tagged with the same ID.
	var resp CreateMeditationResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.Equal(t, "upstream-42", resp.RequestID)
}

func TestRequestID_GeneratedWhenAbsent(t *testing.T) {
	router, _ := newTestRouter(t)

	rec := doRequest(t, router, http.MethodGet, "/health", "")
	require.Equal(t, http.StatusOK, rec.Code)

	id := rec.Header().Get("X-Request-ID")
	require.NotEmpty(t, id)
	assert.True(t, strings.HasPrefix(id, "med-"), "id %q should carry the med- prefix", id)
}

func TestCORSHeaders(t *testing.T) {
	router, _ := newTestRouter(t)

	req := httptest.NewRequest(http.MethodOptions, "/assembly", nil)
	req.Header.Set("Origin", "https://app.example.com")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.NotEmpty(t, rec.Header().Get("Access-Control-Allow-Origin"))
}
