package controller

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/psantana5/denoise-studio/pkg/client"
	"github.com/psantana5/denoise-studio/pkg/history"
	"github.com/psantana5/denoise-studio/pkg/models"
	"github.com/psantana5/denoise-studio/pkg/store"
)

type reply struct {
	status *models.StatusResponse
	err    error
}

// fakeAPI replays scripted poll replies and repeats the last one once the script runs out
type fakeAPI struct {
	mu        sync.Mutex
	submitErr error
	submits   int
	polls     int
	names     []string
	script    []reply
	last      reply
}

func (f *fakeAPI) Submit(ctx context.Context, filename string, audio io.Reader, start, end *float64) (*models.SubmitResponse, error) {
	if _, err := io.ReadAll(audio); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.submits++
	f.names = append(f.names, filename)
	if f.submitErr != nil {
		return nil, f.submitErr
	}
	return &models.SubmitResponse{
		JobID:  fmt.Sprintf("j%d", f.submits),
		Status: models.JobStatusPending,
	}, nil
}

func (f *fakeAPI) GetStatus(ctx context.Context, jobID string) (*models.StatusResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.polls++
	r := f.last
	if len(f.script) > 0 {
		r = f.script[0]
		f.script = f.script[1:]
		f.last = r
	}
	if r.status == nil && r.err == nil {
		return &models.StatusResponse{JobID: jobID, Status: models.JobStatusProcessing, Message: "Queued"}, nil
	}
	if r.status != nil {
		s := *r.status
		s.JobID = jobID
		return &s, nil
	}
	return nil, r.err
}

func (f *fakeAPI) DownloadURL(jobID string) string {
	return "http://localhost:8000/api/download/" + jobID
}

func (f *fakeAPI) counts() (submits, polls int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.submits, f.polls
}

func processing(progress float64, msg string) reply {
	return reply{status: &models.StatusResponse{Status: models.JobStatusProcessing, Progress: progress, Message: msg}}
}

func completed(result *models.JobResult) reply {
	return reply{status: &models.StatusResponse{Status: models.JobStatusCompleted, Progress: 100, Message: "Done", Result: result}}
}

type notes struct {
	mu   sync.Mutex
	list []Notification
}

func (n *notes) add(note Notification) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.list = append(n.list, note)
}

func (n *notes) all() []Notification {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]Notification(nil), n.list...)
}

type harness struct {
	ctrl  *Controller
	api   *fakeAPI
	hist  *history.Store
	notes *notes
	dir   string
}

func newHarness(t *testing.T, api *fakeAPI) *harness {
	t.Helper()
	h := &harness{
		api:   api,
		hist:  history.New(store.NewMemoryKV(), nil),
		notes: &notes{},
		dir:   t.TempDir(),
	}
	h.ctrl = New(api, h.hist,
		WithPollInterval(5*time.Millisecond),
		WithTempDir(h.dir),
		WithNotifier(h.notes.add),
	)
	t.Cleanup(func() { h.ctrl.Close() })
	return h
}

func (h *harness) tempFiles(t *testing.T) []string {
	t.Helper()
	entries, err := os.ReadDir(h.dir)
	require.NoError(t, err)
	var names []string
	for _, e := range entries {
		names = append(names, e.Name())
	}
	return names
}

func wait(t *testing.T, c *Controller) Snapshot {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	snap, err := c.Wait(ctx)
	require.NoError(t, err)
	return snap
}

func clip(name string) Input {
	return Input{Name: name, Data: []byte("RIFF....WAVEfmt ")}
}

func TestSubmitMovesToProcessing(t *testing.T) {
	api := &fakeAPI{}
	h := newHarness(t, api)

	assert.Equal(t, models.JobStatusIdle, h.ctrl.Snapshot().Status)
	require.NoError(t, h.ctrl.Submit(context.Background(), clip("clip.wav")))

	snap := h.ctrl.Snapshot()
	assert.Equal(t, models.JobStatusProcessing, snap.Status)
	assert.Equal(t, "j1", snap.JobID)
	assert.Equal(t, "clip.wav", snap.FileName)
	assert.True(t, strings.HasPrefix(snap.OriginalURL, "file://"))

	submits, _ := api.counts()
	assert.Equal(t, 1, submits)
	assert.Len(t, h.tempFiles(t), 1)
}

func TestSubmitRejectsEmptyInput(t *testing.T) {
	api := &fakeAPI{}
	h := newHarness(t, api)

	err := h.ctrl.Submit(context.Background(), Input{Name: "empty.wav"})
	assert.ErrorIs(t, err, ErrEmptyInput)
	assert.Equal(t, models.JobStatusIdle, h.ctrl.Snapshot().Status)

	submits, _ := api.counts()
	assert.Zero(t, submits)
}

func TestSubmitGeneratesRecordingName(t *testing.T) {
	api := &fakeAPI{}
	h := newHarness(t, api)
	h.ctrl.now = func() time.Time { return time.UnixMilli(1700000000123) }

	require.NoError(t, h.ctrl.Submit(context.Background(), Input{Data: []byte{1, 2, 3}, Recording: true}))
	assert.Equal(t, "recording_1700000000123.wav", h.ctrl.Snapshot().FileName)
}

func TestCompletedJobIsRecorded(t *testing.T) {
	result := &models.JobResult{
		OutputURL:        "/files/j1.wav",
		NoiseReductionDB: 22.5,
		ConfidenceScore:  91,
		ProcessingTime:   1.8,
	}
	api := &fakeAPI{script: []reply{
		processing(40, "Analyzing"),
		completed(result),
	}}
	h := newHarness(t, api)

	require.NoError(t, h.ctrl.Submit(context.Background(), clip("clip.wav")))
	originalURL := h.ctrl.Snapshot().OriginalURL

	snap := wait(t, h.ctrl)
	require.Equal(t, models.JobStatusCompleted, snap.Status)
	assert.Equal(t, float64(100), snap.Progress)
	require.NotNil(t, snap.Result)
	assert.Equal(t, *result, *snap.Result)

	require.Len(t, snap.History, 1)
	entry := snap.History[0]
	assert.Equal(t, "j1", entry.ID)
	assert.Equal(t, "clip.wav", entry.Name)
	assert.Equal(t, originalURL, entry.OriginalURL)
	assert.Equal(t, 22.5, entry.Results.NoiseReductionDB)

	stored := h.hist.Load()
	require.Len(t, stored, 1)
	assert.Equal(t, "j1", stored[0].ID)

	assert.Eventually(t, func() bool { return h.ctrl.ActivePollers() == 0 }, time.Second, 5*time.Millisecond)
	assert.Eventually(t, func() bool {
		n := h.notes.all()
		return len(n) == 1 && n[0] == Notification{Level: LevelSuccess, Message: MsgDenoised}
	}, time.Second, 5*time.Millisecond)
}

func TestProgressUpdatesWhileProcessing(t *testing.T) {
	api := &fakeAPI{script: []reply{processing(40, "Analyzing")}}
	h := newHarness(t, api)
	require.NoError(t, h.ctrl.Submit(context.Background(), clip("clip.wav")))

	assert.Eventually(t, func() bool {
		s := h.ctrl.Snapshot()
		return s.Progress == 40 && s.Message == "Analyzing"
	}, time.Second, 5*time.Millisecond)
	assert.Equal(t, models.JobStatusProcessing, h.ctrl.Snapshot().Status)
}

func TestServerErrorAddsNoHistory(t *testing.T) {
	api := &fakeAPI{script: []reply{
		processing(20, "Loading"),
		{status: &models.StatusResponse{Status: models.JobStatusError, Progress: 20, Message: "model crashed"}},
	}}
	h := newHarness(t, api)
	require.NoError(t, h.ctrl.Submit(context.Background(), clip("clip.wav")))

	snap := wait(t, h.ctrl)
	assert.Equal(t, models.JobStatusError, snap.Status)
	assert.Equal(t, "model crashed", snap.Message)
	assert.Nil(t, snap.Result)
	assert.Empty(t, snap.History)
	assert.Empty(t, h.hist.Load())

	assert.Eventually(t, func() bool {
		n := h.notes.all()
		return len(n) == 1 && n[0].Level == LevelError && n[0].Message == "Processing failed: model crashed"
	}, time.Second, 5*time.Millisecond)
}

func TestJobNotFoundStopsPolling(t *testing.T) {
	api := &fakeAPI{script: []reply{
		{err: &client.APIError{StatusCode: 404, Detail: "Job not found"}},
	}}
	h := newHarness(t, api)
	require.NoError(t, h.ctrl.Submit(context.Background(), clip("clip.wav")))

	snap := wait(t, h.ctrl)
	assert.Equal(t, models.JobStatusError, snap.Status)
	assert.Equal(t, MsgJobLost, snap.Message)
	assert.Empty(t, snap.History)

	assert.Eventually(t, func() bool { return h.ctrl.ActivePollers() == 0 }, time.Second, 5*time.Millisecond)
	_, polls := api.counts()
	time.Sleep(30 * time.Millisecond)
	_, after := api.counts()
	assert.Equal(t, polls, after)

	// job lost is shown in place, without a toast
	assert.Empty(t, h.notes.all())
}

func TestTransientPollErrorsAreSwallowed(t *testing.T) {
	api := &fakeAPI{script: []reply{
		{err: errors.New("connection refused")},
		{err: &client.APIError{StatusCode: 502, Detail: "Bad Gateway"}},
		processing(50, "Denoising"),
		completed(&models.JobResult{OutputURL: "/files/j1.wav"}),
	}}
	h := newHarness(t, api)
	require.NoError(t, h.ctrl.Submit(context.Background(), clip("clip.wav")))

	snap := wait(t, h.ctrl)
	assert.Equal(t, models.JobStatusCompleted, snap.Status)
	_, polls := api.counts()
	assert.GreaterOrEqual(t, polls, 4)
}

func TestCompletedWithoutResultSkipsHistory(t *testing.T) {
	api := &fakeAPI{script: []reply{completed(nil)}}
	h := newHarness(t, api)
	require.NoError(t, h.ctrl.Submit(context.Background(), clip("clip.wav")))

	snap := wait(t, h.ctrl)
	assert.Equal(t, models.JobStatusCompleted, snap.Status)
	assert.Empty(t, h.hist.Load())
}

func TestUploadFailure(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{"server detail", &client.APIError{StatusCode: 400, Detail: "Unsupported file type"}, "Unsupported file type"},
		{"no detail", &client.APIError{StatusCode: 500, Body: "Internal Server Error"}, MsgUploadFailed},
		{"transport", errors.New("dial tcp: connection refused"), MsgUploadFailed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			api := &fakeAPI{submitErr: tt.err}
			h := newHarness(t, api)
			require.NoError(t, h.ctrl.Submit(context.Background(), clip("clip.wav")))

			snap := h.ctrl.Snapshot()
			assert.Equal(t, models.JobStatusError, snap.Status)
			assert.Equal(t, tt.want, snap.Message)
			assert.Zero(t, h.ctrl.ActivePollers())

			_, polls := api.counts()
			assert.Zero(t, polls)
			assert.Eventually(t, func() bool {
				n := h.notes.all()
				return len(n) == 1 && n[0] == Notification{Level: LevelError, Message: tt.want}
			}, time.Second, 5*time.Millisecond)
		})
	}
}

func TestUploadFailureThroughClient(t *testing.T) {
	tests := []struct {
		name string
		body string
		want string
	}{
		{"empty body", "", MsgUploadFailed},
		{"proxy page", "<html><body>502 Bad Gateway</body></html>", MsgUploadFailed},
		{"service detail", `{"detail":"File too large. Maximum 50MB"}`, "File too large. Maximum 50MB"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusBadGateway)
				w.Write([]byte(tt.body))
			}))
			defer server.Close()

			ctrl := New(client.New(server.URL), history.New(store.NewMemoryKV(), nil), WithTempDir(t.TempDir()))
			defer ctrl.Close()
			require.NoError(t, ctrl.Submit(context.Background(), clip("clip.wav")))

			snap := ctrl.Snapshot()
			assert.Equal(t, models.JobStatusError, snap.Status)
			assert.Equal(t, tt.want, snap.Message)
		})
	}
}

func TestResetIsIdempotent(t *testing.T) {
	api := &fakeAPI{}
	h := newHarness(t, api)
	require.NoError(t, h.ctrl.Submit(context.Background(), clip("clip.wav")))
	assert.Eventually(t, func() bool { _, p := api.counts(); return p > 0 }, time.Second, 5*time.Millisecond)

	h.ctrl.Reset()
	once := h.ctrl.Snapshot()
	h.ctrl.Reset()
	twice := h.ctrl.Snapshot()

	assert.Equal(t, once, twice)
	assert.Equal(t, models.JobStatusIdle, twice.Status)
	assert.Nil(t, twice.Result)
	assert.Empty(t, twice.OriginalURL)
	assert.Empty(t, twice.Message)
	assert.Zero(t, twice.Progress)
	assert.False(t, twice.ShowSpectrogram)
	assert.Empty(t, h.tempFiles(t))
	assert.Eventually(t, func() bool { return h.ctrl.ActivePollers() == 0 }, time.Second, 5*time.Millisecond)
}

func TestResetFromIdle(t *testing.T) {
	h := newHarness(t, &fakeAPI{})
	h.ctrl.Reset()
	h.ctrl.Reset()
	assert.Equal(t, models.JobStatusIdle, h.ctrl.Snapshot().Status)
}

func TestResubmitKeepsSinglePoller(t *testing.T) {
	api := &fakeAPI{}
	h := newHarness(t, api)

	require.NoError(t, h.ctrl.Submit(context.Background(), clip("first.wav")))
	assert.Eventually(t, func() bool { return h.ctrl.ActivePollers() == 1 }, time.Second, 5*time.Millisecond)

	require.NoError(t, h.ctrl.Submit(context.Background(), clip("second.wav")))
	assert.Equal(t, "j2", h.ctrl.Snapshot().JobID)
	assert.Eventually(t, func() bool { return h.ctrl.ActivePollers() == 1 }, time.Second, 5*time.Millisecond)

	// the first temp copy is released
	assert.Len(t, h.tempFiles(t), 1)
}

func TestStalePollIsIgnored(t *testing.T) {
	api := &fakeAPI{}
	h := newHarness(t, api)
	require.NoError(t, h.ctrl.Submit(context.Background(), clip("clip.wav")))

	h.ctrl.mu.Lock()
	task := h.ctrl.poll
	h.ctrl.mu.Unlock()
	require.NotNil(t, task)

	h.ctrl.Reset()

	cont := h.ctrl.applyPoll(task, completed(&models.JobResult{OutputURL: "/late"}).status, nil, time.Millisecond)
	assert.False(t, cont)

	snap := h.ctrl.Snapshot()
	assert.Equal(t, models.JobStatusIdle, snap.Status)
	assert.Nil(t, snap.Result)
	assert.Empty(t, h.hist.Load())
}

func TestLoadFromHistory(t *testing.T) {
	api := &fakeAPI{}
	h := newHarness(t, api)

	entry := models.HistoryEntry{
		ID:          "old",
		Name:        "interview.wav",
		Date:        "9:15:00 AM",
		Results:     &models.JobResult{OutputURL: "/files/old.wav", NoiseReductionDB: 18},
		OriginalURL: "file:///tmp/interview.wav",
	}
	require.NoError(t, h.ctrl.LoadFromHistory(entry))

	snap := h.ctrl.Snapshot()
	assert.Equal(t, models.JobStatusCompleted, snap.Status)
	assert.Equal(t, "old", snap.JobID)
	assert.Equal(t, "interview.wav", snap.FileName)
	assert.Equal(t, entry.OriginalURL, snap.OriginalURL)
	assert.Equal(t, *entry.Results, *snap.Result)

	submits, polls := api.counts()
	assert.Zero(t, submits)
	assert.Zero(t, polls)
	assert.Zero(t, h.ctrl.ActivePollers())

	url, ok := h.ctrl.DownloadURL()
	assert.True(t, ok)
	assert.Equal(t, "http://localhost:8000/api/download/old", url)

	// borrowed audio survives reset
	h.ctrl.Reset()
	assert.Equal(t, models.JobStatusIdle, h.ctrl.Snapshot().Status)
}

func TestLoadFromHistoryRequiresIdle(t *testing.T) {
	h := newHarness(t, &fakeAPI{})
	require.NoError(t, h.ctrl.Submit(context.Background(), clip("clip.wav")))

	err := h.ctrl.LoadFromHistory(models.HistoryEntry{ID: "x"})
	assert.ErrorIs(t, err, ErrInvalidTransition)
	assert.Equal(t, models.JobStatusProcessing, h.ctrl.Snapshot().Status)
}

func TestToggleSpectrogram(t *testing.T) {
	h := newHarness(t, &fakeAPI{})

	_, err := h.ctrl.ToggleSpectrogram()
	assert.ErrorIs(t, err, ErrInvalidTransition)

	require.NoError(t, h.ctrl.LoadFromHistory(models.HistoryEntry{ID: "a", Results: &models.JobResult{}}))
	on, err := h.ctrl.ToggleSpectrogram()
	require.NoError(t, err)
	assert.True(t, on)

	h.ctrl.Reset()
	assert.False(t, h.ctrl.Snapshot().ShowSpectrogram)
}

func TestHistoryLoadedOnStart(t *testing.T) {
	kv := store.NewMemoryKV()
	hist := history.New(kv, nil)
	_, err := hist.Append(models.HistoryEntry{ID: "a", Name: "a.wav"})
	require.NoError(t, err)

	c := New(&fakeAPI{}, hist)
	defer c.Close()
	require.Len(t, c.Snapshot().History, 1)
	assert.Equal(t, "a", c.Snapshot().History[0].ID)
}

func TestObserverSeesOrderedStates(t *testing.T) {
	var mu sync.Mutex
	var seen []models.JobStatus
	observe := func(s Snapshot) {
		mu.Lock()
		defer mu.Unlock()
		if len(seen) == 0 || seen[len(seen)-1] != s.Status {
			seen = append(seen, s.Status)
		}
	}

	api := &fakeAPI{script: []reply{processing(50, "Denoising"), completed(&models.JobResult{})}}
	c := New(api, history.New(store.NewMemoryKV(), nil),
		WithPollInterval(5*time.Millisecond),
		WithTempDir(t.TempDir()),
		WithObserver(observe),
	)
	require.NoError(t, c.Submit(context.Background(), clip("clip.wav")))
	wait(t, c)
	require.NoError(t, c.Close())

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []models.JobStatus{models.JobStatusProcessing, models.JobStatusCompleted}, seen)
}

func TestClose(t *testing.T) {
	api := &fakeAPI{}
	dir := t.TempDir()
	c := New(api, history.New(store.NewMemoryKV(), nil), WithPollInterval(5*time.Millisecond), WithTempDir(dir))
	require.NoError(t, c.Submit(context.Background(), clip("clip.wav")))

	require.NoError(t, c.Close())
	require.NoError(t, c.Close())

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Empty(t, entries)
	assert.Eventually(t, func() bool { return c.ActivePollers() == 0 }, time.Second, 5*time.Millisecond)
	assert.ErrorIs(t, c.Submit(context.Background(), clip("again.wav")), ErrClosed)

	_, err = c.Wait(context.Background())
	assert.ErrorIs(t, err, ErrClosed)
}
