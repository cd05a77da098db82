package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testConfig() Config {
	return Config{
		Jobs: map[string]string{
			"image": "thumbnail",
			".pdf":  "index",
		},
		Groups: map[string][]string{
			"image":    {"jpg", "png"},
			"document": {"pdf", "docx"},
		},
		Queue:   "media",
		Workers: 1,
	}
}

func TestJobFor(t *testing.T) {
	d := NewDispatcher(testConfig())

	tests := []struct {
		ext  string
		job  string
		want bool
	}{
		{"png", "thumbnail", true},
		{".JPG", "thumbnail", true},
		{"pdf", "index", true},
		{"docx", "", false},
		{"", "", false},
		{"exe", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.ext, func(t *testing.T) {
			job, ok := d.JobFor(tt.ext)
			assert.Equal(t, tt.want, ok)
			assert.Equal(t, tt.job, job)
		})
	}
}

func TestDispatchRunsRegisteredHandler(t *testing.T) {
	d := NewDispatcher(testConfig())

	var mu sync.Mutex
	var got []Job
	done := make(chan struct{}, 1)
	d.Register("thumbnail", HandlerFunc(func(_ context.Context, job Job) error {
		mu.Lock()
		got = append(got, job)
		mu.Unlock()
		done <- struct{}{}
		return nil
	}))

	d.Start(context.Background())
	d.Dispatch(context.Background(), "local", "/photos/cat.png")
	d.Dispatch(context.Background(), "local", "/notes/readme.txt") // no mapping

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for job")
	}
	d.Stop()

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, got, 1)
	assert.Equal(t, "thumbnail", got[0].Name)
	assert.Equal(t, "media", got[0].Queue)
	assert.Equal(t, "local", got[0].Disk)
	assert.Equal(t, "/photos/cat.png", got[0].Path)
	assert.Equal(t, "png", got[0].Extension)
}

func TestDispatchWithoutHandlerIsNoop(t *testing.T) {
	d := NewDispatcher(testConfig())
	d.Start(context.Background())
	d.Dispatch(context.Background(), "local", "/report.pdf")
	d.Stop()
}

func TestDispatchDropsWhenQueueFull(t *testing.T) {
	cfg := testConfig()
	cfg.QueueSize = 1
	d := NewDispatcher(cfg)

	// Not started: the single slot fills and the rest are dropped.
	d.Dispatch(context.Background(), "local", "/a.png")
	d.Dispatch(context.Background(), "local", "/b.png")
	assert.Len(t, d.queue, 1)
}

func TestDispatchAfterStopDropsJob(t *testing.T) {
	d := NewDispatcher(testConfig())
	d.Register("index", HandlerFunc(func(context.Context, Job) error {
		t.Error("handler ran after Stop")
		return nil
	}))
	d.Start(context.Background())
	d.Stop()

	assert.NotPanics(t, func() {
		d.Dispatch(context.Background(), "local", "/late.pdf")
	})
	assert.NotPanics(t, d.Stop, "second Stop is a no-op")
}

func TestHandlerErrorDoesNotStopWorker(t *testing.T) {
	d := NewDispatcher(testConfig())

	calls := make(chan string, 2)
	d.Register("thumbnail", HandlerFunc(func(_ context.Context, job Job) error {
		calls <- job.Path
		return errors.New("boom")
	}))
	d.Start(context.Background())
	d.Dispatch(context.Background(), "local", "/1.png")
	d.Dispatch(context.Background(), "local", "/2.png")
	d.Stop()

	assert.Len(t, calls, 2)
}

func TestWebhookPostsJob(t *testing.T) {
	var received WebhookRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&received))
		w.WriteHeader(http.StatusAccepted)
	}))
	defer srv.Close()

	err := NewWebhook(srv.URL).Handle(context.Background(), Job{
		Name:      WebhookJob,
		Queue:     DefaultQueue,
		Disk:      "s3",
		Path:      "/docs/report.pdf",
		Extension: "pdf",
		QueuedAt:  time.Unix(1700000000, 0),
	})
	require.NoError(t, err)

	assert.Equal(t, "report.pdf", received.FileName)
	assert.Equal(t, "/docs/report.pdf", received.FilePath)
	assert.Equal(t, "application/pdf", received.ContentType)
	assert.Equal(t, int64(1700000000), received.QueuedAt)
}

func TestWebhookReportsNon2xx(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	err := NewWebhook(srv.URL).Handle(context.Background(), Job{Name: WebhookJob, Path: "/x.bin"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "502")
}
