package jobs

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime"
	"net/http"
	"path"
	"time"
)

// WebhookJob is the built-in job name for webhook notifications.
const WebhookJob = "webhook"

const webhookTimeout = 30 * time.Second

// WebhookRequest is POSTed to the webhook URL for each job.
type WebhookRequest struct {
	Job         string `json:"job"`
	Queue       string `json:"queue"`
	Disk        string `json:"disk"`
	FilePath    string `json:"file_path"`
	FileName    string `json:"file_name"`
	Extension   string `json:"extension"`
	ContentType string `json:"content_type"`
	QueuedAt    int64  `json:"queued_at"`
}

// Webhook notifies an external service about uploaded files.
type Webhook struct {
	url    string
	client *http.Client
}

// NewWebhook creates a webhook handler posting to url.
func NewWebhook(url string) *Webhook {
	return &Webhook{
		url:    url,
		client: &http.Client{Timeout: webhookTimeout},
	}
}

// Handle posts the job description and expects a 2xx answer.
func (w *Webhook) Handle(ctx context.Context, job Job) error {
	ct := mime.TypeByExtension(path.Ext(job.Path))
	if ct == "" {
		ct = "application/octet-stream"
	}

	body, err := json.Marshal(WebhookRequest{
		Job:         job.Name,
		Queue:       job.Queue,
		Disk:        job.Disk,
		FilePath:    job.Path,
		FileName:    path.Base(job.Path),
		Extension:   job.Extension,
		ContentType: ct,
		QueuedAt:    job.QueuedAt.Unix(),
	})
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := w.client.Do(req)
	if err != nil {
		return fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, io.LimitReader(resp.Body, 1<<16))

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("webhook returned status %d", resp.StatusCode)
	}
	return nil
}
