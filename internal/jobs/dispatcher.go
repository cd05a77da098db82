// Package jobs dispatches background work for uploaded files.
//
// A job is chosen by the uploaded file's extension: either the extension
// itself or the extension group it belongs to is looked up in the job map.
// Matching jobs are queued on a named queue drained by a worker pool.
package jobs

import (
	"context"
	"path"
	"sort"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/fruitsalade/filemanager/internal/logging"
	"github.com/fruitsalade/filemanager/internal/metrics"
)

// DefaultQueue is used when no custom queue name is configured.
const DefaultQueue = "default"

// Job is one unit of background work for a stored file.
type Job struct {
	Name      string    `json:"name"`
	Queue     string    `json:"queue"`
	Disk      string    `json:"disk"`
	Path      string    `json:"path"`
	Extension string    `json:"extension"`
	QueuedAt  time.Time `json:"queued_at"`
}

// Handler executes a job.
type Handler interface {
	Handle(ctx context.Context, job Job) error
}

// HandlerFunc adapts a function to the Handler interface.
type HandlerFunc func(ctx context.Context, job Job) error

// Handle calls f(ctx, job).
func (f HandlerFunc) Handle(ctx context.Context, job Job) error { return f(ctx, job) }

// Config controls job selection and the worker pool.
type Config struct {
	// Jobs maps an extension ("pdf") or extension group ("image") to a job name.
	Jobs map[string]string
	// Groups maps an extension group to its extensions.
	Groups map[string][]string
	// Queue is the queue name jobs are assigned to.
	Queue     string
	Workers   int
	QueueSize int
}

// Dispatcher selects and runs jobs for uploaded files.
type Dispatcher struct {
	jobs      map[string]string
	groups    map[string][]string
	queueName string
	workers   int

	mu       sync.RWMutex
	handlers map[string]Handler

	// sendMu guards queue against sends after Stop closed it.
	sendMu  sync.RWMutex
	stopped bool
	queue   chan Job
	wg      sync.WaitGroup
	cancel  context.CancelFunc
}

// NewDispatcher creates a dispatcher. Call Start to launch workers.
func NewDispatcher(cfg Config) *Dispatcher {
	if cfg.Workers <= 0 {
		cfg.Workers = 2
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 1000
	}
	if cfg.Queue == "" {
		cfg.Queue = DefaultQueue
	}

	jobsByKey := make(map[string]string, len(cfg.Jobs))
	for k, v := range cfg.Jobs {
		jobsByKey[strings.ToLower(strings.TrimPrefix(k, "."))] = v
	}

	return &Dispatcher{
		jobs:      jobsByKey,
		groups:    cfg.Groups,
		queueName: cfg.Queue,
		workers:   cfg.Workers,
		handlers:  make(map[string]Handler),
		queue:     make(chan Job, cfg.QueueSize),
	}
}

// Register binds a job name to its handler.
func (d *Dispatcher) Register(name string, h Handler) {
	d.mu.Lock()
	d.handlers[name] = h
	d.mu.Unlock()
}

// Start launches the worker goroutines.
func (d *Dispatcher) Start(ctx context.Context) {
	ctx, d.cancel = context.WithCancel(ctx)
	for i := 0; i < d.workers; i++ {
		d.wg.Add(1)
		go d.worker(ctx)
	}
	logging.Info("job dispatcher started",
		zap.String("queue", d.queueName),
		zap.Int("workers", d.workers))
}

// Stop closes the queue and waits for queued jobs to finish.
// Later Dispatch calls drop their job. Stop may be called more than once.
func (d *Dispatcher) Stop() {
	d.sendMu.Lock()
	if d.stopped {
		d.sendMu.Unlock()
		return
	}
	d.stopped = true
	close(d.queue)
	d.sendMu.Unlock()

	d.wg.Wait()
	if d.cancel != nil {
		d.cancel()
	}
	logging.Info("job dispatcher stopped", zap.String("queue", d.queueName))
}

// JobFor returns the job name configured for a file extension.
// Direct extension entries win over group entries; groups are checked in
// name order so the result is deterministic.
func (d *Dispatcher) JobFor(ext string) (string, bool) {
	ext = strings.ToLower(strings.TrimPrefix(ext, "."))
	if ext == "" {
		return "", false
	}
	if name, ok := d.jobs[ext]; ok {
		return name, true
	}

	groups := make([]string, 0, len(d.groups))
	for g := range d.groups {
		groups = append(groups, g)
	}
	sort.Strings(groups)

	for _, g := range groups {
		name, ok := d.jobs[strings.ToLower(g)]
		if !ok {
			continue
		}
		for _, e := range d.groups[g] {
			if strings.EqualFold(strings.TrimPrefix(e, "."), ext) {
				return name, true
			}
		}
	}
	return "", false
}

// Dispatch queues the job mapped to the file's extension.
// Files without a mapping are a no-op. A full queue drops the job.
func (d *Dispatcher) Dispatch(ctx context.Context, disk, filePath string) {
	ext := strings.ToLower(strings.TrimPrefix(path.Ext(filePath), "."))
	name, ok := d.JobFor(ext)
	if !ok {
		return
	}

	job := Job{
		Name:      name,
		Queue:     d.queueName,
		Disk:      disk,
		Path:      filePath,
		Extension: ext,
		QueuedAt:  time.Now(),
	}

	d.sendMu.RLock()
	defer d.sendMu.RUnlock()
	if d.stopped {
		metrics.RecordJob(name, "dropped")
		logging.Warn("job dispatcher stopped, dropping",
			zap.String("job", name),
			zap.String("path", filePath))
		return
	}

	select {
	case d.queue <- job:
		metrics.RecordJob(name, "queued")
		metrics.SetJobQueueDepth(d.queueName, len(d.queue))
		logging.WithContext(ctx).Debug("job queued",
			zap.String("job", name),
			zap.String("queue", d.queueName),
			zap.String("path", filePath))
	default:
		metrics.RecordJob(name, "dropped")
		logging.Warn("job queue full, dropping",
			zap.String("job", name),
			zap.String("queue", d.queueName),
			zap.String("path", filePath))
	}
}

func (d *Dispatcher) worker(ctx context.Context) {
	defer d.wg.Done()
	for job := range d.queue {
		metrics.SetJobQueueDepth(d.queueName, len(d.queue))
		d.run(ctx, job)
	}
}

func (d *Dispatcher) run(ctx context.Context, job Job) {
	d.mu.RLock()
	h, ok := d.handlers[job.Name]
	d.mu.RUnlock()
	if !ok {
		metrics.RecordJob(job.Name, "unknown")
		logging.Debug("no handler registered for job", zap.String("job", job.Name))
		return
	}

	start := time.Now()
	if err := h.Handle(ctx, job); err != nil {
		metrics.RecordJob(job.Name, "failed")
		logging.Warn("job failed",
			zap.String("job", job.Name),
			zap.String("disk", job.Disk),
			zap.String("path", job.Path),
			zap.Error(err))
		return
	}
	metrics.RecordJob(job.Name, "done")
	logging.Debug("job done",
		zap.String("job", job.Name),
		zap.String("path", job.Path),
		zap.Duration("duration", time.Since(start)))
}
