// Package pipeline implements the indexing pipeline (C4): one instance per
// document type, running a priority-queue worker pool that analyzes,
// scores, and submits documents to the index backend, with retry/backoff,
// a bounded failed-ops ring, and memory-pressure back-off, grounded on the
// original note_indexer.cpp/user_indexer.cpp worker loop.
package pipeline

import (
	"context"
	"fmt"
	"math/rand"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/shirou/gopsutil/v3/process"

	"github.com/sonet-social/search-service/internal/analyzer"
	"github.com/sonet-social/search-service/internal/backend"
	"github.com/sonet-social/search-service/internal/model"
	"github.com/sonet-social/search-service/internal/scoring"
	"github.com/sonet-social/search-service/pkg/config"
)

// maxFailedOps bounds the failed-ops ring buffer, grounded on the original
// engine's MAX_FAILED_OPERATIONS constant.
const maxFailedOps = 1000

// Backend is the subset of *backend.Client the pipeline depends on,
// accepted as an interface per the opaque-handle injection pattern.
type Backend interface {
	IndexDoc(ctx context.Context, index, id string, doc interface{}) (*backend.IndexResult, error)
	UpdateDoc(ctx context.Context, index, id string, partial map[string]interface{}) error
	DeleteDoc(ctx context.Context, index, id string) error
}

// FailedOp records one task that exhausted its retry budget.
type FailedOp struct {
	DocID     string
	Op        model.IndexingOperation
	Message   string
	FailedAt  time.Time
}

// Metrics is a snapshot of the pipeline's atomic counters.
type Metrics struct {
	Processed int64
	Indexed   int64
	Updated   int64
	Deleted   int64
	Skipped   int64
	Failed    int64
	Retries   int64
	QueueSize int
}

// Pipeline is one document-type instance of the indexing pipeline.
type Pipeline struct {
	docType config.PipelineConfig
	index   string
	client  Backend

	mu    sync.Mutex
	queue *priorityQueue
	cond  *sync.Cond

	paused   atomic.Bool
	shutdown atomic.Bool

	processed, indexed, updated, deleted, skipped, failed, retries atomic.Int64

	failedMu sync.Mutex
	failedOps []FailedOp

	memoryOK   atomic.Bool
	memoryStop chan struct{}

	wg sync.WaitGroup
}

// New constructs a Pipeline for the given backend index name (e.g.
// "notes" or "users"), starting its worker pool.
func New(cfg config.PipelineConfig, index string, client Backend) *Pipeline {
	p := &Pipeline{
		docType: cfg,
		index:      index,
		client:     client,
		queue:      newPriorityQueue(),
		memoryStop: make(chan struct{}),
	}
	p.cond = sync.NewCond(&p.mu)
	p.memoryOK.Store(true)

	workers := cfg.WorkerCount
	if workers <= 0 {
		workers = 2
	}
	for i := 0; i < workers; i++ {
		p.wg.Add(1)
		go p.workerLoop()
	}
	p.wg.Add(1)
	go p.memoryLoop()

	return p
}

// Enqueue accepts a task for asynchronous processing. It is non-blocking
// and returns false if the pipeline is shut down, memory pressure is
// critical, or the queue is at capacity. A task that fails the basic
// indexability gate is counted as skipped and dropped, and Enqueue returns
// true for it.
func (p *Pipeline) Enqueue(task *model.IndexingTask) bool {
	if p.shutdown.Load() {
		return false
	}
	if !p.passesBasicGate(task) {
		p.skipped.Add(1)
		return true // accepted-and-dropped: not a back-pressure rejection
	}
	if !p.memoryOK.Load() {
		return false
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if p.queue.Len() >= maxQueueSize(p.docType) {
		return false
	}
	if task.ScheduledAt.IsZero() {
		task.ScheduledAt = time.Now()
	}
	if task.EnqueuedAt.IsZero() {
		task.EnqueuedAt = time.Now()
	}
	// Provisional ordering priority only: Scores/Reputation/Boosts aren't
	// populated yet (analysis/scoring hasn't run), so this is just enough
	// to order same-tick queue entries sanely. processOne/IndexNow
	// recompute the authoritative priority once scoring has run.
	task.Priority = computePriority(task)

	p.queue.push(task)
	p.cond.Signal()
	return true
}

func maxQueueSize(cfg config.PipelineConfig) int {
	if cfg.MaxQueueSize <= 0 {
		return 10000
	}
	return cfg.MaxQueueSize
}

func batchSize(cfg config.PipelineConfig) int {
	if cfg.BatchSize <= 0 {
		return 100
	}
	return cfg.BatchSize
}

func maxRetryAttempts(cfg config.PipelineConfig) int {
	if cfg.MaxRetryAttempts <= 0 {
		return 5
	}
	return cfg.MaxRetryAttempts
}

func retryDelay(cfg config.PipelineConfig) time.Duration {
	if cfg.RetryDelay <= 0 {
		return 500 * time.Millisecond
	}
	return cfg.RetryDelay
}

func computePriority(task *model.IndexingTask) int {
	now := time.Now()
	switch task.DocType {
	case model.DocumentNote:
		return NotePriority(task.Note, now)
	case model.DocumentUser:
		return UserPriority(task.User, now)
	}
	return 0
}

// passesBasicGate applies the part of §4.4's indexability gate that is
// decidable before analysis runs: visibility, author suspension, presence
// of content. The authoritative quality/spam/bot check happens in
// passesFullGate once analysis has filled those fields in. OpUpdateMetrics
// tasks carry only an id plus counters (see internal/bus.Decode), never the
// full document, so the content/flag presence checks don't apply to them.
func (p *Pipeline) passesBasicGate(task *model.IndexingTask) bool {
	if task.Op == model.OpDelete {
		return true
	}
	switch task.DocType {
	case model.DocumentNote:
		n := task.Note
		if n == nil {
			return false
		}
		if n.Visibility == model.VisibilityPrivate || n.Author.Suspended {
			return false
		}
		if task.Op != model.OpUpdateMetrics && n.Text == "" {
			return false
		}
	case model.DocumentUser:
		u := task.User
		if u == nil {
			return false
		}
		switch u.Status {
		case model.UserStatusSuspended, model.UserStatusDeleted:
			return false
		}
		if task.Op != model.OpUpdateMetrics && (!u.Indexable || !u.Searchable) {
			return false
		}
	}
	return true
}

// passesFullGate applies §4.4's complete indexability gate after analysis:
// the document's own ShouldBeIndexed() plus configured overrides for
// spam/NSFW/bots. Deletes always pass, and so do OpUpdateMetrics tasks,
// which carry only an id plus counters and were already checked by
// passesBasicGate.
func (p *Pipeline) passesFullGate(task *model.IndexingTask) bool {
	if task.Op == model.OpDelete || task.Op == model.OpUpdateMetrics {
		return true
	}
	switch task.DocType {
	case model.DocumentNote:
		n := task.Note
		if n == nil {
			return false
		}
		if !n.ShouldBeIndexed() {
			return false
		}
		if n.NSFW && !p.docType.IndexNSFW {
			return false
		}
		if n.SpamScore > 0.5 && !p.docType.IndexSpam {
			return false
		}
	case model.DocumentUser:
		u := task.User
		if u == nil {
			return false
		}
		if !u.ShouldBeIndexed() {
			return false
		}
		if u.IsBotLikely && !p.docType.IndexBots {
			return false
		}
	}
	return true
}

// IndexNow bypasses the queue, running the same analysis+score path
// synchronously and submitting directly through the backend.
func (p *Pipeline) IndexNow(ctx context.Context, task *model.IndexingTask) error {
	if !p.passesBasicGate(task) {
		p.skipped.Add(1)
		return nil
	}
	if task.Op == model.OpUpdateMetrics {
		p.scoreOnly(task)
	} else {
		p.analyzeAndScore(task)
	}
	task.Priority = computePriority(task)
	if !p.passesFullGate(task) {
		p.skipped.Add(1)
		return nil
	}
	if err := p.submit(ctx, task); err != nil {
		return err
	}
	p.processed.Add(1)
	p.recordSuccess(task.Op)
	return nil
}

// FlushNow drains the queue under deadline, processing ready tasks until
// empty or the context expires.
func (p *Pipeline) FlushNow(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		p.mu.Lock()
		tasks := p.queue.popReady(batchSize(p.docType), time.Now())
		empty := p.queue.Len() == 0
		p.mu.Unlock()

		for _, t := range tasks {
			p.processOne(ctx, t)
		}
		if empty && len(tasks) == 0 {
			return nil
		}
	}
}

// Pause stops workers from pulling new batches; in-flight batches finish.
func (p *Pipeline) Pause() { p.paused.Store(true) }

// Resume re-enables worker pulls.
func (p *Pipeline) Resume() {
	p.paused.Store(false)
	p.cond.Broadcast()
}

// Shutdown stops accepting new tasks and waits for workers to drain their
// current batch.
func (p *Pipeline) Shutdown() {
	p.shutdown.Store(true)
	p.cond.Broadcast()
	close(p.memoryStop)
	p.wg.Wait()
}

// Metrics returns a snapshot of pipeline counters.
func (p *Pipeline) Metrics() Metrics {
	p.mu.Lock()
	qSize := p.queue.Len()
	p.mu.Unlock()
	return Metrics{
		Processed: p.processed.Load(),
		Indexed:   p.indexed.Load(),
		Updated:   p.updated.Load(),
		Deleted:   p.deleted.Load(),
		Skipped:   p.skipped.Load(),
		Failed:    p.failed.Load(),
		Retries:   p.retries.Load(),
		QueueSize: qSize,
	}
}

// FailedOps returns a snapshot of the failed-ops ring buffer.
func (p *Pipeline) FailedOps() []FailedOp {
	p.failedMu.Lock()
	defer p.failedMu.Unlock()
	out := make([]FailedOp, len(p.failedOps))
	copy(out, p.failedOps)
	return out
}

func (p *Pipeline) workerLoop() {
	defer p.wg.Done()
	batchTimeout := 500 * time.Millisecond

	for {
		if p.shutdown.Load() {
			return
		}

		p.mu.Lock()
		if p.queue.Len() == 0 && !p.shutdown.Load() {
			waitWithTimeout(p.cond, batchTimeout)
		}
		if p.shutdown.Load() {
			p.mu.Unlock()
			return
		}
		if p.paused.Load() {
			p.mu.Unlock()
			time.Sleep(batchTimeout)
			continue
		}
		tasks := p.queue.popReady(batchSize(p.docType), time.Now())
		p.mu.Unlock()

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		for _, t := range tasks {
			p.processOne(ctx, t)
		}
		cancel()
	}
}

// waitWithTimeout emulates a condition-variable wait with a bound, since
// sync.Cond has no native timeout: it signals itself after the timeout to
// unblock the waiter for a fresh liveness check.
func waitWithTimeout(cond *sync.Cond, timeout time.Duration) {
	done := make(chan struct{})
	timer := time.AfterFunc(timeout, func() {
		cond.L.Lock()
		cond.Broadcast()
		cond.L.Unlock()
	})
	go func() {
		cond.Wait()
		close(done)
	}()
	<-done
	timer.Stop()
}

func (p *Pipeline) processOne(ctx context.Context, task *model.IndexingTask) {
	p.processed.Add(1)

	if task.Op == model.OpUpdateMetrics {
		p.scoreOnly(task)
	} else {
		p.analyzeAndScore(task)
	}
	// Priority depends on Scores/Reputation/Boosts, so it can only be
	// computed once analysis/scoring has populated them — never at Enqueue
	// time, when a metrics-update task still carries zero-valued scores.
	task.Priority = computePriority(task)

	if !p.passesFullGate(task) {
		p.skipped.Add(1)
		return
	}

	if err := p.submit(ctx, task); err != nil {
		p.handleFailure(task, err)
		return
	}

	p.recordSuccess(task.Op)
}

func (p *Pipeline) recordSuccess(op model.IndexingOperation) {
	switch op {
	case model.OpCreate:
		p.indexed.Add(1)
	case model.OpUpdate, model.OpUpdateMetrics:
		p.updated.Add(1)
	case model.OpDelete:
		p.deleted.Add(1)
	}
}

// scoreOnly recomputes derived scores from freshly-updated engagement
// counters without re-running content analysis, used for OpUpdateMetrics
// tasks whose Note/User carries only ID + counters, not text.
func (p *Pipeline) scoreOnly(task *model.IndexingTask) {
	now := time.Now()
	switch task.DocType {
	case model.DocumentNote:
		if task.Note == nil {
			return
		}
		scoring.ScoreNote(task.Note, now)
		task.Note.Boosts = scoring.NoteBoosts(task.Note, now)
	case model.DocumentUser:
		if task.User == nil {
			return
		}
		scoring.ScoreUser(task.User, now)
	}
}

func (p *Pipeline) analyzeAndScore(task *model.IndexingTask) {
	now := time.Now()
	switch task.DocType {
	case model.DocumentNote:
		if task.Note == nil {
			return
		}
		a := analyzer.Analyze(task.Note.Text)
		task.Note.Hashtags = a.Hashtags
		task.Note.Mentions = a.Mentions
		task.Note.MediaURLs = a.MediaURLs
		task.Note.Language = a.Language
		task.Note.NSFW = a.NSFW
		task.Note.Sensitive = a.Sensitive
		task.Note.QualityScore = a.QualityScore
		task.Note.SpamScore = a.SpamScore
		task.Note.Topics = a.Topics
		task.Note.Sentiment = a.Sentiment
		scoring.ScoreNote(task.Note, now)
		task.Note.Boosts = scoring.NoteBoosts(task.Note, now)
	case model.DocumentUser:
		if task.User == nil {
			return
		}
		scoring.ScoreUser(task.User, now)
	}
}

func (p *Pipeline) submit(ctx context.Context, task *model.IndexingTask) error {
	switch task.Op {
	case model.OpDelete:
		return p.client.DeleteDoc(ctx, p.index, task.DocID())
	case model.OpUpdateMetrics:
		partial, err := metricsPartial(task)
		if err != nil {
			return err
		}
		return p.client.UpdateDoc(ctx, p.index, task.DocID(), partial)
	default:
		doc, err := taskDocument(task)
		if err != nil {
			return err
		}
		_, err = p.client.IndexDoc(ctx, p.index, task.DocID(), doc)
		return err
	}
}

func taskDocument(task *model.IndexingTask) (interface{}, error) {
	switch task.DocType {
	case model.DocumentNote:
		if task.Note == nil {
			return nil, fmt.Errorf("pipeline: nil note for task %s", task.ID)
		}
		return task.Note, nil
	case model.DocumentUser:
		if task.User == nil {
			return nil, fmt.Errorf("pipeline: nil user for task %s", task.ID)
		}
		return task.User, nil
	}
	return nil, fmt.Errorf("pipeline: unknown document type %q", task.DocType)
}

func metricsPartial(task *model.IndexingTask) (map[string]interface{}, error) {
	switch task.DocType {
	case model.DocumentNote:
		if task.Note == nil {
			return nil, fmt.Errorf("pipeline: nil note for metrics update")
		}
		return map[string]interface{}{"metrics": task.Note.Metrics, "scores": task.Note.Scores}, nil
	case model.DocumentUser:
		if task.User == nil {
			return nil, fmt.Errorf("pipeline: nil user for metrics update")
		}
		return map[string]interface{}{"reputation": task.User.Reputation, "bot_likelihood": task.User.BotLikelihood}, nil
	}
	return nil, fmt.Errorf("pipeline: unknown document type %q", task.DocType)
}

// handleFailure implements the §4.4 retry/backoff path: re-enqueue with
// exponential backoff plus jitter while retry_count < max_retry_attempts,
// else append to the bounded failed-ops ring and drop.
func (p *Pipeline) handleFailure(task *model.IndexingTask, err error) {
	max := maxRetryAttempts(p.docType)
	if task.RetryCount >= max {
		p.failed.Add(1)
		p.appendFailedOp(task, err)
		return
	}

	task.RetryCount++
	p.retries.Add(1)

	base := retryDelay(p.docType)
	backoffDur := time.Duration(float64(base) * pow2(task.RetryCount))
	jitter := 0.75 + rand.Float64()*0.5
	delay := time.Duration(float64(backoffDur) * jitter)
	task.ScheduledAt = time.Now().Add(delay)

	p.mu.Lock()
	p.queue.push(task)
	p.cond.Signal()
	p.mu.Unlock()
}

func pow2(n int) float64 {
	result := 1.0
	for i := 0; i < n; i++ {
		result *= 2
	}
	return result
}

func (p *Pipeline) appendFailedOp(task *model.IndexingTask, err error) {
	p.failedMu.Lock()
	defer p.failedMu.Unlock()

	p.failedOps = append(p.failedOps, FailedOp{
		DocID:    task.DocID(),
		Op:       task.Op,
		Message:  err.Error(),
		FailedAt: time.Now(),
	})
	if len(p.failedOps) > maxFailedOps {
		p.failedOps = p.failedOps[len(p.failedOps)-maxFailedOps:]
	}
}

// memoryLoop samples the process's resident memory via gopsutil, per §4.4's "every N
// loops, sample memory" rule, and refuses new enqueues once usage crosses
// the limit threshold until it drops back below the warning threshold.
func (p *Pipeline) memoryLoop() {
	defer p.wg.Done()
	ticker := time.NewTicker(2 * time.Second)
	defer ticker.Stop()

	limitMB := float64(p.docType.MemoryLimitMB)
	warningMB := float64(p.docType.MemoryWarningMB)
	if limitMB <= 0 {
		limitMB = 512
	}
	if warningMB <= 0 || warningMB >= limitMB {
		warningMB = limitMB * 0.8
	}

	for {
		select {
		case <-ticker.C:
			if p.shutdown.Load() {
				return
			}
			proc, err := process.NewProcess(int32(os.Getpid()))
			if err != nil {
				continue
			}
			info, err := proc.MemoryInfo()
			if err != nil {
				continue
			}
			usedMB := float64(info.RSS) / (1024 * 1024)
			switch {
			case usedMB >= limitMB:
				p.memoryOK.Store(false)
			case usedMB < warningMB:
				p.memoryOK.Store(true)
			}
		case <-p.memoryStop:
			return
		}
	}
}
