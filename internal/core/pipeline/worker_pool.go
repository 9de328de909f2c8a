package pipeline

import (
	"context"
	"runtime"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"
	"gocv.io/x/gocv"
)

// WorkerPool bounds concurrent frame processing. Detection requests and
// database writes stay within a fixed number of in-flight frames no matter
// how many cameras or uploads arrive at once.
type WorkerPool struct {
	pipeline    *Pipeline
	jobs        chan *frameJob
	workerCount int

	activeJobs      int
	activeJobsMutex sync.Mutex

	shutdown chan struct{}
}

type frameJob struct {
	ctx      context.Context
	source   string
	frame    gocv.Mat
	resultCh chan *jobResult
}

type jobResult struct {
	result *FrameResult
	err    error
}

// NewWorkerPool creates and starts a pool sized to 75% of the available
// CPUs, at least 2.
func NewWorkerPool(pipeline *Pipeline) *WorkerPool {
	workerCount := max(2, (runtime.NumCPU()*3)/4)
	log.Infof("Initializing frame processing worker pool with %d workers", workerCount)

	pool := &WorkerPool{
		pipeline:    pipeline,
		jobs:        make(chan *frameJob, workerCount*2),
		workerCount: workerCount,
		shutdown:    make(chan struct{}),
	}
	pool.startWorkers()
	return pool
}

func (p *WorkerPool) startWorkers() {
	for i := 0; i < p.workerCount; i++ {
		go func(workerID int) {
			log.Debugf("Worker %d started", workerID)
			for {
				select {
				case job, ok := <-p.jobs:
					if !ok {
						log.Debugf("Worker %d shutting down", workerID)
						return
					}
					p.runJob(workerID, job)
				case <-p.shutdown:
					log.Debugf("Worker %d received shutdown signal", workerID)
					return
				}
			}
		}(i)
	}
}

func (p *WorkerPool) runJob(workerID int, job *frameJob) {
	p.activeJobsMutex.Lock()
	p.activeJobs++
	p.activeJobsMutex.Unlock()

	start := time.Now()
	result, err := p.pipeline.ProcessFrame(job.ctx, job.source, job.frame)

	p.activeJobsMutex.Lock()
	p.activeJobs--
	p.activeJobsMutex.Unlock()

	select {
	case job.resultCh <- &jobResult{result: result, err: err}:
	default:
		log.Warnf("Worker %d: could not deliver result for %s", workerID, job.source)
	}

	log.Debugf("Worker %d processed frame from %s in %v", workerID, job.source, time.Since(start))
}

// ProcessFrame runs a frame through the pipeline on a pool worker, blocking
// until the result is available or the context is cancelled.
func (p *WorkerPool) ProcessFrame(ctx context.Context, source string, frame gocv.Mat) (*FrameResult, error) {
	resultCh := make(chan *jobResult, 1)
	job := &frameJob{ctx: ctx, source: source, frame: frame, resultCh: resultCh}

	select {
	case p.jobs <- job:
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	select {
	case res := <-resultCh:
		return res.result, res.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// ActiveJobCount returns the number of frames currently being processed.
func (p *WorkerPool) ActiveJobCount() int {
	p.activeJobsMutex.Lock()
	defer p.activeJobsMutex.Unlock()
	return p.activeJobs
}

// GetWorkerCount returns the number of pool workers.
func (p *WorkerPool) GetWorkerCount() int {
	return p.workerCount
}

// GetQueueCapacity returns the job queue capacity.
func (p *WorkerPool) GetQueueCapacity() int {
	return cap(p.jobs)
}

// Shutdown stops all workers. In-flight jobs finish; queued jobs are
// abandoned.
func (p *WorkerPool) Shutdown() {
	close(p.shutdown)
	close(p.jobs)
}

func max(a, b int) int {
	if a > b {
		return a
	}
	return b
}
