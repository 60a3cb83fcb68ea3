package audiometa

import (
	"errors"
	"sync"

	"github.com/sirupsen/logrus"
)

// ErrQueueClosed is returned by Submit after Stop.
var ErrQueueClosed = errors.New("extraction queue closed")

// ErrQueueFull is returned when the job buffer is full.
var ErrQueueFull = errors.New("extraction queue full")

// Job asks for one file to be examined. Done receives the result and is
// called from a worker goroutine.
type Job struct {
	Path string
	Done func(Info, error)
}

// Pool runs extraction jobs on a fixed number of workers.
type Pool struct {
	extractor *Extractor
	logger    *logrus.Logger
	jobs      chan Job
	wg        sync.WaitGroup

	mu     sync.RWMutex
	closed bool
}

// NewPool starts workers goroutines reading from a queue of queueSize jobs.
func NewPool(extractor *Extractor, workers, queueSize int, logger *logrus.Logger) *Pool {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	p := &Pool{
		extractor: extractor,
		logger:    logger,
		jobs:      make(chan Job, queueSize),
	}

	for i := 0; i < workers; i++ {
		p.wg.Add(1)
		go p.work()
	}
	return p
}

func (p *Pool) work() {
	defer p.wg.Done()
	for job := range p.jobs {
		info, err := p.extractor.Extract(job.Path)
		if err != nil {
			p.logger.WithError(err).WithField("file_path", job.Path).Warn("Audio metadata extraction failed")
		}
		if job.Done != nil {
			job.Done(info, err)
		}
	}
}

// Submit enqueues a job without blocking.
func (p *Pool) Submit(job Job) error {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if p.closed {
		return ErrQueueClosed
	}
	select {
	case p.jobs <- job:
		return nil
	default:
		return ErrQueueFull
	}
}

// Stop drains queued jobs and waits for the workers to exit.
func (p *Pool) Stop() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	close(p.jobs)
	p.mu.Unlock()

	p.wg.Wait()
}
