package deploy

import (
	"context"
	"sync"

	"github.com/quocson95/ideaftp/pkg/remote"
)

// FileQueue runs transfers with bounded concurrency
type FileQueue struct {
	sem chan struct{}
}

// NewFileQueue creates a new file queue
func NewFileQueue(concurrency int) *FileQueue {
	if concurrency < 1 {
		concurrency = 1
	}
	return &FileQueue{sem: make(chan struct{}, concurrency)}
}

// JobExecutor is the function that performs the actual transfer
type JobExecutor func(ctx context.Context, job remote.Job) (int64, error)

// ProgressFunc is called after each successful job with the running totals
type ProgressFunc func(job remote.Job, filesDone int, bytesDone int64)

// ProcessJobs executes jobs concurrently and stops scheduling new ones after
// the first failure, which is returned once running jobs have finished.
func (q *FileQueue) ProcessJobs(ctx context.Context, jobs []remote.Job, executor JobExecutor, updateFn ProgressFunc) error {
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	var wg sync.WaitGroup
	var errOnce sync.Once
	var firstErr error

	var progressMu sync.Mutex
	var filesDone int
	var bytesDone int64

loop:
	for _, job := range jobs {
		select {
		case q.sem <- struct{}{}:
		case <-runCtx.Done():
			break loop
		}
		if runCtx.Err() != nil {
			<-q.sem
			break
		}

		wg.Add(1)
		go func(j remote.Job) {
			defer wg.Done()
			defer func() { <-q.sem }()

			written, err := executor(runCtx, j)
			if err != nil {
				errOnce.Do(func() {
					firstErr = err
					cancel()
				})
				return
			}

			if updateFn == nil {
				return
			}
			progressMu.Lock()
			defer progressMu.Unlock()
			filesDone++
			bytesDone += written
			updateFn(j, filesDone, bytesDone)
		}(job)
	}

	wg.Wait()
	if firstErr != nil {
		return firstErr
	}
	return ctx.Err()
}
