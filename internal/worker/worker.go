package worker

import "spacechat/internal/service/workspace"

type JobType int

const (
	// Generate runs one response-generation task.
	Generate JobType = iota
	// SyncModels refreshes the upstream model catalog.
	SyncModels
	// Stop retires the receiving worker.
	Stop
)

func (t JobType) String() string {
	switch t {
	case Generate:
		return "generate"
	case SyncModels:
		return "sync_models"
	case Stop:
		return "stop"
	}
	return "unknown"
}

// Job is one schedulable unit of background work.
type Job struct {
	Type     JobType
	Generate workspace.GenerateRequest
}

// Worker owns one job channel and executes jobs sequentially.
type Worker struct {
	manager    *Manager
	pool       *jobChannelPool
	jobChannel chan Job
}

func NewWorker(pool *jobChannelPool, manager *Manager) *Worker {
	return &Worker{
		manager:    manager,
		pool:       pool,
		jobChannel: make(chan Job),
	}
}

func (w *Worker) Start() {
	go func() {
		for {
			w.pool.Release(w.jobChannel)
			job := <-w.jobChannel
			switch job.Type {
			case Generate:
				w.manager.handleGenerate(job.Generate)
			case SyncModels:
				w.manager.handleSyncModels()
			case Stop:
				w.pool.retire(w.jobChannel)
				return
			}
		}
	}()
}
