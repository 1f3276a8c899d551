package worker

import (
	"context"
	"errors"
	"time"

	"spacechat/internal/config"
	"spacechat/internal/llm"
	"spacechat/internal/models"
	"spacechat/internal/redis"
	"spacechat/internal/service/workspace"
)

const queueLen = 16

var ErrDispatcherBusy = errors.New("task queue full")

// Store is the persistence surface the background tasks run against.
type Store interface {
	GetKeySecret(ctx context.Context, keyID int64) (string, error)
	LoadChatContext(ctx context.Context, chatID int64) ([]*models.Message, error)
	BeginStreaming(ctx context.Context, messageID int64, streamID string) error
	StreamMessageText(ctx context.Context, messageID int64, text string) error
	MarkMessageDone(ctx context.Context, messageID int64) error
	MarkMessageFailed(ctx context.Context, messageID int64) error
	ApplyChatMetadata(ctx context.Context, userID, chatID int64, title string, tags []string) error
	SaveModels(ctx context.Context, provider string, entries []llm.CatalogEntry) error
}

// Generator is the upstream surface a generation task needs.
type Generator interface {
	StreamChat(ctx context.Context, model string, messages []llm.ContextMessage, onDelta func(string) error) error
	GenerateChatMetadata(ctx context.Context, userMsg, modelMsg llm.ContextMessage) (*llm.ChatMetadata, error)
	ListModels(ctx context.Context) ([]llm.CatalogEntry, error)
}

var clientFactory = func(upstream config.UpstreamConfig, secret string) Generator {
	return llm.NewClient(upstream, secret)
}

type DispatcherConfig struct {
	MinWorkers        int
	MaxWorkers        int
	QueueSize         int
	WorkerIdleTimeout time.Duration
}

// Manager owns the background task plumbing: it schedules jobs onto the
// dispatcher and executes them on pool workers.
type Manager struct {
	store      Store
	upstream   config.UpstreamConfig
	streams    *streamPublisher
	dispatcher *Dispatcher
}

func NewManager(store Store, upstream config.UpstreamConfig, rdb *redis.Client, cfg DispatcherConfig) *Manager {
	if cfg.MinWorkers <= 0 {
		cfg.MinWorkers = 2
	}
	if cfg.MaxWorkers < cfg.MinWorkers {
		cfg.MaxWorkers = cfg.MinWorkers
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = queueLen
	}
	m := &Manager{
		store:    store,
		upstream: upstream,
		streams:  newStreamPublisher(rdb),
	}
	m.dispatcher = NewDispatcher(cfg.MinWorkers, cfg.MaxWorkers, cfg.QueueSize, m, cfg.WorkerIdleTimeout)
	return m
}

// ScheduleGeneration enqueues one response-generation task. It never blocks:
// a full queue reports ErrDispatcherBusy to the caller instead.
func (m *Manager) ScheduleGeneration(req workspace.GenerateRequest) error {
	select {
	case m.dispatcher.JobQueue <- Job{Type: Generate, Generate: req}:
		return nil
	default:
		return ErrDispatcherBusy
	}
}

// ScheduleModelSync enqueues a catalog refresh against the upstream provider.
func (m *Manager) ScheduleModelSync() error {
	select {
	case m.dispatcher.JobQueue <- Job{Type: SyncModels}:
		return nil
	default:
		return ErrDispatcherBusy
	}
}

// CancelUser drops the user's queued jobs. In-flight jobs run to completion.
func (m *Manager) CancelUser(userID int64) {
	m.dispatcher.CancelUser(userID)
}
