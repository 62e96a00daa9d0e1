package service

import (
	"context"

	"go.uber.org/zap"

	"github.com/noah-isme/sma-attendance-api/pkg/jobs"
)

// JobInvalidateSession drops the cached active session snapshot.
const JobInvalidateSession = "session.invalidate"

type jobEnqueuer interface {
	Enqueue(job jobs.Job) error
}

// SessionInvalidator removes the cached session after a committed write.
// The delete runs before Invalidate returns; a failed delete is handed to
// the queue, which retries it.
type SessionInvalidator struct {
	queue  jobEnqueuer
	cache  *CacheService
	logger *zap.Logger
}

// NewSessionInvalidator wires the invalidator. Both queue and cache may be nil.
func NewSessionInvalidator(queue jobEnqueuer, cache *CacheService, logger *zap.Logger) *SessionInvalidator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SessionInvalidator{queue: queue, cache: cache, logger: logger}
}

// Invalidate is safe on a nil receiver.
func (i *SessionInvalidator) Invalidate(ctx context.Context, reason string) {
	if i == nil || !i.cache.Enabled() {
		return
	}
	err := i.cache.Invalidate(ctx, SessionCacheKey)
	if err == nil {
		return
	}
	if i.queue == nil {
		i.logger.Error("session cache invalidation failed", zap.String("reason", reason), zap.Error(err))
		return
	}
	if qerr := i.queue.Enqueue(jobs.Job{Type: JobInvalidateSession, Payload: reason}); qerr != nil {
		i.logger.Error("session cache invalidation failed and could not be retried",
			zap.String("reason", reason), zap.NamedError("cache_error", err), zap.Error(qerr))
		return
	}
	i.logger.Warn("session cache invalidation deferred to queue", zap.String("reason", reason), zap.Error(err))
}

// HandleJob processes JobInvalidateSession jobs.
func (i *SessionInvalidator) HandleJob(ctx context.Context, job jobs.Job) error {
	return i.cache.Invalidate(ctx, SessionCacheKey)
}
