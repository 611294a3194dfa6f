package repository

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"venuebook/internal/domain"

	"github.com/rs/zerolog"
)

const recoveryInterval = time.Minute

// FailoverSpaceLocker uses the primary locker and switches to the fallback
// while the primary is failing, retrying it once per recoveryInterval.
type FailoverSpaceLocker struct {
	primary   domain.SpaceLocker
	fallback  domain.SpaceLocker
	logger    *zerolog.Logger
	isDown    atomic.Bool
	lastCheck atomic.Int64
	now       func() time.Time
}

func NewFailoverSpaceLocker(primary, fallback domain.SpaceLocker, logger *zerolog.Logger) *FailoverSpaceLocker {
	return &FailoverSpaceLocker{
		primary:  primary,
		fallback: fallback,
		logger:   logger,
		now:      time.Now,
	}
}

func (l *FailoverSpaceLocker) Lock(ctx context.Context, spaceID int64) (func(), error) {
	if l.isDown.Load() && l.now().Sub(time.Unix(0, l.lastCheck.Load())) > recoveryInterval {
		l.isDown.Store(false)
		l.logger.Info().Msg("Retrying primary space locker")
	}

	if !l.isDown.Load() {
		unlock, err := l.primary.Lock(ctx, spaceID)
		if err == nil {
			return unlock, nil
		}
		// timeouts and cancellation are contention, not an outage
		if errors.Is(err, ErrLockTimeout) || ctx.Err() != nil {
			return nil, err
		}
		l.logger.Error().Err(err).Int64("space_id", spaceID).Msg("Primary space locker failed, falling back to memory")
		l.isDown.Store(true)
		l.lastCheck.Store(l.now().UnixNano())
	}

	return l.fallback.Lock(ctx, spaceID)
}

// Degraded reports whether the fallback is in use.
func (l *FailoverSpaceLocker) Degraded() bool {
	return l.isDown.Load()
}
