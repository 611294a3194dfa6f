package repository

import (
	"context"
	"sync"
)

// MemorySpaceLocker serialises work on a space within one process.
type MemorySpaceLocker struct {
	slots sync.Map // int64 -> chan struct{}
}

func NewMemorySpaceLocker() *MemorySpaceLocker {
	return &MemorySpaceLocker{}
}

func (l *MemorySpaceLocker) Lock(ctx context.Context, spaceID int64) (func(), error) {
	v, _ := l.slots.LoadOrStore(spaceID, make(chan struct{}, 1))
	slot := v.(chan struct{})

	select {
	case slot <- struct{}{}:
		var once sync.Once
		return func() { once.Do(func() { <-slot }) }, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}
