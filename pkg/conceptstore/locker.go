package conceptstore

import (
	"context"
	"sync"

	"github.com/google/uuid"
)

// Locker serializes pipeline runs of one user between dedup and commit.
type Locker interface {
	// Lock blocks until the user's lock is held or ctx is done.
	Lock(ctx context.Context, userId uuid.UUID) (unlock func(), err error)
}

// LocalLocker is a per-user channel semaphore. It only protects a single
// process. An entry lives only while some run holds or waits for it.
type LocalLocker struct {
	mu   sync.Mutex
	sems map[uuid.UUID]*userSem
}

type userSem struct {
	ch   chan struct{}
	refs int // holders plus waiters
}

func NewLocalLocker() *LocalLocker {
	return &LocalLocker{sems: make(map[uuid.UUID]*userSem)}
}

func (l *LocalLocker) Lock(ctx context.Context, userId uuid.UUID) (func(), error) {
	l.mu.Lock()
	sem, ok := l.sems[userId]
	if !ok {
		sem = &userSem{ch: make(chan struct{}, 1)}
		l.sems[userId] = sem
	}
	sem.refs++
	l.mu.Unlock()

	select {
	case sem.ch <- struct{}{}:
		var once sync.Once
		return func() {
			once.Do(func() {
				<-sem.ch
				l.release(userId, sem)
			})
		}, nil
	case <-ctx.Done():
		l.release(userId, sem)
		return nil, ctx.Err()
	}
}

func (l *LocalLocker) release(userId uuid.UUID, sem *userSem) {
	l.mu.Lock()
	defer l.mu.Unlock()
	sem.refs--
	if sem.refs == 0 {
		delete(l.sems, userId)
	}
}

func (l *LocalLocker) size() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.sems)
}
