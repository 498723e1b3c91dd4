// Package lock serializes snapshot and restore operations per table.
package lock

import (
	"context"
	"fmt"
	"sync"

	"hiring-data-sync/internal/errors"
)

// Lease is a held table lock
type Lease interface {
	Release() error
}

// Locker grants exclusive per-table leases
type Locker interface {
	// Acquire blocks until the table is free or ctx is done
	Acquire(ctx context.Context, table string) (Lease, error)
}

// Nop grants every lease immediately
type Nop struct{}

// Acquire implements Locker
func (Nop) Acquire(ctx context.Context, table string) (Lease, error) {
	return nopLease{}, nil
}

type nopLease struct{}

func (nopLease) Release() error { return nil }

// Local serializes operations on the same table within one process
type Local struct {
	mu    sync.Mutex
	slots map[string]chan struct{}
}

// NewLocal creates an in-process locker
func NewLocal() *Local {
	return &Local{slots: make(map[string]chan struct{})}
}

func (l *Local) slot(table string) chan struct{} {
	l.mu.Lock()
	defer l.mu.Unlock()

	s, ok := l.slots[table]
	if !ok {
		s = make(chan struct{}, 1)
		l.slots[table] = s
	}
	return s
}

// Acquire implements Locker
func (l *Local) Acquire(ctx context.Context, table string) (Lease, error) {
	s := l.slot(table)
	select {
	case s <- struct{}{}:
		return &localLease{slot: s}, nil
	case <-ctx.Done():
		return nil, errors.NewCancellationError(fmt.Sprintf("gave up waiting for lock on table %s", table), ctx.Err()).
			WithContext("table", table)
	}
}

type localLease struct {
	slot chan struct{}
	once sync.Once
}

func (l *localLease) Release() error {
	l.once.Do(func() { <-l.slot })
	return nil
}

// Chain acquires every locker in order and releases them in reverse
type Chain []Locker

// Acquire implements Locker
func (c Chain) Acquire(ctx context.Context, table string) (Lease, error) {
	held := make(chainLease, 0, len(c))
	for _, locker := range c {
		lease, err := locker.Acquire(ctx, table)
		if err != nil {
			held.Release()
			return nil, err
		}
		held = append(held, lease)
	}
	return held, nil
}

type chainLease []Lease

func (c chainLease) Release() error {
	var first error
	for i := len(c) - 1; i >= 0; i-- {
		if err := c[i].Release(); err != nil && first == nil {
			first = err
		}
	}
	return first
}

func busyError(table string) *errors.AppError {
	return errors.NewRecoverableError(errors.ErrorTypeTimeout,
		fmt.Sprintf("table %s is locked by another snapshot or restore", table), nil).
		WithContext("table", table)
}
