// Author: momentics <momentics@gmail.com>
// SPDX-License-Identifier: MIT

package pool

import "sync"

// ObjectPool is a generic object pool.
type ObjectPool[T any] interface {
    Get() T
    Put(T)
}

// SyncPool wraps sync.Pool for generic usage.
type SyncPool[T any] struct {
    pool  *sync.Pool
    reset func(T) T
}

// NewSyncPool creates a new SyncPool with a creator function. reset, when
// non-nil, is applied to objects on Put.
func NewSyncPool[T any](creator func() T, reset func(T) T) *SyncPool[T] {
    return &SyncPool[T]{
        pool:  &sync.Pool{New: func() any { return creator() }},
        reset: reset,
    }
}

func (sp *SyncPool[T]) Get() T {
    return sp.pool.Get().(T)
}

func (sp *SyncPool[T]) Put(obj T) {
    if sp.reset != nil {
        obj = sp.reset(obj)
    }
    sp.pool.Put(obj)
}
