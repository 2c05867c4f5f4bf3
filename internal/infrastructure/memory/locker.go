package memory

import (
	"context"
	"slices"
	"sync"

	"github.com/jhoicas/nfe-conciliacao/internal/application/reconciliation"
)

var _ reconciliation.LotLocker = (*LotLocker)(nil)

// LotLocker exclusión mutua por clave de lote dentro del proceso.
type LotLocker struct {
	mu    sync.Mutex
	slots map[string]*slot
}

type slot struct {
	ch   chan struct{}
	refs int
}

// NewLotLocker crea el locker.
func NewLotLocker() *LotLocker { return &LotLocker{slots: map[string]*slot{}} }

// Lock adquiere las claves en orden lexicográfico (sin duplicados) para evitar interbloqueos.
func (l *LotLocker) Lock(ctx context.Context, keys []string) (func(), error) {
	keys = canonicalKeys(keys)
	held := make([]string, 0, len(keys))
	release := func() {
		for i := len(held) - 1; i >= 0; i-- {
			l.release(held[i])
		}
	}
	for _, k := range keys {
		s := l.acquireSlot(k)
		select {
		case s.ch <- struct{}{}:
			held = append(held, k)
		case <-ctx.Done():
			l.dropRef(k)
			release()
			return nil, ctx.Err()
		}
	}
	var once sync.Once
	return func() { once.Do(release) }, nil
}

func (l *LotLocker) acquireSlot(key string) *slot {
	l.mu.Lock()
	defer l.mu.Unlock()
	s, ok := l.slots[key]
	if !ok {
		s = &slot{ch: make(chan struct{}, 1)}
		l.slots[key] = s
	}
	s.refs++
	return s
}

func (l *LotLocker) release(key string) {
	l.mu.Lock()
	s := l.slots[key]
	l.mu.Unlock()
	<-s.ch
	l.dropRef(key)
}

func (l *LotLocker) dropRef(key string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	s := l.slots[key]
	s.refs--
	if s.refs == 0 {
		delete(l.slots, key)
	}
}

func canonicalKeys(keys []string) []string {
	out := slices.Clone(keys)
	slices.Sort(out)
	return slices.Compact(out)
}
