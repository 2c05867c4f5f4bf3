package redis

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/bsm/redislock"
	goredis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/jhoicas/nfe-conciliacao/internal/application/reconciliation"
)

var _ reconciliation.LotLocker = (*LotLocker)(nil)

const (
	lockPrefix   = "nfe:lot:"
	retryBackoff = 50 * time.Millisecond
)

// LotLocker exclusión mutua por lote entre procesos. Cada clave es un lock redislock con TTL
// que se renueva mientras se mantiene.
type LotLocker struct {
	client *redislock.Client
	ttl    time.Duration
	log    zerolog.Logger
}

// NewLotLocker construye el locker sobre un cliente go-redis.
func NewLotLocker(rdb goredis.UniversalClient, ttl time.Duration, log zerolog.Logger) *LotLocker {
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	return &LotLocker{client: redislock.New(rdb), ttl: ttl, log: log}
}

// LockKey nombre del lock en Redis para una clave de lote.
func LockKey(key string) string { return lockPrefix + key }

// Lock obtiene las claves en orden lexicográfico. Sin deadline en ctx, cada clave espera
// como máximo el TTL antes de fallar con redislock.ErrNotObtained.
func (l *LotLocker) Lock(ctx context.Context, keys []string) (func(), error) {
	keys = slices.Compact(slices.Sorted(slices.Values(keys)))
	held := make([]*redislock.Lock, 0, len(keys))
	releaseAll := func() {
		for i := len(held) - 1; i >= 0; i-- {
			rctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			if err := held[i].Release(rctx); err != nil && !errors.Is(err, redislock.ErrLockNotHeld) {
				l.log.Warn().Err(err).Str("lock", held[i].Key()).Msg("no se pudo liberar lock de lote")
			}
			cancel()
		}
	}

	opts := &redislock.Options{RetryStrategy: redislock.LinearBackoff(retryBackoff)}
	for _, k := range keys {
		lock, err := l.client.Obtain(ctx, LockKey(k), l.ttl, opts)
		if err != nil {
			releaseAll()
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			return nil, fmt.Errorf("lock lote %s: %w", k, err)
		}
		held = append(held, lock)
	}

	stop := make(chan struct{})
	done := make(chan struct{})
	go l.refresh(held, stop, done)

	var once sync.Once
	return func() {
		once.Do(func() {
			close(stop)
			<-done
			releaseAll()
		})
	}, nil
}

// refresh renueva el TTL de los locks a mitad de periodo hasta que se cierre stop.
func (l *LotLocker) refresh(held []*redislock.Lock, stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)
	ticker := time.NewTicker(l.ttl / 2)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			for _, lock := range held {
				ctx, cancel := context.WithTimeout(context.Background(), l.ttl/2)
				if err := lock.Refresh(ctx, l.ttl, nil); err != nil {
					l.log.Warn().Err(err).Str("lock", lock.Key()).Msg("no se pudo renovar lock de lote")
				}
				cancel()
			}
		}
	}
}
