package keyValue

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

type Value struct {
	value   string
	expires time.Time
}

// Store keeps short-lived strings either in process memory or in redis.
type Store struct {
	mutex       sync.RWMutex
	hashmap     map[string]Value
	sugar       *zap.SugaredLogger
	redisClient *redis.Client
}

// NewLocal returns a store backed by a map. Run must be started to evict
// expired keys.
func NewLocal(sugar *zap.SugaredLogger) *Store {
	return &Store{hashmap: make(map[string]Value), sugar: sugar}
}

func NewRedis(sugar *zap.SugaredLogger, redisClient *redis.Client) *Store {
	return &Store{sugar: sugar, redisClient: redisClient}
}

func (s *Store) selfContained() bool {
	return s.redisClient == nil
}

// Run evicts expired local keys every interval until ctx is done. It
// returns immediately for redis backed stores.
func (s *Store) Run(ctx context.Context, interval time.Duration) {
	if !s.selfContained() {
		return
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			s.evictExpired(now)
		}
	}
}

func (s *Store) evictExpired(now time.Time) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	for key, v := range s.hashmap {
		if v.expires.Before(now) {
			delete(s.hashmap, key)
		}
	}
}

func (s *Store) Get(ctx context.Context, key string) (string, error) {
	debugText := fmt.Sprintf("Getting value of key [%s]", key)
	if s.selfContained() {
		s.sugar.Debugf("%s from hashmap", debugText)

		s.mutex.RLock()
		defer s.mutex.RUnlock()

		v, ok := s.hashmap[key]
		if !ok || v.expires.Before(time.Now()) {
			return "", nil
		}

		return v.value, nil
	}

	s.sugar.Debugf("%s from redis", debugText)

	value, err := s.redisClient.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return "", nil
	} else if err != nil {
		return "", err
	}

	return value, err
}

func (s *Store) Set(ctx context.Context, key string, value string, expires time.Duration) error {
	debugText := fmt.Sprintf("Setting value of key [%s] to [%s]", key, value)
	if s.selfContained() {
		s.sugar.Debugf("%s in hashmap", debugText)

		s.mutex.Lock()
		defer s.mutex.Unlock()

		s.hashmap[key] = Value{value, time.Now().Add(expires)}

		return nil
	}

	s.sugar.Debugf("%s in redis", debugText)
	_, err := s.redisClient.Set(ctx, key, value, expires).Result()
	return err
}

func (s *Store) Delete(ctx context.Context, key string) error {
	if s.selfContained() {
		s.sugar.Debugf("Deleting key [%s] from hashmap", key)

		s.mutex.Lock()
		defer s.mutex.Unlock()

		delete(s.hashmap, key)
		return nil
	}

	s.sugar.Debugf("Deleting key [%s] from redis", key)
	return s.redisClient.Del(ctx, key).Err()
}
