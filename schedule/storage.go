// Package schedule hosts the multi-backend scaling layer: the room
// registry, the room-creation scheduler and the websocket entry proxy.
package schedule

import (
	"errors"
	"sync"

	"github.com/go-redis/redis"
)

type RegistryBackendType int

const (
	RegistryBackendMem RegistryBackendType = iota
	RegistryBackendRedis
)

// ReadOnlyRegistry is the lookup view of the room registry, mapping a
// room id to the backend host that owns it.
type ReadOnlyRegistry interface {
	BackendType() RegistryBackendType
	Get(string) (string, error)
}

// Registry is the full room registry.
type Registry interface {
	BackendType() RegistryBackendType
	Get(string) (string, error)
	Set(string, string) error
	Del(string) error
}

type memRegistry struct {
	m     map[string]string
	mutex *sync.RWMutex
}

func (b *memRegistry) Get(k string) (string, error) {
	b.mutex.RLock()
	v := b.m[k]
	b.mutex.RUnlock()
	return v, nil
}

func (b *memRegistry) Set(k string, v string) error {
	b.mutex.Lock()
	b.m[k] = v
	b.mutex.Unlock()
	return nil
}

func (b *memRegistry) Del(k string) error {
	b.mutex.Lock()
	delete(b.m, k)
	b.mutex.Unlock()
	return nil
}

func (b *memRegistry) BackendType() RegistryBackendType {
	return RegistryBackendMem
}

const registryKeyPrefix = "auxroom:room:"

type redisRegistry struct {
	client *redis.Client
}

func (b *redisRegistry) Get(k string) (string, error) {
	v, err := b.client.Get(registryKeyPrefix + k).Result()
	if err == redis.Nil {
		// unknown room, not an error
		return "", nil
	}
	return v, err
}

func (b *redisRegistry) Set(k string, v string) error {
	return b.client.Set(registryKeyPrefix+k, v, 0).Err()
}

func (b *redisRegistry) Del(k string) error {
	return b.client.Del(registryKeyPrefix + k).Err()
}

func (b *redisRegistry) BackendType() RegistryBackendType {
	return RegistryBackendRedis
}

// NewMemRegistry creates a process-local registry, suitable for a
// single-scheduler deployment and for tests.
func NewMemRegistry() Registry {
	return &memRegistry{
		m:     make(map[string]string),
		mutex: &sync.RWMutex{},
	}
}

// NewRedisRegistry creates a registry shared between the scheduler and
// the reverse proxies through redis.
func NewRedisRegistry(client *redis.Client) (Registry, error) {
	if client == nil {
		return nil, errors.New("nil redis client")
	}
	return &redisRegistry{client: client}, nil
}
