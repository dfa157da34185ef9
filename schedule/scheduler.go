package schedule

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"log"
	"net/http"
	"net/http/httputil"
	"net/url"
	"sync"
	"time"

	hostpool "github.com/bitly/go-hostpool"
	"github.com/go-redis/redis"

	"github.com/auxroom/auxroom/room"
)

// configurable constants
const (
	AnnouncePeriod        = 30 * time.Second
	SchedulePubSubChannel = "auxroom:schedule"
)

// url schemes for our backends
var (
	BackendWSScheme, _   = url.Parse("ws://example.com:8080")
	BackendRESTScheme, _ = url.Parse("http://example.com:8080")
)

// Backend type for serialisation
type Backend string

// ServerLoad type for serialisation
type ServerLoad float64

// BackendAnnounce is published by every backend on the schedule channel
// so schedulers learn the backend set and the rooms each one owns.
type BackendAnnounce struct {
	Host  Backend    `json:"host"`
	Load  ServerLoad `json:"load"`
	Rooms []string   `json:"rooms"`
}

// Scheduler implements a RESTful API to create rooms, with the same API
// as implemented in the underlying backend servers. It delegates each
// creation to a backend and records the room in the room registry.
type Scheduler struct {
	store    Registry
	backends map[Backend]ServerLoad
	pool     hostpool.HostPool
	pubsub   *redis.PubSub
	mutex    *sync.RWMutex
}

// NewScheduler creates a runnable scheduler with the given registry,
// subscribed to backend announcements.
func NewScheduler(rclient *redis.Client, s Registry) *Scheduler {
	ps := rclient.Subscribe(SchedulePubSubChannel)
	return &Scheduler{
		store:    s,
		backends: make(map[Backend]ServerLoad),
		pool:     hostpool.New([]string{""}),
		pubsub:   ps,
		mutex:    &sync.RWMutex{},
	}
}

// rebuildPool recreates the backend pool from the current backend set,
// NOT thread-safe
func (sch *Scheduler) rebuildPool() {
	hosts := make([]string, 0, len(sch.backends))
	for h := range sch.backends {
		hosts = append(hosts, string(h))
	}
	sch.pool = hostpool.New(hosts) // just round-robin
}

// NextBackend returns a backend host for the next room creation.
func (sch *Scheduler) NextBackend() string {
	sch.mutex.RLock()
	h := sch.pool.Get().Host()
	sch.mutex.RUnlock()
	return h
}

// RunScheduler runs the scheduler daemon, consuming backend
// announcements and keeping the pool and registry current.
func (sch *Scheduler) RunScheduler() {
	ch := sch.pubsub.Channel()
	for m := range ch {
		var a BackendAnnounce
		if err := json.Unmarshal([]byte(m.Payload), &a); err != nil {
			log.Printf("dropping malformed announce %q", m.Payload)
			continue
		}
		sch.mutex.Lock()
		_, known := sch.backends[a.Host]
		sch.backends[a.Host] = a.Load
		if !known {
			sch.rebuildPool()
		}
		sch.mutex.Unlock()
		for _, rid := range a.Rooms {
			if err := sch.store.Set(rid, string(a.Host)); err != nil {
				log.Printf("registry update for room %s failed: %v", rid, err)
			}
		}
	}
}

// ProxyDirector returns a Director function for the reverseproxy
func (sch *Scheduler) ProxyDirector() func(*http.Request) {
	return func(req *http.Request) {
		req.URL.Scheme = BackendRESTScheme.Scheme
		req.URL.Host = sch.NextBackend()
		if _, ok := req.Header["User-Agent"]; !ok {
			req.Header.Set("User-Agent", "")
		}
	}
}

// RoomRegister returns a ModifyResponse function for the reverseproxy
func (sch *Scheduler) RoomRegister() func(*http.Response) error {
	return func(rsp *http.Response) error {
		if rsp.StatusCode == http.StatusOK {
			// register the room
			b, err := io.ReadAll(rsp.Body)
			if err != nil {
				return err
			}
			err = rsp.Body.Close()
			if err != nil {
				return err
			}
			var m room.RoomCreatedMsg
			if err := json.Unmarshal(b, &m); err != nil {
				return errors.New("Internal error during room creation")
			}
			if m.OK {
				if err := sch.store.Set(m.RoomID, rsp.Request.URL.Host); err != nil {
					return err
				}
			}
			// put the original content back
			rsp.Body = io.NopCloser(bytes.NewReader(b))
		}
		return nil
	}
}

// GetProxy returns the reverse proxy http.Handler
func (sch *Scheduler) GetProxy() *httputil.ReverseProxy {
	return &httputil.ReverseProxy{Director: sch.ProxyDirector(), ModifyResponse: sch.RoomRegister()}
}

// Announce publishes one BackendAnnounce on the schedule channel; the
// backends call this periodically with their own room list.
func Announce(rclient *redis.Client, a *BackendAnnounce) error {
	b, err := json.Marshal(a)
	if err != nil {
		return err
	}
	return rclient.Publish(SchedulePubSubChannel, string(b)).Err()
}
