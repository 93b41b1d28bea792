package websocket

import (
	"context"
	"hash/fnv"
	"sync"
	"time"

	"Scoreboard/internal/utils"
)

// HubInterface is the fan-out surface the match sessions depend on.
type HubInterface interface {
	BroadcastToPlayers(userIDs []string, msg Frame)
	SendToPlayer(userID string, msg Frame) bool
	Online(userID string) bool
}

const shardCount = 32

type shard struct {
	mu      sync.RWMutex
	clients map[string]*Client // userID -> client
}

// Hub is the connection registry: one live Client per user id. The table is
// split into shards so registrations for different users never contend.
type Hub struct {
	shards    [shardCount]*shard
	queueSize int
	timeout   time.Duration

	// Hooks, assigned before the hub starts serving.
	OnConnect    func(userID string)
	OnDisconnect func(userID string)
	OnIncoming   func(userID string, raw []byte)

	quit      chan struct{}
	closeOnce sync.Once
}

func NewHub(queueSize int, heartbeatTimeout time.Duration) *Hub {
	h := &Hub{
		queueSize: queueSize,
		timeout:   heartbeatTimeout,
		quit:      make(chan struct{}),
	}
	for i := range h.shards {
		h.shards[i] = &shard{clients: make(map[string]*Client)}
	}
	return h
}

func (h *Hub) shardFor(userID string) *shard {
	f := fnv.New32a()
	_, _ = f.Write([]byte(userID))
	return h.shards[f.Sum32()%shardCount]
}

// NewClient builds a client bound to this hub with the configured queue size.
func (h *Hub) NewClient(userID string) *Client {
	return NewClient(userID, nil, h, h.queueSize)
}

// Register makes c the live connection of its user. A previous connection is
// closed; matches are not affected, OnConnect lets the sessions resync.
func (h *Hub) Register(c *Client) {
	s := h.shardFor(c.UserID)
	s.mu.Lock()
	prev := s.clients[c.UserID]
	s.clients[c.UserID] = c
	s.mu.Unlock()

	if prev != nil && prev != c {
		prev.Close()
		utils.Log.Info("connection replaced", "user", c.UserID)
	} else {
		utils.Log.Info("connection registered", "user", c.UserID)
	}
	if h.OnConnect != nil {
		h.OnConnect(c.UserID)
	}
}

// Unregister removes c if it is still the live connection of its user. A
// superseded client is only closed.
func (h *Hub) Unregister(c *Client) {
	s := h.shardFor(c.UserID)
	s.mu.Lock()
	current := s.clients[c.UserID] == c
	if current {
		delete(s.clients, c.UserID)
	}
	s.mu.Unlock()

	c.Close()
	if !current {
		return
	}
	utils.Log.Info("connection removed", "user", c.UserID)
	if h.OnDisconnect != nil {
		h.OnDisconnect(c.UserID)
	}
}

// Remove drops whatever connection userID has and reports whether there was
// one.
func (h *Hub) Remove(userID string) bool {
	c, ok := h.Lookup(userID)
	if ok {
		h.Unregister(c)
	}
	return ok
}

func (h *Hub) Lookup(userID string) (*Client, bool) {
	s := h.shardFor(userID)
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.clients[userID]
	return c, ok
}

func (h *Hub) Online(userID string) bool {
	_, ok := h.Lookup(userID)
	return ok
}

// Touch records a heartbeat for userID.
func (h *Hub) Touch(userID string) {
	if c, ok := h.Lookup(userID); ok {
		c.touch()
	}
}

func (h *Hub) Count() int {
	n := 0
	for _, s := range h.shards {
		s.mu.RLock()
		n += len(s.clients)
		s.mu.RUnlock()
	}
	return n
}

func (h *Hub) SendToPlayer(userID string, msg Frame) bool {
	c, ok := h.Lookup(userID)
	if !ok {
		return false
	}
	return c.Send(msg)
}

// BroadcastToPlayers enqueues msg on every listed user that is online.
// Delivery is best effort.
func (h *Hub) BroadcastToPlayers(userIDs []string, msg Frame) {
	for _, id := range userIDs {
		h.SendToPlayer(id, msg)
	}
}

func (h *Hub) incoming(c *Client, raw []byte) {
	if h.OnIncoming != nil {
		h.OnIncoming(c.UserID, raw)
	}
}

// Run evicts connections whose last heartbeat is older than the timeout
// until ctx is done or the hub is closed.
func (h *Hub) Run(ctx context.Context) {
	utils.Log.Info("hub started", "heartbeatTimeout", h.timeout)
	if h.timeout <= 0 {
		<-ctx.Done()
		return
	}
	ticker := time.NewTicker(h.timeout / 3)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-h.quit:
			return
		case now := <-ticker.C:
			h.sweep(now)
		}
	}
}

func (h *Hub) sweep(now time.Time) {
	var stale []*Client
	for _, s := range h.shards {
		s.mu.RLock()
		for _, c := range s.clients {
			if now.Sub(c.LastHeartbeat()) > h.timeout {
				stale = append(stale, c)
			}
		}
		s.mu.RUnlock()
	}
	for _, c := range stale {
		utils.Log.Warn("heartbeat timeout", "user", c.UserID)
		h.Unregister(c)
	}
}

// Close stops the sweeper and closes every connection without firing
// OnDisconnect.
func (h *Hub) Close() {
	h.closeOnce.Do(func() {
		close(h.quit)
		for _, s := range h.shards {
			s.mu.Lock()
			for id, c := range s.clients {
				c.Close()
				delete(s.clients, id)
			}
			s.mu.Unlock()
		}
	})
}
