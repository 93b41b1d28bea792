package websocket

import "sync"

// outbox is the bounded outbound queue of one connection. At most limit
// non-critical frames are held; on overflow the oldest non-critical frame is
// replaced by a single state_sync marker so the client knows its delta stream
// has a gap.
type outbox struct {
	mu          sync.Mutex
	frames      []Frame
	limit       int
	queued      int // non-critical frames currently held
	syncPending bool
	closed      bool
	dropped     int
	notify      chan struct{}
}

func newOutbox(limit int) *outbox {
	if limit <= 0 {
		limit = 1
	}
	return &outbox{
		frames: make([]Frame, 0, limit),
		limit:  limit,
		notify: make(chan struct{}, 1),
	}
}

func (o *outbox) push(f Frame) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.closed {
		return false
	}
	if !f.Critical && o.queued >= o.limit {
		o.dropOldest()
	}
	o.frames = append(o.frames, f)
	if !f.Critical {
		o.queued++
	}
	o.signal()
	return true
}

func (o *outbox) dropOldest() {
	for i, f := range o.frames {
		if f.Critical {
			continue
		}
		o.dropped++
		o.queued--
		if !o.syncPending {
			o.frames[i] = overflowMarker()
			o.frames[i].MatchID = f.MatchID
			o.syncPending = true
			return
		}
		o.frames = append(o.frames[:i], o.frames[i+1:]...)
		return
	}
}

// drain removes and returns every queued frame.
func (o *outbox) drain() []Frame {
	o.mu.Lock()
	defer o.mu.Unlock()
	if len(o.frames) == 0 {
		return nil
	}
	out := o.frames
	o.frames = make([]Frame, 0, o.limit)
	o.queued = 0
	o.syncPending = false
	return out
}

func (o *outbox) signal() {
	select {
	case o.notify <- struct{}{}:
	default:
	}
}

func (o *outbox) close() {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.closed {
		return
	}
	o.closed = true
	o.frames = nil
	o.queued = 0
	close(o.notify)
}

func (o *outbox) len() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return len(o.frames)
}
