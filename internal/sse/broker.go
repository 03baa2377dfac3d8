// Package sse implements a Server-Sent Events broker that pushes board
// changes to open board pages.
package sse

import (
	"fmt"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/goccy/go-json"
)

// Event types sent to clients.
const (
	EventStoryCreated    = "story.created"
	EventStoryUpdated    = "story.updated"
	EventStoryDeleted    = "story.deleted"
	EventStoryMoved      = "story.moved"
	EventIndexUpdated    = "index.updated"
	EventSettingsUpdated = "settings.updated"
	EventBoardUpdated    = "board.updated"
)

// Event represents an SSE event to broadcast.
type Event struct {
	Type string `json:"type"`
	Data any    `json:"data"`
}

type storyEventReq struct {
	kind string
	path string
}

// Broker manages SSE client connections and broadcasts events.
//
// Concurrency model: a single internal event loop (goroutine) owns mutable
// state (clients, board.updated throttle). Public methods communicate with
// this loop through channels, so no mutexes are required.
//
// board.updated is throttled to at most one event per interval. A request
// arriving inside the interval is deferred to its end rather than dropped,
// so clients always see the last change.
type Broker struct {
	boardMin time.Duration

	subscribeCh   chan chan []byte
	unsubscribeCh chan chan []byte
	publishCh     chan Event
	storyEventCh  chan storyEventReq
	boardCh       chan struct{}
	countReqCh    chan chan int

	stopCh  chan struct{}
	stopped chan struct{}
	closed  atomic.Bool
}

// NewBroker creates a new SSE broker with the given board.updated throttle
// interval.
func NewBroker(boardThrottle time.Duration) *Broker {
	if boardThrottle <= 0 {
		boardThrottle = 2 * time.Second
	}

	b := &Broker{
		boardMin:      boardThrottle,
		subscribeCh:   make(chan chan []byte),
		unsubscribeCh: make(chan chan []byte),
		publishCh:     make(chan Event, 256),
		storyEventCh:  make(chan storyEventReq, 256),
		boardCh:       make(chan struct{}, 16),
		countReqCh:    make(chan chan int),
		stopCh:        make(chan struct{}),
		stopped:       make(chan struct{}),
	}

	go b.run()
	return b
}

func (b *Broker) run() {
	defer close(b.stopped)

	clients := make(map[chan []byte]struct{})
	var (
		lastBoard time.Time
		pending   *time.Timer
		pendingC  <-chan time.Time
	)

	broadcast := func(event Event) {
		payload, err := json.Marshal(event.Data)
		if err != nil {
			return
		}
		raw := []byte(fmt.Sprintf("event: %s\ndata: %s\n\n", event.Type, payload))

		for ch := range clients {
			select {
			case ch <- raw:
			default:
				// Client buffer full; skip to avoid blocking broker loop.
			}
		}
	}

	boardUpdated := func() {
		if pending != nil {
			return
		}
		elapsed := time.Since(lastBoard)
		if elapsed >= b.boardMin {
			lastBoard = time.Now()
			broadcast(Event{Type: EventBoardUpdated, Data: map[string]string{}})
			return
		}
		pending = time.NewTimer(b.boardMin - elapsed)
		pendingC = pending.C
	}

	for {
		select {
		case <-b.stopCh:
			if pending != nil {
				pending.Stop()
			}
			for ch := range clients {
				close(ch)
			}
			return

		case ch := <-b.subscribeCh:
			clients[ch] = struct{}{}

		case ch := <-b.unsubscribeCh:
			if _, ok := clients[ch]; ok {
				delete(clients, ch)
				close(ch)
			}

		case event := <-b.publishCh:
			broadcast(event)

		case req := <-b.storyEventCh:
			switch req.kind {
			case "created":
				broadcast(Event{Type: EventStoryCreated, Data: map[string]string{"path": req.path}})
			case "updated":
				broadcast(Event{Type: EventStoryUpdated, Data: map[string]string{"path": req.path}})
			case "deleted":
				broadcast(Event{Type: EventStoryDeleted, Data: map[string]string{"path": req.path}})
			case "index":
				broadcast(Event{Type: EventIndexUpdated, Data: map[string]string{"record": req.path}})
			case "settings":
				broadcast(Event{Type: EventSettingsUpdated, Data: map[string]string{"path": req.path}})
			default:
				continue
			}
			boardUpdated()

		case <-b.boardCh:
			boardUpdated()

		case <-pendingC:
			pending, pendingC = nil, nil
			lastBoard = time.Now()
			broadcast(Event{Type: EventBoardUpdated, Data: map[string]string{}})

		case resp := <-b.countReqCh:
			resp <- len(clients)
		}
	}
}

// Close gracefully stops broker loop and closes all client channels.
func (b *Broker) Close() {
	if b.closed.CompareAndSwap(false, true) {
		close(b.stopCh)
	}
	<-b.stopped
}

// Subscribe adds a new client and returns its channel.
func (b *Broker) Subscribe() chan []byte {
	ch := make(chan []byte, 64)
	if b.closed.Load() {
		close(ch)
		return ch
	}

	select {
	case b.subscribeCh <- ch:
	case <-b.stopped:
		close(ch)
	}

	return ch
}

// Unsubscribe removes a client and closes its channel.
func (b *Broker) Unsubscribe(ch chan []byte) {
	if b.closed.Load() {
		return
	}
	select {
	case b.unsubscribeCh <- ch:
	case <-b.stopped:
	}
}

// ClientCount returns the number of connected clients.
func (b *Broker) ClientCount() int {
	if b.closed.Load() {
		return 0
	}

	resp := make(chan int, 1)
	select {
	case b.countReqCh <- resp:
	case <-b.stopped:
		return 0
	}

	select {
	case n := <-resp:
		return n
	case <-b.stopped:
		return 0
	}
}

// Publish sends an event to all connected clients.
func (b *Broker) Publish(event Event) {
	if b.closed.Load() {
		return
	}
	select {
	case b.publishCh <- event:
	case <-b.stopped:
	}
}

// PublishStoryEvent publishes a watcher change (kind is created, updated,
// deleted, index or settings) followed by a throttled board.updated.
// Unknown kinds are ignored.
func (b *Broker) PublishStoryEvent(kind, path string) {
	if b.closed.Load() {
		return
	}
	select {
	case b.storyEventCh <- storyEventReq{kind: kind, path: path}:
	case <-b.stopped:
	}
}

// BoardUpdated requests a throttled board.updated event.
func (b *Broker) BoardUpdated() {
	if b.closed.Load() {
		return
	}
	select {
	case b.boardCh <- struct{}{}:
	case <-b.stopped:
	}
}

// ServeHTTP is the SSE endpoint handler (GET /api/events).
func (b *Broker) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	ch := b.Subscribe()
	defer b.Unsubscribe(ch)

	ctx := r.Context()
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			_, _ = w.Write(msg)
			flusher.Flush()
		}
	}
}
