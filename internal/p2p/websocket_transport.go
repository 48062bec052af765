// Package p2p implements core/transport.Transport over gorilla/websocket,
// grounded on the teacher's chain/node/p2p.go P2PNetwork: a listener
// accepting inbound websocket connections, an outbound dialer for
// bootstrap peers, and a broadcast loop writing JSON frames to every
// connected peer under a per-peer mutex.
package p2p

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/sa2shinakamo2/bt2c-sub002/core/transport"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// peer is one connected websocket remote.
type peer struct {
	id   transport.PeerID
	conn *websocket.Conn
	mu   sync.Mutex
}

func (p *peer) send(msg transport.Message) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.conn.WriteJSON(msg)
}

// backoffBase and backoffMaxAttempts implement spec.md section 5's
// propagation retry contract: base 2s * 2^attempt, max 3 attempts per peer.
const (
	backoffBase         = 2 * time.Second
	backoffMaxAttempts = 3
)

// WebsocketTransport implements core/transport.Transport.
type WebsocketTransport struct {
	mu      sync.Mutex
	peers   map[transport.PeerID]*peer
	handler transport.Handler

	server *http.Server
	ctx    context.Context
	cancel context.CancelFunc
}

// New returns a transport that will listen on listenAddr once Start is
// called.
func New() *WebsocketTransport {
	return &WebsocketTransport{
		peers: make(map[transport.PeerID]*peer),
	}
}

// Start begins accepting inbound connections on listenAddr and dials every
// address in bootstrapPeers.
func (t *WebsocketTransport) Start(listenAddr string, bootstrapPeers []string) error {
	t.ctx, t.cancel = context.WithCancel(context.Background())

	mux := http.NewServeMux()
	mux.HandleFunc("/p2p", t.handleIncoming)
	t.server = &http.Server{Addr: listenAddr, Handler: mux}

	go func() {
		_ = t.server.ListenAndServe()
	}()

	for _, addr := range bootstrapPeers {
		go t.dial(addr)
	}
	return nil
}

func (t *WebsocketTransport) handleIncoming(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	id := transport.PeerID(r.RemoteAddr)
	p := &peer{id: id, conn: conn}
	t.addPeer(p)
	go t.readLoop(p)
}

func (t *WebsocketTransport) dial(addr string) {
	conn, _, err := websocket.DefaultDialer.Dial(addr, nil)
	if err != nil {
		return
	}
	p := &peer{id: transport.PeerID(addr), conn: conn}
	t.addPeer(p)
	go t.readLoop(p)
}

func (t *WebsocketTransport) addPeer(p *peer) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.peers[p.id] = p
}

func (t *WebsocketTransport) removePeer(id transport.PeerID) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.peers, id)
}

func (t *WebsocketTransport) readLoop(p *peer) {
	defer func() {
		_ = p.conn.Close()
		t.removePeer(p.id)
	}()
	for {
		var msg transport.Message
		if err := p.conn.ReadJSON(&msg); err != nil {
			return
		}
		t.mu.Lock()
		h := t.handler
		t.mu.Unlock()
		if h != nil {
			_ = h(p.id, msg)
		}
	}
}

// Broadcast implements core/transport.Transport. Failed sends retry with
// exponential backoff per spec.md section 5, independently per peer, and
// never roll back local state on exhaustion.
func (t *WebsocketTransport) Broadcast(msg transport.Message) error {
	t.mu.Lock()
	peers := make([]*peer, 0, len(t.peers))
	for _, p := range t.peers {
		peers = append(peers, p)
	}
	t.mu.Unlock()

	for _, p := range peers {
		go t.sendWithRetry(p, msg)
	}
	return nil
}

// SendTo implements core/transport.Transport.
func (t *WebsocketTransport) SendTo(id transport.PeerID, msg transport.Message) error {
	t.mu.Lock()
	p, ok := t.peers[id]
	t.mu.Unlock()
	if !ok {
		return fmt.Errorf("p2p: no such peer %s", id)
	}
	return p.send(msg)
}

func (t *WebsocketTransport) sendWithRetry(p *peer, msg transport.Message) {
	for attempt := 0; attempt < backoffMaxAttempts; attempt++ {
		if err := p.send(msg); err == nil {
			return
		}
		delay := backoffBase * time.Duration(1<<attempt)
		select {
		case <-time.After(delay):
		case <-t.ctx.Done():
			return
		}
	}
}

// Subscribe implements core/transport.Transport.
func (t *WebsocketTransport) Subscribe(h transport.Handler) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.handler = h
}

// Peers implements core/transport.Transport.
func (t *WebsocketTransport) Peers() []transport.PeerID {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]transport.PeerID, 0, len(t.peers))
	for id := range t.peers {
		out = append(out, id)
	}
	return out
}

// Close implements core/transport.Transport.
func (t *WebsocketTransport) Close() error {
	if t.cancel != nil {
		t.cancel()
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	for id, p := range t.peers {
		_ = p.conn.Close()
		delete(t.peers, id)
	}
	if t.server != nil {
		return t.server.Close()
	}
	return nil
}

var _ transport.Transport = (*WebsocketTransport)(nil)
