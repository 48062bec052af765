// Package transport defines the Transport collaborator from spec.md section
// 6: the network abstraction the core depends on to gossip transactions and
// blocks and to sync missing history. Concrete adapters live outside the
// core (see internal/p2p).
package transport

import "github.com/sa2shinakamo2/bt2c-sub002/core/types"

// MessageType discriminates the four wire messages spec.md section 6 names.
type MessageType string

const (
	MsgNewTx          MessageType = "NEW_TX"
	MsgNewBlock       MessageType = "NEW_BLOCK"
	MsgRequestBlocks  MessageType = "REQUEST_BLOCKS"
	MsgBlocksResponse MessageType = "BLOCKS_RESPONSE"
)

// Message is one envelope exchanged between peers. Exactly one payload
// field is populated, matching Type.
type Message struct {
	Type MessageType `json:"type"`

	Tx     *types.Transaction `json:"tx,omitempty"`
	Block  *types.Block       `json:"block,omitempty"`
	From   uint64             `json:"from,omitempty"`
	To     uint64             `json:"to,omitempty"`
	Blocks []*types.Block     `json:"blocks,omitempty"`
}

// PeerID identifies a remote node for direct (non-broadcast) messages.
type PeerID string

// Handler processes an inbound message from a peer. Implementations run on
// the transport's receive goroutine and must not block indefinitely.
type Handler func(from PeerID, msg Message) error

// Transport is the network collaborator. Implementations are responsible
// for their own reconnection and backpressure policy.
type Transport interface {
	// Broadcast sends msg to every connected peer.
	Broadcast(msg Message) error

	// SendTo sends msg to a single peer.
	SendTo(peer PeerID, msg Message) error

	// Subscribe registers h to be called for every inbound message.
	// Implementations support at most one active subscriber.
	Subscribe(h Handler)

	// Peers lists the currently connected peer IDs.
	Peers() []PeerID

	// Close shuts down all connections.
	Close() error
}
