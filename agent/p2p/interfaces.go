// Package p2p maintains the websocket fabric between agents watching
// the same infrastructure. Peers exchange framed JSON envelopes; the
// consensus layer consumes them through the feed exposed here.
package p2p

import (
	"github.com/trinnode/Sentinel/api"
	"github.com/trinnode/Sentinel/shared/event"
)

// Broadcaster sends an envelope to every connected peer, best effort.
// It reports how many peers the message was handed to; peers with a
// full outbound buffer are skipped, never waited on.
type Broadcaster interface {
	Broadcast(env *api.Envelope) int
}

// MessageProvider exposes the feed of inbound peer messages.
type MessageProvider interface {
	MessageFeed() *event.Feed[*api.Envelope]
}

// PeerManager reports fabric membership.
type PeerManager interface {
	PeerCount() int
	ConnectedPeers() []string
}

// P2P composes the full peer fabric surface consumed by the consensus
// service.
type P2P interface {
	Broadcaster
	MessageProvider
	PeerManager
}
