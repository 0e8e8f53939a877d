package node

import (
	"github.com/trinnode/Sentinel/api"
	"github.com/trinnode/Sentinel/shared/event"
)

// standaloneFabric satisfies the consensus service's fabric dependency
// when the peer fabric is disabled. It never has peers, so consensus
// polls short-circuit to the local verdict.
type standaloneFabric struct {
	feed event.Feed[*api.Envelope]
}

func (f *standaloneFabric) Broadcast(_ *api.Envelope) int { return 0 }

func (f *standaloneFabric) MessageFeed() *event.Feed[*api.Envelope] { return &f.feed }

func (f *standaloneFabric) PeerCount() int { return 0 }

func (f *standaloneFabric) ConnectedPeers() []string { return nil }
