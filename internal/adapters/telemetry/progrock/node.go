package progrock

import (
	"context"

	"github.com/grindlemire/graft"
	"go.trai.ch/kiln/internal/core/ports"
	"go.trai.ch/kiln/internal/tui"
)

const (
	// NodeID is the unique identifier for the telemetry adapter node.
	NodeID graft.ID = "adapter.telemetry"
)

func init() {
	graft.Register(graft.Node[ports.Telemetry]{
		ID:        NodeID,
		Cacheable: true,
		DependsOn: []graft.ID{tui.FeedNodeID},
		Run: func(ctx context.Context) (ports.Telemetry, error) {
			feed, err := graft.Dep[*tui.Feed](ctx)
			if err != nil {
				return nil, err
			}
			return NewRecorder(feed), nil
		},
	})
}
