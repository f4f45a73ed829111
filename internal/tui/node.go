package tui

import (
	"context"

	"github.com/grindlemire/graft"
)

const (
	// FeedNodeID is the unique identifier for the progress feed Graft node.
	FeedNodeID graft.ID = "ui.progress_feed"
	// DisplayNodeID is the unique identifier for the progress display Graft node.
	DisplayNodeID graft.ID = "ui.progress_display"
)

func init() {
	graft.Register(graft.Node[*Feed]{
		ID:        FeedNodeID,
		Cacheable: true,
		Run: func(_ context.Context) (*Feed, error) {
			return NewFeed(), nil
		},
	})

	graft.Register(graft.Node[*Display]{
		ID:        DisplayNodeID,
		Cacheable: true,
		DependsOn: []graft.ID{FeedNodeID},
		Run: func(ctx context.Context) (*Display, error) {
			feed, err := graft.Dep[*Feed](ctx)
			if err != nil {
				return nil, err
			}
			return NewDisplay(feed), nil
		},
	})
}
