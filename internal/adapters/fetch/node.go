package fetch

import (
	"context"
	"net/http"

	"github.com/grindlemire/graft"
	"go.trai.ch/kiln/internal/adapters/logger"
	"go.trai.ch/kiln/internal/core/ports"
)

const (
	// DownloaderNodeID is the unique identifier for the download cache Graft node.
	DownloaderNodeID graft.ID = "adapter.fetch.downloader"
	// ExtractorNodeID is the unique identifier for the archive extractor Graft node.
	ExtractorNodeID graft.ID = "adapter.fetch.extractor"
)

func init() {
	graft.Register(graft.Node[ports.Downloader]{
		ID:        DownloaderNodeID,
		Cacheable: true,
		DependsOn: []graft.ID{logger.NodeID},
		Run: func(ctx context.Context) (ports.Downloader, error) {
			log, err := graft.Dep[ports.Logger](ctx)
			if err != nil {
				return nil, err
			}
			return NewCache(DefaultDir(), &http.Client{Timeout: DefaultTimeout}, log), nil
		},
	})

	graft.Register(graft.Node[ports.Extractor]{
		ID:        ExtractorNodeID,
		Cacheable: true,
		Run: func(_ context.Context) (ports.Extractor, error) {
			return NewExtractor(), nil
		},
	})
}
