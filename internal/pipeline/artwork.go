package pipeline

import (
	"context"
	"fmt"
	"sync/atomic"

	"golang.org/x/sync/errgroup"

	"github.com/veranemoloko/retro-installer/internal/artwork"
	"github.com/veranemoloko/retro-installer/internal/metrics"
	"github.com/veranemoloko/retro-installer/internal/storage"
)

const artworkParallelism = 2

// FetchArtwork stores the first asset of every category for the best search
// hit of title. A missing category is skipped; it returns how many assets
// were written.
func FetchArtwork(ctx context.Context, provider ArtworkProvider, title string, layout *storage.GameLayout) (int, error) {
	games, err := provider.Search(ctx, title)
	if err != nil {
		return 0, fmt.Errorf("search artwork: %w", err)
	}
	if len(games) == 0 {
		return 0, nil
	}
	gameID := games[0].ID

	var fetched atomic.Int32
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(artworkParallelism)

	for _, entry := range artwork.Categories {
		g.Go(func() error {
			if fetchCategory(gctx, provider, gameID, entry.Category, layout.GraphicsPath(entry.File)) {
				fetched.Add(1)
				metrics.ArtworkFetched.WithLabelValues(string(entry.Category)).Inc()
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return int(fetched.Load()), err
	}
	return int(fetched.Load()), nil
}

// fetchCategory stores the first asset of one category. Any failure, including
// a panicking provider, only skips that category.
func fetchCategory(ctx context.Context, provider ArtworkProvider, gameID int64, category artwork.Category, dest string) (ok bool) {
	defer func() {
		if r := recover(); r != nil {
			ok = false
		}
	}()

	assets, err := provider.Assets(ctx, gameID, category)
	if err != nil || len(assets) == 0 || assets[0].URL == "" {
		return false
	}
	return provider.Fetch(ctx, assets[0].URL, dest) == nil
}
