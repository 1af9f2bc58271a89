package artwork

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Category is a SteamGridDB asset family.
type Category string

const (
	CategoryGrids  Category = "grids"
	CategoryHeroes Category = "heroes"
	CategoryLogos  Category = "logos"
	CategoryIcons  Category = "icons"
)

// Categories lists the asset families fetched for every game, paired with
// the file they are stored as under graphics/.
var Categories = []struct {
	Category Category
	File     string
}{
	{CategoryGrids, "grid.png"},
	{CategoryHeroes, "hero.png"},
	{CategoryLogos, "logo.png"},
	{CategoryIcons, "icon.png"},
}

// Game is a SteamGridDB search hit.
type Game struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

// Asset is one image of a category.
type Asset struct {
	ID  int64  `json:"id"`
	URL string `json:"url"`
}

// Options configures a Client.
type Options struct {
	APIKey  string
	BaseURL string
	MaxSize int
	Timeout time.Duration
}

// Client talks to the SteamGridDB API.
type Client struct {
	opts       Options
	httpClient *http.Client
	logger     *slog.Logger
}

// NewClient creates a Client. Without an API key it is disabled.
func NewClient(opts Options, logger *slog.Logger) *Client {
	if opts.Timeout <= 0 {
		opts.Timeout = 30 * time.Second
	}
	if opts.MaxSize <= 0 {
		opts.MaxSize = 1920
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		opts:       opts,
		httpClient: &http.Client{Timeout: opts.Timeout},
		logger:     logger,
	}
}

// Enabled reports whether an API key is configured.
func (c *Client) Enabled() bool {
	return c.opts.APIKey != ""
}

type envelope[T any] struct {
	Success bool `json:"success"`
	Data    []T  `json:"data"`
}

// Search finds games by title.
func (c *Client) Search(ctx context.Context, title string) ([]Game, error) {
	var out envelope[Game]
	if err := c.getJSON(ctx, "/search/autocomplete/"+url.PathEscape(title), &out); err != nil {
		return nil, err
	}
	return out.Data, nil
}

// Assets lists the images of one category for a game.
func (c *Client) Assets(ctx context.Context, gameID int64, category Category) ([]Asset, error) {
	var out envelope[Asset]
	if err := c.getJSON(ctx, fmt.Sprintf("/%s/game/%d", category, gameID), &out); err != nil {
		return nil, err
	}
	return out.Data, nil
}

func (c *Client) getJSON(ctx context.Context, path string, dst any) error {
	if !c.Enabled() {
		return nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, strings.TrimRight(c.opts.BaseURL, "/")+path, nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.opts.APIKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("steamgriddb %s: %w", path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("steamgriddb %s: bad status: %s", path, resp.Status)
	}
	if err := json.NewDecoder(resp.Body).Decode(dst); err != nil {
		return fmt.Errorf("decode steamgriddb response: %w", err)
	}
	return nil
}
