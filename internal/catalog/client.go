package catalog

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/veranemoloko/retro-installer/internal/domain"
)

// tokenSlack is subtracted from the token lifetime so a token is never
// used right at its expiry.
const tokenSlack = 5 * time.Minute

// PlatformIDs maps console codes to IGDB platform ids.
var PlatformIDs = map[string]int{
	"NES":     18,
	"SNES":    19,
	"SFC":     19,
	"N64":     4,
	"GB":      33,
	"GBC":     22,
	"GBA":     24,
	"GC":      21,
	"WII":     5,
	"DS":      20,
	"3DS":     37,
	"SWITCH":  130,
	"PS1":     7,
	"PS2":     8,
	"PSP":     38,
	"GENESIS": 29,
	"SMS":     64,
	"GG":      35,
}

// Game is one catalog search result.
type Game struct {
	ID        int64  `json:"id"`
	Name      string `json:"name"`
	Platform  string `json:"platform"`
	Year      int    `json:"year,omitempty"`
	Publisher string `json:"publisher,omitempty"`
	CoverURL  string `json:"cover_url,omitempty"`
}

// Hint converts the result into a catalog hint for metadata.
func (g Game) Hint() *domain.CatalogHint {
	return &domain.CatalogHint{ID: g.ID, Name: g.Name, Publisher: g.Publisher, Year: g.Year}
}

// Options configures a Client.
type Options struct {
	ClientID     string
	ClientSecret string
	BaseURL      string
	TokenURL     string
	Timeout      time.Duration
}

// Client queries IGDB. Without credentials every lookup returns no result.
type Client struct {
	opts       Options
	cache      *Cache
	httpClient *http.Client
	logger     *slog.Logger

	mu          sync.Mutex
	token       string
	tokenExpiry time.Time
}

// NewClient creates a Client. cache may be nil.
func NewClient(opts Options, cache *Cache, logger *slog.Logger) *Client {
	if opts.Timeout <= 0 {
		opts.Timeout = 10 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		opts:       opts,
		cache:      cache,
		httpClient: &http.Client{Timeout: opts.Timeout},
		logger:     logger,
	}
}

// Enabled reports whether credentials are configured.
func (c *Client) Enabled() bool {
	return c.opts.ClientID != "" && c.opts.ClientSecret != ""
}

type igdbGame struct {
	ID                int64  `json:"id"`
	Name              string `json:"name"`
	FirstReleaseDate  int64  `json:"first_release_date"`
	InvolvedCompanies []struct {
		Company struct {
			Name string `json:"name"`
		} `json:"company"`
	} `json:"involved_companies"`
	Platforms []struct {
		Name string `json:"name"`
	} `json:"platforms"`
	Cover *struct {
		URL string `json:"url"`
	} `json:"cover"`
}

// Search looks games up by name, optionally restricted to a console.
func (c *Client) Search(ctx context.Context, query, console string) ([]Game, error) {
	if !c.Enabled() {
		return nil, nil
	}

	console = strings.ToUpper(console)
	cacheKey := "search:" + strings.ToLower(query) + ":" + console
	if console == "" {
		cacheKey += "all"
	}

	if c.cache != nil {
		var cached []Game
		ok, err := c.cache.Get(ctx, cacheKey, &cached)
		if err != nil {
			c.logger.Warn("catalog cache read failed", "error", err)
		} else if ok {
			return cached, nil
		}
	}

	token, err := c.accessToken(ctx)
	if err != nil {
		return nil, err
	}

	filter := ""
	if id, ok := PlatformIDs[console]; ok {
		filter = fmt.Sprintf(" & platforms = %d", id)
	}
	body := fmt.Sprintf(
		"fields name, first_release_date, involved_companies.company.name, platforms.name, cover.url; search \"%s\"; where category = 0%s; limit 50;",
		strings.ReplaceAll(query, `"`, `\"`), filter,
	)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, strings.TrimRight(c.opts.BaseURL, "/")+"/games", strings.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Client-ID", c.opts.ClientID)
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("igdb search: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("igdb search: bad status: %s", resp.Status)
	}

	var raw []igdbGame
	if err := json.NewDecoder(resp.Body).Decode(&raw); err != nil {
		return nil, fmt.Errorf("decode igdb response: %w", err)
	}

	games := make([]Game, 0, len(raw))
	for _, g := range raw {
		games = append(games, convertGame(g, console))
	}

	if c.cache != nil {
		if err := c.cache.Set(ctx, cacheKey, games); err != nil {
			c.logger.Warn("catalog cache write failed", "error", err)
		}
	}
	return games, nil
}

// Enrich picks the best catalog match for the task. An exact name match wins
// over the first search result. No match is not an error.
func (c *Client) Enrich(ctx context.Context, task *domain.Task) (*domain.CatalogHint, error) {
	if !c.Enabled() {
		return nil, nil
	}

	games, err := c.Search(ctx, task.SearchName(), task.ConsoleCode)
	if err != nil {
		return nil, err
	}
	if len(games) == 0 {
		return nil, nil
	}

	for _, g := range games {
		if strings.EqualFold(g.Name, task.SearchName()) {
			return g.Hint(), nil
		}
	}
	return games[0].Hint(), nil
}

func convertGame(g igdbGame, console string) Game {
	out := Game{ID: g.ID, Name: g.Name, Platform: console}
	if out.Platform == "" {
		out.Platform = "Unknown"
	}
	if g.FirstReleaseDate > 0 {
		out.Year = time.Unix(g.FirstReleaseDate, 0).UTC().Year()
	}
	if len(g.InvolvedCompanies) > 0 {
		out.Publisher = g.InvolvedCompanies[0].Company.Name
	}
	if len(g.Platforms) > 0 && g.Platforms[0].Name != "" {
		out.Platform = g.Platforms[0].Name
	}
	if g.Cover != nil && g.Cover.URL != "" {
		cover := strings.Replace(g.Cover.URL, "t_thumb", "t_cover_big", 1)
		if !strings.HasPrefix(cover, "http") {
			cover = "https:" + cover
		}
		out.CoverURL = cover
	}
	return out
}

type tokenResponse struct {
	AccessToken string `json:"access_token"`
	ExpiresIn   int64  `json:"expires_in"`
}

func (c *Client) accessToken(ctx context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.token != "" && time.Now().Before(c.tokenExpiry) {
		return c.token, nil
	}

	params := url.Values{}
	params.Set("client_id", c.opts.ClientID)
	params.Set("client_secret", c.opts.ClientSecret)
	params.Set("grant_type", "client_credentials")

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.opts.TokenURL+"?"+params.Encode(), nil)
	if err != nil {
		return "", fmt.Errorf("create token request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("token request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("token request: bad status: %s", resp.Status)
	}

	var tok tokenResponse
	if err := json.NewDecoder(resp.Body).Decode(&tok); err != nil {
		return "", fmt.Errorf("decode token: %w", err)
	}
	if tok.AccessToken == "" {
		return "", fmt.Errorf("token request: empty access token")
	}
	if tok.ExpiresIn <= 0 {
		tok.ExpiresIn = 3600
	}

	c.token = tok.AccessToken
	c.tokenExpiry = time.Now().Add(time.Duration(tok.ExpiresIn)*time.Second - tokenSlack)
	c.logger.Debug("catalog token refreshed", "expires_at", c.tokenExpiry)
	return c.token, nil
}
