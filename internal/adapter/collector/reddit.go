// internal/adapter/collector/reddit.go

package collector

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"brandpulse/internal/config"
	"brandpulse/internal/domain/signal"
)

const (
	redditPublicURL = "https://www.reddit.com"
	redditOAuthURL  = "https://oauth.reddit.com"
	redditTokenURL  = "https://www.reddit.com/api/v1/access_token"
)

// RedditClient searches Reddit for brand discussions
type RedditClient struct {
	HTTPClient *http.Client
	BaseURL    string
	TokenURL   string
	config     config.RedditConfig
	limiter    *rate.Limiter

	mu          sync.Mutex
	token       string
	tokenExpiry time.Time
}

// RedditPost represents a post from Reddit
type RedditPost struct {
	ID          string  `json:"id"`
	Title       string  `json:"title"`
	URL         string  `json:"url"`
	Permalink   string  `json:"permalink"`
	Score       int64   `json:"score"`
	NumComments int64   `json:"num_comments"`
	Subreddit   string  `json:"subreddit"`
	Created     float64 `json:"created_utc"`
	SelfText    string  `json:"selftext"`
	Author      string  `json:"author"`
}

// RedditResponse represents the structure of the Reddit API listing response
type RedditResponse struct {
	Kind string `json:"kind"`
	Data struct {
		After    string `json:"after"`
		Children []struct {
			Kind string     `json:"kind"`
			Data RedditPost `json:"data"`
		} `json:"children"`
	} `json:"data"`
}

// NewRedditClient creates a new Reddit search client. Without client
// credentials it reads the public JSON listing.
func NewRedditClient(cfg config.RedditConfig) *RedditClient {
	baseURL := redditPublicURL
	if cfg.ClientID != "" && cfg.ClientSecret != "" {
		baseURL = redditOAuthURL
	}
	rps := cfg.RateLimit
	if rps <= 0 {
		rps = 1
	}
	return &RedditClient{
		HTTPClient: &http.Client{
			Timeout: time.Second * 10,
		},
		BaseURL:  baseURL,
		TokenURL: redditTokenURL,
		config:   cfg,
		limiter:  rate.NewLimiter(rate.Limit(rps), 1),
	}
}

// Name identifies the collector
func (c *RedditClient) Name() string {
	return "reddit"
}

// Collect runs every configured query, inside each configured subreddit
// when any are set. Posts found by several queries are returned once.
func (c *RedditClient) Collect(ctx context.Context) ([]signal.RawPost, error) {
	subreddits := c.config.Subreddits
	if len(subreddits) == 0 {
		subreddits = []string{""}
	}

	seen := make(map[string]bool)
	var raws []signal.RawPost
	for _, query := range c.config.Queries {
		for _, subreddit := range subreddits {
			posts, err := c.Search(ctx, subreddit, query, c.config.Limit)
			if err != nil {
				return raws, err
			}
			for _, p := range posts {
				if seen[p.ID] {
					continue
				}
				seen[p.ID] = true
				raws = append(raws, p.RawPost())
			}
		}
	}
	return raws, nil
}

// Search returns the newest posts matching query, optionally within subreddit
func (c *RedditClient) Search(ctx context.Context, subreddit, query string, limit int) ([]RedditPost, error) {
	if limit <= 0 {
		limit = 25
	}

	params := url.Values{}
	params.Set("q", query)
	params.Set("sort", "new")
	params.Set("t", "week")
	params.Set("limit", fmt.Sprintf("%d", limit))
	path := "/search.json"
	if subreddit != "" {
		path = fmt.Sprintf("/r/%s/search.json", url.PathEscape(subreddit))
		params.Set("restrict_sr", "1")
	}

	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.BaseURL+path+"?"+params.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("User-Agent", c.userAgent())
	if c.config.ClientID != "" && c.config.ClientSecret != "" {
		token, err := c.accessToken(ctx)
		if err != nil {
			return nil, err
		}
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to Reddit API: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("reddit API returned status code %d", resp.StatusCode)
	}

	var redditResp RedditResponse
	if err := json.NewDecoder(resp.Body).Decode(&redditResp); err != nil {
		return nil, fmt.Errorf("failed to decode Reddit API response: %w", err)
	}

	posts := make([]RedditPost, 0, len(redditResp.Data.Children))
	for _, child := range redditResp.Data.Children {
		posts = append(posts, child.Data)
	}
	return posts, nil
}

func (c *RedditClient) accessToken(ctx context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.token != "" && time.Now().Before(c.tokenExpiry) {
		return c.token, nil
	}

	form := url.Values{}
	form.Set("grant_type", "client_credentials")
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.TokenURL, strings.NewReader(form.Encode()))
	if err != nil {
		return "", fmt.Errorf("failed to create token request: %w", err)
	}
	req.SetBasicAuth(c.config.ClientID, c.config.ClientSecret)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("User-Agent", c.userAgent())

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to request Reddit token: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("reddit token endpoint returned status code %d", resp.StatusCode)
	}

	var token struct {
		AccessToken string `json:"access_token"`
		ExpiresIn   int    `json:"expires_in"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&token); err != nil {
		return "", fmt.Errorf("failed to decode Reddit token: %w", err)
	}
	if token.AccessToken == "" {
		return "", fmt.Errorf("reddit token endpoint returned no access token")
	}

	c.token = token.AccessToken
	// refresh a minute early
	c.tokenExpiry = time.Now().Add(time.Duration(token.ExpiresIn)*time.Second - time.Minute)
	return c.token, nil
}

func (c *RedditClient) userAgent() string {
	if c.config.UserAgent != "" {
		return c.config.UserAgent
	}
	return "brandpulse/1.0"
}

// RawPost converts the Reddit post into a pipeline record
func (p RedditPost) RawPost() signal.RawPost {
	link := p.URL
	if p.Permalink != "" {
		link = redditPublicURL + p.Permalink
	}
	return signal.RawPost{
		Platform:  "reddit",
		SourceID:  p.ID,
		Author:    p.Author,
		Title:     p.Title,
		Text:      p.SelfText,
		URL:       link,
		CreatedAt: time.Unix(int64(p.Created), 0).UTC(),
		Engagement: signal.Engagement{
			Score:    p.Score,
			Comments: p.NumComments,
		},
	}
}
