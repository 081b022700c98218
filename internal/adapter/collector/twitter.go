// internal/adapter/collector/twitter.go

package collector

import (
	"context"
	"fmt"
	"net/http"
	"time"

	twitter "github.com/g8rswimmer/go-twitter/v2"

	"brandpulse/internal/config"
	"brandpulse/internal/domain/signal"
)

const twitterHost = "https://api.twitter.com"

type bearerAuthorizer struct {
	token string
}

func (a bearerAuthorizer) Add(req *http.Request) {
	req.Header.Add("Authorization", fmt.Sprintf("Bearer %s", a.token))
}

// TwitterClient runs recent searches against the Twitter v2 API
type TwitterClient struct {
	client *twitter.Client
	config config.TwitterConfig
}

// NewTwitterClient creates a new Twitter recent-search client
func NewTwitterClient(cfg config.TwitterConfig) *TwitterClient {
	return NewTwitterClientWithHost(cfg, twitterHost, &http.Client{Timeout: 10 * time.Second})
}

// NewTwitterClientWithHost creates a client against a custom API host
func NewTwitterClientWithHost(cfg config.TwitterConfig, host string, httpClient *http.Client) *TwitterClient {
	return &TwitterClient{
		client: &twitter.Client{
			Authorizer: bearerAuthorizer{token: cfg.BearerToken},
			Client:     httpClient,
			Host:       host,
		},
		config: cfg,
	}
}

// Name identifies the collector
func (c *TwitterClient) Name() string {
	return "twitter"
}

// Collect returns tweets from the last week matching the configured query
func (c *TwitterClient) Collect(ctx context.Context) ([]signal.RawPost, error) {
	if c.config.BearerToken == "" {
		return nil, fmt.Errorf("twitter bearer token not configured")
	}

	maxResults := c.config.MaxResults
	if maxResults < 10 {
		maxResults = 10
	}
	if maxResults > 100 {
		maxResults = 100
	}

	opts := twitter.TweetRecentSearchOpts{
		Expansions:  []twitter.Expansion{twitter.ExpansionAuthorID},
		TweetFields: []twitter.TweetField{twitter.TweetFieldCreatedAt, twitter.TweetFieldPublicMetrics, twitter.TweetFieldAuthorID},
		UserFields:  []twitter.UserField{twitter.UserFieldUserName},
		MaxResults:  maxResults,
	}
	resp, err := c.client.TweetRecentSearch(ctx, c.config.Query, opts)
	if err != nil {
		return nil, fmt.Errorf("twitter recent search failed: %w", err)
	}
	if resp == nil || resp.Raw == nil {
		return nil, nil
	}

	authors := make(map[string]string)
	if resp.Raw.Includes != nil {
		for _, u := range resp.Raw.Includes.Users {
			if u != nil {
				authors[u.ID] = u.UserName
			}
		}
	}

	raws := make([]signal.RawPost, 0, len(resp.Raw.Tweets))
	for _, tweet := range resp.Raw.Tweets {
		if tweet == nil {
			continue
		}
		raws = append(raws, tweetRawPost(tweet, authors[tweet.AuthorID]))
	}
	return raws, nil
}

func tweetRawPost(tweet *twitter.TweetObj, author string) signal.RawPost {
	raw := signal.RawPost{
		Platform: "twitter",
		SourceID: tweet.ID,
		Author:   author,
		Text:     tweet.Text,
	}
	if author != "" {
		raw.URL = fmt.Sprintf("https://twitter.com/%s/status/%s", author, tweet.ID)
	}
	if created, err := time.Parse(time.RFC3339, tweet.CreatedAt); err == nil {
		raw.CreatedAt = created.UTC()
	}
	if m := tweet.PublicMetrics; m != nil {
		raw.Engagement = signal.Engagement{
			Likes:    int64(m.Likes),
			Shares:   int64(m.Retweets + m.Quotes),
			Comments: int64(m.Replies),
		}
	}
	return raw
}
