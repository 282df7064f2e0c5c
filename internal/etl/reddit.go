package etl

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"

	"github.com/BartekS5/stageload/internal/config"
	"github.com/BartekS5/stageload/pkg/logger"
	"github.com/BartekS5/stageload/pkg/models"
)

const (
	redditAPIBase  = "https://oauth.reddit.com"
	redditTokenURL = "https://www.reddit.com/api/v1/access_token"

	// pageSize is the API's maximum listing page.
	pageSize    = 100
	httpTimeout = 30 * time.Second
)

// RedditExtractor pulls top posts of a subreddit with application-only
// OAuth.
type RedditExtractor struct {
	cfg         config.RedditConfig
	apiBase     string
	tokenURL    string
	transformer *Transformer
	validator   *Validator
}

type RedditOption func(*RedditExtractor)

// WithEndpoints points the extractor at another API host, for tests.
func WithEndpoints(apiBase, tokenURL string) RedditOption {
	return func(e *RedditExtractor) {
		e.apiBase = apiBase
		e.tokenURL = tokenURL
	}
}

func NewRedditExtractor(cfg config.RedditConfig, opts ...RedditOption) *RedditExtractor {
	e := &RedditExtractor{
		cfg:         cfg,
		apiBase:     redditAPIBase,
		tokenURL:    redditTokenURL,
		transformer: NewTransformer(),
		validator:   NewValidator(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

type listing struct {
	Data struct {
		After    string `json:"after"`
		Children []struct {
			Data map[string]interface{} `json:"data"`
		} `json:"children"`
	} `json:"data"`
}

// Extract fetches every page up to the configured limit. Posts that fail
// normalization are skipped and logged; duplicate ids keep the first seen.
func (e *RedditExtractor) Extract(ctx context.Context, run models.RunID) ([]models.Record, error) {
	client := e.client(ctx)

	var records []models.Record
	after := ""
	skipped := 0
	for {
		want := pageSize
		if e.cfg.Limit > 0 {
			remaining := e.cfg.Limit - len(records) - skipped
			if remaining <= 0 {
				break
			}
			want = min(want, remaining)
		}

		page, err := e.fetchPage(ctx, client, want, after)
		if err != nil {
			return nil, err
		}
		for _, child := range page.Data.Children {
			rec, err := e.transformer.Transform(child.Data)
			if err == nil {
				err = e.validator.ValidateRecord(rec)
			}
			if err != nil {
				logger.Warnf("Skipping post: %v", err)
				skipped++
				continue
			}
			records = append(records, rec)
		}

		after = page.Data.After
		if after == "" || len(page.Data.Children) == 0 {
			break
		}
	}

	records = models.Dedupe(records)
	logger.Infof("Extracted %d posts from r/%s for run %s (%d skipped)", len(records), e.cfg.Subreddit, run, skipped)
	return records, nil
}

func (e *RedditExtractor) client(ctx context.Context) *http.Client {
	base := &http.Client{
		Timeout:   httpTimeout,
		Transport: userAgentTransport{agent: e.cfg.UserAgent, next: http.DefaultTransport},
	}
	cc := clientcredentials.Config{
		ClientID:     e.cfg.ClientID,
		ClientSecret: e.cfg.Secret,
		TokenURL:     e.tokenURL,
		AuthStyle:    oauth2.AuthStyleInHeader,
	}
	return cc.Client(context.WithValue(ctx, oauth2.HTTPClient, base))
}

func (e *RedditExtractor) fetchPage(ctx context.Context, client *http.Client, limit int, after string) (*listing, error) {
	q := url.Values{}
	q.Set("t", e.cfg.TimeFilter)
	q.Set("limit", strconv.Itoa(limit))
	q.Set("raw_json", "1")
	if after != "" {
		q.Set("after", after)
	}
	endpoint := fmt.Sprintf("%s/r/%s/top?%s", e.apiBase, url.PathEscape(e.cfg.Subreddit), q.Encode())

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch r/%s: %w", e.cfg.Subreddit, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("fetch r/%s: unexpected status %s: %s", e.cfg.Subreddit, resp.Status, body)
	}

	var page listing
	if err := json.NewDecoder(resp.Body).Decode(&page); err != nil {
		return nil, fmt.Errorf("decode r/%s listing: %w", e.cfg.Subreddit, err)
	}
	return &page, nil
}

// The API rejects requests without a descriptive User-Agent.
type userAgentTransport struct {
	agent string
	next  http.RoundTripper
}

func (t userAgentTransport) RoundTrip(r *http.Request) (*http.Response, error) {
	r = r.Clone(r.Context())
	r.Header.Set("User-Agent", t.agent)
	return t.next.RoundTrip(r)
}
