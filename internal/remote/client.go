// Package remote implements C2: a paginated client for the authenticated
// user's starred repositories on the upstream code-hosting API, with
// retrying backoff and a README cache. Grounded on the teacher's
// internal/shards/researcher/retry.go exponential-backoff shape and
// internal/tools/research/cache.go in-memory TTL cache.
package remote

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"math/rand"
	"net/http"
	"time"

	"golang.org/x/time/rate"

	"starbase/internal/apperr"
	"starbase/internal/logging"
	"starbase/internal/model"
)

const (
	defaultBaseURL     = "https://api.github.com"
	unauthRateLimitRPS = 0.1 // unauthenticated requests get a much lower cap
	perPage            = 100
)

// Client fetches starred repositories as a paginated stream and caches
// README fetches by (owner/name, pushed_at).
type Client struct {
	httpClient  *http.Client
	baseURL     string
	token       string
	maxRetries  int
	limiter     *rate.Limiter
	readmeCache *readmeCache
}

// Option customizes a Client at construction time.
type Option func(*Client)

// WithBaseURL overrides the upstream API root, used by tests.
func WithBaseURL(url string) Option {
	return func(c *Client) { c.baseURL = url }
}

// WithHTTPClient overrides the transport, used by tests.
func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) { c.httpClient = h }
}

// New builds a Client. An empty token operates in unauthenticated mode with
// a lower rate cap (spec §4.2).
func New(token string, maxRetries int, rateLimitRPS float64, opts ...Option) *Client {
	if rateLimitRPS <= 0 {
		rateLimitRPS = unauthRateLimitRPS
	}
	effectiveRPS := rateLimitRPS
	if token == "" {
		effectiveRPS = math.Min(rateLimitRPS, unauthRateLimitRPS)
	}

	c := &Client{
		httpClient:  &http.Client{Timeout: 30 * time.Second},
		baseURL:     defaultBaseURL,
		token:       token,
		maxRetries:  maxRetries,
		limiter:     rate.NewLimiter(rate.Limit(effectiveRPS), 5),
		readmeCache: newReadmeCache(500),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// starredPage is the upstream JSON shape for one page of starred repos.
type starredPage []struct {
	Owner struct {
		Login string `json:"login"`
		Type  string `json:"type"`
	} `json:"owner"`
	Name            string    `json:"name"`
	Description     string    `json:"description"`
	Homepage        string    `json:"homepage"`
	Language        string    `json:"language"`
	Topics          []string  `json:"topics"`
	StargazersCount int       `json:"stargazers_count"`
	ForksCount      int       `json:"forks_count"`
	CreatedAt       time.Time `json:"created_at"`
	PushedAt        time.Time `json:"pushed_at"`
	Archived        bool      `json:"archived"`
	Visibility      string    `json:"visibility"`
	License         *struct {
		SPDXID string `json:"spdx_id"`
	} `json:"license"`
}

// FetchStarred streams every currently-starred repository as a normalized
// RemoteRepo, calling yield for each. The star-based upstream listing has no
// "only repos touched since X" mode, so since is accepted for callers that
// want to log or reason about incremental-sync bounds but never used to drop
// a yield: a repo can still be starred with an unchanged pushed_at, and it
// must still reach classify so reconcile's remoteSeen bookkeeping marks it
// present (dropping it here would make reconcile soft-delete it instead).
// Stops and returns ctx.Err() wrapped as Cancelled if ctx is done between
// pages.
func (c *Client) FetchStarred(ctx context.Context, since time.Time, yield func(model.RemoteRepo) error) error {
	page := 1
	for {
		if err := ctx.Err(); err != nil {
			return apperr.Wrap(apperr.Cancelled, "fetching starred repositories", err)
		}

		repos, starredAts, hasMore, err := c.fetchPage(ctx, page)
		if err != nil {
			return err
		}

		for i, repo := range repos {
			rr := model.RemoteRepo{
				Owner:           repo.Owner.Login,
				Name:            repo.Name,
				Description:     repo.Description,
				Homepage:        repo.Homepage,
				PrimaryLanguage: repo.Language,
				Topics:          repo.Topics,
				StargazerCount:  repo.StargazersCount,
				ForkCount:       repo.ForksCount,
				CreatedAt:       repo.CreatedAt,
				PushedAt:        repo.PushedAt,
				StarredAt:       starredAts[i],
				OwnerType:       ownerType(repo.Owner.Type),
				Archived:        repo.Archived,
				Visibility:      repo.Visibility,
			}
			if repo.License != nil {
				rr.License = repo.License.SPDXID
			}

			if err := yield(rr); err != nil {
				return err
			}
		}

		if !hasMore {
			return nil
		}
		page++
	}
}

// fetchPage retrieves one page, retrying on 429/5xx with exponential
// backoff and jitter, and failing fast on other 4xx responses.
func (c *Client) fetchPage(ctx context.Context, page int) (starredPage, []time.Time, bool, error) {
	var lastErr error
	backoff := time.Second

	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, nil, false, apperr.Wrap(apperr.Cancelled, "rate limiter wait", err)
		}

		repos, starredAts, hasMore, retryable, err := c.doFetchPage(ctx, page)
		if err == nil {
			if attempt > 0 {
				logging.Remote("retry succeeded fetching starred page %d on attempt %d", page, attempt+1)
			}
			return repos, starredAts, hasMore, nil
		}
		if !retryable {
			return nil, nil, false, err
		}

		lastErr = err
		logging.Remote("attempt %d/%d fetching starred page %d failed: %v", attempt+1, c.maxRetries+1, page, err)

		if attempt < c.maxRetries {
			wait := backoffWithJitter(backoff)
			select {
			case <-ctx.Done():
				return nil, nil, false, apperr.Wrap(apperr.Cancelled, "waiting to retry", ctx.Err())
			case <-time.After(wait):
			}
			backoff *= 2
			if backoff > 32*time.Second {
				backoff = 32 * time.Second
			}
		}
	}

	return nil, nil, false, apperr.Wrap(apperr.RemoteFatal, fmt.Sprintf("exhausted %d retries fetching starred page %d", c.maxRetries, page), lastErr)
}

func (c *Client) doFetchPage(ctx context.Context, page int) (repos starredPage, starredAts []time.Time, hasMore bool, retryable bool, err error) {
	url := fmt.Sprintf("%s/user/starred?per_page=%d&page=%d", c.baseURL, perPage, page)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, nil, false, false, apperr.Wrap(apperr.Internal, "building request", err)
	}
	req.Header.Set("Accept", "application/vnd.github.star+json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, nil, false, true, apperr.Wrap(apperr.RemoteTransient, "starred request failed", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, nil, false, true, apperr.Wrap(apperr.RemoteTransient, "reading response body", err)
	}

	switch {
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
		return nil, nil, false, true, apperr.New(apperr.RemoteTransient, fmt.Sprintf("status %d: %s", resp.StatusCode, string(body)))
	case resp.StatusCode >= 400:
		return nil, nil, false, false, apperr.New(apperr.RemoteFatal, fmt.Sprintf("status %d: %s", resp.StatusCode, string(body)))
	}

	var withStarredAt []struct {
		StarredAt time.Time `json:"starred_at"`
		Repo      struct {
			Owner struct {
				Login string `json:"login"`
				Type  string `json:"type"`
			} `json:"owner"`
			Name            string    `json:"name"`
			Description     string    `json:"description"`
			Homepage        string    `json:"homepage"`
			Language        string    `json:"language"`
			Topics          []string  `json:"topics"`
			StargazersCount int       `json:"stargazers_count"`
			ForksCount      int       `json:"forks_count"`
			CreatedAt       time.Time `json:"created_at"`
			PushedAt        time.Time `json:"pushed_at"`
			Archived        bool      `json:"archived"`
			Visibility      string    `json:"visibility"`
			License         *struct {
				SPDXID string `json:"spdx_id"`
			} `json:"license"`
		} `json:"repo"`
	}
	if err := json.Unmarshal(body, &withStarredAt); err != nil {
		return nil, nil, false, false, apperr.Wrap(apperr.RemoteFatal, "decoding starred response", err)
	}

	repos = make(starredPage, len(withStarredAt))
	starredAts = make([]time.Time, len(withStarredAt))
	for i, item := range withStarredAt {
		repos[i].Owner = item.Repo.Owner
		repos[i].Name = item.Repo.Name
		repos[i].Description = item.Repo.Description
		repos[i].Homepage = item.Repo.Homepage
		repos[i].Language = item.Repo.Language
		repos[i].Topics = item.Repo.Topics
		repos[i].StargazersCount = item.Repo.StargazersCount
		repos[i].ForksCount = item.Repo.ForksCount
		repos[i].CreatedAt = item.Repo.CreatedAt
		repos[i].PushedAt = item.Repo.PushedAt
		repos[i].Archived = item.Repo.Archived
		repos[i].Visibility = item.Repo.Visibility
		repos[i].License = item.Repo.License
		starredAts[i] = item.StarredAt
	}

	hasMore = len(repos) == perPage
	linkHeader := resp.Header.Get("Link")
	if linkHeader != "" {
		hasMore = containsRel(linkHeader, "next")
	}

	return repos, starredAts, hasMore, false, nil
}

// FetchReadme returns the raw README for a repository, using the cache
// keyed by (owner/name, pushed_at) when the content hasn't changed.
func (c *Client) FetchReadme(ctx context.Context, owner, name string, pushedAt time.Time) (string, error) {
	key := cacheKey(owner, name, pushedAt)
	if cached, ok := c.readmeCache.get(key); ok {
		logging.RemoteDebug("readme cache hit for %s/%s", owner, name)
		return cached, nil
	}

	url := fmt.Sprintf("%s/repos/%s/%s/readme", c.baseURL, owner, name)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", apperr.Wrap(apperr.Internal, "building readme request", err)
	}
	req.Header.Set("Accept", "application/vnd.github.raw+json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	if err := c.limiter.Wait(ctx); err != nil {
		return "", apperr.Wrap(apperr.Cancelled, "rate limiter wait", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", apperr.Wrap(apperr.RemoteTransient, "readme request failed", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return "", nil
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", apperr.Wrap(apperr.RemoteTransient, "reading readme body", err)
	}
	if resp.StatusCode >= 400 {
		return "", apperr.New(apperr.RemoteFatal, fmt.Sprintf("readme status %d", resp.StatusCode))
	}

	content := string(body)
	c.readmeCache.set(key, content)
	return content, nil
}

func ownerType(githubType string) model.OwnerType {
	if githubType == "Organization" {
		return model.OwnerOrg
	}
	return model.OwnerUser
}

func backoffWithJitter(base time.Duration) time.Duration {
	jitter := time.Duration(rand.Int63n(int64(base) / 2))
	return base + jitter
}

func containsRel(linkHeader, rel string) bool {
	want := `rel="` + rel + `"`
	return indexOf(linkHeader, want) >= 0
}

func indexOf(haystack, needle string) int {
	for i := 0; i+len(needle) <= len(haystack); i++ {
		if haystack[i:i+len(needle)] == needle {
			return i
		}
	}
	return -1
}
