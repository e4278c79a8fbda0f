// Package github is a minimal client for the pieces of the GitHub REST
// API the pipeline consumes: repository search and README retrieval.
//
// Search responses expose their rate-budget headers to the caller so the
// rate-limit monitor stays current without this package knowing about it.
package github

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"
)

const (
	defaultBaseURL = "https://api.github.com"
	defaultRawURL  = "https://raw.githubusercontent.com"
	maxBodyBytes   = 10 * 1024 * 1024
)

// Config configures a Client. Base URLs are injectable for httptest.
type Config struct {
	// BaseURL is the REST API root. Default https://api.github.com.
	BaseURL string `yaml:"base_url"`

	// RawBaseURL serves raw file content. Default https://raw.githubusercontent.com.
	RawBaseURL string `yaml:"raw_base_url"`

	// Token is sent as a Bearer Authorization header when set.
	Token string `yaml:"token"`

	// UserAgent identifies the client. Default "prospect/1.0".
	UserAgent string `yaml:"user_agent"`

	// Timeout per HTTP request. Default 30s.
	Timeout time.Duration `yaml:"timeout"`
}

func (c *Config) defaults() {
	if c.BaseURL == "" {
		c.BaseURL = defaultBaseURL
	}
	if c.RawBaseURL == "" {
		c.RawBaseURL = defaultRawURL
	}
	if c.UserAgent == "" {
		c.UserAgent = "prospect/1.0"
	}
	if c.Timeout <= 0 {
		c.Timeout = 30 * time.Second
	}
}

// Client calls the GitHub REST API.
type Client struct {
	cfg  Config
	http *http.Client
}

// NewClient creates a Client with defaults applied.
func NewClient(cfg Config) *Client {
	cfg.defaults()
	return &Client{
		cfg:  cfg,
		http: &http.Client{Timeout: cfg.Timeout},
	}
}

// Repo is one repository as returned by the search endpoint.
type Repo struct {
	FullName      string `json:"full_name"`
	Name          string `json:"name"`
	Owner         string `json:"owner"`
	HTMLURL       string `json:"html_url"`
	Description   string `json:"description"`
	Stars         int    `json:"stargazers_count"`
	Language      string `json:"language"`
	DefaultBranch string `json:"default_branch"`
}

// Query is one paginated repository search.
type Query struct {
	Text    string
	Page    int
	PerPage int
	Sort    string // "updated", "stars", or "" for best match
	Order   string // "desc" default
}

// SearchResult is a page of search results plus the total match count.
type SearchResult struct {
	TotalCount int
	Items      []Repo
}

type searchResponse struct {
	TotalCount int `json:"total_count"`
	Items      []struct {
		FullName    string `json:"full_name"`
		Name        string `json:"name"`
		HTMLURL     string `json:"html_url"`
		Description string `json:"description"`
		Stars       int    `json:"stargazers_count"`
		Language    string `json:"language"`
		Branch      string `json:"default_branch"`
		Owner       struct {
			Login string `json:"login"`
		} `json:"owner"`
	} `json:"items"`
}

// Search runs one repository search call. The returned header carries the
// rate-budget pair for the monitor.
func (c *Client) Search(ctx context.Context, q Query) (*SearchResult, http.Header, error) {
	if q.Page <= 0 {
		q.Page = 1
	}
	if q.PerPage <= 0 {
		q.PerPage = 10
	}
	v := url.Values{}
	v.Set("q", q.Text)
	v.Set("page", strconv.Itoa(q.Page))
	v.Set("per_page", strconv.Itoa(q.PerPage))
	if q.Sort != "" {
		v.Set("sort", q.Sort)
	}
	if q.Order != "" {
		v.Set("order", q.Order)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		c.cfg.BaseURL+"/search/repositories?"+v.Encode(), nil)
	if err != nil {
		return nil, nil, err
	}
	c.apiHeaders(req)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, nil, fmt.Errorf("github: search: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 400 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return nil, resp.Header, fmt.Errorf("github: search HTTP %d: %s", resp.StatusCode, string(body))
	}

	var parsed searchResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxBodyBytes)).Decode(&parsed); err != nil {
		return nil, resp.Header, fmt.Errorf("github: decode search response: %w", err)
	}

	out := &SearchResult{TotalCount: parsed.TotalCount, Items: make([]Repo, 0, len(parsed.Items))}
	for _, it := range parsed.Items {
		out.Items = append(out.Items, Repo{
			FullName:      it.FullName,
			Name:          it.Name,
			Owner:         it.Owner.Login,
			HTMLURL:       it.HTMLURL,
			Description:   it.Description,
			Stars:         it.Stars,
			Language:      it.Language,
			DefaultBranch: it.Branch,
		})
	}
	return out, resp.Header, nil
}

func (c *Client) apiHeaders(req *http.Request) {
	req.Header.Set("Accept", "application/vnd.github+json")
	req.Header.Set("X-GitHub-Api-Version", "2022-11-28")
	req.Header.Set("User-Agent", c.cfg.UserAgent)
	if c.cfg.Token != "" {
		req.Header.Set("Authorization", "Bearer "+c.cfg.Token)
	}
}
