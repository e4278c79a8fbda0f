package github

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/JohannesKaufmann/html-to-markdown/v2/converter"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/base"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/commonmark"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/table"
	"github.com/microcosm-cc/bluemonday"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// readmeCandidates is the ordered filename list tried against the raw
// content host. The first file that exists wins.
var readmeCandidates = []string{"README.md", "readme.md", "README.rst", "README.txt"}

const maxReadmeBytes = 1 * 1024 * 1024

// Readme fetches a repository's documentation. It tries the well-known
// raw filenames first, then falls back to the API's rendered-readme
// endpoint converted to markdown. No README at all is not an error: the
// result is simply empty.
func (c *Client) Readme(ctx context.Context, repo Repo) (string, error) {
	branch := repo.DefaultBranch
	if branch == "" {
		branch = "main"
	}

	for _, name := range readmeCandidates {
		content, found, err := c.rawFile(ctx, repo.Owner, repo.Name, branch, name)
		if err != nil {
			return "", err
		}
		if found {
			return content, nil
		}
	}
	return c.renderedReadme(ctx, repo.Owner, repo.Name)
}

// rawFile fetches one file from the raw content host. A 404 reports
// found=false without an error; transport failures are real errors so
// the task queue can retry them.
func (c *Client) rawFile(ctx context.Context, owner, repo, branch, name string) (string, bool, error) {
	u := fmt.Sprintf("%s/%s/%s/%s/%s", c.cfg.RawBaseURL, owner, repo, branch, name)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return "", false, err
	}
	req.Header.Set("User-Agent", c.cfg.UserAgent)

	resp, err := c.http.Do(req)
	if err != nil {
		return "", false, fmt.Errorf("github: raw %s: %w", name, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return "", false, nil
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 400 {
		return "", false, fmt.Errorf("github: raw %s: HTTP %d", name, resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxReadmeBytes))
	if err != nil {
		return "", false, err
	}
	return string(body), true, nil
}

// renderedReadme asks the API for the HTML-rendered README and converts
// it back to markdown: DOM cleanup first, then sanitization, then the
// markdown converter. All failures degrade to empty content.
func (c *Client) renderedReadme(ctx context.Context, owner, repo string) (string, error) {
	u := fmt.Sprintf("%s/repos/%s/%s/readme", c.cfg.BaseURL, owner, repo)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return "", err
	}
	c.apiHeaders(req)
	req.Header.Set("Accept", "application/vnd.github.html")

	resp, err := c.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("github: rendered readme: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return "", nil
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 400 {
		return "", fmt.Errorf("github: rendered readme: HTTP %d", resp.StatusCode)
	}

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxReadmeBytes))
	if err != nil {
		return "", err
	}

	cleaned := dropDecorations(raw)
	sanitized := bluemonday.UGCPolicy().SanitizeBytes(cleaned)

	conv := converter.NewConverter(
		converter.WithPlugins(
			base.NewBasePlugin(),
			commonmark.NewCommonmarkPlugin(),
			table.NewTablePlugin(),
		),
	)
	md, err := conv.ConvertString(string(sanitized))
	if err != nil {
		return "", fmt.Errorf("github: convert rendered readme: %w", err)
	}
	return strings.TrimSpace(md), nil
}

// dropDecorations removes the anchor-link and svg decoration nodes
// GitHub injects into rendered markdown, which would otherwise survive
// as noise in the converted text. Parse failures return the input as-is.
func dropDecorations(raw []byte) []byte {
	doc, err := html.Parse(bytes.NewReader(raw))
	if err != nil {
		return raw
	}
	pruneDecorations(doc)

	var buf bytes.Buffer
	if err := html.Render(&buf, doc); err != nil {
		return raw
	}
	return buf.Bytes()
}

func pruneDecorations(n *html.Node) {
	var next *html.Node
	for c := n.FirstChild; c != nil; c = next {
		next = c.NextSibling
		if isDecoration(c) {
			n.RemoveChild(c)
			continue
		}
		pruneDecorations(c)
	}
}

func isDecoration(n *html.Node) bool {
	if n.Type != html.ElementNode {
		return false
	}
	if n.DataAtom == atom.Svg || n.Data == "svg" {
		return true
	}
	if n.DataAtom == atom.A {
		for _, a := range n.Attr {
			if a.Key == "class" && strings.Contains(a.Val, "anchor") {
				return true
			}
		}
	}
	return false
}
