// Package search implements YouTube search against the same Innertube
// surface the player/browse endpoints use, plus the `ytsearch...:` URL
// shortcut grammar.
package search

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"regexp"
	"strconv"
	"strings"

	"github.com/ytget/ytdlp/v2/internal/logger"
	"github.com/ytget/ytdlp/v2/types"
	"github.com/ytget/ytdlp/v2/youtube/innertube/profiles"
)

const searchURL = "https://www.youtube.com/youtubei/v1/search"

// sortByDateParams is the fixed base64 SearchSortFilter params YouTube's own
// frontend sends; relevance needs none, upload-date sorting is a constant
// proto blob.
const sortByDateParams = "CAI="

// webProfile is the client identity search POSTs are made as; search has
// no client-specific variance the way player requests do, so the WEB
// profile from the fan-out table (spec.md §4.5) covers it.
func webProfile() profiles.ClientProfile {
	for _, p := range profiles.All {
		if p.Name == "WEB" {
			return p
		}
	}
	return profiles.All[len(profiles.All)-1]
}

var durationRe = regexp.MustCompile(`^(?:(\d+):)?(\d+):(\d+)$`)

// Client performs search requests against the Innertube /search endpoint.
type Client struct {
	HTTPClient *http.Client
	APIKey     string

	log *logger.ComponentLogger
}

// New creates a search Client. apiKey is the INNERTUBE_API_KEY scraped
// from a watch/search page, required because /search (unlike /player)
// always needs one.
func New(httpClient *http.Client, apiKey string) *Client {
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	return &Client{
		HTTPClient: httpClient,
		APIKey:     apiKey,
		log:        logger.WithComponent(logger.ComponentSearch),
	}
}

// Search runs a query against Innertube and returns up to maxResults
// videoRenderer entries, optionally sorted by upload date.
func (c *Client) Search(ctx context.Context, query string, maxResults int, sortByDate bool) ([]types.SearchResult, error) {
	if strings.TrimSpace(query) == "" {
		return nil, errors.New("search: empty query")
	}
	if c.APIKey == "" {
		return nil, errors.New("search: api key not set")
	}
	if maxResults <= 0 {
		maxResults = 20
	}

	p := webProfile()
	body := map[string]any{
		"context": map[string]any{"client": p.ContextClient()},
		"query":   query,
	}
	if sortByDate {
		body["params"] = sortByDateParams
	}
	bodyBytes, err := json.Marshal(body)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, searchURL+"?key="+c.APIKey, bytes.NewReader(bodyBytes))
	if err != nil {
		return nil, err
	}
	for k, v := range p.Headers("") {
		req.Header.Set(k, v)
	}

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("search: request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	var root any
	if err := json.NewDecoder(resp.Body).Decode(&root); err != nil {
		return nil, fmt.Errorf("search: decode response: %w", err)
	}

	results := make([]types.SearchResult, 0, maxResults)
	collectVideoRenderers(root, &results, maxResults)
	if len(results) > maxResults {
		results = results[:maxResults]
	}
	return results, nil
}

// collectVideoRenderers walks contents → twoColumnSearchResultsRenderer →
// primaryContents → sectionListRenderer → contents → [] →
// itemSectionRenderer → contents → [] → videoRenderer, recursively,
// the same unstructured any-traversal collectPlaylistVideoRenderers uses.
func collectVideoRenderers(node any, out *[]types.SearchResult, limit int) {
	if len(*out) >= limit {
		return
	}
	switch v := node.(type) {
	case map[string]any:
		if r, ok := v["videoRenderer"].(map[string]any); ok {
			*out = append(*out, parseVideoRenderer(r))
			return
		}
		for _, val := range v {
			collectVideoRenderers(val, out, limit)
			if len(*out) >= limit {
				return
			}
		}
	case []any:
		for _, val := range v {
			collectVideoRenderers(val, out, limit)
			if len(*out) >= limit {
				return
			}
		}
	}
}

func parseVideoRenderer(r map[string]any) types.SearchResult {
	var sr types.SearchResult
	sr.ID, _ = r["videoId"].(string)
	sr.Title = firstRunText(r["title"])
	sr.Description = firstRunText(r["descriptionSnippet"])

	if ownerText, ok := r["ownerText"].(map[string]any); ok {
		sr.Channel = firstRunText(ownerText)
		if runs, ok := ownerText["runs"].([]any); ok && len(runs) > 0 {
			if first, ok := runs[0].(map[string]any); ok {
				if nav, ok := first["navigationEndpoint"].(map[string]any); ok {
					if be, ok := nav["browseEndpoint"].(map[string]any); ok {
						sr.ChannelID, _ = be["browseId"].(string)
					}
				}
			}
		}
	}

	if lengthText, ok := r["lengthText"].(map[string]any); ok {
		if simple, ok := lengthText["simpleText"].(string); ok {
			sr.Duration = parseDuration(simple)
		}
	}

	if thumb, ok := r["thumbnail"].(map[string]any); ok {
		if thumbs, ok := thumb["thumbnails"].([]any); ok && len(thumbs) > 0 {
			if last, ok := thumbs[len(thumbs)-1].(map[string]any); ok {
				sr.Thumbnail, _ = last["url"].(string)
			}
		}
	}

	if viewCountText, ok := r["viewCountText"].(map[string]any); ok {
		if simple, ok := viewCountText["simpleText"].(string); ok {
			sr.ViewCount = digitsAsInt64(simple)
		}
	}

	sr.PublishedTime = firstRunText(r["publishedTimeText"])
	return sr
}

func firstRunText(v any) string {
	m, ok := v.(map[string]any)
	if !ok {
		return ""
	}
	if simple, ok := m["simpleText"].(string); ok {
		return simple
	}
	runs, ok := m["runs"].([]any)
	if !ok || len(runs) == 0 {
		return ""
	}
	first, ok := runs[0].(map[string]any)
	if !ok {
		return ""
	}
	text, _ := first["text"].(string)
	return text
}

// parseDuration parses "H:MM:SS" or "M:SS" into total seconds.
func parseDuration(s string) int {
	m := durationRe.FindStringSubmatch(strings.TrimSpace(s))
	if len(m) != 4 {
		return 0
	}
	hours := 0
	if m[1] != "" {
		hours, _ = strconv.Atoi(m[1])
	}
	minutes, _ := strconv.Atoi(m[2])
	seconds, _ := strconv.Atoi(m[3])
	return hours*3600 + minutes*60 + seconds
}

func digitsAsInt64(s string) int64 {
	var b strings.Builder
	for _, r := range s {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	if b.Len() == 0 {
		return 0
	}
	n, err := strconv.ParseInt(b.String(), 10, 64)
	if err != nil {
		return 0
	}
	return n
}

var searchURLRe = regexp.MustCompile(`^ytsearch(\d*)(date)?:(.*)$`)

// ParseSearchURL parses the `ytsearch[N|date|all|<n>date]:<query>` grammar
// of spec.md §6 into a SearchOptions. Any other form returns an error.
func ParseSearchURL(raw string) (types.SearchOptions, error) {
	lower := strings.ToLower(raw)
	switch {
	case strings.HasPrefix(lower, "ytsearchall:"):
		query := raw[len("ytsearchall:"):]
		if query == "" {
			return types.SearchOptions{}, errors.New("search: empty query in ytsearchall URL")
		}
		return types.SearchOptions{Query: query, MaxResults: 100, SortByDate: false}, nil
	case strings.HasPrefix(lower, "ytsearchdate:"):
		query := raw[len("ytsearchdate:"):]
		if query == "" {
			return types.SearchOptions{}, errors.New("search: empty query in ytsearchdate URL")
		}
		return types.SearchOptions{Query: query, MaxResults: 10, SortByDate: true}, nil
	}

	idx := searchURLRe.FindStringSubmatchIndex(lower)
	if idx == nil {
		return types.SearchOptions{}, fmt.Errorf("search: %q is not a valid ytsearch URL", raw)
	}
	m := make([]string, 4)
	for i := 1; i <= 3; i++ {
		if idx[2*i] >= 0 {
			m[i] = raw[idx[2*i]:idx[2*i+1]]
		}
	}
	query := m[3]
	if query == "" {
		return types.SearchOptions{}, fmt.Errorf("search: empty query in %q", raw)
	}

	sortByDate := m[2] == "date"
	maxResults := 1
	if m[1] != "" {
		n, err := strconv.Atoi(m[1])
		if err != nil || n <= 0 {
			return types.SearchOptions{}, fmt.Errorf("search: invalid result count in %q", raw)
		}
		maxResults = n
	} else if sortByDate {
		maxResults = 10
	}

	return types.SearchOptions{Query: query, MaxResults: maxResults, SortByDate: sortByDate}, nil
}

// BuildSearchURL is the inverse of ParseSearchURL, producing the canonical
// shortcut form for a given SearchOptions.
func BuildSearchURL(opts types.SearchOptions) string {
	var b strings.Builder
	b.WriteString("ytsearch")
	switch {
	case opts.MaxResults == 100 && !opts.SortByDate:
		b.WriteString("all")
	case opts.MaxResults > 0 && opts.MaxResults != 1:
		b.WriteString(strconv.Itoa(opts.MaxResults))
	}
	if opts.SortByDate {
		b.WriteString("date")
	}
	b.WriteString(":")
	b.WriteString(opts.Query)
	return b.String()
}
