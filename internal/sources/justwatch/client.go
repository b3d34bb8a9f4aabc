// Package justwatch pages through a streaming platform's catalog using the
// JustWatch GraphQL endpoint.
package justwatch

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/goccy/go-json"

	"reelscout/internal/catalog"
	"reelscout/internal/services"
	"reelscout/internal/sources"
)

const sourceName = "justwatch"

const popularTitlesQuery = `query GetPopularTitles($country: Country!, $language: Language!, $first: Int!, $after: String, $filter: TitleFilter) {
  popularTitles(country: $country, first: $first, after: $after, filter: $filter, sortBy: ALPHABETICAL) {
    totalCount
    pageInfo { endCursor hasNextPage }
    edges {
      node {
        id
        objectType
        content(country: $country, language: $language) {
          title
          originalReleaseYear
          genres { shortName }
          externalIds { imdbId tmdbId }
        }
      }
    }
  }
}`

// Client fetches catalog pages.
type Client struct {
	endpoint   string
	userAgent  string
	httpClient *http.Client
}

var _ sources.CatalogSource = (*Client)(nil)

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient overrides the default HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		if client != nil {
			c.httpClient = client
		}
	}
}

// WithUserAgent sets the User-Agent header sent with every request.
func WithUserAgent(ua string) Option {
	return func(c *Client) {
		if ua = strings.TrimSpace(ua); ua != "" {
			c.userAgent = ua
		}
	}
}

// New creates a catalog client for the GraphQL endpoint.
func New(endpoint string, timeout time.Duration, opts ...Option) (*Client, error) {
	endpoint = strings.TrimSpace(endpoint)
	if endpoint == "" {
		return nil, errors.New("justwatch endpoint required")
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	client := &Client{
		endpoint:   endpoint,
		userAgent:  "reelscout",
		httpClient: &http.Client{Timeout: timeout},
	}
	for _, opt := range opts {
		opt(client)
	}
	return client, nil
}

type graphQLRequest struct {
	Query     string         `json:"query"`
	Variables map[string]any `json:"variables"`
}

type graphQLError struct {
	Message string `json:"message"`
}

type popularTitlesResponse struct {
	Data *struct {
		PopularTitles *struct {
			TotalCount int `json:"totalCount"`
			PageInfo   struct {
				EndCursor   string `json:"endCursor"`
				HasNextPage bool   `json:"hasNextPage"`
			} `json:"pageInfo"`
			Edges []struct {
				Node titleNode `json:"node"`
			} `json:"edges"`
		} `json:"popularTitles"`
	} `json:"data"`
	Errors []graphQLError `json:"errors"`
}

type titleNode struct {
	ID         string `json:"id"`
	ObjectType string `json:"objectType"`
	Content    *struct {
		Title               string `json:"title"`
		OriginalReleaseYear int    `json:"originalReleaseYear"`
		Genres              []struct {
			ShortName string `json:"shortName"`
		} `json:"genres"`
		ExternalIDs struct {
			IMDbID string          `json:"imdbId"`
			TMDBID json.RawMessage `json:"tmdbId"`
		} `json:"externalIds"`
	} `json:"content"`
}

// FetchCatalogPage fetches the page following req.Cursor.
func (c *Client) FetchCatalogPage(ctx context.Context, req sources.PageRequest) (sources.Page, error) {
	if strings.TrimSpace(req.PlatformKey) == "" {
		return sources.Page{}, services.Wrap(services.ErrValidation, sourceName, "fetch page", "platform key required", nil)
	}
	first := req.PageSize
	if first <= 0 {
		first = 100
	}
	variables := map[string]any{
		"country":  strings.ToUpper(req.Country),
		"language": strings.ToLower(req.Language),
		"first":    first,
		"filter": map[string]any{
			"packages":    []string{req.PlatformKey},
			"objectTypes": []string{"MOVIE"},
		},
	}
	if req.Cursor != "" {
		variables["after"] = req.Cursor
	}
	payload, err := json.Marshal(graphQLRequest{Query: popularTitlesQuery, Variables: variables})
	if err != nil {
		return sources.Page{}, services.Wrap(services.ErrPermanent, sourceName, "fetch page", "encode query", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(payload))
	if err != nil {
		return sources.Page{}, services.Wrap(services.ErrConfiguration, sourceName, "fetch page", "build request", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "application/json")
	httpReq.Header.Set("User-Agent", c.userAgent)

	body, err := sources.Do(ctx, c.httpClient, httpReq, sourceName, "fetch page")
	if err != nil {
		return sources.Page{}, err
	}
	return decodePage(body, req.PlatformKey)
}

func decodePage(body []byte, platform string) (sources.Page, error) {
	var resp popularTitlesResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return sources.Page{}, services.Wrap(services.ErrPermanent, sourceName, "decode page", "malformed payload", err)
	}
	if resp.Data == nil || resp.Data.PopularTitles == nil {
		msg := "missing popularTitles"
		if len(resp.Errors) > 0 {
			msg = resp.Errors[0].Message
		}
		return sources.Page{}, services.Wrap(services.ErrPermanent, sourceName, "decode page", msg, nil)
	}

	titles := resp.Data.PopularTitles
	page := sources.Page{
		Records:    make([]catalog.Record, 0, len(titles.Edges)),
		NextCursor: titles.PageInfo.EndCursor,
		HasMore:    titles.PageInfo.HasNextPage,
		Total:      titles.TotalCount,
	}
	for i, edge := range titles.Edges {
		node := edge.Node
		if node.ObjectType != "" && !strings.EqualFold(node.ObjectType, "MOVIE") {
			continue
		}
		if strings.TrimSpace(node.ID) == "" || node.Content == nil || strings.TrimSpace(node.Content.Title) == "" {
			return sources.Page{}, services.Wrap(services.ErrPermanent, sourceName, "decode page",
				"edge "+strconv.Itoa(i)+" missing id or title", nil)
		}
		rec := catalog.Record{
			PlatformKey: platform,
			ExternalID:  node.ID,
			Title:       strings.TrimSpace(node.Content.Title),
			Year:        node.Content.OriginalReleaseYear,
			IMDbID:      strings.TrimSpace(node.Content.ExternalIDs.IMDbID),
			TMDBID:      rawID(node.Content.ExternalIDs.TMDBID),
		}
		for _, g := range node.Content.Genres {
			if name := strings.TrimSpace(g.ShortName); name != "" {
				rec.Genres = append(rec.Genres, name)
			}
		}
		page.Records = append(page.Records, rec)
	}
	if page.HasMore && page.NextCursor == "" {
		return sources.Page{}, services.Wrap(services.ErrPermanent, sourceName, "decode page", "hasNextPage without endCursor", nil)
	}
	return page, nil
}

// rawID accepts the tmdbId field as either a JSON string or number.
func rawID(raw json.RawMessage) string {
	value := strings.TrimSpace(string(raw))
	if value == "" || value == "null" {
		return ""
	}
	if unquoted, err := strconv.Unquote(value); err == nil {
		return strings.TrimSpace(unquoted)
	}
	return value
}
