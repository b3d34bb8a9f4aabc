package letterboxd

import (
	"bytes"
	"errors"
	"regexp"
	"strconv"
	"strings"

	"github.com/goccy/go-json"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"

	"reelscout/internal/catalog"
)

var (
	imdbLinkPattern  = regexp.MustCompile(`imdb\.com/title/(tt\d+)`)
	titleYearPattern = regexp.MustCompile(`^(.*?)\s*\((\d{4})\)\s*$`)
	outOfFivePattern = regexp.MustCompile(`^\s*(\d+(?:\.\d+)?)\s+out of 5`)
	yearPattern      = regexp.MustCompile(`\b(\d{4})\b`)
)

type filmPage struct {
	title  string
	year   int
	url    string
	imdbID string
	genres []string
	value  *float64
	count  *int
}

type movieLD struct {
	Type            any    `json:"@type"`
	Name            string `json:"name"`
	URL             string `json:"url"`
	Genre           any    `json:"genre"`
	AggregateRating *struct {
		RatingValue json.Number `json:"ratingValue"`
		RatingCount json.Number `json:"ratingCount"`
	} `json:"aggregateRating"`
	ReleasedEvent []struct {
		StartDate string `json:"startDate"`
	} `json:"releasedEvent"`
}

// parseFilmPage extracts film metadata from a Letterboxd film page. A page
// without any recognizable film title is schema drift.
func parseFilmPage(body []byte) (*filmPage, error) {
	doc, err := html.Parse(bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	page := &filmPage{}
	var ldBlocks []string
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode {
			switch n.DataAtom {
			case atom.Meta:
				page.applyMeta(attr(n, "property"), attr(n, "name"), attr(n, "content"))
			case atom.Script:
				if strings.EqualFold(attr(n, "type"), "application/ld+json") && n.FirstChild != nil {
					ldBlocks = append(ldBlocks, n.FirstChild.Data)
				}
			case atom.A:
				href := attr(n, "href")
				if page.imdbID == "" {
					if m := imdbLinkPattern.FindStringSubmatch(href); m != nil {
						page.imdbID = m[1]
					}
				}
				if strings.Contains(href, "/films/genre/") {
					if text := strings.TrimSpace(textContent(n)); text != "" {
						page.addGenre(text)
					}
				}
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(doc)

	for _, block := range ldBlocks {
		if err := page.applyJSONLD(block); err != nil {
			return nil, err
		}
	}
	if strings.TrimSpace(page.title) == "" {
		return nil, errors.New("film title not found")
	}
	return page, nil
}

func (p *filmPage) applyMeta(property, name, content string) {
	content = strings.TrimSpace(content)
	switch {
	case property == "og:title" && p.title == "":
		if m := titleYearPattern.FindStringSubmatch(content); m != nil {
			p.title = m[1]
			p.year, _ = strconv.Atoi(m[2])
		} else {
			p.title = content
		}
	case property == "og:url" && p.url == "":
		p.url = content
	case name == "twitter:data2" && p.value == nil:
		if m := outOfFivePattern.FindStringSubmatch(content); m != nil {
			if v, err := strconv.ParseFloat(m[1], 64); err == nil {
				p.value = &v
			}
		}
	}
}

func (p *filmPage) applyJSONLD(raw string) error {
	raw = strings.TrimSpace(raw)
	raw = strings.TrimPrefix(raw, "/* <![CDATA[ */")
	raw = strings.TrimSuffix(raw, "/* ]]> */")
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil
	}
	var ld movieLD
	if err := json.Unmarshal([]byte(raw), &ld); err != nil {
		return err
	}
	if t, ok := ld.Type.(string); ok && t != "" && t != "Movie" {
		return nil
	}
	if name := strings.TrimSpace(ld.Name); name != "" {
		p.title = name
	}
	if ld.URL != "" {
		p.url = ld.URL
	}
	for _, ev := range ld.ReleasedEvent {
		if m := yearPattern.FindStringSubmatch(ev.StartDate); m != nil {
			p.year, _ = strconv.Atoi(m[1])
			break
		}
	}
	switch g := ld.Genre.(type) {
	case string:
		p.addGenre(g)
	case []any:
		for _, item := range g {
			if s, ok := item.(string); ok {
				p.addGenre(s)
			}
		}
	}
	if ld.AggregateRating != nil {
		if v, err := ld.AggregateRating.RatingValue.Float64(); err == nil {
			p.value = &v
		}
		if n, err := ld.AggregateRating.RatingCount.Int64(); err == nil {
			count := int(n)
			p.count = &count
		}
	}
	return nil
}

func (p *filmPage) addGenre(name string) {
	name = strings.TrimSpace(name)
	if name == "" {
		return
	}
	for _, g := range p.genres {
		if strings.EqualFold(g, name) {
			return
		}
	}
	p.genres = append(p.genres, name)
}

// rating converts the page into a Rating. ok is false when the film has no
// average yet.
func (p *filmPage) rating() (catalog.Rating, bool) {
	if p.value == nil {
		return catalog.Rating{}, false
	}
	return catalog.Rating{
		IMDbID:    p.imdbID,
		Title:     strings.TrimSpace(p.title),
		Year:      p.year,
		Value:     *p.value,
		Count:     p.count,
		Genres:    append([]string(nil), p.genres...),
		SourceURL: p.url,
	}, true
}

func attr(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if strings.EqualFold(a.Key, key) {
			return a.Val
		}
	}
	return ""
}

func textContent(n *html.Node) string {
	var b strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.TextNode {
			b.WriteString(n.Data)
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return b.String()
}
