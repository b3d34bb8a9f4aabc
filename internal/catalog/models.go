package catalog

import (
	"strings"
	"time"

	"reelscout/internal/textutil"
)

// Record is one title in a platform catalog. ExternalID is unique within a
// snapshot.
type Record struct {
	PlatformKey string   `json:"platform_key"`
	ExternalID  string   `json:"external_id"`
	Title       string   `json:"title"`
	Year        int      `json:"year,omitempty"`
	Genres      []string `json:"genres,omitempty"`
	IMDbID      string   `json:"imdb_id,omitempty"`
	TMDBID      string   `json:"tmdb_id,omitempty"`
}

// Rating is rating metadata returned by the rating source.
type Rating struct {
	IMDbID    string   `json:"imdb_id,omitempty"`
	Title     string   `json:"title"`
	Year      int      `json:"year,omitempty"`
	Value     float64  `json:"value"`
	Count     *int     `json:"count,omitempty"`
	Genres    []string `json:"genres,omitempty"`
	SourceURL string   `json:"source_url,omitempty"`
}

// Key returns the IMDb id when present, otherwise the normalized title/year key.
func (r Rating) Key() string {
	if id := strings.TrimSpace(r.IMDbID); id != "" {
		return strings.ToLower(id)
	}
	return textutil.TitleYearKey(r.Title, r.Year)
}

// NormalizeIMDbID lowercases id and reports whether it has the tt-prefixed
// numeric form IMDb uses.
func NormalizeIMDbID(id string) (string, bool) {
	id = strings.ToLower(strings.TrimSpace(id))
	digits, ok := strings.CutPrefix(id, "tt")
	if !ok || digits == "" {
		return id, false
	}
	for _, r := range digits {
		if r < '0' || r > '9' {
			return id, false
		}
	}
	return id, true
}

// Confidence describes how a catalog record was bound to a rating.
type Confidence string

const (
	ConfidenceExactID   Confidence = "EXACT_ID"
	ConfidenceTitleYear Confidence = "TITLE_YEAR"
	ConfidenceNone      Confidence = "NONE"
)

// Valid reports whether c is one of the known confidence values.
func (c Confidence) Valid() bool {
	switch c {
	case ConfidenceExactID, ConfidenceTitleYear, ConfidenceNone:
		return true
	}
	return false
}

// MatchedMovie joins a catalog record with its rating, if any.
type MatchedMovie struct {
	Record         Record     `json:"record"`
	Rating         *Rating    `json:"rating,omitempty"`
	Confidence     Confidence `json:"confidence"`
	LastEnrichedAt time.Time  `json:"last_enriched_at"`
	// LookupFailed marks a hard enrichment failure. Such rows count as
	// missing and are retried on the next sync.
	LookupFailed bool `json:"lookup_failed,omitempty"`
}

// Normalize enforces that a NONE confidence never carries a rating and that a
// rated match never claims NONE.
func (m MatchedMovie) Normalize() MatchedMovie {
	if !m.Confidence.Valid() {
		m.Confidence = ConfidenceNone
	}
	if m.Confidence == ConfidenceNone {
		m.Rating = nil
	} else if m.Rating == nil {
		m.Confidence = ConfidenceNone
	}
	return m
}

// Missing reports whether the movie lacks a confident rating.
func (m MatchedMovie) Missing() bool {
	return m.Confidence == ConfidenceNone || m.Rating == nil
}

// Snapshot is a full platform catalog captured at FetchedAt.
type Snapshot struct {
	PlatformKey string    `json:"platform_key"`
	FetchedAt   time.Time `json:"fetched_at"`
	Records     []Record  `json:"records"`
}

// IDs returns the external ids in snapshot order.
func (s Snapshot) IDs() []string {
	ids := make([]string, 0, len(s.Records))
	for _, rec := range s.Records {
		ids = append(ids, rec.ExternalID)
	}
	return ids
}
