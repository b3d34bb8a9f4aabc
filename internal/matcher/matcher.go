// Package matcher binds a catalog record to at most one rating candidate.
//
// The decision order is a strict chain, not a score:
//  1. a candidate whose IMDb id equals the record's wins outright (EXACT_ID);
//  2. otherwise, among candidates whose normalized title equals the record's,
//     exactly one with the same release year is accepted (TITLE_YEAR);
//  3. anything else, including ties and year mismatches, is NONE.
package matcher

import (
	"strings"

	"reelscout/internal/catalog"
	"reelscout/internal/textutil"
)

// Match returns the chosen candidate and the confidence of the binding. The
// returned rating is nil exactly when confidence is NONE.
func Match(rec catalog.Record, candidates []catalog.Rating) (*catalog.Rating, catalog.Confidence) {
	if id := normalizeID(rec.IMDbID); id != "" {
		for i := range candidates {
			if normalizeID(candidates[i].IMDbID) == id {
				chosen := candidates[i]
				return &chosen, catalog.ConfidenceExactID
			}
		}
	}

	if rec.Year <= 0 {
		return nil, catalog.ConfidenceNone
	}
	title := textutil.NormalizeTitle(rec.Title)
	if title == "" {
		return nil, catalog.ConfidenceNone
	}

	var chosen *catalog.Rating
	for i := range candidates {
		if candidates[i].Year != rec.Year {
			continue
		}
		if textutil.NormalizeTitle(candidates[i].Title) != title {
			continue
		}
		if chosen != nil {
			return nil, catalog.ConfidenceNone
		}
		c := candidates[i]
		chosen = &c
	}
	if chosen == nil {
		return nil, catalog.ConfidenceNone
	}
	return chosen, catalog.ConfidenceTitleYear
}

func normalizeID(id string) string {
	return strings.ToLower(strings.TrimSpace(id))
}
