package matcher

import (
	"testing"

	"reelscout/internal/catalog"
)

func TestExactIDWinsOverTitleYear(t *testing.T) {
	rec := catalog.Record{ExternalID: "tm1", Title: "Inception", Year: 2010, IMDbID: "tt1375666"}
	candidates := []catalog.Rating{
		{Title: "Inception", Year: 2010, Value: 3.1},
		{IMDbID: "tt1375666", Title: "Inception", Year: 2010, Value: 4.22},
	}
	got, conf := Match(rec, candidates)
	if conf != catalog.ConfidenceExactID {
		t.Fatalf("expected EXACT_ID, got %s", conf)
	}
	if got == nil || got.Value != 4.22 {
		t.Fatalf("expected id-matched candidate, got %+v", got)
	}
}

func TestExactIDIgnoresCase(t *testing.T) {
	rec := catalog.Record{Title: "Heat", IMDbID: "TT0113277"}
	got, conf := Match(rec, []catalog.Rating{{IMDbID: "tt0113277", Title: "Heat (1995)", Value: 4}})
	if conf != catalog.ConfidenceExactID || got == nil {
		t.Fatalf("expected case-insensitive id match, got %v %s", got, conf)
	}
}

func TestTitleYearPrefersMatchingYear(t *testing.T) {
	rec := catalog.Record{Title: "The Matrix", Year: 1999}
	candidates := []catalog.Rating{
		{Title: "The Matrix", Year: 2021, Value: 2.0},
		{Title: "The Matrix", Year: 1999, Value: 4.2},
	}
	got, conf := Match(rec, candidates)
	if conf != catalog.ConfidenceTitleYear {
		t.Fatalf("expected TITLE_YEAR, got %s", conf)
	}
	if got == nil || got.Year != 1999 {
		t.Fatalf("expected 1999 candidate, got %+v", got)
	}
}

func TestTitleComparisonIsNormalized(t *testing.T) {
	rec := catalog.Record{Title: "Amélie", Year: 2001}
	got, conf := Match(rec, []catalog.Rating{{Title: "amelie", Year: 2001, Value: 4}})
	if conf != catalog.ConfidenceTitleYear || got == nil {
		t.Fatalf("expected normalized title match, got %v %s", got, conf)
	}
}

func TestAmbiguousIsNone(t *testing.T) {
	rec := catalog.Record{Title: "Solaris", Year: 2002}
	candidates := []catalog.Rating{
		{Title: "Solaris", Year: 2002, SourceURL: "a"},
		{Title: "Solaris", Year: 2002, SourceURL: "b"},
	}
	got, conf := Match(rec, candidates)
	if conf != catalog.ConfidenceNone || got != nil {
		t.Fatalf("expected NONE for tie, got %v %s", got, conf)
	}
}

func TestSingleCandidateWrongYearIsNone(t *testing.T) {
	rec := catalog.Record{Title: "Dune", Year: 2021}
	got, conf := Match(rec, []catalog.Rating{{Title: "Dune", Year: 1984, Value: 2.9}})
	if conf != catalog.ConfidenceNone || got != nil {
		t.Fatalf("expected NONE for year mismatch, got %v %s", got, conf)
	}
}

func TestUnknownYearIsNone(t *testing.T) {
	rec := catalog.Record{Title: "Dune"}
	if got, conf := Match(rec, []catalog.Rating{{Title: "Dune", Year: 2021}}); conf != catalog.ConfidenceNone || got != nil {
		t.Fatalf("expected NONE without a catalog year, got %v %s", got, conf)
	}
}

func TestNoCandidatesIsNone(t *testing.T) {
	if got, conf := Match(catalog.Record{Title: "Heat", Year: 1995}, nil); conf != catalog.ConfidenceNone || got != nil {
		t.Fatalf("expected NONE, got %v %s", got, conf)
	}
}

func TestMatchDoesNotAliasCandidates(t *testing.T) {
	candidates := []catalog.Rating{{Title: "Heat", Year: 1995, Value: 4}}
	got, _ := Match(catalog.Record{Title: "Heat", Year: 1995}, candidates)
	got.Value = 1
	if candidates[0].Value != 4 {
		t.Fatal("expected Match to return a copy")
	}
}
