package search

import (
	"context"
	"testing"

	"github.com/mattgren/viewfinder/internal/ai"
	"github.com/mattgren/viewfinder/internal/library"
)

// --- Mocks ---

type mockImageRepo struct {
	library.ImageRepository

	projections []library.Projection
	found       map[int64]*library.Image
}

func (m *mockImageRepo) ListProjections(ctx context.Context, userID string) ([]library.Projection, error) {
	return m.projections, nil
}

func (m *mockImageRepo) FindByIDs(ctx context.Context, userID string, ids []int64) (map[int64]*library.Image, error) {
	result := make(map[int64]*library.Image)
	for _, id := range ids {
		if img, ok := m.found[id]; ok {
			result[id] = img
		}
	}
	return result, nil
}

type mockTagRepo struct {
	library.TagRepository

	byImage map[int64][]string
}

func (m *mockTagRepo) TagsForImages(ctx context.Context, imageIDs []int64) (map[int64][]string, error) {
	return m.byImage, nil
}

type mockRanker struct {
	ids        []int64
	calls      int
	lastQuery  string
	candidates []ai.Candidate
}

func (m *mockRanker) RankImages(ctx context.Context, query string, candidates []ai.Candidate) []int64 {
	m.calls++
	m.lastQuery = query
	m.candidates = candidates
	return m.ids
}

func newTestSearch(images *mockImageRepo, tags *mockTagRepo, ranker *mockRanker) Service {
	if tags.byImage == nil {
		tags.byImage = map[int64][]string{}
	}
	return NewService(images, tags, ranker)
}

// --- Tests ---

func TestSearch_ReimposesOracleOrder(t *testing.T) {
	images := &mockImageRepo{
		projections: []library.Projection{
			{ID: 2, Filename: "b.jpg", Category: "other"},
			{ID: 5, Filename: "e.jpg", Category: "other"},
			{ID: 9, Filename: "i.jpg", Category: "other"},
		},
		found: map[int64]*library.Image{
			2: {ID: 2, Filename: "b.jpg"},
			5: {ID: 5, Filename: "e.jpg"},
			9: {ID: 9, Filename: "i.jpg"},
		},
	}
	ranker := &mockRanker{ids: []int64{5, 2, 9}}
	svc := newTestSearch(images, &mockTagRepo{}, ranker)

	results, err := svc.Search(context.Background(), "user-1", "beaches")
	if err != nil {
		t.Fatalf("searching: %v", err)
	}

	got := make([]int64, len(results))
	for i, img := range results {
		got[i] = img.ID
	}
	want := []int64{5, 2, 9}
	for i := range want {
		if i >= len(got) || got[i] != want[i] {
			t.Fatalf("expected order %v, got %v", want, got)
		}
	}
}

func TestSearch_SkipsIDsMissingFromStorage(t *testing.T) {
	images := &mockImageRepo{
		projections: []library.Projection{
			{ID: 2, Filename: "b.jpg", Category: "other"},
			{ID: 5, Filename: "e.jpg", Category: "other"},
			{ID: 8, Filename: "h.jpg", Category: "other"},
		},
		// Image 8 was deleted between the candidate scan and the re-fetch.
		found: map[int64]*library.Image{
			2: {ID: 2, Filename: "b.jpg"},
			5: {ID: 5, Filename: "e.jpg"},
		},
	}
	ranker := &mockRanker{ids: []int64{5, 2, 8}}
	svc := newTestSearch(images, &mockTagRepo{}, ranker)

	results, err := svc.Search(context.Background(), "user-1", "beaches")
	if err != nil {
		t.Fatalf("searching: %v", err)
	}

	if len(results) != 2 || results[0].ID != 5 || results[1].ID != 2 {
		t.Errorf("expected [5 2], got %v", results)
	}
}

func TestSearch_BlankQuerySkipsOracle(t *testing.T) {
	ranker := &mockRanker{ids: []int64{1}}
	svc := newTestSearch(&mockImageRepo{}, &mockTagRepo{}, ranker)

	for _, query := range []string{"", "   ", "\t\n"} {
		results, err := svc.Search(context.Background(), "user-1", query)
		if err != nil {
			t.Fatalf("searching %q: %v", query, err)
		}
		if len(results) != 0 {
			t.Errorf("expected no results for blank query %q", query)
		}
	}
	if ranker.calls != 0 {
		t.Errorf("expected no oracle calls for blank queries, got %d", ranker.calls)
	}
}

func TestSearch_EmptyLibrarySkipsOracle(t *testing.T) {
	ranker := &mockRanker{}
	svc := newTestSearch(&mockImageRepo{}, &mockTagRepo{}, ranker)

	results, err := svc.Search(context.Background(), "user-1", "beaches")
	if err != nil {
		t.Fatalf("searching: %v", err)
	}
	if len(results) != 0 {
		t.Errorf("expected no results, got %v", results)
	}
	if ranker.calls != 0 {
		t.Errorf("expected no oracle calls for an empty library, got %d", ranker.calls)
	}
}

func TestSearch_CandidatesCarryTags(t *testing.T) {
	images := &mockImageRepo{
		projections: []library.Projection{
			{ID: 3, Filename: "c.jpg", Category: "animal", Location: "Hokkaido"},
			{ID: 4, Filename: "d.jpg", Category: "other"},
		},
		found: map[int64]*library.Image{3: {ID: 3}},
	}
	tags := &mockTagRepo{byImage: map[int64][]string{3: {"dog", "snow"}}}
	ranker := &mockRanker{ids: []int64{3}}
	svc := newTestSearch(images, tags, ranker)

	if _, err := svc.Search(context.Background(), "user-1", "dogs"); err != nil {
		t.Fatalf("searching: %v", err)
	}

	if len(ranker.candidates) != 2 {
		t.Fatalf("expected 2 candidates, got %d", len(ranker.candidates))
	}
	first := ranker.candidates[0]
	if first.ID != 3 || first.Location != "Hokkaido" || len(first.Tags) != 2 {
		t.Errorf("unexpected candidate: %+v", first)
	}
	// Untagged candidates must serialize with an empty list, not null.
	if ranker.candidates[1].Tags == nil {
		t.Error("untagged candidate should carry an empty tag slice")
	}
}

func TestSearch_OracleOutageDegradesToEmpty(t *testing.T) {
	images := &mockImageRepo{
		projections: []library.Projection{{ID: 1, Filename: "a.jpg", Category: "other"}},
		found:       map[int64]*library.Image{1: {ID: 1}},
	}
	ranker := &mockRanker{ids: nil}
	svc := newTestSearch(images, &mockTagRepo{}, ranker)

	results, err := svc.Search(context.Background(), "user-1", "beaches")
	if err != nil {
		t.Fatalf("an oracle outage must not surface an error, got %v", err)
	}
	if len(results) != 0 {
		t.Errorf("expected empty results, got %v", results)
	}
}
