// Package search implements relevance-ranked search over a user's library.
// Ranking is delegated to the relevance oracle; this package builds the
// candidate projections, re-fetches the winners, and re-imposes the
// oracle's ordering on the stored records.
package search

import (
	"context"
	"strings"

	"github.com/mattgren/viewfinder/internal/ai"
	"github.com/mattgren/viewfinder/internal/apperror"
	"github.com/mattgren/viewfinder/internal/library"
)

// Ranker scores candidates against a query and returns the relevant IDs in
// descending relevance order.
type Ranker interface {
	RankImages(ctx context.Context, query string, candidates []ai.Candidate) []int64
}

// Service ranks a user's images against a free-text query.
type Service interface {
	Search(ctx context.Context, userID, query string) ([]library.Image, error)
}

type service struct {
	images library.ImageRepository
	tags   library.TagRepository
	ranker Ranker
}

// NewService creates the search service.
func NewService(images library.ImageRepository, tags library.TagRepository, ranker Ranker) Service {
	return &service{images: images, tags: tags, ranker: ranker}
}

// Search returns the user's images relevant to the query, most relevant
// first. A blank query or an oracle outage yields an empty list, never an
// error: search quality degrades, the endpoint does not.
//
// The full per-user candidate scan is deliberate; a personal library of a
// few thousand images fits comfortably in one oracle request.
func (s *service) Search(ctx context.Context, userID, query string) ([]library.Image, error) {
	if strings.TrimSpace(query) == "" {
		return []library.Image{}, nil
	}

	projections, err := s.images.ListProjections(ctx, userID)
	if err != nil {
		return nil, apperror.NewInternal(err)
	}
	if len(projections) == 0 {
		return []library.Image{}, nil
	}

	ids := make([]int64, len(projections))
	for i, p := range projections {
		ids[i] = p.ID
	}
	tagsByImage, err := s.tags.TagsForImages(ctx, ids)
	if err != nil {
		return nil, apperror.NewInternal(err)
	}

	candidates := make([]ai.Candidate, len(projections))
	for i, p := range projections {
		tags := tagsByImage[p.ID]
		if tags == nil {
			tags = []string{}
		}
		candidates[i] = ai.Candidate{
			ID:       p.ID,
			Filename: p.Filename,
			Tags:     tags,
			Category: p.Category,
			Location: p.Location,
		}
	}

	ranked := s.ranker.RankImages(ctx, query, candidates)
	if len(ranked) == 0 {
		return []library.Image{}, nil
	}

	found, err := s.images.FindByIDs(ctx, userID, ranked)
	if err != nil {
		return nil, apperror.NewInternal(err)
	}

	// Walk the oracle's order, skipping IDs deleted since the candidate
	// scan.
	results := make([]library.Image, 0, len(ranked))
	for _, id := range ranked {
		img, ok := found[id]
		if !ok {
			continue
		}
		img.Tags = tagsByImage[id]
		if img.Tags == nil {
			img.Tags = []string{}
		}
		results = append(results, *img)
	}
	return results, nil
}
