package ai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/shared"

	"github.com/mattgren/viewfinder/internal/metrics"
)

// relevanceThreshold is the minimum score (inclusive) an image must reach
// to appear in search results.
const relevanceThreshold = 60

const rankSystemPrompt = `You score how relevant each image is to a user's search query, judging only from the image metadata provided (filename, tags, category, location). Score each image from 0 to 100:
- 90-100: the image clearly matches the query's subject
- 70-89: the image is strongly related to the query
- 40-69: the image is loosely related to the query
- 0-39: the image is unrelated
Respond with JSON only, in the form {"results": [{"id": <image id>, "score": <0-100>}, ...]}, covering every image.`

// Candidate is the metadata projection of one image sent to the relevance
// model. Tags must never be null on the wire, so callers pass an empty
// slice for untagged images.
type Candidate struct {
	ID       int64    `json:"id"`
	Filename string   `json:"filename"`
	Tags     []string `json:"tags"`
	Category string   `json:"category"`
	Location string   `json:"location,omitempty"`
}

// rankResponse is the JSON object the relevance model is instructed to return.
type rankResponse struct {
	Results []struct {
		ID    int64 `json:"id"`
		Score int   `json:"score"`
	} `json:"results"`
}

// RankImages scores the candidates against the query and returns the IDs
// that scored at or above the relevance threshold, most relevant first.
// Candidates the model did not mention are treated as irrelevant. Empty
// input short-circuits without calling the model; every failure degrades
// to an empty result.
func (c *Client) RankImages(ctx context.Context, query string, candidates []Candidate) []int64 {
	if len(candidates) == 0 {
		return nil
	}

	payload, err := encodeCandidates(candidates)
	if err != nil {
		slog.Warn("encoding ranking candidates", slog.Any("error", err))
		return nil
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	start := time.Now()
	resp, err := c.api.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model: openai.ChatModel(c.rankModel),
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(rankSystemPrompt),
			openai.UserMessage(fmt.Sprintf("Query: %s\n\nImages:\n%s", query, payload)),
		},
		ResponseFormat: openai.ChatCompletionNewParamsResponseFormatUnion{
			OfJSONObject: &shared.ResponseFormatJSONObjectParam{},
		},
	})
	metrics.ObserveOracleLatency("ranker", time.Since(start))
	if err != nil {
		slog.Warn("relevance ranking failed",
			slog.String("query", query),
			slog.Any("error", err),
		)
		metrics.RecordOracleFailure("ranker")
		return nil
	}

	var parsed rankResponse
	if err := json.Unmarshal([]byte(completionContent(resp)), &parsed); err != nil {
		slog.Warn("ranking response was not valid JSON", slog.Any("error", err))
		metrics.RecordOracleFailure("ranker")
		return nil
	}

	type scored struct {
		id    int64
		score int
	}
	var kept []scored
	for _, r := range parsed.Results {
		if r.Score >= relevanceThreshold {
			kept = append(kept, scored{id: r.ID, score: r.Score})
		}
	}

	// Stable so ties keep the model's ordering.
	sort.SliceStable(kept, func(i, j int) bool { return kept[i].score > kept[j].score })

	ids := make([]int64, len(kept))
	for i, s := range kept {
		ids[i] = s.id
	}
	return ids
}

// encodeCandidates serializes the metadata without HTML escaping so that
// filenames and tags reach the model as written.
func encodeCandidates(candidates []Candidate) (string, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(candidates); err != nil {
		return "", err
	}
	return buf.String(), nil
}
