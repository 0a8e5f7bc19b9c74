// Package ai wraps the external vision and text models behind two small
// adapters: a tag/description oracle for single images and a relevance
// oracle that scores a batch of image metadata against a search query.
//
// Both adapters follow the same degradation policy: one attempt per
// invocation with a bounded timeout, and every transport or parse failure
// collapses to an empty (or fallback) result. Tagging, descriptions, and
// relevance ranking are enrichment features -- they must never fail the
// operation that invoked them.
package ai

import (
	"time"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"github.com/mattgren/viewfinder/internal/config"
)

// Client holds a configured connection to an OpenAI-compatible endpoint.
// Constructed once at startup and shared by the tagging coordinator and
// the search service.
type Client struct {
	api         openai.Client
	visionModel string
	rankModel   string
	timeout     time.Duration
}

// NewClient creates the oracle client from config. An empty API key is
// allowed: calls will fail at the transport layer and degrade per policy,
// which keeps the rest of the application usable without AI features.
func NewClient(cfg config.AIConfig) *Client {
	opts := []option.RequestOption{option.WithAPIKey(cfg.APIKey)}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}

	return &Client{
		api:         openai.NewClient(opts...),
		visionModel: cfg.VisionModel,
		rankModel:   cfg.RankModel,
		timeout:     cfg.RequestTimeout,
	}
}
