package ai

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"log/slog"
	"strings"
	"time"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/shared"

	"github.com/mattgren/viewfinder/internal/metrics"
)

// DescriptionFallback is returned by DescribeImage when the model cannot
// produce a description.
const DescriptionFallback = "No description available."

const tagSystemPrompt = `You are an image tagging assistant. Look at the image and produce 3 to 5 short, concrete tags describing its main subjects, setting, and mood. Respond with JSON only, in the form {"tags": ["tag1", "tag2", ...]}.`

const describeSystemPrompt = `You are an image description assistant. Describe the image in one or two natural sentences, at most 100 characters. Respond with the description text only.`

// tagResponse is the JSON object the vision model is instructed to return.
type tagResponse struct {
	Tags []string `json:"tags"`
}

// GenerateTags asks the vision model for 3-5 descriptive tags for the given
// image bytes. On any failure (transport, refusal, malformed JSON) it returns
// an empty slice: tagging is best-effort and the caller stores whatever came
// back.
func (c *Client) GenerateTags(ctx context.Context, imageData []byte) []string {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	start := time.Now()
	resp, err := c.api.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model: openai.ChatModel(c.visionModel),
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(tagSystemPrompt),
			visionMessage("Tag this image.", imageData),
		},
		ResponseFormat: openai.ChatCompletionNewParamsResponseFormatUnion{
			OfJSONObject: &shared.ResponseFormatJSONObjectParam{},
		},
		MaxTokens: openai.Int(200),
	})
	metrics.ObserveOracleLatency("tagger", time.Since(start))
	if err != nil {
		slog.Warn("tag generation failed", slog.Any("error", err))
		metrics.RecordOracleFailure("tagger")
		return nil
	}

	content := completionContent(resp)
	var parsed tagResponse
	if err := json.Unmarshal([]byte(content), &parsed); err != nil {
		slog.Warn("tag response was not valid JSON", slog.Any("error", err))
		metrics.RecordOracleFailure("tagger")
		return nil
	}

	return parsed.Tags
}

// DescribeImage asks the vision model for a short natural-language
// description. Failures return DescriptionFallback rather than an error.
func (c *Client) DescribeImage(ctx context.Context, imageData []byte) string {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	start := time.Now()
	resp, err := c.api.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model: openai.ChatModel(c.visionModel),
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(describeSystemPrompt),
			visionMessage("Describe this image.", imageData),
		},
		MaxTokens: openai.Int(150),
	})
	metrics.ObserveOracleLatency("describer", time.Since(start))
	if err != nil {
		slog.Warn("image description failed", slog.Any("error", err))
		metrics.RecordOracleFailure("describer")
		return DescriptionFallback
	}

	content := strings.TrimSpace(completionContent(resp))
	if content == "" {
		return DescriptionFallback
	}
	return content
}

// visionMessage builds a user message carrying a text instruction plus the
// image as a base64 data URL, which keeps the adapter independent of where
// the image bytes live.
func visionMessage(instruction string, imageData []byte) openai.ChatCompletionMessageParamUnion {
	dataURL := "data:image/jpeg;base64," + base64.StdEncoding.EncodeToString(imageData)
	return openai.UserMessage([]openai.ChatCompletionContentPartUnionParam{
		openai.TextContentPart(instruction),
		openai.ImageContentPart(openai.ChatCompletionContentPartImageImageURLParam{
			URL: dataURL,
		}),
	})
}

// completionContent extracts the first choice's message text, tolerating
// responses with no choices.
func completionContent(resp *openai.ChatCompletion) string {
	if resp == nil || len(resp.Choices) == 0 {
		return ""
	}
	return resp.Choices[0].Message.Content
}
