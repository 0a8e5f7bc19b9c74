// Package tagging runs AI tag assignment in the background. Uploads enqueue
// an asynq task to Redis; a worker pool inside the same process picks tasks
// up, calls the vision model, and links the resulting tags to the image.
//
// The Redis queue survives restarts, so an upload whose tagging was pending
// when the process died is tagged after the next start. Each delivery makes
// a single model attempt; a failed attempt leaves the image untagged rather
// than retrying a paid call.
package tagging

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"

	"github.com/mattgren/viewfinder/internal/library"
	"github.com/mattgren/viewfinder/internal/metrics"
)

// TaskTypeAutoTag is the asynq task type for automatic image tagging.
const TaskTypeAutoTag = "image:autotag"

// taskTimeout bounds one tagging attempt end to end (file read + model call
// + DB writes).
const taskTimeout = 2 * time.Minute

// autoTagPayload is the JSON task payload.
type autoTagPayload struct {
	ImageID  int64  `json:"image_id"`
	FilePath string `json:"file_path"`
}

// RedisOpt converts a redis:// URL into asynq's connection options so the
// queue shares the session store's Redis instance.
func RedisOpt(url string) (asynq.RedisClientOpt, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return asynq.RedisClientOpt{}, fmt.Errorf("parsing redis url: %w", err)
	}
	return asynq.RedisClientOpt{
		Addr:      opts.Addr,
		Username:  opts.Username,
		Password:  opts.Password,
		DB:        opts.DB,
		TLSConfig: opts.TLSConfig,
	}, nil
}

// Enqueuer schedules tagging tasks. Satisfies library.Enqueuer.
type Enqueuer struct {
	client *asynq.Client
}

// NewEnqueuer creates an enqueuer on an existing asynq client.
func NewEnqueuer(client *asynq.Client) *Enqueuer {
	return &Enqueuer{client: client}
}

// EnqueueAutoTag schedules background tagging for a stored image.
func (e *Enqueuer) EnqueueAutoTag(ctx context.Context, imageID int64, filePath string) error {
	payload, err := json.Marshal(autoTagPayload{ImageID: imageID, FilePath: filePath})
	if err != nil {
		return fmt.Errorf("marshaling autotag payload: %w", err)
	}

	task := asynq.NewTask(TaskTypeAutoTag, payload)
	_, err = e.client.EnqueueContext(ctx, task,
		asynq.MaxRetry(0),
		asynq.Timeout(taskTimeout),
	)
	if err != nil {
		return fmt.Errorf("enqueueing autotag task: %w", err)
	}
	return nil
}

// Tagger produces tags for raw image bytes.
type Tagger interface {
	GenerateTags(ctx context.Context, imageData []byte) []string
}

// TagStore is the subset of the tag repository the worker needs. Satisfied
// by library.TagRepository.
type TagStore interface {
	GetOrCreate(ctx context.Context, name string) (*library.Tag, error)
	Link(ctx context.Context, imageID, tagID int64) error
}

// Handler processes tagging tasks.
type Handler struct {
	tagger Tagger
	tags   TagStore
}

// NewHandler creates a tagging task handler.
func NewHandler(tagger Tagger, tags TagStore) *Handler {
	return &Handler{tagger: tagger, tags: tags}
}

// HandleAutoTag runs one tagging task. The handler is idempotent: tags are
// canonicalized before storage and re-linking is a no-op, so a redelivered
// task converges on the same tag set.
func (h *Handler) HandleAutoTag(ctx context.Context, task *asynq.Task) error {
	var payload autoTagPayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		metrics.RecordTaggingTask("failed")
		return fmt.Errorf("unmarshaling autotag payload: %w", err)
	}

	data, err := os.ReadFile(payload.FilePath)
	if err != nil {
		// The image was deleted between upload and processing; nothing to do.
		if os.IsNotExist(err) {
			slog.Info("skipping tagging for removed image",
				slog.Int64("image_id", payload.ImageID),
			)
			metrics.RecordTaggingTask("skipped")
			return nil
		}
		metrics.RecordTaggingTask("failed")
		return fmt.Errorf("reading image for tagging: %w", err)
	}

	tags := h.tagger.GenerateTags(ctx, data)

	linked := 0
	seen := make(map[string]bool)
	for _, raw := range tags {
		name := library.CanonicalTag(raw)
		if name == "" || seen[name] {
			continue
		}
		seen[name] = true

		tag, err := h.tags.GetOrCreate(ctx, name)
		if err != nil {
			metrics.RecordTaggingTask("failed")
			return fmt.Errorf("storing tag %q: %w", name, err)
		}
		if err := h.tags.Link(ctx, payload.ImageID, tag.ID); err != nil {
			metrics.RecordTaggingTask("failed")
			return fmt.Errorf("linking tag %q: %w", name, err)
		}
		linked++
	}

	if linked == 0 {
		slog.Info("tagging produced no tags", slog.Int64("image_id", payload.ImageID))
		metrics.RecordTaggingTask("empty")
		return nil
	}

	slog.Info("image tagged",
		slog.Int64("image_id", payload.ImageID),
		slog.Int("tags", linked),
	)
	metrics.RecordTaggingTask("ok")
	return nil
}

// NewServer builds the asynq worker server and its task mux.
func NewServer(opt asynq.RedisClientOpt, concurrency int, h *Handler) (*asynq.Server, *asynq.ServeMux) {
	srv := asynq.NewServer(opt, asynq.Config{
		Concurrency: concurrency,
	})

	mux := asynq.NewServeMux()
	mux.HandleFunc(TaskTypeAutoTag, h.HandleAutoTag)

	return srv, mux
}
