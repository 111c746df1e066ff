package ai

import (
	"context"
	"fmt"
	"iter"
	"log/slog"

	anthropic "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/hearthkeep/chronicle/internal/config"
	"github.com/hearthkeep/chronicle/internal/domain"
)

// BatchRequest is one correlation-tagged unit of a bulk submission.
type BatchRequest struct {
	CustomID string
	System   string
	User     string
}

// BatchResult is the outcome of a single request in an ended batch.
// Content is set only for succeeded results; ErrorMessage describes
// errored, canceled, and expired ones.
type BatchResult struct {
	CustomID     string
	Type         domain.BatchResultType
	Content      string
	ErrorMessage string
}

// BatchClient wraps the Message Batches API. Submission and status
// checks are state queries against the external service and are not
// retried; a failure there is surfaced immediately.
type BatchClient struct {
	api         anthropic.Client
	model       anthropic.Model
	maxTokens   int64
	maxRequests int
	log         *slog.Logger
}

func NewBatchClient(log *slog.Logger, cfg config.ClassifierConfig, maxRequests int) *BatchClient {
	return &BatchClient{
		api:         anthropic.NewClient(option.WithAPIKey(cfg.APIKey)),
		model:       anthropic.Model(cfg.Model),
		maxTokens:   int64(cfg.MaxTokens),
		maxRequests: maxRequests,
		log:         log.With("component", "ai_batch"),
	}
}

// CreateBatch submits the requests as one asynchronous job. Empty
// submissions and submissions over the request cap are rejected before
// touching the service.
func (c *BatchClient) CreateBatch(ctx context.Context, requests []BatchRequest) (domain.BatchJob, error) {
	if len(requests) == 0 {
		return domain.BatchJob{}, fmt.Errorf("%w: cannot create empty batch", domain.ErrValidation)
	}
	if len(requests) > c.maxRequests {
		return domain.BatchJob{}, fmt.Errorf("%w: batch size %d exceeds maximum %d",
			domain.ErrValidation, len(requests), c.maxRequests)
	}

	apiRequests := make([]anthropic.MessageBatchNewParamsRequest, 0, len(requests))
	for _, req := range requests {
		apiRequests = append(apiRequests, anthropic.MessageBatchNewParamsRequest{
			CustomID: req.CustomID,
			Params: anthropic.MessageBatchNewParamsRequestParams{
				Model:       c.model,
				MaxTokens:   c.maxTokens,
				Temperature: anthropic.Float(0),
				System: []anthropic.TextBlockParam{
					{Text: req.System},
				},
				Messages: []anthropic.MessageParam{
					anthropic.NewUserMessage(anthropic.NewTextBlock(req.User)),
				},
			},
		})
	}

	batch, err := c.api.Messages.Batches.New(ctx, anthropic.MessageBatchNewParams{
		Requests: apiRequests,
	})
	if err != nil {
		return domain.BatchJob{}, fmt.Errorf("create batch: %w", err)
	}

	c.log.Info("batch created",
		slog.String("batch_id", batch.ID),
		slog.Int("requests", len(requests)),
	)
	return toBatchJob(batch), nil
}

// GetBatch fetches the current status of a submitted job.
func (c *BatchClient) GetBatch(ctx context.Context, batchID string) (domain.BatchJob, error) {
	batch, err := c.api.Messages.Batches.Get(ctx, batchID)
	if err != nil {
		return domain.BatchJob{}, fmt.Errorf("get batch %s: %w", batchID, err)
	}
	return toBatchJob(batch), nil
}

// CancelBatch initiates cancellation; requests already processed still
// produce results once the job ends.
func (c *BatchClient) CancelBatch(ctx context.Context, batchID string) (domain.BatchJob, error) {
	batch, err := c.api.Messages.Batches.Cancel(ctx, batchID)
	if err != nil {
		return domain.BatchJob{}, fmt.Errorf("cancel batch %s: %w", batchID, err)
	}
	c.log.Info("batch cancellation initiated", slog.String("batch_id", batchID))
	return toBatchJob(batch), nil
}

// Results streams the per-request outcomes of an ended batch. The
// sequence is lazy and restartable per call; a stream error ends it
// with a non-nil error value.
func (c *BatchClient) Results(ctx context.Context, batchID string) iter.Seq2[BatchResult, error] {
	return func(yield func(BatchResult, error) bool) {
		stream := c.api.Messages.Batches.ResultsStreaming(ctx, batchID)
		defer stream.Close()

		for stream.Next() {
			if !yield(toBatchResult(stream.Current()), nil) {
				return
			}
		}
		if err := stream.Err(); err != nil {
			yield(BatchResult{}, fmt.Errorf("batch %s results: %w", batchID, err))
		}
	}
}

func toBatchJob(batch *anthropic.MessageBatch) domain.BatchJob {
	job := domain.BatchJob{
		BatchID: batch.ID,
		Status:  domain.BatchStatus(batch.ProcessingStatus),
		Counts: domain.RequestCounts{
			Processing: int(batch.RequestCounts.Processing),
			Succeeded:  int(batch.RequestCounts.Succeeded),
			Errored:    int(batch.RequestCounts.Errored),
			Canceled:   int(batch.RequestCounts.Canceled),
			Expired:    int(batch.RequestCounts.Expired),
		},
		SubmittedAt: batch.CreatedAt,
		ExpiresAt:   batch.ExpiresAt,
	}
	if !batch.EndedAt.IsZero() {
		ended := batch.EndedAt
		job.EndedAt = &ended
	}
	return job
}

func toBatchResult(res anthropic.MessageBatchIndividualResponse) BatchResult {
	out := BatchResult{
		CustomID: res.CustomID,
		Type:     domain.BatchResultType(res.Result.Type),
	}

	switch out.Type {
	case domain.BatchResultSucceeded:
		if len(res.Result.Message.Content) > 0 {
			out.Content = res.Result.Message.Content[0].Text
		}
	case domain.BatchResultErrored:
		out.ErrorMessage = fmt.Sprintf("%s: %s", res.Result.Error.Error.Type, res.Result.Error.Error.Message)
	default:
		out.ErrorMessage = fmt.Sprintf("request %s", out.Type)
	}
	return out
}
