package config

import "fmt"

// Validate performs business-rule validation on the loaded configuration.
// It must be called after loading; Load calls it automatically.
func (c *Config) Validate() error {
	if err := c.Pipeline.validate(); err != nil {
		return fmt.Errorf("pipeline: %w", err)
	}
	if err := c.Batch.validate(); err != nil {
		return fmt.Errorf("batch: %w", err)
	}
	if c.Classifier.MaxRetries < 1 {
		return fmt.Errorf("classifier: max_retries must be >= 1 (got %d)", c.Classifier.MaxRetries)
	}
	if c.Classifier.MaxTokens <= 0 {
		return fmt.Errorf("classifier: max_tokens must be > 0 (got %d)", c.Classifier.MaxTokens)
	}
	return nil
}

func (p *PipelineConfig) validate() error {
	if p.AutoAcceptThreshold < 0 || p.AutoAcceptThreshold > 1 {
		return fmt.Errorf("auto_accept_threshold must be in [0,1] (got %v)", p.AutoAcceptThreshold)
	}
	if p.ReviewThreshold < 0 || p.ReviewThreshold > 1 {
		return fmt.Errorf("review_threshold must be in [0,1] (got %v)", p.ReviewThreshold)
	}
	if p.ReviewThreshold > p.AutoAcceptThreshold {
		return fmt.Errorf("review_threshold (%v) must not exceed auto_accept_threshold (%v)",
			p.ReviewThreshold, p.AutoAcceptThreshold)
	}
	if p.MaxBracketLength <= 0 {
		return fmt.Errorf("max_bracket_length must be > 0 (got %d)", p.MaxBracketLength)
	}
	if p.ContextBefore < 0 || p.ContextAfter < 0 {
		return fmt.Errorf("context window sizes must be >= 0")
	}
	if p.EventBatchSize <= 0 {
		return fmt.Errorf("event_batch_size must be > 0 (got %d)", p.EventBatchSize)
	}
	if p.IngestWorkers <= 0 {
		return fmt.Errorf("ingest_workers must be > 0 (got %d)", p.IngestWorkers)
	}
	return nil
}

func (b *BatchConfig) validate() error {
	if b.MaxRequests <= 0 {
		return fmt.Errorf("max_requests must be > 0 (got %d)", b.MaxRequests)
	}
	if b.PollInterval <= 0 {
		return fmt.Errorf("poll_interval must be > 0 (got %v)", b.PollInterval)
	}
	if b.PollTimeout < 0 {
		return fmt.Errorf("poll_timeout must be >= 0 (got %v)", b.PollTimeout)
	}
	return nil
}
