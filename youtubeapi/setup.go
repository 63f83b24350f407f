package youtubeapi

import (
	"context"

	"github.com/onnwee/ytchat-collector/config"
)

// NewExecutorFromConfig parses the configured credential pool and builds an executor with the
// configured retry, rotation and rate limits.
func NewExecutorFromConfig(ctx context.Context, cfg *config.Config) (*Executor, error) {
	creds, err := ParseCredentials(cfg.YouTubeKeys)
	if err != nil {
		return nil, err
	}
	factory := NewClientFactory(ClientOptions{
		Timeout:      cfg.RequestTimeout,
		ClientID:     cfg.YTClientID,
		ClientSecret: cfg.YTClientSecret,
	})
	return NewExecutor(ctx, creds,
		WithClientFactory(factory),
		WithRetryDelay(cfg.RetryDelay),
		WithMaxQuotaRotations(cfg.MaxQuotaRotations),
		WithMaxServerRetries(cfg.MaxServerRetries),
		WithRateLimit(cfg.RequestsPerSecond),
	)
}
