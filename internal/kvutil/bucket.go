// Package kvutil provides helpers for NATS JetStream KeyValue buckets.
package kvutil

import (
	"context"
	"errors"
	"fmt"
	rand "math/rand/v2"
	"time"

	"github.com/nats-io/nats.go/jetstream"
)

// RetryPolicy bounds the attempts EnsureBucket makes.
type RetryPolicy struct {
	// Attempts is the total number of tries. Default: 3.
	Attempts int

	// BaseDelay is the first backoff; later ones double with full jitter. Default: 10ms.
	BaseDelay time.Duration
}

// EnsureBucket creates a KV bucket or opens it when another process created it first.
//
// Several workers starting together race to create the presence bucket; the loser
// of the race sees ErrBucketExists and opens the existing bucket instead.
//
// Parameters:
//   - ctx: Context for timeout/cancellation
//   - js: JetStream context
//   - cfg: Bucket configuration used when creating
//   - policy: Retry bounds; zero values use defaults
//
// Returns:
//   - jetstream.KeyValue: The bucket handle
//   - error: Last error after all attempts, or the context error
//
// Example:
//
//	kv, err := kvutil.EnsureBucket(ctx, js, jetstream.KeyValueConfig{
//	    Bucket: "imgpool-workers",
//	    TTL:    15 * time.Second,
//	}, kvutil.RetryPolicy{})
func EnsureBucket(
	ctx context.Context,
	js jetstream.JetStream,
	cfg jetstream.KeyValueConfig,
	policy RetryPolicy,
) (jetstream.KeyValue, error) {
	if policy.Attempts <= 0 {
		policy.Attempts = 3
	}
	if policy.BaseDelay <= 0 {
		policy.BaseDelay = 10 * time.Millisecond
	}

	var lastErr error
	for attempt := range policy.Attempts {
		kv, err := js.CreateKeyValue(ctx, cfg)
		if err == nil {
			return kv, nil
		}

		if errors.Is(err, jetstream.ErrBucketExists) {
			kv, openErr := js.KeyValue(ctx, cfg.Bucket)
			if openErr == nil {
				return kv, nil
			}
			lastErr = fmt.Errorf("bucket exists but failed to open: %w", openErr)
		} else {
			lastErr = err
		}

		if ctx.Err() != nil {
			return nil, fmt.Errorf("ensure KV bucket %s: %w", cfg.Bucket, ctx.Err())
		}

		if attempt < policy.Attempts-1 {
			select {
			case <-ctx.Done():
				return nil, fmt.Errorf("ensure KV bucket %s: %w", cfg.Bucket, ctx.Err())
			case <-time.After(jitter(policy.BaseDelay, attempt)):
			}
		}
	}

	return nil, fmt.Errorf("failed to create/open KV bucket %s after %d attempts: %w",
		cfg.Bucket, policy.Attempts, lastErr)
}

// jitter returns a random delay in [base, base<<attempt].
func jitter(base time.Duration, attempt int) time.Duration {
	ceiling := base << min(attempt, 10)
	if ceiling <= base {
		return base
	}

	return base + rand.N(ceiling-base) //nolint:gosec // backoff jitter, not security sensitive
}
