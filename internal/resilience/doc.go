// Package resilience holds the fault tolerance building blocks the
// pipeline leans on when upstreams misbehave: circuit breakers for
// feed hosts and the embedding API, and retry logic with exponential
// backoff and jitter.
//
// Usage Example:
//
//	breakers := circuitbreaker.NewHostBreakers()
//	result, err := breakers.Do("feeds.example.com", func() (interface{}, error) {
//	    return fetchFeed()
//	})
//
//	err := retry.WithBackoff(ctx, retry.EmbeddingAPIConfig(), func() error {
//	    return embedBatch()
//	})
package resilience
