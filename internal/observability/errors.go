package observability

import (
	"context"
	"errors"

	"leadharvest/internal/httpx"
)

const (
	ErrorNetwork   = "network"
	ErrorBlocked   = "blocked"
	ErrorRateLimit = "rate_limit"
	ErrorUpstream  = "upstream"
	ErrorNotFound  = "not_found"
	ErrorTimeout   = "timeout"
	ErrorResource  = "resource_init"
	ErrorStore     = "store"
	ErrorAI        = "ai"
	ErrorUnknown   = "unknown"
)

// ClassifyFetchError collapses a fetch failure into the coarse kind user-facing
// stats are built from.
func ClassifyFetchError(err error) string {
	if err == nil {
		return ErrorUnknown
	}
	var fe *httpx.FetchError
	if errors.As(err, &fe) {
		switch fe.Kind {
		case httpx.KindNotFound:
			return ErrorNotFound
		case httpx.KindBlocked:
			return ErrorBlocked
		case httpx.KindRateLimited:
			return ErrorRateLimit
		case httpx.KindUpstream:
			return ErrorUpstream
		case httpx.KindTimeout:
			return ErrorTimeout
		default:
			return ErrorNetwork
		}
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return ErrorTimeout
	}
	return ErrorUnknown
}
