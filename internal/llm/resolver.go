package llm

import (
	"context"
	"errors"

	"github.com/rs/zerolog/log"
)

// Resolver runs completion requests against a primary model and falls back
// to a cheaper model when the primary is rate limited or unavailable. Any
// other error from the primary is returned as-is; the fallback exists for
// capacity problems, not for bad requests.
type Resolver struct {
	provider      Provider
	primaryModel  string
	fallbackModel string
}

// NewResolver creates a resolver over one provider with a primary and a
// fallback model name.
func NewResolver(provider Provider, primaryModel, fallbackModel string) *Resolver {
	return &Resolver{
		provider:      provider,
		primaryModel:  primaryModel,
		fallbackModel: fallbackModel,
	}
}

// Generate tries the primary model, then the fallback on rate limiting or
// unavailability. When both fail it returns UpstreamUnavailable.
func (r *Resolver) Generate(ctx context.Context, req *Request) (*Response, error) {
	primary := *req
	primary.Model = r.primaryModel
	resp, primaryErr := r.provider.Generate(ctx, &primary)
	if primaryErr == nil {
		return resp, nil
	}
	if !errors.Is(primaryErr, ErrRateLimited) && !errors.Is(primaryErr, ErrUnavailable) {
		return nil, primaryErr
	}
	if r.fallbackModel == "" || r.fallbackModel == r.primaryModel {
		return nil, &UpstreamUnavailable{Primary: primaryErr}
	}

	log.Warn().
		Err(primaryErr).
		Str("primary_model", r.primaryModel).
		Str("fallback_model", r.fallbackModel).
		Msg("primary model failed, retrying on fallback")

	fallback := *req
	fallback.Model = r.fallbackModel
	resp, fallbackErr := r.provider.Generate(ctx, &fallback)
	if fallbackErr != nil {
		return nil, &UpstreamUnavailable{Primary: primaryErr, Fallback: fallbackErr}
	}
	return resp, nil
}
