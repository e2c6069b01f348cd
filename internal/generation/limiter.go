package generation

import (
	"context"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/MarcoPoloResearchLab/plantrip/internal/apperr"
	"github.com/MarcoPoloResearchLab/plantrip/internal/itinerary"
)

const opLimiter = "generation.limiter"

// Limited caps the number of provider calls in flight. Callers wait up to
// the acquire timeout for a slot.
type Limited struct {
	next           itinerary.CandidateSource
	slots          *semaphore.Weighted
	acquireTimeout time.Duration
}

// NewLimited wraps next. A non-positive maxConcurrent returns next unchanged.
func NewLimited(next itinerary.CandidateSource, maxConcurrent int, acquireTimeout time.Duration) itinerary.CandidateSource {
	if maxConcurrent <= 0 || next == nil {
		return next
	}
	return &Limited{
		next:           next,
		slots:          semaphore.NewWeighted(int64(maxConcurrent)),
		acquireTimeout: acquireTimeout,
	}
}

func (l *Limited) Generate(ctx context.Context, request itinerary.GenerationRequest) (itinerary.Candidate, error) {
	waitCtx := ctx
	if l.acquireTimeout > 0 {
		var cancel context.CancelFunc
		waitCtx, cancel = context.WithTimeout(ctx, l.acquireTimeout)
		defer cancel()
	}
	if err := l.slots.Acquire(waitCtx, 1); err != nil {
		return itinerary.Candidate{}, apperr.New(apperr.KindUnavailable, opLimiter, "busy", err).
			WithMessage("too many itineraries are being generated, try again shortly")
	}
	defer l.slots.Release(1)
	return l.next.Generate(ctx, request)
}
