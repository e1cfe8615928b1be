package session

import (
	"context"
	"log/slog"
)

// Resolver selects the network source a viewer is entitled to play for a
// given ContentReference. The selection policy is fixed:
//
//  1. Only active sources are considered.
//  2. Free sources are always playable; when the viewer is entitled and a
//     VIP source also exists, the VIP source wins.
//  3. VIP-only content without an entitlement yields SubscriptionRequired,
//     and the VIP URL is never exposed.
//  4. Everything else (listing failure, no sources, no usable URL)
//     collapses to NotFound.
//
// Entitlement is only looked up when the decision actually depends on it,
// so purely free content costs no extra round trip.
type Resolver struct {
	backend      Backend
	entitlements *EntitlementChecker
	log          *slog.Logger

	// preferVIPWhenEntitled controls step 2. It matches long-standing
	// product behavior; tests depend on the default being true.
	preferVIPWhenEntitled bool
}

// NewResolver returns a Resolver reading sources from backend and
// entitlements through checker.
func NewResolver(backend Backend, checker *EntitlementChecker, log *slog.Logger, preferVIPWhenEntitled bool) *Resolver {
	return &Resolver{
		backend:               backend,
		entitlements:          checker,
		log:                   log,
		preferVIPWhenEntitled: preferVIPWhenEntitled,
	}
}

// Resolve applies the selection policy for ref on behalf of viewerID.
// It never returns an error; failures are folded into the Resolution
// outcome with the specific reason kept for logging.
func (r *Resolver) Resolve(ctx context.Context, ref ContentReference, viewerID int64) Resolution {
	var (
		sources []Source
		err     error
	)
	switch ref.Kind {
	case ContentMovie:
		sources, err = r.backend.SourcesForMovie(ctx, ref.ID)
	case ContentEpisode:
		sources, err = r.backend.SourcesForEpisode(ctx, ref.ID)
	default:
		return Resolution{Outcome: OutcomeNotFound, Reason: FailureNoEligibleSource}
	}
	if err != nil {
		r.log.Warn("source listing failed",
			slog.String("content", ref.String()),
			slog.String("error", err.Error()))
		return Resolution{Outcome: OutcomeNotFound, Reason: FailureSourceListing}
	}
	if len(sources) == 0 {
		return Resolution{Outcome: OutcomeNotFound, Reason: FailureNoEligibleSource}
	}

	active := make([]Source, 0, len(sources))
	for _, src := range sources {
		if src.Active {
			active = append(active, src)
		}
	}
	if len(active) == 0 {
		return Resolution{Outcome: OutcomeNotFound, Reason: FailureNoEligibleSource}
	}

	var free, vip []Source
	for _, src := range active {
		if src.VIPOnly {
			vip = append(vip, src)
		} else {
			free = append(free, src)
		}
	}

	var winner Source
	switch {
	case len(free) > 0:
		winner = free[0]
		if r.preferVIPWhenEntitled && len(vip) > 0 && r.entitlements.Entitled(ctx, viewerID) {
			winner = vip[0]
		}
	case len(vip) > 0:
		if !r.entitlements.Entitled(ctx, viewerID) {
			return Resolution{Outcome: OutcomeSubscriptionRequired}
		}
		winner = vip[0]
	default:
		// Unreachable: the partition covers every active source. Kept as a
		// defensive default so a future partition change cannot drop content.
		winner = active[0]
	}

	if winner.URL == "" {
		r.log.Warn("selected source has no playable url",
			slog.String("content", ref.String()),
			slog.Int64("source_id", winner.SourceID))
		return Resolution{Outcome: OutcomeNotFound, Reason: FailureEmptyURL}
	}

	return Resolution{Outcome: OutcomePlayable, Source: winner}
}
