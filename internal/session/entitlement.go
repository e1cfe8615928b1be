package session

import (
	"context"
	"log/slog"
	"time"
)

// EntitlementChecker decides whether a viewer currently holds an unexpired
// paid entitlement. It is a pure read: no side effects, and it never
// returns an error. Any ambiguity (lookup failure, no records) collapses
// to "not entitled".
type EntitlementChecker struct {
	backend Backend
	log     *slog.Logger
	now     func() time.Time
}

// NewEntitlementChecker returns a checker that reads entitlement records
// from backend.
func NewEntitlementChecker(backend Backend, log *slog.Logger) *EntitlementChecker {
	return &EntitlementChecker{backend: backend, log: log, now: time.Now}
}

// Entitled reports whether the viewer holds a valid entitlement. An absent
// or unauthenticated viewer (id <= 0) is not entitled and causes no
// network call. Of all records, only the one with the greatest
// SubscriptionID is authoritative (assumed most-recently-issued; malformed
// records count as id 0); it is valid iff its period end is at or after
// the current time.
func (c *EntitlementChecker) Entitled(ctx context.Context, viewerID int64) bool {
	if viewerID <= 0 {
		return false
	}

	records, err := c.backend.EntitlementsForViewer(ctx, viewerID)
	if err != nil {
		// Fail closed: a viewer we cannot verify is not entitled.
		c.log.Warn("entitlement lookup failed",
			slog.Int64("viewer_id", viewerID),
			slog.String("error", err.Error()))
		return false
	}
	if len(records) == 0 {
		return false
	}

	latest := records[0]
	for _, rec := range records[1:] {
		if rec.SubscriptionID >= latest.SubscriptionID {
			latest = rec
		}
	}

	return !latest.PeriodEnd.Before(c.now())
}
