package session

import (
	"encoding/json"
	"fmt"
	"time"
)

// ContentKind distinguishes the two playable content types.
type ContentKind int

const (
	ContentMovie ContentKind = iota + 1
	ContentEpisode
)

// String implements fmt.Stringer.
func (k ContentKind) String() string {
	switch k {
	case ContentMovie:
		return "movie"
	case ContentEpisode:
		return "episode"
	default:
		return "unknown"
	}
}

// MarshalJSON encodes the kind as its string form ("movie" / "episode").
func (k ContentKind) MarshalJSON() ([]byte, error) {
	return json.Marshal(k.String())
}

// UnmarshalJSON decodes "movie" or "episode"; anything else is an error.
func (k *ContentKind) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}
	switch s {
	case "movie":
		*k = ContentMovie
	case "episode":
		*k = ContentEpisode
	default:
		return fmt.Errorf("unknown content kind %q", s)
	}
	return nil
}

// ContentReference identifies the movie or episode a playback session is
// bound to. Immutable once a session starts; a new value always starts a
// new session.
type ContentReference struct {
	Kind           ContentKind `json:"kind"`
	ID             int64       `json:"id"`
	ParentSeriesID int64       `json:"parent_series_id,omitempty"`
}

// Equal reports whether two references identify the same content.
func (r ContentReference) Equal(o ContentReference) bool {
	return r.Kind == o.Kind && r.ID == o.ID
}

// Valid reports whether the reference names a known kind and a positive id.
func (r ContentReference) Valid() bool {
	return (r.Kind == ContentMovie || r.Kind == ContentEpisode) && r.ID > 0
}

// String implements fmt.Stringer (used in log fields).
func (r ContentReference) String() string {
	return fmt.Sprintf("%s/%d", r.Kind, r.ID)
}

// Source is a single playable network source for one ContentReference.
// Multiple sources may exist per reference; at most one is selected per
// session.
type Source struct {
	SourceID int64  `json:"source_id"`
	URL      string `json:"url"`
	Active   bool   `json:"active"`
	VIPOnly  bool   `json:"vip_only"`
}

// Entitlement is one subscription record for a viewer. Only the record with
// the greatest SubscriptionID is authoritative; it is valid through
// PeriodEnd inclusive.
type Entitlement struct {
	SubscriptionID int64     `json:"subscription_id"`
	PeriodEnd      time.Time `json:"period_end"`
}

// State is the observable playback session state consumed by the host UI.
type State int

const (
	StateIdle State = iota
	StateResolvingSource
	StatePlayable
	StatePlaying
	StatePaused
	StateSubscriptionRequired
	StateNotFound
	StateError
)

// String implements fmt.Stringer; the string form is what the HTTP surface
// exposes.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateResolvingSource:
		return "resolving_source"
	case StatePlayable:
		return "playable"
	case StatePlaying:
		return "playing"
	case StatePaused:
		return "paused"
	case StateSubscriptionRequired:
		return "subscription_required"
	case StateNotFound:
		return "not_found"
	case StateError:
		return "error"
	default:
		return "unknown"
	}
}

// Outcome is the result category of a source resolution.
type Outcome int

const (
	OutcomePlayable Outcome = iota + 1
	OutcomeSubscriptionRequired
	OutcomeNotFound
)

// String implements fmt.Stringer (used as a metrics label).
func (o Outcome) String() string {
	switch o {
	case OutcomePlayable:
		return "playable"
	case OutcomeSubscriptionRequired:
		return "subscription_required"
	case OutcomeNotFound:
		return "not_found"
	default:
		return "unknown"
	}
}

// FailureReason records why a resolution collapsed to NotFound. Only the
// coarse Outcome is exposed to the host; the reason is kept for logs.
type FailureReason int

const (
	FailureNone FailureReason = iota
	FailureSourceListing
	FailureNoEligibleSource
	FailureEmptyURL
)

// String implements fmt.Stringer (used in log fields).
func (f FailureReason) String() string {
	switch f {
	case FailureNone:
		return "none"
	case FailureSourceListing:
		return "source_listing_failed"
	case FailureNoEligibleSource:
		return "no_eligible_source"
	case FailureEmptyURL:
		return "empty_source_url"
	default:
		return "unknown"
	}
}

// Resolution is the outcome of resolving a ContentReference to a playable
// source. Source is only set when Outcome is OutcomePlayable.
type Resolution struct {
	Outcome Outcome
	Source  Source
	Reason  FailureReason
}
