package session

import "context"

// Backend is the collaborator API the playback core is an orchestration
// layer over: source listings, entitlement listing, and position
// persistence. The concrete transport is HTTP+JSON (internal/backend);
// tests inject fakes.
type Backend interface {
	// SourcesForMovie returns all candidate sources for a movie.
	SourcesForMovie(ctx context.Context, movieID int64) ([]Source, error)

	// SourcesForEpisode returns all candidate sources for an episode.
	SourcesForEpisode(ctx context.Context, episodeID int64) ([]Source, error)

	// EntitlementsForViewer returns every subscription record for a viewer,
	// expired ones included.
	EntitlementsForViewer(ctx context.Context, viewerID int64) ([]Entitlement, error)

	// CreatePosition persists a new playback position record and returns
	// the server-side record id used for subsequent updates.
	CreatePosition(ctx context.Context, viewerID int64, ref ContentReference, sourceID int64, positionSeconds, durationSeconds float64) (recordID int64, err error)

	// UpdatePosition overwrites an existing playback position record.
	UpdatePosition(ctx context.Context, recordID int64, positionSeconds, durationSeconds float64) error
}
