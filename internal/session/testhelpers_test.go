package session

import (
	"context"
	"log/slog"
	"os"
	"sync"
	"testing"
	"time"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
}

// waitFor polls cond until it holds or the deadline passes.
func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met within deadline")
}

func movieRef(id int64) ContentReference {
	return ContentReference{Kind: ContentMovie, ID: id}
}

func episodeRef(id int64) ContentReference {
	return ContentReference{Kind: ContentEpisode, ID: id}
}

type createCall struct {
	viewerID int64
	ref      ContentReference
	sourceID int64
	pos, dur float64
}

type updateCall struct {
	recordID int64
	pos, dur float64
}

// fakeBackend is an in-memory Backend with per-call error injection,
// call counting, and optional gates that block a call until released.
type fakeBackend struct {
	mu sync.Mutex

	movieSources []Source
	movieErr     error
	movieCalls   int
	movieGate    chan struct{}

	episodeSources []Source
	episodeErr     error
	episodeCalls   int

	entitlements     []Entitlement
	entitlementErr   error
	entitlementCalls int

	createRecordID int64
	createErr      error
	createCalls    int
	createGate     chan struct{}
	lastCreate     createCall

	updateErr   error
	updateCalls []updateCall
}

func (f *fakeBackend) SourcesForMovie(ctx context.Context, movieID int64) ([]Source, error) {
	f.mu.Lock()
	f.movieCalls++
	gate := f.movieGate
	srcs, err := f.movieSources, f.movieErr
	f.mu.Unlock()
	if gate != nil {
		<-gate
	}
	return srcs, err
}

func (f *fakeBackend) SourcesForEpisode(ctx context.Context, episodeID int64) ([]Source, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.episodeCalls++
	return f.episodeSources, f.episodeErr
}

func (f *fakeBackend) EntitlementsForViewer(ctx context.Context, viewerID int64) ([]Entitlement, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.entitlementCalls++
	return f.entitlements, f.entitlementErr
}

func (f *fakeBackend) CreatePosition(ctx context.Context, viewerID int64, ref ContentReference, sourceID int64, pos, dur float64) (int64, error) {
	f.mu.Lock()
	f.createCalls++
	f.lastCreate = createCall{viewerID: viewerID, ref: ref, sourceID: sourceID, pos: pos, dur: dur}
	gate := f.createGate
	id, err := f.createRecordID, f.createErr
	f.mu.Unlock()
	if gate != nil {
		<-gate
	}
	return id, err
}

func (f *fakeBackend) UpdatePosition(ctx context.Context, recordID int64, pos, dur float64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.updateCalls = append(f.updateCalls, updateCall{recordID: recordID, pos: pos, dur: dur})
	return f.updateErr
}

func (f *fakeBackend) counts() (movie, episode, entitlement, create, update int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.movieCalls, f.episodeCalls, f.entitlementCalls, f.createCalls, len(f.updateCalls)
}
