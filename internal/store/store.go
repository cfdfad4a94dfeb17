package store

import (
	"context"
	"errors"
	"time"

	"github.com/nhle/bcfeed/internal/model"
)

var (
	// ErrAlreadyExists is returned by Insert when a release with the same
	// email id or release link is already stored.
	ErrAlreadyExists = errors.New("release already exists")

	// ErrNotFound is returned when a lookup matches nothing.
	ErrNotFound = errors.New("not found")
)

// Sort orders for ListReleases.
const (
	SortNewest     = "newest"
	SortOldest     = "oldest"
	SortUploaderAZ = "uploader_az"
	SortUploaderZA = "uploader_za"
)

// DefaultPerPage is the page size used when none is given.
const DefaultPerPage = 25

// ReleaseFilter narrows a release listing. Zero values match everything.
type ReleaseFilter struct {
	// Query matches uploader or release name, case-insensitively.
	Query string

	// Since keeps releases received at or after this time.
	Since *time.Time

	// Type keeps only releases of this type.
	Type model.ReleaseType
}

// ReleasePage is one page of a release listing.
type ReleasePage struct {
	Releases   []model.Release `json:"releases"`
	Total      int             `json:"total"`
	Page       int             `json:"page"`
	PerPage    int             `json:"per_page"`
	TotalPages int             `json:"total_pages"`
}

// ReleaseStore is the deduplicating release sink used while syncing.
type ReleaseStore interface {
	// Exists reports whether a release with emailID is stored.
	Exists(ctx context.Context, emailID string) (bool, error)

	// Insert stores r and returns it with ID and CreatedAt set. It
	// returns ErrAlreadyExists, atomically with respect to concurrent
	// inserts, when the email id or release link is taken.
	Insert(ctx context.Context, r model.Release) (model.Release, error)
}

// CheckpointStore persists the sync checkpoint.
type CheckpointStore interface {
	LoadCheckpoint(ctx context.Context) (*model.SyncCheckpoint, error)
	SaveCheckpoint(ctx context.Context, cp *model.SyncCheckpoint) error
	ResetCheckpoint(ctx context.Context) error
}

// Store is the full persistence interface.
type Store interface {
	ReleaseStore
	CheckpointStore

	GetRelease(ctx context.Context, emailID string) (*model.Release, error)
	ListReleases(ctx context.Context, filter ReleaseFilter, sort string, page, perPage int) (*ReleasePage, error)
	Stats(ctx context.Context, now time.Time) (*model.FeedStats, error)
	Close() error
}

// WindowStart returns the start of a named date window relative to now:
// "week", "month", "3months" or "year". Any other name, including "all",
// reports false.
func WindowStart(window string, now time.Time) (time.Time, bool) {
	switch window {
	case "week":
		return now.AddDate(0, 0, -7), true
	case "month":
		return now.AddDate(0, 0, -30), true
	case "3months":
		return now.AddDate(0, 0, -90), true
	case "year":
		return now.AddDate(0, 0, -365), true
	default:
		return time.Time{}, false
	}
}
