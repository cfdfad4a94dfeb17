package model

import (
	"strings"
	"time"
)

// ReleaseType distinguishes full releases from single tracks.
type ReleaseType string

const (
	ReleaseTypeAlbum ReleaseType = "ALBUM"
	ReleaseTypeTrack ReleaseType = "TRACK"
)

// ReleaseTypeFromURL derives the release type from a release link path.
func ReleaseTypeFromURL(u string) ReleaseType {
	if strings.Contains(u, "/track/") {
		return ReleaseTypeTrack
	}
	return ReleaseTypeAlbum
}

// Release is a release announcement parsed from a notification email.
// Records are immutable once stored.
type Release struct {
	// ID is the local surrogate key assigned by the store.
	ID int64 `db:"id" json:"id"`

	// EmailID is the stable identifier of the originating message and
	// the deduplication key.
	EmailID string `db:"email_id" json:"email_id"`

	// Uploader is the artist or label name.
	Uploader string `db:"uploader" json:"uploader"`

	// ReleaseName is the album, EP, single, or track name.
	ReleaseName string `db:"release_name" json:"release_name"`

	// AlbumArtURL may be empty when the message carried no artwork.
	AlbumArtURL string `db:"album_art_url" json:"album_art_url"`

	// BandcampURL is the cleaned release link, either on *.bandcamp.com
	// or on an artist's custom domain.
	BandcampURL string `db:"bandcamp_url" json:"bandcamp_url"`

	ReleaseType ReleaseType `db:"release_type" json:"release_type"`

	// ReceivedAt is the originating message's timestamp and the feed's
	// ordering key.
	ReceivedAt time.Time `db:"received_at" json:"received_at"`

	// CreatedAt is set by the store at insert time.
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

// Summary returns the short form used in progress events.
func (r Release) Summary() ReleaseSummary {
	return ReleaseSummary{
		EmailID:     r.EmailID,
		Uploader:    r.Uploader,
		ReleaseName: r.ReleaseName,
		BandcampURL: r.BandcampURL,
	}
}

// String returns "uploader - release".
func (r Release) String() string {
	return r.Uploader + " - " + r.ReleaseName
}

// ReleaseSummary is the subset of a Release reported while syncing.
type ReleaseSummary struct {
	EmailID     string `json:"email_id"`
	Uploader    string `json:"uploader"`
	ReleaseName string `json:"release_name"`
	BandcampURL string `json:"bandcamp_url"`
}

// UploaderCount is one row of the top uploaders statistic.
type UploaderCount struct {
	Uploader string `db:"uploader" json:"uploader"`
	Count    int    `db:"count" json:"count"`
}

// FeedStats summarises the stored feed.
type FeedStats struct {
	Total        int             `json:"total"`
	ThisWeek     int             `json:"this_week"`
	ThisMonth    int             `json:"this_month"`
	TopUploaders []UploaderCount `json:"top_uploaders"`
	Oldest       *time.Time      `json:"oldest_date,omitempty"`
	Newest       *time.Time      `json:"newest_date,omitempty"`
}
