package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/nhle/bcfeed/internal/model"
)

// Exists reports whether a release with emailID is stored.
func (s *SQLiteStore) Exists(ctx context.Context, emailID string) (bool, error) {
	var n int
	err := s.db.GetContext(ctx, &n,
		"SELECT COUNT(*) FROM releases WHERE email_id = ?", emailID,
	)
	if err != nil {
		return false, fmt.Errorf("checking release %s: %w", emailID, err)
	}
	return n > 0, nil
}

// Insert stores r. The uniqueness of email_id and bandcamp_url is
// enforced by the schema, so two concurrent inserts of the same release
// store exactly one row and the other sees ErrAlreadyExists.
func (s *SQLiteStore) Insert(ctx context.Context, r model.Release) (model.Release, error) {
	if r.ReleaseType == "" {
		r.ReleaseType = model.ReleaseTypeFromURL(r.BandcampURL)
	}
	r.ReceivedAt = r.ReceivedAt.UTC()
	r.CreatedAt = s.now().UTC()

	res, err := s.db.NamedExecContext(ctx, `
		INSERT INTO releases (
			email_id, uploader, release_name, album_art_url,
			bandcamp_url, release_type, received_at, created_at
		) VALUES (
			:email_id, :uploader, :release_name, :album_art_url,
			:bandcamp_url, :release_type, :received_at, :created_at
		)
		ON CONFLICT DO NOTHING`, r)
	if err != nil {
		return model.Release{}, fmt.Errorf("inserting release %s: %w", r.EmailID, err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return model.Release{}, fmt.Errorf("inserting release %s: %w", r.EmailID, err)
	}
	if n == 0 {
		return model.Release{}, ErrAlreadyExists
	}

	if r.ID, err = res.LastInsertId(); err != nil {
		return model.Release{}, fmt.Errorf("reading id of release %s: %w", r.EmailID, err)
	}
	return r, nil
}

// GetRelease returns the release stored for emailID.
func (s *SQLiteStore) GetRelease(ctx context.Context, emailID string) (*model.Release, error) {
	var r model.Release
	err := s.db.GetContext(ctx, &r, "SELECT * FROM releases WHERE email_id = ?", emailID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("getting release %s: %w", emailID, err)
	}
	return &r, nil
}

// releaseOrder maps sort names to ORDER BY clauses.
var releaseOrder = map[string]string{
	SortNewest:     "received_at DESC, id DESC",
	SortOldest:     "received_at ASC, id ASC",
	SortUploaderAZ: "uploader COLLATE NOCASE ASC, received_at DESC",
	SortUploaderZA: "uploader COLLATE NOCASE DESC, received_at DESC",
}

// ListReleases returns one page of releases matching filter. Unknown
// sort names fall back to newest first.
func (s *SQLiteStore) ListReleases(
	ctx context.Context,
	filter ReleaseFilter,
	sort string,
	page, perPage int,
) (*ReleasePage, error) {
	if page < 1 {
		page = 1
	}
	if perPage < 1 {
		perPage = DefaultPerPage
	}

	var conditions []string
	var args []interface{}

	if q := strings.TrimSpace(filter.Query); q != "" {
		conditions = append(conditions, "(uploader LIKE ? OR release_name LIKE ?)")
		like := "%" + q + "%"
		args = append(args, like, like)
	}
	if filter.Since != nil {
		conditions = append(conditions, "received_at >= ?")
		args = append(args, filter.Since.UTC())
	}
	if filter.Type != "" {
		conditions = append(conditions, "release_type = ?")
		args = append(args, string(filter.Type))
	}

	where := ""
	if len(conditions) > 0 {
		where = " WHERE " + strings.Join(conditions, " AND ")
	}

	var total int
	if err := s.db.GetContext(ctx, &total, "SELECT COUNT(*) FROM releases"+where, args...); err != nil {
		return nil, fmt.Errorf("counting releases: %w", err)
	}

	order, ok := releaseOrder[sort]
	if !ok {
		order = releaseOrder[SortNewest]
	}

	query := fmt.Sprintf("SELECT * FROM releases%s ORDER BY %s LIMIT %d OFFSET %d",
		where, order, perPage, (page-1)*perPage)

	releases := []model.Release{}
	if err := s.db.SelectContext(ctx, &releases, query, args...); err != nil {
		return nil, fmt.Errorf("listing releases: %w", err)
	}

	return &ReleasePage{
		Releases:   releases,
		Total:      total,
		Page:       page,
		PerPage:    perPage,
		TotalPages: (total + perPage - 1) / perPage,
	}, nil
}

// Stats summarises the stored feed relative to now.
func (s *SQLiteStore) Stats(ctx context.Context, now time.Time) (*model.FeedStats, error) {
	stats := &model.FeedStats{TopUploaders: []model.UploaderCount{}}

	if err := s.db.GetContext(ctx, &stats.Total, "SELECT COUNT(*) FROM releases"); err != nil {
		return nil, fmt.Errorf("counting releases: %w", err)
	}

	week, _ := WindowStart("week", now)
	if err := s.db.GetContext(ctx, &stats.ThisWeek,
		"SELECT COUNT(*) FROM releases WHERE received_at >= ?", week.UTC(),
	); err != nil {
		return nil, fmt.Errorf("counting releases this week: %w", err)
	}

	month, _ := WindowStart("month", now)
	if err := s.db.GetContext(ctx, &stats.ThisMonth,
		"SELECT COUNT(*) FROM releases WHERE received_at >= ?", month.UTC(),
	); err != nil {
		return nil, fmt.Errorf("counting releases this month: %w", err)
	}

	if err := s.db.SelectContext(ctx, &stats.TopUploaders, `
		SELECT uploader, COUNT(*) AS count
		FROM releases
		GROUP BY uploader
		ORDER BY count DESC, uploader ASC
		LIMIT 10`,
	); err != nil {
		return nil, fmt.Errorf("counting uploaders: %w", err)
	}

	if stats.Total == 0 {
		return stats, nil
	}

	// Plain column reads keep the DATETIME type for the driver; an
	// aggregate such as MIN() would come back as text.
	var oldest, newest time.Time
	if err := s.db.GetContext(ctx, &oldest,
		"SELECT received_at FROM releases ORDER BY received_at ASC LIMIT 1",
	); err != nil {
		return nil, fmt.Errorf("reading oldest release: %w", err)
	}
	if err := s.db.GetContext(ctx, &newest,
		"SELECT received_at FROM releases ORDER BY received_at DESC LIMIT 1",
	); err != nil {
		return nil, fmt.Errorf("reading newest release: %w", err)
	}
	stats.Oldest = &oldest
	stats.Newest = &newest

	return stats, nil
}
