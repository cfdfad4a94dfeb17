package store

// migration holds a single schema migration with its target version and SQL.
type migration struct {
	version int
	sql     string
}

// migrations is the ordered list of schema migrations.
// Each migration's version must be sequential starting from 1.
var migrations = []migration{
	{
		version: 1,
		sql: `
CREATE TABLE IF NOT EXISTS schema_version (
	version INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS releases (
	id            INTEGER PRIMARY KEY AUTOINCREMENT,
	email_id      TEXT NOT NULL UNIQUE,
	uploader      TEXT NOT NULL,
	release_name  TEXT NOT NULL,
	album_art_url TEXT NOT NULL DEFAULT '',
	bandcamp_url  TEXT NOT NULL,
	release_type  TEXT NOT NULL DEFAULT 'ALBUM',
	received_at   DATETIME NOT NULL,
	created_at    DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS sync_state (
	id              INTEGER PRIMARY KEY CHECK (id = 1),
	phase           TEXT NOT NULL DEFAULT 'IDLE',
	processed_count INTEGER NOT NULL DEFAULT 0,
	total_estimate  INTEGER NOT NULL DEFAULT 0,
	updated_at      DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS folder_cursors (
	folder       TEXT PRIMARY KEY,
	uid_validity INTEGER NOT NULL,
	before_uid   INTEGER NOT NULL,
	exhausted    INTEGER NOT NULL DEFAULT 0,
	updated_at   DATETIME NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_releases_received_at ON releases(received_at);
CREATE INDEX IF NOT EXISTS idx_releases_uploader ON releases(uploader);

INSERT INTO schema_version (version) VALUES (1);
`,
	},
	{
		version: 2,
		sql: `
CREATE UNIQUE INDEX IF NOT EXISTS idx_releases_bandcamp_url
	ON releases(bandcamp_url);

CREATE INDEX IF NOT EXISTS idx_releases_type_received
	ON releases(release_type, received_at);

INSERT INTO schema_version (version) VALUES (2);
`,
	},
}
