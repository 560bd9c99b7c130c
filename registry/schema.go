// CLAUDE:SUMMARY SQLite schema for the canonical feed registry: feeds, aliases, resolution log.
package registry

// Schema is applied at every Open; all statements are idempotent.
const Schema = `
-- One row per canonical feed URL
CREATE TABLE IF NOT EXISTS feeds (
    id             TEXT PRIMARY KEY,
    canonical_url  TEXT NOT NULL UNIQUE,
    created_at     INTEGER NOT NULL,
    updated_at     INTEGER NOT NULL
);

-- Every other URL known to lead to a feed
CREATE TABLE IF NOT EXISTS aliases (
    url         TEXT PRIMARY KEY,
    feed_id     TEXT NOT NULL REFERENCES feeds(id) ON DELETE CASCADE,
    created_at  INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_aliases_feed ON aliases(feed_id);

-- Resolution log (observability)
CREATE TABLE IF NOT EXISTS resolutions (
    id             TEXT PRIMARY KEY,
    input_url      TEXT NOT NULL,
    canonical_url  TEXT NOT NULL DEFAULT '',
    status         TEXT NOT NULL,
    error_message  TEXT NOT NULL DEFAULT '',
    duration_ms    INTEGER NOT NULL DEFAULT 0,
    resolved_at    INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_resolutions_time ON resolutions(resolved_at DESC);
`
