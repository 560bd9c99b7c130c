// CLAUDE:SUMMARY Maintenance pass: folds feeds whose canonical URLs normalize to the same key into the oldest one.
// CLAUDE:EXPORTS MergeDuplicates, MergeStats
package registry

import (
	"context"
	"database/sql"
	"log/slog"

	"github.com/hazyhaar/feedcanon/dbopen"
)

// MergeStats reports what MergeDuplicates changed.
type MergeStats struct {
	Groups int `json:"groups"` // normalized keys with more than one feed
	Merged int `json:"merged"` // feeds folded into a survivor
}

// MergeDuplicates groups feeds by normalize(canonical_url). In each group
// the oldest feed (by created_at) survives; the others become aliases of it
// and their aliases are moved over. Idempotent.
func (r *Registry) MergeDuplicates(ctx context.Context, normalize func(string) string) (MergeStats, error) {
	var stats MergeStats

	rows, err := r.db.QueryContext(ctx,
		`SELECT id, canonical_url FROM feeds ORDER BY created_at ASC, id ASC`)
	if err != nil {
		return stats, err
	}
	type entry struct{ id, url string }
	var all []entry
	for rows.Next() {
		var e entry
		if err := rows.Scan(&e.id, &e.url); err != nil {
			rows.Close()
			return stats, err
		}
		all = append(all, e)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return stats, err
	}

	// Group by normalized key, preserving order (oldest first).
	groups := make(map[string][]entry)
	var order []string
	for _, e := range all {
		key := normalize(e.url)
		if key == "" {
			key = e.url
		}
		if _, ok := groups[key]; !ok {
			order = append(order, key)
		}
		groups[key] = append(groups[key], e)
	}

	now := r.now().UnixMilli()
	err = dbopen.RunTx(ctx, r.db, func(tx *sql.Tx) error {
		stats = MergeStats{}
		for _, key := range order {
			g := groups[key]
			if len(g) < 2 {
				continue
			}
			stats.Groups++
			keep := g[0]
			for _, dup := range g[1:] {
				if err := mergeFeedInto(ctx, tx, dup.url, keep.id); err != nil {
					return err
				}
				if _, err := tx.ExecContext(ctx,
					`INSERT INTO aliases (url, feed_id, created_at) VALUES (?, ?, ?)
					ON CONFLICT(url) DO UPDATE SET feed_id = excluded.feed_id`,
					dup.url, keep.id, now); err != nil {
					return err
				}
				stats.Merged++
			}
			if _, err := tx.ExecContext(ctx,
				`UPDATE feeds SET updated_at = ? WHERE id = ?`, now, keep.id); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return MergeStats{}, err
	}

	if stats.Merged > 0 {
		slog.InfoContext(ctx, "registry: duplicate feeds merged", "groups", stats.Groups, "merged", stats.Merged)
	}
	return stats, nil
}
