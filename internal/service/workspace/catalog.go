package workspace

import (
	"context"
	"database/sql"
	"fmt"

	"spacechat/internal/llm"
	"spacechat/internal/models"
)

// SaveModels upserts the fetched model catalog for one provider.
func (s *Service) SaveModels(ctx context.Context, provider string, entries []llm.CatalogEntry) error {
	for _, entry := range entries {
		res, err := s.db.ExecContext(ctx,
			`UPDATE catalog_models SET title = ?, details = ? WHERE provider = ? AND external_id = ?`,
			entry.Name, string(entry.Details), provider, entry.ID,
		)
		if err != nil {
			return fmt.Errorf("update model %s: %w", entry.ID, err)
		}
		if affected, _ := res.RowsAffected(); affected > 0 {
			continue
		}
		if _, err := s.db.ExecContext(ctx,
			`INSERT INTO catalog_models (provider, external_id, title, details) VALUES (?, ?, ?, ?)`,
			provider, entry.ID, entry.Name, string(entry.Details),
		); err != nil {
			return fmt.Errorf("insert model %s: %w", entry.ID, err)
		}
	}
	return nil
}

// ListModels returns the synced catalog sorted by title.
func (s *Service) ListModels(ctx context.Context) ([]models.CatalogModel, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, provider, external_id, title, details FROM catalog_models ORDER BY title ASC`,
	)
	if err != nil {
		return nil, fmt.Errorf("list models: %w", err)
	}
	defer rows.Close()

	var catalog []models.CatalogModel
	for rows.Next() {
		var m models.CatalogModel
		var details sql.NullString
		if err := rows.Scan(&m.ID, &m.Provider, &m.ExternalID, &m.Title, &details); err != nil {
			return nil, fmt.Errorf("scan model: %w", err)
		}
		m.Details = details.String
		catalog = append(catalog, m)
	}
	return catalog, rows.Err()
}
