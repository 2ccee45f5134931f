package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/codecraftsmanpawan/MindGameBackend/go/internal/models"
	"github.com/jackc/pgx/v5"
)

func (s *Store) GetModeSettings(ctx context.Context, mode string) (models.ModeSettings, error) {
	settings := models.ModeSettings{Mode: mode}
	err := s.db.QueryRow(ctx, `
		SELECT result_mode, manual_outcome, updated_at
		FROM mode_settings WHERE mode = $1`, mode).
		Scan(&settings.ResultMode, &settings.ManualOutcome, &settings.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return models.ModeSettings{Mode: mode, ResultMode: models.ResultModeAutomatic}, nil
	}
	if err != nil {
		return models.ModeSettings{}, fmt.Errorf("failed to get mode settings: %w", err)
	}
	return settings, nil
}

func (s *Store) UpsertModeSettings(ctx context.Context, settings models.ModeSettings) (models.ModeSettings, error) {
	out := models.ModeSettings{Mode: settings.Mode}
	err := s.db.QueryRow(ctx, `
		INSERT INTO mode_settings (mode, result_mode, manual_outcome)
		VALUES ($1, $2, $3)
		ON CONFLICT (mode) DO UPDATE SET
			result_mode = EXCLUDED.result_mode,
			manual_outcome = EXCLUDED.manual_outcome,
			updated_at = now()
		RETURNING result_mode, manual_outcome, updated_at`,
		settings.Mode, settings.ResultMode, settings.ManualOutcome).
		Scan(&out.ResultMode, &out.ManualOutcome, &out.UpdatedAt)
	if err != nil {
		return models.ModeSettings{}, fmt.Errorf("failed to save mode settings: %w", err)
	}
	return out, nil
}
