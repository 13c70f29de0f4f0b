package assistant

import (
	"context"
	"fmt"

	"chatdesk/internal/models"
)

// Settings returns the current settings with credentials in plaintext.
func (s *Service) Settings() models.Settings {
	return s.state.Load().Settings
}

// UpdateSettings merges patch into the settings and persists them.
func (s *Service) UpdateSettings(ctx context.Context, patch models.SettingsPatch) (models.Settings, error) {
	var updated models.Settings
	err := s.mutate(ctx, func(st *models.State) error {
		next, err := patch.Apply(st.Settings)
		if err != nil {
			return fmt.Errorf("update settings: %w", err)
		}
		st.Settings = next
		updated = next
		return nil
	})
	return updated, err
}
