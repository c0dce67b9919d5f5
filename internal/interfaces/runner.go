package interfaces

import (
	"context"

	"github.com/ternarybob/uiflow/internal/models"
)

// ScenarioCatalog exposes the loaded scenario definitions
type ScenarioCatalog interface {
	List() []*models.Scenario
	Get(name string) (*models.Scenario, error)
}

// ScenarioRunner executes a scenario in a fresh session and returns its report
type ScenarioRunner interface {
	Run(ctx context.Context, scenario *models.Scenario) (*models.ScenarioReport, error)
}
