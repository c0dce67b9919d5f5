package interfaces

import (
	"context"

	"github.com/ternarybob/uiflow/internal/models"
)

// ReportStorage persists scenario reports
type ReportStorage interface {
	SaveReport(ctx context.Context, report *models.ScenarioReport) error
	GetReport(ctx context.Context, id string) (*models.ScenarioReport, error)
	ListReports(ctx context.Context, opts models.ReportListOptions) ([]*models.ScenarioReport, error)
	LatestReport(ctx context.Context, scenario string) (*models.ScenarioReport, error)
	DeleteReport(ctx context.Context, id string) error
	// PruneReports keeps the newest keep reports per scenario and returns how many were removed
	PruneReports(ctx context.Context, keep int) (int, error)
}

// StorageManager owns the database and its storage views
type StorageManager interface {
	ReportStorage() ReportStorage
	Close() error
}
