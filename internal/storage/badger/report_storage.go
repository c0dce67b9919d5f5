package badger

import (
	"context"
	"errors"
	"fmt"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/uiflow/internal/interfaces"
	"github.com/ternarybob/uiflow/internal/models"
	"github.com/timshannon/badgerhold/v4"
)

// ReportStorage implements interfaces.ReportStorage for Badger
type ReportStorage struct {
	db     *BadgerDB
	logger arbor.ILogger
}

// NewReportStorage creates a new ReportStorage instance
func NewReportStorage(db *BadgerDB, logger arbor.ILogger) interfaces.ReportStorage {
	return &ReportStorage{
		db:     db,
		logger: logger,
	}
}

func (s *ReportStorage) SaveReport(ctx context.Context, report *models.ScenarioReport) error {
	if report == nil {
		return fmt.Errorf("report is nil")
	}
	if report.ID == "" {
		return fmt.Errorf("report ID is required")
	}
	if err := s.db.Store().Upsert(report.ID, report); err != nil {
		return fmt.Errorf("failed to save report: %w", err)
	}
	return nil
}

func (s *ReportStorage) GetReport(ctx context.Context, id string) (*models.ScenarioReport, error) {
	var report models.ScenarioReport
	if err := s.db.Store().Get(id, &report); err != nil {
		if errors.Is(err, badgerhold.ErrNotFound) {
			return nil, fmt.Errorf("%w: %s", models.ErrReportNotFound, id)
		}
		return nil, fmt.Errorf("failed to get report: %w", err)
	}
	return &report, nil
}

// ListReports returns reports newest first
func (s *ReportStorage) ListReports(ctx context.Context, opts models.ReportListOptions) ([]*models.ScenarioReport, error) {
	query := badgerhold.Where("ID").Ne("")
	if opts.Scenario != "" {
		query = query.And("Scenario").Eq(opts.Scenario)
	}
	if opts.Verdict != "" {
		query = query.And("Verdict").Eq(opts.Verdict)
	}
	query = query.SortBy("StartedAt").Reverse()
	if opts.Offset > 0 {
		query = query.Skip(opts.Offset)
	}
	if opts.Limit > 0 {
		query = query.Limit(opts.Limit)
	}

	var reports []models.ScenarioReport
	if err := s.db.Store().Find(&reports, query); err != nil {
		return nil, fmt.Errorf("failed to list reports: %w", err)
	}

	result := make([]*models.ScenarioReport, len(reports))
	for i := range reports {
		result[i] = &reports[i]
	}
	return result, nil
}

func (s *ReportStorage) LatestReport(ctx context.Context, scenario string) (*models.ScenarioReport, error) {
	reports, err := s.ListReports(ctx, models.ReportListOptions{Scenario: scenario, Limit: 1})
	if err != nil {
		return nil, err
	}
	if len(reports) == 0 {
		return nil, fmt.Errorf("%w: no runs of %s", models.ErrReportNotFound, scenario)
	}
	return reports[0], nil
}

func (s *ReportStorage) DeleteReport(ctx context.Context, id string) error {
	if err := s.db.Store().Delete(id, models.ScenarioReport{}); err != nil {
		if errors.Is(err, badgerhold.ErrNotFound) {
			return fmt.Errorf("%w: %s", models.ErrReportNotFound, id)
		}
		return fmt.Errorf("failed to delete report: %w", err)
	}
	return nil
}

// PruneReports keeps the newest keep reports of each scenario
func (s *ReportStorage) PruneReports(ctx context.Context, keep int) (int, error) {
	if keep <= 0 {
		return 0, nil
	}
	reports, err := s.ListReports(ctx, models.ReportListOptions{})
	if err != nil {
		return 0, err
	}

	seen := make(map[string]int)
	removed := 0
	for _, r := range reports {
		seen[r.Scenario]++
		if seen[r.Scenario] <= keep {
			continue
		}
		if err := s.db.Store().Delete(r.ID, models.ScenarioReport{}); err != nil && !errors.Is(err, badgerhold.ErrNotFound) {
			return removed, fmt.Errorf("failed to prune report %s: %w", r.ID, err)
		}
		removed++
	}

	if removed > 0 {
		s.logger.Debug().Int("removed", removed).Int("keep", keep).Msg("Pruned report history")
		if err := s.db.CollectGarbage(); err != nil {
			s.logger.Warn().Err(err).Msg("Report storage garbage collection failed")
		}
	}
	return removed, nil
}
