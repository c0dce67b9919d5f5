package storage

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/uiflow/internal/common"
	"github.com/ternarybob/uiflow/internal/models"
)

func TestNewStorageManager(t *testing.T) {
	cfg := common.NewDefaultConfig()
	cfg.Storage.Badger.Path = filepath.Join(t.TempDir(), "db")

	manager, err := NewStorageManager(arbor.NewLogger(), cfg)
	require.NoError(t, err)
	defer manager.Close()

	reports, err := manager.ReportStorage().ListReports(context.Background(), models.ReportListOptions{})
	require.NoError(t, err)
	assert.Empty(t, reports)
}

func TestNewStorageManagerRequiresPath(t *testing.T) {
	cfg := common.NewDefaultConfig()
	cfg.Storage.Badger.Path = ""
	_, err := NewStorageManager(arbor.NewLogger(), cfg)
	assert.Error(t, err)
}
