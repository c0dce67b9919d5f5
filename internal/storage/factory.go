package storage

import (
	"fmt"
	"path/filepath"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/uiflow/internal/common"
	"github.com/ternarybob/uiflow/internal/interfaces"
	"github.com/ternarybob/uiflow/internal/storage/badger"
)

// NewStorageManager opens report history storage at [storage.badger] path.
// The path is made absolute so every command resolves the same database.
func NewStorageManager(logger arbor.ILogger, config *common.Config) (interfaces.StorageManager, error) {
	badgerCfg := config.Storage.Badger
	if badgerCfg.Path == "" {
		return nil, fmt.Errorf("storage.badger.path is required")
	}
	abs, err := filepath.Abs(badgerCfg.Path)
	if err != nil {
		return nil, fmt.Errorf("invalid storage path %q: %w", badgerCfg.Path, err)
	}
	badgerCfg.Path = abs
	return badger.NewManager(logger, &badgerCfg)
}
