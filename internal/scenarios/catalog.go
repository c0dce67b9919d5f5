package scenarios

import (
	"errors"
	"fmt"
	"sync"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/uiflow/internal/interfaces"
	"github.com/ternarybob/uiflow/internal/models"
)

var _ interfaces.ScenarioCatalog = (*Catalog)(nil)

// Catalog holds the scenarios loaded from a directory. It is safe for concurrent use.
type Catalog struct {
	dir    string
	vars   map[string]string
	logger arbor.ILogger

	mu        sync.RWMutex
	scenarios []*models.Scenario
	byName    map[string]*models.Scenario
}

// NewCatalog loads dir. Files that fail to load are logged and reported by the returned
// error; the catalog still holds every scenario that loaded.
func NewCatalog(dir string, vars map[string]string, logger arbor.ILogger) (*Catalog, error) {
	c := &Catalog{dir: dir, vars: vars, logger: logger}
	err := c.Reload()
	return c, err
}

// NewStaticCatalog builds a catalog from already loaded scenarios
func NewStaticCatalog(scenarios []*models.Scenario, logger arbor.ILogger) *Catalog {
	c := &Catalog{logger: logger}
	c.set(scenarios)
	return c
}

// Reload re-reads the scenario directory
func (c *Catalog) Reload() error {
	if c.dir == "" {
		return nil
	}
	loaded, errs := LoadDir(c.dir, c.vars, c.logger)
	c.set(loaded)
	if len(errs) > 0 {
		return fmt.Errorf("%d scenario file(s) failed to load: %w", len(errs), errors.Join(errs...))
	}
	return nil
}

func (c *Catalog) set(scenarios []*models.Scenario) {
	byName := make(map[string]*models.Scenario, len(scenarios))
	for _, sc := range scenarios {
		byName[sc.Name] = sc
	}
	c.mu.Lock()
	c.scenarios = scenarios
	c.byName = byName
	c.mu.Unlock()
}

// List returns the scenarios sorted by name
func (c *Catalog) List() []*models.Scenario {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]*models.Scenario, len(c.scenarios))
	copy(out, c.scenarios)
	return out
}

// Get returns the scenario called name
func (c *Catalog) Get(name string) (*models.Scenario, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	sc, ok := c.byName[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", models.ErrScenarioNotFound, name)
	}
	return sc, nil
}
