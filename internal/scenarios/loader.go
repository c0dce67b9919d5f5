// Package scenarios loads declarative scenario files (TOML, YAML or JSON) and keeps the
// catalog the runner, scheduler and HTTP API select scenarios from.
package scenarios

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/pelletier/go-toml/v2"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/uiflow/internal/common"
	"github.com/ternarybob/uiflow/internal/models"
	"gopkg.in/yaml.v3"
)

// Extensions lists the scenario file extensions the loader accepts
var Extensions = []string{".toml", ".yaml", ".yml", ".json"}

// IsScenarioFile reports whether path has a scenario file extension
func IsScenarioFile(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	for _, e := range Extensions {
		if ext == e {
			return true
		}
	}
	return false
}

// Decode parses data in the format named by ext. Unknown keys are rejected so typos in
// scenario files surface at load time.
func Decode(data []byte, ext string) (*models.Scenario, error) {
	var sc models.Scenario
	switch strings.ToLower(ext) {
	case ".toml":
		dec := toml.NewDecoder(bytes.NewReader(data))
		dec.DisallowUnknownFields()
		if err := dec.Decode(&sc); err != nil {
			var strict *toml.StrictMissingError
			if errors.As(err, &strict) {
				return nil, fmt.Errorf("unknown keys: %s", strict.String())
			}
			var decodeErr *toml.DecodeError
			if errors.As(err, &decodeErr) {
				row, col := decodeErr.Position()
				return nil, fmt.Errorf("line %d column %d: %w", row, col, err)
			}
			return nil, err
		}
	case ".yaml", ".yml":
		dec := yaml.NewDecoder(bytes.NewReader(data))
		dec.KnownFields(true)
		if err := dec.Decode(&sc); err != nil {
			return nil, err
		}
	case ".json":
		dec := json.NewDecoder(bytes.NewReader(data))
		dec.DisallowUnknownFields()
		if err := dec.Decode(&sc); err != nil {
			return nil, err
		}
	default:
		return nil, fmt.Errorf("unsupported scenario format %q", ext)
	}
	return &sc, nil
}

// Resolve replaces {name} references in every string field of sc. Scenario variables act
// as defaults; vars (from [variables] in config) override them.
func Resolve(sc *models.Scenario, vars map[string]string, logger arbor.ILogger) error {
	merged := make(map[string]string, len(sc.Variables)+len(vars))
	for k, v := range sc.Variables {
		merged[k] = v
	}
	for k, v := range vars {
		merged[k] = v
	}
	if len(merged) == 0 {
		return nil
	}
	if err := common.ReplaceInStruct(sc, merged, logger); err != nil {
		return fmt.Errorf("failed to resolve variables: %w", err)
	}
	return nil
}

// LoadFile reads, resolves and validates one scenario file
func LoadFile(path string, vars map[string]string, logger arbor.ILogger) (*models.Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file %s: %w", path, err)
	}

	sc, err := Decode(data, filepath.Ext(path))
	if err != nil {
		return nil, fmt.Errorf("failed to parse scenario file %s: %w", path, err)
	}
	if sc.Name == "" {
		sc.Name = strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	}
	sc.Source = path

	if err := Resolve(sc, vars, logger); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	if err := sc.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return sc, nil
}

// LoadDir loads every scenario file in dir. Files that fail to load are skipped and
// returned as errors so one broken file does not hide the rest.
func LoadDir(dir string, vars map[string]string, logger arbor.ILogger) ([]*models.Scenario, []error) {
	if _, err := os.Stat(dir); os.IsNotExist(err) {
		logger.Debug().Str("dir", dir).Msg("Scenario directory does not exist, skipping")
		return nil, nil
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, []error{fmt.Errorf("failed to read scenario directory: %w", err)}
	}

	var loaded []*models.Scenario
	var errs []error
	seen := make(map[string]string)
	for _, entry := range entries {
		if entry.IsDir() || !IsScenarioFile(entry.Name()) {
			continue
		}
		path := filepath.Join(dir, entry.Name())

		sc, err := LoadFile(path, vars, logger)
		if err != nil {
			logger.Warn().Err(err).Str("file", entry.Name()).Msg("Failed to load scenario")
			errs = append(errs, err)
			continue
		}
		if prev, dup := seen[sc.Name]; dup {
			err := fmt.Errorf("%s: scenario name %q already defined in %s", path, sc.Name, prev)
			logger.Warn().Err(err).Msg("Duplicate scenario name")
			errs = append(errs, err)
			continue
		}
		seen[sc.Name] = path
		loaded = append(loaded, sc)
	}

	sort.Slice(loaded, func(i, j int) bool { return loaded[i].Name < loaded[j].Name })

	logger.Debug().Str("dir", dir).Int("count", len(loaded)).Int("errors", len(errs)).Msg("Scenarios loaded")
	return loaded, errs
}
