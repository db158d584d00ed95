// Package prompt loads opaque prompt modules and assembles the system prompt.
package prompt

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/patrickmn/go-cache"
	"github.com/sirupsen/logrus"
)

// Well-known module identifiers. Module text is opaque data; selection is by
// identifier only.
const (
	ModulePersonaBase = "persona_base"
	ModuleFirstOfDay  = "first_of_day"
	ModuleLongSilence = "long_silence"
	ModuleAIProbe     = "ai_probe"
	ModuleConversion  = "conversion_offer"

	modulePhasePrefix   = "phase_"
	moduleTierPrefix    = "tier_"
	moduleMoodPrefix    = "mood_"
	moduleDeflectPrefix = "deflect_"
	ModuleAftercare     = "aftercare"
	ModulePostIntimate  = "post_intimate"
	ModuleDistress      = "user_distressed"
	ModuleInitiate      = "luna_initiates"
	ModuleCapped        = "capped"
)

// ModuleStore loads prompt modules from disk once and serves them from cache.
type ModuleStore struct {
	dir    string
	cache  *cache.Cache
	logger *logrus.Logger
}

// NewModuleStore reads every .txt file under dir. The file stem is the module
// identifier.
func NewModuleStore(dir string, logger *logrus.Logger) (*ModuleStore, error) {
	store := &ModuleStore{
		dir:    dir,
		cache:  cache.New(cache.NoExpiration, cache.NoExpiration),
		logger: logger,
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read prompt directory: %w", err)
	}

	loaded := 0
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".txt") {
			continue
		}
		data, err := os.ReadFile(filepath.Join(dir, entry.Name()))
		if err != nil {
			return nil, fmt.Errorf("failed to read prompt module %s: %w", entry.Name(), err)
		}
		id := strings.TrimSuffix(entry.Name(), ".txt")
		store.cache.Set(id, strings.TrimSpace(string(data)), cache.NoExpiration)
		loaded++
	}

	if loaded == 0 {
		return nil, fmt.Errorf("prompt directory %s contains no modules", dir)
	}
	logger.WithFields(logrus.Fields{
		"directory": dir,
		"modules":   loaded,
	}).Info("Prompt modules loaded")

	return store, nil
}

// Get returns the module text, or empty when the identifier is unknown.
// Missing modules degrade the prompt rather than failing the turn.
func (s *ModuleStore) Get(id string) string {
	if val, found := s.cache.Get(id); found {
		return val.(string)
	}
	s.logger.WithField("module", id).Debug("Prompt module missing")
	return ""
}

// Has reports whether a module exists.
func (s *ModuleStore) Has(id string) bool {
	_, found := s.cache.Get(id)
	return found
}
