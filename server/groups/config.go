package groups

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// GroupConfig is the persisted configuration entry for one group player
type GroupConfig struct {
	GroupID   string   `json:"groupId"`
	GroupType string   `json:"groupType"`
	Name      string   `json:"name"`
	Members   []string `json:"members"`
	Enabled   bool     `json:"enabled"`
}

// ConfigStore persists group configuration entries. Configuration persistence
// itself is a collaborator concern; this interface is the narrow contract the
// lifecycle manager needs.
type ConfigStore interface {
	GroupConfigs() ([]GroupConfig, error)
	SaveGroupConfig(cfg GroupConfig) error
	RemoveGroupConfig(groupID string) error
}

// FileConfigStore is a JSON-document backed ConfigStore, good enough for a
// handful of group presets.
type FileConfigStore struct {
	path string
	mu   sync.Mutex
}

// NewFileConfigStore creates a store persisting to dataFolder/groups.json
func NewFileConfigStore(dataFolder string) *FileConfigStore {
	return &FileConfigStore{path: filepath.Join(dataFolder, "groups.json")}
}

func (s *FileConfigStore) load() ([]GroupConfig, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("reading group configs: %w", err)
	}
	var configs []GroupConfig
	if err := json.Unmarshal(data, &configs); err != nil {
		return nil, fmt.Errorf("parsing group configs: %w", err)
	}
	return configs, nil
}

func (s *FileConfigStore) save(configs []GroupConfig) error {
	data, err := json.MarshalIndent(configs, "", "  ")
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return err
	}
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return err
	}
	return os.Rename(tmp, s.path)
}

func (s *FileConfigStore) GroupConfigs() ([]GroupConfig, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.load()
}

func (s *FileConfigStore) SaveGroupConfig(cfg GroupConfig) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	configs, err := s.load()
	if err != nil {
		return err
	}
	for i := range configs {
		if configs[i].GroupID == cfg.GroupID {
			configs[i] = cfg
			return s.save(configs)
		}
	}
	return s.save(append(configs, cfg))
}

func (s *FileConfigStore) RemoveGroupConfig(groupID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	configs, err := s.load()
	if err != nil {
		return err
	}
	for i := range configs {
		if configs[i].GroupID == groupID {
			return s.save(append(configs[:i], configs[i+1:]...))
		}
	}
	return nil
}

// MemoryConfigStore is an in-memory ConfigStore, used in tests and as a
// fallback when no data folder is configured.
type MemoryConfigStore struct {
	mu      sync.Mutex
	configs []GroupConfig
}

func NewMemoryConfigStore() *MemoryConfigStore {
	return &MemoryConfigStore{}
}

func (s *MemoryConfigStore) GroupConfigs() ([]GroupConfig, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	result := make([]GroupConfig, len(s.configs))
	copy(result, s.configs)
	return result, nil
}

func (s *MemoryConfigStore) SaveGroupConfig(cfg GroupConfig) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.configs {
		if s.configs[i].GroupID == cfg.GroupID {
			s.configs[i] = cfg
			return nil
		}
	}
	s.configs = append(s.configs, cfg)
	return nil
}

func (s *MemoryConfigStore) RemoveGroupConfig(groupID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.configs {
		if s.configs[i].GroupID == groupID {
			s.configs = append(s.configs[:i], s.configs[i+1:]...)
			return nil
		}
	}
	return nil
}
