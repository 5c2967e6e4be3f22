package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
)

// Settings represents the application configuration persisted to disk.
type Settings struct {
	Server   ServerSettings   `json:"server"`
	Database DatabaseSettings `json:"database"`
	Metadata MetadataSettings `json:"metadata"`
	API      APISettings      `json:"api"`
	Log      LogConfig        `json:"log"`
}

type ServerSettings struct {
	Host string `json:"host"`
	Port int    `json:"port"`
}

// DatabaseSettings locates the catalog sqlite file.
type DatabaseSettings struct {
	Path string `json:"path"`
}

// MetadataSettings configures the external metadata provider. Language is a
// BCP 47 tag such as "en-US" or "zh-CN"; a Chinese language switches the
// searcher's candidate tie-break to prefer CJK titles.
type MetadataSettings struct {
	TMDBAPIKey string `json:"tmdbApiKey"`
	Language   string `json:"language"`
}

// APISettings guards the resolution endpoint. An empty ClientAPIKey disables
// the query API entirely rather than leaving it open.
type APISettings struct {
	ClientAPIKey string `json:"clientApiKey"`
}

// LogConfig represents logging configuration.
type LogConfig struct {
	File       string `json:"file"`
	Level      string `json:"level"`
	MaxSize    int    `json:"maxSize"`
	MaxAge     int    `json:"maxAge"`
	MaxBackups int    `json:"maxBackups"`
	Compress   bool   `json:"compress"`
}

// Manager loads and persists Settings at a fixed path.
type Manager struct {
	mu   sync.RWMutex
	path string
	cur  *Settings
}

// NewManager creates a settings manager for the given file path.
func NewManager(path string) *Manager {
	return &Manager{path: path}
}

// Defaults returns the settings written on first run.
func Defaults() *Settings {
	return &Settings{
		Server:   ServerSettings{Host: "0.0.0.0", Port: 5009},
		Database: DatabaseSettings{Path: filepath.Join("cache", "mediadex.db")},
		Metadata: MetadataSettings{Language: "en-US"},
		Log: LogConfig{
			File:       filepath.Join("cache", "mediadex.log"),
			Level:      "info",
			MaxSize:    50,
			MaxAge:     14,
			MaxBackups: 3,
			Compress:   true,
		},
	}
}

// Load reads settings from disk, creating the file with defaults when it does
// not exist yet.
func (m *Manager) Load() (*Settings, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	data, err := os.ReadFile(m.path)
	if errors.Is(err, fs.ErrNotExist) {
		settings := Defaults()
		if err := m.write(settings); err != nil {
			return nil, err
		}
		m.cur = settings
		return settings, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read settings: %w", err)
	}

	settings := Defaults()
	if err := json.Unmarshal(data, settings); err != nil {
		return nil, fmt.Errorf("parse settings: %w", err)
	}
	m.cur = settings
	return settings, nil
}

// Current returns the last loaded settings, loading them if necessary.
func (m *Manager) Current() (*Settings, error) {
	m.mu.RLock()
	cur := m.cur
	m.mu.RUnlock()
	if cur != nil {
		return cur, nil
	}
	return m.Load()
}

// Save persists new settings to disk.
func (m *Manager) Save(settings *Settings) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.write(settings); err != nil {
		return err
	}
	m.cur = settings
	return nil
}

func (m *Manager) write(settings *Settings) error {
	if dir := filepath.Dir(m.path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create settings dir: %w", err)
		}
	}
	data, err := json.MarshalIndent(settings, "", "  ")
	if err != nil {
		return err
	}
	if err := os.WriteFile(m.path, data, 0o644); err != nil {
		return fmt.Errorf("write settings: %w", err)
	}
	return nil
}
