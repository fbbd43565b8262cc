// Package config provides XML-based configuration management for the block
// editor server.
package config

import (
	"encoding/xml"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
)

// AppConfig represents the root XML configuration structure
type AppConfig struct {
	XMLName xml.Name `xml:"BlockPadServer"`

	// Server configuration
	Server ServerConfig `xml:"Server"`

	// Storage configuration
	Storage StorageConfig `xml:"Storage"`

	// Editor behaviour configuration
	Editor EditorConfig `xml:"Editor"`

	// Code generation configuration
	Codegen CodegenConfig `xml:"Codegen"`

	// Security configuration
	Security SecurityConfig `xml:"Security"`

	// Advanced options
	Advanced AdvancedConfig `xml:"Advanced"`
}

// ServerConfig contains HTTP server settings
type ServerConfig struct {
	Port         int    `xml:"Port"`
	BindAddress  string `xml:"BindAddress"`
	EnableCORS   bool   `xml:"EnableCORS"`
	AllowOrigins string `xml:"AllowOrigins"`
	ReadTimeout  int    `xml:"ReadTimeoutSeconds"`
	WriteTimeout int    `xml:"WriteTimeoutSeconds"`
	IdleTimeout  int    `xml:"IdleTimeoutSeconds"`
	BodyLimit    string `xml:"BodyLimit"`
}

// StorageConfig contains document storage settings
type StorageConfig struct {
	DataDirectory      string `xml:"DataDirectory"`
	DocumentsDirectory string `xml:"DocumentsDirectory"`
	HistoryDirectory   string `xml:"HistoryDirectory"`
	BlockDefsPath      string `xml:"BlockDefinitionsPath"`
	ToolboxPath        string `xml:"ToolboxPath"`
}

// EditorConfig contains workspace behaviour settings
type EditorConfig struct {
	SnapRadius             float64 `xml:"SnapRadius"`
	CascadeDelete          bool    `xml:"CascadeDelete"`
	MaxBlocksPerWorkspace  int     `xml:"MaxBlocksPerWorkspace"`
	SessionTimeoutMinutes  int     `xml:"SessionTimeoutMinutes"`
	CleanupIntervalMinutes int     `xml:"CleanupIntervalMinutes"`
	EnableCompression      bool    `xml:"EnableCompression"`
	CompressionLevel       int     `xml:"CompressionLevel"`
}

// CodegenConfig contains code generation settings
type CodegenConfig struct {
	Enabled        bool   `xml:"Enabled"`
	GeneratorURL   string `xml:"GeneratorURL"`
	TimeoutSeconds int    `xml:"TimeoutSeconds"`
}

// SecurityConfig contains security settings
type SecurityConfig struct {
	AllowDocumentDeletion bool   `xml:"AllowDocumentDeletion"`
	RequireAuth           bool   `xml:"RequireAuthentication"`
	AuthToken             string `xml:"AuthToken"`
}

// AdvancedConfig contains advanced/tuning options
type AdvancedConfig struct {
	LogLevel                string `xml:"LogLevel"`
	EnableRequestLogging    bool   `xml:"EnableRequestLogging"`
	WebSocketMaxMessageSize int    `xml:"WebSocketMaxMessageSizeKB"`
}

// DefaultConfig returns the default configuration
func DefaultConfig() *AppConfig {
	return &AppConfig{
		Server: ServerConfig{
			Port:         8090,
			BindAddress:  "0.0.0.0",
			EnableCORS:   true,
			AllowOrigins: "*",
			ReadTimeout:  30,
			WriteTimeout: 30,
			IdleTimeout:  120,
			BodyLimit:    "16M",
		},
		Storage: StorageConfig{
			DataDirectory:      "./data",
			DocumentsDirectory: "./data/documents",
			HistoryDirectory:   "./data/history",
		},
		Editor: EditorConfig{
			SnapRadius:             60,
			CascadeDelete:          true,
			MaxBlocksPerWorkspace:  1000,
			SessionTimeoutMinutes:  60,
			CleanupIntervalMinutes: 5,
			EnableCompression:      true,
			CompressionLevel:       5,
		},
		Codegen: CodegenConfig{
			Enabled:        true,
			GeneratorURL:   "http://127.0.0.1:8091/generate",
			TimeoutSeconds: 30,
		},
		Security: SecurityConfig{
			AllowDocumentDeletion: true,
			RequireAuth:           false,
			AuthToken:             "",
		},
		Advanced: AdvancedConfig{
			LogLevel:                "info",
			EnableRequestLogging:    true,
			WebSocketMaxMessageSize: 65536,
		},
	}
}

// LoadConfig loads configuration from XML file
func LoadConfig(configPath string) (*AppConfig, error) {
	// If file doesn't exist, create default
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		config := DefaultConfig()
		if err := config.Save(configPath); err != nil {
			return nil, fmt.Errorf("failed to create default config: %w", err)
		}
		return config, nil
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	config := &AppConfig{}
	if err := xml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	// Apply environment variable overrides
	config.applyEnvironmentOverrides()

	// Resolve relative paths
	config.resolvePaths(filepath.Dir(configPath))

	return config, nil
}

// Save saves the configuration to XML file
func (c *AppConfig) Save(configPath string) error {
	output, err := xml.MarshalIndent(c, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	header := []byte(xml.Header + "\n<!-- BlockPad Server Configuration -->\n<!-- This file is auto-generated on first run -->\n\n")
	content := append(header, output...)

	if err := os.WriteFile(configPath, content, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// applyEnvironmentOverrides allows environment variables to override config values
func (c *AppConfig) applyEnvironmentOverrides() {
	// PORT override
	if port := os.Getenv("PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			c.Server.Port = p
		}
	}

	// DATA_DIR override
	if dataDir := os.Getenv("DATA_DIR"); dataDir != "" {
		c.Storage.DataDirectory = dataDir
		c.Storage.DocumentsDirectory = filepath.Join(dataDir, "documents")
		c.Storage.HistoryDirectory = filepath.Join(dataDir, "history")
	}

	// GENERATOR_URL override
	if url := os.Getenv("GENERATOR_URL"); url != "" {
		c.Codegen.GeneratorURL = url
	}
}

// resolvePaths converts relative paths to absolute based on config file location
func (c *AppConfig) resolvePaths(configDir string) {
	resolve := func(p *string) {
		if *p != "" && !filepath.IsAbs(*p) {
			*p = filepath.Join(configDir, *p)
		}
	}
	resolve(&c.Storage.DataDirectory)
	resolve(&c.Storage.DocumentsDirectory)
	resolve(&c.Storage.HistoryDirectory)
	resolve(&c.Storage.BlockDefsPath)
	resolve(&c.Storage.ToolboxPath)
}

// GetDataDir returns the absolute data directory path
func (c *AppConfig) GetDataDir() string {
	return c.Storage.DataDirectory
}

// GetDocumentsDir returns the absolute documents directory path
func (c *AppConfig) GetDocumentsDir() string {
	return c.Storage.DocumentsDirectory
}

// GetHistoryDir returns the absolute history directory path
func (c *AppConfig) GetHistoryDir() string {
	return c.Storage.HistoryDirectory
}

// GetServerAddr returns the server bind address
func (c *AppConfig) GetServerAddr() string {
	return fmt.Sprintf("%s:%d", c.Server.BindAddress, c.Server.Port)
}

// EnsureDirectories creates all necessary directories
func (c *AppConfig) EnsureDirectories() error {
	dirs := []string{
		c.Storage.DataDirectory,
		c.Storage.DocumentsDirectory,
		c.Storage.HistoryDirectory,
	}

	for _, dir := range dirs {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create directory %s: %w", dir, err)
		}
	}

	return nil
}
