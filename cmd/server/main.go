package main

import (
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"github.com/blockpad/backend/internal/api"
	"github.com/blockpad/backend/internal/blockdef"
	"github.com/blockpad/backend/internal/codegen"
	"github.com/blockpad/backend/internal/config"
	"github.com/blockpad/backend/internal/controller"
	"github.com/blockpad/backend/internal/history"
	"github.com/blockpad/backend/internal/session"
	"github.com/blockpad/backend/internal/storage"
	"github.com/blockpad/backend/internal/web"
)

// Version info (set during build)
var (
	Version   = "dev"
	BuildTime = "unknown"
)

func main() {
	// Get the executable's directory for config resolution
	exePath, err := os.Executable()
	if err != nil {
		fmt.Printf("Failed to get executable path: %v\n", err)
		os.Exit(1)
	}
	exeDir := filepath.Dir(exePath)

	// Load XML configuration
	configPath := filepath.Join(exeDir, "BlockPadServer.config")
	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		fmt.Printf("Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	// Ensure all data directories exist
	if err := cfg.EnsureDirectories(); err != nil {
		fmt.Printf("Failed to create directories: %v\n", err)
		os.Exit(1)
	}

	// Check if running in embedded mode (frontend built into binary)
	embeddedMode := web.HasEmbeddedFiles()

	// Block definitions: built-in set plus optional extension file
	defs := blockdef.StandardRegistry()
	if cfg.Storage.BlockDefsPath != "" {
		if err := defs.LoadJSONFile(cfg.Storage.BlockDefsPath); err != nil {
			fmt.Printf("Failed to load block definitions: %v\n", err)
			os.Exit(1)
		}
	}

	// Toolbox palette configuration
	toolbox := blockdef.DefaultToolbox()
	if cfg.Storage.ToolboxPath != "" {
		toolbox, err = blockdef.LoadToolbox(cfg.Storage.ToolboxPath, defs)
		if err != nil {
			fmt.Printf("Failed to load toolbox config: %v\n", err)
			os.Exit(1)
		}
	}

	// Initialize document storage
	docStore, err := storage.NewLocalStore(cfg.GetDocumentsDir())
	if err != nil {
		fmt.Printf("Failed to initialize storage: %v\n", err)
		os.Exit(1)
	}

	// Revision history (DuckDB-backed)
	revisions, err := history.NewRevisionStore(cfg.GetHistoryDir())
	if err != nil {
		fmt.Printf("Warning: revision history unavailable: %v\n", err)
		revisions = nil
	} else {
		defer revisions.Close()
	}

	// Initialize session manager
	ctrlCfg := controller.Config{
		SnapRadius:    cfg.Editor.SnapRadius,
		CascadeDelete: cfg.Editor.CascadeDelete,
		MaxBlocks:     cfg.Editor.MaxBlocksPerWorkspace,
	}
	sessionMgr := session.NewManager(defs, ctrlCfg)

	// Start background session cleanup
	go func() {
		ticker := time.NewTicker(time.Duration(cfg.Editor.CleanupIntervalMinutes) * time.Minute)
		defer ticker.Stop()
		for range ticker.C {
			sessionMgr.CleanupOldSessions(time.Duration(cfg.Editor.SessionTimeoutMinutes) * time.Minute)
		}
	}()

	// Code generation service
	var genService *codegen.Service
	if cfg.Codegen.Enabled {
		gen := codegen.NewHTTPGenerator(cfg.Codegen.GeneratorURL)
		genService = codegen.NewService(gen, time.Duration(cfg.Codegen.TimeoutSeconds)*time.Second)
		defer genService.Close()
	}

	// Initialize API handler
	h := api.NewHandler(docStore, sessionMgr, revisions, genService, defs, toolbox,
		cfg.Security.AllowDocumentDeletion)

	// Initialize WebSocket event stream
	wsHandler := api.NewWebSocketHandler(sessionMgr)

	e := echo.New()
	e.HTTPErrorHandler = api.ErrorHandler

	// Configure middleware
	e.Use(middleware.LoggerWithConfig(middleware.LoggerConfig{
		Skipper: func(c echo.Context) bool {
			// Skip logging if disabled in config
			if !cfg.Advanced.EnableRequestLogging {
				return true
			}
			path := c.Request().URL.Path
			return strings.HasSuffix(path, "/keepalive") ||
				path == "/api/health"
		},
	}))

	e.Use(middleware.RecoverWithConfig(middleware.RecoverConfig{
		StackSize:         1024 * 4,
		DisablePrintStack: false,
		LogLevel:          0,
	}))

	e.Use(middleware.TimeoutWithConfig(middleware.TimeoutConfig{
		Timeout: time.Duration(cfg.Server.ReadTimeout) * time.Second,
		Skipper: func(c echo.Context) bool {
			path := c.Request().URL.Path
			return strings.Contains(path, "/ws/") ||
				strings.Contains(path, "/generate")
		},
		ErrorMessage: "Request timeout",
	}))

	// Compression middleware
	if cfg.Editor.EnableCompression {
		e.Use(middleware.GzipWithConfig(middleware.GzipConfig{
			Level: cfg.Editor.CompressionLevel,
			Skipper: func(c echo.Context) bool {
				return strings.Contains(c.Request().URL.Path, "/ws/")
			},
		}))
	}

	// Body limit middleware
	e.Use(middleware.BodyLimit(cfg.Server.BodyLimit))

	// CORS configuration
	if cfg.Server.EnableCORS {
		if embeddedMode {
			// In embedded mode, use config settings
			origins := strings.Split(cfg.Server.AllowOrigins, ",")
			for i := range origins {
				origins[i] = strings.TrimSpace(origins[i])
			}
			if len(origins) == 0 || (len(origins) == 1 && origins[0] == "") {
				origins = []string{"*"}
			}
			e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
				AllowOrigins: origins,
				AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions},
				AllowHeaders: []string{echo.HeaderOrigin, echo.HeaderContentType, echo.HeaderAccept, echo.HeaderAuthorization},
			}))
		} else {
			// Development mode - only allow localhost
			e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
				AllowOrigins: []string{
					"http://localhost:5173", "http://127.0.0.1:5173",
					"http://localhost:3000", "http://127.0.0.1:3000",
				},
				AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions},
				AllowHeaders: []string{echo.HeaderOrigin, echo.HeaderContentType, echo.HeaderAccept},
			}))
		}
	}

	// API Routes
	apiGroup := e.Group("/api")

	// Health check
	apiGroup.GET("/health", h.HandleHealth)

	// Block definitions and palette
	apiGroup.GET("/blocks/types", h.HandleListBlockTypes)
	apiGroup.GET("/toolbox", h.HandleGetToolbox)

	// Session lifecycle
	apiGroup.POST("/sessions", h.HandleCreateSession)
	apiGroup.GET("/sessions/:sessionId", h.HandleGetSession)
	apiGroup.DELETE("/sessions/:sessionId", h.HandleDeleteSession)
	apiGroup.POST("/sessions/:sessionId/keepalive", h.HandleSessionKeepAlive)

	// WebSocket event stream
	apiGroup.GET("/ws/sessions/:sessionId", wsHandler.HandleWebSocket)

	// Workspace mutation
	apiGroup.POST("/sessions/:sessionId/blocks", h.HandleCreateBlock)
	apiGroup.DELETE("/sessions/:sessionId/blocks/:blockId", h.HandleRemoveBlock)
	apiGroup.POST("/sessions/:sessionId/blocks/:blockId/drag", h.HandleDragBlock)
	apiGroup.POST("/sessions/:sessionId/blocks/:blockId/detach", h.HandleDetachBlock)
	apiGroup.PUT("/sessions/:sessionId/blocks/:blockId/fields/:fieldName", h.HandleSetField)
	apiGroup.POST("/sessions/:sessionId/blocks/:blockId/mutate", h.HandleMutateBlock)
	apiGroup.POST("/sessions/:sessionId/connect", h.HandleConnect)
	apiGroup.POST("/sessions/:sessionId/reset", h.HandleResetWorkspace)

	// Serialization and persistence
	apiGroup.GET("/sessions/:sessionId/document", h.HandleGetDocument)
	apiGroup.GET("/sessions/:sessionId/document/msgpack", h.HandleGetDocumentMsgpack)
	apiGroup.POST("/sessions/:sessionId/document", h.HandleLoadDocument)
	apiGroup.POST("/sessions/:sessionId/save", h.HandleSaveDocument)
	apiGroup.POST("/sessions/:sessionId/documents/:docId/open", h.HandleOpenDocument)
	apiGroup.GET("/documents", h.HandleListDocuments)
	apiGroup.PUT("/documents/:docId", h.HandleRenameDocument)

	// Conditional delete based on config
	if cfg.Security.AllowDocumentDeletion {
		apiGroup.DELETE("/documents/:docId", h.HandleDeleteDocument)
	}

	// Revision history
	apiGroup.GET("/sessions/:sessionId/revisions", h.HandleListRevisions)
	apiGroup.POST("/sessions/:sessionId/revisions/:revisionId/restore", h.HandleRestoreRevision)

	// Code generation
	apiGroup.POST("/sessions/:sessionId/generate", h.HandleGenerate)
	apiGroup.GET("/sessions/:sessionId/generate/:requestId", h.HandleGenerateResult)

	// Register embedded frontend if available
	if embeddedMode {
		if err := web.RegisterStaticRoutes(e); err != nil {
			fmt.Printf("Warning: failed to register static routes: %v\n", err)
		} else {
			fmt.Println("Serving embedded frontend from binary")
		}
	}

	// Configure server with settings from XML config
	s := &http.Server{
		Addr:         cfg.GetServerAddr(),
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
		IdleTimeout:  time.Duration(cfg.Server.IdleTimeout) * time.Second,
	}

	// Print startup banner
	mode := "Development"
	if embeddedMode {
		mode = "Embedded"
	}

	fmt.Printf("\n")
	fmt.Printf("╔═══════════════════════════════════════════════════════════╗\n")
	fmt.Printf("║           BlockPad Workspace Server                       ║\n")
	fmt.Printf("╠═══════════════════════════════════════════════════════════╣\n")
	fmt.Printf("║  Version:    %-45s║\n", Version)
	fmt.Printf("║  Build Time: %-45s║\n", BuildTime)
	fmt.Printf("║  Mode:       %-45s║\n", mode)
	fmt.Printf("╠═══════════════════════════════════════════════════════════╣\n")
	fmt.Printf("║  Config:    %-46s║\n", configPath)
	fmt.Printf("║  Listen:    http://%-38s║\n", cfg.GetServerAddr())
	fmt.Printf("║  Data Dir:  %-46s║\n", cfg.GetDataDir())
	fmt.Printf("╚═══════════════════════════════════════════════════════════╝\n")
	fmt.Printf("\n")

	if embeddedMode {
		fmt.Printf("Open http://localhost:%d in your browser\n\n", cfg.Server.Port)
	}

	e.Logger.Fatal(e.StartServer(s))
}
