// internal/app/app.go

// Package app wires configuration, services and the HTTP server together.
package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/senushidinara/DreamStruct/internal/api"
	"github.com/senushidinara/DreamStruct/internal/config"
	"github.com/senushidinara/DreamStruct/internal/di"
	_ "github.com/senushidinara/DreamStruct/internal/llm/providers/google"
	"github.com/senushidinara/DreamStruct/internal/services"
	"github.com/senushidinara/DreamStruct/internal/storage"
	"github.com/senushidinara/DreamStruct/internal/utils"
)

const shutdownTimeout = 30 * time.Second

// Server is the part of *http.Server the app drives.
type Server interface {
	ListenAndServe() error
	Shutdown(ctx context.Context) error
}

// App is the running application.
type App struct {
	config   *config.AppConfig
	router   http.Handler
	server   Server
	stopChan chan os.Signal
}

var (
	instance   *App
	instanceMu sync.Mutex
)

// GetApp returns the application singleton.
func GetApp() *App {
	instanceMu.Lock()
	defer instanceMu.Unlock()

	if instance == nil {
		instance = &App{
			stopChan: make(chan os.Signal, 1),
		}
	}
	return instance
}

// Initialize loads config from dataDir, starts logging, builds the services,
// restores persisted sessions and prepares the HTTP server.
func Initialize(dataDir string) error {
	if err := config.InitConfig(dataDir); err != nil {
		return fmt.Errorf("init config: %w", err)
	}

	app := GetApp()
	app.config = config.GetCurrentConfig()

	if err := initLogger(app.config.LogDir); err != nil {
		return fmt.Errorf("init logger: %w", err)
	}

	if err := InitServices(); err != nil {
		return fmt.Errorf("init services: %w", err)
	}

	if sessions, ok := di.Lookup[*services.SessionService](di.GetContainer(), di.Session); ok {
		restored, err := sessions.Restore()
		if err != nil {
			utils.GetLogger().Warn("Failed to restore sessions", map[string]interface{}{"error": err.Error()})
		} else {
			utils.GetLogger().Info("Sessions restored", map[string]interface{}{"count": restored})
		}
	}

	router, err := api.SetupRouter()
	if err != nil {
		return fmt.Errorf("setup router: %w", err)
	}
	app.router = router
	app.server = &http.Server{
		Addr:              ":" + app.config.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return nil
}

// InitServices builds every service in dependency order and registers it in
// the DI container.
func InitServices() error {
	cfg := config.GetCurrentConfig()
	container := di.GetContainer()

	metrics := utils.NewDesignMetrics()
	container.Register(di.Metrics, metrics)

	files, err := storage.NewFileStorage(cfg.DataDir)
	if err != nil {
		return fmt.Errorf("file storage: %w", err)
	}
	container.Register(di.Files, files)

	galleryStore, err := storage.OpenGallery(cfg.DataDir)
	if err != nil {
		return fmt.Errorf("gallery store: %w", err)
	}
	container.Register(di.GalleryStore, galleryStore)

	llmService := services.NewLLMService(cfg.LLMTimeout, metrics)
	container.Register(di.LLM, llmService)

	designService := services.NewDesignService(llmService)
	container.Register(di.Design, designService)

	analyzerService := services.NewAnalyzerService(llmService)
	container.Register(di.Analyzer, analyzerService)

	sessionService := services.NewSessionService(
		designService,
		analyzerService,
		services.WithSessionStore(files),
		services.WithGallery(galleryStore),
		services.WithMetrics(metrics),
	)
	container.Register(di.Session, sessionService)

	container.Register(di.Export, services.NewExportService(sessionService))
	container.Register(di.Gallery, services.NewGalleryService(galleryStore))

	if ready, state := llmService.GetProviderStatus(); !ready {
		utils.GetLogger().Warn("LLM service not ready, generation will fail until it is configured", map[string]interface{}{
			"provider": cfg.LLMProvider,
			"status":   state,
		})
	}

	utils.GetLogger().Info("Services initialised", map[string]interface{}{
		"services": container.GetNames(),
	})
	return nil
}

// Stop asks a running Run to shut down. Calls after the first are no-ops
// until Run has consumed the request.
func Stop() {
	app := GetApp()
	select {
	case app.stopChan <- os.Interrupt:
	default:
	}
}

// Run serves until SIGINT, SIGTERM or Stop, then shuts down gracefully.
func Run() error {
	app := GetApp()
	if app.server == nil {
		return errors.New("app not initialised")
	}

	signal.Notify(app.stopChan, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(app.stopChan)

	g, ctx := errgroup.WithContext(context.Background())

	g.Go(func() error {
		if app.config != nil {
			utils.GetLogger().Info("Server listening", map[string]interface{}{"port": app.config.Port})
		}
		if err := app.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("listen: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		select {
		case sig := <-app.stopChan:
			utils.GetLogger().Info("Shutting down", map[string]interface{}{"signal": sig.String()})
		case <-ctx.Done():
		}

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := app.server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutdown: %w", err)
		}
		return nil
	})

	err := g.Wait()
	app.cleanup()
	return err
}

// cleanup releases what the services hold.
func (a *App) cleanup() {
	container := di.GetContainer()

	if ws, ok := di.Lookup[*api.WebSocketManager](container, di.WebSocket); ok {
		ws.CloseAll()
	}
	if sessions, ok := di.Lookup[*services.SessionService](container, di.Session); ok {
		sessions.Close()
	}
	if gallery, ok := di.Lookup[*storage.GalleryStore](container, di.GalleryStore); ok {
		if err := gallery.Close(); err != nil {
			utils.GetLogger().Warn("Failed to close gallery", map[string]interface{}{"error": err.Error()})
		}
	}

	utils.GetLogger().Info("Cleanup complete", nil)
	utils.GetLogger().Sync()
}

// GetConfig returns the configuration the app was initialised with.
func (a *App) GetConfig() *config.AppConfig {
	return a.config
}

// Router returns the HTTP handler.
func (a *App) Router() http.Handler {
	return a.router
}

func GetDIContainer() *di.Container {
	return di.GetContainer()
}

// IsDebugMode reports whether the app runs in debug mode.
func IsDebugMode() bool {
	instanceMu.Lock()
	app := instance
	instanceMu.Unlock()
	return app != nil && app.config != nil && app.config.DebugMode
}

func initLogger(logDir string) error {
	return utils.InitLogger(logDir, IsDebugMode())
}
