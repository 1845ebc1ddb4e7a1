// cmd/server/main.go
package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/senushidinara/DreamStruct/internal/app"
	"github.com/senushidinara/DreamStruct/internal/config"
	"github.com/senushidinara/DreamStruct/internal/utils"
)

func main() {
	if err := run(); err != nil {
		utils.GetLogger().Error("Server exited", map[string]interface{}{"error": err.Error()})
		utils.GetLogger().Sync()
		os.Exit(1)
	}
}

func run() error {
	baseConfig, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	if err := createDirectories(baseConfig); err != nil {
		return err
	}

	if err := app.Initialize(baseConfig.DataDir); err != nil {
		return err
	}

	utils.GetLogger().Info("DreamStruct starting", map[string]interface{}{
		"port":     baseConfig.Port,
		"url":      "http://localhost:" + baseConfig.Port,
		"provider": baseConfig.LLMProvider,
		"model":    baseConfig.LLMModel,
	})

	return app.Run()
}

// createDirectories makes the directories the server writes to.
func createDirectories(cfg *config.Config) error {
	dirs := []string{
		cfg.DataDir,
		filepath.Join(cfg.DataDir, "sessions"),
		cfg.LogDir,
	}

	for _, dir := range dirs {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("create directory %s: %w", dir, err)
		}
	}
	return nil
}
