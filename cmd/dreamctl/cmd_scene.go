// cmd/dreamctl/cmd_scene.go
package main

import (
	"fmt"
	"os"
	"path/filepath"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/senushidinara/DreamStruct/internal/app"
	"github.com/senushidinara/DreamStruct/internal/config"
	"github.com/senushidinara/DreamStruct/internal/models"
	"github.com/senushidinara/DreamStruct/internal/render"
	"github.com/senushidinara/DreamStruct/internal/services"
)

func newSceneCmd() *cobra.Command {
	var format string

	cmd := &cobra.Command{
		Use:   "scene <design-file|->",
		Short: "Print the render description of a saved design",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			design, err := readDesign(cmd, args[0])
			if err != nil {
				return err
			}
			return printValue(cmd, format, render.BuildScene(design.Structure))
		},
	}

	cmd.Flags().StringVarP(&format, "format", "f", services.FormatJSON, "json or yaml")
	return cmd
}

func newThemesCmd() *cobra.Command {
	var format string

	cmd := &cobra.Command{
		Use:   "themes",
		Short: "List the design themes",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			catalog := models.ThemeCatalog()
			if format != "" {
				return printValue(cmd, format, catalog)
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tLABEL\tDEFAULT\tPLACEHOLDER")
			for _, t := range catalog {
				fmt.Fprintf(w, "%s\t%s\t%t\t%s\n", t.ID, t.Label, t.Default, t.Placeholder)
			}
			return w.Flush()
		},
	}

	cmd.Flags().StringVarP(&format, "format", "f", "", "json or yaml (default: table)")
	return cmd
}

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP server",
		Long:  "Runs the same server as cmd/server, configured from the environment.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			baseConfig, err := config.Load()
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			if err := os.MkdirAll(filepath.Join(baseConfig.DataDir, "sessions"), 0755); err != nil {
				return err
			}
			if err := app.Initialize(baseConfig.DataDir); err != nil {
				return err
			}
			fmt.Fprintf(cmd.ErrOrStderr(), "Serving on http://localhost:%s\n", baseConfig.Port)

			served := make(chan struct{})
			defer close(served)
			go func() {
				select {
				case <-cmd.Context().Done():
					app.Stop()
				case <-served:
				}
			}()
			return app.Run()
		},
	}
}
