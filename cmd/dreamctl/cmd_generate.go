// cmd/dreamctl/cmd_generate.go
package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/senushidinara/DreamStruct/internal/models"
	"github.com/senushidinara/DreamStruct/internal/render"
	"github.com/senushidinara/DreamStruct/internal/services"
)

type generateOptions struct {
	theme   string
	analyze bool
	scene   bool
	format  string
	output  string
}

func newGenerateCmd(root *rootOptions) *cobra.Command {
	opts := &generateOptions{}

	cmd := &cobra.Command{
		Use:   "generate [prompt]",
		Short: "Generate a design from a prompt",
		Long: `Sends the prompt with the theme's system instruction and prints the
design as JSON, YAML or Markdown. With --analyze the feasibility analysis is
requested too; with --scene the render description is printed instead.

Example:
  dreamctl generate --theme haunted --analyze "a chapel grown from bone"`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runGenerate(cmd, root, opts, strings.Join(args, " "))
		},
	}

	cmd.Flags().StringVarP(&opts.theme, "theme", "t", string(models.ThemeFuturistic), "futuristic or haunted")
	cmd.Flags().BoolVarP(&opts.analyze, "analyze", "a", false, "also run the feasibility analysis")
	cmd.Flags().BoolVar(&opts.scene, "scene", false, "print the render description instead of the design")
	cmd.Flags().StringVarP(&opts.format, "format", "f", services.FormatJSON, "json, yaml or markdown")
	cmd.Flags().StringVarP(&opts.output, "output", "o", "", "write to a file instead of stdout")
	return cmd
}

func runGenerate(cmd *cobra.Command, root *rootOptions, opts *generateOptions, prompt string) error {
	format, err := services.ParseExportFormat(opts.format)
	if err != nil {
		return err
	}
	if _, err := models.ParseTheme(opts.theme); err != nil {
		return err
	}

	llmService, err := root.llmService()
	if err != nil {
		return err
	}

	sessions := services.NewSessionService(
		services.NewDesignService(llmService),
		services.NewAnalyzerService(llmService),
	)
	defer sessions.Close()

	sess, err := sessions.CreateSession()
	if err != nil {
		return err
	}

	view, err := sessions.Generate(cmd.Context(), sess.ID, prompt, opts.theme)
	if err != nil {
		return err
	}
	if view.State.Phase != models.PhaseReady {
		return errors.New(view.State.Error)
	}
	design := view.State.Design
	fmt.Fprintf(cmd.ErrOrStderr(), "Generated %q with %d objects\n", design.Name, len(design.Structure))

	if opts.analyze {
		view, err = sessions.Analyze(cmd.Context(), sess.ID)
		if err != nil {
			return err
		}
		if view.State.AnalysisError != "" {
			return errors.New(view.State.AnalysisError)
		}
	}

	if opts.scene {
		data, err := json.MarshalIndent(render.BuildScene(design.Structure), "", "  ")
		if err != nil {
			return err
		}
		return writeOutput(cmd, opts.output, string(data)+"\n")
	}

	result, err := services.NewExportService(sessions).ExportSession(sess.ID, format)
	if err != nil {
		return err
	}
	return writeOutput(cmd, opts.output, result.Content)
}

type analyzeOptions struct {
	format string
}

func newAnalyzeCmd(root *rootOptions) *cobra.Command {
	opts := &analyzeOptions{}

	cmd := &cobra.Command{
		Use:   "analyze <design-file|->",
		Short: "Run the feasibility analysis of a saved design",
		Long: `Reads a design (JSON or YAML, as printed by generate) from a file or
stdin and prints its feasibility analysis.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			design, err := readDesign(cmd, args[0])
			if err != nil {
				return err
			}

			llmService, err := root.llmService()
			if err != nil {
				return err
			}
			analysis, err := services.NewAnalyzerService(llmService).Analyze(cmd.Context(), design)
			if err != nil {
				return fmt.Errorf("%s: %w", services.AnalyzeFailedMessage, err)
			}
			return printValue(cmd, opts.format, analysis)
		},
	}

	cmd.Flags().StringVarP(&opts.format, "format", "f", services.FormatJSON, "json or yaml")
	return cmd
}

// readDesign loads and validates a design file; "-" reads stdin. YAML is a
// superset of JSON, so both parse.
func readDesign(cmd *cobra.Command, path string) (models.DesignResult, error) {
	var (
		data []byte
		err  error
	)
	if path == "-" {
		data, err = io.ReadAll(cmd.InOrStdin())
	} else {
		data, err = os.ReadFile(path)
	}
	if err != nil {
		return models.DesignResult{}, fmt.Errorf("read design: %w", err)
	}

	var design models.DesignResult
	if err := yaml.Unmarshal(data, &design); err != nil {
		return models.DesignResult{}, fmt.Errorf("parse design: %w", err)
	}
	if err := design.Validate(); err != nil {
		return models.DesignResult{}, err
	}
	return design, nil
}

func printValue(cmd *cobra.Command, format string, v interface{}) error {
	var (
		data []byte
		err  error
	)
	switch format {
	case services.FormatYAML, "yml":
		data, err = yaml.Marshal(v)
	case services.FormatJSON, "":
		data, err = json.MarshalIndent(v, "", "  ")
		data = append(data, '\n')
	default:
		return fmt.Errorf("unsupported format: %s", format)
	}
	if err != nil {
		return err
	}
	_, err = cmd.OutOrStdout().Write(data)
	return err
}

func writeOutput(cmd *cobra.Command, path, content string) error {
	if path == "" {
		_, err := io.WriteString(cmd.OutOrStdout(), content)
		return err
	}
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	fmt.Fprintf(cmd.ErrOrStderr(), "Wrote %s\n", path)
	return nil
}
