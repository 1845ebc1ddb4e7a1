// internal/services/export_service.go
package services

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	apperrors "github.com/senushidinara/DreamStruct/internal/errors"
	"github.com/senushidinara/DreamStruct/internal/models"
)

// Export formats.
const (
	FormatJSON     = "json"
	FormatYAML     = "yaml"
	FormatMarkdown = "markdown"
)

// ExportResult is one rendered export.
type ExportResult struct {
	SessionID   string    `json:"session_id"`
	Format      string    `json:"format"`
	ContentType string    `json:"content_type"`
	FileName    string    `json:"file_name"`
	Content     string    `json:"content"`
	GeneratedAt time.Time `json:"generated_at"`
}

// DesignDocument is the exported form of a design and its analysis.
type DesignDocument struct {
	Name        string                 `json:"name" yaml:"name"`
	Description string                 `json:"description" yaml:"description"`
	Theme       models.Theme           `json:"theme" yaml:"theme"`
	Prompt      string                 `json:"prompt" yaml:"prompt"`
	Structure   []models.SceneObject   `json:"structure" yaml:"structure"`
	Analysis    *models.AnalysisResult `json:"analysis,omitempty" yaml:"analysis,omitempty"`
	ExportedAt  string                 `json:"exported_at" yaml:"exported_at"`
}

// DesignSource supplies the session a design is exported from.
type DesignSource interface {
	CurrentDesign(id string) (models.SessionView, error)
}

// ExportService renders a session's design as JSON, YAML or Markdown.
type ExportService struct {
	Sessions DesignSource
	now      func() time.Time
}

func NewExportService(sessions DesignSource) *ExportService {
	return &ExportService{Sessions: sessions, now: time.Now}
}

// ParseExportFormat normalises a format name; empty means JSON.
func ParseExportFormat(format string) (string, error) {
	switch f := strings.ToLower(strings.TrimSpace(format)); f {
	case "", FormatJSON:
		return FormatJSON, nil
	case FormatYAML, "yml":
		return FormatYAML, nil
	case FormatMarkdown, "md":
		return FormatMarkdown, nil
	default:
		return "", apperrors.NewValidationError(fmt.Sprintf("unsupported export format: %s", format), nil)
	}
}

// ExportSession renders the current design of a session.
func (s *ExportService) ExportSession(sessionID, format string) (*ExportResult, error) {
	f, err := ParseExportFormat(format)
	if err != nil {
		return nil, err
	}
	view, err := s.Sessions.CurrentDesign(sessionID)
	if err != nil {
		return nil, apperrors.WrapError(err, "export", apperrors.ErrorTypeError)
	}

	now := s.now()
	doc := DesignDocument{
		Name:        view.State.Design.Name,
		Description: view.State.Design.Description,
		Theme:       view.State.Theme,
		Prompt:      view.State.Prompt,
		Structure:   view.State.Design.Structure,
		Analysis:    view.State.Analysis,
		ExportedAt:  now.UTC().Format(time.RFC3339),
	}

	content, contentType, ext, err := FormatDocument(doc, f)
	if err != nil {
		return nil, apperrors.NewProcessingError("export failed", err)
	}

	return &ExportResult{
		SessionID:   sessionID,
		Format:      f,
		ContentType: contentType,
		FileName:    fileName(doc.Name, ext),
		Content:     content,
		GeneratedAt: now,
	}, nil
}

// FormatDocument renders doc in format and returns content, MIME type and file extension.
func FormatDocument(doc DesignDocument, format string) (string, string, string, error) {
	switch format {
	case FormatJSON:
		data, err := json.MarshalIndent(doc, "", "  ")
		if err != nil {
			return "", "", "", fmt.Errorf("encode json: %w", err)
		}
		return string(data), "application/json; charset=utf-8", "json", nil
	case FormatYAML:
		data, err := yaml.Marshal(doc)
		if err != nil {
			return "", "", "", fmt.Errorf("encode yaml: %w", err)
		}
		return string(data), "application/yaml; charset=utf-8", "yaml", nil
	case FormatMarkdown:
		return formatAsMarkdown(doc), "text/markdown; charset=utf-8", "md", nil
	default:
		return "", "", "", fmt.Errorf("unsupported format: %s", format)
	}
}

func formatAsMarkdown(doc DesignDocument) string {
	var content strings.Builder

	fmt.Fprintf(&content, "# %s\n\n", doc.Name)
	fmt.Fprintf(&content, "- **Theme**: %s\n", doc.Theme.Label())
	fmt.Fprintf(&content, "- **Prompt**: %s\n", doc.Prompt)
	fmt.Fprintf(&content, "- **Exported**: %s\n\n", doc.ExportedAt)

	content.WriteString("## Concept\n\n")
	content.WriteString(doc.Description)
	content.WriteString("\n\n")

	content.WriteString("## Structure\n\n")
	content.WriteString("| # | Shape | Position | Scale | Color |\n")
	content.WriteString("|---|---|---|---|---|\n")
	for i, obj := range doc.Structure {
		fmt.Fprintf(&content, "| %d | %s | %s | %s | %s |\n",
			i+1, obj.Shape, formatVector(obj.Position), formatVector(obj.Scale), obj.Color)
	}

	if doc.Analysis != nil {
		content.WriteString("\n## Feasibility Analysis\n\n")
		fmt.Fprintf(&content, "### Structural Stability\n\n%s\n\n", doc.Analysis.Stability)
		fmt.Fprintf(&content, "### Material Efficiency\n\n%s\n\n", doc.Analysis.Materials)
		fmt.Fprintf(&content, "### Energy & Sustainability\n\n%s\n", doc.Analysis.Energy)
	}

	return content.String()
}

func formatVector(v []float64) string {
	parts := make([]string, len(v))
	for i, x := range v {
		parts[i] = fmt.Sprintf("%g", x)
	}
	return "[" + strings.Join(parts, ", ") + "]"
}

// fileName builds a download name from the design name.
func fileName(name, ext string) string {
	slug := strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			return r
		case r >= 'A' && r <= 'Z':
			return r + ('a' - 'A')
		default:
			return '-'
		}
	}, name)
	slug = strings.Trim(slug, "-")
	for strings.Contains(slug, "--") {
		slug = strings.ReplaceAll(slug, "--", "-")
	}
	if slug == "" {
		slug = "design"
	}
	return slug + "." + ext
}
