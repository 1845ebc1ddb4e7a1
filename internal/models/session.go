// internal/models/session.go
package models

import "time"

// Session is one viewer's design lifecycle.
type Session struct {
	ID        string
	CreatedAt time.Time
	UpdatedAt time.Time
	Lifecycle Lifecycle

	// GalleryID is the archive entry of the current design, if any.
	GalleryID string
}

// SessionView is the API and on-disk form of a Session.
type SessionView struct {
	ID        string    `json:"id"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
	State     Snapshot  `json:"state"`
	GalleryID string    `json:"gallery_id,omitempty"`
}

// View flattens the session.
func (s *Session) View() SessionView {
	return SessionView{
		ID:        s.ID,
		CreatedAt: s.CreatedAt,
		UpdatedAt: s.UpdatedAt,
		State:     s.Lifecycle.Snapshot(),
		GalleryID: s.GalleryID,
	}
}

// SessionFromView rebuilds a session from its persisted view.
func SessionFromView(v SessionView) *Session {
	return &Session{
		ID:        v.ID,
		CreatedAt: v.CreatedAt,
		UpdatedAt: v.UpdatedAt,
		Lifecycle: RestoreLifecycle(v.State),
		GalleryID: v.GalleryID,
	}
}

// GalleryEntry is an archived design.
type GalleryEntry struct {
	ID         string          `json:"id" yaml:"id"`
	SessionID  string          `json:"session_id" yaml:"session_id"`
	Theme      Theme           `json:"theme" yaml:"theme"`
	Prompt     string          `json:"prompt" yaml:"prompt"`
	Design     DesignResult    `json:"design" yaml:"design"`
	Analysis   *AnalysisResult `json:"analysis,omitempty" yaml:"analysis,omitempty"`
	CreatedAt  time.Time       `json:"created_at" yaml:"created_at"`
	AnalyzedAt *time.Time      `json:"analyzed_at,omitempty" yaml:"analyzed_at,omitempty"`
}

// SimulationNotice is returned by the AR/3D simulation placeholder.
const SimulationNotice = "WebXR Simulation feature is coming soon! Imagine walking through your creation in augmented reality."
