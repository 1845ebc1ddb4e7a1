// internal/services/session_service.go
package services

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	apperrors "github.com/senushidinara/DreamStruct/internal/errors"
	"github.com/senushidinara/DreamStruct/internal/models"
	"github.com/senushidinara/DreamStruct/internal/utils"
)

// DesignGenerator produces a design for one generation request.
type DesignGenerator interface {
	Generate(ctx context.Context, req models.GenerationRequest) (models.DesignResult, error)
}

// DesignAnalyzer produces the feasibility analysis of a design.
type DesignAnalyzer interface {
	Analyze(ctx context.Context, design models.DesignResult) (models.AnalysisResult, error)
}

// SessionStore persists session views.
type SessionStore interface {
	SaveSession(view models.SessionView) error
	LoadSessions() ([]models.SessionView, map[string]error, error)
}

// GalleryArchive records successful designs.
type GalleryArchive interface {
	Save(ctx context.Context, e models.GalleryEntry) error
	UpdateAnalysis(ctx context.Context, id string, a models.AnalysisResult, at time.Time) error
}

// SessionListener receives every snapshot a session moves through. It runs
// under the session lock, in transition order, and must not call back into
// the SessionService.
type SessionListener func(view models.SessionView)

// SessionService owns the design lifecycle of every session. Transitions run
// under the session lock; model calls run outside it.
type SessionService struct {
	mu       sync.RWMutex
	sessions map[string]*models.Session

	locks    *LockManager
	designer DesignGenerator
	analyzer DesignAnalyzer
	store    SessionStore   // optional
	gallery  GalleryArchive // optional
	metrics  *utils.DesignMetrics

	listenersMu sync.RWMutex
	listeners   map[int]SessionListener
	nextID      int

	now func() time.Time
}

// SessionOption configures a SessionService.
type SessionOption func(*SessionService)

func WithSessionStore(store SessionStore) SessionOption {
	return func(s *SessionService) { s.store = store }
}

func WithGallery(gallery GalleryArchive) SessionOption {
	return func(s *SessionService) { s.gallery = gallery }
}

func WithMetrics(metrics *utils.DesignMetrics) SessionOption {
	return func(s *SessionService) { s.metrics = metrics }
}

func WithClock(now func() time.Time) SessionOption {
	return func(s *SessionService) { s.now = now }
}

func NewSessionService(designer DesignGenerator, analyzer DesignAnalyzer, opts ...SessionOption) *SessionService {
	s := &SessionService{
		sessions:  make(map[string]*models.Session),
		locks:     NewLockManager(),
		designer:  designer,
		analyzer:  analyzer,
		listeners: make(map[int]SessionListener),
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.metrics == nil {
		s.metrics = utils.NewDesignMetrics()
	}
	return s
}

// Close stops background work.
func (s *SessionService) Close() {
	s.locks.Stop()
}

// Restore loads persisted sessions. In-flight states come back as their
// resting predecessor.
func (s *SessionService) Restore() (int, error) {
	if s.store == nil {
		return 0, nil
	}

	views, skipped, err := s.store.LoadSessions()
	if err != nil {
		return 0, fmt.Errorf("load sessions: %w", err)
	}
	for id, cause := range skipped {
		utils.GetLogger().Warn("Skipping unreadable session", map[string]interface{}{
			"session_id": id,
			"error":      cause.Error(),
		})
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for _, v := range views {
		s.sessions[v.ID] = models.SessionFromView(v)
	}
	return len(views), nil
}

// Subscribe registers fn for every session snapshot; call the returned func to stop.
func (s *SessionService) Subscribe(fn SessionListener) func() {
	s.listenersMu.Lock()
	id := s.nextID
	s.nextID++
	s.listeners[id] = fn
	s.listenersMu.Unlock()

	return func() {
		s.listenersMu.Lock()
		delete(s.listeners, id)
		s.listenersMu.Unlock()
	}
}

func (s *SessionService) broadcast(view models.SessionView) {
	s.listenersMu.RLock()
	listeners := make([]SessionListener, 0, len(s.listeners))
	for _, fn := range s.listeners {
		listeners = append(listeners, fn)
	}
	s.listenersMu.RUnlock()

	for _, fn := range listeners {
		fn(view)
	}
}

// CreateSession starts a new idle session.
func (s *SessionService) CreateSession() (models.SessionView, error) {
	now := s.now()
	sess := &models.Session{
		ID:        uuid.NewString(),
		CreatedAt: now,
		UpdatedAt: now,
		Lifecycle: models.NewLifecycle(),
	}

	s.mu.Lock()
	s.sessions[sess.ID] = sess
	s.mu.Unlock()

	view := sess.View()
	s.persist(view)
	return view, nil
}

// ListSessions returns every session, newest first.
func (s *SessionService) ListSessions() []models.SessionView {
	s.mu.RLock()
	ids := make([]string, 0, len(s.sessions))
	for id := range s.sessions {
		ids = append(ids, id)
	}
	s.mu.RUnlock()

	views := make([]models.SessionView, 0, len(ids))
	for _, id := range ids {
		if v, err := s.GetSession(id); err == nil {
			views = append(views, v)
		}
	}
	sort.Slice(views, func(i, j int) bool {
		return views[i].CreatedAt.After(views[j].CreatedAt)
	})
	return views
}

func (s *SessionService) lookup(id string) (*models.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sess, ok := s.sessions[id]
	if !ok {
		return nil, apperrors.NewNotFoundError(fmt.Sprintf("session %s not found", id), nil)
	}
	return sess, nil
}

// WithSnapshot calls fn with the current snapshot while holding the session
// lock. Listeners registered before the call see every later transition and
// none that precede the snapshot fn receives.
func (s *SessionService) WithSnapshot(id string, fn SessionListener) error {
	sess, err := s.lookup(id)
	if err != nil {
		return err
	}
	return s.locks.ExecuteWithSessionLock(id, func() error {
		fn(sess.View())
		return nil
	})
}

// GetSession returns the current snapshot of a session.
func (s *SessionService) GetSession(id string) (models.SessionView, error) {
	sess, err := s.lookup(id)
	if err != nil {
		return models.SessionView{}, err
	}

	var view models.SessionView
	_ = s.locks.ExecuteWithSessionLock(id, func() error {
		view = sess.View()
		return nil
	})
	return view, nil
}

// update applies fn under the session lock and, when fn reports a change,
// persists and broadcasts the result before releasing it.
func (s *SessionService) update(id string, fn func(sess *models.Session) (changed bool, err error)) (models.SessionView, error) {
	sess, err := s.lookup(id)
	if err != nil {
		return models.SessionView{}, err
	}

	var (
		view    models.SessionView
		changed bool
	)
	err = s.locks.ExecuteWithSessionLock(id, func() error {
		var ferr error
		changed, ferr = fn(sess)
		if ferr != nil {
			return ferr
		}
		view = sess.View()
		if changed {
			sess.UpdatedAt = s.now()
			view = sess.View()
			s.persist(view)
			s.broadcast(view)
		}
		return nil
	})
	if err != nil {
		return models.SessionView{}, err
	}
	return view, nil
}

func (s *SessionService) persist(view models.SessionView) {
	if s.store == nil {
		return
	}
	if err := s.store.SaveSession(view); err != nil {
		utils.GetLogger().Error("Failed to persist session", map[string]interface{}{
			"session_id": view.ID,
			"error":      err.Error(),
		})
	}
}

// ResetSession clears design and analysis together.
func (s *SessionService) ResetSession(id string) (models.SessionView, error) {
	return s.update(id, func(sess *models.Session) (bool, error) {
		sess.Lifecycle = sess.Lifecycle.Reset()
		sess.GalleryID = ""
		return true, nil
	})
}

// Generate runs one design generation for the session and returns the
// resulting snapshot. A failed generation is a state, not an error; errors
// are reserved for bad input, unknown sessions and conflicts.
func (s *SessionService) Generate(ctx context.Context, id, prompt, theme string) (models.SessionView, error) {
	prompt = strings.TrimSpace(prompt)
	if prompt == "" {
		return models.SessionView{}, apperrors.NewValidationError("prompt must not be empty", nil)
	}
	parsedTheme, err := models.ParseTheme(theme)
	if err != nil {
		return models.SessionView{}, apperrors.NewValidationError(err.Error(), err)
	}
	req := models.GenerationRequest{Prompt: prompt, Theme: parsedTheme}

	var epoch uint64
	_, err = s.update(id, func(sess *models.Session) (bool, error) {
		next, err := sess.Lifecycle.BeginGeneration(req)
		if err != nil {
			return false, apperrors.NewConflictError(err.Error(), err)
		}
		sess.Lifecycle = next
		sess.GalleryID = ""
		epoch = next.Epoch
		return true, nil
	})
	if err != nil {
		return models.SessionView{}, err
	}

	done := s.metrics.InFlight("generations_in_flight")
	design, genErr := s.designer.Generate(ctx, req)
	done()
	s.metrics.RecordGeneration(string(parsedTheme), genErr == nil)

	if genErr != nil {
		utils.GetLogger().Error("Design generation failed", map[string]interface{}{
			"session_id": id,
			"theme":      parsedTheme,
			"error":      genErr.Error(),
		})
	}

	var entry *models.GalleryEntry
	view, err := s.update(id, func(sess *models.Session) (bool, error) {
		var next models.Lifecycle
		var terr error
		if genErr != nil {
			next, terr = sess.Lifecycle.FailGeneration(epoch, GenerateFailedMessage)
		} else {
			next, terr = sess.Lifecycle.CompleteGeneration(epoch, design)
		}
		if errors.Is(terr, models.ErrStaleCompletion) {
			utils.GetLogger().Info("Dropping stale generation result", map[string]interface{}{
				"session_id": id,
				"epoch":      epoch,
			})
			return false, nil
		}
		sess.Lifecycle = next

		if genErr == nil && s.gallery != nil {
			entry = &models.GalleryEntry{
				ID:        uuid.NewString(),
				SessionID: id,
				Theme:     parsedTheme,
				Prompt:    prompt,
				Design:    design,
				CreatedAt: s.now(),
			}
			sess.GalleryID = entry.ID
		}
		return true, nil
	})
	if err != nil {
		return models.SessionView{}, err
	}

	if entry != nil {
		if err := s.gallery.Save(context.WithoutCancel(ctx), *entry); err != nil {
			utils.GetLogger().Error("Failed to archive design", map[string]interface{}{
				"session_id": id,
				"error":      err.Error(),
			})
		}
	}
	return view, nil
}

// Analyze runs the feasibility analysis of the session's current design.
func (s *SessionService) Analyze(ctx context.Context, id string) (models.SessionView, error) {
	var (
		epoch  uint64
		design models.DesignResult
	)
	_, err := s.update(id, func(sess *models.Session) (bool, error) {
		next, d, err := sess.Lifecycle.BeginAnalysis()
		if err != nil {
			return false, apperrors.NewConflictError(err.Error(), err)
		}
		sess.Lifecycle = next
		epoch, design = next.Epoch, d
		return true, nil
	})
	if err != nil {
		return models.SessionView{}, err
	}

	done := s.metrics.InFlight("analyses_in_flight")
	result, anErr := s.analyzer.Analyze(ctx, design)
	done()
	s.metrics.RecordAnalysis(anErr == nil)

	if anErr != nil {
		utils.GetLogger().Error("Design analysis failed", map[string]interface{}{
			"session_id": id,
			"design":     design.Name,
			"error":      anErr.Error(),
		})
	}

	var galleryID string
	view, err := s.update(id, func(sess *models.Session) (bool, error) {
		var next models.Lifecycle
		var terr error
		if anErr != nil {
			next, terr = sess.Lifecycle.FailAnalysis(epoch, AnalyzeFailedMessage)
		} else {
			next, terr = sess.Lifecycle.CompleteAnalysis(epoch, result)
		}
		if errors.Is(terr, models.ErrStaleCompletion) {
			utils.GetLogger().Info("Dropping stale analysis result", map[string]interface{}{
				"session_id": id,
				"epoch":      epoch,
			})
			return false, nil
		}
		sess.Lifecycle = next
		if anErr == nil {
			galleryID = sess.GalleryID
		}
		return true, nil
	})
	if err != nil {
		return models.SessionView{}, err
	}

	if galleryID != "" && s.gallery != nil {
		if err := s.gallery.UpdateAnalysis(context.WithoutCancel(ctx), galleryID, result, s.now()); err != nil {
			utils.GetLogger().Warn("Failed to archive analysis", map[string]interface{}{
				"session_id": id,
				"gallery_id": galleryID,
				"error":      err.Error(),
			})
		}
	}
	return view, nil
}

// CurrentDesign returns the session's design and analysis, or a not-found
// error when no design is present.
func (s *SessionService) CurrentDesign(id string) (models.SessionView, error) {
	view, err := s.GetSession(id)
	if err != nil {
		return models.SessionView{}, err
	}
	if view.State.Design == nil {
		return models.SessionView{}, apperrors.NewNotFoundError(fmt.Sprintf("session %s has no design", id), nil)
	}
	return view, nil
}
