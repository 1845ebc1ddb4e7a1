package services

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/senushidinara/DreamStruct/internal/errors"
	"github.com/senushidinara/DreamStruct/internal/llm"
	"github.com/senushidinara/DreamStruct/internal/models"
	"github.com/senushidinara/DreamStruct/internal/storage"
	"github.com/senushidinara/DreamStruct/internal/utils"
)

const (
	designJSON = `{"name":"Aether Spire","description":"A tower of light.","structure":[` +
		`{"shape":"box","position":[0,5,0],"scale":[2,10,2],"color":"#00ffff"},` +
		`{"shape":"sphere","position":[0,11,0],"scale":[1.5,1.5,1.5],"color":"#ff00ff"}]}`
	analysisJSON = `{"stability":"gravity anchors","materials":"carbon nanofoam","energy":"solar sails"}`
)

type fakeReply struct {
	text string
	err  error
}

type fakeProvider struct {
	mu      sync.Mutex
	replies []fakeReply
	calls   []llm.CompletionRequest

	started chan struct{} // signalled on every call when set
	release chan struct{} // calls block until closed when set
}

func (f *fakeProvider) Initialize(map[string]string) error { return nil }
func (f *fakeProvider) GetName() string                    { return "fake" }
func (f *fakeProvider) GetSupportedModels() []string       { return []string{"fake-model"} }

func (f *fakeProvider) CompleteText(ctx context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
	f.mu.Lock()
	f.calls = append(f.calls, req)
	var r fakeReply
	if len(f.replies) > 0 {
		r, f.replies = f.replies[0], f.replies[1:]
	}
	started, release := f.started, f.release
	f.mu.Unlock()

	if started != nil {
		started <- struct{}{}
	}
	if release != nil {
		select {
		case <-release:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if r.err != nil {
		return nil, r.err
	}
	return &llm.CompletionResponse{Text: r.text, ModelName: "fake-model", TokensUsed: 42}, nil
}

func (f *fakeProvider) reply(replies ...fakeReply) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.replies = append(f.replies, replies...)
}

func (f *fakeProvider) lastCall() llm.CompletionRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[len(f.calls)-1]
}

type testEnv struct {
	provider *fakeProvider
	sessions *SessionService
	files    *storage.FileStorage
	gallery  *storage.GalleryStore
	metrics  *utils.MetricsCollector
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	dir := t.TempDir()

	files, err := storage.NewFileStorage(dir)
	require.NoError(t, err)
	gallery, err := storage.OpenGallery(dir)
	require.NoError(t, err)
	t.Cleanup(func() { gallery.Close() })

	collector := utils.NewMetricsCollector()
	metrics := utils.NewDesignMetricsWith(collector)
	fp := &fakeProvider{}
	llmService := NewLLMServiceWithProvider("fake", fp, 0, metrics)

	sessions := NewSessionService(
		NewDesignService(llmService),
		NewAnalyzerService(llmService),
		WithSessionStore(files),
		WithGallery(gallery),
		WithMetrics(metrics),
	)
	t.Cleanup(sessions.Close)

	return &testEnv{provider: fp, sessions: sessions, files: files, gallery: gallery, metrics: collector}
}

func (e *testEnv) newSession(t *testing.T) string {
	t.Helper()
	view, err := e.sessions.CreateSession()
	require.NoError(t, err)
	return view.ID
}

func TestGenerateSuccess(t *testing.T) {
	env := newTestEnv(t)
	id := env.newSession(t)
	env.provider.reply(fakeReply{text: designJSON})

	view, err := env.sessions.Generate(context.Background(), id, "  a tower of light  ", "")
	require.NoError(t, err)

	assert.Equal(t, models.PhaseReady, view.State.Phase)
	assert.Equal(t, models.AnalysisPhaseIdle, view.State.AnalysisPhase)
	require.NotNil(t, view.State.Design)
	assert.Equal(t, "Aether Spire", view.State.Design.Name)
	assert.Len(t, view.State.Design.Structure, 2)
	assert.Equal(t, "a tower of light", view.State.Prompt)
	assert.Equal(t, models.ThemeFuturistic, view.State.Theme)
	assert.True(t, view.State.CanAnalyze)
	assert.Empty(t, view.State.Error)

	call := env.provider.lastCall()
	assert.Equal(t, "a tower of light", call.Prompt)
	assert.Equal(t, "application/json", call.ResponseMIMEType)
	assert.Equal(t, futuristicInstruction, call.SystemPrompt)
	require.NotNil(t, call.ResponseSchema)
	assert.ElementsMatch(t, []string{"name", "description", "structure"}, call.ResponseSchema.Required)

	assert.True(t, env.files.FileExists(filepath.Join("sessions", id), "session.json"))

	entries, err := env.gallery.List(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, view.GalleryID, entries[0].ID)
	assert.Equal(t, id, entries[0].SessionID)

	assert.EqualValues(t, 1, env.metrics.GetCounterValue("designs_generated_total"))
	assert.EqualValues(t, 42, env.metrics.GetCounterValue("llm_tokens_total"))
	assert.EqualValues(t, 0, env.metrics.GetGauge("generations_in_flight"))
}

func TestGenerateHauntedUsesHauntedInstruction(t *testing.T) {
	env := newTestEnv(t)
	id := env.newSession(t)
	env.provider.reply(fakeReply{text: "```json\n" + designJSON + "\n```"})

	view, err := env.sessions.Generate(context.Background(), id, "a cathedral", "Haunted")
	require.NoError(t, err)
	assert.Equal(t, models.PhaseReady, view.State.Phase)
	assert.Equal(t, models.ThemeHaunted, view.State.Theme)
	assert.Equal(t, hauntedInstruction, env.provider.lastCall().SystemPrompt)
}

func TestGenerateFailures(t *testing.T) {
	tests := []struct {
		name  string
		reply fakeReply
	}{
		{"transport error", fakeReply{err: errors.New("connection reset")}},
		{"malformed json", fakeReply{text: `{"name": "broken"`}},
		{"not json at all", fakeReply{text: "I cannot help with that."}},
		{"contract violation", fakeReply{text: `{"name":"n","description":"d","structure":[{"shape":"box","position":[0,0],"scale":[1,1,1],"color":"#fff"}]}`}},
		{"empty structure", fakeReply{text: `{"name":"n","description":"d","structure":[]}`}},
		{"non hex color", fakeReply{text: `{"name":"n","description":"d","structure":[{"shape":"box","position":[0,0,0],"scale":[1,1,1],"color":"cyan"}]}`}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t)
			id := env.newSession(t)
			env.provider.reply(tt.reply)

			view, err := env.sessions.Generate(context.Background(), id, "tower", "futuristic")
			require.NoError(t, err)
			assert.Equal(t, models.PhaseGenerateError, view.State.Phase)
			assert.Equal(t, GenerateFailedMessage, view.State.Error)
			assert.Nil(t, view.State.Design)
			assert.False(t, view.State.CanAnalyze)
			assert.True(t, view.State.CanGenerate)
			assert.Empty(t, view.GalleryID)
		})
	}
}

func TestGenerateRejectsBadInput(t *testing.T) {
	env := newTestEnv(t)
	id := env.newSession(t)

	_, err := env.sessions.Generate(context.Background(), id, "   ", "futuristic")
	assert.True(t, apperrors.IsValidationError(err))

	_, err = env.sessions.Generate(context.Background(), id, "tower", "baroque")
	assert.True(t, apperrors.IsValidationError(err))

	_, err = env.sessions.Generate(context.Background(), "missing", "tower", "")
	assert.True(t, apperrors.IsNotFoundError(err))

	view, err := env.sessions.GetSession(id)
	require.NoError(t, err)
	assert.Equal(t, models.PhaseIdle, view.State.Phase)
	assert.Zero(t, view.State.Epoch)
	env.provider.mu.Lock()
	assert.Empty(t, env.provider.calls)
	env.provider.mu.Unlock()
}

func TestRegenerateClearsAnalysis(t *testing.T) {
	env := newTestEnv(t)
	id := env.newSession(t)
	env.provider.reply(fakeReply{text: designJSON}, fakeReply{text: analysisJSON}, fakeReply{text: designJSON})
	ctx := context.Background()

	_, err := env.sessions.Generate(ctx, id, "first", "")
	require.NoError(t, err)
	view, err := env.sessions.Analyze(ctx, id)
	require.NoError(t, err)
	require.NotNil(t, view.State.Analysis)

	view, err = env.sessions.Generate(ctx, id, "second", "")
	require.NoError(t, err)
	assert.Nil(t, view.State.Analysis)
	assert.Equal(t, models.AnalysisPhaseIdle, view.State.AnalysisPhase)
	assert.Equal(t, "second", view.State.Prompt)
}

func TestAnalyzeFlow(t *testing.T) {
	env := newTestEnv(t)
	id := env.newSession(t)
	ctx := context.Background()
	env.provider.reply(fakeReply{text: designJSON}, fakeReply{text: analysisJSON})

	_, err := env.sessions.Generate(ctx, id, "tower", "")
	require.NoError(t, err)

	view, err := env.sessions.Analyze(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, models.AnalysisPhaseReady, view.State.AnalysisPhase)
	require.NotNil(t, view.State.Analysis)
	assert.Equal(t, "gravity anchors", view.State.Analysis.Stability)
	assert.False(t, view.State.CanAnalyze)

	call := env.provider.lastCall()
	assert.Equal(t, "Analyze the following design concept:\nName: Aether Spire\nDescription: A tower of light.", call.Prompt)
	assert.Equal(t, analysisInstruction, call.SystemPrompt)
	assert.ElementsMatch(t, []string{"stability", "materials", "energy"}, call.ResponseSchema.Required)

	_, err = env.sessions.Analyze(ctx, id)
	assert.True(t, apperrors.IsConflictError(err))

	entry, err := env.gallery.Get(ctx, view.GalleryID)
	require.NoError(t, err)
	require.NotNil(t, entry.Analysis)
	assert.Equal(t, "solar sails", entry.Analysis.Energy)
}

func TestAnalyzeFailureKeepsDesign(t *testing.T) {
	env := newTestEnv(t)
	id := env.newSession(t)
	ctx := context.Background()
	env.provider.reply(
		fakeReply{text: designJSON},
		fakeReply{text: `{"stability":"only this"}`},
		fakeReply{text: analysisJSON},
	)

	_, err := env.sessions.Generate(ctx, id, "tower", "")
	require.NoError(t, err)

	view, err := env.sessions.Analyze(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, models.AnalysisPhaseError, view.State.AnalysisPhase)
	assert.Equal(t, AnalyzeFailedMessage, view.State.AnalysisError)
	require.NotNil(t, view.State.Design)
	assert.Equal(t, "Aether Spire", view.State.Design.Name)
	assert.True(t, view.State.CanAnalyze)

	// retry from analysis_error
	view, err = env.sessions.Analyze(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, models.AnalysisPhaseReady, view.State.AnalysisPhase)
	assert.Empty(t, view.State.AnalysisError)
}

func TestAnalyzeWithoutDesignConflicts(t *testing.T) {
	env := newTestEnv(t)
	id := env.newSession(t)

	_, err := env.sessions.Analyze(context.Background(), id)
	assert.True(t, apperrors.IsConflictError(err))
}

func TestConcurrentGenerateIsRejected(t *testing.T) {
	env := newTestEnv(t)
	id := env.newSession(t)
	env.provider.started = make(chan struct{}, 1)
	env.provider.release = make(chan struct{})
	env.provider.reply(fakeReply{text: designJSON})

	type result struct {
		view models.SessionView
		err  error
	}
	done := make(chan result, 1)
	go func() {
		v, err := env.sessions.Generate(context.Background(), id, "first", "")
		done <- result{v, err}
	}()

	<-env.provider.started
	view, err := env.sessions.GetSession(id)
	require.NoError(t, err)
	assert.Equal(t, models.PhaseGenerating, view.State.Phase)
	assert.True(t, view.State.Loading)
	assert.EqualValues(t, 1, env.metrics.GetGauge("generations_in_flight"))

	_, err = env.sessions.Generate(context.Background(), id, "second", "")
	assert.True(t, apperrors.IsConflictError(err))

	close(env.provider.release)
	res := <-done
	require.NoError(t, res.err)
	assert.Equal(t, models.PhaseReady, res.view.State.Phase)
	assert.Equal(t, "first", res.view.State.Prompt)
}

func TestResetDuringGenerationDropsResult(t *testing.T) {
	env := newTestEnv(t)
	id := env.newSession(t)
	env.provider.started = make(chan struct{}, 1)
	env.provider.release = make(chan struct{})
	env.provider.reply(fakeReply{text: designJSON})

	done := make(chan models.SessionView, 1)
	go func() {
		v, _ := env.sessions.Generate(context.Background(), id, "tower", "")
		done <- v
	}()

	<-env.provider.started
	reset, err := env.sessions.ResetSession(id)
	require.NoError(t, err)
	assert.Equal(t, models.PhaseIdle, reset.State.Phase)

	close(env.provider.release)
	view := <-done
	assert.Equal(t, models.PhaseIdle, view.State.Phase)
	assert.Nil(t, view.State.Design)

	entries, err := env.gallery.List(context.Background(), 10)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestLateAnalysisIsDroppedAfterRegeneration(t *testing.T) {
	env := newTestEnv(t)
	id := env.newSession(t)
	ctx := context.Background()
	env.provider.reply(fakeReply{text: designJSON})
	_, err := env.sessions.Generate(ctx, id, "first", "")
	require.NoError(t, err)

	env.provider.started = make(chan struct{}, 2)
	release := make(chan struct{})
	env.provider.release = release
	env.provider.reply(fakeReply{text: analysisJSON}, fakeReply{text: designJSON})

	analyzed := make(chan models.SessionView, 1)
	go func() {
		v, _ := env.sessions.Analyze(ctx, id)
		analyzed <- v
	}()
	<-env.provider.started

	generated := make(chan models.SessionView, 1)
	go func() {
		v, _ := env.sessions.Generate(ctx, id, "second", "")
		generated <- v
	}()
	<-env.provider.started

	close(release)
	<-analyzed
	<-generated

	view, err := env.sessions.GetSession(id)
	require.NoError(t, err)
	assert.Equal(t, models.PhaseReady, view.State.Phase)
	assert.Equal(t, "second", view.State.Prompt)
	assert.Nil(t, view.State.Analysis)
	assert.Equal(t, models.AnalysisPhaseIdle, view.State.AnalysisPhase)
}

func TestSubscribeReceivesTransitions(t *testing.T) {
	env := newTestEnv(t)
	id := env.newSession(t)
	env.provider.reply(fakeReply{text: designJSON})

	var mu sync.Mutex
	var phases []models.Phase
	unsubscribe := env.sessions.Subscribe(func(v models.SessionView) {
		if v.ID != id {
			return
		}
		mu.Lock()
		phases = append(phases, v.State.Phase)
		mu.Unlock()
	})

	_, err := env.sessions.Generate(context.Background(), id, "tower", "")
	require.NoError(t, err)
	unsubscribe()
	_, err = env.sessions.ResetSession(id)
	require.NoError(t, err)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []models.Phase{models.PhaseGenerating, models.PhaseReady}, phases)
}

func TestSnapshotIsOrderedAgainstBroadcasts(t *testing.T) {
	env := newTestEnv(t)
	id := env.newSession(t)

	var mu sync.Mutex
	var seen []uint64
	record := func(v models.SessionView) {
		if v.ID != id {
			return
		}
		mu.Lock()
		seen = append(seen, v.State.Epoch)
		mu.Unlock()
	}

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 25; j++ {
				_, err := env.sessions.ResetSession(id)
				assert.NoError(t, err)
			}
		}()
	}

	// subscribe while resets are in flight, then take the snapshot
	unsubscribe := env.sessions.Subscribe(record)
	require.NoError(t, env.sessions.WithSnapshot(id, record))
	wg.Wait()
	unsubscribe()

	mu.Lock()
	defer mu.Unlock()
	require.NotEmpty(t, seen)
	for i := 1; i < len(seen); i++ {
		assert.LessOrEqual(t, seen[i-1], seen[i], "epoch went backwards at %d: %v", i, seen)
	}
	assert.Equal(t, uint64(100), seen[len(seen)-1])
}

func TestWithSnapshotUnknownSession(t *testing.T) {
	env := newTestEnv(t)
	err := env.sessions.WithSnapshot("missing", func(models.SessionView) {
		t.Fatal("callback must not run")
	})
	assert.True(t, apperrors.IsNotFoundError(err))
}

func TestRestoreBringsBackRestingStates(t *testing.T) {
	dir := t.TempDir()
	files, err := storage.NewFileStorage(dir)
	require.NoError(t, err)

	lc, err := models.NewLifecycle().BeginGeneration(models.GenerationRequest{Prompt: "a"})
	require.NoError(t, err)
	require.NoError(t, files.SaveSession((&models.Session{ID: "gen", Lifecycle: lc}).View()))

	lc, err = lc.CompleteGeneration(lc.Epoch, models.DesignResult{Name: "n", Description: "d"})
	require.NoError(t, err)
	lc, _, err = lc.BeginAnalysis()
	require.NoError(t, err)
	require.NoError(t, files.SaveSession((&models.Session{ID: "ana", Lifecycle: lc}).View()))

	svc := NewSessionService(nil, nil, WithSessionStore(files), WithMetrics(utils.NewDesignMetricsWith(utils.NewMetricsCollector())))
	t.Cleanup(svc.Close)

	n, err := svc.Restore()
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	gen, err := svc.GetSession("gen")
	require.NoError(t, err)
	assert.Equal(t, models.PhaseIdle, gen.State.Phase)

	ana, err := svc.GetSession("ana")
	require.NoError(t, err)
	assert.Equal(t, models.PhaseReady, ana.State.Phase)
	assert.Equal(t, models.AnalysisPhaseIdle, ana.State.AnalysisPhase)
	assert.True(t, ana.State.CanAnalyze)
}

func TestExportSession(t *testing.T) {
	env := newTestEnv(t)
	id := env.newSession(t)
	ctx := context.Background()
	env.provider.reply(fakeReply{text: designJSON}, fakeReply{text: analysisJSON})

	exporter := NewExportService(env.sessions)
	exporter.now = func() time.Time { return time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC) }

	_, err := exporter.ExportSession(id, "json")
	assert.True(t, apperrors.IsNotFoundError(err))

	_, err = env.sessions.Generate(ctx, id, "tower", "haunted")
	require.NoError(t, err)

	res, err := exporter.ExportSession(id, "")
	require.NoError(t, err)
	assert.Equal(t, FormatJSON, res.Format)
	assert.Equal(t, "aether-spire.json", res.FileName)
	assert.Contains(t, res.Content, `"name": "Aether Spire"`)
	assert.NotContains(t, res.Content, `"analysis"`)

	_, err = env.sessions.Analyze(ctx, id)
	require.NoError(t, err)

	res, err = exporter.ExportSession(id, "YAML")
	require.NoError(t, err)
	assert.Equal(t, FormatYAML, res.Format)
	assert.Contains(t, res.Content, "name: Aether Spire")
	assert.Contains(t, res.Content, "position: [0, 5, 0]")
	assert.Contains(t, res.Content, "stability: gravity anchors")

	res, err = exporter.ExportSession(id, "markdown")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(res.Content, "# Aether Spire\n"))
	assert.Contains(t, res.Content, "- **Theme**: Haunted")
	assert.Contains(t, res.Content, "| 2 | sphere | [0, 11, 0] | [1.5, 1.5, 1.5] | #ff00ff |")
	assert.Contains(t, res.Content, "### Energy & Sustainability\n\nsolar sails")

	_, err = exporter.ExportSession(id, "pdf")
	assert.True(t, apperrors.IsValidationError(err))
}

func TestGalleryService(t *testing.T) {
	env := newTestEnv(t)
	id := env.newSession(t)
	ctx := context.Background()
	env.provider.reply(fakeReply{text: designJSON})
	view, err := env.sessions.Generate(ctx, id, "tower", "")
	require.NoError(t, err)

	gallery := NewGalleryService(env.gallery)
	entries, err := gallery.List(ctx, 0)
	require.NoError(t, err)
	require.Len(t, entries, 1)

	entry, err := gallery.Get(ctx, view.GalleryID)
	require.NoError(t, err)
	assert.Equal(t, "Aether Spire", entry.Design.Name)

	_, err = gallery.Get(ctx, "nope")
	assert.True(t, apperrors.IsNotFoundError(err))

	_, err = NewGalleryService(nil).List(ctx, 5)
	assert.Error(t, err)
}

func TestLockManagerCleanup(t *testing.T) {
	lm := NewLockManager()
	defer lm.Stop()
	lm.maxLocks = 1

	require.NoError(t, lm.ExecuteWithSessionLock("a", func() error { return nil }))
	require.NoError(t, lm.ExecuteWithSessionLock("b", func() error { return nil }))
	assert.Equal(t, 2, lm.Size())

	assert.Equal(t, 0, lm.cleanupUnusedLocks(time.Now()))
	assert.Equal(t, 2, lm.cleanupUnusedLocks(time.Now().Add(time.Hour)))
	assert.Equal(t, 0, lm.Size())

	boom := errors.New("boom")
	assert.ErrorIs(t, lm.ExecuteWithSessionLock("c", func() error { return boom }), boom)
}
