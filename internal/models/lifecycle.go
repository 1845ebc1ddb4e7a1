// internal/models/lifecycle.go
package models

import "errors"

// Phase is the top-level state of a design lifecycle.
type Phase string

const (
	PhaseIdle          Phase = "idle"
	PhaseGenerating    Phase = "generating"
	PhaseReady         Phase = "ready"
	PhaseGenerateError Phase = "generate_error"
)

// AnalysisPhase is the sub-state of a ready design.
type AnalysisPhase string

const (
	AnalysisPhaseIdle    AnalysisPhase = "idle_analysis"
	AnalysisPhaseRunning AnalysisPhase = "analyzing"
	AnalysisPhaseReady   AnalysisPhase = "analysis_ready"
	AnalysisPhaseError   AnalysisPhase = "analysis_error"
)

var (
	ErrGenerationInFlight = errors.New("a design generation is already in progress")
	ErrNoDesign           = errors.New("no design has been generated")
	ErrAnalysisInFlight   = errors.New("an analysis is already in progress")
	ErrAnalysisExists     = errors.New("the design has already been analyzed")
	ErrStaleCompletion    = errors.New("completion does not match the current request")
)

// GenerationRequest is the input of one generation, fixed while it runs.
type GenerationRequest struct {
	Prompt string `json:"prompt"`
	Theme  Theme  `json:"theme"`
}

// DesignState is one of Idle, Generating, GenerateFailed or Ready.
type DesignState interface {
	Phase() Phase
	designState()
}

type Idle struct{}

type Generating struct {
	Request GenerationRequest
}

type GenerateFailed struct {
	Request GenerationRequest
	Message string
}

// Ready holds a design and, only here, its analysis state.
type Ready struct {
	Request  GenerationRequest
	Design   DesignResult
	Analysis AnalysisState
}

func (Idle) Phase() Phase           { return PhaseIdle }
func (Generating) Phase() Phase     { return PhaseGenerating }
func (GenerateFailed) Phase() Phase { return PhaseGenerateError }
func (Ready) Phase() Phase          { return PhaseReady }

func (Idle) designState()           {}
func (Generating) designState()     {}
func (GenerateFailed) designState() {}
func (Ready) designState()          {}

// AnalysisState is one of AnalysisIdle, Analyzing, AnalysisReady or AnalysisFailed.
type AnalysisState interface {
	Phase() AnalysisPhase
	analysisState()
}

type AnalysisIdle struct{}

type Analyzing struct{}

type AnalysisReady struct {
	Result AnalysisResult
}

type AnalysisFailed struct {
	Message string
}

func (AnalysisIdle) Phase() AnalysisPhase   { return AnalysisPhaseIdle }
func (Analyzing) Phase() AnalysisPhase      { return AnalysisPhaseRunning }
func (AnalysisReady) Phase() AnalysisPhase  { return AnalysisPhaseReady }
func (AnalysisFailed) Phase() AnalysisPhase { return AnalysisPhaseError }

func (AnalysisIdle) analysisState()   {}
func (Analyzing) analysisState()      {}
func (AnalysisReady) analysisState()  {}
func (AnalysisFailed) analysisState() {}

// Lifecycle is the state record of one design lifecycle. Every transition
// returns a new value; the receiver is never modified.
//
// Epoch increases on every generation start and reset. Completions carry the
// epoch they were started under and are rejected once it moved on.
type Lifecycle struct {
	State DesignState
	Epoch uint64
}

// NewLifecycle returns an idle lifecycle.
func NewLifecycle() Lifecycle {
	return Lifecycle{State: Idle{}}
}

func (l Lifecycle) state() DesignState {
	if l.State == nil {
		return Idle{}
	}
	return l.State
}

// BeginGeneration moves any state except Generating to Generating, dropping
// the current design and analysis.
func (l Lifecycle) BeginGeneration(req GenerationRequest) (Lifecycle, error) {
	if _, busy := l.state().(Generating); busy {
		return l, ErrGenerationInFlight
	}
	return Lifecycle{State: Generating{Request: req}, Epoch: l.Epoch + 1}, nil
}

// CompleteGeneration stores the design of the generation started at epoch.
func (l Lifecycle) CompleteGeneration(epoch uint64, design DesignResult) (Lifecycle, error) {
	g, ok := l.state().(Generating)
	if !ok || epoch != l.Epoch {
		return l, ErrStaleCompletion
	}
	return Lifecycle{
		State: Ready{Request: g.Request, Design: design, Analysis: AnalysisIdle{}},
		Epoch: l.Epoch,
	}, nil
}

// FailGeneration records a failed generation started at epoch.
func (l Lifecycle) FailGeneration(epoch uint64, message string) (Lifecycle, error) {
	g, ok := l.state().(Generating)
	if !ok || epoch != l.Epoch {
		return l, ErrStaleCompletion
	}
	return Lifecycle{State: GenerateFailed{Request: g.Request, Message: message}, Epoch: l.Epoch}, nil
}

// BeginAnalysis starts an analysis of the current design. Allowed from
// AnalysisIdle and, as a user retry, from AnalysisFailed.
func (l Lifecycle) BeginAnalysis() (Lifecycle, DesignResult, error) {
	r, ok := l.state().(Ready)
	if !ok {
		return l, DesignResult{}, ErrNoDesign
	}
	switch r.Analysis.(type) {
	case Analyzing:
		return l, DesignResult{}, ErrAnalysisInFlight
	case AnalysisReady:
		return l, DesignResult{}, ErrAnalysisExists
	}
	r.Analysis = Analyzing{}
	return Lifecycle{State: r, Epoch: l.Epoch}, r.Design, nil
}

// CompleteAnalysis stores the analysis of the design current at epoch.
func (l Lifecycle) CompleteAnalysis(epoch uint64, result AnalysisResult) (Lifecycle, error) {
	r, err := l.analyzing(epoch)
	if err != nil {
		return l, err
	}
	r.Analysis = AnalysisReady{Result: result}
	return Lifecycle{State: r, Epoch: l.Epoch}, nil
}

// FailAnalysis records a failed analysis; the design is kept.
func (l Lifecycle) FailAnalysis(epoch uint64, message string) (Lifecycle, error) {
	r, err := l.analyzing(epoch)
	if err != nil {
		return l, err
	}
	r.Analysis = AnalysisFailed{Message: message}
	return Lifecycle{State: r, Epoch: l.Epoch}, nil
}

func (l Lifecycle) analyzing(epoch uint64) (Ready, error) {
	r, ok := l.state().(Ready)
	if !ok || epoch != l.Epoch {
		return Ready{}, ErrStaleCompletion
	}
	if _, running := r.Analysis.(Analyzing); !running {
		return Ready{}, ErrStaleCompletion
	}
	return r, nil
}

// Reset clears design and analysis together.
func (l Lifecycle) Reset() Lifecycle {
	return Lifecycle{State: Idle{}, Epoch: l.Epoch + 1}
}

// Design returns the current design, if any.
func (l Lifecycle) Design() (DesignResult, bool) {
	if r, ok := l.state().(Ready); ok {
		return r.Design, true
	}
	return DesignResult{}, false
}

// Analysis returns the analysis of the current design, if any.
func (l Lifecycle) Analysis() (AnalysisResult, bool) {
	if r, ok := l.state().(Ready); ok {
		if a, ok := r.Analysis.(AnalysisReady); ok {
			return a.Result, true
		}
	}
	return AnalysisResult{}, false
}

// Snapshot is the flattened, serialisable view of a Lifecycle.
type Snapshot struct {
	Phase         Phase           `json:"phase"`
	AnalysisPhase AnalysisPhase   `json:"analysis_phase,omitempty"`
	Epoch         uint64          `json:"epoch"`
	Theme         Theme           `json:"theme,omitempty"`
	Prompt        string          `json:"prompt,omitempty"`
	Design        *DesignResult   `json:"design,omitempty"`
	Analysis      *AnalysisResult `json:"analysis,omitempty"`
	Error         string          `json:"error,omitempty"`
	AnalysisError string          `json:"analysis_error,omitempty"`
	Loading       bool            `json:"loading"`
	Analyzing     bool            `json:"analyzing"`
	CanGenerate   bool            `json:"can_generate"`
	CanAnalyze    bool            `json:"can_analyze"`
}

// Snapshot flattens the lifecycle for display.
func (l Lifecycle) Snapshot() Snapshot {
	s := Snapshot{Phase: l.state().Phase(), Epoch: l.Epoch, CanGenerate: true}

	switch st := l.state().(type) {
	case Generating:
		s.Theme, s.Prompt = st.Request.Theme, st.Request.Prompt
		s.Loading = true
		s.CanGenerate = false
	case GenerateFailed:
		s.Theme, s.Prompt = st.Request.Theme, st.Request.Prompt
		s.Error = st.Message
	case Ready:
		s.Theme, s.Prompt = st.Request.Theme, st.Request.Prompt
		design := st.Design
		s.Design = &design
		s.AnalysisPhase = st.Analysis.Phase()
		switch a := st.Analysis.(type) {
		case AnalysisIdle:
			s.CanAnalyze = true
		case Analyzing:
			s.Analyzing = true
		case AnalysisReady:
			result := a.Result
			s.Analysis = &result
		case AnalysisFailed:
			s.AnalysisError = a.Message
			s.CanAnalyze = true
		}
	}
	return s
}

// RestoreLifecycle rebuilds a lifecycle from a persisted snapshot. Requests
// that were in flight cannot resume, so Generating comes back as Idle and
// Analyzing as AnalysisIdle.
func RestoreLifecycle(s Snapshot) Lifecycle {
	req := GenerationRequest{Prompt: s.Prompt, Theme: s.Theme}

	switch s.Phase {
	case PhaseGenerateError:
		return Lifecycle{State: GenerateFailed{Request: req, Message: s.Error}, Epoch: s.Epoch}
	case PhaseReady:
		if s.Design == nil {
			break
		}
		ready := Ready{Request: req, Design: *s.Design, Analysis: AnalysisIdle{}}
		switch s.AnalysisPhase {
		case AnalysisPhaseReady:
			if s.Analysis != nil {
				ready.Analysis = AnalysisReady{Result: *s.Analysis}
			}
		case AnalysisPhaseError:
			ready.Analysis = AnalysisFailed{Message: s.AnalysisError}
		}
		return Lifecycle{State: ready, Epoch: s.Epoch}
	}
	return Lifecycle{State: Idle{}, Epoch: s.Epoch}
}
