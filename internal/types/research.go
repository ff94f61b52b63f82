package types

import (
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
)

// Status is the lifecycle state of a research request.
type Status string

// Status values. Terminal states are completed and failed.
const (
	StatusPending    Status = "pending"
	StatusInProgress Status = "in-progress"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
)

// transitions lists every permitted edge of the request state machine.
// No edge leads back to pending.
var transitions = map[Status][]Status{
	StatusPending:    {StatusInProgress},
	StatusInProgress: {StatusInProgress, StatusCompleted, StatusFailed},
}

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusInProgress, StatusCompleted, StatusFailed:
		return true
	}
	return false
}

// IsTerminal reports whether no further transition can leave s.
func (s Status) IsTerminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// CanTransition reports whether the state machine allows moving from one status to another.
func CanTransition(from, to Status) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// Timeframe is the forecast horizon of a request.
type Timeframe string

// Timeframe values.
const (
	TimeframeCurrent    Timeframe = "current"
	TimeframeShortTerm  Timeframe = "short-term"
	TimeframeMediumTerm Timeframe = "medium-term"
	TimeframeLongTerm   Timeframe = "long-term"
)

// Depth is the level of detail a request asks for.
type Depth string

// Depth values.
const (
	DepthOverview      Depth = "overview"
	DepthStandard      Depth = "standard"
	DepthComprehensive Depth = "comprehensive"
	DepthExpert        Depth = "expert"
)

// ResearchRequest is the persisted entity driven through the report pipeline.
type ResearchRequest struct {
	ID             uuid.UUID `json:"id"`
	Owner          uuid.UUID `json:"owner"`
	Topic          string    `json:"topic"`
	Industry       string    `json:"industry"`
	FocusAreas     []string  `json:"focusAreas"`
	Timeframe      Timeframe `json:"timeframe"`
	Depth          Depth     `json:"depth"`
	Visualizations bool      `json:"visualizations"`
	Competitors    []string  `json:"competitors"`
	Notes          string    `json:"notes,omitempty"`
	Status         Status    `json:"status"`
	Progress       int       `json:"progress"`
	Results        *Results  `json:"results,omitempty"`
	ArtifactURL    string    `json:"artifactUrl,omitempty"`
	CreatedAt      time.Time `json:"createdAt"`
	UpdatedAt      time.Time `json:"updatedAt"`
}

// Clone returns a deep copy of the request.
func (r *ResearchRequest) Clone() *ResearchRequest {
	if r == nil {
		return nil
	}
	out := *r
	out.FocusAreas = cloneStrings(r.FocusAreas)
	out.Competitors = cloneStrings(r.Competitors)
	out.Results = r.Results.Clone()
	return &out
}

// WithoutResults returns a copy of the request with the results payload dropped,
// used for listings.
func (r *ResearchRequest) WithoutResults() *ResearchRequest {
	out := r.Clone()
	if out != nil {
		out.Results = nil
	}
	return out
}

// CheckInvariants verifies the structural invariants every stored request must satisfy.
func (r *ResearchRequest) CheckInvariants() error {
	if !r.Status.Valid() {
		return &InvariantError{Field: "status", Message: "unknown status " + string(r.Status)}
	}
	if r.Progress < 0 || r.Progress > 100 {
		return &InvariantError{Field: "progress", Message: "must be within [0,100]"}
	}
	if (r.Results != nil) != (r.Status == StatusCompleted) {
		return &InvariantError{Field: "results", Message: "results must be present exactly when status is completed"}
	}
	if r.ArtifactURL != "" && r.Status != StatusCompleted {
		return &InvariantError{Field: "artifactUrl", Message: "artifact can only be attached to a completed request"}
	}
	return nil
}

// InvariantError reports a request state that violates the entity rules.
type InvariantError struct {
	Field   string
	Message string
}

func (e *InvariantError) Error() string {
	return "invariant violated: " + e.Field + ": " + e.Message
}

// Plan is the output of the plan stage.
type Plan struct {
	Sections   []string `json:"sections"`
	DataPoints []string `json:"dataPoints"`
	Sources    []string `json:"sources"`
}

// MarketSize is a yearly market-size series.
type MarketSize struct {
	Years  []int     `json:"years"`
	Values []float64 `json:"values"`
	CAGR   float64   `json:"cagr"`
}

// Share is a named percentage share (competitor or region).
type Share struct {
	Name  string  `json:"name"`
	Share float64 `json:"share"`
}

// Trend is a named numeric series aligned with MarketSize.Years.
type Trend struct {
	Name string    `json:"name"`
	Data []float64 `json:"data"`
}

// NewsItem is a dated industry headline.
type NewsItem struct {
	Title     string `json:"title"`
	Source    string `json:"source"`
	Date      string `json:"date"`
	Sentiment string `json:"sentiment"`
}

// MarketData is the output of the collect stage.
type MarketData struct {
	MarketSize  MarketSize `json:"marketSize"`
	Competitors []Share    `json:"competitors"`
	Regions     []Share    `json:"regions"`
	Trends      []Trend    `json:"trends"`
	News        []NewsItem `json:"news"`
}

// Section is a titled block of report prose.
type Section struct {
	Title   string `json:"title"`
	Content string `json:"content"`
}

// Analysis is the output of the analyze stage.
type Analysis struct {
	Summary     string    `json:"summary"`
	Sections    []Section `json:"sections"`
	KeyInsights []string  `json:"keyInsights"`
}

// Visualizations is the chartable subset of MarketData.
type Visualizations struct {
	MarketSize  MarketSize `json:"marketSize"`
	Competitors []Share    `json:"competitors"`
	Trends      []Trend    `json:"trends"`
}

// Draft is the prose part of the compile stage output.
type Draft struct {
	Summary  string    `json:"summary"`
	Sections []Section `json:"sections"`
}

// Results is the final report payload stored on a completed request.
type Results struct {
	Summary        string         `json:"summary"`
	Sections       []Section      `json:"sections"`
	Visualizations Visualizations `json:"visualizations"`
}

// Clone returns a deep copy of the results.
func (r *Results) Clone() *Results {
	if r == nil {
		return nil
	}
	out := *r
	out.Sections = cloneSlice(r.Sections)
	out.Visualizations = r.Visualizations.Clone()
	return &out
}

// Clone returns a deep copy of the visualizations.
func (v Visualizations) Clone() Visualizations {
	out := v
	out.MarketSize.Years = cloneSlice(v.MarketSize.Years)
	out.MarketSize.Values = cloneSlice(v.MarketSize.Values)
	out.Competitors = cloneSlice(v.Competitors)
	if v.Trends != nil {
		out.Trends = make([]Trend, len(v.Trends))
		for i, t := range v.Trends {
			out.Trends[i] = Trend{Name: t.Name, Data: cloneSlice(t.Data)}
		}
	}
	return out
}

// CreateResearchRequest is the intake payload for a new research request.
type CreateResearchRequest struct {
	Topic          string    `json:"topic" validate:"required,max=200"`
	Industry       string    `json:"industry" validate:"required,max=100"`
	FocusAreas     []string  `json:"focusAreas" validate:"max=20,dive,required,max=100"`
	Timeframe      Timeframe `json:"timeframe" validate:"omitempty,oneof=current short-term medium-term long-term"`
	Depth          Depth     `json:"depth" validate:"omitempty,oneof=overview standard comprehensive expert"`
	Visualizations *bool     `json:"visualizations,omitempty"`
	Competitors    []string  `json:"competitors" validate:"max=20,dive,required,max=100"`
	Notes          string    `json:"notes,omitempty" validate:"max=2000"`
}

// Validate trims text fields and validates the request using the validator.
func (r *CreateResearchRequest) Validate() error {
	r.Topic = strings.TrimSpace(r.Topic)
	r.Industry = strings.TrimSpace(r.Industry)
	r.Notes = strings.TrimSpace(r.Notes)
	validate := validator.New()
	return validate.Struct(r)
}

// NewRequest builds a pending request owned by owner, applying defaults for
// timeframe, depth and visualizations.
func (r *CreateResearchRequest) NewRequest(owner uuid.UUID, now time.Time) *ResearchRequest {
	req := &ResearchRequest{
		ID:             uuid.New(),
		Owner:          owner,
		Topic:          r.Topic,
		Industry:       r.Industry,
		FocusAreas:     nonNil(cloneStrings(r.FocusAreas)),
		Timeframe:      r.Timeframe,
		Depth:          r.Depth,
		Visualizations: true,
		Competitors:    nonNil(cloneStrings(r.Competitors)),
		Notes:          r.Notes,
		Status:         StatusPending,
		Progress:       0,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if req.Timeframe == "" {
		req.Timeframe = TimeframeCurrent
	}
	if req.Depth == "" {
		req.Depth = DepthComprehensive
	}
	if r.Visualizations != nil {
		req.Visualizations = *r.Visualizations
	}
	return req
}

// UpdateResearchRequest is a partial edit of a pending request's parameters.
type UpdateResearchRequest struct {
	Topic          *string    `json:"topic,omitempty" validate:"omitempty,min=1,max=200"`
	Industry       *string    `json:"industry,omitempty" validate:"omitempty,min=1,max=100"`
	FocusAreas     *[]string  `json:"focusAreas,omitempty" validate:"omitempty,max=20,dive,required,max=100"`
	Timeframe      *Timeframe `json:"timeframe,omitempty" validate:"omitempty,oneof=current short-term medium-term long-term"`
	Depth          *Depth     `json:"depth,omitempty" validate:"omitempty,oneof=overview standard comprehensive expert"`
	Visualizations *bool      `json:"visualizations,omitempty"`
	Competitors    *[]string  `json:"competitors,omitempty" validate:"omitempty,max=20,dive,required,max=100"`
	Notes          *string    `json:"notes,omitempty" validate:"omitempty,max=2000"`
}

// Validate validates the UpdateResearchRequest using the validator.
func (r *UpdateResearchRequest) Validate() error {
	if r.Topic != nil {
		trimmed := strings.TrimSpace(*r.Topic)
		r.Topic = &trimmed
	}
	if r.Industry != nil {
		trimmed := strings.TrimSpace(*r.Industry)
		r.Industry = &trimmed
	}
	validate := validator.New()
	return validate.Struct(r)
}

// Empty reports whether the update changes nothing.
func (r *UpdateResearchRequest) Empty() bool {
	return r.Topic == nil && r.Industry == nil && r.FocusAreas == nil && r.Timeframe == nil &&
		r.Depth == nil && r.Visualizations == nil && r.Competitors == nil && r.Notes == nil
}

func cloneStrings(in []string) []string {
	return cloneSlice(in)
}

// cloneSlice copies in, keeping nil and empty distinct.
func cloneSlice[T any](in []T) []T {
	if in == nil {
		return nil
	}
	return append(make([]T, 0, len(in)), in...)
}

func nonNil(in []string) []string {
	if in == nil {
		return []string{}
	}
	return in
}
