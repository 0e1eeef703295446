package domain

// TurnPhase es el estado del turno en curso.
type TurnPhase string

const (
	PhaseIdle      TurnPhase = "idle"
	PhaseSending   TurnPhase = "sending"
	PhaseStreaming TurnPhase = "streaming"
	PhaseCompleted TurnPhase = "completed"
	PhaseErrored   TurnPhase = "errored"
)

// Open indica si el turno todavía no llegó a un estado terminal.
func (p TurnPhase) Open() bool {
	return p == PhaseSending || p == PhaseStreaming
}

// ConversationState es el estado auxiliar que acompaña al transcript.
// SessionID y CurrentAgent vacíos significan "ausente".
type ConversationState struct {
	SessionID           string    `json:"session_id,omitempty"`
	Loading             bool      `json:"loading"`
	Phase               TurnPhase `json:"phase"`
	Citations           []string  `json:"citations"`
	Widgets             []Widget  `json:"widgets"`
	SelectedWidgetIndex int       `json:"selected_widget_index"`
	CurrentAgent        string    `json:"current_agent,omitempty"`
}

// InitialState es el valor tras arrancar o tras "new chat".
func InitialState() ConversationState {
	return ConversationState{
		Phase:     PhaseIdle,
		Citations: []string{},
		Widgets:   []Widget{},
	}
}

// Clone devuelve una copia profunda del estado.
func (s ConversationState) Clone() ConversationState {
	out := s
	out.Citations = append([]string{}, s.Citations...)
	out.Widgets = make([]Widget, len(s.Widgets))
	for i, w := range s.Widgets {
		out.Widgets[i] = w.clone()
	}
	return out
}

// ChatRequest es el cuerpo de POST /chat/stream. SessionID nil se serializa como null.
type ChatRequest struct {
	Message       string   `json:"message"`
	UserID        string   `json:"user_id"`
	SessionID     *string  `json:"session_id"`
	PDFContextIDs []string `json:"pdf_context_ids,omitempty"`
}
