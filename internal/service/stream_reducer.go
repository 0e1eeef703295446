package service

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"bloom-client/internal/domain"
)

// ErrorApology reemplaza el contenido del último mensaje cuando el backend reporta un error.
const ErrorApology = "Sorry, I encountered an error. Please try again."

// StreamReducer pliega un evento del stream sobre (transcript, estado).
// Apply no muta sus entradas ni guarda estado propio; ids y timestamps de
// widgets salen de los generadores inyectados.
type StreamReducer struct {
	newID func() string
	now   func() time.Time
}

func NewStreamReducer() *StreamReducer {
	return NewStreamReducerWith(uuid.NewString, time.Now)
}

// NewStreamReducerWith permite fijar los generadores (tests, replays deterministas).
func NewStreamReducerWith(newID func() string, now func() time.Time) *StreamReducer {
	if newID == nil {
		newID = uuid.NewString
	}
	if now == nil {
		now = time.Now
	}
	return &StreamReducer{newID: newID, now: now}
}

func (r *StreamReducer) Apply(transcript domain.Transcript, state domain.ConversationState, ev domain.Event) (domain.Transcript, domain.ConversationState) {
	out := transcript.Clone()
	next := state.Clone()

	switch e := ev.(type) {
	case domain.SessionEvent:
		next.SessionID = e.SessionID

	case domain.AgentWorkingEvent:
		out = append(out,
			domain.Message{Role: domain.RoleAgentWorking, AgentName: e.AgentName, AgentDisplay: e.AgentDisplay},
			domain.Message{Role: domain.RoleAssistant, AgentName: e.AgentName, AgentDisplay: e.AgentDisplay},
		)

	case domain.ToolCallEvent:
		// El mensaje posterior a la herramienta hereda el agente del último mensaje del asistente.
		var agentName, agentDisplay string
		if i := out.LastAssistantIndex(); i >= 0 {
			agentName, agentDisplay = out[i].AgentName, out[i].AgentDisplay
		}
		out = append(out,
			domain.Message{Role: domain.RoleToolIndicator, ToolName: e.ToolName, ToolStatus: domain.ToolStatusInProgress},
			domain.Message{Role: domain.RoleAssistant, AgentName: agentName, AgentDisplay: agentDisplay},
		)

	case domain.ContentEvent:
		if n := len(out); n > 0 && out[n-1].Role == domain.RoleAssistant && out[n-1].AgentName == e.AgentName {
			out[n-1].Content += e.Content
			if e.AgentDisplay != "" {
				out[n-1].AgentDisplay = e.AgentDisplay
			}
		} else {
			out = append(out, domain.Message{
				Role:         domain.RoleAssistant,
				Content:      e.Content,
				AgentName:    e.AgentName,
				AgentDisplay: e.AgentDisplay,
			})
		}
		if e.AgentName != "" {
			next.CurrentAgent = e.AgentName
		}

	case domain.CitationsEvent:
		if i := out.LastAssistantIndex(); i >= 0 {
			out[i].Citations = append([]string{}, e.Citations...)
		}
		next.Citations = append(next.Citations, e.Citations...)

	case domain.WidgetEvent:
		next.Widgets = append(next.Widgets, domain.Widget{
			ID:        r.newID(),
			Kind:      e.WidgetType,
			Payload:   append(json.RawMessage(nil), e.WidgetData...),
			Timestamp: r.now(),
		})
		next.SelectedWidgetIndex = len(next.Widgets) - 1

	case domain.DoneEvent:
		next.Loading = false
		next.Phase = domain.PhaseCompleted

	case domain.ErrorEvent:
		if n := len(out); n > 0 {
			out[n-1].Content = ErrorApology
		}
		next.Loading = false
		next.Phase = domain.PhaseErrored
	}

	return out, next
}
