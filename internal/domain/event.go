package domain

import (
	"encoding/json"
	"fmt"
)

// EventType es el discriminador "type" de cada frame SSE del backend.
type EventType string

const (
	EventSession      EventType = "session"
	EventAgentWorking EventType = "agent_working"
	EventToolCall     EventType = "tool_call"
	EventContent      EventType = "content"
	EventCitations    EventType = "citations"
	EventWidget       EventType = "widget"
	EventDone         EventType = "done"
	EventError        EventType = "error"
)

// Event es la unión de eventos del stream. Cada tipo concreto corresponde a un tag.
type Event interface {
	Type() EventType
}

type SessionEvent struct {
	SessionID string
}

type AgentWorkingEvent struct {
	AgentName    string
	AgentDisplay string
}

type ToolCallEvent struct {
	ToolName string
}

type ContentEvent struct {
	Content      string
	AgentName    string
	AgentDisplay string
}

type CitationsEvent struct {
	Citations []string
}

type WidgetEvent struct {
	WidgetType string
	WidgetData json.RawMessage
}

type DoneEvent struct{}

type ErrorEvent struct {
	Message string
}

// UnknownEvent conserva frames con un tag que el cliente no reconoce.
type UnknownEvent struct {
	RawType string
	Raw     json.RawMessage
}

func (SessionEvent) Type() EventType      { return EventSession }
func (AgentWorkingEvent) Type() EventType { return EventAgentWorking }
func (ToolCallEvent) Type() EventType     { return EventToolCall }
func (ContentEvent) Type() EventType      { return EventContent }
func (CitationsEvent) Type() EventType    { return EventCitations }
func (WidgetEvent) Type() EventType       { return EventWidget }
func (DoneEvent) Type() EventType         { return EventDone }
func (ErrorEvent) Type() EventType        { return EventError }
func (e UnknownEvent) Type() EventType    { return EventType(e.RawType) }

type wireEvent struct {
	Type         string          `json:"type"`
	SessionID    string          `json:"session_id"`
	AgentName    string          `json:"agent_name"`
	AgentDisplay string          `json:"agent_display"`
	ToolName     string          `json:"tool_name"`
	Content      string          `json:"content"`
	Citations    []string        `json:"citations"`
	WidgetType   string          `json:"widget_type"`
	WidgetData   json.RawMessage `json:"widget_data"`
	Error        string          `json:"error"`
}

// DecodeEvent convierte el JSON de un frame "data:" en un Event.
// Solo falla si el JSON es inválido o algún campo conocido tiene otra forma.
func DecodeEvent(data []byte) (Event, error) {
	var w wireEvent
	if err := json.Unmarshal(data, &w); err != nil {
		return nil, fmt.Errorf("decode event: %w", err)
	}

	switch EventType(w.Type) {
	case EventSession:
		return SessionEvent{SessionID: w.SessionID}, nil
	case EventAgentWorking:
		return AgentWorkingEvent{AgentName: w.AgentName, AgentDisplay: w.AgentDisplay}, nil
	case EventToolCall:
		return ToolCallEvent{ToolName: w.ToolName}, nil
	case EventContent:
		return ContentEvent{Content: w.Content, AgentName: w.AgentName, AgentDisplay: w.AgentDisplay}, nil
	case EventCitations:
		return CitationsEvent{Citations: w.Citations}, nil
	case EventWidget:
		return WidgetEvent{WidgetType: w.WidgetType, WidgetData: w.WidgetData}, nil
	case EventDone:
		return DoneEvent{}, nil
	case EventError:
		return ErrorEvent{Message: w.Error}, nil
	default:
		return UnknownEvent{RawType: w.Type, Raw: append(json.RawMessage(nil), data...)}, nil
	}
}
