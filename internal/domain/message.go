package domain

// Role identifica el tipo de entrada del transcript.
type Role string

const (
	RoleUser          Role = "user"
	RoleAssistant     Role = "assistant"
	RoleToolIndicator Role = "tool-indicator"
	RoleAgentWorking  Role = "agent-working"
)

// ToolStatus solo aplica a mensajes RoleToolIndicator.
type ToolStatus string

const (
	ToolStatusInProgress ToolStatus = "in-progress"
	ToolStatusDone       ToolStatus = "done"
)

type Attachment struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	Kind string `json:"type"`
}

// Message es una entrada del transcript. AgentName vacío significa agente principal.
type Message struct {
	Role         Role         `json:"role"`
	Content      string       `json:"content"`
	ToolName     string       `json:"tool_name,omitempty"`
	ToolStatus   ToolStatus   `json:"tool_status,omitempty"`
	AgentName    string       `json:"agent_name,omitempty"`
	AgentDisplay string       `json:"agent_display,omitempty"`
	Attachments  []Attachment `json:"attachments,omitempty"`
	Citations    []string     `json:"citations,omitempty"`
}

// Transcript es la conversación visible, en orden.
type Transcript []Message

// Clone devuelve una copia que no comparte slices con el original.
func (t Transcript) Clone() Transcript {
	if t == nil {
		return nil
	}
	out := make(Transcript, len(t))
	for i, m := range t {
		out[i] = m.clone()
	}
	return out
}

// LastAssistantIndex busca hacia atrás el último mensaje del asistente; -1 si no hay.
func (t Transcript) LastAssistantIndex() int {
	for i := len(t) - 1; i >= 0; i-- {
		if t[i].Role == RoleAssistant {
			return i
		}
	}
	return -1
}

func (m Message) clone() Message {
	if m.Attachments != nil {
		m.Attachments = append([]Attachment(nil), m.Attachments...)
	}
	if m.Citations != nil {
		m.Citations = append([]string(nil), m.Citations...)
	}
	return m
}
