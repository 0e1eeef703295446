package main

import (
	"fmt"
	"io"
	"strings"

	"bloom-client/internal/domain"
	"bloom-client/internal/service"
)

// renderer imprime solo lo nuevo de cada snapshot: deltas de texto,
// indicadores de herramienta/agente, citas y widgets.
type renderer struct {
	out       io.Writer
	printed   []string
	started   []bool
	citations int
	widgets   int
	phase     domain.TurnPhase
}

func newRenderer(out io.Writer) *renderer {
	return &renderer{out: out, phase: domain.PhaseIdle}
}

func (r *renderer) render(s service.Snapshot) {
	if len(s.Transcript) < len(r.printed) {
		r.printed = nil
		r.started = nil
		fmt.Fprintln(r.out, "\n--- Nueva conversación ---")
	}
	for i, m := range s.Transcript {
		if i >= len(r.printed) {
			r.printed = append(r.printed, "")
			r.started = append(r.started, false)
		}
		r.renderMessage(i, m)
	}

	if len(s.State.Citations) < r.citations {
		r.citations = 0
	}
	for _, c := range s.State.Citations[r.citations:] {
		fmt.Fprintf(r.out, "\n  📎 %s (%s)", domain.CitationDomain(c), c)
	}
	r.citations = len(s.State.Citations)

	if len(s.State.Widgets) < r.widgets {
		r.widgets = 0
	}
	for _, w := range s.State.Widgets[r.widgets:] {
		fmt.Fprintf(r.out, "\n  %s disponible (/widgets)", w.Label())
	}
	r.widgets = len(s.State.Widgets)

	if r.phase.Open() && !s.State.Phase.Open() {
		fmt.Fprintln(r.out)
	}
	r.phase = s.State.Phase
}

func (r *renderer) renderMessage(i int, m domain.Message) {
	if !r.started[i] {
		switch m.Role {
		case domain.RoleUser:
			// El usuario ya lo tiene en pantalla.
			r.started[i] = true
			r.printed[i] = m.Content
			return
		case domain.RoleAgentWorking:
			fmt.Fprintf(r.out, "\n⏳ %s is working...", agentLabel(m))
		case domain.RoleToolIndicator:
			fmt.Fprintf(r.out, "\n%s %s", domain.ToolIcon(m.ToolName), m.ToolName)
		case domain.RoleAssistant:
			if m.Content == "" {
				return
			}
			fmt.Fprintf(r.out, "\n%s: ", agentLabel(m))
		}
		r.started[i] = true
	}

	if m.Content == r.printed[i] {
		return
	}
	if strings.HasPrefix(m.Content, r.printed[i]) {
		fmt.Fprint(r.out, m.Content[len(r.printed[i]):])
	} else {
		// Contenido reemplazado (p. ej. disculpa por error).
		fmt.Fprintf(r.out, "\n%s", m.Content)
	}
	r.printed[i] = m.Content
}

func agentLabel(m domain.Message) string {
	switch {
	case m.AgentDisplay != "":
		return m.AgentDisplay
	case m.AgentName != "":
		return m.AgentName
	default:
		return "Bloom"
	}
}

func printWidgets(out io.Writer, state domain.ConversationState) {
	if len(state.Widgets) == 0 {
		fmt.Fprintln(out, "No hay widgets todavía.")
		return
	}
	for i, w := range state.Widgets {
		marker := " "
		if i == state.SelectedWidgetIndex {
			marker = "*"
		}
		note := ""
		if !domain.KnownWidgetKind(w.Kind) {
			note = " (sin vista: " + w.Kind + ")"
		}
		fmt.Fprintf(out, "%s [%d] %s%s\n", marker, i+1, w.Label(), note)
	}
}
