package service

import (
	"encoding/json"
	"reflect"
	"testing"
	"time"

	"bloom-client/internal/domain"
)

var fixedNow = time.Date(2025, 3, 14, 9, 30, 0, 0, time.UTC)

func newTestReducer() *StreamReducer {
	n := 0
	return NewStreamReducerWith(func() string {
		n++
		return "w" + string(rune('0'+n))
	}, func() time.Time { return fixedNow })
}

func applyAll(r *StreamReducer, events ...domain.Event) (domain.Transcript, domain.ConversationState) {
	tr := domain.Transcript{}
	st := domain.InitialState()
	for _, ev := range events {
		tr, st = r.Apply(tr, st, ev)
	}
	return tr, st
}

func TestStreamReducer_ContentOnEmptyTranscript(t *testing.T) {
	tr, _ := applyAll(newTestReducer(), domain.ContentEvent{Content: "Hi"})
	if len(tr) != 1 {
		t.Fatalf("expected 1 message, got %d", len(tr))
	}
	if tr[0].Role != domain.RoleAssistant || tr[0].Content != "Hi" || tr[0].AgentName != "" {
		t.Fatalf("unexpected message %+v", tr[0])
	}
}

func TestStreamReducer_SameAgentContentConcatenates(t *testing.T) {
	tr, st := applyAll(newTestReducer(),
		domain.ContentEvent{Content: "A", AgentName: "farm"},
		domain.ContentEvent{Content: "B", AgentName: "farm"},
	)
	if len(tr) != 1 {
		t.Fatalf("expected 1 message, got %d: %+v", len(tr), tr)
	}
	if tr[0].Content != "AB" || tr[0].AgentName != "farm" {
		t.Fatalf("unexpected message %+v", tr[0])
	}
	if st.CurrentAgent != "farm" {
		t.Fatalf("expected current agent farm, got %q", st.CurrentAgent)
	}
}

func TestStreamReducer_AgentBoundaryStartsNewMessage(t *testing.T) {
	tr, st := applyAll(newTestReducer(),
		domain.ContentEvent{Content: "A", AgentName: "farm"},
		domain.ContentEvent{Content: "B", AgentName: "market"},
	)
	if len(tr) != 2 {
		t.Fatalf("expected 2 messages, got %d", len(tr))
	}
	if tr[0].Content != "A" || tr[0].AgentName != "farm" {
		t.Fatalf("first message mutated: %+v", tr[0])
	}
	if tr[1].Content != "B" || tr[1].AgentName != "market" {
		t.Fatalf("unexpected second message %+v", tr[1])
	}
	if st.CurrentAgent != "market" {
		t.Fatalf("expected current agent market, got %q", st.CurrentAgent)
	}
}

func TestStreamReducer_PrimaryToSubAgentBoundary(t *testing.T) {
	tr, st := applyAll(newTestReducer(),
		domain.ContentEvent{Content: "primary"},
		domain.ContentEvent{Content: "sub", AgentName: "planner"},
		domain.ContentEvent{Content: "primary again"},
	)
	if len(tr) != 3 {
		t.Fatalf("expected 3 messages, got %d", len(tr))
	}
	if tr[2].AgentName != "" || tr[2].Content != "primary again" {
		t.Fatalf("unexpected third message %+v", tr[2])
	}
	if st.CurrentAgent != "planner" {
		t.Fatalf("content without agent must not clear current agent, got %q", st.CurrentAgent)
	}
}

func TestStreamReducer_ToolCallWithoutAgent(t *testing.T) {
	tr, _ := applyAll(newTestReducer(),
		domain.ContentEvent{Content: "A"},
		domain.ToolCallEvent{ToolName: "search"},
		domain.ContentEvent{Content: "B"},
	)
	want := domain.Transcript{
		{Role: domain.RoleAssistant, Content: "A"},
		{Role: domain.RoleToolIndicator, ToolName: "search", ToolStatus: domain.ToolStatusInProgress},
		{Role: domain.RoleAssistant, Content: "B"},
	}
	if !reflect.DeepEqual(tr, want) {
		t.Fatalf("expected %+v, got %+v", want, tr)
	}
}

func TestStreamReducer_ToolCallKeepsSubAgentAttribution(t *testing.T) {
	tr, _ := applyAll(newTestReducer(),
		domain.AgentWorkingEvent{AgentName: "market", AgentDisplay: "Market Analyst"},
		domain.ContentEvent{Content: "Checking prices", AgentName: "market"},
		domain.ToolCallEvent{ToolName: "get_market_prices"},
		domain.ContentEvent{Content: "Maize is up", AgentName: "market"},
	)
	if len(tr) != 4 {
		t.Fatalf("expected 4 messages, got %d: %+v", len(tr), tr)
	}
	if tr[0].Role != domain.RoleAgentWorking || tr[0].AgentDisplay != "Market Analyst" {
		t.Fatalf("unexpected agent indicator %+v", tr[0])
	}
	if tr[1].Content != "Checking prices" || tr[1].AgentName != "market" {
		t.Fatalf("unexpected pre-tool message %+v", tr[1])
	}
	if tr[2].Role != domain.RoleToolIndicator || tr[2].ToolName != "get_market_prices" {
		t.Fatalf("unexpected tool indicator %+v", tr[2])
	}
	if tr[3].Role != domain.RoleAssistant || tr[3].AgentName != "market" || tr[3].AgentDisplay != "Market Analyst" || tr[3].Content != "Maize is up" {
		t.Fatalf("post-tool message lost agent attribution: %+v", tr[3])
	}
}

func TestStreamReducer_AgentWorkingOpensSlot(t *testing.T) {
	tr, _ := applyAll(newTestReducer(),
		domain.ContentEvent{Content: "Let me ask the farm monitor."},
		domain.AgentWorkingEvent{AgentName: "farm", AgentDisplay: "Farm Monitor"},
	)
	if len(tr) != 3 {
		t.Fatalf("expected 3 messages, got %d", len(tr))
	}
	if tr[1].Role != domain.RoleAgentWorking || tr[1].AgentName != "farm" {
		t.Fatalf("unexpected indicator %+v", tr[1])
	}
	if tr[2].Role != domain.RoleAssistant || tr[2].Content != "" || tr[2].AgentName != "farm" {
		t.Fatalf("expected empty farm assistant slot, got %+v", tr[2])
	}
}

func TestStreamReducer_Citations(t *testing.T) {
	t.Run("attach to nearest assistant", func(t *testing.T) {
		tr, st := applyAll(newTestReducer(),
			domain.ContentEvent{Content: "A"},
			domain.ToolCallEvent{ToolName: "search"},
			domain.CitationsEvent{Citations: []string{"https://fao.org"}},
		)
		if len(tr) != 3 {
			t.Fatalf("citations must not create messages, got %d", len(tr))
		}
		if len(tr[2].Citations) != 1 || tr[2].Citations[0] != "https://fao.org" {
			t.Fatalf("expected citations on trailing assistant, got %+v", tr[2])
		}
		if len(tr[0].Citations) != 0 {
			t.Fatalf("older assistant should not get citations")
		}
		if len(st.Citations) != 1 {
			t.Fatalf("expected accumulated citations, got %+v", st.Citations)
		}
	})

	t.Run("no assistant is a no-op", func(t *testing.T) {
		tr := domain.Transcript{{Role: domain.RoleUser, Content: "hola"}}
		out, _ := newTestReducer().Apply(tr, domain.InitialState(), domain.CitationsEvent{Citations: []string{"https://a.org"}})
		if !reflect.DeepEqual(out, tr) {
			t.Fatalf("expected unchanged transcript, got %+v", out)
		}
	})

	t.Run("skips non assistant entries", func(t *testing.T) {
		tr := domain.Transcript{
			{Role: domain.RoleAssistant, Content: "A"},
			{Role: domain.RoleToolIndicator, ToolName: "x"},
		}
		out, _ := newTestReducer().Apply(tr, domain.InitialState(), domain.CitationsEvent{Citations: []string{"https://a.org"}})
		if len(out[0].Citations) != 1 || len(out[1].Citations) != 0 {
			t.Fatalf("unexpected citation placement %+v", out)
		}
	})
}

func TestStreamReducer_Widget(t *testing.T) {
	_, st := applyAll(newTestReducer(),
		domain.WidgetEvent{WidgetType: domain.WidgetWeatherToday, WidgetData: json.RawMessage(`{"temp":24}`)},
		domain.WidgetEvent{WidgetType: domain.WidgetPriceChart, WidgetData: json.RawMessage(`{"crop":"maize"}`)},
	)
	if len(st.Widgets) != 2 {
		t.Fatalf("expected 2 widgets, got %d", len(st.Widgets))
	}
	if st.SelectedWidgetIndex != 1 {
		t.Fatalf("expected newest widget selected, got %d", st.SelectedWidgetIndex)
	}
	w := st.Widgets[1]
	if w.ID != "w2" || w.Kind != domain.WidgetPriceChart || !w.Timestamp.Equal(fixedNow) {
		t.Fatalf("unexpected widget %+v", w)
	}
	if string(w.Payload) != `{"crop":"maize"}` {
		t.Fatalf("unexpected payload %s", w.Payload)
	}
	if st.Widgets[0].ID == st.Widgets[1].ID {
		t.Fatalf("widget ids must be unique")
	}
}

func TestStreamReducer_SessionDoneError(t *testing.T) {
	r := newTestReducer()
	st := domain.InitialState()
	st.Loading = true
	st.Phase = domain.PhaseStreaming

	_, st = r.Apply(nil, st, domain.SessionEvent{SessionID: "s-1"})
	if st.SessionID != "s-1" || !st.Loading {
		t.Fatalf("unexpected state after session %+v", st)
	}
	_, st = r.Apply(nil, st, domain.DoneEvent{})
	if st.Loading || st.Phase != domain.PhaseCompleted {
		t.Fatalf("unexpected state after done %+v", st)
	}
}

func TestStreamReducer_ErrorOverwritesLastMessage(t *testing.T) {
	tr, st := applyAll(newTestReducer(),
		domain.ContentEvent{Content: "A"},
		domain.ErrorEvent{Message: "x"},
	)
	want := domain.Transcript{{Role: domain.RoleAssistant, Content: ErrorApology}}
	if !reflect.DeepEqual(tr, want) {
		t.Fatalf("expected %+v, got %+v", want, tr)
	}
	if st.Loading || st.Phase != domain.PhaseErrored {
		t.Fatalf("unexpected state %+v", st)
	}
}

func TestStreamReducer_ErrorOverwritesRegardlessOfRole(t *testing.T) {
	tr := domain.Transcript{
		{Role: domain.RoleUser, Content: "hola"},
		{Role: domain.RoleToolIndicator, ToolName: "search"},
	}
	out, _ := newTestReducer().Apply(tr, domain.InitialState(), domain.ErrorEvent{Message: "x"})
	if len(out) != 2 {
		t.Fatalf("error must not append, got %d messages", len(out))
	}
	if out[1].Content != ErrorApology || out[1].Role != domain.RoleToolIndicator {
		t.Fatalf("unexpected overwrite %+v", out[1])
	}

	empty, st := newTestReducer().Apply(domain.Transcript{}, domain.InitialState(), domain.ErrorEvent{})
	if len(empty) != 0 || st.Phase != domain.PhaseErrored {
		t.Fatalf("error on empty transcript should only end the turn, got %+v / %+v", empty, st)
	}
}

func TestStreamReducer_UnknownEventIgnored(t *testing.T) {
	tr := domain.Transcript{{Role: domain.RoleAssistant, Content: "A"}}
	st := domain.InitialState()
	out, next := newTestReducer().Apply(tr, st, domain.UnknownEvent{RawType: "heartbeat"})
	if !reflect.DeepEqual(out, tr) || !reflect.DeepEqual(next, st) {
		t.Fatalf("unknown event changed state")
	}
}

func TestStreamReducer_DoesNotMutateInputs(t *testing.T) {
	tr := domain.Transcript{{Role: domain.RoleAssistant, Content: "A", Citations: []string{"https://a.org"}}}
	st := domain.InitialState()
	st.Citations = []string{"https://a.org"}

	r := newTestReducer()
	r.Apply(tr, st, domain.ContentEvent{Content: "B"})
	r.Apply(tr, st, domain.CitationsEvent{Citations: []string{"https://b.org"}})
	r.Apply(tr, st, domain.ErrorEvent{})
	r.Apply(tr, st, domain.WidgetEvent{WidgetType: domain.WidgetFarmMap})

	if tr[0].Content != "A" || tr[0].Citations[0] != "https://a.org" {
		t.Fatalf("transcript input mutated: %+v", tr[0])
	}
	if len(st.Citations) != 1 || len(st.Widgets) != 0 {
		t.Fatalf("state input mutated: %+v", st)
	}
}

func TestStreamReducer_Deterministic(t *testing.T) {
	events := []domain.Event{
		domain.SessionEvent{SessionID: "s1"},
		domain.ContentEvent{Content: "Hola "},
		domain.AgentWorkingEvent{AgentName: "farm", AgentDisplay: "Farm Monitor"},
		domain.ContentEvent{Content: "NDVI ", AgentName: "farm"},
		domain.ToolCallEvent{ToolName: "earth_engine"},
		domain.WidgetEvent{WidgetType: domain.WidgetNDVIChart, WidgetData: json.RawMessage(`[0.4,0.5]`)},
		domain.ContentEvent{Content: "looks healthy", AgentName: "farm"},
		domain.CitationsEvent{Citations: []string{"https://earthengine.google.com"}},
		domain.DoneEvent{},
	}
	tr1, st1 := applyAll(newTestReducer(), events...)
	tr2, st2 := applyAll(newTestReducer(), events...)
	if !reflect.DeepEqual(tr1, tr2) || !reflect.DeepEqual(st1, st2) {
		t.Fatalf("reducer is not deterministic")
	}
	if len(tr1) != 5 {
		t.Fatalf("expected 5 messages, got %d: %+v", len(tr1), tr1)
	}
	if tr1[4].Content != "looks healthy" || tr1[4].AgentName != "farm" || len(tr1[4].Citations) != 1 {
		t.Fatalf("unexpected trailing message %+v", tr1[4])
	}
}
