package service

import (
	"context"
	"errors"
	"io"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"bloom-client/internal/backend"
	"bloom-client/internal/domain"
	"bloom-client/internal/sse"
)

// ConnectionApology es el único mensaje que ve el usuario cuando el backend no responde.
const ConnectionApology = "Sorry, I'm having trouble connecting. Please make sure the backend server is running."

var (
	ErrControllerNotConfigured = errors.New("conversation controller not configured")
	ErrEmptyMessage            = errors.New("empty message")
	ErrTurnInProgress          = errors.New("turn already in progress")
	ErrWidgetIndexOutOfRange   = errors.New("widget index out of range")
)

// Snapshot es la vista que se publica a la capa de presentación.
type Snapshot struct {
	Version    uint64                   `json:"version"`
	Transcript domain.Transcript        `json:"messages"`
	State      domain.ConversationState `json:"state"`
}

// Observer recibe cada snapshot en orden de versión, sin locks del
// controlador tomados. El snapshot se comparte entre observers y no debe
// modificarse. El callback no debe bloquear: un SendTurn desde ahí espera a
// que termine el turno.
type Observer func(Snapshot)

// turnToken identifica el turno vigente. Un loop de lectura cuyo token ya no es
// el vigente deja de aplicar eventos y de publicar.
type turnToken struct {
	cancel context.CancelFunc
}

// ConversationController es dueño del transcript y del estado auxiliar, y
// maneja un intercambio POST+SSE por turno.
type ConversationController struct {
	logger       *zap.Logger
	backend      backend.Client
	reducer      *StreamReducer
	userID       string
	clearTimeout time.Duration

	mu         sync.Mutex
	transcript domain.Transcript
	state      domain.ConversationState
	version    uint64
	turn       *turnToken

	// pending es la cola de snapshots por entregar; la vacía una sola
	// goroutine a la vez (publishing), fuera de mu.
	pending    []Snapshot
	publishing bool

	obsMu     sync.RWMutex
	observers map[uint64]Observer
	nextObsID uint64

	bg sync.WaitGroup
}

func NewConversationController(
	logger *zap.Logger,
	client backend.Client,
	reducer *StreamReducer,
	userID string,
	clearTimeout time.Duration,
) *ConversationController {
	if logger == nil {
		logger = zap.NewNop()
	}
	if reducer == nil {
		reducer = NewStreamReducer()
	}
	if clearTimeout <= 0 {
		clearTimeout = 5 * time.Second
	}
	return &ConversationController{
		logger:       logger,
		backend:      client,
		reducer:      reducer,
		userID:       userID,
		clearTimeout: clearTimeout,
		transcript:   domain.Transcript{},
		state:        domain.InitialState(),
		observers:    make(map[uint64]Observer),
	}
}

// Subscribe registra un observer y devuelve la función para darlo de baja.
func (c *ConversationController) Subscribe(obs Observer) func() {
	c.obsMu.Lock()
	id := c.nextObsID
	c.nextObsID++
	c.observers[id] = obs
	c.obsMu.Unlock()

	return func() {
		c.obsMu.Lock()
		delete(c.observers, id)
		c.obsMu.Unlock()
	}
}

// Snapshot devuelve una copia del estado actual.
func (c *ConversationController) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snapshotLocked()
}

// SendTurn agrega el mensaje del usuario y consume el stream del backend hasta
// que termina. Bloquea durante todo el turno. Los fallos del turno quedan
// reflejados en el estado; solo se devuelve error si el turno no pudo empezar.
func (c *ConversationController) SendTurn(ctx context.Context, text string, pdfContextIDs []string, attachments []domain.Attachment) error {
	turnCtx, tok, req, err := c.beginTurn(ctx, text, pdfContextIDs, attachments)
	if err != nil {
		return err
	}
	c.runTurn(turnCtx, tok, req)
	return nil
}

// SendTurnAsync hace la parte síncrona del turno (validación y mensaje del
// usuario) y consume el stream en otra goroutine. Wait espera a que termine.
func (c *ConversationController) SendTurnAsync(ctx context.Context, text string, pdfContextIDs []string, attachments []domain.Attachment) error {
	turnCtx, tok, req, err := c.beginTurn(ctx, text, pdfContextIDs, attachments)
	if err != nil {
		return err
	}
	c.bg.Add(1)
	go func() {
		defer c.bg.Done()
		c.runTurn(turnCtx, tok, req)
	}()
	return nil
}

func (c *ConversationController) beginTurn(ctx context.Context, text string, pdfContextIDs []string, attachments []domain.Attachment) (context.Context, *turnToken, domain.ChatRequest, error) {
	if c == nil || c.backend == nil {
		return nil, nil, domain.ChatRequest{}, ErrControllerNotConfigured
	}
	if strings.TrimSpace(text) == "" {
		return nil, nil, domain.ChatRequest{}, ErrEmptyMessage
	}

	c.mu.Lock()
	if c.state.Phase.Open() {
		c.mu.Unlock()
		return nil, nil, domain.ChatRequest{}, ErrTurnInProgress
	}

	if c.turn != nil {
		// Turno anterior ya terminado pero con el cuerpo todavía abierto.
		c.turn.cancel()
	}
	turnCtx, cancel := context.WithCancel(ctx)
	tok := &turnToken{cancel: cancel}
	c.turn = tok

	userMsg := domain.Message{Role: domain.RoleUser, Content: text}
	if len(attachments) > 0 {
		userMsg.Attachments = append([]domain.Attachment(nil), attachments...)
	}
	c.transcript = append(c.transcript, userMsg)
	c.state.Loading = true
	c.state.Phase = domain.PhaseSending

	req := domain.ChatRequest{
		Message:       text,
		UserID:        c.userID,
		PDFContextIDs: append([]string(nil), pdfContextIDs...),
	}
	if c.state.SessionID != "" {
		sid := c.state.SessionID
		req.SessionID = &sid
	}
	c.publishAndUnlock()
	return turnCtx, tok, req, nil
}

func (c *ConversationController) runTurn(ctx context.Context, tok *turnToken, req domain.ChatRequest) {
	defer tok.cancel()

	body, err := c.backend.StreamChat(ctx, req)
	if err != nil {
		c.mu.Lock()
		if c.turn != tok {
			c.mu.Unlock()
			return
		}
		c.turn = nil
		c.state.Loading = false
		if callerCanceled(ctx) {
			c.logger.Info("chat stream request cancelled by caller")
			c.state.Phase = domain.PhaseCompleted
		} else {
			c.logger.Error("chat stream request failed", zap.Error(err))
			c.transcript = append(c.transcript, domain.Message{Role: domain.RoleAssistant, Content: ConnectionApology})
			c.state.Phase = domain.PhaseErrored
		}
		c.publishAndUnlock()
		return
	}
	defer body.Close()

	c.mu.Lock()
	if c.turn != tok {
		c.mu.Unlock()
		return
	}
	c.state.Phase = domain.PhaseStreaming
	c.publishAndUnlock()

	c.consume(ctx, tok, body)
}

// callerCanceled indica que el contexto del turno se canceló desde afuera
// (Ctrl-C, shutdown). Un deadline vencido sigue contando como fallo.
func callerCanceled(ctx context.Context) bool {
	return errors.Is(ctx.Err(), context.Canceled)
}

func (c *ConversationController) consume(ctx context.Context, tok *turnToken, body io.Reader) {
	reader := sse.NewReader(body)
	for {
		payload, err := reader.Next()
		if err != nil {
			if errors.Is(err, io.EOF) && reader.Pending() {
				c.logger.Warn("stream ended with an incomplete frame")
			}
			c.finishStream(ctx, tok, err)
			return
		}

		ev, err := domain.DecodeEvent(payload)
		if err != nil {
			c.logger.Warn("skipping malformed sse frame", zap.Error(err), zap.ByteString("payload", payload))
			continue
		}
		switch e := ev.(type) {
		case domain.UnknownEvent:
			c.logger.Debug("ignoring unknown event type", zap.String("type", e.RawType))
			continue
		case domain.ErrorEvent:
			c.logger.Warn("backend reported error", zap.String("error", e.Message))
		}

		if !c.apply(tok, ev) {
			c.logger.Debug("turn superseded, stopping stream")
			return
		}
	}
}

func (c *ConversationController) apply(tok *turnToken, ev domain.Event) bool {
	c.mu.Lock()
	if c.turn != tok {
		c.mu.Unlock()
		return false
	}
	c.transcript, c.state = c.reducer.Apply(c.transcript, c.state, ev)
	c.publishAndUnlock()
	return true
}

// finishStream cierra el turno al terminar la lectura. Un corte abrupto antes de
// "done"/"error" se trata como un error del backend, salvo que lo haya
// provocado la cancelación del contexto del llamador.
func (c *ConversationController) finishStream(ctx context.Context, tok *turnToken, readErr error) {
	c.mu.Lock()
	if c.turn != tok {
		c.mu.Unlock()
		return
	}
	c.turn = nil

	switch {
	case !c.state.Phase.Open():
		c.state.Loading = false
	case errors.Is(readErr, io.EOF):
		c.state.Loading = false
		c.state.Phase = domain.PhaseCompleted
	case callerCanceled(ctx):
		c.logger.Info("chat stream cancelled by caller")
		c.state.Loading = false
		c.state.Phase = domain.PhaseCompleted
	default:
		c.logger.Warn("chat stream interrupted", zap.Error(readErr))
		c.transcript, c.state = c.reducer.Apply(c.transcript, c.state, domain.ErrorEvent{Message: readErr.Error()})
	}
	c.publishAndUnlock()
}

// Cancel detiene el turno en curso sin resetear la conversación. El contenido
// ya recibido se conserva y el turno queda completado.
func (c *ConversationController) Cancel() bool {
	c.mu.Lock()
	if c.turn == nil {
		c.mu.Unlock()
		return false
	}
	c.turn.cancel()
	c.turn = nil
	c.state.Loading = false
	if c.state.Phase.Open() {
		c.state.Phase = domain.PhaseCompleted
	}
	c.publishAndUnlock()
	return true
}

// NewChat descarta la conversación y avisa al backend en segundo plano para
// que limpie los reportes de la sesión. El aviso nunca bloquea el reset.
func (c *ConversationController) NewChat(ctx context.Context) {
	c.mu.Lock()
	if c.turn != nil {
		c.turn.cancel()
		c.turn = nil
	}
	c.transcript = domain.Transcript{}
	c.state = domain.InitialState()
	c.publishAndUnlock()

	if c.backend == nil {
		return
	}
	c.bg.Add(1)
	go func() {
		defer c.bg.Done()
		clearCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.clearTimeout)
		defer cancel()
		if err := c.backend.ClearReports(clearCtx); err != nil {
			c.logger.Warn("clear reports failed", zap.Error(err))
			return
		}
		c.logger.Debug("reports cleared")
	}()
}

// SelectWidget cambia el widget visible en el panel lateral.
func (c *ConversationController) SelectWidget(index int) error {
	c.mu.Lock()
	if index < 0 || index >= len(c.state.Widgets) {
		c.mu.Unlock()
		return ErrWidgetIndexOutOfRange
	}
	c.state.SelectedWidgetIndex = index
	c.publishAndUnlock()
	return nil
}

// Wait espera a que terminen las tareas en segundo plano (turnos asíncronos y
// limpieza de reportes).
func (c *ConversationController) Wait() {
	c.bg.Wait()
}

func (c *ConversationController) snapshotLocked() Snapshot {
	return Snapshot{
		Version:    c.version,
		Transcript: c.transcript.Clone(),
		State:      c.state.Clone(),
	}
}

// publishAndUnlock debe llamarse con mu tomado; lo suelta. Si otra goroutine
// ya está entregando, el snapshot queda en cola y lo entrega ella.
func (c *ConversationController) publishAndUnlock() {
	c.version++
	c.pending = append(c.pending, c.snapshotLocked())
	if c.publishing {
		c.mu.Unlock()
		return
	}
	c.publishing = true
	for len(c.pending) > 0 {
		batch := c.pending
		c.pending = nil
		c.mu.Unlock()
		c.notify(batch)
		c.mu.Lock()
	}
	c.publishing = false
	c.mu.Unlock()
}

func (c *ConversationController) notify(batch []Snapshot) {
	c.obsMu.RLock()
	observers := make([]Observer, 0, len(c.observers))
	for _, obs := range c.observers {
		observers = append(observers, obs)
	}
	c.obsMu.RUnlock()

	for _, snap := range batch {
		for _, obs := range observers {
			obs(snap)
		}
	}
}
