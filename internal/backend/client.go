package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"bloom-client/internal/domain"
)

var (
	ErrNoBody           = errors.New("backend response has no body")
	ErrUnexpectedStatus = errors.New("backend unexpected status")
)

// StatusError describe una respuesta no 2xx del backend.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("backend http error: status=%d", e.StatusCode)
}

func (e *StatusError) Unwrap() error { return ErrUnexpectedStatus }

// Client define las llamadas que el controlador necesita del backend de chat.
type Client interface {
	StreamChat(ctx context.Context, req domain.ChatRequest) (io.ReadCloser, error)
	ClearReports(ctx context.Context) error
}

// HealthStatus es la respuesta de GET /health.
type HealthStatus struct {
	Status  string `json:"status"`
	Version string `json:"version"`
}

// HTTPClient implementa Client contra el backend Bloom.
type HTTPClient struct {
	baseURL string
	client  *http.Client
	logger  *zap.Logger
}

// NewHTTPClient construye el cliente. No se fija un timeout total porque el
// cuerpo es un stream de larga duración; headerTimeout acota la espera de cabeceras.
func NewHTTPClient(baseURL string, headerTimeout time.Duration, logger *zap.Logger) *HTTPClient {
	if baseURL == "" {
		baseURL = "http://localhost:8000"
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	transport := http.DefaultTransport.(*http.Transport).Clone()
	if headerTimeout > 0 {
		transport.ResponseHeaderTimeout = headerTimeout
	}
	return &HTTPClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Transport: transport},
		logger:  logger,
	}
}

// StreamChat abre POST /chat/stream y devuelve el cuerpo SSE sin leer.
// El llamador debe cerrar el ReadCloser.
func (c *HTTPClient) StreamChat(ctx context.Context, chatReq domain.ChatRequest) (io.ReadCloser, error) {
	bodyBytes, err := json.Marshal(chatReq)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat/stream", bytes.NewReader(bodyBytes))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "text/event-stream")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("do request: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		defer resp.Body.Close()
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		c.logger.Warn("chat stream rejected",
			zap.Int("status", resp.StatusCode),
			zap.String("body", string(respBody)),
		)
		return nil, &StatusError{StatusCode: resp.StatusCode, Body: string(respBody)}
	}
	if resp.Body == nil || resp.Body == http.NoBody {
		return nil, ErrNoBody
	}
	return resp.Body, nil
}

// ClearReports pide al backend que borre los artefactos de la sesión.
func (c *HTTPClient) ClearReports(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/reports/clear", nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &StatusError{StatusCode: resp.StatusCode}
	}
	return nil
}

func (c *HTTPClient) Health(ctx context.Context) (HealthStatus, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/health", nil)
	if err != nil {
		return HealthStatus{}, fmt.Errorf("create request: %w", err)
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return HealthStatus{}, fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return HealthStatus{}, &StatusError{StatusCode: resp.StatusCode}
	}
	var hs HealthStatus
	if err := json.NewDecoder(resp.Body).Decode(&hs); err != nil {
		return HealthStatus{}, fmt.Errorf("decode health: %w", err)
	}
	return hs, nil
}
