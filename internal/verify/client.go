// Package verify talks to the external face verification endpoint.
package verify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"time"

	"github.com/AlverezYari/poseframe/internal/domain"
	"github.com/AlverezYari/poseframe/internal/telemetry"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

// SessionHeader carries the capture session ID on outbound requests.
const SessionHeader = "X-Session-ID"

// Request is one sample attempt.
type Request struct {
	SessionID string
	Image     string // data URL
	Position  domain.Position
	Identity  domain.Identity
}

type response struct {
	Correct                bool      `json:"correct"`
	FaceEncoding           []float64 `json:"face_encoding"`
	PositionChangeRequired bool      `json:"position_change_required"`
	Error                  *string   `json:"error"`
	Message                string    `json:"message"`
}

type Client struct {
	endpoint   string
	httpClient *http.Client
	logger     *slog.Logger
}

func New(endpoint string, timeout time.Duration, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Client{
		endpoint:   endpoint,
		httpClient: &http.Client{Timeout: timeout},
		logger:     logger,
	}
}

// Verify submits one frame. A negative verdict is returned as a Verdict
// with Correct false; only transport and protocol failures produce an
// error, and those always wrap domain.ErrVerificationUnavailable.
func (c *Client) Verify(ctx context.Context, req Request) (domain.Verdict, error) {
	ctx, span := telemetry.Tracer().Start(ctx, "verify.frame")
	defer span.End()
	span.SetAttributes(attribute.String("poseframe.position", string(req.Position)))

	verdict, err := c.do(ctx, req)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return domain.Verdict{}, fmt.Errorf("%w: %v", domain.ErrVerificationUnavailable, err)
	}
	span.SetAttributes(attribute.Bool("poseframe.correct", verdict.Correct))
	return verdict, nil
}

func (c *Client) do(ctx context.Context, req Request) (domain.Verdict, error) {
	body, contentType, err := encodeForm(req)
	if err != nil {
		return domain.Verdict{}, err
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, body)
	if err != nil {
		return domain.Verdict{}, fmt.Errorf("building request: %w", err)
	}
	httpReq.Header.Set("Content-Type", contentType)
	httpReq.Header.Set("Accept", "application/json")
	if req.SessionID != "" {
		httpReq.Header.Set(SessionHeader, req.SessionID)
	}
	telemetry.Inject(ctx, httpReq.Header)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return domain.Verdict{}, err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return domain.Verdict{}, fmt.Errorf("reading response: %w", err)
	}

	var decoded response
	decodeErr := json.Unmarshal(raw, &decoded)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		reason := http.StatusText(resp.StatusCode)
		if decodeErr == nil && decoded.Error != nil && *decoded.Error != "" {
			reason = *decoded.Error
		}
		return domain.Verdict{}, fmt.Errorf("status %d: %s", resp.StatusCode, reason)
	}
	if decodeErr != nil {
		return domain.Verdict{}, fmt.Errorf("decoding response: %w", decodeErr)
	}

	verdict := domain.Verdict{
		Correct:                decoded.Correct,
		Encoding:               domain.Encoding(decoded.FaceEncoding),
		PositionChangeRequired: decoded.PositionChangeRequired,
		Message:                decoded.Message,
	}
	if decoded.Error != nil {
		verdict.Error = *decoded.Error
	}
	c.logger.Debug("verdict received",
		"session_id", req.SessionID,
		"position", req.Position,
		"correct", verdict.Correct,
		"position_change_required", verdict.PositionChangeRequired)
	return verdict, nil
}

func encodeForm(req Request) (io.Reader, string, error) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)

	fields := []struct{ name, value string }{
		{"image", req.Image},
		{"position", string(req.Position)},
		{"name", req.Identity.FirstName},
		{"surname", req.Identity.LastName},
	}
	for _, f := range fields {
		if err := w.WriteField(f.name, f.value); err != nil {
			return nil, "", fmt.Errorf("writing %s field: %w", f.name, err)
		}
	}
	if err := w.Close(); err != nil {
		return nil, "", fmt.Errorf("closing form: %w", err)
	}
	return &buf, w.FormDataContentType(), nil
}
