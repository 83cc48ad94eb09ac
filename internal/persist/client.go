// Package persist submits completed capture sessions to the storage endpoint.
package persist

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/AlverezYari/poseframe/internal/domain"
	"github.com/AlverezYari/poseframe/internal/telemetry"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

// SessionHeader carries the capture session ID on outbound requests.
const SessionHeader = "X-Session-ID"

type saveRequest struct {
	Name         string      `json:"name"`
	Surname      string      `json:"surname"`
	FaceEncoding [][]float64 `json:"face_encoding"`
}

type saveResponse struct {
	UserID  UserID `json:"user_id"`
	Message string `json:"message"`
	Error   string `json:"error"`
}

// UserID is the identifier the storage endpoint assigns. It accepts both
// numeric and string JSON values.
type UserID string

func (id *UserID) UnmarshalJSON(data []byte) error {
	s := strings.TrimSpace(string(data))
	if s == "null" {
		*id = ""
		return nil
	}
	if strings.HasPrefix(s, `"`) {
		var str string
		if err := json.Unmarshal(data, &str); err != nil {
			return err
		}
		*id = UserID(str)
		return nil
	}
	if _, err := strconv.ParseFloat(s, 64); err != nil {
		return fmt.Errorf("user_id: unexpected value %s", s)
	}
	*id = UserID(s)
	return nil
}

// Result is what a successful save returns.
type Result struct {
	UserID  string
	Message string
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

// Persist saves the user. Every failure is a *domain.PersistenceError, so
// errors.Is(err, domain.ErrPersistenceFailed) holds.
func (c *Client) Persist(ctx context.Context, sessionID string, user domain.PersistedUser) (Result, error) {
	ctx, span := telemetry.Tracer().Start(ctx, "persist.user")
	defer span.End()
	span.SetAttributes(attribute.String("poseframe.session_id", sessionID))

	result, err := c.do(ctx, sessionID, user)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return Result{}, err
	}
	span.SetAttributes(attribute.String("poseframe.user_id", result.UserID))
	return result, nil
}

func (c *Client) do(ctx context.Context, sessionID string, user domain.PersistedUser) (Result, error) {
	payload := saveRequest{
		Name:         user.Identity.FirstName,
		Surname:      user.Identity.LastName,
		FaceEncoding: make([][]float64, 0, domain.SlotCount),
	}
	for i, enc := range user.Encodings {
		if enc.Empty() {
			return Result{}, &domain.PersistenceError{Reason: fmt.Sprintf("encoding for %s is missing", domain.Positions[i])}
		}
		payload.FaceEncoding = append(payload.FaceEncoding, []float64(enc))
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return Result{}, &domain.PersistenceError{Reason: err.Error()}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return Result{}, &domain.PersistenceError{Reason: err.Error()}
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if sessionID != "" {
		req.Header.Set(SessionHeader, sessionID)
	}
	telemetry.Inject(ctx, req.Header)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return Result{}, &domain.PersistenceError{Reason: err.Error()}
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return Result{}, &domain.PersistenceError{Status: resp.StatusCode, Reason: err.Error()}
	}

	var decoded saveResponse
	decodeErr := json.Unmarshal(raw, &decoded)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		reason := http.StatusText(resp.StatusCode)
		if decodeErr == nil && decoded.Error != "" {
			reason = decoded.Error
		}
		return Result{}, &domain.PersistenceError{Status: resp.StatusCode, Reason: reason}
	}
	if decodeErr != nil {
		return Result{}, &domain.PersistenceError{Status: resp.StatusCode, Reason: "decoding response: " + decodeErr.Error()}
	}

	c.logger.Info("user saved", "session_id", sessionID, "user_id", string(decoded.UserID), "message", decoded.Message)
	return Result{UserID: string(decoded.UserID), Message: decoded.Message}, nil
}
