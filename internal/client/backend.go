package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"softspace/internal/models"

	"go.uber.org/zap"
)

// Backend is every remote call the client makes. Token is an account token,
// a guest token, or empty.
type Backend interface {
	Signup(ctx context.Context, email, password string) (*models.UserResponse, error)
	Login(ctx context.Context, email, password string) (*models.AuthResponse, error)
	RegisterGuest(ctx context.Context, guestID string) error
	GuestToken(ctx context.Context, guestID string) (string, error)
	MigrateGuest(ctx context.Context, token, guestID string) error

	CreateAccountConversation(ctx context.Context, token string, req models.CreateConversationRequest) (*models.ConversationResponse, error)
	CreateGuestConversation(ctx context.Context, token string, req models.SendConversationRequest) (string, error)
	GetConversation(ctx context.Context, token, id string) (*models.ConversationDetailResponse, error)
	UpdateConversationMode(ctx context.Context, token, id string, mode models.Mode) (*models.ConversationResponse, error)
	Complete(ctx context.Context, token string, req models.CompletionRequest) (*models.CompletionResponse, error)

	Subscription(ctx context.Context, token string) (*models.SubscriptionResponse, error)
	Usage(ctx context.Context, token string) (*models.UsageResponse, error)
	Checkout(ctx context.Context, token string) (*models.CheckoutResponse, error)
	Portal(ctx context.Context, token string) (*models.PortalResponse, error)
}

// HTTPBackend talks JSON to the softspace server.
type HTTPBackend struct {
	baseURL string
	http    *http.Client
	logger  *zap.Logger
}

// NewHTTPBackend builds the single backend client of a process. A nil
// httpClient gets a default with a generous timeout for completions.
func NewHTTPBackend(baseURL string, httpClient *http.Client, logger *zap.Logger) *HTTPBackend {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 90 * time.Second}
	}
	return &HTTPBackend{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    httpClient,
		logger:  logger.Named("backend"),
	}
}

func (b *HTTPBackend) do(ctx context.Context, method, path, token string, in, out interface{}) error {
	var body io.Reader
	if in != nil {
		buf, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("encode %s body: %w", path, err)
		}
		body = bytes.NewReader(buf)
	}

	req, err := http.NewRequestWithContext(ctx, method, b.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("build %s request: %w", path, err)
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	start := time.Now()
	resp, err := b.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()
	b.logger.Debug("backend call",
		zap.String("method", method),
		zap.String("path", path),
		zap.Int("status", resp.StatusCode),
		zap.Duration("duration", time.Since(start)))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		var apiErr models.ErrorResponse
		_ = json.NewDecoder(io.LimitReader(resp.Body, 64<<10)).Decode(&apiErr)
		return &APIError{Status: resp.StatusCode, Message: apiErr.Error}
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s response: %w", path, err)
	}
	return nil
}

func (b *HTTPBackend) Signup(ctx context.Context, email, password string) (*models.UserResponse, error) {
	var out models.UserResponse
	err := b.do(ctx, http.MethodPost, "/v1/auth/signup", "", models.SignupRequest{Email: email, Password: password}, &out)
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func (b *HTTPBackend) Login(ctx context.Context, email, password string) (*models.AuthResponse, error) {
	var out models.AuthResponse
	err := b.do(ctx, http.MethodPost, "/v1/auth/login", "", models.LoginRequest{Email: email, Password: password}, &out)
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func (b *HTTPBackend) RegisterGuest(ctx context.Context, guestID string) error {
	var out models.GuestAuthResponse
	if err := b.do(ctx, http.MethodPost, "/functions/v1/guest-auth", "", models.GuestRequest{GuestID: guestID}, &out); err != nil {
		return err
	}
	if !out.Success {
		return fmt.Errorf("guest registration rejected: %s", out.Message)
	}
	return nil
}

func (b *HTTPBackend) GuestToken(ctx context.Context, guestID string) (string, error) {
	var out models.GuestClaimsResponse
	if err := b.do(ctx, http.MethodPost, "/functions/v1/set-guest-claims", "", models.GuestRequest{GuestID: guestID}, &out); err != nil {
		return "", err
	}
	if !out.Success || out.Token == "" {
		return "", fmt.Errorf("guest claims rejected")
	}
	return out.Token, nil
}

func (b *HTTPBackend) MigrateGuest(ctx context.Context, token, guestID string) error {
	var out models.SuccessResponse
	if err := b.do(ctx, http.MethodPost, "/functions/v1/migrate-guest-data", token, models.GuestRequest{GuestID: guestID}, &out); err != nil {
		return err
	}
	if !out.Success {
		return fmt.Errorf("guest migration rejected")
	}
	return nil
}

func (b *HTTPBackend) CreateAccountConversation(ctx context.Context, token string, req models.CreateConversationRequest) (*models.ConversationResponse, error) {
	var out models.ConversationResponse
	if err := b.do(ctx, http.MethodPost, "/v1/conversations", token, req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (b *HTTPBackend) CreateGuestConversation(ctx context.Context, token string, req models.SendConversationRequest) (string, error) {
	var out models.SendConversationResponse
	if err := b.do(ctx, http.MethodPost, "/functions/v1/send-conversation", token, req, &out); err != nil {
		return "", err
	}
	return out.ConversationID, nil
}

func (b *HTTPBackend) GetConversation(ctx context.Context, token, id string) (*models.ConversationDetailResponse, error) {
	var out models.ConversationDetailResponse
	if err := b.do(ctx, http.MethodGet, "/v1/conversations/"+url.PathEscape(id), token, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (b *HTTPBackend) UpdateConversationMode(ctx context.Context, token, id string, mode models.Mode) (*models.ConversationResponse, error) {
	var out models.ConversationResponse
	path := "/v1/conversations/" + url.PathEscape(id) + "/mode"
	if err := b.do(ctx, http.MethodPatch, path, token, models.UpdateConversationModeRequest{Mode: mode}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (b *HTTPBackend) Complete(ctx context.Context, token string, req models.CompletionRequest) (*models.CompletionResponse, error) {
	var out models.CompletionResponse
	if err := b.do(ctx, http.MethodPost, "/functions/v1/completion", token, req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (b *HTTPBackend) Subscription(ctx context.Context, token string) (*models.SubscriptionResponse, error) {
	var out models.SubscriptionResponse
	if err := b.do(ctx, http.MethodGet, "/v1/subscription", token, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (b *HTTPBackend) Usage(ctx context.Context, token string) (*models.UsageResponse, error) {
	var out models.UsageResponse
	if err := b.do(ctx, http.MethodGet, "/v1/usage", token, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (b *HTTPBackend) Checkout(ctx context.Context, token string) (*models.CheckoutResponse, error) {
	var out models.CheckoutResponse
	if err := b.do(ctx, http.MethodPost, "/functions/v1/create-checkout", token, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (b *HTTPBackend) Portal(ctx context.Context, token string) (*models.PortalResponse, error) {
	var out models.PortalResponse
	if err := b.do(ctx, http.MethodPost, "/functions/v1/customer-portal", token, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}
