package auth

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/incubator-platform/support-chat/internal/errs"
)

// RemoteVerifier asks the identity service to validate tokens.
type RemoteVerifier struct {
	BaseURL     string
	InternalKey string
	HTTPClient  *http.Client
}

func NewRemoteVerifier(baseURL, internalKey string) *RemoteVerifier {
	return &RemoteVerifier{
		BaseURL:     strings.TrimRight(baseURL, "/"),
		InternalKey: internalKey,
		HTTPClient:  &http.Client{Timeout: 6 * time.Second},
	}
}

type verifyRequest struct {
	Token string `json:"token"`
}

type verifyResponse struct {
	Valid bool `json:"valid"`
	User  struct {
		ID    string `json:"id"`
		Role  string `json:"role"`
		Email string `json:"email"`
	} `json:"user"`
	ExpiresAt *time.Time `json:"expires_at"`
}

func (v *RemoteVerifier) Verify(ctx context.Context, token string) (Identity, error) {
	if token == "" {
		return Identity{}, errs.ErrUnauthenticated
	}
	b, _ := json.Marshal(verifyRequest{Token: token})
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, v.BaseURL+"/api/auth/verify", bytes.NewReader(b))
	if err != nil {
		return Identity{}, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)
	if v.InternalKey != "" {
		req.Header.Set("X-Internal-Key", v.InternalKey)
	}

	resp, err := v.HTTPClient.Do(req)
	if err != nil {
		return Identity{}, fmt.Errorf("auth verify: %w", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return Identity{}, fmt.Errorf("%w: auth service status=%d", errs.ErrUnauthenticated, resp.StatusCode)
	case resp.StatusCode >= 300:
		return Identity{}, fmt.Errorf("auth verify status=%d", resp.StatusCode)
	}

	var out verifyResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return Identity{}, fmt.Errorf("auth verify decode: %w", err)
	}
	if !out.Valid {
		return Identity{}, errs.ErrUnauthenticated
	}
	id := Identity{UserID: out.User.ID, Role: Role(out.User.Role), Email: out.User.Email}
	if out.ExpiresAt != nil {
		id.ExpiresAt = *out.ExpiresAt
	}
	return normalize(id)
}
