package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/incubator-platform/support-chat/internal/errs"
	"github.com/incubator-platform/support-chat/internal/model"
)

type Role string

const (
	RoleUser  Role = "user"
	RoleCoach Role = "coach"
	RoleAdmin Role = "admin"
)

func (r Role) Valid() bool { return r == RoleUser || r == RoleCoach || r == RoleAdmin }

// Identity is the caller resolved from a bearer token.
type Identity struct {
	UserID    string    `json:"user_id"`
	Role      Role      `json:"role"`
	Email     string    `json:"email,omitempty"`
	ExpiresAt time.Time `json:"expires_at,omitempty"`
}

func (i Identity) IsCoach() bool { return i.Role == RoleCoach }

func (i Identity) IsAdmin() bool { return i.Role == RoleAdmin }

// CanAccess: admins see every ticket, coaches see unassigned tickets and
// their own, users see tickets they opened.
func (i Identity) CanAccess(t *model.Ticket) bool {
	switch i.Role {
	case RoleAdmin:
		return true
	case RoleCoach:
		return !t.HasCoach() || *t.CoachID == i.UserID
	}
	return t.UserID == i.UserID
}

// Verifier turns a bearer token into an Identity. Any failure is reported
// as errs.ErrUnauthenticated, possibly wrapped.
type Verifier interface {
	Verify(ctx context.Context, token string) (Identity, error)
}

type Claims struct {
	UserID string `json:"user_id"`
	Role   string `json:"role"`
	Email  string `json:"email"`
	jwt.RegisteredClaims
}

// JWTVerifier validates HS256 tokens signed with a shared secret.
type JWTVerifier struct {
	secret []byte
}

func NewJWTVerifier(secret string) *JWTVerifier {
	return &JWTVerifier{secret: []byte(secret)}
}

func (v *JWTVerifier) Verify(_ context.Context, token string) (Identity, error) {
	if token == "" {
		return Identity{}, errs.ErrUnauthenticated
	}
	claims := &Claims{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(*jwt.Token) (any, error) {
		return v.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil || !parsed.Valid {
		return Identity{}, fmt.Errorf("%w: %v", errs.ErrUnauthenticated, err)
	}
	id := Identity{UserID: claims.UserID, Role: Role(claims.Role), Email: claims.Email}
	if id.UserID == "" {
		id.UserID = claims.Subject
	}
	if claims.ExpiresAt != nil {
		id.ExpiresAt = claims.ExpiresAt.Time
	}
	return normalize(id)
}

// Sign issues a token for id; used by tooling and tests.
func (v *JWTVerifier) Sign(id Identity, ttl time.Duration) (string, error) {
	claims := &Claims{
		UserID: id.UserID,
		Role:   string(id.Role),
		Email:  id.Email,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   id.UserID,
			IssuedAt:  jwt.NewNumericDate(time.Now()),
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(v.secret)
}

func normalize(id Identity) (Identity, error) {
	if id.UserID == "" {
		return Identity{}, fmt.Errorf("%w: token carries no user id", errs.ErrUnauthenticated)
	}
	if id.Role == "" {
		id.Role = RoleUser
	}
	id.Role = Role(strings.ToLower(string(id.Role)))
	if !id.Role.Valid() {
		return Identity{}, fmt.Errorf("%w: unknown role %q", errs.ErrUnauthenticated, id.Role)
	}
	return id, nil
}

// TokenFromRequest reads the bearer token from the Authorization header,
// falling back to the token query parameter used by browser sockets.
func TokenFromRequest(r *http.Request) string {
	if h := r.Header.Get("Authorization"); h != "" {
		if scheme, tok, ok := strings.Cut(h, " "); ok && strings.EqualFold(scheme, "Bearer") {
			return strings.TrimSpace(tok)
		}
	}
	return r.URL.Query().Get("token")
}

func IsUnauthenticated(err error) bool { return errors.Is(err, errs.ErrUnauthenticated) }
