package middleware

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	pkgerrors "contestjudge/pkg/errors"
	"contestjudge/pkg/utils/contextkey"
	"contestjudge/pkg/utils/response"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
)

// Roles understood by the judge API.
const (
	RoleParticipant = "participant"
	RoleAdmin       = "admin"
)

// AuthConfig configures access-token verification.
type AuthConfig struct {
	// Mode is "jwt" or "header". Header mode trusts X-User-Id and is meant for
	// deployments where a gateway already authenticated the caller.
	Mode      string `yaml:"mode"`
	JWTSecret string `yaml:"jwtSecret"`
	JWTIssuer string `yaml:"jwtIssuer"`
	// Leeway tolerates clock skew between issuer and verifier.
	Leeway time.Duration `yaml:"leeway"`
}

// Identity is the verified caller.
type Identity struct {
	UserID string
	Role   string
}

// TokenVerifier validates HS256 access tokens.
type TokenVerifier struct {
	secret []byte
	issuer string
	leeway time.Duration
}

type accessClaims struct {
	Role      string `json:"role"`
	TokenType string `json:"typ"`
	jwt.RegisteredClaims
}

func NewTokenVerifier(cfg AuthConfig) (*TokenVerifier, error) {
	if cfg.JWTSecret == "" {
		return nil, fmt.Errorf("jwt secret is required")
	}
	return &TokenVerifier{
		secret: []byte(cfg.JWTSecret),
		issuer: cfg.JWTIssuer,
		leeway: cfg.Leeway,
	}, nil
}

// Verify parses raw and returns the caller identity.
func (v *TokenVerifier) Verify(ctx context.Context, raw string) (Identity, error) {
	if raw == "" {
		return Identity{}, pkgerrors.New(pkgerrors.Unauthorized)
	}
	opts := []jwt.ParserOption{jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()})}
	if v.leeway > 0 {
		opts = append(opts, jwt.WithLeeway(v.leeway))
	}
	if v.issuer != "" {
		opts = append(opts, jwt.WithIssuer(v.issuer))
	}
	parsed, err := jwt.ParseWithClaims(raw, &accessClaims{}, func(token *jwt.Token) (interface{}, error) {
		return v.secret, nil
	}, opts...)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return Identity{}, pkgerrors.New(pkgerrors.TokenExpired)
		}
		return Identity{}, pkgerrors.Wrap(err, pkgerrors.TokenInvalid)
	}
	claims, ok := parsed.Claims.(*accessClaims)
	if !ok || !parsed.Valid {
		return Identity{}, pkgerrors.New(pkgerrors.TokenInvalid)
	}
	if claims.TokenType != "access" || claims.Subject == "" {
		return Identity{}, pkgerrors.New(pkgerrors.TokenInvalid)
	}
	role := claims.Role
	if role == "" {
		role = RoleParticipant
	}
	return Identity{UserID: claims.Subject, Role: role}, nil
}

// IssueToken signs an access token. Used by tooling and tests; the judge does
// not manage accounts.
func IssueToken(secret, issuer, userID, role string, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := accessClaims{
		Role:      role,
		TokenType: "access",
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			Issuer:    issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
}

// AuthMiddleware authenticates the caller and enforces the allowed roles.
// A nil verifier means header mode.
func AuthMiddleware(verifier *TokenVerifier, roles ...string) gin.HandlerFunc {
	return func(c *gin.Context) {
		var ident Identity
		if verifier == nil {
			ident.UserID = strings.TrimSpace(c.GetHeader(userIDHeader))
			ident.Role = strings.TrimSpace(c.GetHeader("X-User-Role"))
			if ident.Role == "" {
				ident.Role = RoleParticipant
			}
			if ident.UserID == "" {
				response.AbortWithErrorCode(c, pkgerrors.Unauthorized, "missing user id")
				return
			}
		} else {
			var err error
			ident, err = verifier.Verify(c.Request.Context(), extractBearerToken(c.GetHeader("Authorization")))
			if err != nil {
				response.AbortWithError(c, err)
				return
			}
		}

		if len(roles) > 0 && !hasRole(ident.Role, roles) {
			response.AbortWithErrorCode(c, pkgerrors.Forbidden, "insufficient role")
			return
		}

		c.Set(userIDContextKey, ident.UserID)
		c.Set(userRoleContextKey, ident.Role)
		ctx := context.WithValue(c.Request.Context(), contextkey.UserID, ident.UserID)
		ctx = context.WithValue(ctx, contextkey.UserRole, ident.Role)
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}

func extractBearerToken(authHeader string) string {
	parts := strings.SplitN(authHeader, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return strings.TrimSpace(parts[1])
}

func hasRole(role string, allowed []string) bool {
	for _, item := range allowed {
		if strings.EqualFold(role, item) {
			return true
		}
	}
	return false
}
