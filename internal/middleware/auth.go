package middleware

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/MicahParks/keyfunc/v3"
	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"

	"github.com/ledgergate/ledgergate/internal/config"
	"github.com/ledgergate/ledgergate/internal/model"
	"github.com/ledgergate/ledgergate/internal/pkg/apperrors"
	"github.com/ledgergate/ledgergate/internal/pkg/logger"
)

const ContextIdentityKey = "identity"

// TokenVerifier resolves a bearer credential into an identity. The gateway
// only verifies tokens; issuing them is someone else's job.
type TokenVerifier interface {
	Verify(ctx context.Context, token string) (*model.Identity, error)
}

// NewVerifier picks the verifier from config: a remote JWKS endpoint when
// configured, otherwise a shared HMAC secret.
func NewVerifier(cfg config.AuthConfig) (TokenVerifier, error) {
	if cfg.JWKSURL != "" {
		return NewJWKSVerifier(cfg)
	}
	if cfg.HMACSecret != "" {
		return NewHMACVerifier(cfg), nil
	}
	return nil, errors.New("auth config has neither jwks_url nor hmac_secret")
}

// JWKSVerifier validates asymmetric tokens against a remote, periodically
// refreshed JWK set.
type JWKSVerifier struct {
	jwks   keyfunc.Keyfunc
	issuer string
	leeway time.Duration
	cancel context.CancelFunc
}

func NewJWKSVerifier(cfg config.AuthConfig) (*JWKSVerifier, error) {
	ctx, cancel := context.WithCancel(context.Background())
	jwks, err := keyfunc.NewDefaultCtx(ctx, []string{cfg.JWKSURL})
	if err != nil {
		cancel()
		return nil, fmt.Errorf("unable to load JWKS: %w", err)
	}
	return &JWKSVerifier{
		jwks:   jwks,
		issuer: cfg.Issuer,
		leeway: cfg.Leeway(),
		cancel: cancel,
	}, nil
}

func (v *JWKSVerifier) Verify(_ context.Context, tokenString string) (*model.Identity, error) {
	opts := []jwt.ParserOption{
		jwt.WithLeeway(v.leeway),
		jwt.WithValidMethods([]string{
			jwt.SigningMethodRS256.Alg(),
			jwt.SigningMethodRS384.Alg(),
			jwt.SigningMethodRS512.Alg(),
			jwt.SigningMethodPS256.Alg(),
			jwt.SigningMethodES256.Alg(),
		}),
	}
	if v.issuer != "" {
		opts = append(opts, jwt.WithIssuer(v.issuer))
	}

	token, err := jwt.Parse(tokenString, v.jwks.Keyfunc, opts...)
	if err != nil || !token.Valid {
		return nil, fmt.Errorf("token validation failed: %w", err)
	}
	return identityFromToken(token)
}

// Close stops the background JWKS refresher.
func (v *JWKSVerifier) Close() {
	if v.cancel != nil {
		v.cancel()
	}
}

// HMACVerifier validates HS256 tokens with a shared secret.
type HMACVerifier struct {
	secret []byte
	issuer string
	leeway time.Duration
}

func NewHMACVerifier(cfg config.AuthConfig) *HMACVerifier {
	return &HMACVerifier{
		secret: []byte(cfg.HMACSecret),
		issuer: cfg.Issuer,
		leeway: cfg.Leeway(),
	}
}

func (v *HMACVerifier) Verify(_ context.Context, tokenString string) (*model.Identity, error) {
	opts := []jwt.ParserOption{
		jwt.WithLeeway(v.leeway),
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
	}
	if v.issuer != "" {
		opts = append(opts, jwt.WithIssuer(v.issuer))
	}

	token, err := jwt.Parse(tokenString, func(t *jwt.Token) (interface{}, error) {
		return v.secret, nil
	}, opts...)
	if err != nil || !token.Valid {
		return nil, fmt.Errorf("token validation failed: %w", err)
	}
	return identityFromToken(token)
}

func identityFromToken(token *jwt.Token) (*model.Identity, error) {
	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return nil, errors.New("unexpected claims type")
	}
	subject, err := claims.GetSubject()
	if err != nil || subject == "" {
		return nil, errors.New("token has no subject")
	}
	return &model.Identity{Subject: subject, Claims: claims}, nil
}

// Auth rejects requests without a valid bearer credential. Verification
// failures are terminal for the request, never retried. Rejected requests
// never reach the audit wrapper or the dispatcher.
func Auth(verifier TokenVerifier) gin.HandlerFunc {
	return func(c *gin.Context) {
		tokenString, err := extractBearerToken(c.GetHeader("Authorization"))
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, apperrors.NewUnauthenticated("missing or malformed bearer credential"))
			return
		}

		identity, err := verifier.Verify(c.Request.Context(), tokenString)
		if err != nil {
			logger.Warn("token verification failed", "error", err, "client_ip", c.ClientIP())
			c.AbortWithStatusJSON(http.StatusUnauthorized, apperrors.NewUnauthenticated("invalid or expired credential"))
			return
		}

		c.Set(ContextIdentityKey, identity)
		c.Next()
	}
}

// IdentityFrom returns the verified identity, or nil before Auth has run.
func IdentityFrom(c *gin.Context) *model.Identity {
	if val, exists := c.Get(ContextIdentityKey); exists {
		if identity, ok := val.(*model.Identity); ok {
			return identity
		}
	}
	return nil
}

func extractBearerToken(header string) (string, error) {
	if header == "" {
		return "", errors.New("missing Authorization header")
	}
	parts := strings.Fields(header)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return "", errors.New("invalid Authorization header format")
	}
	return parts[1], nil
}
