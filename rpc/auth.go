package rpc

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	jwt "github.com/golang-jwt/jwt/v5"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"cdpchain/config"
	"cdpchain/crypto"
	"cdpchain/observability"
)

const signerKey ctxKey = iota + 1

var (
	errNoSecret      = errors.New("auth secret not configured")
	errSubject       = errors.New("token subject is not an address")
	errIssuer        = errors.New("issuer mismatch")
	errAudience      = errors.New("audience mismatch")
	errSigningMethod = errors.New("unexpected signing method")
)

// authenticator verifies HS256 bearer tokens and binds the token subject as
// the transaction signer.
type authenticator struct {
	secret   []byte
	issuer   string
	audience string
	skew     time.Duration
	logger   *slog.Logger
}

func newAuthenticator(cfg config.RPCAuth, logger *slog.Logger) *authenticator {
	skew := time.Duration(cfg.ClockSkewSeconds) * time.Second
	if skew <= 0 {
		skew = 2 * time.Minute
	}
	return &authenticator{
		secret:   []byte(strings.TrimSpace(cfg.HMACSecret)),
		issuer:   strings.TrimSpace(cfg.Issuer),
		audience: strings.TrimSpace(cfg.Audience),
		skew:     skew,
		logger:   logger,
	}
}

func (a *authenticator) middleware(module string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			raw := extractBearer(r.Header.Get("Authorization"))
			if raw == "" {
				observability.Default().RecordThrottle(module, "unauthenticated")
				writeError(w, r, http.StatusUnauthorized, "missing bearer token")
				return
			}
			signer, err := a.verify(raw)
			if err != nil {
				a.logger.Warn("api token rejected",
					slog.String("requestId", RequestIDFrom(r.Context())),
					slog.Any("error", err))
				observability.Default().RecordThrottle(module, "unauthenticated")
				writeError(w, r, http.StatusUnauthorized, "invalid token")
				return
			}
			trace.SpanFromContext(r.Context()).SetAttributes(attribute.String("cdp.signer", signer.String()))
			next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), signerKey, signer)))
		})
	}
}

func (a *authenticator) verify(raw string) (crypto.Address, error) {
	if len(a.secret) == 0 {
		return crypto.Address{}, errNoSecret
	}
	opts := []jwt.ParserOption{
		jwt.WithLeeway(a.skew),
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
	}
	if a.issuer != "" {
		opts = append(opts, jwt.WithIssuer(a.issuer))
	}
	if a.audience != "" {
		opts = append(opts, jwt.WithAudience(a.audience))
	}
	claims := new(jwt.RegisteredClaims)
	token, err := jwt.ParseWithClaims(raw, claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errSigningMethod
		}
		return a.secret, nil
	}, opts...)
	if err != nil {
		switch {
		case errors.Is(err, jwt.ErrTokenInvalidIssuer):
			return crypto.Address{}, errIssuer
		case errors.Is(err, jwt.ErrTokenInvalidAudience):
			return crypto.Address{}, errAudience
		}
		return crypto.Address{}, err
	}
	if !token.Valid {
		return crypto.Address{}, errors.New("token invalid")
	}
	signer, err := crypto.DecodeAddress(strings.TrimSpace(claims.Subject))
	if err != nil || signer.IsZero() {
		return crypto.Address{}, errSubject
	}
	return signer, nil
}

// SignerFrom returns the address authenticated for the request.
func SignerFrom(ctx context.Context) (crypto.Address, bool) {
	signer, ok := ctx.Value(signerKey).(crypto.Address)
	return signer, ok
}

func extractBearer(header string) string {
	parts := strings.SplitN(strings.TrimSpace(header), " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return strings.TrimSpace(parts[1])
}
