package tokens

import (
	"context"
	"errors"
	"fmt"

	"eduplatform-api/internal/apperr"

	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"
)

// HMACReader verifies tokens signed with the shared JWT secret.
type HMACReader struct {
	secret []byte
	parser *jwt.Parser
	logger *zap.Logger
}

func NewHMACReader(secret, issuer, audience string, logger *zap.Logger) (*HMACReader, error) {
	if secret == "" || issuer == "" || audience == "" {
		return nil, fmt.Errorf("%w: jwt secret, issuer and audience are required", apperr.ErrMisconfigured)
	}
	parser := jwt.NewParser(
		jwt.WithIssuer(issuer),
		jwt.WithAudience(audience),
		jwt.WithExpirationRequired(),
		jwt.WithLeeway(0),
		jwt.WithValidMethods([]string{
			jwt.SigningMethodHS256.Name,
			jwt.SigningMethodHS384.Name,
			jwt.SigningMethodHS512.Name,
		}),
	)
	return &HMACReader{secret: []byte(secret), parser: parser, logger: logger}, nil
}

func (r *HMACReader) Read(_ context.Context, credential string) (*Identity, bool) {
	raw := StripBearer(credential)
	if raw == "" {
		r.logger.Warn("token rejected", zap.String("reason", "missing credential"))
		return nil, false
	}

	claims := jwt.MapClaims{}
	token, err := r.parser.ParseWithClaims(raw, claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return r.secret, nil
	})
	if err != nil || !token.Valid {
		if err == nil {
			err = errors.New("invalid token")
		}
		r.logger.Warn("token rejected", zap.Error(err))
		return nil, false
	}

	id, ok := identityFromClaims(claims)
	if !ok {
		r.logger.Warn("token rejected", zap.String("reason", "missing id claim"))
		return nil, false
	}
	return id, true
}
