package tokens

import (
	"context"
	"crypto"
	"fmt"

	"eduplatform-api/internal/apperr"

	"github.com/coreos/go-oidc/v3/oidc"
	"go.uber.org/zap"
)

// OIDCReader verifies credentials minted by an external OpenID Connect
// issuer. Signature, issuer, audience (client id) and expiry are checked.
type OIDCReader struct {
	verifier *oidc.IDTokenVerifier
	logger   *zap.Logger
}

// NewOIDCReader discovers the issuer's signing keys over HTTP.
func NewOIDCReader(ctx context.Context, issuerURL, clientID string, logger *zap.Logger) (*OIDCReader, error) {
	if issuerURL == "" || clientID == "" {
		return nil, fmt.Errorf("%w: oidc issuer and client id are required", apperr.ErrMisconfigured)
	}
	provider, err := oidc.NewProvider(ctx, issuerURL)
	if err != nil {
		return nil, fmt.Errorf("oidc discovery: %w", err)
	}
	return &OIDCReader{
		verifier: provider.Verifier(&oidc.Config{ClientID: clientID}),
		logger:   logger,
	}, nil
}

// NewOIDCReaderWithKeys pins the verification keys instead of fetching them.
func NewOIDCReaderWithKeys(issuer, clientID string, logger *zap.Logger, keys ...crypto.PublicKey) *OIDCReader {
	keySet := &oidc.StaticKeySet{PublicKeys: keys}
	return &OIDCReader{
		verifier: oidc.NewVerifier(issuer, keySet, &oidc.Config{ClientID: clientID}),
		logger:   logger,
	}
}

func (r *OIDCReader) Read(ctx context.Context, credential string) (*Identity, bool) {
	raw := StripBearer(credential)
	if raw == "" {
		r.logger.Warn("token rejected", zap.String("reason", "missing credential"))
		return nil, false
	}

	idToken, err := r.verifier.Verify(ctx, raw)
	if err != nil {
		r.logger.Warn("token rejected", zap.Error(err))
		return nil, false
	}

	var claims map[string]any
	if err := idToken.Claims(&claims); err != nil {
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
