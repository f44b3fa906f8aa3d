package keys

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/base64"
	"encoding/pem"
	"math/big"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/realmgate/realmgate/model"
)

const rsaKeyBits = 2048

// Provider exposes per-realm asymmetric signing. Keys are read from
// the durable store on every call; there is no in-process cache.
type Provider struct {
	repo SigningKeyRepository
}

// Sign issues an RS256 JWT with the realm's active key, carrying the
// kid header so relying parties can pick the right JWKS entry.
func (p *Provider) Sign(ctx context.Context, realmID uint, claims jwt.Claims) (string, error) {
	key, err := p.repo.GetActive(ctx, realmID)
	if err != nil {
		return "", err
	}
	privateKey, err := parsePrivatePEM(key.PrivatePEM)
	if err != nil {
		return "", err
	}
	token := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	token.Header["kid"] = key.KID
	return token.SignedString(privateKey)
}

// Verify parses and validates a token signed by any of this server's
// realm keys, resolving the key by kid header.
func (p *Provider) Verify(ctx context.Context, tokenStr string, claims jwt.Claims) error {
	token, err := jwt.ParseWithClaims(tokenStr, claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodRSA); !ok {
			return nil, ErrUnexpectedAlgo
		}
		kid, _ := token.Header["kid"].(string)
		key, err := p.repo.GetByKID(ctx, kid)
		if err != nil {
			return nil, err
		}
		privateKey, err := parsePrivatePEM(key.PrivatePEM)
		if err != nil {
			return nil, err
		}
		return &privateKey.PublicKey, nil
	})
	if err != nil {
		return err
	}
	if !token.Valid {
		return ErrTokenInvalid
	}
	return nil
}

// EnsureActiveKey generates and activates a key for realms that have
// none yet, preserving the one-active-key invariant.
func (p *Provider) EnsureActiveKey(ctx context.Context, realmID uint) (*model.SigningKey, error) {
	key, err := p.repo.GetActive(ctx, realmID)
	if err == nil {
		return key, nil
	}
	if err != ErrNoActiveKey {
		return nil, err
	}
	return p.RotateKey(ctx, realmID)
}

// RotateKey mints a fresh RSA keypair and makes it the realm's single
// active key.
func (p *Provider) RotateKey(ctx context.Context, realmID uint) (*model.SigningKey, error) {
	privateKey, err := rsa.GenerateKey(rand.Reader, rsaKeyBits)
	if err != nil {
		return nil, err
	}
	der, err := x509.MarshalPKCS8PrivateKey(privateKey)
	if err != nil {
		return nil, err
	}
	pemBytes := pem.EncodeToMemory(&pem.Block{Type: "PRIVATE KEY", Bytes: der})
	key := &model.SigningKey{
		KID:        uuid.NewString(),
		PrivatePEM: string(pemBytes),
	}
	if err := p.repo.Rotate(ctx, realmID, key); err != nil {
		return nil, err
	}
	return key, nil
}

// JWKS renders the realm's public keys as a JWK set document. All
// known keys are published so tokens signed before a rotation stay
// verifiable until they expire.
func (p *Provider) JWKS(ctx context.Context, realmID uint) (map[string]any, error) {
	list, err := p.repo.ListByRealm(ctx, realmID)
	if err != nil {
		return nil, err
	}
	jwks := make([]map[string]string, 0, len(list))
	for _, key := range list {
		privateKey, err := parsePrivatePEM(key.PrivatePEM)
		if err != nil {
			return nil, err
		}
		pub := privateKey.PublicKey
		jwks = append(jwks, map[string]string{
			"kty": "RSA",
			"use": "sig",
			"alg": "RS256",
			"kid": key.KID,
			"n":   base64.RawURLEncoding.EncodeToString(pub.N.Bytes()),
			"e":   base64.RawURLEncoding.EncodeToString(big.NewInt(int64(pub.E)).Bytes()),
		})
	}
	return map[string]any{"keys": jwks}, nil
}

func parsePrivatePEM(pemStr string) (*rsa.PrivateKey, error) {
	block, _ := pem.Decode([]byte(pemStr))
	if block == nil {
		return nil, ErrInvalidKeyPEM
	}
	parsed, err := x509.ParsePKCS8PrivateKey(block.Bytes)
	if err != nil {
		return nil, ErrInvalidKeyPEM
	}
	privateKey, ok := parsed.(*rsa.PrivateKey)
	if !ok {
		return nil, ErrInvalidKeyPEM
	}
	return privateKey, nil
}

func NewProvider(repo SigningKeyRepository) *Provider {
	return &Provider{repo: repo}
}
