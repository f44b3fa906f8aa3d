package clients

import (
	"context"
	"strings"

	"github.com/google/uuid"
	"github.com/realmgate/realmgate/internal/common"
	"github.com/realmgate/realmgate/model"
	"github.com/realmgate/realmgate/params"
	"golang.org/x/crypto/bcrypt"
)

// Registry resolves and authenticates clients within a realm.
type Registry struct {
	repo ClientRepository
}

func (r *Registry) GetByClientID(ctx context.Context, realmID uint, clientID string) (*model.Client, error) {
	return r.repo.GetByClientID(ctx, realmID, clientID)
}

func (r *Registry) GetByID(ctx context.Context, id uint) (*model.Client, error) {
	return r.repo.GetByID(ctx, id)
}

// Authenticate verifies a confidential client's secret. Public clients
// authenticate by client_id alone.
func (r *Registry) Authenticate(ctx context.Context, realmID uint, clientID, clientSecret string) (*model.Client, error) {
	client, err := r.repo.GetByClientID(ctx, realmID, clientID)
	if err != nil {
		return nil, err
	}
	if client.Public {
		return client, nil
	}
	if err := bcrypt.CompareHashAndPassword([]byte(client.SecretHash), []byte(clientSecret)); err != nil {
		return nil, ErrClientCredentials
	}
	return client, nil
}

// MatchRedirectURI accepts an exact registered URI or a `base/*`
// wildcard prefix match.
func (r *Registry) MatchRedirectURI(client *model.Client, redirectURI string) error {
	for _, registered := range strings.Fields(client.RedirectURIs) {
		if base, ok := strings.CutSuffix(registered, "/*"); ok {
			if strings.HasPrefix(redirectURI, base+"/") || redirectURI == base {
				return nil
			}
			continue
		}
		if common.ConstantTimeEquals(registered, redirectURI) {
			return nil
		}
	}
	return ErrRedirectURIMismatch
}

func (r *Registry) CheckGrant(client *model.Client, grantType string) error {
	if !client.AllowsGrant(grantType) {
		return ErrGrantNotAllowed
	}
	return nil
}

// Register creates a client and returns the generated plaintext secret
// for confidential clients. Only its bcrypt hash is stored.
func (r *Registry) Register(ctx context.Context, client *model.Client) (string, error) {
	if client.Name == "" {
		return "", ErrClientNameEmpty
	}
	if client.ClientID == "" {
		client.ClientID = uuid.NewString()
	}
	var secret string
	if !client.Public {
		var err error
		secret, err = common.GenerateSecret(params.ClientSecretLength)
		if err != nil {
			return "", err
		}
		hash, err := bcrypt.GenerateFromPassword([]byte(secret), bcrypt.DefaultCost)
		if err != nil {
			return "", err
		}
		client.SecretHash = string(hash)
	}
	if err := r.repo.Create(ctx, client); err != nil {
		return "", err
	}
	return secret, nil
}

func NewRegistry(repo ClientRepository) *Registry {
	return &Registry{repo: repo}
}
