package awsclient

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	sdkaws "github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager/types"
)

// DefaultSecretPrefix namespaces the checkout secrets in Secrets Manager.
const DefaultSecretPrefix = "checkout/"

// Secret names under the prefix.
const (
	SecretDBCredentials = "DB_CREDENTIALS"
	SecretOcto          = "OCTO_SECRET"
	SecretStripeKey     = "STRIPE_SECRET_KEY"
)

var ErrSecretNotFound = errors.New("secret not found")

// SecretValueAPI is the subset of the Secrets Manager client used here.
type SecretValueAPI interface {
	GetSecretValue(ctx context.Context, in *secretsmanager.GetSecretValueInput, optFns ...func(*secretsmanager.Options)) (*secretsmanager.GetSecretValueOutput, error)
}

// DBCredentials is the JSON document stored under DB_CREDENTIALS. Empty
// fields leave the environment value in place.
type DBCredentials struct {
	User     string `json:"POSTGRES_USER"`
	Password string `json:"POSTGRES_PASSWORD"`
	Name     string `json:"POSTGRES_DB"`
	Host     string `json:"POSTGRES_HOST"`
	Port     string `json:"POSTGRES_PORT"`
}

// CheckoutSecrets holds every secret the service can take from Secrets Manager.
// Zero values mean the secret was absent.
type CheckoutSecrets struct {
	DB              DBCredentials
	OctoSecret      string
	StripeSecretKey string
}

type SecretsClient struct {
	api    SecretValueAPI
	prefix string
}

func NewSecretsClient(cfg sdkaws.Config, prefix string) *SecretsClient {
	return NewSecretsClientWithAPI(secretsmanager.NewFromConfig(cfg), prefix)
}

func NewSecretsClientWithAPI(api SecretValueAPI, prefix string) *SecretsClient {
	if prefix == "" {
		prefix = DefaultSecretPrefix
	}
	return &SecretsClient{api: api, prefix: prefix}
}

// GetSecret reads prefix+key. A missing secret yields ErrSecretNotFound.
func (s *SecretsClient) GetSecret(ctx context.Context, key string) (string, error) {
	name := s.prefix + key
	out, err := s.api.GetSecretValue(ctx, &secretsmanager.GetSecretValueInput{SecretId: &name})
	if err != nil {
		var nf *types.ResourceNotFoundException
		if errors.As(err, &nf) {
			return "", fmt.Errorf("%s: %w", name, ErrSecretNotFound)
		}
		return "", fmt.Errorf("failed to get secret %s: %w", name, err)
	}
	if out.SecretString == nil {
		return "", fmt.Errorf("secret %s has no string value", name)
	}
	return *out.SecretString, nil
}

// LoadCheckoutSecrets fetches the DB credentials and gateway keys. Absent
// secrets are skipped; any other failure is returned.
func (s *SecretsClient) LoadCheckoutSecrets(ctx context.Context) (CheckoutSecrets, error) {
	var out CheckoutSecrets

	raw, err := s.optional(ctx, SecretDBCredentials)
	if err != nil {
		return out, err
	}
	if raw != "" {
		if err := json.Unmarshal([]byte(raw), &out.DB); err != nil {
			return out, fmt.Errorf("secret %s%s is not valid JSON: %w", s.prefix, SecretDBCredentials, err)
		}
	}
	if out.OctoSecret, err = s.optional(ctx, SecretOcto); err != nil {
		return out, err
	}
	if out.StripeSecretKey, err = s.optional(ctx, SecretStripeKey); err != nil {
		return out, err
	}
	return out, nil
}

func (s *SecretsClient) optional(ctx context.Context, key string) (string, error) {
	v, err := s.GetSecret(ctx, key)
	if errors.Is(err, ErrSecretNotFound) {
		return "", nil
	}
	return v, err
}
