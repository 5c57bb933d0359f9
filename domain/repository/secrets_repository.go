package repository

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager"
	ttlcache "github.com/jellydator/ttlcache/v3"
)

// APNsCredentials is the signing material for APNs provider tokens,
// stored as a JSON secret.
type APNsCredentials struct {
	Key      string `json:"key"`
	KeyID    string `json:"key_id"`
	TeamID   string `json:"team_id"`
	BundleID string `json:"bundle_id"`
}

func (c *APNsCredentials) complete() bool {
	return c.Key != "" && c.KeyID != "" && c.TeamID != "" && c.BundleID != ""
}

type SecretsClient interface {
	GetSecretValue(ctx context.Context, params *secretsmanager.GetSecretValueInput, optFns ...func(*secretsmanager.Options)) (*secretsmanager.GetSecretValueOutput, error)
}

type CredentialRepository interface {
	APNsCredentials(ctx context.Context) (*APNsCredentials, error)
	Flush()
}

const credentialCacheKey = "apns"

// SecretsRepository fetches APNs credentials from Secrets Manager once
// and caches them for the life of the process. Flush drops the cache so
// rotated credentials are picked up without a restart.
type SecretsRepository struct {
	client     SecretsClient
	secretName string
	cache      *ttlcache.Cache[string, *APNsCredentials]
}

func NewSecretsRepository(client SecretsClient, secretName string) *SecretsRepository {
	return &SecretsRepository{
		client:     client,
		secretName: secretName,
		cache:      ttlcache.New[string, *APNsCredentials](),
	}
}

func (r *SecretsRepository) APNsCredentials(ctx context.Context) (*APNsCredentials, error) {
	if item := r.cache.Get(credentialCacheKey); item != nil {
		return item.Value(), nil
	}

	if r.secretName == "" {
		return nil, ErrNotConfigured
	}

	out, err := r.client.GetSecretValue(ctx, &secretsmanager.GetSecretValueInput{
		SecretId: aws.String(r.secretName),
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNotConfigured, err)
	}

	var creds APNsCredentials
	if err := json.Unmarshal([]byte(aws.ToString(out.SecretString)), &creds); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNotConfigured, err)
	}
	if !creds.complete() {
		return nil, ErrNotConfigured
	}

	r.cache.Set(credentialCacheKey, &creds, ttlcache.NoTTL)
	return &creds, nil
}

func (r *SecretsRepository) Flush() {
	r.cache.DeleteAll()
}
