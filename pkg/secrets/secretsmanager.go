// Package secrets fetches named secret values from AWS Secrets Manager.
package secrets

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager/types"
	"github.com/partner-addons/addon-publisher/pkg/logger"
)

var (
	// ErrSecretNotFound indicates the backend has no secret under the given name
	ErrSecretNotFound = errors.New("secret not found")
	// ErrSecretMalformed indicates the stored value has no string payload
	ErrSecretMalformed = errors.New("secret has no string value")
)

// Provider is the capability to fetch a named secret's string value
type Provider interface {
	GetSecret(ctx context.Context, name string) (string, error)
}

// secretsManagerAPI is the slice of the Secrets Manager client used here
type secretsManagerAPI interface {
	GetSecretValue(ctx context.Context, params *secretsmanager.GetSecretValueInput, optFns ...func(*secretsmanager.Options)) (*secretsmanager.GetSecretValueOutput, error)
}

// SecretsManager is a Provider backed by AWS Secrets Manager
type SecretsManager struct {
	client secretsManagerAPI
}

// NewSecretsManager builds a SecretsManager using the ambient AWS configuration
func NewSecretsManager(ctx context.Context) (*SecretsManager, error) {
	cfg, err := awsconfig.LoadDefaultConfig(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}
	return &SecretsManager{client: secretsmanager.NewFromConfig(cfg)}, nil
}

// GetSecret retrieves the string value of the named secret.
// The value is returned to the caller only, never logged.
func (s *SecretsManager) GetSecret(ctx context.Context, name string) (string, error) {
	logger.Log(ctx, slog.LevelDebug, "fetching secret", slog.String("name", name))

	result, err := s.client.GetSecretValue(ctx, &secretsmanager.GetSecretValueInput{
		SecretId: aws.String(name),
	})
	if err != nil {
		var notFound *types.ResourceNotFoundException
		if errors.As(err, &notFound) {
			return "", fmt.Errorf("%w: %s", ErrSecretNotFound, name)
		}
		return "", fmt.Errorf("failed to get secret %s: %w", name, err)
	}

	if result.SecretString == nil {
		return "", fmt.Errorf("%w: %s", ErrSecretMalformed, name)
	}

	return *result.SecretString, nil
}
