package aws

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	sdkaws "github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager/types"
)

// ErrSecretNotFound is returned when no secret exists under the given name.
var ErrSecretNotFound = errors.New("secret not found")

// SecretGetter resolves a named secret to its string value.
type SecretGetter interface {
	GetSecret(ctx context.Context, name string) (string, error)
}

// SecretsClient reads secrets stored under a common prefix, e.g.
// "checkout/STRIPE_SECRET_KEY". Values are memoized; they are only read at
// startup.
type SecretsClient struct {
	client *secretsmanager.Client
	prefix string

	mu     sync.Mutex
	values map[string]string
}

func NewSecretsClient(cfg sdkaws.Config, prefix string) *SecretsClient {
	return &SecretsClient{
		client: secretsmanager.NewFromConfig(cfg),
		prefix: prefix,
		values: make(map[string]string),
	}
}

func (s *SecretsClient) GetSecret(ctx context.Context, name string) (string, error) {
	id := s.prefix + name

	s.mu.Lock()
	defer s.mu.Unlock()
	if v, ok := s.values[id]; ok {
		return v, nil
	}

	out, err := s.client.GetSecretValue(ctx, &secretsmanager.GetSecretValueInput{SecretId: sdkaws.String(id)})
	if err != nil {
		var missing *types.ResourceNotFoundException
		if errors.As(err, &missing) {
			return "", fmt.Errorf("%s: %w", id, ErrSecretNotFound)
		}
		return "", fmt.Errorf("failed to get secret %s: %w", id, err)
	}
	if out.SecretString == nil {
		return "", fmt.Errorf("secret %s has no string value", id)
	}

	s.values[id] = *out.SecretString
	return *out.SecretString, nil
}

// GetSecretJSON reads a secret holding a flat JSON object of strings.
func GetSecretJSON(ctx context.Context, sm SecretGetter, name string) (map[string]string, error) {
	raw, err := sm.GetSecret(ctx, name)
	if err != nil {
		return nil, err
	}
	var values map[string]string
	if err := json.Unmarshal([]byte(raw), &values); err != nil {
		return nil, fmt.Errorf("secret %s is not a JSON object: %w", name, err)
	}
	return values, nil
}
