// Package secrets resolves credentials at process start.
package secrets

import (
	"context"
	"fmt"
	"strings"

	secretmanager "cloud.google.com/go/secretmanager/apiv1"
	"cloud.google.com/go/secretmanager/apiv1/secretmanagerpb"
)

// Store fetches named secrets. Used once at startup for the price
// provider key and the brokerage token.
type Store interface {
	Secret(ctx context.Context, name string) (string, error)
}

// GCPStore reads secrets from Google Secret Manager.
type GCPStore struct {
	client    *secretmanager.Client
	projectID string
}

func NewGCPStore(ctx context.Context, projectID string) (*GCPStore, error) {
	client, err := secretmanager.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to create secretmanager client: %w", err)
	}
	return &GCPStore{client: client, projectID: projectID}, nil
}

func (g *GCPStore) Secret(ctx context.Context, name string) (string, error) {
	resource := fmt.Sprintf("projects/%s/secrets/%s/versions/latest", g.projectID, name)

	result, err := g.client.AccessSecretVersion(ctx, &secretmanagerpb.AccessSecretVersionRequest{
		Name: resource,
	})
	if err != nil {
		return "", fmt.Errorf("failed to access secret %s: %w", name, err)
	}

	return strings.TrimSpace(string(result.Payload.Data)), nil
}

func (g *GCPStore) Close() error {
	return g.client.Close()
}
