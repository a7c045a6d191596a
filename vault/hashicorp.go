package vault

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/hashicorp/vault/api"
)

type HashiCorpVaultClient struct {
	client *api.Client
}

// NewHashiCorpVaultClient creates a new Vault client for HashiCorp Vault.
func NewHashiCorpVaultClient(vaultAddress, tokenFile string) (*HashiCorpVaultClient, error) {
	if vaultAddress == "" || tokenFile == "" {
		return nil, errors.New("both vault address and token file are required when using hashicorp vault")
	}

	token, err := os.ReadFile(tokenFile)
	if err != nil {
		return nil, fmt.Errorf("error reading vault token: %w", err)
	}

	config := api.DefaultConfig()
	config.Address = vaultAddress

	client, err := api.NewClient(config)
	if err != nil {
		return nil, err
	}

	client.SetToken(string(bytes.TrimSpace(token)))
	return &HashiCorpVaultClient{client: client}, nil
}

// GetCredentials reads the "username" and "password" keys of the secret at
// path. Both KV version 1 and version 2 (nested "data") secrets are accepted.
func (h *HashiCorpVaultClient) GetCredentials(ctx context.Context, path string) (string, string, error) {
	secret, err := h.client.Logical().ReadWithContext(ctx, path)
	if err != nil {
		return "", "", err
	}

	if secret == nil || secret.Data == nil {
		return "", "", fmt.Errorf("no data found at %s", path)
	}

	data := secret.Data
	if nested, ok := data["data"].(map[string]interface{}); ok {
		data = nested
	}

	username, ok := data["username"].(string)
	if !ok {
		return "", "", fmt.Errorf("username not found at %s", path)
	}

	password, ok := data["password"].(string)
	if !ok {
		return "", "", fmt.Errorf("password not found at %s", path)
	}

	return username, password, nil
}
