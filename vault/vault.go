// Package vault reads BMC credentials from a secret store.
package vault

import (
	"context"
	"fmt"
)

// Client reads a username and password stored under a secret path.
type Client interface {
	GetCredentials(ctx context.Context, path string) (username string, password string, err error)
}

// NewClient returns the Client for vaultType. Only "hashicorp" is supported.
func NewClient(vaultType, address, tokenFile string) (Client, error) {
	switch vaultType {
	case "hashicorp":
		return NewHashiCorpVaultClient(address, tokenFile)
	default:
		return nil, fmt.Errorf("unsupported vault type: %s", vaultType)
	}
}
