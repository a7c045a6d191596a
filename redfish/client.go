// Copyright 2025 The Prometheus Authors
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
// http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package redfish

import (
	"context"
	"crypto/tls"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/stmcginnis/gofish"
)

// Target is the Redfish service to talk to.
type Target struct {
	Host     string
	Username string
	Password string
	// Insecure skips TLS certificate verification.
	Insecure bool
}

// Endpoint returns the service URL, defaulting to https.
func (t Target) Endpoint() string {
	if strings.Contains(t.Host, "://") {
		return t.Host
	}
	return "https://" + t.Host
}

// NewDiscoverFunc connects to target with gofish. Every HTTP request made by
// the returned client, including the later metric queries, is bounded by
// timeout.
func NewDiscoverFunc(target Target, timeout time.Duration) DiscoverFunc {
	return func(ctx context.Context) (*gofish.APIClient, error) {
		dialer := &net.Dialer{
			Timeout:   timeout,
			KeepAlive: 30 * time.Second,
		}
		httpClient := &http.Client{
			Timeout: timeout,
			Transport: &http.Transport{
				DialContext:         dialer.DialContext,
				TLSHandshakeTimeout: timeout,
				TLSClientConfig: &tls.Config{InsecureSkipVerify: target.Insecure}, //nolint:gosec
			},
		}
		config := gofish.ClientConfig{
			HTTPClient: httpClient,
			Endpoint:   target.Endpoint(),
			Username:   target.Username,
			Password:   target.Password,
			Insecure:   target.Insecure,
		}
		// The client keeps the context for all later requests, so it must not
		// carry the per-attempt deadline.
		return gofish.ConnectContext(context.WithoutCancel(ctx), config)
	}
}
