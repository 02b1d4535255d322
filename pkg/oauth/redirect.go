// SPDX-FileCopyrightText: Copyright 2026 StackMesh, Inc.
// SPDX-License-Identifier: Apache-2.0

package oauth

import (
	"errors"
	"fmt"
	"net/url"
)

// MaxRedirectURILength bounds redirect URIs to prevent abuse via
// excessively large registration requests.
const MaxRedirectURILength = 2048

// ValidateRedirectURI validates a redirect URI for client registration:
//   - must parse as an absolute URI with scheme, host, and no fragment
//   - https is allowed for any host
//   - http is only allowed for loopback hosts (localhost, 127.0.0.1, [::1])
//     per RFC 8252 Section 7.3
func ValidateRedirectURI(raw string) error {
	if raw == "" {
		return errors.New("redirect URI cannot be empty")
	}
	if len(raw) > MaxRedirectURILength {
		return fmt.Errorf("redirect URI exceeds %d characters", MaxRedirectURILength)
	}

	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("redirect URI is not a valid URI: %w", err)
	}

	if !u.IsAbs() || u.Host == "" {
		return errors.New("redirect URI must be absolute with scheme and host")
	}
	if u.Fragment != "" {
		return errors.New("redirect URI must not contain a fragment")
	}

	switch u.Scheme {
	case "https":
		return nil
	case "http":
		if isLoopbackHost(u.Hostname()) {
			return nil
		}
		return errors.New("http redirect URIs are only allowed for loopback hosts")
	default:
		return fmt.Errorf("unsupported redirect URI scheme %q", u.Scheme)
	}
}

func isLoopbackHost(host string) bool {
	return host == "localhost" || host == "127.0.0.1" || host == "::1"
}
