// SPDX-FileCopyrightText: Copyright 2026 StackMesh, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package oauth provides shared RFC-defined types, constants, and validation
// utilities for OAuth 2.0: the RFC 6749 error envelope, the RFC 8414
// authorization server metadata document, and redirect URI validation per
// RFC 6749 and RFC 8252.
package oauth
