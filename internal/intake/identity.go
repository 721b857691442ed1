// Watchlog Intake - OCR Watch History Extraction Service
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/watchlog-intake

package intake

import (
	"strings"

	"github.com/golang-jwt/jwt/v5"

	"github.com/tomtom215/watchlog-intake/internal/metrics"
)

// Identity is the hashed rate-limit identity for one request. Raw
// identifiers never leave this function unhashed.
type Identity struct {
	// Identifier is the bucket key for rate limiting.
	Identifier string
	UserHash   string
	StarHash   string
	// Method is "star", "user", or "anonymous".
	Method string
}

// ResolveIdentity picks the strongest available identifier: an explicit
// star ID wins, then an explicit user ID, then the subject of a bearer
// token, and finally the request ID so anonymous callers get a per-request
// bucket instead of sharing one.
//
// The bearer token is decoded without signature verification: the identity
// only scopes rate limiting, it grants nothing.
func ResolveIdentity(req Request, authHeader, requestID string) Identity {
	if starID := strings.TrimSpace(req.StarID); starID != "" {
		hash := metrics.HashIdentifier("star:" + starID)
		return Identity{Identifier: hash, StarHash: hash, Method: "star"}
	}

	userID := strings.TrimSpace(req.UserID)
	if userID == "" {
		userID = subjectFromAuthHeader(authHeader)
	}
	if userID != "" {
		hash := metrics.HashIdentifier("user:" + userID)
		return Identity{Identifier: hash, UserHash: hash, Method: "user"}
	}

	return Identity{
		Identifier: metrics.HashIdentifier("anonymous:" + requestID),
		Method:     "anonymous",
	}
}

// subjectFromAuthHeader extracts the sub or user_id claim from a bearer
// token. Any malformed header or token yields "" and the caller falls
// through to the anonymous identity.
func subjectFromAuthHeader(header string) string {
	scheme, token, found := strings.Cut(strings.TrimSpace(header), " ")
	if !found || !strings.EqualFold(scheme, "Bearer") {
		return ""
	}
	token = strings.TrimSpace(token)
	if token == "" {
		return ""
	}

	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return ""
	}
	if sub, ok := claims["sub"].(string); ok && sub != "" {
		return sub
	}
	if uid, ok := claims["user_id"].(string); ok && uid != "" {
		return uid
	}
	return ""
}
