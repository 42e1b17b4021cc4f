// Package workerjob issues and verifies the callback credentials worker
// containers use to reach back into the platform, authorizes their upload
// targets, and applies their completion reports to task records.
package workerjob

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"stevedore/internal/apperrors"
	"stevedore/internal/store"
)

// Token error codes. Both map to 401 externally; the distinction matters
// for worker-agent diagnostics.
const (
	CodeTokenExpired = "TOKEN_EXPIRED"
	CodeTokenInvalid = "TOKEN_INVALID"
)

const (
	tokenTTL         = 30 * time.Minute
	subjectPrefix    = "worker_job:"
	signingAlgorithm = "HS256"
)

// Claims is the payload of a worker job token. AllowedUploads maps folder
// id to the object-key prefixes the worker may upload under.
type Claims struct {
	TaskID         string              `json:"taskId,omitempty"`
	AppIdentifier  string              `json:"appIdentifier"`
	AllowedUploads map[string][]string `json:"allowedUploads,omitempty"`
	jwt.RegisteredClaims
}

// JobID extracts the job id bound into the token subject.
func (c *Claims) JobID() string {
	return strings.TrimPrefix(c.Subject, subjectPrefix)
}

// TokenService signs and verifies worker job tokens.
type TokenService struct {
	secret       []byte
	platformHost string
}

// NewTokenService creates a token service signing with the given shared
// secret and binding tokens to the platform host as audience.
func NewTokenService(secret []byte, platformHost string) *TokenService {
	return &TokenService{secret: secret, platformHost: platformHost}
}

// Mint signs a 30-minute token scoped to exactly one job execution.
func (s *TokenService) Mint(jobID, taskID, appIdentifier string, allowedUploads map[string][]string) (string, error) {
	now := time.Now()
	claims := &Claims{
		TaskID:         taskID,
		AppIdentifier:  appIdentifier,
		AllowedUploads: allowedUploads,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subjectPrefix + jobID,
			Audience:  jwt.ClaimStrings{s.platformHost},
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(tokenTTL)),
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("sign worker job token: %w", err)
	}
	return signed, nil
}

// Verify checks signature, audience, expiry, and that the subject binds the
// token to exactly the expected job id. A valid token presented for a
// different job fails.
func (s *TokenService) Verify(token, expectedJobID string) (*Claims, error) {
	claims := &Claims{}
	_, err := jwt.ParseWithClaims(token, claims,
		func(t *jwt.Token) (any, error) { return s.secret, nil },
		jwt.WithValidMethods([]string{signingAlgorithm}),
		jwt.WithAudience(s.platformHost),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, apperrors.Unauthorized(CodeTokenExpired, "worker job token expired")
		}
		return nil, apperrors.Unauthorized(CodeTokenInvalid, "worker job token invalid")
	}

	if claims.Subject != subjectPrefix+expectedJobID {
		return nil, apperrors.Unauthorized(CodeTokenInvalid, "worker job token not issued for this job")
	}
	return claims, nil
}

// UploadsFromAccessRules projects a task's storage access policy onto the
// token's allowed-uploads claim: only rules granting PUT contribute.
func UploadsFromAccessRules(rules []store.StorageAccessRule) map[string][]string {
	uploads := map[string][]string{}
	for _, rule := range rules {
		for _, method := range rule.Methods {
			if strings.EqualFold(method, "PUT") {
				uploads[rule.FolderID] = append(uploads[rule.FolderID], rule.Prefix)
				break
			}
		}
	}
	if len(uploads) == 0 {
		return nil
	}
	return uploads
}
