// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Holding Console Contributors

package auth

import (
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"strings"

	"github.com/alexedwards/argon2id"
	"github.com/samber/oops"
	"golang.org/x/crypto/bcrypt"
)

// Scheme tags. A stored hash has the form "<tag>:<encoded>".
const (
	SchemeSHA256   = "sha256"
	SchemeArgon2id = "argon2id"
	SchemeBcrypt   = "bcrypt"
)

// OWASP-recommended argon2id parameters.
var argon2Params = &argon2id.Params{
	Memory:      64 * 1024, // 64 MB
	Iterations:  1,
	Parallelism: 4,
	SaltLength:  16,
	KeyLength:   32,
}

// ErrEmptyPassword is returned when attempting to hash an empty password.
var ErrEmptyPassword = oops.Code("AUTH_EMPTY_PASSWORD").Errorf("password cannot be empty")

// ErrMalformedHash is returned by Verify when a stored hash cannot be decoded.
var ErrMalformedHash = errors.New("malformed password hash")

// PasswordHasher provides password hashing and verification.
type PasswordHasher interface {
	// Hash produces a tagged hash of the password.
	Hash(password string) (string, error)

	// Verify checks if the password matches the stored hash.
	// Returns (true, nil) on match, (false, nil) on mismatch, or
	// (false, ErrMalformedHash) when the stored value cannot be decoded.
	Verify(password, stored string) (bool, error)

	// NeedsUpgrade returns true if the stored hash uses a scheme other
	// than the one new hashes are produced with.
	NeedsUpgrade(stored string) bool
}

// scheme hashes and verifies the untagged part of a stored hash.
type scheme interface {
	hash(password string) (string, error)
	verify(password, encoded string) (bool, error)
}

// SchemeHasher implements PasswordHasher over a set of tagged schemes.
type SchemeHasher struct {
	primary     string
	schemes     map[string]scheme
	allowLegacy bool
}

// HasherOption configures a SchemeHasher.
type HasherOption func(*SchemeHasher)

// WithLegacyPlaintext makes untagged stored values verify as plain text.
func WithLegacyPlaintext(allow bool) HasherOption {
	return func(h *SchemeHasher) {
		h.allowLegacy = allow
	}
}

// WithBcryptCost overrides the bcrypt cost factor.
func WithBcryptCost(cost int) HasherOption {
	return func(h *SchemeHasher) {
		h.schemes[SchemeBcrypt] = bcryptScheme{cost: cost}
	}
}

// NewSchemeHasher creates a SchemeHasher producing hashes tagged with primary.
// All known schemes remain available for verification.
func NewSchemeHasher(primary string, opts ...HasherOption) (*SchemeHasher, error) {
	h := &SchemeHasher{
		primary: primary,
		schemes: map[string]scheme{
			SchemeSHA256:   sha256Scheme{},
			SchemeArgon2id: argon2idScheme{},
			SchemeBcrypt:   bcryptScheme{cost: bcrypt.DefaultCost},
		},
		allowLegacy: true,
	}
	for _, opt := range opts {
		opt(h)
	}
	if _, ok := h.schemes[primary]; !ok {
		return nil, oops.Code("AUTH_UNKNOWN_SCHEME").
			With("scheme", primary).
			Errorf("unknown password hash scheme %q", primary)
	}
	return h, nil
}

// Schemes lists the supported scheme tags.
func Schemes() []string {
	return []string{SchemeSHA256, SchemeArgon2id, SchemeBcrypt}
}

// Hash produces a hash of the password tagged with the primary scheme.
func (h *SchemeHasher) Hash(password string) (string, error) {
	if password == "" {
		return "", ErrEmptyPassword
	}
	encoded, err := h.schemes[h.primary].hash(password)
	if err != nil {
		return "", oops.Code(CodeHashFailed).With("scheme", h.primary).Wrap(err)
	}
	return h.primary + ":" + encoded, nil
}

// Verify checks the password against a stored hash. The scheme is chosen by
// the stored tag. Values without a known tag are compared as plain text when
// legacy plaintext is allowed, and never match otherwise.
func (h *SchemeHasher) Verify(password, stored string) (bool, error) {
	if password == "" {
		return false, nil
	}
	if tag, encoded, found := strings.Cut(stored, ":"); found {
		if s, ok := h.schemes[tag]; ok {
			return s.verify(password, encoded)
		}
	}
	if !h.allowLegacy {
		return false, nil
	}
	return subtle.ConstantTimeCompare([]byte(password), []byte(stored)) == 1, nil
}

// NeedsUpgrade returns true if stored is not tagged with the primary scheme.
func (h *SchemeHasher) NeedsUpgrade(stored string) bool {
	return !strings.HasPrefix(stored, h.primary+":")
}

// sha256Scheme is an unsalted hex-encoded SHA-256 digest.
type sha256Scheme struct{}

func (sha256Scheme) hash(password string) (string, error) {
	sum := sha256.Sum256([]byte(password))
	return hex.EncodeToString(sum[:]), nil
}

func (sha256Scheme) verify(password, encoded string) (bool, error) {
	expected, err := hex.DecodeString(encoded)
	if err != nil {
		return false, ErrMalformedHash
	}
	computed := sha256.Sum256([]byte(password))
	// ConstantTimeCompare returns 0 on length mismatch.
	return subtle.ConstantTimeCompare(expected, computed[:]) == 1, nil
}

// argon2idScheme stores the PHC string produced by argon2id.CreateHash.
type argon2idScheme struct{}

func (argon2idScheme) hash(password string) (string, error) {
	encoded, err := argon2id.CreateHash(password, argon2Params)
	if err != nil {
		return "", oops.Code("AUTH_SALT_FAILED").Wrap(err)
	}
	return encoded, nil
}

func (argon2idScheme) verify(password, encoded string) (bool, error) {
	match, err := argon2id.ComparePasswordAndHash(password, encoded)
	if err != nil {
		return false, ErrMalformedHash
	}
	return match, nil
}

// bcryptScheme stores the modular-crypt string produced by bcrypt.
type bcryptScheme struct {
	cost int
}

func (s bcryptScheme) hash(password string) (string, error) {
	encoded, err := bcrypt.GenerateFromPassword([]byte(password), s.cost)
	if errors.Is(err, bcrypt.ErrPasswordTooLong) {
		return "", oops.Code(CodeInvalidInput).Wrap(errors.Join(ErrInvalidInput, err))
	}
	if err != nil {
		return "", err
	}
	return string(encoded), nil
}

func (bcryptScheme) verify(password, encoded string) (bool, error) {
	err := bcrypt.CompareHashAndPassword([]byte(encoded), []byte(password))
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, bcrypt.ErrMismatchedHashAndPassword), errors.Is(err, bcrypt.ErrPasswordTooLong):
		return false, nil
	default:
		return false, ErrMalformedHash
	}
}
