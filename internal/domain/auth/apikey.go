// Package auth authenticates back-office API keys and checks their scopes.
package auth

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"slices"

	"github.com/go-faster/errors"
)

// ErrUnauthorized is returned for unknown, inactive or malformed keys.
var ErrUnauthorized = errors.New("unauthorized")

// Scope grants access to one group of operations.
type Scope string

const (
	ScopeOrdersRead     Scope = "orders:read"
	ScopeOrdersWrite    Scope = "orders:write"
	ScopeInventoryWrite Scope = "inventory:write"
	ScopeFinanceWrite   Scope = "finance:write"
	ScopeShippingWrite  Scope = "shipping:write"
)

// AllScopes lists every scope, in the order they are documented.
var AllScopes = []Scope{
	ScopeOrdersRead,
	ScopeOrdersWrite,
	ScopeInventoryWrite,
	ScopeFinanceWrite,
	ScopeShippingWrite,
}

// APIKeyInfo holds the identity and permission data for a validated API key.
type APIKeyInfo struct {
	ID      string
	KeyHash string
	Name    string
	Scopes  []string
}

// HasScope reports whether the key was granted s.
func (k *APIKeyInfo) HasScope(s Scope) bool {
	return slices.Contains(k.Scopes, string(s))
}

// Repository provides lookup of API keys by their HMAC hash.
type Repository interface {
	FindByHash(ctx context.Context, hash string) (*APIKeyInfo, error)
}

// Hash returns the hex HMAC-SHA256 of key under pepper, as stored in api_keys.
func Hash(pepper []byte, key string) string {
	return hex.EncodeToString(sum(pepper, key))
}

func sum(pepper []byte, key string) []byte {
	mac := hmac.New(sha256.New, pepper)
	mac.Write([]byte(key))
	return mac.Sum(nil)
}

// Verifier resolves raw API keys to their stored identity.
type Verifier struct {
	keys   Repository
	pepper []byte
}

// NewVerifier creates a Verifier with the given key repository and HMAC pepper.
func NewVerifier(keys Repository, pepper []byte) *Verifier {
	return &Verifier{keys: keys, pepper: pepper}
}

// Verify hashes key, looks it up and compares the stored hash in constant time.
func (v *Verifier) Verify(ctx context.Context, key string) (*APIKeyInfo, error) {
	if key == "" {
		return nil, ErrUnauthorized
	}
	hash := sum(v.pepper, key)

	info, err := v.keys.FindByHash(ctx, hex.EncodeToString(hash))
	if err != nil {
		return nil, errors.Wrap(ErrUnauthorized, err.Error())
	}

	stored, err := hex.DecodeString(info.KeyHash)
	if err != nil || subtle.ConstantTimeCompare(hash, stored) != 1 {
		return nil, ErrUnauthorized
	}
	return info, nil
}

type keyCtx struct{}

// WithKey returns a copy of ctx carrying the authenticated key.
func WithKey(ctx context.Context, k *APIKeyInfo) context.Context {
	return context.WithValue(ctx, keyCtx{}, k)
}

// KeyFrom returns the key stored by WithKey, or nil.
func KeyFrom(ctx context.Context) *APIKeyInfo {
	k, _ := ctx.Value(keyCtx{}).(*APIKeyInfo)
	return k
}
