package usecases

import (
	"fmt"
	"sort"
	"strings"

	"stablepay.backend/internal/domain/entities"
	domainerrors "stablepay.backend/internal/domain/errors"
)

// TokenRegistry maps currency codes to their stable token. It is read-only
// after construction and shared by every flow.
type TokenRegistry struct {
	tokens   map[string]entities.TokenDescriptor
	fallback entities.TokenDescriptor
}

// NewTokenRegistry builds a registry; fallbackCode must be one of tokens.
func NewTokenRegistry(tokens []entities.TokenDescriptor, fallbackCode string) (*TokenRegistry, error) {
	r := &TokenRegistry{tokens: make(map[string]entities.TokenDescriptor, len(tokens))}
	for _, token := range tokens {
		code := strings.ToUpper(strings.TrimSpace(token.CurrencyCode))
		if code == "" {
			return nil, fmt.Errorf("token %s has no currency code", token.ContractAddress)
		}
		if _, exists := r.tokens[code]; exists {
			return nil, fmt.Errorf("currency %s registered twice", code)
		}
		token.CurrencyCode = code
		r.tokens[code] = token
	}

	fallback, ok := r.tokens[strings.ToUpper(strings.TrimSpace(fallbackCode))]
	if !ok {
		return nil, fmt.Errorf("fallback currency %q is not a registered token", fallbackCode)
	}
	r.fallback = fallback
	return r, nil
}

// Resolve looks up a currency code case-insensitively. The "c" prefixed
// names merchants use for Mento tokens (cUSD, cCOP) resolve to the bare code.
func (r *TokenRegistry) Resolve(code string) (entities.TokenDescriptor, error) {
	normalized := strings.ToUpper(strings.TrimSpace(code))
	if token, ok := r.tokens[normalized]; ok {
		return token, nil
	}
	if len(normalized) > 3 && strings.HasPrefix(normalized, "C") {
		if token, ok := r.tokens[normalized[1:]]; ok {
			return token, nil
		}
	}
	return entities.TokenDescriptor{}, fmt.Errorf("%w: %q", domainerrors.ErrUnsupportedToken, code)
}

// Fallback returns the fallback currency token
func (r *TokenRegistry) Fallback() entities.TokenDescriptor {
	return r.fallback
}

// All returns every registered token ordered by currency code
func (r *TokenRegistry) All() []entities.TokenDescriptor {
	out := make([]entities.TokenDescriptor, 0, len(r.tokens))
	for _, token := range r.tokens {
		out = append(out, token)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CurrencyCode < out[j].CurrencyCode })
	return out
}
