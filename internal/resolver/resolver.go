// Package resolver turns a channel name into a playable media URL.
package resolver

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrOffline means the channel has no playable streams.
	ErrOffline = errors.New("resolver: channel offline")
	// ErrNoVariant means streams exist but none match the preference list.
	ErrNoVariant = errors.New("resolver: no preferred variant")
)

// Variant is one quality rendition of a stream.
type Variant struct {
	Name string `json:"name"`
	URL  string `json:"url"`
	Type string `json:"type,omitempty"`
}

// Lister returns the variants currently offered for a channel page, best first.
type Lister interface {
	Streams(ctx context.Context, pageURL string) ([]Variant, error)
}

// Resolve returns the first variant named in prefs, walking prefs in order.
func Resolve(ctx context.Context, l Lister, pageURL string, prefs []string) (Variant, error) {
	variants, err := l.Streams(ctx, pageURL)
	if err != nil {
		return Variant{}, err
	}
	return Choose(variants, prefs)
}

// Choose picks the first preference present in variants.
func Choose(variants []Variant, prefs []string) (Variant, error) {
	if len(variants) == 0 {
		return Variant{}, ErrOffline
	}
	byName := make(map[string]Variant, len(variants))
	for _, v := range variants {
		byName[strings.ToLower(v.Name)] = v
	}
	for _, p := range prefs {
		if v, ok := byName[strings.ToLower(strings.TrimSpace(p))]; ok {
			return v, nil
		}
	}
	names := make([]string, 0, len(variants))
	for _, v := range variants {
		names = append(names, v.Name)
	}
	return Variant{}, fmt.Errorf("%w: wanted %s, have %s", ErrNoVariant,
		strings.Join(prefs, ","), strings.Join(names, ","))
}
