// Package identity resolves inbound principals to a tagged author variant.
// The variant is decided once at the transport boundary and carried through;
// downstream code never re-derives it from the raw id.
package identity

import "strings"

// Kind tags the two author variants.
type Kind int

const (
	KindRegistered Kind = iota + 1
	KindAnonymous
)

// Author is the resolved commenter identity. Registered authors have a durable
// profile; anonymous ones carry only a client-minted id.
type Author struct {
	Kind Kind
	ID   string
}

func (a Author) Anonymous() bool {
	return a.Kind == KindAnonymous
}

// Resolver classifies ids using the configured anonymous prefix. The upstream
// auth layer already verified registered principals; this layer trusts that
// resolution and only tells the two shapes apart.
type Resolver struct {
	anonPrefix string
}

func NewResolver(anonPrefix string) *Resolver {
	return &Resolver{anonPrefix: anonPrefix}
}

// Resolve builds the author variant for an inbound submission. The anonymous
// flag comes from the auth layer; an id carrying the anonymous prefix is
// classified anonymous regardless, so a spoofed flag cannot promote a rando.
func (r *Resolver) Resolve(id string, anonymous bool) Author {
	if anonymous || r.KindOf(id) == KindAnonymous {
		return Author{Kind: KindAnonymous, ID: id}
	}
	return Author{Kind: KindRegistered, ID: id}
}

// KindOf classifies an id already in storage.
func (r *Resolver) KindOf(id string) Kind {
	if r.anonPrefix != "" && strings.HasPrefix(id, r.anonPrefix) {
		return KindAnonymous
	}
	return KindRegistered
}
