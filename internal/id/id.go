// Package id generates prefixed, URL-safe identifiers.
package id

import (
	"fmt"

	gonanoid "github.com/matoous/go-nanoid/v2"
)

// Prefixes for the entities the server creates.
const (
	PrefixGlobalEvent   = "gev"
	PrefixPersonalEvent = "pev"
	PrefixUser          = "usr"
	PrefixNotification  = "ntf"
	PrefixToken         = "tok"
	PrefixClient        = "cli"
	PrefixSubscription  = "sub"
	PrefixImportRun     = "imp"
)

// Generate returns prefix + "-" + a 21 character NanoID,
// e.g. "gev-V1StGXR8_Z5jdHi6B-myT".
func Generate(prefix string) (string, error) {
	nid, err := gonanoid.New()
	if err != nil {
		return "", fmt.Errorf("generate nanoid: %w", err)
	}
	return prefix + "-" + nid, nil
}

// MustGenerate is Generate for callers that cannot recover from an entropy failure.
func MustGenerate(prefix string) string {
	v, err := Generate(prefix)
	if err != nil {
		panic(fmt.Sprintf("failed to generate ID: %v", err))
	}
	return v
}
