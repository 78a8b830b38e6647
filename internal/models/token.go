// Pulse - Privacy-Aware Event Analytics Backend
// Copyright 2026 Mate Kadar (kadarmate)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/kadarmate/pulse

package models

import (
	"time"
)

// Token identifies an API consumer and the set of pages it may access.
//
// Tokens are provisioned out-of-band and are read-only to request handling:
// the registry never mutates a record after seeding. The plaintext secret is
// never stored; records are keyed by the SHA-256 of the presented secret.
type Token struct {
	// ID is the hex-encoded SHA-256 of the token secret.
	ID        string    `json:"id"`
	Owner     string    `json:"owner"`
	Pages     []string  `json:"pages"`
	CreatedAt time.Time `json:"created_at"`
}

// HasPage reports whether the token is authorized for the given page.
func (t *Token) HasPage(page string) bool {
	for _, p := range t.Pages {
		if p == page {
			return true
		}
	}
	return false
}

// TokenSeed is one pre-provisioned token record as it appears in the seed
// file loaded at startup. The plaintext secret only exists here; the badger
// registry stores its hash.
type TokenSeed struct {
	Token string   `koanf:"token" json:"token"`
	Owner string   `koanf:"owner" json:"owner"`
	Pages []string `koanf:"pages" json:"pages"`
}
