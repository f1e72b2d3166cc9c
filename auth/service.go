// Package auth is the HTTP session layer spec §6 calls an "external
// collaborator": a User's only real credential is its Ed25519 keypair
// (spec §3), so login here is a sign-this-nonce challenge rather than a
// password check, but the session/CSRF/signed-link shape downstream of
// that check is unchanged from the teacher's bcrypt/session code.
//
// Grounded on the teacher's auth/login.go, auth/session.go, auth/utils.go
// and auth/downloadLink.go, generalized from an in-memory
// map[string]Session to store-backed Session/LoginChallenge rows so a
// restart or a second API instance doesn't invalidate every session, and
// from "download a file by its path" to "download a share by its
// share_id".
package auth

import (
	"time"

	"go.uber.org/zap"

	"github.com/rorocorp/uns/store"
	"github.com/rorocorp/uns/system"
)

const (
	sessionTTL   = 24 * time.Hour
	challengeTTL = 2 * time.Minute
	linkTTL      = 30 * time.Second
)

// Service holds every dependency the HTTP auth surface needs: the
// content store for Users/Sessions/LoginChallenges, the System for
// initialize_user, and the secret used to sign download links.
type Service struct {
	store        *store.Store
	sys          *system.System
	linkSecret   []byte
	log          *zap.Logger
	cookieDomain string
}

// New returns an auth Service. linkSecret signs GenerateDownloadLink's
// HMAC and must stay stable across restarts or every outstanding link
// breaks.
func New(st *store.Store, sys *system.System, linkSecret []byte, cookieDomain string, log *zap.Logger) *Service {
	if log == nil {
		log = zap.NewNop()
	}
	return &Service{store: st, sys: sys, linkSecret: linkSecret, log: log, cookieDomain: cookieDomain}
}
