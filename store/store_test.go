package store

import (
	"crypto/ed25519"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// The rest of this package talks to Postgres and is not covered by these
// tests (it needs a live database); what's pure logic is still worth
// covering here without one.

func TestConfigDSNDefaultsSSLModeDisable(t *testing.T) {
	cfg := Config{Host: "db.local", Port: 5432, Database: "uns", User: "uns", Password: "secret"}
	assert.Equal(t, "host=db.local port=5432 user=uns password=secret dbname=uns sslmode=disable", cfg.dsn())
}

func TestConfigDSNRespectsExplicitSSLMode(t *testing.T) {
	cfg := Config{Host: "db.local", Port: 5432, Database: "uns", User: "uns", Password: "secret", SSLMode: "require"}
	assert.Contains(t, cfg.dsn(), "sslmode=require")
}

func TestNewUserIDDeterministicOnPublicKey(t *testing.T) {
	pub, _, err := ed25519.GenerateKey(nil)
	require.NoError(t, err)

	id1 := NewUserID(pub)
	id2 := NewUserID(pub)
	assert.Equal(t, id1, id2)
	assert.Len(t, id1, 64)

	other, _, err := ed25519.GenerateKey(nil)
	require.NoError(t, err)
	assert.NotEqual(t, id1, NewUserID(other))
}

func TestValidTransitionsCoverStateMachine(t *testing.T) {
	// Every non-terminal state in spec §4.3's diagram must have an outgoing
	// edge somewhere in the table, and PUBLISHED must loop back to
	// INDEXING for resync_folder.
	for _, state := range []FolderState{
		StateAdded, StateIndexing, StateIndexed, StateSegmenting,
		StateSegmented, StateUploading, StateUploaded, StatePublishing, StatePublished,
	} {
		_, ok := validTransitions[state]
		assert.True(t, ok, "missing transition table entry for %s", state)
	}
	assert.Contains(t, validTransitions[StatePublished], StateIndexing)
}
