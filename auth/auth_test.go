package auth

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestVerifyDownloadLinkAcceptsOwnSignature(t *testing.T) {
	svc := &Service{linkSecret: []byte("topsecret")}
	exp := time.Now().Add(linkTTL)

	sig := svc.SignDownload("share123", "user1", exp)
	assert.True(t, svc.VerifyDownloadLink("share123", "user1", exp, sig))
}

func TestVerifyDownloadLinkRejectsTamperedShareID(t *testing.T) {
	svc := &Service{linkSecret: []byte("topsecret")}
	exp := time.Now().Add(linkTTL)

	sig := svc.SignDownload("share123", "user1", exp)
	assert.False(t, svc.VerifyDownloadLink("share999", "user1", exp, sig))
}

func TestVerifyDownloadLinkRejectsExpiredLink(t *testing.T) {
	svc := &Service{linkSecret: []byte("topsecret")}
	exp := time.Now().Add(-time.Second)

	sig := svc.SignDownload("share123", "user1", exp)
	assert.False(t, svc.VerifyDownloadLink("share123", "user1", exp, sig))
}

func TestGenerateTokenProducesDistinctValues(t *testing.T) {
	a := generateToken(32)
	b := generateToken(32)
	assert.NotEqual(t, a, b)
	assert.NotEmpty(t, a)
}
