package identity

import (
	"crypto/ed25519"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base32"
	"fmt"
	"sync"

	"github.com/sethvargo/go-password/password"
)

// subjectLength is the fixed length of a usenet_subject (spec §3, §4.1).
const subjectLength = 20

var (
	subjectGen     *password.Generator
	subjectGenOnce sync.Once
	subjectGenErr  error
)

// lowercaseSubjectGenerator builds a go-password Generator restricted to
// lowercase Latin letters only, so every character class knob (digits,
// symbols, uppercase) is zeroed out rather than merely unused — the spec's
// "Subject unlinkability" property (§8) requires the whole 20-character
// string to be uniform over exactly that alphabet, not a superset of it.
func lowercaseSubjectGenerator() (*password.Generator, error) {
	subjectGenOnce.Do(func() {
		subjectGen, subjectGenErr = password.NewGenerator(&password.GeneratorInput{
			LowerLetters: "abcdefghijklmnopqrstuvwxyz",
			UpperLetters: "",
			Digits:       "",
			Symbols:      "",
		})
	})
	return subjectGen, subjectGenErr
}

// ObfuscatedSubject returns a fresh 20-character lowercase-letter string
// from a CSPRNG, independent of every other call (spec §4.1, §8).
func ObfuscatedSubject() (string, error) {
	gen, err := lowercaseSubjectGenerator()
	if err != nil {
		return "", fmt.Errorf("identity: build subject generator: %w", err)
	}
	// numDigits=0, numSymbols=0: the character classes are already empty,
	// this just satisfies the Generate signature. allowRepeat=true: spec
	// requires independent uniform samples, not a permutation.
	s, err := gen.Generate(subjectLength, 0, 0, true, true)
	if err != nil {
		return "", fmt.Errorf("identity: generate subject: %w", err)
	}
	return s, nil
}

// ShareID computes the 128-bit share identifier for a folder/share-type
// pair, HMAC-SHA-256 truncated to 128 bits and base32-encoded (spec §4.1).
//
// Grounded on the teacher's storage.BlindIndex, which HMACs a path under
// the master key to get an opaque on-disk slug; here the HMAC key is the
// folder's own Ed25519 seed (via folderSK.Seed()) and the message is the
// share type, so republishing the same type always yields the same id
// while different types never collide.
func ShareID(folderSK ed25519.PrivateKey, shareType string) string {
	mac := hmac.New(sha256.New, folderSK.Seed())
	mac.Write([]byte("uns:share-id:v1:" + shareType))
	sum := mac.Sum(nil)[:16]
	return base32.StdEncoding.WithPadding(base32.NoPadding).EncodeToString(sum)
}
