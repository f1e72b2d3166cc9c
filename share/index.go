package share

import (
	"encoding/binary"
	"fmt"

	"github.com/rorocorp/uns/internal/uerr"
)

// AccessType is a Share's access_type (spec §3).
type AccessType uint8

const (
	AccessPublic AccessType = iota
	AccessProtected
	AccessPrivate
)

func (a AccessType) String() string {
	switch a {
	case AccessPublic:
		return "PUBLIC"
	case AccessProtected:
		return "PROTECTED"
	case AccessPrivate:
		return "PRIVATE"
	default:
		return "UNKNOWN"
	}
}

// CipherSuite identifies the AEAD/KDF combination the payload was sealed
// under. There is exactly one today; the byte exists so a future suite
// can be introduced without breaking already-published shares.
type CipherSuite uint8

const CipherAES256GCMHKDFSHA256 CipherSuite = 1

const (
	indexMagic   = "UNSI"
	indexVersion = uint16(1)
)

// EncryptedIndex is the wire format of Share.EncryptedIndex (spec §3):
// { magic="UNSI", version=u16, access_type=u8, cipher_suite=u8, payload }.
type EncryptedIndex struct {
	AccessType  AccessType
	CipherSuite CipherSuite
	Payload     []byte // access-type-specific: see marshal/unmarshal below
}

// Marshal serializes an EncryptedIndex to the bytes stored in
// Share.EncryptedIndex.
func (e EncryptedIndex) Marshal() []byte {
	buf := make([]byte, 0, len(indexMagic)+2+1+1+len(e.Payload))
	buf = append(buf, []byte(indexMagic)...)
	var ver [2]byte
	binary.BigEndian.PutUint16(ver[:], indexVersion)
	buf = append(buf, ver[:]...)
	buf = append(buf, byte(e.AccessType), byte(e.CipherSuite))
	buf = append(buf, e.Payload...)
	return buf
}

// UnmarshalEncryptedIndex parses the wire format back into its fields.
func UnmarshalEncryptedIndex(b []byte) (EncryptedIndex, error) {
	const headerLen = 4 + 2 + 1 + 1
	if len(b) < headerLen {
		return EncryptedIndex{}, uerr.New(uerr.KindValidation, "share.UnmarshalEncryptedIndex", "index too short")
	}
	if string(b[:4]) != indexMagic {
		return EncryptedIndex{}, uerr.New(uerr.KindValidation, "share.UnmarshalEncryptedIndex", "bad magic")
	}
	version := binary.BigEndian.Uint16(b[4:6])
	if version != indexVersion {
		return EncryptedIndex{}, uerr.New(uerr.KindValidation, "share.UnmarshalEncryptedIndex",
			fmt.Sprintf("unsupported index version %d", version))
	}
	return EncryptedIndex{
		AccessType:  AccessType(b[6]),
		CipherSuite: CipherSuite(b[7]),
		Payload:     append([]byte(nil), b[headerLen:]...),
	}, nil
}
