package segment

import (
	"encoding/binary"
	"fmt"

	"github.com/rorocorp/uns/identity"
)

// PackEntry is one constituent file inside a packed segment, recording
// where its plaintext lives within the segment's concatenated payload.
type PackEntry struct {
	FileID identity.FileID
	Offset uint64
	Length uint64
}

// PackingHeader is the compact header spec §4.4 step 2 describes:
// "[count, (file_id, offset, length)×count]", prefixed to a packed
// segment's plaintext before encryption so a downloader with only the
// index can slice each constituent file back out.
type PackingHeader struct {
	Entries []PackEntry
}

// Marshal encodes the header as count (u32) followed by count fixed-width
// (file_id, offset, length) triples, each a u64.
func (h PackingHeader) Marshal() []byte {
	buf := make([]byte, 4+len(h.Entries)*24)
	binary.BigEndian.PutUint32(buf[0:4], uint32(len(h.Entries)))
	off := 4
	for _, e := range h.Entries {
		binary.BigEndian.PutUint64(buf[off:off+8], uint64(e.FileID))
		binary.BigEndian.PutUint64(buf[off+8:off+16], e.Offset)
		binary.BigEndian.PutUint64(buf[off+16:off+24], e.Length)
		off += 24
	}
	return buf
}

// HeaderSize returns the byte length Marshal would produce for n entries,
// used by the planner to budget PAYLOAD_MAX correctly.
func HeaderSize(n int) int { return 4 + n*24 }

// UnmarshalPackingHeader decodes a header previously produced by Marshal
// and returns it along with the number of bytes it consumed.
func UnmarshalPackingHeader(b []byte) (PackingHeader, int, error) {
	if len(b) < 4 {
		return PackingHeader{}, 0, fmt.Errorf("segment: packing header truncated")
	}
	count := binary.BigEndian.Uint32(b[0:4])
	need := 4 + int(count)*24
	if len(b) < need {
		return PackingHeader{}, 0, fmt.Errorf("segment: packing header truncated, want %d bytes have %d", need, len(b))
	}
	h := PackingHeader{Entries: make([]PackEntry, count)}
	off := 4
	for i := range h.Entries {
		h.Entries[i] = PackEntry{
			FileID: identity.FileID(binary.BigEndian.Uint64(b[off : off+8])),
			Offset: binary.BigEndian.Uint64(b[off+8 : off+16]),
			Length: binary.BigEndian.Uint64(b[off+16 : off+24]),
		}
		off += 24
	}
	return h, need, nil
}
