package downloader

import (
	"encoding/json"
	"os"

	"github.com/rorocorp/uns/internal/uerr"
)

// checkpointSuffix names the sidecar file next to a downloaded file,
// recording which segment indices are already written and how long each
// one's plaintext was, so a restart with the same destination can skip
// them while still recomputing the correct write offset for whatever
// segment comes next (spec §4.8: "resume semantics").
const checkpointSuffix = ".unsckpt"

// checkpoint is one file's resume record, keyed by segment_index. The
// value is the segment's plaintext length rather than a bare bool: on
// resume, offsets for not-yet-fetched segments are the running sum of
// every earlier segment's length, and that sum has to be reconstructable
// without re-fetching the segments already written.
type checkpoint struct {
	Completed map[uint32]int64 `json:"completed"`
}

func loadCheckpoint(path string) (*checkpoint, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return &checkpoint{Completed: map[uint32]int64{}}, nil
		}
		return nil, err
	}
	var c checkpoint
	if err := json.Unmarshal(data, &c); err != nil {
		return nil, uerr.Wrap(uerr.KindIntegrity, "downloader.loadCheckpoint", path, err)
	}
	if c.Completed == nil {
		c.Completed = map[uint32]int64{}
	}
	return &c, nil
}

func (c *checkpoint) save(path string) error {
	data, err := json.Marshal(c)
	if err != nil {
		return err
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}

func (c *checkpoint) done(segmentIndex uint32) (int64, bool) {
	n, ok := c.Completed[segmentIndex]
	return n, ok
}

func (c *checkpoint) markDone(segmentIndex uint32, plaintextLen int64) {
	c.Completed[segmentIndex] = plaintextLen
}

// offsetBefore returns the sum of plaintext lengths for every segment index
// strictly less than upTo, i.e. the byte offset at which upTo itself starts.
func (c *checkpoint) offsetBefore(upTo uint32) int64 {
	var sum int64
	for idx, n := range c.Completed {
		if idx < upTo {
			sum += n
		}
	}
	return sum
}

func checkpointPath(destPath string) string { return destPath + checkpointSuffix }
