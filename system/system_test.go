package system

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rorocorp/uns/identity"
)

// System's methods all require a live store and NNTP pool, so the
// state-machine-safety checks they make through store.RequireState
// (publish_folder refuses anything but UPLOADED, upload_folder refuses
// anything but SEGMENTED) are not exercised here;
// store.TestValidTransitionsCoverStateMachine checks only the transition
// table. What's pure logic here is worth covering without either
// dependency.

func TestMarshalFileIDsEmptyIsEmptyString(t *testing.T) {
	got, err := marshalFileIDs(nil)
	require.NoError(t, err)
	assert.Equal(t, "", got)
}

func TestMarshalFileIDsRoundTripsAsJSONArray(t *testing.T) {
	got, err := marshalFileIDs([]identity.FileID{7, 9})
	require.NoError(t, err)
	assert.JSONEq(t, "[7,9]", got)
}
