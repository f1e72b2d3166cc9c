package handlers

import (
	"bytes"
	"encoding/base64"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rorocorp/uns/share"
)

// System methods and gin route wiring all need a live store/NNTP pool;
// what parsePublishInput does to a request body is pure and worth
// covering directly.

func ginContextWithJSON(body []byte) *gin.Context {
	gin.SetMode(gin.TestMode)
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(http.MethodPost, "/folders/x/publish", bytes.NewReader(body))
	c.Request.Header.Set("Content-Type", "application/json")
	return c
}

func TestParsePublishInputDefaultsToPublic(t *testing.T) {
	in, err := parsePublishInput(ginContextWithJSON([]byte(`{}`)))
	require.NoError(t, err)
	assert.Equal(t, share.AccessPublic, in.AccessType)
}

func TestParsePublishInputProtectedRequiresPassword(t *testing.T) {
	_, err := parsePublishInput(ginContextWithJSON([]byte(`{"access_type":"PROTECTED"}`)))
	assert.Error(t, err)

	in, err := parsePublishInput(ginContextWithJSON([]byte(`{"access_type":"PROTECTED","password":"hunter2"}`)))
	require.NoError(t, err)
	assert.Equal(t, share.AccessProtected, in.AccessType)
	assert.Equal(t, "hunter2", in.Password)
}

func TestParsePublishInputPrivateDecodesRecipients(t *testing.T) {
	pk := base64.StdEncoding.EncodeToString(make([]byte, 32))
	zk := base64.StdEncoding.EncodeToString(make([]byte, 32))
	body := []byte(`{"access_type":"PRIVATE","recipients":[{"user_id":"u1","public_key":"` + pk + `","zk_public_point":"` + zk + `"}]}`)

	in, err := parsePublishInput(ginContextWithJSON(body))
	require.NoError(t, err)
	assert.Equal(t, share.AccessPrivate, in.AccessType)
	require.Len(t, in.Recipients, 1)
	assert.Equal(t, "u1", in.Recipients[0].UserID)
}

func TestParsePublishInputPrivateRejectsNoRecipients(t *testing.T) {
	_, err := parsePublishInput(ginContextWithJSON([]byte(`{"access_type":"PRIVATE"}`)))
	assert.Error(t, err)
}

func TestParsePublishInputRejectsUnknownAccessType(t *testing.T) {
	_, err := parsePublishInput(ginContextWithJSON([]byte(`{"access_type":"BOGUS"}`)))
	assert.Error(t, err)
}
