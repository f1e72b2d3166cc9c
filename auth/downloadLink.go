package auth

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/gin-gonic/gin"
)

// GenerateDownloadLink issues a short-lived HMAC-signed URL for
// share_id, so a download can be handed to another client (a browser tab,
// curl) without exposing the caller's session cookie to it.
func (svc *Service) GenerateDownloadLink(c *gin.Context) {
	userID, _ := c.Get("userid")
	shareID := c.Query("share_id")
	if shareID == "" {
		c.JSON(http.StatusNotAcceptable, gin.H{"error": "share_id required"})
		return
	}

	exp := time.Now().Add(linkTTL)
	sig := svc.SignDownload(shareID, fmt.Sprint(userID), exp)

	link := fmt.Sprintf("/api/shares/download?share_id=%s&u=%s&exp=%d&sig=%s",
		url.QueryEscape(shareID), userID, exp.Unix(), sig)

	c.JSON(http.StatusOK, gin.H{"url": link})
}

// SignDownload computes the HMAC-SHA256 signature a download link's
// query parameters must carry.
func (svc *Service) SignDownload(shareID, userID string, exp time.Time) string {
	message := fmt.Sprintf("%s|%s|%d", shareID, userID, exp.Unix())
	mac := hmac.New(sha256.New, svc.linkSecret)
	mac.Write([]byte(message))
	return hex.EncodeToString(mac.Sum(nil))
}

// VerifyDownloadLink re-derives the signature for (shareID, userID, exp)
// and checks it against sig, rejecting anything past exp.
func (svc *Service) VerifyDownloadLink(shareID, userID string, exp time.Time, sig string) bool {
	if time.Now().After(exp) {
		return false
	}
	want := svc.SignDownload(shareID, userID, exp)
	return hmac.Equal([]byte(want), []byte(sig))
}
