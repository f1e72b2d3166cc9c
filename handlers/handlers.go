// Package handlers is the HTTP binding for the Local Store API (spec
// §6): each route parses request params, calls one system.System method,
// and renders the result as JSON. No domain logic lives here — it all
// lives in system.System.
//
// Grounded on the teacher's UploadHandler/DownloadHandler/ListHandler,
// generalized from raw-file multipart upload/download to the folder and
// share lifecycle (add_folder through download_share).
package handlers

import (
	"crypto/ed25519"
	"encoding/base64"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/rorocorp/uns/auth"
	"github.com/rorocorp/uns/share"
	"github.com/rorocorp/uns/system"
)

// Handlers holds the System every route delegates to and the auth
// Service signed-download-link verification needs.
type Handlers struct {
	sys  *system.System
	auth *auth.Service
	log  *zap.Logger
}

func New(sys *system.System, authSvc *auth.Service, log *zap.Logger) *Handlers {
	if log == nil {
		log = zap.NewNop()
	}
	return &Handlers{sys: sys, auth: authSvc, log: log}
}

func (h *Handlers) fail(c *gin.Context, status int, err error) {
	h.log.Warn("request failed", zap.Int("status", status), zap.Error(err))
	c.JSON(status, gin.H{"error": err.Error()})
}

// AddFolderHandler registers a new folder (spec §6: add_folder).
func (h *Handlers) AddFolderHandler(c *gin.Context) {
	ownerID, _ := c.Get("userid")
	path := c.PostForm("path")
	packing := c.PostForm("packing") == "true"
	if path == "" {
		c.JSON(http.StatusNotAcceptable, gin.H{"error": "path required"})
		return
	}

	folderUniqueID, err := h.sys.AddFolder(c.Request.Context(), toString(ownerID), path, packing)
	if err != nil {
		h.fail(c, http.StatusInternalServerError, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"folder_unique_id": folderUniqueID})
}

// IndexFolderHandler walks a folder's root_path (spec §6: index_folder).
func (h *Handlers) IndexFolderHandler(c *gin.Context) {
	folderUniqueID := c.Param("folder_unique_id")
	filesIndexed, totalSize, err := h.sys.IndexFolder(c.Request.Context(), folderUniqueID)
	if err != nil {
		h.fail(c, http.StatusInternalServerError, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"files_indexed": filesIndexed, "total_size": totalSize})
}

// SegmentFolderHandler segments and encrypts an indexed folder (spec §6:
// segment_folder).
func (h *Handlers) SegmentFolderHandler(c *gin.Context) {
	folderUniqueID := c.Param("folder_unique_id")
	segmentsCreated, err := h.sys.SegmentFolder(c.Request.Context(), folderUniqueID)
	if err != nil {
		h.fail(c, http.StatusInternalServerError, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"segments_created": segmentsCreated})
}

// UploadFolderHandler drains a segmented folder's upload queue (spec §6:
// upload_folder).
func (h *Handlers) UploadFolderHandler(c *gin.Context) {
	folderUniqueID := c.Param("folder_unique_id")
	result, err := h.sys.UploadFolder(c.Request.Context(), folderUniqueID)
	if err != nil {
		h.fail(c, http.StatusInternalServerError, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"completed": result.Completed, "failed": result.Failed})
}

// publishRecipient is one PRIVATE-share recipient as carried over the
// wire: the publisher never sees more than a public key and a ZK point.
type publishRecipient struct {
	UserID        string `json:"user_id"`
	PublicKey     string `json:"public_key"`      // base64
	ZKPublicPoint string `json:"zk_public_point"` // base64
}

type publishRequest struct {
	AccessType string             `json:"access_type"`
	Password   string             `json:"password"`
	Recipients []publishRecipient `json:"recipients"`
}

// parsePublishInput builds a share.PublishInput from the request body.
// PUBLIC and PROTECTED only need access_type (and, for PROTECTED, a
// password); PRIVATE needs a recipient list, so that case always reads
// a JSON body rather than form fields.
func parsePublishInput(c *gin.Context) (share.PublishInput, error) {
	var req publishRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		req.AccessType = c.PostForm("access_type")
		req.Password = c.PostForm("password")
	}

	switch req.AccessType {
	case "PUBLIC", "":
		return share.PublishInput{AccessType: share.AccessPublic}, nil
	case "PROTECTED":
		if req.Password == "" {
			return share.PublishInput{}, fmt.Errorf("password required for PROTECTED share")
		}
		return share.PublishInput{AccessType: share.AccessProtected, Password: req.Password}, nil
	case "PRIVATE":
		recipients := make([]share.PrivateRecipient, 0, len(req.Recipients))
		for _, r := range req.Recipients {
			pk, err := base64.StdEncoding.DecodeString(r.PublicKey)
			if err != nil {
				return share.PublishInput{}, fmt.Errorf("recipient %s: invalid public_key: %w", r.UserID, err)
			}
			zk, err := base64.StdEncoding.DecodeString(r.ZKPublicPoint)
			if err != nil {
				return share.PublishInput{}, fmt.Errorf("recipient %s: invalid zk_public_point: %w", r.UserID, err)
			}
			recipients = append(recipients, share.PrivateRecipient{
				UserID:        r.UserID,
				PublicKey:     ed25519.PublicKey(pk),
				ZKPublicPoint: zk,
			})
		}
		if len(recipients) == 0 {
			return share.PublishInput{}, fmt.Errorf("at least one recipient required for PRIVATE share")
		}
		return share.PublishInput{AccessType: share.AccessPrivate, Recipients: recipients}, nil
	default:
		return share.PublishInput{}, fmt.Errorf("unknown access_type %q", req.AccessType)
	}
}

// PublishFolderHandler builds and stores a new Share (spec §6:
// publish_folder).
func (h *Handlers) PublishFolderHandler(c *gin.Context) {
	folderUniqueID := c.Param("folder_unique_id")

	in, err := parsePublishInput(c)
	if err != nil {
		c.JSON(http.StatusNotAcceptable, gin.H{"error": err.Error()})
		return
	}

	shareID, err := h.sys.PublishFolder(c.Request.Context(), folderUniqueID, in, time.Now().Unix())
	if err != nil {
		h.fail(c, http.StatusInternalServerError, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"share_id": shareID})
}

// ListFoldersHandler lists every folder an owner has registered.
func (h *Handlers) ListFoldersHandler(c *gin.Context) {
	ownerID, _ := c.Get("userid")
	folders, err := h.sys.ListFolders(c.Request.Context(), toString(ownerID))
	if err != nil {
		h.fail(c, http.StatusInternalServerError, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"folders": folders})
}

// GetFolderHandler returns one folder's current state.
func (h *Handlers) GetFolderHandler(c *gin.Context) {
	folderUniqueID := c.Param("folder_unique_id")
	folder, err := h.sys.GetFolder(c.Request.Context(), folderUniqueID)
	if err != nil {
		h.fail(c, http.StatusNotFound, err)
		return
	}
	c.JSON(http.StatusOK, folder)
}

// ResyncFolderHandler reindexes a PUBLISHED folder in place (spec §6:
// resync_folder).
func (h *Handlers) ResyncFolderHandler(c *gin.Context) {
	folderUniqueID := c.Param("folder_unique_id")
	filesIndexed, totalSize, err := h.sys.ResyncFolder(c.Request.Context(), folderUniqueID)
	if err != nil {
		h.fail(c, http.StatusInternalServerError, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"files_indexed": filesIndexed, "total_size": totalSize})
}

// DeleteFolderHandler hard-deletes a folder (spec §6: delete_folder).
func (h *Handlers) DeleteFolderHandler(c *gin.Context) {
	folderUniqueID := c.Param("folder_unique_id")
	if err := h.sys.DeleteFolder(c.Request.Context(), folderUniqueID, c.Query("confirm") == "true"); err != nil {
		h.fail(c, http.StatusInternalServerError, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"deleted": true})
}

// DownloadShareHandler verifies a signed link (if present) or the
// caller's own session, then streams a share's files to dest (spec §6:
// download_share). dest is a server-local staging directory; the HTTP
// surface's job of getting bytes to the actual client is out of scope
// here the same way it was for the teacher's raw-file handlers.
func (h *Handlers) DownloadShareHandler(c *gin.Context) {
	shareID := c.Query("share_id")
	if shareID == "" {
		c.JSON(http.StatusNotAcceptable, gin.H{"error": "share_id required"})
		return
	}

	if sig := c.Query("sig"); sig != "" {
		userID := c.Query("u")
		expUnix, _ := strconv.ParseInt(c.Query("exp"), 10, 64)
		if !h.auth.VerifyDownloadLink(shareID, userID, time.Unix(expUnix, 0), sig) {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid or expired link"})
			return
		}
	} else {
		h.auth.Authorize()(c)
		if c.IsAborted() {
			return
		}
	}

	dest := c.Query("dest")
	if dest == "" {
		c.JSON(http.StatusNotAcceptable, gin.H{"error": "dest required"})
		return
	}

	creds := system.DownloadCredentials{Password: c.Query("password")}
	result, err := h.sys.DownloadShare(c.Request.Context(), shareID, dest, creds)
	if err != nil {
		h.fail(c, http.StatusInternalServerError, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"completed": result.Completed, "failed": result.Failed})
}

func toString(v any) string {
	s, _ := v.(string)
	return s
}
