package handler

import (
	"errors"
	"io"
	"io/fs"
	"net/http"
	"os"

	"github.com/gin-gonic/gin"

	appErrors "github.com/noah-isme/activity-points-api/pkg/errors"
	"github.com/noah-isme/activity-points-api/pkg/response"
)

type signedEvidence interface {
	OpenSigned(token string) (*os.File, error)
}

// EvidenceHandler serves locally stored evidence behind signed links.
type EvidenceHandler struct {
	store signedEvidence
}

// NewEvidenceHandler constructs EvidenceHandler.
func NewEvidenceHandler(store signedEvidence) *EvidenceHandler {
	return &EvidenceHandler{store: store}
}

// Download godoc
// @Summary Download complaint evidence through a signed link
// @Tags Evidence
// @Produce octet-stream
// @Param token path string true "Signed token"
// @Success 200 {file} file
// @Failure 403 {object} response.Envelope
// @Router /evidence/{token} [get]
func (h *EvidenceHandler) Download(c *gin.Context) {
	file, err := h.store.OpenSigned(c.Param("token"))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			response.Error(c, appErrors.Clone(appErrors.ErrNotFound, "evidence not found"))
			return
		}
		response.Error(c, appErrors.Wrap(err, appErrors.ErrForbidden.Code, appErrors.ErrForbidden.Status, "evidence link is invalid or expired"))
		return
	}
	defer file.Close() //nolint:errcheck

	info, err := file.Stat()
	if err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to read evidence"))
		return
	}
	head := make([]byte, 512)
	n, _ := io.ReadFull(file, head)
	if _, err := file.Seek(0, io.SeekStart); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to read evidence"))
		return
	}
	c.Header("Cache-Control", "private, max-age=300")
	c.DataFromReader(http.StatusOK, info.Size(), http.DetectContentType(head[:n]), file, nil)
}
