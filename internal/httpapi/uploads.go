package httpapi

import (
	"errors"
	"net/http"
	"strings"

	"callqa/internal/pipeline"
	"callqa/internal/rbac"
	"callqa/internal/uploads"
	"callqa/pkg/logger"

	"github.com/gin-gonic/gin"
)

const audioFormField = "audioFile"

type submitRequest struct {
	AudioRef string `json:"audioRef"`
	AgentID  string `json:"agentId"`
	CallID   string `json:"callId"`
}

// Upload accepts either a multipart audio file or a JSON reference to audio
// stored elsewhere, then runs the pipeline synchronously.
func (h Handlers) Upload(c *gin.Context) {
	log := logger.FromGin(c)

	var req submitRequest
	savedHere := false
	if strings.HasPrefix(c.ContentType(), "multipart/") {
		if h.Uploads == nil {
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "uploads not configured"})
			return
		}
		fh, err := c.FormFile(audioFormField)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "No audio file uploaded"})
			return
		}
		f, err := fh.Open()
		if err != nil {
			log.Error("open uploaded file failed", "err", err)
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "unable to read uploaded file"})
			return
		}
		ref, err := h.Uploads.Save(f, fh.Filename)
		f.Close()
		switch {
		case errors.Is(err, uploads.ErrTooLarge):
			c.AbortWithStatusJSON(http.StatusRequestEntityTooLarge, gin.H{"error": "audio file too large"})
			return
		case errors.Is(err, uploads.ErrEmpty):
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "audio file is empty"})
			return
		case err != nil:
			log.Error("save uploaded file failed", "err", err)
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "unable to store uploaded file"})
			return
		}
		log.Info("audio stored", "audio_ref", ref, "filename", fh.Filename, "size", fh.Size)
		req = submitRequest{AudioRef: ref, AgentID: c.PostForm("agentId"), CallID: c.PostForm("callId")}
		savedHere = true
	} else if err := c.ShouldBindJSON(&req); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}

	if scope := rbac.AgentScope(c); scope != "" {
		switch strings.TrimSpace(req.AgentID) {
		case "":
			req.AgentID = scope
		case scope:
		default:
			h.discard(c, req.AudioRef, savedHere)
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "agents may only submit their own calls"})
			return
		}
	}
	if strings.TrimSpace(req.AgentID) == "" {
		h.discard(c, req.AudioRef, savedHere)
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "agentId is required"})
		return
	}

	res, err := h.Pipeline.ProcessUpload(c.Request.Context(), pipeline.Submission{
		AudioRef: req.AudioRef,
		AgentID:  req.AgentID,
		CallID:   req.CallID,
	})
	if err != nil {
		// Only runs that created a record keep the audio.
		var se *pipeline.StageError
		if !errors.As(err, &se) {
			h.discard(c, req.AudioRef, savedHere)
		}
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

func (h Handlers) discard(c *gin.Context, ref string, savedHere bool) {
	if !savedHere || h.Uploads == nil {
		return
	}
	if err := h.Uploads.Remove(ref); err != nil {
		logger.FromGin(c).Warn("orphaned upload not removed", "audio_ref", ref, "err", err)
	}
}
