package handlers

import (
	"errors"
	"io"
	"mime/multipart"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/example/lesion-check/internal/analysis"
	"github.com/example/lesion-check/internal/consent"
	"github.com/example/lesion-check/internal/media"
	"github.com/example/lesion-check/internal/notify"
)

// MaxUploadSize bounds a whole multipart request: the image ceiling plus
// room for multipart framing.
const MaxUploadSize = media.DefaultMaxBytes + 1<<20

// FormField is the multipart field holding the image.
const FormField = "file"

// Deps are the collaborators behind the workflow routes.
type Deps struct {
	Orchestrator *analysis.Orchestrator
	Acquirer     *media.Acquirer
	Gate         *consent.Gate
	Camera       media.Camera
	Facing       media.Facing
	Capturer     *media.Capturer
	Notifier     analysis.Notifier
	Inbox        *notify.Inbox
	Logger       *zap.Logger
}

type consentRequest struct {
	Given *bool `json:"given"`
}

// RegisterRoutes wires the workflow handlers to the Gin router.
func RegisterRoutes(router *gin.Engine, d Deps) {
	h := &handler{Deps: d}
	if h.Logger == nil {
		h.Logger = zap.NewNop()
	}
	h.Logger = h.Logger.Named("handlers")

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	router.GET("/state", h.state)
	router.POST("/image", h.selectUpload)
	router.POST("/image/camera", h.selectCamera)
	router.PUT("/consent", h.setConsent)
	router.POST("/analyze", h.analyze)
	router.POST("/reset", h.reset)
	router.GET("/result", h.result)
	router.GET("/notifications", h.notifications)
	router.GET("/metrics", h.metrics)
}

type handler struct {
	Deps
}

func (h *handler) state(c *gin.Context) {
	c.JSON(http.StatusOK, h.Orchestrator.Snapshot())
}

func (h *handler) selectUpload(c *gin.Context) {
	kind := media.SourceKind(c.DefaultQuery("source", string(media.SourceFile)))
	if kind != media.SourceFile && kind != media.SourceDrop {
		c.JSON(http.StatusBadRequest, gin.H{"error": "source must be file or drop"})
		return
	}

	maxBytes := h.Acquirer.MaxBytes()
	limit := maxBytes + 1<<20
	if c.Request.ContentLength > limit {
		h.rejectAcquisition(c, media.ErrTooLarge)
		return
	}
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, limit)
	form, err := c.MultipartForm()
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			h.rejectAcquisition(c, media.ErrTooLarge)
			return
		}
		c.JSON(http.StatusBadRequest, gin.H{"error": "multipart form with an image file is required"})
		return
	}

	var files []media.Candidate
	if headers := form.File[FormField]; len(headers) > 0 {
		cand, err := readCandidate(headers[0], maxBytes)
		if err != nil {
			h.Logger.Warn("failed to read upload", zap.Error(err))
			c.JSON(http.StatusBadRequest, gin.H{"error": "unable to read image"})
			return
		}
		files = append(files, cand)
	}

	var src media.Source = media.FileSource{Files: files}
	if kind == media.SourceDrop {
		src = media.DropSource{Files: files}
	}
	h.acquire(c, src)
}

func (h *handler) selectCamera(c *gin.Context) {
	h.acquire(c, media.CameraSource{Camera: h.Camera, Facing: h.Facing, Capturer: h.Capturer})
}

func (h *handler) acquire(c *gin.Context, src media.Source) {
	asset, err := h.Acquirer.Acquire(c.Request.Context(), src)
	if err != nil {
		h.rejectAcquisition(c, err)
		return
	}
	if err := h.Orchestrator.SelectImage(asset); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, h.Orchestrator.Snapshot())
}

func (h *handler) rejectAcquisition(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, media.ErrInvalidFormat):
		status = http.StatusUnsupportedMediaType
	case errors.Is(err, media.ErrTooLarge):
		status = http.StatusRequestEntityTooLarge
	case errors.Is(err, media.ErrCameraUnavailable):
		status = http.StatusServiceUnavailable
	case errors.Is(err, media.ErrEmptySelection):
		status = http.StatusBadRequest
	}
	if n, ok := notify.ForAcquisitionError(err, h.Acquirer.MaxBytes()); ok && h.Notifier != nil {
		h.Notifier.Notify(n)
	} else if !ok {
		h.Logger.Error("image acquisition failed", zap.Error(err))
	}
	c.JSON(status, gin.H{"error": err.Error()})
}

func (h *handler) setConsent(c *gin.Context) {
	var req consentRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.Given == nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": `body must be {"given": true|false}`})
		return
	}
	h.Gate.Set(*req.Given)
	c.JSON(http.StatusOK, h.Orchestrator.Snapshot())
}

func (h *handler) analyze(c *gin.Context) {
	err := h.Orchestrator.Submit(c.Request.Context())
	switch {
	case errors.Is(err, analysis.ErrNoImage):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	case errors.Is(err, analysis.ErrConsentRequired):
		c.JSON(http.StatusPreconditionFailed, gin.H{"error": err.Error()})
	case err != nil:
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
	default:
		c.JSON(http.StatusAccepted, h.Orchestrator.Snapshot())
	}
}

func (h *handler) reset(c *gin.Context) {
	h.Orchestrator.Reset()
	c.JSON(http.StatusOK, h.Orchestrator.Snapshot())
}

func (h *handler) result(c *gin.Context) {
	snap := h.Orchestrator.Snapshot()
	if snap.Phase != analysis.PhaseComplete || snap.Result == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "no result yet", "phase": snap.Phase})
		return
	}
	c.JSON(http.StatusOK, analysis.Summarize(snap.Result))
}

func (h *handler) notifications(c *gin.Context) {
	if h.Inbox == nil {
		c.JSON(http.StatusOK, []notify.Notification{})
		return
	}
	items := h.Inbox.Recent()
	if c.Query("drain") == "true" {
		items = h.Inbox.Drain()
	}
	if items == nil {
		items = []notify.Notification{}
	}
	c.JSON(http.StatusOK, items)
}

func (h *handler) metrics(c *gin.Context) {
	c.JSON(http.StatusOK, h.Orchestrator.Stats())
}

func readCandidate(fh *multipart.FileHeader, maxBytes int64) (media.Candidate, error) {
	src, err := fh.Open()
	if err != nil {
		return media.Candidate{}, err
	}
	defer src.Close()

	data, err := io.ReadAll(io.LimitReader(src, maxBytes+1))
	if err != nil {
		return media.Candidate{}, err
	}
	return media.Candidate{
		Name:     fh.Filename,
		MIMEType: fh.Header.Get("Content-Type"),
		Data:     data,
	}, nil
}
