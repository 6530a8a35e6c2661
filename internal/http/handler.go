package http

import (
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"parking-fines-service/internal/config"
	"parking-fines-service/internal/detector"
	"parking-fines-service/internal/domain/fines"
	"parking-fines-service/internal/extraction"
	"parking-fines-service/internal/imaging"
	"parking-fines-service/internal/intrusion"
	"parking-fines-service/internal/service"
	"parking-fines-service/internal/zone"
)

// heartbeatInterval keeps idle event streams open through proxies.
const heartbeatInterval = 25 * time.Second

type Handler struct {
	fineStore *service.FineStore
	zones     *zone.Holder
	detector  detector.Detector
	config    *config.Config
	trigger   TriggerStatus
	log       zerolog.Logger
}

// TriggerStatus reports the extraction trigger's counters on /health.
type TriggerStatus interface {
	Stats() extraction.Stats
	Busy() bool
}

type HandlerOption func(*Handler)

// WithTrigger adds the running trigger's counters to /health.
func WithTrigger(t TriggerStatus) HandlerOption {
	return func(h *Handler) {
		h.trigger = t
	}
}

// NewHandler wires the HTTP surface. det may be nil, in which case still
// image detection answers 503.
func NewHandler(
	fineStore *service.FineStore,
	zones *zone.Holder,
	det detector.Detector,
	cfg *config.Config,
	log zerolog.Logger,
	opts ...HandlerOption,
) *Handler {
	h := &Handler{
		fineStore: fineStore,
		zones:     zones,
		detector:  det,
		config:    cfg,
		log:       log,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

func (h *Handler) Register(r *gin.Engine, authMiddleware gin.HandlerFunc) {
	r.GET("/health", h.health)

	// Public endpoints
	public := r.Group("/api/v1")
	{
		public.GET("/fines", h.listFines)
		public.GET("/fines/export", h.exportFines)
		public.GET("/fines/events", h.streamChanges)
		public.GET("/fines/:id/evidence", h.getEvidence)
		public.GET("/zone", h.getZone)
		public.POST("/detect", h.detectStill)
	}

	// Operator endpoints
	protected := r.Group("/api/v1")
	protected.Use(authMiddleware)
	{
		protected.PATCH("/fines/:id", h.updateFine)
		protected.POST("/fines/:id/pay", h.payFine)
		protected.PUT("/zone", h.putZone)
	}
}

type fineView struct {
	ID          string       `json:"id"`
	Plate       string       `json:"plate"`
	CreatedAt   time.Time    `json:"createdAt"`
	Status      fines.Status `json:"status"`
	HasEvidence bool         `json:"has_evidence"`
	EvidenceURL string       `json:"evidence_url,omitempty"`
}

func newFineView(r fines.FineRecord) fineView {
	v := fineView{
		ID:          r.ID,
		Plate:       r.Plate,
		CreatedAt:   r.CreatedAt,
		Status:      r.Status,
		HasEvidence: len(r.Evidence) > 0,
	}
	if v.HasEvidence {
		v.EvidenceURL = "/api/v1/fines/" + r.ID + "/evidence"
	}
	return v
}

func (h *Handler) listFines(c *gin.Context) {
	records, err := h.fineStore.List(c.Request.Context())
	if err != nil {
		h.handleError(c, err)
		return
	}

	if status := strings.TrimSpace(c.Query("status")); status != "" {
		filtered := records[:0]
		for _, r := range records {
			if string(r.Status) == status {
				filtered = append(filtered, r)
			}
		}
		records = filtered
	}

	total := len(records)
	offset := 0
	if o := c.Query("offset"); o != "" {
		if parsed, err := parseInt(o); err == nil && parsed >= 0 {
			offset = parsed
		}
	}
	if offset > total {
		offset = total
	}
	records = records[offset:]

	if l := c.Query("limit"); l != "" {
		if parsed, err := parseInt(l); err == nil && parsed > 0 && parsed < len(records) {
			records = records[:parsed]
		}
	}

	views := make([]fineView, 0, len(records))
	for _, r := range records {
		views = append(views, newFineView(r))
	}
	c.JSON(http.StatusOK, gin.H{
		"data":  views,
		"total": total,
	})
}

func (h *Handler) exportFines(c *gin.Context) {
	out, err := h.fineStore.ExportCSV(c.Request.Context())
	if err != nil {
		h.handleError(c, err)
		return
	}
	c.Header("Content-Disposition", `attachment; filename="fines.csv"`)
	c.Data(http.StatusOK, "text/csv; charset=utf-8", []byte(out))
}

func (h *Handler) getEvidence(c *gin.Context) {
	rec, err := h.fineStore.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.handleError(c, err)
		return
	}
	if len(rec.Evidence) == 0 {
		c.JSON(http.StatusNotFound, errorResponse("fine has no evidence image"))
		return
	}
	c.Data(http.StatusOK, "image/jpeg", rec.Evidence)
}

type updateFineRequest struct {
	Plate  *string       `json:"plate"`
	Status *fines.Status `json:"status"`
}

func (h *Handler) updateFine(c *gin.Context) {
	var req updateFineRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, errorResponse(err.Error()))
		return
	}

	patch := fines.FinePatch{Status: req.Status}
	if req.Plate != nil {
		plate := strings.ToUpper(strings.TrimSpace(*req.Plate))
		patch.Plate = &plate
	}
	if patch.Empty() {
		c.JSON(http.StatusBadRequest, errorResponse("nothing to update"))
		return
	}

	updated, err := h.fineStore.Update(c.Request.Context(), c.Param("id"), patch)
	if err != nil {
		h.handleError(c, err)
		return
	}
	h.log.Info().
		Str("fine_id", updated.ID).
		Str("operator", c.GetString(operatorKey)).
		Msg("fine edited by operator")
	c.JSON(http.StatusOK, successResponse(newFineView(updated)))
}

func (h *Handler) payFine(c *gin.Context) {
	updated, err := h.fineStore.MarkPaid(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, successResponse(newFineView(updated)))
}

// streamChanges sends a server-sent event for every change to the fine list.
// Events carry no diff; clients re-read GET /fines.
func (h *Handler) streamChanges(c *gin.Context) {
	id := uuid.NewString()
	ch := make(chan service.ChangeEvent, 8)
	if err := h.fineStore.Subscribe(id, ch); err != nil {
		h.handleError(c, err)
		return
	}
	defer h.fineStore.Unsubscribe(id)

	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no")

	c.SSEvent("ready", gin.H{"subscriber": id})
	c.Writer.Flush()

	heartbeat := time.NewTicker(heartbeatInterval)
	defer heartbeat.Stop()

	ctx := c.Request.Context()
	for {
		select {
		case <-ctx.Done():
			return
		case ev := <-ch:
			c.SSEvent(string(ev.Reason), ev)
			c.Writer.Flush()
		case <-heartbeat.C:
			if _, err := io.WriteString(c.Writer, ": ping\n\n"); err != nil {
				return
			}
			c.Writer.Flush()
		}
	}
}

type zoneBody struct {
	Points []fines.Point `json:"points"`
}

func (h *Handler) getZone(c *gin.Context) {
	z := h.zones.Snapshot()
	if z == nil {
		z = fines.Zone{}
	}
	c.JSON(http.StatusOK, successResponse(gin.H{
		"points": z,
		"active": z.Valid(),
	}))
}

func (h *Handler) putZone(c *gin.Context) {
	var body zoneBody
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, errorResponse(err.Error()))
		return
	}
	z := fines.Zone(body.Points)
	if err := zone.Validate(z); err != nil {
		c.JSON(http.StatusBadRequest, errorResponse(err.Error()))
		return
	}

	h.zones.Set(z)
	if h.config.Zone.Persist && h.config.Zone.File != "" {
		if err := zone.SaveFile(h.config.Zone.File, z); err != nil {
			h.log.Error().Err(err).Str("file", h.config.Zone.File).Msg("failed to persist zone")
			c.JSON(http.StatusInternalServerError, errorResponse("internal error"))
			return
		}
	}

	h.log.Info().
		Int("points", len(z)).
		Str("operator", c.GetString(operatorKey)).
		Msg("zone updated")
	c.JSON(http.StatusOK, successResponse(gin.H{
		"points": z,
		"active": z.Valid(),
	}))
}

// detectStill runs detection on an uploaded image and returns the events and
// an annotated copy. Uploaded stills never produce fines.
func (h *Handler) detectStill(c *gin.Context) {
	if h.detector == nil {
		c.JSON(http.StatusServiceUnavailable, errorResponse("detector is not configured"))
		return
	}

	if limit := h.config.HTTP.MaxUploadBytes; limit > 0 {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, limit)
	}
	file, err := c.FormFile("image")
	if err != nil {
		c.JSON(http.StatusBadRequest, errorResponse("image file is required"))
		return
	}
	f, err := file.Open()
	if err != nil {
		c.JSON(http.StatusBadRequest, errorResponse(err.Error()))
		return
	}
	defer f.Close()

	img, err := imaging.Decode(f)
	if err != nil {
		c.JSON(http.StatusBadRequest, errorResponse(err.Error()))
		return
	}

	detections, err := h.detector.Detect(c.Request.Context(), img)
	if err != nil {
		h.log.Error().Err(err).Str("file", file.Filename).Msg("still image detection failed")
		c.JSON(http.StatusBadGateway, errorResponse("detection failed"))
		return
	}

	z := h.zones.Snapshot()
	events := intrusion.Evaluate(z, detections)
	annotated, err := imaging.EncodePNG(imaging.Annotate(img, z, events))
	if err != nil {
		h.handleError(c, err)
		return
	}

	c.JSON(http.StatusOK, successResponse(gin.H{
		"events":     events,
		"intrusions": len(intrusion.Intruding(events)),
		"annotated":  "data:image/png;base64," + base64.StdEncoding.EncodeToString(annotated),
	}))
}

func (h *Handler) handleError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, service.ErrInvalidInput):
		c.JSON(http.StatusBadRequest, errorResponse(err.Error()))
	case errors.Is(err, service.ErrNotFound):
		c.JSON(http.StatusNotFound, errorResponse(err.Error()))
	case errors.Is(err, service.ErrDuplicateID), errors.Is(err, service.ErrSubscriberExists):
		c.JSON(http.StatusConflict, errorResponse(err.Error()))
	default:
		h.log.Error().Err(err).Str("path", c.FullPath()).Msg("handler error")
		c.JSON(http.StatusInternalServerError, errorResponse("internal error"))
	}
}

func successResponse(data interface{}) gin.H {
	return gin.H{
		"data": data,
	}
}

func errorResponse(message string) gin.H {
	return gin.H{
		"error": message,
	}
}

func parseInt(s string) (int, error) {
	n, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil {
		return 0, fmt.Errorf("invalid integer %q: %w", s, err)
	}
	return n, nil
}

func (h *Handler) health(c *gin.Context) {
	body := gin.H{
		"status":   "ok",
		"notifier": h.fineStore.NotifierStats(),
		"detector": h.detector != nil,
	}
	if h.trigger != nil {
		body["trigger"] = gin.H{
			"busy":  h.trigger.Busy(),
			"stats": h.trigger.Stats(),
		}
	}
	c.JSON(http.StatusOK, body)
}
