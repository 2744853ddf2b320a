package api

import (
	"bytes"
	"context"
	stderrors "errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/charmbracelet/log"
	"github.com/gin-gonic/gin"

	"github.com/youruser/collageapp/internal/app"
	"github.com/youruser/collageapp/internal/collage"
	"github.com/youruser/collageapp/internal/errors"
	imagepkg "github.com/youruser/collageapp/internal/image"
	"github.com/youruser/collageapp/internal/layout"
)

// Handler serves the collage API over an App.
type Handler struct {
	app    *app.App
	logger *log.Logger
}

func NewHandler(a *app.App) *Handler {
	return &Handler{app: a, logger: a.Logger}
}

type composeRequest struct {
	Locators []string `json:"locators"`
	Width    int      `json:"width"`
	Height   int      `json:"height"`
}

type templateView struct {
	Count int           `json:"count"`
	Slots []layout.Rect `json:"slots"`
}

type shareView struct {
	Token     string    `json:"token"`
	URL       string    `json:"url"`
	QRURL     string    `json:"qr_url"`
	MIME      string    `json:"mime"`
	ExpiresAt time.Time `json:"expires_at"`
}

// health
func health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// templates lists every supported count with its layout on a unit canvas.
func templates(c *gin.Context) {
	out := make([]templateView, 0, len(layout.Counts()))
	for _, t := range layout.Templates() {
		out = append(out, templateView{Count: t.Count, Slots: t.Layout(1, 1)})
	}
	c.JSON(http.StatusOK, gin.H{"templates": out})
}

// composeOnce composes in one shot and returns the PNG.
func (h *Handler) composeOnce(c *gin.Context) {
	var req composeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, errors.Wrap(errors.ErrCodeInvalidInput, err, "invalid request body"))
		return
	}
	res, err := h.app.Composer.Compose(c.Request.Context(), collage.Request(req))
	if err != nil {
		writeError(c, err)
		return
	}
	writePNG(c, res)
}

func (h *Handler) createSession(c *gin.Context) {
	var req composeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, errors.Wrap(errors.ErrCodeInvalidInput, err, "invalid request body"))
		return
	}
	s, err := h.app.Sessions.Create(req.Locators, req.Width, req.Height)
	if err != nil {
		writeError(c, err)
		return
	}
	h.logger.Info("created session", "id", s.ID, "images", len(req.Locators))
	c.JSON(http.StatusCreated, s.Snapshot())
}

func (h *Handler) getSession(c *gin.Context) {
	s, err := h.app.Sessions.Get(c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, s.Snapshot())
}

func (h *Handler) deleteSession(c *gin.Context) {
	if err := h.app.Sessions.Delete(c.Param("id")); err != nil {
		writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// composeSession restarts loading, optionally with new locators. With
// ?wait=true it answers once the new generation settles.
func (h *Handler) composeSession(c *gin.Context) {
	s, err := h.app.Sessions.Get(c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	var req composeRequest
	if err := c.ShouldBindJSON(&req); err != nil && !stderrors.Is(err, io.EOF) {
		writeError(c, errors.Wrap(errors.ErrCodeInvalidInput, err, "invalid request body"))
		return
	}
	if _, err := s.Retry(req.Locators); err != nil {
		writeError(c, err)
		return
	}

	if wait, _ := strconv.ParseBool(c.Query("wait")); !wait {
		c.JSON(http.StatusAccepted, s.Snapshot())
		return
	}
	snap, err := s.Wait(c.Request.Context())
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, snap)
}

// composed resolves the session and its finished collage.
func (h *Handler) composed(c *gin.Context) (*collage.Result, bool) {
	s, err := h.app.Sessions.Get(c.Param("id"))
	if err != nil {
		writeError(c, err)
		return nil, false
	}
	res, err := s.Result()
	if err != nil {
		writeError(c, err)
		return nil, false
	}
	return res, true
}

func (h *Handler) sessionImage(c *gin.Context) {
	if res, ok := h.composed(c); ok {
		writePNG(c, res)
	}
}

func (h *Handler) saveSession(c *gin.Context) {
	res, ok := h.composed(c)
	if !ok {
		return
	}
	rec, err := h.app.Saver.Save(c.Request.Context(), res.Image)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, rec)
}

func (h *Handler) shareSession(c *gin.Context) {
	res, ok := h.composed(c)
	if !ok {
		return
	}
	sh, err := h.app.Sharer.Share(c.Request.Context(), res.Image)
	if err != nil {
		writeError(c, err)
		return
	}
	url := h.app.Config.ShareURL(sh.Token)
	c.JSON(http.StatusCreated, shareView{
		Token:     sh.Token,
		URL:       url,
		QRURL:     url + "/qr",
		MIME:      sh.MIME,
		ExpiresAt: sh.ExpiresAt,
	})
}

func (h *Handler) getShare(c *gin.Context) {
	sh, err := h.app.Sharer.Open(c.Param("token"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.Header("Content-Type", sh.MIME)
	c.File(sh.Path)
}

// shareQR returns a PNG QR code of the share's public URL.
func (h *Handler) shareQR(c *gin.Context) {
	sh, err := h.app.Sharer.Open(c.Param("token"))
	if err != nil {
		writeError(c, err)
		return
	}
	size := imagepkg.DefaultQRSize
	if v, err := strconv.Atoi(c.Query("size")); err == nil && v > 0 && v <= 2048 {
		size = v
	}
	b, err := imagepkg.GenerateQRPNG(h.app.Config.ShareURL(sh.Token), size)
	if err != nil {
		writeError(c, err)
		return
	}
	c.Data(http.StatusOK, "image/png", b)
}

func writePNG(c *gin.Context, res *collage.Result) {
	buf := new(bytes.Buffer)
	if err := imagepkg.EncodePNG(buf, res.Image); err != nil {
		writeError(c, errors.Wrap(errors.ErrCodeExport, err, "encode collage"))
		return
	}
	c.Data(http.StatusOK, "image/png", buf.Bytes())
}

// statusFor maps an error code to its HTTP status.
func statusFor(err error) int {
	switch errors.GetCode(err) {
	case errors.ErrCodeNoTemplate, errors.ErrCodeCompositionAborted:
		return http.StatusUnprocessableEntity
	case errors.ErrCodeInvalidInput:
		return http.StatusBadRequest
	case errors.ErrCodeNotFound:
		return http.StatusNotFound
	case errors.ErrCodeInvalidState:
		return http.StatusConflict
	}
	if stderrors.Is(err, context.DeadlineExceeded) {
		return http.StatusGatewayTimeout
	}
	return http.StatusInternalServerError
}

func writeError(c *gin.Context, err error) {
	c.AbortWithStatusJSON(statusFor(err), gin.H{
		"code":  errors.GetCode(err),
		"error": errors.UserMessage(err),
	})
}
