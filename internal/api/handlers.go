package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"chatdesk/internal/auth"
	"chatdesk/internal/capture"
	"chatdesk/internal/conversation"
	"chatdesk/internal/models"
	"chatdesk/internal/observability"
	"chatdesk/internal/service/assistant"
)

const maxImportBytes = 64 << 20

// Handler wires HTTP routes to the session store, the send cycle and the
// capture broker.
type Handler struct {
	assistant    *assistant.Service
	conversation *conversation.Controller
	capture      *capture.Broker
	auth         *auth.Service
}

// NewHandler constructs a Handler instance. broker may be nil, which
// disables the capture routes.
func NewHandler(service *assistant.Service, controller *conversation.Controller, broker *capture.Broker, authService *auth.Service) *Handler {
	return &Handler{
		assistant:    service,
		conversation: controller,
		capture:      broker,
		auth:         authService,
	}
}

// RegisterRoutes attaches all HTTP routes to the router.
func (h *Handler) RegisterRoutes(router *gin.Engine) {
	api := router.Group("/api")
	api.Use(requestID())
	api.POST("/session", h.openSession)
	api.DELETE("/session", h.closeSession)

	authed := api.Group("")
	authed.Use(h.auth.Middleware(), h.auth.CSRFMiddleware())
	authed.GET("/state", h.getState)
	authed.GET("/events", h.streamEvents)
	authed.POST("/messages", h.sendMessage)
	authed.POST("/chats/new", h.createNewChat)

	authed.GET("/sessions", h.listSessions)
	authed.GET("/sessions/export", h.exportAllSessions)
	authed.POST("/sessions/import", h.importSessions)
	authed.GET("/sessions/:session_id", h.getSession)
	authed.DELETE("/sessions/:session_id", h.deleteSession)
	authed.POST("/sessions/:session_id/load", h.loadSession)
	authed.POST("/sessions/:session_id/archive", h.archiveSession)
	authed.POST("/sessions/:session_id/unarchive", h.unarchiveSession)
	authed.GET("/sessions/:session_id/export", h.exportSession)

	authed.GET("/settings", h.getSettings)
	authed.PATCH("/settings", h.updateSettings)
	authed.POST("/reset", h.reset)

	if h.capture != nil {
		authed.POST("/capture", h.requestCapture)
		authed.GET("/capture/source", h.captureSource)
		authed.POST("/capture/complete", h.completeCapture)
		authed.POST("/capture/cancel", h.cancelCapture)
	}
}

// Session cookies for the desktop window
func (h *Handler) openSession(c *gin.Context) {
	var req struct {
		Token string `json:"token"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	if err := h.auth.ValidateToken(req.Token); err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": err.Error()})
		return
	}
	csrf, err := h.auth.IssueCookies(c)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "issue token failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"csrf_token": csrf})
}

func (h *Handler) closeSession(c *gin.Context) {
	h.auth.ClearCookies(c)
	c.Status(http.StatusNoContent)
}

func (h *Handler) stateView(st *models.State) stateView {
	return stateView{
		Settings:         st.Settings,
		Sessions:         newSessionSummaries(st.Sessions),
		Messages:         newMessageViews(st.Messages),
		CurrentSessionID: st.CurrentSessionID,
		IsLoading:        h.conversation.IsLoading(),
		CaptureActive:    h.capture != nil && h.capture.Pending(),
	}
}

func (h *Handler) getState(c *gin.Context) {
	c.JSON(http.StatusOK, h.stateView(h.assistant.Snapshot()))
}

// streamEvents pushes a state snapshot after every committed change.
func (h *Handler) streamEvents(c *gin.Context) {
	sse, ok := newSSEWriter(c)
	if !ok {
		return
	}
	updates, cancel := h.assistant.Subscribe()
	defer cancel()

	if err := sse.send("state", h.stateView(h.assistant.Snapshot())); err != nil {
		return
	}
	ctx := c.Request.Context()
	for {
		select {
		case <-ctx.Done():
			return
		case st, ok := <-updates:
			if !ok {
				return
			}
			if err := sse.send("state", h.stateView(st)); err != nil {
				return
			}
		}
	}
}

type sendRequest struct {
	Text        string              `json:"text"`
	Attachments []models.Attachment `json:"attachments"`
}

// sendMessage runs one send cycle and streams it as SSE: ack once both
// messages exist, stream per fragment, then done or error.
func (h *Handler) sendMessage(c *gin.Context) {
	var req sendRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	var sse *sseWriter
	outcome, err := h.conversation.SendMessage(c.Request.Context(), conversation.SendRequest{
		Text:        req.Text,
		Attachments: req.Attachments,
		OnStart: func(user, placeholder models.Message) {
			w, ok := newSSEWriter(c)
			if !ok {
				return
			}
			sse = w
			_ = sse.send("ack", gin.H{
				"user_message":      newMessageView(user),
				"assistant_message": newMessageView(placeholder),
				"session_id":        h.assistant.CurrentSessionID(),
			})
		},
		OnDelta: func(delta, content string) error {
			if sse == nil {
				return nil
			}
			view := newMessageView(models.Message{Role: models.RoleAssistant, Content: content})
			return sse.send("stream", gin.H{
				"delta":    delta,
				"content":  view.Content,
				"thought":  view.Thought,
				"thinking": view.Thinking,
			})
		},
	})

	switch {
	case errors.Is(err, conversation.ErrEmptySubmission):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	case errors.Is(err, conversation.ErrBusy):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
		return
	}
	if sse == nil {
		// failed before the stream opened
		if c.Writer.Written() {
			return
		}
		payload := gin.H{"error": errorString(err)}
		if outcome != nil && outcome.Error != nil {
			payload["error_message"] = newMessageView(*outcome.Error)
		}
		c.JSON(http.StatusInternalServerError, payload)
		return
	}
	if err != nil {
		observability.LoggerFromContext(c.Request.Context()).Warn("send cycle failed", "err", err)
		payload := gin.H{"message": err.Error()}
		if outcome.Error != nil {
			payload["error_message"] = newMessageView(*outcome.Error)
		}
		payload["assistant_message"] = newMessageView(outcome.Placeholder)
		_ = sse.send("error", payload)
		return
	}
	_ = sse.send("done", gin.H{
		"assistant_message": newMessageView(outcome.Placeholder),
		"title":             h.currentTitle(),
	})
}

func (h *Handler) currentTitle() string {
	session, err := h.assistant.Session(h.assistant.CurrentSessionID())
	if err != nil {
		return ""
	}
	return session.DisplayTitle()
}

func errorString(err error) string {
	if err == nil {
		return "unknown error"
	}
	return err.Error()
}

func (h *Handler) createNewChat(c *gin.Context) {
	err := h.conversation.Exclusive(func() error {
		return h.assistant.CreateNewChat(c.Request.Context())
	})
	if err != nil {
		writeStoreError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"currentSessionId": h.assistant.CurrentSessionID()})
}

func (h *Handler) listSessions(c *gin.Context) {
	sessions := h.assistant.Sessions()
	if raw := c.Query("archived"); raw != "" {
		want, err := strconv.ParseBool(raw)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid archived filter"})
			return
		}
		filtered := sessions[:0]
		for _, s := range sessions {
			if s.Archived == want {
				filtered = append(filtered, s)
			}
		}
		sessions = filtered
	}
	c.JSON(http.StatusOK, gin.H{"sessions": newSessionSummaries(sessions)})
}

func (h *Handler) getSession(c *gin.Context) {
	session, err := h.assistant.Session(c.Param("session_id"))
	if err != nil {
		writeStoreError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"id":       session.ID,
		"title":    session.DisplayTitle(),
		"date":     session.Date,
		"archived": session.Archived,
		"messages": newMessageViews(session.Messages),
	})
}

func (h *Handler) loadSession(c *gin.Context) {
	h.sessionAction(c, h.exclusive(h.assistant.LoadSession))
}

func (h *Handler) deleteSession(c *gin.Context) {
	h.sessionAction(c, h.exclusive(h.assistant.DeleteSession))
}

func (h *Handler) archiveSession(c *gin.Context) {
	h.sessionAction(c, h.assistant.ArchiveSession)
}

func (h *Handler) unarchiveSession(c *gin.Context) {
	h.sessionAction(c, h.assistant.UnarchiveSession)
}

func (h *Handler) sessionAction(c *gin.Context, action func(context.Context, string) error) {
	if err := action(c.Request.Context(), c.Param("session_id")); err != nil {
		writeStoreError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// exclusive runs a live-list action only when no response is streaming;
// otherwise it fails with conversation.ErrBusy.
func (h *Handler) exclusive(action func(context.Context, string) error) func(context.Context, string) error {
	return func(ctx context.Context, id string) error {
		return h.conversation.Exclusive(func() error { return action(ctx, id) })
	}
}

func (h *Handler) exportSession(c *gin.Context) {
	out, err := h.assistant.ExportSession(c.Request.Context(), c.Param("session_id"), c.DefaultQuery("format", assistant.FormatMarkdown))
	if err != nil {
		writeStoreError(c, err)
		return
	}
	writeExport(c, out)
}

func (h *Handler) exportAllSessions(c *gin.Context) {
	out, err := h.assistant.ExportAllSessions(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	writeExport(c, out)
}

func writeExport(c *gin.Context, out *assistant.Export) {
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", out.Filename))
	c.Data(http.StatusOK, out.ContentType, out.Content)
}

func (h *Handler) importSessions(c *gin.Context) {
	data, err := io.ReadAll(io.LimitReader(c.Request.Body, maxImportBytes))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "read body failed"})
		return
	}
	var n int
	err = h.conversation.Exclusive(func() error {
		var importErr error
		n, importErr = h.assistant.ImportSessions(c.Request.Context(), data)
		return importErr
	})
	if errors.Is(err, conversation.ErrBusy) {
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
		return
	}
	if err != nil {
		observability.LoggerFromContext(c.Request.Context()).Warn("import sessions failed", "err", err)
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"imported": n})
}

func (h *Handler) getSettings(c *gin.Context) {
	c.JSON(http.StatusOK, h.assistant.Settings())
}

func (h *Handler) updateSettings(c *gin.Context) {
	var patch models.SettingsPatch
	if err := c.ShouldBindJSON(&patch); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	settings, err := h.assistant.UpdateSettings(c.Request.Context(), patch)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, settings)
}

func (h *Handler) reset(c *gin.Context) {
	err := h.conversation.Exclusive(func() error {
		return h.assistant.Reset(c.Request.Context())
	})
	if err != nil {
		writeStoreError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// requestCapture blocks until the overlay completes or cancels.
func (h *Handler) requestCapture(c *gin.Context) {
	att, err := h.capture.Request(c.Request.Context())
	switch {
	case err == nil:
		c.JSON(http.StatusOK, gin.H{"attachment": att})
	case errors.Is(err, capture.ErrCancelled):
		c.JSON(http.StatusOK, gin.H{"cancelled": true})
	case errors.Is(err, capture.ErrCaptureBusy):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	default:
		observability.LoggerFromContext(c.Request.Context()).Warn("screen capture failed", "err", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
	}
}

func (h *Handler) captureSource(c *gin.Context) {
	src, err := h.capture.Source()
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"image": src})
}

func (h *Handler) completeCapture(c *gin.Context) {
	var req struct {
		Image string `json:"image"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	if err := h.capture.Complete(req.Image); err != nil {
		status := http.StatusBadRequest
		if errors.Is(err, capture.ErrNoCapture) {
			status = http.StatusNotFound
		}
		c.JSON(status, gin.H{"error": err.Error()})
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *Handler) cancelCapture(c *gin.Context) {
	if err := h.capture.Cancel(); err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}
	c.Status(http.StatusNoContent)
}

func writeStoreError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, assistant.ErrSessionNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "session not found"})
	case errors.Is(err, conversation.ErrBusy):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	default:
		observability.LoggerFromContext(c.Request.Context()).Error("store operation failed", "path", c.FullPath(), "err", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
	}
}

// sseWriter frames server-sent events on a gin response.
type sseWriter struct {
	c       *gin.Context
	flusher http.Flusher
}

func newSSEWriter(c *gin.Context) (*sseWriter, bool) {
	flusher, ok := c.Writer.(http.Flusher)
	if !ok {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "streaming not supported"})
		return nil, false
	}
	c.Writer.Header().Set("Content-Type", "text/event-stream")
	c.Writer.Header().Set("Cache-Control", "no-cache")
	c.Writer.Header().Set("Connection", "keep-alive")
	c.Writer.Header().Set("X-Accel-Buffering", "no")
	c.Status(http.StatusOK)
	return &sseWriter{c: c, flusher: flusher}, true
}

func (w *sseWriter) send(event string, payload interface{}) error {
	var data []byte
	switch v := payload.(type) {
	case string:
		data = []byte(v)
	default:
		var err error
		data, err = json.Marshal(v)
		if err != nil {
			return err
		}
	}
	if event != "" {
		if _, err := fmt.Fprintf(w.c.Writer, "event: %s\n", event); err != nil {
			return err
		}
	}
	if _, err := fmt.Fprintf(w.c.Writer, "data: %s\n\n", data); err != nil {
		return err
	}
	w.flusher.Flush()
	return nil
}
