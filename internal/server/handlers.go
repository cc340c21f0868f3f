package server

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"legal-rag/internal/models"
	"legal-rag/internal/rag"
)

type handler struct {
	uploader Uploader
	asker    Asker
	counter  Counter
}

type uploadResponse struct {
	Message string `json:"message"`
}

type chatResponse struct {
	Answer string `json:"answer"`
}

type errorResponse struct {
	Detail string `json:"detail"`
}

func (h *handler) upload(c *gin.Context) {
	file, header, err := c.Request.FormFile("file")
	if err != nil {
		c.JSON(http.StatusBadRequest, errorResponse{Detail: "Fichier manquant."})
		return
	}
	defer file.Close()

	res, err := h.uploader.IngestUpload(c.Request.Context(), header.Filename, file)
	if err != nil {
		h.fail(c, err)
		return
	}
	log.Info().Interface("result", res).Msg("File added to knowledge base")
	c.JSON(http.StatusOK, uploadResponse{
		Message: fmt.Sprintf("%s added to knowledge base", res.Filename),
	})
}

func (h *handler) chat(c *gin.Context) {
	message, ok := requireMessage(c)
	if !ok {
		return
	}
	res, err := h.asker.Query(c.Request.Context(), message)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, chatResponse{Answer: res.Content})
}

// chatStream writes and flushes each increment as it arrives. The status is
// only committed once the first increment is in, so a provider that fails
// right away still maps to an error status. A later failure can no longer
// change the status: the body ends early and the error is logged.
func (h *handler) chatStream(c *gin.Context) {
	message, ok := requireMessage(c)
	if !ok {
		return
	}
	tokens, err := h.asker.Stream(c.Request.Context(), message)
	if err != nil {
		h.fail(c, err)
		return
	}

	first, ok := <-tokens
	if ok && first.Err != nil {
		h.fail(c, first.Err)
		for range tokens {
		}
		return
	}

	c.Header("Content-Type", "text/plain; charset=utf-8")
	c.Header("Cache-Control", "no-cache")
	c.Header("X-Content-Type-Options", "nosniff")
	c.Status(http.StatusOK)
	c.Writer.WriteHeaderNow()
	if ok {
		writeToken(c, first)
	}
	c.Writer.Flush()

	for tok := range tokens {
		if tok.Err != nil {
			log.Error().Err(tok.Err).Str("message", message).Msg("Stream ended by provider error")
			continue
		}
		writeToken(c, tok)
	}
}

func writeToken(c *gin.Context, tok models.StreamToken) {
	if _, err := c.Writer.WriteString(tok.Content); err != nil {
		log.Debug().Err(err).Msg("Client went away while streaming")
		return
	}
	c.Writer.Flush()
}

func (h *handler) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok", "chunks": h.counter.Count()})
}

func requireMessage(c *gin.Context) (string, bool) {
	message := c.Query("message")
	if message == "" {
		c.JSON(http.StatusBadRequest, errorResponse{Detail: "Le paramètre 'message' est requis."})
		return "", false
	}
	return message, true
}

func (h *handler) fail(c *gin.Context, err error) {
	status := statusFor(err)
	detail := err.Error()
	var verr *models.ValidationError
	if errors.As(err, &verr) {
		detail = verr.Message
	}

	event := log.Error()
	if status < http.StatusInternalServerError || rag.IsCancelled(err) {
		event = log.Warn()
	}
	event.Err(err).Int("status", status).Str("path", c.Request.URL.Path).Msg("Request failed")
	c.JSON(status, errorResponse{Detail: detail})
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, models.ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, models.ErrStoreUnavailable):
		return http.StatusServiceUnavailable
	case errors.Is(err, models.ErrProvider), errors.Is(err, models.ErrGeneration):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
