package api

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/samvad-hq/samvad-briefing/internal/briefing"
)

// generateRequest is the POST /api/v1/briefings body. Pointer flags default to true.
type generateRequest struct {
	Date     string   `json:"date"`
	Sources  []string `json:"sources"`
	Limit    int      `json:"limit"`
	UseCache *bool    `json:"use_cache"`
	Persist  *bool    `json:"persist"`
}

func (r generateRequest) toRequest() briefing.Request {
	return briefing.Request{
		Date:     r.Date,
		Sources:  r.Sources,
		Limit:    r.Limit,
		UseCache: r.UseCache == nil || *r.UseCache,
		Persist:  r.Persist == nil || *r.Persist,
	}
}

type errorBody struct {
	Error string `json:"error"`
}

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (s *Server) handleLatest(c *gin.Context) {
	b, found, err := s.svc.GetLatest(c.Request.Context())
	if err != nil {
		s.fail(c, err)
		return
	}
	if !found {
		c.JSON(http.StatusNotFound, errorBody{Error: "no briefing available"})
		return
	}
	c.JSON(http.StatusOK, b)
}

func (s *Server) handleByDate(c *gin.Context) {
	date := c.Param("date")
	b, found, err := s.svc.GetByDate(c.Request.Context(), date)
	if err != nil {
		s.fail(c, err)
		return
	}
	if !found {
		c.JSON(http.StatusNotFound, errorBody{Error: "no briefing for " + date})
		return
	}
	c.JSON(http.StatusOK, b)
}

func (s *Server) handleList(c *gin.Context) {
	limit, err := strconv.Atoi(c.DefaultQuery("limit", "20"))
	if err != nil {
		c.JSON(http.StatusBadRequest, errorBody{Error: "limit must be an integer"})
		return
	}
	offset, err := strconv.Atoi(c.DefaultQuery("offset", "0"))
	if err != nil {
		c.JSON(http.StatusBadRequest, errorBody{Error: "offset must be an integer"})
		return
	}

	items, err := s.svc.ListBriefings(c.Request.Context(), limit, offset)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"items":  items,
		"count":  len(items),
		"limit":  limit,
		"offset": offset,
	})
}

func (s *Server) handleGenerate(c *gin.Context) {
	var body generateRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&body); err != nil {
			c.JSON(http.StatusBadRequest, errorBody{Error: "invalid request body: " + err.Error()})
			return
		}
	}

	res, err := s.svc.Generate(c.Request.Context(), body.toRequest())
	if err != nil {
		s.fail(c, err)
		return
	}
	status := http.StatusOK
	switch res.Status {
	case briefing.StatusGenerated:
		status = http.StatusCreated
	case briefing.StatusSkipped:
		status = http.StatusConflict
	}
	c.JSON(status, res)
}

// fail maps validation errors to 400 and everything else to 500.
func (s *Server) fail(c *gin.Context, err error) {
	var verr *briefing.ValidationError
	if errors.As(err, &verr) {
		c.JSON(http.StatusBadRequest, errorBody{Error: err.Error()})
		return
	}
	s.log.ErrorObj("api request failed", "api_error", map[string]any{
		"path":  c.FullPath(),
		"error": err.Error(),
	})
	c.JSON(http.StatusInternalServerError, errorBody{Error: "internal error"})
}
