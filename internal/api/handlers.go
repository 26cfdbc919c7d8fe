package api

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/ppiankov/scrapenet/internal/model"
	"github.com/ppiankov/scrapenet/internal/trust"
)

const (
	defaultRoundLimit = 20
	maxRoundLimit     = 200
)

func handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (s *Server) handleStatus(c *gin.Context) {
	c.JSON(http.StatusOK, s.status.Status())
}

// handleTrust returns the trust vector and the weights a commit would submit
func (s *Server) handleTrust(c *gin.Context) {
	st := s.status.Status()
	v := trust.Vector(st.Trust)
	c.JSON(http.StatusOK, gin.H{
		"block":             st.Block,
		"last_commit_block": st.LastCommit,
		"trust":             v,
		"weights":           v.Weights(),
	})
}

func (s *Server) handleRounds(c *gin.Context) {
	if s.archive == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "round archive is not enabled"})
		return
	}

	limit := defaultRoundLimit
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "limit must be a positive integer"})
			return
		}
		limit = min(n, maxRoundLimit)
	}

	platform := model.Platform(c.Query("platform"))
	if platform != "" && !platform.Valid() {
		c.JSON(http.StatusBadRequest, gin.H{"error": "unknown platform " + string(platform)})
		return
	}

	rounds, err := s.archive.Recent(c.Request.Context(), platform, limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if rounds == nil {
		rounds = []*model.RoundReport{}
	}
	c.JSON(http.StatusOK, gin.H{"rounds": rounds})
}

// handleRound serves one round by id; "latest" is the last round of the running loop
func (s *Server) handleRound(c *gin.Context) {
	id := c.Param("id")
	if id == "latest" {
		if r := s.status.Status().LastRound; r != nil {
			c.JSON(http.StatusOK, r)
			return
		}
		c.JSON(http.StatusNotFound, gin.H{"error": "no round scored yet"})
		return
	}

	if s.archive == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "round archive is not enabled"})
		return
	}
	r, err := s.archive.Get(c.Request.Context(), id)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if r == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "round not found"})
		return
	}
	c.JSON(http.StatusOK, r)
}
