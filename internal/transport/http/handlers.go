package http

import (
	"net/http"

	"fanfrenzy/internal/app"
	"fanfrenzy/internal/domain"
	"fanfrenzy/internal/engine"
	"github.com/gin-gonic/gin"
)

type gameQuery struct {
	Team   string `form:"team" binding:"required"`
	Year   string `form:"year" binding:"required"`
	GameID string `form:"gameId" binding:"required"`
	Mode   string `form:"mode" binding:"omitempty,oneof=rewind shuffle"`
}

type gamesQuery struct {
	Team string `form:"team" binding:"required"`
	Year string `form:"year"`
}

// getDaily serves today's challenge. adminDate is the legacy name of the
// date override.
func (s *Server) getDaily(c *gin.Context) {
	date := c.Query("date")
	if date == "" {
		date = c.Query("adminDate")
	}
	content, err := s.svc.Catalog.Daily(c.Request.Context(), date)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, content)
}

func (s *Server) getGame(c *gin.Context) {
	var q gameQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		s.bindFailed(c, err)
		return
	}
	content, err := s.svc.Content.GetOrGenerate(c.Request.Context(), app.ContentRequest{
		Team:   q.Team,
		Year:   q.Year,
		GameID: q.GameID,
		Client: c.ClientIP(),
	})
	if err != nil {
		s.fail(c, err)
		return
	}
	if domain.Mode(q.Mode) == domain.ModeShuffle {
		items, err := engine.ShuffleItems(content)
		if err != nil {
			s.fail(c, err)
			return
		}
		s.rndMu.Lock()
		items = engine.Shuffled(items, s.opts.Rand)
		s.rndMu.Unlock()
		content.Moments = make(domain.Moments, len(items))
		for i, it := range items {
			content.Moments[i] = it
		}
	}
	c.JSON(http.StatusOK, content)
}

func (s *Server) getGames(c *gin.Context) {
	var q gamesQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		s.bindFailed(c, err)
		return
	}
	games, err := s.svc.Catalog.Games(c.Request.Context(), q.Team, q.Year)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, games)
}

func (s *Server) postScore(c *gin.Context) {
	var sub app.Submission
	if err := c.ShouldBindJSON(&sub); err != nil {
		s.bindFailed(c, err)
		return
	}
	rec, created, err := s.svc.Scores.Submit(c.Request.Context(), identityFrom(c), sub)
	if err != nil {
		s.fail(c, err)
		return
	}
	status := http.StatusCreated
	if !created {
		status = http.StatusOK
	}
	c.JSON(status, rec)
}

func (s *Server) getLeaderboard(c *gin.Context) {
	lb, err := s.svc.Scores.Leaderboard(c.Request.Context())
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, lb)
}

func (s *Server) postChallenge(c *gin.Context) {
	var req app.ChallengeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.bindFailed(c, err)
		return
	}
	ch, err := s.svc.Challenges.Submit(c.Request.Context(), identityFrom(c), req)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, ch)
}
