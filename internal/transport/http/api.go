package http

import (
	"context"
	"net/http"
	"strconv"

	"challenge-service/internal/app"
	"challenge-service/internal/domain"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// UserHeader carries the acting user. Authentication happens upstream.
const UserHeader = "X-User-ID"

// API exposes the challenge use cases over REST.
type API struct {
	service *app.ChallengeService
	logger  *zap.Logger
}

func NewAPI(service *app.ChallengeService, logger *zap.Logger) *API {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &API{service: service, logger: logger}
}

// Register mounts the challenge routes on r.
func (a *API) Register(r gin.IRouter) {
	challenges := r.Group("/challenges", requireUser())
	challenges.POST("", a.create)
	challenges.GET("/:id", a.get)
	challenges.POST("/:id/accept", a.accept)
	challenges.POST("/:id/decline", a.decline)
	challenges.POST("/:id/cancel", a.cancel)
	challenges.POST("/:id/ready", a.ready)
	challenges.POST("/:id/answers", a.answer)
	challenges.POST("/:id/rematch", a.rematch)

	users := r.Group("/users", requireUser())
	users.GET("/:userId/challenges", a.listForUser)
}

type createRequest struct {
	Type       string `json:"type" binding:"required"`
	OpponentID string `json:"opponentId"`
}

type createResponse struct {
	domain.ChallengeView
	Searching bool `json:"searching"`
}

type answerRequest struct {
	QuestionID string `json:"questionId" binding:"required"`
	Choice     string `json:"choice" binding:"required"`
}

func (a *API) create(c *gin.Context) {
	var req createRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error(), "kind": domain.KindInput.String()})
		return
	}
	res, err := a.service.Create(c.Request.Context(), app.CreateRequest{
		ChallengerID: actor(c),
		OpponentID:   req.OpponentID,
		Type:         req.Type,
	})
	if err != nil {
		a.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, createResponse{ChallengeView: res.View, Searching: res.Searching})
}

func (a *API) get(c *gin.Context) {
	view, err := a.service.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		a.fail(c, err)
		return
	}
	if !view.Challenge.IsParticipant(actor(c)) {
		a.fail(c, domain.ErrNotParticipant)
		return
	}
	c.JSON(http.StatusOK, view)
}

func (a *API) listForUser(c *gin.Context) {
	if c.Param("userId") != actor(c) {
		a.fail(c, domain.ErrNotParticipant)
		return
	}
	limit, _ := strconv.Atoi(c.Query("limit"))
	list, err := a.service.ListForUser(c.Request.Context(), c.Param("userId"), limit)
	if err != nil {
		a.fail(c, err)
		return
	}
	if list == nil {
		list = []domain.Challenge{}
	}
	c.JSON(http.StatusOK, gin.H{"challenges": list})
}

func (a *API) accept(c *gin.Context) {
	a.transition(c, a.service.Accept)
}

func (a *API) decline(c *gin.Context) {
	a.transition(c, a.service.Decline)
}

func (a *API) cancel(c *gin.Context) {
	a.transition(c, a.service.Cancel)
}

func (a *API) transition(c *gin.Context, apply func(ctx context.Context, challengeID, actor string) (domain.Challenge, error)) {
	ch, err := apply(c.Request.Context(), c.Param("id"), actor(c))
	if err != nil {
		a.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, ch)
}

func (a *API) ready(c *gin.Context) {
	res, err := a.service.Ready(c.Request.Context(), c.Param("id"), actor(c))
	if err != nil {
		a.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"challenge":      res.Challenge,
		"started":        res.Started,
		"alreadyStarted": res.AlreadyStarted,
	})
}

func (a *API) answer(c *gin.Context) {
	var req answerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error(), "kind": domain.KindInput.String()})
		return
	}
	res, err := a.service.SubmitAnswer(c.Request.Context(), c.Param("id"), actor(c), req.QuestionID, req.Choice)
	if err != nil {
		a.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

func (a *API) rematch(c *gin.Context) {
	res, err := a.service.Rematch(c.Request.Context(), c.Param("id"), actor(c))
	if err != nil {
		a.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, createResponse{ChallengeView: res.View, Searching: res.Searching})
}

func (a *API) fail(c *gin.Context, err error) {
	kind := domain.KindOf(err)
	status := StatusFor(kind)
	if status == http.StatusInternalServerError {
		a.logger.Error("request failed",
			zap.String("method", c.Request.Method),
			zap.String("path", c.FullPath()),
			zap.Error(err),
		)
		c.JSON(status, gin.H{"error": "internal error", "kind": kind.String()})
		return
	}
	c.JSON(status, gin.H{"error": err.Error(), "kind": kind.String()})
}

// StatusFor maps an error kind to an HTTP status code.
func StatusFor(kind domain.Kind) int {
	switch kind {
	case domain.KindTransition, domain.KindPrecondition:
		return http.StatusConflict
	case domain.KindPermission:
		return http.StatusForbidden
	case domain.KindInput:
		return http.StatusBadRequest
	case domain.KindUnavailable:
		return http.StatusUnprocessableEntity
	case domain.KindNotFound:
		return http.StatusNotFound
	}
	return http.StatusInternalServerError
}

func requireUser() gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.GetHeader(UserHeader) == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing " + UserHeader + " header"})
			return
		}
		c.Next()
	}
}

func actor(c *gin.Context) string {
	return c.GetHeader(UserHeader)
}
