package handlers

import (
	"net/http"
	"strconv"

	"luckydraw/internal/models"
	"luckydraw/internal/services"

	"github.com/gin-gonic/gin"
	"github.com/google/logger"
)

// HTTPHandler holds the dependencies for the HTTP handlers, like the lottery service.
type HTTPHandler struct {
	service *services.LotteryService
}

// NewHTTPHandler creates a new HTTPHandler.
func NewHTTPHandler(service *services.LotteryService) *HTTPHandler {
	return &HTTPHandler{service: service}
}

// RegisterRoutes registers all the application routes.
func (h *HTTPHandler) RegisterRoutes(router *gin.Engine) {
	router.GET("/healthz", h.Health)

	api := router.Group("/api")
	api.POST("/draw", h.PerformDraw)

	api.GET("/prizes", h.ListPrizes)
	api.POST("/prizes", h.CreatePrize)
	api.GET("/prizes/:id", h.GetPrize)
	api.PUT("/prizes/:id", h.UpdatePrize)
	api.DELETE("/prizes/:id", h.DeletePrize)

	api.GET("/rounds", h.ListRounds)
	api.POST("/rounds", h.CreateRound)
	api.GET("/rounds/:id", h.GetRound)
	api.PUT("/rounds/:id", h.UpdateRound)
	api.DELETE("/rounds/:id", h.DeleteRound)
	api.POST("/rounds/:id/activate", h.ActivateRound)
	api.GET("/rounds/:id/statistics", h.GetRoundStatistics)
	api.GET("/rounds/:id/availability", h.CheckAvailability)
	api.GET("/rounds/:id/registrants", h.ListRegistrants)
	api.PUT("/rounds/:id/registrants", h.ReplaceRegistrants)
	api.POST("/rounds/:id/registrants/csv", h.UploadRegistrantsCSV)
	api.GET("/rounds/:id/registrants/export", h.ExportRegistrantsCSV)
	api.GET("/registrants/template", h.DownloadRegistrantTemplate)

	api.GET("/winners", h.ListWinners)
	api.GET("/winners/export", h.ExportWinnersCSV)

	api.GET("/settings", h.GetSettings)
	api.PUT("/settings", h.UpdateSettings)
	api.GET("/settings/current-round", h.GetCurrentRound)
}

// Health reports liveness.
func (h *HTTPHandler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

type drawRequest struct {
	RoundID string `json:"roundId" binding:"required"`
	PrizeID string `json:"prizeId" binding:"required"`
}

// PerformDraw draws one winner for a prize of a round.
func (h *HTTPHandler) PerformDraw(c *gin.Context) {
	var req drawRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "roundId and prizeId are required")
		return
	}

	result, err := h.service.Draw(c.Request.Context(), req.RoundID, req.PrizeID)
	if err != nil {
		logger.Infof("Draw rejected for round %s prize %s: %v", req.RoundID, req.PrizeID, err)
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, models.DrawResult{
		Winner:     maskWinner(result.Winner),
		Statistics: maskStatistics(result.Statistics),
	})
}

// GetRoundStatistics returns quota and winner statistics of a round.
func (h *HTTPHandler) GetRoundStatistics(c *gin.Context) {
	stats, err := h.service.Statistics(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, maskStatistics(*stats))
}

// CheckAvailability tells whether the round still has registrants to draw.
func (h *HTTPHandler) CheckAvailability(c *gin.Context) {
	availability, err := h.service.CheckAvailableParticipants(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, availability)
}

// --- prizes -----------------------------------------------------------------

// ListPrizes returns every prize.
func (h *HTTPHandler) ListPrizes(c *gin.Context) {
	prizes, err := h.service.ListPrizes(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, prizes)
}

// CreatePrize handles the JSON body for adding a new prize.
func (h *HTTPHandler) CreatePrize(c *gin.Context) {
	var in services.PrizeInput
	if err := c.ShouldBindJSON(&in); err != nil {
		badRequest(c, "invalid prize payload")
		return
	}
	prize, err := h.service.CreatePrize(c.Request.Context(), in)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, prize)
}

// GetPrize returns one prize.
func (h *HTTPHandler) GetPrize(c *gin.Context) {
	prize, err := h.service.GetPrize(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, prize)
}

// UpdatePrize changes the name, description or image of a prize.
func (h *HTTPHandler) UpdatePrize(c *gin.Context) {
	var in services.PrizeInput
	if err := c.ShouldBindJSON(&in); err != nil {
		badRequest(c, "invalid prize payload")
		return
	}
	prize, err := h.service.UpdatePrize(c.Request.Context(), c.Param("id"), in)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, prize)
}

// DeletePrize removes a prize with its allocations and winners.
func (h *HTTPHandler) DeletePrize(c *gin.Context) {
	if err := h.service.DeletePrize(c.Request.Context(), c.Param("id")); err != nil {
		respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// --- rounds -----------------------------------------------------------------

// ListRounds returns every round in display order.
func (h *HTTPHandler) ListRounds(c *gin.Context) {
	rounds, err := h.service.ListRounds(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, rounds)
}

// CreateRound handles the JSON body for adding a new round.
func (h *HTTPHandler) CreateRound(c *gin.Context) {
	var in services.RoundInput
	if err := c.ShouldBindJSON(&in); err != nil {
		badRequest(c, "invalid round payload")
		return
	}
	round, err := h.service.CreateRound(c.Request.Context(), in)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, round)
}

// GetRound returns one round with its allocations.
func (h *HTTPHandler) GetRound(c *gin.Context) {
	round, err := h.service.GetRound(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, round)
}

// UpdateRound rewrites a round and its allocations.
func (h *HTTPHandler) UpdateRound(c *gin.Context) {
	var in services.RoundInput
	if err := c.ShouldBindJSON(&in); err != nil {
		badRequest(c, "invalid round payload")
		return
	}
	round, err := h.service.UpdateRound(c.Request.Context(), c.Param("id"), in)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, round)
}

// DeleteRound removes a round with everything scoped to it.
func (h *HTTPHandler) DeleteRound(c *gin.Context) {
	if err := h.service.DeleteRound(c.Request.Context(), c.Param("id")); err != nil {
		respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// ActivateRound makes the round the only active one.
func (h *HTTPHandler) ActivateRound(c *gin.Context) {
	round, err := h.service.ActivateRound(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, round)
}

// --- registrants ------------------------------------------------------------

// ListRegistrants returns one page of registrants with masked contacts.
func (h *HTTPHandler) ListRegistrants(c *gin.Context) {
	page, pageSize := pageParams(c)
	result, err := h.service.ListRegistrants(c.Request.Context(), c.Param("id"), page, pageSize)
	if err != nil {
		respondError(c, err)
		return
	}
	result.Data = maskRegistrants(result.Data)
	c.JSON(http.StatusOK, result)
}

// ReplaceRegistrants swaps the round's registrant list for the JSON array body.
func (h *HTTPHandler) ReplaceRegistrants(c *gin.Context) {
	var rows []services.RegistrantInput
	if err := c.ShouldBindJSON(&rows); err != nil {
		badRequest(c, "expected an array of registrants")
		return
	}
	h.replaceRegistrants(c, rows)
}

func (h *HTTPHandler) replaceRegistrants(c *gin.Context, rows []services.RegistrantInput) {
	roundID := c.Param("id")
	n, err := h.service.ReplaceRegistrants(c.Request.Context(), roundID, rows)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"roundId": roundID, "count": n})
}

// --- winners ----------------------------------------------------------------

// ListWinners returns one page of winners, filtered by round and prize.
func (h *HTTPHandler) ListWinners(c *gin.Context) {
	page, pageSize := pageParams(c)
	result, err := h.service.ListWinners(c.Request.Context(), winnerFilter(c), page, pageSize)
	if err != nil {
		respondError(c, err)
		return
	}
	result.Data = maskWinners(result.Data)
	c.JSON(http.StatusOK, result)
}

func winnerFilter(c *gin.Context) models.WinnerFilter {
	return models.WinnerFilter{RoundID: c.Query("roundId"), PrizeID: c.Query("prizeId")}
}

func pageParams(c *gin.Context) (int, int) {
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	pageSize, _ := strconv.Atoi(c.DefaultQuery("pageSize", "10"))
	return page, pageSize
}

// --- settings ---------------------------------------------------------------

// GetSettings returns the settings row.
func (h *HTTPHandler) GetSettings(c *gin.Context) {
	settings, err := h.service.GetSettings(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, settings)
}

// UpdateSettings saves the current round and code length.
func (h *HTTPHandler) UpdateSettings(c *gin.Context) {
	var in services.SettingsInput
	if err := c.ShouldBindJSON(&in); err != nil {
		badRequest(c, "invalid settings payload")
		return
	}
	settings, err := h.service.UpdateSettings(c.Request.Context(), in)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, settings)
}

// GetCurrentRound returns the round the draw screen should show.
func (h *HTTPHandler) GetCurrentRound(c *gin.Context) {
	round, err := h.service.CurrentRound(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, round)
}
