package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"opinion-market/internal/auth"
	"opinion-market/internal/models"
	"opinion-market/internal/services"
)

type EventHandler struct {
	eventService *services.EventService
	tradeService *services.TradeService
}

func NewEventHandler(eventService *services.EventService, tradeService *services.TradeService) *EventHandler {
	return &EventHandler{
		eventService: eventService,
		tradeService: tradeService,
	}
}

// ListEvents retrieves tradable events
// GET /api/events
func (h *EventHandler) ListEvents(c *gin.Context) {
	events, err := h.eventService.ListTradable(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"events": events,
		"total":  len(events),
	})
}

// GetEvent retrieves an event, with the caller's holdings when identified
// GET /api/events/:id
func (h *EventHandler) GetEvent(c *gin.Context) {
	eventID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid event id"})
		return
	}

	forUserID, _ := auth.GetWalletAddress(c)
	event, holdings, err := h.eventService.Get(c.Request.Context(), eventID, forUserID)
	if err != nil {
		respondError(c, err)
		return
	}

	resp := gin.H{"event": event}
	if forUserID != "" {
		resp["holdings"] = holdings
	}
	c.JSON(http.StatusOK, resp)
}

// CreateEvent creates a new event with its Yes/No outcomes
// POST /api/events
func (h *EventHandler) CreateEvent(c *gin.Context) {
	creatorID, ok := auth.GetWalletAddress(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "wallet address required"})
		return
	}

	var req services.CreateEventRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	event, err := h.eventService.Create(c.Request.Context(), creatorID, &req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, event)
}

// TradeRequest is the JSON body for executing a trade.
type TradeRequest struct {
	OutcomeID string          `json:"outcome_id" binding:"required"`
	TradeType string          `json:"trade_type" binding:"required"`
	Quantity  decimal.Decimal `json:"quantity" binding:"required"`
}

// ExecuteTrade executes a BUY or SELL against the event's pools
// POST /api/events/:id/trade
func (h *EventHandler) ExecuteTrade(c *gin.Context) {
	userID, ok := auth.GetWalletAddress(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "wallet address required"})
		return
	}

	eventID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid event id"})
		return
	}

	var req TradeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	outcomeID, err := uuid.Parse(req.OutcomeID)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid outcome_id"})
		return
	}

	result, err := h.tradeService.ExecuteTrade(
		c.Request.Context(),
		userID,
		eventID,
		outcomeID,
		models.TradeType(req.TradeType),
		req.Quantity,
	)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message":         "Trade successful!",
		"trade":           result.Trade,
		"updated_balance": result.UpdatedBalance,
		"updated_event":   result.Pricing,
	})
}

// UpdateEvent applies an administrative patch to an event
// PUT /api/events/:id
func (h *EventHandler) UpdateEvent(c *gin.Context) {
	actingUserID, ok := auth.GetWalletAddress(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "wallet address required"})
		return
	}

	eventID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid event id"})
		return
	}

	var patch services.EventPatch
	if err := c.ShouldBindJSON(&patch); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	event, err := h.eventService.AdminUpdate(c.Request.Context(), actingUserID, eventID, &patch)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message": "Event updated successfully",
		"event":   event,
	})
}
