package httpapi

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"jobmate/campaign-service/internal/kanban"
	"jobmate/campaign-service/internal/model"
)

func (h *handlers) listCards(c *gin.Context) {
	cards, err := h.cards.ListCards(c.Request.Context(), kanban.CardFilter{
		UserID:     userID(c),
		CampaignID: c.Query("campaignId"),
		Status:     kanban.Status(c.Query("status")),
	})
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"cards": cards, "count": len(cards)})
}

func (h *handlers) getCard(c *gin.Context) {
	card, ok := h.ownCard(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, card)
}

type transitionRequest struct {
	To           string `json:"to" binding:"required"`
	ExpectedFrom string `json:"expectedFrom"`
}

func (h *handlers) transitionCard(c *gin.Context) {
	if _, ok := h.ownCard(c); !ok {
		return
	}
	var req transitionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	card, err := h.cards.Transition(c.Request.Context(), kanban.TransitionRequest{
		CardID:       c.Param("id"),
		To:           kanban.Status(req.To),
		ExpectedFrom: kanban.Status(req.ExpectedFrom),
		Actor:        userID(c),
	})
	h.respondCard(c, card, err)
}

func (h *handlers) addNote(c *gin.Context) {
	if _, ok := h.ownCard(c); !ok {
		return
	}
	var req struct {
		Note string `json:"note"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	card, err := h.cards.AddNote(c.Request.Context(), c.Param("id"), req.Note)
	h.respondCard(c, card, err)
}

func (h *handlers) setDates(c *gin.Context) {
	if _, ok := h.ownCard(c); !ok {
		return
	}
	var req struct {
		ApplicationDeadline *time.Time `json:"applicationDeadline"`
		InterviewDate       *time.Time `json:"interviewDate"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	card, err := h.cards.SetImportantDates(c.Request.Context(), c.Param("id"), kanban.ImportantDates{
		ApplicationDeadline: req.ApplicationDeadline,
		InterviewDate:       req.InterviewDate,
	})
	h.respondCard(c, card, err)
}

func (h *handlers) addContact(c *gin.Context) {
	if _, ok := h.ownCard(c); !ok {
		return
	}
	var contact kanban.Contact
	if err := c.ShouldBindJSON(&contact); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	card, err := h.cards.AddContact(c.Request.Context(), c.Param("id"), contact)
	h.respondCard(c, card, err)
}

// getCardPosting returns the latest fetched copy of the card's posting.
func (h *handlers) getCardPosting(c *gin.Context) {
	if h.postings == nil {
		c.JSON(http.StatusNotImplemented, gin.H{"error": "postings are not stored"})
		return
	}
	card, ok := h.ownCard(c)
	if !ok {
		return
	}
	posting, err := h.postings.GetPosting(c.Request.Context(), card.PostingKey)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, posting)
}

// ownCard loads :id and hides other users' cards behind 404.
func (h *handlers) ownCard(c *gin.Context) (*kanban.ApplicationCard, bool) {
	id := c.Param("id")
	card, err := h.cards.GetCard(c.Request.Context(), id)
	if err == nil && card.UserID != userID(c) {
		err = &model.NotFoundError{Kind: "card", ID: id}
	}
	if err != nil {
		respondError(c, err)
		return nil, false
	}
	return card, true
}

func (h *handlers) respondCard(c *gin.Context, card *kanban.ApplicationCard, err error) {
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, card)
}
