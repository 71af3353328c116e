package httpapi

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"jobmate/campaign-service/internal/campaign"
	"jobmate/campaign-service/internal/model"
	"jobmate/campaign-service/internal/scheduler"
)

func (h *handlers) createCampaign(c *gin.Context) {
	var spec campaign.Spec
	if err := c.ShouldBindJSON(&spec); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	created, err := h.campaigns.Create(c.Request.Context(), userID(c), spec)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, created)
}

func (h *handlers) listCampaigns(c *gin.Context) {
	includeArchived, _ := strconv.ParseBool(c.Query("includeArchived"))
	list, err := h.campaigns.List(c.Request.Context(), userID(c), includeArchived)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"campaigns": list, "count": len(list)})
}

func (h *handlers) getCampaign(c *gin.Context) {
	camp, ok := h.ownCampaign(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, camp)
}

func (h *handlers) updateCampaign(c *gin.Context) {
	if _, ok := h.ownCampaign(c); !ok {
		return
	}
	var spec campaign.Spec
	if err := c.ShouldBindJSON(&spec); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	updated, err := h.campaigns.Update(c.Request.Context(), c.Param("id"), spec)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, updated)
}

func (h *handlers) pauseCampaign(c *gin.Context) {
	if _, ok := h.ownCampaign(c); !ok {
		return
	}
	h.respondCampaign(c)(h.campaigns.Pause(c.Request.Context(), c.Param("id")))
}

func (h *handlers) resumeCampaign(c *gin.Context) {
	if _, ok := h.ownCampaign(c); !ok {
		return
	}
	h.respondCampaign(c)(h.campaigns.Resume(c.Request.Context(), c.Param("id")))
}

func (h *handlers) archiveCampaign(c *gin.Context) {
	if _, ok := h.ownCampaign(c); !ok {
		return
	}
	h.respondCampaign(c)(h.campaigns.Archive(c.Request.Context(), c.Param("id")))
}

type scanResponse struct {
	CampaignID      string            `json:"campaignId"`
	Outcome         string            `json:"outcome"`
	Fetched         int               `json:"fetched"`
	Filtered        int               `json:"filtered"`
	BelowThreshold  int               `json:"belowThreshold"`
	Created         int               `json:"created"`
	Updated         int               `json:"updated"`
	WriteErrors     int               `json:"writeErrors"`
	SourceErrors    map[string]string `json:"sourceErrors,omitempty"`
	LastRunAdvanced bool              `json:"lastRunAdvanced"`
	Error           string            `json:"error,omitempty"`
}

// scanCampaign runs one scan immediately, outside the tick.
func (h *handlers) scanCampaign(c *gin.Context) {
	if h.scanner == nil {
		c.JSON(http.StatusNotImplemented, gin.H{"error": "scanning is disabled"})
		return
	}
	camp, ok := h.ownCampaign(c)
	if !ok {
		return
	}
	switch {
	case camp.IsArchived():
		respondError(c, &model.ValidationError{Field: "status", Msg: "campaign is archived"})
		return
	case camp.Status != model.CampaignActive:
		respondError(c, &model.ValidationError{Field: "status", Msg: "campaign is " + string(camp.Status)})
		return
	}

	res := h.scanner.RunCampaign(c.Request.Context(), camp, time.Now().UTC())
	if res.Skipped == scheduler.SkipInProgress {
		c.JSON(http.StatusConflict, gin.H{"error": "a scan of this campaign is already running"})
		return
	}
	out := scanResponse{
		CampaignID:      res.CampaignID,
		Outcome:         res.Outcome(),
		Fetched:         res.Fetched,
		Filtered:        res.Filtered,
		BelowThreshold:  res.BelowThreshold,
		Created:         res.Created,
		Updated:         res.Updated,
		WriteErrors:     res.WriteErrors,
		LastRunAdvanced: res.LastRunAdvanced,
	}
	if len(res.SourceErrors) > 0 {
		out.SourceErrors = make(map[string]string, len(res.SourceErrors))
		for name, err := range res.SourceErrors {
			out.SourceErrors[name] = err.Error()
		}
	}
	if res.Err != nil {
		out.Error = res.Err.Error()
	}
	c.JSON(http.StatusOK, out)
}

// ownCampaign loads :id and hides other users' campaigns behind 404.
func (h *handlers) ownCampaign(c *gin.Context) (*model.Campaign, bool) {
	id := c.Param("id")
	camp, err := h.campaigns.Get(c.Request.Context(), id)
	if err == nil && camp.UserID != userID(c) {
		err = &model.NotFoundError{Kind: "campaign", ID: id}
	}
	if err != nil {
		respondError(c, err)
		return nil, false
	}
	return camp, true
}

func (h *handlers) respondCampaign(c *gin.Context) func(*model.Campaign, error) {
	return func(camp *model.Campaign, err error) {
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, camp)
	}
}
