package server

import (
	"net/http"

	"github.com/gin-gonic/gin"
	botdomain "github.com/smallbiznis/botquota/internal/botregistry/domain"
)

type registerBotRequest struct {
	TokenEncrypted string         `json:"token_encrypted"`
	Config         map[string]any `json:"config"`
}

func (s *Server) RegisterBot(c *gin.Context) {
	ownerID, err := parseAccountID(c.Param("id"))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	var req registerBotRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	bot, err := s.botSvc.Register(c.Request.Context(), botdomain.RegisterBotRequest{
		OwnerID:        ownerID,
		TokenEncrypted: req.TokenEncrypted,
		Config:         req.Config,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"data": bot})
}

func (s *Server) ListBots(c *gin.Context) {
	ownerID, err := parseAccountID(c.Param("id"))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	bots, err := s.botSvc.ListByOwner(c.Request.Context(), ownerID)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": bots})
}
