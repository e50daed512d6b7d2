package server

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	accountdomain "github.com/smallbiznis/botquota/internal/account/domain"
	ledgerdomain "github.com/smallbiznis/botquota/internal/ledger/domain"
	retentiondomain "github.com/smallbiznis/botquota/internal/retention/domain"
)

type ensureAccountRequest struct {
	ID         int64  `json:"id"`
	ReferrerID *int64 `json:"referrer_id"`
}

type grantRequest struct {
	Pool   string `json:"pool"`
	Amount int64  `json:"amount"`
	Source string `json:"source"`
}

func (s *Server) EnsureAccount(c *gin.Context) {
	var req ensureAccountRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}
	if req.ID <= 0 {
		AbortWithError(c, accountdomain.ErrInvalidAccountID)
		return
	}

	result, err := s.accountSvc.EnsureAccount(c.Request.Context(), accountdomain.EnsureAccountRequest{
		ID:         req.ID,
		ReferrerID: req.ReferrerID,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	status := http.StatusOK
	if result.Created {
		status = http.StatusCreated
	}
	c.JSON(status, gin.H{"data": result})
}

func (s *Server) GetAccount(c *gin.Context) {
	id, err := parseAccountID(c.Param("id"))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	account, err := s.accountSvc.Get(c.Request.Context(), id)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": account})
}

func (s *Server) CheckStatus(c *gin.Context) {
	id, err := parseAccountID(c.Param("id"))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	status, err := s.lifecycleSvc.CheckStatus(c.Request.Context(), id)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": gin.H{
		"account_id": id,
		"status":     status,
	}})
}

func (s *Server) ListReferrals(c *gin.Context) {
	id, err := parseAccountID(c.Param("id"))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	referrals, err := s.accountSvc.ListReferrals(c.Request.Context(), id)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": referrals})
}

func (s *Server) ApplyGrant(c *gin.Context) {
	id, err := parseAccountID(c.Param("id"))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	var req grantRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	source := strings.TrimSpace(req.Source)
	if source == "" {
		source = ledgerdomain.SourceAdmin
	}

	result, err := s.lifecycleSvc.ApplyGrant(c.Request.Context(), ledgerdomain.GrantRequest{
		AccountID: id,
		Pool:      accountdomain.Pool(strings.ToLower(strings.TrimSpace(req.Pool))),
		Amount:    req.Amount,
		Source:    source,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"data": result})
}

func (s *Server) ListLedgerEntries(c *gin.Context) {
	id, limit, ok := s.parseListRequest(c)
	if !ok {
		return
	}

	entries, err := s.ledgerSvc.ListEntries(c.Request.Context(), id, limit)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": entries})
}

func (s *Server) Reconcile(c *gin.Context) {
	id, err := parseAccountID(c.Param("id"))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	result, err := s.ledgerSvc.Reconcile(c.Request.Context(), id)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": result, "ok": result.OK()})
}

func (s *Server) ListAuditLogs(c *gin.Context) {
	id, limit, ok := s.parseListRequest(c)
	if !ok {
		return
	}

	logs, err := s.auditSvc.List(c.Request.Context(), id, limit)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": logs})
}

func (s *Server) DeleteAccount(c *gin.Context) {
	id, err := parseAccountID(c.Param("id"))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	force, err := queryFlag(c, "force")
	if err != nil {
		AbortWithError(c, err)
		return
	}

	result, err := s.retentionSvc.Delete(c.Request.Context(), id, retentiondomain.DeleteOptions{
		Force: force,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": result})
}

func (s *Server) parseListRequest(c *gin.Context) (int64, int, bool) {
	id, err := parseAccountID(c.Param("id"))
	if err != nil {
		AbortWithError(c, err)
		return 0, 0, false
	}

	limit, err := queryLimit(c)
	if err != nil {
		AbortWithError(c, err)
		return 0, 0, false
	}
	return id, limit, true
}
