package api

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/gin-gonic/gin"

	"fluid-gateway/internal/actions"
	"fluid-gateway/internal/history"
	"fluid-gateway/internal/pricefeed"
	"fluid-gateway/internal/wallet"
)

type pricesRequest struct {
	Symbols []string `json:"symbols"`
}

func (s *Server) postPrices(c *gin.Context) {
	if s.deps.Prices == nil {
		s.fail(c, errUnavailable, http.StatusServiceUnavailable)
		return
	}
	var req pricesRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "symbols array required")
		return
	}
	symbols := pricefeed.NormalizeSymbols(req.Symbols)
	if len(symbols) == 0 {
		badRequest(c, "symbols array required")
		return
	}

	prices, err := s.deps.Prices.FetchPrices(c.Request.Context(), symbols)
	if errors.Is(err, pricefeed.ErrNoMappedSymbols) {
		badRequest(c, "no supported symbols provided")
		return
	}
	if err != nil {
		s.logger.Error().Err(err).Strs("symbols", symbols).Msg("price fetch failed")
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, prices)
}

func (s *Server) latestPrices(c *gin.Context) {
	if s.deps.Adapter == nil {
		s.fail(c, errUnavailable, http.StatusServiceUnavailable)
		return
	}
	c.JSON(http.StatusOK, s.deps.Adapter.Latest())
}

func (s *Server) walletStatus(c *gin.Context) {
	c.JSON(http.StatusOK, s.deps.Session.Status())
}

type connectRequest struct {
	Address string `json:"address" binding:"required"`
}

func (s *Server) walletConnect(c *gin.Context) {
	var req connectRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "address required")
		return
	}
	if err := s.deps.Session.Connect(req.Address); err != nil {
		s.fail(c, err, http.StatusBadRequest)
		return
	}
	c.JSON(http.StatusOK, s.deps.Session.Status())
}

func (s *Server) walletDisconnect(c *gin.Context) {
	s.deps.Session.Disconnect()
	c.JSON(http.StatusOK, s.deps.Session.Status())
}

type chainRequest struct {
	ChainID int64 `json:"chainId" binding:"required"`
}

func (s *Server) walletSwitchChain(c *gin.Context) {
	var req chainRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.ChainID <= 0 {
		badRequest(c, "chainId required")
		return
	}
	if err := s.deps.Session.SwitchChain(req.ChainID); err != nil {
		s.fail(c, err, http.StatusUnprocessableEntity)
		return
	}
	c.JSON(http.StatusOK, s.deps.Session.Status())
}

func (s *Server) balances(c *gin.Context) {
	if s.deps.Balances == nil {
		s.fail(c, errUnavailable, http.StatusServiceUnavailable)
		return
	}
	account, ok := addressParam(c)
	if !ok {
		return
	}
	chainID := s.deps.Session.ChainID()
	if raw := c.Query("chainId"); raw != "" {
		parsed, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || parsed <= 0 {
			unprocessable(c, fmt.Errorf("invalid chainId %q", raw))
			return
		}
		chainID = parsed
	}

	balances, err := s.deps.Balances.Balances(c.Request.Context(), account, chainID)
	if err != nil {
		s.fail(c, err, http.StatusBadGateway)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"address":  account.Hex(),
		"chainId":  chainID,
		"balances": balances,
	})
}

func (s *Server) transactions(c *gin.Context) {
	account, records, ok := s.listRecords(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, gin.H{"address": account.Hex(), "transactions": records})
}

func (s *Server) exportTransactions(c *gin.Context) {
	account, records, ok := s.listRecords(c)
	if !ok {
		return
	}
	c.Header("Content-Type", "text/csv; charset=utf-8")
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", history.Key(account.Hex())+".csv"))
	c.Status(http.StatusOK)
	if err := history.WriteCSV(c.Writer, records); err != nil {
		s.logger.Error().Err(err).Str("address", account.Hex()).Msg("csv export failed")
	}
}

func (s *Server) listRecords(c *gin.Context) (common.Address, []history.Record, bool) {
	if s.deps.History == nil {
		s.fail(c, errUnavailable, http.StatusServiceUnavailable)
		return common.Address{}, nil, false
	}
	account, ok := addressParam(c)
	if !ok {
		return common.Address{}, nil, false
	}

	var filter history.Filter
	if raw := c.Query("type"); raw != "" {
		t, err := history.ParseType(raw)
		if err != nil {
			unprocessable(c, err)
			return common.Address{}, nil, false
		}
		filter.Type = t
	}
	if raw := c.Query("status"); raw != "" {
		st, err := history.ParseStatus(raw)
		if err != nil {
			unprocessable(c, err)
			return common.Address{}, nil, false
		}
		filter.Status = st
	}

	records, err := s.deps.History.List(c.Request.Context(), account.Hex(), filter)
	if err != nil {
		s.fail(c, err, http.StatusInternalServerError)
		return common.Address{}, nil, false
	}
	if records == nil {
		records = []history.Record{}
	}
	return account, records, true
}

func (s *Server) purchaseQuote(c *gin.Context) {
	req, ok := s.purchaseRequest(c)
	if !ok {
		return
	}
	quote, err := s.deps.Actions.Quote(req.Amount, req.Token)
	if err != nil {
		s.fail(c, err, http.StatusBadRequest)
		return
	}
	c.JSON(http.StatusOK, quote)
}

func (s *Server) purchase(c *gin.Context) {
	req, ok := s.purchaseRequest(c)
	if !ok {
		return
	}
	res, err := s.deps.Actions.Purchase(c.Request.Context(), req)
	if err != nil {
		s.fail(c, err, http.StatusInternalServerError)
		return
	}
	c.JSON(http.StatusOK, res)
}

func (s *Server) purchaseRequest(c *gin.Context) (actions.PurchaseRequest, bool) {
	if s.deps.Actions == nil {
		s.fail(c, errUnavailable, http.StatusServiceUnavailable)
		return actions.PurchaseRequest{}, false
	}
	var req actions.PurchaseRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "amount and token required")
		return actions.PurchaseRequest{}, false
	}
	return req, true
}

func (s *Server) claim(c *gin.Context) {
	if s.deps.Actions == nil {
		s.fail(c, errUnavailable, http.StatusServiceUnavailable)
		return
	}
	res, err := s.deps.Actions.Claim(c.Request.Context())

	// broadcast claims are followed to the confirmation depth, including
	// those whose receipt wait gave up
	var tracking any
	if s.deps.Tracker != nil && res.Hash != "" && !res.Record.Placeholder {
		tracking = s.deps.Tracker.Track(common.HexToHash(res.Hash), res.Record.From)
	}
	if err != nil {
		s.fail(c, err, http.StatusBadGateway)
		return
	}

	body := gin.H{"claim": res}
	if tracking != nil {
		body["tracking"] = tracking
	}
	c.JSON(http.StatusOK, body)
}

func (s *Server) airdropStatus(c *gin.Context) {
	if s.deps.Actions == nil {
		s.fail(c, errUnavailable, http.StatusServiceUnavailable)
		return
	}
	account, ok := addressParam(c)
	if !ok {
		return
	}
	status, err := s.deps.Actions.AirdropStatus(c.Request.Context(), account)
	if err != nil {
		s.fail(c, err, http.StatusBadGateway)
		return
	}
	c.JSON(http.StatusOK, status)
}

func (s *Server) airdropStats(c *gin.Context) {
	if s.deps.Actions == nil {
		s.fail(c, errUnavailable, http.StatusServiceUnavailable)
		return
	}
	stats, err := s.deps.Actions.AirdropStats(c.Request.Context())
	if err != nil {
		s.fail(c, err, http.StatusBadGateway)
		return
	}
	c.JSON(http.StatusOK, stats)
}

func (s *Server) presaleStats(c *gin.Context) {
	if s.deps.Actions == nil {
		s.fail(c, errUnavailable, http.StatusServiceUnavailable)
		return
	}
	stats, err := s.deps.Actions.PresaleStats(c.Request.Context())
	if err != nil {
		s.fail(c, err, http.StatusBadGateway)
		return
	}
	c.JSON(http.StatusOK, stats)
}

type trackRequest struct {
	Owner string `json:"owner"`
}

func (s *Server) trackTx(c *gin.Context) {
	if s.deps.Tracker == nil {
		s.fail(c, errUnavailable, http.StatusServiceUnavailable)
		return
	}
	hash, ok := hashParam(c)
	if !ok {
		return
	}

	var req trackRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, "invalid request body")
			return
		}
	}
	owner := strings.TrimSpace(req.Owner)
	if owner != "" && !common.IsHexAddress(owner) {
		unprocessable(c, wallet.ErrInvalidAddress)
		return
	}
	if owner == "" {
		if addr, err := s.deps.Session.Address(); err == nil {
			owner = addr.Hex()
		}
	}

	snap := s.deps.Tracker.Track(hash, owner)
	c.JSON(http.StatusAccepted, snap)
}

func (s *Server) txStatus(c *gin.Context) {
	if s.deps.Tracker == nil {
		s.fail(c, errUnavailable, http.StatusServiceUnavailable)
		return
	}
	hash, ok := hashParam(c)
	if !ok {
		return
	}
	snap, found := s.deps.Tracker.Status(hash)
	if !found {
		c.AbortWithStatusJSON(http.StatusNotFound, gin.H{"error": "transaction not tracked"})
		return
	}
	c.JSON(http.StatusOK, snap)
}

func addressParam(c *gin.Context) (common.Address, bool) {
	raw := c.Param("address")
	if !common.IsHexAddress(raw) {
		unprocessable(c, fmt.Errorf("%w: %q", wallet.ErrInvalidAddress, raw))
		return common.Address{}, false
	}
	return common.HexToAddress(raw), true
}

func hashParam(c *gin.Context) (common.Hash, bool) {
	raw := c.Param("hash")
	b, err := hexutil.Decode(raw)
	if err != nil || len(b) != common.HashLength {
		unprocessable(c, fmt.Errorf("invalid transaction hash %q", raw))
		return common.Hash{}, false
	}
	return common.BytesToHash(b), true
}
