package api

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"multiaccount-trade/internal/data"
	"multiaccount-trade/internal/engine"
	"multiaccount-trade/internal/order"
	"multiaccount-trade/pkg/db"
)

type placeOrderRequest struct {
	Symbol  string  `json:"symbol" binding:"required,min=1"`
	Volume  float64 `json:"volume" binding:"gt=0"`
	Gateway string  `json:"gateway" binding:"required,min=1"`
}

type subscribeRequest struct {
	Symbols []string `json:"symbols" binding:"required,min=1,dive,min=1"`
}

type journalQuery struct {
	Gateway string `form:"gateway"`
	Limit   int    `form:"limit"`
}

func (q *journalQuery) normalize() {
	if q.Limit <= 0 {
		q.Limit = 100
	}
	if q.Limit > 500 {
		q.Limit = 500
	}
}

func respondError(c *gin.Context, status int, code, msg string) {
	c.JSON(status, gin.H{
		"code":  code,
		"error": msg,
	})
}

// placeOrder runs one trading intent. A 422 means no leg reached a gateway;
// the reason is in the log stream.
func (s *Server) placeOrder(c *gin.Context) {
	intent, ok := order.ParseIntent(c.Param("intent"))
	if !ok {
		respondError(c, http.StatusBadRequest, "INVALID_INTENT", "intent must be one of open-long, open-short, close-long, close-short")
		return
	}
	var req placeOrderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, "INVALID_REQUEST", "invalid request payload")
		return
	}

	ids := s.Engine.Execute(intent, req.Symbol, req.Volume, req.Gateway)
	s.log.Info().
		Str("subject", CurrentSubject(c)).
		Stringer("intent", intent).
		Str("symbol", req.Symbol).
		Float64("volume", req.Volume).
		Str("gateway", req.Gateway).
		Strs("order_ids", ids).
		Msg("intent executed")

	for _, id := range ids {
		if id != "" {
			c.JSON(http.StatusOK, gin.H{"order_ids": ids})
			return
		}
	}
	c.JSON(http.StatusUnprocessableEntity, gin.H{
		"code":      "ORDER_REJECTED",
		"error":     "no order was submitted",
		"order_ids": ids,
	})
}

func (s *Server) cancelOrder(c *gin.Context) {
	id := c.Param("id")
	if err := s.Engine.CancelActiveOrder(id); err != nil {
		respondError(c, http.StatusBadGateway, "CANCEL_FAILED", err.Error())
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"order_id": id, "status": "cancel requested"})
}

func (s *Server) subscribe(c *gin.Context) {
	var req subscribeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, "INVALID_REQUEST", "symbols must be a non-empty list")
		return
	}
	subscribed := s.Engine.Subscribe(req.Symbols)
	if subscribed == nil {
		subscribed = []string{}
	}
	c.JSON(http.StatusOK, gin.H{"subscribed": subscribed})
}

// list and lookup render the state cache. Empty lists are [] rather than null.

func list[T any](c *gin.Context, items []T) {
	if items == nil {
		items = []T{}
	}
	c.JSON(http.StatusOK, items)
}

func lookup[T any](c *gin.Context, what string, get func(string) (T, bool)) {
	id := c.Param("id")
	v, ok := get(id)
	if !ok {
		respondError(c, http.StatusNotFound, "NOT_FOUND", what+" "+id+" not found")
		return
	}
	c.JSON(http.StatusOK, v)
}

func (s *Server) getQuotes(c *gin.Context)       { list(c, s.Engine.Quotes()) }
func (s *Server) getQuote(c *gin.Context)        { lookup(c, "quote", s.Engine.Quote) }
func (s *Server) getContracts(c *gin.Context)    { list(c, s.Engine.Contracts()) }
func (s *Server) getContract(c *gin.Context)     { lookup(c, "contract", s.Engine.Contract) }
func (s *Server) getOrders(c *gin.Context)       { list(c, s.Engine.Orders()) }
func (s *Server) getOrder(c *gin.Context)        { lookup(c, "order", s.Engine.Order) }
func (s *Server) getActiveOrders(c *gin.Context) { list(c, s.Engine.ActiveOrders()) }
func (s *Server) getActiveOrder(c *gin.Context)  { lookup(c, "active order", s.Engine.ActiveOrder) }
func (s *Server) getTrades(c *gin.Context)       { list(c, s.Engine.Trades()) }
func (s *Server) getTrade(c *gin.Context)        { lookup(c, "trade", s.Engine.Trade) }
func (s *Server) getPositions(c *gin.Context)    { list(c, s.Engine.Positions()) }
func (s *Server) getPosition(c *gin.Context)     { lookup(c, "position", s.Engine.Position) }
func (s *Server) getAccounts(c *gin.Context)     { list(c, s.Engine.Accounts()) }
func (s *Server) getAccount(c *gin.Context)      { lookup(c, "account", s.Engine.Account) }

func (s *Server) getGateways(c *gin.Context) {
	names := s.Engine.GatewayNames()
	gateways := make([]gin.H, 0, len(names))
	for _, name := range names {
		gateways = append(gateways, gin.H{
			"name":   name,
			"inited": s.Engine.IsGatewayInited(name),
		})
	}
	c.JSON(http.StatusOK, gin.H{
		"gateways":          gateways,
		"classes":           s.Engine.GatewayClassNames(),
		"subscribe_gateway": s.Engine.SubscribeGateway(),
	})
}

func (s *Server) getJournalOrders(c *gin.Context) {
	var q journalQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		respondError(c, http.StatusBadRequest, "INVALID_QUERY", "invalid query parameters")
		return
	}
	q.normalize()
	rows, err := s.Engine.JournalOrders(c.Request.Context(), q.Gateway, q.Limit)
	if err != nil {
		s.journalError(c, err)
		return
	}
	list(c, rows)
}

func (s *Server) getJournalTrades(c *gin.Context) {
	var q journalQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		respondError(c, http.StatusBadRequest, "INVALID_QUERY", "invalid query parameters")
		return
	}
	q.normalize()
	rows, err := s.Engine.JournalTrades(c.Request.Context(), q.Gateway, q.Limit)
	if err != nil {
		s.journalError(c, err)
		return
	}
	list(c, rows)
}

func (s *Server) journalError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, db.ErrGatewayRequired):
		respondError(c, http.StatusBadRequest, "GATEWAY_REQUIRED", "gateway query parameter is required")
	case errors.Is(err, engine.ErrJournalDisabled):
		respondError(c, http.StatusServiceUnavailable, "JOURNAL_DISABLED", "journal is not configured")
	default:
		s.log.Error().Err(err).Msg("journal query failed")
		respondError(c, http.StatusInternalServerError, "DB_ERROR", err.Error())
	}
}

func (s *Server) loadData(c *gin.Context) {
	gw := c.Param("gateway")
	tbl, err := s.Engine.Data().LoadData(gw)
	if err != nil {
		s.dataError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"gateway": gw,
		"header":  tbl.Header,
		"rows":    tbl.Len(),
	})
}

func (s *Server) backupData(c *gin.Context) {
	gw := c.Param("gateway")
	if err := s.Engine.Data().BackupData(gw); err != nil {
		s.dataError(c, err)
		return
	}
	path, _ := s.Engine.Data().BackupFile(gw)
	c.JSON(http.StatusOK, gin.H{"gateway": gw, "path": path})
}

func (s *Server) dataError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, data.ErrNoFilePath):
		respondError(c, http.StatusNotFound, "NO_FILE", err.Error())
	case errors.Is(err, data.ErrNoData):
		respondError(c, http.StatusNotFound, "NO_DATA", err.Error())
	default:
		respondError(c, http.StatusInternalServerError, "DATA_ERROR", err.Error())
	}
}

func (s *Server) getSystemStatus(c *gin.Context) {
	c.JSON(http.StatusOK, s.Engine.SystemStatus(c.Request.Context()))
}

func (s *Server) getMetrics(c *gin.Context) {
	if s.Metrics == nil {
		respondError(c, http.StatusServiceUnavailable, "METRICS_UNAVAILABLE", "metrics not configured")
		return
	}
	c.JSON(http.StatusOK, s.Metrics.GetSnapshot())
}
