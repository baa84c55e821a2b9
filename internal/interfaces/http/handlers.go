package httpapi

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"coinfeed/internal/application/service"
	"coinfeed/internal/application/usecase/stream"
	"coinfeed/internal/domain"
)

// PriceView 对外的价格行；HasData=false 时前端应隐藏
type PriceView struct {
	Symbol    string  `json:"symbol"`
	Price     float64 `json:"price"`
	Change24h float64 `json:"change24h"`
	Volume    float64 `json:"volume"`
	HasData   bool    `json:"has_data"`
}

func newPriceView(sym string, t domain.Tick) PriceView {
	return PriceView{Symbol: sym, Price: t.Price, Change24h: t.Change24h, Volume: t.Volume, HasData: t.HasData()}
}

func errJSON(c *gin.Context, code int, err error) {
	c.JSON(code, gin.H{"error": err.Error()})
}

var (
	errNoCatalog   = errors.New("catalog disabled")
	errNoWatchlist = errors.New("watchlist disabled")
	errNoCharts    = errors.New("charts disabled")
)

func (s *Server) getHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (s *Server) getStatus(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"feed":       s.deps.Feed.Status(),
		"symbols":    s.deps.Interest.Len(),
		"priced":     s.deps.Board.Len(),
		"version":    s.deps.Board.Version(),
		"ws_clients": s.deps.Hub.Clients(),
	})
}

// GET /api/prices?symbols=BTC,ETH；不带参数时按 InterestSet 顺序返回全部
func (s *Server) getPrices(c *gin.Context) {
	syms := splitSymbols(c.Query("symbols"))
	if len(syms) == 0 {
		syms = s.deps.Interest.Symbols()
	}

	out := make([]PriceView, 0, len(syms))
	for _, sym := range syms {
		out = append(out, newPriceView(sym, s.deps.Board.Price(sym)))
	}
	c.JSON(http.StatusOK, gin.H{"prices": out, "version": s.deps.Board.Version()})
}

func (s *Server) getPrice(c *gin.Context) {
	sym := domain.NormalizeSymbol(c.Param("symbol"))
	c.JSON(http.StatusOK, newPriceView(sym, s.deps.Board.Price(sym)))
}

func (s *Server) getCoins(c *gin.Context) {
	if s.deps.Catalog == nil {
		errJSON(c, http.StatusServiceUnavailable, errNoCatalog)
		return
	}
	var coins []domain.Coin
	if q := c.Query("q"); q != "" {
		coins = s.deps.Catalog.Search(q)
	} else {
		coins = s.deps.Catalog.Coins()
	}
	c.JSON(http.StatusOK, gin.H{"coins": coins, "has_more": s.deps.Catalog.HasMore()})
}

type addCoinsRequest struct {
	Symbols []string `json:"symbols" binding:"required,min=1"`
}

// POST /api/coins 直接把币种加入 InterestSet
func (s *Server) postCoins(c *gin.Context) {
	var req addCoinsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		errJSON(c, http.StatusBadRequest, err)
		return
	}
	added := s.deps.Interest.Add(req.Symbols...)
	c.JSON(http.StatusOK, gin.H{"added": added, "symbols": s.deps.Interest.Len()})
}

func (s *Server) postMoreCoins(c *gin.Context) {
	if s.deps.Catalog == nil {
		errJSON(c, http.StatusServiceUnavailable, errNoCatalog)
		return
	}
	n, err := s.deps.Catalog.LoadMore(c.Request.Context())
	switch {
	case errors.Is(err, service.ErrCatalogBusy):
		errJSON(c, http.StatusConflict, err)
		return
	case err != nil:
		log.Warn().Err(err).Msg("catalog load failed")
		errJSON(c, http.StatusBadGateway, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"added": n, "has_more": s.deps.Catalog.HasMore()})
}

func (s *Server) getChart(c *gin.Context) {
	if s.deps.Charts == nil {
		errJSON(c, http.StatusServiceUnavailable, errNoCharts)
		return
	}
	days, err := strconv.Atoi(c.DefaultQuery("days", "7"))
	if err != nil || days <= 0 {
		errJSON(c, http.StatusBadRequest, errors.New("days must be a positive integer"))
		return
	}
	points, err := s.deps.Charts.FetchMarketChart(c.Request.Context(), c.Param("id"), days)
	if err != nil {
		errJSON(c, http.StatusBadGateway, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"id": c.Param("id"), "days": days, "points": points})
}

func (s *Server) postReconnect(c *gin.Context) {
	if err := s.deps.Feed.Retry(); err != nil {
		if errors.Is(err, stream.ErrNotRunning) {
			errJSON(c, http.StatusServiceUnavailable, err)
			return
		}
		errJSON(c, http.StatusInternalServerError, err)
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"status": "reconnecting"})
}

func (s *Server) getWatchlist(c *gin.Context) {
	if s.deps.Watchlist == nil {
		errJSON(c, http.StatusServiceUnavailable, errNoWatchlist)
		return
	}
	c.JSON(http.StatusOK, gin.H{"items": s.deps.Watchlist.List()})
}

func (s *Server) postWatchlist(c *gin.Context) {
	if s.deps.Watchlist == nil {
		errJSON(c, http.StatusServiceUnavailable, errNoWatchlist)
		return
	}
	var coin domain.Coin
	if err := c.ShouldBindJSON(&coin); err != nil {
		errJSON(c, http.StatusBadRequest, err)
		return
	}
	added, err := s.deps.Watchlist.Add(c.Request.Context(), coin)
	switch {
	case errors.Is(err, service.ErrInvalidWatchItem):
		errJSON(c, http.StatusBadRequest, err)
		return
	case err != nil:
		errJSON(c, http.StatusInternalServerError, err)
		return
	}
	code := http.StatusOK
	if added {
		code = http.StatusCreated
	}
	c.JSON(code, gin.H{"added": added})
}

func (s *Server) deleteWatchlist(c *gin.Context) {
	if s.deps.Watchlist == nil {
		errJSON(c, http.StatusServiceUnavailable, errNoWatchlist)
		return
	}
	removed, err := s.deps.Watchlist.Remove(c.Request.Context(), c.Param("id"))
	if err != nil {
		errJSON(c, http.StatusInternalServerError, err)
		return
	}
	if !removed {
		c.JSON(http.StatusNotFound, gin.H{"error": "not in watchlist"})
		return
	}
	c.Status(http.StatusNoContent)
}

func splitSymbols(raw string) []string {
	if raw == "" {
		return nil
	}
	var out []string
	for _, p := range strings.Split(raw, ",") {
		if sym := domain.NormalizeSymbol(p); sym != "" {
			out = append(out, sym)
		}
	}
	return out
}
