package httpapi

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"coinfeed/internal/application/port"
	"coinfeed/internal/application/usecase/stream"
	"coinfeed/internal/domain"
)

// Feed 行情连接的状态与人工重连
type Feed interface {
	Status() stream.Status
	Retry() error
}

type Interest interface {
	Add(symbols ...string) int
	Symbols() []string
	Len() int
}

type Catalog interface {
	Coins() []domain.Coin
	Search(q string) []domain.Coin
	LoadMore(ctx context.Context) (int, error)
	HasMore() bool
}

type Watchlist interface {
	List() []domain.WatchItem
	Add(ctx context.Context, coin domain.Coin) (bool, error)
	Remove(ctx context.Context, id string) (bool, error)
}

// Deps Catalog、Watchlist、Charts 可以为 nil，对应接口返回 503
type Deps struct {
	Board     *domain.Board
	Interest  Interest
	Feed      Feed
	Catalog   Catalog
	Watchlist Watchlist
	Charts    port.ChartSource
	Hub       *Hub
}

type Server struct {
	addr   string
	deps   Deps
	engine *gin.Engine
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

func NewServer(addr string, deps Deps) *Server {
	if zerolog.GlobalLevel() > zerolog.DebugLevel {
		gin.SetMode(gin.ReleaseMode)
	}
	if deps.Hub == nil {
		deps.Hub = NewHub(deps.Board, 0)
	}

	s := &Server{addr: addr, deps: deps, engine: gin.New()}
	s.engine.Use(gin.Recovery(), requestLogger())
	s.setupRoutes()
	return s
}

func (s *Server) Handler() http.Handler { return s.engine }

func (s *Server) Hub() *Hub { return s.deps.Hub }

func (s *Server) setupRoutes() {
	api := s.engine.Group("/api")
	api.GET("/health", s.getHealth)
	api.GET("/status", s.getStatus)
	api.GET("/prices", s.getPrices)
	api.GET("/prices/:symbol", s.getPrice)
	api.GET("/coins", s.getCoins)
	api.POST("/coins", s.postCoins)
	api.POST("/coins/more", s.postMoreCoins)
	api.GET("/coins/:id/chart", s.getChart)
	api.POST("/reconnect", s.postReconnect)
	api.GET("/watchlist", s.getWatchlist)
	api.POST("/watchlist", s.postWatchlist)
	api.DELETE("/watchlist/:id", s.deleteWatchlist)

	s.engine.GET("/ws", s.handleWebSocket)
}

// Run 启动 hub 和 HTTP 服务，阻塞到 ctx 结束后优雅关闭
func (s *Server) Run(ctx context.Context) error {
	go s.deps.Hub.Run(ctx)

	srv := &http.Server{
		Addr:              s.addr,
		Handler:           s.engine,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("addr", s.addr).Msg("http server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return err
		}
		return nil
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Warn().Err(err).Msg("http server shutdown")
	}
	return ctx.Err()
}

func (s *Server) handleWebSocket(c *gin.Context) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Warn().Err(err).Msg("websocket upgrade failed")
		return
	}

	client := &Client{hub: s.deps.Hub, conn: conn, send: make(chan *Message, 64)}
	if !s.deps.Hub.join(client) {
		conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, "shutting down"))
		conn.Close()
		return
	}

	go client.writePump()
	go client.readPump()
}

func requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		log.Debug().
			Str("method", c.Request.Method).
			Str("path", c.FullPath()).
			Int("status", c.Writer.Status()).
			Dur("took", time.Since(start)).
			Msg("http request")
	}
}
