package server

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/betbot/apexwallet/internal/store"
	"github.com/betbot/apexwallet/internal/wallet"
	"github.com/betbot/apexwallet/pkg/logger"
)

// Wallet is what the HTTP surface needs from *wallet.Wallet.
type Wallet interface {
	Accounts() []string
	Balance(ctx context.Context, accountID, coin string) (decimal.Decimal, error)
	CanAfford(ctx context.Context, accountID, fiat, crypto string, side wallet.Side, amount decimal.Decimal) (bool, error)
	SendCoins(ctx context.Context, accountID, address string, amount decimal.Decimal, coin string) (wallet.SendResult, error)
	ResolveTransactionID(ctx context.Context, accountID, requestCode string) (string, bool, error)
	ResolvePending(ctx context.Context, accountID string) ([]store.Withdrawal, error)
	Withdrawals(ctx context.Context, accountID string, limit int) ([]store.Withdrawal, error)
	GetStatus(ctx context.Context, accountID, address string) (wallet.Status, error)
	NewAddress(ctx context.Context, accountID, coin string) (string, error)
	NewFunding(ctx context.Context, accountID, coin string) (wallet.FundingSnapshot, error)
}

type Config struct {
	// ReadTimeout bounds venue reads made on behalf of one request.
	ReadTimeout time.Duration
	// SendTimeout bounds a withdrawal including transaction id polling.
	SendTimeout time.Duration
}

type Server struct {
	cfg    Config
	wallet Wallet
	log    *logrus.Entry
}

func New(cfg Config, w Wallet) *Server {
	if cfg.ReadTimeout <= 0 {
		cfg.ReadTimeout = 15 * time.Second
	}
	if cfg.SendTimeout <= 0 {
		cfg.SendTimeout = 2 * time.Minute
	}
	return &Server{cfg: cfg, wallet: w, log: logger.WithField("component", "server")}
}

func (s *Server) Router() http.Handler {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery(), s.requestLog())

	r.GET("/healthz", s.wrap(func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusOK) }))

	api := r.Group("/api")

	accounts := api.Group("/accounts")
	accounts.GET("/", s.wrap(s.handleAccountsList))
	accountID := accounts.Group("/:accountID")
	accountID.GET("/balance/:coin", s.wrap(s.handleBalance))
	accountID.GET("/affordability", s.wrap(s.handleAffordability))
	accountID.GET("/withdrawals", s.wrap(s.handleWithdrawalsList))
	accountID.POST("/withdrawals", s.wrap(s.handleSendCoins))
	accountID.POST("/withdrawals/resolve", s.wrap(s.handleResolve))
	accountID.GET("/status", s.wrap(s.handleStatus))
	accountID.POST("/addresses/:coin", s.wrap(s.handleNewAddress))
	accountID.GET("/funding/:coin", s.wrap(s.handleFunding))

	return r
}

const requestIDHeader = "X-Request-ID"

// requestLog tags every request with an id, echoed in the response, and logs
// it once served.
func (s *Server) requestLog() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(requestIDHeader)
		if id == "" {
			id = uuid.NewString()
		}
		c.Header(requestIDHeader, id)
		start := time.Now()
		c.Next()
		s.log.WithFields(logrus.Fields{
			"request_id": id,
			"method":     c.Request.Method,
			"path":       c.FullPath(),
			"status":     c.Writer.Status(),
			"elapsed":    time.Since(start).String(),
		}).Debug("request served")
	}
}

type paramsKeyType string

const paramsKey paramsKeyType = "apexwallet_path_params"

// wrap adapts net/http handlers to gin, injecting path params into request context.
func (s *Server) wrap(h func(http.ResponseWriter, *http.Request)) gin.HandlerFunc {
	return func(c *gin.Context) {
		m := map[string]string{}
		for _, p := range c.Params {
			m[p.Key] = p.Value
		}
		ctx := context.WithValue(c.Request.Context(), paramsKey, m)
		c.Request = c.Request.WithContext(ctx)
		h(c.Writer, c.Request)
	}
}

func pathParam(r *http.Request, key string) string {
	m, _ := r.Context().Value(paramsKey).(map[string]string)
	return m[key]
}
