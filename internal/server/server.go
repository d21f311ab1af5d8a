package server

import (
	"context"
	"net/http"
	"time"

	"github.com/Metro-Ticketing-System/MTS-BackEnd/internal/auth"
	"github.com/Metro-Ticketing-System/MTS-BackEnd/internal/config"
	"github.com/Metro-Ticketing-System/MTS-BackEnd/internal/payment"
	"github.com/Metro-Ticketing-System/MTS-BackEnd/internal/refund"
	"github.com/Metro-Ticketing-System/MTS-BackEnd/internal/ticket"
	"github.com/Metro-Ticketing-System/MTS-BackEnd/internal/wallet"
	"github.com/gin-gonic/gin"
)

// Handlers groups the HTTP handlers the router mounts.
type Handlers struct {
	Tickets  *ticket.Handler
	Wallets  *wallet.Handler
	Refunds  *refund.Handler
	Payments *payment.Handler

	Checks map[string]HealthCheck
}

type Server struct {
	router *gin.Engine
	http   *http.Server
	config *config.Config
}

func New(cfg *config.Config, h Handlers) *Server {
	registerValidation()

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(RequestIDMiddleware())
	router.Use(RequestLoggingMiddleware())
	router.Use(MetricsMiddleware())
	router.Use(corsMiddleware())
	router.Use(RateLimitMiddleware(cfg.RateLimitRPS, cfg.RateLimitBurst))

	router.GET("/health", Health(h.Checks))
	router.GET("/metrics", Metrics())
	router.GET("/payments/callback", h.Payments.Callback)

	authMiddleware := auth.AuthMiddleware(cfg.JWTSecret)
	protected := router.Group("/")
	protected.Use(authMiddleware)
	{
		protected.POST("/tickets", h.Tickets.Issue)
		protected.GET("/tickets", h.Tickets.List)
		protected.POST("/tickets/check-expire", h.Tickets.CheckExpireForOwner)
		protected.GET("/tickets/:id", h.Tickets.Get)
		protected.GET("/tickets/:id/qr", h.Tickets.QRCode)
		protected.POST("/tickets/:id/check-expire", h.Tickets.CheckExpire)
		protected.POST("/tickets/:id/checkout", h.Payments.TicketCheckout)

		protected.GET("/wallet", h.Wallets.GetBalance)
		protected.GET("/wallet/transactions", h.Wallets.ListTransactions)
		protected.POST("/wallet/topup-url", h.Payments.TopUpCheckout)
		protected.POST("/wallet/purchase/:ticketID", h.Wallets.PurchaseTicket)

		protected.POST("/refunds", h.Refunds.Create)
		protected.GET("/refunds", h.Refunds.ListMine)
	}

	gates := router.Group("/gates")
	gates.Use(authMiddleware, auth.RequireRole(auth.RoleStaff, auth.RoleAdmin))
	{
		gates.POST("/scan", h.Tickets.Scan)
	}

	admin := router.Group("/admin")
	admin.Use(authMiddleware, auth.RequireRole(auth.RoleAdmin))
	{
		admin.GET("/refunds/pending", h.Refunds.ListPending)
		admin.POST("/refunds/:id/process", h.Refunds.Process)
		admin.POST("/tickets/:id/disable", h.Tickets.Disable)
		admin.POST("/tickets/:id/activate", h.Tickets.Activate)
		admin.POST("/wallets/:ownerID", h.Wallets.CreateWallet)
		admin.POST("/wallets/:ownerID/topup", h.Wallets.TopUp)
		admin.GET("/wallets/:ownerID/reconcile", h.Wallets.Reconcile)
	}

	return &Server{
		router: router,
		config: cfg,
		http: &http.Server{
			Addr:              ":" + cfg.Port,
			Handler:           router,
			ReadHeaderTimeout: 10 * time.Second,
		},
	}
}

func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) Start() error {
	return s.http.ListenAndServe()
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.http.Shutdown(ctx)
}

func corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set("Access-Control-Allow-Credentials", "true")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Content-Length, Accept-Encoding, X-CSRF-Token, Authorization, accept, origin, Cache-Control, X-Requested-With, X-Request-ID")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "POST, OPTIONS, GET, PUT, DELETE, PATCH")
		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(204)
			return
		}
		c.Next()
	}
}
