// Package sandbox is a small in-process destination that speaks the bulk
// import protocol: login, import, stats, paginated entity lists and the
// sales trend report. It backs dry runs and end-to-end tests.
package sandbox

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
	"golang.org/x/time/rate"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/erp/seeder/internal/config"
	"github.com/erp/seeder/internal/logger"
)

// Fault decides whether the call-th import into table (1-based, counted
// per table) fails. A non-nil error is answered with 500.
type Fault func(table string, call int) error

// Server is the sandbox destination.
type Server struct {
	db     *gorm.DB
	engine *gin.Engine
	tokens *tokens
	logger *zap.Logger

	limiter *rate.Limiter // nil when imports are not throttled

	mu     sync.Mutex
	fault  Fault
	calls  map[string]int
	ln     net.Listener
	server *http.Server
}

// Option customises a Server.
type Option func(*Server)

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(s *Server) { s.logger = l }
}

// WithFault installs a fault injector.
func WithFault(f Fault) Option {
	return func(s *Server) { s.fault = f }
}

// WithClock replaces the token clock.
func WithClock(now func() time.Time) Option {
	return func(s *Server) { s.tokens.now = now }
}

// WithImportInterval admits one import per interval. Zero or less
// removes the limit.
func WithImportInterval(d time.Duration) Option {
	return func(s *Server) {
		if d <= 0 {
			s.limiter = nil
			return
		}
		s.limiter = rate.NewLimiter(rate.Every(d), 1)
	}
}

// New opens the store, migrates it, seeds warehouses and the login user,
// and builds the router.
func New(cfg config.SandboxConfig, opts ...Option) (*Server, error) {
	if cfg.Username == "" || cfg.Password == "" {
		return nil, errors.New("sandbox: username and password are required")
	}
	dsn := cfg.DSN
	if dsn == "" {
		dsn = ":memory:"
	}
	secret := cfg.JWTSecret
	if secret == "" {
		secret = uuid.NewString()
	}

	s := &Server{
		tokens: &tokens{secret: []byte(secret), issuer: "erp-sandbox", now: time.Now},
		logger: zap.NewNop(),
		calls:  make(map[string]int),
	}
	WithImportInterval(cfg.ImportInterval)(s)
	for _, opt := range opts {
		opt(s)
	}

	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.NewGormLogger(s.logger, gormlogger.Warn, 200*time.Millisecond),
	})
	if err != nil {
		return nil, fmt.Errorf("sandbox: opening %s: %w", dsn, err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	// sqlite allows one writer; a single connection also keeps an
	// in-memory database alive and shared.
	sqlDB.SetMaxOpenConns(1)
	s.db = db

	if err := s.migrate(cfg.Username, cfg.Password); err != nil {
		_ = sqlDB.Close()
		return nil, err
	}
	s.engine = s.routes()
	return s, nil
}

func (s *Server) migrate(username, password string) error {
	if err := s.db.AutoMigrate(allModels()...); err != nil {
		return fmt.Errorf("sandbox: migrate: %w", err)
	}

	warehouses := []Warehouse{
		{Code: "WH001", Name: "Main Warehouse", IsDefault: true},
		{Code: "WH002", Name: "Secondary Warehouse"},
	}
	for _, w := range warehouses {
		if err := s.db.Where(Warehouse{Code: w.Code}).FirstOrCreate(&w).Error; err != nil {
			return fmt.Errorf("sandbox: seeding warehouses: %w", err)
		}
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("sandbox: hashing password: %w", err)
	}
	user := User{Username: username}
	if err := s.db.Where(User{Username: username}).
		Assign(User{PasswordHash: string(hash)}).
		FirstOrCreate(&user).Error; err != nil {
		return fmt.Errorf("sandbox: seeding user: %w", err)
	}
	return nil
}

func (s *Server) routes() *gin.Engine {
	r := gin.New()
	r.Use(logger.GinMiddleware(s.logger), logger.Recovery(s.logger))

	r.GET("/health", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"status": "ok"}) })
	r.POST("/auth/login", s.login)

	api := r.Group("/", s.requireToken())
	api.POST("/data-import/import", s.throttle(), s.importRows)
	api.GET("/data-import/stats", s.stats)
	api.GET("/reports/sales-trend", s.salesTrend)

	api.GET("/customers", listOf[Customer](s))
	api.GET("/suppliers", listOf[Supplier](s))
	api.GET("/items", listOf[Item](s))
	api.GET("/inventory", listOf[Inventory](s))
	api.GET("/sales", listOf[SalesOrder](s))
	api.GET("/purchases", listOf[PurchaseOrder](s))
	api.GET("/warehouses", s.warehouses)
	return r
}

// Handler returns the HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.engine
}

// DB exposes the store, mainly for assertions in tests.
func (s *Server) DB() *gorm.DB {
	return s.db
}

// Start listens on addr and serves in the background.
func (s *Server) Start(addr string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.server != nil {
		return nil
	}

	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("sandbox: listen %s: %w", addr, err)
	}
	s.ln = ln
	s.server = &http.Server{Handler: s.engine, ReadHeaderTimeout: 10 * time.Second}
	go func() {
		if err := s.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("sandbox server stopped", zap.Error(err))
		}
	}()
	s.logger.Info("sandbox listening", zap.String("addr", ln.Addr().String()))
	return nil
}

// URL is the base URL of a started server.
func (s *Server) URL() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ln == nil {
		return ""
	}
	return "http://" + s.ln.Addr().String()
}

// Close stops serving and closes the store.
func (s *Server) Close(ctx context.Context) error {
	s.mu.Lock()
	srv := s.server
	s.server = nil
	s.ln = nil
	s.mu.Unlock()

	var errs []error
	if srv != nil {
		errs = append(errs, srv.Shutdown(ctx))
	}
	if sqlDB, err := s.db.DB(); err == nil {
		errs = append(errs, sqlDB.Close())
	}
	return errors.Join(errs...)
}
