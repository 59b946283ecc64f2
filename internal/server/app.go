// Package server initializes and runs the accountgate server: it opens the
// database, applies migrations, wires the account service and runs the HTTP
// and gRPC transports until a shutdown signal arrives.
package server

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/dmitrijs2005/accountgate/internal/logging"
	"github.com/dmitrijs2005/accountgate/internal/server/auth"
	"github.com/dmitrijs2005/accountgate/internal/server/config"
	"github.com/dmitrijs2005/accountgate/internal/server/httpapi"
	"github.com/dmitrijs2005/accountgate/internal/server/repositories/repomanager"
	"github.com/dmitrijs2005/accountgate/internal/server/services"
	"github.com/gin-gonic/gin"

	gs "github.com/dmitrijs2005/accountgate/internal/server/grpc"
)

type App struct {
	config         *config.Config
	logger         logging.Logger
	db             *sql.DB
	issuer         auth.TokenIssuer
	accountService *services.AccountService
}

// sqlOpen is a seam for tests.
var sqlOpen = sql.Open

// NewApp connects to the database, brings the schema up to date and builds
// the service graph. m may be nil, in which case the PostgreSQL manager is used.
func NewApp(ctx context.Context, c *config.Config, m repomanager.RepositoryManager) (*App, error) {
	logger := logging.NewJSONLogger(os.Stdout, c.LogLevel)

	if m == nil {
		m = repomanager.NewPostgresRepositoryManager()
	}

	db, err := sqlOpen("pgx", c.DatabaseDSN)
	if err != nil {
		return nil, fmt.Errorf("db init error: %w", err)
	}

	if err := m.RunMigrations(ctx, db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("migrations error: %w", err)
	}

	issuer := auth.NewJWTIssuer(c.SecretKey)
	as := services.NewAccountService(db, m, auth.NewBcryptHasher(c.BcryptCost), issuer, c, logger)

	return &App{config: c, logger: logger, db: db, issuer: issuer, accountService: as}, nil
}

func (app *App) initSignalHandler(cancelFunc context.CancelFunc) {
	// Channel to catch OS signals.
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)

	go func() {
		<-sigs
		cancelFunc()
	}()
}

func (app *App) startGRPCServer(ctx context.Context, cancelFunc context.CancelFunc) {
	s := gs.NewGRPCServer(app.config.EndpointAddrGRPC, app.logger, app.accountService, app.issuer)

	if err := s.Run(ctx); err != nil {
		app.logger.Error(ctx, err.Error())
		cancelFunc()
	}
}

func (app *App) startHTTPServer(ctx context.Context, cancelFunc context.CancelFunc) {
	gin.SetMode(gin.ReleaseMode)

	h := httpapi.NewHandler(app.accountService, app.logger)
	router := httpapi.NewRouter(h, app.issuer, app.logger, httpapi.RouterConfig{
		LoginRateLimit: app.config.LoginRateLimit,
		LoginRateBurst: app.config.LoginRateBurst,
	})

	s := httpapi.NewServer(app.config.EndpointAddrHTTP, router, app.logger)
	if err := s.Run(ctx); err != nil {
		app.logger.Error(ctx, err.Error())
		cancelFunc()
	}
}

// Run starts both transports and blocks until ctx is cancelled, a signal
// arrives or one of the servers fails. The database is closed on return.
func (app *App) Run(ctx context.Context) {
	ctx, cancelFunc := context.WithCancel(ctx)
	defer cancelFunc()

	app.logger.Info(ctx, "Starting app...")

	app.initSignalHandler(cancelFunc)

	var wg sync.WaitGroup

	wg.Add(2)
	go func() {
		defer wg.Done()
		app.startGRPCServer(ctx, cancelFunc)
	}()
	go func() {
		defer wg.Done()
		app.startHTTPServer(ctx, cancelFunc)
	}()

	wg.Wait()

	if err := app.db.Close(); err != nil {
		app.logger.Error(ctx, "db close", "error", err)
	}
	app.logger.Info(ctx, "App stopped")
}
