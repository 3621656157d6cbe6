package server

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/httplog/v3"
	"github.com/rs/cors"
	"golang.org/x/sync/errgroup"

	"github.com/bergamot1144/P2P-Monitor/provider"
	"github.com/bergamot1144/P2P-Monitor/provider/binance"
	"github.com/bergamot1144/P2P-Monitor/provider/bybit"
	"github.com/bergamot1144/P2P-Monitor/refdata"
	"github.com/bergamot1144/P2P-Monitor/server/config"
)

var noopLogger = slog.New(slog.NewTextHandler(io.Discard, nil))

// BinanceSource is the Binance P2P order-book upstream
type BinanceSource interface {
	FetchBook(ctx context.Context, params binance.SearchParams) (*provider.Book, error)
	PayTypes(ctx context.Context, params binance.SearchParams) ([]binance.PayMethod, error)
}

// BybitSource is the Bybit P2P order-book upstream
type BybitSource interface {
	FetchBook(ctx context.Context, params bybit.SearchParams) (*provider.Book, error)
}

// QuoteSource is a reference-rate upstream (quote page, converter page)
type QuoteSource interface {
	FetchRate(ctx context.Context, from, to provider.Currency) (*provider.Quote, error)
}

// Sources bundles the upstream collaborators the handlers fan out to
type Sources struct {
	Binance  BinanceSource
	Bybit    BybitSource
	GFinance QuoteSource
	XE       QuoteSource
	Tables   *refdata.Tables
}

type Server struct {
	logger *slog.Logger
	config *config.Config

	sources Sources

	mux *chi.Mux
}

// New creates a new server instance around the given upstream sources
func New(sources Sources, opts ...Option) (*Server, error) {
	s := &Server{
		logger:  noopLogger,
		sources: sources,
		config:  config.DefaultConfig(),
		mux:     chi.NewMux(),
	}

	// Apply the options
	for _, opt := range opts {
		opt(s)
	}

	// Validate the configuration
	if err := config.ValidateConfig(s.config); err != nil {
		return nil, fmt.Errorf("invalid configuration, %w", err)
	}

	// Set up the CORS middleware
	if s.config.CORSConfig != nil {
		corsMiddleware := cors.New(cors.Options{
			AllowedOrigins: s.config.CORSConfig.AllowedOrigins,
			AllowedMethods: s.config.CORSConfig.AllowedMethods,
			AllowedHeaders: s.config.CORSConfig.AllowedHeaders,
		})

		s.mux.Use(corsMiddleware.Handler)
	}

	s.mux.Use(httplog.RequestLogger(s.logger, &httplog.Options{
		Level:         slog.LevelInfo,
		Schema:        httplog.SchemaOTEL,
		RecoverPanics: true,
		Skip: func(r *http.Request, respStatus int) bool {
			return respStatus == 404 || respStatus == 405 || r.URL.Path == "/healthz"
		},
	}))

	s.registerRoutes()

	return s, nil
}

// registerRoutes wires the dashboard API
func (s *Server) registerRoutes() {
	s.mux.Get("/", s.Dashboard)

	s.mux.Get("/api/rates", s.Rates)
	s.mux.Get("/api/binance/paytypes", s.BinancePayTypes)
	s.mux.Get("/api/bybit/payments", s.BybitPayments)
	s.mux.Get("/api/xe", s.XERate)
	s.mux.Get("/api/xe/codes", s.XECodes)
	s.mux.Get("/api/gf", s.GFRate)

	s.mux.Get("/healthz", func(writer http.ResponseWriter, _ *http.Request) {
		writer.WriteHeader(http.StatusOK)

		_, _ = writer.Write([]byte("ok")) //nolint:errcheck // Fine to ignore
	})
}

// Serve serves the P2P monitor service
func (s *Server) Serve(ctx context.Context) error {
	server := &http.Server{
		Addr:              s.config.ListenAddress,
		Handler:           s.mux,
		ReadHeaderTimeout: 60 * time.Second,
	}

	group, gCtx := errgroup.WithContext(ctx)

	group.Go(func() error {
		defer s.logger.Info("server shut down")

		ln, err := net.Listen("tcp", server.Addr)
		if err != nil {
			return err
		}

		s.logger.Info(
			fmt.Sprintf(
				"server started at %s",
				ln.Addr().String(),
			),
		)

		if err := server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}

		return nil
	})

	group.Go(func() error {
		<-gCtx.Done()

		s.logger.Info("server to be shutdown")

		wsCtx, cancel := context.WithTimeout(context.Background(), time.Second*30)
		defer cancel()

		return server.Shutdown(wsCtx)
	})

	return group.Wait()
}
