// Package server exposes the movie catalog over REST, GraphQL and gRPC health
// checking, and owns the lifecycle of the enrichment job.
package server

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/readpref"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"

	"github.com/open-saves/movie-catalog/catalog"
	"github.com/open-saves/movie-catalog/enrich"
)

const shutdownTimeout = 15 * time.Second

// Server represents the movie catalog server
type Server struct {
	config  *Config
	logger  *logrus.Logger
	client  *mongo.Client
	repo    catalog.Repository
	ping    func(ctx context.Context) error
	cache   enrich.Cache
	job     *enrich.Job
	router  chi.Router
	httpSrv *http.Server
	grpcSrv *grpc.Server
	health  *health.Server

	stopJob func()
	jobDone chan struct{}
}

// NewServer connects to the store and wires every component
func NewServer(ctx context.Context, config *Config, logger *logrus.Logger) (*Server, error) {
	client, err := ConnectDocumentDB(ctx, config, logger)
	if err != nil {
		return nil, err
	}

	repo, err := OpenRepository(ctx, client, config)
	if err != nil {
		_ = client.Disconnect(context.Background())
		return nil, err
	}

	s := newServer(config, logger, repo, func(ctx context.Context) error {
		return client.Ping(ctx, readpref.Primary())
	})
	s.client = client

	if config.Enrichment.Enabled {
		job, cache, err := NewEnrichJob(ctx, config, logger, repo)
		if err != nil {
			_ = client.Disconnect(context.Background())
			return nil, fmt.Errorf("failed to create enrichment job: %v", err)
		}
		s.job = job
		s.cache = cache
	} else {
		logger.Info("enrichment disabled")
	}

	return s, nil
}

// newServer builds the HTTP and gRPC surfaces over repo
func newServer(config *Config, logger *logrus.Logger, repo catalog.Repository, ping func(ctx context.Context) error) *Server {
	grpcSrv := grpc.NewServer()
	healthSrv := health.NewServer()
	healthpb.RegisterHealthServer(grpcSrv, healthSrv)
	reflection.Register(grpcSrv)

	s := &Server{
		config:  config,
		logger:  logger,
		repo:    repo,
		ping:    ping,
		grpcSrv: grpcSrv,
		health:  healthSrv,
	}
	s.router = s.routes()
	return s
}

func (s *Server) routes() chi.Router {
	r := chi.NewRouter()
	r.Use(requestID)
	r.Use(accessLog(s.logger))
	r.Use(middleware.Recoverer)

	r.Get("/health", s.handleHealth)
	r.Handle("/metrics", promhttp.Handler())
	r.Method(http.MethodPost, "/graphql", graphqlHandler(s.repo))

	r.Route("/v1/movie", func(r chi.Router) {
		r.Post("/", s.handleCreateMovie)
		r.Get("/", s.handleListMovies)
		r.Get("/{id}", s.handleGetMovie)
		r.Patch("/{id}", s.handleUpdateMovie)
		r.Delete("/{id}", s.handleDeleteMovie)
	})

	return r
}

// Handler returns the HTTP handler of the server
func (s *Server) Handler() http.Handler {
	return s.router
}

// OpenRepository returns the movie repository over the configured collection
// with its indexes in place
func OpenRepository(ctx context.Context, client *mongo.Client, config *Config) (*catalog.DocumentDBRepository, error) {
	db := config.AWS.DocumentDB
	repo := catalog.NewDocumentDBRepository(
		client.Database(db.DatabaseName).Collection(db.Collection),
		catalog.WithUniqueNames(!db.AllowDuplicateNames),
	)
	if err := repo.EnsureIndexes(ctx); err != nil {
		return nil, err
	}
	return repo, nil
}

// NewEnrichJob builds the TMDB enrichment job. Redis is used to remember
// processed titles when reachable, otherwise nothing is remembered.
func NewEnrichJob(ctx context.Context, config *Config, logger *logrus.Logger, c enrich.Catalog) (*enrich.Job, enrich.Cache, error) {
	e := config.Enrichment
	feed, err := enrich.NewTMDBClient(enrich.TMDBOptions{
		BaseURL:           e.BaseURL,
		AccessToken:       e.AccessToken,
		DiscoverQuery:     e.DiscoverQuery,
		RequestsPerSecond: e.RequestsPerSecond,
		Timeout:           time.Duration(e.TimeoutSeconds) * time.Second,
		RetryCount:        e.RetryCount,
	})
	if err != nil {
		return nil, nil, err
	}

	var cache enrich.Cache = &enrich.NoOpCache{}
	if addr := config.AWS.ElastiCache.Address; addr != "" {
		redisCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
		defer cancel()

		redisCache, err := enrich.NewRedisCache(redisCtx, addr, config.AWS.ElastiCache.TTL)
		if err != nil {
			logger.WithError(err).Warn("failed to create Redis cache, continuing with NoOpCache")
		} else {
			cache = redisCache
			logger.WithField("address", addr).Info("connected to Redis cache")
		}
	} else {
		logger.Info("no Redis address configured, using NoOpCache")
	}

	job := enrich.NewJob(feed, c, cache, logger, enrich.JobOptions{
		Interval:    config.Interval(),
		Concurrency: e.Concurrency,
	})
	return job, cache, nil
}

// Start serves gRPC and HTTP and runs the enrichment job until ctx is done,
// then shuts everything down
func (s *Server) Start(ctx context.Context) error {
	grpcAddr := fmt.Sprintf(":%d", s.config.Server.GRPCPort)
	lis, err := net.Listen("tcp", grpcAddr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %v", grpcAddr, err)
	}

	errCh := make(chan error, 2)
	go func() {
		s.logger.WithField("addr", grpcAddr).Info("gRPC server listening")
		if err := s.grpcSrv.Serve(lis); err != nil {
			errCh <- fmt.Errorf("failed to serve gRPC: %v", err)
		}
	}()
	s.health.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)

	s.startJob()

	s.httpSrv = &http.Server{
		Addr:              fmt.Sprintf(":%d", s.config.Server.HTTPPort),
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		s.logger.WithField("addr", s.httpSrv.Addr).Info("HTTP server listening")
		if err := s.httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("failed to serve HTTP: %v", err)
		}
	}()

	select {
	case <-ctx.Done():
		s.logger.Info("shutting down")
	case err = <-errCh:
		s.logger.WithError(err).Error("server failed")
	}

	stopCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	s.Stop(stopCtx)
	return err
}

func (s *Server) startJob() {
	if s.job == nil {
		return
	}
	jobCtx, cancel := context.WithCancel(context.Background())
	s.stopJob = cancel
	s.jobDone = make(chan struct{})
	go func() {
		defer close(s.jobDone)
		s.job.Run(jobCtx)
	}()
}

// Stop stops the server
func (s *Server) Stop(ctx context.Context) {
	s.health.Shutdown()

	if s.httpSrv != nil {
		if err := s.httpSrv.Shutdown(ctx); err != nil {
			s.logger.WithError(err).Warn("HTTP shutdown incomplete")
		}
	}
	s.grpcSrv.GracefulStop()

	if s.stopJob != nil {
		s.stopJob()
		select {
		case <-s.jobDone:
		case <-ctx.Done():
			s.logger.Warn("enrichment job still running at shutdown")
		}
	}

	if closer, ok := s.cache.(io.Closer); ok {
		closer.Close()
	}
	if s.client != nil {
		if err := s.client.Disconnect(ctx); err != nil {
			s.logger.WithError(err).Warn("failed to disconnect from DocumentDB")
		}
	}
}
