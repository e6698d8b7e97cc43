package mcp

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/mark3labs/mcp-go/server"

	"github.com/dshills/issuematch-mcp/internal/cache"
	"github.com/dshills/issuematch-mcp/internal/config"
	"github.com/dshills/issuematch-mcp/internal/embedder"
	"github.com/dshills/issuematch-mcp/internal/fetcher"
	"github.com/dshills/issuematch-mcp/internal/matcher"
	"github.com/dshills/issuematch-mcp/internal/ranker"
	"github.com/dshills/issuematch-mcp/internal/storage"
	"github.com/dshills/issuematch-mcp/internal/summarizer"
)

const (
	// ServerName is the MCP server name
	ServerName = "issuematch-mcp"
	// ServerVersion is the current server version
	ServerVersion = "1.0.0"
)

// Server wraps the MCP server with application dependencies
type Server struct {
	mcp      *server.MCPServer
	matcher  *matcher.Matcher
	embedder embedder.Embedder
	journal  storage.RunStore
	logger   *slog.Logger
}

// NewServer builds the match pipeline described by cfg and registers its tools
func NewServer(cfg *config.Config, logger *slog.Logger) (*Server, error) {
	if cfg == nil {
		cfg = config.Default()
	}
	if logger == nil {
		logger = slog.Default()
	}

	// Open the run journal when a path is configured
	var journal storage.RunStore
	if cfg.Journal.Path != "" {
		if cfg.Journal.Path != ":memory:" {
			if err := os.MkdirAll(filepath.Dir(cfg.Journal.Path), 0755); err != nil {
				return nil, fmt.Errorf("failed to create journal directory: %w", err)
			}
		}
		store, err := storage.NewSQLiteStorage(cfg.Journal.Path)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize journal: %w", err)
		}
		journal = store
	}

	// The provider is constructed on first use
	emb := embedder.LazyFromConfig(embedder.Config{
		Provider:  cfg.Embedding.Provider,
		APIKey:    cfg.Embedding.APIKey,
		BaseURL:   cfg.Embedding.BaseURL,
		Model:     cfg.Embedding.Model,
		CacheSize: cfg.Embedding.CacheSize,
	})

	var overviewer matcher.OverviewProvider
	if cfg.Summarizer.Enabled {
		client, err := summarizer.NewOpenAIClient(summarizer.ClientConfig{
			APIKey:    cfg.Summarizer.APIKey,
			BaseURL:   cfg.Summarizer.BaseURL,
			Model:     cfg.Summarizer.Model,
			MaxTokens: cfg.Summarizer.MaxTokens,
		})
		switch {
		case errors.Is(err, summarizer.ErrNoAPIKey):
			logger.Warn("summarizer enabled without api key, overviews disabled")
		case err != nil:
			return nil, fmt.Errorf("failed to initialize summarizer: %w", err)
		default:
			overviewer = summarizer.NewOverviewer(client,
				summarizer.WithBudget(cfg.Summarizer.Budget),
				summarizer.WithLogger(logger),
			)
		}
	}

	m, err := matcher.New(matcher.Config{
		Cache: cache.New(cfg.Cache.MaxSize, cfg.Cache.TTL),
		Fetcher: fetcher.New(fetcher.Config{
			Timeout:       cfg.Fetch.Timeout,
			MaxConcurrent: cfg.Fetch.MaxConcurrent,
			MaxBodyBytes:  cfg.Fetch.MaxBodyBytes,
			Token:         cfg.Fetch.Token,
			UserAgent:     cfg.Fetch.UserAgent,
			Logger:        logger,
		}),
		Embedder: emb,
		Ranker: ranker.New(ranker.Options{
			Threshold: cfg.Ranking.Threshold,
			TopK:      cfg.Ranking.TopK,
		}),
		Overviewer:     overviewer,
		Journal:        journal,
		EmbedWorkers:   cfg.Embedding.Workers,
		JournalMaxRuns: cfg.Journal.MaxRuns,
		Logger:         logger,
	})
	if err != nil {
		if journal != nil {
			_ = journal.Close()
		}
		return nil, fmt.Errorf("failed to initialize matcher: %w", err)
	}

	return newServer(m, emb, journal, logger), nil
}

// newServer wires an existing matcher into a Server
func newServer(m *matcher.Matcher, emb embedder.Embedder, journal storage.RunStore, logger *slog.Logger) *Server {
	s := &Server{
		mcp:      server.NewMCPServer(ServerName, ServerVersion),
		matcher:  m,
		embedder: emb,
		journal:  journal,
		logger:   logger,
	}
	s.registerTools()
	return s
}

// Serve starts the MCP server on stdio and blocks until shutdown
func (s *Server) Serve(ctx context.Context) error {
	defer func() { _ = s.Close() }()

	errCh := make(chan error, 1)
	go func() { errCh <- server.ServeStdio(s.mcp) }()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		return nil
	}
}

// Close releases the embedder and the run journal
func (s *Server) Close() error {
	var errs []error
	if s.embedder != nil {
		errs = append(errs, s.embedder.Close())
	}
	if s.journal != nil {
		errs = append(errs, s.journal.Close())
	}
	return errors.Join(errs...)
}

// registerTools registers all MCP tools
func (s *Server) registerTools() {
	s.mcp.AddTool(matchFilesTool(), s.handleMatchFiles)
	s.mcp.AddTool(getStatusTool(), s.handleGetStatus)
}
