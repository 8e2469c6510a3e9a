package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/ziadkadry99/cineforum/internal/audit"
	"github.com/ziadkadry99/cineforum/internal/chat"
	"github.com/ziadkadry99/cineforum/internal/content"
	"github.com/ziadkadry99/cineforum/internal/embeddings"
	"github.com/ziadkadry99/cineforum/internal/events"
	"github.com/ziadkadry99/cineforum/internal/games"
	"github.com/ziadkadry99/cineforum/internal/gamification"
	"github.com/ziadkadry99/cineforum/internal/leaderboard"
	"github.com/ziadkadry99/cineforum/internal/logging"
	"github.com/ziadkadry99/cineforum/internal/movies"
	"github.com/ziadkadry99/cineforum/internal/progress"
	"github.com/ziadkadry99/cineforum/internal/realtime"
	"github.com/ziadkadry99/cineforum/internal/server"
	"github.com/ziadkadry99/cineforum/internal/similar"
	"github.com/ziadkadry99/cineforum/internal/users"
)

var servePort int

const auditRetention = 365 * 24 * time.Hour

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the cineforum API server",
	Long:  `Starts the REST API, the websocket change feed and the event phase poller.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		if servePort != 0 {
			cfg.Server.Port = servePort
		}

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		database, err := openDatabase(ctx, cfg)
		if err != nil {
			return err
		}
		defer database.Close()

		provider, err := createLLMProviderFromConfig(cfg)
		if err != nil {
			return fmt.Errorf("creating LLM provider: %w", err)
		}
		if provider == nil {
			logging.Warn().Msg("no LLM provider configured, AI features disabled")
		}
		embedder, err := embeddings.New(cfg.LLM)
		if err != nil {
			return fmt.Errorf("creating embedder: %w", err)
		}

		hub := realtime.NewHub()
		auditStore := audit.NewStore(database)
		if n, err := auditStore.DeleteBefore(ctx, time.Now().Add(-auditRetention)); err != nil {
			logging.Warn().Err(err).Msg("pruning audit trail")
		} else if n > 0 {
			logging.Info().Int64("entries", n).Msg("pruned audit trail")
		}
		// Every change reaches websocket clients and the tracked ones the audit trail.
		pub := audit.NewRecorder(auditStore, hub)

		engine := gamification.NewEngine(database, pub)
		userSvc := users.NewService(users.NewStore(database))

		filmStore := movies.NewStore(database)
		movieSvc := movies.NewService(filmStore, createCatalog(cfg), engine, pub)

		votingWindow := time.Duration(cfg.Events.VotingWindowHours) * time.Hour
		eventSvc := events.NewService(events.NewStore(database), engine, pub, votingWindow)

		var moderator *chat.Moderator
		if provider != nil {
			moderator = chat.NewModerator(provider, cfg.LLM.Model)
		}
		chatSvc := chat.NewService(chat.NewStore(database), eventSvc, cfg.Chat, moderator, engine, pub)

		gameSvc := games.NewService(games.NewStore(database), filmStore, provider, cfg.LLM.Model, engine)
		if cfg.Games.TriviaQuestions > 0 {
			gameSvc.TriviaQuestions = cfg.Games.TriviaQuestions
		}
		if cfg.Games.TimelineFilms > 0 {
			gameSvc.TimelineFilms = cfg.Games.TimelineFilms
		}

		contentSvc := content.NewService(content.NewStore(database), filmStore, provider, cfg.LLM.Model, pub)

		index, err := similar.New(embedder, filmStore)
		if err != nil {
			return fmt.Errorf("creating similarity index: %w", err)
		}

		var wg sync.WaitGroup
		if index.Enabled() {
			if err := index.Load(similarIndexPath(cfg)); err != nil {
				logging.Warn().Err(err).Msg("could not load similarity index, rebuilding")
			}
			wg.Add(1)
			go func() {
				defer wg.Done()
				if _, err := index.IndexLibrary(ctx, progress.Nop{}); err != nil && ctx.Err() == nil {
					logging.Error().Err(err).Msg("indexing library failed")
				}
			}()
		}

		poller := events.NewPoller(eventSvc, time.Duration(cfg.Events.PollIntervalSeconds)*time.Second)
		wg.Add(1)
		go func() {
			defer wg.Done()
			poller.Run(ctx)
		}()

		srv := server.New(server.Config{
			Port:           cfg.Server.Port,
			AllowedOrigins: cfg.Server.AllowedOrigins,
		}, server.Services{
			DB:          database,
			Users:       userSvc,
			Engine:      engine,
			Movies:      movieSvc,
			Events:      eventSvc,
			Leaderboard: leaderboard.NewStore(database),
			Chat:        chatSvc,
			Games:       gameSvc,
			Content:     contentSvc,
			Similar:     index,
			Audit:       auditStore,
			Hub:         hub,
		})

		go func() {
			<-ctx.Done()
			logging.Info().Msg("shutting down server")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			if err := srv.Shutdown(shutdownCtx); err != nil {
				logging.Error().Err(err).Msg("server shutdown")
			}
		}()

		logging.Info().
			Str("version", Version).
			Str("database", cfg.DatabasePath).
			Bool("catalog", movieSvc.CatalogEnabled()).
			Bool("ai", provider != nil).
			Bool("similar", index.Enabled()).
			Msg("cineforum starting")

		err = srv.Start()
		if errors.Is(err, http.ErrServerClosed) {
			err = nil
		}

		stop()
		wg.Wait()
		hub.Close()
		chatSvc.Wait()
		if index.Enabled() {
			if perr := index.Persist(similarIndexPath(cfg)); perr != nil {
				logging.Error().Err(perr).Msg("persisting similarity index")
			}
		}
		return err
	},
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "port to listen on (overrides config)")
	rootCmd.AddCommand(serveCmd)
}
