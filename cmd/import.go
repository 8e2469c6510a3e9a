package cmd

import (
	"context"
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/ziadkadry99/cineforum/internal/embeddings"
	"github.com/ziadkadry99/cineforum/internal/gamification"
	"github.com/ziadkadry99/cineforum/internal/movies"
	"github.com/ziadkadry99/cineforum/internal/progress"
	"github.com/ziadkadry99/cineforum/internal/similar"
)

var importPages int

var importCmd = &cobra.Command{
	Use:   "import",
	Short: "Import films from the catalog into the library",
}

var importPopularCmd = &cobra.Command{
	Use:   "popular",
	Short: "Import the catalog's popular films",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withMovieService(cmd.Context(), func(ctx context.Context, svc *movies.Service) error {
			n, err := svc.ImportPopular(ctx, importPages, progress.NewReporter("Importing"))
			if err != nil {
				return err
			}
			fmt.Printf("Imported %d films.\n", n)
			return nil
		})
	},
}

var importMovieCmd = &cobra.Command{
	Use:   "movie <catalog-id>...",
	Short: "Import films by catalog ID",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ids := make([]int64, len(args))
		for i, a := range args {
			id, err := strconv.ParseInt(a, 10, 64)
			if err != nil || id <= 0 {
				return fmt.Errorf("invalid catalog id %q", a)
			}
			ids[i] = id
		}
		return withMovieService(cmd.Context(), func(ctx context.Context, svc *movies.Service) error {
			for _, id := range ids {
				m, err := svc.ImportFromCatalog(ctx, id)
				if err != nil {
					return fmt.Errorf("importing %d: %w", id, err)
				}
				fmt.Printf("Imported %s (%d).\n", m.Title, m.Year)
			}
			return nil
		})
	},
}

var importIndexCmd = &cobra.Command{
	Use:   "index",
	Short: "Embed the library into the similarity index",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		ctx := cmd.Context()
		database, err := openDatabase(ctx, cfg)
		if err != nil {
			return err
		}
		defer database.Close()

		embedder, err := embeddings.New(cfg.LLM)
		if err != nil {
			return fmt.Errorf("creating embedder: %w", err)
		}
		index, err := similar.New(embedder, movies.NewStore(database))
		if err != nil {
			return err
		}
		if !index.Enabled() {
			return similar.ErrDisabled
		}

		path := similarIndexPath(cfg)
		if err := index.Load(path); err != nil {
			return err
		}
		n, err := index.IndexLibrary(ctx, progress.NewReporter("Embedding"))
		if err != nil {
			return err
		}
		if err := index.Persist(path); err != nil {
			return err
		}
		fmt.Printf("Embedded %d films, %d in the index.\n", n, index.Count())
		return nil
	},
}

func withMovieService(ctx context.Context, fn func(context.Context, *movies.Service) error) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	database, err := openDatabase(ctx, cfg)
	if err != nil {
		return err
	}
	defer database.Close()

	cat := createCatalog(cfg)
	if cat == nil {
		return fmt.Errorf("%w: set %s", movies.ErrNoCatalog, cfg.Catalog.APIKeyEnv)
	}
	svc := movies.NewService(movies.NewStore(database), cat, gamification.NewEngine(database, nil), nil)
	return fn(ctx, svc)
}

func init() {
	importPopularCmd.Flags().IntVar(&importPages, "pages", 1, "number of catalog pages (20 films each)")
	importCmd.AddCommand(importPopularCmd, importMovieCmd, importIndexCmd)
	rootCmd.AddCommand(importCmd)
}
