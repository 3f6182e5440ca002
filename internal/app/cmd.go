package app

import (
	"fmt"
	"io"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/hitoshi/newshub/internal/article"
	"github.com/hitoshi/newshub/internal/auth"
	"github.com/hitoshi/newshub/internal/config"
	"github.com/hitoshi/newshub/internal/model"
)

// ビルド時に -ldflags "-X" で上書きされる。
var (
	version = "dev"
	commit  = "none"
)

// NewRootCommand はnewshubのルートコマンドを生成する。
// サブコマンドを省略した場合はserveとして動作する。
// ログはwに出力し、コマンドの結果表示は標準出力に行う。
func NewRootCommand(w io.Writer) *cobra.Command {
	root := &cobra.Command{
		Use:           "newshub",
		Short:         "News aggregation API server",
		Long:          "newshub ingests articles from a news provider or RSS/Atom feeds, stores them in PostgreSQL and serves them over a JSON API.",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withConfig(cmd, w, "serve", runServe)
		},
	}

	root.AddCommand(
		newServeCommand(w),
		newMigrateCommand(w),
		newIngestCommand(w),
		newImportFeedCommand(w),
		newPurgeCommand(w),
		newSyncSourcesCommand(w),
		newCreateUserCommand(w),
		newHealthcheckCommand(),
		newVersionCommand(),
	)
	return root
}

// withConfig は設定を読み込んでからfnを実行する。
func withConfig(cmd *cobra.Command, w io.Writer, name string, fn func(cmd *cobra.Command, cfg *config.Config, logger *slog.Logger) error) error {
	cfg, logger, err := Init(w)
	if err != nil {
		return fmt.Errorf("initialization failed: %w", err)
	}
	logger.Info("starting command",
		slog.String("command", name),
		slog.String("version", version),
	)
	return fn(cmd, cfg, logger)
}

func newServeCommand(w io.Writer) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withConfig(cmd, w, "serve", runServe)
		},
	}
}

func newMigrateCommand(w io.Writer) *cobra.Command {
	var down int
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply all pending database migrations",
		Long: `Apply all pending database migrations.

With --down N the latest N migrations are rolled back instead.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if down > 0 {
				return withConfig(cmd, w, "migrate", func(cmd *cobra.Command, cfg *config.Config, logger *slog.Logger) error {
					return runRollback(cfg, logger, down)
				})
			}
			return withConfig(cmd, w, "migrate", runMigrate)
		},
	}
	cmd.Flags().IntVar(&down, "down", 0, "roll back the latest N migrations")
	return cmd
}

func newIngestCommand(w io.Writer) *cobra.Command {
	var req struct {
		category string
		country  string
		sources  string
		query    string
	}
	cmd := &cobra.Command{
		Use:   "ingest",
		Short: "Fetch articles from the news provider and store them",
		Long: `Fetch top headlines from the configured news provider and store new articles.

Category and country default to DEFAULT_CATEGORY and DEFAULT_COUNTRY.
Exits with a non-zero status when ingestion fails, so it can be scheduled from cron.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withConfig(cmd, w, "ingest", func(cmd *cobra.Command, cfg *config.Config, logger *slog.Logger) error {
				return runWithComponents(cmd, cfg, logger, func(c *components) error {
					res := c.articles.FetchAndStore(cmd.Context(), article.IngestRequest{
						Category: model.Category(req.category),
						Country:  req.country,
						Sources:  req.sources,
						Query:    req.query,
					})
					return reportIngest(cmd.OutOrStdout(), res)
				})
			})
		},
	}
	cmd.Flags().StringVar(&req.category, "category", "", "article category (e.g. technology, sports, all)")
	cmd.Flags().StringVar(&req.country, "country", "", "two-letter country code")
	cmd.Flags().StringVar(&req.sources, "sources", "", "comma-separated provider source ids")
	cmd.Flags().StringVar(&req.query, "query", "", "free-text search query")
	return cmd
}

func newImportFeedCommand(w io.Writer) *cobra.Command {
	var feedURL, category string
	cmd := &cobra.Command{
		Use:   "import-feed",
		Short: "Import articles from an RSS or Atom feed",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withConfig(cmd, w, "import-feed", func(cmd *cobra.Command, cfg *config.Config, logger *slog.Logger) error {
				return runWithComponents(cmd, cfg, logger, func(c *components) error {
					cat := model.Category(category)
					if cat == "" {
						cat = cfg.DefaultCategory
					}
					res := c.articles.ImportFeed(cmd.Context(), feedURL, cat)
					return reportIngest(cmd.OutOrStdout(), res)
				})
			})
		},
	}
	cmd.Flags().StringVar(&feedURL, "url", "", "feed URL (http or https)")
	cmd.Flags().StringVar(&category, "category", "", "category assigned to imported articles")
	_ = cmd.MarkFlagRequired("url")
	return cmd
}

func newPurgeCommand(w io.Writer) *cobra.Command {
	var days int
	cmd := &cobra.Command{
		Use:   "purge",
		Short: "Delete articles older than the retention period",
		Long: `Delete articles created more than --days days ago, along with expired login sessions.
View rows of deleted articles are removed by cascade.

Uses PURGE_RETENTION_DAYS (default: 30) unless overridden with --days.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withConfig(cmd, w, "purge", func(cmd *cobra.Command, cfg *config.Config, logger *slog.Logger) error {
				return runWithComponents(cmd, cfg, logger, func(c *components) error {
					if days == 0 {
						days = cfg.PurgeRetentionDays
					}
					res, err := c.cleanup.Run(cmd.Context(), days)
					if err != nil {
						return fmt.Errorf("purging: %w", err)
					}
					fmt.Fprintf(cmd.OutOrStdout(), "Deleted %d article(s) older than %d day(s) and %d expired session(s).\n",
						res.Articles, days, res.Sessions)
					return nil
				})
			})
		},
	}
	cmd.Flags().IntVar(&days, "days", 0, "override retention period in days")
	return cmd
}

func newSyncSourcesCommand(w io.Writer) *cobra.Command {
	return &cobra.Command{
		Use:   "sync-sources",
		Short: "Refresh the source catalogue from the news provider",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withConfig(cmd, w, "sync-sources", func(cmd *cobra.Command, cfg *config.Config, logger *slog.Logger) error {
				return runWithComponents(cmd, cfg, logger, func(c *components) error {
					res := c.sources.Sync(cmd.Context())
					fmt.Fprintln(cmd.OutOrStdout(), res.Message)
					if !res.Success {
						return fmt.Errorf("source sync failed (%s)", res.Kind)
					}
					return nil
				})
			})
		},
	}
}

func newCreateUserCommand(w io.Writer) *cobra.Command {
	var in auth.RegisterInput
	var role string
	cmd := &cobra.Command{
		Use:   "create-user",
		Short: "Create a user account with any role",
		Long:  "Create a user account directly in the database. Unlike POST /auth/register, any role may be assigned.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withConfig(cmd, w, "create-user", func(cmd *cobra.Command, cfg *config.Config, logger *slog.Logger) error {
				return runWithComponents(cmd, cfg, logger, func(c *components) error {
					in.Role = model.Role(role)
					u, err := c.auth.Register(cmd.Context(), in)
					if err != nil {
						return fmt.Errorf("creating user: %w", err)
					}
					fmt.Fprintf(cmd.OutOrStdout(), "Created user %s (id: %s, role: %s).\n", u.Username, u.ID, u.Role)
					return nil
				})
			})
		},
	}
	cmd.Flags().StringVar(&in.Username, "username", "", "login name")
	cmd.Flags().StringVar(&in.Password, "password", "", "password")
	cmd.Flags().StringVar(&in.Email, "email", "", "email address (optional)")
	cmd.Flags().StringVar(&role, "role", string(model.RoleUser), "admin, editor or user")
	_ = cmd.MarkFlagRequired("username")
	_ = cmd.MarkFlagRequired("password")
	return cmd
}

// newHealthcheckCommand はdistroless環境でのDockerヘルスチェック用サブコマンドを生成する。
// フル初期化は行わず、SERVER_PORTのみを参照する。
func newHealthcheckCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "healthcheck",
		Short: "Check the local /health endpoint",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runHealthcheck(cmd.Context(), healthcheckURL())
		},
	}
}

func newVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "newshub %s (commit: %s)\n", version, commit)
		},
	}
}

// reportIngest は取り込み結果を表示し、失敗時はエラーを返す。
func reportIngest(out io.Writer, res article.IngestResult) error {
	fmt.Fprintln(out, res.Message)
	if !res.Success {
		return fmt.Errorf("ingestion failed (%s)", res.Kind)
	}
	fmt.Fprintf(out, "Reported: %d, stored: %d\n", res.TotalReported, res.StoredCount)
	return nil
}
