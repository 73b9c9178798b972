package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"CampaignClinic/cache"
	"CampaignClinic/config"
	"CampaignClinic/database"
	"CampaignClinic/logging"
	"CampaignClinic/metrics"
	"CampaignClinic/rbac"
	"CampaignClinic/routes"
	"CampaignClinic/services"
	"CampaignClinic/utils"

	"github.com/go-redis/redis/v8"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"gorm.io/gorm"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "campaign-clinic",
		Short: "Campaign clinic workflow service",
	}

	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(migrateCmd())
	rootCmd.AddCommand(setupRolesCmd())
	rootCmd.AddCommand(fixPermissionsCmd())
	rootCmd.AddCommand(diagnosePermissionsCmd())
	rootCmd.AddCommand(createAdminCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// app holds what every command needs.
type app struct {
	cfg *config.AppConfig
	log zerolog.Logger
	db  *gorm.DB
}

// bootstrap loads configuration, builds the logger and opens the database.
func bootstrap(ctx context.Context, requireServerSettings bool) (*app, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	if requireServerSettings {
		if err := cfg.Validate(); err != nil {
			return nil, err
		}
	} else if cfg.DBURL == "" {
		return nil, errors.New("DB_URL is required")
	}

	log := logging.New(logging.Options{Level: cfg.LogLevel, Development: cfg.IsDev(), File: cfg.LogFile})

	db, err := database.InitDB(ctx, cfg.DBURL, database.PoolConfig{
		MaxOpenConns: cfg.DBMaxOpenConns,
		MaxIdleConns: cfg.DBMaxIdleConns,
	}, cfg.IsDev(), log)
	if err != nil {
		return nil, err
	}
	return &app{cfg: cfg, log: log, db: db}, nil
}

func (a *app) close() {
	if sqlDB, err := a.db.DB(); err == nil {
		_ = sqlDB.Close()
	}
}

func (a *app) syncer() *services.PermissionSyncService {
	return services.NewPermissionSyncService(a.db, rbac.DefaultRegistry(), rbac.DefaultPolicy(), nil, a.log)
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer(cmd.Context())
		},
	}
}

func runServer(ctx context.Context) error {
	a, err := bootstrap(ctx, true)
	if err != nil {
		return err
	}
	defer a.close()
	cfg, log := a.cfg, a.log

	tokens, err := utils.NewTokenMaker(cfg.SymmetricKey)
	if err != nil {
		return err
	}

	// Redis is optional; without it locks and the cache stay in process.
	var (
		redisClient *redis.Client
		locker      database.Locker = database.NewLocalLocker()
	)
	if cfg.RedisAddress != "" {
		redisClient, err = database.NewRedisClient(ctx, database.DefaultRedisConfig(cfg.RedisAddress), log)
		if err != nil {
			return err
		}
		defer redisClient.Close()
		locker = database.NewRedisLocker(redisClient, log)
	} else {
		log.Warn().Msg("REDIS_URL not set; using in-process patient ID locks and no cache")
	}

	var alerts utils.AlertSender
	if cfg.AlertsEnabled {
		alerts = utils.NewMailer(utils.SMTPConfig{
			Host: cfg.SMTPHost,
			Port: cfg.SMTPPort,
			User: cfg.SMTPUser,
			Pass: cfg.SMTPPass,
		})
	}

	registry := rbac.DefaultRegistry()
	policy := rbac.DefaultPolicy()
	if err := services.NewPermissionSyncService(a.db, registry, policy, nil, log).ProvisionGroups(ctx); err != nil {
		return err
	}

	handler, err := routes.SetupRoutes(routes.Dependencies{
		Config:   cfg,
		DB:       a.db,
		Cache:    cache.NewCache(redisClient),
		Locker:   locker,
		Metrics:  metrics.New(),
		Registry: registry,
		Policy:   policy,
		Tokens:   tokens,
		Alerts:   alerts,
		Log:      log,
	})
	if err != nil {
		return err
	}

	srv := &http.Server{
		Addr:           ":" + cfg.Port,
		Handler:        handler,
		ReadTimeout:    30 * time.Second,
		WriteTimeout:   30 * time.Second,
		MaxHeaderBytes: 1 << 20,
		IdleTimeout:    30 * time.Second,
	}

	var wg sync.WaitGroup
	serveErr := make(chan error, 1)
	go func() {
		log.Info().Str("addr", srv.Addr).Msg("starting server")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
	}()

	stopMonitor := make(chan struct{})
	if redisClient != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ticker := time.NewTicker(time.Minute)
			defer ticker.Stop()
			for {
				select {
				case <-ticker.C:
					database.MonitorRedisPool(redisClient, log)
				case <-stopMonitor:
					return
				}
			}
		}()
	}

	// Graceful shutdown handling
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
	select {
	case <-sig:
	case err := <-serveErr:
		close(stopMonitor)
		wg.Wait()
		return errors.Wrap(err, "listen and serve")
	}

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancelShutdown()

	log.Info().Msg("shutting down server")
	err = srv.Shutdown(shutdownCtx)
	close(stopMonitor)
	wg.Wait()
	if err != nil {
		return errors.Wrap(err, "server shutdown failed")
	}
	log.Info().Msg("server exited gracefully")
	return nil
}

func migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply the database schema",
		RunE: func(cmd *cobra.Command, args []string) error {
			// bootstrap migrates as part of opening the database.
			a, err := bootstrap(cmd.Context(), false)
			if err != nil {
				return err
			}
			defer a.close()
			a.log.Info().Msg("migrations applied")
			return nil
		},
	}
}

func setupRolesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "setup-roles",
		Short: "Create the role groups and grant their permissions",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := bootstrap(cmd.Context(), false)
			if err != nil {
				return err
			}
			defer a.close()

			syncer := a.syncer()
			if err := syncer.ProvisionGroups(cmd.Context()); err != nil {
				return err
			}
			groups, err := syncer.Groups(cmd.Context())
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			for _, g := range groups {
				fmt.Fprintf(out, "%-24s %d permissions\n", g.Name, len(g.Permissions))
			}
			return nil
		},
	}
}

func fixPermissionsCmd() *cobra.Command {
	var opts services.RepairOptions
	cmd := &cobra.Command{
		Use:   "fix-permissions",
		Short: "Bring every user's groups and privilege flags in line with their role",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := bootstrap(cmd.Context(), false)
			if err != nil {
				return err
			}
			defer a.close()

			report, err := a.syncer().RepairAll(cmd.Context(), opts)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if report.DryRun {
				fmt.Fprintln(out, "DRY RUN: no changes were saved")
			}
			fmt.Fprintf(out, "checked %d, fixed %d, unchanged %d, skipped %d, failed %d\n",
				report.Checked, report.Fixed, report.Unchanged, report.Skipped, report.Failed)
			for _, gap := range report.Gaps {
				fmt.Fprintf(out, "  warning: %s\n", gap.Message)
			}
			if report.Failed > 0 {
				return fmt.Errorf("%d users could not be repaired", report.Failed)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&opts.Username, "username", "", "repair a single user")
	cmd.Flags().BoolVar(&opts.DryRun, "dry-run", false, "report what would change without saving")
	return cmd
}

func diagnosePermissionsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "diagnose-permissions",
		Short: "List users whose groups or flags disagree with their role",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := bootstrap(cmd.Context(), false)
			if err != nil {
				return err
			}
			defer a.close()

			problems, err := a.syncer().Diagnose(cmd.Context())
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if len(problems) == 0 {
				fmt.Fprintln(out, "no permission problems found")
				return nil
			}
			for _, p := range problems {
				fmt.Fprintf(out, "%-20s role=%-22s groups=%v: %s\n", p.Username, p.Role, p.Groups, p.Problem)
			}
			fmt.Fprintf(out, "%d users need attention; run fix-permissions\n", len(problems))
			return nil
		},
	}
}

func createAdminCmd() *cobra.Command {
	var in services.UserInput
	cmd := &cobra.Command{
		Use:   "create-admin",
		Short: "Create an administrator account",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := bootstrap(cmd.Context(), false)
			if err != nil {
				return err
			}
			defer a.close()

			registry := rbac.DefaultRegistry()
			policy := rbac.DefaultPolicy()
			gate, err := rbac.NewGate(policy, a.log, nil)
			if err != nil {
				return err
			}
			syncer := services.NewPermissionSyncService(a.db, registry, policy, nil, a.log)
			if err := syncer.ProvisionGroups(cmd.Context()); err != nil {
				return err
			}
			w := services.NewWorkflow(a.db, gate, cache.NewCache(nil), nil, a.log)
			user, res, err := services.NewUserService(w, syncer, registry).CreateAdmin(cmd.Context(), in)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "created administrator %s (id %d), groups added: %v\n", user.Username, user.ID, res.AddedGroups)
			return nil
		},
	}
	cmd.Flags().StringVar(&in.Username, "username", "", "login name")
	cmd.Flags().StringVar(&in.Email, "email", "", "email address")
	cmd.Flags().StringVar(&in.Password, "password", "", "initial password")
	_ = cmd.MarkFlagRequired("username")
	_ = cmd.MarkFlagRequired("email")
	_ = cmd.MarkFlagRequired("password")
	return cmd
}
