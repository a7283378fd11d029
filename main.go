package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"qanda/config"
	"qanda/handlers"
	"qanda/models"
	"qanda/routes"
	"qanda/services"
	"qanda/templates"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"gorm.io/gorm"
)

func main() {
	if err := newRootCommand().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:          "qanda",
		Short:        "Question and answer web application",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context(), configPath)
		},
	}
	cmd.PersistentFlags().StringVar(&configPath, "config", "", "path to a YAML config file (default $QANDA_CONFIG)")

	cmd.AddCommand(&cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context(), configPath)
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "migrate",
		Short: "Create or update the database schema",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			db, err := openDatabase(configPath)
			if err != nil {
				return err
			}
			log.Printf("Database schema is up to date")
			return closeDatabase(db)
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "delete-question <id>",
		Short: "Delete a question and all of its answers",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := strconv.ParseUint(args[0], 10, 32)
			if err != nil {
				return fmt.Errorf("invalid question id %q: %w", args[0], err)
			}

			db, err := openDatabase(configPath)
			if err != nil {
				return err
			}
			defer closeDatabase(db)

			if err := services.NewQAService(db).DeleteQuestion(cmd.Context(), uint(id)); err != nil {
				return fmt.Errorf("delete question %d: %w", id, err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Deleted question %d and its answers\n", id)
			return nil
		},
	})

	return cmd
}

// openDatabase loads configuration, connects and applies the schema.
func openDatabase(configPath string) (*gorm.DB, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	return connect(cfg)
}

func connect(cfg *config.Config) (*gorm.DB, error) {
	db, err := config.InitDB(cfg)
	if err != nil {
		return nil, err
	}
	if err := models.AutoMigrate(db); err != nil {
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	return db, nil
}

func closeDatabase(db *gorm.DB) error {
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func runServe(ctx context.Context, configPath string) error {
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Load configuration
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}
	gin.SetMode(cfg.GinMode)

	// Initialize database
	db, err := connect(cfg)
	if err != nil {
		return err
	}
	defer closeDatabase(db)

	// Initialize Redis
	redisClient := config.InitRedis(cfg)
	defer redisClient.Close()
	if err := redisClient.Ping(ctx).Err(); err != nil {
		log.Printf("Redis unavailable at %s, flash messages will be dropped: %v", redisClient.Options().Addr, err)
	}

	tmpl, err := templates.Load()
	if err != nil {
		return fmt.Errorf("failed to load templates: %w", err)
	}

	// Initialize services
	metrics := services.NewMetrics(prometheus.DefaultRegisterer)
	qaService := services.NewQAService(db, services.WithMetrics(metrics))
	flashService := services.NewFlashService(redisClient)

	// Initialize WebSocket hub
	hub := services.NewHub()
	go hub.Run(ctx)

	// Initialize handlers
	questionHandler := handlers.NewQuestionHandler(qaService, flashService, hub, metrics)

	// Setup Gin router
	router := gin.Default()
	routes.SetupRoutes(router, questionHandler, qaService, hub, routes.Options{
		Templates:     tmpl,
		SessionSecret: cfg.SessionSecret,
		SSL:           cfg.SSL,
		Metrics:       metrics,
		Gatherer:      prometheus.DefaultGatherer,
	})

	srv := &http.Server{
		Addr:              cfg.Addr(),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Printf("Server starting on %s", cfg.Addr())
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server failed: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	log.Printf("Shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
