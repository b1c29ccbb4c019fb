package main

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/pleader-ai/pleader-backend/app"
	"github.com/pleader-ai/pleader-backend/config"
	"github.com/pleader-ai/pleader-backend/internal/observability"
	"github.com/pleader-ai/pleader-backend/models"
	"github.com/pleader-ai/pleader-backend/services/rag"
)

// documentStore is what the document commands need from the document service
type documentStore interface {
	Upload(ctx context.Context, ownerID, filename string, content []byte) (*models.Document, error)
	List(ctx context.Context, ownerID string, limit, offset int) ([]*models.Document, error)
	Delete(ctx context.Context, ownerID string, id uuid.UUID) error
	Reindex(ctx context.Context) (int, error)
}

type answerer interface {
	Answer(ctx context.Context, req rag.AnswerRequest) (*rag.GroundedAnswer, error)
}

type indexStatter interface {
	Stats(ctx context.Context) (rag.IndexStats, error)
}

// cliServices is the slice of the application the commands drive
type cliServices struct {
	Config    *config.Config
	Documents documentStore
	Answerer  answerer
	Index     indexStatter
	Close     func(ctx context.Context) error
}

// loadServices builds the services for a command. Tests replace it.
var loadServices = buildServices

var (
	ownerID  string
	logLevel string
)

var rootCmd = &cobra.Command{
	Use:   "ragctl",
	Short: "Operate the Pleader document index",
	Long: `ragctl uploads and removes documents, asks grounded questions and
rebuilds the retrieval index using the same configuration as the API server.`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&ownerID, "owner", "", "owner (user ID) the command acts for")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "warn", "log level (debug, info, warn, error)")
}

func buildServices(ctx context.Context) (*cliServices, error) {
	cfg, err := config.New(ctx)
	if err != nil {
		return nil, err
	}

	logger, err := observability.NewLogger(logLevel, observability.FormatConsole)
	if err != nil {
		return nil, err
	}

	deps, err := app.NewDependencies(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}

	return &cliServices{
		Config:    cfg,
		Documents: deps.DocumentService,
		Answerer:  deps.Assembler,
		Index:     deps.Manager,
		Close:     deps.Close,
	}, nil
}

// withServices runs fn with loaded services and always releases them
func withServices(cmd *cobra.Command, fn func(ctx context.Context, svc *cliServices) error) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	svc, err := loadServices(ctx)
	if err != nil {
		return fmt.Errorf("failed to initialize: %w", err)
	}
	defer func() {
		if svc.Close != nil {
			if err := svc.Close(context.WithoutCancel(ctx)); err != nil {
				cmd.PrintErrf("warning: shutdown: %v\n", err)
			}
		}
	}()

	return fn(ctx, svc)
}

func requireOwner() error {
	if ownerID == "" {
		return fmt.Errorf("--owner is required")
	}
	return nil
}
