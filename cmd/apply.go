// File: cmd/apply.go
package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	homedir "github.com/mitchellh/go-homedir"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/xkilldash9x/formpilot/api/schemas"
	"github.com/xkilldash9x/formpilot/internal/actiongen"
	"github.com/xkilldash9x/formpilot/internal/browser"
	"github.com/xkilldash9x/formpilot/internal/config"
	"github.com/xkilldash9x/formpilot/internal/grounding"
	"github.com/xkilldash9x/formpilot/internal/llmclient"
	"github.com/xkilldash9x/formpilot/internal/observability"
	"github.com/xkilldash9x/formpilot/internal/orchestrator"
	"github.com/xkilldash9x/formpilot/internal/perception"
	"github.com/xkilldash9x/formpilot/internal/policy"
	"github.com/xkilldash9x/formpilot/internal/profile"
	"github.com/xkilldash9x/formpilot/internal/qa"
	"github.com/xkilldash9x/formpilot/internal/review"
	"github.com/xkilldash9x/formpilot/internal/semantic"
	"github.com/xkilldash9x/formpilot/internal/store"
)

// newApplyCmd creates the `apply` command: start or resume one application
// attempt against a job posting URL.
func newApplyCmd() *cobra.Command {
	applyCmd := &cobra.Command{
		Use:   "apply [url]",
		Short: "Starts or resumes an application attempt against a job posting",
		Args:  cobra.MaximumNArgs(1),
		PreRunE: func(cmd *cobra.Command, args []string) error {
			if err := viper.BindPFlag("pipeline.autonomy", cmd.Flags().Lookup("autonomy")); err != nil {
				return err
			}
			if err := viper.BindPFlag("profile.path", cmd.Flags().Lookup("profile")); err != nil {
				return err
			}
			if err := viper.BindPFlag("browser.headless", cmd.Flags().Lookup("headless")); err != nil {
				return err
			}
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			resumeID, _ := cmd.Flags().GetString("resume")
			if len(args) == 0 && resumeID == "" {
				return fmt.Errorf("a job posting URL or --resume is required")
			}

			cfg, err := config.NewConfigFromViper(viper.GetViper())
			if err != nil {
				return err
			}
			logger := observability.GetLogger()

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			startURL := ""
			if len(args) > 0 {
				startURL = args[0]
			}
			job := schemas.JobContext{URL: startURL}
			job.Title, _ = cmd.Flags().GetString("job-title")
			job.Company, _ = cmd.Flags().GetString("company")

			userID, _ := cmd.Flags().GetString("user")
			return runApply(ctx, cfg, logger, startURL, resumeID, userID, job)
		},
	}

	applyCmd.Flags().String("resume", "", "application ID of a paused attempt to resume")
	applyCmd.Flags().String("user", "", "profile user ID when the profile path is a directory")
	applyCmd.Flags().String("job-title", "", "title of the position being applied for")
	applyCmd.Flags().String("company", "", "company offering the position")
	applyCmd.Flags().String("autonomy", string(config.AutonomyReviewAll), "autonomy level: review_all, review_submit, or autonomous")
	applyCmd.Flags().String("profile", "", "path to the applicant profile JSON (overrides config)")
	applyCmd.Flags().Bool("headless", true, "run the browser headless")

	return applyCmd
}

func runApply(ctx context.Context, cfg *config.Config, logger *zap.Logger, startURL, resumeID, userID string, job schemas.JobContext) error {
	llm, err := llmclient.NewFromConfig(cfg.LLM, logger)
	if err != nil {
		return fmt.Errorf("building llm client: %w", err)
	}
	defer llm.Close()

	stateStore, cleanup, err := buildStateStore(ctx, cfg.Store, logger)
	if err != nil {
		return err
	}
	defer cleanup()

	profilePath, err := homedir.Expand(cfg.Profile.Path)
	if err != nil {
		return fmt.Errorf("expanding profile path: %w", err)
	}
	profiles, err := profile.NewFileStore(profilePath, logger)
	if err != nil {
		return err
	}
	applicant, err := profiles.GetProfile(ctx, userID)
	if err != nil {
		return fmt.Errorf("loading profile: %w", err)
	}

	state, resumeURL, err := buildState(ctx, stateStore, resumeID, job)
	if err != nil {
		return err
	}
	if startURL == "" {
		startURL = resumeURL
	}

	session, err := browser.NewSession(ctx, cfg.Browser, logger)
	if err != nil {
		return fmt.Errorf("starting browser: %w", err)
	}
	defer session.Close(context.Background())

	orc, err := buildOrchestrator(cfg, llm, session, stateStore, applicant, state, logger)
	if err != nil {
		return err
	}

	attemptCtx, cancelAttempt := context.WithCancel(ctx)
	defer cancelAttempt()

	g, runCtx := errgroup.WithContext(attemptCtx)
	g.Go(func() error {
		defer cancelAttempt()
		status, err := orc.Run(runCtx, startURL)
		logger.Info("Attempt finished",
			zap.String("application_id", state.ApplicationID),
			zap.String("status", string(status)),
		)
		return err
	})
	g.Go(func() error {
		// Translate an interrupt into a cooperative cancel so the final
		// snapshot is persisted before the browser dies.
		<-runCtx.Done()
		orc.RequestCancel()
		return nil
	})
	if err := g.Wait(); err != nil {
		return err
	}

	fmt.Printf("Application %s finished with status %s\n", state.ApplicationID, orc.State().Status())
	return nil
}

// buildState starts a fresh attempt, or restores a paused one when
// --resume is given.
func buildState(ctx context.Context, stateStore schemas.StateStore, resumeID string, job schemas.JobContext) (*orchestrator.ApplicationState, string, error) {
	if resumeID == "" {
		return orchestrator.NewApplicationState(uuid.NewString(), job), "", nil
	}
	snap, err := stateStore.Load(ctx, resumeID)
	if err != nil {
		return nil, "", fmt.Errorf("loading attempt %s: %w", resumeID, err)
	}
	state, err := orchestrator.RestoreApplicationState(snap)
	if err != nil {
		return nil, "", err
	}
	return state, snap.CurrentURL, nil
}

func buildStateStore(ctx context.Context, cfg config.StoreConfig, logger *zap.Logger) (schemas.StateStore, func(), error) {
	switch cfg.Backend {
	case "postgres":
		pool, err := pgxpool.New(ctx, cfg.PostgresDSN)
		if err != nil {
			return nil, nil, fmt.Errorf("connecting to postgres: %w", err)
		}
		st, err := store.NewPostgresStore(ctx, pool, logger)
		if err != nil {
			pool.Close()
			return nil, nil, err
		}
		return st, pool.Close, nil
	default:
		return store.NewMemoryStore(), func() {}, nil
	}
}

func buildOrchestrator(cfg *config.Config, llm schemas.LLMClient, driver schemas.BrowserDriver, stateStore schemas.StateStore, applicant *schemas.UserProfile, state *orchestrator.ApplicationState, logger *zap.Logger) (*orchestrator.Orchestrator, error) {
	pol, err := policy.FromConfig(cfg.Pipeline)
	if err != nil {
		return nil, err
	}

	schema := semantic.DefaultSchema()
	if cfg.Pipeline.SchemaPath != "" {
		if schema, err = semantic.LoadSchema(cfg.Pipeline.SchemaPath); err != nil {
			return nil, fmt.Errorf("loading semantic schema: %w", err)
		}
	}

	perceiver, err := perception.NewPerceiver(llm, logger)
	if err != nil {
		return nil, err
	}
	grounder, err := grounding.NewGrounder(pol, logger)
	if err != nil {
		return nil, err
	}
	matcher, err := semantic.NewMatcher(schema, llm, pol, logger)
	if err != nil {
		return nil, err
	}
	answerer, err := qa.NewAnswerer(llm, logger)
	if err != nil {
		return nil, err
	}
	generator, err := actiongen.NewGenerator(logger)
	if err != nil {
		return nil, err
	}
	classifier, err := orchestrator.NewPageClassifier(llm, logger)
	if err != nil {
		return nil, err
	}

	var gateway schemas.ReviewGateway
	if cfg.Pipeline.Autonomy == config.AutonomyAutonomous {
		gateway, err = review.NewAutoGateway(logger)
	} else {
		gateway, err = review.NewConsoleGateway(os.Stdin, os.Stdout, logger)
	}
	if err != nil {
		return nil, err
	}

	return orchestrator.NewOrchestrator(orchestrator.Deps{
		Config:     cfg.Pipeline,
		Driver:     driver,
		Perceiver:  perceiver,
		Grounder:   grounder,
		Matcher:    matcher,
		Answerer:   answerer,
		Generator:  generator,
		Classifier: classifier,
		Gateway:    gateway,
		Store:      stateStore,
		Profile:    applicant,
		Policy:     pol,
		State:      state,
		Logger:     logger,
	})
}

func init() {
	rootCmd.AddCommand(newApplyCmd())
}
