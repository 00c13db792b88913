package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/google/go-github/v66/github"
	"github.com/joho/godotenv"
	"github.com/langsvg/langsvg/config"
	"github.com/langsvg/langsvg/controller"
	"github.com/langsvg/langsvg/logger"
	"github.com/langsvg/langsvg/service"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"golang.org/x/time/rate"
)

// generateTimeout bounds a full aggregation and render pass
const generateTimeout = 5 * time.Minute

func main() {
	rootCmd := &cobra.Command{
		Use:           "langsvg",
		Short:         "Aggregate Github language statistics and render them as an SVG card",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runGenerate()
		},
	}

	rootCmd.AddCommand(&cobra.Command{
		Use:   "serve",
		Short: "Serve the rendered card and the aggregated stats over HTTP",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe()
		},
	})

	if err := rootCmd.Execute(); err != nil {
		log.WithError(err).Error("command failed")
		os.Exit(1)
	}
}

// setup loads the environment and configuration, configures the logger and
// builds the github client together with the local rate limiter
func setup() (*config.Config, *github.Client, *rate.Limiter, error) {
	// a missing .env file is fine, variables may come from the process environment
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		return nil, nil, nil, fmt.Errorf("unable to load configuration: %w", err)
	}

	logger.Setup(*cfg)

	if cfg.Github.Username == "" {
		return nil, nil, nil, fmt.Errorf("no username configured. set the GITHUB_ACTOR environment variable")
	}

	// setup github client
	// built here and passed to the Github service to easily improve tests with a mock client
	githubClient := github.NewClient(nil)

	if cfg.Github.Token != "" {
		log.Debug("will setup github client with authorization token")
		githubClient = githubClient.WithAuthToken(cfg.Github.Token)
	} else {
		log.Warning("no ACCESS_TOKEN configured. private repositories will be missing and the rate limit is much lower")
	}

	// setup local rate limiter
	// execute first request to github to fetch current rate limits
	log.Debug("loading current rate limit from github")
	rateLimits, _, err := githubClient.RateLimit.Get(context.Background())
	if err != nil {
		return nil, nil, nil, fmt.Errorf("unable to load current github rate limits: %w", err)
	}

	log.WithFields(log.Fields{
		"totalAvailable":    rateLimits.Core.Limit,
		"remainingRequests": rateLimits.Core.Remaining,
	}).Debug("will setup local rate limiter with rate limits infos from github")

	// consume tokens according to the number of remaining requests
	// this keeps the local limiter right even if external requests were made
	rateLimiter := rate.NewLimiter(rate.Every(time.Hour), rateLimits.Core.Limit)

	if !rateLimiter.AllowN(time.Now(), rateLimits.Core.Limit-rateLimits.Core.Remaining) {
		return nil, nil, nil, fmt.Errorf("unable to configure the github rate limiter")
	}

	return cfg, githubClient, rateLimiter, nil
}

// runGenerate performs a single aggregation pass and writes the SVG card
func runGenerate() error {
	cfg, githubClient, rateLimiter, err := setup()
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), generateTimeout)
	defer cancel()

	githubService := service.NewGithubService(*cfg, githubClient, rateLimiter)
	colorService := service.NewColorService(*cfg)

	renderService, err := service.NewRenderService(*cfg)
	if err != nil {
		return fmt.Errorf("unable to setup the renderer: %w", err)
	}

	repos, err := githubService.FetchRepositories(ctx)
	if err != nil {
		return err
	}

	totals, err := githubService.AggregateLanguages(ctx, repos)
	if err != nil {
		return err
	}

	shares := renderService.Shares(totals, colorService.Palette(ctx))

	for i, share := range shares {
		log.WithFields(log.Fields{
			"rank":       i + 1,
			"language":   share.Name,
			"percentage": fmt.Sprintf("%.2f%%", share.Percentage),
			"bytes":      share.Bytes,
		}).Info("language share")
	}

	content, err := renderService.Render(shares)
	if err != nil {
		return err
	}

	return renderService.WriteFile(content)
}

// runServe exposes the card and the stats over HTTP
func runServe() error {
	cfg, githubClient, rateLimiter, err := setup()
	if err != nil {
		return err
	}

	githubService := service.NewGithubService(*cfg, githubClient, rateLimiter)
	colorService := service.NewColorService(*cfg)

	renderService, err := service.NewRenderService(*cfg)
	if err != nil {
		return fmt.Errorf("unable to setup the renderer: %w", err)
	}

	apiController := controller.NewAPIController(*cfg, githubService, colorService, renderService)

	// setup server and define all routes
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()

	server := &http.Server{
		Addr:    ":" + cfg.API.ListenPort,
		Handler: router,
	}

	router.Use(
		cors.New(cors.Config{
			AllowOrigins: []string{"*"},
			AllowMethods: []string{"GET"},
			AllowHeaders: []string{"Content-Type, Content-Length, Accept-Encoding, Host, accept, Origin, Cache-Control, X-Requested-With"},
			MaxAge:       12 * time.Hour,
		}),
	)

	api := router.Group("")
	{
		api.GET("/languages.svg", apiController.GetLanguagesSVG)
		api.GET("/stats", apiController.GetStats)
	}

	go func() {
		log.Info("server listening on port " + cfg.API.ListenPort)

		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.WithError(err).Error("error while starting server")
		}
	}()

	// wait for interrupt signal to gracefully shut down the server
	// kill default send syscall.SIGTERM
	// kill -2 is syscall.SIGINT
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("SIGINT, SIGTERM received, will shut down server ...")

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.WithError(err).Error("Server forced to shutdown")
		return err
	}

	log.Info("Application stopped gracefully !")
	return nil
}
