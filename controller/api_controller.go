package controller

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/langsvg/langsvg/config"
	"github.com/langsvg/langsvg/model"
	"github.com/langsvg/langsvg/service"
)

type APIController interface {
	GetLanguagesSVG(ctx *gin.Context)
	GetStats(ctx *gin.Context)
}

type apiController struct {
	githubService service.GithubService
	colorService  service.ColorService
	renderService service.RenderService
	config        config.Config
}

func NewAPIController(config config.Config, githubService service.GithubService, colorService service.ColorService, renderService service.RenderService) APIController {
	return apiController{
		githubService: githubService,
		colorService:  colorService,
		renderService: renderService,
		config:        config,
	}
}

// GetLanguagesSVG runs the full aggregation and returns the rendered card
func (s apiController) GetLanguagesSVG(c *gin.Context) {
	shares, err := s.aggregateShares(c)
	if err != nil {
		c.JSON(statusForError(err), model.NewAPIError(err))
		return
	}

	content, err := s.renderService.Render(shares)
	if err != nil {
		c.JSON(http.StatusInternalServerError, model.NewAPIError(err))
		return
	}

	c.Data(http.StatusOK, "image/svg+xml; charset=utf-8", []byte(content))
}

// GetStats returns the aggregated shares as JSON
func (s apiController) GetStats(c *gin.Context) {
	shares, err := s.aggregateShares(c)
	if err != nil {
		c.JSON(statusForError(err), model.NewAPIError(err))
		return
	}

	totalBytes := 0
	for _, share := range shares {
		totalBytes += share.Bytes
	}

	c.JSON(http.StatusOK, gin.H{
		"totalBytes": totalBytes,
		"languages":  shares,
	})
}

func (s apiController) aggregateShares(c *gin.Context) ([]model.LanguageShare, error) {
	ctx := c.Request.Context()

	repos, err := s.githubService.FetchRepositories(ctx)
	if err != nil {
		return nil, err
	}

	totals, err := s.githubService.AggregateLanguages(ctx, repos)
	if err != nil {
		return nil, err
	}

	return s.renderService.Shares(totals, s.colorService.Palette(ctx)), nil
}

func statusForError(err error) int {
	switch err.Error() {
	case "AUTH_FAILED":
		return http.StatusUnauthorized
	case "RATE_LIMIT_REACHED":
		return http.StatusTooManyRequests
	default:
		return http.StatusInternalServerError
	}
}
