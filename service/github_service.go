package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/go-github/v66/github"
	"github.com/langsvg/langsvg/config"
	"github.com/langsvg/langsvg/model"

	"github.com/remeh/sizedwaitgroup"
	log "github.com/sirupsen/logrus"

	"golang.org/x/time/rate"
)

type GithubService interface {
	FetchRepositories(ctx context.Context) ([]model.GithubRepository, error)
	AggregateLanguages(ctx context.Context, repos []model.GithubRepository) (model.LanguageTotals, error)
	FetchLanguagesForSingleRepository(ctx context.Context, r model.GithubRepository, swg *sizedwaitgroup.SizedWaitGroup, ch chan<- model.GithubRepositoryLanguages)

	HandleRequestErrors(err error) error
}

type githubService struct {
	githubClient      *github.Client
	githubRateLimiter *rate.Limiter
	retryBaseDelay    time.Duration
	config            config.Config
}

// defaultRetryBaseDelay is doubled on every retry of a transient language fetch failure
const defaultRetryBaseDelay = 2 * time.Second

// listing and ListLanguages share the core rate limit
// 60 calls per hour for non-authenticated and 5000 calls for authenticated
// the limiter passed here should be seeded with the remaining quota reported by github
func NewGithubService(config config.Config, githubClient *github.Client, rateLimiter *rate.Limiter) GithubService {
	return githubService{
		githubClient:      githubClient,
		githubRateLimiter: rateLimiter,
		retryBaseDelay:    defaultRetryBaseDelay,
		config:            config,
	}
}

// scopeToAffiliation converts the configured repository scope to the
// affiliation filter understood by the github listing endpoint
func scopeToAffiliation(scope string) string {
	switch strings.ToLower(scope) {
	case "owned":
		return "owner"
	case "contributed":
		return "collaborator,organization_member"
	default:
		return "owner,collaborator,organization_member"
	}
}

// FetchRepositories lists every repository visible to the authenticated user
// matching the configured scope, following pagination until exhausted
func (s githubService) FetchRepositories(ctx context.Context) ([]model.GithubRepository, error) {
	affiliation := scopeToAffiliation(s.config.Github.Scope)

	log.WithFields(log.Fields{
		"username":    s.config.Github.Username,
		"affiliation": affiliation,
	}).Info("fetch repositories from github")

	opts := &github.RepositoryListByAuthenticatedUserOptions{
		Affiliation: affiliation,
		ListOptions: github.ListOptions{PerPage: 100},
	}

	seen := make(map[string]bool)
	repositories := make([]model.GithubRepository, 0)

	for {
		if !s.githubRateLimiter.Allow() {
			log.Warning("the Github rate limit has been reached. Use a token or wait until the limit reset")
			return []model.GithubRepository{}, fmt.Errorf("RATE_LIMIT_REACHED")
		}

		repos, resp, err := s.githubClient.Repositories.ListByAuthenticatedUser(ctx, opts)

		if err != nil {
			return []model.GithubRepository{}, s.HandleRequestErrors(err)
		}

		for _, r := range repos {

			if r == nil || r.FullName == nil || r.Owner == nil || r.Owner.Login == nil || r.Name == nil {
				log.WithField("repositoryID", r.GetID()).Debug("repository found with invalid information. skipped")
				continue
			}

			// the same repository can show up under several affiliations
			if seen[*r.FullName] {
				continue
			}

			// empty repositories have no language data to fetch
			if r.GetSize() == 0 {
				log.WithField("fullName", *r.FullName).Debug("empty repository. skipped")
				continue
			}

			seen[*r.FullName] = true

			repositories = append(repositories, model.GithubRepository{
				ID:               *r.ID,
				FullName:         *r.FullName,
				Owner:            *r.Owner.Login,
				Name:             *r.Name,
				Fork:             r.GetFork(),
				Private:          r.GetPrivate(),
				Owned:            strings.EqualFold(*r.Owner.Login, s.config.Github.Username),
				MostUsedLanguage: r.Language,
			})
		}

		if resp.NextPage == 0 {
			break
		}

		opts.Page = resp.NextPage
	}

	log.WithField("numberOfRepositories", len(repositories)).Info("repositories fetched from github")
	return repositories, nil
}

// AggregateLanguages fetches the language byte counts for each repository
// in parallel and merges them into a single totals map.
// A repository whose languages cannot be fetched is skipped and does not
// affect the contribution of the other repositories
func (s githubService) AggregateLanguages(ctx context.Context, repos []model.GithubRepository) (model.LanguageTotals, error) {

	// count number of repositories where the languages are available for loading
	// if there is not enough requests on rate limiter to load all of them, return an error here
	// this avoid to load the languages not completely
	reposWithLanguagesToLoad := 0

	for _, r := range repos {
		if r.MostUsedLanguage != nil {
			reposWithLanguagesToLoad += 1
		}
	}

	if !s.githubRateLimiter.AllowN(time.Now(), reposWithLanguagesToLoad) {
		log.WithField("repositoriesToLoad", reposWithLanguagesToLoad).Warning("not enough requests in rate limiter to load languages for all repositories")
		return model.LanguageTotals{}, fmt.Errorf("RATE_LIMIT_REACHED")
	}

	log.WithField("numberOfRepositories", reposWithLanguagesToLoad).Debug("will load languages for all repositories with a most used language available")

	// create a group to wait for all goroutines to finish
	swg := sizedwaitgroup.New(s.config.Tasks.MaxParallelTasksAllowed)

	// collect per repository results through a channel
	// and merge them only once every task is finished
	results := make(chan model.GithubRepositoryLanguages, len(repos))

	for _, r := range repos {

		// when the most used language is missing, ListLanguages would return
		// nothing anyway, so skip the request and save the rate limit budget
		if r.MostUsedLanguage == nil {
			log.WithField("repositoryID", r.ID).Debug("repository without most used language. skipped from loading languages list")
			continue
		}

		swg.Add()
		go s.FetchLanguagesForSingleRepository(ctx, r, &swg, results)
	}

	log.Debug("waiting for all threads loading repository languages to be finished")
	swg.Wait()
	close(results)

	totals := model.LanguageTotals{}

	for result := range results {
		totals.Merge(result.Languages)
	}

	log.WithFields(log.Fields{
		"languagesFound": len(totals),
		"totalBytes":     totals.TotalBytes(),
	}).Info("language aggregation finished")

	return totals, nil
}

// FetchLanguagesForSingleRepository gets the languages for a specific repository
// Transient errors (5xx) are retried with an exponential backoff a bounded
// number of times, then the repository is skipped with a warning.
// Nothing is sent to the channel for a skipped repository
// note: the parent function reserves the budget for the first request only,
// each retry consumes an extra token from the local rate limiter
func (s githubService) FetchLanguagesForSingleRepository(ctx context.Context, r model.GithubRepository, swg *sizedwaitgroup.SizedWaitGroup, ch chan<- model.GithubRepositoryLanguages) {
	defer swg.Done()

	log.WithFields(log.Fields{
		"repositoryID":     r.ID,
		"fullName":         r.FullName,
		"mostUsedLanguage": r.MostUsedLanguage,
	}).Debug("fetch languages for repository")

	maxAttempts := s.config.Tasks.MaxRetriesPerRepository

	if maxAttempts < 1 {
		maxAttempts = 1
	}

	for attempt := 1; attempt <= maxAttempts; attempt++ {
		languages, _, err := s.githubClient.Repositories.ListLanguages(ctx, r.Owner, r.Name)

		if err == nil {
			ch <- model.GithubRepositoryLanguages{RepositoryID: r.ID, Languages: languages}
			return
		}

		if !isTransient(err) || attempt == maxAttempts {
			log.WithError(s.HandleRequestErrors(err)).WithField("fullName", r.FullName).Warning("unable to fetch languages for repository. skipped")
			return
		}

		// the parent only reserved one request per repository on the local
		// rate limiter, so every retry must consume its own token
		if !s.githubRateLimiter.Allow() {
			log.WithField("fullName", r.FullName).Warning("not enough requests in rate limiter to retry fetching languages for repository. skipped")
			return
		}

		delay := s.retryBaseDelay * time.Duration(1<<uint(attempt-1))

		log.WithFields(log.Fields{
			"fullName": r.FullName,
			"attempt":  attempt,
			"delay":    delay,
		}).Debug("transient error when fetching repository languages. will retry")

		select {
		case <-ctx.Done():
			return
		case <-time.After(delay):
		}
	}
}

// isTransient reports whether the error is a server side failure worth retrying
func isTransient(err error) bool {
	if errResp, ok := err.(*github.ErrorResponse); ok {
		return errResp.Response != nil && errResp.Response.StatusCode >= 500
	}

	return false
}

// HandleRequestErrors manages errors including github rate limit errors at the same location
// If error is a rate limit error, this function will update the local rate limiter to consume all available requests
// this can help us to keep the local rate limiter up to date
func (s githubService) HandleRequestErrors(err error) error {
	if _, ok := err.(*github.RateLimitError); ok {
		if !s.githubRateLimiter.AllowN(time.Now(), s.githubRateLimiter.Burst()) {
			return fmt.Errorf("RATE_LIMITER_ERROR")
		}

		log.Warning("the Github rate limit has been reached. Use a token or wait until the limit reset")
		return fmt.Errorf("RATE_LIMIT_REACHED")
	}

	if errResp, ok := err.(*github.ErrorResponse); ok && errResp.Response != nil {
		if errResp.Response.StatusCode == 401 || errResp.Response.StatusCode == 403 {
			log.WithError(err).Error("github rejected the provided credentials")
			return fmt.Errorf("AUTH_FAILED")
		}
	}

	log.WithError(err).Error("error catched when fetching data from github")
	return fmt.Errorf("FETCH_ERROR")
}
