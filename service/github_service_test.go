package service

import (
	"context"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/google/go-github/v66/github"
	"github.com/langsvg/langsvg/config"
	"github.com/langsvg/langsvg/model"
	githubMock "github.com/migueleliasweb/go-github-mock/src/mock"
	"github.com/remeh/sizedwaitgroup"
	"github.com/stretchr/testify/assert"
	"golang.org/x/time/rate"
)

// TestFetchRepositories will test function FetchRepositories
func TestFetchRepositories(t *testing.T) {
	tests := []struct {
		name           string
		scope          string
		rateLimit      int
		mockPages      [][]github.Repository
		expectedRepos  []model.GithubRepository
		expectError    bool
		expectedErrMsg string
	}{
		{
			name:      "Single page with owned repository",
			scope:     "owned",
			rateLimit: 60,
			mockPages: [][]github.Repository{
				{
					{
						ID:       github.Int64(1),
						FullName: github.String("test-owner/repo1"),
						Owner:    &github.User{Login: github.String("test-owner")},
						Name:     github.String("repo1"),
						Language: github.String("Go"),
						Size:     github.Int(120),
					},
				},
			},
			expectedRepos: []model.GithubRepository{
				{
					ID:               1,
					FullName:         "test-owner/repo1",
					Owner:            "test-owner",
					Name:             "repo1",
					Owned:            true,
					MostUsedLanguage: github.String("Go"),
				},
			},
			expectError: false,
		},
		{
			name:      "Pagination until exhausted",
			scope:     "both",
			rateLimit: 60,
			mockPages: [][]github.Repository{
				{
					{
						ID:       github.Int64(1),
						FullName: github.String("test-owner/repo1"),
						Owner:    &github.User{Login: github.String("test-owner")},
						Name:     github.String("repo1"),
						Language: github.String("Go"),
						Size:     github.Int(120),
					},
				},
				{
					{
						ID:       github.Int64(2),
						FullName: github.String("some-org/repo2"),
						Owner:    &github.User{Login: github.String("some-org")},
						Name:     github.String("repo2"),
						Language: github.String("Python"),
						Size:     github.Int(300),
					},
				},
			},
			expectedRepos: []model.GithubRepository{
				{
					ID:               1,
					FullName:         "test-owner/repo1",
					Owner:            "test-owner",
					Name:             "repo1",
					Owned:            true,
					MostUsedLanguage: github.String("Go"),
				},
				{
					ID:               2,
					FullName:         "some-org/repo2",
					Owner:            "some-org",
					Name:             "repo2",
					Owned:            false,
					MostUsedLanguage: github.String("Python"),
				},
			},
			expectError: false,
		},
		{
			name:      "Empty and duplicated repositories are skipped",
			scope:     "both",
			rateLimit: 60,
			mockPages: [][]github.Repository{
				{
					{
						ID:       github.Int64(1),
						FullName: github.String("test-owner/repo1"),
						Owner:    &github.User{Login: github.String("test-owner")},
						Name:     github.String("repo1"),
						Language: github.String("Go"),
						Size:     github.Int(120),
					},
					{
						ID:       github.Int64(1),
						FullName: github.String("test-owner/repo1"),
						Owner:    &github.User{Login: github.String("test-owner")},
						Name:     github.String("repo1"),
						Language: github.String("Go"),
						Size:     github.Int(120),
					},
					{
						ID:       github.Int64(3),
						FullName: github.String("test-owner/empty-repo"),
						Owner:    &github.User{Login: github.String("test-owner")},
						Name:     github.String("empty-repo"),
						Size:     github.Int(0),
					},
				},
			},
			expectedRepos: []model.GithubRepository{
				{
					ID:               1,
					FullName:         "test-owner/repo1",
					Owner:            "test-owner",
					Name:             "repo1",
					Owned:            true,
					MostUsedLanguage: github.String("Go"),
				},
			},
			expectError: false,
		},
		{
			name:           "Local rate limit exhausted",
			scope:          "both",
			rateLimit:      0,
			mockPages:      [][]github.Repository{{}},
			expectedRepos:  []model.GithubRepository{},
			expectError:    true,
			expectedErrMsg: "RATE_LIMIT_REACHED",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			pages := make([]interface{}, 0, len(tt.mockPages))
			for _, page := range tt.mockPages {
				pages = append(pages, page)
			}

			mockedHTTPClient := githubMock.NewMockedHTTPClient(
				githubMock.WithRequestMatchPages(
					githubMock.GetUserRepos,
					pages...,
				),
			)

			// setup github service using default config and mocked client
			mockedRateLimiter := rate.NewLimiter(rate.Every(time.Hour), tt.rateLimit)
			mockedGithubClient := github.NewClient(mockedHTTPClient)

			conf := config.GetDefault()
			conf.Github.Username = "test-owner"
			conf.Github.Scope = tt.scope

			svc := NewGithubService(*conf, mockedGithubClient, mockedRateLimiter)
			repos, err := svc.FetchRepositories(context.Background())

			if tt.expectError {
				assert.Error(t, err)
				assert.EqualError(t, err, tt.expectedErrMsg)
			} else {
				assert.NoError(t, err)
			}

			assert.Equal(t, tt.expectedRepos, repos)
		})
	}
}

// TestAggregateLanguages will test function AggregateLanguages
func TestAggregateLanguages(t *testing.T) {
	tests := []struct {
		name                  string
		repos                 []model.GithubRepository
		mockResponseLanguages map[string]int
		rateLimit             int
		expectedTotals        model.LanguageTotals
		expectError           bool
		expectedErrMsg        string
	}{
		{
			name: "Languages accumulate across repositories",
			repos: []model.GithubRepository{
				{ID: 1, Owner: "owner1", Name: "repo1", MostUsedLanguage: github.String("Go")},
				{ID: 2, Owner: "owner2", Name: "repo2", MostUsedLanguage: github.String("Go")},
			},
			mockResponseLanguages: map[string]int{
				"Go":   10000,
				"HTML": 500,
			},
			rateLimit: 60,
			expectedTotals: model.LanguageTotals{
				"Go":   20000,
				"HTML": 1000,
			},
			expectError: false,
		},
		{
			name: "Repositories without most used language are skipped",
			repos: []model.GithubRepository{
				{ID: 1, Owner: "owner1", Name: "repo1", MostUsedLanguage: github.String("Go")},
				{ID: 2, Owner: "owner2", Name: "repo2", MostUsedLanguage: nil},
			},
			mockResponseLanguages: map[string]int{
				"Go": 10000,
			},
			rateLimit: 60,
			expectedTotals: model.LanguageTotals{
				"Go": 10000,
			},
			expectError: false,
		},
		{
			name: "Not enough budget to load every repository",
			repos: []model.GithubRepository{
				{ID: 1, Owner: "owner1", Name: "repo1", MostUsedLanguage: github.String("Go")},
				{ID: 2, Owner: "owner2", Name: "repo2", MostUsedLanguage: github.String("Java")},
			},
			mockResponseLanguages: map[string]int{},
			rateLimit:             1,
			expectedTotals:        model.LanguageTotals{},
			expectError:           true,
			expectedErrMsg:        "RATE_LIMIT_REACHED",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mockedHTTPClient := githubMock.NewMockedHTTPClient(
				githubMock.WithRequestMatchHandler(
					githubMock.GetReposLanguagesByOwnerByRepo,
					http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
						_, err := w.Write(githubMock.MustMarshal(tt.mockResponseLanguages))

						if err != nil {
							t.Error("unable to configure mock http client")
						}
					}),
				),
			)

			mockedRateLimiter := rate.NewLimiter(rate.Every(time.Hour), tt.rateLimit)
			mockedGithubClient := github.NewClient(mockedHTTPClient)

			conf := config.GetDefault()
			conf.Github.Username = "test-owner"

			svc := NewGithubService(*conf, mockedGithubClient, mockedRateLimiter)
			totals, err := svc.AggregateLanguages(context.Background(), tt.repos)

			if tt.expectError {
				assert.Error(t, err)
				assert.EqualError(t, err, tt.expectedErrMsg)
			} else {
				assert.NoError(t, err)
			}

			assert.Equal(t, tt.expectedTotals, totals)
		})
	}
}

// TestAggregateLanguagesFailedRepositoryIsolation checks that a repository
// failing retrieval does not affect the totals contributed by the others
func TestAggregateLanguagesFailedRepositoryIsolation(t *testing.T) {
	mockedHTTPClient := githubMock.NewMockedHTTPClient(
		githubMock.WithRequestMatchHandler(
			githubMock.GetReposLanguagesByOwnerByRepo,
			http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				if strings.Contains(r.URL.Path, "bad-repo") {
					w.WriteHeader(http.StatusInternalServerError)
					return
				}

				_, err := w.Write(githubMock.MustMarshal(map[string]int{"Go": 300, "Python": 700}))

				if err != nil {
					t.Error("unable to configure mock http client")
				}
			}),
		),
	)

	mockedRateLimiter := rate.NewLimiter(rate.Every(time.Hour), 60)
	mockedGithubClient := github.NewClient(mockedHTTPClient)

	conf := config.GetDefault()
	conf.Github.Username = "test-owner"

	svc := NewGithubService(*conf, mockedGithubClient, mockedRateLimiter).(githubService)

	// keep the exponential backoff short so the transient failure is
	// retried and exhausted quickly
	svc.retryBaseDelay = time.Millisecond

	repos := []model.GithubRepository{
		{ID: 1, Owner: "owner1", Name: "good-repo", MostUsedLanguage: github.String("Go")},
		{ID: 2, Owner: "owner2", Name: "bad-repo", MostUsedLanguage: github.String("Java")},
	}

	totals, err := svc.AggregateLanguages(context.Background(), repos)

	assert.NoError(t, err)
	assert.Equal(t, model.LanguageTotals{"Go": 300, "Python": 700}, totals)
}

// TestFetchLanguagesForSingleRepository test the function called FetchLanguagesForSingleRepository
func TestFetchLanguagesForSingleRepository(t *testing.T) {
	tests := []struct {
		name          string
		repo          model.GithubRepository
		mockStatus    int
		mockResponse  map[string]int
		expectSkipped bool
	}{
		{
			name: "Fetch languages successfully",
			repo: model.GithubRepository{
				ID:    1,
				Owner: "Owner1",
				Name:  "Repo1",
			},
			mockStatus: http.StatusOK,
			mockResponse: map[string]int{
				"Go":     10000,
				"Python": 5000,
			},
			expectSkipped: false,
		},
		{
			name: "Missing repository is skipped",
			repo: model.GithubRepository{
				ID:    2,
				Owner: "Owner2",
				Name:  "Repo2",
			},
			mockStatus:    http.StatusNotFound,
			expectSkipped: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mockedHTTPClient := githubMock.NewMockedHTTPClient(
				githubMock.WithRequestMatchHandler(
					githubMock.GetReposLanguagesByOwnerByRepo,
					http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
						if tt.mockStatus != http.StatusOK {
							w.WriteHeader(tt.mockStatus)
							return
						}

						_, err := w.Write(githubMock.MustMarshal(tt.mockResponse))

						if err != nil {
							t.Error("unable to configure mock http client")
						}
					}),
				),
			)

			mockedRateLimiter := rate.NewLimiter(rate.Every(time.Hour), 60)
			mockedGithubClient := github.NewClient(mockedHTTPClient)

			conf := config.GetDefault()
			conf.Github.Username = "test-owner"

			svc := NewGithubService(*conf, mockedGithubClient, mockedRateLimiter).(githubService)

			// Prepare wait group and channel
			swg := sizedwaitgroup.New(1)
			ch := make(chan model.GithubRepositoryLanguages, 1)

			swg.Add()
			svc.FetchLanguagesForSingleRepository(context.Background(), tt.repo, &swg, ch)
			swg.Wait()
			close(ch)

			if tt.expectSkipped {
				assert.Len(t, ch, 0)
			} else {
				langResult := <-ch
				assert.Equal(t, tt.repo.ID, langResult.RepositoryID)
				assert.Equal(t, tt.mockResponse, langResult.Languages)
			}
		})
	}
}

// TestFetchLanguagesForSingleRepositoryRetriesTransientFailures checks that
// a transient server error is retried with backoff before succeeding
func TestFetchLanguagesForSingleRepositoryRetriesTransientFailures(t *testing.T) {
	attempts := 0

	mockedHTTPClient := githubMock.NewMockedHTTPClient(
		githubMock.WithRequestMatchHandler(
			githubMock.GetReposLanguagesByOwnerByRepo,
			http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				attempts++

				if attempts == 1 {
					w.WriteHeader(http.StatusInternalServerError)
					return
				}

				_, err := w.Write(githubMock.MustMarshal(map[string]int{"Go": 10000}))

				if err != nil {
					t.Error("unable to configure mock http client")
				}
			}),
		),
	)

	mockedRateLimiter := rate.NewLimiter(rate.Every(time.Hour), 60)
	mockedGithubClient := github.NewClient(mockedHTTPClient)

	conf := config.GetDefault()
	conf.Github.Username = "test-owner"

	svc := NewGithubService(*conf, mockedGithubClient, mockedRateLimiter).(githubService)
	svc.retryBaseDelay = time.Millisecond

	swg := sizedwaitgroup.New(1)
	ch := make(chan model.GithubRepositoryLanguages, 1)

	repo := model.GithubRepository{ID: 1, Owner: "owner1", Name: "flaky-repo", MostUsedLanguage: github.String("Go")}

	swg.Add()
	svc.FetchLanguagesForSingleRepository(context.Background(), repo, &swg, ch)
	swg.Wait()
	close(ch)

	assert.Equal(t, 2, attempts)

	langResult := <-ch
	assert.Equal(t, repo.ID, langResult.RepositoryID)
	assert.Equal(t, map[string]int{"Go": 10000}, langResult.Languages)
}

// TestFetchLanguagesForSingleRepositoryRetryBudgetExhausted checks that
// retries stop when the local rate limiter has no budget left for them
func TestFetchLanguagesForSingleRepositoryRetryBudgetExhausted(t *testing.T) {
	attempts := 0

	mockedHTTPClient := githubMock.NewMockedHTTPClient(
		githubMock.WithRequestMatchHandler(
			githubMock.GetReposLanguagesByOwnerByRepo,
			http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				attempts++
				w.WriteHeader(http.StatusInternalServerError)
			}),
		),
	)

	// no budget left for retries, only the initial request reserved by the parent
	mockedRateLimiter := rate.NewLimiter(rate.Every(time.Hour), 0)
	mockedGithubClient := github.NewClient(mockedHTTPClient)

	conf := config.GetDefault()
	conf.Github.Username = "test-owner"

	svc := NewGithubService(*conf, mockedGithubClient, mockedRateLimiter).(githubService)
	svc.retryBaseDelay = time.Millisecond

	swg := sizedwaitgroup.New(1)
	ch := make(chan model.GithubRepositoryLanguages, 1)

	repo := model.GithubRepository{ID: 1, Owner: "owner1", Name: "bad-repo", MostUsedLanguage: github.String("Go")}

	swg.Add()
	svc.FetchLanguagesForSingleRepository(context.Background(), repo, &swg, ch)
	swg.Wait()
	close(ch)

	assert.Equal(t, 1, attempts)
	assert.Len(t, ch, 0)
}

// TestScopeToAffiliation checks the scope configuration mapping
func TestScopeToAffiliation(t *testing.T) {
	assert.Equal(t, "owner", scopeToAffiliation("owned"))
	assert.Equal(t, "owner", scopeToAffiliation("OWNED"))
	assert.Equal(t, "collaborator,organization_member", scopeToAffiliation("contributed"))
	assert.Equal(t, "owner,collaborator,organization_member", scopeToAffiliation("both"))
	assert.Equal(t, "owner,collaborator,organization_member", scopeToAffiliation(""))
}
