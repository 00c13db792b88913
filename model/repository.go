package model

type GithubRepository struct {
	ID               int64          `json:"-"` // only used to associate the languages fetched in parallel
	FullName         string         `json:"fullName"`
	Owner            string         `json:"owner"`
	Name             string         `json:"name"`
	Fork             bool           `json:"fork"`
	Private          bool           `json:"private"`
	Owned            bool           `json:"owned"` // false when found through a contribution affiliation only
	MostUsedLanguage *string        `json:"-"`
	Languages        map[string]int `json:"languages"`
}

type GithubRepositoryLanguages struct {
	RepositoryID int64
	Languages    map[string]int
}
