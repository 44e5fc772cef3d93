package publish

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/dunlinhq/dunlin/internal/logger"
	"github.com/hashicorp/go-cleanhttp"
	"github.com/hashicorp/go-retryablehttp"
	"github.com/pkg/errors"
)

const DefaultAPIBaseURL = "https://api.github.com"

var ErrPullRequestRejected = errors.New("pull request creation rejected")

// GitHubClient opens pull requests through the REST API.
type GitHubClient struct {
	baseURL string
	repo    string // owner/name
	token   string
	lg      logger.Logger
	http    *retryablehttp.Client
}

type PullRequest struct {
	Number  int    `json:"number"`
	HTMLURL string `json:"html_url"`
}

func NewGitHubClient(baseURL, repo, token string, lg logger.Logger) *GitHubClient {
	c := retryablehttp.NewClient()
	c.HTTPClient = cleanhttp.DefaultPooledClient()
	c.RetryMax = 3
	c.Logger = nil

	return &GitHubClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		repo:    repo,
		token:   token,
		lg:      lg,
		http:    c,
	}
}

// TokenScopes reports the OAuth scopes the token carries. Informational
// only: the pipeline logs the result and proceeds regardless.
func (c *GitHubClient) TokenScopes(ctx context.Context) (string, error) {
	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/user", nil)
	if err != nil {
		return "", errors.Wrap(err, "could not build token scope request")
	}

	c.authorize(req)

	resp, err := c.http.Do(req)
	if err != nil {
		return "", errors.Wrap(err, "token scope request failed")
	}
	defer resp.Body.Close()

	return resp.Header.Get("X-Oauth-Scopes"), nil
}

// CreatePullRequest opens a PR from head into base with the fixed template
// around the generated unit key.
func (c *GitHubClient) CreatePullRequest(ctx context.Context, head, base, unitKey, migrationsDir string) (*PullRequest, error) {
	payload := map[string]string{
		"title": fmt.Sprintf("chore(db): add migration %s", unitKey),
		"head":  head,
		"base":  base,
		"body": fmt.Sprintf(
			"Automated schema migration.\n\nGenerated files:\n- `%s/%s/migration.sql`\n- `%s/%s/README.md`\n\nAll migrations were applied to a throwaway database before this PR was opened.",
			migrationsDir, unitKey, migrationsDir, unitKey,
		),
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return nil, errors.Wrap(err, "could not encode pull request payload")
	}

	url := fmt.Sprintf("%s/repos/%s/pulls", c.baseURL, c.repo)
	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, errors.Wrap(err, "could not build pull request request")
	}

	c.authorize(req)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, errors.Wrap(err, "pull request creation failed")
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusCreated {
		var apiErr struct {
			Message string `json:"message"`
		}
		_ = json.NewDecoder(resp.Body).Decode(&apiErr)

		return nil, errors.Wrapf(ErrPullRequestRejected, "status %d: %s", resp.StatusCode, apiErr.Message)
	}

	var pr PullRequest
	if err := json.NewDecoder(resp.Body).Decode(&pr); err != nil {
		return nil, errors.Wrap(err, "could not decode pull request response")
	}

	c.lg.Successf("opened pull request #%d %s", pr.Number, pr.HTMLURL)

	return &pr, nil
}

func (c *GitHubClient) authorize(req *retryablehttp.Request) {
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("Accept", "application/vnd.github+json")
}
