package publish

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/dunlinhq/dunlin/internal/logger"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func Test_CreatePullRequest(t *testing.T) {
	t.Run("posts the fixed template and decodes the response", func(t *testing.T) {
		var captured map[string]string

		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			require.Equal(t, http.MethodPost, r.Method)
			require.Equal(t, "/repos/acme/app/pulls", r.URL.Path)
			require.Equal(t, "Bearer token123", r.Header.Get("Authorization"))

			require.NoError(t, json.NewDecoder(r.Body).Decode(&captured))

			w.WriteHeader(http.StatusCreated)
			_ = json.NewEncoder(w).Encode(map[string]interface{}{
				"number":   7,
				"html_url": "https://github.com/acme/app/pull/7",
			})
		}))
		defer srv.Close()

		c := NewGitHubClient(srv.URL, "acme/app", "token123", &logger.NullLogger{})

		pr, err := c.CreatePullRequest(context.Background(),
			"schema-migrations/20240816093055", "main",
			"20240816093055_initial", "migrations")
		require.NoError(t, err)

		assert.Equal(t, 7, pr.Number)
		assert.Equal(t, "https://github.com/acme/app/pull/7", pr.HTMLURL)

		assert.Equal(t, "chore(db): add migration 20240816093055_initial", captured["title"])
		assert.Equal(t, "schema-migrations/20240816093055", captured["head"])
		assert.Equal(t, "main", captured["base"])
		assert.Contains(t, captured["body"], "migrations/20240816093055_initial/migration.sql")
		assert.Contains(t, captured["body"], "migrations/20240816093055_initial/README.md")
	})

	t.Run("non 201 responses are rejected with the API message", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusUnprocessableEntity)
			_ = json.NewEncoder(w).Encode(map[string]string{"message": "A pull request already exists"})
		}))
		defer srv.Close()

		c := NewGitHubClient(srv.URL, "acme/app", "token123", &logger.NullLogger{})

		_, err := c.CreatePullRequest(context.Background(), "head", "main", "k", "migrations")
		require.True(t, errors.Is(err, ErrPullRequestRejected))
		assert.Contains(t, err.Error(), "A pull request already exists")
	})
}

func Test_TokenScopes(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/user", r.URL.Path)
		w.Header().Set("X-OAuth-Scopes", "repo, workflow")
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	c := NewGitHubClient(srv.URL, "acme/app", "token123", &logger.NullLogger{})

	scopes, err := c.TokenScopes(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "repo, workflow", scopes)
}
