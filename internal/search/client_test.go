package search

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"
)

func TestClient_SearchSendsFilters(t *testing.T) {
	var got map[string]string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodGet, r.Method)
		got = map[string]string{}
		for k := range r.URL.Query() {
			got[k] = r.URL.Query().Get(k)
		}
		_ = json.NewEncoder(w).Encode([]Contact{
			{ID: "003A", Name: "Jane Doe", Email: "jane@example.org", Birthdate: "1990-04-12"},
			{ID: "003B", Name: "Janet Roe"},
		})
	}))
	defer srv.Close()

	c := NewClient(srv.URL+"/contactsearch", time.Second)
	contacts, err := c.Search(context.Background(), Query{Term: "Jane", Site: "New York City", ProgramType: "jobPlacement"})
	require.NoError(t, err)

	require.Equal(t, map[string]string{
		"searchTerm":  "Jane",
		"site":        "New York City",
		"programType": "jobPlacement",
	}, got)
	require.Len(t, contacts, 2)
	require.Equal(t, "003A", contacts[0].ID, "endpoint order is preserved")
	require.Equal(t, "1990-04-12", contacts[0].Birthdate)
	require.Empty(t, contacts[1].Email)
}

func TestClient_OmitsEmptyFilters(t *testing.T) {
	c := NewClient("https://example.org/search", time.Second)
	u, err := c.URL(Query{Term: "ja"})
	require.NoError(t, err)
	require.Equal(t, "https://example.org/search?searchTerm=ja", u)
}

func TestClient_NonSuccessIsError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusBadGateway)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, time.Second)
	_, err := c.Search(context.Background(), Query{Term: "Jane"})

	var statusErr *StatusError
	require.ErrorAs(t, err, &statusErr)
	require.Equal(t, http.StatusBadGateway, statusErr.Code)
}

func TestClient_EmptyArray(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("[]"))
	}))
	defer srv.Close()

	contacts, err := NewClient(srv.URL, time.Second).Search(context.Background(), Query{Term: "zz"})
	require.NoError(t, err)
	require.Empty(t, contacts)
}

func TestClient_WithTokenSource(t *testing.T) {
	var auth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		auth = r.Header.Get("Authorization")
		_, _ = w.Write([]byte("[]"))
	}))
	defer srv.Close()

	ts := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: "tok-1", TokenType: "Bearer"})
	c := NewClient(srv.URL, time.Second, WithTokenSource(ts))

	_, err := c.Search(context.Background(), Query{Term: "Jane"})
	require.NoError(t, err)
	require.Equal(t, "Bearer tok-1", auth)
}
