package websearch_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/agentoven/larder/internal/websearch"
)

func TestBrave_Search(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("X-Subscription-Token") != "key" {
			t.Errorf("missing subscription token")
		}
		if r.URL.Query().Get("q") != "how long does rice keep" || r.URL.Query().Get("count") != "3" {
			t.Errorf("query = %s", r.URL.RawQuery)
		}
		_, _ = w.Write([]byte(`{"web":{"results":[
			{"title":"a","url":"https://a","description":"1"},
			{"title":"b","url":"https://b","description":"2"},
			{"title":"c","url":"https://c","description":"3"},
			{"title":"d","url":"https://d","description":"4"}
		]}}`))
	}))
	defer srv.Close()

	got, err := websearch.NewBrave("key").WithEndpoint(srv.URL).Search(context.Background(), "how long does rice keep")
	if err != nil {
		t.Fatalf("Search() error = %v", err)
	}
	if len(got) != 3 || got[0].Title != "a" || got[2].URL != "https://c" {
		t.Errorf("Search() = %+v", got)
	}
}

func TestBrave_Errors(t *testing.T) {
	if _, err := websearch.NewBrave("").Search(context.Background(), "x"); !errors.Is(err, websearch.ErrNotConfigured) {
		t.Errorf("Search() without key error = %v, want ErrNotConfigured", err)
	}

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	_, err := websearch.NewBrave("key").WithEndpoint(srv.URL).Search(context.Background(), "x")
	if err == nil || err.Error() != "Brave Search returned 429" {
		t.Errorf("Search() error = %v", err)
	}
}
