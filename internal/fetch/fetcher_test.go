package fetch

import (
	"context"
	"encoding/base64"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/abelbrown/jinkies/internal/model"
	"github.com/abelbrown/jinkies/internal/vault"
)

const atomFeed = `<?xml version="1.0" encoding="UTF-8"?>
<feed xmlns="http://www.w3.org/2005/Atom">
  <title>All Builds</title>
  <link rel="alternate" href="http://localhost:8080/"/>
  <entry>
    <title>app #1 (stable)</title>
    <link rel="alternate" href="http://localhost:8080/job/app/1/"/>
    <id>tag:ci,2026:app:1</id>
    <published>2026-08-01T10:00:00Z</published>
    <updated>2026-08-01T10:05:00Z</updated>
  </entry>
  <entry>
    <title>app #2 (broken)</title>
    <link rel="alternate" href="http://localhost:8080/job/app/2/"/>
    <id>tag:ci,2026:app:2</id>
    <published>2026-08-01T11:00:00Z</published>
  </entry>
</feed>`

func newVault(t *testing.T, url, username, token string) *vault.Vault {
	t.Helper()
	store := vault.NewMemoryStore()
	v := vault.New(store)
	if url != "" {
		if err := v.Store(url, username, token); err != nil {
			t.Fatalf("seed vault: %v", err)
		}
	}
	return v
}

func TestFetchPublicFeed(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "" {
			t.Error("public fetch must not send an Authorization header")
		}
		w.Header().Set("Content-Type", "application/atom+xml")
		w.Write([]byte(atomFeed))
	}))
	defer server.Close()

	f := NewFetcher(newVault(t, "", "", ""), DefaultTimeout)
	doc, err := f.Fetch(context.Background(), model.Feed{URL: server.URL, Name: "ci"})
	if err != nil {
		t.Fatalf("Fetch failed: %v", err)
	}

	if doc.Title != "All Builds" {
		t.Errorf("title = %q, want %q", doc.Title, "All Builds")
	}
	if len(doc.Entries) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(doc.Entries))
	}
	if doc.Entries[0].ID != "tag:ci,2026:app:1" {
		t.Errorf("unexpected entry id: %s", doc.Entries[0].ID)
	}
	if doc.Entries[0].Published != "2026-08-01T10:00:00Z" {
		t.Errorf("published must pass through verbatim, got %q", doc.Entries[0].Published)
	}
	if doc.Entries[1].Updated != "" {
		t.Errorf("expected empty updated on second entry, got %q", doc.Entries[1].Updated)
	}
}

func TestFetchAuthenticatedSendsBasicAuth(t *testing.T) {
	var gotAuth atomic.Value
	server := httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth.Store(r.Header.Get("Authorization"))
		w.Write([]byte(atomFeed))
	}))
	defer server.Close()

	v := newVault(t, server.URL, "alice", "tok-123")
	f := NewFetcher(v, DefaultTimeout)
	f.client = server.Client() // trust the test server's certificate

	doc, err := f.Fetch(context.Background(), model.Feed{URL: server.URL, Name: "ci"})
	if err != nil {
		t.Fatalf("Fetch failed: %v", err)
	}
	if len(doc.Entries) != 2 {
		t.Errorf("expected 2 entries, got %d", len(doc.Entries))
	}

	want := "Basic " + base64.StdEncoding.EncodeToString([]byte("alice:tok-123"))
	if gotAuth.Load() != want {
		t.Errorf("Authorization = %q, want %q", gotAuth.Load(), want)
	}
}

func TestFetchRefusesCredentialsOverHTTP(t *testing.T) {
	var requests atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests.Add(1)
		w.Write([]byte(atomFeed))
	}))
	defer server.Close()

	// Seed credentials under the plain-HTTP URL directly; Vault.Store
	// would refuse it, which is exactly the misconfiguration this
	// gate defends against.
	store := vault.NewMemoryStore()
	store.Set("jinkies:"+server.URL, "username", "alice")
	store.Set("jinkies:"+server.URL, "token", "tok")
	f := NewFetcher(vault.New(store), DefaultTimeout)

	_, err := f.Fetch(context.Background(), model.Feed{URL: server.URL, Name: "ci"})

	var policyErr *vault.PolicyError
	if !errors.As(err, &policyErr) {
		t.Fatalf("expected PolicyError, got %v", err)
	}
	if !strings.Contains(err.Error(), "insecure HTTP") {
		t.Errorf("error should mention insecure HTTP, got %q", err)
	}
	if requests.Load() != 0 {
		t.Errorf("no network call may happen on a policy violation, saw %d", requests.Load())
	}
}

func TestFetchRejectsUnsafeScheme(t *testing.T) {
	f := NewFetcher(newVault(t, "", "", ""), DefaultTimeout)

	_, err := f.Fetch(context.Background(), model.Feed{URL: "file:///etc/passwd", Name: "x"})
	if err == nil || !strings.Contains(err.Error(), "not allowed") {
		t.Errorf("expected scheme rejection, got %v", err)
	}
}

func TestFetchHTTPError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	f := NewFetcher(newVault(t, "", "", ""), DefaultTimeout)
	_, err := f.Fetch(context.Background(), model.Feed{URL: server.URL, Name: "ci"})
	if err == nil {
		t.Error("expected error for 404 response")
	}
}

func TestFetchRetriesServerErrors(t *testing.T) {
	var requests atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if requests.Add(1) < 2 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.Write([]byte(atomFeed))
	}))
	defer server.Close()

	f := NewFetcher(newVault(t, "", "", ""), DefaultTimeout)
	doc, err := f.Fetch(context.Background(), model.Feed{URL: server.URL, Name: "ci"})
	if err != nil {
		t.Fatalf("expected retry to recover, got %v", err)
	}
	if len(doc.Entries) != 2 {
		t.Errorf("expected 2 entries after retry, got %d", len(doc.Entries))
	}
	if requests.Load() != 2 {
		t.Errorf("expected exactly 2 requests, got %d", requests.Load())
	}
}

func TestFetchInvalidXMLIsPermanent(t *testing.T) {
	var requests atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests.Add(1)
		w.Write([]byte("this is not a feed"))
	}))
	defer server.Close()

	f := NewFetcher(newVault(t, "", "", ""), DefaultTimeout)
	_, err := f.Fetch(context.Background(), model.Feed{URL: server.URL, Name: "ci"})
	if err == nil {
		t.Fatal("expected parse error")
	}
	if requests.Load() != 1 {
		t.Errorf("parse failures must not be retried, saw %d requests", requests.Load())
	}
}

func TestFetchRespectsContext(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(2 * time.Second)
	}))
	defer server.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	f := NewFetcher(newVault(t, "", "", ""), DefaultTimeout)
	start := time.Now()
	_, err := f.Fetch(ctx, model.Feed{URL: server.URL, Name: "ci"})
	if err == nil {
		t.Error("expected error after context timeout")
	}
	if elapsed := time.Since(start); elapsed > time.Second {
		t.Errorf("fetch did not respect context deadline, took %v", elapsed)
	}
}
