package perplexity

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestRespond(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/chat/completions" {
			t.Fatalf("unexpected path: %s", r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer key1" {
			t.Fatalf("unexpected Authorization header: %q", got)
		}
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"choices":[{"message":{"role":"assistant","content":"Leave policy is 30 days."}}],"search_results":[{"title":"HR Handbook","url":"https://intranet/hr"}]}`)
	}))
	defer server.Close()

	client := NewClient(server.URL, "key1", "sonar", time.Second)
	reply, citations, err := client.Respond(context.Background(), "You are an HR assistant.", "What is the leave policy?")
	if err != nil {
		t.Fatalf("Respond failed: %v", err)
	}
	if reply != "Leave policy is 30 days." {
		t.Fatalf("unexpected reply: %q", reply)
	}
	if len(citations) != 1 || citations[0].Title != "HR Handbook" {
		t.Fatalf("unexpected citations: %+v", citations)
	}
}

func TestRespondAPIError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		fmt.Fprint(w, `{"error":{"message":"invalid key","type":"auth_error"}}`)
	}))
	defer server.Close()

	client := NewClient(server.URL, "bad", "sonar", time.Second)
	_, _, err := client.Respond(context.Background(), "sys", "hi")
	if err == nil {
		t.Fatal("expected error")
	}
}

func TestRespondNoChoices(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"choices":[]}`)
	}))
	defer server.Close()

	client := NewClient(server.URL, "key1", "sonar", time.Second)
	_, _, err := client.Respond(context.Background(), "sys", "hi")
	if err == nil {
		t.Fatal("expected error for empty choices")
	}
}
