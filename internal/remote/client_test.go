package remote

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/grocersync/grocer/internal/queue"
	"github.com/grocersync/grocer/internal/schema"
)

func TestCreateItemPostsJSON(t *testing.T) {
	var gotMethod, gotPath, gotAuth string
	var gotArgs queue.CreateItemArgs

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotMethod = r.Method
		gotPath = r.URL.Path
		gotAuth = r.Header.Get("Authorization")
		if err := json.NewDecoder(r.Body).Decode(&gotArgs); err != nil {
			t.Errorf("failed to decode body: %v", err)
		}
		w.WriteHeader(http.StatusCreated)
	}))
	defer srv.Close()

	client := NewClient(srv.URL, "tok123")
	err := client.CreateItem(context.Background(), queue.CreateItemArgs{
		ListID: "L1", Name: "Milk", Quantity: 2,
	})
	if err != nil {
		t.Fatalf("CreateItem failed: %v", err)
	}

	if gotMethod != http.MethodPost || gotPath != "/v1/lists/L1/items" {
		t.Errorf("unexpected request: %s %s", gotMethod, gotPath)
	}
	if gotAuth != "Bearer tok123" {
		t.Errorf("unexpected auth header: %q", gotAuth)
	}
	if gotArgs.Name != "Milk" || gotArgs.Quantity != 2 {
		t.Errorf("unexpected args: %+v", gotArgs)
	}
}

func TestErrorStatusSurfacesMessage(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusConflict)
		json.NewEncoder(w).Encode(map[string]string{"message": "list is archived"})
	}))
	defer srv.Close()

	client := NewClient(srv.URL, "")
	err := client.ArchiveList(context.Background(), queue.ArchiveListArgs{ListID: "L1"})
	if err == nil {
		t.Fatal("expected error for 409 response")
	}
	if want := "list is archived"; !strings.Contains(err.Error(), want) {
		t.Errorf("error should carry server message, got %q", err)
	}
}

func TestFetchItemsDecodesServerOrder(t *testing.T) {
	now := time.Now().UTC().Truncate(time.Second)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/lists/L1/items" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		json.NewEncoder(w).Encode([]schema.Item{
			{ID: "i1", ListID: "L1", Name: "Milk", CreatedAt: now, UpdatedAt: now},
			{ID: "i2", ListID: "L1", Name: "Eggs", CreatedAt: now, UpdatedAt: now},
		})
	}))
	defer srv.Close()

	client := NewClient(srv.URL, "")
	items, err := client.FetchItems(context.Background(), "L1")
	if err != nil {
		t.Fatalf("FetchItems failed: %v", err)
	}
	if len(items) != 2 || items[0].ID != "i1" || items[1].ID != "i2" {
		t.Errorf("server order not preserved: %+v", items)
	}
}

func TestContextCancellationAborts(t *testing.T) {
	blocked := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-blocked
	}))
	defer srv.Close()
	defer close(blocked)

	client := NewClient(srv.URL, "")
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	err := client.DeleteItem(ctx, queue.DeleteItemArgs{ItemID: "i1"})
	if err == nil {
		t.Fatal("expected error when context deadline expires")
	}
}
