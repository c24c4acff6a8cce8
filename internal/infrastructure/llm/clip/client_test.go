package clip

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/kirillkom/construction-graphrag/internal/core/domain"
)

func TestEmbedImageSendsBase64(t *testing.T) {
	var got map[string]string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/embed/image" {
			http.NotFound(w, r)
			return
		}
		_ = json.NewDecoder(r.Body).Decode(&got)
		_, _ = w.Write([]byte(`{"embedding":[0.5,0.5]}`))
	}))
	defer server.Close()

	client := New(server.URL+"/", nil)
	vector, err := client.EmbedImage(context.Background(), []byte("png-bytes"))
	if err != nil {
		t.Fatalf("EmbedImage() error = %v", err)
	}
	if len(vector) != 2 {
		t.Fatalf("unexpected vector %v", vector)
	}
	if got["image"] != base64.StdEncoding.EncodeToString([]byte("png-bytes")) {
		t.Fatalf("unexpected payload %v", got)
	}
}

func TestEmbedTextServerError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "gpu busy", http.StatusServiceUnavailable)
	}))
	defer server.Close()

	_, err := New(server.URL, nil).EmbedText(context.Background(), "electrical room")
	if !domain.IsKind(err, domain.ErrTemporary) {
		t.Fatalf("expected temporary error, got %v", err)
	}
}

func TestUnconfiguredClientIsUnavailable(t *testing.T) {
	client := New("", nil)
	if client.Available() {
		t.Fatalf("expected unavailable client")
	}
	if _, err := client.EmbedText(context.Background(), "x"); err == nil {
		t.Fatalf("expected error from unconfigured client")
	}
}
