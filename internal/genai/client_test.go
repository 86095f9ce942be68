package genai

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func newTestClient(srv *httptest.Server) *Client {
	c := NewClient("key", "chat-model", "image-model", "edit-model")
	c.BaseURL = srv.URL
	c.HTTPClient = &http.Client{Timeout: 2 * time.Second}
	return c
}

func TestGenerateImage_NoKey(t *testing.T) {
	c := NewClient("", "chat", "image", "edit")
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	if _, err := c.GenerateImage(ctx, "kucing", 1, "image/jpeg"); err == nil {
		t.Fatalf("expected error with missing key")
	}
}

func TestGenerateImage_ParsesPredictions(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/models/image-model:predict" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		fmt.Fprint(w, `{"predictions":[{"bytesBase64Encoded":"aW1n","mimeType":"image/jpeg"}]}`)
	}))
	defer srv.Close()
	c := newTestClient(srv)
	images, err := c.GenerateImage(context.Background(), "kucing oranye", 1, "image/jpeg")
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if len(images) != 1 || images[0] != "aW1n" {
		t.Fatalf("unexpected images: %v", images)
	}
}

func TestGenerateImage_EmptyPredictions(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"predictions":[]}`)
	}))
	defer srv.Close()
	c := newTestClient(srv)
	if _, err := c.GenerateImage(context.Background(), "kucing", 1, ""); err == nil {
		t.Fatalf("expected error on empty predictions")
	}
}

func TestGenerateOrEditImage_ReturnsPartsInOrder(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"candidates":[{"content":{"parts":[{"text":"keterangan"},{"inlineData":{"mimeType":"image/jpeg","data":"aW1n"}}]}}]}`)
	}))
	defer srv.Close()
	c := newTestClient(srv)
	parts, err := c.GenerateOrEditImage(context.Background(), []Part{TextPart("ubah")})
	if err != nil {
		t.Fatalf("edit: %v", err)
	}
	if len(parts) != 2 {
		t.Fatalf("expected 2 parts, got %d", len(parts))
	}
	if parts[0].Text != "keterangan" {
		t.Fatalf("expected text first, got %+v", parts[0])
	}
	if parts[1].InlineData == nil || parts[1].InlineData.Data != "aW1n" {
		t.Fatalf("expected inline image second, got %+v", parts[1])
	}
}

func TestPost_APIErrorAndPolicyRejection(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		fmt.Fprint(w, `{"error":{"message":"blocked by Responsible AI practices"}}`)
	}))
	defer srv.Close()
	c := newTestClient(srv)
	_, err := c.GenerateImage(context.Background(), "x", 1, "")
	if err == nil {
		t.Fatalf("expected error")
	}
	var apiErr *APIError
	if !errors.As(err, &apiErr) || apiErr.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected APIError 400, got %v", err)
	}
	if !IsPolicyRejection(err) {
		t.Fatalf("expected policy rejection classification for %v", err)
	}
}

func TestIsPolicyRejection_PlainError(t *testing.T) {
	if IsPolicyRejection(errors.New("timeout")) {
		t.Fatalf("generic error must not classify as policy rejection")
	}
	if IsPolicyRejection(nil) {
		t.Fatalf("nil must not classify as policy rejection")
	}
}
