package backend

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/cmdline-assistant/clad/internal/domain"
)

func testQuery() domain.BackendQuery {
	return domain.BackendQuery{
		Question: "what is selinux?",
		Context: domain.QueryContext{
			SystemInfo: domain.SystemInfo{OS: "linux", Arch: "amd64"},
		},
	}
}

func TestSend_Success(t *testing.T) {
	var gotBody domain.BackendQuery
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/infer" {
			t.Errorf("path = %q, want /infer", r.URL.Path)
		}
		if err := json.NewDecoder(r.Body).Decode(&gotBody); err != nil {
			t.Errorf("decode request: %v", err)
		}
		w.Write([]byte(`{"data":{"text":"SELinux is a security module."},"extra":"ignored"}`))
	}))
	defer srv.Close()

	client := NewWithHTTPClient(srv.URL, srv.Client())

	answer, err := client.Send(context.Background(), testQuery())
	if err != nil {
		t.Fatalf("Send() error = %v", err)
	}
	if answer.Text != "SELinux is a security module." {
		t.Errorf("Text = %q", answer.Text)
	}
	if gotBody.Question != "what is selinux?" {
		t.Errorf("backend received question %q", gotBody.Question)
	}
}

func TestSend_EmptyAnswerIsValid(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"data":{"text":""}}`))
	}))
	defer srv.Close()

	client := NewWithHTTPClient(srv.URL, srv.Client())

	answer, err := client.Send(context.Background(), testQuery())
	if err != nil {
		t.Fatalf("Send() error = %v", err)
	}
	if answer.Text != "" {
		t.Errorf("Text = %q, want empty", answer.Text)
	}
}

func TestSend_Rejected(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
		w.Write([]byte(`{"error":{"message":"overloaded"}}`))
	}))
	defer srv.Close()

	client := NewWithHTTPClient(srv.URL, srv.Client())

	_, err := client.Send(context.Background(), testQuery())

	var berr *domain.BackendError
	if !errors.As(err, &berr) {
		t.Fatalf("error = %v, want *BackendError", err)
	}
	if berr.Kind != domain.BackendRejected {
		t.Errorf("Kind = %v, want BackendRejected", berr.Kind)
	}
	if berr.Status != http.StatusServiceUnavailable {
		t.Errorf("Status = %d, want 503", berr.Status)
	}
	if berr.Detail != "overloaded" {
		t.Errorf("Detail = %q, want %q", berr.Detail, "overloaded")
	}
}

func TestSend_Timeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(500 * time.Millisecond)
		w.Write([]byte(`{"data":{"text":"late"}}`))
	}))
	defer srv.Close()

	httpClient := srv.Client()
	httpClient.Timeout = 50 * time.Millisecond
	client := NewWithHTTPClient(srv.URL, httpClient)

	_, err := client.Send(context.Background(), testQuery())

	var berr *domain.BackendError
	if !errors.As(err, &berr) {
		t.Fatalf("error = %v, want *BackendError", err)
	}
	if berr.Kind != domain.BackendTimeout {
		t.Errorf("Kind = %v, want BackendTimeout", berr.Kind)
	}
}

func TestSend_Unreachable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	srv.Close() // refuse connections

	client := NewWithHTTPClient(srv.URL, &http.Client{Timeout: time.Second})

	_, err := client.Send(context.Background(), testQuery())

	var berr *domain.BackendError
	if !errors.As(err, &berr) {
		t.Fatalf("error = %v, want *BackendError", err)
	}
	if berr.Kind != domain.BackendUnreachable {
		t.Errorf("Kind = %v, want BackendUnreachable", berr.Kind)
	}
}

func TestSend_UnparseableBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`not json`))
	}))
	defer srv.Close()

	client := NewWithHTTPClient(srv.URL, srv.Client())

	_, err := client.Send(context.Background(), testQuery())

	var berr *domain.BackendError
	if !errors.As(err, &berr) {
		t.Fatalf("error = %v, want *BackendError", err)
	}
	if berr.Kind != domain.BackendRejected {
		t.Errorf("Kind = %v, want BackendRejected", berr.Kind)
	}
}
