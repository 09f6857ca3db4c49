package receiptqactl

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
)

func TestRunAskCommand(t *testing.T) {
	var gotMethod, gotPath, gotAPIKey string
	var gotBody map[string]string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotMethod = r.Method
		gotPath = r.URL.Path
		gotAPIKey = r.Header.Get("X-API-Key")
		_ = json.NewDecoder(r.Body).Decode(&gotBody)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"answer":"Existem 1234 notas.","sql_query":"SELECT COUNT(*) FROM receipts","client_id":"c1"}`))
	}))
	defer srv.Close()

	var stdout bytes.Buffer
	var stderr bytes.Buffer
	code := Run(context.Background(), []string{
		"-base-url", srv.URL,
		"-api-key", "k1",
		"-client-id", "c1",
		"ask", "Quantas", "notas", "existem?",
	}, Options{
		Stdout:  &stdout,
		Stderr:  &stderr,
		Timeout: 2 * time.Second,
	})
	if code != 0 {
		t.Fatalf("exit code = %d, stderr=%s", code, stderr.String())
	}
	if gotMethod != http.MethodPost || gotPath != "/v1/ask" {
		t.Fatalf("request = %s %s", gotMethod, gotPath)
	}
	if gotAPIKey != "k1" {
		t.Fatalf("api key = %q", gotAPIKey)
	}
	if gotBody["question"] != "Quantas notas existem?" || gotBody["client_id"] != "c1" {
		t.Fatalf("body = %#v", gotBody)
	}
	if !strings.Contains(stdout.String(), "1234") {
		t.Fatalf("stdout = %s", stdout.String())
	}
}

func TestRunAskGeneratesClientID(t *testing.T) {
	var gotBody map[string]string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewDecoder(r.Body).Decode(&gotBody)
		_, _ = w.Write([]byte(`{"answer":"ok","sql_query":"SELECT 1","client_id":"x"}`))
	}))
	defer srv.Close()

	code := Run(context.Background(), []string{"-base-url", srv.URL, "ask", "q"}, Options{})
	if code != 0 {
		t.Fatalf("exit code = %d", code)
	}
	if _, err := uuid.Parse(gotBody["client_id"]); err != nil {
		t.Fatalf("client_id = %q, want uuid: %v", gotBody["client_id"], err)
	}
}

func TestRunAskPrettyRendersAnswer(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"answer":"Existem 1234 notas.","sql_query":"SELECT COUNT(*) FROM receipts","client_id":"c1"}`))
	}))
	defer srv.Close()

	var stdout bytes.Buffer
	code := Run(context.Background(), []string{"-base-url", srv.URL, "-pretty", "ask", "q"}, Options{Stdout: &stdout})
	if code != 0 {
		t.Fatalf("exit code = %d", code)
	}
	out := stdout.String()
	if !strings.Contains(out, "Existem 1234 notas.") || !strings.Contains(out, "SELECT COUNT(*) FROM receipts") {
		t.Fatalf("stdout = %s", out)
	}
	if strings.Contains(out, `"answer"`) {
		t.Fatalf("pretty output should not be JSON: %s", out)
	}
}

func TestRunMemoryAndForgetCommands(t *testing.T) {
	var requests []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests = append(requests, r.Method+" "+r.URL.EscapedPath())
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	}))
	defer srv.Close()

	if code := Run(context.Background(), []string{"-base-url", srv.URL, "memory", "client a"}, Options{}); code != 0 {
		t.Fatalf("memory exit code = %d", code)
	}
	if code := Run(context.Background(), []string{"-base-url", srv.URL, "forget", "c1"}, Options{}); code != 0 {
		t.Fatalf("forget exit code = %d", code)
	}
	if len(requests) != 2 || requests[0] != "GET /v1/memory/client%20a" || requests[1] != "DELETE /v1/memory/c1" {
		t.Fatalf("requests = %#v", requests)
	}
}

func TestRunSchemaCommand(t *testing.T) {
	var gotMethod, gotPath string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotMethod = r.Method
		gotPath = r.URL.Path
		_, _ = w.Write([]byte(`{"tables":[],"rendered":""}`))
	}))
	defer srv.Close()

	code := Run(context.Background(), []string{"-base-url", srv.URL, "schema"}, Options{})
	if code != 0 {
		t.Fatalf("exit code = %d", code)
	}
	if gotMethod != http.MethodGet || gotPath != "/v1/schema" {
		t.Fatalf("request = %s %s", gotMethod, gotPath)
	}
}

func TestRunReturnsErrorOnHTTPFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		_, _ = w.Write([]byte(`{"error_code":"FORBIDDEN"}`))
	}))
	defer srv.Close()

	var stderr bytes.Buffer
	code := Run(context.Background(), []string{"-base-url", srv.URL, "health"}, Options{Stderr: &stderr})
	if code != 1 {
		t.Fatalf("exit code = %d, stderr=%s", code, stderr.String())
	}
	if !strings.Contains(stderr.String(), "http 403") {
		t.Fatalf("stderr = %s", stderr.String())
	}
}

func TestRunRejectsMissingArguments(t *testing.T) {
	for _, args := range [][]string{{}, {"ask"}, {"memory"}, {"forget", "a", "b"}, {"unknown"}} {
		var stderr bytes.Buffer
		if code := Run(context.Background(), args, Options{Stderr: &stderr}); code != 2 {
			t.Fatalf("args %v: exit code = %d", args, code)
		}
		if stderr.Len() == 0 {
			t.Fatalf("args %v: expected usage output", args)
		}
	}
}
