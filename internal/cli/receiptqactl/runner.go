package receiptqactl

import (
	"bytes"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/pterm/pterm"
)

type Options struct {
	BaseURL    string
	APIKey     string
	ClientID   string
	Timeout    time.Duration
	HTTPClient *http.Client
	Stdout     io.Writer
	Stderr     io.Writer
}

type request struct {
	method string
	path   string
	body   any
}

func Run(ctx context.Context, args []string, defaults Options) int {
	stdout := defaults.Stdout
	if stdout == nil {
		stdout = io.Discard
	}
	stderr := defaults.Stderr
	if stderr == nil {
		stderr = io.Discard
	}

	fs := flag.NewFlagSet("receiptqactl", flag.ContinueOnError)
	fs.SetOutput(stderr)

	baseURL := fs.String("base-url", firstNonEmpty(defaults.BaseURL, "http://localhost:5001"), "receiptqa API base URL")
	apiKey := fs.String("api-key", defaults.APIKey, "API key for authenticated requests")
	clientID := fs.String("client-id", defaults.ClientID, "conversation id sent with ask (random per invocation when empty)")
	timeout := fs.Duration("timeout", durationOr(defaults.Timeout, 90*time.Second), "HTTP timeout (e.g. 90s)")
	pretty := fs.Bool("pretty", false, "render answers in a box instead of JSON")

	if err := fs.Parse(args); err != nil {
		return 2
	}
	if fs.NArg() < 1 {
		writeUsage(stderr)
		return 2
	}

	client := defaults.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: *timeout}
	}

	command := strings.TrimSpace(fs.Arg(0))
	rest := fs.Args()[1:]
	var req request
	switch command {
	case "ask":
		question := strings.TrimSpace(strings.Join(rest, " "))
		if question == "" {
			_, _ = fmt.Fprintln(stderr, "ask requires a question")
			return 2
		}
		id := strings.TrimSpace(*clientID)
		if id == "" {
			id = uuid.NewString()
		}
		req = request{method: http.MethodPost, path: "/v1/ask", body: map[string]string{"question": question, "client_id": id}}
	case "schema":
		req = request{method: http.MethodGet, path: "/v1/schema"}
	case "health":
		req = request{method: http.MethodGet, path: "/v1/health"}
	case "ready":
		req = request{method: http.MethodGet, path: "/v1/ready"}
	case "memory", "forget":
		if len(rest) != 1 || strings.TrimSpace(rest[0]) == "" {
			_, _ = fmt.Fprintf(stderr, "%s requires exactly one client id\n", command)
			return 2
		}
		method := http.MethodGet
		if command == "forget" {
			method = http.MethodDelete
		}
		req = request{method: method, path: "/v1/memory/" + url.PathEscape(strings.TrimSpace(rest[0]))}
	default:
		_, _ = fmt.Fprintf(stderr, "unknown command %q\n\n", command)
		writeUsage(stderr)
		return 2
	}

	endpoint := strings.TrimRight(*baseURL, "/") + req.path
	code, responseBody, err := doRequest(ctx, client, req.method, endpoint, *apiKey, req.body)
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "request failed: %v\n", err)
		return 1
	}

	if code >= 400 {
		_, _ = fmt.Fprintf(stderr, "http %d: %s\n", code, strings.TrimSpace(string(responseBody)))
		return 1
	}

	if *pretty && command == "ask" {
		if rendered, ok := renderAnswer(responseBody); ok {
			_, _ = fmt.Fprintln(stdout, rendered)
			return 0
		}
	}
	if formatted, ok := prettyJSON(responseBody); ok {
		_, _ = fmt.Fprintln(stdout, formatted)
		return 0
	}
	if len(responseBody) > 0 {
		_, _ = fmt.Fprintln(stdout, string(responseBody))
	}
	return 0
}

func doRequest(ctx context.Context, client *http.Client, method, endpoint, apiKey string, payload any) (int, []byte, error) {
	var body io.Reader
	if payload != nil {
		encoded, err := json.Marshal(payload)
		if err != nil {
			return 0, nil, fmt.Errorf("encode request: %w", err)
		}
		body = bytes.NewReader(encoded)
	}
	req, err := http.NewRequestWithContext(ctx, method, endpoint, body)
	if err != nil {
		return 0, nil, err
	}
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if strings.TrimSpace(apiKey) != "" {
		req.Header.Set("X-API-Key", strings.TrimSpace(apiKey))
	}

	resp, err := client.Do(req)
	if err != nil {
		return 0, nil, err
	}
	defer func() { _ = resp.Body.Close() }()

	responseBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, nil, err
	}
	return resp.StatusCode, responseBody, nil
}

func renderAnswer(raw []byte) (string, bool) {
	var response struct {
		Answer   string `json:"answer"`
		SQLQuery string `json:"sql_query"`
		ClientID string `json:"client_id"`
	}
	if err := json.Unmarshal(raw, &response); err != nil || response.Answer == "" {
		return "", false
	}
	title := pterm.NewStyle(pterm.FgCyan, pterm.Bold).Sprint("Resposta")
	box := pterm.DefaultBox.WithTitle(title).WithPadding(1).Sprint(response.Answer)
	details := pterm.NewStyle(pterm.FgLightCyan).Sprint("SQL: ") + response.SQLQuery + "\n" +
		pterm.NewStyle(pterm.FgLightCyan).Sprint("client_id: ") + response.ClientID
	return box + "\n" + details, true
}

func prettyJSON(raw []byte) (string, bool) {
	if len(bytes.TrimSpace(raw)) == 0 {
		return "", false
	}
	var anyValue any
	if err := json.Unmarshal(raw, &anyValue); err != nil {
		return "", false
	}
	formatted, err := json.MarshalIndent(anyValue, "", "  ")
	if err != nil {
		return "", false
	}
	return string(formatted), true
}

func writeUsage(w io.Writer) {
	_, _ = fmt.Fprintln(w, "usage: receiptqactl [flags] <command>")
	_, _ = fmt.Fprintln(w, "")
	_, _ = fmt.Fprintln(w, "commands:")
	_, _ = fmt.Fprintln(w, "  ask <question...>     POST /v1/ask")
	_, _ = fmt.Fprintln(w, "  schema                GET /v1/schema")
	_, _ = fmt.Fprintln(w, "  health                GET /v1/health")
	_, _ = fmt.Fprintln(w, "  ready                 GET /v1/ready")
	_, _ = fmt.Fprintln(w, "  memory <client_id>    GET /v1/memory/{client_id}")
	_, _ = fmt.Fprintln(w, "  forget <client_id>    DELETE /v1/memory/{client_id}")
}

func firstNonEmpty(a, b string) string {
	if strings.TrimSpace(a) != "" {
		return strings.TrimSpace(a)
	}
	return b
}

func durationOr(v, fallback time.Duration) time.Duration {
	if v > 0 {
		return v
	}
	return fallback
}
