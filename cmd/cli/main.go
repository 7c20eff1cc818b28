package main

import (
	"bytes"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/everkeep/everkeep/internal/config"
	"github.com/everkeep/everkeep/internal/logger"
	"github.com/everkeep/everkeep/internal/version"
)

const usage = `Usage: everkeep-cli [flags] <command> [args]

Commands:
  import-address-book <records.json>   Import parsed address-book records
  import-chats <chats.json>            Import parsed chat files
  suggestions                          List pending link suggestions
  accept <suggestion-id> [contact-id]  Accept a suggestion
  reject <suggestion-id>               Reject a suggestion
  defer <suggestion-id>                Defer a suggestion
  compact                              Run one compaction pass
`

type cliOptions struct {
	configPath  string
	username    string
	password    string
	timeout     time.Duration
	apiBaseURL  string
	jwtToken    string
	showVersion bool
}

func main() {
	opts := parseFlags()
	if opts.showVersion {
		fmt.Printf("Everkeep CLI %s\n", version.GetInfo())
		return
	}
	args := flag.Args()
	if len(args) == 0 {
		fmt.Fprint(os.Stderr, usage)
		os.Exit(2)
	}

	cfg, err := config.Load(opts.configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}
	logger.Init(cfg.Log.Level, cfg.Log.Format)

	if strings.TrimSpace(opts.apiBaseURL) == "" {
		opts.apiBaseURL = defaultAPIBaseURL(cfg.Server.Addr)
	}
	if strings.TrimSpace(opts.apiBaseURL) == "" {
		logger.Error("api url is required")
		os.Exit(1)
	}
	opts.apiBaseURL = normalizeBaseURL(opts.apiBaseURL)

	ctx := context.Background()
	client := &http.Client{Timeout: opts.timeout}

	jwtToken := strings.TrimSpace(opts.jwtToken)
	if jwtToken == "" {
		username, password, err := resolveLoginCredentials(opts, cfg)
		if err != nil {
			logger.Error("resolve login", slog.Any("error", err))
			os.Exit(1)
		}
		jwtToken, err = resolveJWTToken(ctx, client, opts.apiBaseURL, username, password)
		if err != nil {
			logger.Error("resolve jwt", slog.Any("error", err))
			os.Exit(1)
		}
	}

	api := &apiClient{client: client, baseURL: opts.apiBaseURL, token: jwtToken}
	if err := runCommand(ctx, api, args); err != nil {
		logger.Error("command failed", slog.String("command", args[0]), slog.Any("error", err))
		os.Exit(1)
	}
}

func runCommand(ctx context.Context, api *apiClient, args []string) error {
	switch args[0] {
	case "import-address-book":
		if len(args) < 2 {
			return fmt.Errorf("import-address-book requires a JSON file argument")
		}
		return importFile(ctx, api, "/imports/address-book", "records", args[1])
	case "import-chats":
		if len(args) < 2 {
			return fmt.Errorf("import-chats requires a JSON file argument")
		}
		return importFile(ctx, api, "/imports/chats", "chats", args[1])
	case "suggestions":
		return printJSON(api.do(ctx, http.MethodGet, "/suggestions", nil))
	case "accept":
		if len(args) < 2 {
			return fmt.Errorf("accept requires a suggestion id")
		}
		body := map[string]string{}
		if len(args) > 2 {
			body["contact_id"] = args[2]
		}
		return printJSON(api.do(ctx, http.MethodPost, "/suggestions/"+args[1]+"/accept", body))
	case "reject":
		if len(args) < 2 {
			return fmt.Errorf("reject requires a suggestion id")
		}
		return printJSON(api.do(ctx, http.MethodPost, "/suggestions/"+args[1]+"/reject", nil))
	case "defer":
		if len(args) < 2 {
			return fmt.Errorf("defer requires a suggestion id")
		}
		return printJSON(api.do(ctx, http.MethodPost, "/suggestions/"+args[1]+"/defer", nil))
	case "compact":
		return printJSON(api.do(ctx, http.MethodPost, "/compaction/run", nil))
	default:
		fmt.Fprint(os.Stderr, usage)
		return fmt.Errorf("unknown command: %s", args[0])
	}
}

// importFile reads an already-parsed JSON array from disk and posts it under
// the given wrapper key.
func importFile(ctx context.Context, api *apiClient, path, key, file string) error {
	raw, err := os.ReadFile(file)
	if err != nil {
		return err
	}
	var items json.RawMessage
	if err := json.Unmarshal(raw, &items); err != nil {
		return fmt.Errorf("parse %s: %w", file, err)
	}
	return printJSON(api.do(ctx, http.MethodPost, path, map[string]json.RawMessage{key: items}))
}

type apiClient struct {
	client  *http.Client
	baseURL string
	token   string
}

func (a *apiClient) do(ctx context.Context, method, path string, body any) ([]byte, error) {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return nil, err
		}
		reader = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, a.baseURL+path, reader)
	if err != nil {
		return nil, err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Authorization", "Bearer "+a.token)

	resp, err := a.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("%s %s: %s", method, path, strings.TrimSpace(string(payload)))
	}
	return payload, nil
}

func printJSON(payload []byte, err error) error {
	if err != nil {
		return err
	}
	var buf bytes.Buffer
	if indentErr := json.Indent(&buf, payload, "", "  "); indentErr != nil {
		fmt.Println(strings.TrimSpace(string(payload)))
		return nil
	}
	fmt.Println(buf.String())
	return nil
}

func parseFlags() cliOptions {
	var opts cliOptions
	defaultConfig := os.Getenv("CONFIG_PATH")
	if strings.TrimSpace(defaultConfig) == "" {
		defaultConfig = config.DefaultConfigPath
	}

	flag.StringVar(&opts.configPath, "config", defaultConfig, "Path to config.toml")
	flag.StringVar(&opts.username, "username", "", "Username for login")
	flag.StringVar(&opts.password, "password", "", "Password for login (or set EVERKEEP_PASSWORD)")
	flag.StringVar(&opts.jwtToken, "jwt", "", "JWT token (optional)")
	flag.StringVar(&opts.apiBaseURL, "api-url", "", "API server base URL (e.g. http://127.0.0.1:8080)")
	flag.DurationVar(&opts.timeout, "timeout", 30*time.Second, "Request timeout")
	flag.BoolVar(&opts.showVersion, "version", false, "Show version information")
	flag.Parse()

	return opts
}

func normalizeBaseURL(value string) string {
	return strings.TrimRight(strings.TrimSpace(value), "/")
}

func defaultAPIBaseURL(addr string) string {
	trimmed := strings.TrimSpace(addr)
	if trimmed == "" {
		return ""
	}
	if strings.HasPrefix(trimmed, "http://") || strings.HasPrefix(trimmed, "https://") {
		return normalizeBaseURL(trimmed)
	}
	if strings.HasPrefix(trimmed, ":") {
		return "http://127.0.0.1" + trimmed
	}
	return "http://" + trimmed
}

func resolveLoginCredentials(opts cliOptions, cfg config.Config) (string, string, error) {
	username := strings.TrimSpace(opts.username)
	if username == "" {
		username = strings.TrimSpace(cfg.Admin.Username)
	}
	if username == "" {
		return "", "", fmt.Errorf("username is required for login")
	}

	password := strings.TrimSpace(opts.password)
	if password == "" {
		password = strings.TrimSpace(os.Getenv("EVERKEEP_PASSWORD"))
	}
	if password == "" {
		password = strings.TrimSpace(cfg.Admin.Password)
	}
	if password == "" {
		return "", "", fmt.Errorf("password is required; pass --password or set EVERKEEP_PASSWORD")
	}
	return username, password, nil
}

func resolveJWTToken(ctx context.Context, client *http.Client, baseURL, username, password string) (string, error) {
	body, err := json.Marshal(map[string]string{
		"username": username,
		"password": password,
	})
	if err != nil {
		return "", err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, baseURL+"/auth/login", bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		payload, _ := io.ReadAll(resp.Body)
		return "", fmt.Errorf("login failed: %s", strings.TrimSpace(string(payload)))
	}

	var parsed struct {
		AccessToken string `json:"access_token"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return "", err
	}
	if strings.TrimSpace(parsed.AccessToken) == "" {
		return "", fmt.Errorf("login succeeded but token missing")
	}
	return parsed.AccessToken, nil
}
