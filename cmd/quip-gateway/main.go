// ABOUTME: Entry point for quip-gateway, an MCP gateway serving joke and fact tools
// ABOUTME: Provides serve, init, health, tools and token subcommands

package main

import (
	"bufio"
	"context"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/fatih/color"

	"github.com/2389/quip-gateway/internal/auth"
	"github.com/2389/quip-gateway/internal/config"
	"github.com/2389/quip-gateway/internal/gateway"
)

// Version is set by goreleaser at build time.
var version = "dev"

const banner = `
             _                           _
  __ _ _   _(_)_ __         __ _  __ _| |_ _____      ____ _ _   _
 / _' | | | | | '_ \ _____ / _' |/ _' | __/ _ \ \ /\ / / _' | | | |
| (_| | |_| | | |_) |_____| (_| | (_| | ||  __/\ V  V / (_| | |_| |
 \__, |\__,_|_| .__/       \__, |\__,_|\__\___| \_/\_/ \__,_|\__, |
    |_|       |_|          |___/                             |___/
`

// getConfigPath returns the path to the gateway config file.
// Priority: QUIP_CONFIG env var > XDG_CONFIG_HOME/quip/gateway.yaml > ~/.config/quip/gateway.yaml
func getConfigPath() string {
	if envPath := os.Getenv("QUIP_CONFIG"); envPath != "" {
		return envPath
	}

	configDir := os.Getenv("XDG_CONFIG_HOME")
	if configDir == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "gateway.yaml" // fallback
		}
		configDir = filepath.Join(homeDir, ".config")
	}

	return filepath.Join(configDir, "quip", "gateway.yaml")
}

// getDataPath returns the path to the quip data directory.
// Priority: XDG_DATA_HOME/quip > ~/.local/share/quip
func getDataPath() string {
	dataDir := os.Getenv("XDG_DATA_HOME")
	if dataDir == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "data" // fallback
		}
		dataDir = filepath.Join(homeDir, ".local", "share")
	}

	return filepath.Join(dataDir, "quip")
}

func main() {
	if len(os.Args) < 2 {
		fmt.Println("Usage: quip-gateway <command>")
		fmt.Println()
		fmt.Println("Commands:")
		fmt.Println("  serve                        Start the gateway server")
		fmt.Println("  init                         Create a new config file interactively")
		fmt.Println("  health                       Check gateway readiness")
		fmt.Println("  tools                        List the tools a running gateway serves")
		fmt.Println("  token --subject NAME [--ttl] Mint a bearer token for the gateway")
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	var err error
	switch os.Args[1] {
	case "serve":
		err = runServe(ctx)
	case "init":
		err = runInit()
	case "health":
		err = runHealth(ctx)
	case "tools":
		err = runTools(ctx)
	case "token":
		err = runToken(os.Args[2:])
	case "version":
		fmt.Println(version)
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", os.Args[1])
		os.Exit(1)
	}

	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func runServe(ctx context.Context) error {
	configPath := getConfigPath()

	cyan := color.New(color.FgCyan)
	cyan.Print(banner)

	gray := color.New(color.FgHiBlack)
	gray.Printf("    version: %s\n\n", version)

	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	logger := setupLogger(cfg.Logging)

	green := color.New(color.FgGreen)
	yellow := color.New(color.FgYellow)

	green.Print("    ▶ ")
	fmt.Printf("Config:    %s\n", configPath)
	green.Print("    ▶ ")
	fmt.Printf("HTTP:      %s\n", cfg.Server.HTTPAddr)
	green.Print("    ▶ ")
	fmt.Printf("Mode:      %s\n", cfg.Transport.Mode)
	if cfg.Database.Path != "" {
		green.Print("    ▶ ")
		fmt.Printf("Database:  %s\n", cfg.Database.Path)
	}
	if cfg.Auth.JWTSecret == "" {
		yellow.Print("    ! ")
		fmt.Println("Auth:      disabled")
	}

	if cfg.Tailscale.Enabled {
		green.Print("    ▶ ")
		fmt.Printf("Tailscale: ")
		cyan.Print(cfg.Tailscale.Hostname)
		if cfg.Tailscale.Funnel {
			yellow.Print(" [funnel]")
		}
		if cfg.Tailscale.Ephemeral {
			gray.Print(" (ephemeral)")
		}
		fmt.Println()
	}

	fmt.Println()

	logger.Info("starting quip-gateway",
		"config", configPath,
		"http_addr", cfg.Server.HTTPAddr,
		"mode", cfg.Transport.Mode,
	)

	gw, err := gateway.New(cfg, logger)
	if err != nil {
		return fmt.Errorf("creating gateway: %w", err)
	}

	return gw.Run(ctx)
}

// gatewayGet issues an authenticated GET against the configured gateway.
func gatewayGet(ctx context.Context, cfg *config.Config, path string) (*http.Response, error) {
	url := fmt.Sprintf("http://%s%s", cfg.Server.HTTPAddr, path)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}

	if cfg.Auth.JWTSecret != "" {
		verifier, err := auth.NewJWTVerifier([]byte(cfg.Auth.JWTSecret))
		if err != nil {
			return nil, fmt.Errorf("creating JWT verifier: %w", err)
		}
		token, err := verifier.Generate("quip-cli", time.Minute)
		if err != nil {
			return nil, fmt.Errorf("generating token: %w", err)
		}
		req.Header.Set("Authorization", "Bearer "+token)
	}

	return http.DefaultClient.Do(req)
}

func runHealth(ctx context.Context) error {
	cfg, err := config.Load(getConfigPath())
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	resp, err := gatewayGet(ctx, cfg, "/health/ready")
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("reading response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("not ready: status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	fmt.Println(string(body))
	return nil
}

func runTools(ctx context.Context) error {
	cfg, err := config.Load(getConfigPath())
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	resp, err := gatewayGet(ctx, cfg, "/api/tools")
	if err != nil {
		return fmt.Errorf("listing tools failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("listing tools failed: status %d", resp.StatusCode)
	}

	var catalog toolCatalog
	if err := json.NewDecoder(resp.Body).Decode(&catalog); err != nil {
		return fmt.Errorf("decoding tool catalog: %w", err)
	}

	printCatalog(os.Stdout, catalog)
	return nil
}

// toolCatalog is the subset of GET /api/tools the CLI prints.
type toolCatalog struct {
	Tools []struct {
		Name        string `json:"name"`
		Description string `json:"description"`
		InputSchema struct {
			Required []string `json:"required"`
		} `json:"inputSchema"`
	} `json:"tools"`
}

func printCatalog(w io.Writer, catalog toolCatalog) {
	cyan := color.New(color.FgCyan)
	gray := color.New(color.FgHiBlack)

	if len(catalog.Tools) == 0 {
		fmt.Fprintln(w, "no tools registered")
		return
	}
	for _, tool := range catalog.Tools {
		cyan.Fprintf(w, "%-24s", tool.Name)
		fmt.Fprintf(w, " %s", tool.Description)
		if len(tool.InputSchema.Required) > 0 {
			gray.Fprintf(w, " (requires %s)", strings.Join(tool.InputSchema.Required, ", "))
		}
		fmt.Fprintln(w)
	}
}

// runToken mints a bearer token signed with the configured secret.
// Supports "--subject value", "--subject=value" and the same for --ttl.
func runToken(args []string) error {
	subject, ttl, err := parseTokenArgs(args)
	if err != nil {
		return err
	}

	cfg, err := config.Load(getConfigPath())
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	if cfg.Auth.JWTSecret == "" {
		return fmt.Errorf("auth.jwt_secret is not configured; the gateway accepts unauthenticated requests")
	}

	verifier, err := auth.NewJWTVerifier([]byte(cfg.Auth.JWTSecret))
	if err != nil {
		return fmt.Errorf("creating JWT verifier: %w", err)
	}
	token, err := verifier.Generate(subject, ttl)
	if err != nil {
		return fmt.Errorf("generating token: %w", err)
	}

	fmt.Println(token)
	return nil
}

func parseTokenArgs(args []string) (subject string, ttl time.Duration, err error) {
	ttl = 30 * 24 * time.Hour
	ttlRaw := ""

	for i := 0; i < len(args); i++ {
		arg := args[i]
		switch {
		case arg == "--subject" || arg == "-s":
			if i+1 >= len(args) {
				return "", 0, fmt.Errorf("--subject requires a value")
			}
			subject = args[i+1]
			i++
		case strings.HasPrefix(arg, "--subject="):
			subject = strings.TrimPrefix(arg, "--subject=")
		case arg == "--ttl":
			if i+1 >= len(args) {
				return "", 0, fmt.Errorf("--ttl requires a value")
			}
			ttlRaw = args[i+1]
			i++
		case strings.HasPrefix(arg, "--ttl="):
			ttlRaw = strings.TrimPrefix(arg, "--ttl=")
		case strings.HasPrefix(arg, "-"):
			return "", 0, fmt.Errorf("unknown flag: %s", arg)
		default:
			return "", 0, fmt.Errorf("unexpected argument: %s", arg)
		}
	}

	subject = strings.TrimSpace(subject)
	if subject == "" {
		return "", 0, fmt.Errorf("--subject flag is required")
	}
	if ttlRaw != "" {
		ttl, err = time.ParseDuration(ttlRaw)
		if err != nil || ttl <= 0 {
			return "", 0, fmt.Errorf("--ttl must be a positive duration, got %q", ttlRaw)
		}
	}
	return subject, ttl, nil
}

// initAnswers holds the values collected by runInit.
type initAnswers struct {
	HTTPAddr     string
	Mode         string
	DBPath       string
	JWTSecret    string
	Tailscale    bool
	TSHostname   string
	TSAuthKey    string
	TSEphemeral  bool
	TSFunnel     bool
	LogLevel     string
	LogFormat    string
	DisablePacks []string
}

func runInit() error {
	reader := bufio.NewReader(os.Stdin)

	fmt.Println("quip-gateway configuration setup")
	fmt.Println("================================")
	fmt.Println()

	defaultDbPath := filepath.Join(getDataPath(), "calls.db")

	outputFile := prompt(reader, "Config file path", getConfigPath())

	if _, err := os.Stat(outputFile); err == nil {
		if !isYes(prompt(reader, "File exists. Overwrite?", "no")) {
			fmt.Println("Aborted.")
			return nil
		}
	}

	var a initAnswers

	fmt.Println("\n--- Server Configuration ---")
	a.HTTPAddr = prompt(reader, "HTTP address", config.DefaultHTTPAddr)
	a.Mode = prompt(reader, "Transport mode (single/streaming/both)", config.DefaultMode)

	fmt.Println("\n--- Database Configuration ---")
	a.DBPath = prompt(reader, "SQLite database path (empty disables call recording)", defaultDbPath)

	fmt.Println("\n--- Authentication ---")
	if isYes(prompt(reader, "Require bearer tokens?", "yes")) {
		secret, err := generateSecret()
		if err != nil {
			return err
		}
		a.JWTSecret = secret
	}

	fmt.Println("\n--- Tailscale Configuration ---")
	a.Tailscale = isYes(prompt(reader, "Enable Tailscale?", "no"))
	if a.Tailscale {
		a.TSHostname = prompt(reader, "Tailscale hostname", "quip-gateway")
		a.TSAuthKey = prompt(reader, "Tailscale auth key (leave empty to use TS_AUTHKEY)", "")
		a.TSEphemeral = isYes(prompt(reader, "Ephemeral node?", "no"))
		a.TSFunnel = isYes(prompt(reader, "Enable Funnel (public HTTPS)?", "no"))
	}

	fmt.Println("\n--- Tools ---")
	if disabled := prompt(reader, "Packs to disable (comma separated: jokes, facts)", ""); disabled != "" {
		for _, id := range strings.Split(disabled, ",") {
			if id = strings.TrimSpace(id); id != "" {
				a.DisablePacks = append(a.DisablePacks, id)
			}
		}
	}

	fmt.Println("\n--- Logging Configuration ---")
	a.LogLevel = prompt(reader, "Log level (debug/info/warn/error)", "info")
	a.LogFormat = prompt(reader, "Log format (text/json)", "text")

	configDir := filepath.Dir(outputFile)
	if err := os.MkdirAll(configDir, 0755); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}

	// The file may hold a secret.
	if err := os.WriteFile(outputFile, []byte(renderConfig(a)), 0600); err != nil {
		return fmt.Errorf("writing config file: %w", err)
	}

	if a.DBPath != "" {
		if err := os.MkdirAll(filepath.Dir(a.DBPath), 0755); err != nil {
			return fmt.Errorf("creating data directory: %w", err)
		}
	}

	fmt.Printf("\nConfig written to %s\n", outputFile)
	fmt.Println("\nTo start the server:")
	fmt.Printf("  quip-gateway serve\n")
	if a.JWTSecret != "" {
		fmt.Println("\nTo mint a client token:")
		fmt.Printf("  quip-gateway token --subject my-client\n")
	}

	return nil
}

// renderConfig produces the YAML config file for the given answers.
func renderConfig(a initAnswers) string {
	var cfg strings.Builder
	cfg.WriteString("# quip-gateway configuration\n")
	cfg.WriteString("# Generated by quip-gateway init\n\n")

	cfg.WriteString("server:\n")
	fmt.Fprintf(&cfg, "  http_addr: %q\n", a.HTTPAddr)
	cfg.WriteString("\n")

	cfg.WriteString("transport:\n")
	fmt.Fprintf(&cfg, "  mode: %q\n", a.Mode)
	cfg.WriteString("  keepalive_interval: \"30s\"\n")
	cfg.WriteString("  session_idle_timeout: \"30m\"\n")
	cfg.WriteString("\n")

	cfg.WriteString("tools:\n")
	cfg.WriteString("  request_timeout: \"10s\"\n")
	cfg.WriteString("  retry_max: 2\n")
	if len(a.DisablePacks) > 0 {
		cfg.WriteString("  disabled:\n")
		for _, id := range a.DisablePacks {
			fmt.Fprintf(&cfg, "    - %q\n", id)
		}
	}
	cfg.WriteString("\n")

	cfg.WriteString("database:\n")
	fmt.Fprintf(&cfg, "  path: %q\n", a.DBPath)
	cfg.WriteString("\n")

	cfg.WriteString("auth:\n")
	fmt.Fprintf(&cfg, "  jwt_secret: %q\n", a.JWTSecret)
	cfg.WriteString("\n")

	cfg.WriteString("tailscale:\n")
	fmt.Fprintf(&cfg, "  enabled: %t\n", a.Tailscale)
	if a.Tailscale {
		fmt.Fprintf(&cfg, "  hostname: %q\n", a.TSHostname)
		if a.TSAuthKey != "" {
			fmt.Fprintf(&cfg, "  auth_key: %q\n", a.TSAuthKey)
		}
		fmt.Fprintf(&cfg, "  ephemeral: %t\n", a.TSEphemeral)
		fmt.Fprintf(&cfg, "  funnel: %t\n", a.TSFunnel)
	}
	cfg.WriteString("\n")

	cfg.WriteString("logging:\n")
	fmt.Fprintf(&cfg, "  level: %q\n", a.LogLevel)
	fmt.Fprintf(&cfg, "  format: %q\n", a.LogFormat)

	return cfg.String()
}

func generateSecret() (string, error) {
	secretBytes := make([]byte, 32)
	if _, err := rand.Read(secretBytes); err != nil {
		return "", fmt.Errorf("generating JWT secret: %w", err)
	}
	return base64.StdEncoding.EncodeToString(secretBytes), nil
}

func isYes(s string) bool {
	s = strings.ToLower(s)
	return s == "yes" || s == "y"
}

func prompt(reader *bufio.Reader, question, defaultVal string) string {
	if defaultVal != "" {
		fmt.Printf("%s [%s]: ", question, defaultVal)
	} else {
		fmt.Printf("%s: ", question)
	}

	input, err := reader.ReadString('\n')
	if err != nil {
		// On EOF or error, return default
		fmt.Println()
		return defaultVal
	}
	input = strings.TrimSpace(input)

	if input == "" {
		return defaultVal
	}
	return input
}
