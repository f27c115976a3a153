// ABOUTME: Interactive config generator for concierge-gateway
// ABOUTME: Writes the YAML config, a random JWT secret and an admin token file

package main

import (
	"bufio"
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fatih/color"

	"github.com/2389/coven-concierge/internal/auth"
	"github.com/2389/coven-concierge/internal/config"
)

// adminTokenTTL is the lifetime of the token written by init.
const adminTokenTTL = 30 * 24 * time.Hour

func runInit() error {
	reader := bufio.NewReader(os.Stdin)

	fmt.Println("concierge-gateway configuration setup")
	fmt.Println("=====================================")
	fmt.Println()

	defaultDbPath := filepath.Join(getDataPath(), "concierge.db")

	outputFile := prompt(reader, "Config file path", config.Path())

	if _, err := os.Stat(outputFile); err == nil {
		if !yes(prompt(reader, "File exists. Overwrite?", "no")) {
			fmt.Println("Aborted.")
			return nil
		}
	}

	fmt.Println("\n--- Server Configuration ---")
	httpAddr := prompt(reader, "HTTP address", "localhost:8080")

	fmt.Println("\n--- Storage Configuration ---")
	dbPath := prompt(reader, "SQLite database path", defaultDbPath)
	backend := prompt(reader, "Session backend (sqlite/redis)", config.BackendSQLite)
	var redisAddr string
	if backend == config.BackendRedis {
		redisAddr = prompt(reader, "Redis address", "localhost:6379")
	}
	seedFile := prompt(reader, "Catalog seed file (leave empty for none)", "")

	fmt.Println("\n--- WhatsApp Configuration ---")
	waEnabled := yes(prompt(reader, "Enable WhatsApp webhook?", "no"))
	var phoneID, verifyToken string
	if waEnabled {
		phoneID = prompt(reader, "Phone number ID", "")
		verifyToken = prompt(reader, "Webhook verify token", "")
	}

	fmt.Println("\n--- Tailscale Configuration ---")
	tailscaleEnabled := yes(prompt(reader, "Enable Tailscale?", "no"))
	var tsHostname, tsAuthKey string
	var tsEphemeral, tsFunnel bool
	if tailscaleEnabled {
		tsHostname = prompt(reader, "Tailscale hostname", "concierge")
		tsAuthKey = prompt(reader, "Tailscale auth key (leave empty for interactive)", "")
		tsEphemeral = yes(prompt(reader, "Ephemeral node?", "no"))
		tsFunnel = yes(prompt(reader, "Enable Funnel (public HTTPS, needed for WhatsApp)?", "no"))
	}

	fmt.Println("\n--- Logging Configuration ---")
	logLevel := prompt(reader, "Log level (debug/info/warn/error)", "info")
	logFormat := prompt(reader, "Log format (text/json)", "text")

	secretBytes := make([]byte, 32)
	if _, err := rand.Read(secretBytes); err != nil {
		return fmt.Errorf("generating JWT secret: %w", err)
	}
	jwtSecret := base64.StdEncoding.EncodeToString(secretBytes)

	var cfg strings.Builder
	cfg.WriteString("# concierge-gateway configuration\n")
	cfg.WriteString("# Generated by concierge-gateway init\n\n")

	cfg.WriteString("server:\n")
	cfg.WriteString(fmt.Sprintf("  http_addr: \"%s\"\n\n", httpAddr))

	cfg.WriteString("database:\n")
	cfg.WriteString(fmt.Sprintf("  path: \"%s\"\n\n", dbPath))

	cfg.WriteString("session:\n")
	cfg.WriteString(fmt.Sprintf("  backend: \"%s\"\n", backend))
	cfg.WriteString("  ttl: \"24h\"\n")
	cfg.WriteString("  history_limit: 50\n\n")

	if redisAddr != "" {
		cfg.WriteString("redis:\n")
		cfg.WriteString(fmt.Sprintf("  addr: \"%s\"\n", redisAddr))
		cfg.WriteString("  password: \"${REDIS_PASSWORD}\"\n\n")
	}

	if seedFile != "" {
		cfg.WriteString("catalog:\n")
		cfg.WriteString(fmt.Sprintf("  seed_file: \"%s\"\n\n", seedFile))
	}

	cfg.WriteString("whatsapp:\n")
	cfg.WriteString(fmt.Sprintf("  enabled: %t\n", waEnabled))
	if waEnabled {
		cfg.WriteString(fmt.Sprintf("  phone_number_id: \"%s\"\n", phoneID))
		cfg.WriteString("  access_token: \"${WHATSAPP_ACCESS_TOKEN}\"\n")
		cfg.WriteString(fmt.Sprintf("  verify_token: \"%s\"\n", verifyToken))
		cfg.WriteString("  app_secret: \"${WHATSAPP_APP_SECRET}\"\n")
	}
	cfg.WriteString("\n")

	cfg.WriteString("tailscale:\n")
	cfg.WriteString(fmt.Sprintf("  enabled: %t\n", tailscaleEnabled))
	if tailscaleEnabled {
		cfg.WriteString(fmt.Sprintf("  hostname: \"%s\"\n", tsHostname))
		if tsAuthKey != "" {
			cfg.WriteString(fmt.Sprintf("  auth_key: \"%s\"\n", tsAuthKey))
		}
		cfg.WriteString(fmt.Sprintf("  ephemeral: %t\n", tsEphemeral))
		cfg.WriteString(fmt.Sprintf("  funnel: %t\n", tsFunnel))
	}
	cfg.WriteString("\n")

	cfg.WriteString("admin:\n")
	cfg.WriteString(fmt.Sprintf("  jwt_secret: \"%s\"\n\n", jwtSecret))

	cfg.WriteString("ratelimit:\n")
	cfg.WriteString("  window: \"15m\"\n")
	cfg.WriteString("  max_requests: 100\n\n")

	cfg.WriteString("logging:\n")
	cfg.WriteString(fmt.Sprintf("  level: \"%s\"\n", logLevel))
	cfg.WriteString(fmt.Sprintf("  format: \"%s\"\n\n", logFormat))

	cfg.WriteString("metrics:\n")
	cfg.WriteString("  enabled: false\n")
	cfg.WriteString("  path: \"/metrics\"\n")

	configDir := filepath.Dir(outputFile)
	if err := os.MkdirAll(configDir, 0755); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}

	// the file holds the JWT secret
	if err := os.WriteFile(outputFile, []byte(cfg.String()), 0600); err != nil {
		return fmt.Errorf("writing config file: %w", err)
	}

	dataDir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dataDir, 0755); err != nil {
		return fmt.Errorf("creating data directory: %w", err)
	}

	token, err := auth.NewJWTVerifier([]byte(jwtSecret)).Generate("owner", adminTokenTTL)
	if err != nil {
		return fmt.Errorf("generating token: %w", err)
	}
	tokenPath := filepath.Join(configDir, "concierge-token")
	if err := os.WriteFile(tokenPath, []byte(token), 0600); err != nil {
		return fmt.Errorf("writing token file: %w", err)
	}

	green := color.New(color.FgGreen)
	fmt.Println()
	green.Printf("  ✓ Config written to %s\n", outputFile)
	green.Printf("  ✓ Data directory: %s\n", dataDir)
	green.Printf("  ✓ Admin token: %s (expires %s)\n", tokenPath, time.Now().Add(adminTokenTTL).Format("Jan 02, 2006"))
	fmt.Println("\nTo start the server:")
	fmt.Println("  concierge-gateway serve")

	return nil
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

func yes(answer string) bool {
	a := strings.ToLower(answer)
	return a == "yes" || a == "y"
}
