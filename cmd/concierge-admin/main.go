// ABOUTME: Admin CLI for the concierge gateway
// ABOUTME: Inspects sessions and records over HTTP and manages local catalog and credentials

package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/fatih/color"
	"github.com/joho/godotenv"
)

const banner = `
  ___ ___  _ __   ___(_) ___ _ __ __ _  ___        __ _  __| |_ __ ___ (_)_ __
 / __/ _ \| '_ \ / __| |/ _ \ '__/ _' |/ _ \_____ / _' |/ _' | '_ ' _ \| | '_ \
| (_| (_) | | | | (__| |  __/ | | (_| |  __/_____| (_| | (_| | | | | | | | | | |
 \___\___/|_| |_|\___|_|\___|_|  \__, |\___|      \__,_|\__,_|_| |_| |_|_|_| |_|
                                 |___/
`

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	_ = godotenv.Load()

	cmd := os.Args[1]
	args := os.Args[2:]

	var err error
	switch cmd {
	case "status":
		err = cmdStatus(newClient())
	case "history":
		err = cmdHistory(newClient(), args)
	case "session":
		err = cmdSession(newClient(), args)
	case "clear":
		err = cmdClear(newClient(), args)
	case "interactions":
		err = cmdInteractions(newClient(), args)
	case "feedback":
		err = cmdFeedback(newClient(), args)
	case "watch":
		err = cmdWatch(newClient(), args)
	case "say":
		err = cmdSay(newClient(), args)
	case "chat":
		err = cmdChat(newClient(), args)
	case "seed":
		err = cmdSeed(args)
	case "token":
		err = cmdToken(args)
	case "hash-key":
		err = cmdHashKey(args)
	case "help", "-h", "--help":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", cmd)
		printUsage()
		os.Exit(1)
	}

	if err != nil {
		color.Red("Error: %v\n", err)
		os.Exit(1)
	}
}

func printUsage() {
	cyan := color.New(color.FgCyan)
	yellow := color.New(color.FgYellow)

	cyan.Print(banner)
	fmt.Println()
	fmt.Println("Usage: concierge-admin <command> [args]")
	fmt.Println()
	yellow.Println("Gateway commands:")
	fmt.Println("  status                           Show gateway status and counts")
	fmt.Println("  history <user> [--limit N]       Show a user's recent messages")
	fmt.Println("  session <user>                   Show a user's stored session")
	fmt.Println("  clear <user>                     Delete a user's session and history")
	fmt.Println("  interactions [--user U] [--limit N]")
	fmt.Println("                                   List logged interactions")
	fmt.Println("  feedback [--status S] [--limit N]")
	fmt.Println("                                   List product feedback (new, reviewed)")
	fmt.Println("  watch [user]                     Stream interactions as they happen")
	fmt.Println("  say <user> <message>             Dispatch a message and print the reply")
	fmt.Println("  chat <user>                      Talk to the concierge interactively")
	fmt.Println()
	yellow.Println("Local commands (read the gateway config):")
	fmt.Println("  seed <file>                      Import products and FAQs into the database")
	fmt.Println("  token [--subject S] [--ttl D]    Generate an admin JWT")
	fmt.Println("  hash-key <key>                   Print the bcrypt hash for admin.api_key_hash")
	fmt.Println()
	yellow.Println("Environment:")
	fmt.Println("  CONCIERGE_URL            Gateway base URL (default: http://localhost:8080)")
	fmt.Println("  CONCIERGE_TOKEN          Admin JWT (default: read from the token file)")
	fmt.Println("  CONCIERGE_API_KEY        Admin API key, used instead of a token")
	fmt.Println("  COVEN_CONCIERGE_CONFIG   Gateway config path for local commands")
	fmt.Println()
	yellow.Println("Examples:")
	fmt.Println("  concierge-admin status")
	fmt.Println("  concierge-admin history 15551234567 --limit 10")
	fmt.Println("  concierge-admin feedback --status new")
	fmt.Println("  concierge-admin seed catalog.yaml")
	fmt.Println()
}

func newClient() *client {
	return &client{
		baseURL: strings.TrimSuffix(getEnv("CONCIERGE_URL", "http://localhost:8080"), "/"),
		token:   getToken(),
		apiKey:  os.Getenv("CONCIERGE_API_KEY"),
	}
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// getToken returns CONCIERGE_TOKEN or the token file written by
// concierge-gateway init.
func getToken() string {
	if token := os.Getenv("CONCIERGE_TOKEN"); token != "" {
		return token
	}

	configDir := os.Getenv("XDG_CONFIG_HOME")
	if configDir == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return ""
		}
		configDir = filepath.Join(homeDir, ".config")
	}

	data, err := os.ReadFile(filepath.Join(configDir, "coven", "concierge-token"))
	if err != nil {
		return ""
	}
	return strings.TrimSpace(string(data))
}

// parseFlags reads "--name value" and "--name=value" pairs for the given
// names and returns the remaining positional arguments.
func parseFlags(args []string, names ...string) (map[string]string, []string, error) {
	known := make(map[string]bool, len(names))
	for _, n := range names {
		known[n] = true
	}

	flags := make(map[string]string)
	var rest []string
	for i := 0; i < len(args); i++ {
		arg := args[i]
		if !strings.HasPrefix(arg, "--") {
			rest = append(rest, arg)
			continue
		}
		name, value, hasValue := strings.Cut(strings.TrimPrefix(arg, "--"), "=")
		if !known[name] {
			return nil, nil, fmt.Errorf("unknown flag: %s", arg)
		}
		if !hasValue {
			if i+1 >= len(args) {
				return nil, nil, fmt.Errorf("--%s requires a value", name)
			}
			value = args[i+1]
			i++
		}
		flags[name] = value
	}
	return flags, rest, nil
}

func truncate(s string, maxLen int) string {
	s = strings.ReplaceAll(s, "\n", " ")
	if len([]rune(s)) <= maxLen {
		return s
	}
	return string([]rune(s)[:maxLen-1]) + "…"
}
