// ABOUTME: Gateway-backed admin commands: status, history, sessions, records, watch, say
// ABOUTME: Renders admin API responses as colored tables

package main

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"sort"
	"strconv"
	"strings"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/fatih/color"

	"github.com/2389/coven-concierge/internal/admin"
	"github.com/2389/coven-concierge/internal/reply"
	"github.com/2389/coven-concierge/internal/session"
	"github.com/2389/coven-concierge/internal/store"
)

const requestTimeout = 15 * time.Second

// cmdStatus shows gateway health and counts. A degraded gateway answers 503
// with the same body, so both are rendered.
func cmdStatus(c *client) error {
	cyan := color.New(color.FgCyan)
	green := color.New(color.FgGreen)
	yellow := color.New(color.FgYellow)

	cyan.Print(banner)
	fmt.Println()

	if err := c.requireCredentials(); err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
	defer cancel()

	req, err := c.newRequest(ctx, http.MethodGet, "/admin/status", nil, nil)
	if err != nil {
		return err
	}
	resp, err := c.httpClient().Do(req)
	if err != nil {
		yellow.Printf("  Gateway:  ")
		color.Red("UNREACHABLE (%v)\n", err)
		return nil
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("reading response: %w", err)
	}
	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusServiceUnavailable {
		return responseError(resp.StatusCode, data)
	}

	var status admin.StatusResponse
	if err := json.Unmarshal(data, &status); err != nil {
		return fmt.Errorf("decoding response: %w", err)
	}

	green.Printf("  Gateway:  ")
	fmt.Printf("%s\n", c.baseURL)
	if status.Status == "ok" {
		green.Printf("  Status:   ")
		fmt.Println(status.Status)
	} else {
		yellow.Printf("  Status:   ")
		color.Red("%s\n", status.Status)
	}

	names := make([]string, 0, len(status.Services))
	for name := range status.Services {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		state := status.Services[name]
		fmt.Printf("  %-9s ", name+":")
		if state == "connected" {
			green.Println(state)
		} else {
			color.Red("%s\n", state)
		}
	}

	fmt.Printf("  Sessions: %s\n", countOrUnknown(status.Metrics.ActiveSessions))
	fmt.Printf("  Logged:   %s interactions\n", countOrUnknown(status.Metrics.TotalInteractions))
	fmt.Println()
	return nil
}

func countOrUnknown(n int) string {
	if n < 0 {
		return "unknown"
	}
	return strconv.Itoa(n)
}

func cmdHistory(c *client, args []string) error {
	flags, rest, err := parseFlags(args, "limit")
	if err != nil {
		return err
	}
	if len(rest) != 1 {
		return fmt.Errorf("usage: history <user> [--limit N]")
	}
	user := rest[0]

	query := url.Values{}
	if v, ok := flags["limit"]; ok {
		query.Set("limit", v)
	}

	ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
	defer cancel()

	var entries []session.Entry
	if err := c.do(ctx, http.MethodGet, "/admin/history/"+url.PathEscape(user), query, nil, &entries); err != nil {
		return err
	}

	cyan := color.New(color.FgCyan)
	fmt.Println()
	cyan.Printf("  History for %s\n", user)
	cyan.Println("  " + strings.Repeat("-", len("History for ")+len(user)))

	if len(entries) == 0 {
		fmt.Println("  (no history)")
		fmt.Println()
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "  TIME\tDIRECTION\tCONTENT")
	fmt.Fprintln(w, "  ----\t---------\t-------")
	for _, e := range entries {
		fmt.Fprintf(w, "  %s\t%s\t%s\n", e.Timestamp.Local().Format("Jan 02 15:04:05"), e.Direction, truncate(e.Content, 60))
	}
	w.Flush()
	fmt.Println()
	return nil
}

func cmdSession(c *client, args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("usage: session <user>")
	}

	ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
	defer cancel()

	var raw json.RawMessage
	if err := c.do(ctx, http.MethodGet, "/admin/session/"+url.PathEscape(args[0]), nil, nil, &raw); err != nil {
		return err
	}

	if string(raw) == "{}" {
		fmt.Println("  (no session)")
		return nil
	}

	sess, err := session.Decode(raw)
	if err != nil {
		return fmt.Errorf("decoding session: %w", err)
	}

	cyan := color.New(color.FgCyan)
	fmt.Println()
	cyan.Printf("  Session for %s\n", args[0])
	cyan.Println("  -----------")
	fmt.Printf("  State:    %s\n", sess.Current().Name())
	fmt.Printf("  Updated:  %s\n", sess.UpdatedAt.Local().Format(time.RFC1123))
	fmt.Println()
	return nil
}

func cmdClear(c *client, args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("usage: clear <user>")
	}

	ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
	defer cancel()

	if err := c.do(ctx, http.MethodDelete, "/admin/session/"+url.PathEscape(args[0]), nil, nil, nil); err != nil {
		return err
	}

	color.New(color.FgGreen).Printf("✓ Cleared session: %s\n", args[0])
	return nil
}

func cmdInteractions(c *client, args []string) error {
	flags, rest, err := parseFlags(args, "user", "limit")
	if err != nil {
		return err
	}
	if len(rest) > 0 {
		return fmt.Errorf("usage: interactions [--user U] [--limit N]")
	}

	query := url.Values{}
	for k, v := range flags {
		query.Set(k, v)
	}

	ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
	defer cancel()

	var items []store.Interaction
	if err := c.do(ctx, http.MethodGet, "/admin/interactions", query, nil, &items); err != nil {
		return err
	}

	cyan := color.New(color.FgCyan)
	fmt.Println()
	cyan.Println("  Interactions")
	cyan.Println("  ------------")

	if len(items) == 0 {
		fmt.Println("  (no interactions)")
		fmt.Println()
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "  TIME\tUSER\tDIR\tMESSAGE")
	fmt.Fprintln(w, "  ----\t----\t---\t-------")
	for _, in := range items {
		fmt.Fprintf(w, "  %s\t%s\t%s\t%s\n",
			in.CreatedAt.Local().Format("Jan 02 15:04:05"),
			truncate(in.UserID, 20),
			directionArrow(in.Direction),
			truncate(in.Message, 50))
	}
	w.Flush()
	fmt.Println()
	return nil
}

func directionArrow(d store.Direction) string {
	if d == store.DirectionReceived {
		return "→"
	}
	return "←"
}

func cmdFeedback(c *client, args []string) error {
	flags, rest, err := parseFlags(args, "status", "limit")
	if err != nil {
		return err
	}
	if len(rest) > 0 {
		return fmt.Errorf("usage: feedback [--status new|reviewed] [--limit N]")
	}

	query := url.Values{}
	for k, v := range flags {
		query.Set(k, v)
	}

	ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
	defer cancel()

	var items []store.Feedback
	if err := c.do(ctx, http.MethodGet, "/admin/feedback", query, nil, &items); err != nil {
		return err
	}

	cyan := color.New(color.FgCyan)
	yellow := color.New(color.FgYellow)
	fmt.Println()
	cyan.Println("  Feedback")
	cyan.Println("  --------")

	if len(items) == 0 {
		fmt.Println("  (no feedback)")
		fmt.Println()
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "  CREATED\tUSER\tPRODUCT\tSTATUS\tFEEDBACK")
	fmt.Fprintln(w, "  -------\t----\t-------\t------\t--------")
	for _, fb := range items {
		status := string(fb.Status)
		if fb.Status == store.FeedbackStatusNew {
			status = yellow.Sprint(status)
		}
		fmt.Fprintf(w, "  %s\t%s\t%s\t%s\t%s\n",
			fb.CreatedAt.Local().Format("Jan 02 15:04"),
			truncate(fb.UserID, 20),
			fb.ProductID,
			status,
			truncate(fb.Text, 50))
	}
	w.Flush()
	fmt.Println()
	return nil
}

// cmdWatch follows the admin SSE feed until interrupted.
func cmdWatch(c *client, args []string) error {
	if err := c.requireCredentials(); err != nil {
		return err
	}
	if len(args) > 1 {
		return fmt.Errorf("usage: watch [user]")
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	query := url.Values{}
	if len(args) == 1 {
		query.Set("user", args[0])
	}

	req, err := c.newRequest(ctx, http.MethodGet, "/admin/feed", query, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "text/event-stream")

	// no client timeout: the stream is long-lived
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil
		}
		return fmt.Errorf("connecting to feed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return responseError(resp.StatusCode, data)
	}

	gray := color.New(color.FgHiBlack)
	green := color.New(color.FgGreen)
	cyan := color.New(color.FgCyan)

	err = readSSE(resp.Body, func(event, data string) {
		switch event {
		case "ready":
			gray.Println("  watching for interactions (ctrl-c to stop)")
		case "interaction":
			var in store.Interaction
			if json.Unmarshal([]byte(data), &in) != nil {
				return
			}
			gray.Printf("  %s ", in.CreatedAt.Local().Format("15:04:05"))
			if in.Direction == store.DirectionReceived {
				green.Printf("%s → ", in.UserID)
			} else {
				cyan.Printf("%s ← ", in.UserID)
			}
			fmt.Println(truncate(in.Message, 100))
		}
	})
	if ctx.Err() != nil {
		return nil
	}
	return err
}

// readSSE calls fn for every complete event in the stream.
func readSSE(r io.Reader, fn func(event, data string)) error {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1<<20)

	var event string
	var data []string
	for scanner.Scan() {
		line := scanner.Text()
		switch {
		case line == "":
			if event != "" || len(data) > 0 {
				fn(event, strings.Join(data, "\n"))
			}
			event, data = "", nil
		case strings.HasPrefix(line, ":"):
			// comment / keepalive
		case strings.HasPrefix(line, "event:"):
			event = strings.TrimSpace(strings.TrimPrefix(line, "event:"))
		case strings.HasPrefix(line, "data:"):
			data = append(data, strings.TrimPrefix(strings.TrimPrefix(line, "data:"), " "))
		}
	}
	return scanner.Err()
}

// cmdSay runs one message through the engine as the given user.
func cmdSay(c *client, args []string) error {
	if len(args) < 2 {
		return fmt.Errorf("usage: say <user> <message>")
	}

	r, err := c.dispatch(context.Background(), args[0], strings.Join(args[1:], " "))
	if err != nil {
		return err
	}
	printReply(r)
	return nil
}

// cmdChat is a REPL that talks to the concierge as one user. Numbered
// answers are mapped to the options of the previous reply.
func cmdChat(c *client, args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("usage: chat <user>")
	}
	user := args[0]

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	gray := color.New(color.FgHiBlack)
	green := color.New(color.FgGreen)
	gray.Printf("  chatting as %s (ctrl-d to quit)\n\n", user)

	reader := bufio.NewReader(os.Stdin)
	var options []string
	for {
		green.Print("> ")
		line, err := reader.ReadString('\n')
		if err != nil {
			fmt.Println()
			return nil
		}
		text := strings.TrimSpace(line)
		if text == "" {
			continue
		}
		if n, err := strconv.Atoi(text); err == nil && n >= 1 && n <= len(options) {
			text = options[n-1]
		}

		r, err := c.dispatch(ctx, user, text)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			color.Red("  %v\n", err)
			continue
		}
		options = reply.OptionIDs(r)
		printReply(r)
	}
}

func (c *client) dispatch(ctx context.Context, user, text string) (reply.Reply, error) {
	ctx, cancel := context.WithTimeout(ctx, requestTimeout)
	defer cancel()

	var resp dispatchResponse
	if err := c.do(ctx, http.MethodPost, "/api/dispatch", nil, dispatchRequest{UserID: user, Text: text}, &resp); err != nil {
		return nil, err
	}
	if resp.Reply == nil {
		return nil, fmt.Errorf("gateway returned no reply")
	}
	return resp.Reply.Reply, nil
}

func printReply(r reply.Reply) {
	fmt.Println()
	fmt.Println(reply.Markdown(r))
	if ids := reply.OptionIDs(r); len(ids) > 0 {
		color.New(color.FgHiBlack).Printf("\n  options: %s\n", strings.Join(ids, ", "))
	}
	fmt.Println()
}
