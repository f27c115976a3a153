// ABOUTME: Command table: state-independent keywords that pre-empt the state machine
// ABOUTME: Closed enum of commands indexed into a static handler array

package conversation

import (
	"context"
	"fmt"

	"github.com/2389/coven-concierge/internal/reply"
	"github.com/2389/coven-concierge/internal/session"
)

// Command is a top-level keyword recognized in every state.
type Command int

const (
	CommandStart Command = iota
	CommandProducts
	CommandFAQ
	CommandSupport

	numCommands
)

// commandKeywords maps normalized input to commands.
var commandKeywords = map[string]Command{
	"start":    CommandStart,
	"products": CommandProducts,
	"faq":      CommandFAQ,
	"support":  CommandSupport,
}

// String returns the command's keyword.
func (c Command) String() string {
	for kw, cmd := range commandKeywords {
		if cmd == c {
			return kw
		}
	}
	return fmt.Sprintf("Command(%d)", int(c))
}

// LookupCommand resolves normalized (trimmed, lower-cased) text.
func LookupCommand(normalized string) (Command, bool) {
	c, ok := commandKeywords[normalized]
	return c, ok
}

// step is the outcome of a command or state transition. A nil next leaves
// the stored session untouched.
type step struct {
	next  session.State
	reply reply.Reply
	// reset leaves history empty, so the reply is not recorded either
	reset bool
}

type commandHandler func(ctx context.Context, e *Engine, userID string) (step, error)

var commandHandlers = [numCommands]commandHandler{
	CommandStart:    handleStart,
	CommandProducts: handleProducts,
	CommandFAQ:      handleFAQ,
	CommandSupport:  handleSupport,
}

// handleStart wipes session and history so no stale context survives.
// The user is left without a session, which reads back as Idle.
func handleStart(ctx context.Context, e *Engine, userID string) (step, error) {
	if err := e.sessions.Clear(ctx, userID); err != nil {
		return step{}, err
	}
	return step{reply: reply.RootMenu(msgWelcome), reset: true}, nil
}

func handleProducts(ctx context.Context, e *Engine, userID string) (step, error) {
	return step{
		next:  session.AwaitingSearchInput{},
		reply: reply.Text{Content: msgSearchPrompt},
	}, nil
}

func handleFAQ(ctx context.Context, e *Engine, userID string) (step, error) {
	faqs, err := e.listFAQs(ctx)
	if err != nil {
		return step{}, err
	}
	return step{next: session.BrowsingFAQ{}, reply: reply.FAQList(faqs)}, nil
}

func handleSupport(ctx context.Context, e *Engine, userID string) (step, error) {
	return step{reply: reply.Text{Content: e.supportMessage}}, nil
}
