package chat

import (
	"context"
	"fmt"
	"strings"
	"time"
	"unicode"

	"github.com/ziadkadry99/cineforum/internal/llm"
	"github.com/ziadkadry99/cineforum/internal/users"
)

// contextMessages is how many recent messages the moderator reads.
const contextMessages = 20

const moderatorPrompt = `Sei il moderatore del cineforum, una chat tra appassionati di cinema.
Rispondi in italiano, in modo cordiale e conciso (massimo 4 frasi).
Mantieni la conversazione sul cinema, modera toni offensivi e non rivelare spoiler
senza avvisare. I messaggi degli utenti sono nel formato "Nome: testo".`

// Mentioned reports whether text addresses the moderator with a leading
// @moderator or @mod.
func Mentioned(text string) bool {
	t := strings.ToLower(strings.TrimSpace(text))
	for _, tag := range []string{"@moderator", "@mod"} {
		if rest, ok := strings.CutPrefix(t, tag); ok {
			if rest == "" {
				return true
			}
			r := []rune(rest)[0]
			return !unicode.IsLetter(r) && !unicode.IsDigit(r)
		}
	}
	return false
}

// Moderator answers mentions using the room's recent history.
type Moderator struct {
	provider llm.Provider
	model    string
	timeout  time.Duration
}

// NewModerator creates a moderator backed by provider.
func NewModerator(provider llm.Provider, model string) *Moderator {
	return &Moderator{provider: provider, model: model, timeout: 60 * time.Second}
}

// Reply produces the moderator's answer to the latest messages.
func (m *Moderator) Reply(ctx context.Context, history []Message) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, m.timeout)
	defer cancel()

	if len(history) > contextMessages {
		history = history[len(history)-contextMessages:]
	}

	msgs := []llm.Message{{Role: llm.RoleSystem, Content: moderatorPrompt}}
	for _, h := range history {
		if h.UserID == users.ModeratorID {
			msgs = append(msgs, llm.Message{Role: llm.RoleAssistant, Content: h.Content})
			continue
		}
		msgs = append(msgs, llm.Message{Role: llm.RoleUser, Content: fmt.Sprintf("%s: %s", h.Author, h.Content)})
	}

	resp, err := m.provider.Complete(ctx, llm.CompletionRequest{
		Model:       m.model,
		Messages:    msgs,
		MaxTokens:   400,
		Temperature: 0.7,
	})
	if err != nil {
		return "", fmt.Errorf("moderator completion: %w", err)
	}

	reply := strings.TrimSpace(resp.Content)
	if reply == "" {
		return "", fmt.Errorf("moderator returned an empty reply")
	}
	if r := []rune(reply); len(r) > MaxLength {
		reply = string(r[:MaxLength])
	}
	return reply, nil
}
