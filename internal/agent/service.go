package agent

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"unicode/utf8"

	"github.com/dustin/go-humanize"

	"github.com/chalatsithapelo-ops/square15management-sub006/internal/auth"
	"github.com/chalatsithapelo-ops/square15management-sub006/internal/llm"
	"github.com/chalatsithapelo-ops/square15management-sub006/internal/prompts"
	"github.com/chalatsithapelo-ops/square15management-sub006/internal/tools"
)

// maxInlineAttachment caps how much of a text attachment is inlined.
const maxInlineAttachment = 4 << 10

// ErrEmptyConversation is returned when no user or assistant turn remains
// after normalization.
var ErrEmptyConversation = errors.New("conversation has no user message")

// Attachment is a file sent along with a chat request.
type Attachment struct {
	Name      string `json:"name"`
	MediaType string `json:"media_type"`
	Data      []byte `json:"data"`
}

// RegistryFactory builds the operation registry for one principal.
type RegistryFactory func(p auth.Principal) (*tools.Registry, error)

// Service is the inbound boundary: it resolves the credential, builds a
// registry bound to that principal and runs the loop.
type Service struct {
	logger     *slog.Logger
	loop       *Loop
	resolver   auth.Resolver
	registries RegistryFactory
}

// NewService wires a Service.
func NewService(logger *slog.Logger, loop *Loop, resolver auth.Resolver, registries RegistryFactory) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{logger: logger, loop: loop, resolver: resolver, registries: registries}
}

// Resolve turns a credential into a principal.
func (s *Service) Resolve(ctx context.Context, credential string) (auth.Principal, error) {
	if s.resolver == nil {
		return auth.Principal{}, fmt.Errorf("%w: no resolver configured", auth.ErrUnauthenticated)
	}
	p, err := s.resolver.Resolve(ctx, credential)
	if err != nil {
		return auth.Principal{}, err
	}
	if p.IsZero() {
		return auth.Principal{}, auth.ErrUnauthenticated
	}
	return p, nil
}

// Registry builds a fresh registry for p.
func (s *Service) Registry(p auth.Principal) (*tools.Registry, error) {
	return s.registries(p)
}

// RunAgent resolves credential and answers the conversation. It returns
// the model's final text, or the exhaustion message when the round limit
// was reached.
func (s *Service) RunAgent(ctx context.Context, credential string, conversation []Message, attachments []Attachment) (string, error) {
	p, err := s.Resolve(ctx, credential)
	if err != nil {
		return "", err
	}
	res, err := s.Chat(ctx, p, conversation, attachments, "")
	if err != nil {
		return "", err
	}
	return res.Content, nil
}

// Chat runs the loop for an already resolved principal. model may be
// empty for the configured default.
func (s *Service) Chat(ctx context.Context, p auth.Principal, conversation []Message, attachments []Attachment, model string) (*Result, error) {
	if p.IsZero() {
		return nil, auth.ErrUnauthenticated
	}
	reg, err := s.registries(p)
	if err != nil {
		return nil, fmt.Errorf("build registry: %w", err)
	}

	conv := normalizeConversation(conversation)
	if len(attachments) > 0 {
		conv = attachNotes(conv, attachments)
	}
	if len(conv) == 0 {
		return nil, ErrEmptyConversation
	}

	return s.loop.Run(ctx, Request{
		Registry:     reg,
		Conversation: conv,
		ActorID:      p.ID,
		Model:        model,
	})
}

// normalizeConversation keeps user and assistant turns. Client supplied
// system messages are dropped; the loop writes its own.
func normalizeConversation(conv []Message) []Message {
	out := make([]Message, 0, len(conv))
	for _, m := range conv {
		role := strings.ToLower(strings.TrimSpace(m.Role))
		if role != llm.RoleUser && role != llm.RoleAssistant {
			continue
		}
		out = append(out, Message{Role: role, Content: m.Content})
	}
	return out
}

// attachNotes describes attachments on the latest user message.
func attachNotes(conv []Message, attachments []Attachment) []Message {
	var notes []string
	for _, a := range attachments {
		name := a.Name
		if name == "" {
			name = "attachment"
		}
		mediaType := a.MediaType
		if mediaType == "" {
			mediaType = "application/octet-stream"
		}
		notes = append(notes, prompts.AttachmentNote(name, mediaType, humanize.Bytes(uint64(len(a.Data)))))
		if isText(mediaType) && utf8.Valid(a.Data) {
			text, truncated := a.Data, false
			if len(text) > maxInlineAttachment {
				text, truncated = trimUTF8(text[:maxInlineAttachment]), true
			}
			notes = append(notes, prompts.AttachmentText(name, string(text), truncated))
		}
	}
	note := strings.Join(notes, "\n")

	for i := len(conv) - 1; i >= 0; i-- {
		if conv[i].Role == llm.RoleUser {
			conv[i].Content = strings.TrimRight(conv[i].Content, "\n") + "\n\n" + note
			return conv
		}
	}
	return append(conv, Message{Role: llm.RoleUser, Content: note})
}

func isText(mediaType string) bool {
	mt, _, _ := strings.Cut(strings.ToLower(mediaType), ";")
	mt = strings.TrimSpace(mt)
	switch {
	case strings.HasPrefix(mt, "text/"):
		return true
	case mt == "application/json", mt == "application/xml", mt == "application/csv":
		return true
	}
	return false
}

// trimUTF8 drops a rune cut in half at the end of b.
func trimUTF8(b []byte) []byte {
	for len(b) > 0 && !utf8.Valid(b) {
		b = b[:len(b)-1]
	}
	return b
}
