package notify

import (
	"bufio"
	"context"
	"errors"
	"io"
	"log/slog"
	"net"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/emersion/go-message/mail"

	"github.com/chalatsithapelo-ops/square15management-sub006/internal/config"
)

func TestComposeMessage(t *testing.T) {
	raw, err := ComposeMessage("Square 15 <office@square15.example.com>", Message{
		To:      []string{"Jane <jane@example.com>"},
		Cc:      []string{"sales@square15.example.com"},
		Subject: "Invoice INV-00042",
		Body:    "# Invoice INV-00042\n\n**Total: ZAR 1,495.00**",
		Attachments: []Attachment{
			{Filename: "INV-00042-qr.png", ContentType: "image/png", Data: []byte("\x89PNGfake")},
		},
	}, time.Date(2026, 2, 1, 8, 0, 0, 0, time.UTC))
	if err != nil {
		t.Fatalf("ComposeMessage() error: %v", err)
	}

	mr, err := mail.CreateReader(strings.NewReader(string(raw)))
	if err != nil {
		t.Fatalf("parse composed message: %v", err)
	}
	if subj, _ := mr.Header.Subject(); subj != "Invoice INV-00042" {
		t.Errorf("Subject = %q", subj)
	}

	var sawPlain, sawHTML, sawAttachment bool
	for {
		p, err := mr.NextPart()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			t.Fatalf("NextPart() error: %v", err)
		}
		body, _ := io.ReadAll(p.Body)
		switch h := p.Header.(type) {
		case *mail.InlineHeader:
			ct, _, _ := h.ContentType()
			switch ct {
			case "text/plain":
				sawPlain = true
				if strings.Contains(string(body), "**") || strings.Contains(string(body), "# ") {
					t.Errorf("plain part still has markdown: %q", body)
				}
			case "text/html":
				sawHTML = strings.Contains(string(body), "<strong>Total: ZAR 1,495.00</strong>")
			}
		case *mail.AttachmentHeader:
			name, _ := h.Filename()
			sawAttachment = name == "INV-00042-qr.png" && string(body) == "\x89PNGfake"
		}
	}
	if !sawPlain || !sawHTML || !sawAttachment {
		t.Errorf("plain=%v html=%v attachment=%v, want all true", sawPlain, sawHTML, sawAttachment)
	}
}

func TestComposeMessage_NoRecipients(t *testing.T) {
	if _, err := ComposeMessage("office@square15.example.com", Message{Subject: "x"}, time.Now()); err == nil {
		t.Fatal("ComposeMessage without recipients should error")
	}
}

// fakeSMTP accepts one session and records the envelope and data.
type fakeSMTP struct {
	ln    net.Listener
	mu    sync.Mutex
	from  string
	rcpts []string
	data  string
	done  chan struct{}
}

func startFakeSMTP(t *testing.T) *fakeSMTP {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	f := &fakeSMTP{ln: ln, done: make(chan struct{})}
	t.Cleanup(func() { ln.Close() })
	go f.serve()
	return f
}

func (f *fakeSMTP) serve() {
	defer close(f.done)
	conn, err := f.ln.Accept()
	if err != nil {
		return
	}
	defer conn.Close()
	r := bufio.NewReader(conn)
	reply := func(s string) { io.WriteString(conn, s+"\r\n") }

	reply("220 fake ESMTP")
	for {
		line, err := r.ReadString('\n')
		if err != nil {
			return
		}
		cmd := strings.TrimRight(line, "\r\n")
		upper := strings.ToUpper(cmd)
		switch {
		case strings.HasPrefix(upper, "EHLO"), strings.HasPrefix(upper, "HELO"):
			reply("250-fake")
			reply("250 8BITMIME")
		case strings.HasPrefix(upper, "MAIL FROM:"):
			f.mu.Lock()
			f.from = strings.Trim(cmd[len("MAIL FROM:"):], "<> ")
			if i := strings.Index(f.from, ">"); i >= 0 {
				f.from = f.from[:i]
			}
			f.mu.Unlock()
			reply("250 OK")
		case strings.HasPrefix(upper, "RCPT TO:"):
			f.mu.Lock()
			f.rcpts = append(f.rcpts, strings.Trim(cmd[len("RCPT TO:"):], "<> "))
			f.mu.Unlock()
			reply("250 OK")
		case upper == "DATA":
			reply("354 go ahead")
			var sb strings.Builder
			for {
				l, err := r.ReadString('\n')
				if err != nil {
					return
				}
				if l == ".\r\n" {
					break
				}
				sb.WriteString(l)
			}
			f.mu.Lock()
			f.data = sb.String()
			f.mu.Unlock()
			reply("250 queued")
		case upper == "QUIT":
			reply("221 bye")
			return
		default:
			reply("502 unsupported")
		}
	}
}

func TestSMTPMailer_Send(t *testing.T) {
	srv := startFakeSMTP(t)
	host, portStr, _ := net.SplitHostPort(srv.ln.Addr().String())
	port, _ := strconv.Atoi(portStr)

	m := NewSMTPMailer(config.SMTPConfig{Host: host, Port: port}, "Square 15 <office@square15.example.com>")
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	err := m.Send(ctx, Message{
		To:      []string{"Jane <jane@example.com>", "jane@example.com"},
		Cc:      []string{"sales@square15.example.com"},
		Subject: "Order ORD-00007 completed",
		Body:    "Your order is complete.",
	})
	if err != nil {
		t.Fatalf("Send() error: %v", err)
	}
	<-srv.done

	srv.mu.Lock()
	defer srv.mu.Unlock()
	if srv.from != "office@square15.example.com" {
		t.Errorf("MAIL FROM = %q", srv.from)
	}
	if len(srv.rcpts) != 2 {
		t.Errorf("RCPT TO = %v, want 2 unique recipients", srv.rcpts)
	}
	if !strings.Contains(srv.data, "Subject: Order ORD-00007 completed") {
		t.Errorf("DATA missing subject:\n%s", srv.data)
	}
}

func TestMQTTPublisher_NotStarted(t *testing.T) {
	p := NewMQTTPublisher(config.MQTTConfig{TopicPrefix: "square15"}, slog.New(slog.NewTextHandler(io.Discard, nil)))
	if err := p.Publish(context.Background(), Event{Type: "order.completed"}); !errors.Is(err, ErrNotConnected) {
		t.Errorf("Publish() error = %v, want ErrNotConnected", err)
	}
	if err := p.Stop(context.Background()); err != nil {
		t.Errorf("Stop() error: %v", err)
	}
}

func TestMQTTPublisher_EventTopic(t *testing.T) {
	p := NewMQTTPublisher(config.MQTTConfig{TopicPrefix: "square15"}, slog.Default())
	if got := p.EventTopic("invoice.overdue"); got != "square15/events/invoice/overdue" {
		t.Errorf("EventTopic() = %q", got)
	}
}

func TestDiscard(t *testing.T) {
	var m Mailer = Discard{}
	var p Publisher = Discard{}
	if err := m.Send(context.Background(), Message{}); err != nil {
		t.Error(err)
	}
	if err := p.Publish(context.Background(), Event{}); err != nil {
		t.Error(err)
	}
}
