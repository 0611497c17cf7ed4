package transport_test

import (
	"bufio"
	"context"
	"net"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/notifyhub/mailqueue/internal/transport"
)

// fakeRelay is a minimal plaintext SMTP server that records one transaction.
type fakeRelay struct {
	ln   net.Listener
	mu   sync.Mutex
	from string
	rcpt []string
	data string
}

func startRelay(t *testing.T) *fakeRelay {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	r := &fakeRelay{ln: ln}
	t.Cleanup(func() { _ = ln.Close() })
	go r.serve()
	return r
}

func (r *fakeRelay) port() int { return r.ln.Addr().(*net.TCPAddr).Port }

func (r *fakeRelay) serve() {
	conn, err := r.ln.Accept()
	if err != nil {
		return
	}
	defer conn.Close()
	rd := bufio.NewReader(conn)
	reply := func(s string) { _, _ = conn.Write([]byte(s + "\r\n")) }

	reply("220 fake ESMTP")
	for {
		line, err := rd.ReadString('\n')
		if err != nil {
			return
		}
		cmd := strings.TrimRight(line, "\r\n")
		upper := strings.ToUpper(cmd)
		switch {
		case strings.HasPrefix(upper, "EHLO"):
			reply("250 fake")
		case strings.HasPrefix(upper, "MAIL FROM:"):
			r.mu.Lock()
			r.from = strings.Trim(cmd[len("MAIL FROM:"):], "<> ")
			r.mu.Unlock()
			reply("250 ok")
		case strings.HasPrefix(upper, "RCPT TO:"):
			r.mu.Lock()
			r.rcpt = append(r.rcpt, strings.Trim(cmd[len("RCPT TO:"):], "<> "))
			r.mu.Unlock()
			reply("250 ok")
		case upper == "DATA":
			reply("354 go ahead")
			var sb strings.Builder
			for {
				l, err := rd.ReadString('\n')
				if err != nil {
					return
				}
				if l == ".\r\n" {
					break
				}
				sb.WriteString(l)
			}
			r.mu.Lock()
			r.data = sb.String()
			r.mu.Unlock()
			reply("250 queued")
		case upper == "QUIT":
			reply("221 bye")
			return
		default:
			reply("250 ok")
		}
	}
}

func TestSMTP_Send(t *testing.T) {
	relay := startRelay(t)
	tr := transport.NewSMTP(transport.SMTPConfig{
		Host:        "127.0.0.1",
		Port:        relay.port(),
		Helo:        "test.local",
		DefaultFrom: "Queue <queue@example.com>",
	}, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	err := tr.Send(ctx, transport.Message{
		To:      "a@example.com, b@example.com",
		Cc:      "c@example.com",
		Subject: "Weekly",
		Body:    "<p>hello</p>",
	})
	if err != nil {
		t.Fatalf("Send: %v", err)
	}

	relay.mu.Lock()
	defer relay.mu.Unlock()
	if relay.from != "queue@example.com" {
		t.Errorf("expected default sender, got %q", relay.from)
	}
	if strings.Join(relay.rcpt, ",") != "a@example.com,b@example.com,c@example.com" {
		t.Errorf("unexpected recipients %v", relay.rcpt)
	}
	if !strings.Contains(relay.data, "Subject: Weekly\r\n") || !strings.Contains(relay.data, "text/html") {
		t.Errorf("unexpected message data:\n%s", relay.data)
	}
}

func TestSMTP_RejectsBadAddresses(t *testing.T) {
	tr := transport.NewSMTP(transport.SMTPConfig{Host: "127.0.0.1", Port: 1}, nil)

	tests := []struct {
		name string
		msg  transport.Message
	}{
		{"no sender", transport.Message{To: "a@example.com"}},
		{"bad recipient", transport.Message{From: "x@example.com", To: "nope"}},
		{"no recipients", transport.Message{From: "x@example.com", To: " "}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if err := tr.Send(context.Background(), tc.msg); err == nil {
				t.Fatal("expected an error")
			}
		})
	}
}
