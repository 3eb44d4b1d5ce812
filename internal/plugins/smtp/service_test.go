package smtp

import (
	"bufio"
	"context"
	"errors"
	"net"
	"net/mail"
	"strconv"
	"strings"
	"testing"
	"time"
)

// fakeServer is a minimal plaintext SMTP server that records one message.
type fakeServer struct {
	ln       net.Listener
	received chan string
}

func newFakeServer(t *testing.T) *fakeServer {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	s := &fakeServer{ln: ln, received: make(chan string, 1)}
	t.Cleanup(func() { ln.Close() })
	go s.serve()
	return s
}

func (s *fakeServer) port() int {
	return s.ln.Addr().(*net.TCPAddr).Port
}

func (s *fakeServer) serve() {
	conn, err := s.ln.Accept()
	if err != nil {
		return
	}
	defer conn.Close()

	r := bufio.NewReader(conn)
	write := func(line string) { _, _ = conn.Write([]byte(line + "\r\n")) }

	write("220 localhost ESMTP")
	for {
		line, err := r.ReadString('\n')
		if err != nil {
			return
		}
		cmd := strings.ToUpper(strings.TrimSpace(line))
		switch {
		case strings.HasPrefix(cmd, "EHLO"):
			write("250-localhost")
			write("250 8BITMIME")
		case strings.HasPrefix(cmd, "MAIL FROM"), strings.HasPrefix(cmd, "RCPT TO"):
			write("250 OK")
		case cmd == "DATA":
			write("354 End data with <CR><LF>.<CR><LF>")
			var data strings.Builder
			for {
				l, err := r.ReadString('\n')
				if err != nil {
					return
				}
				if l == ".\r\n" {
					break
				}
				data.WriteString(l)
			}
			s.received <- data.String()
			write("250 OK queued")
		case cmd == "QUIT":
			write("221 Bye")
			return
		default:
			write("502 Command not implemented")
		}
	}
}

func TestSendMail_PlainServer(t *testing.T) {
	srv := newFakeServer(t)
	svc := NewSMTPService(Settings{
		Host:        "127.0.0.1",
		Port:        srv.port(),
		FromAddress: "no-reply@campus.test",
		Encryption:  EncryptionNone,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := svc.SendMail(ctx, []string{"student@campus.test"}, "Your code", "Code: 123456\n"); err != nil {
		t.Fatalf("SendMail: %v", err)
	}

	select {
	case msg := <-srv.received:
		if !strings.Contains(msg, "Subject: Your code\r\n") {
			t.Errorf("missing subject header in %q", msg)
		}
		if !strings.Contains(msg, "Code: 123456") {
			t.Errorf("missing body in %q", msg)
		}
		if !strings.Contains(msg, `From: "Campus" <no-reply@campus.test>`) {
			t.Errorf("unexpected From header in %q", msg)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("server did not receive a message")
	}
}

func TestSendMail_NotConfigured(t *testing.T) {
	svc := NewSMTPService(Settings{})
	if svc.IsConfigured(context.Background()) {
		t.Fatal("expected unconfigured service")
	}
	err := svc.SendMail(context.Background(), []string{"a@b.com"}, "s", "b")
	if !errors.Is(err, ErrNotConfigured) {
		t.Fatalf("expected ErrNotConfigured, got %v", err)
	}
}

func TestSendMail_ConnectionRefused(t *testing.T) {
	// Grab a free port and close it so nothing is listening.
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	port := ln.Addr().(*net.TCPAddr).Port
	ln.Close()

	svc := NewSMTPService(Settings{
		Host:        "127.0.0.1",
		Port:        port,
		FromAddress: "no-reply@campus.test",
		Encryption:  EncryptionNone,
	})
	err = svc.SendMail(context.Background(), []string{"a@b.com"}, "s", "b")
	if err == nil || !strings.Contains(err.Error(), "127.0.0.1:"+strconv.Itoa(port)) {
		t.Fatalf("expected connection error naming the address, got %v", err)
	}
}

func TestBuildMessage_StripsHeaderInjection(t *testing.T) {
	from := mail.Address{Name: "Campus", Address: "no-reply@campus.test"}
	msg := buildMessage(from, []string{"a@b.com"}, "Hello\r\nBcc: evil@x.com", "line1\nline2",
		time.Date(2026, 5, 1, 8, 0, 0, 0, time.UTC))

	if strings.Contains(msg, "\r\nBcc:") {
		t.Fatalf("header injection not stripped: %q", msg)
	}
	if !strings.Contains(msg, "Subject: HelloBcc: evil@x.com\r\n") {
		t.Errorf("unexpected subject rendering: %q", msg)
	}
	if !strings.HasSuffix(msg, "\r\n\r\nline1\r\nline2") {
		t.Errorf("body not CRLF-normalized: %q", msg)
	}
}
