package notify

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"example.com/marathon/internal/domain"
	"example.com/marathon/internal/persistence/memory"
)

type stubChannel struct {
	name  string
	err   error
	calls int
}

func (s *stubChannel) Name() string { return s.name }

func (s *stubChannel) Send(context.Context, string) error {
	s.calls++
	return s.err
}

func TestDispatcherPrimarySucceeds(t *testing.T) {
	primary := &stubChannel{name: "whatsapp"}
	fallback := &stubChannel{name: "email"}
	store := memory.NewStore()

	result := NewDispatcher(primary, fallback, store, zerolog.Nop()).Deliver(context.Background(), "hello team")

	require.True(t, result.Delivered)
	require.Equal(t, "whatsapp", result.Channel)
	require.Equal(t, 1, primary.calls)
	require.Zero(t, fallback.calls)

	logs, err := store.RecentLogs(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, logs, 1)
	require.Equal(t, "hello team", logs[0].Details)
	require.Equal(t, domain.LogInfo, logs[0].Level)
}

func TestDispatcherFallsBack(t *testing.T) {
	primary := &stubChannel{name: "whatsapp", err: errors.New("status 500")}
	fallback := &stubChannel{name: "email"}

	result := NewDispatcher(primary, fallback, nil, zerolog.Nop()).Deliver(context.Background(), "hello")

	require.True(t, result.Delivered)
	require.Equal(t, "email", result.Channel)
	require.Len(t, result.Errors, 1)
	require.Equal(t, 1, fallback.calls)
}

func TestDispatcherBothFailStillAudits(t *testing.T) {
	primary := &stubChannel{name: "whatsapp", err: ErrNotConfigured}
	fallback := &stubChannel{name: "email", err: ErrNotConfigured}
	store := memory.NewStore()

	dispatcher := NewDispatcher(primary, fallback, store, zerolog.Nop())

	require.False(t, dispatcher.Dispatch(context.Background(), "summary text"))
	require.Equal(t, 1, primary.calls)
	require.Equal(t, 1, fallback.calls)
	logs, err := store.RecentLogs(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, logs, 1)
	require.Equal(t, domain.LogWarning, logs[0].Level)
	require.Equal(t, "summary text", logs[0].Details)
}

func TestWhatsAppSend(t *testing.T) {
	var got whatsAppMessage
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/12345/messages", r.URL.Path)
		assert.Equal(t, "Bearer secret", r.Header.Get("Authorization"))
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	channel := NewWhatsAppChannel(WhatsAppConfig{
		APIURL: server.URL, AccessToken: "secret", PhoneNumberID: "12345", Recipient: "+15550001",
	}, server.Client())

	require.NoError(t, channel.Send(context.Background(), "run day"))
	require.Equal(t, "whatsapp", got.MessagingProduct)
	require.Equal(t, "+15550001", got.To)
	require.Equal(t, "text", got.Type)
	require.Equal(t, "run day", got.Text.Body)
}

func TestWhatsAppNonOKStatusFails(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusCreated)
	}))
	defer server.Close()

	channel := NewWhatsAppChannel(WhatsAppConfig{
		APIURL: server.URL, AccessToken: "secret", PhoneNumberID: "1", Recipient: "2",
	}, server.Client())
	err := channel.Send(context.Background(), "x")
	require.Error(t, err)
	require.Contains(t, err.Error(), "201")
}

func TestUnconfiguredChannels(t *testing.T) {
	require.ErrorIs(t, NewWhatsAppChannel(WhatsAppConfig{}, nil).Send(context.Background(), "x"), ErrNotConfigured)
	require.ErrorIs(t, NewEmailChannel(EmailConfig{Host: "smtp.example.com"}).Send(context.Background(), "x"), ErrNotConfigured)
}

// fakeSMTP accepts a single plain SMTP session and returns the DATA payload.
func fakeSMTP(t *testing.T) (string, int, <-chan string) {
	t.Helper()
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() { _ = listener.Close() })

	received := make(chan string, 1)
	go func() {
		conn, err := listener.Accept()
		if err != nil {
			return
		}
		defer conn.Close()
		reader := bufio.NewReader(conn)
		write := func(line string) { _, _ = conn.Write([]byte(line + "\r\n")) }

		write("220 localhost ESMTP")
		var data strings.Builder
		inData := false
		for {
			line, err := reader.ReadString('\n')
			if err != nil {
				return
			}
			line = strings.TrimRight(line, "\r\n")
			if inData {
				if line == "." {
					inData = false
					received <- data.String()
					write("250 OK")
					continue
				}
				data.WriteString(line + "\n")
				continue
			}
			switch cmd := strings.ToUpper(strings.SplitN(line, " ", 2)[0]); cmd {
			case "EHLO":
				write("250-localhost")
				write("250 8BITMIME")
			case "DATA":
				inData = true
				write("354 go ahead")
			case "QUIT":
				write("221 bye")
				return
			default:
				write("250 OK")
			}
		}
	}()

	host, portText, err := net.SplitHostPort(listener.Addr().String())
	require.NoError(t, err)
	port, err := strconv.Atoi(portText)
	require.NoError(t, err)
	return host, port, received
}

func TestEmailSend(t *testing.T) {
	host, port, received := fakeSMTP(t)
	channel := NewEmailChannel(EmailConfig{
		Host: host, Port: port, From: "coach@example.com", Recipients: []string{"team@example.com"},
	})

	require.NoError(t, channel.Send(context.Background(), "line one\nline two"))

	payload := <-received
	require.Contains(t, payload, "Subject: Marathon Training Daily Summary")
	require.Contains(t, payload, "To: team@example.com")
	require.Contains(t, payload, "line one\nline two")
}
