// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package transport

import (
	"bufio"
	"context"
	"crypto/tls"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"golang.org/x/term"
)

// PasswordEnv names the environment variable consulted before prompting.
const PasswordEnv = "RUMBLE_PASSWORD"

const (
	wsHandshakeTimeout = 10 * time.Second
	wsConnectTimeout   = 15 * time.Second
)

// ErrConnectionClosed is returned when reading from a closed WebSocket.
var ErrConnectionClosed = errors.New("websocket connection closed")

// WebSocketOptions configures a WebSocket bridge connection.
type WebSocketOptions struct {
	Username      string
	Password      string
	SkipSSLVerify bool
}

// WebSocket reaches adapters behind a WebSocket serial bridge.
type WebSocket struct {
	base
	opts WebSocketOptions
}

// NewWebSocket creates a WebSocket transport.
func NewWebSocket(opts WebSocketOptions, logger *slog.Logger) *WebSocket {
	if logger == nil {
		logger = slog.Default()
	}
	return &WebSocket{
		base: base{log: logger.With("transport", KindWebSocket.String())},
		opts: opts,
	}
}

// Scan reports nothing; bridges are configured by URL.
func (w *WebSocket) Scan(ctx context.Context, filter Filter) (<-chan Endpoint, error) {
	return scanResult(ctx, filter, nil), nil
}

// Connect dials the bridge at ep.Address with HTTP Basic auth.
func (w *WebSocket) Connect(ctx context.Context, ep Endpoint) (<-chan Event, error) {
	if ep.Kind != KindWebSocket {
		return nil, ErrWrongKind
	}
	if w.busy() {
		return nil, ErrAlreadyOpen
	}

	u, err := url.Parse(ep.Address)
	if err != nil {
		return nil, fmt.Errorf("invalid URL: %w", err)
	}
	switch u.Scheme {
	case "ws", "wss":
	default:
		return nil, fmt.Errorf("unsupported URL scheme: %s (use ws:// or wss://)", u.Scheme)
	}

	dialer := websocket.Dialer{HandshakeTimeout: wsHandshakeTimeout}
	if u.Scheme == "wss" {
		dialer.TLSClientConfig = &tls.Config{InsecureSkipVerify: w.opts.SkipSSLVerify}
	}

	headers := http.Header{}
	if w.opts.Username != "" && w.opts.Password != "" {
		credentials := base64.StdEncoding.EncodeToString([]byte(w.opts.Username + ":" + w.opts.Password))
		headers.Set("Authorization", "Basic "+credentials)
	}

	dialCtx, cancel := context.WithTimeout(ctx, wsConnectTimeout)
	defer cancel()

	conn, resp, err := dialer.DialContext(dialCtx, ep.Address, headers)
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("WebSocket connection failed (HTTP %d): %w", resp.StatusCode, err)
		}
		return nil, fmt.Errorf("WebSocket connection failed: %w", err)
	}

	w.log.Info("websocket connected", "url", ep.Address)
	return w.open(&wsConn{conn: conn})
}

// wsConn presents a message-oriented WebSocket as a byte stream. Bridges
// relay adapter output as either text or binary frames.
type wsConn struct {
	conn *websocket.Conn

	buf       []byte
	bufOffset int
	closed    bool

	writeMu sync.Mutex
}

func (c *wsConn) Read(p []byte) (int, error) {
	if c.closed {
		return 0, ErrConnectionClosed
	}
	if c.bufOffset < len(c.buf) {
		n := copy(p, c.buf[c.bufOffset:])
		c.bufOffset += n
		return n, nil
	}

	for {
		messageType, data, err := c.conn.ReadMessage()
		if err != nil {
			c.closed = true
			return 0, err
		}
		if messageType != websocket.BinaryMessage && messageType != websocket.TextMessage {
			continue
		}
		if len(data) == 0 {
			continue
		}
		c.buf = data
		n := copy(p, c.buf)
		c.bufOffset = n
		return n, nil
	}
}

func (c *wsConn) Write(p []byte) (int, error) {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if err := c.conn.WriteMessage(websocket.TextMessage, p); err != nil {
		return 0, err
	}
	return len(p), nil
}

func (c *wsConn) Close() error {
	_ = c.conn.WriteControl(
		websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(time.Second),
	)
	return c.conn.Close()
}

// GetPassword reads the bridge password from PasswordEnv, or prompts on
// the terminal without echo.
func GetPassword() (string, error) {
	if pw := os.Getenv(PasswordEnv); pw != "" {
		return pw, nil
	}
	return promptPassword(os.Stdin, os.Stderr)
}

func promptPassword(in io.Reader, prompt io.Writer) (string, error) {
	fmt.Fprint(prompt, "Password: ")
	defer fmt.Fprintln(prompt)

	if f, ok := in.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		pw, err := term.ReadPassword(int(f.Fd()))
		if err != nil {
			return "", fmt.Errorf("failed to read password: %w", err)
		}
		return string(pw), nil
	}

	line, err := bufio.NewReader(in).ReadString('\n')
	if err != nil && !(errors.Is(err, io.EOF) && line != "") {
		return "", fmt.Errorf("failed to read password: %w", err)
	}
	return strings.TrimSpace(line), nil
}
