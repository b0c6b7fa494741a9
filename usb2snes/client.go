// Package usb2snes implements the client side of the usb2snes/QUsb2Snes
// bridge protocol: a WebSocket carrying JSON command frames and raw binary
// payload frames. The client owns one long-lived connection, serializes
// requests (the bridge is a single logical channel), and never retries on
// its own; retry policy belongs to the caller.
package usb2snes

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"path"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	jsoniter "github.com/json-iterator/go"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Error taxonomy. Transient failures (ErrReadTimeout, ErrProtocol during
// sampling, ErrConnection) are absorbed by the sampler's retry budget;
// nothing in this package is structural.
var (
	ErrConnection  = errors.New("usb2snes: connection failed")
	ErrReadTimeout = errors.New("usb2snes: read timed out")
	ErrProtocol    = errors.New("usb2snes: protocol error")
)

const (
	defaultReadTimeout      = 5 * time.Second
	defaultHandshakeTimeout = 10 * time.Second

	// writeBlockSize is the chunk size for PutAddress payloads; the bridge
	// expects binary frames of at most this size.
	writeBlockSize = 1024
)

// request is one usb2snes command frame. The bridge requires the Flags key
// to be present even when unused, so it marshals as null rather than being
// omitted.
type request struct {
	Opcode   string   `json:"Opcode"`
	Space    string   `json:"Space"`
	Flags    []string `json:"Flags"`
	Operands []string `json:"Operands"`
}

// response is the JSON reply to text-mode commands.
type response struct {
	Results []string `json:"Results"`
}

// Options tunes connection establishment and per-call behavior.
type Options struct {
	// PreferredDevice selects among the bridge's attached devices. Empty
	// means the first SD2SNES-compatible device, matching the original
	// tooling around this bridge.
	PreferredDevice string
	// ReadTimeout bounds each blocking wait for a response frame.
	ReadTimeout time.Duration
	// HandshakeTimeout bounds the WebSocket dial.
	HandshakeTimeout time.Duration
}

func (o Options) withDefaults() Options {
	if o.ReadTimeout <= 0 {
		o.ReadTimeout = defaultReadTimeout
	}
	if o.HandshakeTimeout <= 0 {
		o.HandshakeTimeout = defaultHandshakeTimeout
	}
	return o
}

// Client is a connected, attached usb2snes session.
type Client struct {
	mu          sync.Mutex // serializes request/response pairs on the wire
	conn        *websocket.Conn
	device      string
	readTimeout time.Duration
	closed      bool
}

// Connect dials the bridge WebSocket, enumerates devices, attaches to the
// selected one and confirms the session with an Info exchange. Any failure
// along that path reports ErrConnection.
func Connect(ctx context.Context, address string, opts Options) (*Client, error) {
	opts = opts.withDefaults()

	dialer := websocket.Dialer{HandshakeTimeout: opts.HandshakeTimeout}
	// QUsb2Snes rejects browser-less clients unless they present a
	// localhost origin.
	header := http.Header{"Origin": []string{"http://localhost"}}
	conn, _, err := dialer.DialContext(ctx, address, header)
	if err != nil {
		return nil, fmt.Errorf("%w: dial %s: %v", ErrConnection, address, err)
	}

	c := &Client{conn: conn, readTimeout: opts.ReadTimeout}

	devices, err := c.requestResponse(ctx, "DeviceList")
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("%w: device list: %v", ErrConnection, err)
	}
	device, ok := selectDevice(devices, opts.PreferredDevice)
	if !ok {
		conn.Close()
		return nil, fmt.Errorf("%w: no matching device in %v", ErrConnection, devices)
	}

	// Attach produces no response frame; the following Info round-trip
	// doubles as the attach confirmation.
	if err := c.send(ctx, "Attach", device); err != nil {
		conn.Close()
		return nil, fmt.Errorf("%w: attach %s: %v", ErrConnection, device, err)
	}
	c.device = device
	if _, err := c.requestResponse(ctx, "Info"); err != nil {
		conn.Close()
		return nil, fmt.Errorf("%w: info exchange after attach: %v", ErrConnection, err)
	}
	return c, nil
}

// DeviceName returns the name of the attached device.
func (c *Client) DeviceName() string {
	if c == nil {
		return ""
	}
	return c.device
}

// PlayingFilename returns the path of the ROM the device reports as running.
func (c *Client) PlayingFilename(ctx context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	results, err := c.requestResponse(ctx, "Info")
	if err != nil {
		return "", err
	}
	if len(results) < 3 {
		return "", fmt.Errorf("%w: short Info response (%d results)", ErrProtocol, len(results))
	}
	return results[2], nil
}

// PlayingBasename returns the base name of the running ROM.
func (c *Client) PlayingBasename(ctx context.Context) (string, error) {
	filename, err := c.PlayingFilename(ctx)
	if err != nil {
		return "", err
	}
	return path.Base(filename), nil
}

// Reset asks the device to reset the console. The command produces no
// response frame.
func (c *Client) Reset(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.send(ctx, "Reset")
}

// ReadMemory fetches size bytes from a usb2snes flat offset via GetAddress.
// The payload may arrive split over several binary frames (the bridge sends
// Work-RAM in 128-byte blocks); frames are concatenated until the requested
// size is reached. Blocks at most ReadTimeout per frame.
func (c *Client) ReadMemory(ctx context.Context, offset uint32, size int) ([]byte, error) {
	if size <= 0 {
		return nil, fmt.Errorf("%w: invalid read size %d", ErrProtocol, size)
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.send(ctx, "GetAddress", hexOperand(offset), fmt.Sprintf("0x%x", size)); err != nil {
		return nil, err
	}

	out := make([]byte, 0, size)
	for len(out) < size {
		msgType, data, err := c.readFrame(ctx)
		if err != nil {
			return nil, err
		}
		if msgType != websocket.BinaryMessage {
			return nil, fmt.Errorf("%w: expected binary frame, got type %d", ErrProtocol, msgType)
		}
		out = append(out, data...)
	}
	if len(out) != size {
		return nil, fmt.Errorf("%w: size mismatch: got %d bytes, expected %d", ErrProtocol, len(out), size)
	}
	return out, nil
}

// WriteMemory sends data to a usb2snes flat offset via PutAddress, chunked
// into the bridge's block size. Writes into the Work-RAM window are refused;
// this tool observes the console and must never perturb its state.
func (c *Client) WriteMemory(ctx context.Context, offset uint32, data []byte) error {
	if offset >= WRAMBase && offset < VRAMBase {
		return fmt.Errorf("%w: refusing to write to Work-RAM offset 0x%x", ErrProtocol, offset)
	}
	if len(data) == 0 {
		return nil
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.send(ctx, "PutAddress", hexOperand(offset), fmt.Sprintf("0x%x", len(data))); err != nil {
		return err
	}
	for start := 0; start < len(data); start += writeBlockSize {
		end := start + writeBlockSize
		if end > len(data) {
			end = len(data)
		}
		if err := c.conn.WriteMessage(websocket.BinaryMessage, data[start:end]); err != nil {
			return fmt.Errorf("%w: write chunk: %v", ErrConnection, err)
		}
	}
	return nil
}

// Close tears down the WebSocket. Safe to call more than once.
func (c *Client) Close() error {
	if c == nil {
		return nil
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil
	}
	c.closed = true
	return c.conn.Close()
}

// send marshals and writes one command frame. Callers hold c.mu (or are the
// only user of the connection, as during Connect).
func (c *Client) send(ctx context.Context, opcode string, operands ...string) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrConnection, err)
	}
	if c.closed {
		return fmt.Errorf("%w: client is closed", ErrConnection)
	}
	if operands == nil {
		operands = []string{}
	}
	frame, err := json.Marshal(request{
		Opcode:   opcode,
		Space:    "SNES",
		Operands: operands,
	})
	if err != nil {
		return fmt.Errorf("%w: marshal %s: %v", ErrProtocol, opcode, err)
	}
	if err := c.conn.WriteMessage(websocket.TextMessage, frame); err != nil {
		return fmt.Errorf("%w: send %s: %v", ErrConnection, opcode, err)
	}
	return nil
}

// requestResponse performs one text command round-trip and returns the
// Results list.
func (c *Client) requestResponse(ctx context.Context, opcode string, operands ...string) ([]string, error) {
	if err := c.send(ctx, opcode, operands...); err != nil {
		return nil, err
	}
	msgType, data, err := c.readFrame(ctx)
	if err != nil {
		return nil, err
	}
	if msgType != websocket.TextMessage {
		return nil, fmt.Errorf("%w: expected text frame for %s, got type %d", ErrProtocol, opcode, msgType)
	}
	var resp response
	if err := json.Unmarshal(data, &resp); err != nil {
		return nil, fmt.Errorf("%w: unmarshal %s response: %v", ErrProtocol, opcode, err)
	}
	if resp.Results == nil {
		return nil, fmt.Errorf("%w: %s response has no Results", ErrProtocol, opcode)
	}
	return resp.Results, nil
}

// readFrame reads one frame under the per-call deadline. A deadline expiry
// maps to ErrReadTimeout; note that gorilla/websocket treats read errors as
// permanent, so a timed-out connection stays broken until the session is
// restarted.
func (c *Client) readFrame(ctx context.Context) (int, []byte, error) {
	deadline := time.Now().Add(c.readTimeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	if err := c.conn.SetReadDeadline(deadline); err != nil {
		return 0, nil, fmt.Errorf("%w: set deadline: %v", ErrConnection, err)
	}
	msgType, data, err := c.conn.ReadMessage()
	if err != nil {
		var netErr net.Error
		if errors.As(err, &netErr) && netErr.Timeout() {
			return 0, nil, fmt.Errorf("%w: no response within %s", ErrReadTimeout, c.readTimeout)
		}
		return 0, nil, fmt.Errorf("%w: read: %v", ErrConnection, err)
	}
	return msgType, data, nil
}

func hexOperand(v uint32) string {
	return fmt.Sprintf("0x%x", v)
}

// WebSocketURL normalizes a user-supplied bridge address into a ws:// URL.
// Bare host:port values get the scheme prepended.
func WebSocketURL(address string) string {
	address = strings.TrimSpace(address)
	if strings.HasPrefix(address, "ws://") || strings.HasPrefix(address, "wss://") {
		return address
	}
	return "ws://" + address
}
