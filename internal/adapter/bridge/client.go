// Package bridge decodes RB5 raw captures and persists ODIM_H5 products by
// running an external bridge executable.
//
// The bridge speaks two commands:
//
//	<binary> decode <name>   raw bytes on stdin, msgpack object on stdout
//	<binary> save <path>     msgpack object on stdin, writes an ODIM_H5 file
//
// Format sniffing happens in-process.
package bridge

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"strings"
	"time"

	"github.com/couchcryptid/radar-merge-service/internal/domain"
)

var commandContext = exec.CommandContext

const (
	defaultBinary  = "rb5bridge"
	defaultTimeout = 60 * time.Second
	sniffLen       = 512
)

var (
	rawMagic = []byte("<volume")
	utf8BOM  = []byte{0xEF, 0xBB, 0xBF}
)

// Option configures the Client.
type Option func(*Client)

// WithBinary overrides the bridge executable.
func WithBinary(binary string) Option {
	return func(c *Client) {
		if binary != "" {
			c.binary = binary
		}
	}
}

// WithTimeout bounds every bridge invocation.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.timeout = d
		}
	}
}

// WithLogger sets the logger used for bridge diagnostics.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// Client runs the bridge executable. It implements pipeline.Decoder and
// pipeline.Saver.
type Client struct {
	binary  string
	timeout time.Duration
	logger  *slog.Logger
}

// NewClient constructs a Client using defaults.
func NewClient(opts ...Option) *Client {
	c := &Client{binary: defaultBinary, timeout: defaultTimeout, logger: slog.Default()}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// IsValidFormat reports whether the file at path looks like an RB5 raw capture.
func (c *Client) IsValidFormat(path string) bool {
	f, err := os.Open(path)
	if err != nil {
		return false
	}
	defer f.Close()

	head := make([]byte, sniffLen)
	n, err := io.ReadFull(f, head)
	if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) {
		return false
	}
	return c.IsValidFormatBuffer(head[:n])
}

// IsValidFormatBuffer reports whether buf starts, after an optional BOM and
// whitespace, with the RB5 XML header.
func (c *Client) IsValidFormatBuffer(buf []byte) bool {
	buf = bytes.TrimPrefix(buf, utf8BOM)
	buf = bytes.TrimLeft(buf, " \t\r\n")
	return bytes.HasPrefix(buf, rawMagic)
}

// Decode decodes the raw capture at path.
func (c *Client) Decode(ctx context.Context, path string) (domain.Object, error) {
	f, err := os.Open(path)
	if err != nil {
		return domain.Object{}, err
	}
	defer f.Close()

	out, err := c.run(ctx, f, "decode", path)
	if err != nil {
		return domain.Object{}, err
	}
	return DecodeObject(out)
}

// DecodeBuffer decodes an in-memory raw capture. name is passed to the
// bridge for diagnostics only.
func (c *Client) DecodeBuffer(ctx context.Context, name string, buf []byte) (domain.Object, error) {
	out, err := c.run(ctx, bytes.NewReader(buf), "decode", name)
	if err != nil {
		return domain.Object{}, err
	}
	return DecodeObject(out)
}

// Save writes obj to path as ODIM_H5.
func (c *Client) Save(ctx context.Context, obj domain.Object, path string) error {
	if path == "" {
		return errors.New("output path required")
	}
	data, err := EncodeObject(obj)
	if err != nil {
		return err
	}
	_, err = c.run(ctx, bytes.NewReader(data), "save", path)
	return err
}

func (c *Client) run(ctx context.Context, stdin io.Reader, command, arg string) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	var stdout, stderr bytes.Buffer
	cmd := commandContext(ctx, c.binary, command, arg) //nolint:gosec
	cmd.Stdin = stdin
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	start := time.Now()
	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return nil, fmt.Errorf("%s %s %s: %w", c.binary, command, arg, ctx.Err())
		}
		msg := strings.TrimSpace(stderr.String())
		if msg == "" {
			return nil, fmt.Errorf("%s %s %s: %w", c.binary, command, arg, err)
		}
		return nil, fmt.Errorf("%s %s %s: %w: %s", c.binary, command, arg, err, msg)
	}

	c.logger.Debug("bridge call finished",
		"command", command, "arg", arg, "bytes_out", stdout.Len(), "duration", time.Since(start))
	return stdout.Bytes(), nil
}
