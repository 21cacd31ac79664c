package mcp

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"sync"

	"github.com/sirupsen/logrus"
	"github.com/sourcegraph/jsonrpc2"
)

var (
	ErrNotOpen      = errors.New("mcp client is not open")
	ErrNoCommand    = errors.New("mcp command is required")
	ErrTooManyPages = errors.New("mcp tools/list did not terminate")
)

const maxToolPages = 20

type StdioConfig struct {
	Command       string
	Args          []string
	Env           []string
	ClientName    string
	ClientVersion string
}

// StdioClient talks JSON-RPC to an MCP server started as a child process. It must be opened
// before use and closed when the service shuts down.
type StdioClient struct {
	cfg StdioConfig

	mu     sync.Mutex
	cmd    *exec.Cmd
	conn   *jsonrpc2.Conn
	cancel context.CancelFunc
	server ServerInfo
}

var _ ToolCaller = (*StdioClient)(nil)

func NewStdioClient(cfg StdioConfig) *StdioClient {
	if cfg.ClientName == "" {
		cfg.ClientName = "henry"
	}
	if cfg.ClientVersion == "" {
		cfg.ClientVersion = "0.1.0"
	}
	return &StdioClient{cfg: cfg}
}

// Open starts the server process and performs the initialize handshake.
func (c *StdioClient) Open(ctx context.Context) error {
	if c.cfg.Command == "" {
		return ErrNoCommand
	}

	cmd := exec.Command(c.cfg.Command, c.cfg.Args...)
	cmd.Env = append(os.Environ(), c.cfg.Env...)

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return fmt.Errorf("mcp stdin: %w", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("mcp stdout: %w", err)
	}
	cmd.Stderr = logrus.WithField("component", "mcp-server").WriterLevel(logrus.DebugLevel)

	if err := cmd.Start(); err != nil {
		return fmt.Errorf("start mcp server %q: %w", c.cfg.Command, err)
	}

	c.mu.Lock()
	c.cmd = cmd
	c.mu.Unlock()

	if err := c.attach(ctx, &pipe{reader: stdout, writer: stdin}); err != nil {
		_ = c.Close()
		return err
	}

	info := c.Server()
	logrus.WithFields(logrus.Fields{
		"command": c.cfg.Command,
		"server":  info.Name,
		"version": info.Version,
	}).Info("MCP server connected")
	return nil
}

// attach runs the protocol over an already established byte stream.
func (c *StdioClient) attach(ctx context.Context, rwc io.ReadWriteCloser) error {
	connCtx, cancel := context.WithCancel(context.Background())
	stream := jsonrpc2.NewBufferedStream(rwc, jsonrpc2.PlainObjectCodec{})
	conn := jsonrpc2.NewConn(connCtx, stream, jsonrpc2.HandlerWithError(c.handle))

	var result initializeResult
	err := conn.Call(ctx, "initialize", initializeParams{
		ProtocolVersion: protocolVersion,
		Capabilities:    map[string]any{},
		ClientInfo:      ServerInfo{Name: c.cfg.ClientName, Version: c.cfg.ClientVersion},
	}, &result)
	if err == nil {
		err = conn.Notify(ctx, "notifications/initialized", map[string]any{})
	}
	if err != nil {
		cancel()
		_ = conn.Close()
		return fmt.Errorf("mcp initialize: %w", err)
	}

	c.mu.Lock()
	c.conn = conn
	c.cancel = cancel
	c.server = result.ServerInfo
	c.mu.Unlock()
	return nil
}

// handle answers the few requests a server may send to its client.
func (c *StdioClient) handle(_ context.Context, _ *jsonrpc2.Conn, req *jsonrpc2.Request) (any, error) {
	if req.Notif {
		return nil, nil
	}
	if req.Method == "ping" {
		return map[string]any{}, nil
	}
	return nil, &jsonrpc2.Error{Code: jsonrpc2.CodeMethodNotFound, Message: "method not supported: " + req.Method}
}

func (c *StdioClient) Server() ServerInfo {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.server
}

func (c *StdioClient) ListTools(ctx context.Context) ([]Tool, error) {
	conn, err := c.connection()
	if err != nil {
		return nil, err
	}

	var tools []Tool
	var cursor string
	for range maxToolPages {
		var page listToolsResult
		if err := conn.Call(ctx, "tools/list", listToolsParams{Cursor: cursor}, &page); err != nil {
			return nil, fmt.Errorf("mcp tools/list: %w", err)
		}
		tools = append(tools, page.Tools...)
		if page.NextCursor == "" {
			return tools, nil
		}
		cursor = page.NextCursor
	}
	return nil, ErrTooManyPages
}

func (c *StdioClient) CallTool(ctx context.Context, name string, args map[string]any) (ToolResult, error) {
	conn, err := c.connection()
	if err != nil {
		return ToolResult{}, err
	}
	if args == nil {
		args = map[string]any{}
	}

	var result ToolResult
	if err := conn.Call(ctx, "tools/call", callToolParams{Name: name, Arguments: args}, &result); err != nil {
		logrus.WithError(err).WithField("tool", name).Error("MCP tool call failed")
		return ToolResult{}, fmt.Errorf("mcp tools/call %s: %w", name, err)
	}
	if result.IsError {
		logrus.WithFields(logrus.Fields{"tool": name, "message": result.Text()}).Warn("MCP tool reported an error")
	}
	return result, nil
}

// Close ends the connection and stops the server process. It is safe to call more than once.
func (c *StdioClient) Close() error {
	c.mu.Lock()
	conn, cancel, cmd := c.conn, c.cancel, c.cmd
	c.conn, c.cancel, c.cmd = nil, nil, nil
	c.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	var err error
	if conn != nil {
		err = conn.Close()
	}
	if cmd != nil && cmd.Process != nil {
		_ = cmd.Process.Kill()
		_ = cmd.Wait()
	}
	if errors.Is(err, jsonrpc2.ErrClosed) {
		err = nil
	}
	return err
}

func (c *StdioClient) connection() (*jsonrpc2.Conn, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn == nil {
		return nil, ErrNotOpen
	}
	return c.conn, nil
}

type pipe struct {
	reader io.ReadCloser
	writer io.WriteCloser
}

func (p *pipe) Read(b []byte) (int, error)  { return p.reader.Read(b) }
func (p *pipe) Write(b []byte) (int, error) { return p.writer.Write(b) }
func (p *pipe) Close() error {
	_ = p.reader.Close()
	return p.writer.Close()
}
