package tools

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"
	"sync"

	"github.com/sourcegraph/jsonrpc2"
	"go.lsp.dev/protocol"
)

// ServerConfig describes one language server process.
type ServerConfig struct {
	Command  string // command line, e.g. "gopls serve"
	Root     string
	Language string // LSP language identifier
}

// ProcessSymbolClient runs a language server as a child process and asks it
// for document outlines over stdio JSON-RPC.
type ProcessSymbolClient struct {
	cfg    ServerConfig
	cmd    *exec.Cmd
	conn   *jsonrpc2.Conn
	cancel context.CancelFunc

	mu     sync.Mutex
	opened map[protocol.DocumentURI]bool
}

// StartSymbolClient launches the server and performs the LSP handshake.
func StartSymbolClient(cfg ServerConfig) (*ProcessSymbolClient, error) {
	fields := strings.Fields(cfg.Command)
	if len(fields) == 0 {
		return nil, errors.New("language server command is empty")
	}
	root, err := filepath.Abs(cfg.Root)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithCancel(context.Background())
	cmd := exec.CommandContext(ctx, fields[0], fields[1:]...)
	cmd.Dir = root

	stdin, err := cmd.StdinPipe()
	if err != nil {
		cancel()
		return nil, err
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		cancel()
		return nil, err
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		cancel()
		return nil, err
	}

	client := &ProcessSymbolClient{
		cfg:    cfg,
		cmd:    cmd,
		cancel: cancel,
		opened: make(map[protocol.DocumentURI]bool),
	}

	rwc := &stdioPipe{reader: stdout, writer: stdin}
	stream := jsonrpc2.NewBufferedStream(rwc, jsonrpc2.VSCodeObjectCodec{})
	// Server-initiated notifications (diagnostics and friends) are not
	// consumed here; the outline flow is strictly request/response.
	handler := jsonrpc2.HandlerWithError(func(ctx context.Context, conn *jsonrpc2.Conn, req *jsonrpc2.Request) (interface{}, error) {
		if !req.Notif {
			return nil, &jsonrpc2.Error{Code: jsonrpc2.CodeMethodNotFound, Message: "method not handled"}
		}
		return nil, nil
	})
	client.conn = jsonrpc2.NewConn(ctx, stream, handler)

	go io.Copy(io.Discard, stderr)

	if err := cmd.Start(); err != nil {
		cancel()
		return nil, fmt.Errorf("start %s: %w", fields[0], err)
	}
	if err := client.initialize(ctx, root); err != nil {
		client.Close()
		return nil, fmt.Errorf("initialize %s: %w", fields[0], err)
	}
	return client, nil
}

func (c *ProcessSymbolClient) initialize(ctx context.Context, root string) error {
	params := &protocol.InitializeParams{
		ProcessID: int32(os.Getpid()),
		RootURI:   protocol.DocumentURI(pathToURI(root)),
		ClientInfo: &protocol.ClientInfo{
			Name:    "aicode",
			Version: "0.1",
		},
		Capabilities: protocol.ClientCapabilities{
			TextDocument: &protocol.TextDocumentClientCapabilities{
				DocumentSymbol: &protocol.DocumentSymbolClientCapabilities{},
			},
		},
	}
	var result protocol.InitializeResult
	if err := c.conn.Call(ctx, "initialize", params, &result); err != nil {
		return err
	}
	return c.conn.Notify(ctx, "initialized", &protocol.InitializedParams{})
}

// Close terminates the connection and the server process.
func (c *ProcessSymbolClient) Close() error {
	if c == nil {
		return nil
	}
	if c.cancel != nil {
		c.cancel()
	}
	if c.conn != nil {
		_ = c.conn.Close()
	}
	if c.cmd != nil && c.cmd.Process != nil {
		_ = c.cmd.Process.Kill()
		_, _ = c.cmd.Process.Wait()
	}
	return nil
}

func (c *ProcessSymbolClient) ensureOpen(ctx context.Context, file string) error {
	uri := protocol.DocumentURI(pathToURI(file))
	c.mu.Lock()
	if c.opened[uri] {
		c.mu.Unlock()
		return nil
	}
	c.opened[uri] = true
	c.mu.Unlock()

	data, err := os.ReadFile(file)
	if err != nil {
		return err
	}
	return c.conn.Notify(ctx, "textDocument/didOpen", protocol.DidOpenTextDocumentParams{
		TextDocument: protocol.TextDocumentItem{
			URI:        uri,
			LanguageID: protocol.LanguageIdentifier(c.cfg.Language),
			Version:    1,
			Text:       string(data),
		},
	})
}

// DocumentSymbols implements SymbolProvider. Servers answer with either the
// hierarchical DocumentSymbol shape or flat SymbolInformation; both are
// flattened to one-based lines.
func (c *ProcessSymbolClient) DocumentSymbols(ctx context.Context, file string) ([]Symbol, error) {
	if err := c.ensureOpen(ctx, file); err != nil {
		return nil, err
	}
	params := protocol.DocumentSymbolParams{
		TextDocument: protocol.TextDocumentIdentifier{URI: protocol.DocumentURI(pathToURI(file))},
	}
	var raw json.RawMessage
	if err := c.conn.Call(ctx, "textDocument/documentSymbol", params, &raw); err != nil {
		return nil, err
	}
	var tree []protocol.DocumentSymbol
	if err := json.Unmarshal(raw, &tree); err == nil && len(tree) > 0 {
		var out []Symbol
		flattenSymbolTree(&out, tree)
		return out, nil
	}
	var flat []protocol.SymbolInformation
	if err := json.Unmarshal(raw, &flat); err == nil {
		out := make([]Symbol, 0, len(flat))
		for _, sym := range flat {
			out = append(out, Symbol{
				Name: sym.Name,
				Kind: symbolKindName(sym.Kind),
				Line: int(sym.Location.Range.Start.Line) + 1,
			})
		}
		return out, nil
	}
	return nil, errors.New("document symbol response not understood")
}

func flattenSymbolTree(dst *[]Symbol, symbols []protocol.DocumentSymbol) {
	for _, sym := range symbols {
		*dst = append(*dst, Symbol{
			Name: sym.Name,
			Kind: symbolKindName(sym.Kind),
			Line: int(sym.Range.Start.Line) + 1,
		})
		if len(sym.Children) > 0 {
			flattenSymbolTree(dst, sym.Children)
		}
	}
}

// symbolKindNames maps the LSP wire values for SymbolKind onto readable
// labels for the outline.
var symbolKindNames = map[protocol.SymbolKind]string{
	1:  "file",
	2:  "module",
	3:  "namespace",
	4:  "package",
	5:  "class",
	6:  "method",
	7:  "property",
	8:  "field",
	9:  "constructor",
	10: "enum",
	11: "interface",
	12: "function",
	13: "variable",
	14: "constant",
	23: "struct",
}

func symbolKindName(kind protocol.SymbolKind) string {
	if name, ok := symbolKindNames[kind]; ok {
		return name
	}
	return "symbol"
}

// RoutingSymbolProvider picks a language server per file extension and
// starts each one lazily on first use. A server that fails to start is not
// retried; analysis falls back to plain metrics.
type RoutingSymbolProvider struct {
	Root    string
	Servers map[string]string // language → command line

	mu      sync.Mutex
	clients map[string]*ProcessSymbolClient
	failed  map[string]error
}

// NewRoutingSymbolProvider wires the configured language → server table.
func NewRoutingSymbolProvider(root string, servers map[string]string) *RoutingSymbolProvider {
	return &RoutingSymbolProvider{
		Root:    root,
		Servers: servers,
		clients: make(map[string]*ProcessSymbolClient),
		failed:  make(map[string]error),
	}
}

// DocumentSymbols implements SymbolProvider.
func (r *RoutingSymbolProvider) DocumentSymbols(ctx context.Context, file string) ([]Symbol, error) {
	lang := languageFromExtension(file)
	if lang == "" {
		return nil, fmt.Errorf("no language known for %s", filepath.Ext(file))
	}
	client, err := r.clientFor(lang)
	if err != nil {
		return nil, err
	}
	return client.DocumentSymbols(ctx, file)
}

func (r *RoutingSymbolProvider) clientFor(lang string) (*ProcessSymbolClient, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if client, ok := r.clients[lang]; ok {
		return client, nil
	}
	if err, ok := r.failed[lang]; ok {
		return nil, err
	}
	command, ok := r.Servers[lang]
	if !ok || command == "" {
		err := fmt.Errorf("no language server configured for %s", lang)
		r.failed[lang] = err
		return nil, err
	}
	client, err := StartSymbolClient(ServerConfig{
		Command:  command,
		Root:     r.Root,
		Language: lang,
	})
	if err != nil {
		r.failed[lang] = err
		return nil, err
	}
	r.clients[lang] = client
	return client, nil
}

// Close shuts down every started server.
func (r *RoutingSymbolProvider) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for lang, client := range r.clients {
		_ = client.Close()
		delete(r.clients, lang)
	}
	return nil
}

type stdioPipe struct {
	reader io.ReadCloser
	writer io.WriteCloser
}

func (s *stdioPipe) Read(p []byte) (int, error)  { return s.reader.Read(p) }
func (s *stdioPipe) Write(p []byte) (int, error) { return s.writer.Write(p) }
func (s *stdioPipe) Close() error {
	_ = s.reader.Close()
	return s.writer.Close()
}

func pathToURI(path string) string {
	path = filepath.Clean(path)
	if runtime.GOOS == "windows" {
		path = strings.ReplaceAll(path, "\\", "/")
		return "file:///" + strings.ReplaceAll(path, ":", "%3A")
	}
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	return "file://" + path
}
