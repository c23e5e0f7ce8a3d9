/*
 * GPIB488 - telnet client multiplexer
 *
 * Copyright 2024, Richard Cornwell
 *
 * Permission is hereby granted, free of charge, to any person obtaining a copy
 * of this software and associated documentation files (the "Software"), to deal
 * in the Software without restriction, including without limitation the rights
 * to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
 * copies of the Software, and to permit persons to whom the Software is
 * furnished to do so, subject to the following conditions:
 *
 * The above copyright notice and this permission notice shall be included in
 * all copies or substantial portions of the Software.
 *
 * THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
 * IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
 * FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
 * AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
 * LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
 * OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN THE
 * SOFTWARE.
 *
 */

package telnet

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"sync"

	"github.com/rcornwell/gpib488/command/parser"
)

// Default limit of clients connected at once.
const MaxClients = 4

var ErrBusy = errors.New("all connections in use")

// Mux tracks connected clients. Each client runs commands with its own
// output but the same bus session. Messages the bus receives in device
// mode are written to every client.
type Mux struct {
	mu       sync.Mutex
	env      parser.Env           // Template for client environments.
	clients  map[*client]struct{} // Connected clients.
	max      int                  // Limit of clients.
	fallback io.Writer            // Output when no client is connected.
}

// A connected client.
type client struct {
	mu   sync.Mutex
	conn net.Conn
	env  parser.Env
}

// Create a multiplexer running commands against env, env.Out is ignored.
func NewMux(env parser.Env, limit int) *Mux {
	if limit <= 0 {
		limit = MaxClients
	}
	return &Mux{
		env:      env,
		clients:  map[*client]struct{}{},
		max:      limit,
		fallback: io.Discard,
	}
}

// Write device mode output here when no client is connected.
func (mux *Mux) SetFallback(w io.Writer) {
	if w == nil {
		w = io.Discard
	}
	mux.mu.Lock()
	mux.fallback = w
	mux.mu.Unlock()
}

// Number of connected clients.
func (mux *Mux) Clients() int {
	mux.mu.Lock()
	defer mux.mu.Unlock()
	return len(mux.clients)
}

// Write sends p to every client, or to the fallback when there are none.
func (mux *Mux) Write(p []byte) (int, error) {
	mux.mu.Lock()
	targets := make([]*client, 0, len(mux.clients))
	for cl := range mux.clients {
		targets = append(targets, cl)
	}
	fallback := mux.fallback
	mux.mu.Unlock()

	if len(targets) == 0 {
		return fallback.Write(p)
	}
	for _, cl := range targets {
		if _, err := cl.Write(p); err != nil {
			slog.Debug("Client write failed", "remote", cl.conn.RemoteAddr().String(), "error", err.Error())
		}
	}
	return len(p), nil
}

// Register a new connection.
func (mux *Mux) attach(conn net.Conn) (*client, error) {
	mux.mu.Lock()
	defer mux.mu.Unlock()
	if len(mux.clients) >= mux.max {
		return nil, fmt.Errorf("%w: limit %d", ErrBusy, mux.max)
	}
	cl := &client{conn: conn, env: mux.env}
	cl.env.Out = cl
	mux.clients[cl] = struct{}{}
	slog.Info("Client connected", "remote", conn.RemoteAddr().String(), "clients", len(mux.clients))
	return cl, nil
}

// Remove a closed connection.
func (mux *Mux) detach(cl *client) {
	mux.mu.Lock()
	delete(mux.clients, cl)
	mux.mu.Unlock()
}

// Write data to the client, quoting IAC.
func (cl *client) Write(p []byte) (int, error) {
	cl.mu.Lock()
	defer cl.mu.Unlock()
	return iacWriter{w: cl.conn}.Write(p)
}

// Run one line, returning true on quit.
func (cl *client) execute(line string) bool {
	quit, err := parser.ProcessLine(line, &cl.env)
	if err != nil {
		_, _ = fmt.Fprintf(cl, "Error: %s\r\n", err.Error())
	}
	return quit
}

// Option replies go out unquoted.
type rawWriter struct {
	cl *client
}

func (rw rawWriter) Write(p []byte) (int, error) {
	rw.cl.mu.Lock()
	defer rw.cl.mu.Unlock()
	return rw.cl.conn.Write(p)
}
