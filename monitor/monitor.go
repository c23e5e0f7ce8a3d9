/*
 * GPIB488 - Bus trace monitor
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

package monitor

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/rcornwell/gpib488/bus/lines"
	"github.com/rcornwell/gpib488/bus/simbus"
)

// Frame is one change of bus state as sent to clients.
type Frame struct {
	Time     time.Time `json:"time"`
	Port     string    `json:"port"`
	Lines    uint8     `json:"lines"`
	Data     uint8     `json:"data"`
	Asserted []string  `json:"asserted"`
}

// Frames waiting to be sent, changes beyond this are dropped.
const backlog = 256

// Monitor sends every bus change to connected websocket clients.
type Monitor struct {
	upgrader  websocket.Upgrader
	clients   map[*websocket.Conn]bool
	register  chan *websocket.Conn
	remove    chan *websocket.Conn
	broadcast chan []byte
	done      chan struct{}
	count     atomic.Int32 // Connected clients.
	dropped   atomic.Int64 // Frames lost to a full backlog.
	mu        sync.Mutex
	latest    []byte // Last frame, sent to new clients.
	server    *http.Server
	listener  net.Listener
	wg        sync.WaitGroup
}

// Create a monitor and start its delivery loop.
func New() *Monitor {
	mon := &Monitor{
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		clients:   make(map[*websocket.Conn]bool),
		register:  make(chan *websocket.Conn),
		remove:    make(chan *websocket.Conn),
		broadcast: make(chan []byte, backlog),
		done:      make(chan struct{}),
	}
	mon.wg.Add(1)
	go mon.run()
	return mon
}

// NewFrame describes a bus event.
func NewFrame(ev simbus.Event) Frame {
	frame := Frame{Time: ev.Time, Port: ev.Port, Lines: ev.Lines, Data: ev.Data, Asserted: []string{}}
	for _, sig := range lines.Signals {
		if ev.Lines&uint8(sig) == 0 {
			frame.Asserted = append(frame.Asserted, sig.String())
		}
	}
	return frame
}

// Observe is the trace hook for a simulated bus. It never blocks.
func (mon *Monitor) Observe(ev simbus.Event) {
	data, err := json.Marshal(NewFrame(ev))
	if err != nil {
		slog.Error("Failed to marshal bus frame", "error", err.Error())
		return
	}
	mon.mu.Lock()
	mon.latest = data
	mon.mu.Unlock()
	select {
	case mon.broadcast <- data:
	default:
		mon.dropped.Add(1)
	}
}

// Clients returns the number of connected clients.
func (mon *Monitor) Clients() int {
	return int(mon.count.Load())
}

// Dropped returns the number of frames lost because clients were slow.
func (mon *Monitor) Dropped() int64 {
	return mon.dropped.Load()
}

func (mon *Monitor) run() {
	defer mon.wg.Done()
	for {
		select {
		case <-mon.done:
			for conn := range mon.clients {
				conn.Close()
			}
			return
		case conn := <-mon.register:
			mon.clients[conn] = true
			mon.count.Add(1)
			mon.mu.Lock()
			latest := mon.latest
			mon.mu.Unlock()
			if latest != nil {
				mon.send(conn, latest)
			}
		case conn := <-mon.remove:
			mon.drop(conn)
		case msg := <-mon.broadcast:
			for conn := range mon.clients {
				mon.send(conn, msg)
			}
		}
	}
}

func (mon *Monitor) send(conn *websocket.Conn, msg []byte) {
	if err := conn.WriteMessage(websocket.TextMessage, msg); err != nil {
		slog.Warn("Failed to send frame to websocket client", "error", err.Error())
		mon.drop(conn)
	}
}

func (mon *Monitor) drop(conn *websocket.Conn) {
	if _, ok := mon.clients[conn]; ok {
		delete(mon.clients, conn)
		mon.count.Add(-1)
		conn.Close()
	}
}

// ServeHTTP upgrades a request to a websocket that receives frames.
func (mon *Monitor) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := mon.upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Error("Websocket upgrade failed", "error", err.Error())
		return
	}

	select {
	case mon.register <- conn:
	case <-mon.done:
		conn.Close()
		return
	}

	go func() {
		defer func() {
			select {
			case mon.remove <- conn:
			case <-mon.done:
			}
		}()
		// Clients only listen, reads detect the close.
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
					slog.Warn("Websocket error", "error", err.Error())
				}
				return
			}
		}
	}()
}

// Listen serves the monitor on address at path /trace.
func (mon *Monitor) Listen(address string) error {
	listener, err := net.Listen("tcp", address)
	if err != nil {
		return fmt.Errorf("failed to listen on address %s: %w", address, err)
	}
	mux := http.NewServeMux()
	mux.Handle("/trace", mon)
	mon.listener = listener
	mon.server = &http.Server{Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	slog.Info("Monitor started on " + listener.Addr().String())
	mon.wg.Add(1)
	go func() {
		defer mon.wg.Done()
		if err := mon.server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("Monitor stopped", "error", err.Error())
		}
	}()
	return nil
}

// Addr returns the listening address, empty if not listening.
func (mon *Monitor) Addr() string {
	if mon.listener == nil {
		return ""
	}
	return mon.listener.Addr().String()
}

// Stop the server and close every client.
func (mon *Monitor) Stop() {
	if mon.server != nil {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		_ = mon.server.Shutdown(ctx)
		cancel()
	}
	close(mon.done)
	mon.wg.Wait()
}
