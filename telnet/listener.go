/*
 * GPIB488 - telnet listener
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
	"log/slog"
	"net"
	"sync"
	"time"
)

type Server struct {
	wg         sync.WaitGroup
	listener   net.Listener
	shutdown   chan struct{}
	connection chan net.Conn
	mux        *Mux
	stopOnce   sync.Once
}

// Open new listener.
func newServer(address string) (*Server, error) {
	listener, err := net.Listen("tcp", address)
	if err != nil {
		return nil, fmt.Errorf("failed to listen on address %s: %w", address, err)
	}

	return &Server{
		listener:   listener,
		shutdown:   make(chan struct{}),
		connection: make(chan net.Conn),
	}, nil
}

// Accept a connection.
func (s *Server) acceptConnections() {
	defer s.wg.Done()

	for {
		conn, err := s.listener.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				return
			}
			continue
		}
		select {
		case s.connection <- conn:
		case <-s.shutdown:
			conn.Close()
			return
		}
	}
}

// Start processing for a new connection.
func (s *Server) handleConnections() {
	defer s.wg.Done()

	for {
		select {
		case <-s.shutdown:
			return
		case conn := <-s.connection:
			slog.Info("Connection from " + conn.RemoteAddr().String())
			s.wg.Add(1)
			go func() {
				defer s.wg.Done()
				s.track(conn)
			}()
		}
	}
}

// Run a client, closing it on shutdown.
func (s *Server) track(conn net.Conn) {
	finished := make(chan struct{})
	go func() {
		select {
		case <-s.shutdown:
			conn.Close()
		case <-finished:
		}
	}()
	handleClient(conn, s.mux)
	close(finished)
}

// Start a new server on address, running client lines through mux.
func Start(address string, mux *Mux) (*Server, error) {
	s, err := newServer(address)
	if err != nil {
		return nil, err
	}
	s.mux = mux
	slog.Info("Server started on " + s.Addr())

	s.wg.Add(2)
	go s.acceptConnections()
	go s.handleConnections()
	return s, nil
}

// Address the server is listening on.
func (s *Server) Addr() string {
	host, port, err := net.SplitHostPort(s.listener.Addr().String())
	if err != nil {
		return s.listener.Addr().String()
	}
	if host == "::" {
		host = "localhost"
	}
	return net.JoinHostPort(host, port)
}

// Stop a running server and its connections.
func (s *Server) Stop() {
	s.stopOnce.Do(func() {
		slog.Info("Shutdown port: " + s.Addr())
		close(s.shutdown)
		s.listener.Close()
	})

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		slog.Warn("Timed out waiting for connections to finish.")
	}
}
