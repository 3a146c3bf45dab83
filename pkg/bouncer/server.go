/*
MIT License

Copyright (c) 2025 Mikael Schultz <mikael@conf-t.se>

Permission is hereby granted, free of charge, to any person obtaining a copy
of this software and associated documentation files (the "Software"), to deal
in the Software without restriction, including without limitation the rights
to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
copies of the Software, and to permit persons to whom the Software is
furnished to do so, subject to the following conditions:

The above copyright notice and this permission notice shall be included in all
copies or substantial portions of the Software.

THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN THE
SOFTWARE.
*/
package bouncer

import (
	"context"
	"net"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/bitcanon/ircbounce/pkg/config"
)

// Server is the process-wide session registry: it owns the client
// listener, hands accepted connections to new sessions, and maps each
// connection class to the session currently holding it.
type Server struct {
	ctx    context.Context
	cancel context.CancelFunc

	mu       sync.Mutex
	config   *config.Config
	ln       net.Listener
	sessions map[*Session]*config.Class
	byClass  map[*config.Class]*Session
	reload   func()
}

// SessionInfo is a registry snapshot entry, safe to read from any
// goroutine.
type SessionInfo struct {
	ID    string
	Class string
	Since time.Time
}

// New creates a server around a loaded configuration.
func New(cfg *config.Config) *Server {
	ctx, cancel := context.WithCancel(context.Background())
	return &Server{
		ctx:      ctx,
		cancel:   cancel,
		config:   cfg,
		sessions: make(map[*Session]*config.Class),
		byClass:  make(map[*config.Class]*Session),
	}
}

// cfg returns the current configuration. Sessions must not hold the
// returned pointer across a reload boundary except through their bound
// class.
func (srv *Server) cfg() *config.Config {
	srv.mu.Lock()
	defer srv.mu.Unlock()
	return srv.config
}

// ListenAndServe opens the client listener and accepts until shutdown.
func (srv *Server) ListenAndServe() error {
	ln, err := net.Listen("tcp", srv.cfg().Listen)
	if err != nil {
		return err
	}
	return srv.Serve(ln)
}

// Serve accepts client connections on an existing listener.
func (srv *Server) Serve(ln net.Listener) error {
	srv.mu.Lock()
	srv.ln = ln
	srv.mu.Unlock()

	log.WithField("addr", ln.Addr().String()).Info("listening for clients")

	for {
		conn, err := ln.Accept()
		if err != nil {
			select {
			case <-srv.ctx.Done():
				return nil
			default:
			}
			if ne, ok := err.(net.Error); ok && ne.Timeout() {
				continue
			}
			return err
		}
		newSession(srv, conn, false)
	}
}

// ServeConn adopts an already-open client connection, as in inetd mode
// where stdin is the socket. The session dies when the client leaves.
func (srv *Server) ServeConn(conn net.Conn) {
	newSession(srv, conn, true)
}

// Shutdown stops accepting and tears every session down.
func (srv *Server) Shutdown() {
	srv.cancel()
	srv.mu.Lock()
	ln := srv.ln
	srv.mu.Unlock()
	if ln != nil {
		ln.Close()
	}
}

// Done is closed once shutdown has been requested.
func (srv *Server) Done() <-chan struct{} { return srv.ctx.Done() }

// OnReload registers the callback the RELOAD admin command fires.
func (srv *Server) OnReload(fn func()) {
	srv.mu.Lock()
	srv.reload = fn
	srv.mu.Unlock()
}

// RequestReload asks the front-end to reload the configuration.
func (srv *Server) RequestReload() {
	srv.mu.Lock()
	fn := srv.reload
	srv.mu.Unlock()
	if fn != nil {
		fn()
	}
}

// Reload swaps in a new configuration. Every live session is rebound to
// the new class whose password matches its old one byte for byte;
// sessions whose password no longer appears are terminated.
func (srv *Server) Reload(cfg *config.Config) {
	srv.mu.Lock()
	srv.config = cfg

	rebound := make(map[*Session]*config.Class, len(srv.sessions))
	byClass := make(map[*config.Class]*Session, len(srv.byClass))
	var killed []*Session

	for s, oldCl := range srv.sessions {
		if oldCl == nil {
			rebound[s] = nil
			continue
		}
		var match *config.Class
		for i := range cfg.Classes {
			if cfg.Classes[i].Password == oldCl.Password {
				match = &cfg.Classes[i]
				break
			}
		}
		if match == nil || byClass[match] != nil {
			killed = append(killed, s)
			rebound[s] = oldCl
			continue
		}
		rebound[s] = match
		byClass[match] = s
	}
	srv.sessions = rebound
	srv.byClass = byClass
	srv.mu.Unlock()

	for s, cl := range rebound {
		if cl == nil {
			continue
		}
		s := s
		cl := cl
		s.post(evControl{fn: func() { s.rebindClass(cl) }})
	}
	for _, s := range killed {
		s := s
		s.post(evControl{fn: func() {
			s.errorClient("Closing Link: configuration changed")
			s.quitServer("Configuration changed")
			s.die()
		}})
	}

	log.WithField("sessions", len(rebound)).Info("configuration reloaded")
}

// --- registry ---

func (srv *Server) add(s *Session) {
	srv.mu.Lock()
	defer srv.mu.Unlock()
	srv.sessions[s] = nil
}

func (srv *Server) sessionForClass(cl *config.Class) *Session {
	srv.mu.Lock()
	defer srv.mu.Unlock()
	return srv.byClass[cl]
}

func (srv *Server) bind(cl *config.Class, s *Session) {
	srv.mu.Lock()
	defer srv.mu.Unlock()
	srv.sessions[s] = cl
	srv.byClass[cl] = s
}

func (srv *Server) remove(s *Session) {
	srv.mu.Lock()
	defer srv.mu.Unlock()
	if cl, ok := srv.sessions[s]; ok {
		if cl != nil && srv.byClass[cl] == s {
			delete(srv.byClass, cl)
		}
		delete(srv.sessions, s)
	}
}

// SessionInfo snapshots the registry for the USERS admin command.
func (srv *Server) SessionInfo() []SessionInfo {
	srv.mu.Lock()
	defer srv.mu.Unlock()
	infos := make([]SessionInfo, 0, len(srv.sessions))
	for s, cl := range srv.sessions {
		label := "(unauthenticated)"
		if cl != nil {
			label = "default"
			if cl.Name != "" {
				label = cl.Name
			}
		}
		infos = append(infos, SessionInfo{ID: s.id, Class: label, Since: s.startTime})
	}
	return infos
}

// findByClass locates the session bound to a named class.
func (srv *Server) findByClass(name string) *Session {
	srv.mu.Lock()
	defer srv.mu.Unlock()
	for cl, s := range srv.byClass {
		label := cl.Name
		if label == "" {
			label = "default"
		}
		if label == name {
			return s
		}
	}
	return nil
}
