// Package socket fans consumed stream fragments out to attached TCP or unix
// socket consumers as length-prefixed record frames.
package socket

import (
	"bufio"
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net"
	"sync"
	"sync/atomic"

	"conduit/internal/egress"
)

type Config struct {
	Enabled        bool
	Network        string
	Address        string
	UnixSocketPath string
	ClientQueue    int
	TLSConfig      *tls.Config
}

// Server accepts consumers and streams every forwarded record to each of
// them. A consumer that cannot keep up has its connection dropped rather
// than applying backpressure to the bridge: the shared-memory stream cannot
// be stalled by one slow socket.
type Server struct {
	cfg    Config
	ln     net.Listener
	addr   atomic.Value
	closed atomic.Bool
	wg     sync.WaitGroup

	mu      sync.Mutex
	clients map[*client]struct{}
}

type client struct {
	c       net.Conn
	writerQ chan *egress.Record
}

func NewServer(cfg Config) *Server {
	if cfg.Network == "" {
		cfg.Network = "tcp"
	}
	if cfg.ClientQueue <= 0 {
		cfg.ClientQueue = 1024
	}
	return &Server{cfg: cfg, clients: make(map[*client]struct{})}
}

func (s *Server) Addr() string {
	if v := s.addr.Load(); v != nil {
		return v.(string)
	}
	return ""
}

// Start listens and accepts consumers until ctx is cancelled or Close is
// called.
func (s *Server) Start(ctx context.Context) error {
	addr := s.cfg.Address
	if s.cfg.Network == "unix" {
		addr = s.cfg.UnixSocketPath
	}
	ln, err := net.Listen(s.cfg.Network, addr)
	if err != nil {
		return err
	}
	if s.cfg.TLSConfig != nil {
		ln = tls.NewListener(ln, s.cfg.TLSConfig)
	}
	s.ln = ln
	s.addr.Store(ln.Addr().String())

	go func() { <-ctx.Done(); _ = s.Close() }()

	s.wg.Add(1)
	go s.acceptLoop()
	return nil
}

func (s *Server) acceptLoop() {
	defer s.wg.Done()
	for {
		conn, err := s.ln.Accept()
		if err != nil {
			if s.closed.Load() {
				return
			}
			var ne net.Error
			if errors.As(err, &ne) && ne.Timeout() {
				continue
			}
			return
		}
		s.attach(conn)
	}
}

func (s *Server) attach(conn net.Conn) {
	cl := &client{c: conn, writerQ: make(chan *egress.Record, s.cfg.ClientQueue)}
	s.mu.Lock()
	s.clients[cl] = struct{}{}
	s.mu.Unlock()

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.writeLoop(cl)
		s.detach(cl)
	}()
}

func (s *Server) detach(cl *client) {
	s.mu.Lock()
	delete(s.clients, cl)
	s.mu.Unlock()
	_ = cl.c.Close()
}

func (s *Server) writeLoop(cl *client) {
	w := bufio.NewWriter(cl.c)
	for rec := range cl.writerQ {
		if err := egress.WriteRecord(w, rec); err != nil {
			return
		}
		if len(cl.writerQ) == 0 {
			if err := w.Flush(); err != nil {
				return
			}
		}
	}
	_ = w.Flush()
}

func (s *Server) Name() string { return "socket" }

// Forward enqueues the record to every attached consumer, dropping those
// whose queue is full. Never fails: socket fan-out is best-effort and must
// not abort the bridge's position advance.
func (s *Server) Forward(_ context.Context, rec *egress.Record) error {
	if s.closed.Load() {
		return nil
	}
	s.mu.Lock()
	var slow []*client
	for cl := range s.clients {
		select {
		case cl.writerQ <- rec:
		default:
			slow = append(slow, cl)
		}
	}
	for _, cl := range slow {
		delete(s.clients, cl)
		close(cl.writerQ)
	}
	s.mu.Unlock()
	return nil
}

// ClientCount reports the number of attached consumers.
func (s *Server) ClientCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.clients)
}

func (s *Server) Close() error {
	if !s.closed.CompareAndSwap(false, true) {
		return nil
	}
	if s.ln != nil {
		_ = s.ln.Close()
	}
	s.mu.Lock()
	for cl := range s.clients {
		delete(s.clients, cl)
		close(cl.writerQ)
	}
	s.mu.Unlock()
	s.wg.Wait()
	return nil
}

func (c Config) Validate() error {
	if !c.Enabled {
		return nil
	}
	if c.Network == "unix" && c.UnixSocketPath == "" {
		return fmt.Errorf("socket unix_socket_path is required for unix network")
	}
	if c.Network != "unix" && c.Address == "" {
		return fmt.Errorf("socket address is required")
	}
	return nil
}
