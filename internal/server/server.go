package server

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/gorilla/websocket"

	"github.com/cardroomhq/cardroom/internal/auth"
	"github.com/cardroomhq/cardroom/internal/game"
)

// Server accepts WebSocket clients and fans committed state changes out to
// them. It implements Notifier: every push renders a per-viewer projection,
// so hole cards never leave the server unless the viewer may see them.
type Server struct {
	addr        string
	upgrader    websocket.Upgrader
	connections map[*Connection]bool
	register    chan *Connection
	unregister  chan *Connection
	logger      *log.Logger
	mu          sync.RWMutex
	ctx         context.Context
	cancel      context.CancelFunc
	service     *GameService
	validator   auth.Validator
	httpServer  *http.Server
}

var _ Notifier = (*Server)(nil)

// NewServer creates a WebSocket server over the given game service.
func NewServer(addr string, service *GameService, logger *log.Logger) *Server {
	ctx, cancel := context.WithCancel(context.Background())

	return &Server{
		addr: addr,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				// For development, allow all origins
				return true
			},
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
		connections: make(map[*Connection]bool),
		register:    make(chan *Connection),
		unregister:  make(chan *Connection),
		logger:      logger.WithPrefix("server"),
		ctx:         ctx,
		cancel:      cancel,
		service:     service,
		validator:   auth.NewNoopValidator(),
	}
}

// SetValidator installs a token validator for incoming connections. The
// default allows any player name without a token.
func (s *Server) SetValidator(v auth.Validator) { s.validator = v }

// Start runs the server until Stop is called.
func (s *Server) Start() error {
	go s.run()

	mux := http.NewServeMux()
	mux.HandleFunc("/ws", s.handleWebSocket)
	mux.HandleFunc("/health", s.handleHealth)

	s.httpServer = &http.Server{Addr: s.addr, Handler: mux}
	s.logger.Info("starting websocket server", "addr", s.addr)
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Stop shuts the listener down and closes every connection.
func (s *Server) Stop() error {
	s.cancel()

	var err error
	if s.httpServer != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		err = s.httpServer.Shutdown(ctx)
	}

	s.mu.Lock()
	for conn := range s.connections {
		_ = conn.Close()
	}
	s.mu.Unlock()
	return err
}

// run handles connection lifecycle
func (s *Server) run() {
	for {
		select {
		case conn := <-s.register:
			s.mu.Lock()
			s.connections[conn] = true
			total := len(s.connections)
			s.mu.Unlock()
			s.logger.Info("client connected", "total", total)

		case conn := <-s.unregister:
			s.mu.Lock()
			_, ok := s.connections[conn]
			if ok {
				delete(s.connections, conn)
			}
			total := len(s.connections)
			s.mu.Unlock()

			if ok {
				// A player who drops mid-hand is folded by the turn timeout;
				// the seat itself is released here.
				playerID := conn.Player()
				tableID := conn.Table()
				if playerID != "" && tableID != "" && !conn.Spectating() {
					s.logger.Info("releasing seat of disconnected player", "player", playerID, "table", tableID)
					_ = s.service.LeaveTable(context.Background(), tableID, playerID)
				}
				_ = conn.Close()
			}
			s.logger.Info("client disconnected", "total", total)

		case <-s.ctx.Done():
			return
		}
	}
}

// handleWebSocket handles WebSocket upgrade requests
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Error("upgrade connection", "error", err)
		return
	}

	client := NewConnection(conn, s.logger, s.service, s.validator)
	s.register <- client
	client.Start()

	go func() {
		<-client.ctx.Done()
		select {
		case s.unregister <- client:
		case <-s.ctx.Done():
		}
	}()
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

// HandUpdated pushes the live hand to everyone watching the table, each with
// their own view.
func (s *Server) HandUpdated(tableID string, hand *game.Hand) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for conn := range s.connections {
		if conn.Table() != tableID {
			continue
		}
		msg, err := NewMessage(MessageTypeHandState, HandStateData{
			TableID: tableID,
			Hand:    hand.View(conn.Player()),
		})
		if err != nil {
			s.logger.Error("render hand state", "table", tableID, "error", err)
			return
		}
		_ = conn.SendMessage(msg)
	}
}

// LobbyUpdated pushes a fresh table list to everyone at the table after a
// seating change.
func (s *Server) LobbyUpdated(tableID string) {
	tables := s.service.ListTables(context.Background())
	msg, err := NewMessage(MessageTypeTableList, TableListData{Tables: tables})
	if err != nil {
		s.logger.Error("render table list", "error", err)
		return
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	for conn := range s.connections {
		if conn.Table() != tableID {
			continue
		}
		_ = conn.SendMessage(msg)
	}
}
