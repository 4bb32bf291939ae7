package ws

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"voxstream/internal/protocol"
	"voxstream/internal/world"
)

// Source answers chunk requests for the server.
type Source interface {
	Meta() protocol.WorldMetaMsg
	Chunk(kind world.Kind, key world.CellKey, tier world.Tier) (protocol.ChunkDataMsg, error)
}

// Server serves a Source to any number of streaming clients.
type Server struct {
	src Source
	log *zap.Logger

	upgrader websocket.Upgrader

	mu      sync.Mutex
	clients map[*session]struct{}
}

func NewServer(src Source, log *zap.Logger) *Server {
	return &Server{
		src: src,
		log: log,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  64 * 1024,
			WriteBufferSize: 64 * 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
		clients: map[*session]struct{}{},
	}
}

type session struct {
	name string
	out  chan []byte
	done chan struct{}
	once sync.Once
}

func (s *session) stop() { s.once.Do(func() { close(s.done) }) }

func (s *session) send(b []byte) bool {
	select {
	case <-s.done:
		return false
	case s.out <- b:
		return true
	default:
		return false
	}
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Warn("upgrade", zap.Error(err))
		return
	}
	defer conn.Close()

	sess, ok := s.handshake(conn)
	if !ok {
		return
	}
	log := s.log.With(zap.String("client", sess.name))

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for {
			select {
			case <-sess.done:
				return
			case b := <-sess.out:
				_ = conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
				if err := conn.WriteMessage(websocket.TextMessage, b); err != nil {
					sess.stop()
					return
				}
			}
		}
	}()

	s.mu.Lock()
	s.clients[sess] = struct{}{}
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		delete(s.clients, sess)
		s.mu.Unlock()
		sess.stop()
		wg.Wait()
		log.Info("client disconnected")
	}()

	s.writeJSON(sess, s.src.Meta())
	log.Info("client connected")

	for {
		_ = conn.SetReadDeadline(time.Now().Add(60 * time.Second))
		_, msg, err := conn.ReadMessage()
		if err != nil {
			return
		}
		base, err := protocol.DecodeBase(msg)
		if err != nil || base.Type != protocol.TypeRequestChunk {
			continue
		}
		var req protocol.RequestChunkMsg
		if err := json.Unmarshal(msg, &req); err != nil {
			continue
		}
		kind, key, tier, err := req.Target()
		if err != nil {
			log.Debug("bad request", zap.Error(err))
			continue
		}
		resp, err := s.src.Chunk(kind, key, tier)
		if err != nil {
			log.Debug("chunk unavailable", zap.Stringer("key", key), zap.Error(err))
			continue
		}
		if !s.writeJSON(sess, resp) {
			log.Debug("dropped chunk, send queue full", zap.Stringer("key", key))
		}
	}
}

func (s *Server) handshake(conn *websocket.Conn) (*session, bool) {
	_ = conn.SetReadDeadline(time.Now().Add(10 * time.Second))
	_, msg, err := conn.ReadMessage()
	if err != nil {
		return nil, false
	}
	var hello protocol.HelloMsg
	if err := json.Unmarshal(msg, &hello); err != nil || hello.Type != protocol.TypeHello {
		_ = conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.ClosePolicyViolation, "expected HELLO"))
		return nil, false
	}
	if hello.ProtocolVersion != protocol.Version {
		_ = conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.ClosePolicyViolation, "unsupported protocol_version"))
		return nil, false
	}
	return &session{name: hello.ClientName, out: make(chan []byte, 4096), done: make(chan struct{})}, true
}

func (s *Server) writeJSON(sess *session, v any) bool {
	b, err := json.Marshal(v)
	if err != nil {
		return false
	}
	return sess.send(b)
}

// Broadcast sends an update message to every connected client.
func (s *Server) Broadcast(v any) int {
	b, err := json.Marshal(v)
	if err != nil {
		s.log.Error("marshal broadcast", zap.Error(err))
		return 0
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for sess := range s.clients {
		if sess.send(b) {
			n++
		}
	}
	return n
}

// Clients reports how many sessions have completed the handshake.
func (s *Server) Clients() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.clients)
}
