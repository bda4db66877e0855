package chi

import (
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/kailas-cloud/toxfilter/internal/domain"
	"github.com/kailas-cloud/toxfilter/internal/domain/severity"
	"github.com/kailas-cloud/toxfilter/internal/usecase/composer"
)

// Client message types.
const (
	msgInput   = "input"
	msgBlur    = "blur"
	msgDismiss = "dismiss"
)

// Server message types.
const (
	msgWarning = "warning"
	msgClear   = "clear"
	msgState   = "state"
	msgError   = "error"
)

type wsConfig struct {
	upgrader   websocket.Upgrader
	writeWait  time.Duration
	pongWait   time.Duration
	pingPeriod time.Duration
	sendBuffer int
}

func defaultWSConfig() wsConfig {
	pongWait := 60 * time.Second
	return wsConfig{
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			// Callers authenticate with a bearer token, not cookies.
			CheckOrigin: func(*http.Request) bool { return true },
		},
		writeWait:  10 * time.Second,
		pongWait:   pongWait,
		pingPeriod: pongWait * 9 / 10,
		sendBuffer: 32,
	}
}

// clientMessage is what a composer client sends.
type clientMessage struct {
	Type string `json:"type"`
	Text string `json:"text,omitempty"`
}

// serverMessage is what the server pushes back.
type serverMessage struct {
	Type         string         `json:"type"`
	Severity     severity.Level `json:"severity,omitempty"`
	Label        string         `json:"label,omitempty"`
	Detail       string         `json:"detail,omitempty"`
	State        composer.State `json:"state,omitempty"`
	CheckPending bool           `json:"check_pending,omitempty"`
	Error        string         `json:"error,omitempty"`
}

// remoteSurface is a composer surface whose text lives on a websocket client.
// Text and the warning callbacks run on the composer loop; push may be called
// from any goroutine.
type remoteSurface struct {
	text string

	mu     sync.Mutex
	closed bool
	out    chan serverMessage
	logger *zap.Logger
}

func newRemoteSurface(buffer int, logger *zap.Logger) *remoteSurface {
	return &remoteSurface{out: make(chan serverMessage, buffer), logger: logger}
}

func (s *remoteSurface) Text() string { return s.text }

func (s *remoteSurface) SetWarning(w domain.Warning) {
	s.push(serverMessage{Type: msgWarning, Severity: w.Severity, Label: w.Label, Detail: w.Detail})
}

func (s *remoteSurface) ClearWarning() {
	s.push(serverMessage{Type: msgClear})
}

// push never blocks the composer loop; a client that stops reading loses messages.
func (s *remoteSurface) push(m serverMessage) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	select {
	case s.out <- m:
	default:
		s.logger.Warn("Composer socket send buffer full, message dropped", zap.String("type", m.Type))
	}
}

func (s *remoteSurface) close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.closed {
		s.closed = true
		close(s.out)
	}
}

// ComposerSocket handles GET /v1/composer/ws. Each connection gets its own guard.
func (s *Server) ComposerSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := s.ws.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("Websocket upgrade failed", zap.Error(err))
		return
	}
	logger := s.logger.With(zap.String("remote", r.RemoteAddr))
	logger.Debug("Composer client connected")

	surface := newRemoteSurface(s.ws.sendBuffer, logger)
	c := s.sessions.NewComposer(surface, r.URL.Query().Get("domain"))

	done := make(chan struct{})
	go s.writePump(conn, surface.out, done)

	defer func() {
		c.Close()
		surface.close()
		<-done
		_ = conn.Close()
		logger.Debug("Composer client disconnected")
	}()

	conn.SetReadLimit(MaxInputBytes + 1024)
	_ = conn.SetReadDeadline(time.Now().Add(s.ws.pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(s.ws.pongWait))
	})

	ctx := r.Context()
	for {
		var msg clientMessage
		if err := conn.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				logger.Debug("Composer socket read failed", zap.Error(err))
			}
			return
		}

		var (
			snap composer.Snapshot
			err  error
		)
		switch msg.Type {
		case msgInput:
			if len(msg.Text) > MaxInputBytes {
				surface.push(serverMessage{Type: msgError, Error: "text too long"})
				continue
			}
			text := msg.Text
			snap, err = c.Input(ctx, func() { surface.text = text })
		case msgBlur:
			snap, err = c.Blur(ctx)
		case msgDismiss:
			snap, err = c.Dismiss(ctx)
		default:
			surface.push(serverMessage{Type: msgError, Error: "unknown message type " + msg.Type})
			continue
		}
		if err != nil {
			logger.Debug("Composer call failed", zap.Error(err))
			return
		}
		surface.push(stateMessage(snap))
	}
}

func (s *Server) writePump(conn *websocket.Conn, out <-chan serverMessage, done chan<- struct{}) {
	defer close(done)
	ticker := time.NewTicker(s.ws.pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case m, ok := <-out:
			_ = conn.SetWriteDeadline(time.Now().Add(s.ws.writeWait))
			if !ok {
				_ = conn.WriteMessage(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				return
			}
			if err := conn.WriteJSON(m); err != nil {
				return
			}
		case <-ticker.C:
			_ = conn.SetWriteDeadline(time.Now().Add(s.ws.writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func stateMessage(snap composer.Snapshot) serverMessage {
	m := serverMessage{Type: msgState, State: snap.State, CheckPending: snap.CheckPending}
	if snap.WarningVisible {
		m.Severity = snap.Warning.Severity
		m.Label = snap.Warning.Label
		m.Detail = snap.Warning.Detail
	}
	return m
}
