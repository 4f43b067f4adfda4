package transporttest

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"time"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
)

// EchoServer is a local WebSocket endpoint for exercising the real
// transport.WSDialer end to end, routed through gorilla/mux the way
// apps/gateway wires its HTTP surface. "/ws" echoes every inbound frame
// back verbatim; "/ws/close/{code}" accepts the handshake and
// immediately closes with code 1000, 1008 or 1011 as given (any other
// value closes with 1008), for exercising §4.9's
// close-code classification against a real socket instead of a fake.
type EchoServer struct {
	*httptest.Server
	upgrader websocket.Upgrader
}

// NewEchoServer starts an EchoServer listening on a local port.
func NewEchoServer() *EchoServer {
	s := &EchoServer{upgrader: websocket.Upgrader{CheckOrigin: func(*http.Request) bool { return true }}}
	r := mux.NewRouter()
	r.HandleFunc("/ws", s.handleEcho)
	r.HandleFunc("/ws/close/{code}", s.handleClose)
	s.Server = httptest.NewServer(r)
	return s
}

// WSURL rewrites the server's http:// base URL to ws://.
func (s *EchoServer) WSURL(path string) string {
	return "ws" + strings.TrimPrefix(s.Server.URL, "http") + path
}

func (s *EchoServer) handleEcho(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()
	for {
		msgType, data, err := conn.ReadMessage()
		if err != nil {
			return
		}
		if err := conn.WriteMessage(msgType, data); err != nil {
			return
		}
	}
}

func (s *EchoServer) handleClose(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()
	code := websocket.ClosePolicyViolation
	vars := mux.Vars(r)
	switch vars["code"] {
	case "1000":
		code = websocket.CloseNormalClosure
	case "1008":
		code = websocket.ClosePolicyViolation
	case "1011":
		code = websocket.CloseInternalServerErr
	}
	_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(code, "closing"), time.Now().Add(time.Second))
}
