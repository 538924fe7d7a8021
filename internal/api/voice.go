package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/mblarson/omnihome/internal/voice"
)

// voiceWriteTimeout bounds a single audio or status write.
const voiceWriteTimeout = 5 * time.Second

// handleVoice opens a voice session over a WebSocket. The client sends
// 16 kHz PCM as binary frames and {"type":"stop"} to end; it receives
// 24 kHz PCM as binary frames and status updates as JSON text frames.
func (s *Server) handleVoice(w http.ResponseWriter, r *http.Request) {
	if s.voice == nil {
		writeUnavailable(w, voice.ErrDisabled.Error())
		return
	}
	claims, ok := s.ticketClaims(w, r)
	if !ok {
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("voice upgrade failed", "error", err)
		return
	}
	if s.wsCfg.MaxMessageSize > 0 {
		conn.SetReadLimit(int64(s.wsCfg.MaxMessageSize))
	}

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()
	stop := context.AfterFunc(s.ctx, cancel)
	defer stop()
	ep := &wsVoiceEndpoint{conn: conn}
	s.logger.Info("voice session requested", "user_id", claims.Subject)
	if err := s.voice.Run(ctx, ep); err != nil {
		if errors.Is(err, voice.ErrSessionActive) {
			_ = ep.WriteStatus(voice.Status{State: voice.StateIdle, Error: err.Error()}) //nolint:errcheck // closing anyway
		}
		s.logger.Warn("voice session ended with error", "user_id", claims.Subject, "error", err)
	}
	ep.close()
}

// wsVoiceEndpoint adapts a WebSocket to voice.Endpoint.
type wsVoiceEndpoint struct {
	conn    *websocket.Conn
	writeMu sync.Mutex
}

type voiceControl struct {
	Type string `json:"type"`
}

// ReadFrame returns the next binary frame. A stop message or a normal
// close ends the session with io.EOF.
func (e *wsVoiceEndpoint) ReadFrame(ctx context.Context) ([]byte, error) {
	// Expire the read when ctx ends so a session closed by the model side
	// does not wait for the next microphone frame.
	stop := context.AfterFunc(ctx, func() {
		e.conn.SetReadDeadline(time.Now()) //nolint:errcheck // best effort
	})
	defer stop()

	for {
		mt, data, err := e.conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				return nil, io.EOF
			}
			return nil, err
		}
		switch mt {
		case websocket.BinaryMessage:
			return data, nil
		case websocket.TextMessage:
			var ctl voiceControl
			if json.Unmarshal(data, &ctl) == nil && ctl.Type == "stop" {
				return nil, io.EOF
			}
		}
	}
}

func (e *wsVoiceEndpoint) WriteAudio(pcm []byte) error {
	return e.write(websocket.BinaryMessage, pcm)
}

func (e *wsVoiceEndpoint) WriteStatus(st voice.Status) error {
	data, err := json.Marshal(struct {
		Type string `json:"type"`
		voice.Status
	}{Type: "status", Status: st})
	if err != nil {
		return err
	}
	return e.write(websocket.TextMessage, data)
}

func (e *wsVoiceEndpoint) write(mt int, data []byte) error {
	e.writeMu.Lock()
	defer e.writeMu.Unlock()
	//nolint:errcheck // write error caught below
	e.conn.SetWriteDeadline(time.Now().Add(voiceWriteTimeout))
	return e.conn.WriteMessage(mt, data)
}

func (e *wsVoiceEndpoint) close() {
	e.writeMu.Lock()
	//nolint:errcheck // peer may already be gone
	e.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(time.Second))
	e.writeMu.Unlock()
	e.conn.Close() //nolint:errcheck // teardown
}
