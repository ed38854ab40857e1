package stream

import (
	"PhotoUploader/internal/models"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/gorilla/websocket"
)

var ErrAborted = errors.New("client aborted upload")

// WebSocketSource reads binary messages as chunks. A text "end" frame, or a
// normal close, ends the stream.
type WebSocketSource struct {
	conn        *websocket.Conn
	idleTimeout time.Duration
}

func NewWebSocketSource(conn *websocket.Conn, idleTimeout time.Duration) *WebSocketSource {
	return &WebSocketSource{conn: conn, idleTimeout: idleTimeout}
}

func (s *WebSocketSource) Next(ctx context.Context) ([]byte, error) {
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if err := s.conn.SetReadDeadline(s.deadline(ctx)); err != nil {
			return nil, err
		}

		messageType, data, err := s.conn.ReadMessage()
		if err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure) {
				return nil, io.EOF
			}
			return nil, err
		}

		switch messageType {
		case websocket.BinaryMessage:
			return data, nil
		case websocket.TextMessage:
			var frame models.WSFrame
			if err := json.Unmarshal(data, &frame); err != nil {
				return nil, fmt.Errorf("decoding control frame: %w", err)
			}
			switch frame.Type {
			case models.FrameEnd:
				return nil, io.EOF
			case models.FrameAbort:
				if frame.Message != "" {
					return nil, fmt.Errorf("%w: %s", ErrAborted, frame.Message)
				}
				return nil, ErrAborted
			default:
				return nil, fmt.Errorf("unexpected control frame %q", frame.Type)
			}
		}
	}
}

func (s *WebSocketSource) deadline(ctx context.Context) time.Time {
	var deadline time.Time
	if s.idleTimeout > 0 {
		deadline = time.Now().Add(s.idleTimeout)
	}
	if d, ok := ctx.Deadline(); ok && (deadline.IsZero() || d.Before(deadline)) {
		deadline = d
	}
	return deadline
}
