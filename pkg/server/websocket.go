package server

import (
	"PhotoUploader/internal/logging"
	"PhotoUploader/internal/models"
	"PhotoUploader/pkg/demux"
	"PhotoUploader/pkg/metadata"
	"PhotoUploader/pkg/stream"
	"PhotoUploader/pkg/utils"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
)

const wsWriteTimeout = 10 * time.Second

// wsHandler accepts an upload over a websocket. Everything that can be
// rejected is rejected with a plain HTTP response before the upgrade.
func (s *Server) wsHandler(w http.ResponseWriter, r *http.Request) {
	header := r.Header.Get(metadata.HeaderName)
	if header == "" {
		header = r.URL.Query().Get("files")
	}

	up, err := s.admit(r, header, -1)
	if err != nil {
		writeError(w, err)
		return
	}
	if err := s.open(r, up); err != nil {
		writeError(w, err)
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already replied.
		for _, rw := range up.writers {
			utils.CloseQuietly(rw, "range writer "+rw.Range().Name)
		}
		logging.GlobalLogger.Warn(fmt.Sprintf("Websocket upgrade for upload %s failed: %v", up.id, err))
		return
	}
	defer conn.Close()
	logging.GlobalLogger.Info(fmt.Sprintf("Upload %s started over websocket: %d files, %d bytes", up.id, len(up.ranges), up.total))

	progress := make(chan models.WSFrame, 1)
	done := make(chan struct{})
	go func() {
		defer close(done)
		for frame := range progress {
			if err := writeFrame(conn, frame); err != nil {
				logging.GlobalLogger.Debug(fmt.Sprintf("Dropping progress for upload %s: %v", up.id, err))
			}
		}
	}()

	res, runErr := s.run(r, up, stream.NewWebSocketSource(conn, s.WSIdleTimeout), func(position, expected uint64) {
		utils.TrySend(progress, models.WSFrame{Type: models.FrameProgress, Received: position, Total: expected})
	})
	close(progress)
	<-done

	final := finalFrame(up.id, res, runErr)
	if err := writeFrame(conn, final); err != nil {
		logging.GlobalLogger.Debug(fmt.Sprintf("Failed to send result for upload %s: %v", up.id, err))
		return
	}

	code, reason := websocket.CloseNormalClosure, ""
	if runErr != nil {
		code, reason = websocket.CloseInternalServerErr, "upload failed"
		if statusFor(runErr) < http.StatusInternalServerError {
			code = websocket.ClosePolicyViolation
		}
	}
	msg := websocket.FormatCloseMessage(code, reason)
	if err := conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(wsWriteTimeout)); err != nil {
		logging.GlobalLogger.Debug(fmt.Sprintf("Failed to close websocket for upload %s: %v", up.id, err))
	}
}

func finalFrame(id string, res demux.Result, runErr error) models.WSFrame {
	if runErr != nil {
		return models.WSFrame{Type: models.FrameError, Message: runErr.Error(), Received: res.BytesRead, Total: res.Expected}
	}
	resp := uploadResponse(id, res)
	return models.WSFrame{Type: models.FrameResult, Received: res.BytesRead, Total: res.Expected, Result: &resp}
}

func writeFrame(conn *websocket.Conn, frame models.WSFrame) error {
	if err := conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout)); err != nil {
		return err
	}
	return conn.WriteJSON(frame)
}
