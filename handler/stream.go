package handler

import (
	"encoding/base64"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/joyzh1029/ALG/model"
	"github.com/joyzh1029/ALG/service"
	"github.com/joyzh1029/ALG/utils"
	"go.uber.org/zap"
	"gocv.io/x/gocv"
)

// alertDelay separates the follow-up alert push from the frame result so
// clients can display it independently.
const alertDelay = 500 * time.Millisecond

var errInvalidFrame = errors.New("invalid image data")

type StreamHandler struct {
	pipeline *service.Pipeline
	upgrader websocket.Upgrader
}

func NewStreamHandler(pipeline *service.Pipeline) *StreamHandler {
	return &StreamHandler{
		pipeline: pipeline,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1 << 20,
			WriteBufferSize: 1 << 20,
			// Origins already pass the permissive CORS layer.
			CheckOrigin: func(*http.Request) bool { return true },
		},
	}
}

// Stream serves the live detection loop: each text message is a base64
// (optionally data-URL) encoded frame, each reply is the frame result.
// After an unsafe verdict an extra alert message follows. Bad frames get an
// error reply without closing the connection.
func (h *StreamHandler) Stream(c *gin.Context) {
	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		utils.Logger.Error("websocket upgrade failed", zap.Error(err))
		return
	}
	defer conn.Close()

	for {
		_, payload, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				utils.Logger.Warn("websocket closed unexpectedly", zap.Error(err))
			}
			return
		}

		result, err := h.processFrame(c, payload)
		if err != nil {
			if werr := conn.WriteJSON(model.StreamError{Error: err.Error()}); werr != nil {
				return
			}
			continue
		}

		if err := conn.WriteJSON(result); err != nil {
			return
		}

		if hasUnsafePair(result) {
			time.Sleep(alertDelay)
			if err := conn.WriteJSON(model.StreamAlert{Alert: true, Message: result.Warning}); err != nil {
				return
			}
		}
	}
}

func (h *StreamHandler) processFrame(c *gin.Context, payload []byte) (*model.FrameResult, error) {
	encoded := string(payload)
	// Browsers send canvas captures as data URLs.
	if idx := strings.IndexByte(encoded, ','); idx >= 0 && strings.HasPrefix(encoded, "data:") {
		encoded = encoded[idx+1:]
	}

	data, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, errInvalidFrame
	}

	img, err := gocv.IMDecode(data, gocv.IMReadColor)
	if err != nil || img.Empty() {
		return nil, errInvalidFrame
	}
	defer img.Close()

	return h.pipeline.ProcessFrame(c.Request.Context(), img, false)
}

func hasUnsafePair(result *model.FrameResult) bool {
	for _, p := range result.Pairs {
		if p.Status.Unsafe() {
			return true
		}
	}
	return false
}
