package http

import (
	"encoding/json"

	"fanfrenzy/internal/app"
	"fanfrenzy/internal/domain"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

type inboundMessage struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

type outboundMessage[T any] struct {
	Type    string `json:"type"`
	Payload T      `json:"payload"`
}

type errorPayload struct {
	Message string `json:"message"`
}

type playQuery struct {
	Mode     string `form:"mode" binding:"required,mode"`
	Ordering bool   `form:"ordering"`
	Date     string `form:"date"`
	Team     string `form:"team"`
	Year     string `form:"year"`
	GameID   string `form:"gameId"`
}

// wsConn serializes writes to one websocket through a single writer goroutine.
type wsConn struct {
	conn       *websocket.Conn
	send       chan outboundMessage[any]
	writerDone chan struct{}
	log        *zap.Logger
}

func newWSConn(conn *websocket.Conn, log *zap.Logger) *wsConn {
	w := &wsConn{
		conn:       conn,
		send:       make(chan outboundMessage[any], 16),
		writerDone: make(chan struct{}),
		log:        log,
	}
	go func() {
		defer close(w.writerDone)
		for msg := range w.send {
			if err := conn.WriteJSON(msg); err != nil {
				log.Debug("ws write failed", zap.Error(err))
				return
			}
		}
	}()
	return w
}

// push queues msg; it reports false once the writer has stopped.
func (w *wsConn) push(msgType string, payload any) bool {
	select {
	case w.send <- outboundMessage[any]{Type: msgType, Payload: payload}:
		return true
	case <-w.writerDone:
		return false
	}
}

// close flushes pending messages and waits for the writer.
func (w *wsConn) close() {
	close(w.send)
	<-w.writerDone
}

// servePlay drives one server-side attempt over a websocket.
func (s *Server) servePlay(c *gin.Context) {
	var q playQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		s.bindFailed(c, err)
		return
	}
	who := identityFrom(c)
	ctx := c.Request.Context()

	conn, err := s.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		s.log.Warn("ws upgrade failed", zap.Error(err))
		return
	}
	defer conn.Close()

	sess, err := s.svc.Play.Start(ctx, who, app.PlayRequest{
		Mode:     domain.Mode(q.Mode),
		Ordering: q.Ordering,
		Date:     q.Date,
		Content: app.ContentRequest{
			Team:   q.Team,
			Year:   q.Year,
			GameID: q.GameID,
			Client: c.ClientIP(),
		},
	})
	if err != nil {
		_, msg := statusFor(err)
		_ = conn.WriteJSON(outboundMessage[errorPayload]{Type: "error", Payload: errorPayload{Message: msg}})
		return
	}

	out := newWSConn(conn, s.log)
	closeSignals := make(chan struct{})
	eventsDone := make(chan struct{})

	go func() {
		defer close(eventsDone)
		events := sess.Events()
		for {
			select {
			case ev, ok := <-events:
				if !ok {
					return
				}
				if !out.push(ev.Type, ev.Payload) {
					return
				}
			case <-closeSignals:
				return
			}
		}
	}()

	state := sess.State()
	out.push(state.Type, state.Payload)

	for {
		var inbound inboundMessage
		if err := conn.ReadJSON(&inbound); err != nil {
			break
		}
		cmd := app.PlayCommand{}
		if len(inbound.Payload) > 0 {
			if err := json.Unmarshal(inbound.Payload, &cmd); err != nil {
				out.push("error", errorPayload{Message: "invalid " + inbound.Type + " payload"})
				continue
			}
		}
		cmd.Type = inbound.Type

		reply, err := sess.Handle(ctx, cmd)
		if err != nil {
			if !app.IsPlayError(err) {
				s.log.Error("play command failed", zap.String("attempt_id", sess.AttemptID), zap.String("type", cmd.Type), zap.Error(err))
			}
			_, msg := statusFor(err)
			if app.IsPlayError(err) {
				msg = err.Error()
			}
			if !out.push("error", errorPayload{Message: msg}) {
				break
			}
			continue
		}
		if !out.push(reply.Type, reply.Payload) {
			break
		}
	}

	close(closeSignals)
	<-eventsDone
	sess.Close()
	out.close()
}

// serveLeaderboard streams a leaderboard snapshot after every accepted score.
func (s *Server) serveLeaderboard(c *gin.Context) {
	conn, err := s.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		s.log.Warn("ws upgrade failed", zap.Error(err))
		return
	}
	defer conn.Close()

	updates, cancel, err := s.svc.Scores.Subscribe(c.Request.Context())
	if err != nil {
		_, msg := statusFor(err)
		_ = conn.WriteJSON(outboundMessage[errorPayload]{Type: "error", Payload: errorPayload{Message: msg}})
		return
	}
	defer cancel()

	out := newWSConn(conn, s.log)
	closeSignals := make(chan struct{})
	updatesDone := make(chan struct{})

	go func() {
		defer close(updatesDone)
		for {
			select {
			case update, ok := <-updates:
				if !ok {
					return
				}
				if !out.push("leaderboard", update) {
					return
				}
			case <-closeSignals:
				return
			}
		}
	}()

	// the feed is one-way; reading only detects the client going away
	for {
		if _, _, err := conn.NextReader(); err != nil {
			break
		}
	}

	close(closeSignals)
	<-updatesDone
	out.close()
}
