package http

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"course-quiz-engine/internal/app"
	"course-quiz-engine/internal/auth"
	"course-quiz-engine/internal/domain"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// WSHandler serves one live quiz attempt per websocket connection.
type WSHandler struct {
	service  *app.QuizService
	tokens   TokenVerifier
	logger   *zap.Logger
	upgrader websocket.Upgrader
}

func NewWSHandler(service *app.QuizService, tokens TokenVerifier, logger *zap.Logger) *WSHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &WSHandler{
		service: service,
		tokens:  tokens,
		logger:  logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
}

type inboundMessage struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

type selectPayload struct {
	QuestionIndex int `json:"questionIndex"`
	OptionIndex   int `json:"optionIndex"`
}

type submitPayload struct {
	Confirm bool `json:"confirm"`
}

// closeType is internal to the writer and never reaches the client.
const closeType = "close"

type outboundMessage[T any] struct {
	Type    string `json:"type"`
	Payload T      `json:"payload"`
}

type errorPayload struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type confirmPayload struct {
	Unanswered int `json:"unanswered"`
}

type completedPayload struct {
	Result   domain.QuizResult `json:"result"`
	Recorded bool              `json:"recorded"`
	Warning  string            `json:"warning,omitempty"`
}

// ServeWS authenticates the caller, starts the attempt and relays commands
// and session events until the attempt ends or the client goes away. A
// disconnect before completion abandons the attempt.
func (h *WSHandler) ServeWS(w http.ResponseWriter, r *http.Request) {
	courseID := r.URL.Query().Get("courseId")
	quizID := r.URL.Query().Get("quizId")
	if courseID == "" || quizID == "" {
		http.Error(w, "missing courseId or quizId", http.StatusBadRequest)
		return
	}
	id, err := h.identify(r)
	if err != nil {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("ws upgrade failed", zap.Error(err))
		return
	}
	defer conn.Close()

	ctx := auth.WithIdentity(r.Context(), id)
	started, err := h.service.Start(ctx, id, courseID, quizID)
	if err != nil {
		_ = conn.WriteJSON(errorMessage(err))
		return
	}
	defer h.service.AbandonSession(id.UserID, started.ID)

	events, cancel, err := h.service.Subscribe(id.UserID)
	if err != nil {
		_ = conn.WriteJSON(errorMessage(err))
		return
	}
	defer cancel()

	send := make(chan outboundMessage[any], 16)
	closeSignals := make(chan struct{})
	writerDone := make(chan struct{})
	eventsDone := make(chan struct{})

	// single writer; gorilla connections do not support concurrent writes
	go func() {
		defer close(writerDone)
		for msg := range send {
			if msg.Type == closeType {
				deadline := time.Now().Add(time.Second)
				_ = conn.WriteControl(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, "attempt finished"), deadline)
				_ = conn.Close()
				return
			}
			if err := conn.WriteJSON(msg); err != nil {
				h.logger.Debug("ws write error", zap.Error(err))
				return
			}
		}
	}()

	emit := func(msg outboundMessage[any]) {
		select {
		case send <- msg:
		case <-writerDone:
		}
	}

	go func() {
		defer close(eventsDone)
		for {
			select {
			case ev, ok := <-events:
				if !ok {
					// attempt is over; closing the socket ends the read loop
					emit(outboundMessage[any]{Type: closeType})
					return
				}
				if msg, forward := eventMessage(ev); forward {
					select {
					case send <- msg:
					case <-closeSignals:
						return
					case <-writerDone:
						return
					}
				}
			case <-closeSignals:
				return
			}
		}
	}()

	for {
		var inbound inboundMessage
		if err := conn.ReadJSON(&inbound); err != nil {
			break
		}
		if msg, ok := h.handle(r, id.UserID, inbound); ok {
			emit(msg)
		}
	}

	close(closeSignals)
	<-eventsDone
	close(send)
	<-writerDone
}

func (h *WSHandler) handle(r *http.Request, userID string, in inboundMessage) (outboundMessage[any], bool) {
	var (
		snap app.SessionSnapshot
		err  error
	)
	switch in.Type {
	case "select":
		var p selectPayload
		if err := json.Unmarshal(in.Payload, &p); err != nil {
			return outboundMessage[any]{Type: "error", Payload: errorPayload{Code: "bad_request", Message: "invalid select payload"}}, true
		}
		snap, err = h.service.SelectAnswer(userID, p.QuestionIndex, p.OptionIndex)
	case "next":
		snap, err = h.service.Next(userID)
	case "previous":
		snap, err = h.service.Previous(userID)
	case "submit":
		var p submitPayload
		if len(in.Payload) > 0 {
			if err := json.Unmarshal(in.Payload, &p); err != nil {
				return outboundMessage[any]{Type: "error", Payload: errorPayload{Code: "bad_request", Message: "invalid submit payload"}}, true
			}
		}
		_, err = h.service.Submit(r.Context(), userID, p.Confirm)
		var unanswered *app.UnansweredError
		switch {
		case errors.As(err, &unanswered):
			return outboundMessage[any]{Type: "confirmRequired", Payload: confirmPayload{Unanswered: unanswered.Remaining}}, true
		case err == nil, errors.Is(err, domain.ErrResultNotRecorded):
			// the recorded event carries the outcome
			return outboundMessage[any]{}, false
		}
	case "abandon":
		h.service.Abandon(userID)
		return outboundMessage[any]{}, false
	default:
		return outboundMessage[any]{Type: "error", Payload: errorPayload{Code: "bad_request", Message: "unsupported message type"}}, true
	}
	if err != nil {
		return errorMessage(err), true
	}
	return outboundMessage[any]{Type: "state", Payload: snap}, true
}

// eventMessage maps session events to client messages. Answer and cursor
// events are answered directly by the command that caused them.
func eventMessage(ev app.SessionEvent) (outboundMessage[any], bool) {
	switch ev.Type {
	case app.EventStarted:
		return outboundMessage[any]{Type: "started", Payload: ev.Snapshot}, true
	case app.EventTick:
		return outboundMessage[any]{Type: "tick", Payload: ev.Snapshot}, true
	case app.EventAbandoned:
		return outboundMessage[any]{Type: "abandoned", Payload: ev.Snapshot}, true
	case app.EventRecorded:
		payload := completedPayload{Recorded: ev.RecordErr == nil}
		if ev.Result != nil {
			payload.Result = *ev.Result
		}
		if ev.RecordErr != nil {
			payload.Warning = domain.ErrResultNotRecorded.Error()
		}
		return outboundMessage[any]{Type: "completed", Payload: payload}, true
	default:
		return outboundMessage[any]{}, false
	}
}

func errorMessage(err error) outboundMessage[any] {
	return outboundMessage[any]{Type: "error", Payload: errorPayload{Code: errorCode(err), Message: err.Error()}}
}

// identify accepts the token as a query parameter since browsers cannot set
// headers on websocket requests.
func (h *WSHandler) identify(r *http.Request) (auth.Identity, error) {
	raw := r.URL.Query().Get("token")
	if raw == "" {
		var ok bool
		if raw, ok = bearer(r); !ok {
			return auth.Identity{}, auth.ErrNoIdentity
		}
	}
	return h.tokens.Verify(raw)
}
