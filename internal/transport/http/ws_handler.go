package http

import (
	"encoding/json"
	"log"
	"net/http"

	"github.com/gorilla/websocket"

	"lms-quiz-engine/internal/app"
)

// WSHandler exposes a lesson session over a websocket: the UI sends quiz
// actions and receives state snapshots, notifications, and restart-or-review
// prompts. The action set is the session's only mutation surface.
type WSHandler struct {
	engine   *app.Engine
	upgrader websocket.Upgrader
}

func NewWSHandler(engine *app.Engine) *WSHandler {
	return &WSHandler{
		engine: engine,
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

type actionPayload struct {
	QuizID     string `json:"quizId"`
	QuestionID string `json:"questionId,omitempty"`
	Option     string `json:"option,omitempty"`
}

type outboundMessage[T any] struct {
	Type    string `json:"type"`
	Payload T      `json:"payload"`
}

type errorPayload struct {
	Message string `json:"message"`
}

type choicePayload struct {
	QuizID string `json:"quizId"`
}

// ServeWS upgrades the request and binds the connection to the learner's
// lesson session.
func (h *WSHandler) ServeWS(w http.ResponseWriter, r *http.Request) {
	lessonID := r.URL.Query().Get("lessonId")
	learnerID := r.URL.Query().Get("learnerId")
	if lessonID == "" || learnerID == "" {
		http.Error(w, "missing lessonId or learnerId", http.StatusBadRequest)
		return
	}

	session, err := h.engine.Open(r.Context(), learnerID, lessonID)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadGateway)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.engine.Release(session)
		log.Printf("ws upgrade failed: %v", err)
		return
	}
	defer conn.Close()
	defer h.engine.Release(session)

	events, cancel := session.State.Subscribe()
	defer cancel()

	send := make(chan outboundMessage[any], 16)
	closeSignals := make(chan struct{})
	writerDone := make(chan struct{})
	eventsDone := make(chan struct{})

	go func() {
		defer close(writerDone)
		for msg := range send {
			if err := conn.WriteJSON(msg); err != nil {
				log.Printf("ws write error: %v", err)
				return
			}
		}
	}()

	go func() {
		defer close(eventsDone)
		for {
			select {
			case ev, ok := <-events:
				if !ok {
					return
				}
				msg, ok := outboundFor(ev)
				if !ok {
					continue
				}
				select {
				case send <- msg:
				case <-writerDone:
					return
				case <-closeSignals:
					return
				}
			case <-closeSignals:
				return
			}
		}
	}()

	reply := replyFunc(send, writerDone)

	for {
		var inbound inboundMessage
		if err := conn.ReadJSON(&inbound); err != nil {
			break
		}
		h.dispatch(r, session, reply, inbound)
	}

	close(closeSignals)
	<-eventsDone
	close(send)
	<-writerDone
}

// replyFunc wraps send for the read loop. The writer can die on a write error
// while the connection stays readable; once it stops draining send, a full
// buffer would wedge the read loop, so replies bail out when the writer is
// gone.
func replyFunc(send chan<- outboundMessage[any], writerDone <-chan struct{}) func(outboundMessage[any]) {
	return func(msg outboundMessage[any]) {
		select {
		case send <- msg:
		case <-writerDone:
		}
	}
}

func (h *WSHandler) dispatch(r *http.Request, session *app.Session, reply func(outboundMessage[any]), inbound inboundMessage) {
	var payload actionPayload
	if len(inbound.Payload) > 0 {
		if err := json.Unmarshal(inbound.Payload, &payload); err != nil {
			reply(outboundMessage[any]{Type: "error", Payload: errorPayload{Message: "invalid action payload"}})
			return
		}
	}
	if payload.QuizID == "" {
		reply(outboundMessage[any]{Type: "error", Payload: errorPayload{Message: "quizId is required"}})
		return
	}

	ctx := r.Context()
	ctrl := session.Controller
	var err error
	switch inbound.Type {
	case "start":
		err = ctrl.Start(ctx, payload.QuizID)
	case "answer":
		err = ctrl.Answer(payload.QuizID, payload.QuestionID, payload.Option)
	case "submit":
		err = ctrl.Submit(ctx, payload.QuizID)
	case "retry":
		err = ctrl.Retry(ctx, payload.QuizID)
	case "startOrContinue":
		_, err = ctrl.StartOrContinue(ctx, payload.QuizID)
	case "viewReview":
		err = ctrl.ViewReview(payload.QuizID)
	case "expand":
		ctrl.Expand(payload.QuizID)
	case "collapse":
		ctrl.Collapse(payload.QuizID)
	default:
		reply(outboundMessage[any]{Type: "error", Payload: errorPayload{Message: "unsupported message type"}})
		return
	}
	if err != nil {
		// Learner-facing feedback already went out as a notice; this echo is
		// for programmatic clients correlating requests.
		reply(outboundMessage[any]{Type: "error", Payload: errorPayload{Message: err.Error()}})
	}
}

func outboundFor(ev app.Event) (outboundMessage[any], bool) {
	switch {
	case ev.State != nil:
		return outboundMessage[any]{Type: "state", Payload: ev.State}, true
	case ev.Notice != nil:
		return outboundMessage[any]{Type: "notice", Payload: ev.Notice}, true
	case ev.Choice != "":
		return outboundMessage[any]{Type: "choice", Payload: choicePayload{QuizID: ev.Choice}}, true
	default:
		return outboundMessage[any]{}, false
	}
}
