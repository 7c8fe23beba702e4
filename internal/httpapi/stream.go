package httpapi

import (
	"context"
	"net/http"
	"sync"

	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"

	"github.com/agentboard/boardfile/internal/board"
)

// streamSink bridges one websocket connection into the controller's push
// fan-out. wsjson writes are serialized because pushes can arrive from the
// watcher goroutine and the read loop at the same time.
type streamSink struct {
	mu   sync.Mutex
	ctx  context.Context
	conn *websocket.Conn
}

func (s *streamSink) PushState(doc board.Document) {
	s.push(board.Push{Type: board.PushState, Payload: doc})
}

func (s *streamSink) PushInfo(text string) {
	s.push(board.Push{Type: board.PushInfo, Payload: text})
}

func (s *streamSink) push(envelope board.Push) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_ = wsjson.Write(s.ctx, s.conn, envelope)
}

// handleStream upgrades to a websocket, registers the connection as a view
// sink, pushes the current state, and then relays incoming operation
// envelopes to the controller until the client goes away.
func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: []string{"*"},
	})
	if err != nil {
		return
	}
	ctx := r.Context()
	sink := &streamSink{ctx: ctx, conn: conn}

	s.controller.RegisterSink(sink)
	defer s.controller.UnregisterSink(sink)
	defer conn.Close(websocket.StatusNormalClosure, "")

	if err := s.controller.Handle(ctx, board.Operation{Type: board.OpRequestState}); err != nil {
		sink.PushInfo("unable to load board: " + err.Error())
	}

	for {
		var op board.Operation
		if err := wsjson.Read(ctx, conn, &op); err != nil {
			return
		}
		if err := s.controller.Handle(ctx, op); err != nil {
			sink.PushInfo("operation failed: " + err.Error())
		}
	}
}
