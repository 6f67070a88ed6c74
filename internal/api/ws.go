package api

import (
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"evrptw/internal/model"
	"evrptw/internal/opt"
)

var upgrader = websocket.Upgrader{CheckOrigin: func(_ *http.Request) bool { return true }}

const (
	wsWriteWait  = 10 * time.Second
	wsPongWait   = 60 * time.Second
	wsPingPeriod = 20 * time.Second
)

// RunStreamHandler handles GET /v1/runs/{id}/ws. The stream opens with the
// latest known state and closes after the terminal event.
func (s *Server) RunStreamHandler(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	// subscribe before reading the run so a terminal event published in between is not lost
	ch := s.Broker.Subscribe(id)
	defer s.Broker.Unsubscribe(id, ch)
	run, err := s.Store.GetRun(r.Context(), id)
	if err != nil {
		writeError(w, r, "Get run failed", err)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer func() { _ = conn.Close() }()

	write := func(v any) error {
		_ = conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
		return conn.WriteJSON(v)
	}

	if run.Status.Done() {
		ev := model.RunEvent{Type: model.EventRunCompleted, RunID: id, TS: time.Now().UTC(), Data: run}
		if run.Status == model.RunFailed {
			ev.Type = model.EventRunFailed
		}
		_ = write(ev)
		closeNormal(conn)
		return
	}
	if p, ok := opt.GetProgress(id); ok {
		if err := write(model.RunEvent{Type: model.EventRunProgress, RunID: id, TS: time.Now().UTC(), Data: p}); err != nil {
			return
		}
	}

	// read loop: only control frames are expected; it ends when the client goes away
	gone := make(chan struct{})
	conn.SetReadLimit(1 << 10)
	_ = conn.SetReadDeadline(time.Now().Add(wsPongWait))
	conn.SetPongHandler(func(string) error { return conn.SetReadDeadline(time.Now().Add(wsPongWait)) })
	go func() {
		defer close(gone)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ticker := time.NewTicker(wsPingPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-gone:
			return
		case <-ticker.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(wsWriteWait)); err != nil {
				return
			}
		case ev, ok := <-ch:
			if !ok {
				return
			}
			if err := write(ev); err != nil {
				return
			}
			if ev.Type == model.EventRunCompleted || ev.Type == model.EventRunFailed {
				closeNormal(conn)
				return
			}
		}
	}
}

func closeNormal(conn *websocket.Conn) {
	msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "run finished")
	_ = conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(wsWriteWait))
}
