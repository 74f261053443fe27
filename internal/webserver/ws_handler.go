package webserver

import (
	"context"
	"net/http"
	"time"

	"github.com/coder/websocket"

	"github.com/overseer-cli/overseer/internal/debug"
	"github.com/overseer-cli/overseer/internal/hub"
	"github.com/overseer-cli/overseer/internal/proc"
)

const wsWriteTimeout = 15 * time.Second

// handleViewerWebSocket runs one viewer connection: a read loop dispatching
// client commands and a writer goroutine draining the registry's outbound
// queue. A connection may subscribe to any number of sessions.
func (srv *Server) handleViewerWebSocket(w http.ResponseWriter, r *http.Request) {
	ws, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		InsecureSkipVerify: true,
	})
	if err != nil {
		return
	}
	defer ws.CloseNow()

	ctx := r.Context()
	conn := srv.registry.Register()
	defer srv.registry.Unregister(conn)

	writeDone := make(chan struct{})
	go func() {
		defer close(writeDone)
		for data := range conn.Outbound() {
			writeCtx, cancel := context.WithTimeout(ctx, wsWriteTimeout)
			err := ws.Write(writeCtx, websocket.MessageText, data)
			cancel()
			if err != nil {
				return
			}
		}
	}()

	for {
		_, data, err := ws.Read(ctx)
		if err != nil {
			return
		}
		msg, err := hub.DecodeMsg(data)
		if err != nil {
			srv.sendError(ctx, ws, "malformed message: "+err.Error())
			continue
		}
		if err := srv.dispatchViewerMsg(conn, msg); err != nil {
			srv.sendError(ctx, ws, err.Error())
		}
	}
}

// dispatchViewerMsg handles one decoded client command.
func (srv *Server) dispatchViewerMsg(conn *ViewerConn, msg *hub.WireMsg) error {
	switch msg.Type {
	case hub.MsgSubscribe:
		sub, err := hub.DecodeData[hub.WireSubscribe](msg)
		if err != nil {
			return err
		}
		// Attach before hydrating so the snapshot Subscribe emits reaches
		// this connection through the registry.
		srv.registry.Attach(conn, sub.SessionID)
		_, err = srv.hub.Subscribe(hub.SubscribeParams{
			SessionID:         sub.SessionID,
			WorkingDir:        sub.WorkingDir,
			ExternalSessionID: sub.ExternalSessionID,
			IsRunning:         srv.procs.IsRunning(sub.SessionID),
			IsWorking:         srv.hub.IsWorking(sub.SessionID),
			LoadRequestID:     sub.LoadRequestID,
		})
		if err != nil {
			srv.registry.Detach(conn, sub.SessionID)
		}
		return err

	case hub.MsgUserMessage:
		um, err := hub.DecodeData[hub.WireUserMessage](msg)
		if err != nil {
			return err
		}
		_, err = srv.submitMessage(um.SessionID, um.Text, um.Settings)
		return err

	case hub.MsgAnswerRequest:
		ans, err := hub.DecodeData[hub.WireAnswerRequest](msg)
		if err != nil {
			return err
		}
		return srv.procs.Answer(ans.SessionID, ans.RequestID, ans.Behavior, ans.Response)

	case hub.MsgStop:
		stop, err := hub.DecodeData[hub.WireStop](msg)
		if err != nil {
			return err
		}
		return srv.procs.Stop(stop.SessionID)

	case hub.MsgInterrupt:
		stop, err := hub.DecodeData[hub.WireStop](msg)
		if err != nil {
			return err
		}
		return srv.procs.Interrupt(stop.SessionID)

	default:
		debug.LogKV("webserver", "unknown viewer message", "type", msg.Type)
		return nil
	}
}

// submitMessage enqueues a user message and starts or nudges the agent.
// Sessions started over the wire inherit the hub's stored working directory,
// falling back to the server default.
func (srv *Server) submitMessage(sessionID, text string, settings []byte) (int, error) {
	workDir, externalID := srv.hub.SessionMeta(sessionID)
	if workDir == "" {
		workDir = srv.workDir
	}
	// The agent process must outlive the originating request.
	return srv.procs.Submit(context.Background(), proc.StartParams{
		SessionID:         sessionID,
		WorkingDir:        workDir,
		ExternalSessionID: externalID,
	}, text, settings)
}

func (srv *Server) sendError(ctx context.Context, ws *websocket.Conn, message string) {
	data, err := hub.EncodeMsg(hub.MsgError, hub.WireError{Error: message})
	if err != nil {
		return
	}
	writeCtx, cancel := context.WithTimeout(ctx, wsWriteTimeout)
	defer cancel()
	_ = ws.Write(writeCtx, websocket.MessageText, data)
}
