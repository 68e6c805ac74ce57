package service

import (
	"context"
	"net/http"

	"dispatch-server/internal/protocol"
	"dispatch-server/internal/transport"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// WSServer upgrades HTTP requests to websocket connections and serves
// them like TCP ones. The client_name and client_version query parameters
// become connection meta.
type WSServer struct {
	ctx      context.Context
	svc      *Server
	upgrader websocket.Upgrader
	useJSON  bool
	logger   *zap.Logger
}

func NewWSServer(ctx context.Context, svc *Server, useJSON bool) *WSServer {
	return &WSServer{
		ctx: ctx,
		svc: svc,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
		useJSON: useJSON,
		logger:  svc.Logger(),
	}
}

func (w *WSServer) ServeHTTP(rw http.ResponseWriter, r *http.Request) {
	ws, err := w.upgrader.Upgrade(rw, r, nil)
	if err != nil {
		w.logger.Warn("websocket upgrade failed",
			zap.String("addr", r.RemoteAddr),
			zap.Error(err),
		)
		return
	}
	conn := transport.NewWSConn(ws, w.useJSON)
	stop := context.AfterFunc(w.ctx, func() { _ = conn.Close() })
	defer stop()

	env := ConnContext(w.ctx, conn.RemoteAddr())
	if meta := requestMeta(r); len(meta) > 0 {
		env.Set(KeyMeta, meta)
	}
	if err := w.svc.Serve(w.ctx, conn, env); err != nil {
		w.logger.Error("connection closed on error",
			zap.String("addr", r.RemoteAddr),
			zap.Error(err),
		)
	}
}

func requestMeta(r *http.Request) protocol.Meta {
	meta := protocol.Meta{}
	q := r.URL.Query()
	for _, key := range []string{"client_name", "client_version"} {
		if v := q.Get(key); v != "" {
			meta[key] = v
		}
	}
	return meta
}
