package market

import (
	"context"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"github.com/zeromicro/go-zero/core/logx"

	"cryptodash-api/internal/svc"
	"cryptodash-api/internal/types"
)

const (
	streamWriteWait    = 10 * time.Second
	streamPongWait     = 60 * time.Second
	streamPingInterval = streamPongWait * 9 / 10
	streamReadLimit    = 4096
)

type StreamLogic struct {
	logx.Logger
	ctx    context.Context
	svcCtx *svc.ServiceContext
}

func NewStreamLogic(ctx context.Context, svcCtx *svc.ServiceContext) *StreamLogic {
	return &StreamLogic{
		Logger: logx.WithContext(ctx),
		ctx:    ctx,
		svcCtx: svcCtx,
	}
}

// Stream forwards hub updates and notices to conn until the client goes away
// or the request context ends. An empty key subscribes to every chart.
func (l *StreamLogic) Stream(conn *websocket.Conn, req *types.StreamRequest) error {
	defer conn.Close()

	sub := l.svcCtx.Hub.Subscribe(strings.ToLower(strings.TrimSpace(req.Key)))
	defer sub.Cancel()
	l.Infof("stream subscriber=%s key=%q connected", sub.ID, sub.Filter)

	gone := make(chan struct{})
	go func() {
		defer close(gone)
		conn.SetReadLimit(streamReadLimit)
		_ = conn.SetReadDeadline(time.Now().Add(streamPongWait))
		conn.SetPongHandler(func(string) error {
			return conn.SetReadDeadline(time.Now().Add(streamPongWait))
		})
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ticker := time.NewTicker(streamPingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-l.ctx.Done():
			_ = conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseGoingAway, ""),
				time.Now().Add(time.Second))
			return nil
		case <-gone:
			l.Infof("stream subscriber=%s disconnected", sub.ID)
			return nil
		case u, ok := <-sub.Updates:
			if !ok {
				return nil
			}
			if err := l.write(conn, updateEvent(u)); err != nil {
				return err
			}
		case n, ok := <-sub.Notices:
			if !ok {
				return nil
			}
			if err := l.write(conn, noticeEvent(n)); err != nil {
				return err
			}
		case <-ticker.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(streamWriteWait)); err != nil {
				return err
			}
		}
	}
}

func (l *StreamLogic) write(conn *websocket.Conn, ev types.StreamEvent) error {
	_ = conn.SetWriteDeadline(time.Now().Add(streamWriteWait))
	return conn.WriteJSON(ev)
}
