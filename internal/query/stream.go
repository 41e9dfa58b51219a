package query

import (
	"context"
	"net/http"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"go.uber.org/zap"
)

const streamWriteTimeout = 5 * time.Second

// handleStream upgrades to a websocket and pushes the summary view after
// every store change. Client messages are ignored.
func (s *Service) handleStream(w http.ResponseWriter, r *http.Request) {
	c, err := websocket.Accept(w, r, nil)
	if err != nil {
		s.logger.Debug("websocket accept failed", zap.Error(err))
		return
	}
	defer c.CloseNow()

	ctx := c.CloseRead(r.Context())
	updates, cancel := s.store.Subscribe()
	defer cancel()

	if err := s.push(ctx, c); err != nil {
		return
	}
	for {
		select {
		case <-ctx.Done():
			c.Close(websocket.StatusNormalClosure, "")
			return
		case <-updates:
			if err := s.push(ctx, c); err != nil {
				s.logger.Debug("stream closed", zap.Error(err))
				return
			}
		}
	}
}

func (s *Service) push(ctx context.Context, c *websocket.Conn) error {
	ctx, cancel := context.WithTimeout(ctx, streamWriteTimeout)
	defer cancel()
	return wsjson.Write(ctx, c, s.Summary())
}
