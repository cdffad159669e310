package rpc

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"nhooyr.io/websocket"

	"github.com/propsproject/props-protocol-sub000/core"
)

const (
	wsWriteTimeout = 10 * time.Second
	wsBuffer       = 128
)

// handleEventsWS streams committed receipts. The optional "types" query
// parameter is a comma separated list of event type prefixes; receipts with
// no matching event are skipped and the others are trimmed to the matches.
func (s *Server) handleEventsWS(w http.ResponseWriter, r *http.Request) {
	filter := parseTypeFilter(r.URL.Query().Get("types"))
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{OriginPatterns: []string{"*"}})
	if err != nil {
		return
	}
	defer conn.Close(websocket.StatusNormalClosure, "stream closed")

	ctx := conn.CloseRead(r.Context())
	receipts, cancel := s.node.Subscribe(wsBuffer)
	defer cancel()

	if err := streamReceipts(ctx, conn, receipts, filter); err != nil {
		if websocket.CloseStatus(err) == -1 && ctx.Err() == nil {
			s.logger.Warn("event stream failed", "error", err)
			_ = conn.Close(websocket.StatusInternalError, "stream error")
		}
	}
}

func streamReceipts(ctx context.Context, conn *websocket.Conn, receipts <-chan *core.Receipt, filter []string) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case receipt, ok := <-receipts:
			if !ok {
				return nil
			}
			trimmed := applyTypeFilter(receipt, filter)
			if trimmed == nil {
				continue
			}
			if err := writeReceipt(ctx, conn, trimmed); err != nil {
				return err
			}
		}
	}
}

func writeReceipt(ctx context.Context, conn *websocket.Conn, receipt *core.Receipt) error {
	data, err := json.Marshal(receipt)
	if err != nil {
		return err
	}
	writeCtx, cancel := context.WithTimeout(ctx, wsWriteTimeout)
	defer cancel()
	return conn.Write(writeCtx, websocket.MessageText, data)
}

func parseTypeFilter(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func applyTypeFilter(receipt *core.Receipt, filter []string) *core.Receipt {
	if len(filter) == 0 {
		return receipt
	}
	out := *receipt
	out.Events = nil
	for _, evt := range receipt.Events {
		for _, prefix := range filter {
			if strings.HasPrefix(evt.Type, prefix) {
				out.Events = append(out.Events, evt)
				break
			}
		}
	}
	if len(out.Events) == 0 {
		return nil
	}
	return &out
}
