package reverb

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"

	"github.com/gorilla/websocket"
)

// FrameSource yields inbound frames. *websocket.Conn satisfies it; control
// frames are consumed by the connection and a close frame surfaces as an error.
type FrameSource interface {
	ReadMessage() (messageType int, p []byte, err error)
}

// DecodeErrorHandler observes frames the dispatch loop dropped.
type DecodeErrorHandler func(frame []byte, err error)

// dispatcher runs the gateway state machine: await a frame, decode it,
// dispatch it, repeat until the source fails.
type dispatcher struct {
	bot           Bot
	logger        *Logger
	onDecodeError DecodeErrorHandler
	debug         bool
	// busy, when set, is raised for the duration of each Bot.Dispatch call.
	busy *atomic.Bool
}

// run blocks until src returns an error or ctx is done. A clean close by
// either side returns nil.
func (d *dispatcher) run(ctx context.Context, src FrameSource) error {
	for {
		if err := ctx.Err(); err != nil {
			return nil
		}

		messageType, frame, err := src.ReadMessage()
		if err != nil {
			if ctx.Err() != nil || isNormalClose(err) {
				d.logger.WithError(err).Debug("Frame stream closed")
				return nil
			}
			return err
		}

		if messageType != websocket.TextMessage {
			d.logger.WithField("message_type", messageType).WithField("size", len(frame)).
				Debug("Skipping non-text frame")
			continue
		}

		d.handleFrame(frame)
	}
}

func (d *dispatcher) handleFrame(frame []byte) {
	if d.debug {
		d.logger.WithField("frame", string(frame)).Debug("Received frame")
	}

	n, err := DecodeFrame(frame)
	if err != nil {
		var rErr *Error
		if errors.As(err, &rErr) {
			d.logger.WithField("frame_size", len(frame)).LogError(rErr)
		} else {
			d.logger.WithError(err).Error("Failed to decode frame")
		}
		if d.onDecodeError != nil {
			d.onDecodeError(frame, err)
		}
		return
	}

	d.logger.LogNotification(n)
	if d.bot == nil {
		d.logger.WithField("op", string(n.Op())).Debug("No bot attached, dropping notification")
		return
	}
	d.dispatch(NewEvent(d.bot, n))
}

func (d *dispatcher) dispatch(ev Event) {
	if d.busy != nil {
		d.busy.Store(true)
		defer d.busy.Store(false)
	}
	defer func() {
		if r := recover(); r != nil {
			d.logger.WithField("event", EventName(ev)).
				WithError(fmt.Errorf("panic: %v", r)).
				Error("Bot dispatch panicked")
		}
	}()
	d.bot.Dispatch(ev)
}

func isNormalClose(err error) bool {
	return websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway)
}
