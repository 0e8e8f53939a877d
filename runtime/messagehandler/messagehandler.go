// Package messagehandler wraps peer message handlers with panic
// recovery so one malformed message cannot take down the agent.
package messagehandler

import (
	"context"
	"encoding/json"
	"fmt"
	"runtime/debug"

	"github.com/sirupsen/logrus"
	"go.opencensus.io/trace"

	"github.com/trinnode/Sentinel/api"
)

const noMsgData = "message contains no data"

var log = logrus.WithField("prefix", "message-handler")

// SafelyHandleMessage will recover and log any panic that occurs from the
// function argument.
func SafelyHandleMessage(ctx context.Context, fn func(ctx context.Context, message *api.Envelope) error, msg *api.Envelope) {
	defer HandlePanic(ctx, msg)

	// Fingers crossed that it doesn't panic...
	if err := fn(ctx, msg); err != nil {
		// Report any error on the span, if one exists.
		if ctx != nil {
			if span := trace.FromContext(ctx); span != nil {
				span.SetStatus(trace.Status{
					Code:    trace.StatusCodeInternal,
					Message: err.Error(),
				})
			}
		}
	}
}

// HandlePanic recovers from a panicking message handler, logging the
// offending message without rethrowing.
func HandlePanic(ctx context.Context, msg *api.Envelope) {
	if r := recover(); r != nil {
		printedMsg := noMsgData
		if msg != nil {
			if b, err := json.Marshal(msg); err == nil {
				printedMsg = string(b)
			}
		}
		log.WithFields(logrus.Fields{
			"r":   r,
			"msg": printedMsg,
		}).Error("Panicked when handling p2p message! Recovering...")

		debug.PrintStack()

		if ctx == nil {
			return
		}
		if ctx.Err() != nil {
			log.WithError(ctx.Err()).Error("Context deadline or cancel reached - bailing out")
			return
		}
		if span := trace.FromContext(ctx); span != nil {
			span.SetStatus(trace.Status{
				Code:    trace.StatusCodeInternal,
				Message: fmt.Sprintf("Panic: %v", r),
			})
		}
	}
}
