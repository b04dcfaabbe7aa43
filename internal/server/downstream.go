package server

import (
	"context"
	"errors"
	"strings"

	"go.uber.org/zap"

	"github.com/Tyrowin/chatgate/internal/gate"
)

var errUnknownSubscription = errors.New("unknown subscription")

// HandleFrame receives the frames the gate passes through unchanged. Only
// UNSUBSCRIBE has an effect; acknowledgements and transactions are accepted
// and ignored.
func (s *Server) HandleFrame(_ context.Context, sess *gate.Session, f gate.Frame) error {
	if !strings.EqualFold(strings.TrimSpace(f.Command), gate.CommandUnsubscribe) {
		s.logger.Debug("ignoring frame",
			zap.String("session", sess.ID()),
			zap.String("command", f.Command))
		return nil
	}

	if !s.gate.Unsubscribe(sess, f) {
		return errUnknownSubscription
	}
	s.logger.Debug("unsubscribed",
		zap.String("session", sess.ID()),
		zap.String("id", f.Header(gate.HeaderID)))
	return nil
}
