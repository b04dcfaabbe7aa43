package gate

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/Tyrowin/chatgate/internal/auth"
	"github.com/Tyrowin/chatgate/internal/chat"
	"github.com/Tyrowin/chatgate/internal/metrics"
	"github.com/Tyrowin/chatgate/internal/router"
)

// AnonymousSender replaces the sender of PUBLISH frames from sessions that
// were admitted without a credential.
const AnonymousSender = "anonymous"

// Authenticator verifies a credential string.
type Authenticator interface {
	Authenticate(ctx context.Context, credential string) (*auth.State, error)
}

// Processor transforms an accepted chat message before fan-out.
type Processor interface {
	Process(ctx context.Context, destination string, msg chat.Message) (chat.Message, error)
}

// Publisher fans a wire-ready payload out to a destination's subscribers.
type Publisher interface {
	Publish(ctx context.Context, destination string, payload []byte) error
}

// Registry records which sessions subscribe to which destinations.
type Registry interface {
	Subscribe(destination string, sub router.Subscriber) bool
	Unsubscribe(destination, id string) bool
	UnsubscribeAll(id string) int
}

// Policy decides whether a session may read (SUBSCRIBE) or write (PUBLISH)
// a destination. A nil Policy allows everything.
type Policy interface {
	Authorize(s *Session, kind Kind, destination string) error
}

// Downstream receives frames the gate does not interpret.
type Downstream interface {
	HandleFrame(ctx context.Context, s *Session, f Frame) error
}

// Options are the gate's deployment policy knobs.
type Options struct {
	// AllowAnonymousAccess admits SUBSCRIBE/PUBLISH from sessions that
	// did not authenticate, and OPEN frames without a credential.
	AllowAnonymousAccess bool
	// CredentialHeaderPrefix is stripped from the Authorization header.
	CredentialHeaderPrefix string
}

// Config wires a Gate to its collaborators.
type Config struct {
	Options
	Authenticator Authenticator
	Processor     Processor
	Publisher     Publisher
	Registry      Registry
	Policy        Policy
	Downstream    Downstream
	Logger        *zap.Logger
	Metrics       *metrics.Collector
}

// Gate is the per-frame protocol state machine. It keeps no per-session
// state and is safe for concurrent use across sessions.
type Gate struct {
	opts       Options
	resolver   *auth.TokenResolver
	authn      Authenticator
	processor  Processor
	publisher  Publisher
	registry   Registry
	policy     Policy
	downstream Downstream
	logger     *zap.Logger
	metrics    *metrics.Collector
}

// New validates cfg and returns a Gate.
func New(cfg Config) (*Gate, error) {
	switch {
	case cfg.Authenticator == nil:
		return nil, errors.New("gate: authenticator is required")
	case cfg.Processor == nil:
		return nil, errors.New("gate: processor is required")
	case cfg.Publisher == nil:
		return nil, errors.New("gate: publisher is required")
	case cfg.Registry == nil:
		return nil, errors.New("gate: registry is required")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	resolver := auth.NewTokenResolver(cfg.CredentialHeaderPrefix)
	cfg.CredentialHeaderPrefix = resolver.Prefix()

	return &Gate{
		opts:       cfg.Options,
		resolver:   resolver,
		authn:      cfg.Authenticator,
		processor:  cfg.Processor,
		publisher:  cfg.Publisher,
		registry:   cfg.Registry,
		policy:     cfg.Policy,
		downstream: cfg.Downstream,
		logger:     logger.Named("gate"),
		metrics:    cfg.Metrics,
	}, nil
}

// Options returns the gate's effective options.
func (g *Gate) Options() Options {
	return g.opts
}

// Handle runs one frame of s through the state table. A non-nil error is a
// *Error; when it is Fatal the caller must close the connection. A
// rejection never changes s.
func (g *Gate) Handle(ctx context.Context, s *Session, f Frame) error {
	kind := f.Kind()

	var err error
	switch {
	case s.closed && kind == KindClose:
		return nil
	case s.closed:
		err = ErrSessionClosed
	case kind == KindOpen:
		err = g.open(ctx, s, f)
	case kind == KindSubscribe:
		err = g.subscribe(s, f)
	case kind == KindPublish:
		err = g.publish(ctx, s, f)
	case kind == KindClose:
		g.close(s)
	default:
		err = g.passThrough(ctx, s, f)
	}

	if err != nil {
		g.metrics.Frame(kind.String(), metrics.ResultRejected)
		g.logger.Warn("frame rejected",
			zap.String("session", s.id),
			zap.String("kind", kind.String()),
			zap.String("principal", s.Principal()),
			zap.String("destination", f.Destination),
			zap.Error(err))
		return &Error{Kind: kind, Err: err}
	}
	if kind == KindOther {
		g.metrics.Frame(kind.String(), metrics.ResultPassed)
	} else {
		g.metrics.Frame(kind.String(), metrics.ResultAccepted)
	}
	return nil
}

func (g *Gate) open(ctx context.Context, s *Session, f Frame) error {
	if s.auth != nil {
		return ErrAlreadyAuthenticated
	}

	token, ok := g.resolver.Resolve(f.Headers)
	if !ok || strings.TrimSpace(token) == "" {
		if g.opts.AllowAnonymousAccess {
			s.opened = true
			g.logger.Info("session opened anonymously", zap.String("session", s.id))
			return nil
		}
		return ErrMissingCredential
	}

	state, err := g.authn.Authenticate(ctx, token)
	if err != nil {
		if !errors.Is(err, ErrInvalidCredential) {
			err = fmt.Errorf("%w: %w", ErrInvalidCredential, err)
		}
		return err
	}
	if err := s.attach(state); err != nil {
		return err
	}

	g.logger.Info("session authenticated",
		zap.String("session", s.id),
		zap.String("principal", state.Principal()),
		zap.Strings("capabilities", state.Capabilities()))
	return nil
}

// admit applies the authentication, destination, and policy checks shared
// by SUBSCRIBE and PUBLISH.
func (g *Gate) admit(s *Session, kind Kind, destination string) error {
	if s.auth == nil && !g.opts.AllowAnonymousAccess {
		return ErrUnauthenticated
	}
	if strings.TrimSpace(destination) == "" {
		return ErrMissingDestination
	}
	if g.policy != nil {
		if err := g.policy.Authorize(s, kind, destination); err != nil {
			return fmt.Errorf("%w: %w", ErrForbidden, err)
		}
	}
	return nil
}

func (g *Gate) subscribe(s *Session, f Frame) error {
	if err := g.admit(s, KindSubscribe, f.Destination); err != nil {
		return err
	}

	subID := f.Header(HeaderID)
	if subID == "" {
		subID = f.Destination
	}
	if previous, ok := s.subs[subID]; ok && previous != f.Destination && !s.subscribedTo(previous, subID) {
		g.registry.Unsubscribe(previous, s.id)
	}
	s.subs[subID] = f.Destination
	g.registry.Subscribe(f.Destination, s)

	g.logger.Debug("subscribed",
		zap.String("session", s.id),
		zap.String("principal", s.Principal()),
		zap.String("destination", f.Destination),
		zap.String("subscription", subID))
	return nil
}

func (g *Gate) publish(ctx context.Context, s *Session, f Frame) error {
	if err := g.admit(s, KindPublish, f.Destination); err != nil {
		return err
	}

	var msg chat.Message
	if len(f.Body) > 0 {
		if err := json.Unmarshal(f.Body, &msg); err != nil {
			return fmt.Errorf("%w: %w", ErrProcessingFailure, err)
		}
	}
	msg.Sender = AnonymousSender
	if s.auth != nil {
		msg.Sender = s.auth.Principal()
	}

	processed, err := g.processor.Process(ctx, f.Destination, msg)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrProcessingFailure, err)
	}
	body, err := json.Marshal(processed)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrProcessingFailure, err)
	}
	payload, err := MessageFrame(f.Destination, body).Encode()
	if err != nil {
		return fmt.Errorf("%w: %w", ErrProcessingFailure, err)
	}

	if err := g.publisher.Publish(ctx, f.Destination, payload); err != nil {
		return fmt.Errorf("%w: %w", ErrRouteFailure, err)
	}
	return nil
}

func (g *Gate) close(s *Session) {
	removed := g.registry.UnsubscribeAll(s.id)
	principal := s.Principal()
	s.release()
	g.logger.Info("session closed",
		zap.String("session", s.id),
		zap.String("principal", principal),
		zap.Int("subscriptions", removed))
}

func (g *Gate) passThrough(ctx context.Context, s *Session, f Frame) error {
	if g.downstream == nil {
		g.logger.Debug("frame passed through",
			zap.String("session", s.id),
			zap.String("command", f.Command))
		return nil
	}
	return g.downstream.HandleFrame(ctx, s, f)
}

// Unsubscribe drops the subscription named by f's id header, or by its
// destination when no id is given, and reports whether one existed.
func (g *Gate) Unsubscribe(s *Session, f Frame) bool {
	subID := f.Header(HeaderID)
	if subID == "" {
		subID = f.Destination
	}
	destination, ok := s.subs[subID]
	if !ok {
		return false
	}
	delete(s.subs, subID)
	if !s.subscribedTo(destination, subID) {
		g.registry.Unsubscribe(destination, s.id)
	}
	return true
}
