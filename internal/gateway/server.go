package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"reflect"
	"runtime/debug"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/incubator-platform/support-chat/internal/auth"
	"github.com/incubator-platform/support-chat/internal/errs"
	"github.com/incubator-platform/support-chat/internal/model"
	"github.com/incubator-platform/support-chat/internal/service"
)

type handlerFunc func(ctx context.Context, c *Client, req Request) (any, error)

type Option func(*Server)

// WithAllowedOrigins restricts upgrades to the given origins; empty allows all.
func WithAllowedOrigins(origins []string) Option {
	return func(s *Server) { s.origins = origins }
}

func WithLogger(l *zap.Logger) Option { return func(s *Server) { s.log = l } }

func WithRequestTimeout(d time.Duration) Option {
	return func(s *Server) { s.timeout = d }
}

func WithSendBuffer(n int) Option { return func(s *Server) { s.buffer = n } }

// Server upgrades authenticated HTTP requests to sockets and serves the
// support RPCs over them.
type Server struct {
	svc      service.SupportChat
	verifier auth.Verifier
	hub      *Hub
	validate *validator.Validate
	upgrader websocket.Upgrader
	handlers map[string]handlerFunc
	origins  []string
	timeout  time.Duration
	buffer   int
	log      *zap.Logger
}

func NewServer(svc service.SupportChat, verifier auth.Verifier, hub *Hub, opts ...Option) *Server {
	s := &Server{
		svc:      svc,
		verifier: verifier,
		hub:      hub,
		validate: newValidator(),
		timeout:  10 * time.Second,
		buffer:   sendBuffer,
		log:      zap.NewNop(),
	}
	for _, o := range opts {
		o(s)
	}
	s.upgrader = websocket.Upgrader{
		ReadBufferSize:  4096,
		WriteBufferSize: 4096,
		CheckOrigin:     s.checkOrigin,
	}
	s.handlers = map[string]handlerFunc{
		RPCCreateTicket:       s.createTicket,
		RPCSendMessage:        s.sendMessage,
		RPCAssignCoach:        s.assignCoach,
		RPCRequestHumanCoach:  s.requestHumanCoach,
		RPCMarkMessagesRead:   s.markMessagesRead,
		RPCCoachTyping:        s.coachTyping,
		RPCGetOnlineCoaches:   s.getOnlineCoaches,
		RPCCloseTicket:        s.closeTicket,
		RPCJoinTicket:         s.joinTicket,
		RPCGetMessages:        s.getMessages,
		RPCUpdateTicketStatus: s.updateTicketStatus,
	}
	return s
}

func (s *Server) Hub() *Hub { return s.hub }

// Handle is the gin entry point for the socket route.
func (s *Server) Handle(c *gin.Context) { s.ServeHTTP(c.Writer, c.Request) }

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	id, err := s.verifier.Verify(r.Context(), auth.TokenFromRequest(r))
	if err != nil {
		status := http.StatusUnauthorized
		if !auth.IsUnauthenticated(err) {
			status = http.StatusServiceUnavailable
			s.log.Error("token verification failed", zap.Error(err))
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_ = json.NewEncoder(w).Encode(map[string]string{"error": "unauthorized"})
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Warn("upgrade failed", zap.String("user_id", id.UserID), zap.Error(err))
		return
	}
	c := newClient(conn, id, s.buffer, s.log)
	go c.writePump()

	// The request context ends with the handler; requests keep its values only.
	ctx := context.WithoutCancel(r.Context())
	s.connect(ctx, c)
	c.readPump(func(req Request) { s.dispatch(ctx, c, req) })
	s.disconnect(c)
	c.Close("bye")
}

func (s *Server) checkOrigin(r *http.Request) bool {
	if len(s.origins) == 0 {
		return true
	}
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	u, err := url.Parse(origin)
	if err != nil {
		return false
	}
	for _, o := range s.origins {
		if o == "*" || strings.EqualFold(o, origin) || strings.EqualFold(o, u.Host) {
			return true
		}
	}
	return false
}

func (s *Server) connect(ctx context.Context, c *Client) {
	id := c.Identity()
	if prev := s.hub.Register(c); prev != nil {
		c.log.Info("replacing previous connection", zap.String("prev_conn_id", prev.ID()))
		prev.Close("replaced by a newer connection")
	}
	if id.IsCoach() {
		s.hub.Broadcast(Frame{Type: EventCoachStatusChanged, Data: CoachStatusEvent{CoachID: id.UserID, Online: true}}, nil)
	}

	tickets, err := s.ownTickets(ctx, id)
	if err != nil {
		c.log.Error("load tickets on connect", zap.Error(err))
		tickets = []model.Ticket{}
	}
	for i := range tickets {
		s.hub.Join(c, tickets[i].ID)
	}
	c.Send(Frame{Type: EventConnected, Data: ConnectedEvent{UserID: id.UserID, Role: string(id.Role), Tickets: tickets}})

	if !id.IsCoach() {
		coaches, err := s.onlineCoaches(ctx)
		if err != nil {
			c.log.Warn("load online coaches", zap.Error(err))
		} else {
			c.Send(Frame{Type: EventOnlineCoaches, Data: OnlineCoachesEvent{Coaches: coaches}})
		}
	}
	c.log.Info("client connected", zap.Int("rooms", len(tickets)))
}

func (s *Server) ownTickets(ctx context.Context, id auth.Identity) ([]model.Ticket, error) {
	switch id.Role {
	case auth.RoleCoach:
		return s.svc.GetCoachTickets(ctx, id.UserID)
	case auth.RoleUser:
		return s.svc.GetUserTickets(ctx, id.UserID)
	}
	return []model.Ticket{}, nil
}

func (s *Server) disconnect(c *Client) {
	id := c.Identity()
	rooms, current := s.hub.Unregister(c)
	if !current {
		c.log.Info("replaced connection closed")
		return
	}
	for _, ticketID := range rooms {
		s.hub.BroadcastRoom(ticketID, Frame{Type: EventUserLeft, Data: UserLeftEvent{TicketID: ticketID, UserID: id.UserID}}, nil)
	}
	if id.IsCoach() {
		s.hub.Broadcast(Frame{Type: EventCoachStatusChanged, Data: CoachStatusEvent{CoachID: id.UserID, Online: false}}, nil)
	}
	c.log.Info("client disconnected")
}

// dispatch runs one request. Failures go back to the caller only, as an
// error event and a failed reply; the socket stays open.
func (s *Server) dispatch(parent context.Context, c *Client, req Request) {
	defer func() {
		if r := recover(); r != nil {
			c.log.Error("handler panic", zap.String("request", req.Type), zap.Any("panic", r), zap.ByteString("stack", debug.Stack()))
			s.fail(c, req, errors.New("internal error"))
		}
	}()

	h, found := s.handlers[req.Type]
	if !found {
		s.fail(c, req, errs.Invalid("unknown request type %q", req.Type))
		return
	}
	ctx, cancel := context.WithTimeout(parent, s.timeout)
	defer cancel()

	res, err := h(ctx, c, req)
	if err != nil {
		s.fail(c, req, err)
		return
	}
	if res != nil {
		c.Send(Frame{ID: req.ID, Type: req.Type, Data: res})
	}
}

func (s *Server) fail(c *Client, req Request, err error) {
	msg := clientMessage(err)
	if errs.IsValidation(err) || errs.IsNotFound(err) || errors.Is(err, errs.ErrForbidden) || errors.Is(err, errs.ErrTicketClosed) {
		c.log.Info("request rejected", zap.String("request", req.Type), zap.Error(err))
	} else {
		c.log.Error("request failed", zap.String("request", req.Type), zap.Error(err))
	}
	c.Send(Frame{Type: EventError, Data: ErrorEvent{RequestID: req.ID, Request: req.Type, Message: msg}})
	c.Send(Frame{ID: req.ID, Type: req.Type, Data: Result{Success: false, Error: msg}})
}

// clientMessage hides internal errors from clients.
func clientMessage(err error) string {
	switch {
	case errs.IsValidation(err):
		return err.Error()
	case errors.Is(err, errs.ErrTicketNotFound):
		return errs.ErrTicketNotFound.Error()
	case errors.Is(err, errs.ErrTicketClosed):
		return errs.ErrTicketClosed.Error()
	case errors.Is(err, errs.ErrForbidden):
		return errs.ErrForbidden.Error()
	case errors.Is(err, errs.ErrNoCoachAvailable):
		return errs.ErrNoCoachAvailable.Error()
	case errors.Is(err, errs.ErrInvalidStatus):
		return errs.ErrInvalidStatus.Error()
	case errors.Is(err, context.DeadlineExceeded):
		return "request timed out"
	}
	return "internal error"
}

// newValidator reports fields by their JSON names.
func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// decode unmarshals and validates a request payload.
func decode[T any](s *Server, req Request) (T, error) {
	var v T
	if len(req.Data) == 0 {
		return v, errs.Invalid("missing data for %s", req.Type)
	}
	if err := json.Unmarshal(req.Data, &v); err != nil {
		return v, errs.Invalid("invalid data for %s: %v", req.Type, err)
	}
	if err := s.validate.Struct(v); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			return v, errs.Invalid("invalid %s: field %s failed %q", req.Type, verrs[0].Field(), verrs[0].Tag())
		}
		return v, errs.Invalid("invalid %s: %v", req.Type, err)
	}
	return v, nil
}

// BroadcastTicket pushes a ticket change made outside a socket (REST) to
// its room.
func (s *Server) BroadcastTicket(t *model.Ticket) {
	ev := EventTicketStatusChanged
	if t.IsClosed() {
		ev = EventTicketClosed
	}
	s.hub.BroadcastRoom(t.ID, Frame{Type: ev, Data: TicketEvent{TicketID: t.ID, Ticket: t}}, nil)
}
