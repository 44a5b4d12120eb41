// Package dbusx exposes the chat, history and user-identity services on
// the system bus. The daemon owns a well-known name so the bus can start
// it on the first incoming call (bus activation); nothing here is
// pre-warmed.
package dbusx

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/godbus/dbus/v5"
	"github.com/godbus/dbus/v5/introspect"

	"github.com/cmdline-assistant/clad/internal/domain"
	"github.com/cmdline-assistant/clad/internal/metrics"
	"github.com/cmdline-assistant/clad/internal/service"
)

const (
	// BusName is the activatable well-known name.
	BusName = "org.cmdline.Assistant"

	chatPath    = "/org/cmdline/assistant/Chat"
	historyPath = "/org/cmdline/assistant/History"
	userPath    = "/org/cmdline/assistant/User"

	chatInterface    = "org.cmdline.Assistant.Chat"
	historyInterface = "org.cmdline.Assistant.History"
	userInterface    = "org.cmdline.Assistant.User"

	errPrefix = "org.cmdline.Assistant.Error."

	transportBus = "dbus"
)

// Server owns the bus connection and the exported objects.
type Server struct {
	conn       *dbus.Conn
	svc        *service.Service
	onActivity func()
}

// Connect claims BusName on the system bus and exports the service
// objects. It fails when the name is already taken by another instance.
func Connect(svc *service.Service, onActivity func()) (*Server, error) {
	conn, err := dbus.ConnectSystemBus()
	if err != nil {
		return nil, fmt.Errorf("connect system bus: %w", err)
	}

	s := &Server{conn: conn, svc: svc, onActivity: onActivity}

	if err := s.export(); err != nil {
		conn.Close()
		return nil, err
	}

	reply, err := conn.RequestName(BusName, dbus.NameFlagDoNotQueue)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("request bus name: %w", err)
	}
	if reply != dbus.RequestNameReplyPrimaryOwner {
		conn.Close()
		return nil, fmt.Errorf("bus name %s already owned", BusName)
	}

	slog.Info("dbus service ready", "name", BusName)
	return s, nil
}

func (s *Server) export() error {
	chat := &chatObject{s}
	hist := &historyObject{s}
	user := &userObject{s}

	for _, obj := range []struct {
		v     any
		path  dbus.ObjectPath
		iface string
	}{
		{chat, chatPath, chatInterface},
		{hist, historyPath, historyInterface},
		{user, userPath, userInterface},
	} {
		if err := s.conn.Export(obj.v, obj.path, obj.iface); err != nil {
			return fmt.Errorf("export %s: %w", obj.iface, err)
		}

		node := &introspect.Node{
			Name: string(obj.path),
			Interfaces: []introspect.Interface{
				introspect.IntrospectData,
				{Name: obj.iface, Methods: introspect.Methods(obj.v)},
			},
		}
		if err := s.conn.Export(introspect.NewIntrospectable(node), obj.path,
			"org.freedesktop.DBus.Introspectable"); err != nil {
			return fmt.Errorf("export introspection for %s: %w", obj.iface, err)
		}
	}

	return nil
}

func (s *Server) Close() error {
	return s.conn.Close()
}

func (s *Server) touch() {
	if s.onActivity != nil {
		s.onActivity()
	}
}

type chatObject struct{ s *Server }

// AskQuestion runs one chat turn for the given session identity and
// returns the complete answer text. Streaming belongs to the HTTP
// transport; bus callers get whole answers.
func (o *chatObject) AskQuestion(sessionID, question string) (string, *dbus.Error) {
	o.s.touch()
	start := time.Now()

	req := domain.ChatRequest{
		Messages: []domain.Message{{Role: "user", Content: question}},
	}

	result, err := o.s.svc.Ask(context.Background(), sessionID, req, "")
	if err != nil {
		code := domain.ErrorCode(err)
		metrics.RecordRequest("chat", transportBus, code, time.Since(start).Seconds())
		slog.Error("bus chat request failed", "session_id", sessionID, "code", code)
		return "", busError(err)
	}

	metrics.RecordRequest("chat", transportBus, "ok", time.Since(start).Seconds())
	slog.Info("bus chat request completed",
		"session_id", sessionID,
		"cache_hit", result.CacheHit,
		"latency_ms", time.Since(start).Milliseconds(),
	)
	return result.Answer.Text, nil
}

type historyObject struct{ s *Server }

// GetHistory returns the session's turns, most recent first, as a JSON
// array of {question, answer, created_at}.
func (o *historyObject) GetHistory(sessionID string, limit, offset uint32) (string, *dbus.Error) {
	o.s.touch()
	start := time.Now()

	entries, err := o.s.svc.History(context.Background(), sessionID, int(limit), int(offset))
	if err != nil {
		metrics.RecordRequest("history", transportBus, domain.ErrorCode(err), time.Since(start).Seconds())
		return "", busError(err)
	}

	type item struct {
		Question  string    `json:"question"`
		Answer    string    `json:"answer"`
		CreatedAt time.Time `json:"created_at"`
	}
	items := make([]item, 0, len(entries))
	for _, e := range entries {
		items = append(items, item{Question: e.Question, Answer: e.Answer, CreatedAt: e.CreatedAt})
	}

	data, err := json.Marshal(items)
	if err != nil {
		return "", busError(err)
	}

	metrics.RecordRequest("history", transportBus, "ok", time.Since(start).Seconds())
	return string(data), nil
}

// ClearHistory purges every turn of the session.
func (o *historyObject) ClearHistory(sessionID string) *dbus.Error {
	o.s.touch()
	start := time.Now()

	if err := o.s.svc.PurgeHistory(context.Background(), sessionID); err != nil {
		metrics.RecordRequest("history", transportBus, domain.ErrorCode(err), time.Since(start).Seconds())
		return busError(err)
	}

	metrics.RecordRequest("history", transportBus, "ok", time.Since(start).Seconds())
	slog.Info("history purged", "session_id", sessionID)
	return nil
}

type userObject struct{ s *Server }

// GetUserID maps an effective uid to its stable session identity.
func (o *userObject) GetUserID(effectiveUID uint32) (string, *dbus.Error) {
	o.s.touch()
	return o.s.svc.UserID(effectiveUID), nil
}

// busError wraps an error into a named D-Bus error carrying the taxonomy
// code, with a human-readable summary as the body. Callers never see
// transport internals.
func busError(err error) *dbus.Error {
	code := domain.ErrorCode(err)
	return dbus.NewError(errPrefix+camel(code), []any{domain.ErrorSummary(code)})
}

// camel turns snake_case codes into the CamelCase D-Bus error member
// convention.
func camel(code string) string {
	out := make([]byte, 0, len(code))
	upper := true
	for i := 0; i < len(code); i++ {
		c := code[i]
		if c == '_' {
			upper = true
			continue
		}
		if upper && c >= 'a' && c <= 'z' {
			c -= 'a' - 'A'
		}
		upper = false
		out = append(out, c)
	}
	return string(out)
}
