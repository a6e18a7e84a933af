package natsbridge

import (
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats-server/v2/server"
)

// RandomPort asks the embedded server to pick a free port.
const RandomPort = server.RANDOM_PORT

// Users of an embedded server with authorization enabled.
const (
	BridgeUser = "bridge"
	ClientUser = "client"
)

const defaultMaxPayload = 1024 * 1024

// ServerOptions configures the embedded NATS server.
type ServerOptions struct {
	Port int
	Host string
	Name string

	// ClientPassword enables authorization. Clients then connect as
	// ClientUser and may only issue control requests and watch camera
	// events; only BridgeUser may answer requests or publish events.
	ClientPassword string
	// BridgePassword is generated when authorization is enabled and it is
	// left empty.
	BridgePassword string

	// MaxPayload caps one message in bytes. Zero means 1 MiB.
	MaxPayload int32

	Logger *slog.Logger
}

// Server runs an embedded NATS server for deployments without a broker.
type Server struct {
	ns     *server.Server
	opts   ServerOptions
	logger *slog.Logger
}

// NewServer creates an embedded server. Port 0 means 4222.
func NewServer(opts ServerOptions) *Server {
	if opts.Port == 0 {
		opts.Port = 4222
	}
	if opts.Host == "" {
		opts.Host = "127.0.0.1"
	}
	if opts.Name == "" {
		opts.Name = "camctl"
	}
	if opts.MaxPayload <= 0 {
		opts.MaxPayload = defaultMaxPayload
	}
	if opts.ClientPassword != "" && opts.BridgePassword == "" {
		opts.BridgePassword = uuid.NewString()
	}

	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Server{
		opts:   opts,
		logger: logger.With("component", "nats-server"),
	}
}

// users grants each role the camctl subjects it needs and nothing else.
// Replies go to request inboxes, which the bridge may answer once each.
func (o ServerOptions) users() []*server.User {
	if o.ClientPassword == "" {
		return nil
	}
	return []*server.User{
		{
			Username: BridgeUser,
			Password: o.BridgePassword,
			Permissions: &server.Permissions{
				Publish:   &server.SubjectPermission{Allow: []string{SubjectCamerasPrefix + ".>"}},
				Subscribe: &server.SubjectPermission{Allow: []string{SubjectControlPrefix + ".*"}},
				Response:  &server.ResponsePermission{MaxMsgs: 1},
			},
		},
		{
			Username: ClientUser,
			Password: o.ClientPassword,
			Permissions: &server.Permissions{
				Publish:   &server.SubjectPermission{Allow: []string{SubjectControlPrefix + ".*"}},
				Subscribe: &server.SubjectPermission{Allow: []string{SubjectCamerasPrefix + ".>", "_INBOX.>"}},
			},
		},
	}
}

// Start starts the server and waits for it to accept connections.
func (s *Server) Start() error {
	ns, err := server.NewServer(&server.Options{
		Host:           s.opts.Host,
		Port:           s.opts.Port,
		ServerName:     s.opts.Name,
		NoLog:          true,
		NoSigs:         true,
		MaxControlLine: 4096,
		MaxPayload:     s.opts.MaxPayload,
		Users:          s.opts.users(),
	})
	if err != nil {
		return fmt.Errorf("failed to create NATS server: %w", err)
	}

	go ns.Start()

	if !ns.ReadyForConnections(5 * time.Second) {
		ns.Shutdown()
		return errors.New("NATS server failed to start within 5 seconds")
	}

	s.ns = ns
	s.logger.Info("NATS server started", "url", s.ClientURL(), "authorization", s.opts.ClientPassword != "")
	return nil
}

// Stop shuts the server down and waits for it to finish.
func (s *Server) Stop() {
	if s.ns != nil {
		s.logger.Info("Stopping NATS server")
		s.ns.Shutdown()
		s.ns.WaitForShutdown()
		s.ns = nil
	}
}

// ClientURL returns the address of the server without credentials.
func (s *Server) ClientURL() string {
	if s.ns == nil {
		return fmt.Sprintf("nats://%s:%d", s.opts.Host, s.opts.Port)
	}
	return s.ns.ClientURL()
}

// URL returns the address user connects with, carrying the user's
// credentials when authorization is enabled.
func (s *Server) URL(user string) string {
	base := s.ClientURL()
	var password string
	switch {
	case s.opts.ClientPassword == "":
		return base
	case user == BridgeUser:
		password = s.opts.BridgePassword
	case user == ClientUser:
		password = s.opts.ClientPassword
	default:
		return base
	}
	u, err := url.Parse(base)
	if err != nil {
		return base
	}
	u.User = url.UserPassword(user, password)
	return u.String()
}

// IsRunning returns true if the server is running and accepting connections.
func (s *Server) IsRunning() bool {
	return s.ns != nil && s.ns.Running()
}
