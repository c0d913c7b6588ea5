// Package rpc provides Unix socket IPC between the robot node and the
// status CLI. It is local tooling only, never a peer-facing surface.
package rpc

import (
	"errors"
	"fmt"
	"net"
	netrpc "net/rpc"
	"os"
	"sync"

	"github.com/rs/zerolog"

	"impulse/internal/aris"
	"impulse/internal/peerstore"
)

// RobotStatus is the node summary returned by Service.Status.
type RobotStatus struct {
	Name       string
	UUID       string
	Address    string
	Interface  string
	Protocol   string
	Capability int32
	Tokens     int
	PeerCount  int
}

// Service exposes the running robot over the socket.
type Service struct {
	robot *aris.Robot
	store *peerstore.Store
	iface interfaceInfo
	log   zerolog.Logger
}

// interfaceInfo is the slice of the network interface the status surface
// needs; satisfied by every netif.Interface.
type interfaceInfo interface {
	Address() string
	Name() string
}

// StatusArgs is the request for Status.
type StatusArgs struct{}

// StatusReply is the response for Status.
type StatusReply struct {
	Status RobotStatus
}

// ListPeersArgs is the request for ListPeers.
type ListPeersArgs struct{}

// ListPeersReply is the response for ListPeers.
type ListPeersReply struct {
	Peers []peerstore.PeerRecord
}

// Status returns a snapshot of the robot's identity and discovery state.
func (s *Service) Status(args *StatusArgs, reply *StatusReply) error {
	reply.Status = RobotStatus{
		Name:       s.robot.Name(),
		UUID:       s.robot.UUID(),
		Address:    s.iface.Address(),
		Interface:  s.iface.Name(),
		Protocol:   s.robot.Protocol().String(),
		Capability: s.robot.Capability(),
		Tokens:     s.robot.Tokens(),
		PeerCount:  s.robot.PeerCount(),
	}
	return nil
}

// ListPeers returns every persisted peer record.
func (s *Service) ListPeers(args *ListPeersArgs, reply *ListPeersReply) error {
	peers, err := s.store.All()
	if err != nil {
		return fmt.Errorf("fetching peers: %w", err)
	}
	reply.Peers = peers
	return nil
}

// Server owns the Unix socket listener and its accept loop.
type Server struct {
	listener net.Listener
	path     string
	log      zerolog.Logger
	wg       sync.WaitGroup
}

// StartServer registers the service and begins accepting connections on the
// Unix socket. A stale socket file from a previous run is removed first.
func StartServer(socketPath string, robot *aris.Robot, store *peerstore.Store, iface interfaceInfo, log zerolog.Logger) (*Server, error) {
	service := &Service{robot: robot, store: store, iface: iface, log: log}

	server := netrpc.NewServer()
	if err := server.Register(service); err != nil {
		return nil, fmt.Errorf("registering RPC service: %w", err)
	}

	os.Remove(socketPath)

	listener, err := net.Listen("unix", socketPath)
	if err != nil {
		return nil, fmt.Errorf("listening on %s: %w", socketPath, err)
	}

	if err := os.Chmod(socketPath, 0660); err != nil {
		log.Warn().Err(err).Msg("Failed to set socket permissions")
	}

	s := &Server{listener: listener, path: socketPath, log: log}
	s.wg.Add(1)
	go s.acceptLoop(server)

	log.Info().Str("socket", socketPath).Msg("RPC server started")
	return s, nil
}

func (s *Server) acceptLoop(server *netrpc.Server) {
	defer s.wg.Done()
	for {
		conn, err := s.listener.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				return
			}
			s.log.Error().Err(err).Msg("RPC accept error")
			continue
		}
		go server.ServeConn(conn)
	}
}

// Stop closes the listener, joins the accept loop, and removes the socket.
func (s *Server) Stop() {
	s.listener.Close()
	s.wg.Wait()
	os.Remove(s.path)
}

// Client talks to a robot node's socket.
type Client struct {
	client *netrpc.Client
}

// NewClient dials the Unix socket and returns an RPC client.
func NewClient(socketPath string) (*Client, error) {
	conn, err := net.Dial("unix", socketPath)
	if err != nil {
		return nil, fmt.Errorf("connecting to RPC socket %s: %w", socketPath, err)
	}
	return &Client{client: netrpc.NewClient(conn)}, nil
}

// Close closes the RPC client connection.
func (c *Client) Close() error {
	return c.client.Close()
}

// Status fetches the node summary.
func (c *Client) Status() (RobotStatus, error) {
	args := &StatusArgs{}
	reply := &StatusReply{}
	if err := c.client.Call("Service.Status", args, reply); err != nil {
		return RobotStatus{}, err
	}
	return reply.Status, nil
}

// ListPeers fetches every persisted peer record.
func (c *Client) ListPeers() ([]peerstore.PeerRecord, error) {
	args := &ListPeersArgs{}
	reply := &ListPeersReply{}
	if err := c.client.Call("Service.ListPeers", args, reply); err != nil {
		return nil, err
	}
	return reply.Peers, nil
}
