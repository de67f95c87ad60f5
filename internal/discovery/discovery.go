// Package discovery implements the UDP broadcast rendezvous that lets agents
// and the coordinator find each other without static configuration. It is a
// best-effort bootstrap aid only: datagrams may be lost, nothing is retried
// here, and registration state is driven solely by the reliable HTTP channel.
package discovery

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"time"

	"github.com/mstrand/trainfleet/internal/models"
	"github.com/mstrand/trainfleet/pkg/utils"
)

// Datagram types on the discovery port
const (
	typeDiscover = "discover"
	typeWorker   = "worker"
)

// probe is the datagram the coordinator broadcasts
type probe struct {
	Type   string `json:"type"`
	Master bool   `json:"master"`
}

// Announcement is a worker's unicast reply to a probe. Addr is filled from
// the datagram's source address, never from the payload.
type Announcement struct {
	Type         string              `json:"type"`
	Hostname     string              `json:"hostname"`
	Capabilities models.Capabilities `json:"capabilities"`
	Addr         string              `json:"-"`
}

// Scanner broadcasts discovery probes from the coordinator and collects
// worker announcements for a bounded window.
type Scanner struct {
	// BroadcastAddr is the IP the probe is sent to, normally the subnet
	// broadcast address. Tests point it at loopback.
	BroadcastAddr string
	Port          int
	Window        time.Duration
	logger        *utils.Logger
}

// NewScanner creates a scanner probing broadcastAddr:port and collecting
// replies for the given window.
func NewScanner(broadcastAddr string, port int, window time.Duration) *Scanner {
	return &Scanner{
		BroadcastAddr: broadcastAddr,
		Port:          port,
		Window:        window,
		logger:        utils.NewLogger("discovery", utils.INFO),
	}
}

// Scan sends one probe and returns every worker that answered within the
// window. Workers that stay silent are simply absent from the result.
func (s *Scanner) Scan(ctx context.Context) ([]Announcement, error) {
	dst := net.ParseIP(s.BroadcastAddr)
	if dst == nil {
		return nil, fmt.Errorf("invalid broadcast address %q", s.BroadcastAddr)
	}

	conn, err := net.ListenUDP("udp4", &net.UDPAddr{IP: net.IPv4zero, Port: 0})
	if err != nil {
		return nil, fmt.Errorf("failed to open discovery socket: %w", err)
	}
	defer conn.Close()

	payload, err := json.Marshal(probe{Type: typeDiscover, Master: true})
	if err != nil {
		return nil, err
	}

	if _, err := conn.WriteToUDP(payload, &net.UDPAddr{IP: dst, Port: s.Port}); err != nil {
		return nil, fmt.Errorf("failed to send discovery probe: %w", err)
	}
	s.logger.Debug("Sent discovery probe to %s:%d", s.BroadcastAddr, s.Port)

	deadline := time.Now().Add(s.Window)
	if ctxDeadline, ok := ctx.Deadline(); ok && ctxDeadline.Before(deadline) {
		deadline = ctxDeadline
	}
	if err := conn.SetReadDeadline(deadline); err != nil {
		return nil, err
	}

	var found []Announcement
	buf := make([]byte, 2048)
	for {
		n, addr, err := conn.ReadFromUDP(buf)
		if err != nil {
			if netErr, ok := err.(net.Error); ok && netErr.Timeout() {
				break // collection window closed
			}
			return found, err
		}

		var reply Announcement
		if err := json.Unmarshal(buf[:n], &reply); err != nil || reply.Type != typeWorker {
			s.logger.Debug("Ignoring malformed discovery reply from %s", addr)
			continue
		}

		reply.Addr = addr.IP.String()
		found = append(found, reply)
		s.logger.Info("Discovered worker %s (%s)", reply.Hostname, reply.Addr)
	}

	return found, nil
}

// Responder listens on the discovery port on a worker and answers probes
// with the worker's announcement. It also hands the probe's source address
// to anyone waiting on AwaitProbe, which is how an agent without a
// configured master finds the coordinator.
type Responder struct {
	Port         int
	Hostname     string
	Capabilities models.Capabilities

	conn   *net.UDPConn
	probes chan string
	done   chan struct{}
	logger *utils.Logger
}

// NewResponder creates a responder announcing the given identity
func NewResponder(port int, hostname string, caps models.Capabilities) *Responder {
	return &Responder{
		Port:         port,
		Hostname:     hostname,
		Capabilities: caps,
		probes:       make(chan string, 1),
		done:         make(chan struct{}),
		logger:       utils.NewLogger("discovery", utils.INFO),
	}
}

// Start binds the discovery port and begins answering probes
func (r *Responder) Start() error {
	conn, err := net.ListenUDP("udp4", &net.UDPAddr{IP: net.IPv4zero, Port: r.Port})
	if err != nil {
		return fmt.Errorf("failed to bind discovery port %d: %w", r.Port, err)
	}
	r.conn = conn

	go r.serve()
	r.logger.Info("Discovery responder listening on udp/%d", r.Port)
	return nil
}

// Stop closes the socket and ends the serve loop
func (r *Responder) Stop() {
	if r.conn != nil {
		r.conn.Close()
	}
	<-r.done
}

// AwaitProbe blocks until a coordinator probe arrives and returns the
// coordinator's IP address.
func (r *Responder) AwaitProbe(ctx context.Context) (string, error) {
	select {
	case addr := <-r.probes:
		return addr, nil
	case <-r.done:
		return "", fmt.Errorf("discovery responder stopped")
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

func (r *Responder) serve() {
	defer close(r.done)

	buf := make([]byte, 2048)
	for {
		n, addr, err := r.conn.ReadFromUDP(buf)
		if err != nil {
			// Closed socket ends the loop; anything else is logged and fatal
			// to the responder only, never to the agent.
			r.logger.Debug("Discovery responder exiting: %v", err)
			return
		}

		var p probe
		if err := json.Unmarshal(buf[:n], &p); err != nil || p.Type != typeDiscover || !p.Master {
			continue
		}

		reply, err := json.Marshal(Announcement{
			Type:         typeWorker,
			Hostname:     r.Hostname,
			Capabilities: r.Capabilities,
		})
		if err != nil {
			continue
		}

		if _, err := r.conn.WriteToUDP(reply, addr); err != nil {
			r.logger.Warn("Failed to answer discovery probe from %s: %v", addr, err)
			continue
		}
		r.logger.Info("Answered discovery probe from %s", addr.IP)

		select {
		case r.probes <- addr.IP.String():
		default: // nobody waiting, or a probe is already buffered
		}
	}
}
