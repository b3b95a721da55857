// internal/monitoring/prober.go
package monitoring

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"os/exec"
	"runtime"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/net/icmp"
	"golang.org/x/net/ipv4"
)

// Prober performs one reachability check. A nil error with reachable=false
// means the target did not answer in time or refused; a non-nil error
// (normally *ProbeError) means the check could not be performed.
// Implementations never retry.
type Prober interface {
	Name() string
	Probe(ctx context.Context, address string, timeout time.Duration) (bool, error)
}

// NewProber returns the prober registered under name.
func NewProber(name string) (Prober, error) {
	switch name {
	case "", "exec":
		return &ExecProber{}, nil
	case "icmp":
		return &ICMPProber{}, nil
	case "icmp-privileged":
		return &ICMPProber{Privileged: true}, nil
	default:
		return nil, fmt.Errorf("unknown prober: %s", name)
	}
}

const defaultExecGrace = 2 * time.Second

// ExecProber shells out to the system ping utility for a single echo request.
type ExecProber struct {
	// Path of the ping binary, "ping" when empty.
	Path string
	// Grace is added to the probe timeout to form the hard deadline for the
	// child process. Zero means defaultExecGrace; negative means none.
	Grace time.Duration
}

func (p *ExecProber) Name() string {
	return "exec"
}

func (p *ExecProber) Probe(ctx context.Context, address string, timeout time.Duration) (bool, error) {
	if net.ParseIP(address) == nil {
		return false, &ProbeError{Address: address, Err: ErrInvalidAddress}
	}

	path := p.Path
	if path == "" {
		path = "ping"
	}

	grace := p.Grace
	if grace == 0 {
		grace = defaultExecGrace
	} else if grace < 0 {
		grace = 0
	}

	// The ping utility's own -W/-w is not trusted to bound the call.
	ctx, cancel := context.WithTimeout(ctx, timeout+grace)
	defer cancel()

	cmd := exec.CommandContext(ctx, path, pingArgs(address, timeout)...)
	cmd.WaitDelay = time.Second
	output, err := cmd.CombinedOutput()

	if err == nil {
		return true, nil
	}
	if ctx.Err() != nil {
		logrus.WithFields(logrus.Fields{
			"address": address,
			"timeout": timeout,
		}).Debug("Ping process exceeded hard deadline")
		return false, nil
	}

	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) && exitErr.ExitCode() == 1 {
		return false, nil
	}

	return false, &ProbeError{
		Address: address,
		Err:     fmt.Errorf("%s: %w (%s)", path, err, truncate(string(output), 120)),
	}
}

func pingArgs(address string, timeout time.Duration) []string {
	if runtime.GOOS == "windows" {
		ms := timeout.Milliseconds()
		if ms < 1 {
			ms = 1
		}
		return []string{"-n", "1", "-w", strconv.FormatInt(ms, 10), address}
	}

	secs := int64((timeout + time.Second - 1) / time.Second)
	if secs < 1 {
		secs = 1
	}
	return []string{"-c", "1", "-W", strconv.FormatInt(secs, 10), address}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}

// ICMPProber sends one ICMP echo request itself. Unprivileged mode uses a
// datagram ICMP socket (net.ipv4.ping_group_range on Linux); privileged mode
// opens a raw socket.
type ICMPProber struct {
	Privileged bool

	seq atomic.Uint32
}

func (p *ICMPProber) Name() string {
	if p.Privileged {
		return "icmp-privileged"
	}
	return "icmp"
}

func (p *ICMPProber) Probe(ctx context.Context, address string, timeout time.Duration) (bool, error) {
	ip := net.ParseIP(address).To4()
	if ip == nil {
		return false, &ProbeError{Address: address, Err: ErrInvalidAddress}
	}

	network := "udp4"
	var dst net.Addr = &net.UDPAddr{IP: ip}
	if p.Privileged {
		network = "ip4:icmp"
		dst = &net.IPAddr{IP: ip}
	}

	conn, err := icmp.ListenPacket(network, "0.0.0.0")
	if err != nil {
		return false, &ProbeError{Address: address, Err: fmt.Errorf("listen %s: %w", network, err)}
	}
	defer conn.Close()

	deadline := time.Now().Add(timeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	if err := conn.SetDeadline(deadline); err != nil {
		return false, &ProbeError{Address: address, Err: err}
	}

	id := os.Getpid() & 0xffff
	seq := int(p.seq.Add(1) & 0xffff)
	msg := icmp.Message{
		Type: ipv4.ICMPTypeEcho,
		Code: 0,
		Body: &icmp.Echo{ID: id, Seq: seq, Data: []byte("pingmon")},
	}
	wb, err := msg.Marshal(nil)
	if err != nil {
		return false, &ProbeError{Address: address, Err: err}
	}

	if _, err := conn.WriteTo(wb, dst); err != nil {
		if isTimeout(err) {
			return false, nil
		}
		return false, &ProbeError{Address: address, Err: fmt.Errorf("send echo: %w", err)}
	}

	rb := make([]byte, 1500)
	for {
		n, peer, err := conn.ReadFrom(rb)
		if err != nil {
			if isTimeout(err) {
				return false, nil
			}
			return false, &ProbeError{Address: address, Err: fmt.Errorf("read reply: %w", err)}
		}
		if !peerIP(peer).Equal(ip) {
			continue
		}

		reply, err := icmp.ParseMessage(ipv4.ICMPTypeEcho.Protocol(), rb[:n])
		if err != nil || reply.Type != ipv4.ICMPTypeEchoReply {
			continue
		}
		echo, ok := reply.Body.(*icmp.Echo)
		if !ok || echo.Seq != seq {
			continue
		}
		// The kernel rewrites the identifier on datagram sockets.
		if p.Privileged && echo.ID != id {
			continue
		}
		return true, nil
	}
}

func peerIP(addr net.Addr) net.IP {
	switch a := addr.(type) {
	case *net.UDPAddr:
		return a.IP
	case *net.IPAddr:
		return a.IP
	}
	return nil
}

func isTimeout(err error) bool {
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}
