// internal/discovery/nmap.go
package discovery

import (
	"context"
	"encoding/xml"
	"errors"
	"fmt"
	"net"
	"os/exec"
	"strings"

	"github.com/sirupsen/logrus"
)

// Nmap XML structures, reduced to what a ping scan reports.
type NmapRun struct {
	XMLName  xml.Name `xml:"nmaprun"`
	Scanner  string   `xml:"scanner,attr"`
	Args     string   `xml:"args,attr"`
	StartStr string   `xml:"startstr,attr"`
	Version  string   `xml:"version,attr"`
	Hosts    []Host   `xml:"host"`
}

type Host struct {
	Status    HostStatus `xml:"status"`
	Addresses []Address  `xml:"address"`
	Hostnames []Hostname `xml:"hostnames>hostname"`
}

type HostStatus struct {
	State  string `xml:"state,attr"`
	Reason string `xml:"reason,attr"`
}

type Address struct {
	Addr     string `xml:"addr,attr"`
	AddrType string `xml:"addrtype,attr"`
}

type Hostname struct {
	Name string `xml:"name,attr"`
	Type string `xml:"type,attr"`
}

// Parse decodes nmap's -oX output.
func Parse(data []byte) (*NmapRun, error) {
	var run NmapRun
	if err := xml.Unmarshal(data, &run); err != nil {
		return nil, fmt.Errorf("failed to parse nmap XML: %w", err)
	}
	return &run, nil
}

// Scan runs a host-discovery-only scan of network and returns the XML report.
func Scan(ctx context.Context, nmapPath, network string) ([]byte, error) {
	if _, _, err := net.ParseCIDR(network); err != nil {
		return nil, fmt.Errorf("invalid network %q: %w", network, err)
	}

	args := []string{"-sn", "--system-dns", "-oX", "-", network}
	logrus.WithFields(logrus.Fields{
		"nmap": nmapPath,
		"args": strings.Join(args, " "),
	}).Info("Running network scan")

	output, err := exec.CommandContext(ctx, nmapPath, args...).Output()
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return nil, fmt.Errorf("nmap exited with status %d: %s", exitErr.ExitCode(), strings.TrimSpace(string(exitErr.Stderr)))
		}
		return nil, fmt.Errorf("nmap execution failed: %w", err)
	}
	return output, nil
}

// DetectNetwork returns the CIDR of the first up, non-loopback interface with
// a global unicast IPv4 address, or "" when there is none.
func DetectNetwork() string {
	interfaces, err := net.Interfaces()
	if err != nil {
		return ""
	}

	for _, iface := range interfaces {
		if iface.Flags&net.FlagUp == 0 || iface.Flags&net.FlagLoopback != 0 {
			continue
		}

		addrs, err := iface.Addrs()
		if err != nil {
			continue
		}

		for _, addr := range addrs {
			if ipnet, ok := addr.(*net.IPNet); ok && ipnet.IP.To4() != nil && ipnet.IP.IsGlobalUnicast() {
				network := &net.IPNet{IP: ipnet.IP.Mask(ipnet.Mask), Mask: ipnet.Mask}
				return network.String()
			}
		}
	}
	return ""
}
