// internal/discovery/discovery.go
package discovery

import (
	"bytes"
	"fmt"
	"net"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
	"pingmon/internal/config"
)

// Options filters scan results.
type Options struct {
	// ExcludeLow..ExcludeHigh is a last-octet range left out of the result,
	// typically a DHCP pool. Zero values disable the filter.
	ExcludeLow  int
	ExcludeHigh int
}

// ParseRange reads "low-high". An empty string disables exclusion.
func ParseRange(s string) (low, high int, err error) {
	if strings.TrimSpace(s) == "" {
		return 0, 0, nil
	}
	parts := strings.Split(s, "-")
	if len(parts) != 2 {
		return 0, 0, fmt.Errorf("range must look like 100-200, got %q", s)
	}
	low, err1 := strconv.Atoi(strings.TrimSpace(parts[0]))
	high, err2 := strconv.Atoi(strings.TrimSpace(parts[1]))
	if err1 != nil || err2 != nil || low < 0 || high > 255 || low > high {
		return 0, 0, fmt.Errorf("invalid range %q", s)
	}
	return low, high, nil
}

// Devices turns the up hosts of a scan into seed devices, ordered by address.
func Devices(run *NmapRun, opts Options) []config.DeviceConfig {
	seen := make(map[string]bool)
	var devices []config.DeviceConfig

	for _, host := range run.Hosts {
		if host.Status.State != "up" {
			continue
		}

		ip := hostIPv4(host)
		if ip == nil || seen[ip.String()] {
			continue
		}
		if opts.excludes(ip) {
			continue
		}
		seen[ip.String()] = true

		devices = append(devices, config.DeviceConfig{
			Name:    hostName(host, ip),
			Address: ip.String(),
		})
	}

	sort.Slice(devices, func(i, j int) bool {
		a := net.ParseIP(devices[i].Address).To4()
		b := net.ParseIP(devices[j].Address).To4()
		return bytes.Compare(a, b) < 0
	})
	return devices
}

func (o Options) excludes(ip net.IP) bool {
	if o.ExcludeLow == 0 && o.ExcludeHigh == 0 {
		return false
	}
	last := int(ip[3])
	return last >= o.ExcludeLow && last <= o.ExcludeHigh
}

func hostIPv4(host Host) net.IP {
	for _, addr := range host.Addresses {
		if addr.AddrType == "ipv4" {
			return net.ParseIP(addr.Addr).To4()
		}
	}
	return nil
}

func hostName(host Host, ip net.IP) string {
	for _, hn := range host.Hostnames {
		if (hn.Type == "PTR" || hn.Type == "user") && hn.Name != "" {
			return strings.ToLower(strings.Split(hn.Name, ".")[0])
		}
	}
	return fmt.Sprintf("host-%d", ip[3])
}

// WriteInclude writes devices as a config include file.
func WriteInclude(filename string, devices []config.DeviceConfig) error {
	data, err := yaml.Marshal(config.PartialConfig{Devices: devices})
	if err != nil {
		return fmt.Errorf("failed to marshal YAML: %w", err)
	}

	header := fmt.Sprintf("# pingmon devices\n# Generated by pingmon-discover on %s\n# Contains %d devices\n\n",
		time.Now().Format("2006-01-02 15:04:05"),
		len(devices))

	if err := os.WriteFile(filename, append([]byte(header), data...), 0644); err != nil {
		return fmt.Errorf("failed to write file: %w", err)
	}
	return nil
}
