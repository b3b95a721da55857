// cmd/pingmon-discover/main.go
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"
	"pingmon/internal/discovery"
)

func main() {
	var (
		network  = flag.String("network", "", "CIDR network to scan (e.g., 192.168.1.0/24)")
		xmlFile  = flag.String("xml", "", "Use existing nmap XML file instead of scanning")
		output   = flag.String("output", "discovered.yaml", "Output include file")
		exclude  = flag.String("exclude", "", "Last-octet range to skip (e.g., 100-200 for a DHCP pool)")
		nmapPath = flag.String("nmap", "nmap", "Path to nmap binary")
		verbose  = flag.Bool("verbose", false, "Verbose output")
	)
	flag.Parse()

	if *verbose {
		logrus.SetLevel(logrus.DebugLevel)
	}

	low, high, err := discovery.ParseRange(*exclude)
	if err != nil {
		logrus.Fatalf("Invalid -exclude: %v", err)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	var data []byte
	if *xmlFile != "" {
		logrus.WithField("file", *xmlFile).Info("Reading nmap XML")
		data, err = os.ReadFile(*xmlFile)
		if err != nil {
			logrus.Fatalf("Failed to read XML file: %v", err)
		}
	} else {
		if *network == "" {
			*network = discovery.DetectNetwork()
			if *network == "" {
				logrus.Fatal("No network specified and couldn't detect local network. Use -network flag.")
			}
			logrus.WithField("network", *network).Info("Auto-detected network")
		}
		data, err = discovery.Scan(ctx, *nmapPath, *network)
		if err != nil {
			logrus.Fatalf("Failed to run nmap: %v", err)
		}
	}

	run, err := discovery.Parse(data)
	if err != nil {
		logrus.Fatal(err)
	}

	devices := discovery.Devices(run, discovery.Options{ExcludeLow: low, ExcludeHigh: high})
	for _, d := range devices {
		logrus.WithFields(logrus.Fields{"name": d.Name, "address": d.Address}).Debug("Discovered device")
	}

	if err := discovery.WriteInclude(*output, devices); err != nil {
		logrus.Fatalf("Failed to write include file: %v", err)
	}

	fmt.Printf("Discovered %d devices, written to %s\n", len(devices), *output)
}
