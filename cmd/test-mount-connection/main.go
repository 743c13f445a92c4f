package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/unklstewy/mount-modeler/internal/logger"
	"github.com/unklstewy/mount-modeler/pkg/config"
	"github.com/unklstewy/mount-modeler/pkg/mount"
)

var (
	configPath = flag.String("config", "configs/config.json", "Path to configuration file")
	host       = flag.String("host", "", "Mount address (overrides config)")
	slew       = flag.Bool("slew", false, "Also slew to two alt/az targets and stop")
)

// main checks the connection to a 10micron mount.
// Tests:
// 1. TCP connectivity to the command port
// 2. Product and firmware identification
// 3. Status (Ginfo) decoding
// 4. Alignment model star count
// 5. Optional slew, monitor and stop
// 6. Disconnect
func main() {
	flag.Parse()

	fmt.Println("======================================================================")
	fmt.Println("Mount Modeler - 10micron Connection Test")
	fmt.Println("======================================================================")
	fmt.Println()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	if *host != "" {
		cfg.Mount.Host = *host
	}

	fmt.Printf("Mount Configuration:\n")
	fmt.Printf("  Host:     %s\n", cfg.Mount.Host)
	fmt.Printf("  Port:     %d\n", cfg.Mount.Port)
	fmt.Printf("  Timeout:  %s\n", cfg.Mount.Timeout())
	fmt.Println()

	link := mount.NewTransport(cfg.Mount.Host, cfg.Mount.Port, cfg.Mount.Timeout(), logger.Get("warn"))

	// Step 1
	fmt.Println("Step 1: Connecting to mount...")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	err = link.Connect(ctx)
	cancel()
	if err != nil {
		log.Fatalf("Failed to connect: %v", err)
	}
	fmt.Printf("  ✓ Connected to %s\n", link.Addr())
	fmt.Println()

	// Step 2
	fmt.Println("Step 2: Reading product and firmware...")
	for _, q := range []struct{ cmd, label string }{
		{"GVP", "Product"},
		{"GVN", "Firmware"},
		{"GVD", "Date"},
		{"GVT", "Time"},
		{"GVZ", "Hardware"},
	} {
		reply, err := link.SendString(q.cmd)
		if err != nil {
			log.Fatalf("Failed to read %s: %v", q.label, err)
		}
		fmt.Printf("  %-9s %s\n", q.label+":", reply)
	}
	fmt.Println("  ✓ Identification read")
	fmt.Println()

	// Step 3
	fmt.Println("Step 3: Reading status...")
	info, err := link.SendString("Ginfo")
	if err != nil {
		log.Fatalf("Failed to read Ginfo: %v", err)
	}
	fields := strings.Split(info, ",")
	if len(fields) < 8 {
		log.Fatalf("Unexpected Ginfo reply %q", info)
	}
	fmt.Printf("  RA/Dec JNow:  %s h / %s°\n", fields[0], fields[1])
	fmt.Printf("  Pier side:    %s\n", fields[2])
	fmt.Printf("  Az/Alt:       %s° / %s°\n", fields[3], fields[4])
	fmt.Printf("  Julian date:  %s\n", fields[5])
	fmt.Printf("  Status:       %s\n", fields[6])
	fmt.Printf("  Slewing:      %s\n", fields[7])
	fmt.Println("  ✓ Status decoded")
	fmt.Println()

	// Step 4
	fmt.Println("Step 4: Reading alignment model...")
	stars, err := link.SendString("getalst")
	if err != nil {
		log.Fatalf("Failed to read star count: %v", err)
	}
	fmt.Printf("  ✓ Model stars: %s\n", stars)
	if reply, err := link.SendString("getain"); err == nil {
		if ain, err := mount.ParseAlignmentInfo(reply); err == nil {
			fmt.Printf("  ✓ RMS: %.1f\"  polar error: %.1f\"  terms: %d\n", ain.RMS, ain.PolarError, ain.Terms)
		} else {
			fmt.Printf("  Alignment info not decoded: %v\n", err)
		}
	}
	fmt.Println()

	step := 5
	if *slew {
		fmt.Printf("Step %d: Slewing to Az=180°, Alt=45°...\n", step)
		if err := mount.SlewAltAz(link, 180, 45, false); err != nil {
			log.Fatalf("Failed to slew: %v", err)
		}
		monitorSlew(link, 60*time.Second)
		fmt.Println()
		step++

		fmt.Printf("Step %d: Slewing to Az=270°, Alt=60° and stopping...\n", step)
		if err := mount.SlewAltAz(link, 270, 60, false); err != nil {
			log.Fatalf("Failed to slew: %v", err)
		}
		time.Sleep(500 * time.Millisecond)
		if err := link.SendBlind("STOP"); err != nil {
			log.Fatalf("Failed to stop: %v", err)
		}
		fmt.Println("  ✓ Slew stopped")
		fmt.Println()
		step++
	}

	fmt.Printf("Step %d: Disconnecting...\n", step)
	if err := link.Disconnect(); err != nil {
		log.Fatalf("Failed to disconnect: %v", err)
	}
	if link.Connected() {
		log.Fatal("Transport still reports connected!")
	}
	fmt.Println("  ✓ Disconnected")
	fmt.Println()

	fmt.Println("======================================================================")
	fmt.Println("✓ ALL TESTS PASSED")
	fmt.Println("======================================================================")
}

// monitorSlew polls Ginfo until the slewing flag clears or timeout passes.
func monitorSlew(link *mount.Transport, timeout time.Duration) {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		time.Sleep(500 * time.Millisecond)
		info, err := link.SendString("Ginfo")
		if err != nil {
			fmt.Printf("  Error reading status: %v\n", err)
			return
		}
		fields := strings.Split(info, ",")
		if len(fields) >= 8 && fields[7] == "0" {
			fmt.Printf("  ✓ Slew complete at Az=%s° Alt=%s°\n", fields[3], fields[4])
			return
		}
		fmt.Println("  ... slewing")
	}
	fmt.Println("  ⚠ Slew still running after timeout")
}
