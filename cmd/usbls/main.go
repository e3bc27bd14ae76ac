//go:build windows

package main

import (
	"flag"
	"fmt"
	"log"

	usbshare "github.com/usbshare/go-usbshare"
)

var noDescriptions = flag.Bool("n", false, "Skip composing device descriptions")

func main() {
	flag.Parse()

	walker := usbshare.NewWalker()
	devices, err := walker.EnumerateUsbDevices(!*noDescriptions)
	if err != nil {
		log.Fatalf("Failed to enumerate USB devices: %v", err)
	}

	if len(devices) == 0 {
		fmt.Println("No USB devices found")
		return
	}

	fmt.Printf("%-8s %-48s %s\n", "BUSID", "DEVICE", "INSTANCE ID")
	for _, d := range devices {
		description := d.Description
		if description == "" {
			description = "-"
		}
		fmt.Printf("%-8s %-48s %s\n", d.BusID, description, d.InstanceID)
	}
}
