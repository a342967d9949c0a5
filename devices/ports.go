package devices

import (
	"fmt"
	"os"
	"runtime"
	"sort"

	"go.bug.st/serial/enumerator"

	"pesaje-scale-link/types"
)

var (
	detailedPorts = enumerator.GetDetailedPortsList
	statPort      = os.Stat
)

// ListPorts returns the serial devices present on this machine. When the
// enumerator fails or finds nothing it falls back to the usual device names
// that actually exist. The enumerator error is returned only when that
// fallback is empty too.
func ListPorts() ([]types.PortInfo, error) {
	ports, enumErr := detailedPorts()

	out := make([]types.PortInfo, 0, len(ports))
	for _, p := range ports {
		out = append(out, types.PortInfo{
			Path:         p.Name,
			Manufacturer: p.Product,
			SerialNumber: p.SerialNumber,
			VendorID:     p.VID,
			ProductID:    p.PID,
			IsUSB:        p.IsUSB,
		})
	}

	if len(out) == 0 {
		for _, name := range getCommonPorts() {
			if runtime.GOOS != "windows" {
				if _, err := statPort(name); err != nil {
					continue
				}
			}
			out = append(out, types.PortInfo{Path: name})
		}
	}
	if len(out) == 0 && enumErr != nil {
		return nil, enumErr
	}

	// USB adapters first, that is where scales usually sit
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].IsUSB && !out[j].IsUSB
	})
	return out, nil
}

// getCommonPorts returns common serial port names based on the operating system
func getCommonPorts() []string {
	switch runtime.GOOS {
	case "windows":
		var ports []string
		for i := 1; i <= 20; i++ {
			ports = append(ports, fmt.Sprintf("COM%d", i))
		}
		return ports
	case "linux":
		return []string{
			"/dev/ttyUSB0", "/dev/ttyUSB1", "/dev/ttyUSB2", "/dev/ttyUSB3",
			"/dev/ttyACM0", "/dev/ttyACM1", "/dev/ttyACM2", "/dev/ttyACM3",
			"/dev/ttyS0", "/dev/ttyS1", "/dev/ttyS2", "/dev/ttyS3",
		}
	case "darwin":
		return []string{
			"/dev/cu.usbserial", "/dev/cu.usbmodem",
			"/dev/tty.usbserial", "/dev/tty.usbmodem",
			"/dev/cu.SLAB_USBtoUART", "/dev/tty.SLAB_USBtoUART",
		}
	default:
		return []string{}
	}
}
