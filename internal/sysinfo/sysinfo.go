// Package sysinfo probes the host a robot runs on. The probe feeds the
// startup log and, when the operator leaves the capability index unset,
// derives one from the host's compute resources.
package sysinfo

import (
	"math"
	"net"
	"os"
	"runtime"
	"strings"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/host"
	"github.com/shirou/gopsutil/v3/mem"
)

// HostInfo holds the probed host facts.
type HostInfo struct {
	Hostname string
	OSName   string
	Kernel   string
	Arch     string
	CPUModel string
	CPUCores int
	MemoryGB float64
	IPv6     string
}

// Probe gathers host information. Individual probe failures degrade to
// empty fields rather than failing the whole call; a robot on a stripped
// down image still comes up.
func Probe() (*HostInfo, error) {
	hostname, _ := os.Hostname()
	osName, kernel := getOSInfo()

	info := &HostInfo{
		Hostname: hostname,
		OSName:   osName,
		Kernel:   kernel,
		Arch:     runtime.GOARCH,
		CPUCores: runtime.NumCPU(),
		IPv6:     firstGlobalIPv6(),
	}

	if cpuInfo, err := cpu.Info(); err == nil && len(cpuInfo) > 0 {
		info.CPUModel = cpuInfo[0].ModelName
	}

	if memInfo, err := mem.VirtualMemory(); err == nil {
		info.MemoryGB = math.Round(float64(memInfo.Total)/(1024*1024*1024)*100) / 100
	}

	return info, nil
}

// DeriveCapability maps compute resources onto the 0..100 capability scale
// used by the discovery trust policy. Cores and memory each contribute up
// to half the scale, saturating at 16 cores and 32 GB; anything that can
// run the node at all scores at least 10 so it clears the lowest trust
// tier's neighborhood without being treated as capable.
func DeriveCapability(info *HostInfo) int32 {
	coreScore := float64(info.CPUCores) / 16 * 50
	if coreScore > 50 {
		coreScore = 50
	}
	memScore := info.MemoryGB / 32 * 50
	if memScore > 50 {
		memScore = 50
	}

	capability := int32(coreScore + memScore)
	if capability < 10 {
		capability = 10
	}
	if capability > 100 {
		capability = 100
	}
	return capability
}

// firstGlobalIPv6 returns the first non-link-local IPv6 address on an up,
// non-loopback interface, or empty when the host has none.
func firstGlobalIPv6() string {
	ifaces, err := net.Interfaces()
	if err != nil {
		return ""
	}

	for _, iface := range ifaces {
		if iface.Flags&net.FlagLoopback != 0 || iface.Flags&net.FlagUp == 0 {
			continue
		}
		addrs, err := iface.Addrs()
		if err != nil {
			continue
		}
		for _, addr := range addrs {
			ipNet, ok := addr.(*net.IPNet)
			if !ok {
				continue
			}
			ip := ipNet.IP
			if ip.To4() != nil || ip.To16() == nil {
				continue
			}
			if ip.IsLinkLocalUnicast() || ip.IsLoopback() {
				continue
			}
			return ip.String()
		}
	}
	return ""
}

// getOSInfo retrieves OS name and kernel version.
func getOSInfo() (string, string) {
	var osName, kernel string

	hostInfo, err := host.Info()
	if err == nil {
		osName = hostInfo.Platform
		if hostInfo.PlatformVersion != "" {
			osName += " " + hostInfo.PlatformVersion
		}
		kernel = hostInfo.KernelVersion
	} else {
		osName = runtime.GOOS
	}

	if runtime.GOOS == "linux" {
		if prettyName := readOSReleasePrettyName(); prettyName != "" {
			osName = prettyName
		}
	}

	return osName, kernel
}

// readOSReleasePrettyName parses /etc/os-release for the PRETTY_NAME field.
func readOSReleasePrettyName() string {
	data, err := os.ReadFile("/etc/os-release")
	if err != nil {
		return ""
	}
	for _, line := range strings.Split(string(data), "\n") {
		if strings.HasPrefix(line, "PRETTY_NAME=") {
			val := strings.TrimPrefix(line, "PRETTY_NAME=")
			val = strings.Trim(val, "\"")
			return val
		}
	}
	return ""
}
