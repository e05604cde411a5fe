// Package cxl navigates the CXL bus sysfs tree, covering the slice of
// device enumeration this client consumes: resolve a bus by provider
// name, list the memory devices behind it, and locate a memdev's
// firmware-control character node.
package cxl

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
)

// DefaultRoot is where the kernel publishes CXL bus devices.
const DefaultRoot = "/sys/bus/cxl/devices"

var (
	ErrNoBus = errors.New("cxl: no bus for provider")

	rootPattern     = regexp.MustCompile(`^root\d+$`)
	memdevPattern   = regexp.MustCompile(`^mem\d+$`)
	endpointPattern = regexp.MustCompile(`^endpoint\d+$`)
	fwctlPattern    = regexp.MustCompile(`^fwctl\d+$`)
)

// Bus is one CXL root port. Path is the resolved device directory.
type Bus struct {
	Name     string
	Path     string
	Provider string
}

// Memdev is one memory expander device.
type Memdev struct {
	Name string
	Path string
}

// Node is a character device address. Major and minor both zero means the
// device exposes no control-plane node.
type Node struct {
	Major uint32
	Minor uint32
}

func (n Node) IsZero() bool { return n.Major == 0 && n.Minor == 0 }

// CharDevPath returns the /dev/char style path for the node. devDir
// overrides the directory for tests; empty means /dev/char.
func (n Node) CharDevPath(devDir string) string {
	if devDir == "" {
		devDir = "/dev/char"
	}
	return fmt.Sprintf("%s/%d:%d", devDir, n.Major, n.Minor)
}

// providerName maps a root port's uport device name to the provider name
// userspace tooling reports: the ACPI host bridge is "ACPI.CXL" and the
// test harness platform device is "cxl_test".
func providerName(uport string) string {
	switch uport {
	case "ACPI0017:00":
		return "ACPI.CXL"
	case "cxl_acpi.0":
		return "cxl_test"
	}
	return uport
}

// ResolveBusByProvider walks the root ports under root and returns the
// bus whose uport maps to provider.
func ResolveBusByProvider(root, provider string) (*Bus, error) {
	entries, err := os.ReadDir(root)
	if err != nil {
		return nil, fmt.Errorf("cxl: read %s: %w", root, err)
	}
	for _, entry := range entries {
		name := entry.Name()
		if !rootPattern.MatchString(name) {
			continue
		}
		uport, err := filepath.EvalSymlinks(filepath.Join(root, name, "uport"))
		if err != nil {
			continue
		}
		p := providerName(filepath.Base(uport))
		if p != provider {
			continue
		}
		busPath, err := filepath.EvalSymlinks(filepath.Join(root, name))
		if err != nil {
			return nil, fmt.Errorf("cxl: resolve %s: %w", name, err)
		}
		return &Bus{Name: name, Path: busPath, Provider: p}, nil
	}
	return nil, fmt.Errorf("%w: %s", ErrNoBus, provider)
}

// Memdevs lists the memory devices attached to bus, in name order. A
// memdev is on the bus when an endpoint port inside the bus hierarchy
// names it as its uport.
func Memdevs(root string, bus *Bus) ([]Memdev, error) {
	entries, err := os.ReadDir(root)
	if err != nil {
		return nil, fmt.Errorf("cxl: read %s: %w", root, err)
	}

	mems := make(map[string]string)
	var endpoints []string
	for _, entry := range entries {
		name := entry.Name()
		switch {
		case memdevPattern.MatchString(name):
			path, err := filepath.EvalSymlinks(filepath.Join(root, name))
			if err == nil {
				mems[name] = path
			}
		case endpointPattern.MatchString(name):
			endpoints = append(endpoints, name)
		}
	}

	var out []Memdev
	for _, ep := range endpoints {
		epPath, err := filepath.EvalSymlinks(filepath.Join(root, ep))
		if err != nil || !strings.HasPrefix(epPath, bus.Path+string(filepath.Separator)) {
			continue
		}
		uport, err := filepath.EvalSymlinks(filepath.Join(root, ep, "uport"))
		if err != nil {
			continue
		}
		name := filepath.Base(uport)
		if path, ok := mems[name]; ok {
			out = append(out, Memdev{Name: name, Path: path})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

// FwctlNode finds the memdev's firmware-control character node by
// scanning the fwctl class directory beneath its device. A memdev without
// one yields the zero node, not an error.
func FwctlNode(md Memdev) (Node, error) {
	dir := filepath.Join(md.Path, "fwctl")
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return Node{}, nil
		}
		return Node{}, fmt.Errorf("cxl: read %s: %w", dir, err)
	}
	for _, entry := range entries {
		if !fwctlPattern.MatchString(entry.Name()) {
			continue
		}
		data, err := os.ReadFile(filepath.Join(dir, entry.Name(), "dev"))
		if err != nil {
			return Node{}, fmt.Errorf("cxl: read dev attribute of %s: %w", entry.Name(), err)
		}
		return parseDevAttr(strings.TrimSpace(string(data)))
	}
	return Node{}, nil
}

func parseDevAttr(s string) (Node, error) {
	var n Node
	if _, err := fmt.Sscanf(s, "%d:%d", &n.Major, &n.Minor); err != nil {
		return Node{}, fmt.Errorf("cxl: malformed dev attribute %q: %w", s, err)
	}
	return n, nil
}
