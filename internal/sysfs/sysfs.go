// Package sysfs reads and writes the scalar kernel nodes the daemon tunes.
package sysfs

import (
	"os"
	"strconv"
	"strings"

	"codeberg.org/mutker/socpowerd/internal/errors"
)

const (
	DefaultGovernorPath = "/sys/devices/system/cpu/cpu0/cpufreq/scaling_governor"
	DefaultSocIDPath    = "/sys/devices/soc0/soc_id"
)

const (
	ErrReadNode  = errors.ErrorCode("sysfs_read_failed")
	ErrWriteNode = errors.ErrorCode("sysfs_write_failed")
	ErrEmptyNode = errors.ErrorCode("sysfs_empty_node")
)

func init() {
	errors.RegisterMessage(ErrReadNode, "Failed to read node")
	errors.RegisterMessage(ErrWriteNode, "Failed to write node")
	errors.RegisterMessage(ErrEmptyNode, "Node is empty")
}

// Nodes accesses nodes on the live file system.
type Nodes struct{}

// ReadNode returns the raw node content.
func (Nodes) ReadNode(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", errors.New().Wrap(ErrReadNode, err)
	}

	return string(data), nil
}

// WriteNode writes value to an existing node. Nodes are never created.
func (Nodes) WriteNode(path, value string) error {
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_TRUNC, 0)
	if err != nil {
		return errors.New().Wrap(ErrWriteNode, err)
	}

	if _, err := f.WriteString(value); err != nil {
		f.Close()
		return errors.New().Wrap(ErrWriteNode, err)
	}

	if err := f.Close(); err != nil {
		return errors.New().Wrap(ErrWriteNode, err)
	}

	return nil
}

// Governor reads the active cpufreq governor name.
type Governor struct {
	Path string
}

func (g Governor) ScalingGovernor() (string, error) {
	path := g.Path
	if path == "" {
		path = DefaultGovernorPath
	}

	raw, err := Nodes{}.ReadNode(path)
	if err != nil {
		return "", err
	}

	name := strings.TrimSpace(raw)
	if name == "" {
		return "", errors.New().WithData(ErrEmptyNode, path)
	}

	return name, nil
}

// SocID returns the SoC identifier, 0 when it can't be read.
func SocID(path string) int {
	if path == "" {
		path = DefaultSocIDPath
	}

	raw, err := Nodes{}.ReadNode(path)
	if err != nil {
		return 0
	}

	id, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil {
		return 0
	}

	return id
}

// DisplayBoostSupported reports whether the SoC takes the display boost.
func DisplayBoostSupported(socID int) bool {
	switch {
	case socID == 178, socID == 194:
		return true
	case socID >= 208 && socID <= 218:
		return true
	default:
		return false
	}
}
