// Package sshprobe authenticates to a candidate host and extracts device
// facts over a fixed command set (spec §4.5). The dial/session idiom is
// grounded in ToeiRei-Keymaster's internal/deploy/ssh.go (ssh.Dial with an
// explicit ssh.ClientConfig); scan context disables host-key verification
// since these are one-shot, credential-bearing discovery probes, not
// trusted long-lived deployment connections.
package sshprobe

import (
	"fmt"
	"net"
	"strconv"
	"strings"
	"time"

	"golang.org/x/crypto/ssh"
)

// Credentials are the decrypted, profile-scoped SSH credentials used for a
// single probe.
type Credentials struct {
	Username   string
	Password   string
	PrivateKey []byte // optional, PEM-encoded
	Port       int
}

// commandOrder fixes the sequence the session runs in, matching spec §4.5's
// table.
var commandOrder = []string{
	"hostname", "os", "osVersion", "architecture",
	"uptime", "cpuInfo", "memoryInfo", "diskInfo",
}

var commands = map[string]string{
	"hostname":     "hostname",
	"os":           "uname -s",
	"osVersion":    "uname -r",
	"architecture": "uname -m",
	"uptime":       "uptime",
	"cpuInfo":      "cat /proc/cpuinfo",
	"memoryInfo":   "free -h",
	"diskInfo":     "df -h",
}

// Result is the extracted fact set for one host.
type Result struct {
	Hostname   string
	DeviceType string
	Facts      map[string]string
}

// Probe authenticates to addr:creds.Port and runs the fixed command set.
// Any session or command failure returns an error; callers must skip the
// device entirely on error (spec §4.5 — no partial device row).
func Probe(addr string, creds Credentials, timeout time.Duration) (*Result, error) {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}

	auths, err := authMethods(creds)
	if err != nil {
		return nil, fmt.Errorf("sshprobe: %w", err)
	}

	config := &ssh.ClientConfig{
		User:            creds.Username,
		Auth:            auths,
		HostKeyCallback: ssh.InsecureIgnoreHostKey(), // scan context: targets are untrusted, unenrolled hosts
		Timeout:         timeout,
	}

	port := creds.Port
	if port == 0 {
		port = 22
	}

	client, err := ssh.Dial("tcp", net.JoinHostPort(addr, strconv.Itoa(port)), config)
	if err != nil {
		return nil, fmt.Errorf("sshprobe: dial %s: %w", addr, err)
	}
	defer client.Close()

	facts := make(map[string]string, len(commandOrder))
	for _, key := range commandOrder {
		out, err := runCommand(client, commands[key], timeout)
		if err != nil {
			return nil, fmt.Errorf("sshprobe: command %q on %s: %w", key, addr, err)
		}
		facts[key] = out
	}

	if key := "cpuInfo"; facts[key] != "" {
		facts[key] = firstMatchingLine(facts[key], "model name")
	}

	result := &Result{
		Hostname:   orUnknown(facts["hostname"]),
		DeviceType: deriveDeviceType(facts["os"]),
		Facts:      facts,
	}

	return result, nil
}

func authMethods(creds Credentials) ([]ssh.AuthMethod, error) {
	var methods []ssh.AuthMethod

	if len(creds.PrivateKey) > 0 {
		signer, err := ssh.ParsePrivateKey(creds.PrivateKey)
		if err != nil {
			return nil, fmt.Errorf("parse private key: %w", err)
		}
		methods = append(methods, ssh.PublicKeys(signer))
	}
	if creds.Password != "" {
		methods = append(methods, ssh.Password(creds.Password))
	}
	if len(methods) == 0 {
		return nil, fmt.Errorf("no usable credential: neither password nor private key set")
	}

	return methods, nil
}

func runCommand(client *ssh.Client, cmd string, timeout time.Duration) (string, error) {
	session, err := client.NewSession()
	if err != nil {
		return "", fmt.Errorf("open session: %w", err)
	}
	defer session.Close()

	type result struct {
		out []byte
		err error
	}
	done := make(chan result, 1)
	go func() {
		out, err := session.CombinedOutput(cmd)
		done <- result{out: out, err: err}
	}()

	select {
	case r := <-done:
		if r.err != nil {
			return "", r.err
		}
		return orUnknown(strings.TrimSpace(string(r.out))), nil
	case <-time.After(timeout):
		return "", fmt.Errorf("command timed out after %s", timeout)
	}
}

func orUnknown(s string) string {
	if strings.TrimSpace(s) == "" {
		return "unknown"
	}
	return s
}

func firstMatchingLine(blob, substr string) string {
	for _, line := range strings.Split(blob, "\n") {
		if strings.Contains(line, substr) {
			return strings.TrimSpace(line)
		}
	}
	return "unknown"
}

func deriveDeviceType(osField string) string {
	lower := strings.ToLower(osField)
	switch {
	case strings.Contains(lower, "linux"):
		return "linux"
	case strings.Contains(lower, "darwin"):
		return "macos"
	case strings.Contains(lower, "windows"):
		return "windows"
	default:
		return "unknown"
	}
}
