package server

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/protoseclab/fuzzlab/internal/fuzz"
)

// procHandle is one live fuzzer launch. ContainerID for containerized
// protocols, PID for plain processes.
type procHandle struct {
	Protocol    string
	ContainerID string
	PID         int
}

type launchFunc func(protocol string, impls []string) (*procHandle, error)

// containerName derives the per-protocol container name. Stable names
// let pre-start cleanup find leftovers from a previous run.
func containerName(protocol string) string {
	return "fuzzlab-" + protocol
}

func (s *Server) protocolDir(protocol string) string {
	return filepath.Join(s.cfg.WorkDir, protocol)
}

func (s *Server) scriptPath(protocol string) string {
	return filepath.Join(s.protocolDir(protocol), "start.sh")
}

func (s *Server) logPath(protocol string) string {
	return filepath.Join(s.cfg.LogDir, protocol+".log")
}

// launchReal starts the staged script. SOL runs inside a docker
// container so AFL instrumentation stays isolated; MQTT runs as a plain
// host process driving the already-running broker cluster.
func (s *Server) launchReal(protocol string, impls []string) (*procHandle, error) {
	script := s.scriptPath(protocol)
	if _, err := os.Stat(script); err != nil {
		return nil, fmt.Errorf("no staged script for %s: %w", protocol, err)
	}

	if protocol == string(fuzz.ProtocolSOL) {
		args := []string{
			"run", "-d",
			"--name", containerName(protocol),
			"-v", s.protocolDir(protocol) + ":/work",
			"-v", s.cfg.LogDir + ":/logs",
		}
		for _, impl := range impls {
			args = append(args, "-e", "IMPL_"+strings.ToUpper(impl)+"=1")
		}
		args = append(args, "fuzzlab/"+protocol+"-fuzzer", "sh", "/work/start.sh")

		out, err := exec.Command("docker", args...).CombinedOutput()
		if err != nil {
			return nil, fmt.Errorf("docker run failed: %v: %s", err, strings.TrimSpace(string(out)))
		}
		id := strings.TrimSpace(string(out))
		if len(id) > 12 {
			id = id[:12]
		}
		return &procHandle{Protocol: protocol, ContainerID: id}, nil
	}

	logf, err := os.OpenFile(s.logPath(protocol), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open log for %s: %w", protocol, err)
	}
	defer logf.Close()

	cmd := exec.Command("sh", script)
	cmd.Dir = s.protocolDir(protocol)
	cmd.Stdout = logf
	cmd.Stderr = logf
	// Own process group so teardown can signal the whole tree.
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("start %s fuzzer: %w", protocol, err)
	}
	go cmd.Wait()

	return &procHandle{Protocol: protocol, PID: cmd.Process.Pid}, nil
}

// stopPID signals the process group, falling back to the single pid.
func stopPID(pid int) error {
	if pid <= 0 {
		return fmt.Errorf("invalid pid %d", pid)
	}
	if err := syscall.Kill(-pid, syscall.SIGTERM); err == nil {
		return nil
	}
	return syscall.Kill(pid, syscall.SIGTERM)
}

// removeContainer force-removes a container. Missing containers are not
// an error: cleanup is best-effort and idempotent.
func removeContainer(id string) error {
	if id == "" {
		return nil
	}
	out, err := exec.Command("docker", "rm", "-f", id).CombinedOutput()
	if err != nil {
		msg := strings.ToLower(string(out))
		if strings.Contains(msg, "no such container") {
			return nil
		}
		return fmt.Errorf("docker rm failed: %v: %s", err, strings.TrimSpace(string(out)))
	}
	return nil
}
