package daemon

import (
	"os"
	"path/filepath"
	"strconv"
)

// stateDir returns the scratch directory holding the daemon's pid and socket
// files. XDG_RUNTIME_DIR when the platform provides one, else the system temp
// directory, namespaced per user so two users on one host don't collide.
func stateDir() string {
	if dir := os.Getenv("XDG_RUNTIME_DIR"); dir != "" {
		return filepath.Join(dir, "mcplug")
	}
	return filepath.Join(os.TempDir(), "mcplug-"+strconv.Itoa(os.Getuid()))
}

// SocketPath is the daemon's unix socket.
func SocketPath() string {
	return filepath.Join(stateDir(), "daemon.sock")
}

// PIDPath is the daemon's pid file.
func PIDPath() string {
	return filepath.Join(stateDir(), "daemon.pid")
}

// writePID records the current process id.
func writePID() error {
	if err := os.MkdirAll(stateDir(), 0o700); err != nil {
		return err
	}
	return os.WriteFile(PIDPath(), []byte(strconv.Itoa(os.Getpid())), 0o600)
}

// ReadPID returns the recorded daemon pid, or 0 when no daemon is recorded.
func ReadPID() int {
	data, err := os.ReadFile(PIDPath())
	if err != nil {
		return 0
	}
	pid, err := strconv.Atoi(string(data))
	if err != nil {
		return 0
	}
	return pid
}

// removeState deletes the pid and socket files. Missing files are fine.
func removeState() {
	_ = os.Remove(PIDPath())
	_ = os.Remove(SocketPath())
}
