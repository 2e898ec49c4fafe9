//go:build e2e

package e2e

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/wftracker/wftracker/internal/types"
)

// trackerServer manages a running wftracker server process.
type trackerServer struct {
	cmd     *exec.Cmd
	dataDir string
	address string
	logFile string
}

// serverEnv returns the environment shared by the server and CLI invocations.
// The tracker is configured entirely via environment variables here.
func serverEnv(dataDir string, port int) []string {
	return append(os.Environ(),
		fmt.Sprintf("WFTRACKER_PORT=%d", port),
		"WFTRACKER_DB_PATH="+filepath.Join(dataDir, "wftracker.db"),
		"WFTRACKER_CONFIG_PATH="+filepath.Join(dataDir, "nonexistent.yaml"),
		"WFTRACKER_LOCAL_PATH="+filepath.Join(dataDir, "client", "progress.json"),
		"WFTRACKER_LOG_LEVEL=debug",
	)
}

// startTracker launches the server binary on a fresh data directory and
// waits for it to become healthy.
func startTracker(t *testing.T) *trackerServer {
	t.Helper()
	requireWftracker(t)
	return launch(t, t.TempDir(), "wftracker.log")
}

func launch(t *testing.T, dataDir, logName string) *trackerServer {
	t.Helper()

	port := freePort(t)
	logFile := filepath.Join(dataDir, logName)

	cmd := exec.Command(wftrackerBin)
	cmd.Env = serverEnv(dataDir, port)

	lf, err := os.Create(logFile)
	if err != nil {
		t.Fatalf("create log file: %v", err)
	}
	cmd.Stdout = lf
	cmd.Stderr = lf

	if err := cmd.Start(); err != nil {
		lf.Close()
		t.Fatalf("start wftracker: %v", err)
	}

	s := &trackerServer{
		cmd:     cmd,
		dataDir: dataDir,
		address: fmt.Sprintf("127.0.0.1:%d", port),
		logFile: logFile,
	}
	t.Cleanup(func() {
		s.stop()
		lf.Close()
	})

	if err := s.waitHealthy(10 * time.Second); err != nil {
		t.Fatalf("wftracker not healthy: %v\n%s", err, s.logs())
	}
	return s
}

// restartOnSameData stops the server and starts a new one on the same data
// directory.
func (s *trackerServer) restartOnSameData(t *testing.T) *trackerServer {
	t.Helper()
	s.stop()
	time.Sleep(200 * time.Millisecond) // allow port release
	return launch(t, s.dataDir, "wftracker-restart.log")
}

func (s *trackerServer) stop() {
	if s.cmd != nil && s.cmd.Process != nil && s.cmd.ProcessState == nil {
		_ = s.cmd.Process.Signal(os.Interrupt)
		_ = s.cmd.Wait()
	}
}

func (s *trackerServer) baseURL() string {
	return "http://" + s.address
}

func (s *trackerServer) logs() string {
	data, _ := os.ReadFile(s.logFile)
	return string(data)
}

func (s *trackerServer) waitHealthy(timeout time.Duration) error {
	deadline := time.Now().Add(timeout)
	url := s.baseURL() + "/api/v1/health"

	for time.Now().Before(deadline) {
		resp, err := http.Get(url)
		if err == nil {
			resp.Body.Close()
			if resp.StatusCode == http.StatusOK {
				return nil
			}
		}
		time.Sleep(100 * time.Millisecond)
	}
	return fmt.Errorf("wftracker not healthy after %s", timeout)
}

// cli runs a wftracker subcommand against the server's data directory.
func (s *trackerServer) cli(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()
	cmd := exec.Command(wftrackerBin, args...)
	cmd.Env = append(serverEnv(s.dataDir, 0), "WFTRACKER_SERVER_URL="+s.baseURL())
	cmd.Stdin = strings.NewReader(stdin)
	out, err := cmd.CombinedOutput()
	return string(out), err
}

// addUser creates an account through the CLI while the server is running.
func (s *trackerServer) addUser(t *testing.T, username string, admin bool) {
	t.Helper()
	args := []string{"user", "add", username, "--full-name", "Dr. " + username, "--password-stdin"}
	if admin {
		args = append(args, "--admin")
	}
	if out, err := s.cli(t, "pw-"+username+"\n", args...); err != nil {
		t.Fatalf("user add %s: %v\n%s", username, err, out)
	}
}

// request sends a JSON request and returns the status and body.
func (s *trackerServer) request(t *testing.T, method, path, token string, body any) (int, []byte, http.Header) {
	t.Helper()
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal: %v", err)
		}
		reader = bytes.NewReader(data)
	}
	req, _ := http.NewRequest(method, s.baseURL()+path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	defer resp.Body.Close()
	data, _ := io.ReadAll(resp.Body)
	return resp.StatusCode, data, resp.Header
}

func (s *trackerServer) login(t *testing.T, username string) string {
	t.Helper()
	status, body, _ := s.request(t, http.MethodPost, "/api/v1/login", "",
		types.LoginRequest{Username: username, Password: "pw-" + username})
	if status != http.StatusOK {
		t.Fatalf("login %s: status %d: %s", username, status, body)
	}
	var resp types.LoginResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		t.Fatalf("login decode: %v", err)
	}
	return resp.SessionToken
}

func freePort(t *testing.T) int {
	t.Helper()
	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("find free port: %v", err)
	}
	defer l.Close()
	return l.Addr().(*net.TCPAddr).Port
}
