// Package launch starts the remote worker processes a job needs,
// handing each one its rank and the job's entrypoint over SSH.
package launch

import (
	"fmt"
	"net"
	"os"
	"strings"
	"time"

	"golang.org/x/crypto/ssh"

	"github.com/thomasedgemon/mpigo/config"
	"github.com/thomasedgemon/mpigo/internal/logging"
)

// staggerDelay is paced between successive launches, matching the
// original implementation's 0.05s sleep between SSH connections so a
// large cluster doesn't open every connection in the same instant.
const staggerDelay = 50 * time.Millisecond

// Launcher starts world_size-1 worker processes for a job and returns
// the resulting world size (num_worker_nodes * per_node_cores + 1).
type Launcher interface {
	Launch(cfg *config.InfraConfig, masterHost string, masterPort int, module, function string, encodedArgs string) (worldSize int, err error)
}

// SSHLauncher launches workers by opening one SSH connection per host
// and, on it, one session per rank, starting the worker binary with its
// environment variables
// exported on the remote command line, mirroring the original
// implementation's `ssh host "KEY=val ... python -m mpipy.worker"`
// composition.
type SSHLauncher struct {
	Log logging.Logger
}

// NewSSHLauncher returns a launcher logging through l (NewDefault() if
// l is nil).
func NewSSHLauncher(l logging.Logger) *SSHLauncher {
	if l == nil {
		l = logging.NewDefault()
	}
	return &SSHLauncher{Log: l}
}

func (s *SSHLauncher) Launch(cfg *config.InfraConfig, masterHost string, masterPort int, module, function, encodedArgs string) (int, error) {
	if len(cfg.Hosts) == 0 {
		return 0, fmt.Errorf("launch: hosts list is required for SSH launch")
	}

	ranksPerNode := cfg.PerNodeCores
	worldSize := cfg.NumWorkerNodes*ranksPerNode + 1

	auth, err := sshAuthMethods(cfg)
	if err != nil {
		return 0, fmt.Errorf("launch: ssh auth: %w", err)
	}

	rank := 1
	for _, host := range cfg.Hosts {
		clientCfg := &ssh.ClientConfig{
			User:            cfg.SSHUser,
			Auth:            auth,
			HostKeyCallback: ssh.InsecureIgnoreHostKey(),
			Timeout:         cfg.ConnectTimeout,
		}
		addr := net.JoinHostPort(host, portOrDefault(cfg.SSHPort))
		client, err := ssh.Dial("tcp", addr, clientCfg)
		if err != nil {
			return 0, fmt.Errorf("launch: dial %s: %w", host, err)
		}

		for local := 0; local < ranksPerNode; local++ {
			env := map[string]string{
				"MPI_MASTER_HOST":  masterHost,
				"MPI_MASTER_PORT":  fmt.Sprintf("%d", masterPort),
				"MPI_WORLD_SIZE":   fmt.Sprintf("%d", worldSize),
				"MPI_RANK":         fmt.Sprintf("%d", rank),
				"MPI_RUN_MODULE":   module,
				"MPI_RUN_FUNCTION": function,
				"MPI_RUN_ARGS":     encodedArgs,
			}
			remoteCmd := buildRemoteCommand(cfg, env)

			session, err := client.NewSession()
			if err != nil {
				client.Close()
				return 0, fmt.Errorf("launch: session for rank %d: %w", rank, err)
			}
			if err := session.Start(remoteCmd); err != nil {
				session.Close()
				client.Close()
				return 0, fmt.Errorf("launch: start rank %d on %s: %w", rank, host, err)
			}
			// Fire-and-forget, matching subprocess.Popen: the launcher
			// does not wait for the worker to exit.
			go func(sess *ssh.Session) {
				sess.Wait()
				sess.Close()
			}(session)

			if cfg.ProgressToTerm {
				fmt.Fprintf(os.Stdout, "[mpigo] launched rank %d on %s (local %d)\n", rank, host, local)
			}
			rank++
			time.Sleep(staggerDelay)
		}
	}
	return worldSize, nil
}

func portOrDefault(p int) string {
	if p == 0 {
		p = 22
	}
	return fmt.Sprintf("%d", p)
}

func buildRemoteCommand(cfg *config.InfraConfig, env map[string]string) string {
	var b strings.Builder
	if cfg.WorkingDir != "" {
		fmt.Fprintf(&b, "cd %s && ", shellQuote(cfg.WorkingDir))
	}
	keys := []string{"MPI_MASTER_HOST", "MPI_MASTER_PORT", "MPI_WORLD_SIZE", "MPI_RANK",
		"MPI_RUN_MODULE", "MPI_RUN_FUNCTION", "MPI_RUN_ARGS"}
	for _, k := range keys {
		fmt.Fprintf(&b, "%s=%s ", k, shellQuote(env[k]))
	}
	executable := cfg.WorkerExecutable
	if executable == "" {
		executable = "mpigo-worker"
	}
	b.WriteString(executable)
	return b.String()
}

// shellQuote wraps s in single quotes for the remote POSIX shell,
// escaping any single quote already in s.
func shellQuote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}

func sshAuthMethods(cfg *config.InfraConfig) ([]ssh.AuthMethod, error) {
	if cfg.SSHIdentityFile != "" {
		key, err := os.ReadFile(cfg.SSHIdentityFile)
		if err != nil {
			return nil, fmt.Errorf("reading identity file: %w", err)
		}
		signer, err := ssh.ParsePrivateKey(key)
		if err != nil {
			return nil, fmt.Errorf("parsing identity file: %w", err)
		}
		return []ssh.AuthMethod{ssh.PublicKeys(signer)}, nil
	}
	return nil, fmt.Errorf("launch: no SSH authentication method configured (set ssh_identity_file)")
}
