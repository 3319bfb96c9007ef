package remote

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"path"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/agent"
	"golang.org/x/crypto/ssh/knownhosts"
)

// SSHConfig configures an SSH executor.
type SSHConfig struct {
	Target HostString
	// KeyFiles are private keys tried in order after the agent.
	KeyFiles []string
	// Password enables password authentication when set.
	Password string
	// SudoPassword is written to sudo's stdin for privileged commands.
	SudoPassword string
	// PromptSudoPassword is called when sudo asks for a password that
	// SudoPassword did not satisfy. Nil fails the command instead.
	PromptSudoPassword PasswordFunc
	// KnownHostsFile defaults to ~/.ssh/known_hosts.
	KnownHostsFile string
	// InsecureIgnoreHostKey disables host key verification.
	InsecureIgnoreHostKey bool
	// DisableAgent skips the SSH_AUTH_SOCK agent.
	DisableAgent   bool
	ConnectTimeout time.Duration
	// Stdout and Stderr receive a live copy of command output when set.
	Stdout io.Writer
	Stderr io.Writer
}

// SSH runs commands on a remote host over one SSH connection.
type SSH struct {
	cfg    SSHConfig
	sudo   *sudoAuth
	client *ssh.Client
	agent  net.Conn
	mu     sync.Mutex // protects client and agent
}

// DialSSH connects to cfg.Target.
func DialSSH(ctx context.Context, cfg SSHConfig) (*SSH, error) {
	if cfg.Target.User == "" {
		cfg.Target.User = os.Getenv("USER")
	}
	if cfg.ConnectTimeout == 0 {
		cfg.ConnectTimeout = 10 * time.Second
	}

	auth, agentConn, err := authMethods(cfg)
	if err != nil {
		return nil, err
	}
	if len(auth) == 0 {
		return nil, fmt.Errorf("no SSH authentication available for %s (start ssh-agent, pass --identity, or set a password)", cfg.Target)
	}

	hostKey, err := hostKeyCallback(cfg)
	if err != nil {
		closeConn(agentConn)
		return nil, err
	}

	clientCfg := &ssh.ClientConfig{
		User:            cfg.Target.User,
		Auth:            auth,
		HostKeyCallback: hostKey,
		Timeout:         cfg.ConnectTimeout,
	}

	addr := cfg.Target.Address()
	dialer := net.Dialer{Timeout: cfg.ConnectTimeout}
	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		closeConn(agentConn)
		return nil, fmt.Errorf("SSH dial %s: %w", addr, err)
	}

	c, chans, reqs, err := ssh.NewClientConn(conn, addr, clientCfg)
	if err != nil {
		_ = conn.Close()
		closeConn(agentConn)
		return nil, fmt.Errorf("SSH handshake %s: %w", addr, err)
	}

	return &SSH{
		cfg:    cfg,
		sudo:   newSudoAuth(cfg.SudoPassword, cfg.PromptSudoPassword),
		client: ssh.NewClient(c, chans, reqs),
		agent:  agentConn,
	}, nil
}

// authMethods returns the configured authentication methods and the agent
// connection backing them, if any. The caller closes the connection.
func authMethods(cfg SSHConfig) ([]ssh.AuthMethod, net.Conn, error) {
	var methods []ssh.AuthMethod
	var agentConn net.Conn

	if !cfg.DisableAgent {
		if sock := os.Getenv("SSH_AUTH_SOCK"); sock != "" {
			if conn, err := net.Dial("unix", sock); err == nil {
				agentConn = conn
				methods = append(methods, ssh.PublicKeysCallback(agent.NewClient(conn).Signers))
			}
		}
	}

	var signers []ssh.Signer
	for _, f := range cfg.KeyFiles {
		key, err := os.ReadFile(expandHome(f))
		if err != nil {
			closeConn(agentConn)
			return nil, nil, fmt.Errorf("reading SSH key %s: %w", f, err)
		}
		signer, err := ssh.ParsePrivateKey(key)
		if err != nil {
			closeConn(agentConn)
			return nil, nil, fmt.Errorf("parse SSH private key %s: %w", f, err)
		}
		signers = append(signers, signer)
	}
	if len(signers) > 0 {
		methods = append(methods, ssh.PublicKeys(signers...))
	}

	if cfg.Password != "" {
		methods = append(methods, ssh.Password(cfg.Password))
	}
	return methods, agentConn, nil
}

func closeConn(c net.Conn) {
	if c != nil {
		_ = c.Close()
	}
}

// DefaultKeyFiles returns the standard private keys present under ~/.ssh.
func DefaultKeyFiles() []string {
	var files []string
	for _, name := range []string{"id_ed25519", "id_ecdsa", "id_rsa"} {
		p := expandHome("~/.ssh/" + name)
		if info, err := os.Stat(p); err == nil && !info.IsDir() {
			files = append(files, p)
		}
	}
	return files
}

// AgentKeyCount returns the number of keys held by the agent at
// SSH_AUTH_SOCK.
func AgentKeyCount() (int, error) {
	sock := os.Getenv("SSH_AUTH_SOCK")
	if sock == "" {
		return 0, errors.New("SSH_AUTH_SOCK is not set")
	}
	conn, err := net.Dial("unix", sock)
	if err != nil {
		return 0, fmt.Errorf("connecting to SSH agent: %w", err)
	}
	defer func() { _ = conn.Close() }()

	keys, err := agent.NewClient(conn).List()
	if err != nil {
		return 0, fmt.Errorf("listing SSH agent keys: %w", err)
	}
	return len(keys), nil
}

// CheckKeyFile reports whether path holds a private key that can be used
// without a passphrase.
func CheckKeyFile(path string) error {
	key, err := os.ReadFile(expandHome(path))
	if err != nil {
		return err
	}
	if _, err := ssh.ParsePrivateKey(key); err != nil {
		var missing *ssh.PassphraseMissingError
		if errors.As(err, &missing) {
			return fmt.Errorf("%s is passphrase protected; load it into ssh-agent", path)
		}
		return err
	}
	return nil
}

// CheckKnownHosts reports whether file can be used for host key
// verification. An empty file name checks ~/.ssh/known_hosts.
func CheckKnownHosts(file string) error {
	_, err := hostKeyCallback(SSHConfig{KnownHostsFile: file})
	return err
}

func hostKeyCallback(cfg SSHConfig) (ssh.HostKeyCallback, error) {
	if cfg.InsecureIgnoreHostKey {
		return ssh.InsecureIgnoreHostKey(), nil
	}
	file := cfg.KnownHostsFile
	if file == "" {
		file = "~/.ssh/known_hosts"
	}
	cb, err := knownhosts.New(expandHome(file))
	if err != nil {
		return nil, fmt.Errorf("loading known hosts %s: %w", file, err)
	}
	return cb, nil
}

// Name returns the host name.
func (c *SSH) Name() string {
	return c.cfg.Target.Host
}

// Close closes the SSH connection and the agent connection used to open it.
func (c *SSH) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	var err error
	if c.client != nil {
		err = c.client.Close()
		c.client = nil
	}
	if c.agent != nil {
		if aerr := c.agent.Close(); err == nil {
			err = aerr
		}
		c.agent = nil
	}
	return err
}

func (c *SSH) session() (*ssh.Session, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.client == nil {
		return nil, fmt.Errorf("SSH connection to %s is closed", c.Name())
	}
	return c.client.NewSession()
}

// Run executes cmd on the remote host. A sudo password request is answered
// with SudoPassword, then with PromptSudoPassword.
func (c *SSH) Run(ctx context.Context, cmd Command) (Result, error) {
	return c.sudo.run(cmd, func(password string) (Result, error) {
		return c.run(ctx, cmd, password)
	})
}

func (c *SSH) run(ctx context.Context, cmd Command, sudoPassword string) (Result, error) {
	var result Result

	session, err := c.session()
	if err != nil {
		return result, fmt.Errorf("create SSH session: %w", err)
	}
	defer session.Close()

	var stdout, stderr bytes.Buffer
	session.Stdout = tee(&stdout, c.cfg.Stdout)
	session.Stderr = tee(&stderr, c.cfg.Stderr)
	if cmd.Sudo && sudoPassword != "" {
		session.Stdin = strings.NewReader(sudoPassword + "\n")
	}

	err = c.wait(ctx, session, cmd.Line())
	result.Stdout = stdout.String()
	result.Stderr = stderr.String()

	if err != nil {
		var exitErr *ssh.ExitError
		if errors.As(err, &exitErr) {
			result.ExitCode = exitErr.ExitStatus()
			return result, &CommandFailedError{
				Host:     c.Name(),
				Command:  cmd.Script,
				ExitCode: result.ExitCode,
				Stderr:   result.Stderr,
			}
		}
		return result, fmt.Errorf("[%s] %s: %w", c.Name(), cmd.Script, err)
	}
	return result, nil
}

// Upload streams content into path with cat.
func (c *SSH) Upload(ctx context.Context, content io.Reader, dst string, mode os.FileMode) error {
	session, err := c.session()
	if err != nil {
		return fmt.Errorf("create SSH session: %w", err)
	}
	defer session.Close()

	var stderr bytes.Buffer
	session.Stdin = content
	session.Stderr = &stderr

	script := fmt.Sprintf("mkdir -p %s && cat > %s && chmod %o %s",
		Quote(path.Dir(dst)), Quote(dst), mode.Perm(), Quote(dst))
	if err := c.wait(ctx, session, script); err != nil {
		return fmt.Errorf("[%s] upload %s: %w: %s", c.Name(), dst, err, strings.TrimSpace(stderr.String()))
	}
	return nil
}

// wait runs line and returns when it completes or ctx is done.
func (c *SSH) wait(ctx context.Context, session *ssh.Session, line string) error {
	done := make(chan error, 1)
	go func() {
		done <- session.Run(line)
	}()

	select {
	case <-ctx.Done():
		_ = session.Signal(ssh.SIGKILL)
		_ = session.Close()
		return ctx.Err()
	case err := <-done:
		return err
	}
}

func tee(buf *bytes.Buffer, w io.Writer) io.Writer {
	if w == nil {
		return buf
	}
	return io.MultiWriter(buf, w)
}

func expandHome(p string) string {
	if strings.HasPrefix(p, "~/") {
		if home, err := os.UserHomeDir(); err == nil {
			return filepath.Join(home, p[2:])
		}
	}
	return p
}
