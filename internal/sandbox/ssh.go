package sandbox

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"net"
	"os"
	"os/user"
	"path"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"ptcagent/internal/logging"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/pkg/sftp"
	"golang.org/x/crypto/ssh"
)

// SSHConfig holds connection configuration.
type SSHConfig struct {
	Host          string
	Port          int
	User          string
	KeyPath       string
	KeyPassphrase string
	Password      string // Fallback if no key
	Timeout       time.Duration
	// HomeDir is the working directory relative paths resolve against.
	HomeDir string
}

// DefaultSSHConfig returns a configuration with sensible defaults.
func DefaultSSHConfig() SSHConfig {
	username := "root"
	if u, err := user.Current(); err == nil {
		username = u.Username
	}
	return SSHConfig{
		Port:    22,
		User:    username,
		KeyPath: "~/.ssh/id_ed25519",
		Timeout: 30 * time.Second,
		HomeDir: "/home/daytona",
	}
}

// SSH is a sandbox reached over SSH, with files accessed through SFTP.
type SSH struct {
	config SSHConfig
	conn   *ssh.Client
	mu     sync.Mutex
}

// NewSSH creates an SSH sandbox. No connection is made until first use.
func NewSSH(config SSHConfig) *SSH {
	if config.Port == 0 {
		config.Port = 22
	}
	if config.HomeDir == "" {
		config.HomeDir = "/"
	}
	return &SSH{config: config}
}

// Connect establishes the SSH connection, reusing a live one.
func (s *SSH) Connect(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.connectLocked(ctx)
}

func (s *SSH) connectLocked(ctx context.Context) error {
	if s.conn != nil {
		if _, _, err := s.conn.SendRequest("keepalive@openssh.com", true, nil); err == nil {
			return nil
		}
		s.conn.Close()
		s.conn = nil
	}

	clientConfig, err := s.buildClientConfig()
	if err != nil {
		return fmt.Errorf("failed to build SSH config: %w", err)
	}

	addr := net.JoinHostPort(s.config.Host, fmt.Sprint(s.config.Port))
	logging.Info("sandbox_ssh_connect", "addr", addr, "user", s.config.User)

	dialer := &net.Dialer{Timeout: s.config.Timeout}
	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to connect to sandbox %s: %w", addr, err)
	}

	sshConn, chans, reqs, err := ssh.NewClientConn(conn, addr, clientConfig)
	if err != nil {
		conn.Close()
		return fmt.Errorf("ssh: handshake failed: %w", err)
	}

	s.conn = ssh.NewClient(sshConn, chans, reqs)
	logging.Info("sandbox_ssh_connected", "host", s.config.Host)
	return nil
}

// buildClientConfig creates the ssh.ClientConfig.
func (s *SSH) buildClientConfig() (*ssh.ClientConfig, error) {
	var authMethods []ssh.AuthMethod

	if s.config.KeyPath != "" {
		if signer, err := loadSigner(expandPath(s.config.KeyPath), s.config.KeyPassphrase); err == nil {
			authMethods = append(authMethods, ssh.PublicKeys(signer))
		} else if !errors.Is(err, fs.ErrNotExist) {
			logging.Warn("sandbox_ssh_key_unusable", "path", s.config.KeyPath, "error", err)
		}
	}

	if len(authMethods) == 0 {
		for _, keyFile := range []string{"id_ed25519", "id_ecdsa", "id_rsa"} {
			if signer, err := loadSigner(expandPath(filepath.Join("~/.ssh", keyFile)), ""); err == nil {
				authMethods = append(authMethods, ssh.PublicKeys(signer))
				break
			}
		}
	}

	if s.config.Password != "" {
		authMethods = append(authMethods, ssh.Password(s.config.Password))
	}

	if len(authMethods) == 0 {
		return nil, fmt.Errorf("no authentication method available")
	}

	return &ssh.ClientConfig{
		User: s.config.User,
		Auth: authMethods,
		// Sandboxes are ephemeral and re-provisioned with new host keys.
		HostKeyCallback: ssh.InsecureIgnoreHostKey(),
		Timeout:         s.config.Timeout,
	}, nil
}

func loadSigner(keyPath, passphrase string) (ssh.Signer, error) {
	key, err := os.ReadFile(keyPath)
	if err != nil {
		return nil, err
	}
	if passphrase != "" {
		return ssh.ParsePrivateKeyWithPassphrase(key, []byte(passphrase))
	}
	return ssh.ParsePrivateKey(key)
}

// withSFTP runs fn with an SFTP client over the current connection.
func (s *SSH) withSFTP(ctx context.Context, fn func(*sftp.Client) error) error {
	s.mu.Lock()
	if err := s.connectLocked(ctx); err != nil {
		s.mu.Unlock()
		return err
	}
	conn := s.conn
	s.mu.Unlock()

	client, err := sftp.NewClient(conn)
	if err != nil {
		return fmt.Errorf("failed to create SFTP client: %w", err)
	}
	defer client.Close()
	return fn(client)
}

// NormalizePath resolves p against the sandbox home directory.
func (s *SSH) NormalizePath(p string) string {
	if strings.HasPrefix(p, "/") {
		return path.Clean(p)
	}
	return path.Join(s.config.HomeDir, p)
}

// ReadFile reads a file via SFTP.
func (s *SSH) ReadFile(ctx context.Context, p string) (string, error) {
	var content string
	err := s.withSFTP(ctx, func(client *sftp.Client) error {
		f, err := client.Open(p)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return ErrNotFound
			}
			return fmt.Errorf("failed to open remote file: %w", err)
		}
		defer f.Close()

		data, err := io.ReadAll(f)
		if err != nil {
			return fmt.Errorf("failed to read remote file: %w", err)
		}
		content = string(data)
		return nil
	})
	return content, err
}

// GlobFiles walks dir on the sandbox and returns files matching pattern.
// The pattern is matched against paths relative to dir.
func (s *SSH) GlobFiles(ctx context.Context, pattern, dir string) ([]string, error) {
	root := s.NormalizePath(dir)
	var files []string
	err := s.withSFTP(ctx, func(client *sftp.Client) error {
		walker := client.Walk(root)
		for walker.Step() {
			if err := ctx.Err(); err != nil {
				return err
			}
			if err := walker.Err(); err != nil {
				continue
			}
			p := walker.Path()
			if walker.Stat().IsDir() {
				if p != root && skipDirs[path.Base(p)] {
					walker.SkipDir()
				}
				continue
			}
			rel := strings.TrimPrefix(strings.TrimPrefix(p, root), "/")
			if ok, _ := doublestar.Match(pattern, rel); ok {
				files = append(files, p)
				if len(files) >= maxListedFiles {
					return nil
				}
			}
		}
		return nil
	})
	return files, err
}

// Health checks the connection with an SSH keepalive.
func (s *SSH) Health(ctx context.Context) error {
	s.mu.Lock()
	conn := s.conn
	s.mu.Unlock()

	if conn == nil {
		return fmt.Errorf("sandbox is not connected")
	}

	done := make(chan error, 1)
	go func() {
		_, _, err := conn.SendRequest("keepalive@openssh.com", true, nil)
		done <- err
	}()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case err := <-done:
		if err != nil {
			return fmt.Errorf("sandbox keepalive failed: %w", err)
		}
		return nil
	}
}

// Reconnect closes the current connection and dials a new one.
func (s *SSH) Reconnect(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.conn != nil {
		s.conn.Close()
		s.conn = nil
	}
	return s.connectLocked(ctx)
}

// Close closes the SSH connection.
func (s *SSH) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.conn != nil {
		err := s.conn.Close()
		s.conn = nil
		return err
	}
	return nil
}

// expandPath expands ~ to home directory.
func expandPath(p string) string {
	if strings.HasPrefix(p, "~/") {
		if home, err := os.UserHomeDir(); err == nil {
			return filepath.Join(home, p[2:])
		}
	}
	return p
}
