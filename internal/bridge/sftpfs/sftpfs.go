// Package sftpfs provides a device bridge over SSH/SFTP, for devices running
// an SSH server (Termux, rooted sshd builds, emulators with port forwards).
package sftpfs

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"strings"
	"time"

	"github.com/pkg/sftp"
	"golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/agent"
	"golang.org/x/crypto/ssh/knownhosts"

	"github.com/haukened/otpsnap/internal/app"
	"github.com/haukened/otpsnap/internal/domain"
)

var _ app.Bridge = (*Bridge)(nil)

// Config describes how to reach the device.
type Config struct {
	Addr       string        // host:port; port 22 is added when missing
	User       string        // login name
	KeyFile    string        // private key; the SSH agent is used when empty
	KnownHosts string        // known_hosts file used to verify the host key
	Timeout    time.Duration // dial timeout
}

// Bridge implements app.Bridge with an SFTP session.
type Bridge struct {
	conn   *ssh.Client
	client *sftp.Client
}

// Dial connects and starts an SFTP session. The host key must be present in
// cfg.KnownHosts.
func Dial(cfg Config) (*Bridge, error) {
	auth, err := authMethod(cfg.KeyFile)
	if err != nil {
		return nil, err
	}
	hostKeyCallback, err := knownhosts.New(cfg.KnownHosts)
	if err != nil {
		return nil, fmt.Errorf("load known_hosts %s: %w", cfg.KnownHosts, err)
	}
	addr := cfg.Addr
	if _, _, err := net.SplitHostPort(addr); err != nil {
		addr = net.JoinHostPort(strings.Trim(addr, "[]"), "22")
	}
	conn, err := ssh.Dial("tcp", addr, &ssh.ClientConfig{
		User:            cfg.User,
		Auth:            []ssh.AuthMethod{auth},
		HostKeyCallback: hostKeyCallback,
		Timeout:         cfg.Timeout,
	})
	if err != nil {
		return nil, fmt.Errorf("ssh dial %s: %w", addr, err)
	}
	client, err := sftp.NewClient(conn)
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to create sftp client: %w", err)
	}
	return &Bridge{conn: conn, client: client}, nil
}

// NewFromClient wraps an established SFTP client. Close closes the client.
func NewFromClient(client *sftp.Client) *Bridge {
	return &Bridge{client: client}
}

func authMethod(keyFile string) (ssh.AuthMethod, error) {
	if keyFile != "" {
		pem, err := os.ReadFile(keyFile) // #nosec G304: operator-supplied key path.
		if err != nil {
			return nil, fmt.Errorf("read private key: %w", err)
		}
		signer, err := ssh.ParsePrivateKey(pem)
		if err != nil {
			return nil, fmt.Errorf("unable to parse private key: %w", err)
		}
		return ssh.PublicKeys(signer), nil
	}
	if sock := os.Getenv("SSH_AUTH_SOCK"); sock != "" {
		if c, err := net.Dial("unix", sock); err == nil {
			return ssh.PublicKeysCallback(agent.NewClient(c).Signers), nil
		}
	}
	return nil, errors.New("no authentication method available (no key file provided and no ssh agent found)")
}

// ReadFile opens remotePath for streaming.
func (b *Bridge) ReadFile(ctx context.Context, remotePath string) (io.ReadCloser, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	f, err := b.client.Open(remotePath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", domain.ErrNotFound, remotePath)
		}
		return nil, fmt.Errorf("%w: %s: %w", domain.ErrTransfer, remotePath, err)
	}
	return f, nil
}

// Close closes the SFTP session and the SSH connection.
func (b *Bridge) Close() error {
	var errs []error
	if b.client != nil {
		errs = append(errs, b.client.Close())
	}
	if b.conn != nil {
		errs = append(errs, b.conn.Close())
	}
	return errors.Join(errs...)
}
