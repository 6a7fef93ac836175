package mdsip

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"path/filepath"

	"golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/agent"
	"golang.org/x/crypto/ssh/knownhosts"
)

// DefaultPort is the mdsip TCP port.
const DefaultPort = "8000"

// DefaultSSHCommand starts an mdsip server on the remote side talking over
// the session's stdin/stdout.
const DefaultSSHCommand = "/bin/sh -l -c mdsip-server-ssh"

// DialTCP connects to an mdsip server listening on addr ("host" or
// "host:port") and logs in as user.
func DialTCP(ctx context.Context, addr, user string) (*Conn, error) {
	if _, _, err := net.SplitHostPort(addr); err != nil {
		addr = net.JoinHostPort(addr, DefaultPort)
	}
	var d net.Dialer
	nc, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, err
	}
	return NewConn(ctx, nc, user)
}

// SSHConfig describes an mdsip-over-ssh endpoint.
type SSHConfig struct {
	User string
	Host string // "host" or "host:port"
	// KeyFiles are tried in addition to the ssh agent. Empty means the
	// usual files in ~/.ssh.
	KeyFiles []string
	// KnownHostsFile defaults to ~/.ssh/known_hosts.
	KnownHostsFile string
	Command        string
}

// DialSSH opens an ssh session, starts the remote mdsip server in it and
// logs in.
func DialSSH(ctx context.Context, cfg SSHConfig) (*Conn, error) {
	addr := cfg.Host
	if _, _, err := net.SplitHostPort(addr); err != nil {
		addr = net.JoinHostPort(addr, "22")
	}

	hostKeys, err := hostKeyCallback(cfg.KnownHostsFile)
	if err != nil {
		return nil, err
	}
	auth, closeAgent := authMethods(cfg.KeyFiles)
	defer closeAgent()
	if len(auth) == 0 {
		return nil, errors.New("no ssh agent and no usable private key")
	}

	var d net.Dialer
	nc, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, err
	}
	command := cfg.Command
	if command == "" {
		command = DefaultSSHCommand
	}
	stream, err := startSSH(ctx, nc, addr, &ssh.ClientConfig{
		User:            cfg.User,
		Auth:            auth,
		HostKeyCallback: hostKeys,
	}, command)
	if err != nil {
		return nil, err
	}
	return NewConn(ctx, stream, cfg.User)
}

// startSSH runs the ssh handshake over nc and starts command in a session.
// nc is closed when ctx ends before the session is up.
func startSSH(ctx context.Context, nc net.Conn, addr string, config *ssh.ClientConfig, command string) (*sshStream, error) {
	stop := context.AfterFunc(ctx, func() { nc.Close() })
	stream, err := openSession(nc, addr, config, command)
	if !stop() {
		if stream != nil {
			stream.Close()
		}
		return nil, fmt.Errorf("ssh setup with %s: %w", addr, context.Cause(ctx))
	}
	if err != nil {
		nc.Close()
		return nil, err
	}
	return stream, nil
}

func openSession(nc net.Conn, addr string, config *ssh.ClientConfig, command string) (*sshStream, error) {
	sc, chans, reqs, err := ssh.NewClientConn(nc, addr, config)
	if err != nil {
		return nil, err
	}
	client := ssh.NewClient(sc, chans, reqs)

	session, err := client.NewSession()
	if err != nil {
		client.Close()
		return nil, err
	}
	stdin, err := session.StdinPipe()
	if err != nil {
		client.Close()
		return nil, err
	}
	stdout, err := session.StdoutPipe()
	if err != nil {
		client.Close()
		return nil, err
	}
	if err := session.Start(command); err != nil {
		client.Close()
		return nil, fmt.Errorf("starting %q: %w", command, err)
	}
	return &sshStream{
		Reader:  stdout,
		stdin:   stdin,
		session: session,
		client:  client,
	}, nil
}

type sshStream struct {
	io.Reader
	stdin   io.WriteCloser
	session *ssh.Session
	client  *ssh.Client
}

func (s *sshStream) Write(p []byte) (int, error) {
	return s.stdin.Write(p)
}

func (s *sshStream) Close() error {
	s.stdin.Close()
	s.session.Close()
	return s.client.Close()
}

func hostKeyCallback(path string) (ssh.HostKeyCallback, error) {
	if path == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, err
		}
		path = filepath.Join(home, ".ssh", "known_hosts")
	}
	cb, err := knownhosts.New(path)
	if err != nil {
		return nil, fmt.Errorf("loading known hosts: %w", err)
	}
	return cb, nil
}

func authMethods(keyFiles []string) ([]ssh.AuthMethod, func()) {
	var methods []ssh.AuthMethod
	closeAgent := func() {}

	if sock := os.Getenv("SSH_AUTH_SOCK"); sock != "" {
		if ac, err := net.Dial("unix", sock); err == nil {
			methods = append(methods, ssh.PublicKeysCallback(agent.NewClient(ac).Signers))
			closeAgent = func() { ac.Close() }
		}
	}

	if len(keyFiles) == 0 {
		if home, err := os.UserHomeDir(); err == nil {
			for _, name := range []string{"id_ed25519", "id_ecdsa", "id_rsa"} {
				keyFiles = append(keyFiles, filepath.Join(home, ".ssh", name))
			}
		}
	}
	var signers []ssh.Signer
	for _, f := range keyFiles {
		pem, err := os.ReadFile(f)
		if err != nil {
			continue
		}
		signer, err := ssh.ParsePrivateKey(pem)
		if err != nil {
			continue
		}
		signers = append(signers, signer)
	}
	if len(signers) > 0 {
		methods = append(methods, ssh.PublicKeys(signers...))
	}
	return methods, closeAgent
}
