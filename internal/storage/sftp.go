package storage

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"path"
	"strconv"
	"sync"

	"github.com/pkg/sftp"
	"golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/knownhosts"

	"github.com/sudoservertools/sstbridge/internal/config"
)

const posixRenameExt = "posix-rename@openssh.com"

// SFTP stores files on a remote host over SSH. The connection is dialed lazily and redialed
// after a transport failure.
type SFTP struct {
	mu     sync.Mutex
	base   string
	dial   func() (*sftp.Client, io.Closer, error)
	client *sftp.Client
	conn   io.Closer
}

// NewSFTP returns a store rooted at base on the configured host.
func NewSFTP(cfg config.SFTPConfig, base string) (*SFTP, error) {
	sshCfg, err := sshClientConfig(cfg)
	if err != nil {
		return nil, err
	}
	addr := net.JoinHostPort(cfg.Host, strconv.Itoa(cfg.Port))
	dial := func() (*sftp.Client, io.Closer, error) {
		conn, err := ssh.Dial("tcp", addr, sshCfg)
		if err != nil {
			return nil, nil, fmt.Errorf("ssh dial %s: %w", addr, err)
		}
		client, err := sftp.NewClient(conn)
		if err != nil {
			_ = conn.Close()
			return nil, nil, fmt.Errorf("start sftp session: %w", err)
		}
		return client, conn, nil
	}
	return &SFTP{base: base, dial: dial}, nil
}

// NewSFTPFromClient wraps an established client. The store does not redial.
func NewSFTPFromClient(client *sftp.Client, base string) *SFTP {
	return &SFTP{base: base, client: client}
}

func sshClientConfig(cfg config.SFTPConfig) (*ssh.ClientConfig, error) {
	var auth []ssh.AuthMethod
	if cfg.KeyFile != "" {
		key, err := os.ReadFile(cfg.KeyFile)
		if err != nil {
			return nil, fmt.Errorf("read sftp key file: %w", err)
		}
		signer, err := ssh.ParsePrivateKey(key)
		if err != nil {
			return nil, fmt.Errorf("parse sftp key file: %w", err)
		}
		auth = append(auth, ssh.PublicKeys(signer))
	}
	if cfg.Password != "" {
		auth = append(auth, ssh.Password(cfg.Password))
	}

	hostKey := ssh.InsecureIgnoreHostKey() // #nosec G106 - only when known_hosts is not configured
	if cfg.KnownHosts != "" {
		cb, err := knownhosts.New(cfg.KnownHosts)
		if err != nil {
			return nil, fmt.Errorf("load known_hosts: %w", err)
		}
		hostKey = cb
	}

	return &ssh.ClientConfig{
		User:            cfg.User,
		Auth:            auth,
		HostKeyCallback: hostKey,
		Timeout:         cfg.Timeout,
	}, nil
}

func (s *SFTP) resolve(p string) (string, error) {
	clean, err := CleanPath(p)
	if err != nil {
		return "", err
	}
	return path.Join(s.base, clean), nil
}

// session returns the live client, dialing if needed. Caller holds s.mu.
func (s *SFTP) session() (*sftp.Client, error) {
	if s.client != nil {
		return s.client, nil
	}
	if s.dial == nil {
		return nil, errors.New("sftp client closed")
	}
	client, conn, err := s.dial()
	if err != nil {
		return nil, err
	}
	s.client, s.conn = client, conn
	return client, nil
}

// fail drops the session after a transport error so the next call redials.
func (s *SFTP) fail(err error) {
	if err == nil || errors.Is(err, os.ErrNotExist) || s.dial == nil {
		return
	}
	var status *sftp.StatusError
	if errors.As(err, &status) {
		return
	}
	s.closeLocked()
}

func (s *SFTP) Read(ctx context.Context, p string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	full, err := s.resolve(p)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	client, err := s.session()
	if err != nil {
		return nil, err
	}

	f, err := client.Open(full)
	if errors.Is(err, os.ErrNotExist) {
		return nil, notExist("read", p)
	}
	if err != nil {
		s.fail(err)
		return nil, fmt.Errorf("read %s: %w", p, err)
	}
	defer func() { _ = f.Close() }()

	data, err := io.ReadAll(f)
	if err != nil {
		s.fail(err)
		return nil, fmt.Errorf("read %s: %w", p, err)
	}
	return data, nil
}

func (s *SFTP) Stat(ctx context.Context, p string) (FileInfo, error) {
	if err := ctx.Err(); err != nil {
		return FileInfo{}, err
	}
	full, err := s.resolve(p)
	if err != nil {
		return FileInfo{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	client, err := s.session()
	if err != nil {
		return FileInfo{}, err
	}

	info, err := client.Stat(full)
	if errors.Is(err, os.ErrNotExist) {
		return FileInfo{}, notExist("stat", p)
	}
	if err != nil {
		s.fail(err)
		return FileInfo{}, fmt.Errorf("stat %s: %w", p, err)
	}
	return FileInfo{Path: p, Size: info.Size(), ModTime: info.ModTime()}, nil
}

// Write uploads to a temp name beside the target and renames it into place. Without the
// posix-rename extension the target is removed first, which leaves a short window where
// readers see no file; they treat that as an empty document.
func (s *SFTP) Write(ctx context.Context, p string, data []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	full, err := s.resolve(p)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	client, err := s.session()
	if err != nil {
		return err
	}

	if err := client.MkdirAll(path.Dir(full)); err != nil {
		s.fail(err)
		return fmt.Errorf("create dir for %s: %w", p, err)
	}

	tmp := full + ".tmp-" + randSuffix()
	if err := upload(client, tmp, data); err != nil {
		_ = client.Remove(tmp)
		s.fail(err)
		return fmt.Errorf("upload %s: %w", p, err)
	}

	if _, ok := client.HasExtension(posixRenameExt); ok {
		err = client.PosixRename(tmp, full)
	} else {
		if rmErr := client.Remove(full); rmErr != nil && !errors.Is(rmErr, os.ErrNotExist) {
			err = rmErr
		} else {
			err = client.Rename(tmp, full)
		}
	}
	if err != nil {
		_ = client.Remove(tmp)
		s.fail(err)
		return fmt.Errorf("rename %s: %w", p, err)
	}
	return nil
}

func upload(client *sftp.Client, name string, data []byte) error {
	f, err := client.Create(name)
	if err != nil {
		return err
	}
	if _, err := f.Write(data); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}

func (s *SFTP) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	err := s.closeLocked()
	s.dial = nil
	return err
}

func (s *SFTP) closeLocked() error {
	var err error
	if s.client != nil {
		err = s.client.Close()
		s.client = nil
	}
	if s.conn != nil {
		_ = s.conn.Close()
		s.conn = nil
	}
	return err
}

func randSuffix() string {
	var b [6]byte
	_, _ = rand.Read(b[:])
	return hex.EncodeToString(b[:])
}
