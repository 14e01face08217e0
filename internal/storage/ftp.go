package storage

import (
	"bytes"
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"net"
	"net/textproto"
	"path"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/jlaffaye/ftp"

	"github.com/sudoservertools/sstbridge/internal/config"
)

// FTP stores files on an FTP server. The control connection is not safe for concurrent use,
// so every operation runs under mu; a failed operation drops the connection and the next one
// redials.
type FTP struct {
	mu   sync.Mutex
	cfg  config.FTPConfig
	base string
	conn *ftp.ServerConn
}

// NewFTP returns a store rooted at base on the configured server. Nothing is dialed until the
// first operation.
func NewFTP(cfg config.FTPConfig, base string) *FTP {
	return &FTP{cfg: cfg, base: strings.TrimSuffix(base, "/")}
}

func (f *FTP) resolve(p string) (string, error) {
	clean, err := CleanPath(p)
	if err != nil {
		return "", err
	}
	if f.base == "" {
		return clean, nil
	}
	return path.Join(f.base, clean), nil
}

// session returns a logged-in connection. Caller holds f.mu.
func (f *FTP) session(ctx context.Context) (*ftp.ServerConn, error) {
	if f.conn != nil {
		return f.conn, nil
	}
	addr := net.JoinHostPort(f.cfg.Host, strconv.Itoa(f.cfg.Port))
	opts := []ftp.DialOption{
		ftp.DialWithContext(ctx),
		ftp.DialWithTimeout(f.cfg.Timeout),
	}
	if f.cfg.TLS {
		opts = append(opts, ftp.DialWithExplicitTLS(&tls.Config{
			ServerName: f.cfg.Host,
			MinVersion: tls.VersionTLS12,
		}))
	}
	conn, err := ftp.Dial(addr, opts...)
	if err != nil {
		return nil, fmt.Errorf("ftp dial %s: %w", addr, err)
	}
	user := f.cfg.User
	if user == "" {
		user = "anonymous"
	}
	if err := conn.Login(user, f.cfg.Password); err != nil {
		_ = conn.Quit()
		return nil, fmt.Errorf("ftp login: %w", err)
	}
	f.conn = conn
	return conn, nil
}

func (f *FTP) drop() {
	if f.conn != nil {
		_ = f.conn.Quit()
		f.conn = nil
	}
}

// isMissing reports a 550 reply, which servers use for "no such file".
func isMissing(err error) bool {
	var tpErr *textproto.Error
	return errors.As(err, &tpErr) && tpErr.Code == ftp.StatusFileUnavailable
}

func (f *FTP) Read(ctx context.Context, p string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	full, err := f.resolve(p)
	if err != nil {
		return nil, err
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	conn, err := f.session(ctx)
	if err != nil {
		return nil, err
	}

	resp, err := conn.Retr(full)
	if isMissing(err) {
		return nil, notExist("read", p)
	}
	if err != nil {
		f.drop()
		return nil, fmt.Errorf("read %s: %w", p, err)
	}
	data, err := io.ReadAll(resp)
	closeErr := resp.Close()
	if err != nil {
		f.drop()
		return nil, fmt.Errorf("read %s: %w", p, err)
	}
	if closeErr != nil {
		f.drop()
		return nil, fmt.Errorf("read %s: %w", p, closeErr)
	}
	return data, nil
}

func (f *FTP) Stat(ctx context.Context, p string) (FileInfo, error) {
	if err := ctx.Err(); err != nil {
		return FileInfo{}, err
	}
	full, err := f.resolve(p)
	if err != nil {
		return FileInfo{}, err
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	conn, err := f.session(ctx)
	if err != nil {
		return FileInfo{}, err
	}

	size, err := conn.FileSize(full)
	if isMissing(err) {
		return FileInfo{}, notExist("stat", p)
	}
	if err != nil {
		f.drop()
		return FileInfo{}, fmt.Errorf("stat %s: %w", p, err)
	}
	// MDTM is optional; a server without it reports a zero mod time.
	var mod time.Time
	if t, err := conn.GetTime(full); err == nil {
		mod = t
	}
	return FileInfo{Path: p, Size: size, ModTime: mod}, nil
}

// Write stores to a temp name and renames it over the target. Servers that refuse to rename
// onto an existing file get the target deleted first.
func (f *FTP) Write(ctx context.Context, p string, data []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	full, err := f.resolve(p)
	if err != nil {
		return err
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	conn, err := f.session(ctx)
	if err != nil {
		return err
	}

	f.mkdirAll(conn, path.Dir(full))

	tmp := full + ".tmp-" + randSuffix()
	if err := conn.Stor(tmp, bytes.NewReader(data)); err != nil {
		f.drop()
		return fmt.Errorf("upload %s: %w", p, err)
	}
	if err := conn.Rename(tmp, full); err != nil {
		if delErr := conn.Delete(full); delErr != nil && !isMissing(delErr) {
			_ = conn.Delete(tmp)
			f.drop()
			return fmt.Errorf("replace %s: %w", p, delErr)
		}
		if err := conn.Rename(tmp, full); err != nil {
			_ = conn.Delete(tmp)
			f.drop()
			return fmt.Errorf("rename %s: %w", p, err)
		}
	}
	return nil
}

// mkdirAll creates each component of dir, ignoring "already exists" replies.
func (f *FTP) mkdirAll(conn *ftp.ServerConn, dir string) {
	if dir == "." || dir == "/" || dir == "" {
		return
	}
	prefix := ""
	if strings.HasPrefix(dir, "/") {
		prefix = "/"
	}
	cur := prefix
	for _, part := range strings.Split(strings.Trim(dir, "/"), "/") {
		cur = path.Join(cur, part)
		_ = conn.MakeDir(cur)
	}
}

func (f *FTP) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.drop()
	return nil
}
