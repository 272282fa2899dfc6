package transfer

import (
	"context"
	"fmt"
	"io"
	"net"
	"os"
	"path"
	"path/filepath"
	"sync"
	"time"

	"github.com/pkg/sftp"
	"golang.org/x/crypto/ssh"

	"github.com/forgeapp/forge/internal/config"
)

const sftpDialTimeout = 15 * time.Second

// sftpTransport deploys over SSH. Every upload worker holds its own SSH
// connection; the transport itself keeps one for control operations.
type sftpTransport struct {
	remote    *config.Remote
	localPath string
	ignore    *Ignore
	journal   *resumeJournal

	conn   *ssh.Client
	client *sftp.Client

	// createdDirs caches remote directories made during a run so workers
	// skip redundant MkdirAll round trips.
	dirMu       sync.Mutex
	createdDirs map[string]struct{}
}

func newSFTPTransport(remote *config.Remote, localPath string, ignore *Ignore) *sftpTransport {
	return &sftpTransport{
		remote:      remote,
		localPath:   localPath,
		ignore:      ignore,
		journal:     openResumeJournal(localPath),
		createdDirs: make(map[string]struct{}),
	}
}

func (t *sftpTransport) dial(ctx context.Context) (*ssh.Client, *sftp.Client, error) {
	cfg := &ssh.ClientConfig{
		User:            t.remote.Username,
		Auth:            []ssh.AuthMethod{ssh.Password(t.remote.Password)},
		HostKeyCallback: ssh.InsecureIgnoreHostKey(),
		Timeout:         sftpDialTimeout,
	}

	d := net.Dialer{Timeout: sftpDialTimeout}
	netConn, err := d.DialContext(ctx, "tcp", t.remote.Addr())
	if err != nil {
		return nil, nil, fmt.Errorf("sftp dial: %w", err)
	}

	sshConn, chans, reqs, err := ssh.NewClientConn(netConn, t.remote.Addr(), cfg)
	if err != nil {
		netConn.Close()
		return nil, nil, fmt.Errorf("sftp handshake: %w", err)
	}
	conn := ssh.NewClient(sshConn, chans, reqs)

	client, err := sftp.NewClient(conn)
	if err != nil {
		conn.Close()
		return nil, nil, fmt.Errorf("sftp subsystem: %w", err)
	}
	return conn, client, nil
}

func (t *sftpTransport) connect(ctx context.Context) error {
	if t.client != nil {
		return nil
	}
	conn, client, err := t.dial(ctx)
	if err != nil {
		return err
	}
	t.conn = conn
	t.client = client
	return nil
}

func (t *sftpTransport) TestConnection(ctx context.Context) error {
	conn, client, err := t.dial(ctx)
	if err != nil {
		return err
	}
	defer conn.Close()
	defer client.Close()

	if _, err := client.Getwd(); err != nil {
		return fmt.Errorf("sftp getwd: %w", err)
	}
	return nil
}

func (t *sftpTransport) Preview(ctx context.Context) ([]FileChange, error) {
	if err := t.connect(ctx); err != nil {
		return nil, err
	}

	local, err := ScanLocal(t.localPath, t.ignore)
	if err != nil {
		return nil, err
	}

	remote, err := t.scanRemote(ctx, t.remote.RemotePath, "")
	if err != nil {
		return nil, err
	}

	return BuildDiff(local, remote), nil
}

// scanRemote walks the remote tree rooted at dir. A missing root is treated
// as an empty remote so first deployments diff cleanly.
func (t *sftpTransport) scanRemote(ctx context.Context, dir, rel string) ([]remoteEntry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	entries, err := t.client.ReadDir(dir)
	if err != nil {
		if rel == "" && os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("sftp readdir %s: %w", dir, err)
	}

	var files []remoteEntry
	for _, e := range entries {
		childRel := e.Name()
		if rel != "" {
			childRel = rel + "/" + e.Name()
		}
		if e.IsDir() {
			sub, err := t.scanRemote(ctx, path.Join(dir, e.Name()), childRel)
			if err != nil {
				return nil, err
			}
			files = append(files, sub...)
			continue
		}
		if !e.Mode().IsRegular() {
			continue
		}
		files = append(files, remoteEntry{RelPath: childRel, Size: e.Size()})
	}
	return files, nil
}

func (t *sftpTransport) Sync(ctx context.Context, diff []FileChange, dryRun bool, onProgress ProgressFunc) (*Report, error) {
	factory := func(ctx context.Context) (uploadSession, error) {
		conn, client, err := t.dial(ctx)
		if err != nil {
			return nil, err
		}
		return &sftpSession{transport: t, conn: conn, client: client}, nil
	}
	return runUploads(ctx, diff, dryRun, factory, onProgress)
}

func (t *sftpTransport) Close() error {
	if t.client != nil {
		t.client.Close()
		t.client = nil
	}
	if t.conn != nil {
		err := t.conn.Close()
		t.conn = nil
		return err
	}
	return nil
}

type sftpSession struct {
	transport *sftpTransport
	conn      *ssh.Client
	client    *sftp.Client
}

func (s *sftpSession) ensureDir(dir string) error {
	t := s.transport
	t.dirMu.Lock()
	_, done := t.createdDirs[dir]
	t.dirMu.Unlock()
	if done {
		return nil
	}

	if err := s.client.MkdirAll(dir); err != nil {
		return fmt.Errorf("sftp mkdir %s: %w", dir, err)
	}

	t.dirMu.Lock()
	t.createdDirs[dir] = struct{}{}
	t.dirMu.Unlock()
	return nil
}

func (s *sftpSession) uploadFile(ctx context.Context, relPath string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	remotePath := path.Join(s.transport.remote.RemotePath, relPath)
	if err := s.ensureDir(path.Dir(remotePath)); err != nil {
		return err
	}

	src, err := os.Open(filepath.Join(s.transport.localPath, filepath.FromSlash(relPath)))
	if err != nil {
		return err
	}
	defer src.Close()

	info, err := src.Stat()
	if err != nil {
		return err
	}
	size := info.Size()

	j := s.transport.journal
	var offset int64
	if j.resumable(relPath, size) {
		if st, err := s.client.Stat(remotePath); err == nil {
			offset = j.resumeOffset(relPath, size, st.Size())
		}
	}
	j.begin(relPath, size)

	var dst *sftp.File
	if offset > 0 {
		if _, err := src.Seek(offset, io.SeekStart); err != nil {
			return err
		}
		dst, err = s.client.OpenFile(remotePath, os.O_WRONLY|os.O_APPEND)
	} else {
		dst, err = s.client.Create(remotePath)
	}
	if err != nil {
		return fmt.Errorf("sftp open %s: %w", remotePath, err)
	}

	if _, err := io.Copy(dst, src); err != nil {
		dst.Close()
		return fmt.Errorf("sftp write %s: %w", remotePath, err)
	}
	if err := dst.Close(); err != nil {
		return err
	}
	j.finish(relPath)
	return nil
}

func (s *sftpSession) close() error {
	s.client.Close()
	return s.conn.Close()
}
