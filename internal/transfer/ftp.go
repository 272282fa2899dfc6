package transfer

import (
	"context"
	"crypto/tls"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/jlaffaye/ftp"

	"github.com/forgeapp/forge/internal/config"
)

const ftpDialTimeout = 15 * time.Second

// ftpTransport deploys over plain FTP or explicit FTPS.
type ftpTransport struct {
	remote    *config.Remote
	localPath string
	ignore    *Ignore
	journal   *resumeJournal

	conn *ftp.ServerConn

	dirMu       sync.Mutex
	createdDirs map[string]struct{}
}

func newFTPTransport(remote *config.Remote, localPath string, ignore *Ignore) *ftpTransport {
	return &ftpTransport{
		remote:      remote,
		localPath:   localPath,
		ignore:      ignore,
		journal:     openResumeJournal(localPath),
		createdDirs: make(map[string]struct{}),
	}
}

func (t *ftpTransport) dial(ctx context.Context) (*ftp.ServerConn, error) {
	opts := []ftp.DialOption{
		ftp.DialWithContext(ctx),
		ftp.DialWithTimeout(ftpDialTimeout),
	}
	if t.remote.Protocol == config.ProtocolFTPS {
		opts = append(opts, ftp.DialWithExplicitTLS(&tls.Config{
			ServerName: t.remote.Host,
		}))
	}
	if !t.remote.Passive {
		// The client is passive only; this falls back from EPSV to PASV
		// for servers that reject extended passive mode.
		opts = append(opts, ftp.DialWithDisabledEPSV(true))
	}

	conn, err := ftp.Dial(t.remote.Addr(), opts...)
	if err != nil {
		return nil, fmt.Errorf("ftp dial: %w", err)
	}
	if err := conn.Login(t.remote.Username, t.remote.Password); err != nil {
		conn.Quit()
		return nil, fmt.Errorf("ftp login: %w", err)
	}
	return conn, nil
}

func (t *ftpTransport) connect(ctx context.Context) error {
	if t.conn != nil {
		return nil
	}
	conn, err := t.dial(ctx)
	if err != nil {
		return err
	}
	t.conn = conn
	return nil
}

func (t *ftpTransport) TestConnection(ctx context.Context) error {
	conn, err := t.dial(ctx)
	if err != nil {
		return err
	}
	defer conn.Quit()

	if _, err := conn.CurrentDir(); err != nil {
		return fmt.Errorf("ftp pwd: %w", err)
	}
	return nil
}

func (t *ftpTransport) Preview(ctx context.Context) ([]FileChange, error) {
	if err := t.connect(ctx); err != nil {
		return nil, err
	}

	local, err := ScanLocal(t.localPath, t.ignore)
	if err != nil {
		return nil, err
	}

	remote, err := t.scanRemote(ctx, t.conn, t.remote.RemotePath, "")
	if err != nil {
		return nil, err
	}

	return BuildDiff(local, remote), nil
}

// scanRemote lists the remote tree rooted at dir. Listing failures at the
// root mean the directory does not exist yet, which diffs as an empty
// remote.
func (t *ftpTransport) scanRemote(ctx context.Context, conn *ftp.ServerConn, dir, rel string) ([]remoteEntry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	entries, err := conn.List(dir)
	if err != nil {
		if rel == "" {
			return nil, nil
		}
		return nil, fmt.Errorf("ftp list %s: %w", dir, err)
	}

	var files []remoteEntry
	for _, e := range entries {
		if e.Name == "." || e.Name == ".." {
			continue
		}
		childRel := e.Name
		if rel != "" {
			childRel = rel + "/" + e.Name
		}
		switch e.Type {
		case ftp.EntryTypeFolder:
			sub, err := t.scanRemote(ctx, conn, path.Join(dir, e.Name), childRel)
			if err != nil {
				return nil, err
			}
			files = append(files, sub...)
		case ftp.EntryTypeFile:
			files = append(files, remoteEntry{RelPath: childRel, Size: int64(e.Size)})
		}
	}
	return files, nil
}

func (t *ftpTransport) Sync(ctx context.Context, diff []FileChange, dryRun bool, onProgress ProgressFunc) (*Report, error) {
	factory := func(ctx context.Context) (uploadSession, error) {
		conn, err := t.dial(ctx)
		if err != nil {
			return nil, err
		}
		return &ftpSession{transport: t, conn: conn}, nil
	}
	return runUploads(ctx, diff, dryRun, factory, onProgress)
}

func (t *ftpTransport) Close() error {
	if t.conn == nil {
		return nil
	}
	err := t.conn.Quit()
	t.conn = nil
	return err
}

type ftpSession struct {
	transport *ftpTransport
	conn      *ftp.ServerConn
}

// ensureDir creates every missing segment of dir. FTP has no MKD -p, so
// each level is attempted and failures are tolerated when the directory
// already exists.
func (s *ftpSession) ensureDir(dir string) error {
	if dir == "" || dir == "." || dir == "/" {
		return nil
	}

	t := s.transport
	t.dirMu.Lock()
	_, done := t.createdDirs[dir]
	t.dirMu.Unlock()
	if done {
		return nil
	}

	segments := strings.Split(strings.Trim(dir, "/"), "/")
	current := ""
	if strings.HasPrefix(dir, "/") {
		current = "/"
	}
	for _, seg := range segments {
		current = path.Join(current, seg)
		t.dirMu.Lock()
		_, exists := t.createdDirs[current]
		t.dirMu.Unlock()
		if exists {
			continue
		}
		// MakeDir errors when the directory exists; verify with a listing
		// before treating it as fatal.
		if err := s.conn.MakeDir(current); err != nil {
			if _, lerr := s.conn.List(current); lerr != nil {
				return fmt.Errorf("ftp mkdir %s: %w", current, err)
			}
		}
		t.dirMu.Lock()
		t.createdDirs[current] = struct{}{}
		t.dirMu.Unlock()
	}
	return nil
}

func (s *ftpSession) uploadFile(ctx context.Context, relPath string) error {
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
		if remoteSize, err := s.conn.FileSize(remotePath); err == nil {
			offset = j.resumeOffset(relPath, size, remoteSize)
		}
	}
	j.begin(relPath, size)

	if offset > 0 {
		if _, err := src.Seek(offset, io.SeekStart); err != nil {
			return err
		}
	}
	// StorFrom issues REST before STOR; servers then append at the offset.
	// A zero offset is a plain store.
	if err := s.conn.StorFrom(remotePath, src, uint64(offset)); err != nil {
		return fmt.Errorf("ftp stor %s: %w", remotePath, err)
	}
	j.finish(relPath)
	return nil
}

func (s *ftpSession) close() error {
	return s.conn.Quit()
}
