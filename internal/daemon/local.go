package daemon

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"time"
)

// request/response framing for the local daemon socket protocol: one
// JSON object per line in, one JSON object per line out. The actual
// package-builder daemon's wire protocol is an external, out-of-scope
// concern (original_source/src/nix_interface/daemon.rs talks to a real
// "nix daemon --stdio" process); this line-JSON protocol is relaycache's
// own minimal contract for whatever local process implements Daemon on
// the other end of the socket.
type request struct {
	Op        string   `json:"op"`
	StorePath string   `json:"store_path,omitempty"`
	Paths     []string `json:"paths,omitempty"`
}

type response struct {
	OK       bool     `json:"ok"`
	Error    string   `json:"error,omitempty"`
	Exists   bool     `json:"exists,omitempty"`
	NarSize  uint64   `json:"nar_size,omitempty"`
	Deriver  string   `json:"deriver,omitempty"`
	RefPaths []string `json:"references,omitempty"`
}

// LocalSocket is a Daemon backed by a Unix domain socket.
type LocalSocket struct {
	socketPath string
	conn       net.Conn
	rw         *bufio.ReadWriter
}

// DialLocal connects to the daemon listening on a Unix socket at path.
func DialLocal(ctx context.Context, path string) (*LocalSocket, error) {
	d := net.Dialer{}
	conn, err := d.DialContext(ctx, "unix", path)
	if err != nil {
		return nil, fmt.Errorf("daemon: dial local socket %s: %w", path, err)
	}
	return &LocalSocket{
		socketPath: path,
		conn:       conn,
		rw:         bufio.NewReadWriter(bufio.NewReader(conn), bufio.NewWriter(conn)),
	}, nil
}

func (l *LocalSocket) roundTrip(ctx context.Context, req request) (response, error) {
	var resp response
	if dl, ok := ctx.Deadline(); ok {
		l.conn.SetDeadline(dl)
		defer l.conn.SetDeadline(time.Time{})
	}
	data, err := json.Marshal(req)
	if err != nil {
		return resp, err
	}
	if _, err := l.rw.Write(append(data, '\n')); err != nil {
		return resp, fmt.Errorf("daemon: write request: %w", err)
	}
	if err := l.rw.Flush(); err != nil {
		return resp, fmt.Errorf("daemon: flush request: %w", err)
	}
	line, err := l.rw.ReadBytes('\n')
	if err != nil {
		return resp, fmt.Errorf("daemon: read response: %w", err)
	}
	if err := json.Unmarshal(line, &resp); err != nil {
		return resp, fmt.Errorf("daemon: decode response: %w", err)
	}
	if !resp.OK {
		return resp, fmt.Errorf("daemon: %s", resp.Error)
	}
	return resp, nil
}

func (l *LocalSocket) PathExists(ctx context.Context, storePath string) (bool, error) {
	resp, err := l.roundTrip(ctx, request{Op: "path_exists", StorePath: storePath})
	if err != nil {
		return false, err
	}
	return resp.Exists, nil
}

func (l *LocalSocket) QueryPathInfo(ctx context.Context, storePath string) (PathInfo, error) {
	resp, err := l.roundTrip(ctx, request{Op: "query_path_info", StorePath: storePath})
	if err != nil {
		return PathInfo{}, err
	}
	if !resp.Exists {
		return PathInfo{}, ErrPathNotFound
	}
	return PathInfo{NarSize: resp.NarSize, Deriver: resp.Deriver, References: resp.RefPaths}, nil
}

// NarFromPath opens a dedicated connection for the archive stream: the
// control channel used by PathExists/QueryPathInfo/BuildPaths is
// request/response and cannot be interleaved with a long streaming
// reply, so each archive fetch gets its own short-lived connection that
// the daemon writes raw archive bytes to after the request line.
func (l *LocalSocket) NarFromPath(ctx context.Context, storePath string) (io.ReadCloser, error) {
	d := net.Dialer{}
	conn, err := d.DialContext(ctx, "unix", l.socketPath)
	if err != nil {
		return nil, fmt.Errorf("daemon: dial local socket for stream: %w", err)
	}
	data, err := json.Marshal(request{Op: "nar_from_path", StorePath: storePath})
	if err != nil {
		conn.Close()
		return nil, err
	}
	if _, err := conn.Write(append(data, '\n')); err != nil {
		conn.Close()
		return nil, fmt.Errorf("daemon: write stream request: %w", err)
	}
	return conn, nil
}

func (l *LocalSocket) BuildPaths(ctx context.Context, storePaths []string) error {
	_, err := l.roundTrip(ctx, request{Op: "build_paths", Paths: storePaths})
	return err
}

func (l *LocalSocket) Close() error {
	return l.conn.Close()
}
