// Copyright (c) 2022 The rcproxy Authors
// Copyright (c) 2019 Andy Pan
// Copyright (c) 2024 The netreactor Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Socket-level syscall helpers. The teacher vendors these behind a
// core/internal/socket sub-package that was not retrieved whole into this
// tree (only a single poller file survived in the pack); the calls below
// are inlined directly against golang.org/x/sys/unix instead of
// reconstructing that sub-package from a single file's imports.
package reactor

import (
	"os"
	"unsafe"

	"golang.org/x/sys/unix"

	"netreactor/pkg/errors"
)

// listenSocket creates, binds and listens on a TCP socket for addr,
// returning the non-blocking descriptor. reusePort enables SO_REUSEPORT so
// that an EventLoopThreadPool can run one accepting socket per loop.
func listenSocket(addr InetAddress, reusePort bool, backlog int) (fd int, err error) {
	domain := unix.AF_INET
	if addr.IsIPv6() {
		domain = unix.AF_INET6
	}
	fd, err = unix.Socket(domain, unix.SOCK_STREAM, unix.IPPROTO_TCP)
	if err != nil {
		return -1, os.NewSyscallError("socket", err)
	}
	if err = unix.SetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_REUSEADDR, 1); err != nil {
		unix.Close(fd)
		return -1, os.NewSyscallError("setsockopt SO_REUSEADDR", err)
	}
	if reusePort {
		if err = unix.SetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_REUSEPORT, 1); err != nil {
			unix.Close(fd)
			return -1, os.NewSyscallError("setsockopt SO_REUSEPORT", err)
		}
	}
	if err = unix.Bind(fd, addr.toSockaddr()); err != nil {
		unix.Close(fd)
		return -1, os.NewSyscallError("bind", err)
	}
	if err = unix.Listen(fd, backlog); err != nil {
		unix.Close(fd)
		return -1, os.NewSyscallError("listen", err)
	}
	if err = unix.SetNonblock(fd, true); err != nil {
		unix.Close(fd)
		return -1, os.NewSyscallError("setnonblock", err)
	}
	return fd, nil
}

// connectSocket creates a non-blocking socket and starts an asynchronous
// connect(2) to addr. err is non-nil and wraps unix.EINPROGRESS on the
// common "connect started, not yet complete" path; callers must watch the
// descriptor's writable event and check SO_ERROR to discover the outcome.
func connectSocket(addr InetAddress) (fd int, err error) {
	domain := unix.AF_INET
	if addr.IsIPv6() {
		domain = unix.AF_INET6
	}
	fd, err = unix.Socket(domain, unix.SOCK_STREAM|unix.SOCK_NONBLOCK, unix.IPPROTO_TCP)
	if err != nil {
		return -1, os.NewSyscallError("socket", err)
	}
	err = unix.Connect(fd, addr.toSockaddr())
	if err != nil && err != unix.EINPROGRESS {
		unix.Close(fd)
		return -1, os.NewSyscallError("connect", err)
	}
	return fd, err
}

// socketError reads and clears SO_ERROR on fd, the standard way to learn
// the outcome of a non-blocking connect() once the descriptor is writable.
func socketError(fd int) error {
	errno, err := unix.GetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_ERROR)
	if err != nil {
		return os.NewSyscallError("getsockopt SO_ERROR", err)
	}
	if errno != 0 {
		return unix.Errno(errno)
	}
	return nil
}

func acceptSocket(listenFd int) (fd int, addr InetAddress, err error) {
	nfd, sa, err := unix.Accept4(listenFd, unix.SOCK_NONBLOCK|unix.SOCK_CLOEXEC)
	if err != nil {
		if err == unix.EAGAIN {
			return -1, InetAddress{}, nil
		}
		return -1, InetAddress{}, os.NewSyscallError("accept4", err)
	}
	return nfd, inetAddressFromSockaddr(sa), nil
}

func localAddr(fd int) InetAddress {
	sa, err := unix.Getsockname(fd)
	if err != nil {
		return InetAddress{}
	}
	return inetAddressFromSockaddr(sa)
}

func peerAddr(fd int) InetAddress {
	sa, err := unix.Getpeername(fd)
	if err != nil {
		return InetAddress{}
	}
	return inetAddressFromSockaddr(sa)
}

func setTCPNoDelay(fd int, on bool) error {
	v := 0
	if on {
		v = 1
	}
	return os.NewSyscallError("setsockopt TCP_NODELAY", unix.SetsockoptInt(fd, unix.IPPROTO_TCP, unix.TCP_NODELAY, v))
}

func setKeepAlive(fd int, on bool, idleSec int) error {
	v := 0
	if on {
		v = 1
	}
	if err := unix.SetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_KEEPALIVE, v); err != nil {
		return os.NewSyscallError("setsockopt SO_KEEPALIVE", err)
	}
	if on && idleSec > 0 {
		_ = unix.SetsockoptInt(fd, unix.IPPROTO_TCP, unix.TCP_KEEPIDLE, idleSec)
	}
	return nil
}

func shutdownWrite(fd int) error {
	return os.NewSyscallError("shutdown", unix.Shutdown(fd, unix.SHUT_WR))
}

func closeFd(fd int) error {
	return os.NewSyscallError("close", unix.Close(fd))
}

func readv(fd int, bufs [][]byte) (int, error) {
	iovs := make([]unix.Iovec, 0, len(bufs))
	for i := range bufs {
		if len(bufs[i]) == 0 {
			continue
		}
		iovs = append(iovs, unix.Iovec{Base: &bufs[i][0]})
		iovs[len(iovs)-1].SetLen(len(bufs[i]))
	}
	if len(iovs) == 0 {
		return 0, nil
	}
	n, _, errno := unix.Syscall(unix.SYS_READV, uintptr(fd), uintptr(unsafe.Pointer(&iovs[0])), uintptr(len(iovs)))
	if errno != 0 {
		if errno == unix.EAGAIN {
			return 0, nil
		}
		return 0, os.NewSyscallError("readv", errno)
	}
	return int(n), nil
}

func writev(fd int, bufs [][]byte) (int, error) {
	iovs := make([]unix.Iovec, 0, len(bufs))
	for i := range bufs {
		if len(bufs[i]) == 0 {
			continue
		}
		iovs = append(iovs, unix.Iovec{Base: &bufs[i][0]})
		iovs[len(iovs)-1].SetLen(len(bufs[i]))
	}
	if len(iovs) == 0 {
		return 0, nil
	}
	n, _, errno := unix.Syscall(unix.SYS_WRITEV, uintptr(fd), uintptr(unsafe.Pointer(&iovs[0])), uintptr(len(iovs)))
	if errno != 0 {
		if errno == unix.EAGAIN {
			return 0, nil
		}
		return 0, os.NewSyscallError("writev", errno)
	}
	return int(n), nil
}

// parseNetAddr mirrors the teacher's gnet.parseProtoAddr: it splits a
// "tcp://host:port" style address into network and plain host:port, only
// tcp/tcp4/tcp6 are accepted per spec.md's scope.
func parseNetAddr(addr string) (network, address string, err error) {
	network = "tcp"
	address = addr
	if idx := indexOf(addr, "://"); idx >= 0 {
		network = addr[:idx]
		address = addr[idx+3:]
	}
	switch network {
	case "tcp", "tcp4", "tcp6":
	default:
		return "", "", errors.ErrUnsupportedProtocol
	}
	return
}

func indexOf(s, sub string) int {
	for i := 0; i+len(sub) <= len(s); i++ {
		if s[i:i+len(sub)] == sub {
			return i
		}
	}
	return -1
}
