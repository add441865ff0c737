// Copyright (c) 2022 The rcproxy Authors
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

package reactor

import (
	"fmt"
	"net"
	"strconv"

	"golang.org/x/sys/unix"
)

// InetAddress wraps a resolved IPv4/IPv6 socket address. It is the Go
// analogue of muduo's InetAddress: a thin, copyable value around a
// sockaddr, not a live resource.
type InetAddress struct {
	ip   net.IP
	port uint16
	ipv6 bool
}

// NewInetAddress resolves host:port (host may be empty to mean INADDR_ANY).
func NewInetAddress(host string, port uint16) (InetAddress, error) {
	var ip net.IP
	if host == "" {
		ip = net.IPv4zero
	} else {
		ips, err := net.LookupIP(host)
		if err != nil {
			return InetAddress{}, err
		}
		ip = ips[0]
	}
	return InetAddress{ip: ip, port: port, ipv6: ip.To4() == nil}, nil
}

// ResolveTCPAddr performs the single blocking hostname resolution the spec
// allows (no async DNS, no caching).
func ResolveTCPAddr(hostport string) (InetAddress, error) {
	host, portStr, err := net.SplitHostPort(hostport)
	if err != nil {
		return InetAddress{}, err
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		return InetAddress{}, err
	}
	return NewInetAddress(host, uint16(port))
}

// ResolveAddr accepts a config-file style "tcp://host:port" address (or a
// bare "host:port"), validates the scheme via parseNetAddr, and resolves
// it to an InetAddress. This is how the cmd/ demo binaries turn a
// Config.Addr string into the value NewTCPServer/NewTCPClient expect.
func ResolveAddr(addr string) (InetAddress, error) {
	_, hostport, err := parseNetAddr(addr)
	if err != nil {
		return InetAddress{}, err
	}
	return ResolveTCPAddr(hostport)
}

func inetAddressFromSockaddr(sa unix.Sockaddr) InetAddress {
	switch a := sa.(type) {
	case *unix.SockaddrInet4:
		return InetAddress{ip: net.IP(a.Addr[:]).To4(), port: uint16(a.Port)}
	case *unix.SockaddrInet6:
		ip := make(net.IP, 16)
		copy(ip, a.Addr[:])
		return InetAddress{ip: ip, port: uint16(a.Port), ipv6: true}
	}
	return InetAddress{}
}

func (a InetAddress) toSockaddr() unix.Sockaddr {
	if a.ipv6 {
		sa := &unix.SockaddrInet6{Port: int(a.port)}
		copy(sa.Addr[:], a.ip.To16())
		return sa
	}
	sa := &unix.SockaddrInet4{Port: int(a.port)}
	copy(sa.Addr[:], a.ip.To4())
	return sa
}

// IP returns the address's IP.
func (a InetAddress) IP() net.IP { return a.ip }

// Port returns the address's port.
func (a InetAddress) Port() uint16 { return a.port }

// IsIPv6 reports whether the address holds an IPv6 literal.
func (a InetAddress) IsIPv6() bool { return a.ipv6 }

// IsZero reports whether this is the zero-value InetAddress.
func (a InetAddress) IsZero() bool { return a.ip == nil && a.port == 0 }

// String renders "ip:port", matching net.JoinHostPort semantics.
func (a InetAddress) String() string {
	if a.ip == nil {
		return fmt.Sprintf(":%d", a.port)
	}
	return net.JoinHostPort(a.ip.String(), strconv.Itoa(int(a.port)))
}
