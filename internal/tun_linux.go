//go:build linux && !baremetal

package internal

import (
	"errors"
	"fmt"
	"math/bits"
	"net/netip"
	"os/exec"
	"unsafe"

	"golang.org/x/sys/unix"
)

// Tun is a Linux TUN device: a virtual network interface that exchanges
// whole IPv4 (or IPv6) datagrams with userspace, with no Ethernet framing.
// IFF_NO_PI is always requested so Read/Write see a bare IP datagram rather
// than the 4 byte packet-information header the kernel can optionally
// prepend.
type Tun struct {
	fd   int
	name string
}

// NewTun opens /dev/net/tun, creates (or attaches to) the interface named
// name, and if ip is valid brings the interface up with that address
// assigned, shelling out to the "ip" command the same way a TAP device is
// configured.
func NewTun(name string, ip netip.Prefix) (*Tun, error) {
	if len(name) >= unix.IFNAMSIZ {
		return nil, errors.New("name too large")
	}
	fd, err := unix.Open("/dev/net/tun", unix.O_RDWR, 0)
	if err != nil {
		return nil, fmt.Errorf("failed to open tun device: %w", err)
	}
	ifr := makeifreq(name)
	ifr.setflags(uint16(unix.IFF_TUN | unix.IFF_NO_PI))
	if err := ioctlTun(fd, unix.TUNSETIFF, ifr.ptr()); err != nil {
		return nil, fmt.Errorf("creating tun interface: %w", err)
	}
	if ip.IsValid() {
		if err := exec.Command("ip", "link", "set", "dev", name, "up").Run(); err != nil {
			return nil, fmt.Errorf("failed to set ip link: %w", err)
		}
		if err := exec.Command("ip", "addr", "add", ip.String(), "dev", name).Run(); err != nil {
			return nil, fmt.Errorf("failed to assign IP address: %w", err)
		}
	}
	return &Tun{fd: fd, name: name}, nil
}

// Read reads one IPv4 datagram from the device into b.
func (t *Tun) Read(b []byte) (int, error) { return unix.Read(t.fd, b) }

// Write writes one IPv4 datagram to the device.
func (t *Tun) Write(b []byte) (int, error) { return unix.Write(t.fd, b) }

// Close releases the device's file descriptor. The interface itself is torn
// down by the kernel once the last reference to it closes.
func (t *Tun) Close() error { return unix.Close(t.fd) }

// MTU returns the interface's configured MTU in bytes.
func (t *Tun) MTU() (int, error) {
	sock, err := tunSocket()
	if err != nil {
		return 0, err
	}
	defer unix.Close(sock)
	ifr := makeifreq(t.name)
	if err := ioctlTun(sock, unix.SIOCGIFMTU, ifr.ptr()); err != nil {
		return 0, err
	}
	mtu := *(*int32)(unsafe.Pointer(&ifr.Data[0]))
	return int(mtu), nil
}

// IPMask returns the interface's assigned address and netmask as a prefix.
func (t *Tun) IPMask() (netip.Prefix, error) {
	sock, err := tunSocket()
	if err != nil {
		return netip.Prefix{}, err
	}
	defer unix.Close(sock)
	addrp, err := tunSocketAddr(sock, t.name)
	if err != nil {
		return netip.Prefix{}, err
	}
	ifr := makeifreq(t.name)
	if err := ioctlTun(sock, unix.SIOCGIFNETMASK, ifr.ptr()); err != nil {
		return netip.Prefix{}, err
	}
	mask := [4]byte{ifr.Data[4], ifr.Data[5], ifr.Data[6], ifr.Data[7]}
	cidr := bits.OnesCount32(uint32(mask[0])<<24 | uint32(mask[1])<<16 | uint32(mask[2])<<8 | uint32(mask[3]))
	return netip.PrefixFrom(addrp, cidr), nil
}

func tunSocket() (int, error) {
	sock, err := unix.Socket(unix.AF_INET, unix.SOCK_DGRAM, unix.IPPROTO_IP)
	if err != nil {
		return 0, fmt.Errorf("tun socket open: %w", err)
	}
	return sock, nil
}

func tunSocketAddr(sockfd int, ifaceName string) (netip.Addr, error) {
	ifr := makeifreq(ifaceName)
	if err := ioctlTun(sockfd, unix.SIOCGIFADDR, ifr.ptr()); err != nil {
		return netip.Addr{}, err
	}
	family := *(*uint16)(unsafe.Pointer(&ifr.Data[0]))
	if family != unix.AF_INET {
		return netip.Addr{}, fmt.Errorf("unsupported IP addr family=%d", family)
	}
	addr, _ := netip.AddrFromSlice(ifr.Data[4:8])
	return addr, nil
}

func ioctlTun(fd int, request uintptr, argp unsafe.Pointer) error {
	_, _, errno := unix.Syscall(unix.SYS_IOCTL, uintptr(fd), request, uintptr(argp))
	if errno != 0 {
		return errno
	}
	return nil
}

func makeifreq(name string) ifreq {
	var ifr ifreq
	copy(ifr.Name[:], name)
	return ifr
}

type ifreq struct {
	Name [unix.IFNAMSIZ]byte
	Data [64]byte
}

func (ifr *ifreq) setflags(flags uint16) {
	*(*uint16)(unsafe.Pointer(&ifr.Data[0])) = flags
}

func (ifr *ifreq) ptr() unsafe.Pointer { return unsafe.Pointer(ifr) }
