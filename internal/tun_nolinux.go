//go:build !linux || tinygo

package internal

import (
	"errors"
	"net/netip"
)

// Tun is unsupported on this platform; every method returns
// errors.ErrUnsupported.
type Tun struct{}

func NewTun(name string, ip netip.Prefix) (*Tun, error) {
	return nil, errors.ErrUnsupported
}

func (t *Tun) Read(b []byte) (int, error)  { return -1, errors.ErrUnsupported }
func (t *Tun) Write(b []byte) (int, error) { return -1, errors.ErrUnsupported }
func (t *Tun) Close() error                { return errors.ErrUnsupported }
func (t *Tun) MTU() (int, error)           { return -1, errors.ErrUnsupported }
func (t *Tun) IPMask() (netip.Prefix, error) {
	return netip.Prefix{}, errors.ErrUnsupported
}
