// Command tuntcpd brings up a TUN interface and serves a single echo
// listener over it, exercising the full accept/read/write/close path of the
// tcp package end to end.
package main

import (
	"context"
	"fmt"
	"io"
	"log"
	"log/slog"
	"net/netip"
	"os/signal"
	"syscall"

	"github.com/nilsocket/tuntcp/tcp"
)

func main() {
	if err := run(); err != nil {
		log.Fatalln("failed:", err)
	}
	fmt.Println("finished")
}

func run() error {
	const (
		ifaceName = "tun0"
		ifaceCIDR = "192.168.10.1/24"
		boundPort = 7000
	)
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	prefix, err := netip.ParsePrefix(ifaceCIDR)
	if err != nil {
		return err
	}

	logger := slog.Default()
	iface, err := tcp.NewInterface(tcp.InterfaceConfig{Name: ifaceName, Addr: prefix, Log: logger})
	if err != nil {
		return err
	}
	ln, err := iface.Bind(boundPort)
	if err != nil {
		iface.Close()
		return err
	}
	go serveEcho(ln, logger)

	logger.Info("listening", slog.String("iface", ifaceName), slog.Int("port", boundPort))
	<-ctx.Done()
	return iface.Close()
}

// serveEcho accepts connections forever and copies everything it reads back
// to the sender. Each connection's loop ends, closing the stream, once Read
// reports an error or io.EOF; a peer's FIN in ESTABLISHED is not processed
// by the tcp package, so it does not by itself end the loop.
func serveEcho(ln *tcp.Listener, logger *slog.Logger) {
	for {
		s, err := ln.Accept()
		if err != nil {
			logger.Error("accept", slog.Any("err", err))
			return
		}
		go func() {
			defer s.Close()
			buf := make([]byte, 4096)
			for {
				n, err := s.Read(buf)
				if n > 0 {
					if _, werr := s.Write(buf[:n]); werr != nil {
						logger.Error("echo write", slog.Any("err", werr))
						return
					}
				}
				if err != nil {
					if err != io.EOF {
						logger.Error("echo read", slog.Any("err", err))
					}
					return
				}
			}
		}()
	}
}
