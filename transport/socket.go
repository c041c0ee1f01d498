/*
 * Copyright (c) 2019 Wren IM project contributors.
 * See the LICENSE file for more information.
 */

package transport

import (
	"bufio"
	"io"
	"net"
	"time"

	"github.com/wren-im/wren/xmpp"
)

const socketBuffSize = 4096

type socketTransport struct {
	conn      net.Conn
	br        *bufio.Reader
	bw        *bufio.Writer
	keepAlive time.Duration
}

// NewSocketTransport creates a socket class stream transport.
func NewSocketTransport(conn net.Conn, keepAlive time.Duration) Transport {
	s := &socketTransport{
		conn:      conn,
		br:        bufio.NewReaderSize(conn, socketBuffSize),
		bw:        bufio.NewWriterSize(conn, socketBuffSize),
		keepAlive: keepAlive,
	}
	return s
}

func (s *socketTransport) Type() TransportType {
	return Socket
}

func (s *socketTransport) Read(p []byte) (n int, err error) {
	if s.keepAlive > 0 {
		s.conn.SetReadDeadline(time.Now().Add(s.keepAlive))
	}
	return s.br.Read(p)
}

func (s *socketTransport) Write(p []byte) (n int, err error) {
	defer s.bw.Flush()
	return s.bw.Write(p)
}

func (s *socketTransport) Close() error {
	return s.conn.Close()
}

func (s *socketTransport) WriteString(str string) error {
	defer s.bw.Flush()
	_, err := io.WriteString(s.bw, str)
	return err
}

func (s *socketTransport) WriteElement(elem xmpp.XElement, includeClosing bool) error {
	defer s.bw.Flush()
	elem.ToXML(s.bw, includeClosing)
	return nil
}
