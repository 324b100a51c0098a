// Package network serves query-per-line SQL over TCP against one
// *recordb.Database, using repl's result formatting for each connection.
package network

import (
	"bufio"
	"fmt"
	"io"
	"log/slog"
	"net"
	"strings"

	"github.com/leengari/recordb"
	"github.com/leengari/recordb/internal/repl"
)

// Start binds port and serves query connections against db until
// listener.Accept fails.
func Start(port int, db *recordb.Database) error {
	addr := fmt.Sprintf(":%d", port)
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("network: binding %s: %w", addr, err)
	}
	defer listener.Close()

	slog.Info("network: listening", "port", port)

	for {
		conn, err := listener.Accept()
		if err != nil {
			return fmt.Errorf("network: accept failed: %w", err)
		}
		go handleConnection(conn, db)
	}
}

func handleConnection(conn net.Conn, db *recordb.Database) {
	defer conn.Close()
	scanner := bufio.NewScanner(conn)

	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())

		if line == "" {
			continue
		}
		if line == "exit" || line == "\\q" {
			return
		}

		result, err := db.Query(line)
		if err != nil {
			io.WriteString(conn, fmt.Sprintf("error: %v\n", err))
			continue
		}
		repl.PrintResult(conn, result)
	}

	if err := scanner.Err(); err != nil {
		slog.Error("network: connection error", "remote_addr", conn.RemoteAddr(), "error", err)
	}
}
