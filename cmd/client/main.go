package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"net"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/andy6609/chat-relay/internal/client"
	"github.com/andy6609/chat-relay/internal/config"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "chat client: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.LoadClient(flag.CommandLine, os.Args[1:])
	if err != nil {
		return err
	}

	fmt.Printf("Attempting to connect to %s at %d\n", cfg.Host, cfg.Port)
	conn, err := net.Dial("tcp", cfg.Address())
	if err != nil {
		return fmt.Errorf("could not connect to the chat: %w", err)
	}
	defer conn.Close()

	stdin := bufio.NewReader(os.Stdin)
	fmt.Print("Write your name and start to chat: ")
	name, err := stdin.ReadString('\n')
	if err != nil {
		return fmt.Errorf("read name: %w", err)
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return fmt.Errorf("a name is required")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	return client.New(conn, name, stdin, os.Stdout).Run(ctx)
}
