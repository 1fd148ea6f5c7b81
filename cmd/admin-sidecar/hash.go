package main

import (
	"bufio"
	"errors"
	"fmt"
	"strings"

	"github.com/urfave/cli/v2"

	"github.com/yndnr/admin-sidecar/internal/core/service"
)

// hashPasswordCommand prints the argon2id hash of a password read from
// stdin, for use as AUTH_PASSWORD_HASH.
func hashPasswordCommand() *cli.Command {
	return &cli.Command{
		Name:  "hash-password",
		Usage: "read a password from stdin and print its argon2id hash",
		Action: func(c *cli.Context) error {
			line, err := bufio.NewReader(c.App.Reader).ReadString('\n')
			if err != nil && line == "" {
				return fmt.Errorf("read password: %w", err)
			}
			password := strings.TrimRight(line, "\r\n")
			if password == "" {
				return errors.New("empty password")
			}

			encoded, err := service.HashPassword(password)
			if err != nil {
				return fmt.Errorf("hash password: %w", err)
			}
			fmt.Fprintln(c.App.Writer, encoded)
			return nil
		},
	}
}
