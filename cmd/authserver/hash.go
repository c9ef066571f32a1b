package main

import (
	"bufio"
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/giantswarm/oauth-engine/security"
)

func newHashCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "hash [secret]",
		Short: "Print the bcrypt hash of a client secret or password",
		Long: `Print the bcrypt hash of a client secret or password for the
secret_hash and password_hash fields of a seed file. The secret is read
from standard input when not given as an argument.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var secret string
			if len(args) == 1 {
				secret = args[0]
			} else {
				line, err := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
				if err != nil && line == "" {
					return fmt.Errorf("read secret: %w", err)
				}
				secret = strings.TrimRight(line, "\r\n")
			}
			if secret == "" {
				return errors.New("secret is empty")
			}
			hash, err := security.HashSecret(secret)
			if err != nil {
				return err
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), hash)
			return err
		},
	}
}
