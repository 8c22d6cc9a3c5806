package cmd

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ZanzyTHEbar/sports-data-agent/sda/auth"
)

var hashPasswordCmd = &cobra.Command{
	Use:   "hash-password",
	Short: "Print the bcrypt hash of a password for the credentials file",
	RunE: func(cmd *cobra.Command, args []string) error {
		pw, err := readPassword("Password: ")
		if err != nil {
			return err
		}
		again, err := readPassword("Repeat password: ")
		if err != nil {
			return err
		}
		if pw != again {
			return errors.New("passwords do not match")
		}
		hash, err := auth.HashPassword(pw)
		if err != nil {
			return err
		}
		fmt.Println(hash)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(hashPasswordCmd)
}
