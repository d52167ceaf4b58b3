package main

import (
	"fmt"
	"os"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

var (
	verbose      bool
	debug        bool
	passwordFile string
	workers      int
	logger       Logger

	rootCmd = &cobra.Command{
		Use:   "sealbox",
		Short: "Sealbox - encrypted, chunk-addressable file containers.",
		Long: `Sealbox turns files into encrypted container directories. Each container
holds a manifest and fixed-size encrypted parts; the original filename is
stored encrypted and every byte is integrity protected.

Containers are protected either by a password or for a set of recipients
holding RSA keys. Recipients can be added to an existing container without
re-encrypting its contents.

Usage:
  sealbox <command> [flags]

Run 'sealbox help <command>' for more details on a specific command.
`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			logger = Logger{Verbose: verbose, Debug: debug}
		},
	}
)

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable verbose output")
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "enable debug output")
	rootCmd.PersistentFlags().StringVar(&passwordFile, "password-file", "", "read the container password from the first line of this file")
	rootCmd.PersistentFlags().IntVar(&workers, "workers", 0, "maximum parallel chunk workers (default: number of CPUs)")

	rootCmd.AddCommand(sealCmd)
	rootCmd.AddCommand(unsealCmd)
	rootCmd.AddCommand(verifyCmd)
	rootCmd.AddCommand(inspectCmd)
	rootCmd.AddCommand(shareCmd)
	rootCmd.AddCommand(rekeyCmd)
	rootCmd.AddCommand(keygenCmd)
	rootCmd.AddCommand(contactsCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Println(color.RedString("✗ ") + err.Error())
		os.Exit(1)
	}
}
