package main

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/dustin/go-humanize"
	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

var (
	verifyAs      string
	verifyKeyring string

	verifyCmd = &cobra.Command{
		Use:   "verify <container>",
		Short: "Authenticates every chunk of a container without writing plaintext",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			containerPath := args[0]
			if verifyAs != "" && verifyKeyring == "" {
				return fmt.Errorf("--as requires --keyring")
			}

			engine, err := newEngine(verifyKeyring, "", 0)
			if err != nil {
				return err
			}
			material, discard, err := resolveMaterial(verifyAs)
			if err != nil {
				return err
			}
			defer discard()

			man, err := engine.Inspect(containerPath)
			if err != nil {
				return err
			}

			s, cleanup := startSpinner("Verifying " + filepath.Base(containerPath) + "...")
			defer cleanup()

			if err := engine.Verify(context.Background(), containerPath, material); err != nil {
				return err
			}

			s.FinalMSG = color.GreenString("✓") + " Verified " + containerPath +
				fmt.Sprintf(" (%d parts, %s, %s)", man.ChunkCount, humanize.IBytes(uint64(man.TotalSize)), man.Cipher)
			return nil
		},
	}
)

func init() {
	verifyCmd.Flags().StringVar(&verifyAs, "as", "", "open as this recipient (requires --keyring)")
	verifyCmd.Flags().StringVarP(&verifyKeyring, "keyring", "k", "", "keyring file with recipient keys")
}
