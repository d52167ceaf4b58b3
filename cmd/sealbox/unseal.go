package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

var (
	unsealOutput  string
	unsealAs      string
	unsealKeyring string
	unsealForce   bool

	unsealCmd = &cobra.Command{
		Use:   "unseal <container>",
		Short: "Decrypts a container back into the original file",
		Long: `Unseal verifies and decrypts a container. By default the file is restored
under its original name in the current directory; --output names either a
directory or the exact destination file. The destination appears only after
every chunk has verified.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			containerPath := args[0]
			if unsealAs != "" && unsealKeyring == "" {
				return fmt.Errorf("--as requires --keyring")
			}

			engine, err := newEngine(unsealKeyring, "", 0)
			if err != nil {
				return err
			}
			material, discard, err := resolveMaterial(unsealAs)
			if err != nil {
				return err
			}
			defer discard()

			// Resolve the destination. When --output is empty or names a
			// directory, the encrypted filename decides the final name.
			destPath := unsealOutput
			if info, err := os.Stat(destPath); destPath == "" || (err == nil && info.IsDir()) {
				dir := destPath
				if dir == "" {
					dir = "."
				}
				r, err := engine.Open(context.Background(), containerPath, material)
				if err != nil {
					return err
				}
				name := r.Filename()
				r.Close()
				destPath = filepath.Join(dir, name)
				logger.Debugf("Recovered filename: %s", name)
			}

			if !unsealForce {
				if _, err := os.Stat(destPath); err == nil {
					return fmt.Errorf("destination already exists (use --force to replace): %s", destPath)
				}
			}

			s, cleanup := startSpinner("Unsealing " + filepath.Base(containerPath) + "...")
			defer cleanup()

			name, err := engine.Decrypt(context.Background(), containerPath, material, destPath)
			if err != nil {
				return err
			}
			logger.Infof("Restored %s to %s", name, destPath)

			s.FinalMSG = color.GreenString("✓") + " Unsealed " + color.YellowString(name) + "\n" +
				color.CyanString("→") + " Restored to: " + destPath
			return nil
		},
	}
)

func init() {
	unsealCmd.Flags().StringVarP(&unsealOutput, "output", "o", "", "destination file or directory (default current directory)")
	unsealCmd.Flags().StringVar(&unsealAs, "as", "", "open as this recipient (requires --keyring)")
	unsealCmd.Flags().StringVarP(&unsealKeyring, "keyring", "k", "", "keyring file with recipient keys")
	unsealCmd.Flags().BoolVarP(&unsealForce, "force", "f", false, "replace the destination if it exists")
}
