package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/sealbox/sealbox"

	"github.com/dustin/go-humanize"
	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

var (
	sealOutput     string
	sealCipher     string
	sealChunkSize  uint32
	sealRecipients []string
	sealKeyring    string
	sealStoredName string

	sealCmd = &cobra.Command{
		Use:   "seal <file>",
		Short: "Encrypts a file into a new container directory",
		Long: `Seal encrypts a file into a new container directory holding a manifest
and fixed-size encrypted parts. With --recipient the container is sealed
for RSA key holders from the keyring; otherwise a password is prompted.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			sourcePath := args[0]
			logger.Debugf("Sealing source file: %s", sourcePath)

			info, err := os.Stat(sourcePath)
			if err != nil {
				return fmt.Errorf("cannot read source: %w", err)
			}
			if info.IsDir() {
				return fmt.Errorf("cannot seal a directory: %s", sourcePath)
			}

			containerPath := sealOutput
			if containerPath == "" {
				containerPath = sourcePath + ".sealed"
			}
			storedName := sealStoredName
			if storedName == "" {
				storedName = filepath.Base(sourcePath)
			}

			var mode sealbox.Mode
			if len(sealRecipients) > 0 {
				if sealKeyring == "" {
					return fmt.Errorf("--recipient requires --keyring")
				}
				mode = sealbox.Hybrid{Recipients: sealRecipients}
			} else {
				password, err := resolveNewPassword()
				if err != nil {
					return err
				}
				defer zeroBytes(password)
				mode = sealbox.Symmetric{Password: password}
			}

			engine, err := newEngine(sealKeyring, sealCipher, sealChunkSize)
			if err != nil {
				return err
			}

			s, cleanup := startSpinner("Sealing " + filepath.Base(sourcePath) + "...")
			defer cleanup()

			src, err := os.Open(sourcePath)
			if err != nil {
				return fmt.Errorf("cannot open source: %w", err)
			}
			defer src.Close()

			logger.Infof("Encrypting %s (%s) into %s", sourcePath, humanize.IBytes(uint64(info.Size())), containerPath)
			man, err := engine.Encrypt(context.Background(), src, storedName, mode, containerPath)
			if err != nil {
				return err
			}
			logger.Infof("Container written with %d parts", man.ChunkCount)

			s.FinalMSG = color.GreenString("✓") + " Sealed " + color.YellowString(storedName) + "\n" +
				color.CyanString("→") + " Container: " + containerPath +
				fmt.Sprintf(" (%d parts, %s)", man.ChunkCount, humanize.IBytes(uint64(man.TotalSize)))
			return nil
		},
	}
)

func init() {
	sealCmd.Flags().StringVarP(&sealOutput, "output", "o", "", "container path (default <file>.sealed)")
	sealCmd.Flags().StringVar(&sealCipher, "cipher", "", "cipher suite: aes-256-gcm, chacha20-poly1305 or xchacha20-poly1305")
	sealCmd.Flags().Uint32Var(&sealChunkSize, "chunk-size", 0, "chunk size in bytes (default 4 MiB)")
	sealCmd.Flags().StringArrayVarP(&sealRecipients, "recipient", "r", nil, "seal for this recipient (repeatable, requires --keyring)")
	sealCmd.Flags().StringVarP(&sealKeyring, "keyring", "k", "", "keyring file with recipient keys")
	sealCmd.Flags().StringVar(&sealStoredName, "name", "", "filename stored in the container (default source basename)")
}
