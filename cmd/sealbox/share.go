package main

import (
	"context"
	"fmt"
	"path/filepath"
	"sort"
	"strings"

	"github.com/sealbox/sealbox"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

var (
	shareAs      string
	shareWith    []string
	shareKeyring string

	shareCmd = &cobra.Command{
		Use:   "share <container>",
		Short: "Grants additional recipients access to a container",
		Long: `Share wraps a hybrid container's key for additional recipients from the
keyring. Chunks are not re-encrypted; the manifest is replaced atomically.
The granting identity must already have access.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			containerPath := args[0]
			if len(shareWith) == 0 {
				return fmt.Errorf("--with names at least one recipient")
			}
			if shareAs == "" {
				return fmt.Errorf("--as names the identity opening the container")
			}
			if shareKeyring == "" {
				return fmt.Errorf("share requires --keyring")
			}

			engine, err := newEngine(shareKeyring, "", 0)
			if err != nil {
				return err
			}

			s, cleanup := startSpinner("Sharing " + filepath.Base(containerPath) + "...")
			defer cleanup()

			material := sealbox.RecipientMaterial{RecipientID: shareAs}
			man, err := engine.AddRecipients(context.Background(), containerPath, material, shareWith...)
			if err != nil {
				return err
			}
			recipients := man.Recipients()
			sort.Strings(recipients)
			logger.Infof("Container now lists %d recipients", len(recipients))

			s.FinalMSG = color.GreenString("✓") + " Shared with " + color.YellowString(strings.Join(shareWith, ", ")) + "\n" +
				color.CyanString("→") + " Recipients: " + strings.Join(recipients, ", ")
			return nil
		},
	}
)

func init() {
	shareCmd.Flags().StringVar(&shareAs, "as", "", "identity opening the container")
	shareCmd.Flags().StringArrayVar(&shareWith, "with", nil, "recipient to grant access (repeatable)")
	shareCmd.Flags().StringVarP(&shareKeyring, "keyring", "k", "", "keyring file with recipient keys")
}
