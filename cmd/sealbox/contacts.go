package main

import (
	"fmt"
	"os"

	"github.com/sealbox/sealbox"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

var (
	contactsKeyring string
	contactsExport  string

	contactsCmd = &cobra.Command{
		Use:   "contacts",
		Short: "Manages recipient public keys in the keyring",
	}

	contactsAddCmd = &cobra.Command{
		Use:   "add <name> <pem-file>",
		Short: "Adds another person's public key as a contact",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			name, pemPath := args[0], args[1]
			if err := sealbox.ValidateRecipientID(name); err != nil {
				return err
			}

			data, err := os.ReadFile(pemPath)
			if err != nil {
				return fmt.Errorf("cannot read public key: %w", err)
			}
			if _, err := sealbox.ParsePublicKeyPEM(data); err != nil {
				return fmt.Errorf("invalid public key in %s: %w", pemPath, err)
			}

			doc, err := readKeyringDoc(contactsKeyring)
			if err != nil {
				return err
			}
			if doc.hasName(name) {
				return fmt.Errorf("keyring already holds a key named %q", name)
			}
			doc.Contacts = append(doc.Contacts, keyringDocContact{
				Name:      name,
				PublicKey: string(data),
			})
			if err := writeKeyringDoc(contactsKeyring, doc); err != nil {
				return err
			}

			fmt.Println(color.GreenString("✓") + " Added contact " + color.YellowString(name))
			return nil
		},
	}

	contactsListCmd = &cobra.Command{
		Use:   "list",
		Short: "Lists identities and contacts in the keyring",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			doc, err := readKeyringDoc(contactsKeyring)
			if err != nil {
				return err
			}
			if len(doc.KeyPairs) == 0 && len(doc.Contacts) == 0 {
				fmt.Println("Keyring is empty.")
				return nil
			}
			for _, p := range doc.KeyPairs {
				fmt.Printf("%s  %s\n", color.GreenString("identity"), p.Name)
			}
			for _, c := range doc.Contacts {
				fmt.Printf("%s   %s\n", color.CyanString("contact"), c.Name)
			}
			return nil
		},
	}

	contactsExportCmd = &cobra.Command{
		Use:   "export <name>",
		Short: "Writes a public key PEM for handing to other people",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			name := args[0]
			doc, err := readKeyringDoc(contactsKeyring)
			if err != nil {
				return err
			}

			var pubPEM string
			for _, p := range doc.KeyPairs {
				if p.Name == name {
					pubPEM = p.PublicKey
					break
				}
			}
			if pubPEM == "" {
				for _, c := range doc.Contacts {
					if c.Name == name {
						pubPEM = c.PublicKey
						break
					}
				}
			}
			if pubPEM == "" {
				return fmt.Errorf("no key named %q in %s", name, contactsKeyring)
			}

			if contactsExport == "" {
				fmt.Print(pubPEM)
				return nil
			}
			if err := os.WriteFile(contactsExport, []byte(pubPEM), 0644); err != nil {
				return fmt.Errorf("failed to write public key: %w", err)
			}
			fmt.Println(color.GreenString("✓") + " Exported public key of " + color.YellowString(name) + " to " + contactsExport)
			return nil
		},
	}
)

func init() {
	contactsCmd.PersistentFlags().StringVarP(&contactsKeyring, "keyring", "k", "sealbox-keys.json", "keyring file")
	contactsExportCmd.Flags().StringVarP(&contactsExport, "output", "o", "", "write the PEM to a file instead of stdout")

	contactsCmd.AddCommand(contactsAddCmd)
	contactsCmd.AddCommand(contactsListCmd)
	contactsCmd.AddCommand(contactsExportCmd)
}
