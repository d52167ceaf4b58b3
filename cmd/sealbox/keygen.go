package main

import (
	"crypto/rand"
	"crypto/rsa"
	"fmt"

	"github.com/sealbox/sealbox"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

var (
	keygenKeyring string
	keygenBits    int

	keygenCmd = &cobra.Command{
		Use:   "keygen <name>",
		Short: "Generates an RSA identity and stores it in the keyring",
		Long: `Keygen creates a new RSA key pair under the given name and adds it to the
keyring file, creating the file if needed. The public key can be exported
with 'sealbox contacts export' and handed to other people.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			name := args[0]
			if err := sealbox.ValidateRecipientID(name); err != nil {
				return err
			}
			if keygenBits < sealbox.MinRSAKeyBits {
				return fmt.Errorf("key size %d is below the minimum of %d bits", keygenBits, sealbox.MinRSAKeyBits)
			}

			doc, err := readKeyringDoc(keygenKeyring)
			if err != nil {
				return err
			}
			if doc.hasName(name) {
				return fmt.Errorf("keyring already holds a key named %q", name)
			}

			s, cleanup := startSpinner(fmt.Sprintf("Generating %d-bit RSA key...", keygenBits))
			defer cleanup()

			priv, err := rsa.GenerateKey(rand.Reader, keygenBits)
			if err != nil {
				return fmt.Errorf("key generation failed: %w", err)
			}
			pub, err := sealbox.MarshalPublicKeyPEM(&priv.PublicKey)
			if err != nil {
				return err
			}

			doc.KeyPairs = append(doc.KeyPairs, keyringDocPair{
				Name:       name,
				PrivateKey: string(sealbox.MarshalPrivateKeyPEM(priv)),
				PublicKey:  string(pub),
			})
			if err := writeKeyringDoc(keygenKeyring, doc); err != nil {
				return err
			}
			logger.Infof("Key pair %q written to %s", name, keygenKeyring)

			s.FinalMSG = color.GreenString("✓") + " Generated key pair " + color.YellowString(name) + "\n" +
				color.CyanString("→") + " Keyring: " + keygenKeyring
			return nil
		},
	}
)

func init() {
	keygenCmd.Flags().StringVarP(&keygenKeyring, "keyring", "k", "sealbox-keys.json", "keyring file to create or extend")
	keygenCmd.Flags().IntVar(&keygenBits, "bits", 3072, "RSA key size in bits")
}
