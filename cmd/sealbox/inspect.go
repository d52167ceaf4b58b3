package main

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/sealbox/sealbox"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
)

var inspectCmd = &cobra.Command{
	Use:   "inspect <container>",
	Short: "Shows container metadata without any key material",
	Long: `Inspect prints a container's manifest summary. No password or key is
needed; the original filename stays encrypted and is not shown.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		engine, err := newEngine("", "", 0)
		if err != nil {
			return err
		}

		man, err := engine.Inspect(args[0])
		if err != nil {
			return err
		}

		fmt.Printf("Container:  %s\n", args[0])
		fmt.Printf("File ID:    %s\n", man.FileID)
		fmt.Printf("Mode:       %s\n", man.Mode)
		fmt.Printf("Cipher:     %s\n", man.Cipher)
		fmt.Printf("Size:       %s\n", humanize.IBytes(uint64(man.TotalSize)))
		fmt.Printf("Chunks:     %d × %s\n", man.ChunkCount, humanize.IBytes(uint64(man.ChunkSize)))
		fmt.Printf("Created:    %s\n", man.CreatedAt.Format(time.RFC3339))

		if man.Mode == sealbox.ModeHybrid {
			recipients := man.Recipients()
			sort.Strings(recipients)
			fmt.Printf("Recipients: %s\n", strings.Join(recipients, ", "))
		}
		if kd := man.KeyDerivation; kd != nil {
			switch kd.Algorithm {
			case sealbox.KDFArgon2id:
				fmt.Printf("KDF:        %s (m=%d KiB, t=%d, p=%d)\n", kd.Algorithm, kd.MemoryKiB, kd.Iterations, kd.Parallelism)
			default:
				fmt.Printf("KDF:        %s (%d iterations)\n", kd.Algorithm, kd.Iterations)
			}
		}
		return nil
	},
}
