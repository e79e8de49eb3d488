package main

import (
	"fmt"
	"slices"

	"github.com/spf13/cobra"

	"github.com/Siemens-Vr/fuzzy-parakeet-sub000/internal/sideload"
	"github.com/Siemens-Vr/fuzzy-parakeet-sub000/internal/sideload/credstore"
)

var (
	exportDir string
	resetKey  bool
)

var keyCmd = &cobra.Command{
	Use:   "key",
	Short: "Show the public key headsets are asked to trust",
	Long: `Print the adb public key used for sideloading, creating it on first use.
With --export the key pair is also written as adb vendor key files.
With --reset the stored key is replaced; headsets must authorize the new one.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := credstore.Open(keysPath)
		if err != nil {
			return err
		}
		defer store.Close()

		if resetKey {
			labels, err := store.Labels()
			if err != nil {
				return err
			}
			if slices.Contains(labels, sideload.CredentialLabel) {
				if err := store.Delete(sideload.CredentialLabel); err != nil {
					return err
				}
				fmt.Fprintln(cmd.ErrOrStderr(), "removed previous key")
			}
		}

		key, err := store.Key(sideload.CredentialLabel)
		if err != nil {
			return err
		}
		pub, err := credstore.EncodePublicKey(&key.PublicKey, sideload.CredentialLabel)
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), pub)

		if exportDir != "" {
			path, err := credstore.WriteVendorKey(exportDir, sideload.CredentialLabel, key)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.ErrOrStderr(), "wrote %s\n", path)
		}
		return nil
	},
}

func init() {
	keyCmd.Flags().StringVar(&exportDir, "export", "", "directory to write adbkey and adbkey.pub into")
	keyCmd.Flags().BoolVar(&resetKey, "reset", false, "replace the stored key with a new one")
	rootCmd.AddCommand(keyCmd)
}
