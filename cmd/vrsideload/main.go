// Command vrsideload installs store builds on a headset attached over USB.
package main

import (
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
)

const defaultStoreURL = "http://localhost:8080"

var (
	storeURL string
	keysPath string
)

var rootCmd = &cobra.Command{
	Use:   "vrsideload",
	Short: "Sideload VR store apps onto a headset",
	Long: `vrsideload fetches an app's sideload manifest from the store API and
installs the APK on a headset connected in developer mode through adb.`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&storeURL, "store-url", envOr("VRSTORE_URL", defaultStoreURL), "store API base URL")
	rootCmd.PersistentFlags().StringVar(&keysPath, "keys", defaultKeysPath(), "credential store file")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func defaultKeysPath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		dir = "."
	}
	return filepath.Join(dir, "vrsideload", "keys.db")
}
