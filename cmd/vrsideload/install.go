package main

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/spf13/cobra"

	"github.com/Siemens-Vr/fuzzy-parakeet-sub000/internal/handler/dto"
	"github.com/Siemens-Vr/fuzzy-parakeet-sub000/internal/model"
	"github.com/Siemens-Vr/fuzzy-parakeet-sub000/internal/sideload"
	"github.com/Siemens-Vr/fuzzy-parakeet-sub000/internal/sideload/adb"
	"github.com/Siemens-Vr/fuzzy-parakeet-sub000/internal/sideload/credstore"
)

var installOpts struct {
	channel string
	serial  string
	token   string
}

var installCmd = &cobra.Command{
	Use:   "install <slug>",
	Short: "Install an app on the attached headset",
	Long: `Fetch the sideload manifest for <slug> and install its APK on the headset.
Paid apps need a session token or API key from an account that owns them.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		manifest, err := fetchManifest(ctx, storeURL, installOpts.token, args[0], installOpts.channel)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s %s (%d) from the %s channel\n",
			manifest.PackageName, manifest.VersionName, manifest.VersionCode, manifest.Channel)

		client, err := adb.NewClient(installOpts.serial)
		if err != nil {
			return err
		}

		store, err := credstore.Open(keysPath)
		if err != nil {
			return err
		}
		defer store.Close()

		orch := sideload.NewOrchestrator(client, store.Credentials(sideload.CredentialLabel),
			sideload.WithLogFunc(func(line string) {
				fmt.Fprintln(cmd.OutOrStdout(), line)
			}),
		)
		return orch.Run(ctx, sideload.Request{
			APKURL:      manifest.APKURL,
			PackageName: manifest.PackageName,
			Size:        manifest.SizeBytes,
		})
	},
}

func init() {
	installCmd.Flags().StringVar(&installOpts.channel, "channel", string(model.ChannelStable), "release channel")
	installCmd.Flags().StringVar(&installOpts.serial, "serial", "", "device serial when several are attached")
	installCmd.Flags().StringVar(&installOpts.token, "token", envOr("VRSTORE_TOKEN", ""), "session token or API key")
	rootCmd.AddCommand(installCmd)
}

// fetchManifest asks the store which build to install.
func fetchManifest(ctx context.Context, baseURL, token, slug, channel string) (*model.SideloadManifest, error) {
	client := resty.New().
		SetBaseURL(strings.TrimRight(baseURL, "/")).
		SetTimeout(30*time.Second).
		SetHeader("Accept", "application/json")
	if token != "" {
		client.SetAuthToken(token)
	}

	var out dto.SideloadResponse
	var apiErr dto.ErrorResponse
	resp, err := client.R().
		SetContext(ctx).
		SetPathParam("slug", slug).
		SetQueryParam("channel", channel).
		SetResult(&out).
		SetError(&apiErr).
		Get("/api/public/apps/{slug}/sideload")
	if err != nil {
		return nil, fmt.Errorf("fetch manifest: %w", err)
	}
	if resp.IsError() {
		if apiErr.Error != "" {
			return nil, fmt.Errorf("store returned %d: %s", resp.StatusCode(), apiErr.Error)
		}
		return nil, fmt.Errorf("store returned %d", resp.StatusCode())
	}
	if out.Manifest == nil || out.Manifest.APKURL == "" {
		return nil, errors.New("store returned an empty manifest")
	}
	return out.Manifest, nil
}
