package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/mrcode/nightscout-basics/internal/app"
	"github.com/mrcode/nightscout-basics/internal/models"
)

const masked = "********"

func (c *cli) newConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Show and change settings",
	}
	cmd.AddCommand(c.newConfigShowCmd(), c.newConfigSetURLCmd(), c.newConfigTestNotifyCmd())
	return cmd
}

func (c *cli) newConfigShowCmd() *cobra.Command {
	var format string
	cmd := &cobra.Command{
		Use:   "show",
		Short: "Print the effective settings",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := c.newApp()
			if err != nil {
				return err
			}
			settings := a.GetSettings()
			if settings.APISecret != "" {
				settings.APISecret = masked
			}
			if settings.APIToken != "" {
				settings.APIToken = masked
			}
			return write(cmd.OutOrStdout(), format, settings)
		},
	}
	cmd.Flags().StringVarP(&format, "format", "f", formatJSON, "Output format, json or yaml")
	return cmd
}

func (c *cli) newConfigSetURLCmd() *cobra.Command {
	var (
		secret   string
		token    string
		skipTest bool
	)
	cmd := &cobra.Command{
		Use:   "set-url <url>",
		Short: "Set the Nightscout site and credentials",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := c.newApp()
			if err != nil {
				return err
			}

			settings := a.GetSettings()
			settings.NightscoutURL = args[0]
			if cmd.Flags().Changed("secret") {
				settings.APISecret = secret
			}
			if cmd.Flags().Changed("token") {
				settings.APIToken = token
				settings.UseToken = token != ""
			}

			if !skipTest {
				if err := testConnection(cmd, a, settings); err != nil {
					return err
				}
			}
			if err := a.SaveSettings(settings); err != nil {
				return err
			}
			_, err = fmt.Fprintf(cmd.OutOrStdout(), "Nightscout URL set to %s\n", settings.NightscoutURL)
			return err
		},
	}
	cmd.Flags().StringVar(&secret, "secret", "", "API secret, hashed before it is sent")
	cmd.Flags().StringVar(&token, "token", "", "Access token; takes precedence over the secret")
	cmd.Flags().BoolVar(&skipTest, "skip-test", false, "Save without checking the connection")
	return cmd
}

func testConnection(cmd *cobra.Command, a *app.App, settings *models.Settings) error {
	err := a.TestConnection(cmd.Context(), settings.NightscoutURL, settings.APISecret, settings.APIToken, settings.UseToken)
	if err != nil {
		return fmt.Errorf("connection test failed: %w", err)
	}
	return nil
}

func (c *cli) newConfigTestNotifyCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "test-notify",
		Short: "Send a test desktop notification",
		Args:  cobra.NoArgs,
		RunE: func(*cobra.Command, []string) error {
			a, err := c.newApp()
			if err != nil {
				return err
			}
			return a.SendTestNotification()
		},
	}
}

func (c *cli) newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show the version",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := c.newApp()
			if err != nil {
				return err
			}
			_, err = fmt.Fprintf(cmd.OutOrStdout(), "nsbasics %s\n", a.GetVersion())
			return err
		},
	}
}
