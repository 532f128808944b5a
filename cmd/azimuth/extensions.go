package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

// extensionsCmd manages the installed Lua extensions
var extensionsCmd = &cobra.Command{
	Use:   "extensions",
	Short: "Manage the Lua star-filter extensions",
}

var extensionsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List the installed extensions",
	RunE:  listExtensions,
}

var extensionsInstallCmd = &cobra.Command{
	Use:   "install [github-url]",
	Short: "Install an extension from its latest GitHub release",
	Args:  cobra.ExactArgs(1),
	RunE:  installExtension,
}

var extensionsRemoveCmd = &cobra.Command{
	Use:   "remove [name]",
	Short: "Remove an installed extension",
	Args:  cobra.ExactArgs(1),
	RunE:  removeExtension,
}

func init() {
	extensionsCmd.AddCommand(extensionsListCmd)
	extensionsCmd.AddCommand(extensionsInstallCmd)
	extensionsCmd.AddCommand(extensionsRemoveCmd)

	rootCmd.AddCommand(extensionsCmd)
}

func listExtensions(cmd *cobra.Command, args []string) error {
	exts, err := pipeline.Repo.GetExtensions()
	if err != nil {
		return err
	}

	if len(exts) == 0 {
		fmt.Println("no extensions installed")
		return nil
	}

	for _, ext := range exts {
		state := "disabled"
		if ext.Enabled {
			state = "enabled"
		}
		fmt.Printf("%-24s %-10s %s\n", ext.Name, state, ext.Description)
	}

	return nil
}

func installExtension(cmd *cobra.Command, args []string) error {
	if err := pipeline.InstallExtension(args[0]); err != nil {
		return err
	}

	fmt.Printf("installed extension from %s\n", args[0])
	return nil
}

func removeExtension(cmd *cobra.Command, args []string) error {
	if err := pipeline.Repo.DeleteExtension(args[0]); err != nil {
		return err
	}

	fmt.Printf("removed extension %s\n", args[0])
	return nil
}
