package main

import (
	"github.com/spf13/cobra"
)

var cacheCmd = &cobra.Command{
	Use:   "cache",
	Short: "Manage the KM24 response cache",
}

var cacheClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Delete every cached KM24 response",
	RunE: func(cmd *cobra.Command, _ []string) error {
		a, err := newApp(cmd.Context())
		if err != nil {
			return err
		}
		defer a.close()
		return printJSON(a.km24.ClearCache(cmd.Context()))
	},
}

var cacheInfoCmd = &cobra.Command{
	Use:   "info",
	Short: "List cached endpoints, gateway health and catalog status",
	RunE: func(cmd *cobra.Command, _ []string) error {
		a, err := newApp(cmd.Context())
		if err != nil {
			return err
		}
		defer a.close()
		files, err := a.km24.CacheInfo()
		if err != nil {
			return err
		}
		return printJSON(map[string]any{
			"base_url": a.km24.BaseURL(),
			"files":    files,
			"health":   a.km24.Health(cmd.Context()),
			"catalog":  a.catalog.Status(),
		})
	},
}

func init() {
	cacheCmd.AddCommand(cacheClearCmd, cacheInfoCmd)
}
