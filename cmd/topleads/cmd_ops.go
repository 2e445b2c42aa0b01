package main

import (
	"fmt"
	"os"
	"strconv"

	"github.com/spf13/cobra"
)

var (
	adminSecret string
	selectAll   bool
	appendFlag  bool
	pageSize    int
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show server status",
	Run: func(cmd *cobra.Command, args []string) {
		data, code, err := apiRequest("GET", "/status", nil, nil)
		fail(err)
		exitOnError(data, code)
		printJSON(data)
	},
}

var routesCmd = &cobra.Command{
	Use:   "routes",
	Short: "List the server's routes",
	Run: func(cmd *cobra.Command, args []string) {
		data, code, err := apiRequest("GET", "/_debug/routes", nil, nil)
		fail(err)
		exitOnError(data, code)
		printJSON(data)
	},
}

var sanityCmd = &cobra.Command{
	Use:   "sanity-check",
	Short: "Probe a tenant's base for the tables and fields the engine needs",
	Run: func(cmd *cobra.Command, args []string) {
		headers := map[string]string{"Authorization": "Bearer " + adminSecret}
		data, code, err := apiRequest("POST", "/dev/sanity-check", nil, headers)
		fail(err)
		exitOnError(data, code)
		printJSON(data)
	},
}

var thresholdCmd = &cobra.Command{
	Use:   "threshold [value]",
	Short: "Get or set the tenant's score threshold",
	Args:  cobra.MaximumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		if len(args) == 0 {
			data, code, err := apiRequest("GET", "/threshold", nil, nil)
			fail(err)
			exitOnError(data, code)
			printJSON(data)
			return
		}
		v, err := strconv.ParseFloat(args[0], 64)
		fail(err)
		data, code, err := apiRequest("PUT", "/threshold", map[string]any{"value": v}, nil)
		fail(err)
		exitOnError(data, code)
		printJSON(data)
	},
}

var selectCmd = &cobra.Command{
	Use:   "select",
	Short: "Lock the top of the eligible set into the current batch",
	Run: func(cmd *cobra.Command, args []string) {
		path := "/batch/select?all=" + strconv.FormatBool(selectAll)
		if appendFlag {
			path += "&append=1"
		}
		if pageSize > 0 {
			path += "&pageSize=" + strconv.Itoa(pageSize)
		}
		data, code, err := apiRequest("POST", path, nil, nil)
		fail(err)
		exitOnError(data, code)
		printJSON(data)
	},
}

func fail(err error) {
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func init() {
	sanityCmd.Flags().StringVar(&adminSecret, "secret", "", "admin bearer secret")
	selectCmd.Flags().BoolVar(&selectAll, "all", true, "select the whole eligible set (capped)")
	selectCmd.Flags().BoolVar(&appendFlag, "append", false, "keep the current batch and add to it")
	selectCmd.Flags().IntVar(&pageSize, "page-size", 0, "cap the number of leads to lock")

	addClientFlags(statusCmd, routesCmd, sanityCmd, thresholdCmd, selectCmd)
	rootCmd.AddCommand(statusCmd, routesCmd, sanityCmd, thresholdCmd, selectCmd)
}
