package main

import (
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/calebt/typeset/internal/models"
	"github.com/calebt/typeset/internal/registry"
)

func newModulesCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "modules",
		Short: "Manage registered converter modules",
	}
	cmd.AddCommand(newModulesRegisterCmd())
	cmd.AddCommand(newModulesListCmd())
	return cmd
}

func newModulesRegisterCmd() *cobra.Command {
	var (
		configPath    string
		name          string
		moduleType    string
		inputFormat   string
		outputFormat  string
		resourceTypes []string
		version       int
		endpoint      string
	)

	cmd := &cobra.Command{
		Use:   "register",
		Short: "Register a converter module",
		Long:  "Adds a converter to the registry. Jobs are matched to converters in registration order.",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, gormDB, err := connectFromConfig(configPath)
			if err != nil {
				return err
			}

			m := &models.Module{
				Name:          name,
				Type:          moduleType,
				InputFormat:   inputFormat,
				OutputFormat:  outputFormat,
				ResourceTypes: resourceTypes,
				Version:       version,
			}
			if endpoint != "" {
				m.PublicLinks = []string{endpoint}
			}
			registered, err := registry.Register(gormDB, cfg.APIURL, m)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Registered %s (%s %s to %s, resources: %s)\n",
				registered.Name, registered.Type, registered.InputFormat,
				registered.OutputFormat, strings.Join(registered.ResourceTypes, ", "))
			return nil
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "typeset.yaml", "path to config file")
	cmd.Flags().StringVar(&name, "name", "", "module name (required)")
	cmd.Flags().StringVar(&moduleType, "type", "conversion", "module type")
	cmd.Flags().StringVar(&inputFormat, "input", "", "input format, e.g. md or usfm (required)")
	cmd.Flags().StringVar(&outputFormat, "output", "", "output format, e.g. html (required)")
	cmd.Flags().StringSliceVar(&resourceTypes, "resource-types", nil, "resource types handled, e.g. obs,bible (required)")
	cmd.Flags().IntVar(&version, "version", 1, "module version")
	cmd.Flags().StringVar(&endpoint, "endpoint", "", "invocation URL (defaults to the API convert route)")
	return cmd
}

func newModulesListCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List registered converter modules",
		RunE: func(cmd *cobra.Command, args []string) error {
			_, gormDB, err := connectFromConfig(configPath)
			if err != nil {
				return err
			}
			modules, err := registry.List(gormDB)
			if err != nil {
				return err
			}
			printModules(cmd.OutOrStdout(), modules)
			return nil
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "typeset.yaml", "path to config file")
	return cmd
}

func printModules(out io.Writer, modules []models.Module) {
	if len(modules) == 0 {
		fmt.Fprintln(out, "No modules registered")
		return
	}
	w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "NAME\tTYPE\tINPUT\tOUTPUT\tRESOURCE TYPES\tVERSION")
	for _, m := range modules {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%d\n",
			m.Name, m.Type, m.InputFormat, m.OutputFormat,
			strings.Join(m.ResourceTypes, ","), m.Version)
	}
	w.Flush()
}
