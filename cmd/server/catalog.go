package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"clinical-intake/internal/config"
)

var department string

var catalogCmd = &cobra.Command{
	Use:   "catalog",
	Short: "List presenting complaints",
	Long:  `List the complaints offered for a department, or every catalog complaint.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		catalog, err := loadCatalog(catalogPath(config.FromEnv()))
		if err != nil {
			return err
		}
		for _, name := range catalog.ComplaintsFor(department) {
			marker := " "
			if !catalog.Has(name) {
				marker = "*"
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s %s\n", marker, name)
		}
		return nil
	},
}

var compileCmd = &cobra.Command{
	Use:   "compile <complaint>...",
	Short: "Print the question queue for a selection",
	Long: `Compile the given complaints exactly as a session would and print the
resulting queue as YAML. Useful when authoring catalog overlays.`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		catalog, err := loadCatalog(catalogPath(config.FromEnv()))
		if err != nil {
			return err
		}
		q, err := catalog.Compile(args)
		if err != nil {
			return err
		}
		enc := yaml.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent(2)
		if err := enc.Encode(q); err != nil {
			return err
		}
		return enc.Close()
	},
}

func init() {
	catalogCmd.Flags().StringVarP(&department, "department", "d", "", "department to list suggestions for")
}
