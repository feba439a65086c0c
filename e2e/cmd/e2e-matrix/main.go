package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/thesipincafe/site-e2e/e2e/framework/matrix"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "e2e-matrix",
		Short: "Generate site scenarios from a test matrix",
		Long:  `Expands scenario templates across browser engines, viewport sets and target environments.`,
	}

	rootCmd.AddCommand(
		newGenerateCmd(),
		newReportCmd(),
		newValidateCmd(),
	)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func loadMatrix(path string) (*matrix.Matrix, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read matrix file: %w", err)
	}
	var m matrix.Matrix
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("failed to parse matrix: %w", err)
	}
	return &m, nil
}

func newGenerateCmd() *cobra.Command {
	var matrixFile string
	var outputFile string

	cmd := &cobra.Command{
		Use:   "generate",
		Short: "Write one scenario per matrix combination",
		RunE: func(cmd *cobra.Command, args []string) error {
			m, err := loadMatrix(matrixFile)
			if err != nil {
				return err
			}
			scenarios, err := matrix.NewGenerator(m).Generate()
			if err != nil {
				return fmt.Errorf("failed to generate scenarios: %w", err)
			}

			var output []byte
			for i, scenario := range scenarios {
				data, err := yaml.Marshal(scenario)
				if err != nil {
					return fmt.Errorf("failed to marshal scenario: %w", err)
				}
				if i > 0 {
					output = append(output, []byte("---\n")...)
				}
				output = append(output, data...)
			}

			if outputFile == "" || outputFile == "-" {
				_, err := cmd.OutOrStdout().Write(output)
				return err
			}
			if err := os.WriteFile(outputFile, output, 0o644); err != nil {
				return fmt.Errorf("failed to write output: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Generated %d scenarios to %s\n", len(scenarios), outputFile)
			return nil
		},
	}

	cmd.Flags().StringVarP(&matrixFile, "matrix", "m", "", "Matrix file path (required)")
	cmd.Flags().StringVarP(&outputFile, "output", "o", "", "Output file (default: stdout)")
	_ = cmd.MarkFlagRequired("matrix")
	return cmd
}

func newReportCmd() *cobra.Command {
	var matrixFile string

	cmd := &cobra.Command{
		Use:   "report",
		Short: "Summarise matrix dimensions and combinations",
		RunE: func(cmd *cobra.Command, args []string) error {
			m, err := loadMatrix(matrixFile)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), matrix.NewGenerator(m).GenerateReport())
			return nil
		},
	}

	cmd.Flags().StringVarP(&matrixFile, "matrix", "m", "", "Matrix file path (required)")
	_ = cmd.MarkFlagRequired("matrix")
	return cmd
}

func newValidateCmd() *cobra.Command {
	var matrixFile string

	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Validate a matrix file",
		RunE: func(cmd *cobra.Command, args []string) error {
			m, err := loadMatrix(matrixFile)
			if err != nil {
				return err
			}
			if err := m.Validate(); err != nil {
				return fmt.Errorf("matrix validation failed: %w", err)
			}
			// Every generated scenario must also pass the loader's checks.
			scenarios, err := matrix.NewGenerator(m).Generate()
			if err != nil {
				return err
			}
			for _, sc := range scenarios {
				if err := sc.Validate(); err != nil {
					return err
				}
			}
			fmt.Fprintf(cmd.OutOrStdout(), "✓ Matrix file is valid (%d scenarios)\n", len(scenarios))
			return nil
		},
	}

	cmd.Flags().StringVarP(&matrixFile, "matrix", "m", "", "Matrix file path (required)")
	_ = cmd.MarkFlagRequired("matrix")
	return cmd
}
