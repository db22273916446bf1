package cmd

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/spf13/cobra"
	"go.uber.org/zap/zapcore"

	"schemainjector/config"
	"schemainjector/logger"
)

var (
	pageURLFlag    string
	inFlag         string
	outFlag        string
	schemaOnlyFlag bool
)

var injectCmd = &cobra.Command{
	Use:   "inject",
	Short: "Inject product schema into a saved HTML page",
	RunE: func(cmd *cobra.Command, args []string) error {
		if pageURLFlag == "" {
			return errors.New("--url flag is required")
		}

		cfg, err := config.Load(configFile)
		if err != nil {
			return fmt.Errorf("config: %w", err)
		}

		// stdout carries the page, so logs go to stderr and stay quiet unless asked
		level := cfg.Log.Level
		if !cmd.Flags().Changed("verbose") {
			level = "error"
		}
		log := logger.New(logger.Config{
			Level:  level,
			Format: cfg.Log.Format,
			Output: zapcore.AddSync(cmd.ErrOrStderr()),
		})
		defer log.Sync()

		page, err := readInput(cmd, inFlag)
		if err != nil {
			return err
		}

		w := cmd.OutOrStdout()
		if outFlag != "" {
			f, err := os.Create(outFlag)
			if err != nil {
				return fmt.Errorf("create output: %w", err)
			}
			defer f.Close()
			w = f
		}

		in := newInjector(cfg, log)

		if schemaOnlyFlag {
			doc, err := goquery.NewDocumentFromReader(strings.NewReader(page))
			if err != nil {
				return fmt.Errorf("parse HTML: %w", err)
			}
			product, err := in.Extract(doc, pageURLFlag)
			if err != nil {
				return fmt.Errorf("schema: %w", err)
			}
			if product == nil {
				return errors.New("page has no product data container")
			}
			enc := json.NewEncoder(w)
			enc.SetIndent("", "    ")
			return enc.Encode(product)
		}

		out, outcome, err := in.Process(page, pageURLFlag)
		fmt.Fprintln(cmd.ErrOrStderr(), "schema:", outcome)
		if _, werr := io.WriteString(w, out); werr != nil {
			return fmt.Errorf("write output: %w", werr)
		}
		return err
	},
}

func readInput(cmd *cobra.Command, path string) (string, error) {
	var r io.Reader = cmd.InOrStdin()
	if path != "" && path != "-" {
		f, err := os.Open(path)
		if err != nil {
			return "", fmt.Errorf("open input: %w", err)
		}
		defer f.Close()
		r = f
	}

	data, err := io.ReadAll(r)
	if err != nil {
		return "", fmt.Errorf("read input: %w", err)
	}
	return string(data), nil
}

func init() {
	injectCmd.Flags().StringVar(&pageURLFlag, "url", "", "public URL of the page (used for offers.url and image resolution)")
	injectCmd.Flags().StringVar(&inFlag, "in", "", "input HTML file (default: stdin)")
	injectCmd.Flags().StringVar(&outFlag, "out", "", "output file (default: stdout)")
	injectCmd.Flags().BoolVar(&schemaOnlyFlag, "schema-only", false, "print only the JSON-LD object")
	injectCmd.Flags().Bool("verbose", false, "log at the configured level")
	rootCmd.AddCommand(injectCmd)
}
