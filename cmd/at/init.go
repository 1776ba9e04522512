package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/term"
	"gopkg.in/yaml.v3"

	"github.com/alotth/audio-transcriber/internal/config"
)

func newInitCmd() *cobra.Command {
	var (
		configPath string
		dataDir    string
		port       int
		apiKey     string
		force      bool
	)

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write a starter config file",
		Long:  "Writes an at.yaml config file. When run on a terminal without --api-key, prompts for the vendor API key without echoing it.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runInit(cmd, configPath, dataDir, port, apiKey, force)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "at.yaml", "path to write the config file")
	cmd.Flags().StringVar(&dataDir, "data-dir", "data", "directory for audio, transcripts and the metadata database")
	cmd.Flags().IntVar(&port, "port", 3000, "HTTP listen port")
	cmd.Flags().StringVar(&apiKey, "api-key", "", "vendor API key (prompted for when omitted)")
	cmd.Flags().BoolVar(&force, "force", false, "overwrite an existing config file")
	return cmd
}

func runInit(cmd *cobra.Command, configPath, dataDir string, port int, apiKey string, force bool) error {
	if !force {
		if _, err := os.Stat(configPath); err == nil {
			return fmt.Errorf("%s already exists (use --force to overwrite)", configPath)
		}
	}

	if apiKey == "" {
		apiKey = os.Getenv("ASSEMBLYAI_API_KEY")
	}
	if apiKey == "" {
		key, err := promptAPIKey(cmd)
		if err != nil {
			return err
		}
		apiKey = key
	}
	if apiKey == "" {
		return fmt.Errorf("an API key is required (flag --api-key, prompt, or ASSEMBLYAI_API_KEY)")
	}

	cfg := config.Config{
		DataDir: dataDir,
		Port:    port,
		Vendor:  config.VendorConfig{APIKey: apiKey},
	}
	data, err := yaml.Marshal(&cfg)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	if err := os.WriteFile(configPath, data, 0o600); err != nil {
		return fmt.Errorf("write %s: %w", configPath, err)
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Wrote %s\n", configPath)
	fmt.Fprintf(cmd.OutOrStdout(), "Start the service with: at serve --config %s\n", configPath)
	return nil
}

// promptAPIKey reads the vendor API key from the terminal without echo.
// Off-terminal (piped stdin) it reads a single line instead.
func promptAPIKey(cmd *cobra.Command) (string, error) {
	fd := int(os.Stdin.Fd())
	if term.IsTerminal(fd) {
		fmt.Fprint(cmd.OutOrStdout(), "Vendor API key: ")
		key, err := term.ReadPassword(fd)
		fmt.Fprintln(cmd.OutOrStdout())
		if err != nil {
			return "", fmt.Errorf("read api key: %w", err)
		}
		return strings.TrimSpace(string(key)), nil
	}

	var key string
	if _, err := fmt.Fscanln(cmd.InOrStdin(), &key); err != nil {
		return "", fmt.Errorf("read api key: %w", err)
	}
	return strings.TrimSpace(key), nil
}
