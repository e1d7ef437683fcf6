package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/fintalk-io/fintalk/internal/config"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage Fintalk configuration",
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show the resolved configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		_, span := tracer.Start(cmd.Context(), "config.show")
		defer span.End()

		cfg, err := config.Load()
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "data_dir:            %s\n", cfg.DataDir)
		fmt.Fprintf(out, "listen_addr:         %s\n", cfg.ListenAddr)
		fmt.Fprintf(out, "primary_model:       %s\n", cfg.PrimaryModel)
		fmt.Fprintf(out, "fallback_model:      %s\n", cfg.FallbackModel)
		fmt.Fprintf(out, "temperature:         %v\n", cfg.Temperature)
		fmt.Fprintf(out, "max_tokens:          %d\n", cfg.MaxTokens)
		fmt.Fprintf(out, "llm_timeout:         %s\n", cfg.LLMTimeout)
		fmt.Fprintf(out, "rates_base_url:      %s\n", cfg.RatesBaseURL)
		fmt.Fprintf(out, "rates_refresh_cron:  %s\n", cfg.RatesRefreshCron)
		fmt.Fprintf(out, "openai_api_key:      %s\n", redact(cfg.OpenAIAPIKey))
		fmt.Fprintf(out, "jwt_secret:          %s\n", redact(cfg.JWTSecret))
		return nil
	},
}

// redact keeps just enough of a secret to recognize it.
func redact(s string) string {
	if s == "" {
		return "(unset)"
	}
	if len(s) <= 6 {
		return "******"
	}
	return s[:3] + "..." + s[len(s)-2:]
}

func init() {
	configCmd.AddCommand(configShowCmd)
	rootCmd.AddCommand(configCmd)
}
