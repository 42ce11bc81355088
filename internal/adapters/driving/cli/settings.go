package cli

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/custodia-labs/docqa/internal/core/domain"
)

const defaultOllamaURL = "http://localhost:11434"

var settingsCmd = &cobra.Command{
	Use:   "settings",
	Short: "Manage application settings",
	Long: `View and change pipeline settings. Settings are stored in ~/.docqa/config.toml
(or $DOCQA_HOME/config.toml) using dotted keys such as retrieval.top_k.

API keys may also be provided through OPENAI_API_KEY and ANTHROPIC_API_KEY,
including from a .env file in the working directory.`,
	RunE: runSettingsList,
}

var settingsListCmd = &cobra.Command{
	Use:   "list",
	Short: "Show all settings",
	Args:  cobra.NoArgs,
	RunE:  runSettingsList,
}

var settingsGetCmd = &cobra.Command{
	Use:   "get [key]",
	Short: "Show one setting",
	Args:  cobra.ExactArgs(1),
	RunE:  runSettingsGet,
}

var settingsSetCmd = &cobra.Command{
	Use:   "set [key] [value]",
	Short: "Change a setting",
	Long: `Changes one setting. The new configuration is validated before it is saved.

Examples:
  docqa settings set retrieval.top_k 5
  docqa settings set context.unit tokens
  docqa settings set generation.timeout 90s`,
	Args: cobra.ExactArgs(2),
	RunE: runSettingsSet,
}

var settingsUnsetCmd = &cobra.Command{
	Use:   "unset [key]",
	Short: "Restore a setting to its default",
	Args:  cobra.ExactArgs(1),
	RunE:  runSettingsUnset,
}

var settingsCheckCmd = &cobra.Command{
	Use:   "check",
	Short: "Validate settings and ping the AI providers",
	Args:  cobra.NoArgs,
	RunE:  runSettingsCheck,
}

var settingsEmbeddingCmd = &cobra.Command{
	Use:   "embedding",
	Short: "Configure embedding provider",
	Long: `Interactively select the embedding provider and model.

Changing the embedding model re-embeds the whole corpus on next use.`,
	Args: cobra.NoArgs,
	RunE: runSettingsEmbedding,
}

var settingsLLMCmd = &cobra.Command{
	Use:   "llm",
	Short: "Configure LLM provider",
	Long:  `Interactively select the provider and model used to generate answers.`,
	Args:  cobra.NoArgs,
	RunE:  runSettingsLLM,
}

var settingsLLMModelsCmd = &cobra.Command{
	Use:   "models",
	Short: "List the models the LLM provider serves",
	Long: `Asks the configured LLM provider which models it serves. For Ollama these
are the models pulled onto the server. The current model is marked with *.`,
	Args: cobra.NoArgs,
	RunE: runSettingsLLMModels,
}

func init() {
	settingsLLMCmd.AddCommand(settingsLLMModelsCmd)
	settingsCmd.AddCommand(settingsListCmd)
	settingsCmd.AddCommand(settingsGetCmd)
	settingsCmd.AddCommand(settingsSetCmd)
	settingsCmd.AddCommand(settingsUnsetCmd)
	settingsCmd.AddCommand(settingsCheckCmd)
	settingsCmd.AddCommand(settingsEmbeddingCmd)
	settingsCmd.AddCommand(settingsLLMCmd)
	rootCmd.AddCommand(settingsCmd)
}

func runSettingsList(cmd *cobra.Command, _ []string) error {
	svc, err := loadSettings()
	if err != nil {
		return err
	}

	values, err := svc.Values()
	if err != nil {
		return fmt.Errorf("failed to get settings: %w", err)
	}

	section := ""
	for _, key := range svc.Keys() {
		name, field, _ := strings.Cut(key, ".")
		if name != section {
			if section != "" {
				cmd.Println()
			}
			cmd.Printf("[%s]\n", name)
			section = name
		}
		cmd.Printf("  %s = %s\n", field, displayValue(key, values[key]))
	}
	cmd.Println()

	if _, err := svc.Get(); err != nil {
		cmd.Println(color.YellowString("Warning: %v", err))
		cmd.Println("Run 'docqa settings set' or 'docqa settings embedding' to fix it.")
	} else {
		cmd.Println("Configuration is valid.")
	}
	return nil
}

func runSettingsGet(cmd *cobra.Command, args []string) error {
	svc, err := loadSettings()
	if err != nil {
		return err
	}

	values, err := svc.Values()
	if err != nil {
		return fmt.Errorf("failed to get settings: %w", err)
	}
	v, ok := values[args[0]]
	if !ok {
		return fmt.Errorf("unknown setting %q", args[0])
	}
	cmd.Println(displayValue(args[0], v))
	return nil
}

func runSettingsSet(cmd *cobra.Command, args []string) error {
	svc, err := loadSettings()
	if err != nil {
		return err
	}

	if err := svc.Set(args[0], args[1]); err != nil {
		return fmt.Errorf("failed to set %s: %w", args[0], err)
	}
	cmd.Printf("%s = %s\n", args[0], displayValue(args[0], args[1]))
	return nil
}

func runSettingsUnset(cmd *cobra.Command, args []string) error {
	svc, err := loadSettings()
	if err != nil {
		return err
	}

	if err := svc.Unset(args[0]); err != nil {
		return fmt.Errorf("failed to unset %s: %w", args[0], err)
	}
	cmd.Printf("%s restored to default\n", args[0])
	return nil
}

func runSettingsCheck(cmd *cobra.Command, _ []string) error {
	svc, err := loadSettings()
	if err != nil {
		return err
	}

	settings, err := svc.Get()
	if err != nil {
		return err
	}
	cmd.Println("Configuration is valid.")

	failed := false
	cmd.Printf("Embedding (%s, %s)... ", settings.Embedding.Provider, settings.Embedding.Model)
	if err := svc.ValidateEmbeddingConfig(cmd.Context()); err != nil {
		cmd.Println(color.RedString("FAILED: %v", err))
		failed = true
	} else {
		cmd.Println(color.GreenString("OK"))
	}

	cmd.Printf("LLM (%s, %s)... ", settings.LLM.Provider, settings.LLM.Model)
	if err := svc.ValidateLLMConfig(cmd.Context()); err != nil {
		cmd.Println(color.RedString("FAILED: %v", err))
		failed = true
	} else {
		cmd.Println(color.GreenString("OK"))
	}

	if failed {
		return errors.New("provider check failed")
	}
	return nil
}

func runSettingsEmbedding(cmd *cobra.Command, _ []string) error {
	if _, err := loadSettings(); err != nil {
		return err
	}
	reader := bufio.NewReader(cmd.InOrStdin())
	return configureProvider(cmd, reader, "embedding", domain.AllEmbeddingProviders(), domain.DefaultEmbeddingModels())
}

func runSettingsLLM(cmd *cobra.Command, _ []string) error {
	if _, err := loadSettings(); err != nil {
		return err
	}
	reader := bufio.NewReader(cmd.InOrStdin())
	return configureProvider(cmd, reader, "llm", domain.AllLLMProviders(), domain.DefaultLLMModels())
}

func runSettingsLLMModels(cmd *cobra.Command, _ []string) error {
	svc, err := loadSettings()
	if err != nil {
		return err
	}
	settings, err := svc.Get()
	if err != nil {
		return err
	}

	models, err := svc.ListLLMModels(cmd.Context())
	if err != nil {
		return fmt.Errorf("failed to list %s models: %w", settings.LLM.Provider, err)
	}
	if len(models) == 0 {
		cmd.Printf("No models available from %s\n", settings.LLM.Provider)
		return nil
	}
	for _, m := range models {
		marker := " "
		if m == settings.LLM.Model || strings.TrimSuffix(m, ":latest") == settings.LLM.Model {
			marker = color.GreenString("*")
		}
		cmd.Printf("%s %s\n", marker, m)
	}
	return nil
}

// configureProvider prompts for a provider under the given settings section.
// The key is written first so that switching to a keyed provider validates.
func configureProvider(
	cmd *cobra.Command,
	reader *bufio.Reader,
	section string,
	providers []domain.AIProvider,
	defaults map[domain.AIProvider]string,
) error {
	svc := settingsService

	cmd.Printf("Select %s provider\n", section)
	for i, p := range providers {
		cmd.Printf("  %d. %s\n", i+1, p.Description())
	}
	cmd.Print("\nEnter choice [1]: ")
	idx := parseChoice(readLine(reader), len(providers), 1)
	provider := providers[idx-1]

	defaultModel := defaults[provider]
	cmd.Printf("Enter model name [%s]: ", defaultModel)
	model := readLine(reader)
	if model == "" {
		model = defaultModel
	}

	updates := [][2]string{}
	if provider.RequiresAPIKey() {
		cmd.Print("Enter API key (empty to use the environment): ")
		if apiKey := readPassword(reader); apiKey != "" {
			updates = append(updates, [2]string{section + ".api_key", apiKey})
		}
		cmd.Println()
	}
	if provider == domain.AIProviderOllama {
		cmd.Printf("Enter base URL [%s]: ", defaultOllamaURL)
		baseURL := readLine(reader)
		if baseURL == "" {
			baseURL = defaultOllamaURL
		}
		updates = append(updates, [2]string{section + ".base_url", baseURL})
	}
	updates = append(updates,
		[2]string{section + ".model", model},
		[2]string{section + ".provider", string(provider)},
	)

	for _, u := range updates {
		if err := svc.Set(u[0], u[1]); err != nil {
			return fmt.Errorf("failed to configure %s provider: %w", section, err)
		}
	}

	cmd.Print("Validating configuration... ")
	validate := svc.ValidateLLMConfig
	if section == "embedding" {
		validate = svc.ValidateEmbeddingConfig
	}
	if err := validate(cmd.Context()); err != nil {
		cmd.Printf("FAILED: %v\n", err)
		return fmt.Errorf("%s configuration validation failed: %w", section, err)
	}
	cmd.Println("OK")

	cmd.Printf("%s provider configured: %s (%s)\n", section, provider.Description(), model)
	return nil
}

// Helper functions.

func displayValue(key, value string) string {
	if strings.HasSuffix(key, "api_key") {
		if value == "" {
			return "(not set)"
		}
		return maskAPIKey(value)
	}
	if value == "" {
		return `""`
	}
	return value
}

//nolint:errcheck // CLI helper, error ignored for UX
func readLine(reader *bufio.Reader) string {
	input, _ := reader.ReadString('\n')
	return strings.TrimSpace(input)
}

// parseChoice reads a 1-based menu choice, falling back on anything out of range.
func parseChoice(input string, maxVal, fallback int) int {
	n, err := strconv.Atoi(strings.TrimSpace(input))
	if err != nil || n < 1 || n > maxVal {
		return fallback
	}
	return n
}

func readPassword(reader *bufio.Reader) string {
	if term.IsTerminal(int(os.Stdin.Fd())) {
		password, err := term.ReadPassword(int(os.Stdin.Fd()))
		if err == nil {
			return string(password)
		}
	}
	return readLine(reader)
}

func maskAPIKey(key string) string {
	if len(key) <= 8 {
		return "****"
	}
	return key[:4] + "..." + key[len(key)-4:]
}
