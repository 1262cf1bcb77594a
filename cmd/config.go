package cmd

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/ccrelay/ccproxy/internal/config"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage configuration",
	Long:  `Manage the ccproxy configuration.`,
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize configuration interactively",
	Long:  `Initialize configuration by prompting for an upstream channel's details.`,
	RunE:  runConfigInit,
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show current configuration",
	Long:  `Display the current configuration.`,
	RunE:  runConfigShow,
}

var configValidateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate configuration",
	Long:  `Validate the current configuration for errors.`,
	RunE:  runConfigValidate,
}

func init() {
	configCmd.AddCommand(configInitCmd)
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configValidateCmd)
}

func runConfigInit(cmd *cobra.Command, _ []string) error {
	color.Blue("ccproxy Configuration Setup")
	color.Yellow("Follow the prompts to configure your first upstream channel.")

	reader := bufio.NewReader(os.Stdin)

	fmt.Print("\nChannel Name (e.g., anthropic, openrouter): ")
	channelName, _ := reader.ReadString('\n')
	channelName = strings.TrimSpace(channelName)

	fmt.Printf("Service Type (%s, %s, %s, %s): ", config.ServiceClaude, config.ServiceOpenAI, config.ServiceOpenAIOld, config.ServiceGemini)
	serviceType, _ := reader.ReadString('\n')
	serviceType = strings.TrimSpace(serviceType)

	fmt.Print("API Base URL: ")
	baseURL, _ := reader.ReadString('\n')
	baseURL = strings.TrimSpace(baseURL)

	fmt.Print("API Key(s), comma-separated: ")
	rawKeys, _ := reader.ReadString('\n')
	var apiKeys []string
	for _, k := range strings.Split(rawKeys, ",") {
		if k = strings.TrimSpace(k); k != "" {
			apiKeys = append(apiKeys, k)
		}
	}

	fmt.Print("Proxy Access Key (optional, for client authentication): ")
	proxyAccessKey, _ := reader.ReadString('\n')
	proxyAccessKey = strings.TrimSpace(proxyAccessKey)

	cfg := &config.Config{
		Host:            config.DefaultHost,
		Port:            config.DefaultPort,
		ProxyAccessKey:  proxyAccessKey,
		HealthCheckPath: config.DefaultHealthCheckPath,
		LoadBalance:     config.LoadBalanceSequential,
		CurrentUpstream: channelName,
		Upstreams: map[string]*config.UpstreamChannel{
			channelName: {
				Name:        channelName,
				ServiceType: serviceType,
				BaseURL:     baseURL,
				APIKeys:     apiKeys,
			},
		},
	}

	if err := cfgMgr.Save(cfg); err != nil {
		return fmt.Errorf("failed to save configuration: %w", err)
	}

	color.Green("Configuration saved successfully to: %s", cfgMgr.GetPath())
	color.Cyan("You can now start the proxy with: ccproxy start")

	return nil
}

func runConfigShow(cmd *cobra.Command, _ []string) error {
	if !cfgMgr.Exists() {
		color.Yellow("No configuration found. Run 'ccproxy config init' to create one.")
		return nil
	}

	cfg, err := cfgMgr.Load()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	color.Blue("Current Configuration:")
	fmt.Printf("  %-18s: %s\n", "Host", cfg.Host)
	fmt.Printf("  %-18s: %d\n", "Port", cfg.Port)
	fmt.Printf("  %-18s: %s\n", "Proxy Access Key", maskString(cfg.ProxyAccessKey))
	fmt.Printf("  %-18s: %s\n", "Health Check Path", cfg.HealthCheckPath)
	fmt.Printf("  %-18s: %s\n", "Load Balance", cfg.LoadBalance)
	fmt.Printf("  %-18s: %s\n", "Current Upstream", cfg.CurrentUpstream)
	fmt.Printf("  %-18s: %s\n", "Config Path", cfgMgr.GetPath())

	fmt.Println("\nUpstream Channels:")
	for name, ch := range cfg.Upstreams {
		fmt.Printf("  - Name: %s\n", name)
		fmt.Printf("    Service Type: %s\n", ch.ServiceType)
		fmt.Printf("    Base URL: %s\n", ch.BaseURL)
		fmt.Printf("    API Keys: %d configured\n", len(ch.APIKeys))
		if len(ch.ModelMapping) > 0 {
			fmt.Printf("    Model Mapping: %v\n", ch.ModelMapping)
		}
		fmt.Println()
	}

	return nil
}

func runConfigValidate(cmd *cobra.Command, _ []string) error {
	if !cfgMgr.Exists() {
		return fmt.Errorf("no configuration found")
	}

	cfg, err := cfgMgr.Load()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	var errs []string

	if len(cfg.Upstreams) == 0 {
		errs = append(errs, "no upstream channels configured")
	}

	for name, ch := range cfg.Upstreams {
		if ch.ServiceType == "" {
			errs = append(errs, fmt.Sprintf("upstream %q: serviceType is required", name))
		}
		if ch.BaseURL == "" {
			errs = append(errs, fmt.Sprintf("upstream %q: baseUrl is required", name))
		}
		if len(ch.APIKeys) == 0 {
			errs = append(errs, fmt.Sprintf("upstream %q: at least one API key is required", name))
		}
	}

	if cfg.CurrentUpstream == "" {
		errs = append(errs, "currentUpstream is required")
	} else if _, ok := cfg.Upstreams[cfg.CurrentUpstream]; !ok {
		errs = append(errs, fmt.Sprintf("currentUpstream %q does not match any configured upstream", cfg.CurrentUpstream))
	}

	if len(errs) > 0 {
		color.Red("Configuration validation failed:")
		for _, e := range errs {
			fmt.Printf("  - %s\n", e)
		}
		return fmt.Errorf("configuration validation failed")
	}

	color.Green("Configuration is valid!")
	return nil
}

func maskString(s string) string {
	if s == "" {
		return "(not set)"
	}
	if len(s) <= 8 {
		return strings.Repeat("*", len(s))
	}
	return s[:4] + strings.Repeat("*", len(s)-8) + s[len(s)-4:]
}
