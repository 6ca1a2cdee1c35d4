package setup

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/charmbracelet/huh"
	"github.com/charmbracelet/lipgloss"
	"github.com/ethereum/go-ethereum/common"
	"gopkg.in/yaml.v3"

	"github.com/vadiminshakov/estate/config"
)

// ConfigFile is where the wizard writes the generated configuration.
const ConfigFile = "config.gen.yaml"

var (
	subtle    = lipgloss.AdaptiveColor{Light: "#D9DCCF", Dark: "#383838"}
	highlight = lipgloss.AdaptiveColor{Light: "#874BFD", Dark: "#7D56F4"}
	special   = lipgloss.AdaptiveColor{Light: "#43BF6D", Dark: "#73F59F"}

	headerStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("205")).
			Background(highlight).
			Padding(1, 2).
			Bold(true).
			MarginBottom(1)

	stepStyle = lipgloss.NewStyle().
			Foreground(special).
			Bold(true).
			MarginTop(1).
			MarginBottom(0)
)

// answers collects the raw wizard input.
type answers struct {
	platform        string
	rpcURL          string
	contract        string
	account         string
	readConcurrency string
	readsPerSecond  string
	finalityTimeout string
	refreshInterval string
	webAddr         string
}

func defaultAnswers() answers {
	return answers{
		platform:        config.PlatformSimulate,
		rpcURL:          "http://127.0.0.1:8545",
		readConcurrency: "8",
		readsPerSecond:  "0",
		finalityTimeout: "2m",
		refreshInterval: "30s",
		webAddr:         ":8080",
	}
}

func screen(step string) {
	fmt.Print("\033[H\033[2J") // clear screen
	fmt.Println(headerStyle.Render("ESTATE CONFIG WIZARD"))
	fmt.Println(stepStyle.Render(step))
}

// RunTUI launches the terminal configuration wizard and returns the path
// of the written config file.
func RunTUI() (string, error) {
	a := defaultAnswers()
	confirm := false

	screen("STEP 1: LEDGER")
	fmt.Println(lipgloss.NewStyle().Foreground(subtle).Render("Where does the property registry live?\n"))
	err := huh.NewForm(
		huh.NewGroup(
			huh.NewSelect[string]().
				Title("Select ledger platform").
				Options(
					huh.NewOption("EVM node (JSON-RPC)", config.PlatformEVM),
					huh.NewOption("Simulation", config.PlatformSimulate),
				).
				Value(&a.platform),
		),
	).Run()
	if err != nil {
		return "", err
	}

	if a.platform == config.PlatformEVM {
		screen("STEP 2: CONTRACT")
		err = huh.NewForm(
			huh.NewGroup(
				huh.NewInput().
					Title("RPC URL").
					Value(&a.rpcURL).
					Validate(validateRequired),
				huh.NewInput().
					Title("Registry contract address").
					Description("0x followed by 40 hex digits").
					Value(&a.contract).
					Validate(validateAddress),
			),
		).Run()
		if err != nil {
			return "", err
		}
	}

	screen("STEP 3: ACCOUNT")
	fmt.Println(lipgloss.NewStyle().Foreground(subtle).Render(
		fmt.Sprintf("The signing key is read from %s and never stored.\n", config.PrivateKeyEnv)))
	err = huh.NewForm(
		huh.NewGroup(
			huh.NewInput().
				Title("View account").
				Description("Address to show when no signing key is set, empty for a public view").
				Value(&a.account).
				Validate(validateOptionalAddress),
		),
	).Run()
	if err != nil {
		return "", err
	}

	screen("STEP 4: TUNING")
	err = huh.NewForm(
		huh.NewGroup(
			huh.NewInput().
				Title("Parallel ledger reads").
				Value(&a.readConcurrency).
				Validate(validatePositiveInt),
			huh.NewInput().
				Title("Reads per second").
				Description("0 disables throttling").
				Value(&a.readsPerSecond).
				Validate(validateRate),
			huh.NewInput().
				Title("Finality timeout").
				Value(&a.finalityTimeout).
				Validate(validateDuration),
			huh.NewInput().
				Title("Refresh interval").
				Value(&a.refreshInterval).
				Validate(validateDuration),
			huh.NewInput().
				Title("Web view address").
				Description("Empty disables the web view").
				Value(&a.webAddr),
		),
	).Run()
	if err != nil {
		return "", err
	}

	screen("FINAL CONFIRMATION")
	summary := fmt.Sprintf(
		"Platform: %s\nRPC: %s\nContract: %s\nAccount: %s\nWeb: %s\n",
		a.platform, a.rpcURL, a.contract, a.account, a.webAddr,
	)
	fmt.Println(lipgloss.NewStyle().Border(lipgloss.NormalBorder()).Padding(1).Render(summary))

	err = huh.NewForm(
		huh.NewGroup(
			huh.NewConfirm().
				Title("Save Configuration?").
				Affirmative("Yes, save and start").
				Negative("No, exit").
				Value(&confirm),
		),
	).Run()
	if err != nil {
		return "", err
	}
	if !confirm {
		return "", fmt.Errorf("setup cancelled by user")
	}

	if err := writeConfig(ConfigFile, a.toConfig()); err != nil {
		return "", err
	}

	fmt.Println(lipgloss.NewStyle().Foreground(special).Render(fmt.Sprintf("\n✓ Configuration saved to %s\nStarting...", ConfigFile)))
	time.Sleep(1500 * time.Millisecond) // small pause to read success message
	return ConfigFile, nil
}

func (a answers) toConfig() config.ConfigTmp {
	finality, _ := time.ParseDuration(a.finalityTimeout)
	refresh, _ := time.ParseDuration(a.refreshInterval)

	tmp := config.ConfigTmp{
		Platform:           a.platform,
		Account:            a.account,
		ReadConcurrencyStr: a.readConcurrency,
		ReadsPerSecondStr:  a.readsPerSecond,
		FinalityTimeout:    finality,
		RefreshInterval:    refresh,
		WebAddr:            a.webAddr,
	}
	if a.platform == config.PlatformEVM {
		tmp.RPCURL = a.rpcURL
		tmp.ContractAddress = a.contract
	}
	return tmp
}

func writeConfig(path string, tmp config.ConfigTmp) error {
	data, err := yaml.Marshal(tmp)
	if err != nil {
		return fmt.Errorf("failed to generate yaml: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to save config file: %w", err)
	}
	return nil
}

func validateRequired(s string) error {
	if s == "" {
		return fmt.Errorf("required")
	}
	return nil
}

func validateAddress(s string) error {
	if !common.IsHexAddress(s) {
		return fmt.Errorf("must be a 0x-prefixed 20 byte address")
	}
	return nil
}

func validateOptionalAddress(s string) error {
	if s == "" {
		return nil
	}
	return validateAddress(s)
}

func validatePositiveInt(s string) error {
	n, err := strconv.Atoi(s)
	if err != nil || n < 1 {
		return fmt.Errorf("must be a positive integer")
	}
	return nil
}

func validateRate(s string) error {
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || f < 0 {
		return fmt.Errorf("must be a non-negative number")
	}
	return nil
}

func validateDuration(s string) error {
	d, err := time.ParseDuration(s)
	if err != nil || d <= 0 {
		return fmt.Errorf("must be a positive duration like 30s or 2m")
	}
	return nil
}
