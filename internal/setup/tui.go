package setup

import (
	"fmt"
	"time"

	"github.com/charmbracelet/huh"
	"github.com/charmbracelet/lipgloss"
	"github.com/shopspring/decimal"
	"mocktrader/config"
)

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

// RunTUI launches the terminal configuration wizard and writes the result
// to config.yaml.
func RunTUI() error {
	cfg := &config.Config{}

	var (
		listenAddr   = ":8000"
		pricesFile   = "test.csv"
		rotationStr  = "15s"
		startingCash = "10000"
		dbPath       = "data/mocktrader.db"
		jwtSecret    string
		confirm      bool
	)

	// step 1: welcome
	fmt.Print("\033[H\033[2J") // Clear screen
	fmt.Println(headerStyle.Render("MOCKTRADER CONFIG WIZARD"))
	fmt.Println(lipgloss.NewStyle().Foreground(subtle).Render("Let's get your exchange simulator configured.\n"))

	// server
	fmt.Println(stepStyle.Render("STEP 1: SERVER"))
	err := huh.NewForm(
		huh.NewGroup(
			huh.NewInput().
				Title("Listen Address").
				Description("host:port the API listens on (e.g. :8000)").
				Value(&listenAddr).
				Validate(func(s string) error {
					if s == "" {
						return fmt.Errorf("listen address cannot be empty")
					}
					return nil
				}),
		),
	).Run()
	if err != nil {
		return err
	}

	// price feed
	fmt.Print("\033[H\033[2J")
	fmt.Println(headerStyle.Render("MOCKTRADER CONFIG WIZARD"))
	fmt.Println(stepStyle.Render("STEP 2: PRICE FEED"))
	err = huh.NewForm(
		huh.NewGroup(
			huh.NewInput().
				Title("Price CSV File").
				Description("Path to the rotating price file").
				Value(&pricesFile).
				Validate(func(s string) error {
					if s == "" {
						return fmt.Errorf("prices file cannot be empty")
					}
					return nil
				}),
			huh.NewInput().
				Title("Rotation Interval").
				Description("Duration string (e.g. 15s, 1m)").
				Value(&rotationStr).
				Validate(func(s string) error {
					d, err := time.ParseDuration(s)
					if err != nil {
						return err
					}
					if d <= 0 {
						return fmt.Errorf("must be positive")
					}
					return nil
				}),
		),
	).Run()
	if err != nil {
		return err
	}

	// accounts
	fmt.Print("\033[H\033[2J")
	fmt.Println(headerStyle.Render("MOCKTRADER CONFIG WIZARD"))
	fmt.Println(stepStyle.Render("STEP 3: ACCOUNTS"))
	err = huh.NewForm(
		huh.NewGroup(
			huh.NewInput().
				Title("Starting Cash").
				Description("Cash balance granted to new users (e.g. 10000)").
				Value(&startingCash).
				Validate(validateCash),
			huh.NewInput().
				Title("Database Path").
				Description("SQLite file for users and portfolios").
				Value(&dbPath),
			huh.NewInput().
				Title("JWT Secret").
				Description("Leave empty to use the built-in default").
				Value(&jwtSecret).
				EchoMode(huh.EchoModePassword),
		),
	).Run()
	if err != nil {
		return err
	}

	// confirmation
	fmt.Print("\033[H\033[2J")
	fmt.Println(headerStyle.Render("MOCKTRADER CONFIG WIZARD"))
	fmt.Println(stepStyle.Render("FINAL CONFIRMATION"))

	summary := fmt.Sprintf(
		"Listen: %s\nPrices: %s\nRotation: %s\nStarting cash: %s\nDatabase: %s\n",
		listenAddr, pricesFile, rotationStr, startingCash, dbPath,
	)
	fmt.Println(lipgloss.NewStyle().Border(lipgloss.NormalBorder()).Padding(1).Render(summary))

	err = huh.NewForm(
		huh.NewGroup(
			huh.NewConfirm().
				Title("Save Configuration?").
				Affirmative("Yes, save").
				Negative("No, exit").
				Value(&confirm),
		),
	).Run()
	if err != nil {
		return err
	}

	if !confirm {
		return fmt.Errorf("setup cancelled by user")
	}

	rotation, _ := time.ParseDuration(rotationStr)
	cash, _ := decimal.NewFromString(startingCash)

	cfg.ListenAddr = listenAddr
	cfg.PricesFile = pricesFile
	cfg.RotationInterval = rotation
	cfg.StartingCash = cash
	cfg.DBPath = dbPath
	cfg.JWTSecret = jwtSecret

	if err := cfg.Write(config.DefaultConfigPath); err != nil {
		return fmt.Errorf("failed to save config file: %w", err)
	}

	fmt.Println(lipgloss.NewStyle().Foreground(special).Render(fmt.Sprintf("\n✓ Configuration saved to %s", config.DefaultConfigPath)))
	time.Sleep(1500 * time.Millisecond) // small pause to read success message
	return nil
}

func validateCash(s string) error {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return fmt.Errorf("must be a valid number")
	}
	if d.IsNegative() {
		return fmt.Errorf("must not be negative")
	}
	return nil
}
