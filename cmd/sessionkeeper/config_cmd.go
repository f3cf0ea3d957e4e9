package main

import (
	"fmt"
	"os"

	"github.com/BurntSushi/toml"

	"github.com/sessionkeeper/sessionkeeper/internal/config"
)

func handleConfig(args []string) {
	if len(args) < 1 {
		printConfigUsage()
		os.Exit(1)
	}

	switch args[0] {
	case "init":
		if err := config.CreateExampleConfig(); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		path, err := config.GetUserConfigPath()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("Config file: %s\n", path)
	case "path":
		path, err := config.GetUserConfigPath()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		fmt.Println(path)
	case "show":
		showEffectiveConfig()
	default:
		printConfigUsage()
		os.Exit(1)
	}
}

// showEffectiveConfig prints the settings the keeper actually runs with:
// the config file merged with defaults, in the file's own format.
func showEffectiveConfig() {
	exitTimeout, launchTimeout := config.GetTimingSettings()
	restore := config.GetRestoreSettings()
	logs := config.GetLogSettings()
	bridgeSettings := config.GetBridgeSettings()

	suppress := restore.GetSuppressBlankTab()
	restore.SuppressBlankTab = &suppress
	compress := logs.GetDebugCompress()
	logs.DebugCompress = &compress

	effective := config.UserConfig{
		Theme: config.GetTheme(),
		Timing: config.TimingSettings{
			ExitTimeoutMS:   int(exitTimeout.Milliseconds()),
			LaunchTimeoutMS: int(launchTimeout.Milliseconds()),
		},
		Restore: restore,
		Logs:    logs,
		Bridge:  bridgeSettings,
	}

	if err := toml.NewEncoder(os.Stdout).Encode(effective); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func printConfigUsage() {
	fmt.Fprintln(os.Stderr, "Usage: sessionkeeper config <command>")
	fmt.Fprintln(os.Stderr, "")
	fmt.Fprintln(os.Stderr, "Commands:")
	fmt.Fprintln(os.Stderr, "  init    Create a commented example config file")
	fmt.Fprintln(os.Stderr, "  path    Print the config file location")
	fmt.Fprintln(os.Stderr, "  show    Print the effective settings after defaults")
}

func handleProfile(args []string) {
	if len(args) < 1 {
		printProfileUsage()
		os.Exit(1)
	}

	switch args[0] {
	case "list", "ls":
		profiles, err := config.ListProfiles()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		if len(profiles) == 0 {
			fmt.Println("No profiles yet (one is created on first use)")
			return
		}
		defaultProfile := config.DefaultProfile
		if gc, err := config.LoadGlobalConfig(); err == nil {
			defaultProfile = gc.DefaultProfile
		}
		for _, p := range profiles {
			marker := "  "
			if p == defaultProfile {
				marker = "* "
			}
			fmt.Printf("%s%s\n", marker, p)
		}
	case "create":
		if len(args) < 2 {
			fmt.Fprintln(os.Stderr, "Usage: sessionkeeper profile create <name>")
			os.Exit(1)
		}
		if err := config.CreateProfile(args[1]); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("Created profile '%s'\n", args[1])
	case "delete", "rm":
		if len(args) < 2 {
			fmt.Fprintln(os.Stderr, "Usage: sessionkeeper profile delete <name>")
			os.Exit(1)
		}
		if err := config.DeleteProfile(args[1]); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("Deleted profile '%s'\n", args[1])
	case "default":
		if len(args) < 2 {
			fmt.Fprintln(os.Stderr, "Usage: sessionkeeper profile default <name>")
			os.Exit(1)
		}
		if err := config.SetDefaultProfile(args[1]); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("Default profile is now '%s'\n", args[1])
	default:
		printProfileUsage()
		os.Exit(1)
	}
}

func printProfileUsage() {
	fmt.Fprintln(os.Stderr, "Usage: sessionkeeper profile <command>")
	fmt.Fprintln(os.Stderr, "")
	fmt.Fprintln(os.Stderr, "Commands:")
	fmt.Fprintln(os.Stderr, "  list              List profiles (default marked with *)")
	fmt.Fprintln(os.Stderr, "  create <name>     Create a new profile")
	fmt.Fprintln(os.Stderr, "  delete <name>     Delete a profile and its data")
	fmt.Fprintln(os.Stderr, "  default <name>    Set the default profile")
}
