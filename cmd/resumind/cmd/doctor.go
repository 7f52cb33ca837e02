package cmd

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/fatih/color"
	"github.com/shirou/gopsutil/v3/disk"
	"github.com/shirou/gopsutil/v3/mem"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/resumind/resumind/internal/api"
	"github.com/resumind/resumind/internal/config"
	"github.com/resumind/resumind/internal/logging"
	"github.com/resumind/resumind/internal/store"
	"github.com/resumind/resumind/internal/workflow"
)

var doctorCmd = &cobra.Command{
	Use:   "doctor",
	Short: "Check the server environment",
	Long: `Verify that the server can run with the current configuration:
the config file parses and validates, the database opens and migrates,
the uploads directory is writable and the prompt templates load. Also
reports memory and disk headroom.`,
	RunE: runDoctor,
}

func init() {
	rootCmd.AddCommand(doctorCmd)
}

var (
	okMark   = color.New(color.FgGreen).Sprint("✓")
	failMark = color.New(color.FgRed).Sprint("✗")
	warnMark = color.New(color.FgYellow).Sprint("⚠")
)

type doctorCheck struct {
	name string
	run  func(cfg *config.Config) (string, error)
}

func runDoctor(_ *cobra.Command, _ []string) error {
	fmt.Println("Checking environment...")
	fmt.Println()

	loader := config.NewLoaderWithViper(viper.GetViper())
	if cfgFile != "" {
		loader.WithConfigFile(cfgFile)
	}
	cfg, err := loader.Load()
	if err != nil {
		fmt.Printf("  %s config: %v\n", failMark, err)
		return fmt.Errorf("environment check failed")
	}

	if verr := config.NewValidator().Validate(cfg); verr != nil {
		var verrs config.ValidationErrors
		if errors.As(verr, &verrs) {
			for _, issue := range verrs {
				fmt.Printf("  %s config: %s: %s\n", failMark, issue.Field, issue.Message)
			}
		} else {
			fmt.Printf("  %s config: %v\n", failMark, verr)
		}
		fmt.Println()
		fmt.Println("Fix the configuration before starting the server.")
		return fmt.Errorf("environment check failed")
	}
	source := loader.ConfigFile()
	if source == "" {
		source = "defaults"
	}
	fmt.Printf("  %s config (%s)\n", okMark, source)

	checks := []doctorCheck{
		{"database", checkDatabase},
		{"uploads dir", checkUploads},
		{"prompts", checkPrompts},
	}

	failed := false
	for _, check := range checks {
		detail, err := check.run(cfg)
		if err != nil {
			fmt.Printf("  %s %s: %v\n", failMark, check.name, err)
			failed = true
			continue
		}
		if detail != "" {
			fmt.Printf("  %s %s (%s)\n", okMark, check.name, detail)
		} else {
			fmt.Printf("  %s %s\n", okMark, check.name)
		}
	}

	fmt.Println()
	fmt.Println("System resources:")
	fmt.Println()
	reportMemory()
	reportDisk(cfg.Database.Path)
	fmt.Println()

	if failed {
		return fmt.Errorf("environment check failed")
	}
	fmt.Println("Environment ready. Start the server with 'resumind serve'.")
	return nil
}

func checkDatabase(cfg *config.Config) (string, error) {
	st, err := store.New(cfg.Database.Path)
	if err != nil {
		return "", err
	}
	if err := st.Close(); err != nil {
		return "", err
	}
	return cfg.Database.Path, nil
}

func checkUploads(cfg *config.Config) (string, error) {
	uploads, err := api.NewUploads(cfg.Uploads.Dir)
	if err != nil {
		return "", err
	}
	probe := filepath.Join(uploads.Dir(), ".doctor")
	if err := os.WriteFile(probe, []byte("ok"), 0o600); err != nil {
		return "", fmt.Errorf("not writable: %w", err)
	}
	_ = os.Remove(probe)
	return cfg.Uploads.Dir, nil
}

func checkPrompts(cfg *config.Config) (string, error) {
	steps, err := workflow.Steps()
	if err != nil {
		return "", err
	}
	prompts, err := workflow.NewPrompts(cfg.Prompts.Dir, logging.NewNop())
	if err != nil {
		return "", err
	}
	for _, step := range steps {
		if _, err := prompts.SystemPrompt(step.Key); err != nil {
			return "", err
		}
	}
	if cfg.Prompts.Dir != "" {
		return fmt.Sprintf("%d steps, overrides from %s", len(steps), cfg.Prompts.Dir), nil
	}
	return fmt.Sprintf("%d steps, embedded", len(steps)), nil
}

func reportMemory() {
	vm, err := mem.VirtualMemory()
	if err != nil {
		fmt.Printf("  %s memory: %v\n", warnMark, err)
		return
	}
	mark := okMark
	if vm.UsedPercent > 90 {
		mark = warnMark
	}
	fmt.Printf("  %s memory: %.0f%% used (%.1f GB of %.1f GB)\n",
		mark, vm.UsedPercent,
		float64(vm.Used)/1024/1024/1024,
		float64(vm.Total)/1024/1024/1024)
}

func reportDisk(dbPath string) {
	dir := filepath.Dir(dbPath)
	if abs, err := filepath.Abs(dir); err == nil {
		dir = abs
	}
	// Walk up to an existing directory so a fresh data dir still resolves.
	for {
		if _, err := os.Stat(dir); err == nil {
			break
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}
	usage, err := disk.Usage(dir)
	if err != nil {
		fmt.Printf("  %s disk: %v\n", warnMark, err)
		return
	}
	mark := okMark
	if usage.UsedPercent > 90 {
		mark = warnMark
	}
	fmt.Printf("  %s disk: %.0f%% used (%.1f GB free on %s)\n",
		mark, usage.UsedPercent,
		float64(usage.Free)/1024/1024/1024, dir)
}
