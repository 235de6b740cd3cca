package main

import (
	"errors"
	"fmt"
	"os"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"qubeconf/internal/audit"
	"qubeconf/internal/config"
	"qubeconf/internal/logging"
	"qubeconf/internal/manager"
	"qubeconf/internal/policy"
	"qubeconf/internal/preconfig"
	"qubeconf/internal/qubes"
	"qubeconf/internal/store"
	"qubeconf/internal/ui"
	"qubeconf/internal/watcher"
)

var (
	version = "0.3.0"

	policyDir  string
	socketPath string
	logLevel   string
	demo       bool
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "qubeconf",
		Short: "Settings editor for a qube-based system",
		Long: `Qubeconf edits the global settings and qrexec policy of a qube-based
system: default qubes, update checks, USB and U2F forwarding, and the
inter-qube clipboard and file copy policies. Changes are staged per page
and written atomically after an explicit save.`,
		RunE:          runEditor,
		SilenceUsage:  true,
		SilenceErrors: false,
	}

	rootCmd.PersistentFlags().StringVar(&policyDir, "policy-dir", "", "policy directory (default /etc/qubes/policy.d)")
	rootCmd.PersistentFlags().StringVar(&socketPath, "socket", "", "admin API socket (default /var/run/qubesd.sock)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "enable file logging at this level (debug, info, warn, error)")
	rootCmd.PersistentFlags().BoolVar(&demo, "demo", false, "run against a synthetic system instead of the admin API")

	rootCmd.AddCommand(newQubeCmd())
	rootCmd.AddCommand(checkCmd())
	rootCmd.AddCommand(preconfigCmd())
	rootCmd.AddCommand(historyCmd())
	rootCmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print the version number",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("qubeconf version %s\n", version)
		},
	})

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// loadConfig merges the config file, environment and command line flags,
// and switches on file logging when asked for.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	cfg.Version = version

	if policyDir != "" {
		cfg.Policy.Dir = policyDir
	}
	if socketPath != "" {
		cfg.Admin.Socket = socketPath
	}
	if logLevel != "" {
		cfg.Logging.Enabled = true
		cfg.Logging.Level = logLevel
	}

	if cfg.Logging.Enabled {
		dir := config.ConfigDir()
		if dir != "" {
			if err := os.MkdirAll(dir, 0700); err == nil {
				if err := logging.EnableFileLogging(dir, logging.ParseLevel(cfg.Logging.Level)); err != nil {
					fmt.Fprintf(os.Stderr, "warning: file logging disabled: %v\n", err)
				}
			}
		}
	}
	return cfg, nil
}

// buildClient returns the admin API client. In demo mode a seeded
// in-memory fake replaces the socket, and the policy directory moves to a
// throwaway location.
func buildClient(cfg *config.Config) qubes.Client {
	if !demo {
		return qubes.NewSocketClient(cfg.Admin.Socket)
	}

	if policyDir == "" {
		dir, err := os.MkdirTemp("", "qubeconf-demo-")
		if err == nil {
			cfg.Policy.Dir = dir
		}
	}

	client := qubes.NewFakeClient()
	client.AddQube(qubes.Qube{Name: "dom0", Class: qubes.ClassAdminVM, State: "Running"})
	client.AddQube(qubes.Qube{Name: "fedora-41", Class: qubes.ClassTemplateVM, State: "Halted"})
	client.AddQube(qubes.Qube{Name: "debian-13", Class: qubes.ClassTemplateVM, State: "Halted"})
	client.AddQube(qubes.Qube{Name: "sys-net", Class: qubes.ClassAppVM, State: "Running"})
	client.AddQube(qubes.Qube{Name: "sys-firewall", Class: qubes.ClassAppVM, State: "Running"})
	client.AddQube(qubes.Qube{Name: "sys-usb", Class: qubes.ClassAppVM, State: "Running"})
	client.AddQube(qubes.Qube{Name: "work", Class: qubes.ClassAppVM, State: "Running"})
	client.AddQube(qubes.Qube{Name: "personal", Class: qubes.ClassAppVM, State: "Halted"})
	client.AddQube(qubes.Qube{Name: "vault", Class: qubes.ClassAppVM, State: "Halted"})

	client.WithProperty("sys-net", "provides_network", qubes.Property{Value: "True", Type: "bool"})
	client.WithProperty("sys-firewall", "provides_network", qubes.Property{Value: "True", Type: "bool"})

	client.WithProperty("dom0", "default_template", qubes.Property{Value: "fedora-41", Type: "str"})
	client.WithProperty("dom0", "default_netvm", qubes.Property{Value: "sys-firewall", Type: "str"})
	client.WithProperty("dom0", "default_dispvm", qubes.Property{Value: "", Type: "str"})
	client.WithProperty("dom0", "clockvm", qubes.Property{Value: "sys-net", Type: "str"})
	client.WithProperty("dom0", "default_kernel", qubes.Property{Value: "6.6.2", Type: "str"})
	return client
}

func runEditor(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	defer logging.Close()

	client := buildClient(cfg)
	st := store.New(cfg.Policy.Dir)
	attachAudit(st)
	mgr := manager.New(st)
	editor := ui.NewEditor(client, mgr, cfg.UI.Theme)

	if cfg.Watcher.Enabled {
		w, err := watcher.New(cfg.Policy.Dir, store.Extension, cfg.Watcher.Debounce())
		if err != nil {
			logging.Warn("policy watcher unavailable", "error", err)
		} else {
			editor.AttachWatcher(w)
			if err := w.Start(); err != nil {
				logging.Warn("policy watcher failed to start", "error", err)
			} else {
				defer w.Stop()
			}
		}
	}

	logging.Info("starting editor", "policy_dir", cfg.Policy.Dir, "version", version)
	program := tea.NewProgram(editor, tea.WithAltScreen())
	_, err = program.Run()
	return err
}

// attachAudit hooks the policy-write audit trail into the store. Auditing
// is best effort; a failure to open the log never blocks editing.
func attachAudit(st *store.Store) {
	dir := config.ConfigDir()
	if dir == "" {
		return
	}
	logger, err := audit.NewLogger(dir)
	if err != nil {
		logging.Warn("audit log unavailable", "error", err)
		return
	}
	st.SetWriteObserver(func(name, oldToken, newToken string, size int) {
		if err := logger.Log(audit.NewEntry(name, oldToken, newToken, size)); err != nil {
			logging.Warn("audit write failed", "file", name, "error", err)
		}
	})
}

func historyCmd() *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show recent policy writes made by this tool",
		RunE: func(cmd *cobra.Command, args []string) error {
			dir := config.ConfigDir()
			if dir == "" {
				return fmt.Errorf("could not determine config directory")
			}
			logger, err := audit.NewLogger(dir)
			if err != nil {
				return err
			}
			entries, err := logger.Recent(limit)
			if err != nil {
				return err
			}
			if len(entries) == 0 {
				fmt.Println("no recorded policy writes")
				return nil
			}
			for _, e := range entries {
				kind := "update"
				if e.OldToken == "" {
					kind = "create"
				}
				fmt.Printf("%s  %-6s %s (%d bytes)\n",
					e.Timestamp.Format("2006-01-02 15:04:05"), kind, e.File, e.Bytes)
			}
			return nil
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 20, "maximum entries to show")
	return cmd
}

func newQubeCmd() *cobra.Command {
	var presetFile string
	cmd := &cobra.Command{
		Use:   "new-qube",
		Short: "Create a new qube through a guided wizard",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			defer logging.Close()
			client := buildClient(cfg)

			var presets []preconfig.Preset
			var problems []preconfig.Problem
			if presetFile != "" {
				doc, probs, err := preconfig.Load(presetFile)
				if err != nil {
					return fmt.Errorf("failed to load presets: %w", err)
				}
				presets = doc.Presets
				problems = probs
			}

			model := ui.NewWizard(client, presets, problems)
			program := tea.NewProgram(model, tea.WithAltScreen())
			final, err := program.Run()
			if err != nil {
				return err
			}
			if w, ok := final.(ui.WizardModel); ok && w.Created() != "" {
				fmt.Printf("created qube %s\n", w.Created())
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&presetFile, "presets", "", "preconfiguration file with qube presets")
	return cmd
}

func checkCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "check",
		Short: "Lint every policy file in the policy directory",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			st := store.New(cfg.Policy.Dir)
			names, err := st.List()
			if err != nil {
				return err
			}
			if len(names) == 0 {
				fmt.Printf("no policy files in %s\n", cfg.Policy.Dir)
				return nil
			}

			failed := false
			for _, name := range names {
				text, _, err := st.Get(name)
				if err != nil {
					fmt.Printf("%s: %v\n", name, err)
					failed = true
					continue
				}
				file, err := policy.Parse(name, text)
				if err != nil {
					var list *policy.ErrorList
					if errors.As(err, &list) {
						for _, problem := range list.Errors {
							fmt.Println(problem.Error())
						}
					} else {
						fmt.Printf("%s: %v\n", name, err)
					}
					failed = true
					continue
				}
				fmt.Printf("%s: ok (%d rules)\n", name, len(file.Rules()))
			}
			if failed {
				return fmt.Errorf("policy check failed")
			}
			return nil
		},
	}
}

func preconfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "preconfig",
		Short: "Work with preconfiguration files",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "validate <file>",
		Short: "Validate a preconfiguration file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			doc, problems, err := preconfig.Load(args[0])
			if err != nil {
				return err
			}
			for _, problem := range problems {
				fmt.Println(problem.String())
			}
			fmt.Printf("%d valid preset(s)\n", len(doc.Presets))
			if len(problems) > 0 {
				return fmt.Errorf("%d invalid entries", len(problems))
			}
			return nil
		},
	})
	return cmd
}
