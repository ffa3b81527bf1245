// Command tokline is a minimal demonstration host for the tokenization
// engine: it opens a file, drives the engine through a bubbletea program
// exactly the way an editor's UI goroutine would, and either renders a
// live status view or (with --wait) blocks until the background pass
// finishes and prints the highlighted file.
package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/log"
	"github.com/charmbracelet/lipgloss"
	"github.com/dustin/go-humanize"
	"github.com/muesli/termenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/charmbracelet/tokline/buffer"
	"github.com/charmbracelet/tokline/engine"
	"github.com/charmbracelet/tokline/errsink"
	"github.com/charmbracelet/tokline/registry"
	"github.com/charmbracelet/tokline/tokenizer"
	"github.com/charmbracelet/tokline/tuihost"
)

// knownLanguages seeds the registry with chroma's most common lexer
// aliases. A real host would register lazily per extension; this demo
// registers eagerly since it only ever opens one file.
var knownLanguages = []string{
	"go", "python", "javascript", "typescript", "json", "yaml", "markdown",
	"rust", "c", "cpp", "bash", "html", "css", "sql", "toml",
}

// envConfig is read once via caarlos0/env, the same library main.go uses
// in the teacher repo, for the one setting worth an environment override.
type envConfig struct {
	IdleBudgetMS int `env:"TOKLINE_IDLE_MS" envDefault:"16"`
}

var (
	lang   string
	idleMS int
	wait   bool

	rootCmd = &cobra.Command{
		Use:           "tokline <file>",
		Short:         "Drive the incremental tokenization engine over a file",
		SilenceUsage:  true,
		SilenceErrors: false,
		Args:          cobra.ExactArgs(1),
		RunE:          run,
	}
)

func init() {
	rootCmd.Flags().StringVar(&lang, "lang", "", "language id (guessed from the filename if unset)")
	rootCmd.Flags().IntVar(&idleMS, "idle-ms", 0, "idle budget per background slice, in milliseconds")
	rootCmd.Flags().BoolVar(&wait, "wait", false, "wait for the background pass to finish, then print the file")

	// Bound under dash-free keys, the same way the teacher's main.go binds
	// "line-numbers" under "showLineNumbers" — AutomaticEnv can't route a
	// dashed key to an env var name.
	_ = viper.BindPFlag("lang", rootCmd.Flags().Lookup("lang"))
	_ = viper.BindPFlag("wait", rootCmd.Flags().Lookup("wait"))

	viper.SetConfigName("tokline")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	if dir, err := os.UserConfigDir(); err == nil {
		viper.AddConfigPath(filepath.Join(dir, "tokline"))
	}
	viper.SetEnvPrefix("tokline")
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			fmt.Fprintf(os.Stderr, "tokline: could not parse config file: %v\n", err)
		}
	}
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(cmd *cobra.Command, args []string) error {
	path := args[0]
	logger := log.NewWithOptions(os.Stderr, log.Options{ReportTimestamp: false})
	sink := errsink.New(logger)

	cfg, err := env.ParseAs[envConfig]()
	if err != nil {
		return fmt.Errorf("parsing environment: %w", err)
	}
	budget := time.Duration(cfg.IdleBudgetMS) * time.Millisecond
	if cmd.Flags().Changed("idle-ms") {
		budget = time.Duration(idleMS) * time.Millisecond
	}

	// Pull lang/wait back out of viper rather than trusting the raw flag
	// vars directly, so a tokline.yaml config file or a TOKLINE_LANG/
	// TOKLINE_WAIT env var can override an unset flag, the same way the
	// teacher's validateOptions re-reads its package vars from viper.
	lang = viper.GetString("lang")
	wait = viper.GetBool("wait")

	reg := registry.New()
	for _, id := range knownLanguages {
		reg.Register(id, tokenizer.NewChromaTokenizer(id))
	}

	languageID := lang
	if languageID == "" {
		languageID = reg.GuessLanguageID(path)
	}
	if languageID == "" {
		languageID = "plaintext"
	}

	fb, err := buffer.OpenFile(path, languageID)
	if err != nil {
		return fmt.Errorf("opening %s: %w", path, err)
	}
	defer fb.Close()

	if info, statErr := os.Stat(path); statErr == nil {
		logger.Debug("opened file", "path", path, "size", humanize.Bytes(uint64(info.Size())), "lang", languageID)
	}
	logger.Debug("terminal color profile", "profile", termenv.ColorProfile())

	h := tuihost.New(budget)
	fb.Dispatch = h.ScheduleZeroDelay

	// The Host needs a running *tea.Program to deliver callbacks through,
	// and the program's model needs an Engine to render — but building the
	// Engine can itself request an idle callback immediately (if the file
	// isn't empty). Bind the program to h first, with the model holding an
	// indirect reference, so any early RequestIdleCallback always finds a
	// live program to send to.
	var eng *engine.Engine
	m := newModel(&eng, fb, path)
	program := tea.NewProgram(m)
	h.SetProgram(program)
	eng = engine.New(fb, reg, h, sink)

	if wait {
		done := make(chan error, 1)
		go func() {
			_, runErr := program.Run()
			done <- runErr
		}()

		ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
		defer cancel()
		waitErr := eng.WaitIdle(ctx)
		program.Quit()
		if runErr := <-done; runErr != nil {
			return runErr
		}
		if waitErr != nil {
			return fmt.Errorf("waiting for background tokenization: %w", waitErr)
		}

		printTokenizedFile(fb)
		return nil
	}

	_, err = program.Run()
	return err
}

// model is the bubbletea program tokline runs. Its only real job is to
// host tuihost.Model's idle/zero-delay message dispatch on a single
// serial Update loop; the spinner and status line exist to make the
// interactive (non --wait) mode show something.
type model struct {
	tuihost.Model
	engRef **engine.Engine
	fb     *buffer.FileBuffer
	path   string
	spin   spinner.Model
}

func newModel(engRef **engine.Engine, fb *buffer.FileBuffer, path string) model {
	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = lipgloss.NewStyle().Foreground(lipgloss.Color("205"))
	return model{engRef: engRef, fb: fb, path: path, spin: s}
}

func (m model) eng() *engine.Engine { return *m.engRef }

func (m model) Init() tea.Cmd {
	return m.spin.Tick
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c", "esc":
			return m, tea.Quit
		}
	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spin, cmd = m.spin.Update(msg)
		return m, cmd
	default:
		// idleMsg/zeroDelayMsg: dispatch to the scheduler, nothing to render
		// differently in response.
		m.Model.Update(msg)
	}
	return m, nil
}

func (m model) View() string {
	eng := m.eng()
	if eng == nil {
		return m.spin.View()
	}
	frontier := eng.InvalidFrontier()
	total := eng.LineCount()
	stats := eng.Stats()

	status := fmt.Sprintf(
		"%s %s\n%d/%d lines tokenized  (skip-ahead: %d, null: %d)\n\nq to quit",
		m.spin.View(), m.path, frontier, total, stats.SkipAheadHits, stats.NullTokenizations,
	)
	return lipgloss.NewStyle().Padding(1, 2).Render(status)
}

// printTokenizedFile renders every line with a style per TokenType,
// degrading to plain text for any offset chroma's tokenizer didn't cover.
func printTokenizedFile(fb *buffer.FileBuffer) {
	styles := map[tokenizer.TokenType]lipgloss.Style{
		tokenizer.Comment:    lipgloss.NewStyle().Foreground(lipgloss.Color("242")),
		tokenizer.String:     lipgloss.NewStyle().Foreground(lipgloss.Color("150")),
		tokenizer.Keyword:    lipgloss.NewStyle().Foreground(lipgloss.Color("212")).Bold(true),
		tokenizer.Number:     lipgloss.NewStyle().Foreground(lipgloss.Color("215")),
		tokenizer.Identifier: lipgloss.NewStyle(),
		tokenizer.Other:      lipgloss.NewStyle(),
	}

	for i := 1; i <= fb.LineCount(); i++ {
		line := fb.Line(i)
		toks := fb.TokensFor(i)

		var b strings.Builder
		start := 0
		for _, tok := range toks {
			end := tok.EndOffset
			if end > len(line) {
				end = len(line)
			}
			if end < start {
				continue
			}
			b.WriteString(styles[tok.Type].Render(line[start:end]))
			start = end
		}
		if start < len(line) {
			b.WriteString(line[start:])
		}
		fmt.Println(b.String())
	}
}
