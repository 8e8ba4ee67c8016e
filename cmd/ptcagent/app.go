package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"ptcagent/internal/config"
	"ptcagent/internal/keywatch"
	"ptcagent/internal/logging"
	"ptcagent/internal/runtime"
	"ptcagent/internal/sandbox"
	"ptcagent/internal/streaming"
	"ptcagent/internal/tasks"
	"ptcagent/internal/ui"

	"github.com/google/uuid"
	"github.com/muesli/cancelreader"
)

// completedTaskRetention is how long finished background tasks stay listed.
const completedTaskRetention = time.Hour

// App is one interactive session.
type App struct {
	cfg      *config.Config
	lines    *lineReader
	console  *ui.Console
	client   *runtime.Client
	sandbox  sandbox.Sandbox
	home     string
	executor *streaming.Executor
	usage    *tokenTracker
	files    *fileCache
	logPath  string

	threadID    string
	planMode    bool
	autoApprove bool
}

func newApp(ctx context.Context, cfg *config.Config, logPath string) (*App, error) {
	console := ui.NewConsole(os.Stdout,
		ui.WithMarkdownStyle(cfg.UI.MarkdownStyle),
		ui.WithCodeStyle(cfg.UI.CodeStyle),
	)

	sb, home, err := openSandbox(ctx, cfg)
	if err != nil {
		return nil, err
	}

	a := &App{
		cfg:         cfg,
		lines:       newLineReader(os.Stdin),
		console:     console,
		client:      runtime.New(cfg.Server),
		sandbox:     sb,
		home:        home,
		usage:       &tokenTracker{},
		files:       &fileCache{},
		logPath:     logPath,
		threadID:    threadID,
		planMode:    cfg.Session.PlanMode,
		autoApprove: cfg.Session.AutoApprove,
	}
	if a.threadID == "" {
		a.threadID = uuid.NewString()
	}

	opts := []streaming.Option{
		streaming.WithPrompter(ui.NewPlanPrompter(console, os.Stdin, os.Stdout)),
		streaming.WithWatcher(func(onKey func()) streaming.Watcher {
			return keywatch.New(os.Stdin, onKey)
		}),
		streaming.WithMonitor(tasks.NewMonitor(ui.NewTaskStatusView(console),
			cfg.Background.PollInterval, cfg.Background.IdleTimeout)),
		streaming.WithUsage(a.usage),
		streaming.WithFileCache(a.files),
		streaming.WithEmptyResultThreshold(cfg.Streaming.EmptyResultThreshold, cfg.Streaming.SensitiveTools),
		streaming.WithMaxMentionFileSize(cfg.Streaming.MaxMentionFileSize),
	}
	if sb != nil {
		opts = append(opts, streaming.WithSandbox(sb, home))
	}
	a.executor = streaming.New(a.client, console, opts...)
	return a, nil
}

// openSandbox connects the sandbox selected by the configuration. It
// returns a nil sandbox when none is configured.
func openSandbox(ctx context.Context, cfg *config.Config) (sandbox.Sandbox, string, error) {
	switch cfg.Sandbox.Mode {
	case "ssh":
		sc := sandbox.DefaultSSHConfig()
		sc.Host = cfg.Sandbox.SSH.Host
		if cfg.Sandbox.SSH.Port > 0 {
			sc.Port = cfg.Sandbox.SSH.Port
		}
		if cfg.Sandbox.SSH.User != "" {
			sc.User = cfg.Sandbox.SSH.User
		}
		if cfg.Sandbox.SSH.KeyPath != "" {
			sc.KeyPath = cfg.Sandbox.SSH.KeyPath
		}
		sc.KeyPassphrase = cfg.Sandbox.SSH.KeyPassphrase
		sc.Password = cfg.Sandbox.SSH.Password
		if cfg.Sandbox.SSH.Timeout > 0 {
			sc.Timeout = cfg.Sandbox.SSH.Timeout
		}
		sc.HomeDir = strings.TrimSuffix(cfg.Sandbox.HomeDir, "/")

		s := sandbox.NewSSH(sc)
		if err := s.Connect(ctx); err != nil {
			return nil, "", fmt.Errorf("connect to sandbox %s: %w", sc.Host, err)
		}
		return s, cfg.Sandbox.HomeDir, nil
	case "local":
		l, err := sandbox.NewLocal(cfg.Sandbox.Local.Root)
		if err != nil {
			return nil, "", fmt.Errorf("open local sandbox: %w", err)
		}
		return l, l.Root(), nil
	default:
		return nil, "", nil
	}
}

// Close releases the sandbox and stops background pollers.
func (a *App) Close() {
	a.lines.Close()
	_ = a.client.Close()
	if a.sandbox != nil {
		if err := a.sandbox.Close(); err != nil {
			logging.Warn("sandbox_close_failed", "error", err)
		}
	}
}

// Run reads user input until the user quits or ctx is cancelled.
func (a *App) Run(ctx context.Context) error {
	a.printBanner(ctx)
	logging.Info("cli_loop_start", "assistant_id", a.cfg.Server.AssistantID, "thread_id", a.threadID,
		"log_file", a.logPath)

	for {
		a.console.Print(a.console.Styles().Primary.Render("> "))
		line, err := a.lines.ReadLine(ctx)
		if err != nil {
			if ctx.Err() != nil {
				a.console.Println("")
				a.console.Warn("Interrupted")
				logging.Info("cli_exit", "reason", "interrupt")
				return nil
			}
			if errors.Is(err, io.EOF) {
				logging.Info("cli_exit", "reason", "eof")
				return nil
			}
			return fmt.Errorf("read input: %w", err)
		}

		input := strings.TrimSpace(line)
		if input == "" {
			continue
		}
		if strings.HasPrefix(input, "/") {
			if a.handleCommand(input) {
				logging.Info("cli_exit", "reason", "slash_exit")
				a.console.Println("\nGoodbye!")
				return nil
			}
			continue
		}
		switch strings.ToLower(input) {
		case "quit", "exit", "q":
			logging.Info("cli_exit", "reason", "quit_keyword:"+strings.ToLower(input))
			a.console.Println("\nGoodbye!")
			return nil
		}

		err = a.executor.Execute(ctx, streaming.Turn{
			Input:       input,
			ThreadID:    a.threadID,
			AssistantID: a.cfg.Server.AssistantID,
			PlanMode:    a.planMode,
			AutoApprove: a.autoApprove,
		})
		a.client.Registry().Cleanup(completedTaskRetention)
		if err != nil {
			if ctx.Err() != nil {
				a.console.Println("")
				a.console.Warn("Interrupted")
				logging.Info("cli_exit", "reason", "interrupt")
				return nil
			}
			logging.Error("cli_dispatch_exception", "error", err)
			a.console.Println(a.console.FormatErrorWithGuidance(err.Error()))
			a.console.Println("")
		}
	}
}

func (a *App) printBanner(ctx context.Context) {
	st := a.console.Styles()
	a.console.Println(st.Primary.Bold(true).Render("ptcagent " + version))
	a.console.Println(st.Dim.Render(fmt.Sprintf("server %s  |  agent %s  |  thread %s",
		a.cfg.Server.URL, a.cfg.Server.AssistantID, a.threadID)))
	if a.sandbox != nil {
		if err := a.sandbox.Health(ctx); err != nil {
			a.console.Warn("⚠ Sandbox is not responding: " + err.Error())
		} else {
			a.files.refresh(ctx, a.sandbox, a.home)
		}
	}
	a.console.Println(st.Dim.Render("Type /help for commands, Esc to interrupt a response."))
	a.console.Println("")
}

// handleCommand runs a slash command and reports whether the session
// should end.
func (a *App) handleCommand(input string) bool {
	cmd := strings.ToLower(strings.Fields(input)[0])
	switch cmd {
	case "/exit", "/quit":
		return true
	case "/help":
		a.console.Println(helpText)
	case "/plan":
		a.planMode = !a.planMode
		a.console.Info("Plan mode " + onOff(a.planMode))
	case "/auto":
		a.autoApprove = !a.autoApprove
		a.console.Info("Auto-approve " + onOff(a.autoApprove))
	case "/new":
		a.threadID = uuid.NewString()
		a.usage.Reset()
		a.console.Info("Started new thread " + a.threadID)
	case "/tokens":
		a.console.Println(a.usage.String())
	case "/tasks":
		a.showTasks()
	case "/files":
		a.showFiles()
	default:
		a.console.Warn("Unknown command: " + cmd)
	}
	return false
}

func (a *App) showTasks() {
	list := a.client.Registry().List()
	if len(list) == 0 {
		a.console.Dim("No background tasks")
		return
	}
	for _, t := range list {
		line := fmt.Sprintf("  %s  %-9s %s", t.DisplayID, t.Status, t.Description)
		a.console.Println(strings.TrimRight(line, " "))
	}
}

// maxListedFiles caps the /files listing.
const maxListedFiles = 50

func (a *App) showFiles() {
	files := a.files.Files()
	if len(files) == 0 {
		a.console.Dim("No sandbox files cached")
		return
	}
	for i, f := range files {
		if i == maxListedFiles {
			a.console.Dim(fmt.Sprintf("  ... and %d more", len(files)-maxListedFiles))
			break
		}
		a.console.Println("  " + f)
	}
}

const helpText = `Commands:
  /plan    toggle plan mode
  /auto    toggle auto-approval of plans
  /new     start a new conversation thread
  /tokens  show token usage
  /tasks   list background tasks
  /files   list sandbox files available for @mentions
  /exit    quit (also: quit, exit, q)

Mention files with @path to attach them from the sandbox.`

func onOff(v bool) string {
	if v {
		return "on"
	}
	return "off"
}

// lineReader reads input lines for the whole session. Bytes read past a
// newline stay buffered for the next call.
type lineReader struct {
	in *os.File
	cr cancelreader.CancelReader
	br *bufio.Reader
}

func newLineReader(in *os.File) *lineReader {
	l := &lineReader{in: in}
	l.br = bufio.NewReader(readerFunc(l.read))
	return l
}

type readerFunc func(p []byte) (int, error)

func (f readerFunc) Read(p []byte) (int, error) { return f(p) }

// reader returns the current cancel reader. A cancelled reader cannot be
// reused, so a new one is opened lazily.
func (l *lineReader) reader() (cancelreader.CancelReader, error) {
	if l.cr == nil {
		cr, err := cancelreader.NewReader(l.in)
		if err != nil {
			return nil, err
		}
		l.cr = cr
	}
	return l.cr, nil
}

func (l *lineReader) read(p []byte) (int, error) {
	cr, err := l.reader()
	if err != nil {
		return 0, err
	}
	return cr.Read(p)
}

// ReadLine reads one line. It returns ctx.Err() when ctx ends while waiting.
func (l *lineReader) ReadLine(ctx context.Context) (string, error) {
	cr, err := l.reader()
	if err != nil {
		return "", err
	}
	stop := context.AfterFunc(ctx, func() { cr.Cancel() })
	defer stop()

	line, err := l.br.ReadString('\n')
	switch {
	case errors.Is(err, cancelreader.ErrCanceled):
		l.Close()
		return "", ctx.Err()
	case errors.Is(err, io.EOF) && line != "":
		return line, nil
	}
	return line, err
}

func (l *lineReader) Close() {
	if l.cr != nil {
		l.cr.Close()
		l.cr = nil
	}
}
