package repl

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/lipgloss"
	"github.com/sahilm/fuzzy"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/ardnew/cask/engine"
	"github.com/ardnew/cask/log"
)

const (
	evalPrompt = "➜ "
	contPrompt = "… "
	ctrlPrompt = " :"

	indentUnit   = "    "
	outputPeriod = 250 * time.Millisecond
	defaultWidth = 80
)

func helpMessage() string {
	return `
: Commands (press Esc to toggle mode):

  help     Print this text
  list     List procedures defined in the session
  names    List every bound name
  exts     List permitted extensions (* loaded)
  modules  List curated modules (* installed)
  edit     Edit and run source in external $EDITOR
  clear    Clear screen
  quit     Exit REPL

Usage:
  Type a statement to run it; the value of an expression is printed
  A line ending in ':' starts a block; an empty line runs it
  Completions appear automatically as you type
  Press Tab / Shift-Tab to cycle through candidates
  Press Ctrl+C while a statement runs to stop it
  Use Up/Down arrows for history navigation (mode switches automatically)
  Use Shift+Up/Shift+Down for history navigation within current mode only
  Press Ctrl+C on empty line or Ctrl+D to exit
`
}

// inputMode represents the current input mode.
type inputMode int

const (
	modeEval inputMode = iota
	modeCtrl
)

// Styles.
var (
	promptStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("6")).
			Bold(true)
	ctrlPromptStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("5")).
			Bold(true)
	inputStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("15"))
	resultStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("2"))
	errorStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("1"))
	hintStyle       = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
	suggestionStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("4"))
	selectedStyle   = lipgloss.NewStyle().
			Foreground(lipgloss.Color("0")).
			Background(lipgloss.Color("4"))
)

type (
	// evalDoneMsg carries the outcome of a statement run.
	evalDoneMsg struct {
		value any
		err   error
	}

	// outputTickMsg polls for output written by background tasks.
	outputTickMsg struct{}

	// editDoneMsg carries source accepted in the external editor.
	editDoneMsg struct{ source string }

	// editErrorMsg is sent when the edit process fails.
	editErrorMsg struct{ err error }
)

// model is the Bubble Tea model for the REPL.
type model struct {
	ctxFunc    func() context.Context
	engine     *engine.Engine
	out        *Output
	logger     log.Logger
	input      textinput.Model
	history    *History
	historyIdx int

	matches      fuzzy.Matches
	wordStart    int
	wordEnd      int
	suggIdx      int
	tabActive    bool
	preTabText   string
	preTabCursor int

	pending  []string // lines of an unfinished block
	recalled string   // multi-line history entry shown collapsed
	lastRun  string   // most recent source, seeds the editor
	busy     bool
	width    int
	quitting bool

	mode       inputMode
	evalText   string
	evalCursor int
	ctrlText   string
	ctrlCursor int
}

// Run starts the REPL over e. Script output must be directed to out, which
// the REPL prints between redraws. History persists under cacheDir unless
// it is empty.
func Run(
	ctx context.Context,
	e *engine.Engine,
	out *Output,
	cacheDir string,
	logger log.Logger,
) (err error) {
	ctx, cancel := context.WithCancelCause(ctx)

	defer func(err *error) { cancel(*err) }(&err)

	if e == nil {
		return ErrNoEngine
	}

	histPath := ""
	if cacheDir != "" {
		histPath = filepath.Join(cacheDir, baseHistory)
	}

	history := NewHistory(histPath)
	if err := history.Load(); err != nil {
		logger.WarnContext(ctx, "could not load history", slog.Any("error", err))
	}

	logger.TraceContext(ctx, "repl start",
		slog.String("history", histPath),
		slog.Int("entry_count", history.Len()),
	)

	p := tea.NewProgram(newModel(ctx, e, out, history, logger), tea.WithContext(ctx))
	_, err = p.Run()

	return err
}

func newModel(
	ctx context.Context,
	e *engine.Engine,
	out *Output,
	history *History,
	logger log.Logger,
) model {
	ti := textinput.New()
	ti.Prompt = promptStyle.Render(evalPrompt)
	ti.Focus()
	ti.CharLimit = 4096
	ti.Width = defaultWidth

	if out == nil {
		out = NewOutput()
	}

	return model{
		ctxFunc:    func() context.Context { return ctx },
		engine:     e,
		out:        out,
		logger:     logger,
		input:      ti,
		history:    history,
		historyIdx: history.Len(),
		suggIdx:    -1,
		width:      defaultWidth,
		mode:       modeEval,
	}
}

func tickOutput() tea.Cmd {
	return tea.Tick(outputPeriod, func(time.Time) tea.Msg { return outputTickMsg{} })
}

func (m model) Init() tea.Cmd {
	return tea.Batch(textinput.Blink, tickOutput())
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		return m.handleKey(msg)

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.input.Width = msg.Width - len(evalPrompt) - 2

		return m, nil

	case evalDoneMsg:
		return m.finishEval(msg)

	case outputTickMsg:
		if m.busy {
			return m, tickOutput()
		}

		return m, tea.Batch(m.flushOutput(), tickOutput())

	case editDoneMsg:
		if strings.TrimSpace(msg.source) == "" {
			return m, tea.Println(hintStyle.Render("edit cancelled"))
		}

		return m.evaluate(msg.source, false)

	case editErrorMsg:
		return m, tea.Println(errorStyle.Render("error: " + msg.err.Error()))
	}

	var cmd tea.Cmd

	m.input, cmd = m.input.Update(msg)

	return m, cmd
}

func (m model) View() string {
	if m.quitting {
		return ""
	}

	var b strings.Builder

	b.WriteString(m.input.View())
	b.WriteString("\n")
	b.WriteString(m.hint())
	b.WriteString("\n")

	return b.String()
}

// hint renders the line below the input.
func (m model) hint() string {
	input := m.input.Value()

	switch {
	case m.busy:
		return hintStyle.Render("running (Ctrl+C to stop)")

	case m.historyIdx < m.history.Len():
		return hintStyle.Render(fmt.Sprintf("%s/%d",
			lipgloss.NewStyle().Bold(true).Render(strconv.Itoa(m.historyIdx+1)),
			m.history.Len()))

	case len(m.pending) > 0 && strings.TrimSpace(input) == "":
		return hintStyle.Render("Empty line runs the block")

	case strings.TrimSpace(input) == "":
		if m.mode == modeEval {
			return hintStyle.Render("Type a statement or press Esc for commands")
		}

		return hintStyle.Render("Type: " + strings.Join(ctrlCommands, ", ") + " (press Esc to return)")
	}

	if m.mode == modeEval {
		if call := detectFunctionCall(input, m.input.Position()); call.inCall {
			if sig, params := signatureOf(m.engine, call.name); sig != "" {
				return renderSignatureHint(sig, params, call.argIndex)
			}
		}
	}

	return renderCandidateBar(m.matches, m.suggIdx, m.tabActive, m.width,
		func(name string) bool { return m.mode == modeEval && isCallable(m.engine, name) })
}

func (m model) handleKey(msg tea.KeyMsg) (model, tea.Cmd) {
	m.logger.TraceContext(m.ctxFunc(), "repl keypress",
		slog.String("key", msg.String()))

	if m.busy {
		if msg.Type == tea.KeyCtrlC {
			m.engine.Stop()

			return m, tea.Println(hintStyle.Render("stopping..."))
		}

		return m, nil
	}

	switch msg.Type {
	case tea.KeyCtrlC:
		if m.input.Value() == "" && len(m.pending) == 0 {
			m.quitting = true

			return m, tea.Quit
		}

		m.input.SetValue("")
		m.pending = nil
		m.recalled = ""
		m.tabActive = false
		m.historyIdx = m.history.Len()
		m.setPrompt()
		refreshMatches(&m, false)

		return m, nil

	case tea.KeyCtrlD:
		if m.input.Value() == "" {
			m.quitting = true

			return m, tea.Quit
		}

		return m, nil

	case tea.KeyEnter:
		if !m.tabActive || len(m.matches) == 0 {
			return m.executeInput()
		}

		m.tabActive = false
		refreshMatches(&m, true)

		return m, nil

	case tea.KeyTab:
		return m.cycle(1)

	case tea.KeyShiftTab:
		return m.cycle(-1)

	case tea.KeyUp:
		return m.historyStep(-1, false)

	case tea.KeyDown:
		return m.historyStep(1, false)

	case tea.KeyShiftUp:
		return m.historyStep(-1, true)

	case tea.KeyShiftDown:
		return m.historyStep(1, true)

	case tea.KeyEsc:
		if m.tabActive {
			m.tabActive = false
			m.input.SetValue(m.preTabText)
			m.input.SetCursor(m.preTabCursor)
			refreshMatches(&m, false)

			return m, nil
		}

		return m.switchToMode(1 - m.mode)

	case tea.KeyRunes:
		if m.tabActive && msg.String() == " " {
			m.tabActive = false
		}

		var cmd tea.Cmd

		m.historyIdx = m.history.Len()
		m.input, cmd = m.input.Update(msg)
		refreshMatches(&m, true)

		return m, cmd
	}

	var cmd tea.Cmd

	m.tabActive = false
	m.historyIdx = m.history.Len()
	m.input, cmd = m.input.Update(msg)
	refreshMatches(&m, false)

	return m, cmd
}

// cycle moves the tab selection by step, completing immediately when only
// one candidate remains.
func (m model) cycle(step int) (model, tea.Cmd) {
	n := len(m.matches)
	if n == 0 {
		return m, nil
	}

	if n == 1 {
		replaceCurrentWord(&m, m.matches[0].Str)
		m.tabActive = false
		m.suggIdx = -1
		m.matches = nil

		return m, nil
	}

	if m.tabActive {
		m.suggIdx = (m.suggIdx + step + n) % n
	} else {
		m.tabActive = true
		m.preTabText = m.input.Value()
		m.preTabCursor = m.input.Position()
		m.suggIdx = 0

		if step < 0 {
			m.suggIdx = n - 1
		}
	}

	replaceCurrentWord(&m, m.matches[m.suggIdx].Str)

	return m, nil
}

// replaceCurrentWord replaces the current word in the input and moves the
// cursor after it.
func replaceCurrentWord(m *model, replacement string) {
	input := m.input.Value()
	cursor := m.wordStart + len(replacement)

	m.input.SetValue(input[:m.wordStart] + replacement + input[m.wordEnd:])
	m.input.SetCursor(cursor)

	m.wordEnd = cursor
}

// refreshMatches recomputes completions. With autoConfirm, a word that
// already equals its sole candidate is accepted.
func refreshMatches(m *model, autoConfirm bool) {
	m.matches, m.wordStart, m.wordEnd = m.computeMatches()

	if !m.tabActive {
		m.suggIdx = -1
	}

	if !autoConfirm || len(m.matches) != 1 {
		return
	}

	if m.input.Value()[m.wordStart:m.wordEnd] == m.matches[0].Str {
		m.tabActive = false
		m.suggIdx = -1
		m.matches = nil
	}
}

func (m *model) setPrompt() {
	switch {
	case m.mode == modeCtrl:
		m.input.Prompt = ctrlPromptStyle.Render(ctrlPrompt)
	case len(m.pending) > 0:
		m.input.Prompt = promptStyle.Render(contPrompt)
	default:
		m.input.Prompt = promptStyle.Render(evalPrompt)
	}
}

func (m model) echo(prompt, line string) tea.Cmd {
	style := promptStyle
	if m.mode == modeCtrl {
		style = ctrlPromptStyle
	}

	return tea.Println(style.Render(prompt) + inputStyle.Render(line))
}

func (m model) executeInput() (model, tea.Cmd) {
	line := m.input.Value()

	if m.recalled != "" && line == collapse(m.recalled) {
		src := m.recalled
		m.recalled = ""
		m.input.SetValue("")

		return m.evaluate(src, true)
	}

	m.recalled = ""

	if m.mode == modeCtrl {
		input := strings.TrimSpace(line)
		if input == "" {
			return m, nil
		}

		m.input.SetValue("")
		m.ctrlText, m.ctrlCursor = "", 0
		_ = m.history.Add(input, modeCtrl)
		m.historyIdx = m.history.Len()

		return m.executeCommand(input)
	}

	if len(m.pending) > 0 {
		if strings.TrimSpace(line) == "" {
			src := strings.Join(m.pending, "\n")
			m.pending = nil
			m.setPrompt()
			m.input.SetValue("")

			return m.evaluate(src, false)
		}

		echo := m.echo(contPrompt, line)
		m.pending = append(m.pending, line)
		m.input.SetValue(nextIndent(line))
		m.input.CursorEnd()

		return m, echo
	}

	if strings.TrimSpace(line) == "" {
		return m, nil
	}

	if strings.HasSuffix(strings.TrimSpace(line), ":") {
		echo := m.echo(evalPrompt, line)
		m.pending = []string{line}
		m.setPrompt()
		m.input.SetValue(nextIndent(line))
		m.input.CursorEnd()

		return m, echo
	}

	m.input.SetValue("")

	return m.evaluate(line, true)
}

// nextIndent returns the indentation for the line following line.
func nextIndent(line string) string {
	indent := line[:len(line)-len(strings.TrimLeft(line, " \t"))]
	if strings.HasSuffix(strings.TrimSpace(line), ":") {
		indent += indentUnit
	}

	return indent
}

// collapse renders a multi-line entry on one line.
func collapse(src string) string {
	first, _, _ := strings.Cut(src, "\n")

	return first + " …"
}

// evaluate runs src on the engine in the background.
func (m model) evaluate(src string, echo bool) (model, tea.Cmd) {
	_ = m.history.Add(src, modeEval)
	m.historyIdx = m.history.Len()
	m.lastRun = src
	m.busy = true
	m.evalText, m.evalCursor = "", 0

	m.logger.TraceContext(m.ctxFunc(), "repl eval", slog.String("input", src))

	e, ctx := m.engine, m.ctxFunc()
	run := func() tea.Msg {
		v, err := e.Eval(ctx, "<repl>", src)

		return evalDoneMsg{value: v, err: err}
	}

	if !echo {
		return m, run
	}

	var cmds []tea.Cmd

	for i, line := range strings.Split(src, "\n") {
		prompt := evalPrompt
		if i > 0 {
			prompt = contPrompt
		}

		cmds = append(cmds, m.echo(prompt, line))
	}

	return m, tea.Sequence(append(cmds, run)...)
}

func (m model) finishEval(msg evalDoneMsg) (model, tea.Cmd) {
	m.busy = false

	if m.engine.Stopped() {
		m.engine.Resume()
	}

	var lines []string

	if out := m.out.Drain(); out != "" {
		lines = append(lines, out)
	}

	switch {
	case msg.err != nil:
		if code, ok := engine.ExitCode(msg.err); ok {
			m.quitting = true

			m.logger.DebugContext(m.ctxFunc(), "repl exit", slog.Int("code", code))

			if len(lines) == 0 {
				return m, tea.Quit
			}

			return m, tea.Sequence(tea.Println(strings.Join(lines, "\n")), tea.Quit)
		}

		lines = append(lines, errorStyle.Render(msg.err.Error()))

	case msg.value != nil:
		lines = append(lines, resultStyle.Render(engine.Repr(msg.value)))
	}

	m.logger.TraceContext(m.ctxFunc(), "repl eval result",
		slog.String("type", engine.TypeName(msg.value)),
		slog.Bool("error", msg.err != nil),
	)

	if len(lines) == 0 {
		return m, nil
	}

	return m, tea.Println(strings.Join(lines, "\n"))
}

func (m model) flushOutput() tea.Cmd {
	if out := m.out.Drain(); out != "" {
		return tea.Println(out)
	}

	return nil
}

func (m model) executeCommand(input string) (model, tea.Cmd) {
	parts := strings.Fields(input)
	echo := m.echo(ctrlPrompt, input)

	m.logger.TraceContext(m.ctxFunc(), "repl command",
		slog.String("command", parts[0]), slog.Any("args", parts[1:]))

	switch parts[0] {
	case "q", "quit", "exit":
		m.quitting = true

		return m, tea.Sequence(echo, tea.Quit)

	case "h", "help":
		return m, tea.Sequence(echo, tea.Println(helpMessage()))

	case "l", "list":
		return m, tea.Sequence(echo, tea.Println(m.listDefs()))

	case "n", "names":
		return m, tea.Sequence(echo, tea.Println(m.wrap(m.engine.Names())))

	case "x", "exts":
		return m, tea.Sequence(echo, tea.Println(m.wrap(marked(
			m.engine.ScanAvailableExtensions(), m.engine.ListLoadedExtensions()))))

	case "m", "modules":
		return m, tea.Sequence(echo, tea.Println(m.wrap(marked(
			engine.Modules(), m.engine.ListModules()))))

	case "c", "clear":
		return m, tea.ClearScreen

	case "e", "edit":
		return m, tea.Sequence(echo, m.edit())

	default:
		return m, tea.Println(errorStyle.Render("Unknown command: " + parts[0] + " (try 'help')"))
	}
}

// listDefs renders the signature of every session procedure.
func (m model) listDefs() string {
	var b strings.Builder

	for _, name := range m.engine.ListDefs() {
		sig, _ := signatureOf(m.engine, name)
		b.WriteString("  " + sig)

		if v, ok := m.engine.GetVar(name); ok {
			if p, ok := v.(*engine.Procedure); ok && p.Doc != "" {
				doc, _, _ := strings.Cut(p.Doc, "\n")
				b.WriteString("  " + hintStyle.Render(doc))
			}
		}

		b.WriteString("\n")
	}

	if b.Len() == 0 {
		return hintStyle.Render("  (no procedures defined)")
	}

	return strings.TrimSuffix(b.String(), "\n")
}

// marked suffixes each name in names that also appears in active with '*'.
func marked(names, active []string) []string {
	out := make([]string, len(names))

	for i, n := range names {
		out[i] = n
		if slices.Contains(active, n) {
			out[i] += "*"
		}
	}

	return out
}

// wrap lays names out in lines no wider than the terminal.
func (m model) wrap(names []string) string {
	if len(names) == 0 {
		return hintStyle.Render("  (none)")
	}

	return lipgloss.NewStyle().Width(max(m.width-2, 20)).PaddingLeft(2).
		Render(strings.Join(names, "  "))
}

func (m model) edit() tea.Cmd {
	cmd := &editCommand{
		ctx:     m.ctxFunc(),
		logger:  m.logger,
		initial: m.lastRun,
	}

	return tea.Exec(cmd, func(err error) tea.Msg {
		if errors.Is(err, ErrEditDeclined) {
			return editDoneMsg{}
		}

		if err != nil {
			return editErrorMsg{err: err}
		}

		return editDoneMsg{source: cmd.source}
	})
}

// historyStep moves through history by step. With inMode, only entries
// of the current mode are visited; otherwise the mode follows the entry.
func (m model) historyStep(step int, inMode bool) (model, tea.Cmd) {
	for i := m.historyIdx + step; i >= 0 && i < m.history.Len(); i += step {
		entry, err := m.history.Entry(i)
		if err != nil || (inMode && entry.Mode != m.mode) {
			continue
		}

		if entry.Mode != m.mode {
			m, _ = m.switchToMode(entry.Mode)
		}

		m.historyIdx = i
		m.showEntry(entry.Line)

		return m, nil
	}

	if step > 0 && m.historyIdx < m.history.Len() {
		m.historyIdx = m.history.Len()
		m.recalled = ""
		m.input.SetValue("")
		refreshMatches(&m, false)
	}

	return m, nil
}

func (m *model) showEntry(line string) {
	m.recalled = ""

	if strings.Contains(line, "\n") {
		m.recalled = line
		line = collapse(line)
	}

	m.input.SetValue(line)
	m.input.SetCursor(len(line))
	refreshMatches(m, false)
}

// switchToMode switches to mode, preserving each mode's input.
func (m model) switchToMode(mode inputMode) (model, tea.Cmd) {
	if m.mode == mode {
		return m, nil
	}

	if m.mode == modeEval {
		m.evalText, m.evalCursor = m.input.Value(), m.input.Position()
		m.input.SetValue(m.ctrlText)
		m.input.SetCursor(m.ctrlCursor)
	} else {
		m.ctrlText, m.ctrlCursor = m.input.Value(), m.input.Position()
		m.input.SetValue(m.evalText)
		m.input.SetCursor(m.evalCursor)
	}

	m.mode = mode
	m.recalled = ""
	m.setPrompt()
	refreshMatches(&m, false)

	return m, nil
}
