package controller

import (
	"context"
	"fmt"
	"io"
	"sort"
	"strings"
	"sync"

	"github.com/charmbracelet/bubbles/progress"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	m "gooze.dev/pkg/mutrun/internal/model"
)

const (
	maxRunningShown = 8
	maxRecentShown  = 5
	maxBarWidth     = 60
)

var (
	titleStyle     = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("12"))
	killedStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("10"))
	survivedStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("9"))
	faintStyle     = lipgloss.NewStyle().Faint(true)
	destroyedStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("11"))
)

// TUI implements UI with a live Bubble Tea progress view during runs and
// styled one-shot output for reports.
type TUI struct {
	output io.Writer

	mu      sync.Mutex
	program *tea.Program
	done    chan struct{}
}

// NewTUI creates a new TUI.
func NewTUI(output io.Writer) *TUI {
	return &TUI{output: output}
}

// Start launches the live view in run mode; report mode prints directly.
func (t *TUI) Start(ctx context.Context, options ...StartOption) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	config := newStartConfig(options)
	if config.mode != ModeRun {
		return nil
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if t.program != nil {
		return nil
	}

	// Input stays with the terminal so Ctrl+C reaches the run's signal handling.
	t.program = tea.NewProgram(newRunModel(config.total),
		tea.WithOutput(t.output),
		tea.WithInput(nil),
		tea.WithoutSignalHandler(),
	)
	t.done = make(chan struct{})

	program, done := t.program, t.done

	go func() {
		defer close(done)

		if _, err := program.Run(); err != nil {
			_, _ = fmt.Fprintf(t.output, "progress view stopped: %v\n", err)
		}
	}()

	return nil
}

// Close stops the live view and waits for it to restore the terminal.
func (t *TUI) Close(context.Context) {
	t.mu.Lock()
	program, done := t.program, t.done
	t.program, t.done = nil, nil
	t.mu.Unlock()

	if program == nil {
		return
	}

	program.Quit()
	<-done
}

// Wait blocks until the live view has exited.
func (t *TUI) Wait(ctx context.Context) {
	t.mu.Lock()
	done := t.done
	t.mu.Unlock()

	if done == nil {
		return
	}

	select {
	case <-done:
	case <-ctx.Done():
	}
}

func (t *TUI) send(msg tea.Msg) {
	t.mu.Lock()
	program := t.program
	t.mu.Unlock()

	if program != nil {
		program.Send(msg)
	}
}

// DisplayConcurrencyInfo implements UI.
func (t *TUI) DisplayConcurrencyInfo(_ context.Context, parallel int, instances int, tasks int) {
	t.send(concurrencyMsg{parallel: parallel, instances: instances, tasks: tasks})
}

// DisplayStartingTestInfo implements UI.
func (t *TUI) DisplayStartingTestInfo(_ context.Context, mutation m.Mutation, taskID int) {
	t.send(taskStartedMsg{taskID: taskID, label: mutation.String()})
}

// DisplayCompletedTestInfo implements UI.
func (t *TUI) DisplayCompletedTestInfo(_ context.Context, report m.TaskReport) {
	t.send(taskFinishedMsg{report: report})
}

// DisplayRunSummary closes the live view and prints the summary below it.
func (t *TUI) DisplayRunSummary(ctx context.Context, report m.RunReport) {
	t.Close(ctx)
	t.print(titleStyle.Render("Run summary"), RenderRunSummary(report))
}

// DisplayScores implements UI.
func (t *TUI) DisplayScores(_ context.Context, table m.ScoreTable) {
	t.print(titleStyle.Render("Mutation scores"), RenderScoreSummary(table))
}

// DisplayTraceComparison implements UI.
func (t *TUI) DisplayTraceComparison(_ context.Context, comparison m.TraceComparison) {
	t.print(titleStyle.Render("Trace comparison"), RenderTraceComparison(comparison))
}

func (t *TUI) print(title, body string) {
	_, _ = fmt.Fprintf(t.output, "\n%s\n\n%s", title, body)
}

type concurrencyMsg struct {
	parallel  int
	instances int
	tasks     int
}

type taskStartedMsg struct {
	taskID int
	label  string
}

type taskFinishedMsg struct {
	report m.TaskReport
}

type runModel struct {
	total      int
	finished   int
	killed     int
	survived   int
	destroyed  int
	unresolved int
	info       string
	running    map[int]string
	recent     []string
	bar        progress.Model
}

func newRunModel(total int) runModel {
	bar := progress.New(progress.WithDefaultGradient())
	bar.Width = maxBarWidth

	return runModel{
		total:   total,
		running: map[int]string{},
		bar:     bar,
	}
}

func (rm runModel) Init() tea.Cmd {
	return nil
}

func (rm runModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		rm.bar.Width = min(maxBarWidth, max(10, msg.Width-4))
	case concurrencyMsg:
		rm.total = msg.tasks
		rm.info = fmt.Sprintf("%d task(s), %d instance(s), parallel %d", msg.tasks, msg.instances, msg.parallel)
	case taskStartedMsg:
		rm.running[msg.taskID] = msg.label
	case taskFinishedMsg:
		rm = rm.finish(msg.report)
	}

	return rm, nil
}

func (rm runModel) finish(report m.TaskReport) runModel {
	delete(rm.running, report.TaskID)
	rm.finished++

	status := describeTask(report)

	var styled string

	switch status {
	case "killed":
		rm.killed++
		styled = killedStyle.Render(status)
	case "survived", "not covered":
		rm.survived++
		styled = survivedStyle.Render(status)
	case string(m.TaskDestroyed):
		rm.destroyed++
		styled = destroyedStyle.Render(status)
	default:
		rm.unresolved++
		styled = destroyedStyle.Render(status)
	}

	line := fmt.Sprintf("task %d %s %s", report.TaskID, faintStyle.Render(report.Mutation.String()), styled)
	rm.recent = append(rm.recent, line)

	if len(rm.recent) > maxRecentShown {
		rm.recent = rm.recent[len(rm.recent)-maxRecentShown:]
	}

	return rm
}

func (rm runModel) percent() float64 {
	if rm.total <= 0 {
		return 0
	}

	return float64(rm.finished) / float64(rm.total)
}

func (rm runModel) View() string {
	var b strings.Builder

	b.WriteString(titleStyle.Render("mutrun") + "\n")

	if rm.info != "" {
		b.WriteString(faintStyle.Render(rm.info) + "\n")
	}

	b.WriteString("\n" + rm.bar.ViewAs(rm.percent()) + "\n")
	fmt.Fprintf(&b, "%d/%d done  %s  %s  %s\n\n", rm.finished, rm.total,
		killedStyle.Render(fmt.Sprintf("%d killed", rm.killed)),
		survivedStyle.Render(fmt.Sprintf("%d survived", rm.survived)),
		destroyedStyle.Render(fmt.Sprintf("%d destroyed, %d unresolved", rm.destroyed, rm.unresolved)),
	)

	ids := make([]int, 0, len(rm.running))
	for id := range rm.running {
		ids = append(ids, id)
	}

	sort.Ints(ids)

	for i, id := range ids {
		if i == maxRunningShown {
			fmt.Fprintf(&b, "  ... %d more running\n", len(ids)-maxRunningShown)
			break
		}

		fmt.Fprintf(&b, "  ▶ task %d %s\n", id, rm.running[id])
	}

	if len(rm.recent) > 0 {
		b.WriteString("\n")

		for _, line := range rm.recent {
			b.WriteString("  " + line + "\n")
		}
	}

	return b.String()
}
