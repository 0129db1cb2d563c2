package cli

import (
	"context"
	"fmt"
	"image/color"
	"time"

	"charm.land/bubbles/v2/spinner"
	tea "charm.land/bubbletea/v2"
	lipgloss "charm.land/lipgloss/v2"
	"github.com/spf13/cobra"

	"github.com/raphaelgruber/forgebot/internal/db"
	"github.com/raphaelgruber/forgebot/internal/models"
)

const pollInterval = time.Second

// Theme holds the color scheme for the watch display.
type Theme struct {
	Status  color.Color
	Success color.Color
	Error   color.Color
	Warn    color.Color
	Hint    color.Color
}

// defaultTheme provides default colors.
var defaultTheme = Theme{
	Status:  lipgloss.Color("#5FAFD7"), // light blue
	Success: lipgloss.Color("#00D787"), // green
	Error:   lipgloss.Color("#FF005F"), // red
	Warn:    lipgloss.Color("#FFAF00"), // amber
	Hint:    lipgloss.Color("#6C6C6C"), // dim gray
}

func (t Theme) statusStyle() lipgloss.Style {
	return lipgloss.NewStyle().Foreground(t.Status)
}

func (t Theme) completedStyle() lipgloss.Style {
	return lipgloss.NewStyle().Foreground(t.Success).Bold(true)
}

func (t Theme) errorStyle() lipgloss.Style {
	return lipgloss.NewStyle().Foreground(t.Error).Bold(true)
}

func (t Theme) warnStyle() lipgloss.Style {
	return lipgloss.NewStyle().Foreground(t.Warn)
}

func (t Theme) hintStyle() lipgloss.Style {
	return lipgloss.NewStyle().Foreground(t.Hint).Italic(true)
}

var watchCmd = &cobra.Command{
	Use:   "watch <job-id>",
	Short: "Follow a job until it finishes",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runWatch(dbClient, args[0])
	},
}

func init() {
	rootCmd.AddCommand(watchCmd)
}

// tickMsg triggers polling the job status
type tickMsg time.Time

// jobUpdateMsg carries the updated job data
type jobUpdateMsg struct {
	job *models.Job
	err error
}

// watchModel is the bubbletea model for following a job.
type watchModel struct {
	db       *db.Client
	jobID    string
	job      *models.Job
	spinner  spinner.Model
	theme    Theme
	done     bool
	quitting bool
	err      error
}

func newWatchModel(client *db.Client, jobID string) watchModel {
	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = defaultTheme.statusStyle()

	return watchModel{
		db:      client,
		jobID:   jobID,
		spinner: s,
		theme:   defaultTheme,
	}
}

// Init returns the initial command (start polling).
func (m watchModel) Init() tea.Cmd {
	return tea.Batch(
		tickCmd(),
		m.spinner.Tick,
		m.fetchJob(),
	)
}

// Update handles messages and returns the updated model.
func (m watchModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyPressMsg:
		switch msg.String() {
		case "ctrl+c", "q":
			m.quitting = true
			return m, tea.Quit
		}

	case tickMsg:
		return m, tea.Batch(m.fetchJob(), tickCmd())

	case jobUpdateMsg:
		if msg.err != nil {
			m.err = fmt.Errorf("failed to fetch job: %w", msg.err)
			m.done = true
			return m, tea.Quit
		}

		m.job = msg.job
		if m.job.Status.Terminal() {
			m.done = true
			if m.job.Status == models.StatusFailed {
				m.err = fmt.Errorf("%s", m.job.Error)
			}
			return m, tea.Quit
		}
		return m, nil

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}

	return m, nil
}

// View renders the watch display.
func (m watchModel) View() tea.View {
	return tea.NewView(m.renderContent())
}

func (m watchModel) renderContent() string {
	if m.done {
		return m.finalView()
	}

	if m.job == nil {
		return m.spinner.View() + " Loading job...\n"
	}

	status := m.theme.statusStyle().Render(fmt.Sprintf("[%s]", m.job.Status))
	line := fmt.Sprintf("%s %s %s", m.spinner.View(), status, truncateMessage(m.job.Message, 60))
	if m.job.RetryCount > 0 {
		line += m.theme.warnStyle().Render(fmt.Sprintf(" (retry %d)", m.job.RetryCount))
	}
	if m.job.Status == models.StatusQuestioning {
		line += m.theme.warnStyle().Render(" waiting for answers in chat")
	}
	hint := m.theme.hintStyle().Render("Press Ctrl+C to stop watching")

	return fmt.Sprintf("%s\n%s\n", line, hint)
}

func (m watchModel) finalView() string {
	if m.quitting {
		msg := fmt.Sprintf("\nJob %s continues in background.\nUse 'forgebot jobs %s' to check status.\n",
			m.jobID, m.jobID)
		return m.theme.hintStyle().Render(msg)
	}

	if m.err != nil {
		return m.theme.errorStyle().Render(fmt.Sprintf("\n✗ Job failed: %s\n", m.err))
	}

	if m.job != nil && m.job.Result != nil {
		output := m.theme.completedStyle().Render("✓ Completed") + "\n\n"
		if m.job.Result.PRURL != "" {
			output += fmt.Sprintf("  PR:      %s\n", m.job.Result.PRURL)
		}
		output += fmt.Sprintf("  Branch:  %s\n", m.job.Result.Branch)
		output += fmt.Sprintf("  Summary: %s\n", m.job.Result.Summary)
		return output
	}

	return m.theme.completedStyle().Render("✓ Completed\n")
}

// fetchJob fetches the current job state.
// Runs as a command to avoid blocking Update().
func (m watchModel) fetchJob() tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		job, err := m.db.GetJob(ctx, m.jobID)
		return jobUpdateMsg{job: job, err: err}
	}
}

// tickCmd returns a command that sends a tick after the poll interval.
func tickCmd() tea.Cmd {
	return tea.Tick(pollInterval, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

// runWatch runs the interactive watch UI for a job.
func runWatch(client *db.Client, jobID string) error {
	model := newWatchModel(client, jobID)
	p := tea.NewProgram(model)

	finalModel, err := p.Run()
	if err != nil {
		return fmt.Errorf("watch UI error: %w", err)
	}

	if m, ok := finalModel.(watchModel); ok {
		if m.quitting {
			return nil
		}
		if m.err != nil {
			return m.err
		}
	}

	return nil
}
