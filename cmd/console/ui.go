package main

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/atotto/clipboard"
	"github.com/charmbracelet/bubbles/textarea"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/reflow/wordwrap"

	"github.com/jwebster45206/novel-engine/internal/playthrough"
	"github.com/jwebster45206/novel-engine/pkg/chat"
	"github.com/jwebster45206/novel-engine/pkg/state"
)

const (
	PlaceHolderText = "What do you do?"
	requestTimeout  = 3 * time.Minute
)

// ConsoleUI is the BubbleTea model that runs the player.
// https://github.com/charmbracelet/bubbletea
type ConsoleUI struct {
	api          *apiClient
	pt           *state.Playthrough
	stale        playthrough.Staleness
	chatViewport viewport.Model
	metaViewport viewport.Model
	textarea     textarea.Model
	ready        bool
	width        int
	height       int
	err          error
	notice       string
	loading      bool

	showQuitModal bool
	progressTick  int
}

// playthroughMsg carries the refreshed playthrough after any action.
type playthroughMsg struct {
	pt     *state.Playthrough
	notice string
	err    error
}

type stalenessMsg struct {
	stale playthrough.Staleness
	err   error
}

type progressTickMsg struct{}

var (
	chatPanelStyle = lipgloss.NewStyle().
			PaddingTop(2).
			PaddingBottom(1).
			PaddingLeft(3).
			PaddingRight(0)

	metaPanelStyle = lipgloss.NewStyle().
			PaddingTop(2).
			PaddingBottom(0).
			PaddingLeft(0).
			PaddingRight(2)

	titleStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("205")). // pink
			Bold(true)

	speakerStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("212")). // purple
			Bold(true)

	narratorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("86")) // green

	eventStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("86")).
			Italic(true)

	userStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("39")) // teal

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("196")) // red

	loadingStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("214")) // yellow

	promptStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("240")) // dark grey

	modalStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("62")).
			Padding(1, 2).
			Background(lipgloss.Color("235")).
			Foreground(lipgloss.Color("255"))

	modalTitleStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("205")).
			Bold(true).
			Align(lipgloss.Center)
)

var separatorStyle = lipgloss.NewStyle().
	Foreground(lipgloss.Color("240")) // dark grey

func NewConsoleUI(api *apiClient, pt *state.Playthrough) ConsoleUI {
	ta := textarea.New()
	ta.Placeholder = PlaceHolderText
	ta.Focus()
	ta.Prompt = promptStyle.Render(":: ")
	ta.CharLimit = 1000
	ta.SetWidth(50)
	ta.SetHeight(3)
	ta.ShowLineNumbers = false

	chatVp := viewport.New(50, 20)
	chatVp.MouseWheelEnabled = true

	return ConsoleUI{
		api:          api,
		pt:           pt,
		textarea:     ta,
		chatViewport: chatVp,
		metaViewport: viewport.New(20, 20),
	}
}

func (m ConsoleUI) Init() tea.Cmd {
	return tea.Batch(textarea.Blink, m.checkStaleness())
}

func (m ConsoleUI) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	if m.showQuitModal {
		return m.updateQuitModal(msg)
	}

	var (
		tiCmd tea.Cmd
		vpCmd tea.Cmd
		mvCmd tea.Cmd
	)

	switch msg := msg.(type) {
	case tea.MouseMsg:
		m.chatViewport, vpCmd = m.chatViewport.Update(msg)
		m.metaViewport, mvCmd = m.metaViewport.Update(msg)
		return m, tea.Batch(vpCmd, mvCmd)

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height

		chatWidth := int(float64(m.width)*0.75) - 4
		metaWidth := m.width - chatWidth - 6
		m.chatViewport.Width = chatWidth - 2
		m.chatViewport.Height = m.height - 7
		m.metaViewport.Width = metaWidth - 2
		m.metaViewport.Height = m.height - 4
		m.textarea.SetWidth(chatWidth - 4)

		m.ready = true
		m.refresh()

	case tea.KeyMsg:
		switch msg.Type {
		case tea.KeyCtrlC, tea.KeyEsc:
			m.showQuitModal = true
			return m, nil
		case tea.KeyEnter:
			if m.loading {
				return m, nil
			}
			input := strings.TrimSpace(m.textarea.Value())
			if input == "" {
				return m, nil
			}
			m.textarea.Reset()
			m.err = nil
			m.notice = ""

			if strings.HasPrefix(input, "/") {
				return m.handleCommand(input)
			}
			return m.startRequest(m.sendTurn(input))
		}

	case playthroughMsg:
		m.loading = false
		m.err = msg.err
		if msg.err == nil {
			m.pt = msg.pt
			m.notice = msg.notice
		}
		m.refresh()
		return m, m.checkStaleness()

	case stalenessMsg:
		if msg.err == nil {
			m.stale = msg.stale
			m.refresh()
		}

	case progressTickMsg:
		if m.loading {
			m.progressTick++
			m.refresh()
			return m, progressTick()
		}
	}

	m.textarea, tiCmd = m.textarea.Update(msg)
	m.chatViewport, vpCmd = m.chatViewport.Update(msg)
	m.metaViewport, mvCmd = m.metaViewport.Update(msg)

	return m, tea.Batch(tiCmd, vpCmd, mvCmd)
}

func (m ConsoleUI) startRequest(cmd tea.Cmd) (tea.Model, tea.Cmd) {
	m.loading = true
	m.progressTick = 0
	m.refresh()
	return m, tea.Batch(cmd, progressTick())
}

// refresh re-renders both panels for the current width.
func (m *ConsoleUI) refresh() {
	if !m.ready || m.pt == nil {
		return
	}
	width := m.chatViewport.Width - 6

	var content strings.Builder
	content.WriteString(renderTranscript(m.pt, width))
	if m.notice != "" {
		content.WriteString(loadingStyle.Render(wordwrap.String(m.notice, width)) + "\n\n")
	}
	if m.err != nil {
		content.WriteString(errorStyle.Render("Error: "+m.err.Error()) + "\n\n")
	}
	if m.loading {
		content.WriteString(m.renderProgressBar())
	}

	m.chatViewport.SetContent(content.String())
	m.chatViewport.GotoBottom()
	m.metaViewport.SetContent(writeMetadata(m.pt, m.stale))
}

// renderTranscript renders the lines up to the playthrough's pointer.
func renderTranscript(pt *state.Playthrough, width int) string {
	if width < 20 {
		width = 20
	}
	snapshot := &pt.ProjectSnapshot.Cartridge

	var b strings.Builder
	visible := pt.Lines[:pt.CurrentLineIdx+1]
	for _, line := range visible {
		if line.IsSceneBoundary() && line.Text == "" {
			title := line.Metadata.SceneID
			if scene, ok := snapshot.SceneByID(line.Metadata.SceneID); ok {
				title = scene.DisplayTitle()
			}
			b.WriteString(separatorStyle.Render(strings.Repeat("─", width)) + "\n")
			b.WriteString(titleStyle.Render(strings.ToUpper(title)) + "\n\n")
			continue
		}

		switch line.Type {
		case chat.LinePlayer:
			b.WriteString(userStyle.Render("You: ") + wordwrap.String(line.Text, width-5))
		case chat.LineCharacter:
			b.WriteString(speakerStyle.Render(line.CharacterName+": ") + wordwrap.String(line.Text, width-len(line.CharacterName)-2))
		case chat.LineHint:
			b.WriteString(loadingStyle.Render("Hint: " + wordwrap.String(line.Text, width-6)))
		default:
			style := narratorStyle
			if len(line.ActivatedTriggerIDs()) > 0 {
				style = eventStyle
			}
			b.WriteString(style.Render(wordwrap.String(line.Text, width)))
		}
		b.WriteString("\n\n")

		if line.Metadata != nil && line.Metadata.EventImageURL != "" {
			b.WriteString(promptStyle.Render("[image: "+line.Metadata.EventImageURL+"]") + "\n\n")
		}
		if line.Ends() {
			b.WriteString(titleStyle.Render("THE END") + "\n")
			if line.Metadata.EndingName != "" {
				b.WriteString(line.Metadata.EndingName + "\n")
			}
			b.WriteString("\n" + promptStyle.Render("/restart to play again, or /rewind to an earlier line.") + "\n\n")
		}
	}

	if hidden := len(pt.Lines) - len(visible); hidden > 0 {
		b.WriteString(promptStyle.Render(fmt.Sprintf("(rewound: %d later line(s) hidden; /branch to play on from here)", hidden)) + "\n\n")
	}
	return b.String()
}

// transcriptText is the plain-text transcript used for /copy.
func transcriptText(pt *state.Playthrough) string {
	var b strings.Builder
	for i, line := range pt.Lines[:pt.CurrentLineIdx+1] {
		if line.IsSceneBoundary() && line.Text == "" {
			if scene, ok := pt.ProjectSnapshot.Cartridge.SceneByID(line.Metadata.SceneID); ok {
				if i > 0 {
					b.WriteString("\n")
				}
				b.WriteString("## " + scene.DisplayTitle() + "\n\n")
			}
			continue
		}
		switch line.Type {
		case chat.LinePlayer:
			b.WriteString("You: " + line.Text)
		case chat.LineCharacter:
			b.WriteString(line.CharacterName + ": " + line.Text)
		case chat.LineHint:
			b.WriteString("Hint: " + line.Text)
		default:
			b.WriteString(line.Text)
		}
		b.WriteString("\n")
	}
	return b.String()
}

func writeMetadata(pt *state.Playthrough, stale playthrough.Staleness) string {
	var content strings.Builder
	content.WriteString(titleStyle.Render("PLAYTHROUGH") + "\n\n")

	content.WriteString("ID:\n")
	content.WriteString(pt.ID.String()[:8] + "...\n\n")

	if scene, err := pt.Scene(); err == nil {
		content.WriteString("Scene:\n")
		content.WriteString(scene.DisplayTitle() + "\n\n")
	}

	content.WriteString("Lines:\n")
	content.WriteString(fmt.Sprintf("%d of %d shown\n\n", pt.CurrentLineIdx+1, len(pt.Lines)))

	if st, err := pt.SceneState(); err == nil {
		content.WriteString("Turns in scene:\n")
		content.WriteString(fmt.Sprintf("%d\n\n", st.TurnsElapsed))
		if fb, ok := st.Fallback(); ok && !fb.Consumed {
			content.WriteString("Time runs out in:\n")
			content.WriteString(fmt.Sprintf("%d turn(s)\n\n", fb.TurnsLeft))
		}
	}
	content.WriteString("Events reached:\n")
	content.WriteString(fmt.Sprintf("%d\n\n", len(pt.ConsumedTriggerIDs())))

	switch {
	case stale.OutdatedForEdit:
		content.WriteString(errorStyle.Render("Story edited where you've played.\n/restart for the new version.") + "\n\n")
	case stale.OutOfDate:
		content.WriteString(loadingStyle.Render("Story updated ahead of you.") + "\n\n")
	}

	content.WriteString("Commands:\n")
	content.WriteString("• Enter: Send\n")
	content.WriteString("• /help: Help\n")
	content.WriteString("• /hint: Ask for a hint\n")
	content.WriteString("• Ctrl+C: Quit\n")

	return content.String()
}

func (m ConsoleUI) handleCommand(input string) (tea.Model, tea.Cmd) {
	fields := strings.Fields(input)
	switch strings.ToLower(fields[0]) {
	case "/help":
		m.notice = `Commands:
• /hint - Ask for a nudge toward what you can do here
• /rewind N - Show the story only up to line N
• /branch - Continue from the rewound point as a new playthrough
• /restart - Start over with the latest version of the story
• /copy - Copy the transcript to the clipboard
• Ctrl+C - Quit`

	case "/hint":
		return m.startRequest(m.sendHint())

	case "/rewind":
		if len(fields) != 2 {
			m.err = fmt.Errorf("usage: /rewind N")
			break
		}
		idx, err := strconv.Atoi(fields[1])
		if err != nil {
			m.err = fmt.Errorf("usage: /rewind N")
			break
		}
		return m.startRequest(m.sendRewind(idx))

	case "/branch":
		return m.startRequest(m.sendFork("branch"))

	case "/restart":
		return m.startRequest(m.sendFork("restart"))

	case "/copy":
		if err := clipboard.WriteAll(transcriptText(m.pt)); err != nil {
			m.err = fmt.Errorf("failed to copy transcript: %w", err)
		} else {
			m.notice = "Transcript copied to clipboard."
		}

	default:
		m.err = fmt.Errorf("unknown command %s (try /help)", fields[0])
	}

	m.refresh()
	return m, nil
}

func (m ConsoleUI) sendTurn(text string) tea.Cmd {
	id := m.pt.ID
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
		defer cancel()

		out, err := m.api.turn(ctx, id, text)
		if err != nil {
			return playthroughMsg{err: err}
		}
		pt, err := m.api.getPlaythrough(ctx, id)
		notice := ""
		if out.Ended && out.EndingName != "" {
			notice = "Ending reached: " + out.EndingName
		}
		return playthroughMsg{pt: pt, notice: notice, err: err}
	}
}

func (m ConsoleUI) sendHint() tea.Cmd {
	id := m.pt.ID
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
		defer cancel()

		if _, err := m.api.hint(ctx, id); err != nil {
			return playthroughMsg{err: err}
		}
		pt, err := m.api.getPlaythrough(ctx, id)
		return playthroughMsg{pt: pt, err: err}
	}
}

func (m ConsoleUI) sendRewind(idx int) tea.Cmd {
	id := m.pt.ID
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
		defer cancel()

		pt, err := m.api.rewind(ctx, id, idx)
		return playthroughMsg{pt: pt, err: err}
	}
}

func (m ConsoleUI) sendFork(action string) tea.Cmd {
	id := m.pt.ID
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
		defer cancel()

		pt, err := m.api.fork(ctx, id, action)
		if err != nil {
			return playthroughMsg{err: err}
		}
		return playthroughMsg{pt: pt, notice: "Now playing " + pt.ID.String()[:8] + "..."}
	}
}

func (m ConsoleUI) checkStaleness() tea.Cmd {
	if m.pt == nil {
		return nil
	}
	id := m.pt.ID
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		s, err := m.api.staleness(ctx, id)
		return stalenessMsg{stale: s, err: err}
	}
}

func (m ConsoleUI) updateQuitModal(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height

	case tea.KeyMsg:
		switch msg.Type {
		case tea.KeyCtrlC, tea.KeyEsc, tea.KeyEnter:
			return m, tea.Quit
		default:
			switch msg.String() {
			case "y", "Y":
				return m, tea.Quit
			case "n", "N":
				m.showQuitModal = false
				m.textarea.Focus()
				return m, textarea.Blink
			}
		}
	}

	return m, nil
}

func (m ConsoleUI) renderQuitModal() string {
	if m.width == 0 || m.height == 0 {
		return "Loading..."
	}

	var content strings.Builder
	content.WriteString(modalTitleStyle.Render("Quit?"))
	content.WriteString("\n\n")
	content.WriteString("Your progress is saved. Resume later with --resume " + m.pt.ID.String())
	content.WriteString("\n\n")
	content.WriteString(promptStyle.Render("Press Y to quit, N to continue, or Ctrl+C to force quit"))

	modal := modalStyle.Width(50).Render(content.String())
	return lipgloss.Place(m.width, m.height, lipgloss.Center, lipgloss.Center, modal, lipgloss.WithWhitespaceChars(" "))
}

func (m ConsoleUI) View() string {
	if m.showQuitModal {
		return m.renderQuitModal()
	}

	if !m.ready {
		return "\n  Initializing..."
	}

	chatWidth := int(float64(m.width)*0.75) - 4
	metaWidth := m.width - chatWidth - 6

	chatPanel := chatPanelStyle.Width(chatWidth).Height(m.height - 3).Render(
		lipgloss.JoinVertical(lipgloss.Left,
			m.chatViewport.View(),
			"",
			separatorStyle.Render(strings.Repeat("─", chatWidth-4)),
			m.textarea.View(),
		),
	)

	metaPanel := metaPanelStyle.Width(metaWidth).Height(m.height - 2).Render(
		m.metaViewport.View(),
	)

	return lipgloss.JoinHorizontal(lipgloss.Top, chatPanel, metaPanel)
}

// renderProgressBar creates an animated progress bar for loading states
func (m ConsoleUI) renderProgressBar() string {
	usable := m.chatViewport.Width - 6
	if usable <= 0 {
		usable = 30
	}
	if usable > 80 {
		usable = 80
	} else if usable < 10 {
		usable = 10
	}

	const totalFrames = 40
	frame := m.progressTick % totalFrames
	filled := (frame * usable) / totalFrames

	var bar strings.Builder
	for i := 0; i < usable; i++ {
		if i < filled {
			bar.WriteString("█")
		} else if i == filled && frame%4 < 2 {
			bar.WriteString("▓")
		} else {
			bar.WriteString("░")
		}
	}
	return separatorStyle.Render(bar.String())
}

func progressTick() tea.Cmd {
	return tea.Tick(time.Millisecond*200, func(time.Time) tea.Msg {
		return progressTickMsg{}
	})
}
