package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"medchat-cli/cmd/utils"
	"medchat-cli/internal/store"
	uitk "medchat-cli/internal/tui"

	"github.com/atotto/clipboard"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textarea"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/x/term"
)

var (
	assistantPrompt = "🩺 MedChat:"
	sessionPrompt   = "🆔"
)

const gap = "\n\n"

const probeInterval = 30 * time.Second

// runChatSessionTUI starts the Bubble Tea TUI for chat.
func runChatSessionTUI() {
	sess := newDefaultSessionContext()

	reactions := openReactionStore()
	defer reactions.Close()

	m := newChatModel(sess, reactions)
	p := tea.NewProgram(m)

	if _, err := p.Run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error running TUI: %v\n", err)
	}
}

// openReactionStore opens the durable per-message reaction store, falling
// back to an in-memory store when the data directory is unusable.
func openReactionStore() *store.Store {
	logger := store.WithErrorLogger(func(err error) {
		logDebug(fmt.Sprintf("reaction store: %v", err))
	})
	dir, err := utils.GetStoreDir()
	if err == nil {
		s, openErr := store.Open(dir, logger)
		if openErr == nil {
			return s
		}
		err = openErr
	}
	logDebug(fmt.Sprintf("Falling back to in-memory reaction store: %v", err))
	s, memErr := store.OpenInMemory(logger)
	if memErr != nil {
		// Badger in-memory open only fails on bad options.
		panic(memErr)
	}
	return s
}

type chatModel struct {
	sess         *ChatSessionContext
	conversation *Conversation
	reactions    *store.Store
	controller   *Controller
	toast        uitk.ToastModel

	spin     spinner.Model
	viewport viewport.Model
	textarea textarea.Model

	transcript string
	thinking   bool // stream opened, no content yet (or fallback in flight)
	streaming  bool // a logical question is in flight end to end
	thinkFrame int

	history   []string
	histIndex int

	// In-flight question bookkeeping.
	currentID    string
	currentInput string

	// Raw finalized text per assistant entry, for reaction excerpts.
	finalTexts map[string]string
	lastAnswer RenderedAnswer

	streamCh chan tea.Msg

	width     int
	connected bool
	status    string
}

type sessionEventMsg struct{ ev SessionEvent }
type streamClosedMsg struct{}
type fallbackResultMsg struct {
	answer string
	err    error
}
type connectivityMsg struct{ ok bool }
type probeTickMsg struct{}
type historyLoadedMsg struct {
	messages []HistoryMessage
	err      error
}
type memoryClearedMsg struct{ err error }
type tickMsg struct{}

func newChatModel(sess *ChatSessionContext, reactions *store.Store) chatModel {
	ta := textarea.New()
	ta.Placeholder = "Ask a medical question..."
	ta.Focus()

	ta.Prompt = "> "

	ta.SetWidth(30)
	ta.SetHeight(1)

	// Remove cursor line styling
	ta.FocusedStyle.CursorLine = lipgloss.NewStyle()

	ta.ShowLineNumbers = false
	ta.KeyMap.InsertNewline.SetEnabled(false)

	vp := viewport.New(30, 5)

	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = lipgloss.NewStyle().Foreground(lipgloss.Color("11"))

	width, _, _ := term.GetSize(uintptr(os.Stdout.Fd()))

	conv := NewConversation()
	conv.AddNotice("Ask a medical question or type '/help' for commands.")
	conv.AddNotice("This assistant is for information only and is not a substitute for professional medical advice.")

	theme := reactions.Theme()
	if theme == "" {
		theme = "dark"
	}
	ctrl := NewController(State{Connected: true, Theme: theme})

	m := chatModel{
		sess:         sess,
		conversation: conv,
		reactions:    reactions,
		controller:   ctrl,
		toast:        uitk.NewToastModel(),
		spin:         s,
		viewport:     vp,
		textarea:     ta,
		histIndex:    0,
		finalTexts:   make(map[string]string),
		width:        width,
		connected:    true,
	}
	m.transcript = computeTranscript(m)
	m.viewport.SetContent(m.transcript)
	return m
}

func (m chatModel) Init() tea.Cmd {
	return tea.Batch(m.spin.Tick, probeCmd(), scheduleProbe())
}

// probeCmd runs one liveness check against the server health endpoint.
func probeCmd() tea.Cmd {
	return func() tea.Msg {
		err := utils.PingURL(strings.TrimSuffix(serverURL, "/") + "/health")
		return connectivityMsg{ok: err == nil}
	}
}

func scheduleProbe() tea.Cmd {
	return tea.Tick(probeInterval, func(time.Time) tea.Msg { return probeTickMsg{} })
}

// startStream launches the streaming session for a submitted question and
// returns the commands that pump its events into the update loop.
func (m *chatModel) startStream(input string) []tea.Cmd {
	m.conversation.AddUser(input)
	entry := m.conversation.BeginAssistant()
	m.currentID = entry.ID
	m.currentInput = input
	m.streaming = true
	m.thinking = true

	session := NewStreamSession(input, func(ctx context.Context, q string) (io.ReadCloser, error) {
		return openAnswerStream(ctx, q, m.sess)
	})
	go session.Run(context.Background())

	ch := make(chan tea.Msg, 32)
	m.streamCh = ch
	go func() {
		for ev := range session.Events() {
			ch <- sessionEventMsg{ev: ev}
		}
		close(ch)
	}()

	return []tea.Cmd{listen(ch), thinkingCmd()}
}

// fallbackCmd asks the non-streaming endpoint after a transport failure.
func fallbackCmd(sess *ChatSessionContext, question string) tea.Cmd {
	return func() tea.Msg {
		answer, err := NewFallbackClient(sess).Ask(context.Background(), question)
		return fallbackResultMsg{answer: answer, err: err}
	}
}

func fetchHistoryCmd(sess *ChatSessionContext) tea.Cmd {
	return func() tea.Msg {
		messages, err := fetchHistory(sess)
		return historyLoadedMsg{messages: messages, err: err}
	}
}

func clearMemoryCmd(sess *ChatSessionContext) tea.Cmd {
	return func() tea.Msg {
		return memoryClearedMsg{err: clearServerMemory(sess)}
	}
}

func reactCmd(sess *ChatSessionContext, messageID string, r store.Reaction, excerpt string) tea.Cmd {
	return func() tea.Msg {
		postReaction(sess, messageID, r, excerpt)
		return nil
	}
}

func toastCmd(message string) tea.Cmd {
	return func() tea.Msg { return uitk.ShowToastMsg{Message: message} }
}

func (m chatModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var (
		tiCmd tea.Cmd
		vpCmd tea.Cmd
		cmd   tea.Cmd
		cmds  []tea.Cmd
	)

	m.textarea, tiCmd = m.textarea.Update(msg)
	m.viewport, vpCmd = m.viewport.Update(msg)

	m.toast, cmd = m.toast.Update(msg)
	if cmd != nil {
		cmds = append(cmds, cmd)
	}

	// Forward all messages to the spinner so it processes its own TickMsgs
	m.spin, cmd = m.spin.Update(msg)
	cmds = append(cmds, vpCmd, tiCmd, cmd)

	footerHeight := lipgloss.Height(renderChatInput(m))
	headerHeight := lipgloss.Height(renderInfoBar(m))

	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		newHeight := msg.Height - footerHeight - headerHeight
		if newHeight < 1 {
			newHeight = 1
		}
		m.viewport.Width = msg.Width
		m.viewport.Height = newHeight

		newWidth := msg.Width - 2
		if newWidth < 10 {
			newWidth = 10
		}
		m.textarea.SetWidth(newWidth)
		m.width = msg.Width
		m.transcript = computeTranscript(m)
		m.setViewportContent()

	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c":
			m.status = "Take care! Remember to consult a clinician for medical decisions."
			return m, tea.Quit

		case "up":
			if m.histIndex > 0 {
				m.histIndex--
				m.textarea.SetValue(m.history[m.histIndex])
				m.textarea.CursorEnd()
			}

		case "down":
			if m.histIndex < len(m.history)-1 {
				m.histIndex++
				m.textarea.SetValue(m.history[m.histIndex])
				m.textarea.CursorEnd()
			} else {
				m.histIndex = len(m.history)
				m.textarea.SetValue("")
			}

		case "enter":
			input := strings.TrimSpace(m.textarea.Value())
			if input == "" || m.streaming {
				break
			}

			if strings.HasPrefix(input, "/") {
				model, cmd := m.handleSlashCommand(input)
				return model, cmd
			}

			m.history = append(m.history, input)
			m.histIndex = len(m.history)
			m.textarea.SetValue("")
			cmds = append(cmds, m.startStream(input)...)
			m.transcript = computeTranscript(m)
			m.refreshViewportBottom()
		}

	case sessionEventMsg:
		cmds = append(cmds, m.applySessionEvent(msg.ev)...)
		if m.streamCh != nil {
			cmds = append(cmds, listen(m.streamCh))
		}
		m.transcript = computeTranscript(m)
		m.refreshViewportBottom()

	case streamClosedMsg:
		m.streamCh = nil

	case fallbackResultMsg:
		m.thinking = false
		m.streaming = false
		if msg.err != nil {
			class := FailureUnknown
			if fbErr, ok := msg.err.(*FallbackError); ok {
				class = fbErr.Class
			}
			m.conversation.Fail(m.currentID, class.UserMessage(), m.currentInput)
			cmds = append(cmds, m.controller.UpdateConnectivity(false), toastCmd("Request failed. Type /retry to try again."))
		} else {
			m.completeAnswer(msg.answer)
			cmds = append(cmds, m.controller.UpdateConnectivity(true))
		}
		m.transcript = computeTranscript(m)
		m.refreshViewportBottom()

	case connectivityMsg:
		cmds = append(cmds, m.controller.UpdateConnectivity(msg.ok))

	case probeTickMsg:
		cmds = append(cmds, probeCmd(), scheduleProbe())

	case StateUpdateMsg:
		m.connected = msg.NewState.Connected
		if strings.TrimSpace(msg.Notice) != "" {
			cmds = append(cmds, toastCmd(msg.Notice))
		}

	case historyLoadedMsg:
		if msg.err != nil {
			cmds = append(cmds, toastCmd("Could not load history."))
			logDebug(fmt.Sprintf("history load failed: %v", msg.err))
			break
		}
		m.loadHistory(msg.messages)
		m.transcript = computeTranscript(m)
		m.refreshViewportBottom()

	case memoryClearedMsg:
		if msg.err != nil {
			logDebug(fmt.Sprintf("server memory clear failed: %v", msg.err))
		}

	case tickMsg:
		if m.thinking {
			m.thinkFrame = (m.thinkFrame + 1) % 3
			// Animation only; keep whatever scroll position the reader holds.
			m.setViewportContent()
			cmds = append(cmds, thinkingCmd())
		}
	}

	return m, tea.Batch(cmds...)
}

// applySessionEvent folds one streaming session event into the model.
func (m *chatModel) applySessionEvent(ev SessionEvent) []tea.Cmd {
	var cmds []tea.Cmd
	switch ev := ev.(type) {
	case EventFirstContent:
		m.thinking = false

	case EventChunk:
		m.conversation.UpdateStreaming(m.currentID, renderStreamingText(ev.Text))

	case EventCompleted:
		m.thinking = false
		m.streaming = false
		m.completeAnswer(ev.Final)
		cmds = append(cmds, m.controller.UpdateConnectivity(true))

	case EventStreamError:
		// The server reported the failure itself; the connection is fine
		// and the fallback must not run.
		m.thinking = false
		m.streaming = false
		m.conversation.Fail(m.currentID, ev.Message, m.currentInput)
		cmds = append(cmds, toastCmd("The assistant could not answer. Type /retry to try again."))

	case EventTransportFailure:
		logDebug(fmt.Sprintf("streaming failed, using fallback: %v", ev.Err))
		m.thinking = true
		cmds = append(cmds, fallbackCmd(m.sess, m.currentInput))
	}
	return cmds
}

// completeAnswer finalizes the in-flight assistant entry with the full
// answer text.
func (m *chatModel) completeAnswer(final string) {
	if final == "" {
		m.conversation.Complete(m.currentID, "(no answer)")
		return
	}
	rendered := renderFinalAnswer(final, m.contentWidth())
	m.conversation.Complete(m.currentID, rendered.Text)
	m.finalTexts[m.currentID] = final
	m.lastAnswer = rendered
}

// loadHistory replaces the visible conversation with the server-side
// transcript. Reactions persist across restarts but server history entries
// have no stable identity, so markers only apply to this run's messages.
func (m *chatModel) loadHistory(messages []HistoryMessage) {
	m.conversation.Clear()
	m.finalTexts = make(map[string]string)
	if len(messages) == 0 {
		m.conversation.AddNotice("No conversation history on the server.")
		return
	}
	for _, hm := range messages {
		switch hm.Role {
		case "user":
			m.conversation.AddUser(hm.Content)
			m.history = append(m.history, hm.Content)
		case "assistant":
			entry := m.conversation.BeginAssistant()
			rendered := renderFinalAnswer(hm.Content, m.contentWidth())
			m.conversation.Complete(entry.ID, rendered.Text)
			m.finalTexts[entry.ID] = hm.Content
			m.lastAnswer = rendered
		}
	}
	m.histIndex = len(m.history)
}

func (m *chatModel) handleSlashCommand(input string) (tea.Model, tea.Cmd) {
	fields := strings.Fields(strings.ToLower(input))
	command := fields[0]
	m.textarea.SetValue("")

	switch command {
	case "/help":
		m.conversation.AddNotice("Commands:\n" +
			"  /help - Show this help\n" +
			"  /history - Reload the conversation from the server\n" +
			"  /clear - Clear the conversation and server memory\n" +
			"  /retry - Resend the last failed question\n" +
			"  /like, /dislike - React to the last answer\n" +
			"  /unreact - Remove your reaction\n" +
			"  /copy [n] - Copy code block n from the last answer\n" +
			"  /theme [dark|light] - Switch display theme\n" +
			"  /exit - Exit\n\n" +
			"Up/Down arrows navigate input history.")

	case "/exit", "/quit":
		m.status = "Take care! Remember to consult a clinician for medical decisions."
		return *m, tea.Quit

	case "/clear":
		m.conversation.Clear()
		m.finalTexts = make(map[string]string)
		m.lastAnswer = RenderedAnswer{}
		m.history = nil
		m.histIndex = 0
		m.sess.SessionID = ""
		deleteSessionContext()
		m.conversation.AddNotice("Conversation cleared. A new session starts with your next question.")
		m.transcript = computeTranscript(*m)
		m.refreshViewportBottom()
		return *m, clearMemoryCmd(m.sess)

	case "/history":
		return *m, fetchHistoryCmd(m.sess)

	case "/retry":
		return m.handleRetry()

	case "/like":
		return m.handleReaction(store.ReactionLike)

	case "/dislike":
		return m.handleReaction(store.ReactionDislike)

	case "/unreact":
		return m.handleReaction(store.ReactionNone)

	case "/copy":
		return m.handleCopy(fields)

	case "/theme":
		if len(fields) < 2 || (fields[1] != "dark" && fields[1] != "light") {
			m.conversation.AddNotice("Usage: /theme [dark|light]")
			break
		}
		m.reactions.SetTheme(fields[1])
		m.transcript = computeTranscript(*m)
		m.refreshViewportBottom()
		return *m, m.controller.SwitchTheme(fields[1])

	default:
		m.conversation.AddNotice(fmt.Sprintf("Unknown command '%s'. Type '/help' for available commands.", command))
	}

	m.transcript = computeTranscript(*m)
	m.refreshViewportBottom()
	return *m, nil
}

func (m *chatModel) handleRetry() (tea.Model, tea.Cmd) {
	if m.streaming {
		return *m, toastCmd("A request is already in flight.")
	}
	entry, ok := m.conversation.LastErrored()
	if !ok {
		m.conversation.AddNotice("Nothing to retry.")
		m.transcript = computeTranscript(*m)
		m.refreshViewportBottom()
		return *m, nil
	}
	origin, err := m.conversation.Retry(entry.ID)
	if err != nil {
		m.conversation.AddNotice("Cannot retry this message.")
		m.transcript = computeTranscript(*m)
		m.refreshViewportBottom()
		return *m, nil
	}
	cmds := m.startStream(origin)
	m.transcript = computeTranscript(*m)
	m.refreshViewportBottom()
	return *m, tea.Batch(cmds...)
}

func (m *chatModel) handleReaction(r store.Reaction) (tea.Model, tea.Cmd) {
	entry, ok := m.conversation.LastAssistant()
	if !ok || entry.State != MessageComplete {
		return *m, toastCmd("No completed answer to react to.")
	}
	m.reactions.SetReaction(entry.ID, r)

	var note string
	switch r {
	case store.ReactionLike:
		note = "Thanks for the feedback! 👍"
	case store.ReactionDislike:
		note = "Thanks for the feedback. 👎"
	default:
		note = "Reaction removed."
	}
	m.transcript = computeTranscript(*m)
	m.refreshViewportBottom()
	return *m, tea.Batch(
		reactCmd(m.sess, entry.ID, r, m.finalTexts[entry.ID]),
		toastCmd(note),
	)
}

func (m *chatModel) handleCopy(fields []string) (tea.Model, tea.Cmd) {
	blocks := m.lastAnswer.CodeBlocks
	if len(blocks) == 0 {
		return *m, toastCmd("No code blocks to copy.")
	}
	n := len(blocks)
	if len(fields) > 1 {
		parsed, err := strconv.Atoi(fields[1])
		if err != nil || parsed < 1 || parsed > len(blocks) {
			return *m, toastCmd(fmt.Sprintf("Use /copy 1..%d", len(blocks)))
		}
		n = parsed
	}
	if err := clipboard.WriteAll(blocks[n-1].Source); err != nil {
		logDebug(fmt.Sprintf("clipboard write failed: %v", err))
		return *m, toastCmd("Clipboard unavailable.")
	}
	return *m, toastCmd(fmt.Sprintf("Copied code block %d.", n))
}

func (m *chatModel) contentWidth() int {
	w := m.width - 4
	if w < 20 {
		w = 80
	}
	return w
}

func listen(ch <-chan tea.Msg) tea.Cmd {
	return func() tea.Msg {
		msg, ok := <-ch
		if !ok {
			return streamClosedMsg{}
		}
		return msg
	}
}

func computeTranscript(m chatModel) string {
	var b strings.Builder

	baseStyle := lipgloss.NewStyle()
	labelStyle := baseStyle.Foreground(lipgloss.Color("11"))
	for _, entry := range m.conversation.Entries() {
		var line string
		switch entry.Role {
		case "assistant":
			var body string
			switch entry.State {
			case MessageErrored:
				body = renderErrorText(entry.Content) + baseStyle.Faint(true).Render("  (/retry to try again)")
			case MessageComplete:
				body = entry.Content + reactionMarker(m.reactions.Reaction(entry.ID))
			default:
				body = entry.Content
			}
			line = labelStyle.Render(assistantPrompt) + " " + body + "\n"
		case "user":
			style := baseStyle.Foreground(lipgloss.Color("#ccc"))
			line = style.Bold(true).Render("> ") + style.Render(entry.Content)
		case "client":
			line = baseStyle.Foreground(lipgloss.Color("#666666")).Render(entry.Content)
		}
		b.WriteString(line + "\n")
	}

	return b.String()
}

func reactionMarker(r store.Reaction) string {
	switch r {
	case store.ReactionLike:
		return "\n" + lipgloss.NewStyle().Faint(true).Render("👍 you liked this answer")
	case store.ReactionDislike:
		return "\n" + lipgloss.NewStyle().Faint(true).Render("👎 you disliked this answer")
	}
	return ""
}

func renderChatContent(m chatModel) string {
	var b strings.Builder

	b.WriteString(m.transcript)

	if m.thinking {
		dots := m.thinkFrame + 1
		thinkingText := assistantPrompt + " " + m.spin.View() + "Thinking" + strings.Repeat(".", dots)
		wrappedThinking := lipgloss.NewStyle().Foreground(lipgloss.Color("11")).Width(m.width - 2).Render(thinkingText)
		b.WriteString(wrappedThinking + gap)
	}

	return b.String()
}

// setViewportContent updates the viewport with the current chat rendering.
func (m *chatModel) setViewportContent() {
	m.viewport.SetContent(lipgloss.NewStyle().Width(m.viewport.Width).Render(renderChatContent(*m)))
}

// refreshViewportBottom updates the viewport and scrolls to the bottom.
func (m *chatModel) refreshViewportBottom() {
	m.setViewportContent()
	m.viewport.GotoBottom()
}

func renderChatInput(m chatModel) string {
	var b strings.Builder

	b.WriteString(gap)

	cbStyle := lipgloss.NewStyle().
		MarginBottom(1).
		BorderStyle(lipgloss.NormalBorder()).
		BorderForeground(lipgloss.Color("63"))

	b.WriteString(cbStyle.Render(m.textarea.View()))

	b.WriteString("\n")
	helpText := "/help for commands | Up/Down: history | /retry after a failure"
	wrappedHelp := lipgloss.NewStyle().Faint(true).Width(m.width - 2).Render(helpText)
	b.WriteString(wrappedHelp)
	b.WriteString("\n")

	return b.String()
}

func renderInfoBar(m chatModel) string {
	var session string
	if m.sess.SessionID != "" {
		session = m.sess.SessionID
		if len(session) > 8 {
			session = session[:8]
		}
	} else {
		session = "new"
	}

	statusIcon := "🟢"
	if !m.connected {
		statusIcon = "🔴"
	}

	serverHost := strings.TrimPrefix(strings.TrimPrefix(serverURL, "https://"), "http://")

	statusLine := fmt.Sprintf("🩺 MedChat | %s %s | %s | %s",
		sessionPrompt, session, statusIcon, serverHost)

	style := lipgloss.NewStyle().
		Width(m.width).
		Background(lipgloss.Color("#027ffd")).
		Foreground(lipgloss.Color("#ffffff")).
		PaddingLeft(1).
		PaddingRight(1)

	if lipgloss.Width(statusLine) > m.width-2 {
		maxLen := m.width - 5
		if maxLen > 0 {
			statusLine = statusLine[:maxLen] + "..."
		}
	}

	return style.Render(statusLine)
}

func (m chatModel) View() string {
	// Set only on quit; the farewell is the final frame.
	if m.status != "" {
		return m.status + "\n"
	}

	var b strings.Builder
	b.WriteString(m.viewport.View())
	b.WriteString(renderChatInput(m))
	b.WriteString(renderInfoBar(m))

	if v := m.toast.View(); v != "" {
		b.WriteString("\n")
		b.WriteString(v)
	}

	return b.String()
}

func thinkingCmd() tea.Cmd {
	return tea.Tick(250*time.Millisecond, func(time.Time) tea.Msg { return tickMsg{} })
}
