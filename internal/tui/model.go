package tui

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"docrag/internal/domain"
	"docrag/internal/generate"
	"docrag/internal/service"
)

// RecentLimit is how many conversation entries the history view shows.
const RecentLimit = 5

// Port is the TUI-facing subset of the service.
type Port interface {
	Query(ctx context.Context, question string, opts service.QueryOptions) service.QueryResult
	Stats() domain.Stats
	Recent(n int) []domain.ConversationEntry
	Documents() []domain.DocumentInfo
}

// BackendSource resolves a provider name to a generation backend.
type BackendSource interface {
	Get(provider string) (generate.Backend, error)
}

// providerCycle is the order Ctrl+P walks through.
var providerCycle = []generate.Provider{generate.ProviderNone, generate.ProviderRemote, generate.ProviderLocal}

type view int

const (
	viewAnswer view = iota
	viewFragments
	viewHistory
)

// queryDoneMsg carries a finished query back into the update loop.
type queryDoneMsg struct {
	question string
	result   service.QueryResult
}

// Model is the Bubble Tea model for the TUI application.
type Model struct {
	ctx           context.Context
	service       Port
	input         textinput.Model
	viewport      viewport.Model
	result        service.QueryResult
	view          view
	backend       generate.Backend
	backends      BackendSource
	useGeneration bool
	busy          bool
	status        string
	cursor        int
	ready         bool
	lastQuery     string
}

// New creates a TUI model answering with backend. backends, when non-nil,
// lets Ctrl+P switch provider; useGeneration is the initial toggle state.
func New(ctx context.Context, svc Port, backend generate.Backend, backends BackendSource, useGeneration bool) Model {
	if backend == nil {
		backend = generate.None{}
	}
	ti := textinput.New()
	ti.Prompt = "> "
	ti.Placeholder = "Ask a question and press Enter"
	ti.Focus()
	ti.CharLimit = 0
	vp := viewport.New(0, 0)
	return Model{
		ctx:           ctx,
		service:       svc,
		input:         ti,
		viewport:      vp,
		backend:       backend,
		backends:      backends,
		useGeneration: useGeneration && backend.Provider() != generate.ProviderNone,
		status:        "Ready. Tab switches views, Ctrl+G toggles generation, Ctrl+P switches provider.",
	}
}

// Init initializes the model (text input cursor blink).
func (m Model) Init() tea.Cmd { return textinput.Blink }

// Update handles key and window events and updates the view state.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.ready = true
		// account for frames around result and query boxes
		_, rh := resultBoxStyle.GetFrameSize()
		_, qh := queryBoxStyle.GetFrameSize()
		reserved := 2 + 1 + qh + 1 // header and documents, status, spacer
		vh := msg.Height - reserved
		m.viewport.Width = max(20, msg.Width)
		m.viewport.Height = max(3, vh-rh)
		m.refresh()
		return m, nil
	case queryDoneMsg:
		m.busy = false
		m.result = msg.result
		m.lastQuery = msg.question
		m.cursor = 0
		m.view = viewAnswer
		switch {
		case msg.result.RetrievalErr != nil:
			m.status = "Retrieval error: " + msg.result.RetrievalErr.Error()
		case msg.result.GenerationErr != nil:
			m.status = "Generation failed, showing the error"
		case len(msg.result.Fragments) == 0:
			m.status = "Nothing relevant found"
		default:
			m.status = fmt.Sprintf("%d fragments from %s", len(msg.result.Fragments), strings.Join(msg.result.Sources, ", "))
		}
		m.refresh()
		return m, nil
	case tea.KeyMsg:
		if msg.Type == tea.KeyCtrlC || msg.Type == tea.KeyCtrlD {
			return m, tea.Quit
		}
		switch msg.String() {
		case "enter":
			q := strings.TrimSpace(m.input.Value())
			if q == "" || m.busy {
				return m, nil
			}
			m.busy = true
			m.status = fmt.Sprintf("Searching for %q...", q)
			m.input.SetValue("")
			return m, m.runQuery(q)
		case "tab":
			m.view = (m.view + 1) % 3
			m.refresh()
			return m, nil
		case "ctrl+g":
			if m.backend.Provider() == generate.ProviderNone {
				m.status = "No generation provider configured"
				return m, nil
			}
			m.useGeneration = !m.useGeneration
			m.status = "Generation " + onOff(m.useGeneration)
			return m, nil
		case "ctrl+p":
			m.switchProvider()
			return m, nil
		case "down":
			if m.view == viewFragments && len(m.result.Fragments) > 0 {
				m.cursor = (m.cursor + 1) % len(m.result.Fragments)
				m.refresh()
				return m, nil
			}
		case "up":
			if m.view == viewFragments && len(m.result.Fragments) > 0 {
				m.cursor = (m.cursor - 1 + len(m.result.Fragments)) % len(m.result.Fragments)
				m.refresh()
				return m, nil
			}
		case "pgdown", "pgup":
			var cmd tea.Cmd
			m.viewport, cmd = m.viewport.Update(msg)
			return m, cmd
		}
	}
	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m Model) runQuery(q string) tea.Cmd {
	opts := service.QueryOptions{UseGeneration: m.useGeneration, Backend: m.backend}
	return func() tea.Msg {
		return queryDoneMsg{question: q, result: m.service.Query(m.ctx, q, opts)}
	}
}

// View renders the TUI layout and current result.
func (m Model) View() string {
	if !m.ready {
		return "Loading..."
	}
	st := m.service.Stats()
	header := titleStyle.Render("Document Q&A") + "  " + mutedStyle.Render(fmt.Sprintf(
		"%d documents · %d fragments · %d conversations · %s generation %s",
		st.Documents, st.TotalFragments, st.ConversationCount, m.backend.Provider(), onOff(m.useGeneration)))
	tabs := m.renderTabs()
	input := queryBoxStyle.Render(m.input.View())
	status := statusStyle.Render(m.status)
	results := resultBoxStyle.Render(m.viewport.View())
	return header + "\n" + tabs + "\n" + results + "\n" + input + "\n" + status
}

// switchProvider moves to the next provider that can be built. Failures
// leave the current backend in place.
func (m *Model) switchProvider() {
	if m.backends == nil {
		m.status = "Provider switching is not available"
		return
	}
	cur := 0
	for i, p := range providerCycle {
		if p == m.backend.Provider() {
			cur = i
		}
	}
	next := providerCycle[(cur+1)%len(providerCycle)]
	b, err := m.backends.Get(string(next))
	if err != nil {
		m.status = fmt.Sprintf("Cannot use %s: %v", next, err)
		return
	}
	m.backend = b
	m.useGeneration = next != generate.ProviderNone
	m.status = fmt.Sprintf("Provider %s, generation %s", next, onOff(m.useGeneration))
}

func (m *Model) refresh() {
	switch m.view {
	case viewAnswer:
		m.viewport.SetContent(m.renderAnswer())
	case viewFragments:
		m.viewport.SetContent(m.renderFragment())
	case viewHistory:
		m.viewport.SetContent(renderHistory(m.service.Recent(RecentLimit)))
	}
	m.viewport.GotoTop()
}

func (m Model) renderTabs() string {
	names := []string{"Answer", "Fragments", "History"}
	parts := make([]string, len(names))
	for i, n := range names {
		if view(i) == m.view {
			parts[i] = activeTabStyle.Render(n)
		} else {
			parts[i] = mutedStyle.Render(n)
		}
	}
	return strings.Join(parts, "  ")
}

func (m Model) renderAnswer() string {
	if m.lastQuery == "" {
		docs := m.service.Documents()
		if len(docs) == 0 {
			return "No documents loaded yet."
		}
		var b strings.Builder
		b.WriteString("Loaded documents:\n")
		for _, d := range docs {
			fmt.Fprintf(&b, "\n%s (%d fragments)\n", titleStyle.Render(d.Source), d.Fragments)
			if d.Summary != "" {
				b.WriteString(mutedStyle.Render(d.Summary) + "\n")
			}
		}
		return b.String()
	}
	out := m.result.Answer
	if len(m.result.Sources) > 0 {
		out += "\n\n" + mutedStyle.Render("Sources: "+strings.Join(m.result.Sources, ", "))
	}
	return out
}

func (m Model) renderFragment() string {
	if len(m.result.Fragments) == 0 {
		return "No results yet."
	}
	r := m.result.Fragments[m.cursor]
	title := fmt.Sprintf("Fragment %d/%d  %s  score=%.3f", m.cursor+1, len(m.result.Fragments), r.ID, r.Score)
	body := highlightBestSentence(r.Text, m.lastQuery)
	return title + "\n\n" + body
}

func renderHistory(entries []domain.ConversationEntry) string {
	if len(entries) == 0 {
		return "No conversations yet."
	}
	var b strings.Builder
	for i, e := range entries {
		if i > 0 {
			b.WriteString("\n" + mutedStyle.Render(strings.Repeat("─", 20)) + "\n")
		}
		fmt.Fprintf(&b, "%s  %s\n", mutedStyle.Render(e.Timestamp), titleStyle.Render(e.Question))
		b.WriteString(e.Answer + "\n")
		fmt.Fprintf(&b, "%s\n", mutedStyle.Render(fmt.Sprintf("%d fragments: %s", e.FragmentCount, strings.Join(e.Sources, ", "))))
	}
	return b.String()
}

func onOff(b bool) string {
	if b {
		return "on"
	}
	return "off"
}

var (
	titleStyle     = lipgloss.NewStyle().Bold(true)
	mutedStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
	statusStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("10"))
	activeTabStyle = lipgloss.NewStyle().Bold(true).Underline(true)
	resultBoxStyle = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1)
	queryBoxStyle  = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1)
	highlightStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("11")).Bold(true)
	unicodeWordRe  = regexp.MustCompile(`\p{L}+(?:['’]\p{L}+)*`)
	sentenceRe     = regexp.MustCompile(`[^.!?]+[.!?]+`)
)

// highlightBestSentence emphasizes the sentence sharing the most words with query.
func highlightBestSentence(text, query string) string {
	if strings.TrimSpace(text) == "" {
		return text
	}
	sentences := sentenceRe.FindAllString(text, -1)
	if len(sentences) == 0 {
		sentences = []string{strings.TrimSpace(text)}
	}
	qTokens := toTokenSet(query)
	if len(qTokens) == 0 {
		return strings.Join(sentences, " ")
	}
	bestIdx := 0
	bestScore := -1
	for i, s := range sentences {
		score := tokenOverlapScore(qTokens, s)
		if score > bestScore {
			bestScore = score
			bestIdx = i
		}
	}
	for i := range sentences {
		sent := strings.TrimSpace(sentences[i])
		if i == bestIdx {
			sentences[i] = highlightStyle.Render(sent)
		} else {
			sentences[i] = sent
		}
	}
	return strings.Join(sentences, " ")
}

func toTokenSet(s string) map[string]struct{} {
	tokens := unicodeWordRe.FindAllString(strings.ToLower(s), -1)
	m := make(map[string]struct{}, len(tokens))
	for _, t := range tokens {
		m[t] = struct{}{}
	}
	return m
}

func tokenOverlapScore(queryTokens map[string]struct{}, sentence string) int {
	score := 0
	tokens := unicodeWordRe.FindAllString(strings.ToLower(sentence), -1)
	seen := make(map[string]struct{}, len(tokens))
	for _, t := range tokens {
		if _, ok := seen[t]; ok {
			continue
		}
		seen[t] = struct{}{}
		if _, ok := queryTokens[t]; ok {
			score++
		}
	}
	return score
}
