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

	"virtualta/internal/answer"
	"virtualta/internal/domain"
	"virtualta/internal/summarizer"
)

// Answerer is the TUI-facing side of the answer engine.
type Answerer interface {
	Answer(ctx context.Context, req answer.Request) (domain.Response, error)
}

type answeredMsg struct {
	question string
	resp     domain.Response
	err      error
}

// Model is the Bubble Tea model for asking questions and browsing the
// linked sources of the answer.
type Model struct {
	ctx       context.Context
	answerer  Answerer
	headlines *summarizer.Frequency
	input     textinput.Model
	viewport  viewport.Model
	resp      *domain.Response
	status    string
	cursor    int
	ready     bool
	busy      bool
	lastQuery string
}

func New(ctx context.Context, a Answerer) Model {
	ti := textinput.New()
	ti.Prompt = "> "
	ti.Placeholder = "Ask a course question and press Enter"
	ti.Focus()
	ti.CharLimit = 0
	vp := viewport.New(0, 0)
	return Model{
		ctx:       ctx,
		answerer:  a,
		headlines: summarizer.NewFrequency(),
		input:     ti,
		viewport:  vp,
		status:    "Ready. Up/Down cycle sources.",
	}
}

func (m Model) Init() tea.Cmd { return textinput.Blink }

func (m Model) ask(q string) tea.Cmd {
	return func() tea.Msg {
		resp, err := m.answerer.Answer(m.ctx, answer.Request{Question: q})
		return answeredMsg{question: q, resp: resp, err: err}
	}
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.ready = true
		_, rh := resultBoxStyle.GetFrameSize()
		_, qh := queryBoxStyle.GetFrameSize()
		reserved := 1 + 1 + qh + 1 // header, status, spacer
		vh := msg.Height - reserved
		m.viewport.Width = max(20, msg.Width)
		m.viewport.Height = max(3, vh-rh)
		m.viewport.SetContent(m.render())
		return m, nil
	case answeredMsg:
		m.busy = false
		if msg.err != nil {
			m.status = "Error: " + msg.err.Error()
			m.resp = nil
		} else {
			m.resp = &msg.resp
			m.cursor = 0
			m.lastQuery = msg.question
			m.status = fmt.Sprintf("Answer for %q with %d sources", msg.question, len(msg.resp.Links))
		}
		m.viewport.SetContent(m.render())
		return m, nil
	case tea.KeyMsg:
		if msg.Type == tea.KeyCtrlC || msg.Type == tea.KeyCtrlD {
			return m, tea.Quit
		}
		switch msg.String() {
		case "enter":
			q := strings.TrimSpace(m.input.Value())
			if q != "" && !m.busy {
				m.busy = true
				m.status = "Thinking..."
				return m, m.ask(q)
			}
		case "down":
			if n := m.linkCount(); n > 0 {
				m.cursor = (m.cursor + 1) % n
				m.viewport.SetContent(m.render())
				return m, nil
			}
		case "up":
			if n := m.linkCount(); n > 0 {
				m.cursor = (m.cursor - 1 + n) % n
				m.viewport.SetContent(m.render())
				return m, nil
			}
		}
	}
	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m Model) View() string {
	if !m.ready {
		return "Loading..."
	}
	header := lipgloss.NewStyle().Bold(true).Render("Virtual TA")
	input := queryBoxStyle.Render(m.input.View())
	status := lipgloss.NewStyle().Foreground(lipgloss.Color("10")).Render(m.status)
	results := resultBoxStyle.Render(m.viewport.View())
	return header + "\n" + results + "\n" + input + "\n" + status
}

func (m Model) linkCount() int {
	if m.resp == nil {
		return 0
	}
	return len(m.resp.Links)
}

func (m Model) render() string {
	if m.resp == nil {
		return "No answer yet."
	}
	var b strings.Builder
	b.WriteString(m.resp.Answer)
	b.WriteString("\n\n")
	for i, l := range m.resp.Links {
		marker := "  "
		if i == m.cursor {
			marker = "> "
		}
		fmt.Fprintf(&b, "%s%d. %s\n", marker, i+1, linkStyle.Render(l.URL))
		fmt.Fprintf(&b, "     %s\n", m.headlines.Headline(l.Text, 1, 100))
	}
	if n := m.linkCount(); n > 0 {
		l := m.resp.Links[m.cursor]
		fmt.Fprintf(&b, "\nSource %d/%d\n\n%s", m.cursor+1, n, highlightBestSentence(l.Text, m.lastQuery))
	}
	return b.String()
}

var (
	resultBoxStyle = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1)
	queryBoxStyle  = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1)
	highlightStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("11")).Bold(true)
	linkStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("12")).Underline(true)
	unicodeWordRe  = regexp.MustCompile(`\p{L}+(?:['’]\p{L}+)*`)
	sentenceRe     = regexp.MustCompile(`[^.!?]+[.!?]`)
)

// highlightBestSentence emphasizes the sentence sharing the most words
// with the question.
func highlightBestSentence(text, query string) string {
	if strings.TrimSpace(text) == "" {
		return text
	}
	sentences := sentenceRe.FindAllString(text, -1)
	if len(sentences) == 0 {
		sentences = []string{text}
	}
	for i := range sentences {
		sentences[i] = strings.TrimSpace(sentences[i])
	}
	qTokens := toTokenSet(query)
	if len(qTokens) == 0 {
		return strings.Join(sentences, " ")
	}
	bestIdx, bestScore := 0, -1
	for i, s := range sentences {
		if score := tokenOverlapScore(qTokens, s); score > bestScore {
			bestScore, bestIdx = score, i
		}
	}
	out := make([]string, len(sentences))
	for i, s := range sentences {
		if i == bestIdx {
			s = highlightStyle.Render(s)
		}
		out[i] = s
	}
	return strings.Join(out, " ")
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
	seen := map[string]struct{}{}
	for _, t := range unicodeWordRe.FindAllString(strings.ToLower(sentence), -1) {
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
