package tui

import (
	"context"
	"errors"
	"strings"
	"testing"

	tea "github.com/charmbracelet/bubbletea"

	"docrag/internal/domain"
	"docrag/internal/generate"
	"docrag/internal/service"
)

type fakePort struct {
	queries []service.QueryOptions
	result  service.QueryResult
	recent  []domain.ConversationEntry
}

func (f *fakePort) Query(_ context.Context, _ string, opts service.QueryOptions) service.QueryResult {
	f.queries = append(f.queries, opts)
	return f.result
}

func (f *fakePort) Stats() domain.Stats {
	return domain.Stats{IndexStats: domain.IndexStats{TotalFragments: 3}, ConversationCount: len(f.recent), Documents: 1}
}

func (f *fakePort) Recent(n int) []domain.ConversationEntry {
	if n < len(f.recent) {
		return f.recent[:n]
	}
	return f.recent
}

func (f *fakePort) Documents() []domain.DocumentInfo {
	return []domain.DocumentInfo{{Source: "a.txt", Fragments: 3, Summary: "Cats sit."}}
}

type stubBackend struct{ p generate.Provider }

func (b stubBackend) Provider() generate.Provider { return b.p }

func (b stubBackend) Complete(context.Context, string) (string, error) {
	return "answered by " + string(b.p), nil
}

type stubBackends map[generate.Provider]generate.Backend

func (s stubBackends) Get(name string) (generate.Backend, error) {
	p, err := generate.ParseProvider(name)
	if err != nil {
		return nil, err
	}
	if b, ok := s[p]; ok {
		return b, nil
	}
	return nil, errors.New("no api key")
}

func sized(m Model) Model {
	next, _ := m.Update(tea.WindowSizeMsg{Width: 80, Height: 30})
	return next.(Model)
}

func typeAndSubmit(t *testing.T, m Model, q string) Model {
	t.Helper()
	m.input.SetValue(q)
	next, cmd := m.Update(tea.KeyMsg{Type: tea.KeyEnter})
	if cmd == nil {
		t.Fatal("expected a query command")
	}
	next, _ = next.(Model).Update(cmd())
	return next.(Model)
}

func TestQueryFlow(t *testing.T) {
	port := &fakePort{result: service.QueryResult{
		Answer:  "The cat sat on the mat.",
		Sources: []string{"a.txt"},
		Fragments: []domain.ScoredFragment{
			{Fragment: domain.Fragment{ID: "a.txt_0", Source: "a.txt", Text: "The cat sat."}, Score: 0.8},
			{Fragment: domain.Fragment{ID: "a.txt_1", Source: "a.txt", Text: "The dog ran."}, Score: 0.1},
		},
	}}
	m := sized(New(context.Background(), port, nil, nil, false))
	m = typeAndSubmit(t, m, "where is the cat")

	if m.busy || m.lastQuery != "where is the cat" {
		t.Fatalf("query not completed: %+v", m.status)
	}
	if !strings.Contains(m.renderAnswer(), "The cat sat on the mat.") {
		t.Fatalf("answer not rendered: %q", m.renderAnswer())
	}
	if port.queries[0].UseGeneration {
		t.Fatal("generation should be off without a provider")
	}

	next, _ := m.Update(tea.KeyMsg{Type: tea.KeyTab})
	m = next.(Model)
	if m.view != viewFragments || !strings.Contains(m.renderFragment(), "a.txt_0") {
		t.Fatalf("fragments view not shown: %q", m.renderFragment())
	}
	next, _ = m.Update(tea.KeyMsg{Type: tea.KeyDown})
	m = next.(Model)
	if m.cursor != 1 {
		t.Fatalf("cursor did not move: %d", m.cursor)
	}
	next, _ = m.Update(tea.KeyMsg{Type: tea.KeyDown})
	if next.(Model).cursor != 0 {
		t.Fatal("cursor should wrap")
	}
}

func TestGenerationToggle(t *testing.T) {
	port := &fakePort{}
	m := sized(New(context.Background(), port, stubBackend{generate.ProviderRemote}, nil, false))

	next, _ := m.Update(tea.KeyMsg{Type: tea.KeyCtrlG})
	m = next.(Model)
	if !m.useGeneration {
		t.Fatal("ctrl+g should enable generation")
	}
	typeAndSubmit(t, m, "q")
	if len(port.queries) != 1 || !port.queries[0].UseGeneration {
		t.Fatalf("query did not request generation: %+v", port.queries)
	}

	m = sized(New(context.Background(), port, nil, nil, true))
	next, _ = m.Update(tea.KeyMsg{Type: tea.KeyCtrlG})
	if next.(Model).useGeneration {
		t.Fatal("generation cannot be enabled without a provider")
	}
}

func TestProviderSwitch(t *testing.T) {
	port := &fakePort{}
	backends := stubBackends{
		generate.ProviderNone:  generate.None{},
		generate.ProviderLocal: stubBackend{generate.ProviderLocal},
	}
	m := sized(New(context.Background(), port, nil, backends, false))
	ctrlP := tea.KeyMsg{Type: tea.KeyCtrlP}

	// remote cannot be built, so the switch keeps the template backend
	next, _ := m.Update(ctrlP)
	m = next.(Model)
	if m.backend.Provider() != generate.ProviderNone || !strings.Contains(m.status, "Cannot use remote") {
		t.Fatalf("failed switch changed backend: %s (%s)", m.backend.Provider(), m.status)
	}

	m.backend = stubBackend{generate.ProviderRemote}
	next, _ = m.Update(ctrlP)
	m = next.(Model)
	if m.backend.Provider() != generate.ProviderLocal || !m.useGeneration {
		t.Fatalf("expected local with generation on, got %s %v", m.backend.Provider(), m.useGeneration)
	}
	typeAndSubmit(t, m, "q")
	if got := port.queries[0].Backend; got == nil || got.Provider() != generate.ProviderLocal {
		t.Fatalf("query did not carry the selected backend: %+v", port.queries[0])
	}

	next, _ = m.Update(ctrlP)
	m = next.(Model)
	if m.backend.Provider() != generate.ProviderNone || m.useGeneration {
		t.Fatal("cycling past local should return to the template backend")
	}

	m = sized(New(context.Background(), port, nil, nil, false))
	next, _ = m.Update(ctrlP)
	if !strings.Contains(next.(Model).status, "not available") {
		t.Fatal("switching without a backend source should be refused")
	}
}

func TestEmptyInputIgnored(t *testing.T) {
	m := sized(New(context.Background(), &fakePort{}, nil, nil, false))
	m.input.SetValue("   ")
	_, cmd := m.Update(tea.KeyMsg{Type: tea.KeyEnter})
	if cmd != nil {
		t.Fatal("blank input must not start a query")
	}
}

func TestHistoryView(t *testing.T) {
	port := &fakePort{recent: []domain.ConversationEntry{
		{Question: "newest", Answer: "a2", Sources: []string{"a.txt", "a.txt"}, FragmentCount: 2},
		{Question: "older", Answer: "a1", Sources: []string{"b.txt"}, FragmentCount: 1},
	}}
	out := renderHistory(port.Recent(RecentLimit))
	if strings.Index(out, "newest") > strings.Index(out, "older") {
		t.Fatalf("history not newest first:\n%s", out)
	}
	if !strings.Contains(out, "2 fragments: a.txt, a.txt") {
		t.Fatalf("history sources missing:\n%s", out)
	}
	if renderHistory(nil) != "No conversations yet." {
		t.Fatal("unexpected empty history text")
	}
}

func TestView(t *testing.T) {
	m := New(context.Background(), &fakePort{}, nil, nil, false)
	if m.View() != "Loading..." {
		t.Fatal("view before sizing should be a placeholder")
	}
	m = sized(m)
	v := m.View()
	if !strings.Contains(v, "1 documents") || !strings.Contains(v, "3 fragments") {
		t.Fatalf("stats header missing:\n%s", v)
	}
	if !strings.Contains(m.renderAnswer(), "a.txt (3 fragments)") {
		t.Fatalf("document list missing: %q", m.renderAnswer())
	}
}

func TestHighlightBestSentence(t *testing.T) {
	text := "Dogs bark loudly. Cats sleep all day. Birds sing."
	out := highlightBestSentence(text, "when do cats sleep")
	if !strings.Contains(out, "Cats sleep all day.") {
		t.Fatalf("unexpected output %q", out)
	}
	if got := highlightBestSentence("Plain text.", ""); got != "Plain text." {
		t.Fatalf("no query should leave text unchanged, got %q", got)
	}
	if got := highlightBestSentence("   ", "x"); got != "   " {
		t.Fatalf("blank text should be returned as is, got %q", got)
	}
}
