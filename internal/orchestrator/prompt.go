package orchestrator

import (
	"fmt"
	"strings"

	"github.com/twlines/maslow-sub003/internal/kanban"
)

// promptBudget is the hard character ceiling for an assembled prompt.
// Over budget, the droppable sections are dropped front-to-back:
// decisions, then board, then project.
const promptBudget = 50000

// docTruncateLimit bounds each project document embedded in §2.
const docTruncateLimit = 2000

const researchProtocol = `## Research Protocol

Before writing any code:
1. Read every file the card's file scope touches, plus its direct neighbors.
2. Trace how the current behavior is exercised by existing tests.
3. Identify the smallest change that satisfies the card without touching unrelated code.

Do not skip a pass because the change looks obvious.`

const completionChecklist = `## Completion Checklist

- [ ] Type-check the changed packages.
- [ ] Run lint.
- [ ] Write verification-prompt.md describing how you verified the change.
- [ ] Commit your work.

Do not push. Do not open a pull request. The orchestrator pushes on your behalf after this run exits successfully.`

// PromptInput carries everything BuildPrompt needs to assemble a prompt,
// independent of how the caller fetched it.
type PromptInput struct {
	Card            kanban.Card
	ProjectName     string
	ProjectDesc     string
	Documents       map[string]string // keyed by doc type: brief, instructions, assumptions
	Decisions       []string          // top 10 decision titles+reasoning, pre-rendered
	OtherInProgress []kanban.Card
	RecentDone      []kanban.Card
	SteeringBlock   string
}

type promptSection struct {
	name string
	text string
}

// BuildPrompt assembles the full agent prompt per §4.E's 8-section
// contract, truncating and dropping sections to stay within
// promptBudget. Identity, card brief, research protocol, and the
// completion checklist are never dropped.
func BuildPrompt(in PromptInput) string {
	identity := renderIdentity(in.Card.AssignedAgent)
	project := renderProject(in.ProjectName, in.ProjectDesc, in.Documents)
	decisions := renderDecisions(in.Decisions)
	board := renderBoard(in.OtherInProgress, in.RecentDone)
	brief := renderCardBrief(in.Card)
	steering := in.SteeringBlock

	mandatory := []promptSection{
		{name: "identity", text: identity},
		{name: "card brief", text: brief},
		{name: "research protocol", text: researchProtocol},
		{name: "completion checklist", text: completionChecklist},
	}
	droppable := []promptSection{
		{name: "decisions", text: decisions},
		{name: "board", text: board},
		{name: "project", text: project},
	}
	if steering != "" {
		mandatory = append(mandatory, promptSection{name: "steering", text: steering})
	}

	total := totalLen(mandatory) + totalLen(droppable)
	for total > promptBudget && len(droppable) > 0 {
		dropped := droppable[0]
		droppable = droppable[1:]
		total -= len(dropped.text)
	}

	var order []promptSection
	// droppable sections render before the mandatory card-brief/steering
	// tail, matching the §4.E ordering (project/decisions/board precede
	// the card brief).
	order = append(order, filterByName(droppable, "project")...)
	order = append(order, filterByName(droppable, "decisions")...)
	order = append(order, filterByName(droppable, "board")...)

	var buf strings.Builder
	buf.WriteString(identity)
	buf.WriteString("\n\n")
	for _, s := range order {
		buf.WriteString(s.text)
		buf.WriteString("\n\n")
	}
	buf.WriteString(brief)
	buf.WriteString("\n\n")
	if steering != "" {
		buf.WriteString(steering)
		buf.WriteString("\n\n")
	}
	buf.WriteString(researchProtocol)
	buf.WriteString("\n\n")
	buf.WriteString(completionChecklist)

	rendered := buf.String()
	if len(rendered) > promptBudget {
		rendered = rendered[:promptBudget]
	}
	return rendered
}

func totalLen(sections []promptSection) int {
	n := 0
	for _, s := range sections {
		n += len(s.text)
	}
	return n
}

func filterByName(sections []promptSection, name string) []promptSection {
	for _, s := range sections {
		if s.name == name {
			return []promptSection{s}
		}
	}
	return nil
}

func renderIdentity(agent kanban.AgentKind) string {
	return fmt.Sprintf(`## Identity

You are an autonomous %s coding agent working inside an isolated git worktree.
You may read, write, and commit files in this worktree. You must not push,
open a pull request, or touch any other worktree.`, agent)
}

func renderProject(name, description string, docs map[string]string) string {
	var buf strings.Builder
	buf.WriteString("## Project\n\n")
	buf.WriteString(name)
	if description != "" {
		buf.WriteString(": ")
		buf.WriteString(description)
	}
	for _, key := range []string{"brief", "instructions", "assumptions"} {
		if doc, ok := docs[key]; ok && doc != "" {
			buf.WriteString("\n\n### ")
			buf.WriteString(strings.ToUpper(key[:1]) + key[1:])
			buf.WriteString("\n")
			buf.WriteString(truncate(doc, docTruncateLimit))
		}
	}
	return buf.String()
}

func renderDecisions(decisions []string) string {
	if len(decisions) == 0 {
		return ""
	}
	limit := decisions
	if len(limit) > 10 {
		limit = limit[:10]
	}
	var buf strings.Builder
	buf.WriteString("## Architecture Decisions\n")
	for _, d := range limit {
		buf.WriteString("- ")
		buf.WriteString(d)
		buf.WriteString("\n")
	}
	return buf.String()
}

func renderBoard(otherInProgress, recentDone []kanban.Card) string {
	if len(otherInProgress) == 0 && len(recentDone) == 0 {
		return ""
	}
	var buf strings.Builder
	buf.WriteString("## Board Context\n")
	if len(otherInProgress) > 0 {
		buf.WriteString("\nIn progress elsewhere:\n")
		for _, c := range otherInProgress {
			buf.WriteString(fmt.Sprintf("- %s (%s)\n", c.Title, c.AssignedAgent))
		}
	}
	done := recentDone
	if len(done) > 10 {
		done = done[:10]
	}
	if len(done) > 0 {
		buf.WriteString("\nRecently completed:\n")
		for _, c := range done {
			buf.WriteString("- " + c.Title + "\n")
		}
	}
	return buf.String()
}

func renderCardBrief(card kanban.Card) string {
	var buf strings.Builder
	buf.WriteString("## Card\n\n")
	buf.WriteString(card.Title)
	if card.Description != "" {
		buf.WriteString("\n\n")
		buf.WriteString(card.Description)
	}
	if card.ContextSnapshot != "" {
		buf.WriteString("\n\n### Resumed Context\n")
		buf.WriteString(card.ContextSnapshot)
	}
	return buf.String()
}

func truncate(s string, limit int) string {
	if len(s) <= limit {
		return s
	}
	return s[:limit]
}
