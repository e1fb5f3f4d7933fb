package scheduler

import (
	"os"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/extension"
	east "github.com/yuin/goldmark/extension/ast"
	"github.com/yuin/goldmark/text"
)

// heartbeatJob names the checklist-driven jobs a HEARTBEAT.md can
// enable, matched against the checkbox item's text (case-insensitive
// substring match) rather than an exact line format, so operators can
// phrase the checklist however they like.
type heartbeatJob struct {
	match string // substring to look for in the checkbox's text
	cron  string
	run   func(*Scheduler)
}

var heartbeatJobs = []heartbeatJob{
	{match: "daily digest", cron: "0 22 * * *", run: (*Scheduler).runDailyDigest},
	{match: "morning briefing", cron: "0 9 * * *", run: (*Scheduler).runMorningBriefing},
	{match: "evening reflection", cron: "0 20 * * *", run: (*Scheduler).runEveningReflection},
	{match: "deadline scan", cron: "0 */2 * * *", run: (*Scheduler).runDeadlineScan},
}

// registerHeartbeatJobs reads HEARTBEAT.md and schedules each checklist
// job whose checkbox is checked. A missing or unreadable file disables
// every checklist job without failing startup — the tick and
// synthesize jobs are the ones that matter for the core contract.
func (s *Scheduler) registerHeartbeatJobs() {
	if s.cfg.HeartbeatPath == "" {
		return
	}
	enabled, err := parseHeartbeatChecklist(s.cfg.HeartbeatPath)
	if err != nil {
		s.logger.Warn().Err(err).Str("path", s.cfg.HeartbeatPath).Msg("heartbeat: checklist unreadable, checklist jobs disabled")
		return
	}
	for _, job := range heartbeatJobs {
		if !enabled[job.match] {
			continue
		}
		run := job.run
		if _, err := s.cron.AddFunc(job.cron, func() { run(s) }); err != nil {
			s.logger.Warn().Err(err).Str("job", job.match).Msg("heartbeat: failed to register checklist job")
		}
	}
}

// parseHeartbeatChecklist parses HEARTBEAT.md's GitHub-flavored task
// list and returns, for every registered job, whether its checkbox is
// checked. Matching is a case-insensitive substring match against each
// checklist item's rendered text.
func parseHeartbeatChecklist(path string) (map[string]bool, error) {
	source, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	md := goldmark.New(goldmark.WithExtensions(extension.TaskList))
	reader := text.NewReader(source)
	doc := md.Parser().Parse(reader)

	enabled := make(map[string]bool, len(heartbeatJobs))
	err = ast.Walk(doc, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			return ast.WalkContinue, nil
		}
		item, ok := n.(*ast.ListItem)
		if !ok {
			return ast.WalkContinue, nil
		}
		checked, itemText, found := taskCheckboxText(item, source)
		if !found {
			return ast.WalkContinue, nil
		}
		lower := strings.ToLower(itemText)
		for _, job := range heartbeatJobs {
			if strings.Contains(lower, job.match) {
				enabled[job.match] = checked
			}
		}
		return ast.WalkContinue, nil
	})
	if err != nil {
		return nil, err
	}
	return enabled, nil
}

// taskCheckboxText returns the checkbox state and the plain text of a
// list item, if it starts with a task checkbox.
func taskCheckboxText(item *ast.ListItem, source []byte) (checked bool, itemText string, found bool) {
	var checkbox *east.TaskCheckBox
	var b strings.Builder
	for child := item.FirstChild(); child != nil; child = child.NextSibling() {
		collectText(child, source, &b)
	}
	_ = ast.Walk(item, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		if entering {
			if cb, ok := n.(*east.TaskCheckBox); ok && checkbox == nil {
				checkbox = cb
			}
		}
		return ast.WalkContinue, nil
	})
	if checkbox == nil {
		return false, "", false
	}
	return checkbox.IsChecked, b.String(), true
}

func collectText(n ast.Node, source []byte, b *strings.Builder) {
	if textNode, ok := n.(*ast.Text); ok {
		b.Write(textNode.Segment.Value(source))
		b.WriteByte(' ')
	}
	for child := n.FirstChild(); child != nil; child = child.NextSibling() {
		collectText(child, source, b)
	}
}
