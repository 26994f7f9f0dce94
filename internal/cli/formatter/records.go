package formatter

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/dustin/go-humanize"
	"github.com/emgroup/sitesync/internal/alert"
	"github.com/emgroup/sitesync/internal/domain/document"
	"github.com/emgroup/sitesync/internal/domain/project"
	"github.com/emgroup/sitesync/internal/domain/record"
)

const contentWidth = 60

func id(v int64) string { return strconv.FormatInt(v, 10) }

// ActionStatus colors an action status.
func ActionStatus(s record.ActionStatus) string {
	if s == record.ActionClosed {
		return StyleGreen.Render(string(s))
	}
	return StyleYellow.Render(string(s))
}

// ThreadStatus colors a thread status.
func ThreadStatus(s record.ThreadStatus) string {
	if s == record.ThreadAnswered {
		return StyleGreen.Render(string(s))
	}
	return StyleYellow.Render(string(s))
}

// FormatUpdates renders the update feed.
func FormatUpdates(updates []record.Update) string {
	rows := make([][]string, 0, len(updates))
	for _, u := range updates {
		rows = append(rows, []string{id(u.ID), u.Date, u.Author, u.Tag, Truncate(u.Content, contentWidth)})
	}
	return RenderTable([]string{"ID", "DATE", "AUTHOR", "TAG", "CONTENT"}, rows)
}

// FormatActions renders the action register.
func FormatActions(actions []record.Action) string {
	rows := make([][]string, 0, len(actions))
	for _, a := range actions {
		rows = append(rows, []string{id(a.ID), Truncate(a.Task, contentWidth), a.AssignedTo, a.DueDate, ActionStatus(a.Status)})
	}
	return RenderTable([]string{"ID", "TASK", "ASSIGNED", "DUE", "STATUS"}, rows)
}

// FormatQuestions renders the thread list.
func FormatQuestions(threads []record.QuestionThread) string {
	rows := make([][]string, 0, len(threads))
	for _, q := range threads {
		rows = append(rows, []string{
			id(q.ID), q.Date, q.Category, Truncate(q.Title, contentWidth),
			ThreadStatus(q.Status), strconv.Itoa(len(q.Replies)),
		})
	}
	return RenderTable([]string{"ID", "DATE", "CATEGORY", "TITLE", "STATUS", "REPLIES"}, rows)
}

// FormatThread renders one thread with its replies in order.
func FormatThread(q record.QuestionThread) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s  %s\n", Bold(q.Title), ThreadStatus(q.Status))
	fmt.Fprintf(&b, "%s\n", Dim(fmt.Sprintf("#%d · %s · %s", q.ID, q.Category, q.Date)))
	if q.Context != "" {
		fmt.Fprintf(&b, "\n%s\n", q.Context)
	}
	if len(q.Replies) == 0 {
		fmt.Fprintf(&b, "\n%s\n", Dim("No replies yet."))
		return b.String()
	}
	for _, r := range q.Replies {
		fmt.Fprintf(&b, "\n%s %s\n%s\n", Bold(r.Author), Dim(r.Date), r.Content)
	}
	return b.String()
}

// FormatPhotos renders the photo gallery as a table.
func FormatPhotos(photos []record.Photo) string {
	rows := make([][]string, 0, len(photos))
	for _, p := range photos {
		rows = append(rows, []string{id(p.ID), p.Date, p.Tag, Truncate(p.Desc, 40), p.Src})
	}
	return RenderTable([]string{"ID", "DATE", "TAG", "CAPTION", "SOURCE"}, rows)
}

// FormatDocuments renders the document tree, one block per folder.
func FormatDocuments(tree document.Tree) string {
	var b strings.Builder
	for i, folder := range tree {
		if i > 0 {
			b.WriteString("\n")
		}
		fmt.Fprintf(&b, "%s %s\n", Bold(folder.Name), Dim("("+folder.ID+")"))
		if len(folder.Items) == 0 {
			fmt.Fprintf(&b, "  %s\n", Dim("empty"))
			continue
		}
		rows := make([][]string, 0, len(folder.Items))
		for _, f := range folder.Items {
			rows = append(rows, []string{f.ID, f.Name, f.Type, fileSize(f.Size), f.Author, f.Date})
		}
		table := RenderTable([]string{"ID", "NAME", "TYPE", "SIZE", "AUTHOR", "DATE"}, rows)
		for _, line := range strings.Split(strings.TrimRight(table, "\n"), "\n") {
			fmt.Fprintf(&b, "  %s\n", line)
		}
	}
	return b.String()
}

func fileSize(n int64) string {
	if n <= 0 {
		return "-"
	}
	return humanize.Bytes(uint64(n))
}

// FormatProjects renders the project catalogue, marking the current one.
func FormatProjects(projects []project.Project, current string) string {
	rows := make([][]string, 0, len(projects))
	for _, p := range projects {
		marker := ""
		if p.ID == current {
			marker = StyleGreen.Render("●")
		}
		rows = append(rows, []string{marker, p.ID, p.Name, p.Status, p.Location, p.LastUpdated})
	}
	return RenderTable([]string{"", "ID", "NAME", "STATUS", "LOCATION", "UPDATED"}, rows)
}

// FormatProject renders the overview of one project.
func FormatProject(p project.Project) string {
	box := lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(ColorDim).
		Padding(0, 2)

	var b strings.Builder
	fmt.Fprintf(&b, "%s\n", Header(p.Name))
	field := func(label, value string) {
		if value != "" {
			fmt.Fprintf(&b, "%s %s\n", Dim(label+":"), value)
		}
	}
	field("Status", p.Status)
	field("Location", p.Location)
	field("Updated", p.LastUpdated)
	field("Summary", p.Summary)
	field("Focus", p.Focus)
	field("Coordination", p.Coordination)
	return box.Render(strings.TrimRight(b.String(), "\n")) + "\n"
}

// FormatAlerts renders failed background writes.
func FormatAlerts(alerts []alert.Alert) string {
	var b strings.Builder
	for _, a := range alerts {
		fmt.Fprintf(&b, "%s %s %s\n", StyleRed.Render("!"), a.Message,
			Dim(fmt.Sprintf("(%s %s, %s)", a.Operation, a.Target, humanize.Time(a.At))))
	}
	return b.String()
}
