package record

import "time"

// Collection names under a project.
const (
	CollectionUpdates   = "updates"
	CollectionActions   = "actions"
	CollectionQuestions = "questions"
	CollectionPhotos    = "photos"
)

// DateLayout renders record dates the way stakeholders write them ("14 Dec 2025").
const DateLayout = "02 Jan 2006"

// FormatDate renders t with DateLayout.
func FormatDate(t time.Time) string {
	return t.Format(DateLayout)
}

// ActionStatus is the workflow state of an action item.
type ActionStatus string

const (
	ActionOpen   ActionStatus = "Open"
	ActionClosed ActionStatus = "Closed"
)

// ThreadStatus is the state of a Q&A thread.
type ThreadStatus string

const (
	ThreadOpen     ThreadStatus = "Open"
	ThreadAnswered ThreadStatus = "Answered"
)

// Update is a chronological site update.
type Update struct {
	ID      int64  `json:"id"`
	Date    string `json:"date"`
	Author  string `json:"author"`
	Content string `json:"content"`
	Tag     string `json:"tag"`
}

func (u Update) GetID() int64 { return u.ID }

func (u Update) WithID(id int64) Update {
	u.ID = id
	return u
}

// Action is an assigned task with a due date.
type Action struct {
	ID         int64        `json:"id"`
	Task       string       `json:"task"`
	AssignedTo string       `json:"assignedTo"`
	DueDate    string       `json:"dueDate"`
	Status     ActionStatus `json:"status"`
}

func (a Action) GetID() int64 { return a.ID }

func (a Action) WithID(id int64) Action {
	a.ID = id
	return a
}

// Reply belongs to exactly one thread and has no identity of its own.
type Reply struct {
	Author  string `json:"author"`
	Date    string `json:"date"`
	Content string `json:"content"`
}

// QuestionThread is a question (RFI, access query, ...) with its replies.
type QuestionThread struct {
	ID       int64        `json:"id"`
	Title    string       `json:"title"`
	Category string       `json:"category"`
	Context  string       `json:"context"`
	Status   ThreadStatus `json:"status"`
	Date     string       `json:"date"`
	Replies  []Reply      `json:"replies"`
}

func (q QuestionThread) GetID() int64 { return q.ID }

func (q QuestionThread) WithID(id int64) QuestionThread {
	q.ID = id
	return q
}

// Photo is a site photo. Src is the uploaded image URL.
type Photo struct {
	ID     int64  `json:"id"`
	Src    string `json:"src"`
	Desc   string `json:"desc"`
	Tag    string `json:"tag"`
	Date   string `json:"date"`
	Author string `json:"author,omitempty"`
}

func (p Photo) GetID() int64 { return p.ID }

func (p Photo) WithID(id int64) Photo {
	p.ID = id
	return p
}

// PrepareAction applies the defaults of a new action.
func PrepareAction(a Action) Action {
	a.Status = ActionOpen
	return a
}

// PrepareQuestion applies the defaults of a new thread.
func PrepareQuestion(q QuestionThread) QuestionThread {
	q.Status = ThreadOpen
	q.Replies = []Reply{}
	return q
}
