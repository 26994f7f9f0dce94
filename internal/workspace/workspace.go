// Package workspace is the single entry point a client session uses to read
// and change one project's data. It owns one synchronizer per collection plus
// the document tree synchronizer, and stamps the signed-in name on writes.
package workspace

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/emgroup/sitesync/internal/alert"
	"github.com/emgroup/sitesync/internal/auth"
	"github.com/emgroup/sitesync/internal/blob"
	"github.com/emgroup/sitesync/internal/collection"
	"github.com/emgroup/sitesync/internal/doctree"
	"github.com/emgroup/sitesync/internal/domain/document"
	"github.com/emgroup/sitesync/internal/domain/project"
	"github.com/emgroup/sitesync/internal/domain/record"
	"github.com/emgroup/sitesync/internal/idgen"
	"github.com/emgroup/sitesync/internal/qa"
	"github.com/emgroup/sitesync/internal/store"
)

// Documents is the store document name of the tree under a project.
const Documents = "documents"

// Options configures one session.
type Options struct {
	ProjectID string
	Identity  auth.Identity
	// Optimistic shows added and changed records before the store confirms them.
	Optimistic bool
	// VersionedDocuments writes the document tree with compare-and-swap.
	VersionedDocuments bool
	WriteTimeout       time.Duration
	// Now stamps dates and drives id allocation. Defaults to time.Now.
	Now func() time.Time
	// Alerts receives write failures. Defaults to a new Recorder.
	Alerts *alert.Recorder
}

// Workspace is one project session.
type Workspace struct {
	projectID  string
	identity   auth.Identity
	projects   *project.Service
	uploads    blob.Uploader
	alerts     *alert.Recorder
	logger     *slog.Logger
	now        func() time.Time
	optimistic bool

	updates   *collection.Synchronizer[record.Update]
	actions   *collection.Synchronizer[record.Action]
	questions *collection.Synchronizer[record.QuestionThread]
	photos    *collection.Synchronizer[record.Photo]
	documents *doctree.Synchronizer
	replies   *qa.Merger

	mu     sync.Mutex
	open   bool
	closed bool
}

// New wires a workspace over st. projects and uploads may be nil, which
// disables the project and upload operations.
func New(st store.Store, projects *project.Service, uploads blob.Uploader, opts Options, logger *slog.Logger) (*Workspace, error) {
	if st == nil {
		return nil, fmt.Errorf("%w: store is required", ErrInvalidInput)
	}
	if strings.TrimSpace(opts.ProjectID) == "" {
		return nil, fmt.Errorf("%w: project id is required", ErrInvalidInput)
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	logger = logger.With("project", opts.ProjectID)
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Alerts == nil {
		opts.Alerts = alert.NewRecorder(0, logger)
	}

	ids := idgen.New(idgen.Clock(opts.Now))
	w := &Workspace{
		projectID:  opts.ProjectID,
		identity:   opts.Identity,
		projects:   projects,
		uploads:    uploads,
		alerts:     opts.Alerts,
		logger:     logger,
		now:        opts.Now,
		optimistic: opts.Optimistic,
	}

	path := func(name string) string { return store.CollectionPath(opts.ProjectID, name) }
	w.updates = collection.New(st, collection.Config[record.Update]{
		Name:         record.CollectionUpdates,
		Path:         path(record.CollectionUpdates),
		Order:        collection.NewestFirst,
		Seed:         record.SeedUpdates(),
		Optimistic:   opts.Optimistic,
		WriteTimeout: opts.WriteTimeout,
	}, ids, w.alerts, logger)
	w.actions = collection.New(st, collection.Config[record.Action]{
		Name:         record.CollectionActions,
		Path:         path(record.CollectionActions),
		Order:        collection.StoreOrder,
		Seed:         record.SeedActions(),
		Prepare:      record.PrepareAction,
		Optimistic:   opts.Optimistic,
		WriteTimeout: opts.WriteTimeout,
	}, ids, w.alerts, logger)
	w.questions = collection.New(st, collection.Config[record.QuestionThread]{
		Name:         record.CollectionQuestions,
		Path:         path(record.CollectionQuestions),
		Order:        collection.NewestFirst,
		Seed:         record.SeedQuestions(),
		Prepare:      record.PrepareQuestion,
		Optimistic:   opts.Optimistic,
		WriteTimeout: opts.WriteTimeout,
	}, ids, w.alerts, logger)
	w.photos = collection.New(st, collection.Config[record.Photo]{
		Name:         record.CollectionPhotos,
		Path:         path(record.CollectionPhotos),
		Order:        collection.NewestFirst,
		Seed:         record.SeedPhotos(),
		Optimistic:   opts.Optimistic,
		WriteTimeout: opts.WriteTimeout,
	}, ids, w.alerts, logger)
	w.documents = doctree.New(st, doctree.Config{
		Path:         store.DocumentPath(opts.ProjectID, Documents),
		Seed:         document.SeedTree(),
		Versioned:    opts.VersionedDocuments,
		WriteTimeout: opts.WriteTimeout,
		Now:          opts.Now,
	}, ids, w.alerts, logger)
	w.replies = qa.NewMerger(w.questions, opts.Now)
	return w, nil
}

// Open subscribes every collection and the document tree. On failure the
// subscriptions opened so far are closed again.
func (w *Workspace) Open(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return ErrNotOpen
	}
	if w.open {
		return nil
	}

	subs := []struct {
		name string
		fn   func(context.Context) error
	}{
		{record.CollectionUpdates, w.updates.Subscribe},
		{record.CollectionActions, w.actions.Subscribe},
		{record.CollectionQuestions, w.questions.Subscribe},
		{record.CollectionPhotos, w.photos.Subscribe},
		{Documents, w.documents.Subscribe},
	}
	for _, sub := range subs {
		if err := sub.fn(ctx); err != nil {
			w.closeAll()
			w.closed = true
			return fmt.Errorf("subscribing %s: %w", sub.name, err)
		}
	}
	w.open = true
	w.logger.Info("workspace opened", "user", w.identity.Name, "optimistic", w.optimistic)
	return nil
}

// Close ends every subscription and waits for in-flight writes. It is safe to
// call more than once.
func (w *Workspace) Close() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return
	}
	w.closed = true
	w.open = false
	w.closeAll()
	w.logger.Info("workspace closed")
}

func (w *Workspace) closeAll() {
	w.updates.Close()
	w.actions.Close()
	w.questions.Close()
	w.photos.Close()
	w.documents.Close()
}

// Watch calls fn with the name of each collection ("documents" for the tree)
// whose visible contents change. The returned func stops the calls.
func (w *Workspace) Watch(fn func(name string)) func() {
	cancels := []func(){
		w.updates.Watch(func([]record.Update) { fn(record.CollectionUpdates) }),
		w.actions.Watch(func([]record.Action) { fn(record.CollectionActions) }),
		w.questions.Watch(func([]record.QuestionThread) { fn(record.CollectionQuestions) }),
		w.photos.Watch(func([]record.Photo) { fn(record.CollectionPhotos) }),
		w.documents.Watch(func(document.Tree) { fn(Documents) }),
	}
	return func() {
		for _, cancel := range cancels {
			cancel()
		}
	}
}

// Wait blocks until every background write started so far has finished.
func (w *Workspace) Wait() {
	w.updates.Wait()
	w.actions.Wait()
	w.questions.Wait()
	w.photos.Wait()
	w.documents.Wait()
}

func (w *Workspace) ready() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if !w.open {
		return ErrNotOpen
	}
	return nil
}

// ProjectID returns the project this session is bound to.
func (w *Workspace) ProjectID() string { return w.projectID }

// Identity returns the signed-in participant.
func (w *Workspace) Identity() auth.Identity { return w.identity }

func (w *Workspace) today() string {
	return record.FormatDate(w.now())
}

// Updates

// AddUpdate posts a site update authored by the signed-in user.
func (w *Workspace) AddUpdate(ctx context.Context, content, tag string) (int64, error) {
	if err := w.ready(); err != nil {
		return 0, err
	}
	u := record.Update{
		Date:    w.today(),
		Author:  w.identity.Name,
		Content: strings.TrimSpace(content),
		Tag:     strings.TrimSpace(tag),
	}
	if err := record.ValidateUpdate(u); err != nil {
		return 0, err
	}
	return w.updates.Add(ctx, u), nil
}

// EditUpdate replaces the content of an update.
func (w *Workspace) EditUpdate(ctx context.Context, id int64, content string) error {
	if err := w.ready(); err != nil {
		return err
	}
	content = strings.TrimSpace(content)
	if err := record.ValidateUpdate(record.Update{Content: content}); err != nil {
		return err
	}
	if _, ok := w.updates.Get(id); !ok {
		return fmt.Errorf("%w: update %d", record.ErrRecordNotFound, id)
	}
	w.updates.Update(ctx, id, store.Patch{"content": content})
	return nil
}

// DeleteUpdate removes an update. Unknown ids are ignored.
func (w *Workspace) DeleteUpdate(ctx context.Context, id int64) error {
	if err := w.ready(); err != nil {
		return err
	}
	w.updates.Delete(ctx, id)
	return nil
}

// Updates returns the visible updates, newest first.
func (w *Workspace) Updates() []record.Update { return w.updates.Items() }

// Actions

// AddAction creates an open action item.
func (w *Workspace) AddAction(ctx context.Context, task, assignedTo, dueDate string) (int64, error) {
	if err := w.ready(); err != nil {
		return 0, err
	}
	a := record.Action{
		Task:       strings.TrimSpace(task),
		AssignedTo: strings.TrimSpace(assignedTo),
		DueDate:    strings.TrimSpace(dueDate),
	}
	if err := record.ValidateAction(a); err != nil {
		return 0, err
	}
	return w.actions.Add(ctx, a), nil
}

// UpdateActionStatus moves an action to Open or Closed.
func (w *Workspace) UpdateActionStatus(ctx context.Context, id int64, status record.ActionStatus) error {
	if err := w.ready(); err != nil {
		return err
	}
	if err := record.ValidateActionStatus(status); err != nil {
		return err
	}
	if _, ok := w.actions.Get(id); !ok {
		return fmt.Errorf("%w: action %d", record.ErrRecordNotFound, id)
	}
	w.actions.Update(ctx, id, store.Patch{"status": status})
	return nil
}

// DeleteAction removes an action. Unknown ids are ignored.
func (w *Workspace) DeleteAction(ctx context.Context, id int64) error {
	if err := w.ready(); err != nil {
		return err
	}
	w.actions.Delete(ctx, id)
	return nil
}

// Actions returns the visible actions in creation order.
func (w *Workspace) Actions() []record.Action { return w.actions.Items() }

// Questions

// AddQuestion opens a new Q&A thread.
func (w *Workspace) AddQuestion(ctx context.Context, title, category, background string) (int64, error) {
	if err := w.ready(); err != nil {
		return 0, err
	}
	q := record.QuestionThread{
		Title:    strings.TrimSpace(title),
		Category: strings.TrimSpace(category),
		Context:  strings.TrimSpace(background),
		Date:     w.today(),
	}
	if err := record.ValidateQuestion(q); err != nil {
		return 0, err
	}
	return w.questions.Add(ctx, q), nil
}

// AddReply appends a reply by the signed-in user and marks the thread answered.
func (w *Workspace) AddReply(ctx context.Context, threadID int64, content string) (record.Reply, error) {
	if err := w.ready(); err != nil {
		return record.Reply{}, err
	}
	return w.replies.AddReply(ctx, threadID, strings.TrimSpace(content), w.identity.Name)
}

// DeleteQuestion removes a thread with its replies. Unknown ids are ignored.
func (w *Workspace) DeleteQuestion(ctx context.Context, id int64) error {
	if err := w.ready(); err != nil {
		return err
	}
	w.questions.Delete(ctx, id)
	return nil
}

// Questions returns the visible threads, newest first.
func (w *Workspace) Questions() []record.QuestionThread { return w.questions.Items() }

// Question returns one thread.
func (w *Workspace) Question(id int64) (record.QuestionThread, bool) { return w.questions.Get(id) }

// Photos

// AddPhoto records a photo whose image is already hosted at src.
func (w *Workspace) AddPhoto(ctx context.Context, src, desc, tag string) (int64, error) {
	if err := w.ready(); err != nil {
		return 0, err
	}
	p := record.Photo{
		Src:    strings.TrimSpace(src),
		Desc:   strings.TrimSpace(desc),
		Tag:    strings.TrimSpace(tag),
		Date:   w.today(),
		Author: w.identity.Name,
	}
	if err := record.ValidatePhoto(p); err != nil {
		return 0, err
	}
	return w.photos.Add(ctx, p), nil
}

// UploadPhoto stores the image through the uploader and records the photo.
func (w *Workspace) UploadPhoto(ctx context.Context, name string, r io.Reader, desc, tag string) (int64, error) {
	if err := w.ready(); err != nil {
		return 0, err
	}
	if w.uploads == nil {
		return 0, ErrUploadsDisabled
	}
	obj, err := w.uploads.Upload(ctx, name, r)
	if err != nil {
		return 0, fmt.Errorf("uploading photo: %w", err)
	}
	return w.AddPhoto(ctx, obj.URL, desc, tag)
}

// DeletePhoto removes a photo. Unknown ids are ignored.
func (w *Workspace) DeletePhoto(ctx context.Context, id int64) error {
	if err := w.ready(); err != nil {
		return err
	}
	w.photos.Delete(ctx, id)
	return nil
}

// Photos returns the visible photos, newest first.
func (w *Workspace) Photos() []record.Photo { return w.photos.Items() }

// Documents

// Documents returns the current document tree.
func (w *Workspace) Documents() document.Tree { return w.documents.Tree() }

// AddFile places file at the top of a folder, authored by the signed-in user.
func (w *Workspace) AddFile(ctx context.Context, folderID string, file document.File) (document.File, error) {
	if err := w.ready(); err != nil {
		return document.File{}, err
	}
	return w.documents.AddFile(ctx, folderID, file, w.identity.Name)
}

// UploadDocument stores the contents through the uploader and adds the file.
func (w *Workspace) UploadDocument(ctx context.Context, folderID, name string, r io.Reader) (document.File, error) {
	if err := w.ready(); err != nil {
		return document.File{}, err
	}
	if w.uploads == nil {
		return document.File{}, ErrUploadsDisabled
	}
	if _, ok := w.documents.Tree().Folder(folderID); !ok {
		return document.File{}, fmt.Errorf("%w: %s", document.ErrFolderNotFound, folderID)
	}
	obj, err := w.uploads.Upload(ctx, name, r)
	if err != nil {
		return document.File{}, fmt.Errorf("uploading document: %w", err)
	}
	return w.AddFile(ctx, folderID, document.File{
		Name: obj.Name,
		Type: obj.Type,
		Size: obj.Size,
		URL:  obj.URL,
	})
}

// DeleteFile removes a file from the tree. Unknown ids are ignored.
func (w *Workspace) DeleteFile(ctx context.Context, fileID string) error {
	if err := w.ready(); err != nil {
		return err
	}
	return w.documents.DeleteFile(ctx, fileID)
}

// AddFolder appends an empty folder.
func (w *Workspace) AddFolder(ctx context.Context, name string) (document.Folder, error) {
	if err := w.ready(); err != nil {
		return document.Folder{}, err
	}
	return w.documents.AddFolder(ctx, name)
}

// Projects

// Project returns the details of this session's project.
func (w *Workspace) Project(ctx context.Context) (*project.Project, error) {
	if w.projects == nil {
		return nil, project.ErrProjectNotFound
	}
	return w.projects.Get(ctx, w.projectID)
}

// Projects lists every project, for project selection.
func (w *Workspace) Projects(ctx context.Context) ([]project.Project, error) {
	if w.projects == nil {
		return nil, nil
	}
	return w.projects.List(ctx)
}

// UpdateProjectDetails edits this session's project.
func (w *Workspace) UpdateProjectDetails(ctx context.Context, details project.Details) (*project.Project, error) {
	if w.projects == nil {
		return nil, project.ErrProjectNotFound
	}
	return w.projects.UpdateDetails(ctx, w.projectID, details)
}

// Alerts

// Alerts returns recent write failures, oldest first.
func (w *Workspace) Alerts() []alert.Alert { return w.alerts.Recent() }

// ClearAlerts dismisses every alert.
func (w *Workspace) ClearAlerts() { w.alerts.Clear() }
