// Package document models the project document index: an ordered list of
// folders, each holding an ordered list of files. The whole tree is persisted
// as one value, so every operation here returns a new tree and leaves its
// receiver untouched.
package document

import (
	"encoding/json"
	"fmt"
	"path/filepath"
	"strings"
)

// File is one entry in a folder.
type File struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Type   string `json:"type"`
	Author string `json:"author"`
	Date   string `json:"date"`
	Size   int64  `json:"size,omitempty"`
	URL    string `json:"url,omitempty"`
}

// Folder groups files. Items are newest first.
type Folder struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Items []File `json:"items"`
}

// Tree is the full document index.
type Tree []Folder

// TypeFromName derives the display type from a file name's extension.
func TypeFromName(name string) string {
	ext := strings.TrimPrefix(filepath.Ext(name), ".")
	if ext == "" {
		return "FILE"
	}
	return strings.ToUpper(ext)
}

// Clone returns a deep copy of t.
func (t Tree) Clone() Tree {
	if t == nil {
		return nil
	}
	out := make(Tree, len(t))
	for i, folder := range t {
		out[i] = Folder{ID: folder.ID, Name: folder.Name, Items: append([]File{}, folder.Items...)}
	}
	return out
}

// Folder returns the folder with id.
func (t Tree) Folder(id string) (Folder, bool) {
	for _, folder := range t {
		if folder.ID == id {
			return folder, true
		}
	}
	return Folder{}, false
}

// FindFile returns the file with id and the id of its folder.
func (t Tree) FindFile(id string) (File, string, bool) {
	for _, folder := range t {
		for _, file := range folder.Items {
			if file.ID == id {
				return file, folder.ID, true
			}
		}
	}
	return File{}, "", false
}

// FileCount returns the number of files across all folders.
func (t Tree) FileCount() int {
	n := 0
	for _, folder := range t {
		n += len(folder.Items)
	}
	return n
}

// AddFile returns a tree with file placed first in the folder.
func (t Tree) AddFile(folderID string, file File) (Tree, error) {
	if err := ValidateFile(file); err != nil {
		return nil, err
	}
	out := t.Clone()
	for i := range out {
		if out[i].ID != folderID {
			continue
		}
		items := make([]File, 0, len(out[i].Items)+1)
		items = append(items, file)
		out[i].Items = append(items, out[i].Items...)
		return out, nil
	}
	return nil, fmt.Errorf("%w: %s", ErrFolderNotFound, folderID)
}

// DeleteFile returns a tree without the file. Removing a file that is not
// present returns an unchanged copy and false.
func (t Tree) DeleteFile(fileID string) (Tree, bool) {
	out := t.Clone()
	for i := range out {
		for j, file := range out[i].Items {
			if file.ID == fileID {
				out[i].Items = append(out[i].Items[:j], out[i].Items[j+1:]...)
				return out, true
			}
		}
	}
	return out, false
}

// AddFolder returns a tree with folder appended.
func (t Tree) AddFolder(folder Folder) (Tree, error) {
	if strings.TrimSpace(folder.Name) == "" {
		return nil, fmt.Errorf("%w: folder name is required", ErrInvalidInput)
	}
	if _, exists := t.Folder(folder.ID); exists {
		return nil, fmt.Errorf("%w: %s", ErrDuplicateFolder, folder.ID)
	}
	if folder.Items == nil {
		folder.Items = []File{}
	}
	out := t.Clone()
	return append(out, folder), nil
}

// ValidateFile checks a file before it is added.
func ValidateFile(file File) error {
	if strings.TrimSpace(file.ID) == "" {
		return fmt.Errorf("%w: file id is required", ErrInvalidInput)
	}
	if strings.TrimSpace(file.Name) == "" {
		return fmt.Errorf("%w: file name is required", ErrInvalidInput)
	}
	return nil
}

// Encode serializes t for the store.
func Encode(t Tree) ([]byte, error) {
	if t == nil {
		t = Tree{}
	}
	return json.Marshal(t)
}

// Decode parses a stored tree.
func Decode(data []byte) (Tree, error) {
	var t Tree
	if err := json.Unmarshal(data, &t); err != nil {
		return nil, fmt.Errorf("decode document tree: %w", err)
	}
	for i := range t {
		if t[i].Items == nil {
			t[i].Items = []File{}
		}
	}
	return t, nil
}
