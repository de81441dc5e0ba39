// Package checkpoint keeps named snapshots of a document's markers in a
// per-document git repository, one JSON file per page.
package checkpoint

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	git "github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"

	"floorplan/api/internal/annotation"
)

var (
	ErrNoCheckpoints      = errors.New("document has no checkpoints")
	ErrCheckpointNotFound = errors.New("checkpoint not found")
)

const pagesDir = "pages"

// Snapshot is the marker collection of every page at one point in time.
type Snapshot map[int][]annotation.Marker

// Pages returns the snapshot's pages in ascending order.
func (s Snapshot) Pages() []int {
	pages := make([]int, 0, len(s))
	for page := range s {
		pages = append(pages, page)
	}
	sort.Ints(pages)
	return pages
}

type Info struct {
	Hash      string    `json:"hash"`
	Name      string    `json:"name"`
	Author    string    `json:"author"`
	CreatedAt time.Time `json:"createdAt"`
}

// PageChange counts how a page differs between two snapshots.
type PageChange struct {
	Page    int `json:"page"`
	Added   int `json:"added"`
	Removed int `json:"removed"`
	Changed int `json:"changed"`
}

type Service struct {
	baseDir string
	lockMu  sync.Mutex
	locks   map[string]*sync.Mutex
}

func New(baseDir string) *Service {
	return &Service{
		baseDir: baseDir,
		locks:   make(map[string]*sync.Mutex),
	}
}

// Save commits the snapshot under the given name. Pages missing from the
// snapshot are removed from the tree. Saving an unchanged snapshot still
// records a checkpoint.
func (s *Service) Save(documentID, name, author string, snapshot Snapshot) (Info, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return Info{}, fmt.Errorf("checkpoint name is required")
	}
	lock := s.documentLock(documentID)
	lock.Lock()
	defer lock.Unlock()

	repo, err := s.openOrInit(documentID)
	if err != nil {
		return Info{}, err
	}
	worktree, err := repo.Worktree()
	if err != nil {
		return Info{}, fmt.Errorf("open worktree: %w", err)
	}

	root := filepath.Join(worktree.Filesystem.Root(), pagesDir)
	if err := os.RemoveAll(root); err != nil {
		return Info{}, fmt.Errorf("clear pages: %w", err)
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return Info{}, fmt.Errorf("create pages dir: %w", err)
	}
	for _, page := range snapshot.Pages() {
		markers := snapshot[page]
		if len(markers) == 0 {
			continue
		}
		payload, err := json.MarshalIndent(markers, "", "  ")
		if err != nil {
			return Info{}, fmt.Errorf("marshal page %d: %w", page, err)
		}
		file := filepath.Join(root, strconv.Itoa(page)+".json")
		if err := os.WriteFile(file, append(payload, '\n'), 0o644); err != nil {
			return Info{}, fmt.Errorf("write page %d: %w", page, err)
		}
	}

	if err := worktree.AddWithOptions(&git.AddOptions{All: true}); err != nil {
		return Info{}, fmt.Errorf("git add pages: %w", err)
	}
	if author == "" {
		author = "floorplan"
	}
	hash, err := worktree.Commit(name, &git.CommitOptions{
		AllowEmptyCommits: true,
		Author: &object.Signature{
			Name:  author,
			Email: fmt.Sprintf("%s@local.floorplan.dev", sanitizeEmail(author)),
			When:  time.Now(),
		},
	})
	if err != nil {
		return Info{}, fmt.Errorf("commit checkpoint: %w", err)
	}
	commitObj, err := repo.CommitObject(hash)
	if err != nil {
		return Info{}, fmt.Errorf("read commit object: %w", err)
	}
	return toInfo(commitObj), nil
}

// History lists checkpoints, newest first.
func (s *Service) History(documentID string, limit int) ([]Info, error) {
	lock := s.documentLock(documentID)
	lock.Lock()
	defer lock.Unlock()

	repo, err := git.PlainOpen(s.repoPath(documentID))
	if errors.Is(err, git.ErrRepositoryNotExists) {
		return []Info{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("open repo: %w", err)
	}
	head, err := repo.Head()
	if errors.Is(err, plumbing.ErrReferenceNotFound) {
		return []Info{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("resolve head: %w", err)
	}

	iter, err := repo.Log(&git.LogOptions{From: head.Hash()})
	if err != nil {
		return nil, fmt.Errorf("read log: %w", err)
	}
	defer iter.Close()

	items := make([]Info, 0)
	err = iter.ForEach(func(commitObj *object.Commit) error {
		items = append(items, toInfo(commitObj))
		if limit > 0 && len(items) >= limit {
			return io.EOF
		}
		return nil
	})
	if err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("iterate log: %w", err)
	}
	return items, nil
}

// Load reads the snapshot of a checkpoint. An empty hash loads the latest.
func (s *Service) Load(documentID, hash string) (Snapshot, Info, error) {
	lock := s.documentLock(documentID)
	lock.Lock()
	defer lock.Unlock()

	repo, err := git.PlainOpen(s.repoPath(documentID))
	if errors.Is(err, git.ErrRepositoryNotExists) {
		return nil, Info{}, ErrNoCheckpoints
	}
	if err != nil {
		return nil, Info{}, fmt.Errorf("open repo: %w", err)
	}

	var resolved plumbing.Hash
	if hash == "" {
		head, err := repo.Head()
		if err != nil {
			return nil, Info{}, ErrNoCheckpoints
		}
		resolved = head.Hash()
	} else if resolved, err = resolveHash(repo, hash); err != nil {
		return nil, Info{}, err
	}

	commitObj, err := repo.CommitObject(resolved)
	if errors.Is(err, plumbing.ErrObjectNotFound) {
		return nil, Info{}, fmt.Errorf("%w: %s", ErrCheckpointNotFound, hash)
	}
	if err != nil {
		return nil, Info{}, fmt.Errorf("read commit %s: %w", hash, err)
	}
	snapshot, err := readSnapshot(commitObj)
	if err != nil {
		return nil, Info{}, err
	}
	return snapshot, toInfo(commitObj), nil
}

// Compare counts per-page differences between two snapshots, matching
// markers by id.
func Compare(from, to Snapshot) []PageChange {
	pages := map[int]bool{}
	for page := range from {
		pages[page] = true
	}
	for page := range to {
		pages[page] = true
	}
	ordered := make([]int, 0, len(pages))
	for page := range pages {
		ordered = append(ordered, page)
	}
	sort.Ints(ordered)

	changes := make([]PageChange, 0)
	for _, page := range ordered {
		before := map[string]annotation.Marker{}
		for _, m := range from[page] {
			before[m.ID] = m
		}
		change := PageChange{Page: page}
		seen := map[string]bool{}
		for _, m := range to[page] {
			seen[m.ID] = true
			prev, ok := before[m.ID]
			switch {
			case !ok:
				change.Added++
			case !annotation.Diff(prev, m).IsEmpty():
				change.Changed++
			}
		}
		for id := range before {
			if !seen[id] {
				change.Removed++
			}
		}
		if change.Added+change.Removed+change.Changed > 0 {
			changes = append(changes, change)
		}
	}
	return changes
}

func (s *Service) openOrInit(documentID string) (*git.Repository, error) {
	repoPath := s.repoPath(documentID)
	repo, err := git.PlainOpen(repoPath)
	if err == nil {
		return repo, nil
	}
	if !errors.Is(err, git.ErrRepositoryNotExists) {
		return nil, fmt.Errorf("open repo: %w", err)
	}
	if err := os.MkdirAll(repoPath, 0o755); err != nil {
		return nil, fmt.Errorf("create repo dir: %w", err)
	}
	repo, err = git.PlainInit(repoPath, false)
	if err != nil {
		return nil, fmt.Errorf("init repo: %w", err)
	}
	if err := repo.Storer.SetReference(plumbing.NewSymbolicReference(plumbing.HEAD, plumbing.NewBranchReferenceName("main"))); err != nil {
		return nil, fmt.Errorf("set HEAD to main: %w", err)
	}
	return repo, nil
}

func (s *Service) repoPath(documentID string) string {
	return filepath.Join(s.baseDir, documentID)
}

func (s *Service) documentLock(documentID string) *sync.Mutex {
	s.lockMu.Lock()
	defer s.lockMu.Unlock()
	lock, ok := s.locks[documentID]
	if ok {
		return lock
	}
	lock = &sync.Mutex{}
	s.locks[documentID] = lock
	return lock
}

func readSnapshot(commitObj *object.Commit) (Snapshot, error) {
	files, err := commitObj.Files()
	if err != nil {
		return nil, fmt.Errorf("list commit files: %w", err)
	}
	defer files.Close()

	snapshot := Snapshot{}
	err = files.ForEach(func(file *object.File) error {
		dir, base := path.Split(file.Name)
		if dir != pagesDir+"/" || !strings.HasSuffix(base, ".json") {
			return nil
		}
		page, err := strconv.Atoi(strings.TrimSuffix(base, ".json"))
		if err != nil {
			return nil
		}
		contents, err := file.Contents()
		if err != nil {
			return fmt.Errorf("read %s: %w", file.Name, err)
		}
		var markers []annotation.Marker
		if err := json.Unmarshal([]byte(contents), &markers); err != nil {
			return fmt.Errorf("decode %s: %w", file.Name, err)
		}
		snapshot[page] = markers
		return nil
	})
	if err != nil {
		return nil, err
	}
	return snapshot, nil
}

func toInfo(commitObj *object.Commit) Info {
	return Info{
		Hash:      commitObj.Hash.String()[:7],
		Name:      strings.TrimSpace(commitObj.Message),
		Author:    commitObj.Author.Name,
		CreatedAt: commitObj.Author.When,
	}
}

func sanitizeEmail(input string) string {
	out := make([]rune, 0, len(input))
	for _, r := range input {
		if (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') {
			out = append(out, r)
			continue
		}
		if r == ' ' || r == '-' || r == '_' {
			out = append(out, '.')
		}
	}
	if len(out) == 0 {
		return "user"
	}
	return string(out)
}

func resolveHash(repo *git.Repository, hash string) (plumbing.Hash, error) {
	if len(hash) == 40 {
		return plumbing.NewHash(hash), nil
	}
	resolved, err := repo.ResolveRevision(plumbing.Revision(hash))
	if err != nil {
		return plumbing.ZeroHash, fmt.Errorf("%w: %s", ErrCheckpointNotFound, hash)
	}
	return *resolved, nil
}
