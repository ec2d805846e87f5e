package store

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/go-git/go-git/v6"
	"github.com/go-git/go-git/v6/config"
	"github.com/go-git/go-git/v6/plumbing"
	"github.com/go-git/go-git/v6/plumbing/object"
	"github.com/go-git/go-git/v6/plumbing/transport"
	"github.com/go-git/go-git/v6/plumbing/transport/http"
	log "github.com/sirupsen/logrus"
)

const gitStoreRecordDir = "credentials"

// GitStoreConfig configures a git-backed credential store.
type GitStoreConfig struct {
	// RepoDir is the local working tree. It is cloned from Remote or initialized when missing.
	RepoDir string
	// Remote is optional. When set, every append is pushed.
	Remote   string
	Username string
	Password string
	// AuthorName and AuthorEmail sign the commits.
	AuthorName  string
	AuthorEmail string
}

// GitStore writes records as JSON files inside a git working tree and commits each append.
type GitStore struct {
	mu          sync.Mutex
	cfg         GitStoreConfig
	repo        *git.Repository
	initialized bool
}

// NewGitStore creates a git-backed store. The repository is prepared by Initialize.
func NewGitStore(cfg GitStoreConfig) *GitStore {
	cfg.RepoDir = strings.TrimSpace(cfg.RepoDir)
	cfg.Remote = strings.TrimSpace(cfg.Remote)
	if strings.TrimSpace(cfg.AuthorName) == "" {
		cfg.AuthorName = "oauth-callback"
	}
	if strings.TrimSpace(cfg.AuthorEmail) == "" {
		cfg.AuthorEmail = "oauth-callback@local"
	}
	return &GitStore{cfg: cfg}
}

// RecordDir returns the directory inside the working tree that holds record files.
func (s *GitStore) RecordDir() string {
	return filepath.Join(s.cfg.RepoDir, gitStoreRecordDir)
}

// Initialize clones, opens or initializes the repository.
func (s *GitStore) Initialize(_ context.Context) error {
	if s.cfg.RepoDir == "" {
		return fmt.Errorf("git store: repository directory not configured")
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	repo, err := s.openOrCreate()
	if err != nil {
		return err
	}
	if err = os.MkdirAll(s.RecordDir(), 0o700); err != nil {
		return fmt.Errorf("git store: create record dir: %w", err)
	}
	s.repo = repo
	s.initialized = true
	return nil
}

// AddAccount writes the record file and commits it. The local commit is the durable write:
// a failed commit removes the file again, a failed push is logged and retried by the next append.
func (s *GitStore) AddAccount(_ context.Context, record *Record) error {
	if err := record.validate(); err != nil {
		return fmt.Errorf("git store: %w", err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.initialized {
		return ErrNotInitialized
	}

	path, err := writeRecordFile(s.RecordDir(), record)
	if err != nil {
		return fmt.Errorf("git store: %w", err)
	}
	rel := filepath.ToSlash(filepath.Join(gitStoreRecordDir, record.FileName()))
	if err = s.commitLocked(fmt.Sprintf("Add credential %s for %s", record.ID, record.Email), rel); err != nil {
		s.discardLocked(rel, path)
		return err
	}
	if errPush := s.pushLocked(); errPush != nil {
		log.WithError(errPush).WithField("record_id", record.ID).Warn("git store: push failed, record kept in local commit")
	}
	return nil
}

// ListAccounts reads every record file in the working tree.
func (s *GitStore) ListAccounts(_ context.Context) ([]*Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.initialized {
		return nil, ErrNotInitialized
	}
	records, err := readRecordDir(s.RecordDir())
	if err != nil {
		return nil, fmt.Errorf("git store: %w", err)
	}
	return records, nil
}

func (s *GitStore) openOrCreate() (*git.Repository, error) {
	repoDir := s.cfg.RepoDir
	gitDir := filepath.Join(repoDir, ".git")
	_, errStat := os.Stat(gitDir)
	switch {
	case errStat == nil:
		repo, err := git.PlainOpen(repoDir)
		if err != nil {
			return nil, fmt.Errorf("git store: open repo: %w", err)
		}
		s.pull(repo)
		return repo, nil
	case !errors.Is(errStat, fs.ErrNotExist):
		return nil, fmt.Errorf("git store: stat repo: %w", errStat)
	}

	if err := os.MkdirAll(repoDir, 0o700); err != nil {
		return nil, fmt.Errorf("git store: create repo dir: %w", err)
	}
	if s.cfg.Remote != "" {
		repo, errClone := git.PlainClone(repoDir, &git.CloneOptions{Auth: s.gitAuth(), URL: s.cfg.Remote})
		if errClone == nil {
			return repo, nil
		}
		if !errors.Is(errClone, transport.ErrEmptyRemoteRepository) {
			return nil, fmt.Errorf("git store: clone remote: %w", errClone)
		}
		_ = os.RemoveAll(gitDir)
	}

	repo, err := git.PlainInit(repoDir, false)
	if err != nil {
		return nil, fmt.Errorf("git store: init repo: %w", err)
	}
	if s.cfg.Remote != "" {
		if _, errCreate := repo.CreateRemote(&config.RemoteConfig{
			Name: "origin",
			URLs: []string{s.cfg.Remote},
		}); errCreate != nil && !errors.Is(errCreate, git.ErrRemoteExists) {
			return nil, fmt.Errorf("git store: configure remote: %w", errCreate)
		}
	}
	return repo, nil
}

func (s *GitStore) pull(repo *git.Repository) {
	if s.cfg.Remote == "" {
		return
	}
	worktree, err := repo.Worktree()
	if err != nil {
		log.WithError(err).Warn("git store: worktree")
		return
	}
	errPull := worktree.Pull(&git.PullOptions{Auth: s.gitAuth(), RemoteName: "origin"})
	switch {
	case errPull == nil,
		errors.Is(errPull, git.NoErrAlreadyUpToDate),
		errors.Is(errPull, plumbing.ErrReferenceNotFound),
		errors.Is(errPull, transport.ErrEmptyRemoteRepository):
	default:
		// Local records stay authoritative; a failed pull only delays seeing remote appends.
		log.WithError(errPull).Warn("git store: pull")
	}
}

func (s *GitStore) commitLocked(message string, relPaths ...string) error {
	worktree, err := s.repo.Worktree()
	if err != nil {
		return fmt.Errorf("git store: worktree: %w", err)
	}
	for _, rel := range relPaths {
		if _, err = worktree.Add(rel); err != nil {
			return fmt.Errorf("git store: add %s: %w", rel, err)
		}
	}
	signature := &object.Signature{
		Name:  s.cfg.AuthorName,
		Email: s.cfg.AuthorEmail,
		When:  time.Now(),
	}
	if _, err = worktree.Commit(message, &git.CommitOptions{Author: signature}); err != nil {
		if errors.Is(err, git.ErrEmptyCommit) {
			return nil
		}
		return fmt.Errorf("git store: commit: %w", err)
	}
	return nil
}

// discardLocked unstages and deletes a record file whose commit did not land.
func (s *GitStore) discardLocked(rel, path string) {
	if worktree, err := s.repo.Worktree(); err == nil {
		if _, errRemove := worktree.Remove(rel); errRemove != nil && !errors.Is(errRemove, os.ErrNotExist) {
			log.WithError(errRemove).Debugf("git store: unstage %s", rel)
		}
	}
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		log.WithError(err).Warnf("git store: remove %s", path)
	}
}

// pushLocked pushes all local commits, including those left behind by earlier failed pushes.
func (s *GitStore) pushLocked() error {
	if s.cfg.Remote == "" {
		return nil
	}
	if err := s.repo.Push(&git.PushOptions{Auth: s.gitAuth()}); err != nil {
		if errors.Is(err, git.NoErrAlreadyUpToDate) {
			return nil
		}
		return fmt.Errorf("git store: push: %w", err)
	}
	return nil
}

func (s *GitStore) gitAuth() transport.AuthMethod {
	if s.cfg.Username == "" && s.cfg.Password == "" {
		return nil
	}
	user := s.cfg.Username
	if user == "" {
		user = "git"
	}
	return &http.BasicAuth{Username: user, Password: s.cfg.Password}
}
